package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"report-card-service/internal/app"
	"report-card-service/internal/domain"
	"report-card-service/internal/metrics"
)

// SessionStore is a Redis-backed implementation of app.SessionRepository.
//   - A local map keeps live sessions so the in-process ranking feed keeps working.
//   - report:session:{id} holds the class id and marks liveness; its TTL is the idle timeout.
//   - report:session:{id}:records lists the rows appended during the session, so
//     another instance can rebuild the session from the roster plus those rows.
//
// Every local session remembers how many rows of the records list it has applied
// and pulls the missing tail on Get and Append, so appends made through another
// instance show up here.
type SessionStore struct {
	client *redis.Client
	roster app.RosterRepository
	ttl    time.Duration
	log    *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*liveSession
}

type liveSession struct {
	mu      sync.Mutex
	session *app.Session
	applied int64
}

func NewSessionStore(client *redis.Client, roster app.RosterRepository, ttl time.Duration, log *zap.Logger) *SessionStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionStore{
		client:   client,
		roster:   roster,
		ttl:      ttl,
		log:      log,
		sessions: make(map[string]*liveSession),
	}
}

func (s *SessionStore) Create(ctx context.Context, classID string) (*app.Session, error) {
	baseline, err := s.roster.GetRoster(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	session := app.NewSession(uuid.NewString(), classID, baseline)
	if err := s.client.Set(ctx, s.key(session.ID()), classID, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("register session: %w", err)
	}

	s.mu.Lock()
	s.sessions[session.ID()] = &liveSession{session: session}
	s.mu.Unlock()
	metrics.ActiveSessions.Inc()
	return session, nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*app.Session, error) {
	live := s.lookup(sessionID)
	if live == nil {
		return s.rehydrate(ctx, sessionID)
	}

	live.mu.Lock()
	defer live.mu.Unlock()

	pipe := s.client.Pipeline()
	exists := pipe.Exists(ctx, s.key(sessionID))
	length := pipe.LLen(ctx, s.recordsKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		// keep serving the local copy while Redis is unavailable
		s.log.Warn("check session liveness", zap.String("session", sessionID), zap.Error(err))
		live.session.Touch()
		return live.session, nil
	}
	if exists.Val() == 0 {
		s.forget(sessionID)
		return nil, domain.ErrSessionNotFound
	}
	if err := s.catchUp(ctx, live, length.Val()); err != nil {
		return nil, err
	}
	s.refresh(ctx, sessionID)
	live.session.Touch()
	return live.session, nil
}

func (s *SessionStore) rehydrate(ctx context.Context, sessionID string) (*app.Session, error) {
	classID, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	baseline, err := s.roster.GetRoster(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	rows, err := s.client.LRange(ctx, s.recordsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load session records: %w", err)
	}
	appended, err := decodeRows(rows)
	if err != nil {
		return nil, err
	}

	records := make([]domain.ActivityRecord, 0, len(baseline)+len(appended))
	records = append(records, baseline...)
	records = append(records, appended...)

	s.mu.Lock()
	if existing, ok := s.sessions[sessionID]; ok {
		s.mu.Unlock()
		return existing.session, nil
	}
	session := app.NewSession(sessionID, classID, records)
	s.sessions[sessionID] = &liveSession{session: session, applied: int64(len(rows))}
	s.mu.Unlock()

	metrics.ActiveSessions.Inc()
	s.refresh(ctx, sessionID)
	return session, nil
}

// Append persists the rows before adding them to the live session, so a
// failed write leaves both copies unchanged. Rows pushed by other instances
// ahead of ours are applied first to keep the list order.
func (s *SessionStore) Append(ctx context.Context, session *app.Session, records []domain.ActivityRecord) (domain.Ranking, error) {
	if len(records) == 0 {
		return session.Ranking(), nil
	}
	values := make([]interface{}, 0, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return domain.Ranking{}, err
		}
		values = append(values, payload)
	}

	live := s.lookup(session.ID())
	if live != nil {
		live.mu.Lock()
		defer live.mu.Unlock()
	}

	pipe := s.client.TxPipeline()
	push := pipe.RPush(ctx, s.recordsKey(session.ID()), values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.recordsKey(session.ID()), s.ttl)
		pipe.Expire(ctx, s.key(session.ID()), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Ranking{}, fmt.Errorf("persist session records: %w", err)
	}
	if live == nil || live.session != session {
		return session.Append(records...), nil
	}

	total := push.Val()
	if err := s.catchUp(ctx, live, total-int64(len(records))); err != nil {
		// the next Get rebuilds the session from Redis
		s.log.Warn("sync session records", zap.String("session", session.ID()), zap.Error(err))
		s.forget(session.ID())
		return session.Append(records...), nil
	}
	live.applied = total
	return session.Append(records...), nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	local := s.forget(sessionID)
	removed, err := s.client.Del(ctx, s.key(sessionID), s.recordsKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if !local && removed == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// Sweep drops local sessions whose liveness key has expired in Redis.
func (s *SessionStore) Sweep(ctx context.Context) int {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	removed := 0
	for _, id := range ids {
		alive, err := s.client.Exists(ctx, s.key(id)).Result()
		if err != nil {
			s.log.Warn("sweep session", zap.String("session", id), zap.Error(err))
			continue
		}
		if alive == 0 && s.forget(id) {
			removed++
		}
	}
	return removed
}

// catchUp applies the rows of the records list between live.applied and upto.
// The caller holds live.mu.
func (s *SessionStore) catchUp(ctx context.Context, live *liveSession, upto int64) error {
	if upto <= live.applied {
		return nil
	}
	id := live.session.ID()
	rows, err := s.client.LRange(ctx, s.recordsKey(id), live.applied, upto-1).Result()
	if err != nil {
		return fmt.Errorf("load session records: %w", err)
	}
	missing, err := decodeRows(rows)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		live.session.Append(missing...)
	}
	live.applied += int64(len(rows))
	return nil
}

func (s *SessionStore) lookup(sessionID string) *liveSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionID]
}

func (s *SessionStore) forget(sessionID string) bool {
	s.mu.Lock()
	live, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if ok {
		live.session.Close()
		metrics.ActiveSessions.Dec()
	}
	return ok
}

func (s *SessionStore) refresh(ctx context.Context, sessionID string) {
	if s.ttl <= 0 {
		return
	}
	pipe := s.client.Pipeline()
	pipe.Expire(ctx, s.key(sessionID), s.ttl)
	pipe.Expire(ctx, s.recordsKey(sessionID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("refresh session ttl", zap.String("session", sessionID), zap.Error(err))
	}
}

func (s *SessionStore) key(sessionID string) string {
	return "report:session:" + sessionID
}

func (s *SessionStore) recordsKey(sessionID string) string {
	return s.key(sessionID) + ":records"
}

func decodeRows(rows []string) ([]domain.ActivityRecord, error) {
	records := make([]domain.ActivityRecord, 0, len(rows))
	for _, row := range rows {
		var rec domain.ActivityRecord
		if err := json.Unmarshal([]byte(row), &rec); err != nil {
			return nil, fmt.Errorf("decode session record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
