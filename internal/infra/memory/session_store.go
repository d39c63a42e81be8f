package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"report-card-service/internal/app"
	"report-card-service/internal/domain"
	"report-card-service/internal/metrics"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Sessions unused for longer than ttl are removed by Sweep; a zero ttl keeps them until deleted.
type SessionStore struct {
	roster app.RosterRepository
	ttl    time.Duration
	clock  func() time.Time

	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(roster app.RosterRepository, ttl time.Duration) *SessionStore {
	return NewSessionStoreWithClock(roster, ttl, time.Now)
}

// NewSessionStoreWithClock is test-only for deterministic expiry.
func NewSessionStoreWithClock(roster app.RosterRepository, ttl time.Duration, clock func() time.Time) *SessionStore {
	return &SessionStore{
		roster:   roster,
		ttl:      ttl,
		clock:    clock,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Create(ctx context.Context, classID string) (*app.Session, error) {
	baseline, err := s.roster.GetRoster(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	session := app.NewSessionWithClock(uuid.NewString(), classID, baseline, s.clock)

	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()
	metrics.ActiveSessions.Inc()
	return session, nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*app.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok || s.expired(session) {
		return nil, domain.ErrSessionNotFound
	}
	session.Touch()
	return session, nil
}

func (s *SessionStore) Append(_ context.Context, session *app.Session, records []domain.ActivityRecord) (domain.Ranking, error) {
	return session.Append(records...), nil
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.Close()
	metrics.ActiveSessions.Dec()
	return nil
}

func (s *SessionStore) Sweep(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, session := range s.sessions {
		if s.expired(session) {
			delete(s.sessions, id)
			session.Close()
			metrics.ActiveSessions.Dec()
			removed++
		}
	}
	return removed
}

func (s *SessionStore) expired(session *app.Session) bool {
	return s.ttl > 0 && session.IdleFor(s.clock()) >= s.ttl
}
