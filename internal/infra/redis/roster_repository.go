package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"report-card-service/internal/domain"
	"report-card-service/internal/infra/memory"
)

// RosterRepository caches class rosters in Redis and falls back to a loader on cache miss.
// A roster is stored as a JSON array: SET roster:{classID}:records [...] EX ttl
type RosterRepository struct {
	client *redis.Client
	loader memory.RosterLoader
	ttl    time.Duration
	log    *zap.Logger
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewRosterRepository(client *redis.Client, loader memory.RosterLoader, ttl time.Duration, log *zap.Logger) *RosterRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &RosterRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *RosterRepository) GetRoster(ctx context.Context, classID string) ([]domain.ActivityRecord, error) {
	key := rosterKey(classID)
	if records, ok := r.cached(ctx, key); ok {
		return records, nil
	}

	result, err, _ := r.sf.Do(classID, func() (interface{}, error) {
		// another caller may have filled the cache while we waited
		if records, ok := r.cached(ctx, key); ok {
			return records, nil
		}

		records, err := r.loader.LoadRoster(ctx, classID)
		if err != nil {
			return nil, err
		}

		payload, err := json.Marshal(records)
		if err != nil {
			return nil, err
		}
		if err := r.client.Set(ctx, key, payload, r.ttlWithJitter()).Err(); err != nil {
			r.log.Warn("cache roster", zap.String("class", classID), zap.Error(err))
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.ActivityRecord), nil
}

func (r *RosterRepository) cached(ctx context.Context, key string) ([]domain.ActivityRecord, bool) {
	payload, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("read cached roster", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var records []domain.ActivityRecord
	if err := json.Unmarshal(payload, &records); err != nil || len(records) == 0 {
		return nil, false
	}
	return records, true
}

func rosterKey(classID string) string {
	return "roster:" + classID + ":records"
}

func (r *RosterRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
