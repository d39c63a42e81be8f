package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"report-card-service/internal/domain"
	"report-card-service/internal/infra/memory"
)

func TestRosterRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	loader := newCountingLoader()
	repo := NewRosterRepository(client, loader, time.Minute, nil)

	records, err := repo.GetRoster(context.Background(), memory.DemoClassID)
	if err != nil {
		t.Fatalf("get roster: %v", err)
	}
	if len(records) != 20 {
		t.Fatalf("expected 20 records, got %d", len(records))
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("roster:demo:records") {
		t.Fatalf("expected roster cached in redis")
	}
	if ttl := mr.TTL("roster:demo:records"); ttl < time.Minute || ttl > 66*time.Second {
		t.Fatalf("expected ttl with jitter, got %s", ttl)
	}

	// Second call should hit cache, loader not incremented.
	cached, err := repo.GetRoster(context.Background(), memory.DemoClassID)
	if err != nil {
		t.Fatalf("get cached roster: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if cached[0].StudentName != "Alice" || cached[0].Score != 85 {
		t.Fatalf("unexpected cached record %+v", cached[0])
	}

	mr.FastForward(2 * time.Minute)
	if _, err := repo.GetRoster(context.Background(), memory.DemoClassID); err != nil {
		t.Fatalf("get roster after expiry: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after expiry, loader calls=%d", loader.calls)
	}
}

func TestRosterRepositoryUnknownClass(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewRosterRepository(newClient(mr), newCountingLoader(), time.Minute, nil)
	if _, err := repo.GetRoster(context.Background(), "missing"); !errors.Is(err, domain.ErrRosterNotFound) {
		t.Fatalf("expected roster not found, got %v", err)
	}
	if mr.Exists("roster:missing:records") {
		t.Fatalf("failed loads must not be cached")
	}
}

type countingLoader struct {
	memory.RosterLoader
	calls int
}

func newCountingLoader() *countingLoader {
	return &countingLoader{
		RosterLoader: memory.NewStaticRosterLoader(map[string][]domain.ActivityRecord{
			memory.DemoClassID: memory.DemoRoster(),
		}),
	}
}

func (l *countingLoader) LoadRoster(ctx context.Context, classID string) ([]domain.ActivityRecord, error) {
	l.calls++
	return l.RosterLoader.LoadRoster(ctx, classID)
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
