package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"report-card-service/internal/domain"
)

func TestRosterRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		RosterLoader: NewStaticRosterLoader(map[string][]domain.ActivityRecord{
			DemoClassID: DemoRoster(),
		}),
	}
	repo := NewRosterRepository(loader, time.Minute)

	records, err := repo.GetRoster(context.Background(), DemoClassID)
	if err != nil {
		t.Fatalf("get roster: %v", err)
	}
	if len(records) != 20 {
		t.Fatalf("expected 20 demo records, got %d", len(records))
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetRoster(context.Background(), DemoClassID); err != nil {
		t.Fatalf("get roster 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestRosterRepositoryReloadsAfterTTL(t *testing.T) {
	loader := &countingLoader{
		RosterLoader: NewStaticRosterLoader(map[string][]domain.ActivityRecord{
			DemoClassID: DemoRoster(),
		}),
	}
	repo := NewRosterRepository(loader, time.Minute)
	now := time.Date(2024, time.September, 1, 8, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	if _, err := repo.GetRoster(context.Background(), DemoClassID); err != nil {
		t.Fatalf("get roster: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := repo.GetRoster(context.Background(), DemoClassID); err != nil {
		t.Fatalf("get roster after ttl: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls)
	}
}

func TestRosterRepositoryUnknownClass(t *testing.T) {
	repo := NewRosterRepository(NewStaticRosterLoader(nil), time.Minute)
	if _, err := repo.GetRoster(context.Background(), "7b"); !errors.Is(err, domain.ErrRosterNotFound) {
		t.Fatalf("expected roster not found, got %v", err)
	}
}

type countingLoader struct {
	RosterLoader
	calls int
}

func (l *countingLoader) LoadRoster(ctx context.Context, classID string) ([]domain.ActivityRecord, error) {
	l.calls++
	return l.RosterLoader.LoadRoster(ctx, classID)
}
