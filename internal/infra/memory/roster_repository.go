package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"report-card-service/internal/domain"
)

// DemoClassID names the built-in sample class.
const DemoClassID = "demo"

// RosterLoader fetches the baseline records of a class from a backing store.
type RosterLoader interface {
	LoadRoster(ctx context.Context, classID string) ([]domain.ActivityRecord, error)
}

// RosterRepository caches class rosters with TTL to avoid repeated DB hits.
type RosterRepository struct {
	loader RosterLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedRoster
}

type cachedRoster struct {
	records   []domain.ActivityRecord
	expiresAt time.Time
}

func NewRosterRepository(loader RosterLoader, ttl time.Duration) *RosterRepository {
	return &RosterRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedRoster),
	}
}

// GetRoster returns the cached roster of classID, loading it on a miss.
// Callers must not modify the returned slice.
func (r *RosterRepository) GetRoster(ctx context.Context, classID string) ([]domain.ActivityRecord, error) {
	if records, ok := r.cached(classID, r.clock()); ok {
		return records, nil
	}

	result, err, _ := r.sf.Do(classID, func() (interface{}, error) {
		now := r.clock()
		if records, ok := r.cached(classID, now); ok {
			return records, nil
		}

		records, err := r.loader.LoadRoster(ctx, classID)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[classID] = cachedRoster{
			records:   records,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.ActivityRecord), nil
}

func (r *RosterRepository) cached(classID string, now time.Time) ([]domain.ActivityRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[classID]
	if !ok || !entry.expiresAt.After(now) {
		return nil, false
	}
	return entry.records, true
}

func (r *RosterRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticRosterLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticRosterLoader struct {
	rosters map[string][]domain.ActivityRecord
}

func NewStaticRosterLoader(rosters map[string][]domain.ActivityRecord) *StaticRosterLoader {
	return &StaticRosterLoader{rosters: rosters}
}

func (l *StaticRosterLoader) LoadRoster(_ context.Context, classID string) ([]domain.ActivityRecord, error) {
	if records, ok := l.rosters[classID]; ok && len(records) > 0 {
		return records, nil
	}
	return nil, domain.ErrRosterNotFound
}

// DemoRoster returns the sample class: three students over four subjects.
func DemoRoster() []domain.ActivityRecord {
	rec := func(id, name string, kind domain.ActivityKind, subject string, score int, month time.Month, day int) domain.ActivityRecord {
		return domain.ActivityRecord{
			StudentID:   id,
			StudentName: name,
			Activity:    kind,
			Subject:     subject,
			Score:       score,
			Timestamp:   time.Date(2024, month, day, 0, 0, 0, 0, time.UTC),
		}
	}
	return []domain.ActivityRecord{
		rec("student_01", "Alice", domain.KindQuiz, "Math", 85, time.August, 15),
		rec("student_01", "Alice", domain.KindPoll, "Math", 90, time.August, 16),
		rec("student_02", "Bob", domain.KindTest, "Science", 78, time.August, 17),
		rec("student_03", "Charlie", domain.KindQuiz, "Math", 92, time.August, 20),
		rec("student_01", "Alice", domain.KindTest, "Science", 88, time.August, 25),
		rec("student_02", "Bob", domain.KindPoll, "Science", 75, time.August, 28),
		rec("student_03", "Charlie", domain.KindQuiz, "Math", 84, time.September, 1),
		rec("student_01", "Alice", domain.KindTest, "History", 91, time.September, 5),
		rec("student_02", "Bob", domain.KindPoll, "History", 77, time.September, 10),
		rec("student_03", "Charlie", domain.KindQuiz, "History", 89, time.September, 12),
		rec("student_01", "Alice", domain.KindQuiz, "English", 82, time.September, 15),
		rec("student_01", "Alice", domain.KindTest, "Math", 79, time.September, 18),
		rec("student_02", "Bob", domain.KindPoll, "Science", 88, time.September, 20),
		rec("student_03", "Charlie", domain.KindQuiz, "History", 85, time.September, 22),
		rec("student_01", "Alice", domain.KindPoll, "English", 87, time.September, 25),
		rec("student_02", "Bob", domain.KindTest, "Math", 78, time.September, 30),
		rec("student_03", "Charlie", domain.KindQuiz, "Science", 90, time.October, 5),
		rec("student_01", "Alice", domain.KindPoll, "History", 84, time.October, 10),
		rec("student_02", "Bob", domain.KindTest, "English", 92, time.October, 15),
		rec("student_03", "Charlie", domain.KindQuiz, "Math", 80, time.October, 20),
	}
}
