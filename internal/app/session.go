package app

import (
	"sync"
	"time"

	"report-card-service/internal/domain"
	"report-card-service/internal/grading"
)

// Session is the working set of one dashboard session: the class baseline
// plus every record appended while the session is open. Appends never leak
// into other sessions.
type Session struct {
	id          string
	classID     string
	createdAt   time.Time
	now         func() time.Time
	mu          sync.RWMutex
	lastSeen    time.Time
	records     []domain.ActivityRecord
	subscribers map[chan domain.Ranking]struct{}
	closed      bool
}

// NewSession is exported for infrastructure layers that create or rehydrate sessions.
func NewSession(id, classID string, records []domain.ActivityRecord) *Session {
	return NewSessionWithClock(id, classID, records, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(id, classID string, records []domain.ActivityRecord, now func() time.Time) *Session {
	created := now()
	owned := make([]domain.ActivityRecord, len(records))
	copy(owned, records)
	return &Session{
		id:          id,
		classID:     classID,
		createdAt:   created,
		now:         now,
		lastSeen:    created,
		records:     owned,
		subscribers: make(map[chan domain.Ranking]struct{}),
	}
}

func (s *Session) ID() string      { return s.id }
func (s *Session) ClassID() string { return s.classID }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Records returns a copy of the session's records in insertion order.
func (s *Session) Records() []domain.ActivityRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ActivityRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len reports how many records the session holds.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Append adds records to the session and pushes the new ranking to subscribers.
func (s *Session) Append(records ...domain.ActivityRecord) domain.Ranking {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	s.lastSeen = s.now()
	return s.broadcastLocked()
}

// Ranking computes the current class ranking of the session.
func (s *Session) Ranking() domain.Ranking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

// IdleFor reports how long the session has gone unused as of now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.lastSeen)
}

// Close ends every subscription. Later subscribers get a closed channel.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// Subscribe returns a channel receiving the current ranking and every later update.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.Ranking, func()) {
	ch := make(chan domain.Ranking, 8)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	// the buffer is empty, so this send never blocks while the lock is held
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() domain.Ranking {
	ranking := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- ranking:
		default:
			// slow subscriber: replace its oldest pending ranking
			select {
			case <-ch:
			default:
			}
			ch <- ranking
		}
	}
	return ranking
}

func (s *Session) snapshotLocked() domain.Ranking {
	return domain.Ranking{
		SessionID: s.id,
		Entries:   grading.RankStudents(s.records),
		UpdatedAt: s.now(),
	}
}
