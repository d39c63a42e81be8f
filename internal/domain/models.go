package domain

import (
	"fmt"
	"strings"
	"time"
)

// ActivityKind is the type of scored event.
type ActivityKind string

const (
	KindQuiz ActivityKind = "quiz"
	KindPoll ActivityKind = "poll"
	KindTest ActivityKind = "test"
)

// ActivityKinds lists the kinds in display order.
var ActivityKinds = []ActivityKind{KindQuiz, KindPoll, KindTest}

// ParseActivityKind accepts any casing of quiz, poll or test.
func ParseActivityKind(raw string) (ActivityKind, error) {
	kind := ActivityKind(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case KindQuiz, KindPoll, KindTest:
		return kind, nil
	}
	return "", fmt.Errorf("%w: unknown activity %q", ErrInvalidRecord, raw)
}

// ActivityRecord is one scored activity of one student. Records are never mutated after ingestion.
type ActivityRecord struct {
	StudentID   string       `json:"studentId" validate:"required,max=64"`
	StudentName string       `json:"studentName" validate:"required,max=64"`
	Activity    ActivityKind `json:"activity" validate:"oneof=quiz poll test"`
	Subject     string       `json:"subject" validate:"required,max=64"`
	Score       int          `json:"score" validate:"min=0,max=100"`
	Timestamp   time.Time    `json:"timestamp" validate:"required"`
}

// Status is the pass/fail band of a mean score.
type Status string

const (
	StatusPassed Status = "Passed"
	StatusFailed Status = "Failed"
)

// SummaryStatistics is derived from a filtered record set and never stored.
type SummaryStatistics struct {
	MeanScore     float64 `json:"meanScore"`
	MaxScore      int     `json:"maxScore"`
	MinScore      int     `json:"minScore"`
	ActivityCount int     `json:"activityCount"`
	Status        Status  `json:"status"`
}

// ActivitySummary aggregates one student's scores for a single activity kind.
type ActivitySummary struct {
	Activity     ActivityKind `json:"activity"`
	AverageScore float64      `json:"averageScore"`
	Count        int          `json:"count"`
}

// RankEntry is one row of the class ranking. Rank is 1-based.
type RankEntry struct {
	Rank         int     `json:"rank"`
	StudentName  string  `json:"studentName"`
	AverageScore float64 `json:"averageScore"`
}

// Ranking captures the ordered class ranking of a session.
type Ranking struct {
	SessionID string      `json:"sessionId"`
	Entries   []RankEntry `json:"entries"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Recommendation is the learning-path advice for one student.
type Recommendation struct {
	StudentName  string  `json:"studentName"`
	AverageScore float64 `json:"averageScore"`
	StruggleArea string  `json:"struggleArea"`
	Advice       string  `json:"advice"`
}

// TitleContext frames a report card. A non-empty SubjectName selects the per-subject layout.
type TitleContext struct {
	StudentName string
	SubjectName string
}

// ReportCard is the rendering-time composite of a summary and its contributing records.
type ReportCard struct {
	Title         string
	Subtitle      string
	Summary       SummaryStatistics
	Records       []ActivityRecord
	Comment       string
	ClassMaxScore int
}
