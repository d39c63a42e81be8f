// Package grading aggregates activity records into summary statistics,
// status bands, comments, class rankings and learning recommendations.
//
// Every function is a pure computation over the record slice it is given;
// nothing is cached, so results always reflect the caller's current records.
package grading

import (
	"fmt"
	"sort"

	"report-card-service/internal/domain"
)

// PassThreshold is the minimum mean score that passes.
const PassThreshold = 60.0

const (
	excellentThreshold = 80.0

	CommentExcellent = "Excellent work! Keep up the great performance."
	CommentGood      = "Good job! There is room for improvement."
	CommentNeedsWork = "Needs improvement. Consider revising the material more thoroughly."
)

// Filter selects one student's records, optionally narrowed to one subject.
// Both fields match exactly; an empty Subject matches every subject.
type Filter struct {
	Student string
	Subject string
}

func (f Filter) matches(r domain.ActivityRecord) bool {
	if r.StudentName != f.Student {
		return false
	}
	return f.Subject == "" || r.Subject == f.Subject
}

// Select returns the records matching f in chronological order.
// Records sharing a timestamp keep their input order.
func Select(records []domain.ActivityRecord, f Filter) []domain.ActivityRecord {
	selected := make([]domain.ActivityRecord, 0, len(records))
	for _, r := range records {
		if f.matches(r) {
			selected = append(selected, r)
		}
	}
	SortChronologically(selected)
	return selected
}

// SortChronologically orders records by timestamp in place, keeping ties stable.
func SortChronologically(records []domain.ActivityRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}

// Summarize computes the summary statistics of the records matching f.
// It returns domain.ErrEmptyInput when nothing matches.
func Summarize(records []domain.ActivityRecord, f Filter) (domain.SummaryStatistics, error) {
	selected := Select(records, f)
	if len(selected) == 0 {
		return domain.SummaryStatistics{}, fmt.Errorf("summarize %s: %w", describe(f), domain.ErrEmptyInput)
	}

	sum := 0
	maxScore, minScore := selected[0].Score, selected[0].Score
	for _, r := range selected {
		sum += r.Score
		if r.Score > maxScore {
			maxScore = r.Score
		}
		if r.Score < minScore {
			minScore = r.Score
		}
	}
	mean := float64(sum) / float64(len(selected))

	return domain.SummaryStatistics{
		MeanScore:     mean,
		MaxScore:      maxScore,
		MinScore:      minScore,
		ActivityCount: len(selected),
		Status:        StatusFor(mean),
	}, nil
}

// StatusFor maps a mean score onto the pass/fail band.
func StatusFor(mean float64) domain.Status {
	if mean >= PassThreshold {
		return domain.StatusPassed
	}
	return domain.StatusFailed
}

// CommentFor returns the fixed comment for the band a mean score falls in.
func CommentFor(mean float64) string {
	switch {
	case mean >= excellentThreshold:
		return CommentExcellent
	case mean >= PassThreshold:
		return CommentGood
	default:
		return CommentNeedsWork
	}
}

// ClassMaxScore returns the highest score of any student in records.
func ClassMaxScore(records []domain.ActivityRecord) (int, error) {
	if len(records) == 0 {
		return 0, fmt.Errorf("class max score: %w", domain.ErrEmptyInput)
	}
	best := records[0].Score
	for _, r := range records[1:] {
		if r.Score > best {
			best = r.Score
		}
	}
	return best, nil
}

// Students returns the distinct student names in records, sorted.
func Students(records []domain.ActivityRecord) []string {
	seen := make(map[string]struct{}, len(records))
	names := make([]string, 0)
	for _, r := range records {
		if _, ok := seen[r.StudentName]; ok {
			continue
		}
		seen[r.StudentName] = struct{}{}
		names = append(names, r.StudentName)
	}
	sort.Strings(names)
	return names
}

// SummarizeActivities breaks one student's records down by activity kind.
// Kinds without records are omitted.
func SummarizeActivities(records []domain.ActivityRecord, f Filter) ([]domain.ActivitySummary, error) {
	selected := Select(records, f)
	if len(selected) == 0 {
		return nil, fmt.Errorf("activities %s: %w", describe(f), domain.ErrEmptyInput)
	}

	sums := make(map[domain.ActivityKind]int)
	counts := make(map[domain.ActivityKind]int)
	for _, r := range selected {
		sums[r.Activity] += r.Score
		counts[r.Activity]++
	}

	out := make([]domain.ActivitySummary, 0, len(domain.ActivityKinds))
	for _, kind := range domain.ActivityKinds {
		n := counts[kind]
		if n == 0 {
			continue
		}
		out = append(out, domain.ActivitySummary{
			Activity:     kind,
			AverageScore: float64(sums[kind]) / float64(n),
			Count:        n,
		})
	}
	return out, nil
}

func describe(f Filter) string {
	if f.Subject == "" {
		return fmt.Sprintf("student %q", f.Student)
	}
	return fmt.Sprintf("student %q subject %q", f.Student, f.Subject)
}
