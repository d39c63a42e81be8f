package grading

import (
	"fmt"
	"sort"

	"report-card-service/internal/domain"
)

// RankStudents orders students by average score, highest first.
// Students are grouped by name and taken in name order before a stable sort,
// so tied averages always rank alphabetically regardless of input order.
func RankStudents(records []domain.ActivityRecord) []domain.RankEntry {
	averages := studentAverages(records)

	entries := make([]domain.RankEntry, 0, len(averages))
	for _, name := range Students(records) {
		entries = append(entries, domain.RankEntry{
			StudentName:  name,
			AverageScore: averages[name],
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].AverageScore > entries[j].AverageScore
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Topper returns the rank 1 student.
func Topper(records []domain.ActivityRecord) (domain.RankEntry, error) {
	entries := RankStudents(records)
	if len(entries) == 0 {
		return domain.RankEntry{}, fmt.Errorf("topper: %w", domain.ErrEmptyInput)
	}
	return entries[0], nil
}

func studentAverages(records []domain.ActivityRecord) map[string]float64 {
	sums := make(map[string]int)
	counts := make(map[string]int)
	for _, r := range records {
		sums[r.StudentName] += r.Score
		counts[r.StudentName]++
	}
	averages := make(map[string]float64, len(sums))
	for name, sum := range sums {
		averages[name] = float64(sum) / float64(counts[name])
	}
	return averages
}
