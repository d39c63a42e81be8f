package grading

import (
	"fmt"
	"sort"

	"report-card-service/internal/domain"
)

const (
	basicThreshold        = 50
	intermediateThreshold = 70
)

// Recommend picks the resource level for a score in a struggle area.
func Recommend(score int, area string) string {
	switch {
	case score < basicThreshold:
		return fmt.Sprintf("Provide basic resources in %s.", area)
	case score < intermediateThreshold:
		return fmt.Sprintf("Provide intermediate resources in %s.", area)
	default:
		return "Provide advanced resources."
	}
}

// Recommendations advises every student in records, in name order.
// The struggle area is the student's lowest-average subject; the level
// follows the student's overall average, rounded down.
func Recommendations(records []domain.ActivityRecord) []domain.Recommendation {
	averages := studentAverages(records)
	out := make([]domain.Recommendation, 0, len(averages))
	for _, name := range Students(records) {
		avg := averages[name]
		area := weakestSubject(records, name)
		out = append(out, domain.Recommendation{
			StudentName:  name,
			AverageScore: avg,
			StruggleArea: area,
			Advice:       Recommend(int(avg), area),
		})
	}
	return out
}

func weakestSubject(records []domain.ActivityRecord, student string) string {
	sums := make(map[string]int)
	counts := make(map[string]int)
	for _, r := range records {
		if r.StudentName != student {
			continue
		}
		sums[r.Subject] += r.Score
		counts[r.Subject]++
	}

	subjects := make([]string, 0, len(sums))
	for subject := range sums {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)

	weakest := ""
	lowest := 0.0
	for _, subject := range subjects {
		avg := float64(sums[subject]) / float64(counts[subject])
		if weakest == "" || avg < lowest {
			weakest, lowest = subject, avg
		}
	}
	return weakest
}
