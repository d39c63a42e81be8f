package render

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/wcharczuk/go-chart/v2"

	"report-card-service/internal/domain"
	"report-card-service/internal/grading"
)

// ChartContentType is the MIME type of rendered charts.
const ChartContentType = "image/png"

const (
	barWidth   = 48
	barSpacing = 24
	minWidth   = 640
	chartSize  = 480
)

// ScoreChart draws the class averages of a ranking as a bar chart.
func ScoreChart(entries []domain.RankEntry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("score chart: %w", domain.ErrEmptyInput)
	}

	bars := make([]chart.Value, 0, len(entries))
	for _, e := range entries {
		bars = append(bars, chart.Value{Label: e.StudentName, Value: e.AverageScore})
	}

	width := len(bars)*(barWidth+barSpacing) + 160
	if width < minWidth {
		width = minWidth
	}
	graph := chart.BarChart{
		Title:      "Average Score by Student",
		Background: chart.Style{Padding: chart.Box{Top: 48}},
		Width:      width,
		Height:     chartSize,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("score chart: %w", err)
	}
	return buf.Bytes(), nil
}

// StudentChart draws one student's average score per subject as a bar chart.
// A non-empty f.Subject narrows it to that subject.
func StudentChart(records []domain.ActivityRecord, f grading.Filter) ([]byte, error) {
	bars, err := studentBars(records, f)
	if err != nil {
		return nil, err
	}

	width := len(bars)*(barWidth+barSpacing) + 160
	if width < minWidth {
		width = minWidth
	}
	graph := chart.BarChart{
		Title:      "Score Distribution for " + f.Student,
		Background: chart.Style{Padding: chart.Box{Top: 48}},
		Width:      width,
		Height:     chartSize,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("student chart: %w", err)
	}
	return buf.Bytes(), nil
}

func studentBars(records []domain.ActivityRecord, f grading.Filter) ([]chart.Value, error) {
	selected := grading.Select(records, f)
	if len(selected) == 0 {
		return nil, fmt.Errorf("student chart for %s: %w", f.Student, domain.ErrEmptyInput)
	}

	sums := make(map[string]int)
	counts := make(map[string]int)
	for _, r := range selected {
		sums[r.Subject] += r.Score
		counts[r.Subject]++
	}
	subjects := make([]string, 0, len(counts))
	for s := range counts {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)

	bars := make([]chart.Value, 0, len(subjects))
	for _, s := range subjects {
		bars = append(bars, chart.Value{Label: s, Value: float64(sums[s]) / float64(counts[s])})
	}
	return bars, nil
}

// SubjectChart draws how many activities fall in each subject as a pie chart.
func SubjectChart(records []domain.ActivityRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("subject chart: %w", domain.ErrEmptyInput)
	}

	counts := make(map[string]int)
	for _, r := range records {
		counts[r.Subject]++
	}
	subjects := make([]string, 0, len(counts))
	for s := range counts {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)

	values := make([]chart.Value, 0, len(subjects))
	for _, s := range subjects {
		share := 100 * float64(counts[s]) / float64(len(records))
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s %.1f%%", s, share),
			Value: float64(counts[s]),
		})
	}

	graph := chart.PieChart{
		Title:  "Activities by Subject",
		Width:  chartSize,
		Height: chartSize,
		Values: values,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("subject chart: %w", err)
	}
	return buf.Bytes(), nil
}
