// Package ingest turns uploaded CSV files and form input into validated activity records.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"report-card-service/internal/domain"
)

// Columns lists the header names an activity CSV must carry.
var Columns = []string{"student_id", "student_name", "activity", "subject", "score", "timestamp"}

var timestampLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Result is the outcome of an upload: the accepted records and the rejected rows.
type Result struct {
	Records  []domain.ActivityRecord `json:"-"`
	Rejected []domain.RowError       `json:"rejected"`
}

// ParseCSV reads activity records from r. A missing required column fails the
// whole upload; a malformed row is rejected and the remaining rows are still read.
func ParseCSV(r io.Reader) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Result{}, fmt.Errorf("%w: empty file", domain.ErrMissingColumn)
	}
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}
	index, err := columnIndex(header)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				result.Rejected = append(result.Rejected, domain.RowError{Line: perr.StartLine, Reason: perr.Err.Error()})
				continue
			}
			return result, fmt.Errorf("read rows: %w", err)
		}
		if blank(row) {
			continue
		}
		line, _ := reader.FieldPos(0)

		rec, err := parseRow(row, index)
		if err != nil {
			result.Rejected = append(result.Rejected, domain.RowError{Line: line, Reason: err.Error()})
			continue
		}
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	var missing []string
	for _, col := range Columns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingColumn, strings.Join(missing, ", "))
	}
	return index, nil
}

func parseRow(row []string, index map[string]int) (domain.ActivityRecord, error) {
	field := func(col string) string {
		i := index[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	kind, err := domain.ParseActivityKind(field("activity"))
	if err != nil {
		return domain.ActivityRecord{}, fmt.Errorf("activity %q is not quiz, poll or test", field("activity"))
	}
	score, err := strconv.Atoi(field("score"))
	if err != nil {
		return domain.ActivityRecord{}, fmt.Errorf("score %q is not a whole number", field("score"))
	}
	ts, err := ParseTimestamp(field("timestamp"))
	if err != nil {
		return domain.ActivityRecord{}, err
	}

	rec := domain.ActivityRecord{
		StudentID:   field("student_id"),
		StudentName: field("student_name"),
		Activity:    kind,
		Subject:     field("subject"),
		Score:       score,
		Timestamp:   ts,
	}
	if err := Check(rec); err != nil {
		return domain.ActivityRecord{}, err
	}
	return rec, nil
}

// ParseTimestamp accepts a date or a date-time in the supported layouts.
func ParseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q is not a date", raw)
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
