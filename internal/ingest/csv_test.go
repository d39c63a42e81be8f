package ingest_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report-card-service/internal/domain"
	"report-card-service/internal/ingest"
)

func TestParseCSVAcceptsValidRows(t *testing.T) {
	input := `student_id,student_name,activity,subject,score,timestamp
student_01,Alice,quiz,Math,85,2024-08-15
student_02,Bob,Test,Science,78,2024-08-17T09:30:00Z
`
	result, err := ingest.ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, result.Rejected)
	require.Len(t, result.Records, 2)

	assert.Equal(t, domain.ActivityRecord{
		StudentID:   "student_01",
		StudentName: "Alice",
		Activity:    domain.KindQuiz,
		Subject:     "Math",
		Score:       85,
		Timestamp:   time.Date(2024, time.August, 15, 0, 0, 0, 0, time.UTC),
	}, result.Records[0])
	assert.Equal(t, domain.KindTest, result.Records[1].Activity)
}

func TestParseCSVRejectsBadRowsAndContinues(t *testing.T) {
	input := `timestamp,score,subject,activity,student_name,student_id
2024-08-15,85,Math,quiz,Alice,student_01
2024-08-16,ninety,Math,poll,Alice,student_01
2024-08-17,120,Science,test,Bob,student_02
2024-08-18,70,Science,essay,Bob,student_02
yesterday,70,Science,test,Bob,student_02
2024-08-19,70,,test,Bob,student_02

2024-08-20,64,History,poll,Charlie,student_03
`
	result, err := ingest.ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	assert.Equal(t, "Alice", result.Records[0].StudentName)
	assert.Equal(t, "Charlie", result.Records[1].StudentName)

	lines := make([]int, 0, len(result.Rejected))
	for _, rej := range result.Rejected {
		lines = append(lines, rej.Line)
	}
	assert.Equal(t, []int{3, 4, 5, 6, 7}, lines)
	assert.Contains(t, result.Rejected[0].Reason, "not a whole number")
	assert.Contains(t, result.Rejected[1].Reason, "score must be 100 or less")
	assert.Contains(t, result.Rejected[4].Reason, "subject is a required field")
}

func TestParseCSVMissingColumn(t *testing.T) {
	input := "student_id,student_name,activity,score\nstudent_01,Alice,quiz,85\n"
	_, err := ingest.ParseCSV(strings.NewReader(input))
	require.ErrorIs(t, err, domain.ErrMissingColumn)
	assert.Contains(t, err.Error(), "subject")
	assert.Contains(t, err.Error(), "timestamp")

	_, err = ingest.ParseCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, domain.ErrMissingColumn)
}

func TestValidateRecord(t *testing.T) {
	rec := domain.ActivityRecord{
		StudentID:   "s1",
		StudentName: "Alice",
		Activity:    domain.KindPoll,
		Subject:     "Math",
		Score:       -1,
		Timestamp:   time.Now(),
	}
	err := ingest.ValidateRecord(rec)
	require.ErrorIs(t, err, domain.ErrInvalidRecord)
	var verr *ingest.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{"score": "score must be 0 or greater"}, verr.Fields)

	rec.Score = 55
	assert.NoError(t, ingest.ValidateRecord(rec))
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]time.Time{
		"2024-08-15":           time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC),
		"2024-08-15T09:30:00Z": time.Date(2024, 8, 15, 9, 30, 0, 0, time.UTC),
		"2024-08-15 09:30:00":  time.Date(2024, 8, 15, 9, 30, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		got, err := ingest.ParseTimestamp(raw)
		require.NoError(t, err, raw)
		assert.True(t, want.Equal(got), "%s parsed as %s", raw, got)
	}

	_, err := ingest.ParseTimestamp("15/08/2024")
	assert.Error(t, err)
}
