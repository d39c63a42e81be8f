package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"report-card-service/internal/domain"
	"report-card-service/internal/grading"
	"report-card-service/internal/ingest"
	"report-card-service/internal/metrics"
	"report-card-service/internal/render"
)

// SessionRepository abstracts how dashboard sessions are stored (in-memory, Redis, etc).
type SessionRepository interface {
	Create(ctx context.Context, classID string) (*Session, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	Append(ctx context.Context, session *Session, records []domain.ActivityRecord) (domain.Ranking, error)
	Delete(ctx context.Context, sessionID string) error
	// Sweep drops idle sessions and returns how many were removed.
	Sweep(ctx context.Context) int
}

// RosterRepository loads the baseline records of a class (from cache/backing store).
type RosterRepository interface {
	GetRoster(ctx context.Context, classID string) ([]domain.ActivityRecord, error)
}

// ReportRenderer turns a summary and its records into a printable document.
type ReportRenderer interface {
	RenderReport(summary domain.SummaryStatistics, records []domain.ActivityRecord, title domain.TitleContext, classMax int) ([]byte, error)
}

// ReportService contains the dashboard use cases. Every statistic is
// recomputed from the session's current records on each call.
type ReportService struct {
	sessions SessionRepository
	renderer ReportRenderer
	now      func() time.Time
}

func NewReportService(sessions SessionRepository, renderer ReportRenderer) *ReportService {
	return &ReportService{sessions: sessions, renderer: renderer, now: time.Now}
}

// NewReportServiceWithClock is test-only for deterministic default timestamps.
func NewReportServiceWithClock(sessions SessionRepository, renderer ReportRenderer, now func() time.Time) *ReportService {
	return &ReportService{sessions: sessions, renderer: renderer, now: now}
}

// SessionInfo describes an open session.
type SessionInfo struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"classId"`
	Records   int       `json:"records"`
	CreatedAt time.Time `json:"createdAt"`
}

func infoOf(s *Session) SessionInfo {
	return SessionInfo{ID: s.ID(), ClassID: s.ClassID(), Records: s.Len(), CreatedAt: s.CreatedAt()}
}

// AddRecordInput is the manual entry form.
type AddRecordInput struct {
	StudentName string `json:"studentName" validate:"required,max=64"`
	StudentID   string `json:"studentId" validate:"omitempty,max=64"`
	Score       *int   `json:"score" validate:"required,min=0,max=100"`
	Subject     string `json:"subject" validate:"required,oneof=Math Science English History"`
	Activity    string `json:"activity" validate:"omitempty,oneof=quiz poll test"`
	Timestamp   string `json:"timestamp"`
	// Source labels the append in metrics; empty means "form".
	Source string `json:"-"`
}

// StudentSummary is the summary panel of one student, optionally narrowed to a subject.
type StudentSummary struct {
	Student    string                   `json:"student"`
	Subject    string                   `json:"subject,omitempty"`
	Statistics domain.SummaryStatistics `json:"statistics"`
	Comment    string                   `json:"comment"`
	Records    []domain.ActivityRecord  `json:"records"`
}

// Report is a rendered report card ready for download.
type Report struct {
	Filename    string
	ContentType string
	Data        []byte
}

// StartSession opens a session seeded with the class roster.
func (s *ReportService) StartSession(ctx context.Context, classID string) (SessionInfo, error) {
	session, err := s.sessions.Create(ctx, classID)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("start session for class %s: %w", classID, err)
	}
	return infoOf(session), nil
}

// EndSession discards a session and every record appended to it.
func (s *ReportService) EndSession(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(ctx, sessionID)
}

// SweepSessions drops idle sessions. It is run on a schedule.
func (s *ReportService) SweepSessions(ctx context.Context) int {
	return s.sessions.Sweep(ctx)
}

func (s *ReportService) Session(ctx context.Context, sessionID string) (SessionInfo, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return SessionInfo{}, err
	}
	return infoOf(session), nil
}

// Records returns the session's records in chronological order.
func (s *ReportService) Records(ctx context.Context, sessionID string) ([]domain.ActivityRecord, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	records := session.Records()
	grading.SortChronologically(records)
	return records, nil
}

func (s *ReportService) Students(ctx context.Context, sessionID string) ([]string, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return grading.Students(session.Records()), nil
}

// AddRecord validates a manual entry and appends it to the session.
func (s *ReportService) AddRecord(ctx context.Context, sessionID string, in AddRecordInput) (domain.ActivityRecord, error) {
	in.StudentName = strings.TrimSpace(in.StudentName)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Activity = strings.ToLower(strings.TrimSpace(in.Activity))
	if err := ingest.Check(in); err != nil {
		return domain.ActivityRecord{}, err
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.ActivityRecord{}, err
	}

	rec := domain.ActivityRecord{
		StudentID:   in.StudentID,
		StudentName: in.StudentName,
		Activity:    domain.KindTest,
		Subject:     in.Subject,
		Score:       *in.Score,
		Timestamp:   s.now().UTC(),
	}
	if in.Activity != "" {
		rec.Activity = domain.ActivityKind(in.Activity)
	}
	if in.Timestamp != "" {
		ts, err := ingest.ParseTimestamp(in.Timestamp)
		if err != nil {
			return domain.ActivityRecord{}, &ingest.ValidationError{Fields: map[string]string{"timestamp": err.Error()}}
		}
		rec.Timestamp = ts
	}
	if rec.StudentID == "" {
		rec.StudentID = studentIDFor(session.Records(), rec.StudentName)
	}
	if err := ingest.ValidateRecord(rec); err != nil {
		return domain.ActivityRecord{}, err
	}

	if _, err := s.sessions.Append(ctx, session, []domain.ActivityRecord{rec}); err != nil {
		return domain.ActivityRecord{}, fmt.Errorf("append record: %w", err)
	}
	source := in.Source
	if source == "" {
		source = "form"
	}
	metrics.RecordsAppended.WithLabelValues(source).Inc()
	return rec, nil
}

// ImportCSV parses an upload and appends its valid rows. Rejected rows are
// reported in the result; a missing column rejects the whole file.
func (s *ReportService) ImportCSV(ctx context.Context, sessionID string, r io.Reader) (ingest.Result, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return ingest.Result{}, err
	}
	result, err := ingest.ParseCSV(r)
	if err != nil {
		return ingest.Result{}, err
	}
	metrics.RecordsRejected.Add(float64(len(result.Rejected)))
	if len(result.Records) == 0 {
		return result, nil
	}
	if _, err := s.sessions.Append(ctx, session, result.Records); err != nil {
		return ingest.Result{}, fmt.Errorf("append import: %w", err)
	}
	metrics.RecordsAppended.WithLabelValues("csv").Add(float64(len(result.Records)))
	return result, nil
}

// Summary computes the statistics panel of one student. An empty subject covers every subject.
func (s *ReportService) Summary(ctx context.Context, sessionID, student, subject string) (StudentSummary, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return StudentSummary{}, err
	}
	records := session.Records()
	f := grading.Filter{Student: student, Subject: subject}
	stats, err := grading.Summarize(records, f)
	if err != nil {
		return StudentSummary{}, err
	}
	return StudentSummary{
		Student:    student,
		Subject:    subject,
		Statistics: stats,
		Comment:    grading.CommentFor(stats.MeanScore),
		Records:    grading.Select(records, f),
	}, nil
}

func (s *ReportService) Activities(ctx context.Context, sessionID, student, subject string) ([]domain.ActivitySummary, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return grading.SummarizeActivities(session.Records(), grading.Filter{Student: student, Subject: subject})
}

func (s *ReportService) Ranking(ctx context.Context, sessionID string) (domain.Ranking, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Ranking{}, err
	}
	return session.Ranking(), nil
}

func (s *ReportService) Recommendations(ctx context.Context, sessionID string) ([]domain.Recommendation, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return grading.Recommendations(session.Records()), nil
}

// Report renders the PDF report card of one student. A non-empty subject
// selects the per-subject card.
func (s *ReportService) Report(ctx context.Context, sessionID, student, subject string) (Report, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Report{}, err
	}
	return BuildReport(s.renderer, session.Records(), student, subject)
}

// BuildReport renders a report card from a record set outside any session.
func BuildReport(renderer ReportRenderer, records []domain.ActivityRecord, student, subject string) (Report, error) {
	f := grading.Filter{Student: student, Subject: subject}
	stats, err := grading.Summarize(records, f)
	if err != nil {
		return Report{}, err
	}
	classMax, err := grading.ClassMaxScore(records)
	if err != nil {
		return Report{}, err
	}
	title := domain.TitleContext{StudentName: student, SubjectName: subject}
	data, err := renderer.RenderReport(stats, grading.Select(records, f), title, classMax)
	if err != nil {
		return Report{}, fmt.Errorf("render report for %s: %w", student, err)
	}

	variant := "comprehensive"
	if subject != "" {
		variant = "subject"
	}
	metrics.ReportsRendered.WithLabelValues(variant).Inc()
	return Report{
		Filename:    render.ReportFilename(title),
		ContentType: render.ContentType,
		Data:        data,
	}, nil
}

// ScoreChart draws the class averages of the session as a PNG bar chart.
func (s *ReportService) ScoreChart(ctx context.Context, sessionID string) ([]byte, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return render.ScoreChart(grading.RankStudents(session.Records()))
}

// StudentChart draws one student's average per subject as a PNG bar chart.
func (s *ReportService) StudentChart(ctx context.Context, sessionID, student, subject string) ([]byte, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return render.StudentChart(session.Records(), grading.Filter{Student: student, Subject: subject})
}

// SubjectChart draws the activity count per subject as a PNG pie chart.
func (s *ReportService) SubjectChart(ctx context.Context, sessionID string) ([]byte, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return render.SubjectChart(session.Records())
}

// Subscribe returns a channel that receives ranking updates for a session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *ReportService) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Ranking, func(), error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

func studentIDFor(records []domain.ActivityRecord, name string) string {
	for _, r := range records {
		if r.StudentName == name && r.StudentID != "" {
			return r.StudentID
		}
	}
	return "student_" + uuid.NewString()
}
