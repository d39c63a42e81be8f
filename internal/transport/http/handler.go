package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"report-card-service/internal/app"
	"report-card-service/internal/domain"
	"report-card-service/internal/ingest"
	"report-card-service/internal/render"
)

// maxUploadBytes caps CSV imports.
const maxUploadBytes = 5 << 20

// Handler serves the dashboard API.
type Handler struct {
	service      *app.ReportService
	log          *zap.Logger
	defaultClass string
	ws           *WSHandler
}

func NewHandler(service *app.ReportService, log *zap.Logger, defaultClass string) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		service:      service,
		log:          log,
		defaultClass: defaultClass,
		ws:           NewWSHandler(service, log),
	}
}

// Router mounts every route on a chi router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/sessions", h.handleStartSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleEndSession)
		r.Get("/records", h.handleListRecords)
		r.Post("/records", h.handleAddRecord)
		r.Post("/records/import", h.handleImport)
		r.Get("/students", h.handleStudents)
		r.Get("/students/{student}/summary", h.handleSummary)
		r.Get("/students/{student}/activities", h.handleActivities)
		r.Get("/students/{student}/report.pdf", h.handleReport)
		r.Get("/students/{student}/chart.png", h.handleStudentChart)
		r.Get("/ranking", h.handleRanking)
		r.Get("/recommendations", h.handleRecommendations)
		r.Get("/charts/scores.png", h.handleScoreChart)
		r.Get("/charts/subjects.png", h.handleSubjectChart)
		r.Get("/ws", h.ws.ServeWS)
	})
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type startSessionRequest struct {
	ClassID string `json:"classId"`
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	classID := strings.TrimSpace(req.ClassID)
	if classID == "" {
		classID = h.defaultClass
	}

	info, err := h.service.StartSession(r.Context(), classID)
	if err != nil {
		h.writeServiceError(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Session(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeServiceError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.EndSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.writeServiceError(w, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.Records(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeServiceError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	var in app.AddRecordInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := h.service.AddRecord(r.Context(), chi.URLParam(r, "sessionID"), in)
	if err != nil {
		h.writeServiceError(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

type importResponse struct {
	Imported int               `json:"imported"`
	Rejected []domain.RowError `json:"rejected"`
}

// handleImport accepts either a multipart form with a "file" field or a raw CSV body.
func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer file.Close()
		body = file
	}

	result, err := h.service.ImportCSV(r.Context(), chi.URLParam(r, "sessionID"), body)
	if err != nil {
		h.writeServiceError(w, err, "")
		return
	}
	rejected := result.Rejected
	if rejected == nil {
		rejected = []domain.RowError{}
	}
	writeJSON(w, http.StatusOK, importResponse{Imported: len(result.Records), Rejected: rejected})
}

func (h *Handler) handleStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.service.Students(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeServiceError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, students)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	student, ok := studentParam(w, r)
	if !ok {
		return
	}
	summary, err := h.service.Summary(r.Context(), chi.URLParam(r, "sessionID"), student, r.URL.Query().Get("subject"))
	if err != nil {
		h.writeServiceError(w, err, student)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		StudentSummary: summary,
		MeanDisplay:    strconv.FormatFloat(summary.Statistics.MeanScore, 'f', 2, 64),
	})
}

type summaryResponse struct {
	app.StudentSummary
	MeanDisplay string `json:"meanDisplay"`
}

func (h *Handler) handleActivities(w http.ResponseWriter, r *http.Request) {
	student, ok := studentParam(w, r)
	if !ok {
		return
	}
	activities, err := h.service.Activities(r.Context(), chi.URLParam(r, "sessionID"), student, r.URL.Query().Get("subject"))
	if err != nil {
		h.writeServiceError(w, err, student)
		return
	}
	writeJSON(w, http.StatusOK, activities)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	student, ok := studentParam(w, r)
	if !ok {
		return
	}
	report, err := h.service.Report(r.Context(), chi.URLParam(r, "sessionID"), student, r.URL.Query().Get("subject"))
	if err != nil {
		h.writeServiceError(w, err, student)
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(report.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report.Data)
}

type rankingResponse struct {
	domain.Ranking
	Topper *domain.RankEntry `json:"topper"`
}

func (h *Handler) handleRanking(w http.ResponseWriter, r *http.Request) {
	ranking, err := h.service.Ranking(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeServiceError(w, err, "")
		return
	}
	resp := rankingResponse{Ranking: ranking}
	if len(ranking.Entries) > 0 {
		resp.Topper = &ranking.Entries[0]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	recs, err := h.service.Recommendations(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeServiceError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) handleScoreChart(w http.ResponseWriter, r *http.Request) {
	png, err := h.service.ScoreChart(r.Context(), chi.URLParam(r, "sessionID"))
	h.writePNG(w, png, err)
}

func (h *Handler) handleStudentChart(w http.ResponseWriter, r *http.Request) {
	student, ok := studentParam(w, r)
	if !ok {
		return
	}
	png, err := h.service.StudentChart(r.Context(), chi.URLParam(r, "sessionID"), student, r.URL.Query().Get("subject"))
	if err != nil {
		h.writeServiceError(w, err, student)
		return
	}
	h.writePNG(w, png, nil)
}

func (h *Handler) handleSubjectChart(w http.ResponseWriter, r *http.Request) {
	png, err := h.service.SubjectChart(r.Context(), chi.URLParam(r, "sessionID"))
	h.writePNG(w, png, err)
}

func (h *Handler) writePNG(w http.ResponseWriter, png []byte, err error) {
	if err != nil {
		h.writeServiceError(w, err, "")
		return
	}
	w.Header().Set("Content-Type", render.ChartContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type validationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, student string) {
	var verr *ingest.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, validationResponse{Error: "invalid record", Fields: verr.Fields})
	case errors.Is(err, domain.ErrEmptyInput):
		writeError(w, http.StatusNotFound, noDataMessage(student))
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, domain.ErrSessionNotFound.Error())
	case errors.Is(err, domain.ErrRosterNotFound):
		writeError(w, http.StatusNotFound, domain.ErrRosterNotFound.Error())
	case errors.Is(err, domain.ErrMissingColumn), errors.Is(err, domain.ErrInvalidRecord):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		h.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func noDataMessage(student string) string {
	if student == "" {
		return "no data available"
	}
	return "no data available for " + student
}

func studentParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	student, err := url.PathUnescape(chi.URLParam(r, "student"))
	if err != nil || strings.TrimSpace(student) == "" {
		writeError(w, http.StatusBadRequest, "invalid student")
		return "", false
	}
	return student, true
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
