package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report-card-service/internal/app"
	"report-card-service/internal/domain"
	"report-card-service/internal/infra/memory"
	"report-card-service/internal/render"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	roster := memory.NewRosterRepository(memory.NewStaticRosterLoader(map[string][]domain.ActivityRecord{
		memory.DemoClassID: memory.DemoRoster(),
	}), time.Minute)
	service := app.NewReportService(memory.NewSessionStore(roster, time.Hour), render.NewRenderer())
	server := httptest.NewServer(NewHandler(service, nil, memory.DemoClassID).Router())
	t.Cleanup(server.Close)
	return server
}

func startSession(t *testing.T, server *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(server.URL+"/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var info app.SessionInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, memory.DemoClassID, info.ClassID)
	assert.Equal(t, 20, info.Records)
	return info.ID
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthAndMetrics(t *testing.T) {
	server := newTestServer(t)

	var health map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, server.URL+"/healthz", &health))
	assert.Equal(t, "ok", health["status"])

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSummaryEndpoint(t *testing.T) {
	server := newTestServer(t)
	id := startSession(t, server)

	var summary struct {
		Student     string                   `json:"student"`
		Statistics  domain.SummaryStatistics `json:"statistics"`
		Comment     string                   `json:"comment"`
		MeanDisplay string                   `json:"meanDisplay"`
	}
	status := getJSON(t, server.URL+"/sessions/"+id+"/students/Bob/summary", &summary)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Bob", summary.Student)
	assert.Equal(t, 6, summary.Statistics.ActivityCount)
	assert.Equal(t, 92, summary.Statistics.MaxScore)
	assert.Equal(t, 75, summary.Statistics.MinScore)
	assert.Equal(t, "81.33", summary.MeanDisplay)
	assert.Equal(t, domain.StatusPassed, summary.Statistics.Status)
	assert.Equal(t, "Excellent work! Keep up the great performance.", summary.Comment)

	var missing map[string]string
	status = getJSON(t, server.URL+"/sessions/"+id+"/students/Zoe/summary", &missing)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "no data available for Zoe", missing["error"])

	status = getJSON(t, server.URL+"/sessions/"+id+"/students/Alice/summary?subject=Art", &missing)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUnknownSession(t *testing.T) {
	server := newTestServer(t)

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, server.URL+"/sessions/nope/ranking", &body))
	assert.Equal(t, "session not found", body["error"])

	status := postJSON(t, server.URL+"/sessions", map[string]string{"classId": "missing"}, &body)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAddRecordAndRanking(t *testing.T) {
	server := newTestServer(t)
	id := startSession(t, server)

	var invalid struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	status := postJSON(t, server.URL+"/sessions/"+id+"/records", map[string]any{
		"studentName": "Dana",
		"score":       150,
		"subject":     "Math",
	}, &invalid)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "score must be 100 or less", invalid.Fields["score"])

	var rec domain.ActivityRecord
	status = postJSON(t, server.URL+"/sessions/"+id+"/records", map[string]any{
		"studentName": "Dana",
		"score":       100,
		"subject":     "Math",
		"timestamp":   "2024-11-01",
	}, &rec)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, domain.KindTest, rec.Activity)

	var ranking struct {
		Entries []domain.RankEntry `json:"entries"`
		Topper  *domain.RankEntry  `json:"topper"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/sessions/"+id+"/ranking", &ranking))
	require.Len(t, ranking.Entries, 4)
	require.NotNil(t, ranking.Topper)
	assert.Equal(t, "Dana", ranking.Topper.StudentName)
	assert.Equal(t, []string{"Dana", "Charlie", "Alice", "Bob"}, names(ranking.Entries))

	// a second session never sees Dana
	other := startSession(t, server)
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/sessions/"+other+"/ranking", &ranking))
	assert.Len(t, ranking.Entries, 3)
}

func TestImportEndpoint(t *testing.T) {
	server := newTestServer(t)
	id := startSession(t, server)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "scores.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("student_id,student_name,activity,subject,score,timestamp\n" +
		"student_04,Dana,quiz,Math,75,2024-11-01\n" +
		"student_04,Dana,quiz,Math,-3,2024-11-02\n"))
	require.NoError(t, form.Close())

	resp, err := http.Post(server.URL+"/sessions/"+id+"/records/import", form.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result importResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 1, result.Imported)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, 3, result.Rejected[0].Line)

	raw, err := http.Post(server.URL+"/sessions/"+id+"/records/import", "text/csv",
		strings.NewReader("student_name,score\nDana,80\n"))
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)

	var students []string
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/sessions/"+id+"/students", &students))
	assert.Equal(t, []string{"Alice", "Bob", "Charlie", "Dana"}, students)
}

func TestReportDownload(t *testing.T) {
	server := newTestServer(t)
	id := startSession(t, server)

	resp, err := http.Get(server.URL + "/sessions/" + id + "/students/Alice/report.pdf?subject=Math")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Alice_Math_Report_Card.pdf"`, resp.Header.Get("Content-Disposition"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))

	missing, err := http.Get(server.URL + "/sessions/" + id + "/students/Zoe/report.pdf")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestChartsAndRecommendations(t *testing.T) {
	server := newTestServer(t)
	id := startSession(t, server)

	for _, chart := range []string{"scores.png", "subjects.png"} {
		resp, err := http.Get(server.URL + "/sessions/" + id + "/charts/" + chart)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, chart)
		assert.Equal(t, "image/png", resp.Header.Get("Content-Type"), chart)
	}

	resp, err := http.Get(server.URL + "/sessions/" + id + "/students/Alice/chart.png?subject=Math")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	var missing map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, server.URL+"/sessions/"+id+"/students/Zoe/chart.png", &missing))
	assert.Equal(t, "no data available for Zoe", missing["error"])

	var recs []domain.Recommendation
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/sessions/"+id+"/recommendations", &recs))
	require.Len(t, recs, 3)
	assert.Equal(t, "Alice", recs[0].StudentName)

	var activities []domain.ActivitySummary
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/sessions/"+id+"/students/Charlie/activities", &activities))
	require.Len(t, activities, 1)
	assert.Equal(t, domain.KindQuiz, activities[0].Activity)
	assert.Equal(t, 6, activities[0].Count)
}

func TestEndSessionEndpoint(t *testing.T) {
	server := newTestServer(t)
	id := startSession(t, server)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/sessions/"+id, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Equal(t, http.StatusNotFound, getJSON(t, server.URL+"/sessions/"+id+"/records", nil))
}

func names(entries []domain.RankEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.StudentName)
	}
	return out
}
