package web

import (
	"NCDEarlyDetect/internal/clients/gemini"
	"NCDEarlyDetect/internal/config"
	"NCDEarlyDetect/internal/models"
	"NCDEarlyDetect/internal/services"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalysis struct {
	cases      []models.PatientCase
	analyzeErr error
	result     *models.AnalysisResult
	pending    chan struct{}
	started    chan struct{}
}

func (f *fakeAnalysis) ListCases(status models.CaseStatus) ([]models.PatientCase, error) {
	var out []models.PatientCase
	for _, c := range f.cases {
		if status == "" || c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeAnalysis) GetCase(caseID string) (*models.PatientCase, error) {
	for _, c := range f.cases {
		if c.ID == caseID {
			c := c
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", services.ErrCaseNotFound, caseID)
}

func (f *fakeAnalysis) AnalyzeCase(ctx context.Context, caseID string) (*models.AnalysisResult, error) {
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	r := *f.result
	r.CaseID = caseID
	return &r, nil
}

func (f *fakeAnalysis) AnalyzeImage(ctx context.Context, imageRef string, focus string) (*models.AnalysisResult, error) {
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	r := *f.result
	return &r, nil
}

func (f *fakeAnalysis) GetResult(caseID string) (*models.AnalysisResult, error) {
	if caseID == "CASE-001" {
		r := *f.result
		r.CaseID = caseID
		return &r, nil
	}
	return nil, fmt.Errorf("%w: %s", services.ErrResultNotFound, caseID)
}

func (f *fakeAnalysis) RunPending() error {
	if f.started != nil {
		close(f.started)
	}
	if f.pending != nil {
		<-f.pending
	}
	return nil
}

type fakeUploads struct {
	lastReq services.UploadRequest
}

func (f *fakeUploads) Start(req services.UploadRequest, progress func(models.UploadJob)) (*models.UploadJob, error) {
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: 檔案內容為空", services.ErrInvalidUpload)
	}
	f.lastReq = req
	job := models.UploadJob{ID: "job-1", FileName: req.FileName, Stage: models.UploadReceived}
	progress(job)
	return &job, nil
}

func (f *fakeUploads) Get(jobID string) (*models.UploadJob, error) {
	if jobID != "job-1" {
		return nil, fmt.Errorf("%w: %s", services.ErrUploadNotFound, jobID)
	}
	return &models.UploadJob{ID: jobID, Stage: models.UploadStoring, Progress: 50}, nil
}

func (f *fakeUploads) Cancel(jobID string) error {
	if jobID != "job-1" {
		return fmt.Errorf("%w: %s", services.ErrUploadNotFound, jobID)
	}
	return nil
}

type fakeExporter struct{}

func (fakeExporter) WriteCSV(w io.Writer) error {
	_, err := io.WriteString(w, "病例編號\nCASE-001\n")
	return err
}

func (fakeExporter) WriteXLSX(w io.Writer) error {
	_, err := w.Write([]byte("PK"))
	return err
}

type testServer struct {
	handler  http.Handler
	analysis *fakeAnalysis
	uploads  *fakeUploads
	media    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{AppName: "NCD-EarlyDetect-Uganda"}
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Upload.MaxBytes = 1 << 20

	media := t.TempDir()
	analysis := &fakeAnalysis{
		cases: models.MockCases(),
		result: &models.AnalysisResult{
			Classification:  "Pneumonia",
			Confidence:      0.91,
			FindingsSummary: "Consolidation.",
			Recommendations: []string{"Follow-up CT"},
		},
	}
	uploads := &fakeUploads{}
	h, err := SetupRouter(cfg, analysis, uploads, fakeExporter{}, media)
	require.NoError(t, err)
	return &testServer{handler: h, analysis: analysis, uploads: uploads, media: media}
}

func (s *testServer) do(t *testing.T, method, target string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error, body.Kind
}

func TestHealthAndMeta(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/meta", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var meta struct {
		Disclaimer string   `json:"disclaimer"`
		Modalities []string `json:"modalities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, models.MedicalDisclaimer, meta.Disclaimer)
	assert.Equal(t, []string{"Chest X-Ray", "CT Scan", "MRI", "Ultrasound"}, meta.Modalities)
}

func TestWorkspaceDispatch(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		role      string
		status    int
		workspace string
	}{
		{"DOCTOR", http.StatusOK, "clinical"},
		{"nurse", http.StatusOK, "clinical"},
		{"RADIOLOGIST", http.StatusOK, "clinical"},
		{"DEVELOPER", http.StatusOK, "technical"},
		{"ADMIN", http.StatusOK, "technical"},
		{"JANITOR", http.StatusBadRequest, ""},
		{"", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/workspace", nil, map[string]string{"X-User-Role": tt.role})
			require.Equal(t, tt.status, rec.Code)
			if tt.status != http.StatusOK {
				_, kind := decodeError(t, rec)
				assert.Equal(t, "invalid_input", kind)
				return
			}
			var body struct {
				Workspace string   `json:"workspace"`
				Menu      []string `json:"menu"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.workspace, body.Workspace)
			assert.NotEmpty(t, body.Menu)
		})
	}
}

func TestTrainingJobsRequireTechnicalRole(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/training-jobs", nil, map[string]string{"X-User-Role": "DOCTOR"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/training-jobs", nil, map[string]string{"X-User-Role": "ADMIN"})
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []models.TrainingJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	assert.Len(t, jobs, 3)
}

func TestCaseEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/cases?status=pending", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cases []models.PatientCase
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cases))
	require.Len(t, cases, 1)
	assert.Equal(t, "CASE-002", cases[0].ID)

	rec = s.do(t, http.MethodGet, "/api/cases?status=unknown", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/cases/CASE-001", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/cases/CASE-999", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	_, kind := decodeError(t, rec)
	assert.Equal(t, "not_found", kind)

	rec = s.do(t, http.MethodGet, "/api/cases/CASE-001/analysis", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/cases/CASE-002/analysis", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/cases/CASE-002/analyze", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result models.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "CASE-002", result.CaseID)
	assert.Equal(t, "Pneumonia", result.Classification)
}

func TestAnalyzeErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"in progress", fmt.Errorf("%w: CASE-002", services.ErrAnalysisInProgress), http.StatusConflict, "in_progress"},
		{"missing key", gemini.ErrMissingAPIKey, http.StatusServiceUnavailable, "missing_api_key"},
		{"quota", &gemini.TransportError{Op: "GenerateContent", StatusCode: 429, Err: errors.New("quota")}, http.StatusTooManyRequests, "quota_exceeded"},
		{"provider timeout", &gemini.TransportError{Op: "GenerateContent", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, "timeout"},
		{"unreachable", &gemini.TransportError{Op: "GenerateContent", Err: errors.New("dial tcp: refused")}, http.StatusBadGateway, "transport"},
		{"malformed", &gemini.MalformedResponseError{Raw: "I cannot", Err: errors.New("invalid character")}, http.StatusBadGateway, "malformed_response"},
		{"schema", &gemini.SchemaViolationError{Field: "confidence", Reason: "out of range"}, http.StatusBadGateway, "schema_violation"},
		{"invalid image", fmt.Errorf("%w: empty", gemini.ErrInvalidImage), http.StatusBadRequest, "invalid_input"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.analysis.analyzeErr = tt.err

			rec := s.do(t, http.MethodPost, "/api/cases/CASE-002/analyze", nil, nil)
			require.Equal(t, tt.status, rec.Code)
			msg, kind := decodeError(t, rec)
			assert.Equal(t, tt.kind, kind)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestAnalyzeImageEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/analyze", strings.NewReader(`{"focus":"MRI"}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/analyze", strings.NewReader(`not json`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/analyze", strings.NewReader(`{"image":"data:image/png;base64,AAAA","focus":"Chest X-Ray"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result models.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.InDelta(t, 0.91, result.Confidence, 1e-9)
}

func TestAnalyzePendingTriggerRejectsOverlap(t *testing.T) {
	s := newTestServer(t)
	s.analysis.pending = make(chan struct{})
	s.analysis.started = make(chan struct{})

	rec := s.do(t, http.MethodPost, "/api/cases/analyze-pending", nil, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	<-s.analysis.started

	rec = s.do(t, http.MethodPost, "/api/cases/analyze-pending", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	close(s.analysis.pending)
}

func TestUploadEndpoints(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "chest.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("patientId", "UG-5000"))
	require.NoError(t, mw.WriteField("age", "51"))
	require.NoError(t, mw.WriteField("focus", "Chest X-Ray"))
	require.NoError(t, mw.WriteField("anonymize", "false"))
	require.NoError(t, mw.Close())

	rec := s.do(t, http.MethodPost, "/api/uploads", &buf, map[string]string{"Content-Type": mw.FormDataContentType()})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/api/uploads/job-1", rec.Header().Get("Location"))
	assert.Equal(t, "chest.png", s.uploads.lastReq.FileName)
	assert.Equal(t, 51, s.uploads.lastReq.Age)
	assert.False(t, s.uploads.lastReq.Anonymize)

	rec = s.do(t, http.MethodGet, "/api/uploads/job-1", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/uploads/job-1", nil, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/uploads/job-404", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/uploads", strings.NewReader("plain"), map[string]string{"Content-Type": "text/plain"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/export", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Body.String(), "CASE-001")

	rec = s.do(t, http.MethodGet, "/api/export?format=xlsx", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	rec = s.do(t, http.MethodGet, "/api/export?format=pdf", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMediaEndpoint(t *testing.T) {
	s := newTestServer(t)
	dir := filepath.Join(s.media, "2024", "05", "10", "CASE-001")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scan.png"), []byte("png-bytes"), 0o644))

	rec := s.do(t, http.MethodGet, "/media/2024/05/10/CASE-001/scan.png", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())

	rec = s.do(t, http.MethodGet, "/media/2024/05/10/CASE-001/missing.png", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodOptions, "/api/cases", nil, map[string]string{
		"Origin":                         "http://localhost:5173",
		"Access-Control-Request-Method":  "GET",
		"Access-Control-Request-Headers": "X-User-Role",
	})
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
