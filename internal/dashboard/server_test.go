package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"aetheris-dashboard/internal/api"
	"aetheris-dashboard/internal/database"
	"aetheris-dashboard/internal/health"
	"aetheris-dashboard/internal/models"
	"aetheris-dashboard/internal/session"
	"aetheris-dashboard/internal/store"
	"aetheris-dashboard/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	err           error
	loadingDuring bool
	st            *store.Store
	anomalyResult *models.AnomalyResult
	steps         []string
	stepsErr      error
	reportTypes   []models.ReportType

	mu          sync.Mutex
	stepUpdates []models.ProcedureStepUpdate
	releaseStep chan struct{}
}

func (f *fakeBackend) CreatePatient(ctx context.Context, req models.PatientCreate) (*models.Patient, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Patient{ID: "p900", Name: req.Name, Age: req.Age}, nil
}

func (f *fakeBackend) RunPreOpAssessment(ctx context.Context, req models.PreOpAssessmentRequest) (*models.PreOpAssessment, error) {
	f.loadingDuring = f.st.State().Loading[store.LoadingPreOp]
	if f.err != nil {
		return nil, f.err
	}
	return &models.PreOpAssessment{PatientID: req.PatientID, RiskLevel: "moderate"}, nil
}

func (f *fakeBackend) CheckAnomalies(ctx context.Context, req models.AnomalyCheckRequest) (*models.AnomalyResult, error) {
	return f.anomalyResult, f.err
}

func (f *fakeBackend) SendVoiceCommand(ctx context.Context, req models.VoiceCommandRequest) (*models.VoiceCommandResponse, error) {
	return &models.VoiceCommandResponse{Transcription: req.TextQuery, Response: "ok"}, f.err
}

func (f *fakeBackend) UpdateProcedureStep(ctx context.Context, req models.ProcedureStepUpdate) (*models.ProcedureStepResult, error) {
	if f.releaseStep != nil {
		<-f.releaseStep
	}
	f.mu.Lock()
	f.stepUpdates = append(f.stepUpdates, req)
	f.mu.Unlock()
	return nil, &api.Error{Status: 503, Message: "unavailable"}
}

func (f *fakeBackend) updates() []models.ProcedureStepUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ProcedureStepUpdate(nil), f.stepUpdates...)
}

func (f *fakeBackend) GetProcedureSteps(ctx context.Context) ([]string, error) {
	return f.steps, f.stepsErr
}

func (f *fakeBackend) GetReportTypes(ctx context.Context) ([]models.ReportType, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.reportTypes, nil
}

func (f *fakeBackend) GetComplicationRisk(ctx context.Context, req models.ComplicationRiskRequest) (*models.ComplicationRiskResponse, error) {
	return &models.ComplicationRiskResponse{PatientID: req.PatientID}, f.err
}

func (f *fakeBackend) GenerateReport(ctx context.Context, req models.ReportGenerateRequest) (*models.Report, error) {
	return &models.Report{ID: "r1", PatientID: req.PatientID}, f.err
}

func (f *fakeBackend) SendToEHR(ctx context.Context, req models.ReportSendToEHR) (*models.EHRSubmission, error) {
	return &models.EHRSubmission{ReportID: req.ReportID, Status: "sent"}, f.err
}

type fixedHealth struct{ status health.Status }

func (h fixedHealth) Snapshot() health.Snapshot { return health.Snapshot{Status: h.status} }

type nopConn struct{}

func (nopConn) Connect()    {}
func (nopConn) Disconnect() {}

func newTestServer(t *testing.T) (*Server, *store.Store, *fakeBackend) {
	t.Helper()
	s := store.New(nil)
	s.SetPatients([]models.Patient{{ID: "p001", Name: "Rajesh Kumar"}})
	history := stream.NewHistory(20)
	sm := session.NewManager(s, history, func(string, stream.Handlers) session.Conn { return nopConn{} }, nil)
	repo, err := database.NewRepository(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	backend := &fakeBackend{st: s}
	return New(s, sm, history, backend, repo, fixedHealth{health.StatusOnline}, nil), s, backend
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, "GET", "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["alive"])
}

func TestState_IncludesDerivedFields(t *testing.T) {
	srv, s, _ := newTestServer(t)
	s.AddAlert(models.Alert{ID: "a1", Type: "critical"})

	body := decode(t, do(t, srv, "GET", "/api/state", ""))

	assert.EqualValues(t, 1, body["unread_alert_count"])
	assert.Equal(t, "Pre-Procedure Setup", body["procedure_step_label"])
	assert.Equal(t, "online", body["backend"].(map[string]any)["status"])
	assert.Len(t, body["alerts"], 1)
}

func TestSelectPatient(t *testing.T) {
	srv, s, _ := newTestServer(t)

	rec := do(t, srv, "POST", "/api/patients/p001/select", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "p001", s.State().CurrentPatient.ID)

	rec = do(t, srv, "POST", "/api/patients/p404/select", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertRoutes(t *testing.T) {
	srv, s, _ := newTestServer(t)

	rec := do(t, srv, "POST", "/api/alerts", `{"patient_id":"p001","severity":"medium","title":"BP rising"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["id"].(string)
	assert.True(t, strings.HasPrefix(id, "ws-"))
	assert.Equal(t, 1, s.State().UnreadAlertCount())

	rec = do(t, srv, "POST", "/api/alerts/"+id+"/acknowledge", "")
	assert.EqualValues(t, 0, decode(t, rec)["unread_alert_count"])

	s.AddAlert(models.Alert{ID: "a2"})
	rec = do(t, srv, "POST", "/api/alerts/acknowledge-all", "")
	assert.EqualValues(t, 0, decode(t, rec)["unread_alert_count"])

	rec = do(t, srv, "POST", "/api/alerts", `{"severity":"info"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPageOperation_TogglesLoading(t *testing.T) {
	srv, s, backend := newTestServer(t)

	rec := do(t, srv, "POST", "/api/preop/assess", `{"patient_id":"p001","surgery_type":"Appendectomy"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, backend.loadingDuring)
	assert.False(t, s.State().Loading[store.LoadingPreOp])
	assert.Equal(t, "moderate", decode(t, rec)["risk_level"])
}

func TestPageOperation_BackendFailure(t *testing.T) {
	srv, s, backend := newTestServer(t)
	backend.err = &api.Error{Status: 404, Message: "not found"}

	rec := do(t, srv, "POST", "/api/preop/assess", `{"patient_id":"p404"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "not found", decode(t, rec)["error"])
	assert.False(t, s.State().Loading[store.LoadingPreOp])
}

func TestPageOperation_BadBody(t *testing.T) {
	srv, s, _ := newTestServer(t)

	rec := do(t, srv, "POST", "/api/reports/generate", `{`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, s.State().Loading[store.LoadingReports])
}

func TestCreatePatient_AppendsToList(t *testing.T) {
	srv, s, _ := newTestServer(t)

	rec := do(t, srv, "POST", "/api/patients", `{"name":"Anita Rao","age":54,"gender":"F"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	_, ok := s.State().FindPatient("p900")
	assert.True(t, ok)
	assert.Len(t, s.State().Patients, 2)
}

func TestAnomalyCheck_IngestsFiredAlerts(t *testing.T) {
	srv, s, backend := newTestServer(t)
	backend.anomalyResult = &models.AnomalyResult{HasAnomaly: true, AlertsFired: []models.RawAlert{{Severity: "high", Title: "Tachycardia"}}}

	rec := do(t, srv, "POST", "/api/intraop/anomaly-check", `{"patient_id":"p001","vitals":{"heart_rate":150}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, s.State().Alerts, 1)
	assert.Equal(t, models.SeverityCritical, s.State().Alerts[0].Type)
}

func TestAdvanceProcedure_LocalStepSurvivesBackendFailure(t *testing.T) {
	srv, s, backend := newTestServer(t)

	rec := do(t, srv, "POST", "/api/procedure/advance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	srv.Wait()
	assert.Empty(t, backend.updates())

	rec = do(t, srv, "POST", "/api/procedure/advance", `{"surgery_id":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	srv.Wait()
	assert.Equal(t, 2, s.State().ProcedureStep)
	updates := backend.updates()
	require.Len(t, updates, 1)
	assert.Equal(t, 2, updates[0].CurrentStep)
	assert.Equal(t, "Incision & Access", decode(t, rec)["label"])
}

func TestAdvanceProcedure_ReplyDoesNotWaitForBackend(t *testing.T) {
	srv, s, backend := newTestServer(t)
	backend.releaseStep = make(chan struct{})

	rec := do(t, srv, "POST", "/api/procedure/advance", `{"surgery_id":"s1","note":"closing"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["procedure_step"])
	assert.Equal(t, 1, s.State().ProcedureStep)
	assert.Empty(t, backend.updates())

	close(backend.releaseStep)
	srv.Wait()
	updates := backend.updates()
	require.Len(t, updates, 1)
	assert.Equal(t, "closing", updates[0].Note)
}

func TestProcedureSteps(t *testing.T) {
	srv, _, backend := newTestServer(t)
	backend.steps = []string{"Prep", "Close"}

	body := decode(t, do(t, srv, "GET", "/api/procedure/steps", ""))
	assert.Equal(t, []any{"Prep", "Close"}, body["steps"])

	backend.stepsErr = &api.Error{Status: 0, Message: "connection refused"}
	body = decode(t, do(t, srv, "GET", "/api/procedure/steps", ""))
	assert.Len(t, body["steps"], len(models.ProcedureSteps))
}

func TestReportTypes(t *testing.T) {
	srv, _, backend := newTestServer(t)
	backend.reportTypes = []models.ReportType{{Value: "operative", Label: "Operative Note"}}

	rec := do(t, srv, "GET", "/api/reports/types", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["types"], 1)

	backend.err = &api.Error{Status: 500, Message: "HTTP error 500"}
	rec = do(t, srv, "GET", "/api/reports/types", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "HTTP error 500", decode(t, rec)["error"])
}

func TestThemePreference(t *testing.T) {
	srv, _, _ := newTestServer(t)

	assert.Equal(t, "dark", decode(t, do(t, srv, "GET", "/api/preferences/theme", ""))["theme"])

	rec := do(t, srv, "PUT", "/api/preferences/theme", `{"theme":"light"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "light", decode(t, do(t, srv, "GET", "/api/preferences/theme", ""))["theme"])

	rec = do(t, srv, "PUT", "/api/preferences/theme", `{"theme":"sepia"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearError(t *testing.T) {
	srv, s, _ := newTestServer(t)
	s.SetError("HTTP error 500")

	rec := do(t, srv, "DELETE", "/api/error", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, s.State().Error)
}

func TestVitalsHistory(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.history.Add(models.VitalsFrame{HeartRate: 72})

	body := decode(t, do(t, srv, "GET", "/api/vitals/history", ""))

	assert.Len(t, body["frames"], 1)
}
