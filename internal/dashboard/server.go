// Package dashboard exposes the client state and its operations over HTTP for
// the operator-facing views.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"aetheris-dashboard/internal/api"
	"aetheris-dashboard/internal/database"
	"aetheris-dashboard/internal/health"
	"aetheris-dashboard/internal/models"
	"aetheris-dashboard/internal/session"
	"aetheris-dashboard/internal/store"
	"aetheris-dashboard/internal/stream"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Backend is the part of the request facade the page operations call.
type Backend interface {
	CreatePatient(ctx context.Context, req models.PatientCreate) (*models.Patient, error)
	RunPreOpAssessment(ctx context.Context, req models.PreOpAssessmentRequest) (*models.PreOpAssessment, error)
	CheckAnomalies(ctx context.Context, req models.AnomalyCheckRequest) (*models.AnomalyResult, error)
	SendVoiceCommand(ctx context.Context, req models.VoiceCommandRequest) (*models.VoiceCommandResponse, error)
	UpdateProcedureStep(ctx context.Context, req models.ProcedureStepUpdate) (*models.ProcedureStepResult, error)
	GetProcedureSteps(ctx context.Context) ([]string, error)
	GetComplicationRisk(ctx context.Context, req models.ComplicationRiskRequest) (*models.ComplicationRiskResponse, error)
	GenerateReport(ctx context.Context, req models.ReportGenerateRequest) (*models.Report, error)
	SendToEHR(ctx context.Context, req models.ReportSendToEHR) (*models.EHRSubmission, error)
	GetReportTypes(ctx context.Context) ([]models.ReportType, error)
}

type Preferences interface {
	GetTheme() (string, error)
	SetTheme(theme string) error
}

type HealthReporter interface {
	Snapshot() health.Snapshot
}

// Server holds the router and everything the handlers read or drive.
type Server struct {
	Router *mux.Router

	store   *store.Store
	session *session.Manager
	history *stream.History
	backend Backend
	prefs   Preferences
	health  HealthReporter
	logger  *zap.Logger

	// writes tracks backend writes started by a handler that outlive its request.
	writes       sync.WaitGroup
	writeTimeout time.Duration
}

func New(s *store.Store, sm *session.Manager, history *stream.History, backend Backend, prefs Preferences, hr HealthReporter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &Server{
		store:        s,
		session:      sm,
		history:      history,
		backend:      backend,
		prefs:        prefs,
		health:       hr,
		logger:       logger.Named("dashboard"),
		writeTimeout: 15 * time.Second,
	}
	srv.Router = srv.routes()
	return srv
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.healthCheckHandler).Methods("GET")

	a := r.PathPrefix("/api").Subrouter()
	a.HandleFunc("/state", s.stateHandler).Methods("GET")
	a.HandleFunc("/vitals/history", s.vitalsHistoryHandler).Methods("GET")
	a.HandleFunc("/reload", s.reloadHandler).Methods("POST")
	a.HandleFunc("/error", s.clearErrorHandler).Methods("DELETE")

	a.HandleFunc("/patients", s.createPatientHandler).Methods("POST")
	a.HandleFunc("/patients/{id}/select", s.selectPatientHandler).Methods("POST")

	a.HandleFunc("/alerts", s.injectAlertHandler).Methods("POST")
	a.HandleFunc("/alerts/acknowledge-all", s.acknowledgeAllHandler).Methods("POST")
	a.HandleFunc("/alerts/{id}/acknowledge", s.acknowledgeAlertHandler).Methods("POST")

	a.HandleFunc("/procedure/steps", s.procedureStepsHandler).Methods("GET")
	a.HandleFunc("/procedure/advance", s.advanceProcedureHandler).Methods("POST")

	a.HandleFunc("/preop/assess", s.preOpAssessHandler).Methods("POST")
	a.HandleFunc("/intraop/anomaly-check", s.anomalyCheckHandler).Methods("POST")
	a.HandleFunc("/intraop/voice-command", s.voiceCommandHandler).Methods("POST")
	a.HandleFunc("/postop/complication-risk", s.complicationRiskHandler).Methods("POST")
	a.HandleFunc("/reports/types", s.reportTypesHandler).Methods("GET")
	a.HandleFunc("/reports/generate", s.generateReportHandler).Methods("POST")
	a.HandleFunc("/reports/send-to-ehr", s.sendToEHRHandler).Methods("POST")

	a.HandleFunc("/preferences/theme", s.getThemeHandler).Methods("GET")
	a.HandleFunc("/preferences/theme", s.putThemeHandler).Methods("PUT")

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Dashboard listening", zap.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Wait blocks until every background backend write has finished.
func (s *Server) Wait() {
	s.writes.Wait()
}

type stateResponse struct {
	store.State
	UnreadAlertCount   int             `json:"unread_alert_count"`
	ProcedureStepLabel string          `json:"procedure_step_label"`
	StreamPatientID    string          `json:"stream_patient_id,omitempty"`
	Backend            health.Snapshot `json:"backend"`
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"alive": true})
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) snapshot() stateResponse {
	st := s.store.State()
	resp := stateResponse{
		State:              st,
		UnreadAlertCount:   st.UnreadAlertCount(),
		ProcedureStepLabel: models.ProcedureSteps[st.ProcedureStep],
		Backend:            health.Snapshot{Status: health.StatusUnknown},
	}
	if s.session != nil {
		resp.StreamPatientID = s.session.PatientID()
	}
	if s.health != nil {
		resp.Backend = s.health.Snapshot()
	}
	return resp
}

func (s *Server) vitalsHistoryHandler(w http.ResponseWriter, r *http.Request) {
	frames := []models.VitalsFrame{}
	if s.history != nil {
		frames = s.history.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]any{"frames": frames})
}

func (s *Server) reloadHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Reload(r.Context()); err != nil {
		s.logger.Warn("Reload finished with error", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) clearErrorHandler(w http.ResponseWriter, r *http.Request) {
	s.store.ClearError()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) selectPatientHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := s.session.SelectPatientByID(id)
	if errors.Is(err, session.ErrUnknownPatient) {
		s.errorStatus(w, http.StatusNotFound, "patient not found: "+id, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) injectAlertHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AlertCreate
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" {
		s.errorStatus(w, http.StatusBadRequest, "title is required", nil)
		return
	}
	writeJSON(w, http.StatusCreated, s.store.InjectAlert(req))
}

func (s *Server) acknowledgeAlertHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.store.AcknowledgeAlert(id)
	writeJSON(w, http.StatusOK, map[string]any{"unread_alert_count": s.store.State().UnreadAlertCount()})
}

func (s *Server) acknowledgeAllHandler(w http.ResponseWriter, r *http.Request) {
	s.store.AcknowledgeAll()
	writeJSON(w, http.StatusOK, map[string]any{"unread_alert_count": s.store.State().UnreadAlertCount()})
}

func (s *Server) getThemeHandler(w http.ResponseWriter, r *http.Request) {
	theme, err := s.prefs.GetTheme()
	if err != nil {
		s.errorStatus(w, http.StatusInternalServerError, "failed to read theme", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"theme": theme})
}

func (s *Server) putThemeHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Theme string `json:"theme"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if err := s.prefs.SetTheme(body.Theme); err != nil {
		if errors.Is(err, database.ErrInvalidTheme) {
			s.errorStatus(w, http.StatusBadRequest, err.Error(), err)
			return
		}
		s.errorStatus(w, http.StatusInternalServerError, "failed to save theme", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"theme": body.Theme})
}

// --- helpers ---

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		s.errorStatus(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

func (s *Server) errorStatus(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		s.logger.Warn(message, zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": message})
}

// backendError maps a facade failure to a 502 carrying the facade's message.
func (s *Server) backendError(w http.ResponseWriter, err error) {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		s.errorStatus(w, http.StatusBadGateway, apiErr.Message, err)
		return
	}
	s.errorStatus(w, http.StatusBadGateway, err.Error(), err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
