package dashboard

import (
	"context"
	"net/http"

	"aetheris-dashboard/internal/models"
	"aetheris-dashboard/internal/store"

	"go.uber.org/zap"
)

// runPage decodes the request into Req, raises the page's loading flag for the
// duration of call and writes the backend's answer. The flag is lowered on
// every path.
func runPage[Req, Resp any](s *Server, w http.ResponseWriter, r *http.Request, key store.LoadingKey, call func(ctx context.Context, req Req) (Resp, error)) (Resp, bool) {
	var zero Resp
	var req Req
	if !s.decodeBody(w, r, &req) {
		return zero, false
	}

	s.store.SetLoading(key, true)
	resp, err := call(r.Context(), req)
	s.store.SetLoading(key, false)

	if err != nil {
		s.backendError(w, err)
		return zero, false
	}
	writeJSON(w, http.StatusOK, resp)
	return resp, true
}

func (s *Server) createPatientHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := runPage(s, w, r, store.LoadingPatients, s.backend.CreatePatient)
	if !ok || p == nil {
		return
	}
	s.store.AppendPatient(*p)
}

func (s *Server) preOpAssessHandler(w http.ResponseWriter, r *http.Request) {
	runPage(s, w, r, store.LoadingPreOp, s.backend.RunPreOpAssessment)
}

// anomalyCheckHandler also feeds any alerts the check fired into the store.
func (s *Server) anomalyCheckHandler(w http.ResponseWriter, r *http.Request) {
	result, ok := runPage(s, w, r, store.LoadingIntraOp, s.backend.CheckAnomalies)
	if !ok || result == nil {
		return
	}
	if len(result.AlertsFired) > 0 {
		s.store.IngestAlerts(result.AlertsFired)
	}
}

func (s *Server) voiceCommandHandler(w http.ResponseWriter, r *http.Request) {
	runPage(s, w, r, store.LoadingIntraOp, s.backend.SendVoiceCommand)
}

func (s *Server) complicationRiskHandler(w http.ResponseWriter, r *http.Request) {
	runPage(s, w, r, store.LoadingPostOp, s.backend.GetComplicationRisk)
}

func (s *Server) generateReportHandler(w http.ResponseWriter, r *http.Request) {
	runPage(s, w, r, store.LoadingReports, s.backend.GenerateReport)
}

func (s *Server) sendToEHRHandler(w http.ResponseWriter, r *http.Request) {
	runPage(s, w, r, store.LoadingReports, s.backend.SendToEHR)
}

type advanceRequest struct {
	SurgeryID string `json:"surgery_id"`
	Note      string `json:"note"`
}

// procedureStepsHandler serves the backend's timeline labels, falling back to
// the built-in ones when the backend cannot be reached.
func (s *Server) procedureStepsHandler(w http.ResponseWriter, r *http.Request) {
	steps, err := s.backend.GetProcedureSteps(r.Context())
	if err != nil || len(steps) == 0 {
		if err != nil {
			s.logger.Warn("Using built-in procedure steps", zap.Error(err))
		}
		steps = models.ProcedureSteps
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": steps})
}

func (s *Server) reportTypesHandler(w http.ResponseWriter, r *http.Request) {
	types, err := s.backend.GetReportTypes(r.Context())
	if err != nil {
		s.backendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"types": types})
}

// advanceProcedureHandler moves the local timeline forward. With a surgery id
// the new step is also sent to the backend in the background; the reply never
// waits on that write and a failure leaves the local step in place.
func (s *Server) advanceProcedureHandler(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if r.ContentLength != 0 {
		if !s.decodeBody(w, r, &req) {
			return
		}
	}

	step := s.store.AdvanceProcedureStep()
	if req.SurgeryID != "" {
		update := models.ProcedureStepUpdate{SurgeryID: req.SurgeryID, CurrentStep: step, Note: req.Note}
		s.writes.Add(1)
		go func() {
			defer s.writes.Done()
			ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
			defer cancel()
			if _, err := s.backend.UpdateProcedureStep(ctx, update); err != nil {
				s.logger.Warn("Procedure step not recorded on backend", zap.String("surgery_id", update.SurgeryID), zap.Error(err))
			}
		}()
	}
	writeJSON(w, http.StatusOK, map[string]any{"procedure_step": step, "label": models.ProcedureSteps[step]})
}
