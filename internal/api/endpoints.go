package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"aetheris-dashboard/internal/models"
)

// --- Patients ---

// GetPatients accepts either a bare list or {"patients": [...]}.
func (c *Client) GetPatients(ctx context.Context) ([]models.Patient, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodGet, "/api/patients/", nil, nil, &raw); err != nil {
		return nil, err
	}
	var patients []models.Patient
	if err := decodeList(raw, "patients", &patients); err != nil {
		return nil, err
	}
	return patients, nil
}

func (c *Client) GetPatient(ctx context.Context, id string) (*models.Patient, error) {
	var patient models.Patient
	if err := c.Do(ctx, http.MethodGet, "/api/patients/"+url.PathEscape(id), nil, nil, &patient); err != nil {
		return nil, err
	}
	return &patient, nil
}

func (c *Client) CreatePatient(ctx context.Context, req models.PatientCreate) (*models.Patient, error) {
	var patient models.Patient
	if err := c.Do(ctx, http.MethodPost, "/api/patients/", nil, req, &patient); err != nil {
		return nil, err
	}
	return &patient, nil
}

// --- Pre-op ---

func (c *Client) RunPreOpAssessment(ctx context.Context, req models.PreOpAssessmentRequest) (*models.PreOpAssessment, error) {
	var out models.PreOpAssessment
	if err := c.Do(ctx, http.MethodPost, "/api/preop/assess", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Intra-op ---

func (c *Client) CheckAnomalies(ctx context.Context, req models.AnomalyCheckRequest) (*models.AnomalyResult, error) {
	var out models.AnomalyResult
	if err := c.Do(ctx, http.MethodPost, "/api/intraop/anomaly-check", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendVoiceCommand(ctx context.Context, req models.VoiceCommandRequest) (*models.VoiceCommandResponse, error) {
	var out models.VoiceCommandResponse
	if err := c.Do(ctx, http.MethodPost, "/api/intraop/voice-command", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProcedureStep(ctx context.Context, req models.ProcedureStepUpdate) (*models.ProcedureStepResult, error) {
	var out models.ProcedureStepResult
	if err := c.Do(ctx, http.MethodPatch, "/api/intraop/procedure-step", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetProcedureSteps(ctx context.Context) ([]string, error) {
	var out struct {
		Steps []string `json:"steps"`
	}
	if err := c.Do(ctx, http.MethodGet, "/api/intraop/procedure-steps", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Steps, nil
}

// --- Post-op ---

func (c *Client) GetComplicationRisk(ctx context.Context, req models.ComplicationRiskRequest) (*models.ComplicationRiskResponse, error) {
	var out models.ComplicationRiskResponse
	if err := c.Do(ctx, http.MethodPost, "/api/postop/complication-risk", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Reports ---

func (c *Client) GenerateReport(ctx context.Context, req models.ReportGenerateRequest) (*models.Report, error) {
	var out models.Report
	if err := c.Do(ctx, http.MethodPost, "/api/reports/generate", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendToEHR(ctx context.Context, req models.ReportSendToEHR) (*models.EHRSubmission, error) {
	var out models.EHRSubmission
	if err := c.Do(ctx, http.MethodPost, "/api/reports/send-to-ehr", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetReportTypes(ctx context.Context) ([]models.ReportType, error) {
	var out struct {
		Types []models.ReportType `json:"types"`
	}
	if err := c.Do(ctx, http.MethodGet, "/api/reports/types", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Types, nil
}

// --- Alerts ---

// GetAlerts accepts either a bare list or {"alerts": [...]}.
func (c *Client) GetAlerts(ctx context.Context, unreadOnly bool) ([]models.RawAlert, error) {
	query := map[string]string{"unread_only": strconv.FormatBool(unreadOnly)}
	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodGet, "/api/alerts/", query, nil, &raw); err != nil {
		return nil, err
	}
	var list []models.RawAlert
	if err := decodeList(raw, "alerts", &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) CreateAlert(ctx context.Context, req models.AlertCreate) (*models.RawAlert, error) {
	var out models.RawAlert
	if err := c.Do(ctx, http.MethodPost, "/api/alerts/", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AcknowledgeAlert(ctx context.Context, id, acknowledgedBy string) error {
	body := models.AcknowledgeRequest{AcknowledgedBy: acknowledgedBy}
	return c.Do(ctx, http.MethodPatch, "/api/alerts/"+url.PathEscape(id)+"/acknowledge", nil, body, nil)
}

func (c *Client) AcknowledgeAllAlerts(ctx context.Context) error {
	return c.Do(ctx, http.MethodDelete, "/api/alerts/acknowledge-all", nil, nil, nil)
}

// decodeList unmarshals raw into out whether it is a JSON array or an object
// wrapping the array under key. A missing key yields an empty list.
func decodeList(raw json.RawMessage, key string, out any) error {
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, out); err != nil {
			return &Error{Message: "invalid JSON response: " + err.Error()}
		}
		return nil
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return &Error{Message: "invalid JSON response: " + err.Error()}
	}
	inner, ok := wrapper[key]
	if !ok || string(inner) == "null" {
		return nil
	}
	if err := json.Unmarshal(inner, out); err != nil {
		return &Error{Message: "invalid JSON response: " + err.Error()}
	}
	return nil
}
