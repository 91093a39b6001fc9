package models

import "time"

// Severity is the canonical three-level alert severity used for display.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// AnomalyAlertType is the discriminator value of a stream frame carrying an alert batch.
const AnomalyAlertType = "ANOMALY_ALERT"

// Patient as returned by GET /api/patients/.
type Patient struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Age            int      `json:"age"`
	Gender         string   `json:"gender"`
	WeightKg       float64  `json:"weight_kg,omitempty"`
	HeightCm       float64  `json:"height_cm,omitempty"`
	BloodType      string   `json:"blood_type,omitempty"`
	ASAClass       string   `json:"asa_class,omitempty"`
	SurgeryType    string   `json:"surgery_type,omitempty"`
	Status         string   `json:"status,omitempty"`
	Room           string   `json:"room,omitempty"`
	MedicalHistory []string `json:"medical_history"`
	Medications    []string `json:"medications"`
	Allergies      []string `json:"allergies"`
	CreatedAt      string   `json:"created_at,omitempty"`
}

// PatientCreate is the body of POST /api/patients/.
type PatientCreate struct {
	Name           string   `json:"name"`
	Age            int      `json:"age"`
	Gender         string   `json:"gender"`
	WeightKg       *float64 `json:"weight_kg,omitempty"`
	HeightCm       *float64 `json:"height_cm,omitempty"`
	BloodType      string   `json:"blood_type,omitempty"`
	Allergies      []string `json:"allergies"`
	Medications    []string `json:"medications"`
	MedicalHistory []string `json:"medical_history"`
	ASAClass       string   `json:"asa_class,omitempty"`
}

// RawAlert is any alert-shaped record as it arrives from the backend, the
// stream or a local injection, before severity normalization.
type RawAlert struct {
	ID           string   `json:"id,omitempty"`
	Type         string   `json:"type,omitempty"`
	Severity     string   `json:"severity,omitempty"`
	Title        string   `json:"title"`
	Message      string   `json:"message"`
	PatientID    string   `json:"patient_id,omitempty"`
	SurgeryID    string   `json:"surgery_id,omitempty"`
	VitalType    string   `json:"vital_type,omitempty"`
	VitalValue   *float64 `json:"vital_value,omitempty"`
	Acknowledged bool     `json:"acknowledged,omitempty"`
	CreatedAt    string   `json:"created_at,omitempty"`
	Timestamp    string   `json:"timestamp,omitempty"`
}

// Alert is the normalized alert held by the store.
type Alert struct {
	ID           string    `json:"id"`
	Type         Severity  `json:"type"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
	PatientID    string    `json:"patient_id,omitempty"`
	SurgeryID    string    `json:"surgery_id,omitempty"`
	VitalType    string    `json:"vital_type,omitempty"`
	VitalValue   *float64  `json:"vital_value,omitempty"`
}

// AlertCreate is the body of POST /api/alerts/.
type AlertCreate struct {
	PatientID  string   `json:"patient_id"`
	SurgeryID  string   `json:"surgery_id,omitempty"`
	Severity   Severity `json:"severity"`
	Title      string   `json:"title"`
	Message    string   `json:"message"`
	VitalType  string   `json:"vital_type,omitempty"`
	VitalValue *float64 `json:"vital_value,omitempty"`
}

// AcknowledgeRequest is the body of PATCH /api/alerts/{id}/acknowledge.
type AcknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by"`
}

// VitalsFrame is one point-in-time reading pushed over the vitals stream.
type VitalsFrame struct {
	HeartRate   float64 `json:"heart_rate"`
	SpO2        float64 `json:"spo2"`
	SystolicBP  float64 `json:"systolic_bp"`
	DiastolicBP float64 `json:"diastolic_bp"`
	Temperature float64 `json:"temperature"`
	EtCO2       float64 `json:"etco2"`
	RespRate    float64 `json:"resp_rate"`
	Status      string  `json:"status,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
	PatientID   string  `json:"patient_id,omitempty"`
}

// AnomalyBatch is the stream frame sent when the backend detects anomalies.
type AnomalyBatch struct {
	Type   string     `json:"type"`
	Alerts []RawAlert `json:"alerts"`
}

// --- Pre-op ---

type PreOpAssessmentRequest struct {
	PatientID      string   `json:"patient_id"`
	SurgeryType    string   `json:"surgery_type"`
	ASAClass       string   `json:"asa_class,omitempty"`
	Medications    []string `json:"medications"`
	Allergies      []string `json:"allergies"`
	MedicalHistory []string `json:"medical_history"`
	WeightKg       *float64 `json:"weight_kg,omitempty"`
	HeightCm       *float64 `json:"height_cm,omitempty"`
	SystolicBP     *float64 `json:"systolic_bp,omitempty"`
	DiastolicBP    *float64 `json:"diastolic_bp,omitempty"`
	HeartRate      *float64 `json:"heart_rate,omitempty"`
	SpO2           *float64 `json:"spo2,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	Diabetes       bool     `json:"diabetes"`
	Hypertension   bool     `json:"hypertension"`
	CardiacHx      bool     `json:"cardiac_hx"`
	Smoking        bool     `json:"smoking"`
}

type DrugInteraction struct {
	DrugA       string `json:"drug_a"`
	DrugB       string `json:"drug_b"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

type RiskBreakdown struct {
	CardiacRisk    float64 `json:"cardiac_risk"`
	AnesthesiaRisk float64 `json:"anesthesia_risk"`
	SurgicalRisk   float64 `json:"surgical_risk"`
}

type ChecklistItem struct {
	ID       int    `json:"id"`
	Label    string `json:"label"`
	Checked  bool   `json:"checked"`
	Required bool   `json:"required"`
	Category string `json:"category"`
}

type PreOpAssessment struct {
	AssessmentID     string            `json:"assessment_id"`
	PatientID        string            `json:"patient_id"`
	OverallRiskScore float64           `json:"overall_risk_score"`
	RiskLevel        string            `json:"risk_level"`
	RiskBreakdown    RiskBreakdown     `json:"risk_breakdown"`
	ASAPredicted     string            `json:"asa_predicted"`
	DrugInteractions []DrugInteraction `json:"drug_interactions"`
	Checklist        []ChecklistItem   `json:"checklist"`
	Recommendation   string            `json:"recommendation"`
	AISummary        string            `json:"ai_summary"`
	CreatedAt        string            `json:"created_at"`
}

// --- Intra-op ---

type AnomalyCheckRequest struct {
	PatientID string      `json:"patient_id"`
	SurgeryID string      `json:"surgery_id,omitempty"`
	Vitals    VitalsFrame `json:"vitals"`
}

type AnomalyResult struct {
	HasAnomaly   bool              `json:"has_anomaly"`
	AlertsFired  []RawAlert        `json:"alerts_fired"`
	VitalsStatus map[string]string `json:"vitals_status"`
}

type VoiceCommandRequest struct {
	PatientID string `json:"patient_id"`
	SurgeryID string `json:"surgery_id,omitempty"`
	AudioB64  string `json:"audio_b64,omitempty"`
	TextQuery string `json:"text_query,omitempty"`
}

type VoiceCommandResponse struct {
	Transcription string         `json:"transcription"`
	Response      string         `json:"response"`
	VitalsCited   map[string]any `json:"vitals_cited,omitempty"`
}

type ProcedureStepUpdate struct {
	SurgeryID   string `json:"surgery_id"`
	CurrentStep int    `json:"current_step"`
	Note        string `json:"note,omitempty"`
}

type ProcedureStepResult struct {
	SurgeryID   string `json:"surgery_id"`
	CurrentStep int    `json:"current_step"`
	StepName    string `json:"step_name"`
	UpdatedAt   string `json:"updated_at"`
}

// --- Post-op ---

type ComplicationRiskRequest struct {
	PatientID    string   `json:"patient_id"`
	SurgeryID    string   `json:"surgery_id,omitempty"`
	SurgeryType  string   `json:"surgery_type"`
	DurationMin  *int     `json:"duration_min,omitempty"`
	BloodLossMl  *float64 `json:"blood_loss_ml,omitempty"`
	ASAClass     string   `json:"asa_class,omitempty"`
	Age          *int     `json:"age,omitempty"`
	Diabetes     bool     `json:"diabetes"`
	Hypertension bool     `json:"hypertension"`
	CardiacHx    bool     `json:"cardiac_hx"`
	Smoker       bool     `json:"smoker"`
}

type ComplicationRisk struct {
	Name        string  `json:"name"`
	RiskPct     float64 `json:"risk_pct"`
	RiskLevel   string  `json:"risk_level"`
	Description string  `json:"description"`
}

type ComplicationRiskResponse struct {
	PatientID      string             `json:"patient_id"`
	OverallScore   float64            `json:"overall_score"`
	RiskLevel      string             `json:"risk_level"`
	Complications  []ComplicationRisk `json:"complications"`
	Recommendation string             `json:"recommendation"`
}

// --- Reports ---

type ReportGenerateRequest struct {
	PatientID  string `json:"patient_id"`
	SurgeryID  string `json:"surgery_id,omitempty"`
	ReportType string `json:"report_type,omitempty"`
	ExtraNotes string `json:"extra_notes,omitempty"`
}

type Report struct {
	ID         string `json:"id"`
	PatientID  string `json:"patient_id"`
	SurgeryID  string `json:"surgery_id,omitempty"`
	ReportType string `json:"report_type"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
}

type ReportSendToEHR struct {
	ReportID  string `json:"report_id"`
	EHRSystem string `json:"ehr_system,omitempty"`
}

type EHRSubmission struct {
	ReportID     string `json:"report_id"`
	EHRSystem    string `json:"ehr_system"`
	Status       string `json:"status"`
	Confirmation string `json:"confirmation"`
	SentAt       string `json:"sent_at"`
	Message      string `json:"message"`
}

type ReportType struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ProcedureSteps is the intra-op timeline shown by the dashboard.
var ProcedureSteps = []string{
	"Pre-Procedure Setup",
	"Anesthesia Induction",
	"Incision & Access",
	"Main Procedure Phase",
	"Hemostasis & Verification",
	"Closure",
	"Recovery Handoff",
}
