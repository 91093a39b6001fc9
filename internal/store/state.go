package store

import "aetheris-dashboard/internal/models"

// LoadingKey names one page's asynchronous-operation flag.
type LoadingKey string

const (
	LoadingPatients LoadingKey = "patients"
	LoadingPreOp    LoadingKey = "preop"
	LoadingIntraOp  LoadingKey = "intraop"
	LoadingPostOp   LoadingKey = "postop"
	LoadingReports  LoadingKey = "reports"
)

var loadingKeys = []LoadingKey{LoadingPatients, LoadingPreOp, LoadingIntraOp, LoadingPostOp, LoadingReports}

// Valid reports whether k is one of the fixed loading keys.
func (k LoadingKey) Valid() bool {
	for _, known := range loadingKeys {
		if k == known {
			return true
		}
	}
	return false
}

// State is an immutable snapshot. Reduce never mutates its input; slices and
// maps are copied before they change.
type State struct {
	CurrentPatient *models.Patient     `json:"current_patient"`
	Patients       []models.Patient    `json:"patients"`
	Alerts         []models.Alert      `json:"alerts"`
	ProcedureStep  int                 `json:"procedure_step"`
	Connected      bool                `json:"is_connected"`
	Loading        map[LoadingKey]bool `json:"loading"`
	Error          string              `json:"error,omitempty"`
}

// InitialState is the state before any action has been applied.
func InitialState() State {
	loading := make(map[LoadingKey]bool, len(loadingKeys))
	for _, k := range loadingKeys {
		loading[k] = false
	}
	return State{
		Patients: []models.Patient{},
		Alerts:   []models.Alert{},
		Loading:  loading,
	}
}

// UnreadAlertCount is derived from the alert list on every call.
func (s State) UnreadAlertCount() int {
	n := 0
	for _, a := range s.Alerts {
		if !a.Acknowledged {
			n++
		}
	}
	return n
}

// FindAlert returns the alert with id, if present.
func (s State) FindAlert(id string) (models.Alert, bool) {
	for _, a := range s.Alerts {
		if a.ID == id {
			return a, true
		}
	}
	return models.Alert{}, false
}

// FindPatient returns the patient with id from the loaded list.
func (s State) FindPatient(id string) (models.Patient, bool) {
	for _, p := range s.Patients {
		if p.ID == id {
			return p, true
		}
	}
	return models.Patient{}, false
}

// Action is the closed vocabulary of state transitions.
type Action interface {
	Name() string
	isAction()
}

type SetCurrentPatient struct{ Patient *models.Patient }
type SetPatients struct{ Patients []models.Patient }
type AppendPatient struct{ Patient models.Patient }
type AddAlert struct{ Alert models.Alert }
type MergeAlerts struct{ Alerts []models.Alert }
type AcknowledgeAlert struct{ ID string }
type AcknowledgeAll struct{}
type SetProcedureStep struct{ Step int }
type AdvanceProcedureStep struct{}
type SetConnected struct{ Connected bool }
type SetLoading struct {
	Key   LoadingKey
	Value bool
}
type SetError struct{ Message string }
type ClearError struct{}

func (SetCurrentPatient) Name() string    { return "SET_CURRENT_PATIENT" }
func (SetPatients) Name() string          { return "SET_PATIENTS" }
func (AppendPatient) Name() string        { return "APPEND_PATIENT" }
func (AddAlert) Name() string             { return "ADD_ALERT" }
func (MergeAlerts) Name() string          { return "MERGE_ALERTS" }
func (AcknowledgeAlert) Name() string     { return "ACKNOWLEDGE_ALERT" }
func (AcknowledgeAll) Name() string       { return "ACKNOWLEDGE_ALL" }
func (SetProcedureStep) Name() string     { return "SET_PROCEDURE_STEP" }
func (AdvanceProcedureStep) Name() string { return "ADVANCE_PROCEDURE_STEP" }
func (SetConnected) Name() string         { return "SET_CONNECTED" }
func (SetLoading) Name() string           { return "SET_LOADING" }
func (SetError) Name() string             { return "SET_ERROR" }
func (ClearError) Name() string           { return "CLEAR_ERROR" }

func (SetCurrentPatient) isAction()    {}
func (SetPatients) isAction()          {}
func (AppendPatient) isAction()        {}
func (AddAlert) isAction()             {}
func (MergeAlerts) isAction()          {}
func (AcknowledgeAlert) isAction()     {}
func (AcknowledgeAll) isAction()       {}
func (SetProcedureStep) isAction()     {}
func (AdvanceProcedureStep) isAction() {}
func (SetConnected) isAction()         {}
func (SetLoading) isAction()           {}
func (SetError) isAction()             {}
func (ClearError) isAction()           {}

// Reduce applies a to s and returns the next state. Alerts are deduplicated
// by id: an alert whose id is already present is ignored.
func Reduce(s State, a Action) State {
	switch act := a.(type) {
	case SetCurrentPatient:
		s.CurrentPatient = act.Patient

	case SetPatients:
		s.Patients = append([]models.Patient{}, act.Patients...)

	case AppendPatient:
		patients := make([]models.Patient, 0, len(s.Patients)+1)
		replaced := false
		for _, p := range s.Patients {
			if p.ID == act.Patient.ID {
				p = act.Patient
				replaced = true
			}
			patients = append(patients, p)
		}
		if !replaced {
			patients = append(patients, act.Patient)
		}
		s.Patients = patients

	case AddAlert:
		if _, exists := s.FindAlert(act.Alert.ID); exists {
			return s
		}
		alerts := make([]models.Alert, 0, len(s.Alerts)+1)
		alerts = append(alerts, act.Alert)
		s.Alerts = append(alerts, s.Alerts...)

	case MergeAlerts:
		// Bulk-loaded alerts are already most-recent-first and older than
		// anything pushed while the load was in flight, so they go after.
		alerts := append([]models.Alert{}, s.Alerts...)
		seen := make(map[string]struct{}, len(alerts)+len(act.Alerts))
		for _, existing := range alerts {
			seen[existing.ID] = struct{}{}
		}
		for _, incoming := range act.Alerts {
			if _, dup := seen[incoming.ID]; dup {
				continue
			}
			seen[incoming.ID] = struct{}{}
			alerts = append(alerts, incoming)
		}
		s.Alerts = alerts

	case AcknowledgeAlert:
		idx := -1
		for i, existing := range s.Alerts {
			if existing.ID == act.ID {
				idx = i
				break
			}
		}
		if idx < 0 || s.Alerts[idx].Acknowledged {
			return s
		}
		alerts := append([]models.Alert{}, s.Alerts...)
		alerts[idx].Acknowledged = true
		s.Alerts = alerts

	case AcknowledgeAll:
		alerts := make([]models.Alert, len(s.Alerts))
		for i, existing := range s.Alerts {
			existing.Acknowledged = true
			alerts[i] = existing
		}
		s.Alerts = alerts

	case SetProcedureStep:
		s.ProcedureStep = clampStep(act.Step)

	case AdvanceProcedureStep:
		s.ProcedureStep = clampStep(s.ProcedureStep + 1)

	case SetConnected:
		s.Connected = act.Connected

	case SetLoading:
		if !act.Key.Valid() {
			return s
		}
		loading := make(map[LoadingKey]bool, len(s.Loading))
		for k, v := range s.Loading {
			loading[k] = v
		}
		loading[act.Key] = act.Value
		s.Loading = loading

	case SetError:
		s.Error = act.Message

	case ClearError:
		s.Error = ""
	}
	return s
}

func clampStep(step int) int {
	if step < 0 {
		return 0
	}
	if last := len(models.ProcedureSteps) - 1; step > last {
		return last
	}
	return step
}
