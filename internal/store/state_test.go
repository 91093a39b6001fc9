package store

import (
	"testing"
	"time"

	"aetheris-dashboard/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alert(id string, acknowledged bool) models.Alert {
	return models.Alert{ID: id, Type: models.SeverityWarning, Title: id, Timestamp: time.Unix(0, 0), Acknowledged: acknowledged}
}

func assertUnreadInvariant(t *testing.T, s State) {
	t.Helper()
	n := 0
	for _, a := range s.Alerts {
		if !a.Acknowledged {
			n++
		}
	}
	assert.Equal(t, n, s.UnreadAlertCount())
}

func TestReduce_AddAlertPrepends(t *testing.T) {
	s := InitialState()
	s = Reduce(s, AddAlert{Alert: alert("a1", false)})
	s = Reduce(s, AddAlert{Alert: alert("a2", false)})

	require.Len(t, s.Alerts, 2)
	assert.Equal(t, "a2", s.Alerts[0].ID)
	assert.Equal(t, 2, s.UnreadAlertCount())
	assertUnreadInvariant(t, s)
}

func TestReduce_AddAlertDedupesByID(t *testing.T) {
	s := Reduce(InitialState(), AddAlert{Alert: alert("a1", false)})
	s = Reduce(s, AddAlert{Alert: alert("a1", false)})

	assert.Len(t, s.Alerts, 1)
	assert.Equal(t, 1, s.UnreadAlertCount())
}

func TestReduce_AcknowledgeAlert(t *testing.T) {
	s := Reduce(InitialState(), AddAlert{Alert: alert("a1", false)})
	s = Reduce(s, AddAlert{Alert: alert("a2", false)})

	s = Reduce(s, AcknowledgeAlert{ID: "a1"})

	assert.Len(t, s.Alerts, 2)
	assert.Equal(t, 1, s.UnreadAlertCount())
	a, ok := s.FindAlert("a1")
	require.True(t, ok)
	assert.True(t, a.Acknowledged)
	assertUnreadInvariant(t, s)
}

func TestReduce_AcknowledgeUnknownIDLeavesStateUnchanged(t *testing.T) {
	s := Reduce(InitialState(), AddAlert{Alert: alert("a1", false)})

	next := Reduce(s, AcknowledgeAlert{ID: "nope"})

	assert.Equal(t, s, next)
	assert.Equal(t, 1, next.UnreadAlertCount())
}

func TestReduce_AcknowledgeAllIsIdempotent(t *testing.T) {
	s := InitialState()
	for _, id := range []string{"a1", "a2", "a3"} {
		s = Reduce(s, AddAlert{Alert: alert(id, false)})
	}

	once := Reduce(s, AcknowledgeAll{})
	twice := Reduce(once, AcknowledgeAll{})

	assert.Equal(t, 0, once.UnreadAlertCount())
	assert.Equal(t, once, twice)
	assertUnreadInvariant(t, twice)
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	before := Reduce(InitialState(), AddAlert{Alert: alert("a1", false)})

	_ = Reduce(before, AcknowledgeAlert{ID: "a1"})
	_ = Reduce(before, AcknowledgeAll{})
	_ = Reduce(before, SetLoading{Key: LoadingPreOp, Value: true})

	assert.False(t, before.Alerts[0].Acknowledged)
	assert.False(t, before.Loading[LoadingPreOp])
}

func TestReduce_AppendPatient(t *testing.T) {
	before := Reduce(InitialState(), SetPatients{Patients: []models.Patient{{ID: "p001", Name: "Rajesh Kumar"}}})

	s := Reduce(before, AppendPatient{Patient: models.Patient{ID: "p002", Name: "Anita Rao"}})
	require.Len(t, s.Patients, 2)
	assert.Equal(t, "p002", s.Patients[1].ID)
	assert.Len(t, before.Patients, 1)

	s = Reduce(s, AppendPatient{Patient: models.Patient{ID: "p001", Name: "Rajesh K."}})
	require.Len(t, s.Patients, 2)
	assert.Equal(t, "Rajesh K.", s.Patients[0].Name)
	assert.Equal(t, "Rajesh Kumar", before.Patients[0].Name)
}

func TestReduce_MergeAlertsKeepsPushedAlertsFirst(t *testing.T) {
	s := Reduce(InitialState(), AddAlert{Alert: alert("ws-1", false)})

	s = Reduce(s, MergeAlerts{Alerts: []models.Alert{alert("b2", false), alert("b1", true), alert("ws-1", false)}})

	require.Len(t, s.Alerts, 3)
	assert.Equal(t, []string{"ws-1", "b2", "b1"}, []string{s.Alerts[0].ID, s.Alerts[1].ID, s.Alerts[2].ID})
	assert.Equal(t, 2, s.UnreadAlertCount())
}

func TestReduce_SetLoading(t *testing.T) {
	s := Reduce(InitialState(), SetLoading{Key: LoadingReports, Value: true})
	assert.True(t, s.Loading[LoadingReports])
	assert.False(t, s.Loading[LoadingPatients])

	unchanged := Reduce(s, SetLoading{Key: "billing", Value: true})
	assert.Equal(t, s, unchanged)
}

func TestReduce_ProcedureStepIsClamped(t *testing.T) {
	s := InitialState()
	for i := 0; i < 20; i++ {
		s = Reduce(s, AdvanceProcedureStep{})
	}
	assert.Equal(t, len(models.ProcedureSteps)-1, s.ProcedureStep)

	s = Reduce(s, SetProcedureStep{Step: -3})
	assert.Equal(t, 0, s.ProcedureStep)
}

func TestReduce_ErrorAndConnection(t *testing.T) {
	s := Reduce(InitialState(), SetError{Message: "backend down"})
	s = Reduce(s, SetConnected{Connected: true})
	assert.Equal(t, "backend down", s.Error)
	assert.True(t, s.Connected)

	s = Reduce(s, ClearError{})
	assert.Empty(t, s.Error)
}

func TestReduce_SelectionIsReference(t *testing.T) {
	p := &models.Patient{ID: "p001", Name: "Rajesh Kumar"}
	s := Reduce(InitialState(), SetCurrentPatient{Patient: p})
	assert.Same(t, p, s.CurrentPatient)

	s = Reduce(s, SetCurrentPatient{})
	assert.Nil(t, s.CurrentPatient)
}
