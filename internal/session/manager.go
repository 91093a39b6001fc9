// Package session keeps the vitals stream bound to the currently selected
// patient.
package session

import (
	"errors"
	"sync"

	"aetheris-dashboard/internal/models"
	"aetheris-dashboard/internal/store"
	"aetheris-dashboard/internal/stream"

	"go.uber.org/zap"
)

var ErrUnknownPatient = errors.New("patient not found")

// Conn is the part of a stream client the manager drives.
type Conn interface {
	Connect()
	Disconnect()
}

// Dialer builds an unconnected stream for one patient.
type Dialer func(patientID string, handlers stream.Handlers) Conn

// StreamDialer adapts stream.New to a Dialer.
func StreamDialer(opts stream.Options) Dialer {
	return func(patientID string, handlers stream.Handlers) Conn {
		return stream.New(patientID, handlers, opts)
	}
}

type Manager struct {
	store   *store.Store
	history *stream.History
	dial    Dialer
	logger  *zap.Logger

	mu        sync.Mutex
	conn      Conn
	patientID string
}

func NewManager(s *store.Store, history *stream.History, dial Dialer, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   s,
		history: history,
		dial:    dial,
		logger:  logger.Named("session"),
	}
}

// SelectPatientByID selects a patient from the loaded list.
func (m *Manager) SelectPatientByID(id string) (models.Patient, error) {
	p, ok := m.store.State().FindPatient(id)
	if !ok {
		return models.Patient{}, ErrUnknownPatient
	}
	m.Select(&p)
	return p, nil
}

// Select makes p current and moves the stream to it. The previous stream is
// fully closed before the new one connects. Selecting the already-streamed
// patient again keeps the existing stream; nil closes it.
func (m *Manager) Select(p *models.Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store.SelectPatient(p)

	if p != nil && m.conn != nil && p.ID == m.patientID {
		return
	}
	m.closeLocked()
	if p == nil {
		return
	}

	m.patientID = p.ID
	m.conn = m.dial(p.ID, m.handlers())
	m.conn.Connect()
	m.logger.Info("Streaming vitals", zap.String("patient_id", p.ID))
}

// PatientID is the patient currently streamed, or "".
func (m *Manager) PatientID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.patientID
}

// Close disconnects the active stream, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *Manager) closeLocked() {
	if m.conn == nil {
		return
	}
	m.conn.Disconnect()
	m.logger.Info("Stopped vitals stream", zap.String("patient_id", m.patientID))
	m.conn = nil
	m.patientID = ""
	m.store.SetConnected(false)
	if m.history != nil {
		m.history.Reset()
	}
}

func (m *Manager) handlers() stream.Handlers {
	return stream.Handlers{
		OnVitals: func(frame models.VitalsFrame) {
			if m.history != nil {
				m.history.Add(frame)
			}
		},
		OnAlerts: m.store.IngestAlerts,
		OnStateChange: func(st stream.State) {
			m.store.SetConnected(st == stream.Open)
		},
		OnError: func(err error) {
			m.logger.Warn("Vitals stream error", zap.Error(err))
		},
	}
}
