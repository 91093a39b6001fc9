package store

import (
	"context"
	"sync"
	"time"

	"aetheris-dashboard/internal/alerts"
	"aetheris-dashboard/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Backend is the subset of the request facade the store depends on.
type Backend interface {
	GetPatients(ctx context.Context) ([]models.Patient, error)
	GetAlerts(ctx context.Context, unreadOnly bool) ([]models.RawAlert, error)
	AcknowledgeAlert(ctx context.Context, id, acknowledgedBy string) error
	AcknowledgeAllAlerts(ctx context.Context) error
	CreateAlert(ctx context.Context, req models.AlertCreate) (*models.RawAlert, error)
}

// Listener observes every applied action together with the resulting state.
// Listeners run synchronously on the dispatching goroutine and must not
// dispatch back into the store.
type Listener func(action Action, state State)

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(gen alerts.IDGenerator) Option {
	return func(s *Store) { s.newID = gen }
}

func WithAcknowledgedBy(name string) Option {
	return func(s *Store) { s.acknowledgedBy = name }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) { s.writeTimeout = d }
}

// Store is the single writer of application state.
type Store struct {
	backend        Backend
	logger         *zap.Logger
	now            func() time.Time
	newID          alerts.IDGenerator
	acknowledgedBy string
	writeTimeout   time.Duration

	dispatchMu sync.Mutex
	stateMu    sync.RWMutex
	state      State

	listenersMu  sync.RWMutex
	listeners    map[int]Listener
	nextListener int

	writes sync.WaitGroup
}

func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:        backend,
		logger:         zap.NewNop(),
		now:            time.Now,
		acknowledgedBy: "clinical_staff",
		writeTimeout:   15 * time.Second,
		state:          InitialState(),
		listeners:      make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newID == nil {
		s.newID = alerts.NewIDGenerator(s.now)
	}
	s.logger = s.logger.Named("store")
	return s
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Store) dispatch(a Action) State {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.stateMu.Lock()
	next := Reduce(s.state, a)
	s.state = next
	s.stateMu.Unlock()

	s.listenersMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l(a, next)
	}
	return next
}

// --- Named operations ---

// SelectPatient marks p as current; nil clears the selection.
func (s *Store) SelectPatient(p *models.Patient) {
	s.dispatch(SetCurrentPatient{Patient: p})
}

func (s *Store) SetPatients(patients []models.Patient) {
	s.dispatch(SetPatients{Patients: patients})
}

// AppendPatient adds p to the list, replacing any entry with the same id.
func (s *Store) AppendPatient(p models.Patient) {
	s.dispatch(AppendPatient{Patient: p})
}

// AddAlert prepends alert, filling in a missing id, severity or timestamp.
func (s *Store) AddAlert(alert models.Alert) models.Alert {
	if alert.ID == "" {
		alert.ID = s.newID()
	}
	alert.Type = alerts.Normalize(models.RawAlert{Type: string(alert.Type)})
	if alert.Timestamp.IsZero() {
		alert.Timestamp = s.now()
	}
	s.dispatch(AddAlert{Alert: alert})
	return alert
}

// IngestAlerts adds every alert of a stream anomaly batch, in batch order.
func (s *Store) IngestAlerts(batch []models.RawAlert) {
	for _, raw := range batch {
		s.dispatch(AddAlert{Alert: alerts.FromRaw(raw, s.newID, s.now())})
	}
}

// InjectAlert adds a locally originated alert and best-effort persists it.
func (s *Store) InjectAlert(req models.AlertCreate) models.Alert {
	alert := alerts.FromCreate(req, s.newID, s.now())
	s.dispatch(AddAlert{Alert: alert})
	req.Severity = alert.Type
	s.persist("create alert", func(ctx context.Context) error {
		_, err := s.backend.CreateAlert(ctx, req)
		return err
	})
	return alert
}

// AcknowledgeAlert marks the alert acknowledged locally, then notifies the
// backend without waiting. Unknown ids are ignored.
func (s *Store) AcknowledgeAlert(id string) {
	if _, ok := s.State().FindAlert(id); !ok {
		return
	}
	s.dispatch(AcknowledgeAlert{ID: id})
	s.persist("acknowledge alert", func(ctx context.Context) error {
		return s.backend.AcknowledgeAlert(ctx, id, s.acknowledgedBy)
	})
}

func (s *Store) AcknowledgeAll() {
	s.dispatch(AcknowledgeAll{})
	s.persist("acknowledge all alerts", func(ctx context.Context) error {
		return s.backend.AcknowledgeAllAlerts(ctx)
	})
}

func (s *Store) SetLoading(key LoadingKey, value bool) {
	s.dispatch(SetLoading{Key: key, Value: value})
}

// AdvanceProcedureStep moves to the next timeline step and returns it.
func (s *Store) AdvanceProcedureStep() int {
	return s.dispatch(AdvanceProcedureStep{}).ProcedureStep
}

func (s *Store) SetProcedureStep(step int) int {
	return s.dispatch(SetProcedureStep{Step: step}).ProcedureStep
}

func (s *Store) SetConnected(connected bool) {
	s.dispatch(SetConnected{Connected: connected})
}

func (s *Store) SetError(message string) {
	s.dispatch(SetError{Message: message})
}

func (s *Store) ClearError() {
	s.dispatch(ClearError{})
}

// --- Loading ---

// Init loads patients and alerts concurrently. Either failure is recorded as
// the state's error; the other load still completes. The first error is
// returned for logging.
func (s *Store) Init(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	var g errgroup.Group
	g.Go(func() error { return s.loadPatients(ctx) })
	g.Go(func() error { return s.loadAlerts(ctx) })
	return g.Wait()
}

// Reload is the user-triggered retry of Init.
func (s *Store) Reload(ctx context.Context) error {
	s.ClearError()
	return s.Init(ctx)
}

func (s *Store) loadPatients(ctx context.Context) error {
	s.SetLoading(LoadingPatients, true)
	defer s.SetLoading(LoadingPatients, false)

	patients, err := s.backend.GetPatients(ctx)
	if err != nil {
		s.logger.Error("Failed to load patients", zap.Error(err))
		s.SetError(err.Error())
		return err
	}
	s.SetPatients(patients)
	s.logger.Info("Loaded patients", zap.Int("count", len(patients)))
	return nil
}

func (s *Store) loadAlerts(ctx context.Context) error {
	raws, err := s.backend.GetAlerts(ctx, false)
	if err != nil {
		s.logger.Warn("Could not load alerts from backend", zap.Error(err))
		s.SetError(err.Error())
		return err
	}
	now := s.now()
	loaded := make([]models.Alert, 0, len(raws))
	for _, raw := range raws {
		loaded = append(loaded, alerts.FromRaw(raw, s.newID, now))
	}
	s.dispatch(MergeAlerts{Alerts: loaded})
	s.logger.Info("Loaded alerts", zap.Int("count", len(loaded)))
	return nil
}

// --- Best-effort writes ---

// persist runs fn in the background. Its failure is logged and never rolls
// back local state.
func (s *Store) persist(op string, fn func(ctx context.Context) error) {
	if s.backend == nil {
		return
	}
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Warn("Best-effort backend write failed", zap.String("op", op), zap.Error(err))
		}
	}()
}

// Wait blocks until every in-flight best-effort write has finished.
func (s *Store) Wait() {
	s.writes.Wait()
}
