// Package health polls the backend liveness endpoint on a schedule.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Status string

const (
	StatusUnknown Status = "unknown"
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// CheckFunc reports whether the backend answered its health check.
type CheckFunc func(ctx context.Context) error

type Monitor struct {
	cron     *cron.Cron
	check    CheckFunc
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu        sync.RWMutex
	status    Status
	lastCheck time.Time
	lastErr   string
}

func NewMonitor(check CheckFunc, interval, timeout time.Duration, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		check:    check,
		interval: interval,
		timeout:  timeout,
		logger:   logger.Named("health"),
		status:   StatusUnknown,
	}
}

// Start runs one check immediately and then one every interval.
func (m *Monitor) Start() error {
	if _, err := m.cron.AddFunc(fmt.Sprintf("@every %s", m.interval), m.CheckNow); err != nil {
		return fmt.Errorf("failed to register health check: %w", err)
	}
	go m.CheckNow()
	m.cron.Start()
	m.logger.Info("Backend health monitor started", zap.Duration("interval", m.interval))
	return nil
}

// Stop waits for a running check to finish.
func (m *Monitor) Stop() {
	<-m.cron.Stop().Done()
	m.logger.Info("Backend health monitor stopped")
}

// CheckNow checks the backend once and records the outcome.
func (m *Monitor) CheckNow() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	err := m.check(ctx)

	m.mu.Lock()
	prev := m.status
	m.lastCheck = time.Now()
	if err != nil {
		m.status = StatusOffline
		m.lastErr = err.Error()
	} else {
		m.status = StatusOnline
		m.lastErr = ""
	}
	next := m.status
	m.mu.Unlock()

	if prev != next {
		if err != nil {
			m.logger.Warn("Backend went offline", zap.Error(err))
		} else {
			m.logger.Info("Backend online")
		}
	}
}

// Snapshot is the last check outcome.
type Snapshot struct {
	Status    Status    `json:"status"`
	LastCheck time.Time `json:"last_check,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{Status: m.status, LastCheck: m.lastCheck, Error: m.lastErr}
}
