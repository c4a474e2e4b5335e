package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/behflow/behflow/internal/storage"
)

// Manager 统一托管后台作业（每日改期、审计清理）的生命周期
type Manager struct {
	cfg Config

	rescheduler *Rescheduler
	retention   *AuditRetention

	started atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	runErrMu sync.Mutex
	runErr   error
}

func NewManager(cfg Config, store *storage.Storage, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}

	m := &Manager{cfg: cfg}

	if cfg.Reschedule.Enabled {
		r, err := NewRescheduler(cfg.Reschedule, store, logger)
		if err != nil {
			return nil, err
		}
		m.rescheduler = r
	}
	if cfg.Retention.Enabled {
		c, err := NewAuditRetention(cfg.Retention, store, logger)
		if err != nil {
			return nil, err
		}
		m.retention = c
	}
	return m, nil
}

func (m *Manager) Start(ctx context.Context) error {
	if m == nil {
		return errors.New("manager is nil")
	}
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("manager already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	run := func(job func(context.Context) error) {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := job(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				m.runErrMu.Lock()
				if m.runErr == nil {
					m.runErr = err
				}
				m.runErrMu.Unlock()
				m.cancel()
			}
		}()
	}

	if m.rescheduler != nil {
		run(m.rescheduler.Run)
	}
	if m.retention != nil {
		run(m.retention.Run)
	}

	return nil
}

func (m *Manager) Stop() {
	if m == nil || m.cancel == nil {
		return
	}
	m.cancel()
}

func (m *Manager) Wait() error {
	if m == nil {
		return nil
	}
	m.wg.Wait()
	m.runErrMu.Lock()
	defer m.runErrMu.Unlock()
	return m.runErr
}
