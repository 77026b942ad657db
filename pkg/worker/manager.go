package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/queuectl/queuectl/pkg/executor"
	"github.com/queuectl/queuectl/pkg/observability/logger"
	"github.com/queuectl/queuectl/pkg/queue"
)

// DefaultStopTimeout is how long Stop waits for workers to finish their
// in-flight jobs before giving up.
const DefaultStopTimeout = 10 * time.Second

// ManagerConfig holds worker pool configuration.
type ManagerConfig struct {
	// Count is the number of concurrent workers.
	Count int
	// IdleInterval is the per-worker sleep when the queue is empty.
	IdleInterval time.Duration
	// StopTimeout bounds the wait for workers during Stop.
	StopTimeout time.Duration
}

func (c *ManagerConfig) normalize() {
	if c.Count <= 0 {
		c.Count = 1
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = DefaultIdleInterval
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
}

// Manager owns a pool of workers over one shared store and drives their
// lifecycle as a unit.
type Manager struct {
	config ManagerConfig
	store  queue.Store
	exec   *executor.Executor
	policy RetryPolicy
	log    logger.Logger

	lifecycleMu sync.Mutex
	started     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	workers     []*Worker
}

// NewManager creates a worker pool manager.
func NewManager(cfg ManagerConfig, store queue.Store, exec *executor.Executor, policy RetryPolicy, log logger.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if exec == nil {
		return nil, errors.New("executor is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	cfg.normalize()

	return &Manager{
		config: cfg,
		store:  store,
		exec:   exec,
		policy: policy,
		log:    log,
	}, nil
}

// Start launches the configured number of workers and returns once
// every one of them is running. Each worker runs until Stop is called
// or ctx is canceled.
func (m *Manager) Start(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.started {
		return errors.New("worker pool already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.workers = make([]*Worker, 0, m.config.Count)

	for i := 0; i < m.config.Count; i++ {
		id := fmt.Sprintf("worker-%d", i+1)
		w, err := New(id, m.store, m.exec, m.policy, m.config.IdleInterval, m.log)
		if err != nil {
			cancel()
			return fmt.Errorf("failed to create %s: %w", id, err)
		}
		m.workers = append(m.workers, w)
	}

	for _, w := range m.workers {
		m.wg.Add(1)
		go func(w *Worker) {
			defer m.wg.Done()
			if err := w.Run(runCtx); err != nil {
				m.log.Error("worker exited with error", "worker_id", w.ID(), "error", err)
			}
		}(w)
	}
	for _, w := range m.workers {
		<-w.Running()
	}

	m.started = true
	m.log.Info("worker pool started", "count", m.config.Count)
	return nil
}

// Stop signals every worker and waits up to StopTimeout for them to
// finish their in-flight jobs. Workers still running afterwards are
// reported as an error; their jobs stay claimed in the store.
func (m *Manager) Stop() error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if !m.started {
		return nil
	}

	m.log.Info("stopping worker pool", "timeout", m.config.StopTimeout)
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.started = false
		m.log.Info("worker pool stopped")
		return nil
	case <-time.After(m.config.StopTimeout):
		var stuck []string
		for _, w := range m.workers {
			if w.Status() != StatusStopped {
				stuck = append(stuck, w.ID())
			}
		}
		m.log.Warn("timed out waiting for workers to stop", "workers", stuck)
		m.started = false
		return fmt.Errorf("workers did not stop within %s: %v", m.config.StopTimeout, stuck)
	}
}

// Workers returns the current worker pool. Only valid after Start.
func (m *Manager) Workers() []*Worker {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	workers := make([]*Worker, len(m.workers))
	copy(workers, m.workers)
	return workers
}
