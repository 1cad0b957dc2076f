// Package lease serializes access to the exclusive deep-scoring host and owns
// its power lifecycle. Exactly one record holds the lease at a time; everyone
// else waits in FIFO order.
package lease

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"snatcher/internal/logging"
	"snatcher/internal/metrics"
	"snatcher/internal/services"
)

// State describes where the host is in its power lifecycle.
type State string

const (
	// StateAsleep means the host is suspended and needs a wake before use.
	StateAsleep State = "asleep"
	// StateWaking means a wake is in flight on behalf of the first waiter.
	StateWaking State = "waking"
	// StateReady means the host is awake with no current holder.
	StateReady State = "ready"
	// StateBusy means a record holds the lease.
	StateBusy State = "busy"
	// StateCooldown means the host is awake and idle; the idle timer is running.
	StateCooldown State = "cooldown"
)

// ResourceController abstracts the host power operations.
type ResourceController interface {
	// Wake brings the host to readiness, blocking until it answers probes or
	// the attempt budget is exhausted.
	Wake(ctx context.Context) error
	// Sleep suspends the host. Best effort.
	Sleep(ctx context.Context) error
	// Probe reports current reachability.
	Probe(ctx context.Context) bool
}

// Snapshot is a point-in-time view of the manager for status surfaces.
type Snapshot struct {
	State   State  `json:"state"`
	Holder  string `json:"holder,omitempty"`
	Waiting int    `json:"waiting"`
}

type waiter struct {
	recordID string
	granted  chan error
}

// Timer is the stoppable handle behind the idle countdown. Tests substitute
// their own implementation via WithTimerFunc.
type Timer interface {
	Stop() bool
}

type realTimer struct{ *time.Timer }

// Manager is the single point of truth for host state. One instance per
// daemon.
type Manager struct {
	controller ResourceController
	idle       time.Duration
	logger     *slog.Logger
	sink       metrics.Sink
	afterFunc  func(time.Duration, func()) Timer

	mu        sync.Mutex
	state     State
	holder    string
	waiters   []*waiter
	idleTimer Timer
}

// Option customizes a Manager.
type Option func(*Manager)

// WithMetrics attaches a metrics sink.
func WithMetrics(sink metrics.Sink) Option {
	return func(m *Manager) {
		if sink != nil {
			m.sink = sink
		}
	}
}

// WithTimerFunc overrides idle timer creation, for tests.
func WithTimerFunc(fn func(time.Duration, func()) Timer) Option {
	return func(m *Manager) {
		if fn != nil {
			m.afterFunc = fn
		}
	}
}

// NewManager builds a lease manager. The host is assumed asleep until the
// first acquisition proves otherwise; Wake short-circuits when a probe
// already answers.
func NewManager(controller ResourceController, idle time.Duration, logger *slog.Logger, opts ...Option) *Manager {
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	m := &Manager{
		controller: controller,
		idle:       idle,
		logger:     logging.NewComponentLogger(logger, "lease"),
		sink:       metrics.Noop{},
		state:      StateAsleep,
		afterFunc: func(d time.Duration, fn func()) Timer {
			return realTimer{time.AfterFunc(d, fn)}
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire blocks until the record holds the lease, the context is cancelled,
// or the host cannot be woken. The caller must Release with the same record
// ID when finished.
func (m *Manager) Acquire(ctx context.Context, recordID string) error {
	start := time.Now()
	m.mu.Lock()

	switch m.state {
	case StateReady, StateCooldown:
		m.grantLocked(recordID)
		m.mu.Unlock()
		m.observeWait(start, "warm")
		return nil

	case StateAsleep:
		m.state = StateWaking
		m.mu.Unlock()
		m.logger.Info("waking host", logging.String(logging.FieldRecordID, recordID))
		m.sink.Increment("lease.wake_attempts", nil)

		err := m.controller.Wake(ctx)

		m.mu.Lock()
		if err != nil {
			m.state = StateAsleep
			m.failWaitersLocked(err)
			m.mu.Unlock()
			m.sink.Increment("lease.wake_failures", nil)
			return err
		}
		m.grantLocked(recordID)
		m.mu.Unlock()
		m.observeWait(start, "cold")
		return nil

	case StateWaking, StateBusy:
		w := &waiter{recordID: recordID, granted: make(chan error, 1)}
		m.waiters = append(m.waiters, w)
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			m.removeWaiter(w)
			return services.Wrap(services.ErrTransient, "lease", "acquire", "cancelled while waiting", ctx.Err())
		case err := <-w.granted:
			if err != nil {
				return err
			}
			m.observeWait(start, "queued")
			return nil
		}

	default:
		m.mu.Unlock()
		return errors.New("lease manager in unknown state")
	}
}

// Release returns the lease. When waiters are queued the host stays busy and
// the lease passes warm to the next in line; otherwise the idle countdown
// starts.
func (m *Manager) Release(recordID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateBusy || m.holder != recordID {
		m.logger.Warn("release from non-holder ignored",
			logging.String(logging.FieldRecordID, recordID),
			logging.String("holder", m.holder))
		return
	}

	if len(m.waiters) > 0 {
		next := m.waiters[0]
		m.waiters = m.waiters[1:]
		m.holder = next.recordID
		next.granted <- nil
		m.logger.Debug("lease handed off",
			logging.String(logging.FieldRecordID, next.recordID))
		return
	}

	m.holder = ""
	m.state = StateCooldown
	m.startIdleTimerLocked()
	m.logger.Debug("lease released, cooldown started")
}

// Snapshot reports the current state for status surfaces.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, Holder: m.holder, Waiting: len(m.waiters)}
}

// grantLocked hands the lease to recordID. Callers hold m.mu.
func (m *Manager) grantLocked(recordID string) {
	m.stopIdleTimerLocked()
	m.state = StateBusy
	m.holder = recordID
	m.sink.Increment("lease.acquired", nil)
}

// failWaitersLocked drains the queue with err so nobody waits on a host that
// never woke. Callers hold m.mu.
func (m *Manager) failWaitersLocked(err error) {
	for _, w := range m.waiters {
		w.granted <- err
	}
	m.waiters = nil
}

func (m *Manager) startIdleTimerLocked() {
	m.stopIdleTimerLocked()
	m.idleTimer = m.afterFunc(m.idle, m.idleExpired)
}

func (m *Manager) stopIdleTimerLocked() {
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
}

// idleExpired fires when the cooldown elapses without a new acquisition.
func (m *Manager) idleExpired() {
	m.mu.Lock()
	if m.state != StateCooldown || len(m.waiters) > 0 {
		m.mu.Unlock()
		return
	}
	m.state = StateAsleep
	m.idleTimer = nil
	m.mu.Unlock()

	m.logger.Info("idle timeout reached, suspending host")
	m.sink.Increment("lease.sleeps", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.controller.Sleep(ctx); err != nil {
		m.logger.Warn("sleep request failed", logging.Error(err))
	}
}

func (m *Manager) removeWaiter(target *waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.waiters {
		if w == target {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
	// Already granted; pass it straight back so the lease is not leaked.
	select {
	case err := <-target.granted:
		if err == nil {
			m.releaseLocked(target.recordID)
		}
	default:
	}
}

// releaseLocked mirrors Release for callers already holding m.mu.
func (m *Manager) releaseLocked(recordID string) {
	if m.state != StateBusy || m.holder != recordID {
		return
	}
	if len(m.waiters) > 0 {
		next := m.waiters[0]
		m.waiters = m.waiters[1:]
		m.holder = next.recordID
		next.granted <- nil
		return
	}
	m.holder = ""
	m.state = StateCooldown
	m.startIdleTimerLocked()
}

func (m *Manager) observeWait(start time.Time, path string) {
	m.sink.Observe("lease.wait_seconds", time.Since(start).Seconds(), map[string]string{"path": path})
}
