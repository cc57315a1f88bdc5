package network

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/flagstage/pkg/clock"
	"github.com/cuemby/flagstage/pkg/health"
	"github.com/cuemby/flagstage/pkg/log"
	"github.com/cuemby/flagstage/pkg/metrics"
)

// DefaultPollInterval is how often a pending availability request probes
const DefaultPollInterval = time.Minute

// Monitor answers whether the device has validated internet access. A
// network is validated when the reachability probe and the validation
// probe both pass. A nil probe always passes.
type Monitor struct {
	clock      clock.Clock
	internet   health.Checker
	validation health.Checker
	interval   time.Duration
	logger     zerolog.Logger

	mu      sync.Mutex
	status  *health.Status
	pending context.CancelFunc
}

// NewMonitor creates a Monitor. interval <= 0 selects DefaultPollInterval.
func NewMonitor(c clock.Clock, internet, validation health.Checker, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Monitor{
		clock:      c,
		internet:   internet,
		validation: validation,
		interval:   interval,
		logger:     log.WithComponent("network"),
		status:     health.NewStatus(),
	}
}

// Validated probes once
func (m *Monitor) Validated(ctx context.Context) bool {
	result := m.probe(ctx)

	m.mu.Lock()
	m.status.Update(result, health.Config{Retries: 1})
	m.mu.Unlock()

	metrics.NetworkValidated.Set(metrics.BoolGauge(result.Healthy))
	metrics.UpdateComponent("network", result.Healthy, result.Message)
	if !result.Healthy {
		m.logger.Debug().Str("reason", result.Message).Msg("Network not validated")
	}
	return result.Healthy
}

func (m *Monitor) probe(ctx context.Context) health.Result {
	for _, checker := range []health.Checker{m.internet, m.validation} {
		if checker == nil {
			continue
		}
		if r := checker.Check(ctx); !r.Healthy {
			return r
		}
	}
	return health.Result{Healthy: true, Message: "validated", CheckedAt: m.clock.Now()}
}

// LastResult returns the outcome of the most recent probe
func (m *Monitor) LastResult() health.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.LastResult
}

// NotifyWhenAvailable calls fn once, from a background goroutine, at the
// first poll that finds the network validated. Only one request is
// outstanding at a time; a new one replaces the previous. The request ends
// without calling fn when ctx is done or Cancel is called.
func (m *Monitor) NotifyWhenAvailable(ctx context.Context, fn func()) {
	ctx, cancel := context.WithCancel(ctx)
	ticker := m.clock.NewTicker(m.interval)

	m.mu.Lock()
	if m.pending != nil {
		m.pending()
	}
	m.pending = cancel
	m.mu.Unlock()

	m.logger.Info().Dur("interval", m.interval).Msg("Waiting for validated network")

	go func() {
		defer ticker.Stop()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !m.Validated(ctx) {
					continue
				}
				if !m.release(ctx) {
					return
				}
				m.logger.Info().Msg("Network available")
				fn()
				return
			}
		}
	}()
}

// release clears the pending request if it is still ours
func (m *Monitor) release(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	m.pending = nil
	return true
}

// Cancel drops the outstanding availability request, if any
func (m *Monitor) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil {
		m.pending()
		m.pending = nil
	}
}
