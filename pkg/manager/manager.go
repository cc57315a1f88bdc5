package manager

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/flagstage/pkg/bootstrap"
	"github.com/cuemby/flagstage/pkg/clock"
	"github.com/cuemby/flagstage/pkg/config"
	"github.com/cuemby/flagstage/pkg/deviceconfig"
	"github.com/cuemby/flagstage/pkg/events"
	"github.com/cuemby/flagstage/pkg/health"
	"github.com/cuemby/flagstage/pkg/log"
	"github.com/cuemby/flagstage/pkg/metrics"
	"github.com/cuemby/flagstage/pkg/network"
	"github.com/cuemby/flagstage/pkg/platform"
	"github.com/cuemby/flagstage/pkg/scheduler"
	"github.com/cuemby/flagstage/pkg/simpin"
	"github.com/cuemby/flagstage/pkg/staging"
	"github.com/cuemby/flagstage/pkg/storage"
)

// Manager owns the daemon's components and their lifecycle
type Manager struct {
	cfg    *config.Config
	clock  clock.Clock
	logger zerolog.Logger

	store     storage.Store
	props     *deviceconfig.Service
	broker    *events.Broker
	collector *metrics.Collector
	monitor   *network.Monitor
	device    *platform.Device
	scheduler *scheduler.Scheduler

	server     *http.Server
	serverAddr string
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// Option configures a Manager
type Option func(*Manager)

// WithClock replaces the host clock
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// NewManager opens the store and builds every component. Nothing runs until
// Start.
func NewManager(cfg *config.Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:    cfg,
		clock:  clock.Real(loc),
		logger: log.WithComponent("manager"),
		store:  store,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.broker = events.NewBroker()
	m.broker.Start()

	m.props = deviceconfig.NewService(store, deviceconfig.WithBroker(m.broker))
	m.collector = metrics.NewCollector(store, 0)
	m.monitor = network.NewMonitor(m.clock, internetProbe(cfg), validationProbe(cfg), cfg.Network.PollInterval)
	m.device = platform.NewDevice(cfg.PlatformConfig(), m.clock, m.monitor, m.broker)

	metrics.RegisterComponent("store", true, "")
	if cfg.Reboot.Enabled {
		schedOpts := []scheduler.Option{scheduler.WithBroker(m.broker)}
		if cfg.Reboot.SimPinReplay {
			schedOpts = append(schedOpts, scheduler.WithSimPin(simpin.NewManager(m.device)))
		}
		m.scheduler = scheduler.NewScheduler(m.device, schedOpts...)
		metrics.SetCriticalComponents(metrics.DefaultCriticalComponents...)
	} else {
		metrics.SetCriticalComponents("store")
	}

	return m, nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	timer := metrics.NewTimer()
	store, err := storage.Open(cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	timer.ObserveDurationVec(metrics.StoreOperationDuration, "open")
	return store, nil
}

func internetProbe(cfg *config.Config) health.Checker {
	if cfg.Network.ProbeAddress == "" {
		return nil
	}
	return health.NewTCPChecker(cfg.Network.ProbeAddress).WithTimeout(cfg.Network.ProbeTimeout)
}

func validationProbe(cfg *config.Config) health.Checker {
	if cfg.Network.ValidationURL == "" {
		return nil
	}
	return health.NewHTTPChecker(cfg.Network.ValidationURL).WithTimeout(cfg.Network.ProbeTimeout)
}

// Start launches the metrics collector, the scheduler loop and the metrics
// server. The scheduler is not armed until OnBootCompleted.
func (m *Manager) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)

	if m.cfg.Metrics.Addr != "" {
		ln, err := net.Listen("tcp", m.cfg.Metrics.Addr)
		if err != nil {
			m.cancel()
			return fmt.Errorf("failed to listen on %s: %w", m.cfg.Metrics.Addr, err)
		}
		m.server = &http.Server{
			Handler:           m.routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		m.serverAddr = ln.Addr().String()
		m.logger.Info().Str("addr", m.serverAddr).Msg("Metrics server listening")
	}

	m.collector.Start()

	if m.scheduler != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.scheduler.Run(ctx)
		}()
	}
	return nil
}

func (m *Manager) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	return mux
}

// BootResult summarizes the boot-completed work
type BootResult struct {
	Bootstrap bootstrap.Status
	Staged    staging.Result
}

// OnBootCompleted applies bootstrap defaults and staged values, then
// publishes EventBootCompleted, which arms the scheduler when unattended
// reboots are enabled. A broken bootstrap file is logged and does not stop
// the staged values from applying.
func (m *Manager) OnBootCompleted(ctx context.Context) BootResult {
	var result BootResult

	status, err := bootstrap.ApplyIfNeeded(m.props, m.cfg.Bootstrap.Path)
	if err != nil {
		m.logger.Error().Err(err).Str("path", m.cfg.Bootstrap.Path).Msg("Failed to apply bootstrap values")
	} else {
		m.logger.Info().Str("status", string(status)).Msg("Bootstrap values checked")
	}
	result.Bootstrap = status

	result.Staged = staging.Apply(m.props)
	m.broker.Publish(events.NewEvent(events.EventStagedApplied, "staged values applied", map[string]string{
		"applied":   fmt.Sprint(result.Staged.Applied),
		"malformed": fmt.Sprint(result.Staged.Malformed),
		"failed":    fmt.Sprint(result.Staged.Failed),
	}))

	m.broker.Publish(events.NewEvent(events.EventBootCompleted, "boot completed", nil))
	if m.scheduler == nil {
		m.logger.Info().Msg("Unattended reboot disabled")
	}
	return result
}

// EscrowCaptured forwards an externally observed escrow capture to the
// scheduler
func (m *Manager) EscrowCaptured() {
	m.broker.Publish(events.NewEvent(events.EventEscrowCaptured, "lock screen credential captured", nil))
}

// MetricsAddr is the address the metrics server listens on, empty when it
// is disabled
func (m *Manager) MetricsAddr() string {
	return m.serverAddr
}

// Properties is the configuration service
func (m *Manager) Properties() *deviceconfig.Service {
	return m.props
}

// Broker is the event broker shared by every component
func (m *Manager) Broker() *events.Broker {
	return m.broker
}

// Scheduler is nil when unattended reboots are disabled
func (m *Manager) Scheduler() *scheduler.Scheduler {
	return m.scheduler
}

// Device is the platform the scheduler drives
func (m *Manager) Device() *platform.Device {
	return m.device
}

// Shutdown stops every component and closes the store
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
		m.collector.Stop()
	}
	if m.server != nil {
		if err := m.server.Shutdown(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("Metrics server shutdown")
		}
	}
	m.device.Close()
	m.wg.Wait()
	m.broker.Stop()

	if err := m.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	m.logger.Info().Msg("Shutdown complete")
	return nil
}
