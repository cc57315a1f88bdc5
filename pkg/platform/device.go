package platform

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/flagstage/pkg/alarm"
	"github.com/cuemby/flagstage/pkg/clock"
	"github.com/cuemby/flagstage/pkg/events"
	"github.com/cuemby/flagstage/pkg/health"
	"github.com/cuemby/flagstage/pkg/log"
	"github.com/cuemby/flagstage/pkg/network"
	"github.com/cuemby/flagstage/pkg/scheduler"
	"github.com/cuemby/flagstage/pkg/types"
)

// ErrHookNotConfigured is returned by operations that need a device hook
// the configuration does not provide
var ErrHookNotConfigured = errors.New("hook not configured")

// Hooks are host commands implementing the device-specific operations.
// Each is an argv; arguments documented per field are appended.
type Hooks struct {
	// PrepareEscrow <token>: exit 0 when the request was accepted
	PrepareEscrow []string `yaml:"prepare_escrow"`

	// EscrowStatus: exit 0 prepared, 1 not prepared
	EscrowStatus []string `yaml:"escrow_status"`

	// RebootAndApply <reason> <slot-switch>: only returns on failure, its
	// exit code is the failure code
	RebootAndApply []string `yaml:"reboot_and_apply"`

	// Reboot <reason>: replaces the reboot system call when set
	Reboot []string `yaml:"reboot"`

	// DeviceSecure: exit 0 secure, 1 no screen lock
	DeviceSecure []string `yaml:"device_secure"`

	// Telephony: prints the SIM state document as JSON
	Telephony []string `yaml:"telephony"`

	// SimPinPrepare: exit code is the replay result code
	SimPinPrepare []string `yaml:"sim_pin_prepare"`

	Timeout time.Duration `yaml:"timeout"`
}

// Config configures a Device
type Config struct {
	Window types.RebootWindow
	Hooks  Hooks

	// SystemPinStorage overrides the OEM SIM PIN storage toggle; nil
	// leaves it to the telephony document
	SystemPinStorage *bool

	// EscrowPollInterval and EscrowTimeout bound how long a preparation
	// request is watched for capture
	EscrowPollInterval time.Duration
	EscrowTimeout      time.Duration

	// DryRun logs reboots instead of performing them
	DryRun bool
}

const (
	defaultHookTimeout        = 30 * time.Second
	defaultEscrowPollInterval = 10 * time.Second
	defaultEscrowTimeout      = 10 * time.Minute
)

// Device is the production scheduler.Injector and simpin.Telephony
type Device struct {
	cfg     Config
	clock   clock.Clock
	alarm   *alarm.Alarm
	network *network.Monitor
	broker  *events.Broker
	logger  zerolog.Logger

	reboot func(reason string) error

	mu          sync.Mutex
	cancelWatch context.CancelFunc
}

// NewDevice creates a Device. The reboot alarm it owns publishes
// EventRebootAlarm on broker when it fires.
func NewDevice(cfg Config, c clock.Clock, monitor *network.Monitor, broker *events.Broker) *Device {
	if cfg.Hooks.Timeout <= 0 {
		cfg.Hooks.Timeout = defaultHookTimeout
	}
	if cfg.EscrowPollInterval <= 0 {
		cfg.EscrowPollInterval = defaultEscrowPollInterval
	}
	if cfg.EscrowTimeout <= 0 {
		cfg.EscrowTimeout = defaultEscrowTimeout
	}

	d := &Device{
		cfg:     cfg,
		clock:   c,
		network: monitor,
		broker:  broker,
		logger:  log.WithComponent("platform"),
		reboot:  systemReboot,
	}
	d.alarm = alarm.New(c, func(at time.Time) {
		broker.Publish(events.NewEvent(events.EventRebootAlarm, "reboot alarm fired", map[string]string{
			"at": at.Format(time.RFC3339),
		}))
	})
	return d
}

// Alarm exposes the reboot alarm
func (d *Device) Alarm() *alarm.Alarm {
	return d.alarm
}

func (d *Device) Now() time.Time { return d.clock.Now() }

func (d *Device) SinceBoot() time.Duration { return d.clock.SinceBoot() }

func (d *Device) Window() types.RebootWindow { return d.cfg.Window }

func (d *Device) SetRebootAlarm(at time.Time) { d.alarm.Set(at) }

func (d *Device) IsNetworkValidated(ctx context.Context) bool {
	return d.network.Validated(ctx)
}

// TriggerRebootOnNetworkAvailable publishes EventNetworkAvailable once the
// network validates
func (d *Device) TriggerRebootOnNetworkAvailable(ctx context.Context) {
	if last := d.network.LastResult(); !last.CheckedAt.IsZero() {
		d.logger.Info().Str("last_probe", last.Message).Msg("Reboot deferred until network validates")
	}
	d.network.NotifyWhenAvailable(ctx, func() {
		d.broker.Publish(events.NewEvent(events.EventNetworkAvailable, "network validated", nil))
	})
}

// IsDeviceSecure runs the lock state hook. Without an answer the device is
// treated as secure, which keeps the escrow path.
func (d *Device) IsDeviceSecure(ctx context.Context) bool {
	if len(d.cfg.Hooks.DeviceSecure) == 0 {
		return true
	}
	out, err := d.hook(d.cfg.Hooks.DeviceSecure).Run(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Lock state unknown, assuming secure")
		return true
	}
	switch out.ExitCode {
	case 0:
		return true
	case 1:
		return false
	default:
		d.logger.Warn().Int("code", out.ExitCode).Msg("Lock state unknown, assuming secure")
		return true
	}
}

// RebootAndApply runs the escrow reboot hook. Returning at all means the
// reboot did not happen.
func (d *Device) RebootAndApply(ctx context.Context, reason string, slotSwitch bool) (int, error) {
	if d.cfg.DryRun {
		d.logger.Warn().Str("reason", reason).Msg("Dry run: skipping unattended reboot")
		d.rearm()
		return 0, nil
	}
	if len(d.cfg.Hooks.RebootAndApply) == 0 {
		return 0, fmt.Errorf("reboot and apply: %w", ErrHookNotConfigured)
	}

	d.logger.Info().Str("reason", reason).Msg("Rebooting through escrow")
	out, err := d.hook(d.cfg.Hooks.RebootAndApply).Run(ctx, reason, strconv.FormatBool(slotSwitch))
	if err != nil {
		return 0, err
	}
	if out.ExitCode == 0 {
		// The hook must not return after a successful reboot request
		return 0, errors.New("reboot hook returned without rebooting")
	}
	return out.ExitCode, nil
}

// RegularReboot reboots without escrow through the reboot hook or the
// reboot system call
func (d *Device) RegularReboot(ctx context.Context, reason string) error {
	if d.cfg.DryRun {
		d.logger.Warn().Str("reason", reason).Msg("Dry run: skipping regular reboot")
		d.rearm()
		return nil
	}

	d.logger.Info().Str("reason", reason).Msg("Rebooting")
	if len(d.cfg.Hooks.Reboot) == 0 {
		return d.reboot(reason)
	}
	out, err := d.hook(d.cfg.Hooks.Reboot).Run(ctx, reason)
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("reboot hook exited with status %d", out.ExitCode)
	}
	return nil
}

// rearm arms the next candidate time after a skipped reboot. The device
// stays up in a dry run, and without it nothing would evaluate again.
func (d *Device) rearm() {
	now := d.clock.Now()
	at := scheduler.NextRebootTime(now, d.cfg.Window)
	if !at.After(now) {
		return
	}
	d.alarm.Set(at)
}

// Close stops the alarm and any escrow watch in progress
func (d *Device) Close() {
	d.alarm.Cancel()
	d.network.Cancel()
	d.mu.Lock()
	if d.cancelWatch != nil {
		d.cancelWatch()
		d.cancelWatch = nil
	}
	d.mu.Unlock()
}

func (d *Device) hook(argv []string) *health.ExecChecker {
	return health.NewExecChecker(argv).WithTimeout(d.cfg.Hooks.Timeout)
}
