package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/flagstage/pkg/events"
	"github.com/cuemby/flagstage/pkg/log"
	"github.com/cuemby/flagstage/pkg/metrics"
	"github.com/cuemby/flagstage/pkg/types"
)

// Injector is every side effect the scheduler has on the device
type Injector interface {
	// Now returns the current wall-clock time in the device's zone
	Now() time.Time

	// SinceBoot returns monotonic time elapsed since the last boot
	SinceBoot() time.Duration

	// Window returns the configured reboot window
	Window() types.RebootWindow

	// SetRebootAlarm arms the one reboot alarm, replacing any pending one
	SetRebootAlarm(at time.Time)

	// TriggerRebootOnNetworkAvailable requests one reboot attempt as soon
	// as a validated network shows up
	TriggerRebootOnNetworkAvailable(ctx context.Context)

	IsNetworkValidated(ctx context.Context) bool

	// IsDeviceSecure reports whether the device has a screen lock
	IsDeviceSecure(ctx context.Context) bool

	// PrepareForUnattendedUpdate asks the platform to capture the lock
	// credential into escrow. onCaptured is called once it has been.
	PrepareForUnattendedUpdate(ctx context.Context, token string, onCaptured func()) error

	IsPreparedForUnattendedUpdate(ctx context.Context) (bool, error)

	// RebootAndApply reboots through escrow. It only returns on failure,
	// with a non-zero code or an error.
	RebootAndApply(ctx context.Context, reason string, slotSwitch bool) (int, error)

	// RegularReboot reboots without escrow
	RegularReboot(ctx context.Context, reason string) error
}

// SimPinPreparer arms SIM PIN replay ahead of a reboot
type SimPinPreparer interface {
	Prepare(ctx context.Context) bool
}

// Scheduler is the unattended reboot state machine. It keeps no state
// besides the escrow-captured latch; every evaluation is derived from the
// injector at the time it runs.
type Scheduler struct {
	injector Injector
	simPin   SimPinPreparer
	broker   *events.Broker
	sub      events.Subscriber
	logger   zerolog.Logger

	lskfCaptured atomic.Bool
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithSimPin enables the SIM PIN replay precondition
func WithSimPin(p SimPinPreparer) Option {
	return func(s *Scheduler) { s.simPin = p }
}

// WithBroker publishes each decision as EventRebootDecision and lets Run
// consume trigger events
func WithBroker(b *events.Broker) Option {
	return func(s *Scheduler) { s.broker = b }
}

// NewScheduler creates a new scheduler
func NewScheduler(injector Injector, opts ...Option) *Scheduler {
	s := &Scheduler{
		injector: injector,
		logger:   log.WithComponent("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.broker != nil {
		// Subscribe now so triggers published before Run starts are queued
		s.sub = s.broker.SubscribeTypes(
			events.EventBootCompleted,
			events.EventEscrowCaptured,
			events.EventRebootAlarm,
			events.EventNetworkAvailable,
		)
	}
	return s
}

// Start arms the scheduler after boot: escrow preparation starts right away
// and the first reboot alarm is set
func (s *Scheduler) Start(ctx context.Context) {
	s.PrepareUnattendedReboot(ctx)
	s.ScheduleReboot()
}

// Run dispatches broker events to the scheduler until ctx is done. Events
// are handled one at a time, so evaluations never overlap. Events published
// after NewScheduler returns are delivered; triggers are never dropped.
func (s *Scheduler) Run(ctx context.Context) {
	if s.broker == nil {
		<-ctx.Done()
		return
	}
	sub := s.sub
	defer s.broker.Unsubscribe(sub)

	metrics.RegisterComponent("scheduler", true, "")
	defer metrics.UpdateComponent("scheduler", false, "stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			s.handle(ctx, ev)
		}
	}
}

func (s *Scheduler) handle(ctx context.Context, ev *events.Event) {
	switch ev.Type {
	case events.EventBootCompleted:
		s.Start(ctx)
	case events.EventEscrowCaptured:
		s.OnEscrowCaptured()
	case events.EventRebootAlarm, events.EventNetworkAvailable:
		s.TryRebootOrSchedule(ctx)
	}
}

// OnEscrowCaptured records that the lock credential is in escrow. It does
// not trigger an evaluation.
func (s *Scheduler) OnEscrowCaptured() {
	s.lskfCaptured.Store(true)
	metrics.EscrowCaptured.Set(1)
	s.logger.Info().Msg("Lock screen credential captured")
}

// LskfCaptured reports whether escrow capture has been observed since start
func (s *Scheduler) LskfCaptured() bool {
	return s.lskfCaptured.Load()
}

// PrepareUnattendedReboot requests escrow preparation. Devices without a
// screen lock need none. Failures are logged; the next evaluation retries.
func (s *Scheduler) PrepareUnattendedReboot(ctx context.Context) {
	s.logger.Info().Msg("Preparing for unattended reboot")
	if !s.injector.IsDeviceSecure(ctx) {
		return
	}

	token := uuid.New().String()
	if err := s.injector.PrepareForUnattendedUpdate(ctx, token, s.OnEscrowCaptured); err != nil {
		metrics.EscrowPrepareTotal.WithLabelValues("failed").Inc()
		s.logger.Warn().Err(err).Msg("Failed to request escrow preparation")
		return
	}
	metrics.EscrowPrepareTotal.WithLabelValues("requested").Inc()
}

// NextRebootTime is StartHour:00 local time, FrequencyDays calendar days
// after the date of now
func NextRebootTime(now time.Time, w types.RebootWindow) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+w.FrequencyDays, w.StartHour, 0, 0, 0, now.Location())
}

// ScheduleReboot arms the reboot alarm for the next candidate time and
// returns it. Every reschedule goes through here. It arms nothing and
// returns false if the candidate is already in the past.
func (s *Scheduler) ScheduleReboot() (time.Time, bool) {
	now := s.injector.Now()
	at := NextRebootTime(now, s.injector.Window())
	if at.Before(now) {
		s.logger.Warn().Time("at", at).Msg("Reboot time has already passed")
		return time.Time{}, false
	}

	s.logger.Info().Time("at", at).Msg("Scheduling unattended reboot")
	s.injector.SetRebootAlarm(at)
	return at, true
}

// TryRebootOrSchedule evaluates every precondition in order and either
// reboots or re-arms a retry. The returned decision is never one that
// leaves the device without a pending retry, unless it is rebooting.
func (s *Scheduler) TryRebootOrSchedule(ctx context.Context) types.Decision {
	decision := s.evaluate(ctx)
	if decision.Rebooting() {
		// Only reached when the reboot request returned, as in a dry run
		s.logger.Warn().Str("decision", string(decision)).Msg("Reboot requested but device is still up")
	}

	metrics.RebootDecisionsTotal.WithLabelValues(string(decision)).Inc()
	if s.broker != nil {
		s.broker.Publish(events.NewEvent(events.EventRebootDecision, string(decision), map[string]string{
			"decision": string(decision),
		}))
	}
	return decision
}

func (s *Scheduler) evaluate(ctx context.Context) types.Decision {
	s.logger.Debug().Msg("Attempting unattended reboot")
	window := s.injector.Window()

	if elapsed := s.injector.SinceBoot(); elapsed < window.Frequency() {
		s.logger.Info().Dur("since_boot", elapsed).Msg("Rebooted too recently, reschedule")
		s.ScheduleReboot()
		return types.DecisionRescheduleThrottled
	}

	if !s.injector.IsDeviceSecure(ctx) {
		s.logger.Info().Msg("Device is not secure, proceeding with regular reboot")
		if err := s.injector.RegularReboot(ctx, types.RegularRebootReason); err != nil {
			s.logger.Error().Err(err).Msg("Regular reboot failed, reschedule")
			s.ScheduleReboot()
			return types.DecisionRescheduleRebootFailed
		}
		return types.DecisionFallbackRegularReboot
	}

	if !s.isPrepared(ctx) {
		s.logger.Info().Msg("Credential not captured, reschedule")
		s.PrepareUnattendedReboot(ctx)
		s.ScheduleReboot()
		return types.DecisionRescheduleAfterPrepare
	}

	if !s.injector.IsNetworkValidated(ctx) {
		s.logger.Info().Msg("Network is not validated, waiting for it")
		s.injector.TriggerRebootOnNetworkAvailable(ctx)
		return types.DecisionRescheduleAfterNetwork
	}

	if hour := s.injector.Now().Hour(); !window.Contains(hour) {
		s.logger.Info().
			Int("hour", hour).
			Int("start_hour", window.StartHour).
			Int("end_hour", window.EndHour).
			Msg("Outside of reboot window, reschedule")
		s.PrepareUnattendedReboot(ctx)
		s.ScheduleReboot()
		return types.DecisionRescheduleOutsideWindow
	}

	if s.simPin != nil && !s.simPin.Prepare(ctx) {
		s.logger.Warn().Msg("SIM PIN replay not prepared, reschedule")
		s.ScheduleReboot()
		return types.DecisionRescheduleSimPin
	}

	code, err := s.injector.RebootAndApply(ctx, types.RebootReason, false)
	if err != nil {
		s.logger.Error().Err(err).Msg("Unattended reboot failed, reschedule")
		s.ScheduleReboot()
		return types.DecisionRescheduleRebootFailed
	}
	if code != 0 {
		s.logger.Warn().Int("code", code).Msg("Unattended reboot failed, reschedule")
		s.ScheduleReboot()
		return types.DecisionRescheduleRebootFailed
	}
	return types.DecisionRebootNow
}

// isPrepared trusts the platform over the latch, falling back to the latch
// when the platform cannot answer
func (s *Scheduler) isPrepared(ctx context.Context) bool {
	captured := s.lskfCaptured.Load()
	prepared, err := s.injector.IsPreparedForUnattendedUpdate(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Bool("captured", captured).Msg("Failed to query escrow state")
		return captured
	}
	if prepared != captured {
		s.logger.Warn().Bool("prepared", prepared).Bool("captured", captured).Msg("Escrow state disagrees with captured flag")
	}
	return prepared
}
