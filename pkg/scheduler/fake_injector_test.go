package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/flagstage/pkg/clock"
	"github.com/cuemby/flagstage/pkg/types"
)

// fakeInjector records every side effect and answers queries from fields
type fakeInjector struct {
	mu    sync.Mutex
	clock *clock.FakeClock

	window      types.RebootWindow
	secure      bool
	network     bool
	prepared    bool
	preparedErr error
	prepareErr  error
	rebootCode  int
	rebootErr   error
	regularErr  error

	// captureOnPrepare calls onCaptured synchronously from Prepare
	captureOnPrepare bool

	alarms          []time.Time
	networkRequests int
	prepareTokens   []string
	rebootReasons   []string
	regularReasons  []string
}

func newFakeInjector(c *clock.FakeClock) *fakeInjector {
	return &fakeInjector{
		clock:    c,
		window:   types.RebootWindow{StartHour: 2, EndHour: 3, FrequencyDays: 1},
		secure:   true,
		network:  true,
		prepared: true,
	}
}

// ready makes every precondition pass, throttle included
func (f *fakeInjector) ready() *fakeInjector {
	f.clock.SetSinceBoot(48 * time.Hour)
	return f
}

func (f *fakeInjector) Now() time.Time            { return f.clock.Now() }
func (f *fakeInjector) SinceBoot() time.Duration  { return f.clock.SinceBoot() }
func (f *fakeInjector) Window() types.RebootWindow { return f.window }

func (f *fakeInjector) SetRebootAlarm(at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alarms = append(f.alarms, at)
}

func (f *fakeInjector) TriggerRebootOnNetworkAvailable(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networkRequests++
}

func (f *fakeInjector) IsNetworkValidated(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.network
}

func (f *fakeInjector) IsDeviceSecure(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.secure
}

func (f *fakeInjector) PrepareForUnattendedUpdate(_ context.Context, token string, onCaptured func()) error {
	f.mu.Lock()
	f.prepareTokens = append(f.prepareTokens, token)
	err := f.prepareErr
	capture := f.captureOnPrepare && err == nil
	f.mu.Unlock()

	if capture {
		onCaptured()
	}
	return err
}

func (f *fakeInjector) IsPreparedForUnattendedUpdate(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prepared, f.preparedErr
}

func (f *fakeInjector) RebootAndApply(_ context.Context, reason string, _ bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebootReasons = append(f.rebootReasons, reason)
	return f.rebootCode, f.rebootErr
}

func (f *fakeInjector) RegularReboot(_ context.Context, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regularReasons = append(f.regularReasons, reason)
	return f.regularErr
}

func (f *fakeInjector) alarmCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alarms)
}

type fakeSimPin struct {
	ok    bool
	calls int
}

func (f *fakeSimPin) Prepare(context.Context) bool {
	f.calls++
	return f.ok
}
