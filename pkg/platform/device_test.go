package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/flagstage/pkg/clock"
	"github.com/cuemby/flagstage/pkg/events"
	"github.com/cuemby/flagstage/pkg/network"
	"github.com/cuemby/flagstage/pkg/scheduler"
	"github.com/cuemby/flagstage/pkg/simpin"
	"github.com/cuemby/flagstage/pkg/types"
)

var (
	_ scheduler.Injector = (*Device)(nil)
	_ simpin.Telephony   = (*Device)(nil)
)

func sh(script string, args ...string) []string {
	return append([]string{"sh", "-c", script, "hook"}, args...)
}

type testDevice struct {
	*Device
	clock  *clock.FakeClock
	broker *events.Broker
	events events.Subscriber
}

func newTestDevice(t *testing.T, cfg Config) *testDevice {
	t.Helper()
	c := clock.Fake(time.Date(2023, 10, 4, 13, 49, 9, 0, time.UTC))
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	sub := broker.Subscribe()

	if cfg.Window == (types.RebootWindow{}) {
		cfg.Window = types.DefaultRebootWindow()
	}
	d := NewDevice(cfg, c, network.NewMonitor(c, nil, nil, time.Minute), broker)
	t.Cleanup(d.Close)
	return &testDevice{Device: d, clock: c, broker: broker, events: sub}
}

func (td *testDevice) next(t *testing.T) *events.Event {
	t.Helper()
	select {
	case ev := <-td.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
		return nil
	}
}

func TestIsDeviceSecure(t *testing.T) {
	tests := []struct {
		name string
		hook []string
		want bool
	}{
		{name: "no hook assumes secure", want: true},
		{name: "secure", hook: sh("exit 0"), want: true},
		{name: "no screen lock", hook: sh("exit 1"), want: false},
		{name: "unknown code assumes secure", hook: sh("exit 9"), want: true},
		{name: "hook missing assumes secure", hook: []string{"/nonexistent/keyguard"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDevice(t, Config{Hooks: Hooks{DeviceSecure: tt.hook}})
			assert.Equal(t, tt.want, d.IsDeviceSecure(context.Background()))
		})
	}
}

func TestIsPreparedForUnattendedUpdate(t *testing.T) {
	tests := []struct {
		name    string
		hook    []string
		want    bool
		wantErr bool
	}{
		{name: "no hook", wantErr: true},
		{name: "prepared", hook: sh("exit 0"), want: true},
		{name: "not prepared", hook: sh("exit 1"), want: false},
		{name: "failure", hook: sh("exit 2"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDevice(t, Config{Hooks: Hooks{EscrowStatus: tt.hook}})
			got, err := d.IsPreparedForUnattendedUpdate(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrepareForUnattendedUpdateWatchesCapture(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "captured")
	tokenFile := filepath.Join(dir, "token")

	d := newTestDevice(t, Config{
		Hooks: Hooks{
			PrepareEscrow: sh(`echo -n "$1" > ` + tokenFile),
			EscrowStatus:  sh("test -f " + marker),
		},
		EscrowPollInterval: time.Second,
		EscrowTimeout:      time.Hour,
	})

	captured := make(chan struct{}, 1)
	err := d.PrepareForUnattendedUpdate(context.Background(), "token-123", func() { captured <- struct{}{} })
	require.NoError(t, err)

	token, err := os.ReadFile(tokenFile)
	require.NoError(t, err)
	assert.Equal(t, "token-123", string(token))

	d.clock.Advance(time.Second)
	select {
	case <-captured:
		t.Fatal("captured before the platform reported it")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(marker, nil, 0600))
	// Each poll runs a hook; keep ticking until the watcher sees the marker
	require.Eventually(t, func() bool {
		d.clock.Advance(time.Second)
		select {
		case <-captured:
			return true
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
}

func TestPrepareForUnattendedUpdateErrors(t *testing.T) {
	d := newTestDevice(t, Config{})
	err := d.PrepareForUnattendedUpdate(context.Background(), "t", func() {})
	assert.ErrorIs(t, err, ErrHookNotConfigured)

	d = newTestDevice(t, Config{Hooks: Hooks{PrepareEscrow: sh("exit 4")}})
	err = d.PrepareForUnattendedUpdate(context.Background(), "t", func() {})
	assert.Error(t, err)
}

func TestRebootAndApply(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")

	d := newTestDevice(t, Config{Hooks: Hooks{RebootAndApply: sh(`echo -n "$1 $2" > ` + argsFile + `; exit 3`)}})
	code, err := d.RebootAndApply(context.Background(), types.RebootReason, false)
	require.NoError(t, err)
	assert.Equal(t, 3, code)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, types.RebootReason+" false", string(args))
}

func TestRebootAndApplyReturningSuccessIsAnError(t *testing.T) {
	d := newTestDevice(t, Config{Hooks: Hooks{RebootAndApply: sh("exit 0")}})
	_, err := d.RebootAndApply(context.Background(), types.RebootReason, false)
	assert.Error(t, err)
}

func TestRebootAndApplyWithoutHook(t *testing.T) {
	d := newTestDevice(t, Config{})
	_, err := d.RebootAndApply(context.Background(), types.RebootReason, false)
	assert.ErrorIs(t, err, ErrHookNotConfigured)
}

func TestDryRunNeverReboots(t *testing.T) {
	d := newTestDevice(t, Config{DryRun: true, Hooks: Hooks{RebootAndApply: sh("exit 3")}})
	d.reboot = func(string) error {
		t.Fatal("system reboot called in dry run")
		return nil
	}

	code, err := d.RebootAndApply(context.Background(), types.RebootReason, false)
	assert.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.NoError(t, d.RegularReboot(context.Background(), types.RegularRebootReason))
}

func TestDryRunRearmsAlarm(t *testing.T) {
	tests := []struct {
		name   string
		reboot func(d *testDevice) error
	}{
		{name: "reboot and apply", reboot: func(d *testDevice) error {
			_, err := d.RebootAndApply(context.Background(), types.RebootReason, false)
			return err
		}},
		{name: "regular reboot", reboot: func(d *testDevice) error {
			return d.RegularReboot(context.Background(), types.RegularRebootReason)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDevice(t, Config{DryRun: true})
			_, ok := d.Alarm().Pending()
			require.False(t, ok)

			require.NoError(t, tt.reboot(d))

			at, ok := d.Alarm().Pending()
			require.True(t, ok, "dry run must leave an alarm armed")
			assert.Equal(t, scheduler.NextRebootTime(d.clock.Now(), types.DefaultRebootWindow()), at)
		})
	}
}

func TestRegularReboot(t *testing.T) {
	d := newTestDevice(t, Config{})
	var reasons []string
	d.reboot = func(reason string) error {
		reasons = append(reasons, reason)
		return nil
	}

	require.NoError(t, d.RegularReboot(context.Background(), types.RegularRebootReason))
	assert.Equal(t, []string{types.RegularRebootReason}, reasons)

	d.reboot = func(string) error { return errors.New("operation not permitted") }
	assert.Error(t, d.RegularReboot(context.Background(), types.RegularRebootReason))
}

func TestRegularRebootHook(t *testing.T) {
	d := newTestDevice(t, Config{Hooks: Hooks{Reboot: sh(`test "$1" = "` + types.RegularRebootReason + `"`)}})
	d.reboot = func(string) error {
		t.Fatal("system reboot used despite hook")
		return nil
	}
	assert.NoError(t, d.RegularReboot(context.Background(), types.RegularRebootReason))

	d = newTestDevice(t, Config{Hooks: Hooks{Reboot: sh("exit 1")}})
	assert.Error(t, d.RegularReboot(context.Background(), types.RegularRebootReason))
}

func TestAlarmPublishesRebootEvent(t *testing.T) {
	d := newTestDevice(t, Config{})
	at := d.Now().Add(time.Hour)

	d.SetRebootAlarm(at)
	pending, ok := d.Alarm().Pending()
	require.True(t, ok)
	assert.True(t, at.Equal(pending))

	d.clock.Advance(2 * time.Hour)
	ev := d.next(t)
	assert.Equal(t, events.EventRebootAlarm, ev.Type)
	assert.Equal(t, at.Format(time.RFC3339), ev.Metadata["at"])
}

func TestTriggerRebootOnNetworkAvailable(t *testing.T) {
	d := newTestDevice(t, Config{})
	assert.True(t, d.IsNetworkValidated(context.Background()))

	d.TriggerRebootOnNetworkAvailable(context.Background())
	d.clock.Advance(time.Minute)

	ev := d.next(t)
	assert.Equal(t, events.EventNetworkAvailable, ev.Type)
}

func TestWindowAndClock(t *testing.T) {
	window := types.RebootWindow{StartHour: 2, EndHour: 3, FrequencyDays: 1}
	d := newTestDevice(t, Config{Window: window})

	assert.Equal(t, window, d.Window())
	d.clock.SetSinceBoot(5 * time.Hour)
	assert.Equal(t, 5*time.Hour, d.SinceBoot())
	assert.Equal(t, fmt.Sprint(d.clock.Now()), fmt.Sprint(d.Now()))
}
