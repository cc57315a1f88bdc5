package network

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/flagstage/pkg/clock"
	"github.com/cuemby/flagstage/pkg/health"
)

type fakeChecker struct {
	healthy atomic.Bool
	calls   atomic.Int32
}

func (f *fakeChecker) Check(context.Context) health.Result {
	f.calls.Add(1)
	return health.Result{Healthy: f.healthy.Load(), Message: "fake"}
}

func (f *fakeChecker) Type() health.CheckType { return health.CheckTypeTCP }

func checker(healthy bool) *fakeChecker {
	c := &fakeChecker{}
	c.healthy.Store(healthy)
	return c
}

func TestValidated(t *testing.T) {
	tests := []struct {
		name       string
		internet   health.Checker
		validation health.Checker
		want       bool
	}{
		{name: "both pass", internet: checker(true), validation: checker(true), want: true},
		{name: "no internet", internet: checker(false), validation: checker(true), want: false},
		{name: "captive portal", internet: checker(true), validation: checker(false), want: false},
		{name: "no probes", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(clock.Fake(time.Now()), tt.internet, tt.validation, time.Minute)
			assert.Equal(t, tt.want, m.Validated(context.Background()))
			assert.Equal(t, tt.want, m.LastResult().Healthy)
		})
	}
}

func TestValidationSkippedWithoutInternet(t *testing.T) {
	validation := checker(true)
	m := NewMonitor(clock.Fake(time.Now()), checker(false), validation, time.Minute)

	m.Validated(context.Background())
	assert.Equal(t, int32(0), validation.calls.Load())
}

func waitFired(t *testing.T, fired <-chan struct{}) {
	t.Helper()
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("availability callback not called")
	}
}

func TestNotifyWhenAvailable(t *testing.T) {
	c := clock.Fake(time.Now())
	internet := checker(false)
	m := NewMonitor(c, internet, nil, time.Minute)

	fired := make(chan struct{}, 2)
	m.NotifyWhenAvailable(context.Background(), func() { fired <- struct{}{} })

	c.Advance(time.Minute)
	require.Eventually(t, func() bool { return internet.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, fired)

	internet.healthy.Store(true)
	c.Advance(time.Minute)
	waitFired(t, fired)

	// One-shot: later polls do nothing
	c.Advance(10 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, fired)
}

func TestNotifyWhenAvailableReplacesPrevious(t *testing.T) {
	c := clock.Fake(time.Now())
	m := NewMonitor(c, checker(true), nil, time.Minute)

	var first atomic.Bool
	m.NotifyWhenAvailable(context.Background(), func() { first.Store(true) })
	fired := make(chan struct{}, 1)
	m.NotifyWhenAvailable(context.Background(), func() { fired <- struct{}{} })

	c.Advance(time.Minute)
	waitFired(t, fired)
	assert.False(t, first.Load())
}

func TestNotifyWhenAvailableCancel(t *testing.T) {
	c := clock.Fake(time.Now())
	internet := checker(true)
	m := NewMonitor(c, internet, nil, time.Minute)

	var called atomic.Bool
	m.NotifyWhenAvailable(context.Background(), func() { called.Store(true) })
	m.Cancel()

	c.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, called.Load())
}

func TestNotifyWhenAvailableContextDone(t *testing.T) {
	c := clock.Fake(time.Now())
	m := NewMonitor(c, checker(true), nil, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	var called atomic.Bool
	m.NotifyWhenAvailable(ctx, func() { called.Store(true) })
	cancel()

	c.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, called.Load())
}
