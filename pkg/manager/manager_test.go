package manager

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/flagstage/pkg/bootstrap"
	"github.com/cuemby/flagstage/pkg/clock"
	"github.com/cuemby/flagstage/pkg/config"
	"github.com/cuemby/flagstage/pkg/deviceconfig"
	"github.com/cuemby/flagstage/pkg/events"
	"github.com/cuemby/flagstage/pkg/scheduler"
	"github.com/cuemby/flagstage/pkg/staging"
	"github.com/cuemby/flagstage/pkg/storage"
	"github.com/cuemby/flagstage/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Metrics.Addr = ""
	cfg.Reboot.Timezone = "UTC"
	cfg.Reboot.DryRun = true
	cfg.Bootstrap.Path = filepath.Join(t.TempDir(), "absent")
	return cfg
}

func newTestManager(t *testing.T, cfg *config.Config, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, m.Shutdown(ctx))
	})
	return m
}

func waitDecision(t *testing.T, sub events.Subscriber) types.Decision {
	t.Helper()
	for {
		select {
		case ev := <-sub:
			if ev.Type == events.EventRebootDecision {
				return types.Decision(ev.Metadata["decision"])
			}
		case <-time.After(5 * time.Second):
			t.Fatal("no reboot decision")
			return ""
		}
	}
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "etcd"
	_, err := NewManager(cfg)
	assert.Error(t, err)
}

func TestOnBootCompletedAppliesValues(t *testing.T) {
	cfg := testConfig(t)
	cfg.Reboot.Enabled = false
	cfg.Bootstrap.Path = filepath.Join(t.TempDir(), "defaults")
	require.NoError(t, os.WriteFile(cfg.Bootstrap.Path, []byte("core:feature.a=enabled\ncore:feature.b=disabled\n"), 0600))

	m := newTestManager(t, cfg)
	assert.Nil(t, m.Scheduler())

	props := m.Properties()
	require.NoError(t, staging.Stage(props, "core", "limit", "10"))
	require.True(t, props.SetProperty(types.NamespaceRebootStaging, "broken", "x", false))

	sub := m.Broker().Subscribe()
	result := m.OnBootCompleted(context.Background())

	assert.Equal(t, bootstrap.StatusApplied, result.Bootstrap)
	assert.Equal(t, 1, result.Staged.Applied)
	assert.Equal(t, 1, result.Staged.Malformed)
	assert.Equal(t, map[string]string{
		"feature.a": "true",
		"feature.b": "false",
		"limit":     "10",
	}, props.GetProperties("core"))
	assert.Equal(t, map[string]string{"broken": "x"}, props.GetProperties(types.NamespaceRebootStaging))

	seen := map[events.EventType]bool{}
	require.Eventually(t, func() bool {
		for {
			select {
			case ev := <-sub:
				seen[ev.Type] = true
			default:
				return seen[events.EventStagedApplied] && seen[events.EventBootCompleted]
			}
		}
	}, 2*time.Second, 10*time.Millisecond)

	// A second boot does not reprocess the defaults file
	result = m.OnBootCompleted(context.Background())
	assert.Equal(t, bootstrap.StatusAlreadyProcessed, result.Bootstrap)
	assert.Equal(t, 0, result.Staged.Applied)
}

func TestBrokenBootstrapStillAppliesStaged(t *testing.T) {
	cfg := testConfig(t)
	cfg.Reboot.Enabled = false
	cfg.Bootstrap.Path = filepath.Join(t.TempDir(), "defaults")
	require.NoError(t, os.WriteFile(cfg.Bootstrap.Path, []byte("not a line\n"), 0600))

	m := newTestManager(t, cfg)
	require.NoError(t, staging.Stage(m.Properties(), "core", "k", "v"))

	result := m.OnBootCompleted(context.Background())
	assert.Equal(t, bootstrap.Status(""), result.Bootstrap)
	assert.Equal(t, 1, result.Staged.Applied)
	assert.Empty(t, m.Properties().GetProperties(bootstrap.MetaNamespace))
}

func TestUnattendedRebootLifecycle(t *testing.T) {
	cfg := testConfig(t)
	cfg.Reboot.Window = types.RebootWindow{StartHour: 1, EndHour: 5, FrequencyDays: 2}

	c := clock.Fake(time.Date(2023, 10, 4, 13, 49, 9, 0, time.UTC))
	c.SetSinceBoot(72 * time.Hour)
	m := newTestManager(t, cfg, WithClock(c))
	require.NotNil(t, m.Scheduler())

	decisions := m.Broker().Subscribe()
	m.OnBootCompleted(context.Background())

	// Boot arms the first alarm two days out at the window start
	var at time.Time
	require.Eventually(t, func() bool {
		var ok bool
		at, ok = m.Device().Alarm().Pending()
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, scheduler.NextRebootTime(c.Now(), cfg.Reboot.Window), at)

	// Nothing captured the credential yet
	c.Set(at)
	assert.Equal(t, types.DecisionRescheduleAfterPrepare, waitDecision(t, decisions))

	m.EscrowCaptured()
	require.Eventually(t, m.Scheduler().LskfCaptured, 5*time.Second, 10*time.Millisecond)

	next, ok := m.Device().Alarm().Pending()
	require.True(t, ok)
	assert.True(t, next.After(at))

	// No probes, no SIMs and dry run: the next alarm reboots
	c.Set(next)
	assert.Equal(t, types.DecisionRebootNow, waitDecision(t, decisions))
}

func TestMetricsServer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Reboot.Enabled = false
	cfg.Metrics.Addr = "127.0.0.1:0"

	m := newTestManager(t, cfg)
	require.NotEmpty(t, m.MetricsAddr())

	for _, path := range []string{"/metrics", "/ready", "/live"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get("http://" + m.MetricsAddr() + path)
			require.NoError(t, err)
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}

	// Overall health depends on every component other tests touched, so
	// only the shape is checked
	resp, err := http.Get("http://" + m.MetricsAddr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestStoreReopensWithSameData(t *testing.T) {
	cfg := testConfig(t)
	cfg.Reboot.Enabled = false
	cfg.Storage.Driver = storage.DriverSQLite

	m, err := NewManager(cfg)
	require.NoError(t, err)
	require.True(t, m.Properties().SetProperty("core", "k", "v", false))
	require.NoError(t, m.Shutdown(context.Background()))

	m = newTestManager(t, cfg)
	assert.Equal(t, map[string]string{"k": "v"}, m.Properties().GetProperties("core"))
}

func TestBootArmsAlarmAfterLargeStagedApply(t *testing.T) {
	cfg := testConfig(t)

	seed, err := storage.Open(cfg.StorageOptions())
	require.NoError(t, err)
	staged := make(map[string]string)
	for i := 0; i < 300; i++ {
		staged[fmt.Sprintf("ns%d*key", i)] = "v"
	}
	require.NoError(t, seed.SetValues(types.NamespaceRebootStaging, staged))
	require.NoError(t, seed.Close())

	c := clock.Fake(time.Date(2023, 10, 4, 13, 49, 9, 0, time.UTC))
	m := newTestManager(t, cfg, WithClock(c))

	result := m.OnBootCompleted(context.Background())
	assert.Equal(t, 300, result.Staged.Applied)

	require.Eventually(t, func() bool {
		_, ok := m.Device().Alarm().Pending()
		return ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStageWhileDaemonRuns(t *testing.T) {
	cfg := testConfig(t)
	cfg.Reboot.Enabled = false
	m := newTestManager(t, cfg)

	// What the CLI does while the daemon holds the store
	cli, err := storage.Open(cfg.StorageOptions())
	require.NoError(t, err)
	require.NoError(t, staging.Stage(deviceconfig.NewService(cli), "core", "limit", "20"))
	require.NoError(t, cli.Close())

	result := m.OnBootCompleted(context.Background())
	assert.Equal(t, 1, result.Staged.Applied)
	assert.Equal(t, map[string]string{"limit": "20"}, m.Properties().GetProperties("core"))
}
