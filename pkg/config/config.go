package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/flagstage/pkg/bootstrap"
	"github.com/cuemby/flagstage/pkg/log"
	"github.com/cuemby/flagstage/pkg/platform"
	"github.com/cuemby/flagstage/pkg/storage"
	"github.com/cuemby/flagstage/pkg/types"
)

// DefaultPath is where the daemon looks for its configuration file
const DefaultPath = "/etc/flagstage/config.yaml"

// Config is the daemon configuration file
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Reboot    RebootConfig    `yaml:"reboot"`
	Network   NetworkConfig   `yaml:"network"`
	Hooks     platform.Hooks  `yaml:"hooks"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

type StorageConfig struct {
	Driver  storage.Driver `yaml:"driver"`
	Timeout time.Duration  `yaml:"timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type MetricsConfig struct {
	// Addr is the listen address of /metrics and the health endpoints;
	// empty disables the server
	Addr string `yaml:"addr"`
}

// RebootConfig controls unattended reboots
type RebootConfig struct {
	Enabled  bool               `yaml:"enabled"`
	Window   types.RebootWindow `yaml:"window"`
	Timezone string             `yaml:"timezone"`

	SimPinReplay bool  `yaml:"sim_pin_replay"`
	PinStorage   *bool `yaml:"system_pin_storage"`

	EscrowPollInterval time.Duration `yaml:"escrow_poll_interval"`
	EscrowTimeout      time.Duration `yaml:"escrow_timeout"`

	DryRun bool `yaml:"dry_run"`
}

// NetworkConfig configures the validated-network probes. An empty probe is
// skipped.
type NetworkConfig struct {
	ProbeAddress  string        `yaml:"probe_address"`
	ValidationURL string        `yaml:"validation_url"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
}

type BootstrapConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		DataDir: "/var/lib/flagstage",
		Storage: StorageConfig{
			Driver:  storage.DriverSQLite,
			Timeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level: string(log.InfoLevel),
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9090",
		},
		Reboot: RebootConfig{
			Enabled:            true,
			Window:             types.DefaultRebootWindow(),
			SimPinReplay:       true,
			EscrowPollInterval: 10 * time.Second,
			EscrowTimeout:      10 * time.Minute,
		},
		Network: NetworkConfig{
			PollInterval: time.Minute,
			ProbeTimeout: 5 * time.Second,
		},
		Hooks: platform.Hooks{
			Timeout: 30 * time.Second,
		},
		Bootstrap: BootstrapConfig{
			Path: bootstrap.DefaultPath,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values a daemon cannot start without
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	switch c.Storage.Driver {
	case storage.DriverBolt, storage.DriverSQLite:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if err := c.Reboot.Window.Validate(); err != nil {
		return fmt.Errorf("reboot window: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Network.PollInterval < 0 {
		return fmt.Errorf("network poll interval must not be negative")
	}
	return nil
}

// Location resolves reboot.timezone; empty means the host zone
func (c *Config) Location() (*time.Location, error) {
	if c.Reboot.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Reboot.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Reboot.Timezone, err)
	}
	return loc, nil
}

// StorageOptions maps the storage section onto storage.Open options
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Driver:  c.Storage.Driver,
		DataDir: c.DataDir,
		Timeout: c.Storage.Timeout,
	}
}

// LogOptions maps the log section onto log.Init
func (c *Config) LogOptions() log.Config {
	return log.Config{
		Level:      log.ParseLevel(c.Log.Level),
		JSONOutput: c.Log.JSON,
	}
}

// PlatformConfig maps the reboot and hooks sections onto a platform.Device
func (c *Config) PlatformConfig() platform.Config {
	return platform.Config{
		Window:             c.Reboot.Window,
		Hooks:              c.Hooks,
		SystemPinStorage:   c.Reboot.PinStorage,
		EscrowPollInterval: c.Reboot.EscrowPollInterval,
		EscrowTimeout:      c.Reboot.EscrowTimeout,
		DryRun:             c.Reboot.DryRun,
	}
}
