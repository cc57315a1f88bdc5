package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/flagstage/pkg/config"
	"github.com/cuemby/flagstage/pkg/deviceconfig"
	"github.com/cuemby/flagstage/pkg/log"
	"github.com/cuemby/flagstage/pkg/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "flagstage",
	Short: "flagstage - device configuration store with staged flags",
	Long: `flagstage keeps namespaced device configuration, stages values that
take effect on the next boot and reboots the device unattended inside a
maintenance window so staged values can apply.

Run "flagstage run" as the boot-time daemon. The other commands operate on
the store directly and need the daemon's data directory.

With the default sqlite driver they work while the daemon runs. The bolt
driver locks the database file, so with bolt the other commands fail with a
timeout until the daemon stops.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"flagstage version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.String("config", config.DefaultPath, "Configuration file")
	flags.String("data-dir", "", "Data directory (overrides config)")
	flags.String("storage", "", "Storage driver: sqlite or bolt; bolt cannot be shared with a running daemon (overrides config)")
	flags.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flags.Bool("log-json", false, "Log as JSON")
}

// loadConfig reads the configuration file and applies flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("storage"); v != "" {
		cfg.Storage.Driver = storage.Driver(v)
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Log.JSON, _ = cmd.Flags().GetBool("log-json")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Init(cfg.LogOptions())
	return cfg, nil
}

// withService opens the store for the duration of fn
func withService(cmd *cobra.Command, fn func(cfg *config.Config, svc *deviceconfig.Service) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return openStore(cfg, func(store storage.Store) error {
		return fn(cfg, deviceconfig.NewService(store))
	})
}
