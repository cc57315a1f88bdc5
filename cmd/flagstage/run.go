package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/flagstage/pkg/log"
	"github.com/cuemby/flagstage/pkg/manager"
	"github.com/cuemby/flagstage/pkg/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the boot-time daemon",
	Long: `Run applies bootstrap defaults and staged values, then keeps the
unattended reboot scheduler running until it is signalled.

Signals:
  SIGINT, SIGTERM  shut down
  SIGUSR1          the lock screen credential was captured`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
			cfg.Metrics.Addr = v
		}
		if cmd.Flags().Changed("dry-run") {
			cfg.Reboot.DryRun, _ = cmd.Flags().GetBool("dry-run")
		}
		metrics.SetVersion(Version)

		mgr, err := manager.NewManager(cfg)
		if err != nil {
			return fmt.Errorf("failed to create manager: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := mgr.Start(ctx); err != nil {
			_ = mgr.Shutdown(ctx)
			return err
		}

		result := mgr.OnBootCompleted(ctx)
		log.Logger.Info().
			Str("bootstrap", string(result.Bootstrap)).
			Int("staged_applied", result.Staged.Applied).
			Bool("unattended_reboot", cfg.Reboot.Enabled).
			Msg("Boot completed")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)
		defer signal.Stop(sigCh)

		for sig := range sigCh {
			if sig == syscall.SIGUSR1 {
				mgr.EscrowCaptured()
				continue
			}
			break
		}

		log.Info("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return mgr.Shutdown(shutdownCtx)
	},
}

func init() {
	runCmd.Flags().String("metrics-addr", "", "Metrics and health listen address (overrides config)")
	runCmd.Flags().Bool("dry-run", false, "Log reboots instead of performing them")

	rootCmd.AddCommand(runCmd)
}
