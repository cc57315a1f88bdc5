package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/flagstage/pkg/scheduler"
)

var nextRebootCmd = &cobra.Command{
	Use:   "next-reboot",
	Short: "Print when the next unattended reboot would be scheduled",
	Long: `next-reboot computes the alarm the scheduler would set if it
scheduled a reboot now, from the configured window and timezone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !cfg.Reboot.Enabled {
			fmt.Fprintln(cmd.OutOrStdout(), "Unattended reboot is disabled")
			return nil
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}

		w := cfg.Reboot.Window
		at := scheduler.NextRebootTime(time.Now().In(loc), w)
		fmt.Fprintf(cmd.OutOrStdout(), "Next reboot: %s\n", at.Format(time.RFC3339))
		fmt.Fprintf(cmd.OutOrStdout(), "Window: %02d:00-%02d:00, every %d days\n", w.StartHour, w.EndHour, w.FrequencyDays)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nextRebootCmd)
}
