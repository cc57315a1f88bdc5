package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/flagstage/pkg/config"
	"github.com/cuemby/flagstage/pkg/deviceconfig"
	"github.com/cuemby/flagstage/pkg/staging"
)

var stageCmd = &cobra.Command{
	Use:   "stage NAMESPACE KEY VALUE",
	Short: "Stage a value to take effect on the next boot",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(_ *config.Config, svc *deviceconfig.Service) error {
			if err := staging.Stage(svc, args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Staged %s/%s=%s for next boot\n", args[0], args[1], args[2])
			return nil
		})
	},
}

var unstageCmd = &cobra.Command{
	Use:   "unstage NAMESPACE KEY",
	Short: "Drop a staged value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(_ *config.Config, svc *deviceconfig.Service) error {
			removed, err := staging.Unstage(svc, args[0], args[1])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("nothing staged for %s/%s", args[0], args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Unstaged %s/%s\n", args[0], args[1])
			return nil
		})
	},
}

var stagedCmd = &cobra.Command{
	Use:   "staged",
	Short: "List values waiting for the next boot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(_ *config.Config, svc *deviceconfig.Service) error {
			for _, e := range staging.List(svc) {
				if e.Namespace == "" {
					fmt.Fprintf(cmd.OutOrStdout(), "%s=%s (malformed)\n", e.Key, e.Value)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s=%s\n", e.Namespace, e.Key, e.Value)
			}
			return nil
		})
	},
}

var applyStagedCmd = &cobra.Command{
	Use:   "apply-staged",
	Short: "Apply staged values now",
	Long: `apply-staged runs the boot-time apply step without rebooting. The
daemon does this itself on every boot; use it for recovery or testing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(_ *config.Config, svc *deviceconfig.Service) error {
			res := staging.Apply(svc)
			fmt.Fprintf(cmd.OutOrStdout(), "Applied: %d\nMalformed: %d\nFailed: %d\n",
				res.Applied, res.Malformed, res.Failed)
			if res.Failed > 0 || res.DeleteFailed > 0 {
				return fmt.Errorf("%d values failed to apply, %d could not be unstaged", res.Failed, res.DeleteFailed)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(unstageCmd)
	rootCmd.AddCommand(stagedCmd)
	rootCmd.AddCommand(applyStagedCmd)
}
