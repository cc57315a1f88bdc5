package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/flagstage/pkg/config"
	"github.com/cuemby/flagstage/pkg/manager"
	"github.com/cuemby/flagstage/pkg/storage"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every namespace as a JSON snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		return withStore(cmd, func(store storage.Store) error {
			snapshot, err := manager.TakeSnapshot(store)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			return snapshot.Persist(w)
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Upsert a JSON snapshot written by export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to read snapshot: %w", err)
		}
		defer f.Close()

		snapshot, err := manager.ReadSnapshot(f)
		if err != nil {
			return err
		}
		return withStore(cmd, func(store storage.Store) error {
			n, err := snapshot.Restore(store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %d values\n", n)
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func withStore(cmd *cobra.Command, fn func(store storage.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return openStore(cfg, fn)
}

func openStore(cfg *config.Config, fn func(store storage.Store) error) error {
	store, err := storage.Open(cfg.StorageOptions())
	if err != nil {
		return fmt.Errorf("failed to open store (is the daemon holding it?): %w", err)
	}
	defer store.Close()
	return fn(store)
}
