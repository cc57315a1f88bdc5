package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/flagstage/pkg/log"
	"github.com/cuemby/flagstage/pkg/manager"
	"github.com/cuemby/flagstage/pkg/storage"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "flagstage-migrate",
	Short: "Copy the configuration store between storage backends",
	Long: `flagstage-migrate copies every namespace, staged values included,
from one storage backend to the other inside the same data directory.

The source database is backed up before anything is written and is left in
place for rollback. Stop the daemon first.

Example:
  flagstage-migrate --data-dir /var/lib/flagstage --from bolt --to sqlite`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runMigrate,
}

func init() {
	rootCmd.Flags().String("data-dir", "/var/lib/flagstage", "flagstage data directory")
	rootCmd.Flags().String("from", string(storage.DriverBolt), "Source driver: bolt or sqlite")
	rootCmd.Flags().String("to", string(storage.DriverSQLite), "Destination driver: bolt or sqlite")
	rootCmd.Flags().Bool("dry-run", false, "Show what would be migrated without making changes")
	rootCmd.Flags().String("backup", "", "Backup path for the source database (default: <database>.backup)")
	rootCmd.Flags().Duration("timeout", time.Second, "How long to wait for the database lock")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	backupPath, _ := cmd.Flags().GetString("backup")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	log.Init(log.Config{Level: log.InfoLevel, Output: cmd.ErrOrStderr()})
	logger := log.WithComponent("migrate")

	opts := migrateOptions{
		DataDir: dataDir,
		From:    storage.Driver(from),
		To:      storage.Driver(to),
		DryRun:  dryRun,
		Backup:  backupPath,
		Timeout: timeout,
	}
	n, err := migrate(opts)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if dryRun {
		logger.Info().Int("values", n).Msg("Dry run completed, no changes made")
		return nil
	}
	logger.Info().
		Int("values", n).
		Str("from", from).
		Str("to", to).
		Msg("Migration completed, set storage.driver in the config to use the new backend")
	return nil
}

type migrateOptions struct {
	DataDir string
	From    storage.Driver
	To      storage.Driver
	DryRun  bool
	Backup  string
	Timeout time.Duration
}

// migrate copies every value from opts.From to opts.To and returns how many
// values were copied, or would be in a dry run
func migrate(opts migrateOptions) (int, error) {
	logger := log.WithComponent("migrate")

	if opts.From == opts.To {
		return 0, fmt.Errorf("source and destination are both %s", opts.From)
	}
	srcPath, err := databasePath(opts.DataDir, opts.From)
	if err != nil {
		return 0, err
	}
	if _, err := databasePath(opts.DataDir, opts.To); err != nil {
		return 0, err
	}
	if _, err := os.Stat(srcPath); err != nil {
		return 0, fmt.Errorf("database not found at %s: %w", srcPath, err)
	}

	if !opts.DryRun {
		backup := opts.Backup
		if backup == "" {
			backup = srcPath + ".backup"
		}
		logger.Info().Str("path", backup).Msg("Creating backup")
		if err := copyFile(srcPath, backup); err != nil {
			return 0, fmt.Errorf("failed to create backup: %w", err)
		}
	}

	src, err := storage.Open(storage.Options{Driver: opts.From, DataDir: opts.DataDir, Timeout: opts.Timeout})
	if err != nil {
		return 0, err
	}
	defer src.Close()

	snapshot, err := manager.TakeSnapshot(src)
	if err != nil {
		return 0, err
	}
	total := len(snapshot.Entries())
	for ns, values := range snapshot.Values {
		logger.Info().Str("namespace", ns).Int("values", len(values)).Msg("Found namespace")
	}

	if opts.DryRun {
		return total, nil
	}

	dst, err := storage.Open(storage.Options{Driver: opts.To, DataDir: opts.DataDir, Timeout: opts.Timeout})
	if err != nil {
		return 0, err
	}
	defer dst.Close()

	n, err := snapshot.Restore(dst)
	if err != nil {
		return n, err
	}

	// Read back what landed
	copied, err := manager.TakeSnapshot(dst)
	if err != nil {
		return n, err
	}
	for ns, values := range snapshot.Values {
		for k, v := range values {
			if got, ok := copied.Values[ns][k]; !ok || got != v {
				return n, fmt.Errorf("verification failed for %s/%s", ns, k)
			}
		}
	}
	return n, nil
}

func databasePath(dataDir string, driver storage.Driver) (string, error) {
	switch driver {
	case storage.DriverBolt:
		return filepath.Join(dataDir, storage.BoltFileName), nil
	case storage.DriverSQLite:
		return filepath.Join(dataDir, storage.SQLiteFileName), nil
	default:
		return "", fmt.Errorf("unknown storage driver: %s", driver)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
