package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/streambot/s3playlist/internal/observability"
	"github.com/streambot/s3playlist/pkg/localcache"
)

var purgeRetention time.Duration

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove downloaded tracks older than the retention window",
	Long: `Remove downloaded tracks older than the retention window without picking a
new track. The listing cache file is never removed by a purge.

Examples:
  s3playlist purge
  s3playlist purge --retention 30m`,
	Args: cobra.NoArgs,
	RunE: runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)
	purgeCmd.Flags().DurationVar(&purgeRetention, "retention", 0, "Override storage.retention (e.g. 30m, 4h)")
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return exitError(ExitFailure, "Failed to load config", err)
	}

	retention := cfg.Storage.Retention
	if purgeRetention < 0 {
		return exitError(ExitFailure, "Invalid --retention value", fmt.Errorf("retention must be positive, got %s", purgeRetention))
	}
	if purgeRetention > 0 {
		retention = purgeRetention
	}

	m, err := localcache.New(cfg.Storage.Dir, nil,
		localcache.WithReserved(cfg.CacheFilePath()),
		localcache.WithLogger(observability.CLILogger))
	if err != nil {
		return exitError(ExitFailure, "Failed to open storage dir", err)
	}

	report := m.Purge(retention)
	observability.CLILogger.Info("Purge complete",
		zap.String("dir", m.Root()),
		zap.Duration("retention", retention),
		zap.Int("scanned", report.Scanned),
		zap.Int("removed", len(report.Removed)),
		zap.Int("errors", len(report.Errors)))

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d of %d files (%d bytes)\n",
		len(report.Removed), report.Scanned, report.BytesRemoved)
	return err
}
