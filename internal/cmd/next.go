package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/streambot/s3playlist/internal/config"
	"github.com/streambot/s3playlist/internal/observability"
	"github.com/streambot/s3playlist/pkg/notify"
	"github.com/streambot/s3playlist/pkg/trackmeta"
)

const defaultNextTimeout = 10 * time.Minute

var (
	nextNoNotify bool
	nextTimeout  time.Duration
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Pick, download and announce the next track",
	Long: `Pick a random playable track, make sure it is on local disk, announce it
and print its local path on stdout.

Examples:
  s3playlist next
  s3playlist next --config /etc/streambot/ice3.ini
  s3playlist next --no-notify --timeout 2m`,
	Args: cobra.NoArgs,
	RunE: runNext,
}

func init() {
	rootCmd.AddCommand(nextCmd)
	addNextFlags(nextCmd)
}

func addNextFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&nextNoNotify, "no-notify", false, "Skip SQS/SNS announcements")
	cmd.Flags().DurationVar(&nextTimeout, "timeout", defaultNextTimeout, "Overall deadline for listing, download and notification")
}

func runNext(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return exitError(ExitFailure, "Failed to load config", err)
	}

	ctx := cmd.Context()
	if nextTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, nextTimeout)
		defer cancel()
	}

	c, err := newComponents(ctx, cfg)
	if err != nil {
		observability.CLILogger.Error("Failed to create provider", zap.Error(err))
		return exitError(ExitFailure, "Failed to connect to storage provider", err)
	}
	defer c.Close()

	track, err := c.resolver.Next(ctx)
	if err != nil {
		observability.CLILogger.Error("Failed to pick next track",
			zap.String("bucket", cfg.Streamer.BucketName),
			zap.String("prefix", cfg.Streamer.S3Prefix),
			zap.Error(err))
		return exitError(ExitFailure, "Failed to pick next track", err)
	}
	observability.CLILogger.Info("Next track",
		zap.String("key", track.Key),
		zap.Int64("size", track.Size),
		zap.String("path", track.Path))

	if !nextNoNotify {
		if err := announce(ctx, cfg, track.Path); err != nil {
			return exitError(ExitFailure, "Failed to announce track", err)
		}
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), track.Path)
	return err
}

func announce(ctx context.Context, cfg *config.Config, path string) error {
	d, err := newDispatcher(ctx, cfg)
	if err != nil {
		return err
	}
	if d.Sinks() == 0 {
		return nil
	}

	tag, err := trackmeta.Read(path)
	if err != nil {
		observability.CLILogger.Warn("Failed to read track metadata", zap.String("path", path), zap.Error(err))
		tag = nil
	}

	return d.Publish(ctx, notify.Message{FileName: filepath.Base(path), Tag: tag})
}
