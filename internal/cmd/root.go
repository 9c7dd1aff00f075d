// Package cmd implements the s3playlist command line.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/streambot/s3playlist/internal/config"
	"github.com/streambot/s3playlist/internal/observability"
)

const serviceName = "s3playlist"

type VersionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

var versionInfo = VersionInfo{Version: "dev", Commit: "none", BuildDate: "unknown"}

// SetVersionInfo records build metadata injected by the linker.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile string
	verbose bool
	runID   string
)

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Pick a random track from an S3 bucket and announce it",
	Long: `s3playlist picks a random playable file (mp3, wav, flac, ogg) from an S3
bucket prefix, makes sure it is downloaded locally, announces it over SQS and
SNS and prints the local path.

The bucket listing is cached in the storage directory until invalidated.
Downloaded tracks older than the retention window are removed on every run.

Running s3playlist without a subcommand is the same as "s3playlist next".`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initRun,
	RunE:              runNext,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to INI config file (default ./"+config.DefaultConfigFile+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	addNextFlags(rootCmd)
}

// initRun sets up a stderr logger tagged with a fresh run ID. The level is
// refined once the config is loaded.
func initRun(cmd *cobra.Command, args []string) error {
	runID = uuid.NewString()
	observability.InitCLILogger(serviceName, verbose)
	observability.CLILogger = observability.CLILogger.With(zap.String("run_id", runID))
	return nil
}

// loadConfig loads the config file and re-initializes the logger with its
// logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	observability.InitCLILoggerWithOptions(serviceName, verbose, observability.LoggerOptions{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	observability.CLILogger = observability.CLILogger.With(zap.String("run_id", runID))
	observability.CLILogger.Debug("Loaded config",
		zap.String("source", cfg.Source),
		zap.String("bucket", cfg.Streamer.BucketName),
		zap.String("prefix", cfg.Streamer.S3Prefix),
		zap.String("provider", cfg.Streamer.Provider))
	return cfg, nil
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	observability.Sync()
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}
