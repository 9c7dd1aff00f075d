package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/streambot/s3playlist/internal/config"
	"github.com/streambot/s3playlist/internal/observability"
	"github.com/streambot/s3playlist/pkg/listing"
	"github.com/streambot/s3playlist/pkg/notify"
	"github.com/streambot/s3playlist/pkg/provider"
	"github.com/streambot/s3playlist/pkg/provider/s3"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the configuration, storage directory, bucket access
and notification targets, and suggest fixes for common issues.

Examples:
  s3playlist doctor
  s3playlist doctor --config /etc/streambot/ice3.ini`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// checkRunner numbers and logs diagnostic steps.
type checkRunner struct {
	num    int
	total  int
	failed int
}

func (r *checkRunner) pass(what, detail string, fields ...zap.Field) {
	r.num++
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking %s... ✅ %s", r.num, r.total, what, detail), fields...)
}

func (r *checkRunner) warn(what, detail string, fields ...zap.Field) {
	r.num++
	observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking %s... ⚠️  %s", r.num, r.total, what, detail), fields...)
}

func (r *checkRunner) fail(what, detail string, fields ...zap.Field) {
	r.num++
	r.failed++
	observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking %s... ❌ %s", r.num, r.total, what, detail), fields...)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	bannerName := serviceName + " doctor"
	observability.CLILogger.Info("=== " + bannerName + " ===")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Running diagnostic checks...")
	observability.CLILogger.Info("")

	r := &checkRunner{total: 7}

	// Go version
	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		r.pass("Go version", goVersion, zap.String("go_version", goVersion))
	} else {
		r.warn("Go version", goVersion+" (recommended: go1.23+)", zap.String("go_version", goVersion))
	}

	// Config
	cfg, err := loadConfig()
	if err != nil {
		r.fail("configuration", "Cannot load config", zap.Error(err))
		printConfigHelp()
		return finishDoctor(bannerName, r)
	}
	source := cfg.Source
	if source == "" {
		source = "environment only"
	}
	r.pass("configuration", source,
		zap.String("bucket", cfg.Streamer.BucketName),
		zap.String("prefix", cfg.Streamer.S3Prefix),
		zap.String("provider", cfg.Streamer.Provider))

	// Storage dir
	if err := checkWritableDir(cfg.Storage.Dir); err != nil {
		r.fail("storage directory", "Not writable", zap.String("dir", cfg.Storage.Dir), zap.Error(err))
	} else {
		r.pass("storage directory", cfg.Storage.Dir, zap.Duration("retention", cfg.Storage.Retention))
	}

	// Listing cache
	state, l, loadErr := listing.NewCache(cfg.CacheFilePath(), nil, nil).Load()
	switch {
	case loadErr != nil:
		r.warn("listing cache", "Unreadable, will be rebuilt on next run", zap.Error(loadErr))
	case state == listing.StatePresent:
		r.pass("listing cache", fmt.Sprintf("%d objects cached", len(l)), zap.String("path", cfg.CacheFilePath()))
	default:
		r.pass("listing cache", "Absent, will be built on next run", zap.String("path", cfg.CacheFilePath()))
	}

	// Credentials
	if cfg.Streamer.Provider == config.ProviderS3 {
		if !checkAWSCredentials(ctx, r, cfg) {
			printAWSCredentialsHelp()
		}
	} else {
		r.pass("credentials", "Not needed for provider "+cfg.Streamer.Provider)
	}

	// Bucket access
	checkBucket(ctx, r, cfg)

	// Notification targets
	checkNotifyTargets(r, cfg)

	return finishDoctor(bannerName, r)
}

func finishDoctor(bannerName string, r *checkRunner) error {
	observability.CLILogger.Info("")
	if r.failed == 0 {
		observability.CLILogger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", bannerName))
	} else {
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	observability.CLILogger.Info("")
	observability.CLILogger.Info("=== End Diagnostics ===")

	if r.failed > 0 {
		return exitError(ExitFailure, "Diagnostics failed", fmt.Errorf("%d of %d checks failed", r.failed, r.total))
	}
	return nil
}

func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(filepath.Clean(name))
}

func checkAWSCredentials(ctx context.Context, r *checkRunner, cfg *config.Config) bool {
	awsCfg, err := s3.LoadAWSConfig(ctx, s3Config(cfg))
	if err != nil {
		r.fail("AWS credentials", "Cannot load AWS config", zap.Error(err))
		return false
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		r.fail("AWS credentials", "Cannot retrieve credentials", zap.Error(err))
		return false
	}

	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	r.pass("AWS credentials", "Found credentials",
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
		zap.String("source", source),
		zap.String("region", awsCfg.Region))
	return true
}

func checkBucket(ctx context.Context, r *checkRunner, cfg *config.Config) {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		r.fail("bucket access", "Cannot create provider", zap.Error(err))
		return
	}
	defer func() { _ = backend.Close() }()

	if err := backend.HeadBucket(ctx); err != nil {
		detail := "Cannot access bucket"
		switch {
		case provider.IsBucketNotFound(err):
			detail = "Bucket does not exist"
		case provider.IsAccessDenied(err):
			detail = "Access denied"
		case provider.IsInvalidCredentials(err):
			detail = "Invalid credentials"
		}
		r.fail("bucket access", detail, zap.String("bucket", cfg.Streamer.BucketName), zap.Error(err))
		return
	}
	r.pass("bucket access", cfg.Streamer.BucketName, zap.String("bucket", cfg.Streamer.BucketName))
}

func checkNotifyTargets(r *checkRunner, cfg *config.Config) {
	var problems []zap.Field
	var targets []string
	if cfg.Streamer.SQSURL != "" {
		if region, err := notify.QueueRegion(cfg.Streamer.SQSURL); err != nil {
			problems = append(problems, zap.NamedError("sqs_url", err))
		} else {
			targets = append(targets, "sqs ("+region+")")
		}
	}
	if cfg.Streamer.SNSArn != "" {
		if region, err := notify.TopicRegion(cfg.Streamer.SNSArn); err != nil {
			problems = append(problems, zap.NamedError("sns_arn", err))
		} else {
			targets = append(targets, "sns ("+region+")")
		}
	}

	switch {
	case len(problems) > 0:
		r.fail("notification targets", "Invalid target", problems...)
	case len(targets) == 0:
		r.warn("notification targets", "None configured, tracks will not be announced")
	default:
		r.pass("notification targets", fmt.Sprint(targets), zap.Strings("targets", targets))
	}
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func printConfigHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure s3playlist:")
	observability.CLILogger.Info("  1. Create " + config.DefaultConfigFile + " in the working directory with a [streamer] section")
	observability.CLILogger.Info("     containing BUCKET_NAME, S3_PREFIX, SQS_URL and SNS_ARN, or")
	observability.CLILogger.Info("  2. Pass --config with the path to such a file, or")
	observability.CLILogger.Info("  3. Set S3PLAYLIST_BUCKET_NAME and related environment variables")
	observability.CLILogger.Info("")
}

// printAWSCredentialsHelp prints help for configuring AWS credentials.
func printAWSCredentialsHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure AWS credentials:")
	observability.CLILogger.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	observability.CLILogger.Info("  2. Run 'aws configure' to set up a profile, or")
	observability.CLILogger.Info("  3. Use IAM role when running on AWS infrastructure")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("For S3-compatible storage (MinIO, Wasabi, etc.), also set:")
	observability.CLILogger.Info("  - endpoint and force_path_style in the [s3] section")
	observability.CLILogger.Info("")
}
