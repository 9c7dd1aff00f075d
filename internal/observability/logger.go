// Package observability holds the process-wide CLI logger.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by command handlers. It is a no-op until
// InitCLILogger runs so packages can log from tests without setup.
var CLILogger = zap.NewNop()

// LoggerOptions tunes the CLI logger.
type LoggerOptions struct {
	// Level is a zap level name; empty means info.
	Level string

	// Format is "console" (default) or "json".
	Format string
}

// InitCLILogger builds the CLI logger for service. Output always goes to
// stderr so stdout carries only command results. verbose forces debug level.
func InitCLILogger(service string, verbose bool) {
	InitCLILoggerWithOptions(service, verbose, LoggerOptions{})
}

// InitCLILoggerWithOptions is InitCLILogger with explicit level and format.
func InitCLILoggerWithOptions(service string, verbose bool, opts LoggerOptions) {
	CLILogger = NewLogger(service, verbose, opts)
}

// NewLogger builds a stderr logger without touching CLILogger.
func NewLogger(service string, verbose bool, opts LoggerOptions) *zap.Logger {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if parsed, err := zapcore.ParseLevel(opts.Level); err == nil {
			level = parsed
		}
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	var encoder zapcore.Encoder
	if strings.EqualFold(opts.Format, "json") {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if !isTerminal(os.Stderr) {
			cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(level))
	log := zap.New(core)
	if service != "" {
		log = log.With(zap.String("service", service))
	}
	return log
}

// Sync flushes CLILogger, ignoring the EINVAL some platforms return for
// stderr.
func Sync() {
	_ = CLILogger.Sync()
}

func isTerminal(f *os.File) bool {
	st, err := f.Stat()
	if err != nil {
		return false
	}
	return st.Mode()&os.ModeCharDevice != 0
}
