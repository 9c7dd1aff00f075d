// Package s3 implements the provider interface for AWS S3 and S3-compatible
// storage.
package s3

import "strings"

// Config configures an S3 provider.
//
// Credentials come from the AWS SDK v2 default chain (environment, shared
// config/credentials files, instance or task roles) unless an explicit
// access key pair or profile is given.
//
// For S3-compatible stores (MinIO, Wasabi, moto) set Endpoint; path-style
// addressing is then usually required as well.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string

	// Region is the AWS region. When empty the SDK resolves it from the
	// environment or profile, falling back to us-east-1 for AWS endpoints.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	Endpoint string

	// Profile selects a named profile from the shared AWS config.
	Profile string

	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle puts the bucket in the URL path instead of the host.
	ForcePathStyle bool

	// MaxKeys is the default page size for List. Zero means DefaultMaxKeys;
	// values over MaxAllowedKeys are clamped.
	MaxKeys int
}

const (
	// DefaultMaxKeys is the default page size for List operations.
	DefaultMaxKeys = 1000

	// MaxAllowedKeys is the largest page S3 will return.
	MaxAllowedKeys = 1000

	// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
	DefaultAWSRegion = "us-east-1"
)

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}
