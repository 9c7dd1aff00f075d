// Package config loads s3playlist settings from the legacy INI file, the
// environment and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// DefaultConfigFile is read from the working directory when no path is given.
const DefaultConfigFile = "ice3.ini"

// Provider names accepted in streamer.provider.
const (
	ProviderS3   = "s3"
	ProviderFile = "file"
)

// Config is the resolved configuration for one run.
type Config struct {
	Streamer  StreamerConfig  `mapstructure:"streamer"`
	Storage   StorageConfig   `mapstructure:"storage"`
	S3        S3Config        `mapstructure:"s3"`
	Selection SelectionConfig `mapstructure:"selection"`
	Logging   LoggingConfig   `mapstructure:"logging"`

	// Source is the INI file that was read, empty when none was found.
	Source string `mapstructure:"-"`
}

// StreamerConfig mirrors the [streamer] section of ice3.ini.
type StreamerConfig struct {
	BucketName string `mapstructure:"bucket_name"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	SNSArn     string `mapstructure:"sns_arn"`
	SQSURL     string `mapstructure:"sqs_url"`

	// Provider selects the object store: "s3", or "file" to treat
	// BucketName as a local directory.
	Provider string `mapstructure:"provider"`
}

type StorageConfig struct {
	Dir       string        `mapstructure:"dir"`
	CacheFile string        `mapstructure:"cache_file"`
	Retention time.Duration `mapstructure:"retention"`
}

type S3Config struct {
	Region          string  `mapstructure:"region"`
	Endpoint        string  `mapstructure:"endpoint"`
	Profile         string  `mapstructure:"profile"`
	AccessKeyID     string  `mapstructure:"access_key_id"`
	SecretAccessKey string  `mapstructure:"secret_access_key"`
	ForcePathStyle  bool    `mapstructure:"force_path_style"`
	MaxKeys         int     `mapstructure:"max_keys"`
	RateLimit       float64 `mapstructure:"rate_limit"`
}

type SelectionConfig struct {
	Extensions []string `mapstructure:"extensions"`
	Exclude    []string `mapstructure:"exclude"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CacheFilePath returns the listing cache location. A relative cache_file
// is placed under the storage dir.
func (c *Config) CacheFilePath() string {
	if filepath.IsAbs(c.Storage.CacheFile) {
		return c.Storage.CacheFile
	}
	return filepath.Join(c.Storage.Dir, c.Storage.CacheFile)
}

// ConfigError reports a missing or invalid setting.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// envSpec maps one environment variable to a config path.
type envSpec struct {
	Name string
	Path string
}

const envPrefix = "S3PLAYLIST_"

func getEnvSpecs() []envSpec {
	return []envSpec{
		{envPrefix + "BUCKET_NAME", "streamer.bucket_name"},
		{envPrefix + "S3_PREFIX", "streamer.s3_prefix"},
		{envPrefix + "SNS_ARN", "streamer.sns_arn"},
		{envPrefix + "SQS_URL", "streamer.sqs_url"},
		{envPrefix + "PROVIDER", "streamer.provider"},
		{envPrefix + "STORAGE_DIR", "storage.dir"},
		{envPrefix + "CACHE_FILE", "storage.cache_file"},
		{envPrefix + "RETENTION", "storage.retention"},
		{envPrefix + "REGION", "s3.region"},
		{envPrefix + "ENDPOINT", "s3.endpoint"},
		{envPrefix + "PROFILE", "s3.profile"},
		{envPrefix + "FORCE_PATH_STYLE", "s3.force_path_style"},
		{envPrefix + "MAX_KEYS", "s3.max_keys"},
		{envPrefix + "RATE_LIMIT", "s3.rate_limit"},
		{envPrefix + "EXTENSIONS", "selection.extensions"},
		{envPrefix + "EXCLUDE", "selection.exclude"},
		{envPrefix + "LOG_LEVEL", "logging.level"},
		{envPrefix + "LOG_FORMAT", "logging.format"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("streamer.bucket_name", "")
	v.SetDefault("streamer.s3_prefix", "")
	v.SetDefault("streamer.sns_arn", "")
	v.SetDefault("streamer.sqs_url", "")
	v.SetDefault("streamer.provider", ProviderS3)

	v.SetDefault("storage.dir", "~/s3playlist")
	v.SetDefault("storage.cache_file", "playlist_cache.txt")
	v.SetDefault("storage.retention", "2h")

	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.profile", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.force_path_style", false)
	v.SetDefault("s3.max_keys", 1000)
	v.SetDefault("s3.rate_limit", 0)

	v.SetDefault("selection.extensions", []string{})
	v.SetDefault("selection.exclude", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load resolves configuration with precedence defaults < INI file <
// environment < overrides, validates it and records it for GetConfig.
//
// An empty path reads DefaultConfigFile if it exists. An explicit path must
// exist. Overrides are nested maps keyed like the config paths
// ({"streamer": {"s3_prefix": "jazz/"}}).
func Load(path string, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	source, err := mergeINI(v, path)
	if err != nil {
		return nil, err
	}

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("decode: %w", err)}
	}
	cfg.Source = source

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()

	return &cfg, nil
}

// GetConfig returns the configuration from the last successful Load.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// mergeINI reads the INI file into v's config layer and returns the path
// that was read. Section and key names are case-insensitive.
func mergeINI(v *viper.Viper, path string) (string, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", &ConfigError{Err: fmt.Errorf("read %s: %w", path, err)}
	}

	f, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
	if err != nil {
		return "", &ConfigError{Err: fmt.Errorf("parse %s: %w", path, err)}
	}

	settings := map[string]any{}
	for _, section := range f.Sections() {
		if strings.EqualFold(section.Name(), ini.DefaultSection) {
			continue
		}
		values := map[string]any{}
		for _, key := range section.Keys() {
			values[key.Name()] = key.String()
		}
		settings[section.Name()] = values
	}
	if _, ok := settings["streamer"]; !ok {
		return "", &ConfigError{Key: "streamer", Err: fmt.Errorf("section missing from %s", path)}
	}

	if err := v.MergeConfigMap(settings); err != nil {
		return "", &ConfigError{Err: fmt.Errorf("merge %s: %w", path, err)}
	}
	return path, nil
}

// normalize expands ~ in paths and trims list entries.
func (c *Config) normalize() error {
	c.Selection.Extensions = trimList(c.Selection.Extensions)
	c.Selection.Exclude = trimList(c.Selection.Exclude)

	dir, err := homedir.Expand(strings.TrimSpace(c.Storage.Dir))
	if err != nil {
		return &ConfigError{Key: "storage.dir", Err: err}
	}
	c.Storage.Dir = dir

	if c.Streamer.Provider == ProviderFile {
		bucket, err := homedir.Expand(strings.TrimSpace(c.Streamer.BucketName))
		if err != nil {
			return &ConfigError{Key: "streamer.bucket_name", Err: err}
		}
		c.Streamer.BucketName = bucket
	}
	return nil
}

// Validate checks the settings needed before any remote access.
func (c *Config) Validate() error {
	c.Streamer.BucketName = strings.TrimSpace(c.Streamer.BucketName)
	if c.Streamer.BucketName == "" {
		return &ConfigError{Key: "streamer.bucket_name", Err: errors.New("BUCKET_NAME not configured")}
	}
	switch c.Streamer.Provider {
	case ProviderS3, ProviderFile:
	default:
		return &ConfigError{Key: "streamer.provider", Err: fmt.Errorf("unsupported provider %q", c.Streamer.Provider)}
	}
	if c.Storage.Dir == "" {
		return &ConfigError{Key: "storage.dir", Err: errors.New("storage dir is required")}
	}
	if c.Storage.CacheFile == "" {
		return &ConfigError{Key: "storage.cache_file", Err: errors.New("cache file name is required")}
	}
	if c.Storage.Retention <= 0 {
		return &ConfigError{Key: "storage.retention", Err: fmt.Errorf("retention must be positive, got %s", c.Storage.Retention)}
	}
	if c.S3.MaxKeys < 0 {
		return &ConfigError{Key: "s3.max_keys", Err: fmt.Errorf("max_keys must be >= 0, got %d", c.S3.MaxKeys)}
	}
	if c.S3.RateLimit < 0 {
		return &ConfigError{Key: "s3.rate_limit", Err: fmt.Errorf("rate_limit must be >= 0, got %g", c.S3.RateLimit)}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		return &ConfigError{Key: "logging.format", Err: fmt.Errorf("unsupported log format %q", c.Logging.Format)}
	}
	return nil
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := map[string]any{}
	for k, val := range m {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
