package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	return NewWithFile("")
}

// NewWithFile creates a configuration instance, reading the given file when
// it is not empty and searching the default locations otherwise
func NewWithFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/image-mod-relay/")
		v.AddConfigPath("$HOME/.image-mod-relay")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("MOD_RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// DefaultLabels is the label set of the stock sensitive-image model
var DefaultLabels = []string{"cartoon", "porn", "politic", "other"}

// DefaultViolationKeywords are matched against classifier labels
var DefaultViolationKeywords = []string{"porn", "politic", "explicit", "sexual", "sex", "敏感", "色情"}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Gateway defaults
	v.SetDefault("gateway.ws_url", "ws://localhost:3001")
	v.SetDefault("gateway.http_url", "http://localhost:3000")
	v.SetDefault("gateway.access_token", "")
	v.SetDefault("gateway.reconnect_interval", "5s")
	v.SetDefault("gateway.command_timeout", "10s")
	v.SetDefault("gateway.fetch_timeout", "20s")
	v.SetDefault("gateway.fetch_retries", 2)
	v.SetDefault("gateway.max_image_bytes", 20*1024*1024)

	// Policy defaults
	v.SetDefault("policy.admin_ids", []string{})
	v.SetDefault("policy.whitelist_groups", []string{})
	v.SetDefault("policy.auto_recall_groups", []string{})
	v.SetDefault("policy.violation_keywords", DefaultViolationKeywords)
	v.SetDefault("policy.confidence_threshold", 0.65)
	v.SetDefault("policy.store", "config")
	v.SetDefault("policy.state_file", "")
	v.SetDefault("policy.sqlite_path", "/data/policy.db")
	v.SetDefault("policy.mysql_dsn", "user:password@tcp(localhost:3306)/image_mod_relay")
	v.SetDefault("policy.redis_url", "redis://localhost:6379/0")

	// Classifier defaults
	v.SetDefault("classifier.provider", "http")
	v.SetDefault("classifier.version", "v2")
	v.SetDefault("classifier.labels", DefaultLabels)
	v.SetDefault("classifier.model_path", "")
	v.SetDefault("classifier.timeout", "30s")
	v.SetDefault("classifier.max_pixels", 40_000_000)
	v.SetDefault("classifier.http.url", "http://localhost:8500/classify")
	v.SetDefault("classifier.cache.enabled", true)
	v.SetDefault("classifier.cache.ttl", "24h")
	v.SetDefault("classifier.cache.cleanup_frequency", "1h")

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-3-haiku-20240307-v1:0")
	v.SetDefault("bedrock.max_tokens", 300)
	v.SetDefault("bedrock.temperature", 0.0)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-1.5-flash")
	v.SetDefault("gemini.max_tokens", 300)
	v.SetDefault("gemini.temperature", 0.0)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 300)
	v.SetDefault("openai.temperature", 0.0)

	// Moderation defaults
	v.SetDefault("moderation.label_names", map[string]string{})
	v.SetDefault("moderation.act_on_mock", false)
	v.SetDefault("moderation.max_parallel_images", 4)

	// Evidence defaults
	v.SetDefault("evidence.type", "fs")
	v.SetDefault("evidence.path", "violations")
	v.SetDefault("evidence.s3.bucket", "")
	v.SetDefault("evidence.s3.region", "us-east-1")
	v.SetDefault("evidence.s3.endpoint", "")
	v.SetDefault("evidence.s3.prefix", "violations/")
	v.SetDefault("evidence.s3.access_key", "")
	v.SetDefault("evidence.s3.secret_key", "")

	// Notification defaults
	v.SetDefault("notify.smtp.enabled", false)
	v.SetDefault("notify.smtp.address", "localhost:25")
	v.SetDefault("notify.smtp.from", "image-mod-relay@localhost")
	v.SetDefault("notify.smtp.to", []string{})

	// Scheduler defaults
	v.SetDefault("scheduler.workers", 16)

	// Metrics defaults
	v.SetDefault("metrics.listen_address", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetInt64 gets a 64-bit integer value from the configuration
func (c *Config) GetInt64(key string) int64 {
	return c.v.GetInt64(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetStringMapString gets a string map from the configuration
func (c *Config) GetStringMapString(key string) map[string]string {
	return c.v.GetStringMapString(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
