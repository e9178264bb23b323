package config

import (
	"fmt"
	"time"
)

// unsetModelPath is the placeholder shipped in sample configs
const unsetModelPath = "your_model_dir_or_file_path"

// GatewayConfig represents the messaging gateway connection settings
type GatewayConfig struct {
	WSURL             string
	HTTPURL           string
	AccessToken       string
	ReconnectInterval time.Duration
	CommandTimeout    time.Duration
	FetchTimeout      time.Duration
	FetchRetries      int
	MaxImageBytes     int64
}

// PolicyConfig represents the initial moderation policy and its storage
type PolicyConfig struct {
	AdminIDs            []string
	WhitelistGroups     []string
	AutoRecallGroups    []string
	ViolationKeywords   []string
	ConfidenceThreshold float64
	Store               string
	StateFile           string
	SQLitePath          string
	MySQLDSN            string
	RedisURL            string
}

// ClassifierConfig represents the image classifier settings
type ClassifierConfig struct {
	Provider              string
	Version               string
	Labels                []string
	ModelPath             string
	Timeout               time.Duration
	MaxPixels             int64
	HTTPURL               string
	CacheEnabled          bool
	CacheTTL              time.Duration
	CacheCleanupFrequency time.Duration
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
}

// ModerationConfig represents how verdicts are rendered and acted on
type ModerationConfig struct {
	LabelNames        map[string]string
	ActOnMock         bool
	MaxParallelImages int
}

// EvidenceConfig represents where violation evidence is written
type EvidenceConfig struct {
	Type       string
	Path       string
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Prefix   string

	// Static credentials, used together with S3Endpoint for S3-compatible
	// stores such as minio
	S3AccessKey string
	S3SecretKey string
}

// NotifyConfig represents the optional moderator mail notification
type NotifyConfig struct {
	SMTPEnabled bool
	SMTPAddress string
	From        string
	To          []string
}

// GetGateway returns the gateway configuration
func (c *Config) GetGateway() (GatewayConfig, error) {
	reconnect, err := c.GetDuration("gateway.reconnect_interval")
	if err != nil {
		return GatewayConfig{}, fmt.Errorf("invalid gateway reconnect interval: %w", err)
	}
	commandTimeout, err := c.GetDuration("gateway.command_timeout")
	if err != nil {
		return GatewayConfig{}, fmt.Errorf("invalid gateway command timeout: %w", err)
	}
	fetchTimeout, err := c.GetDuration("gateway.fetch_timeout")
	if err != nil {
		return GatewayConfig{}, fmt.Errorf("invalid gateway fetch timeout: %w", err)
	}
	return GatewayConfig{
		WSURL:             c.GetString("gateway.ws_url"),
		HTTPURL:           c.GetString("gateway.http_url"),
		AccessToken:       c.GetString("gateway.access_token"),
		ReconnectInterval: reconnect,
		CommandTimeout:    commandTimeout,
		FetchTimeout:      fetchTimeout,
		FetchRetries:      c.GetInt("gateway.fetch_retries"),
		MaxImageBytes:     c.GetInt64("gateway.max_image_bytes"),
	}, nil
}

// GetPolicy returns the policy configuration
func (c *Config) GetPolicy() PolicyConfig {
	return PolicyConfig{
		AdminIDs:            c.GetStringSlice("policy.admin_ids"),
		WhitelistGroups:     c.GetStringSlice("policy.whitelist_groups"),
		AutoRecallGroups:    c.GetStringSlice("policy.auto_recall_groups"),
		ViolationKeywords:   c.GetStringSlice("policy.violation_keywords"),
		ConfidenceThreshold: c.GetFloat64("policy.confidence_threshold"),
		Store:               c.GetString("policy.store"),
		StateFile:           c.GetString("policy.state_file"),
		SQLitePath:          c.GetString("policy.sqlite_path"),
		MySQLDSN:            c.GetString("policy.mysql_dsn"),
		RedisURL:            c.GetString("policy.redis_url"),
	}
}

// GetClassifier returns the classifier configuration
func (c *Config) GetClassifier() (ClassifierConfig, error) {
	timeout, err := c.GetDuration("classifier.timeout")
	if err != nil {
		return ClassifierConfig{}, fmt.Errorf("invalid classifier timeout: %w", err)
	}
	ttl, err := c.GetDuration("classifier.cache.ttl")
	if err != nil {
		return ClassifierConfig{}, fmt.Errorf("invalid classifier cache ttl: %w", err)
	}
	cleanup, err := c.GetDuration("classifier.cache.cleanup_frequency")
	if err != nil {
		return ClassifierConfig{}, fmt.Errorf("invalid classifier cache cleanup frequency: %w", err)
	}

	labels := c.GetStringSlice("classifier.labels")
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	modelPath := c.GetString("classifier.model_path")
	if modelPath == unsetModelPath {
		modelPath = ""
	}

	return ClassifierConfig{
		Provider:              c.GetString("classifier.provider"),
		Version:               c.GetString("classifier.version"),
		Labels:                labels,
		ModelPath:             modelPath,
		Timeout:               timeout,
		MaxPixels:             c.GetInt64("classifier.max_pixels"),
		HTTPURL:               c.GetString("classifier.http.url"),
		CacheEnabled:          c.GetBool("classifier.cache.enabled"),
		CacheTTL:              ttl,
		CacheCleanupFrequency: cleanup,
	}, nil
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
	}
}

// GetModeration returns the moderation configuration
func (c *Config) GetModeration() ModerationConfig {
	return ModerationConfig{
		LabelNames:        c.GetStringMapString("moderation.label_names"),
		ActOnMock:         c.GetBool("moderation.act_on_mock"),
		MaxParallelImages: c.GetInt("moderation.max_parallel_images"),
	}
}

// GetEvidence returns the evidence sink configuration
func (c *Config) GetEvidence() EvidenceConfig {
	return EvidenceConfig{
		Type:       c.GetString("evidence.type"),
		Path:       c.GetString("evidence.path"),
		S3Bucket:   c.GetString("evidence.s3.bucket"),
		S3Region:   c.GetString("evidence.s3.region"),
		S3Endpoint: c.GetString("evidence.s3.endpoint"),
		S3Prefix:   c.GetString("evidence.s3.prefix"),

		S3AccessKey: c.GetString("evidence.s3.access_key"),
		S3SecretKey: c.GetString("evidence.s3.secret_key"),
	}
}

// GetNotify returns the notification configuration
func (c *Config) GetNotify() NotifyConfig {
	return NotifyConfig{
		SMTPEnabled: c.GetBool("notify.smtp.enabled"),
		SMTPAddress: c.GetString("notify.smtp.address"),
		From:        c.GetString("notify.smtp.from"),
		To:          c.GetStringSlice("notify.smtp.to"),
	}
}
