package di

import (
	"flag"
	"strings"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/image-mod-relay/internal/config"
	"github.com/mikey/image-mod-relay/internal/logging"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Classifier flags
	Provider      string
	ClassifierURL string
	Version       string
	ModelPath     string
	Labels        string
	Timeout       string

	// OpenAI flags
	OpenAIAPIKey    string
	OpenAIModelName string

	// Gemini flags
	GeminiAPIKey    string
	GeminiModelName string

	// Bedrock flags
	BedrockRegion  string
	BedrockModelID string

	// Policy flags
	Threshold float64
	Keywords  string

	// Policy store operation, e.g. "list" or "add-whitelist"
	PolicyOp  string
	PolicyArg string

	// Input flags
	InputFile  string
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	// Classifier flags
	flag.StringVar(&flags.Provider, "provider", "mock", "Classifier provider (http, openai, gemini, bedrock, mock)")
	flag.StringVar(&flags.ClassifierURL, "classifier-url", "http://localhost:8500/classify", "Classification service URL for the http provider")
	flag.StringVar(&flags.Version, "classifier-version", "v2", "Classification model version")
	flag.StringVar(&flags.ModelPath, "model-path", "", "Classification model path")
	flag.StringVar(&flags.Labels, "labels", strings.Join(config.DefaultLabels, ","), "Comma-separated classifier labels")
	flag.StringVar(&flags.Timeout, "timeout", "30s", "Classification timeout")

	// OpenAI flags
	flag.StringVar(&flags.OpenAIAPIKey, "openai-api-key", "", "API key for OpenAI")
	flag.StringVar(&flags.OpenAIModelName, "openai-model", "gpt-4o-mini", "OpenAI model name")

	// Gemini flags
	flag.StringVar(&flags.GeminiAPIKey, "gemini-api-key", "", "API key for Google Gemini")
	flag.StringVar(&flags.GeminiModelName, "gemini-model", "gemini-1.5-flash", "Gemini model name")

	// Bedrock flags
	flag.StringVar(&flags.BedrockRegion, "bedrock-region", "us-east-1", "AWS region for Bedrock")
	flag.StringVar(&flags.BedrockModelID, "bedrock-model", "anthropic.claude-3-haiku-20240307-v1:0", "Bedrock model ID")

	// Policy flags
	flag.Float64Var(&flags.Threshold, "threshold", 0.65, "Confidence threshold for a violation")
	flag.StringVar(&flags.Keywords, "keywords", strings.Join(config.DefaultViolationKeywords, ","), "Comma-separated violation keywords")
	flag.StringVar(&flags.PolicyOp, "policy", "", "Policy store operation (list, add-whitelist, remove-whitelist, enable-auto-recall, disable-auto-recall, add-keyword, remove-keyword, list-keywords); requires -config")
	flag.StringVar(&flags.PolicyArg, "arg", "", "Group id or keyword for the policy operation")

	// Input flags
	flag.StringVar(&flags.InputFile, "file", "", "Input image file (use stdin if not specified)")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	flag.Parse()
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.NewWithFile(flags.ConfigFile)
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			return cfg, nil
		}

		// Create config from command line flags
		return createConfigFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}

	if err := provideShared(container); err != nil {
		return nil, err
	}

	return container, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	// Set classifier
	v.Set("classifier.provider", flags.Provider)
	v.Set("classifier.http.url", flags.ClassifierURL)
	v.Set("classifier.version", flags.Version)
	v.Set("classifier.model_path", flags.ModelPath)
	v.Set("classifier.labels", splitList(flags.Labels))
	v.Set("classifier.timeout", flags.Timeout)
	v.Set("classifier.cache.enabled", false)

	// Set provider-specific configuration
	switch flags.Provider {
	case "openai":
		v.Set("openai.api_key", flags.OpenAIAPIKey)
		v.Set("openai.model_name", flags.OpenAIModelName)
	case "gemini":
		v.Set("gemini.api_key", flags.GeminiAPIKey)
		v.Set("gemini.model_name", flags.GeminiModelName)
	case "bedrock":
		v.Set("bedrock.region", flags.BedrockRegion)
		v.Set("bedrock.model_id", flags.BedrockModelID)
	}

	// Set policy
	v.Set("policy.confidence_threshold", flags.Threshold)
	v.Set("policy.violation_keywords", splitList(flags.Keywords))
	v.Set("policy.store", "memory")

	return config.NewFromViper(v)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
