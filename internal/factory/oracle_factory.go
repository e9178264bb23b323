package factory

import (
	"fmt"

	"github.com/mikey/image-mod-relay/internal/adapters/bedrock"
	"github.com/mikey/image-mod-relay/internal/adapters/gemini"
	"github.com/mikey/image-mod-relay/internal/adapters/httporacle"
	"github.com/mikey/image-mod-relay/internal/adapters/openai"
	"github.com/mikey/image-mod-relay/internal/classifier"
	"github.com/mikey/image-mod-relay/internal/config"
	"github.com/mikey/image-mod-relay/internal/utils"
	"go.uber.org/zap"
)

// OracleFactory creates classification oracles
type OracleFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewOracleFactory creates a new oracle factory
func NewOracleFactory(cfg *config.Config, logger *zap.Logger) *OracleFactory {
	return &OracleFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateOracle creates the oracle named by classifier.provider. The mock
// provider has no oracle and returns nil.
func (f *OracleFactory) CreateOracle() (classifier.Oracle, error) {
	classifierCfg, err := f.cfg.GetClassifier()
	if err != nil {
		return nil, err
	}

	switch classifierCfg.Provider {
	case "http":
		if classifierCfg.HTTPURL == "" {
			return nil, fmt.Errorf("classifier.http.url is required")
		}
		// the client timeout covers retries; the classifier bounds the call as a whole
		httpClient := utils.RobustHTTPClient(f.logger, 2, classifierCfg.Timeout)
		return httporacle.NewClient(
			httpClient,
			classifierCfg.HTTPURL,
			classifierCfg.Version,
			classifierCfg.ModelPath,
			classifierCfg.Labels,
			f.logger,
		), nil
	case "openai":
		return openai.NewFactory(f.cfg, f.logger).CreateOracle(classifierCfg.Labels)
	case "gemini":
		return gemini.NewFactory(f.cfg, f.logger).CreateOracle(classifierCfg.Labels)
	case "bedrock":
		return bedrock.NewFactory(f.cfg, f.logger).CreateOracle(classifierCfg.Labels)
	case "mock":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported classifier provider: %s", classifierCfg.Provider)
	}
}

// CreateClassifier builds the classification client. An oracle that
// cannot be created leaves the client in mock mode.
func (f *OracleFactory) CreateClassifier() (*classifier.Client, error) {
	classifierCfg, err := f.cfg.GetClassifier()
	if err != nil {
		return nil, err
	}

	oracle, err := f.CreateOracle()
	if err != nil {
		f.logger.Error("Failed to create classification oracle, falling back to mock results",
			zap.String("provider", classifierCfg.Provider),
			zap.Error(err))
		oracle = nil
	}

	return classifier.NewClient(oracle, classifierCfg, f.logger), nil
}
