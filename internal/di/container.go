package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/image-mod-relay/internal/adapters/gateway"
	"github.com/mikey/image-mod-relay/internal/classifier"
	"github.com/mikey/image-mod-relay/internal/config"
	"github.com/mikey/image-mod-relay/internal/core"
	"github.com/mikey/image-mod-relay/internal/factory"
	"github.com/mikey/image-mod-relay/internal/logging"
	"github.com/mikey/image-mod-relay/internal/metrics"
	"github.com/mikey/image-mod-relay/internal/policy"
	"github.com/mikey/image-mod-relay/internal/scheduler"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideShared(container); err != nil {
		return nil, err
	}

	// Register gateway
	if err := container.Provide(func(cfg *config.Config) (config.GatewayConfig, error) {
		return cfg.GetGateway()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(gateway.NewClient); err != nil {
		return nil, err
	}
	if err := container.Provide(func(c *gateway.Client) core.Gateway {
		return c
	}); err != nil {
		return nil, err
	}

	// Register scheduler
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *scheduler.Scheduler {
		return scheduler.New(cfg.GetInt("scheduler.workers"), "events", logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s *scheduler.Scheduler) core.Scheduler {
		return s
	}); err != nil {
		return nil, err
	}

	// Register moderation pipeline
	if err := container.Provide(func(cfg *config.Config) core.ModerationSettings {
		moderationCfg := cfg.GetModeration()
		return core.ModerationSettings{
			ActOnMock:         moderationCfg.ActOnMock,
			MaxParallelImages: moderationCfg.MaxParallelImages,
		}
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(core.NewModerationService); err != nil {
		return nil, err
	}
	if err := container.Provide(func(store *policy.Store, gw core.Gateway, logger *zap.Logger) *core.CommandHandler {
		return core.NewCommandHandler(store, gw, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(core.NewRouter); err != nil {
		return nil, err
	}

	// Register gateway link, feeding the router
	if err := container.Provide(func(gwCfg config.GatewayConfig, router *core.Router, logger *zap.Logger) *gateway.Link {
		return gateway.NewLink(gwCfg, func(ctx context.Context, ev *core.Event) {
			if _, err := router.Dispatch(ctx, ev); err != nil {
				logger.Error("Failed to dispatch event",
					zap.String("group_id", ev.GroupID),
					zap.String("user_id", ev.UserID),
					zap.Error(err))
			}
		}, logger)
	}); err != nil {
		return nil, err
	}

	// Register metrics listener
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *metrics.Server {
		return metrics.NewServer(cfg.GetString("metrics.listen_address"), logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideShared registers what the daemon and the CLI have in common:
// factories, the classifier, the policy store, the engine and the sinks
func provideShared(container *dig.Container) error {
	// Register factories
	if err := container.Provide(factory.NewOracleFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewPolicyFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewEvidenceFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewNotifierFactory); err != nil {
		return err
	}

	// Register classifier
	if err := container.Provide(func(f *factory.OracleFactory) (*classifier.Client, error) {
		return f.CreateClassifier()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(c *classifier.Client) core.ImageClassifier {
		return c
	}); err != nil {
		return err
	}

	// Register policy store
	if err := container.Provide(func(f *factory.PolicyFactory) (*policy.Store, error) {
		return f.CreateStore()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(s *policy.Store) core.PolicyReader {
		return s
	}); err != nil {
		return err
	}

	// Register engine
	if err := container.Provide(func(cfg *config.Config) *core.Engine {
		return core.NewEngine(cfg.GetModeration().LabelNames)
	}); err != nil {
		return err
	}

	// Register evidence store and notifier
	if err := container.Provide(func(f *factory.EvidenceFactory) (core.EvidenceStore, error) {
		return f.CreateEvidenceStore()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.NotifierFactory) (core.Notifier, error) {
		return f.CreateNotifier()
	}); err != nil {
		return err
	}

	return nil
}
