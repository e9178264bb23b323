package factory

import (
	"github.com/mikey/image-mod-relay/internal/adapters/notify"
	"github.com/mikey/image-mod-relay/internal/config"
	"github.com/mikey/image-mod-relay/internal/core"
	"go.uber.org/zap"
)

// NotifierFactory creates the moderator notifier
type NotifierFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewNotifierFactory creates a new notifier factory
func NewNotifierFactory(cfg *config.Config, logger *zap.Logger) *NotifierFactory {
	return &NotifierFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateNotifier returns nil when notifications are disabled
func (f *NotifierFactory) CreateNotifier() (core.Notifier, error) {
	notifyCfg := f.cfg.GetNotify()
	if !notifyCfg.SMTPEnabled {
		return nil, nil
	}
	return notify.NewSMTPNotifier(notifyCfg, f.logger)
}
