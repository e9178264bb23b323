package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/image-mod-relay/internal/adapters/policystore"
	"github.com/mikey/image-mod-relay/internal/config"
	"github.com/mikey/image-mod-relay/internal/policy"
	"go.uber.org/zap"
)

// PolicyFactory creates the policy store and its persister
type PolicyFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewPolicyFactory creates a new policy factory
func NewPolicyFactory(cfg *config.Config, logger *zap.Logger) *PolicyFactory {
	return &PolicyFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreatePersister creates the persister named by policy.store
func (f *PolicyFactory) CreatePersister() (policy.Persister, error) {
	policyCfg := f.cfg.GetPolicy()

	switch policyCfg.Store {
	case "config":
		return policystore.NewConfigStore(f.cfg.GetViper().ConfigFileUsed(), policyCfg.StateFile, f.logger), nil
	case "memory":
		return policystore.NewMemoryStore(), nil
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(policyCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return policystore.NewSQLiteStore(policyCfg.SQLitePath, f.logger)
	case "mysql":
		return policystore.NewMySQLStore(policyCfg.MySQLDSN, f.logger)
	case "redis":
		return policystore.NewRedisStore(policyCfg.RedisURL)
	default:
		return nil, fmt.Errorf("unsupported policy store: %s", policyCfg.Store)
	}
}

// CreateStore loads the live policy
func (f *PolicyFactory) CreateStore() (*policy.Store, error) {
	persister, err := f.CreatePersister()
	if err != nil {
		return nil, err
	}

	store, err := policy.NewStore(
		context.Background(),
		f.cfg.GetPolicy(),
		f.cfg.GetEvidence().Path,
		persister,
		f.logger,
	)
	if err != nil {
		persister.Close()
		return nil, err
	}
	return store, nil
}
