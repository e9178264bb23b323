package policystore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/mikey/image-mod-relay/internal/policy"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	keyWhitelistGroups   = "policy.whitelist_groups"
	keyAutoRecallGroups  = "policy.auto_recall_groups"
	keyViolationKeywords = "policy.violation_keywords"
)

// DefaultStateFile is used when neither a state file nor a config file is
// available to write into
const DefaultStateFile = "policy_state.yaml"

// ConfigStore writes the mutable policy lists back into configuration.
// With a state file they go to that file; otherwise they are merged into the
// config file the process was started with. Only the policy lists are
// written: defaults and environment values never reach the disk.
type ConfigStore struct {
	mu         sync.Mutex
	configFile string
	stateFile  string
	logger     *zap.Logger
}

var _ policy.Persister = (*ConfigStore)(nil)

// NewConfigStore creates a config write-back persister. configFile is the
// file the configuration was read from, empty when none was found.
func NewConfigStore(configFile, stateFile string, logger *zap.Logger) *ConfigStore {
	if stateFile == "" && configFile == "" {
		stateFile = DefaultStateFile
		logger.Warn("No config file to write policy into, using state file",
			zap.String("state_file", stateFile))
	}
	return &ConfigStore{
		configFile: configFile,
		stateFile:  stateFile,
		logger:     logger,
	}
}

// Path returns the file policy changes are written to
func (s *ConfigStore) Path() string {
	if s.stateFile != "" {
		return s.stateFile
	}
	return s.configFile
}

// Load reads the state file if one is configured and exists. Without a
// state file the configuration already holds the state.
func (s *ConfigStore) Load(ctx context.Context) (*policy.State, error) {
	if s.stateFile == "" {
		return nil, nil
	}
	if _, err := os.Stat(s.stateFile); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	sv := viper.New()
	sv.SetConfigFile(s.stateFile)
	if err := sv.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read policy state file: %w", err)
	}
	return &policy.State{
		WhitelistGroups:   sv.GetStringSlice(keyWhitelistGroups),
		AutoRecallGroups:  sv.GetStringSlice(keyAutoRecallGroups),
		ViolationKeywords: sv.GetStringSlice(keyViolationKeywords),
	}, nil
}

func (s *ConfigStore) Save(ctx context.Context, state *policy.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stateFile != "" {
		sv := viper.New()
		setState(sv, state)
		if err := sv.WriteConfigAs(s.stateFile); err != nil {
			return fmt.Errorf("failed to write policy state file: %w", err)
		}
		return nil
	}

	// a fresh instance holds only what is in the file
	sv := viper.New()
	sv.SetConfigFile(s.configFile)
	if err := sv.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	setState(sv, state)
	if err := sv.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	s.logger.Debug("Wrote policy back to config file", zap.String("file", s.configFile))
	return nil
}

func (s *ConfigStore) Close() error {
	return nil
}

func setState(v *viper.Viper, state *policy.State) {
	v.Set(keyWhitelistGroups, state.WhitelistGroups)
	v.Set(keyAutoRecallGroups, state.AutoRecallGroups)
	v.Set(keyViolationKeywords, state.ViolationKeywords)
}
