package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mikey/image-mod-relay/internal/config"
	"github.com/mikey/image-mod-relay/internal/core"
	"github.com/mikey/image-mod-relay/internal/metrics"
	"go.uber.org/zap"
)

// ErrNoAdmins is returned when no admin identities are configured
var ErrNoAdmins = errors.New("no admin ids configured (policy.admin_ids)")

// State is the mutable part of the policy that survives restarts
type State struct {
	WhitelistGroups   []string `json:"whitelist_groups"`
	AutoRecallGroups  []string `json:"auto_recall_groups"`
	ViolationKeywords []string `json:"violation_keywords"`
}

// Persister stores policy state durably
type Persister interface {
	// Load returns the stored state, or nil when nothing was stored yet
	Load(ctx context.Context) (*State, error)
	// Save replaces the stored state
	Save(ctx context.Context, state *State) error
	Close() error
}

// Store owns the live moderation policy. Mutations are serialized and
// persisted before the lock is released; readers never see partial sets.
type Store struct {
	mu         sync.RWMutex
	admins     *orderedSet
	whitelist  *orderedSet
	autoRecall *orderedSet
	keywords   *orderedSet

	threshold    float64
	evidencePath string

	persister  Persister
	persistErr error
	logger     *zap.Logger
}

// NewStore builds the store from configuration, then overlays any state
// previously saved by the persister
func NewStore(ctx context.Context, cfg config.PolicyConfig, evidencePath string, persister Persister, logger *zap.Logger) (*Store, error) {
	admins := newOrderedSet(cfg.AdminIDs...)
	if admins.Len() == 0 {
		return nil, ErrNoAdmins
	}

	s := &Store{
		admins:       admins,
		whitelist:    newOrderedSet(cfg.WhitelistGroups...),
		autoRecall:   newOrderedSet(cfg.AutoRecallGroups...),
		keywords:     newOrderedSet(cfg.ViolationKeywords...),
		threshold:    cfg.ConfidenceThreshold,
		evidencePath: evidencePath,
		persister:    persister,
		logger:       logger,
	}

	state, err := persister.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy state: %w", err)
	}
	if state != nil {
		s.whitelist = newOrderedSet(state.WhitelistGroups...)
		s.autoRecall = newOrderedSet(state.AutoRecallGroups...)
		if len(state.ViolationKeywords) > 0 {
			s.keywords = newOrderedSet(state.ViolationKeywords...)
		}
		logger.Info("Loaded persisted policy state",
			zap.Int("whitelist_groups", s.whitelist.Len()),
			zap.Int("auto_recall_groups", s.autoRecall.Len()),
			zap.Int("violation_keywords", s.keywords.Len()))
	}

	return s, nil
}

// IsAdmin reports whether userID may issue admin commands
func (s *Store) IsAdmin(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.admins.Has(userID)
}

// IsWhitelisted reports whether images in groupID are moderated
func (s *Store) IsWhitelisted(groupID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.whitelist.Has(groupID)
}

// IsAutoRecall reports whether violations in groupID are recalled
func (s *Store) IsAutoRecall(groupID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoRecall.Has(groupID)
}

// AddWhitelist adds groupID; false means it was already present
func (s *Store) AddWhitelist(ctx context.Context, groupID string) bool {
	return s.mutate(ctx, "add_whitelist", func() bool {
		return s.whitelist.Add(groupID)
	})
}

// RemoveWhitelist removes groupID along with its auto-recall flag; false
// means it was absent
func (s *Store) RemoveWhitelist(ctx context.Context, groupID string) bool {
	return s.mutate(ctx, "remove_whitelist", func() bool {
		if !s.whitelist.Remove(groupID) {
			return false
		}
		s.autoRecall.Remove(groupID)
		return true
	})
}

// EnableAutoRecall flags groupID for auto-recall; false means it already was
func (s *Store) EnableAutoRecall(ctx context.Context, groupID string) bool {
	return s.mutate(ctx, "enable_auto_recall", func() bool {
		return s.autoRecall.Add(groupID)
	})
}

// DisableAutoRecall clears the auto-recall flag; false means it was not set
func (s *Store) DisableAutoRecall(ctx context.Context, groupID string) bool {
	return s.mutate(ctx, "disable_auto_recall", func() bool {
		return s.autoRecall.Remove(groupID)
	})
}

// AddKeyword adds a violation keyword; false means it was already present
func (s *Store) AddKeyword(ctx context.Context, keyword string) bool {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return false
	}
	return s.mutate(ctx, "add_keyword", func() bool {
		return s.keywords.Add(keyword)
	})
}

// RemoveKeyword removes a violation keyword; false means it was absent
func (s *Store) RemoveKeyword(ctx context.Context, keyword string) bool {
	return s.mutate(ctx, "remove_keyword", func() bool {
		return s.keywords.Remove(strings.TrimSpace(keyword))
	})
}

// ListWhitelist returns the whitelisted groups in insertion order
func (s *Store) ListWhitelist() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.whitelist.Items()
}

// ListAutoRecall returns the auto-recall groups in insertion order
func (s *Store) ListAutoRecall() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoRecall.Items()
}

// Keywords returns the violation keywords in insertion order
func (s *Store) Keywords() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keywords.Items()
}

// Snapshot returns an immutable copy of the policy
func (s *Store) Snapshot() core.PolicySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.PolicySnapshot{
		AdminIDs:            s.admins.Items(),
		WhitelistGroups:     s.whitelist.Items(),
		AutoRecallGroups:    s.autoRecall.Items(),
		ViolationKeywords:   s.keywords.Items(),
		ConfidenceThreshold: s.threshold,
		EvidencePath:        s.evidencePath,
	}
}

// PersistError returns the save error of the most recent mutation, nil
// when it was persisted or changed nothing
func (s *Store) PersistError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistErr
}

// Close releases the persister
func (s *Store) Close() error {
	return s.persister.Close()
}

func (s *Store) mutate(ctx context.Context, op string, change func() bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.persistErr = nil
	if !change() {
		metrics.PolicyMutations.WithLabelValues(op, "noop").Inc()
		return false
	}

	state := &State{
		WhitelistGroups:   s.whitelist.Items(),
		AutoRecallGroups:  s.autoRecall.Items(),
		ViolationKeywords: s.keywords.Items(),
	}
	if err := s.persister.Save(ctx, state); err != nil {
		// the in-memory change stands; it is lost on restart
		s.persistErr = err
		metrics.PolicyMutations.WithLabelValues(op, "unpersisted").Inc()
		s.logger.Error("Failed to persist policy change",
			zap.String("op", op),
			zap.Error(err))
		return true
	}

	metrics.PolicyMutations.WithLabelValues(op, "ok").Inc()
	return true
}

var _ core.Policy = (*Store)(nil)
