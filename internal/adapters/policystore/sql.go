package policystore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mikey/image-mod-relay/internal/policy"
	"go.uber.org/zap"
)

const (
	kindWhitelist  = "whitelist"
	kindAutoRecall = "auto_recall"
	kindKeyword    = "keyword"
)

// sqlStore persists policy state as one row per set member. The schema is
// shared by the SQLite and MySQL drivers.
type sqlStore struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
}

func newSQLStore(db *sql.DB, driver string, logger *zap.Logger) (*sqlStore, error) {
	// Create tables if they don't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS policy_entries (
			kind VARCHAR(32) NOT NULL,
			value VARCHAR(255) NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (kind, value)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy_entries table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS policy_revision (
			id INTEGER PRIMARY KEY,
			saved_at VARCHAR(64) NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy_revision table: %w", err)
	}

	return &sqlStore{db: db, driver: driver, logger: logger}, nil
}

// Load returns the stored state, or nil if the state was never saved
func (s *sqlStore) Load(ctx context.Context) (*policy.State, error) {
	var savedAt string
	err := s.db.QueryRowContext(ctx, `SELECT saved_at FROM policy_revision WHERE id = 1`).Scan(&savedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query policy revision: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, value
		FROM policy_entries
		ORDER BY kind, position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query policy entries: %w", err)
	}
	defer rows.Close()

	state := &policy.State{}
	for rows.Next() {
		var kind, value string
		if err := rows.Scan(&kind, &value); err != nil {
			return nil, fmt.Errorf("failed to scan policy entry: %w", err)
		}
		switch kind {
		case kindWhitelist:
			state.WhitelistGroups = append(state.WhitelistGroups, value)
		case kindAutoRecall:
			state.AutoRecallGroups = append(state.AutoRecallGroups, value)
		case kindKeyword:
			state.ViolationKeywords = append(state.ViolationKeywords, value)
		default:
			s.logger.Warn("Ignoring unknown policy entry kind", zap.String("kind", kind))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read policy entries: %w", err)
	}

	s.logger.Debug("Loaded policy state",
		zap.String("driver", s.driver),
		zap.String("saved_at", savedAt))
	return state, nil
}

// Save replaces the stored state in one transaction
func (s *sqlStore) Save(ctx context.Context, state *policy.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM policy_entries`); err != nil {
		return fmt.Errorf("failed to clear policy entries: %w", err)
	}

	insert := func(kind string, values []string) error {
		for i, value := range values {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO policy_entries (kind, value, position)
				VALUES (?, ?, ?)
			`, kind, value, i)
			if err != nil {
				return fmt.Errorf("failed to insert %s entry: %w", kind, err)
			}
		}
		return nil
	}
	if err := insert(kindWhitelist, state.WhitelistGroups); err != nil {
		return err
	}
	if err := insert(kindAutoRecall, state.AutoRecallGroups); err != nil {
		return err
	}
	if err := insert(kindKeyword, state.ViolationKeywords); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		REPLACE INTO policy_revision (id, saved_at)
		VALUES (1, ?)
	`, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to update policy revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit policy state: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close %s database: %w", s.driver, err)
	}
	return nil
}
