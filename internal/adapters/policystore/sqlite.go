package policystore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteStore is a SQLite implementation of policy.Persister
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore opens (or creates) the policy database at dbPath
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	store, err := newSQLStore(db, "sqlite", logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{sqlStore: store}, nil
}
