package policystore

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// MySQLStore is a MySQL implementation of policy.Persister
type MySQLStore struct {
	*sqlStore
}

// NewMySQLStore connects to the policy database at dsn
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	store, err := newSQLStore(db, "mysql", logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &MySQLStore{sqlStore: store}, nil
}
