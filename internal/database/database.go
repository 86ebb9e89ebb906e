// Package database provides connection management for the shapecat dataset store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "modernc.org/sqlite"             // SQLite driver

	"github.com/dbsmedya/shapecat/internal/config"
)

// Driver names accepted in StoreConfig.Driver.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Manager owns the connection to the dataset store.
type Manager struct {
	Store  *sql.DB
	config *config.StoreConfig
}

// NewManager creates a new database manager from configuration.
func NewManager(cfg *config.StoreConfig) *Manager {
	return &Manager{
		config: cfg,
	}
}

// Driver returns the configured driver name.
func (m *Manager) Driver() string {
	return m.config.Driver
}

// Connect establishes the store connection.
func (m *Manager) Connect(ctx context.Context) error {
	db, err := m.connectWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to %s store: %w", m.config.Driver, err)
	}
	m.Store = db
	return nil
}

// connectWithRetry attempts to connect with exponential backoff.
func (m *Manager) connectWithRetry(ctx context.Context) (*sql.DB, error) {
	var err error

	maxRetries := 3
	backoff := time.Second

	for i := 0; i < maxRetries; i++ {
		var db *sql.DB
		db, err = m.open()
		if err == nil {
			pingErr := db.PingContext(ctx)
			if pingErr == nil {
				return db, nil
			}
			db.Close()
			err = pingErr
		}

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}

	return nil, fmt.Errorf("failed after %d retries: %w", maxRetries, err)
}

// open creates the pool without verifying it.
func (m *Manager) open() (*sql.DB, error) {
	switch m.config.Driver {
	case DriverMySQL:
		db, err := sql.Open(DriverMySQL, BuildDSN(m.config))
		if err != nil {
			return nil, err
		}
		if m.config.MaxConnections > 0 {
			db.SetMaxOpenConns(m.config.MaxConnections)
		}
		if m.config.MaxIdleConnections > 0 {
			db.SetMaxIdleConns(m.config.MaxIdleConnections)
		}
		db.SetConnMaxLifetime(10 * time.Minute)
		return db, nil
	case DriverSQLite:
		db, err := sql.Open(DriverSQLite, BuildSQLitePath(m.config.Path))
		if err != nil {
			return nil, err
		}
		// A single connection keeps ":memory:" databases shared and serializes writers.
		db.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", m.config.Driver)
	}
}

// BuildDSN constructs a MySQL DSN from configuration.
func BuildDSN(cfg *config.StoreConfig) string {
	// Format: user:password@tcp(host:port)/database?params
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
	)

	if cfg.Database != "" {
		dsn += cfg.Database
	}

	params := "?parseTime=true"
	switch cfg.TLS {
	case "disable":
		params += "&tls=false"
	case "required":
		params += "&tls=true"
	case "preferred", "":
		params += "&tls=preferred"
	}

	return dsn + params
}

// BuildSQLitePath returns the modernc sqlite DSN for a database file.
func BuildSQLitePath(path string) string {
	if path == ":memory:" {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// Close closes the store connection.
func (m *Manager) Close() error {
	if m.Store == nil {
		return nil
	}
	if err := m.Store.Close(); err != nil {
		return fmt.Errorf("store close: %w", err)
	}
	return nil
}

// Ping verifies the connection is alive.
func (m *Manager) Ping(ctx context.Context) error {
	if m.Store == nil {
		return fmt.Errorf("store is not connected")
	}
	if err := m.Store.PingContext(ctx); err != nil {
		return fmt.Errorf("store ping failed: %w", err)
	}
	return nil
}
