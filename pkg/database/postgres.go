package database

import (
	"context"
	"fmt"
	"time"

	"github.com/aisleco/aisle-open/pkg/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL represents a PostgreSQL database connection
type PostgreSQL struct {
	pool *pgxpool.Pool
}

type PostgreSQLConfig struct {
	User              string
	Password          string
	Host              string
	Port              int
	Database          string
	SSLMode           string
	MaxConnections    int32
	ConnectionTimeout time.Duration
}

// NewPostgreSQL creates a new PostgreSQL connection pool
func NewPostgreSQL(ctx context.Context, cfg PostgreSQLConfig) (*PostgreSQL, error) {
	if cfg.Database == "" {
		return nil, fmt.Errorf("database name is required")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("database host is required")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("database user is required")
	}

	// Use pgxpool.ParseConfig to handle special characters in passwords
	poolConfig, err := pgxpool.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("failed to create connection config: %w", err)
	}

	// Set connection parameters individually to avoid URL parsing issues
	poolConfig.ConnConfig.Host = cfg.Host
	poolConfig.ConnConfig.Port = uint16(cfg.Port)
	poolConfig.ConnConfig.Database = cfg.Database
	poolConfig.ConnConfig.User = cfg.User
	poolConfig.ConnConfig.Password = cfg.Password
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectionTimeout

	switch cfg.SSLMode {
	case "disable":
		poolConfig.ConnConfig.TLSConfig = nil
	case "require", "prefer":
		// pgx negotiates TLS with its default config for these modes
	default:
	}

	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MaxConnIdleTime = cfg.ConnectionTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgreSQL{pool: pool}, nil
}

// PostgreSQLFromConfig connects using the flat configuration under the
// "storage.postgres." prefix, applying local defaults. An empty password in
// the config falls back to the keyring.
func PostgreSQLFromConfig(ctx context.Context, cfg *config.Config) (*PostgreSQL, error) {
	password := cfg.Get("storage.postgres.password")
	if password == "" {
		if stored, err := StoredPostgresPassword(); err == nil {
			password = stored
		}
	}

	return NewPostgreSQL(ctx, PostgreSQLConfig{
		User:              cfg.GetOrDefault("storage.postgres.user", "aisle"),
		Password:          password,
		Host:              cfg.GetOrDefault("storage.postgres.host", "localhost"),
		Port:              cfg.GetInt("storage.postgres.port", 5432),
		Database:          cfg.GetOrDefault("storage.postgres.database", "aisle"),
		SSLMode:           cfg.GetOrDefault("storage.postgres.ssl_mode", "disable"),
		MaxConnections:    int32(cfg.GetInt("storage.postgres.max_connections", 10)),
		ConnectionTimeout: cfg.GetDuration("storage.postgres.connection_timeout", 5*time.Second),
	})
}

// Pool returns the underlying connection pool
func (db *PostgreSQL) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks if the database connection is alive
func (db *PostgreSQL) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close closes the database connection
func (db *PostgreSQL) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}
