// Package database provides PostgreSQL connection management for the
// postgres observation backend.
package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcleai/statusboard/internal/config"
)

// Config holds database connection configuration.
type Config struct {
	// URL, when set, is used as is and the discrete fields are ignored.
	URL string

	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ConfigFromEnv reads DATABASE_URL or the DB_* variables. DB_PASSWORD and
// DATABASE_URL may be supplied through their _FILE variants.
func ConfigFromEnv(env *config.Environment) Config {
	lifetime, err := time.ParseDuration(env.Get("DB_CONN_MAX_LIFETIME", "5m"))
	if err != nil || lifetime <= 0 {
		lifetime = 5 * time.Minute
	}

	return Config{
		URL:             env.Get("DATABASE_URL", ""),
		Host:            env.Get("DB_HOST", "localhost"),
		Port:            env.Int("DB_PORT", 5432, 1),
		User:            env.Get("DB_USER", "statusboard"),
		Password:        env.Get("DB_PASSWORD", ""),
		Database:        env.Get("DB_NAME", "statusboard"),
		SSLMode:         env.Get("DB_SSL_MODE", "disable"),
		MaxOpenConns:    env.Int("DB_MAX_OPEN_CONNS", 4, 1),
		MaxIdleConns:    env.Int("DB_MAX_IDLE_CONNS", 1, 0),
		ConnMaxLifetime: lifetime,
	}
}

// ConnectionString returns the PostgreSQL connection string.
func (c Config) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	return u.String()
}

// Connect creates a new database connection pool.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		// pgx errors may echo the connection string.
		return nil, errors.New("parse connection string: invalid database configuration")
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns) //nolint:gosec // bounded by config floor
	poolConfig.MinConns = int32(cfg.MaxIdleConns) //nolint:gosec // bounded by config floor
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
