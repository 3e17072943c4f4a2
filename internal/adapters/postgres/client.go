package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"costguard/internal/adapters/config"
	"costguard/pkg/errors"
)

// Client owns the PostgreSQL connection pool backing the anomaly and
// action stores.
type Client struct {
	db *sqlx.DB
}

// NewClient connects, tunes the pool and verifies connectivity.
func NewClient(cfg config.PostgresConfig) (*Client, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}

	// Writes here are small transactional rows; a modest pool is enough.
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns / 2)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, errors.Wrap(err, "failed to ping postgres")
	}

	return &Client{db: db}, nil
}

// DB exposes the pool for repositories and the test harness.
func (c *Client) DB() *sqlx.DB {
	return c.db
}

func (c *Client) Close() error {
	return c.db.Close()
}

// Health reports connectivity for the readiness probe.
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
