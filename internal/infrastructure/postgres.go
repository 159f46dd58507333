package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

func NewPostgresClient(connString string) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Pool configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	client := &PostgresClient{Pool: pool}

	// Auto-migrate schema
	if err := client.Migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return client, nil
}

func (p *PostgresClient) Migrate() error {
	ctx := context.Background()

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id SERIAL PRIMARY KEY,
			slug VARCHAR(64) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL,
			whatsapp VARCHAR(32),
			settings JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS leads (
			id BIGSERIAL PRIMARY KEY,
			tenant_slug VARCHAR(64) NOT NULL,
			session_id VARCHAR(64) NOT NULL,
			name VARCHAR(255),
			method VARCHAR(20),
			contact VARCHAR(255),
			meta JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			tenant_slug VARCHAR(64) NOT NULL,
			session_id VARCHAR(64),
			type VARCHAR(64) NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}',
			ts TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			tenant_slug VARCHAR(64) NOT NULL,
			session_id VARCHAR(64),
			channel VARCHAR(20) NOT NULL,
			direction VARCHAR(5) NOT NULL,
			author VARCHAR(255),
			content TEXT,
			payload JSONB NOT NULL DEFAULT '{}',
			ts TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			tenant_slug VARCHAR(64) NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(20) DEFAULT 'member',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS usage_events (
			id BIGSERIAL PRIMARY KEY,
			ts BIGINT NOT NULL,
			session_id VARCHAR(64) NOT NULL,
			model VARCHAR(64) NOT NULL,
			prompt_tokens INTEGER NOT NULL,
			completion_tokens INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_leads_tenant ON leads (tenant_slug, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_events_tenant ON events (tenant_slug, ts);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_tenant ON messages (tenant_slug, ts);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_session ON usage_events (session_id);`,
	}

	for _, stmt := range ddl {
		if _, err := p.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
