// Package database opens the Postgres pool and bootstraps the schema.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Schema creates every ClientDesk table. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS document_requests (
	id TEXT PRIMARY KEY,
	consultant_id TEXT NOT NULL,
	client_id TEXT NOT NULL,
	document_name TEXT NOT NULL,
	document_type TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	due_date TIMESTAMPTZ,
	priority TEXT NOT NULL,
	status TEXT NOT NULL,
	record_id TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_document_requests_client ON document_requests(client_id, created_at DESC);

CREATE TABLE IF NOT EXISTS document_records (
	id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL,
	consultant_id TEXT NOT NULL DEFAULT '',
	request_id TEXT REFERENCES document_requests(id),
	name TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL,
	status TEXT NOT NULL,
	file_name TEXT NOT NULL DEFAULT '',
	file_ref TEXT NOT NULL,
	file_size_bytes BIGINT NOT NULL,
	mime_type TEXT NOT NULL DEFAULT '',
	uploaded_at TIMESTAMPTZ NOT NULL,
	reviewed_at TIMESTAMPTZ,
	reviewed_by TEXT NOT NULL DEFAULT '',
	review_notes TEXT NOT NULL DEFAULT '',
	page_count INTEGER NOT NULL DEFAULT 0,
	preview_ref TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_document_records_client ON document_records(client_id, uploaded_at DESC);

CREATE TABLE IF NOT EXISTS mailbox_items (
	id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL,
	consultant_id TEXT NOT NULL,
	document_name TEXT NOT NULL,
	document_type TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	file_ref TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	shipping_option TEXT NOT NULL,
	shipping_fee_cents BIGINT NOT NULL,
	payment_status TEXT NOT NULL,
	payment_ref TEXT NOT NULL DEFAULT '',
	shipping_address TEXT NOT NULL DEFAULT '',
	tracking_number TEXT UNIQUE,
	paid_at TIMESTAMPTZ,
	sent_at TIMESTAMPTZ,
	delivered_at TIMESTAMPTZ,
	viewed_at TIMESTAMPTZ,
	downloaded_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mailbox_items_client ON mailbox_items(client_id, created_at DESC);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	event TEXT NOT NULL,
	recipient_id TEXT NOT NULL,
	severity TEXT NOT NULL,
	payload JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at DESC);`

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
