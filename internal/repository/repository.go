// Package repository implements the lifecycle stores on Postgres with pgx.
// Guarded writes compare the stored status in their WHERE clause and report
// lifecycle.ErrConflict when no row matched.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/clientdesk/internal/lifecycle"
)

// Repository wraps all SQL used by the API and worker.
type Repository struct {
	pool *pgxpool.Pool
}

var (
	_ lifecycle.DocumentStore = (*Repository)(nil)
	_ lifecycle.MailboxStore  = (*Repository)(nil)
)

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// row is satisfied by pgx.Row and pgx.Rows.
type row interface {
	Scan(dest ...any) error
}

// querier is satisfied by the pool and by transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, lifecycle.ErrNotFound)
	}
	return fmt.Errorf("select %s: %w", kind, err)
}

// guardFailed explains why a guarded UPDATE touched no rows.
func guardFailed(ctx context.Context, q querier, table, kind, id string) error {
	var exists bool
	err := q.QueryRow(ctx, fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id=$1)", table), id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check %s: %w", kind, err)
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", kind, id, lifecycle.ErrNotFound)
	}
	return fmt.Errorf("%s %s changed concurrently: %w", kind, id, lifecycle.ErrConflict)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
