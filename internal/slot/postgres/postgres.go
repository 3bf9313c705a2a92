// Package postgres stores slot values in a PostgreSQL table.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Ariya-Dice/tansoo/pkg/database"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// DB is the subset of *pgxpool.Pool the slot uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const (
	getSQL    = `SELECT value FROM cart_slots WHERE key = $1`
	upsertSQL = `INSERT INTO cart_slots (key, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	deleteSQL = `DELETE FROM cart_slots WHERE key = $1`
	purgeSQL  = `DELETE FROM cart_slots WHERE updated_at < $1`
)

// Slot is a cart_slots-backed Slot. Each Set is one upsert statement.
type Slot struct {
	db DB
}

// New creates a Postgres slot. Run Migrate before first use.
func New(db DB) *Slot {
	return &Slot{db: db}
}

// Migrate applies the embedded migrations.
func Migrate(ctx context.Context, db database.Migrator, logger *slog.Logger) error {
	return database.RunMigrations(ctx, db, Migrations(), logger)
}

func (s *Slot) Get(ctx context.Context, key string) (value string, found bool, err error) {
	ctx, end := database.TraceOp(ctx, "postgresql", "SlotGet", getSQL)
	defer func() { end(err) }()

	err = s.db.QueryRow(ctx, getSQL, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select slot %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Slot) Set(ctx context.Context, key, value string) (err error) {
	ctx, end := database.TraceOp(ctx, "postgresql", "SlotSet", upsertSQL)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, upsertSQL, key, value); err != nil {
		return fmt.Errorf("upsert slot %s: %w", key, err)
	}
	return nil
}

func (s *Slot) Delete(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceOp(ctx, "postgresql", "SlotDelete", deleteSQL)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, deleteSQL, key); err != nil {
		return fmt.Errorf("delete slot %s: %w", key, err)
	}
	return nil
}

// PurgeOlderThan deletes slots not written since cutoff and returns how
// many were removed. Postgres has no per-row TTL, so this is how abandoned
// carts are evicted.
func (s *Slot) PurgeOlderThan(ctx context.Context, cutoff time.Time) (n int64, err error) {
	ctx, end := database.TraceOp(ctx, "postgresql", "SlotPurge", purgeSQL)
	defer func() { end(err) }()

	tag, err := s.db.Exec(ctx, purgeSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge slots: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the connection.
func (s *Slot) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
