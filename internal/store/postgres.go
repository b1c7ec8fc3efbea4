package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/models"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/store/migrations"
)

// PostgresDirectory stores recipients in the users table.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a connection pool and verifies it. Call
// RunMigrations before first use.
func NewPostgresDirectory(ctx context.Context, databaseURL string) (*PostgresDirectory, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresDirectory{pool: pool}, nil
}

// RunMigrations applies the embedded goose migrations through the pool.
func (d *PostgresDirectory) RunMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(d.pool)
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the database connection pool.
func (d *PostgresDirectory) Close() error {
	d.pool.Close()
	return nil
}

// Ping checks the database connection.
func (d *PostgresDirectory) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

func (d *PostgresDirectory) Touch(ctx context.Context, recipientID int64, seenAt time.Time) error {
	rec := newRecord(recipientID, seenAt)
	_, err := d.pool.Exec(ctx, `
		INSERT INTO users (recipient_id, status, last_seen_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (recipient_id) DO UPDATE
		SET status = EXCLUDED.status, last_seen_at = EXCLUDED.last_seen_at
	`, rec.RecipientID, rec.Status, rec.LastSeen)
	return err
}

func (d *PostgresDirectory) Get(ctx context.Context, recipientID int64) (*models.UserRecord, error) {
	rec := &models.UserRecord{}
	err := d.pool.QueryRow(ctx, `
		SELECT recipient_id, status, last_seen_at FROM users WHERE recipient_id = $1
	`, recipientID).Scan(&rec.RecipientID, &rec.Status, &rec.LastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (d *PostgresDirectory) List(ctx context.Context, cursor string, limit int) (Page, error) {
	after, err := parseKeysetCursor(cursor)
	if err != nil {
		return Page{}, fmt.Errorf("list: bad cursor %q: %w", cursor, err)
	}
	limit = pageLimit(limit)

	rows, err := d.pool.Query(ctx, `
		SELECT recipient_id FROM users
		WHERE $1::boolean OR recipient_id > $2
		ORDER BY recipient_id
		LIMIT $3
	`, cursor == "", after, limit+1)
	if err != nil {
		return Page{}, err
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return Page{}, err
	}
	return keysetPage(ids, limit), nil
}

func (d *PostgresDirectory) Remove(ctx context.Context, recipientID int64) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM users WHERE recipient_id = $1`, recipientID)
	return err
}

func (d *PostgresDirectory) Count(ctx context.Context) (int64, error) {
	var n int64
	err := d.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
