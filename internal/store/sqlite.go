package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/models"
)

// SQLiteDirectory stores recipients in a local SQLite file.
type SQLiteDirectory struct {
	db *sql.DB
}

// NewSQLiteDirectory opens dbPath, creating it and its schema if needed.
// If dbPath is empty, defaults to "./data/directory.db"
func NewSQLiteDirectory(ctx context.Context, dbPath string) (*SQLiteDirectory, error) {
	if dbPath == "" {
		dbPath = "./data/directory.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	d := &SQLiteDirectory{db: db}

	if err := d.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return d, nil
}

// initSchema creates tables if they don't exist.
func (d *SQLiteDirectory) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		recipient_id INTEGER PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'active',
		last_seen_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_last_seen ON users(last_seen_at);
	`

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (d *SQLiteDirectory) Close() error {
	return d.db.Close()
}

// Ping checks the database connection.
func (d *SQLiteDirectory) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *SQLiteDirectory) Touch(ctx context.Context, recipientID int64, seenAt time.Time) error {
	rec := newRecord(recipientID, seenAt)
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (recipient_id, status, last_seen_at)
		VALUES (?, ?, ?)
		ON CONFLICT (recipient_id) DO UPDATE
		SET status = excluded.status, last_seen_at = excluded.last_seen_at
	`, rec.RecipientID, rec.Status, rec.LastSeen)
	return err
}

func (d *SQLiteDirectory) Get(ctx context.Context, recipientID int64) (*models.UserRecord, error) {
	rec := &models.UserRecord{}
	err := d.db.QueryRowContext(ctx, `
		SELECT recipient_id, status, last_seen_at FROM users WHERE recipient_id = ?
	`, recipientID).Scan(&rec.RecipientID, &rec.Status, &rec.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (d *SQLiteDirectory) List(ctx context.Context, cursor string, limit int) (Page, error) {
	after, err := parseKeysetCursor(cursor)
	if err != nil {
		return Page{}, fmt.Errorf("list: bad cursor %q: %w", cursor, err)
	}
	limit = pageLimit(limit)

	rows, err := d.db.QueryContext(ctx, `
		SELECT recipient_id FROM users
		WHERE ? OR recipient_id > ?
		ORDER BY recipient_id
		LIMIT ?
	`, cursor == "", after, limit+1)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return Page{}, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}
	return keysetPage(ids, limit), nil
}

func (d *SQLiteDirectory) Remove(ctx context.Context, recipientID int64) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM users WHERE recipient_id = ?`, recipientID)
	return err
}

func (d *SQLiteDirectory) Count(ctx context.Context) (int64, error) {
	var n int64
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
