package store

import (
	"context"
	"strconv"
	"time"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/models"
)

// DefaultPageSize is used when List is called with a non-positive limit.
const DefaultPageSize = 100

// Page is one batch of recipient ids. When Complete is false, Cursor resumes
// the listing. A listing may repeat ids across pages; callers tolerate that.
type Page struct {
	IDs      []int64
	Cursor   string
	Complete bool
}

// Directory is the registry of known broadcast recipients. Writes are
// last-write-wins; no backend holds locks across calls.
type Directory interface {
	// Connection management
	Close() error
	Ping(ctx context.Context) error

	// Touch creates the record or refreshes its last-seen time.
	Touch(ctx context.Context, recipientID int64, seenAt time.Time) error
	// Get returns nil, nil when the recipient is unknown.
	Get(ctx context.Context, recipientID int64) (*models.UserRecord, error)
	List(ctx context.Context, cursor string, limit int) (Page, error)
	Remove(ctx context.Context, recipientID int64) error
	Count(ctx context.Context) (int64, error)
}

func pageLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	return limit
}

// parseKeysetCursor decodes cursors of the SQL, pebble and memory backends,
// which all resume after the last id returned.
func parseKeysetCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	return strconv.ParseInt(cursor, 10, 64)
}

// keysetPage builds a page from ids fetched with limit+1 rows.
func keysetPage(ids []int64, limit int) Page {
	if len(ids) <= limit {
		return Page{IDs: ids, Complete: true}
	}
	ids = ids[:limit]
	return Page{IDs: ids, Cursor: strconv.FormatInt(ids[len(ids)-1], 10)}
}

func newRecord(recipientID int64, seenAt time.Time) models.UserRecord {
	return models.UserRecord{
		RecipientID: recipientID,
		LastSeen:    seenAt.UTC(),
		Status:      models.UserStatusActive,
	}
}
