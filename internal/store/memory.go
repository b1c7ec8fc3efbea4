package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/models"
)

// MemoryDirectory keeps recipients in process memory. Contents are lost on
// restart; it is meant for development and tests.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[int64]models.UserRecord
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[int64]models.UserRecord)}
}

func (d *MemoryDirectory) Close() error { return nil }

func (d *MemoryDirectory) Ping(ctx context.Context) error { return nil }

func (d *MemoryDirectory) Touch(ctx context.Context, recipientID int64, seenAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[recipientID] = newRecord(recipientID, seenAt)
	return nil
}

func (d *MemoryDirectory) Get(ctx context.Context, recipientID int64) (*models.UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.users[recipientID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (d *MemoryDirectory) List(ctx context.Context, cursor string, limit int) (Page, error) {
	after, err := parseKeysetCursor(cursor)
	if err != nil {
		return Page{}, fmt.Errorf("list: bad cursor %q: %w", cursor, err)
	}
	limit = pageLimit(limit)

	d.mu.RLock()
	ids := make([]int64, 0, len(d.users))
	for id := range d.users {
		if cursor == "" || id > after {
			ids = append(ids, id)
		}
	}
	d.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit+1 {
		ids = ids[:limit+1]
	}
	return keysetPage(ids, limit), nil
}

func (d *MemoryDirectory) Remove(ctx context.Context, recipientID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, recipientID)
	return nil
}

func (d *MemoryDirectory) Count(ctx context.Context) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return int64(len(d.users)), nil
}
