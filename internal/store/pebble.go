package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/models"
)

var (
	pebbleUserPrefix = []byte("user:")
	pebbleUserEnd    = []byte("user;")
)

// PebbleDirectory stores recipients in an embedded pebble database. Keys are
// user:<8-byte big-endian id with the sign bit flipped> so iteration order
// matches numeric order, negative chat ids included.
type PebbleDirectory struct {
	db *pebble.DB
}

// NewPebbleDirectory opens (or creates) the database at path.
func NewPebbleDirectory(path string) (*PebbleDirectory, error) {
	if path == "" {
		path = "./data/directory.pebble"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleDirectory{db: db}, nil
}

func pebbleUserKey(recipientID int64) []byte {
	key := make([]byte, len(pebbleUserPrefix)+8)
	copy(key, pebbleUserPrefix)
	binary.BigEndian.PutUint64(key[len(pebbleUserPrefix):], uint64(recipientID)^(1<<63))
	return key
}

func pebbleUserID(key []byte) (int64, bool) {
	if len(key) != len(pebbleUserPrefix)+8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(key[len(pebbleUserPrefix):]) ^ (1 << 63)), true
}

func (d *PebbleDirectory) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Ping reports whether the database is open and readable.
func (d *PebbleDirectory) Ping(ctx context.Context) error {
	_, closer, err := d.db.Get(pebbleUserPrefix)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return closer.Close()
}

func (d *PebbleDirectory) Touch(ctx context.Context, recipientID int64, seenAt time.Time) error {
	data, err := json.Marshal(newRecord(recipientID, seenAt))
	if err != nil {
		return err
	}
	return d.db.Set(pebbleUserKey(recipientID), data, pebble.Sync)
}

func (d *PebbleDirectory) Get(ctx context.Context, recipientID int64) (*models.UserRecord, error) {
	v, closer, err := d.db.Get(pebbleUserKey(recipientID))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var rec models.UserRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, fmt.Errorf("decode user %d: %w", recipientID, err)
	}
	return &rec, nil
}

func (d *PebbleDirectory) List(ctx context.Context, cursor string, limit int) (Page, error) {
	after, err := parseKeysetCursor(cursor)
	if err != nil {
		return Page{}, fmt.Errorf("list: bad cursor %q: %w", cursor, err)
	}
	limit = pageLimit(limit)

	lower := pebbleUserPrefix
	if cursor != "" {
		// smallest key strictly greater than the cursor's key
		lower = append(pebbleUserKey(after), 0)
	}

	it, err := d.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: pebbleUserEnd})
	if err != nil {
		return Page{}, err
	}
	defer it.Close()

	ids := make([]int64, 0, limit+1)
	for ok := it.First(); ok && len(ids) <= limit; ok = it.Next() {
		if id, valid := pebbleUserID(it.Key()); valid {
			ids = append(ids, id)
		}
	}
	if err := it.Error(); err != nil {
		return Page{}, err
	}
	return keysetPage(ids, limit), nil
}

func (d *PebbleDirectory) Remove(ctx context.Context, recipientID int64) error {
	return d.db.Delete(pebbleUserKey(recipientID), pebble.Sync)
}

func (d *PebbleDirectory) Count(ctx context.Context) (int64, error) {
	it, err := d.db.NewIter(&pebble.IterOptions{LowerBound: pebbleUserPrefix, UpperBound: pebbleUserEnd})
	if err != nil {
		return 0, err
	}
	defer it.Close()

	var n int64
	for ok := it.First(); ok; ok = it.Next() {
		n++
	}
	return n, it.Error()
}
