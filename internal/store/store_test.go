package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/config"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/models"
)

// backends returns a fresh instance of every directory available in this
// environment. Postgres runs only when TEST_DATABASE_URL is set.
func backends(t *testing.T) map[string]Directory {
	t.Helper()
	ctx := context.Background()

	out := map[string]Directory{
		"memory":       NewMemoryDirectory(),
		"instrumented": Instrument(NewMemoryDirectory(), "memory"),
	}

	sqliteDir, err := NewSQLiteDirectory(ctx, filepath.Join(t.TempDir(), "dir.db"))
	require.NoError(t, err)
	out["sqlite"] = sqliteDir

	pebbleDir, err := NewPebbleDirectory(filepath.Join(t.TempDir(), "pebble"))
	require.NoError(t, err)
	out["pebble"] = pebbleDir

	mr := miniredis.RunT(t)
	out["redis"] = NewRedisDirectoryFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		pg, err := NewPostgresDirectory(ctx, url)
		require.NoError(t, err)
		require.NoError(t, pg.RunMigrations(ctx))
		_, err = pg.pool.Exec(ctx, `TRUNCATE users`)
		require.NoError(t, err)
		out["postgres"] = pg
	}

	for _, d := range out {
		d := d
		t.Cleanup(func() { d.Close() })
	}
	return out
}

// listAll drains the directory page by page.
func listAll(t *testing.T, d Directory, limit int) []int64 {
	t.Helper()
	ctx := context.Background()

	seen := map[int64]bool{}
	cursor := ""
	for i := 0; i < 10000; i++ {
		page, err := d.List(ctx, cursor, limit)
		require.NoError(t, err)
		for _, id := range page.IDs {
			seen[id] = true
		}
		if page.Complete {
			ids := make([]int64, 0, len(seen))
			for id := range seen {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			return ids
		}
		require.NotEmpty(t, page.Cursor)
		cursor = page.Cursor
	}
	t.Fatal("listing never completed")
	return nil
}

func TestDirectory_TouchGetRemove(t *testing.T) {
	ctx := context.Background()
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	later := first.Add(time.Hour)

	for name, d := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, d.Ping(ctx))

			rec, err := d.Get(ctx, 42)
			require.NoError(t, err)
			assert.Nil(t, rec)

			require.NoError(t, d.Touch(ctx, 42, first))
			require.NoError(t, d.Touch(ctx, 42, later))

			rec, err = d.Get(ctx, 42)
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, int64(42), rec.RecipientID)
			assert.Equal(t, models.UserStatusActive, rec.Status)
			assert.True(t, rec.LastSeen.Equal(later), "last seen %v", rec.LastSeen)

			n, err := d.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			require.NoError(t, d.Remove(ctx, 42))
			require.NoError(t, d.Remove(ctx, 42))
			rec, err = d.Get(ctx, 42)
			require.NoError(t, err)
			assert.Nil(t, rec)
		})
	}
}

func TestDirectory_ListPagesEverything(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	var want []int64
	for i := int64(1); i <= 23; i++ {
		want = append(want, i*1000)
	}
	want = append([]int64{-1001234567890}, want...)

	for name, d := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range want {
				require.NoError(t, d.Touch(ctx, id, now))
			}
			assert.Equal(t, want, listAll(t, d, 5))
			assert.Equal(t, want, listAll(t, d, 0))
		})
	}
}

func TestDirectory_ListEmpty(t *testing.T) {
	for name, d := range backends(t) {
		t.Run(name, func(t *testing.T) {
			page, err := d.List(context.Background(), "", 10)
			require.NoError(t, err)
			assert.Empty(t, page.IDs)
			assert.True(t, page.Complete)
		})
	}
}

func TestDirectory_BadCursor(t *testing.T) {
	for name, d := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := d.List(context.Background(), "not-a-cursor", 10)
			assert.Error(t, err)
		})
	}
}

func TestKeysetPage(t *testing.T) {
	p := keysetPage([]int64{1, 2, 3}, 3)
	assert.True(t, p.Complete)

	p = keysetPage([]int64{1, 2, 3, 4}, 3)
	assert.False(t, p.Complete)
	assert.Equal(t, []int64{1, 2, 3}, p.IDs)
	assert.Equal(t, "3", p.Cursor)
}

func TestPebbleKeyOrder(t *testing.T) {
	ids := []int64{-5, -1, 0, 1, 7, 1 << 40}
	for i := 1; i < len(ids); i++ {
		assert.Less(t, string(pebbleUserKey(ids[i-1])), string(pebbleUserKey(ids[i])))
		id, ok := pebbleUserID(pebbleUserKey(ids[i]))
		require.True(t, ok)
		assert.Equal(t, ids[i], id)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	d, err := Open(ctx, &config.Config{DirectoryBackend: config.BackendMemory}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryDirectory{}, d)

	mr := miniredis.RunT(t)
	d, err = Open(ctx, &config.Config{DirectoryBackend: config.BackendRedis, RedisURL: "redis://" + mr.Addr()}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &RedisDirectory{}, d)
	d.Close()

	_, err = Open(ctx, &config.Config{DirectoryBackend: "etcd"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestInstrumentKeepsBackend(t *testing.T) {
	mem := NewMemoryDirectory()
	d := Instrument(mem, config.BackendMemory)

	require.NoError(t, d.Touch(context.Background(), 9, time.Now()))
	n, err := mem.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Same(t, mem, d.Unwrap())
}
