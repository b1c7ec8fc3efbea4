package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/models"
)

const userKeyPrefix = "user:"

// RedisDirectory stores one JSON record per recipient under user:<id> and
// pages with SCAN. The same client backs the HTTP rate limiter.
type RedisDirectory struct {
	client *redis.Client
}

// NewRedisDirectory connects to redisURL and verifies the connection.
func NewRedisDirectory(ctx context.Context, redisURL string) (*RedisDirectory, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisDirectory{client: client}, nil
}

// NewRedisDirectoryFromClient wraps an existing client.
func NewRedisDirectoryFromClient(client *redis.Client) *RedisDirectory {
	return &RedisDirectory{client: client}
}

// Client returns the underlying Redis client.
func (d *RedisDirectory) Client() *redis.Client {
	return d.client
}

// Close closes the Redis connection.
func (d *RedisDirectory) Close() error {
	return d.client.Close()
}

// Ping checks the Redis connection.
func (d *RedisDirectory) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}

// userKey returns the key for a recipient record.
func userKey(recipientID int64) string {
	return userKeyPrefix + strconv.FormatInt(recipientID, 10)
}

func (d *RedisDirectory) Touch(ctx context.Context, recipientID int64, seenAt time.Time) error {
	data, err := json.Marshal(newRecord(recipientID, seenAt))
	if err != nil {
		return err
	}
	return d.client.Set(ctx, userKey(recipientID), data, 0).Err()
}

func (d *RedisDirectory) Get(ctx context.Context, recipientID int64) (*models.UserRecord, error) {
	data, err := d.client.Get(ctx, userKey(recipientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec models.UserRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", userKey(recipientID), err)
	}
	return &rec, nil
}

// List runs one SCAN step. COUNT is a hint, so a page may hold more or fewer
// ids than limit, and a page may be empty while the scan is still running.
func (d *RedisDirectory) List(ctx context.Context, cursor string, limit int) (Page, error) {
	var scanCursor uint64
	if cursor != "" {
		c, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return Page{}, fmt.Errorf("list: bad cursor %q: %w", cursor, err)
		}
		scanCursor = c
	}

	keys, next, err := d.client.Scan(ctx, scanCursor, userKeyPrefix+"*", int64(pageLimit(limit))).Result()
	if err != nil {
		return Page{}, err
	}

	ids := make([]int64, 0, len(keys))
	for _, key := range keys {
		id, err := strconv.ParseInt(strings.TrimPrefix(key, userKeyPrefix), 10, 64)
		if err != nil {
			continue // not ours
		}
		ids = append(ids, id)
	}

	if next == 0 {
		return Page{IDs: ids, Complete: true}, nil
	}
	return Page{IDs: ids, Cursor: strconv.FormatUint(next, 10)}, nil
}

func (d *RedisDirectory) Remove(ctx context.Context, recipientID int64) error {
	return d.client.Del(ctx, userKey(recipientID)).Err()
}

// Count walks the whole keyspace; it is meant for stats, not hot paths.
func (d *RedisDirectory) Count(ctx context.Context) (int64, error) {
	var n int64
	iter := d.client.Scan(ctx, 0, userKeyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}
