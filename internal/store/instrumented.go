package store

import (
	"context"
	"time"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/metrics"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/models"
)

// Instrumented records the latency of every directory call.
type Instrumented struct {
	Directory
	backend string
}

// Instrument wraps dir so its calls are observed under the backend label.
func Instrument(dir Directory, backend string) *Instrumented {
	return &Instrumented{Directory: dir, backend: backend}
}

// Unwrap returns the wrapped directory.
func (d *Instrumented) Unwrap() Directory {
	return d.Directory
}

func (d *Instrumented) observe(op string, start time.Time) {
	metrics.DirectoryLatency.WithLabelValues(d.backend, op).Observe(time.Since(start).Seconds())
}

func (d *Instrumented) Ping(ctx context.Context) error {
	defer d.observe("ping", time.Now())
	return d.Directory.Ping(ctx)
}

func (d *Instrumented) Touch(ctx context.Context, recipientID int64, seenAt time.Time) error {
	defer d.observe("touch", time.Now())
	return d.Directory.Touch(ctx, recipientID, seenAt)
}

func (d *Instrumented) Get(ctx context.Context, recipientID int64) (*models.UserRecord, error) {
	defer d.observe("get", time.Now())
	return d.Directory.Get(ctx, recipientID)
}

func (d *Instrumented) List(ctx context.Context, cursor string, limit int) (Page, error) {
	defer d.observe("list", time.Now())
	return d.Directory.List(ctx, cursor, limit)
}

func (d *Instrumented) Remove(ctx context.Context, recipientID int64) error {
	defer d.observe("remove", time.Now())
	return d.Directory.Remove(ctx, recipientID)
}

func (d *Instrumented) Count(ctx context.Context) (int64, error) {
	defer d.observe("count", time.Now())
	return d.Directory.Count(ctx)
}
