// Package dedupe guards against two concurrent syncs of the same idempotence key.
//
// It is a fast, in-process guard only. The durable guarantee is the storage
// uniqueness constraint on (user, snapshot date).
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pixelcode/pixelsync/internal/domain/model"
)

// Deduper tracks keys that are currently being worked on.
type Deduper interface {
	// SeenAndRecord atomically checks if id is in flight and records it if not.
	// Returns true if id was already in flight, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord releases id once the work behind it has finished.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// Key builds the idempotence key of a user's sync on a given day.
func Key(userID string, day time.Time) string {
	return userID + "|" + model.DayKey(day)
}

type inMemoryDeduper struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
	sizeHint int
	size     atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}
	for _, opt := range opts {
		opt(d)
	}
	d.inFlight = make(map[string]struct{}, d.sizeHint)
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.inFlight[id]; exists {
		return true
	}
	d.inFlight[id] = struct{}{}
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.inFlight[id]; exists {
		delete(d.inFlight, id)
		d.size.Add(-1)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
