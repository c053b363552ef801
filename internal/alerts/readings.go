package alerts

import (
	"context"
	"math"
	"sync"
	"time"
)

// ReadingStore is the storage side of the reading log. InsertReading must
// be durable before it returns.
type ReadingStore interface {
	InsertReading(ctx context.Context, distanceCm float64, createdAt time.Time) (Reading, error)
	FindLatestReading(ctx context.Context) (*Reading, error)
}

// Readings validates and appends distance measurements.
type Readings struct {
	store ReadingStore
	now   func() time.Time

	mu       sync.RWMutex
	onAppend []func(context.Context, Reading)
}

// NewReadings creates a Readings log backed by store.
func NewReadings(store ReadingStore) *Readings {
	return &Readings{store: store, now: time.Now}
}

// OnAppend registers a hook that runs after every successful append.
// Used to invalidate cached copies of the latest reading.
func (r *Readings) OnAppend(fn func(context.Context, Reading)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAppend = append(r.onAppend, fn)
}

// Append stores a new reading. Non-finite distances are rejected.
func (r *Readings) Append(ctx context.Context, distanceCm float64) (Reading, error) {
	if math.IsNaN(distanceCm) || math.IsInf(distanceCm, 0) {
		return Reading{}, &ValidationError{Field: "distance", Reason: "must be a finite number"}
	}

	stored, err := r.store.InsertReading(ctx, distanceCm, r.now().UTC())
	if err != nil {
		return Reading{}, &StorageError{Op: "insert reading", Err: err}
	}

	r.mu.RLock()
	hooks := r.onAppend
	r.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, stored)
	}
	return stored, nil
}

// Latest returns the most recently appended reading, or nil if there is none.
func (r *Readings) Latest(ctx context.Context) (*Reading, error) {
	latest, err := r.store.FindLatestReading(ctx)
	if err != nil {
		return nil, &StorageError{Op: "find latest reading", Err: err}
	}
	return latest, nil
}
