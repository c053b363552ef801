package alerts

import (
	"context"
	"strings"
	"time"
)

// TokenStore is the storage side of the token registry. Implementations
// must make UpsertToken atomic per token and FindAllTokens a single
// consistent read.
type TokenStore interface {
	UpsertToken(ctx context.Context, token, tenantID string, registeredAt time.Time) error
	FindAllTokens(ctx context.Context) ([]DeviceToken, error)
}

// Registry validates registrations and hands out point-in-time snapshots.
type Registry struct {
	store TokenStore
	now   func() time.Time
}

// NewRegistry creates a Registry backed by store.
func NewRegistry(store TokenStore) *Registry {
	return &Registry{store: store, now: time.Now}
}

// Register upserts the token → tenant association. Last write wins.
func (r *Registry) Register(ctx context.Context, token, tenantID string) error {
	token = strings.TrimSpace(token)
	tenantID = strings.TrimSpace(tenantID)
	if token == "" {
		return &ValidationError{Field: "token", Reason: "is required"}
	}
	if tenantID == "" {
		return &ValidationError{Field: "experienceId", Reason: "is required"}
	}

	if err := r.store.UpsertToken(ctx, token, tenantID, r.now().UTC()); err != nil {
		return &StorageError{Op: "upsert token", Err: err}
	}
	return nil
}

// SnapshotAll returns a copy of every registered token, in the order the
// store returned them.
func (r *Registry) SnapshotAll(ctx context.Context) ([]DeviceToken, error) {
	tokens, err := r.store.FindAllTokens(ctx)
	if err != nil {
		return nil, &StorageError{Op: "find tokens", Err: err}
	}
	snapshot := make([]DeviceToken, len(tokens))
	copy(snapshot, tokens)
	return snapshot, nil
}
