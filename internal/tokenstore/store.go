// Package tokenstore persists the session credential between runs.
package tokenstore

import (
	"context"
	"errors"
	"time"
)

// TokenKey is the fixed key the session credential is stored under
const TokenKey = "token"

// ErrNotFound is returned when a key is missing or expired
var ErrNotFound = errors.New("key not found")

// Store is a small durable key-value store with per-key expiry.
// Delete of a missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
