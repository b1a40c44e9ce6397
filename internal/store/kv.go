// Package store provides the key-value persistence layer. State is saved as
// opaque JSON blobs keyed by a prefix plus user id; a missing or unreadable
// blob is reported as ErrNotFound so callers fall back to default state.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("key not found")

// KV is the blob store contract. Implementations must treat malformed
// values the same as missing ones on read.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Key prefixes used across the application.
const (
	accountPrefix   = "account_"
	ordersPrefix    = "orders_"
	userPrefix      = "user_"
	followingPrefix = "following_"
)

// AccountKey returns the storage key for a user's account snapshot.
func AccountKey(userID string) string { return accountPrefix + userID }

// OrdersKey returns the storage key for a user's order list.
func OrdersKey(userID string) string { return ordersPrefix + userID }

// UserKey returns the storage key for a user profile, keyed by email.
func UserKey(email string) string { return userPrefix + email }

// FollowingKey returns the storage key for a user's copy-trading list.
func FollowingKey(userID string) string { return followingPrefix + userID }

// Open constructs a KV backend by name. Supported backends: "memory",
// "file", "redis" and "postgres".
func Open(ctx context.Context, backend, dataDir, redisAddr, postgresConn string) (KV, error) {
	switch backend {
	case "memory":
		return NewMemory(), nil
	case "file":
		return NewFileStore(dataDir)
	case "redis":
		return NewRedisStore(ctx, redisAddr)
	case "postgres":
		return NewPostgresStore(ctx, postgresConn)
	default:
		return nil, fmt.Errorf("unknown store backend: %q", backend)
	}
}
