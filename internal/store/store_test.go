package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, kv.Set(ctx, "k", []byte(`{"a":1}`)))
	got, err := kv.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), got)

	// Returned slice must be a copy, not a view into the store.
	got[0] = 'X'
	again, err := kv.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), again)

	assert.NoError(t, kv.Delete(ctx, "k"))
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv, err := NewFileStore(t.TempDir())
	assert.NoError(t, err)

	_, err = kv.Get(ctx, "account_user-abc")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, kv.Set(ctx, "account_user-abc", []byte(`{"balance":100}`)))
	got, err := kv.Get(ctx, "account_user-abc")
	assert.NoError(t, err)
	assert.Equal(t, []byte(`{"balance":100}`), got)

	// Overwrite replaces the previous value.
	assert.NoError(t, kv.Set(ctx, "account_user-abc", []byte(`{"balance":50}`)))
	got, err = kv.Get(ctx, "account_user-abc")
	assert.NoError(t, err)
	assert.Equal(t, []byte(`{"balance":50}`), got)

	assert.NoError(t, kv.Delete(ctx, "account_user-abc"))
	_, err = kv.Get(ctx, "account_user-abc")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is not an error.
	assert.NoError(t, kv.Delete(ctx, "account_user-abc"))
}

func TestFileStore_KeyEncoding(t *testing.T) {
	ctx := context.Background()
	kv, err := NewFileStore(t.TempDir())
	assert.NoError(t, err)

	// Keys with path-hostile characters must not escape the data dir.
	key := "user_alice@example.com/../x"
	assert.NoError(t, kv.Set(ctx, key, []byte("v")))
	got, err := kv.Get(ctx, key)
	assert.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "bogus", "", "", "")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "account_user-1", AccountKey("user-1"))
	assert.Equal(t, "orders_user-1", OrdersKey("user-1"))
	assert.Equal(t, "user_a@b.c", UserKey("a@b.c"))
}
