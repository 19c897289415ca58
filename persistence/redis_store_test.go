package persistence

import (
	"context"
	"strconv"
	"testing"

	"github.com/BaSui01/drama/world"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	store, err := NewRedisStore(RedisStoreConfig{Host: mr.Host(), Port: port, KeyPrefix: "test:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore(t *testing.T) {
	store, _ := newTestRedisStore(t)
	runDatabaseContract(t, store)
}

func TestRedisStore_KeyLayout(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetWorldStateEntry(ctx, "credits", world.Number(5)))
	require.NoError(t, store.WriteChat(ctx, "frank_chat", nil))

	assert.True(t, mr.Exists("test:world"))
	assert.True(t, mr.Exists("test:world:order"))
	assert.Equal(t, "5", mr.HGet("test:world", "credits"))
	assert.True(t, mr.Exists("test:chats"))
}

func TestRedisStore_SkipsUndecodableEntries(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetWorldStateEntry(ctx, "good", world.Bool(true)))
	require.NoError(t, store.SetWorldStateEntry(ctx, "bad", world.Number(1)))
	mr.HSet("test:world", "bad", "{not json")

	entries, err := store.WorldState(ctx)
	require.NoError(t, err)
	assert.Equal(t, []world.Entry{{Key: "good", Value: world.Bool(true)}}, entries)
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	port, _ := strconv.Atoi(mr.Port())
	mr.Close()

	_, err := NewRedisStore(RedisStoreConfig{Host: "127.0.0.1", Port: port}, nil)
	assert.Error(t, err)
}
