package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, "test"), mr
}

func TestStore_AsideCachesUntilInvalidated(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	key := ConversationListKey(7)

	calls := 0
	fetch := func(dest *[]string) func() error {
		return func() error {
			calls++
			*dest = []string{"v", string(rune('0' + calls))}
			return nil
		}
	}

	var first []string
	require.NoError(t, store.Aside(ctx, key, &first, time.Minute, fetch(&first)))
	var second []string
	require.NoError(t, store.Aside(ctx, key, &second, time.Minute, fetch(&second)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.True(t, mr.Exists("conversations:user:7:v0"))

	store.InvalidateConversations(ctx, 7)

	var third []string
	require.NoError(t, store.Aside(ctx, key, &third, time.Minute, fetch(&third)))
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"v", "2"}, third)
	assert.True(t, mr.Exists("conversations:user:7:v1"))
}

func TestStore_FetchErrorIsReturnedAndNotCached(t *testing.T) {
	store, mr := newTestStore(t)
	boom := errors.New("boom")

	var dest []int
	err := store.Aside(context.Background(), "k", &dest, time.Minute, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("k:v0"))
}

func TestStore_FailsOpen(t *testing.T) {
	var nilStore *Store
	var dest int
	require.NoError(t, nilStore.Aside(context.Background(), "k", &dest, time.Minute, func() error {
		dest = 3
		return nil
	}))
	assert.Equal(t, 3, dest)
	nilStore.InvalidateConversations(context.Background(), 1)

	store, mr := newTestStore(t)
	mr.Close()

	calls := 0
	require.NoError(t, store.Aside(context.Background(), "k", &dest, time.Minute, func() error {
		calls++
		return nil
	}))
	assert.Equal(t, 1, calls, "unreachable redis falls back to the source")
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	opts, err = ParseOptions("cache:6379")
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)

	_, err = ParseOptions("redis://bad host")
	assert.Error(t, err)
}
