package notifications

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_NilIsNoop(t *testing.T) {
	var n *Notifier
	assert.NoError(t, n.PublishUser(context.Background(), 1, "x"))
	n.Notify(context.Background(), EventDirectMessage, map[string]int{"id": 1}, 1)

	assert.NoError(t, NewNotifier(nil).StartUserSubscriber(context.Background(), func(uint, string) {}))
}

func TestUserChannel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "notifications:user:1", UserChannel(1))

	id, ok := UserIDFromChannel("notifications:user:42")
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)

	_, ok = UserIDFromChannel("chat:conv:5")
	assert.False(t, ok)
	_, ok = UserIDFromChannel("notifications:user:abc")
	assert.False(t, ok)
}

func TestNotifier_NotifyReachesEveryRecipient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	got := map[uint]Event{}
	require.NoError(t, n.StartUserSubscriber(ctx, func(userID uint, payload string) {
		var ev Event
		if json.Unmarshal([]byte(payload), &ev) == nil {
			mu.Lock()
			got[userID] = ev
			mu.Unlock()
		}
	}))

	n.Notify(context.Background(), EventGroupMessage, map[string]uint{"group_id": 3}, 10, 11)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, EventGroupMessage, got[10].Type)
	assert.Equal(t, EventGroupMessage, got[11].Type)
}
