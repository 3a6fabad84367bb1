package service

import (
	"context"
	"testing"
	"time"

	"parley/internal/models"
	"parley/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListConversations_OrderedByLastActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	dave := f.user(t, "dave")

	base := time.Now().UTC().Add(-24 * time.Hour)
	testutil.CreateDirectMessage(t, f.db, bob.ID, alice.ID, "bob old", base)
	testutil.CreateDirectMessage(t, f.db, alice.ID, bob.ID, "alice reply", base.Add(3*time.Hour))
	testutil.CreateDirectMessage(t, f.db, carol.ID, alice.ID, "carol", base.Add(time.Hour))

	busy := f.joinedGroup(t, alice.ID, dave.ID)
	require.NoError(t, f.db.Create(&models.GroupMessage{
		GroupID:     busy.Group.ID,
		SenderID:    dave.ID,
		Content:     "group news",
		MessageType: models.MessageTypeText,
		CreatedAt:   base.Add(2 * time.Hour),
	}).Error)
	quiet := f.joinedGroup(t, alice.ID)

	list, err := f.conv.ListConversations(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 4)

	assert.Equal(t, models.ConversationDirect, list[0].Kind)
	assert.Equal(t, bob.ID, list[0].ID)
	assert.Equal(t, "alice reply", list[0].LastMessagePreview)
	assert.Equal(t, "alice", list[0].LastSenderName)
	assert.Equal(t, int64(1), list[0].UnreadCount, "bob's earlier message is still unread for alice")

	assert.Equal(t, models.ConversationGroup, list[1].Kind)
	assert.Equal(t, busy.Group.ID, list[1].ID)
	assert.Equal(t, int64(1), list[1].UnreadCount)
	assert.Equal(t, int64(2), list[1].MemberCount)

	assert.Equal(t, carol.ID, list[2].ID)
	assert.Equal(t, int64(1), list[2].UnreadCount)

	assert.Equal(t, quiet.Group.ID, list[3].ID)
	assert.Nil(t, list[3].LastMessageAt, "groups without messages sort last")

	for i := 1; i < len(list); i++ {
		if list[i].LastMessageAt == nil {
			continue
		}
		require.NotNil(t, list[i-1].LastMessageAt)
		assert.False(t, list[i-1].LastMessageAt.Before(*list[i].LastMessageAt))
	}
}

func TestListConversations_RelationshipFlags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	f.send(t, bob.ID, alice.ID, "hi")
	f.send(t, carol.ID, alice.ID, "hey")
	_, err := f.rel.AddContact(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = f.rel.BlockUser(ctx, carol.ID, alice.ID)
	require.NoError(t, err)

	list, err := f.conv.ListConversations(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	byID := map[uint]models.ConversationSummary{}
	for _, entry := range list {
		byID[entry.ID] = entry
	}
	assert.True(t, byID[bob.ID].IsContact)
	assert.False(t, byID[bob.ID].HasBlockedYou)
	assert.True(t, byID[carol.ID].HasBlockedYou)
	assert.False(t, byID[carol.ID].BlockedByYou)
}

func TestListConversations_CacheIsInvalidatedByWrites(t *testing.T) {
	f := newFixture(t, withRedis())
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	f.send(t, alice.ID, bob.ID, "first")
	list, err := f.conv.ListConversations(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].UnreadCount)

	keys := f.redis.Keys()
	assert.NotEmpty(t, keys, "the list is cached")

	f.send(t, alice.ID, bob.ID, "second")
	list, err = f.conv.ListConversations(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].UnreadCount)
	assert.Equal(t, "second", list[0].LastMessagePreview)

	_, err = f.msg.FetchHistory(ctx, bob.ID, alice.ID, models.HistoryQuery{})
	require.NoError(t, err)
	list, err = f.conv.ListConversations(ctx, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, list[0].UnreadCount)
}

func TestListConversations_Empty(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	list, err := f.conv.ListConversations(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err = f.conv.ListConversations(context.Background(), 0)
	requireCode(t, err, models.CodeUnauthenticated)
}

func TestSortConversations_TieBreak(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	list := []models.ConversationSummary{
		{Kind: models.ConversationGroup, ID: 1, LastMessageAt: &at},
		{Kind: models.ConversationDirect, ID: 9},
		{Kind: models.ConversationDirect, ID: 2, LastMessageAt: &at},
		{Kind: models.ConversationDirect, ID: 1},
	}
	sortConversations(list)

	got := make([]string, 0, len(list))
	for _, entry := range list {
		got = append(got, string(entry.Kind)+":"+string(rune('0'+entry.ID)))
	}
	assert.Equal(t, []string{"direct:2", "group:1", "direct:1", "direct:9"}, got)
}
