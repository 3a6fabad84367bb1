package repository

import (
	"context"
	"testing"
	"time"

	"parley/internal/models"
	"parley/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestRelationshipRepository_ContactsAndBlocks(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewRelationshipRepository(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")

	first, err := repo.AddContact(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	second, err := repo.AddContact(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.ContactUser)
	assert.Equal(t, "bob", second.ContactUser.Name)

	ok, err := repo.IsContact(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.IsContact(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, ok, "contact edges are directed")

	ids, err := repo.ContactIDsAmong(ctx, alice.ID, []uint{bob.ID, 999})
	require.NoError(t, err)
	assert.Equal(t, []uint{bob.ID}, ids)

	_, err = repo.AddBlock(ctx, bob.ID, alice.ID)
	require.NoError(t, err)

	status, err := repo.BlockStatus(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BlockStatus{HasBlockedYou: true}, status)

	edges, err := repo.BlockEdgesAmong(ctx, alice.ID, []uint{bob.ID})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, bob.ID, edges[0].BlockerID)

	removed, err := repo.RemoveBlock(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.RemoveBlock(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestUserRepository_Search(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	me := testutil.CreateUser(t, db, "Maria")
	testutil.CreateUser(t, db, "Marianne")
	testutil.CreateUser(t, db, "Tomas")
	testutil.CreateUser(t, db, "100%_real")

	users, err := repo.Search(ctx, "MARI", me.ID, 10)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Marianne", users[0].Name)

	users, err = repo.Search(ctx, "%_", me.ID, 10)
	require.NoError(t, err)
	require.Len(t, users, 1, "wildcards in the query are matched literally")
	assert.Equal(t, "100%_real", users[0].Name)
}

func TestDirectMessageRepository_HistoryWindows(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewDirectMessageRepository(db)
	ctx := context.Background()

	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")
	c := testutil.CreateUser(t, db, "c")

	var ids []uint
	for i := 0; i < 5; i++ {
		from, to := a.ID, b.ID
		if i%2 == 1 {
			from, to = b.ID, a.ID
		}
		ids = append(ids, testutil.CreateDirectMessage(t, db, from, to, "m", base.Add(time.Duration(i)*time.Minute)).ID)
	}
	testutil.CreateDirectMessage(t, db, a.ID, c.ID, "other", base)

	latest, err := repo.History(ctx, a.ID, b.ID, 0, models.HistoryQuery{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, []uint{ids[3], ids[4]}, []uint{latest[0].ID, latest[1].ID})

	older, err := repo.History(ctx, b.ID, a.ID, 0, models.HistoryQuery{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []uint{ids[1], ids[2]}, []uint{older[0].ID, older[1].ID})

	newer, err := repo.History(ctx, a.ID, b.ID, 0, models.HistoryQuery{AfterID: ids[2], PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []uint{ids[3], ids[4]}, []uint{newer[0].ID, newer[1].ID})

	visible, err := repo.History(ctx, a.ID, b.ID, ids[3], models.HistoryQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, ids[4], visible[0].ID)

	latestID, err := repo.LatestIDBetween(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ids[4], latestID)

	none, err := repo.LatestIDBetween(ctx, b.ID, c.ID)
	require.NoError(t, err)
	assert.Zero(t, none)

	marked, err := repo.MarkRead(ctx, a.ID, b.ID, ids[1])
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)
	marked, err = repo.MarkRead(ctx, a.ID, b.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)
}

func TestVisibilityRepository_HideUpserts(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewVisibilityRepository(db)
	ctx := context.Background()

	marker, err := repo.Get(ctx, 1, 2)
	require.NoError(t, err)
	assert.Nil(t, marker)

	require.NoError(t, repo.Hide(ctx, &models.HiddenConversation{UserID: 1, CounterpartID: 2, HiddenThroughID: 4, HiddenAt: base}))
	require.NoError(t, repo.Hide(ctx, &models.HiddenConversation{UserID: 1, CounterpartID: 2, HiddenThroughID: 9, HiddenAt: base.Add(time.Hour)}))

	marker, err = repo.Get(ctx, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, uint(9), marker.HiddenThroughID)

	var count int64
	require.NoError(t, db.Model(&models.HiddenConversation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestConversationRepository_Threads(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()

	me := testutil.CreateUser(t, db, "me")
	bob := testutil.CreateUser(t, db, "bob")
	carol := testutil.CreateUser(t, db, "carol")

	testutil.CreateDirectMessage(t, db, bob.ID, me.ID, "b1", base)
	lastBob := testutil.CreateDirectMessage(t, db, bob.ID, me.ID, "b2", base.Add(time.Minute))
	hiddenCarol := testutil.CreateDirectMessage(t, db, carol.ID, me.ID, "c1", base.Add(2*time.Minute))

	require.NoError(t, db.Create(&models.HiddenConversation{
		UserID: me.ID, CounterpartID: carol.ID, HiddenThroughID: hiddenCarol.ID, HiddenAt: base,
	}).Error)

	threads, err := repo.DirectThreads(ctx, me.ID)
	require.NoError(t, err)
	require.Len(t, threads, 1, "carol's conversation is hidden")
	assert.Equal(t, DirectThread{CounterpartID: bob.ID, LastMessageID: lastBob.ID, UnreadCount: 2}, threads[0])

	reply := testutil.CreateDirectMessage(t, db, carol.ID, me.ID, "c2", base.Add(3*time.Minute))
	threads, err = repo.DirectThreads(ctx, me.ID)
	require.NoError(t, err)
	require.Len(t, threads, 2, "a newer message unhides the conversation")
	for _, th := range threads {
		if th.CounterpartID == carol.ID {
			assert.Equal(t, reply.ID, th.LastMessageID)
			assert.Equal(t, int64(1), th.UnreadCount)
		}
	}

	bobView, err := repo.DirectThreads(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, bobView, 1)
	assert.Zero(t, bobView[0].UnreadCount, "messages bob sent are never unread for bob")

	group := models.Group{Name: "team", CreatorID: me.ID}
	require.NoError(t, db.Create(&group).Error)
	empty := models.Group{Name: "quiet", CreatorID: me.ID}
	require.NoError(t, db.Create(&empty).Error)
	for _, m := range []models.GroupMember{
		{GroupID: group.ID, UserID: me.ID, Role: models.GroupRoleAdmin, InvitationStatus: models.InvitationAccepted, JoinedAt: base},
		{GroupID: group.ID, UserID: bob.ID, Role: models.GroupRoleMember, InvitationStatus: models.InvitationAccepted, JoinedAt: base},
		{GroupID: group.ID, UserID: carol.ID, Role: models.GroupRoleMember, InvitationStatus: models.InvitationInvited, JoinedAt: base},
		{GroupID: empty.ID, UserID: me.ID, Role: models.GroupRoleAdmin, InvitationStatus: models.InvitationAccepted, JoinedAt: base},
	} {
		require.NoError(t, db.Create(&m).Error)
	}

	first := models.GroupMessage{GroupID: group.ID, SenderID: bob.ID, Content: "g1", MessageType: models.MessageTypeText, CreatedAt: base}
	require.NoError(t, db.Create(&first).Error)
	own := models.GroupMessage{GroupID: group.ID, SenderID: me.ID, Content: "g2", MessageType: models.MessageTypeText, CreatedAt: base.Add(time.Minute)}
	require.NoError(t, db.Create(&own).Error)

	groups, err := repo.GroupThreads(ctx, me.ID)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	byID := map[uint]GroupThread{}
	for _, g := range groups {
		byID[g.GroupID] = g
	}
	assert.Equal(t, GroupThread{GroupID: group.ID, LastMessageID: own.ID, UnreadCount: 1, MemberCount: 2}, byID[group.ID])
	assert.Equal(t, GroupThread{GroupID: empty.ID, MemberCount: 1}, byID[empty.ID])

	carolGroups, err := repo.GroupThreads(ctx, carol.ID)
	require.NoError(t, err)
	assert.Empty(t, carolGroups, "invited members do not see the group")

	msgs, err := repo.GroupMessagesByIDs(ctx, []uint{own.ID})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Sender)
	assert.Equal(t, "me", msgs[0].Sender.Name)
}
