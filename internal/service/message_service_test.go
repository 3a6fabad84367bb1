package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"parley/internal/models"
	"parley/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendDirectMessage_ShowsUpUnreadForRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	msg := f.send(t, alice.ID, bob.ID, "  hi  ")
	assert.False(t, msg.IsRead)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, models.MessageTypeText, msg.MessageType)

	list, err := f.conv.ListConversations(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.ConversationDirect, list[0].Kind)
	assert.Equal(t, alice.ID, list[0].ID)
	assert.Equal(t, "alice", list[0].DisplayName)
	assert.Equal(t, int64(1), list[0].UnreadCount)
	assert.Equal(t, "hi", list[0].LastMessagePreview)

	senderView, err := f.conv.ListConversations(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, senderView, 1)
	assert.Zero(t, senderView[0].UnreadCount)
}

func TestSendDirectMessage_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	tests := []struct {
		name string
		in   SendDirectInput
		code string
	}{
		{"anonymous", SendDirectInput{RecipientID: bob.ID, Content: "x"}, models.CodeUnauthenticated},
		{"empty", SendDirectInput{SenderID: alice.ID, RecipientID: bob.ID, Content: "   "}, models.CodeValidation},
		{"too long", SendDirectInput{SenderID: alice.ID, RecipientID: bob.ID, Content: strings.Repeat("a", maxMessageContentLen+1)}, models.CodeValidation},
		{"self", SendDirectInput{SenderID: alice.ID, RecipientID: alice.ID, Content: "x"}, models.CodeValidation},
		{"unknown recipient", SendDirectInput{SenderID: alice.ID, RecipientID: 999, Content: "x"}, models.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.msg.SendDirectMessage(ctx, tt.in)
			requireCode(t, err, tt.code)
		})
	}
}

func TestSendDirectMessage_BlockedEitherDirection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	_, err := f.rel.AddContact(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	_, err = f.rel.BlockUser(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = f.msg.SendDirectMessage(ctx, SendDirectInput{SenderID: bob.ID, RecipientID: alice.ID, Content: "hello"})
	requireCode(t, err, models.CodeBlocked)
	_, err = f.msg.SendDirectMessage(ctx, SendDirectInput{SenderID: alice.ID, RecipientID: bob.ID, Content: "hello"})
	requireCode(t, err, models.CodeBlocked)

	isContact, err := f.rel.IsContact(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, isContact)

	var count int64
	require.NoError(t, f.db.Model(&models.DirectMessage{}).Count(&count).Error)
	assert.Zero(t, count)

	require.NoError(t, f.rel.UnblockUser(ctx, alice.ID, bob.ID))
	f.send(t, bob.ID, alice.ID, "hello again")
}

func TestEditDirectMessage_OnlySender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	msg := f.send(t, alice.ID, bob.ID, "hi")

	edited, err := f.msg.EditDirectMessage(ctx, msg.ID, alice.ID, "hi edited")
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.NotNil(t, edited.EditedAt)
	assert.Equal(t, "hi edited", edited.Content)

	_, err = f.msg.EditDirectMessage(ctx, msg.ID, bob.ID, "x")
	requireCode(t, err, models.CodeForbidden)

	_, err = f.msg.EditDirectMessage(ctx, msg.ID+100, alice.ID, "x")
	requireCode(t, err, models.CodeNotFound)

	var stored models.DirectMessage
	require.NoError(t, f.db.First(&stored, msg.ID).Error)
	assert.Equal(t, "hi edited", stored.Content)
	assert.True(t, stored.IsEdited)
	assert.Equal(t, msg.CreatedAt.Unix(), stored.CreatedAt.Unix(), "edit keeps the original position")
}

func TestDeleteDirectMessage_OnlySender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	msg := f.send(t, alice.ID, bob.ID, "oops")

	requireCode(t, f.msg.DeleteDirectMessage(ctx, msg.ID, bob.ID), models.CodeForbidden)
	require.NoError(t, f.msg.DeleteDirectMessage(ctx, msg.ID, alice.ID))
	requireCode(t, f.msg.DeleteDirectMessage(ctx, msg.ID, alice.ID), models.CodeNotFound)
}

func TestFetchHistory_MarksReadIdempotently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	base := time.Now().UTC().Add(-time.Hour)
	testutil.CreateDirectMessage(t, f.db, bob.ID, alice.ID, "one", base)
	testutil.CreateDirectMessage(t, f.db, alice.ID, bob.ID, "two", base.Add(time.Minute))
	testutil.CreateDirectMessage(t, f.db, bob.ID, alice.ID, "three", base.Add(2*time.Minute))

	first, err := f.msg.FetchHistory(ctx, alice.ID, bob.ID, models.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, []string{"one", "two", "three"}, contents(first))
	for _, m := range first {
		if m.SenderID == bob.ID {
			assert.True(t, m.IsRead)
		}
	}

	second, err := f.msg.FetchHistory(ctx, alice.ID, bob.ID, models.HistoryQuery{})
	require.NoError(t, err)
	assert.Equal(t, readFlags(first), readFlags(second))

	var unread int64
	require.NoError(t, f.db.Model(&models.DirectMessage{}).Where("is_read = ?", false).Count(&unread).Error)
	assert.Equal(t, int64(1), unread, "only the viewer's own message stays unread")
}

func TestFetchHistory_Paging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	base := time.Now().UTC().Add(-time.Hour)
	var last *models.DirectMessage
	for i := 0; i < 5; i++ {
		last = testutil.CreateDirectMessage(t, f.db, alice.ID, bob.ID, string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
	}

	newest, err := f.msg.FetchHistory(ctx, bob.ID, alice.ID, models.HistoryQuery{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "e"}, contents(newest))

	older, err := f.msg.FetchHistory(ctx, bob.ID, alice.ID, models.HistoryQuery{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, contents(older))

	polled, err := f.msg.FetchHistory(ctx, bob.ID, alice.ID, models.HistoryQuery{AfterID: last.ID})
	require.NoError(t, err)
	assert.Empty(t, polled)
}

func TestHideConversation_UnhidesOnNewActivity(t *testing.T) {
	f := newFixture(t, withRedis())
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	f.send(t, bob.ID, alice.ID, "old news")

	marker, err := f.msg.HideConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	again, err := f.msg.HideConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, marker.HiddenThroughID, again.HiddenThroughID)

	list, err := f.conv.ListConversations(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	bobView, err := f.conv.ListConversations(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, bobView, 1, "hiding is per user")

	history, err := f.msg.FetchHistory(ctx, alice.ID, bob.ID, models.HistoryQuery{})
	require.NoError(t, err)
	assert.Empty(t, history)

	f.send(t, bob.ID, alice.ID, "fresh")

	list, err = f.conv.ListConversations(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "fresh", list[0].LastMessagePreview)
	assert.Equal(t, int64(1), list[0].UnreadCount)

	history, err = f.msg.FetchHistory(ctx, alice.ID, bob.ID, models.HistoryQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, contents(history))
}

func TestHideConversation_Validation(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	_, err := f.msg.HideConversation(context.Background(), alice.ID, alice.ID)
	requireCode(t, err, models.CodeValidation)
}

func TestMarkConversationRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	f.send(t, bob.ID, alice.ID, "one")
	f.send(t, bob.ID, alice.ID, "two")

	marked, err := f.msg.MarkConversationRead(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	marked, err = f.msg.MarkConversationRead(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, marked)
}

func TestSendDirectFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	msg, err := f.msg.SendDirectFile(ctx, SendDirectFileInput{
		SenderID:    bob.ID,
		RecipientID: alice.ID,
		Upload: FileUpload{
			Filename: "../notes.txt",
			Size:     5,
			Body:     strings.NewReader("hello"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeFile, msg.MessageType)
	assert.Equal(t, "notes.txt", msg.OriginalFilename)
	assert.Contains(t, msg.MimeType, "text/plain")
	assert.True(t, strings.HasPrefix(msg.FileRef, "mem://direct_files/1_2/"), msg.FileRef)

	keys := f.files.keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasSuffix(keys[0], ".txt"))

	list, err := f.conv.ListConversations(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "[file] notes.txt", list[0].LastMessagePreview)
}

func TestSendDirectFile_BlockedStoresNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	_, err := f.rel.BlockUser(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = f.msg.SendDirectFile(ctx, SendDirectFileInput{
		SenderID:    bob.ID,
		RecipientID: alice.ID,
		Upload:      FileUpload{Filename: "a.txt", Body: strings.NewReader("x")},
	})
	requireCode(t, err, models.CodeBlocked)
	assert.Empty(t, f.files.keys())
}

func TestSendDirectFile_StoreFailure(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	f.files.failErr = errors.New("bucket unavailable")

	_, err := f.msg.SendDirectFile(context.Background(), SendDirectFileInput{
		SenderID:    alice.ID,
		RecipientID: bob.ID,
		Upload:      FileUpload{Filename: "a.txt", Body: strings.NewReader("x")},
	})
	requireCode(t, err, models.CodeStorageFailure)
}

func TestSendDirectMessage_StorageFailureIsReported(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = f.msg.SendDirectMessage(context.Background(), SendDirectInput{SenderID: alice.ID, RecipientID: bob.ID, Content: "hi"})
	requireCode(t, err, models.CodeStorageFailure)

	_, err = f.conv.ListConversations(context.Background(), alice.ID)
	requireCode(t, err, models.CodeStorageFailure)
}

func contents(msgs []models.DirectMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func readFlags(msgs []models.DirectMessage) map[uint]bool {
	out := make(map[uint]bool, len(msgs))
	for _, m := range msgs {
		out[m.ID] = m.IsRead
	}
	return out
}
