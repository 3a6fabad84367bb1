package seed

import (
	"context"
	"testing"

	"parley/internal/models"
	"parley/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestSeed_CreatesDemoGraph(t *testing.T) {
	db := testutil.NewTestDB(t)

	res, err := Seed(context.Background(), db, Options{
		NumUsers:        4,
		MessagesPerPair: 3,
		NumGroups:       2,
		GroupMessages:   5,
		FastPasswords:   true,
		RandomSeed:      42,
	})
	require.NoError(t, err)
	require.Len(t, res.Users, 4)
	require.Len(t, res.Groups, 2)

	var contacts, direct, members, groupMsgs int64
	require.NoError(t, db.Model(&models.Contact{}).Count(&contacts).Error)
	require.NoError(t, db.Model(&models.DirectMessage{}).Count(&direct).Error)
	require.NoError(t, db.Model(&models.GroupMember{}).Count(&members).Error)
	require.NoError(t, db.Model(&models.GroupMessage{}).Count(&groupMsgs).Error)

	assert.Equal(t, int64(3), contacts)
	assert.Equal(t, int64(9), direct)
	assert.Equal(t, int64(8), members, "admin plus three members per group")
	assert.Equal(t, int64(10), groupMsgs)

	demo := res.Users[0]
	var admins int64
	require.NoError(t, db.Model(&models.GroupMember{}).
		Where("user_id = ? AND role = ?", demo.ID, models.GroupRoleAdmin).
		Count(&admins).Error)
	assert.Equal(t, int64(2), admins)

	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(demo.PasswordHash), []byte(DefaultPassword)))
}

func TestSeed_CleanReplacesData(t *testing.T) {
	db := testutil.NewTestDB(t)
	opts := Options{NumUsers: 2, MessagesPerPair: 1, FastPasswords: true}

	_, err := Seed(context.Background(), db, opts)
	require.NoError(t, err)

	opts.ShouldClean = true
	_, err = Seed(context.Background(), db, opts)
	require.NoError(t, err)

	var users, direct int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, db.Model(&models.DirectMessage{}).Count(&direct).Error)
	assert.Equal(t, int64(2), users)
	assert.Equal(t, int64(1), direct)
}

func TestSeed_RequiresTwoUsers(t *testing.T) {
	_, err := Seed(context.Background(), testutil.NewTestDB(t), Options{NumUsers: 1})
	assert.Error(t, err)
}

func TestPickMembers(t *testing.T) {
	users := []*models.User{{ID: 1}, {ID: 2}, {ID: 3}}

	got := pickMembers(users, 2, 2)
	require.Len(t, got, 2)
	assert.Equal(t, uint(3), got[0].ID)
	assert.Equal(t, uint(1), got[1].ID)

	assert.Len(t, pickMembers(users, 0, 5), 3)
}
