package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"parley/internal/cache"
	"parley/internal/models"
	"parley/internal/notifications"
	"parley/internal/repository"
	"parley/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	if m.failErr != nil {
		return "", m.failErr
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = body
	return "mem://" + key, nil
}

func (m *memoryStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

type fixture struct {
	db    *gorm.DB
	infra Infra
	files *memoryStore
	redis *miniredis.Miniredis

	dir   *DirectoryService
	rel   *RelationshipService
	msg   *MessageService
	group *GroupService
	conv  *ConversationService
}

type fixtureOption func(t *testing.T, f *fixture)

// withRedis backs the cache and notifier with an in-process Redis.
func withRedis() fixtureOption {
	return func(t *testing.T, f *fixture) {
		f.redis = miniredis.RunT(t)
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{db: testutil.NewTestDB(t), files: newMemoryStore()}
	for _, opt := range opts {
		opt(t, f)
	}

	f.infra = Infra{
		DB:              f.db,
		Files:           f.files,
		HistoryPageSize: 50,
		ListCacheTTL:    time.Minute,
	}
	if f.redis != nil {
		rdb := redis.NewClient(&redis.Options{Addr: f.redis.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		f.infra.Cache = cache.NewStore(rdb, "conversations")
		f.infra.Notifier = notifications.NewNotifier(rdb)
	}

	userRepo := repository.NewUserRepository(f.db)
	relRepo := repository.NewRelationshipRepository(f.db)
	msgRepo := repository.NewDirectMessageRepository(f.db)
	visRepo := repository.NewVisibilityRepository(f.db)
	groupRepo := repository.NewGroupRepository(f.db)
	convRepo := repository.NewConversationRepository(f.db)

	f.dir = NewDirectoryService(userRepo)
	f.rel = NewRelationshipService(relRepo, userRepo, f.db, f.infra.Cache)
	f.msg = NewMessageService(msgRepo, relRepo, userRepo, visRepo, f.infra)
	f.group = NewGroupService(groupRepo, userRepo, f.infra)
	f.conv = NewConversationService(convRepo, msgRepo, userRepo, relRepo, f.infra)
	return f
}

func (f *fixture) user(t *testing.T, name string) *models.User {
	t.Helper()
	return testutil.CreateUser(t, f.db, name)
}

func (f *fixture) send(t *testing.T, from, to uint, content string) *models.DirectMessage {
	t.Helper()
	msg, err := f.msg.SendDirectMessage(context.Background(), SendDirectInput{SenderID: from, RecipientID: to, Content: content})
	require.NoError(t, err)
	return msg
}

// joinedGroup creates a group owned by admin where every member has accepted.
func (f *fixture) joinedGroup(t *testing.T, admin uint, members ...uint) *models.GroupDetails {
	t.Helper()
	ctx := context.Background()

	details, err := f.group.CreateGroup(ctx, CreateGroupInput{CreatorID: admin, Name: "crew", MemberIDs: members})
	require.NoError(t, err)
	for _, id := range members {
		_, err := f.group.RespondToInvitation(ctx, details.Group.ID, id, true)
		require.NoError(t, err)
	}
	return details
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	require.Equal(t, code, appErr.Code, appErr.Error())
}
