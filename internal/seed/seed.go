package seed

import (
	"context"
	"fmt"
	"log/slog"

	"parley/internal/models"
	"parley/internal/observability"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers        int
	MessagesPerPair int
	NumGroups       int
	GroupMessages   int
	ShouldClean     bool
	// FastPasswords hashes with bcrypt.MinCost.
	FastPasswords bool
	// RandomSeed makes the generated data reproducible when non-zero.
	RandomSeed int64
}

// Result lists what a Seed run created.
type Result struct {
	Users  []*models.User
	Groups []*models.Group
}

// Seed populates the database with demo users, direct conversations and groups.
// The first user is the demo account: it has every other user as a contact, a
// conversation with each of them and admin rights on every group.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Result, error) {
	if opts.NumUsers < 2 {
		return nil, fmt.Errorf("seed needs at least 2 users, got %d", opts.NumUsers)
	}
	log := observability.Logger
	log.InfoContext(ctx, "starting database seeding",
		slog.Int("users", opts.NumUsers),
		slog.Int("groups", opts.NumGroups))

	db = db.WithContext(ctx)
	if opts.ShouldClean {
		if err := clearData(db); err != nil {
			return nil, fmt.Errorf("failed to clear data: %w", err)
		}
	}

	f := NewFactory(db, opts)
	res := &Result{}
	for i := 0; i < opts.NumUsers; i++ {
		u, err := f.CreateUser()
		if err != nil {
			return nil, fmt.Errorf("failed to create users: %w", err)
		}
		res.Users = append(res.Users, u)
	}

	demo := res.Users[0]
	for _, other := range res.Users[1:] {
		if err := f.CreateContact(demo, other); err != nil {
			return nil, fmt.Errorf("failed to create contacts: %w", err)
		}
		if _, err := f.CreateConversation(demo, other, opts.MessagesPerPair); err != nil {
			return nil, fmt.Errorf("failed to create conversations: %w", err)
		}
	}

	for i := 0; i < opts.NumGroups; i++ {
		members := pickMembers(res.Users[1:], i, 3)
		g, err := f.CreateGroup(demo, members, opts.GroupMessages)
		if err != nil {
			return nil, fmt.Errorf("failed to create groups: %w", err)
		}
		res.Groups = append(res.Groups, g)
	}

	log.InfoContext(ctx, "database seeding completed",
		slog.Int("users", len(res.Users)),
		slog.Int("groups", len(res.Groups)))
	return res, nil
}

// pickMembers returns up to n users starting at offset, wrapping around.
func pickMembers(users []*models.User, offset, n int) []*models.User {
	if n > len(users) {
		n = len(users)
	}
	out := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, users[(offset+i)%len(users)])
	}
	return out
}

// clearData removes every row, children first.
func clearData(db *gorm.DB) error {
	tables := []any{
		&models.GroupMessage{},
		&models.GroupMember{},
		&models.Group{},
		&models.HiddenConversation{},
		&models.DirectMessage{},
		&models.Block{},
		&models.Contact{},
		&models.User{},
	}
	for _, table := range tables {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(table).Error; err != nil {
			return err
		}
	}
	return nil
}
