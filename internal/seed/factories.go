// Package seed provides helpers to create demo data for the messaging core.
// These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"parley/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "password123"

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db       *gorm.DB
	hashCost int
	rng      *rand.Rand
	faker    *gofakeit.Faker
	// shared by every seeded user
	passwordHash string
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
// A zero seed draws one from the clock.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	seed := opts.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	cost := bcrypt.DefaultCost
	if opts.FastPasswords {
		cost = bcrypt.MinCost
	}
	return &Factory{
		db:       db,
		hashCost: cost,
		rng:      rand.New(rand.NewSource(seed)),
		faker:    gofakeit.New(seed),
	}
}

func (f *Factory) hash() (string, error) {
	if f.passwordHash != "" {
		return f.passwordHash, nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), f.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash seed password: %w", err)
	}
	f.passwordHash = string(hashed)
	return f.passwordHash, nil
}

// CreateUser constructs and persists a directory user.
// Optional override functions may modify the generated user before saving.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	hash, err := f.hash()
	if err != nil {
		return nil, err
	}

	first, last := f.faker.FirstName(), f.faker.LastName()
	user := &models.User{
		Name:           first + " " + last,
		Email:          fmt.Sprintf("%s.%s.%s@example.test", strings.ToLower(first), strings.ToLower(last), f.faker.LetterN(6)),
		PasswordHash:   hash,
		AvatarPath:     fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.faker.UUID()),
		Bio:            f.faker.Sentence(8),
		EmailConfirmed: true,
	}
	for _, override := range overrides {
		override(user)
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateContact records target in owner's contact list.
func (f *Factory) CreateContact(owner, target *models.User) error {
	return f.db.Create(&models.Contact{OwnerID: owner.ID, ContactID: target.ID}).Error
}

// CreateConversation persists count alternating messages between a and b, oldest first.
// Messages sent to a are left unread so the demo list shows unread counts.
func (f *Factory) CreateConversation(a, b *models.User, count int) ([]models.DirectMessage, error) {
	msgs := make([]models.DirectMessage, 0, count)
	at := f.pastTime(7 * 24 * time.Hour)
	for i := 0; i < count; i++ {
		sender, recipient := a, b
		if i%2 == 1 {
			sender, recipient = b, a
		}
		at = at.Add(time.Duration(1+f.rng.Intn(90)) * time.Minute)
		msgs = append(msgs, models.DirectMessage{
			SenderID:    sender.ID,
			RecipientID: recipient.ID,
			Content:     f.faker.Sentence(4 + f.rng.Intn(10)),
			MessageType: models.MessageTypeText,
			IsRead:      recipient.ID == b.ID,
			CreatedAt:   at,
		})
	}
	if len(msgs) == 0 {
		return msgs, nil
	}
	if err := f.db.Create(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// CreateGroup persists a group owned by admin in which every member has accepted,
// plus messageCount messages from random participants.
func (f *Factory) CreateGroup(admin *models.User, members []*models.User, messageCount int) (*models.Group, error) {
	group := &models.Group{
		Name:        f.faker.AppName(),
		Description: f.faker.Sentence(10),
		CreatorID:   admin.ID,
	}

	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			return err
		}

		joined := f.pastTime(14 * 24 * time.Hour)
		roster := []models.GroupMember{{
			GroupID:          group.ID,
			UserID:           admin.ID,
			Role:             models.GroupRoleAdmin,
			InvitationStatus: models.InvitationAccepted,
			JoinedAt:         joined,
		}}
		for _, m := range members {
			roster = append(roster, models.GroupMember{
				GroupID:          group.ID,
				UserID:           m.ID,
				Role:             models.GroupRoleMember,
				InvitationStatus: models.InvitationAccepted,
				JoinedAt:         joined,
			})
		}
		if err := tx.Create(&roster).Error; err != nil {
			return err
		}
		if messageCount == 0 {
			return nil
		}

		participants := append([]*models.User{admin}, members...)
		at := joined
		msgs := make([]models.GroupMessage, 0, messageCount)
		for i := 0; i < messageCount; i++ {
			at = at.Add(time.Duration(5+f.rng.Intn(240)) * time.Minute)
			msgs = append(msgs, models.GroupMessage{
				GroupID:     group.ID,
				SenderID:    participants[f.rng.Intn(len(participants))].ID,
				Content:     f.faker.Sentence(3 + f.rng.Intn(12)),
				MessageType: models.MessageTypeText,
				CreatedAt:   at,
			})
		}
		return tx.Create(&msgs).Error
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

func (f *Factory) pastTime(window time.Duration) time.Time {
	back := time.Duration(f.rng.Int63n(int64(window)))
	return time.Now().UTC().Add(-window - back)
}
