// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"parley/internal/database"
	"parley/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a migrated in-memory SQLite database bound to a single connection.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// CreateUser inserts a directory user with a unique email.
func CreateUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)

	user := &models.User{
		Name:  name,
		Email: fmt.Sprintf("%s.%d@example.test", name, count+1),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateDirectMessage inserts a text message at a fixed timestamp.
func CreateDirectMessage(t *testing.T, db *gorm.DB, from, to uint, content string, at time.Time) *models.DirectMessage {
	t.Helper()

	msg := &models.DirectMessage{
		SenderID:    from,
		RecipientID: to,
		Content:     content,
		MessageType: models.MessageTypeText,
		CreatedAt:   at,
	}
	require.NoError(t, db.Create(msg).Error)
	return msg
}
