package database

import (
	"errors"
	"fmt"
	"testing"

	"parley/internal/config"
	"parley/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestConnect_SQLiteMigratesSchema(t *testing.T) {
	cfg := &config.Config{Env: "test", DBDriver: "sqlite", DBSQLitePath: ":memory:"}

	db, err := Connect(cfg)
	require.NoError(t, err)

	for _, model := range PersistentModels() {
		assert.True(t, db.Migrator().HasTable(model), "missing table for %T", model)
	}
	assert.True(t, db.Migrator().HasIndex(&models.Contact{}, "idx_contact_pair"))
	assert.True(t, db.Migrator().HasIndex(&models.GroupMember{}, "idx_group_member"))
	assert.False(t, SupportsRowLocks(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestConnect_DuplicateKeyIsTranslated(t *testing.T) {
	db, err := Connect(&config.Config{Env: "test", DBDriver: "sqlite", DBSQLitePath: ":memory:"})
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.Contact{OwnerID: 1, ContactID: 2}).Error)
	err = db.Create(&models.Contact{OwnerID: 1, ContactID: 2}).Error
	require.Error(t, err)

	assert.True(t, models.IsCode(TranslateError(err), models.CodeConflict))
}

func TestDialector_UnknownDriver(t *testing.T) {
	_, err := Dialector(&config.Config{DBDriver: "oracle"})
	assert.Error(t, err)

	d, err := Dialector(&config.Config{DBDriver: "postgres", DBHost: "db", DBPort: "5432"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"duplicate key", gorm.ErrDuplicatedKey, models.CodeConflict},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, models.CodeConflict},
		{"wrapped deadlock", fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40P01"}), models.CodeConflict},
		{"other pg error", &pgconn.PgError{Code: "42P01"}, models.CodeStorageFailure},
		{"opaque error", errors.New("disk full"), models.CodeStorageFailure},
		{"app error passes through", models.NewForbiddenError("no"), models.CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, models.ErrorCode(TranslateError(tt.err)))
		})
	}

	assert.NoError(t, TranslateError(nil))
	assert.ErrorIs(t, TranslateError(gorm.ErrRecordNotFound), gorm.ErrRecordNotFound)
}
