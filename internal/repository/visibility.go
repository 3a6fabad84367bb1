package repository

import (
	"context"
	"errors"

	"parley/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VisibilityRepository stores per-user hidden-conversation markers.
type VisibilityRepository interface {
	Hide(ctx context.Context, marker *models.HiddenConversation) error
	Get(ctx context.Context, userID, counterpartID uint) (*models.HiddenConversation, error)
	WithTx(tx *gorm.DB) VisibilityRepository
}

type visibilityRepository struct {
	db *gorm.DB
}

// NewVisibilityRepository creates a new visibility repository
func NewVisibilityRepository(db *gorm.DB) VisibilityRepository {
	return &visibilityRepository{db: db}
}

func (r *visibilityRepository) WithTx(tx *gorm.DB) VisibilityRepository {
	return &visibilityRepository{db: tx}
}

// Hide inserts the marker or moves an existing one forward.
func (r *visibilityRepository) Hide(ctx context.Context, marker *models.HiddenConversation) error {
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "counterpart_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"hidden_through_id", "hidden_at"}),
		}).
		Create(marker).Error; err != nil {
		return wrapErr(err)
	}
	return nil
}

// Get returns the marker, or nil when the conversation was never hidden.
func (r *visibilityRepository) Get(ctx context.Context, userID, counterpartID uint) (*models.HiddenConversation, error) {
	var marker models.HiddenConversation
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND counterpart_id = ?", userID, counterpartID).
		First(&marker).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrapErr(err)
	}
	return &marker, nil
}
