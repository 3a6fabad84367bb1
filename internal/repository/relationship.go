package repository

import (
	"context"

	"parley/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RelationshipRepository persists the contact and block edges of the Relationship Ledger.
type RelationshipRepository interface {
	AddContact(ctx context.Context, ownerID, contactID uint) (*models.Contact, error)
	RemoveContact(ctx context.Context, ownerID, contactID uint) (bool, error)
	RemoveContactsBetween(ctx context.Context, userA, userB uint) error
	ListContacts(ctx context.Context, ownerID uint) ([]models.Contact, error)
	IsContact(ctx context.Context, ownerID, contactID uint) (bool, error)
	ContactIDsAmong(ctx context.Context, ownerID uint, candidates []uint) ([]uint, error)

	AddBlock(ctx context.Context, blockerID, blockedID uint) (*models.Block, error)
	RemoveBlock(ctx context.Context, blockerID, blockedID uint) (bool, error)
	ListBlocks(ctx context.Context, blockerID uint) ([]models.Block, error)
	BlockStatus(ctx context.Context, viewerID, otherID uint) (models.BlockStatus, error)
	BlockEdgesAmong(ctx context.Context, viewerID uint, candidates []uint) ([]models.Block, error)

	WithTx(tx *gorm.DB) RelationshipRepository
}

type relationshipRepository struct {
	db *gorm.DB
}

// NewRelationshipRepository creates a new relationship repository
func NewRelationshipRepository(db *gorm.DB) RelationshipRepository {
	return &relationshipRepository{db: db}
}

func (r *relationshipRepository) WithTx(tx *gorm.DB) RelationshipRepository {
	return &relationshipRepository{db: tx}
}

// AddContact inserts the edge if missing and returns the stored edge either way.
func (r *relationshipRepository) AddContact(ctx context.Context, ownerID, contactID uint) (*models.Contact, error) {
	edge := models.Contact{OwnerID: ownerID, ContactID: contactID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&edge).Error; err != nil {
		return nil, wrapErr(err)
	}

	var stored models.Contact
	if err := r.db.WithContext(ctx).
		Preload("ContactUser").
		Where("owner_id = ? AND contact_id = ?", ownerID, contactID).
		First(&stored).Error; err != nil {
		return nil, storeErr(err, "Contact", contactID)
	}
	return &stored, nil
}

func (r *relationshipRepository) RemoveContact(ctx context.Context, ownerID, contactID uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("owner_id = ? AND contact_id = ?", ownerID, contactID).
		Delete(&models.Contact{})
	if result.Error != nil {
		return false, wrapErr(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *relationshipRepository) RemoveContactsBetween(ctx context.Context, userA, userB uint) error {
	if err := r.db.WithContext(ctx).
		Where("(owner_id = ? AND contact_id = ?) OR (owner_id = ? AND contact_id = ?)",
			userA, userB, userB, userA).
		Delete(&models.Contact{}).Error; err != nil {
		return wrapErr(err)
	}
	return nil
}

func (r *relationshipRepository) ListContacts(ctx context.Context, ownerID uint) ([]models.Contact, error) {
	contacts := []models.Contact{}
	if err := r.db.WithContext(ctx).
		Preload("ContactUser").
		Where("owner_id = ?", ownerID).
		Order("added_at DESC, id DESC").
		Find(&contacts).Error; err != nil {
		return nil, wrapErr(err)
	}
	return contacts, nil
}

func (r *relationshipRepository) IsContact(ctx context.Context, ownerID, contactID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Contact{}).
		Where("owner_id = ? AND contact_id = ?", ownerID, contactID).
		Count(&count).Error; err != nil {
		return false, wrapErr(err)
	}
	return count > 0, nil
}

func (r *relationshipRepository) ContactIDsAmong(ctx context.Context, ownerID uint, candidates []uint) ([]uint, error) {
	ids := []uint{}
	if len(candidates) == 0 {
		return ids, nil
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Contact{}).
		Where("owner_id = ? AND contact_id IN ?", ownerID, candidates).
		Pluck("contact_id", &ids).Error; err != nil {
		return nil, wrapErr(err)
	}
	return ids, nil
}

// AddBlock inserts the edge if missing and returns the stored edge either way.
func (r *relationshipRepository) AddBlock(ctx context.Context, blockerID, blockedID uint) (*models.Block, error) {
	edge := models.Block{BlockerID: blockerID, BlockedID: blockedID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&edge).Error; err != nil {
		return nil, wrapErr(err)
	}

	var stored models.Block
	if err := r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		First(&stored).Error; err != nil {
		return nil, storeErr(err, "Block", blockedID)
	}
	return &stored, nil
}

func (r *relationshipRepository) RemoveBlock(ctx context.Context, blockerID, blockedID uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&models.Block{})
	if result.Error != nil {
		return false, wrapErr(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *relationshipRepository) ListBlocks(ctx context.Context, blockerID uint) ([]models.Block, error) {
	blocks := []models.Block{}
	if err := r.db.WithContext(ctx).
		Preload("Blocked").
		Where("blocker_id = ?", blockerID).
		Order("created_at DESC, id DESC").
		Find(&blocks).Error; err != nil {
		return nil, wrapErr(err)
	}
	return blocks, nil
}

func (r *relationshipRepository) BlockStatus(ctx context.Context, viewerID, otherID uint) (models.BlockStatus, error) {
	var blockers []uint
	if err := r.db.WithContext(ctx).
		Model(&models.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)",
			viewerID, otherID, otherID, viewerID).
		Pluck("blocker_id", &blockers).Error; err != nil {
		return models.BlockStatus{}, wrapErr(err)
	}

	var status models.BlockStatus
	for _, blocker := range blockers {
		if blocker == viewerID {
			status.BlockedByYou = true
		} else {
			status.HasBlockedYou = true
		}
	}
	return status, nil
}

// BlockEdgesAmong returns every block edge between viewerID and any candidate, in either direction.
func (r *relationshipRepository) BlockEdgesAmong(ctx context.Context, viewerID uint, candidates []uint) ([]models.Block, error) {
	blocks := []models.Block{}
	if len(candidates) == 0 {
		return blocks, nil
	}
	if err := r.db.WithContext(ctx).
		Where("(blocker_id = ? AND blocked_id IN ?) OR (blocked_id = ? AND blocker_id IN ?)",
			viewerID, candidates, viewerID, candidates).
		Find(&blocks).Error; err != nil {
		return nil, wrapErr(err)
	}
	return blocks, nil
}
