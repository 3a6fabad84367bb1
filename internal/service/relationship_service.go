package service

import (
	"context"
	"log/slog"

	"parley/internal/cache"
	"parley/internal/models"
	"parley/internal/observability"
	"parley/internal/repository"

	"gorm.io/gorm"
)

// RelationshipService manages contacts and blocks.
type RelationshipService struct {
	relRepo  repository.RelationshipRepository
	userRepo repository.UserRepository
	db       *gorm.DB
	cache    *cache.Store
}

// NewRelationshipService returns a new RelationshipService.
func NewRelationshipService(
	relRepo repository.RelationshipRepository,
	userRepo repository.UserRepository,
	db *gorm.DB,
	cacheStore *cache.Store,
) *RelationshipService {
	return &RelationshipService{
		relRepo:  relRepo,
		userRepo: userRepo,
		db:       db,
		cache:    cacheStore,
	}
}

// validateTarget rejects self-targeting and unknown users.
func (s *RelationshipService) validateTarget(ctx context.Context, actorID, targetID uint, action string) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	if targetID == 0 {
		return models.NewValidationError("Target user is required")
	}
	if actorID == targetID {
		return models.NewValidationError("Cannot " + action + " yourself")
	}
	exists, err := s.userRepo.Exists(ctx, targetID)
	if err != nil {
		return err
	}
	if !exists {
		return models.NewNotFoundError("User", targetID)
	}
	return nil
}

// AddContact adds targetID to ownerID's contacts. Adding an existing contact returns the stored edge.
func (s *RelationshipService) AddContact(ctx context.Context, ownerID, targetID uint) (*models.Contact, error) {
	if err := s.validateTarget(ctx, ownerID, targetID, "add"); err != nil {
		return nil, err
	}
	contact, err := s.relRepo.AddContact(ctx, ownerID, targetID)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateConversations(ctx, ownerID)
	return contact, nil
}

// RemoveContact deletes the edge if it exists.
func (s *RelationshipService) RemoveContact(ctx context.Context, ownerID, targetID uint) error {
	if err := requireActor(ownerID); err != nil {
		return err
	}
	removed, err := s.relRepo.RemoveContact(ctx, ownerID, targetID)
	if err != nil {
		return err
	}
	if removed {
		s.cache.InvalidateConversations(ctx, ownerID)
	}
	return nil
}

// ListContacts returns ownerID's contacts, newest first.
func (s *RelationshipService) ListContacts(ctx context.Context, ownerID uint) ([]models.Contact, error) {
	if err := requireActor(ownerID); err != nil {
		return nil, err
	}
	return s.relRepo.ListContacts(ctx, ownerID)
}

// IsContact reports whether ownerID keeps targetID as a contact.
func (s *RelationshipService) IsContact(ctx context.Context, ownerID, targetID uint) (bool, error) {
	if err := requireActor(ownerID); err != nil {
		return false, err
	}
	return s.relRepo.IsContact(ctx, ownerID, targetID)
}

// BlockUser records a block and drops the contact edges of the pair in the same transaction.
func (s *RelationshipService) BlockUser(ctx context.Context, blockerID, targetID uint) (*models.Block, error) {
	if err := s.validateTarget(ctx, blockerID, targetID, "block"); err != nil {
		return nil, err
	}

	var block *models.Block
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		relRepo := s.relRepo.WithTx(tx)
		var err error
		if block, err = relRepo.AddBlock(ctx, blockerID, targetID); err != nil {
			return err
		}
		return relRepo.RemoveContactsBetween(ctx, blockerID, targetID)
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateConversations(ctx, blockerID, targetID)
	observability.Logger.InfoContext(ctx, "user blocked",
		slog.Uint64("blocker_id", uint64(blockerID)),
		slog.Uint64("blocked_id", uint64(targetID)))
	return block, nil
}

// UnblockUser removes the block if it exists.
func (s *RelationshipService) UnblockUser(ctx context.Context, blockerID, targetID uint) error {
	if err := requireActor(blockerID); err != nil {
		return err
	}
	removed, err := s.relRepo.RemoveBlock(ctx, blockerID, targetID)
	if err != nil {
		return err
	}
	if removed {
		s.cache.InvalidateConversations(ctx, blockerID, targetID)
	}
	return nil
}

// ListBlocks returns the users blockerID has blocked.
func (s *RelationshipService) ListBlocks(ctx context.Context, blockerID uint) ([]models.Block, error) {
	if err := requireActor(blockerID); err != nil {
		return nil, err
	}
	return s.relRepo.ListBlocks(ctx, blockerID)
}

// IsBlocked reports the block edges between a and b, seen from a.
func (s *RelationshipService) IsBlocked(ctx context.Context, a, b uint) (models.BlockStatus, error) {
	if err := requireActor(a); err != nil {
		return models.BlockStatus{}, err
	}
	return s.relRepo.BlockStatus(ctx, a, b)
}
