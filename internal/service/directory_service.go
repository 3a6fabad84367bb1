package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"parley/internal/models"
	"parley/internal/repository"
)

const (
	minSearchQueryLen  = 2
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// DirectoryService exposes read-only user lookups.
type DirectoryService struct {
	userRepo repository.UserRepository
}

// NewDirectoryService returns a new DirectoryService.
func NewDirectoryService(userRepo repository.UserRepository) *DirectoryService {
	return &DirectoryService{userRepo: userRepo}
}

// GetUser returns a user by id.
func (s *DirectoryService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// GetUsers returns the users that exist among ids, in no particular order.
func (s *DirectoryService) GetUsers(ctx context.Context, ids []uint) ([]models.User, error) {
	return s.userRepo.GetByIDs(ctx, dedupeIDs(ids, 0))
}

// SearchUsers finds users whose name contains query, excluding the searcher.
// Queries shorter than two characters return no results.
func (s *DirectoryService) SearchUsers(ctx context.Context, query string, excludeID uint, limit int) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < minSearchQueryLen {
		return []models.User{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return s.userRepo.Search(ctx, query, excludeID, limit)
}
