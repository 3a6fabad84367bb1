package server

import (
	"parley/internal/middleware"
	"parley/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ListContacts handles GET /api/contacts
func (s *Server) ListContacts(c *fiber.Ctx) error {
	contacts, err := s.relationships.ListContacts(c.UserContext(), middleware.CurrentUserID(c))
	if err != nil {
		return respondWithError(c, err)
	}
	resp, err := toContactResponses(contacts)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(resp)
}

// GetContactStatus handles GET /api/contacts/:userId
func (s *Server) GetContactStatus(c *fiber.Ctx) error {
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	isContact, err := s.relationships.IsContact(c.UserContext(), middleware.CurrentUserID(c), targetID)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(fiber.Map{"is_contact": isContact})
}

// AddContact handles POST /api/contacts/:userId
func (s *Server) AddContact(c *fiber.Ctx) error {
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	contact, err := s.relationships.AddContact(c.UserContext(), middleware.CurrentUserID(c), targetID)
	if err != nil {
		return respondWithError(c, err)
	}
	resp, err := toContactResponses([]models.Contact{*contact})
	if err != nil {
		return respondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp[0])
}

// RemoveContact handles DELETE /api/contacts/:userId
func (s *Server) RemoveContact(c *fiber.Ctx) error {
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	if err := s.relationships.RemoveContact(c.UserContext(), middleware.CurrentUserID(c), targetID); err != nil {
		return respondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListBlocks handles GET /api/blocks
func (s *Server) ListBlocks(c *fiber.Ctx) error {
	blocks, err := s.relationships.ListBlocks(c.UserContext(), middleware.CurrentUserID(c))
	if err != nil {
		return respondWithError(c, err)
	}
	resp, err := toBlockResponses(blocks)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(resp)
}

// GetBlockStatus handles GET /api/blocks/:userId
func (s *Server) GetBlockStatus(c *fiber.Ctx) error {
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	status, err := s.relationships.IsBlocked(c.UserContext(), middleware.CurrentUserID(c), targetID)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(status)
}

// BlockUser handles POST /api/blocks/:userId
func (s *Server) BlockUser(c *fiber.Ctx) error {
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	block, err := s.relationships.BlockUser(c.UserContext(), middleware.CurrentUserID(c), targetID)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(BlockResponse{
		BlockedID: block.BlockedID,
		CreatedAt: block.CreatedAt,
	})
}

// UnblockUser handles DELETE /api/blocks/:userId
func (s *Server) UnblockUser(c *fiber.Ctx) error {
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	if err := s.relationships.UnblockUser(c.UserContext(), middleware.CurrentUserID(c), targetID); err != nil {
		return respondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
