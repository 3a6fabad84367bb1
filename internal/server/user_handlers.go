package server

import (
	"parley/internal/middleware"
	"parley/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetMe handles GET /api/users/me
func (s *Server) GetMe(c *fiber.Ctx) error {
	user, err := s.directory.GetUser(c.UserContext(), middleware.CurrentUserID(c))
	if err != nil {
		return respondWithError(c, err)
	}
	resp, err := toUserResponse(user)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(resp)
}

// GetUser handles GET /api/users/:id
func (s *Server) GetUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	user, err := s.directory.GetUser(c.UserContext(), id)
	if err != nil {
		return respondWithError(c, err)
	}
	resp, err := toUserResponse(user)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(resp)
}

// SearchUsers handles GET /api/users/search?q=&limit=
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return respondWithError(c, models.NewValidationError("Invalid limit"))
	}

	users, err := s.directory.SearchUsers(c.UserContext(), c.Query("q"), middleware.CurrentUserID(c), limit)
	if err != nil {
		return respondWithError(c, err)
	}
	resp, err := toUserResponses(users)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(resp)
}
