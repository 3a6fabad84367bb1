package server

import (
	"fmt"
	"io"

	"parley/internal/middleware"
	"parley/internal/models"
	"parley/internal/service"

	"github.com/gofiber/fiber/v2"
)

// readUpload opens the multipart "file" field. The returned closer must be called once the
// upload has been consumed.
func (s *Server) readUpload(c *fiber.Ctx) (service.FileUpload, io.Closer, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return service.FileUpload{}, nil, models.NewValidationError("A file is required")
	}
	if limit := s.config.UploadMaxBytes; limit > 0 && header.Size > limit {
		return service.FileUpload{}, nil, models.NewValidationError(
			fmt.Sprintf("File exceeds the maximum upload size of %d bytes", limit))
	}

	f, err := header.Open()
	if err != nil {
		return service.FileUpload{}, nil, models.NewStorageError(err)
	}
	return service.FileUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get(fiber.HeaderContentType),
		Size:        header.Size,
		Body:        f,
	}, f, nil
}

// SendDirectMessage handles POST /api/direct/:userId/messages
func (s *Server) SendDirectMessage(c *fiber.Ctx) error {
	recipientID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	var req sendMessageRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	msg, err := s.messages.SendDirectMessage(c.UserContext(), service.SendDirectInput{
		SenderID:    middleware.CurrentUserID(c),
		RecipientID: recipientID,
		Content:     req.Content,
	})
	if err != nil {
		return respondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// SendDirectFile handles POST /api/direct/:userId/files (multipart: file, caption)
func (s *Server) SendDirectFile(c *fiber.Ctx) error {
	recipientID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	upload, closer, err := s.readUpload(c)
	if err != nil {
		return respondWithError(c, err)
	}
	defer func() { _ = closer.Close() }()

	msg, err := s.messages.SendDirectFile(c.UserContext(), service.SendDirectFileInput{
		SenderID:    middleware.CurrentUserID(c),
		RecipientID: recipientID,
		Caption:     c.FormValue("caption"),
		Upload:      upload,
	})
	if err != nil {
		return respondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// EditDirectMessage handles PATCH /api/messages/:id
func (s *Server) EditDirectMessage(c *fiber.Ctx) error {
	messageID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req editMessageRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	msg, err := s.messages.EditDirectMessage(c.UserContext(), messageID, middleware.CurrentUserID(c), req.Content)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(msg)
}

// DeleteDirectMessage handles DELETE /api/messages/:id
func (s *Server) DeleteDirectMessage(c *fiber.Ctx) error {
	messageID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.messages.DeleteDirectMessage(c.UserContext(), messageID, middleware.CurrentUserID(c)); err != nil {
		return respondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetDirectHistory handles GET /api/direct/:userId/messages?page=&page_size=&after_id=
func (s *Server) GetDirectHistory(c *fiber.Ctx) error {
	counterpartID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	q, err := parseHistoryQuery(c)
	if err != nil {
		return nil
	}

	history, err := s.messages.FetchHistory(c.UserContext(), middleware.CurrentUserID(c), counterpartID, q)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(history)
}

// MarkDirectRead handles POST /api/direct/:userId/read
func (s *Server) MarkDirectRead(c *fiber.Ctx) error {
	counterpartID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	marked, err := s.messages.MarkConversationRead(c.UserContext(), middleware.CurrentUserID(c), counterpartID)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(fiber.Map{"marked": marked})
}

// HideConversation handles DELETE /api/direct/:userId
func (s *Server) HideConversation(c *fiber.Ctx) error {
	counterpartID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	marker, err := s.messages.HideConversation(c.UserContext(), middleware.CurrentUserID(c), counterpartID)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(marker)
}

// ListConversations handles GET /api/conversations
func (s *Server) ListConversations(c *fiber.Ctx) error {
	list, err := s.conversations.ListConversations(c.UserContext(), middleware.CurrentUserID(c))
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(ConversationListResponse{
		Conversations: list,
		TotalUnread:   totalUnread(list),
	})
}
