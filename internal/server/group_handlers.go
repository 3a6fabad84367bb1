package server

import (
	"parley/internal/middleware"
	"parley/internal/models"
	"parley/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateGroup handles POST /api/groups
func (s *Server) CreateGroup(c *fiber.Ctx) error {
	var req createGroupRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	details, err := s.groups.CreateGroup(c.UserContext(), service.CreateGroupInput{
		CreatorID:   middleware.CurrentUserID(c),
		Name:        req.Name,
		Description: req.Description,
		MemberIDs:   req.MemberIDs,
	})
	if err != nil {
		return respondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(details)
}

// GetGroup handles GET /api/groups/:id
func (s *Server) GetGroup(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	details, err := s.groups.GetGroup(c.UserContext(), groupID, middleware.CurrentUserID(c))
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(details)
}

// UpdateGroup handles PATCH /api/groups/:id
func (s *Server) UpdateGroup(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req updateGroupRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	group, err := s.groups.UpdateGroup(c.UserContext(), groupID, middleware.CurrentUserID(c), service.UpdateGroupInput{
		Name:        req.Name,
		Description: req.Description,
		AvatarPath:  req.AvatarPath,
	})
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(group)
}

// DeleteGroup handles DELETE /api/groups/:id
func (s *Server) DeleteGroup(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.groups.DeleteGroup(c.UserContext(), groupID, middleware.CurrentUserID(c)); err != nil {
		return respondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddGroupMembers handles POST /api/groups/:id/members
func (s *Server) AddGroupMembers(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req addMembersRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	invited, err := s.groups.AddMembers(c.UserContext(), groupID, middleware.CurrentUserID(c), req.UserIDs)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(invited)
}

// RemoveGroupMember handles DELETE /api/groups/:id/members/:userId
func (s *Server) RemoveGroupMember(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	if err := s.groups.RemoveMember(c.UserContext(), groupID, middleware.CurrentUserID(c), targetID); err != nil {
		return respondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SetGroupRole handles PUT /api/groups/:id/members/:userId/role
func (s *Server) SetGroupRole(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	var req setRoleRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	member, err := s.groups.SetRole(c.UserContext(), groupID, middleware.CurrentUserID(c), targetID, models.GroupRole(req.Role))
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(member)
}

// RespondToInvitation handles POST /api/groups/:id/invitation
func (s *Server) RespondToInvitation(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req invitationResponseRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	member, err := s.groups.RespondToInvitation(c.UserContext(), groupID, middleware.CurrentUserID(c), *req.Accept)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(member)
}

// LeaveGroup handles POST /api/groups/:id/leave
func (s *Server) LeaveGroup(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.groups.LeaveGroup(c.UserContext(), groupID, middleware.CurrentUserID(c)); err != nil {
		return respondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListInvitations handles GET /api/groups/invitations
func (s *Server) ListInvitations(c *fiber.Ctx) error {
	invitations, err := s.groups.ListInvitations(c.UserContext(), middleware.CurrentUserID(c))
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(invitations)
}

// GetGroupHistory handles GET /api/groups/:id/messages
func (s *Server) GetGroupHistory(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	q, err := parseHistoryQuery(c)
	if err != nil {
		return nil
	}

	history, err := s.groups.FetchGroupHistory(c.UserContext(), groupID, middleware.CurrentUserID(c), q)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(history)
}

// SendGroupMessage handles POST /api/groups/:id/messages
func (s *Server) SendGroupMessage(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req sendMessageRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	msg, err := s.groups.SendGroupMessage(c.UserContext(), service.SendGroupInput{
		GroupID:  groupID,
		SenderID: middleware.CurrentUserID(c),
		Content:  req.Content,
	})
	if err != nil {
		return respondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// SendGroupFile handles POST /api/groups/:id/files (multipart: file, caption)
func (s *Server) SendGroupFile(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	upload, closer, err := s.readUpload(c)
	if err != nil {
		return respondWithError(c, err)
	}
	defer func() { _ = closer.Close() }()

	msg, err := s.groups.SendGroupFile(c.UserContext(), service.SendGroupFileInput{
		GroupID:  groupID,
		SenderID: middleware.CurrentUserID(c),
		Caption:  c.FormValue("caption"),
		Upload:   upload,
	})
	if err != nil {
		return respondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// EditGroupMessage handles PATCH /api/groups/messages/:messageId
func (s *Server) EditGroupMessage(c *fiber.Ctx) error {
	messageID, err := parseID(c, "messageId")
	if err != nil {
		return nil
	}
	var req editMessageRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	msg, err := s.groups.EditGroupMessage(c.UserContext(), messageID, middleware.CurrentUserID(c), req.Content)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(msg)
}

// DeleteGroupMessage handles DELETE /api/groups/messages/:messageId
func (s *Server) DeleteGroupMessage(c *fiber.Ctx) error {
	messageID, err := parseID(c, "messageId")
	if err != nil {
		return nil
	}

	if err := s.groups.DeleteGroupMessage(c.UserContext(), messageID, middleware.CurrentUserID(c)); err != nil {
		return respondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
