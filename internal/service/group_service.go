package service

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"parley/internal/models"
	"parley/internal/notifications"
	"parley/internal/observability"
	"parley/internal/repository"
	"parley/internal/storage"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const maxGroupNameLen = 100

// GroupService manages group rosters, invitations, roles and group messages.
//
// Every roster mutation locks the group row first and re-checks the admin set before
// committing, so a group with accepted members never ends a transaction without an admin.
type GroupService struct {
	groupRepo repository.GroupRepository
	userRepo  repository.UserRepository
	infra     Infra
}

// CreateGroupInput is the input for creating a group.
type CreateGroupInput struct {
	CreatorID   uint
	Name        string
	Description string
	MemberIDs   []uint
}

// UpdateGroupInput carries the group fields to change; nil fields are left alone.
type UpdateGroupInput struct {
	Name        *string
	Description *string
	AvatarPath  *string
}

// SendGroupInput is the input for posting a group message.
type SendGroupInput struct {
	GroupID  uint
	SenderID uint
	Content  string
	File     models.FileAttachment
}

// SendGroupFileInput is the input for uploading and posting a file to a group.
type SendGroupFileInput struct {
	GroupID  uint
	SenderID uint
	Caption  string
	Upload   FileUpload
}

// MembershipEvent is published when a roster changes.
type MembershipEvent struct {
	GroupID uint                    `json:"group_id"`
	UserID  uint                    `json:"user_id"`
	Action  string                  `json:"action"`
	Role    models.GroupRole        `json:"role,omitempty"`
	Status  models.InvitationStatus `json:"status,omitempty"`
}

// NewGroupService returns a new GroupService.
func NewGroupService(groupRepo repository.GroupRepository, userRepo repository.UserRepository, infra Infra) *GroupService {
	return &GroupService{
		groupRepo: groupRepo,
		userRepo:  userRepo,
		infra:     infra,
	}
}

func normalizeGroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", models.NewValidationError("Group name is required")
	}
	if utf8.RuneCountInString(name) > maxGroupNameLen {
		return "", models.NewValidationError("Group name too long (max 100 characters)")
	}
	return name, nil
}

// requireAllUsers fails with NotFound naming the first id that does not resolve.
func requireAllUsers(ctx context.Context, userRepo repository.UserRepository, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	users, err := userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	found := make(map[uint]struct{}, len(users))
	for _, u := range users {
		found[u.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return models.NewNotFoundError("User", id)
		}
	}
	return nil
}

// requireAdmin returns the requester's membership if it is an accepted admin.
func requireAdmin(ctx context.Context, groupRepo repository.GroupRepository, groupID, userID uint) (*models.GroupMember, error) {
	member, err := groupRepo.FindMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil || !member.IsActiveAdmin() {
		return nil, models.NewForbiddenError("Only group admins can do this")
	}
	return member, nil
}

// requireAccepted returns the user's membership if it is accepted.
func requireAccepted(ctx context.Context, groupRepo repository.GroupRepository, groupID, userID uint) (*models.GroupMember, error) {
	member, err := groupRepo.FindMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil || member.InvitationStatus != models.InvitationAccepted {
		return nil, models.NewForbiddenError("You are not a member of this group")
	}
	return member, nil
}

// ensureAdmin promotes the earliest accepted member when no accepted admin is left.
// It returns the promoted membership, or nil when nothing changed.
func ensureAdmin(ctx context.Context, groupRepo repository.GroupRepository, groupID uint) (*models.GroupMember, error) {
	admins, err := groupRepo.CountAcceptedAdmins(ctx, groupID)
	if err != nil || admins > 0 {
		return nil, err
	}
	successor, err := groupRepo.EarliestAcceptedMember(ctx, groupID)
	if err != nil || successor == nil {
		return nil, err
	}
	if err := groupRepo.UpdateMember(ctx, successor.ID, map[string]interface{}{"role": models.GroupRoleAdmin}); err != nil {
		return nil, err
	}
	successor.Role = models.GroupRoleAdmin
	return successor, nil
}

// afterRosterChange refreshes member caches and announces the change to the group.
func (s *GroupService) afterRosterChange(ctx context.Context, groupID uint, extra []uint, events ...MembershipEvent) {
	recipients, err := s.groupRepo.AcceptedMemberIDs(ctx, groupID)
	if err != nil {
		observability.Logger.WarnContext(ctx, "failed to load group recipients",
			slog.Uint64("group_id", uint64(groupID)), slog.String("error", err.Error()))
	}
	recipients = append(recipients, extra...)
	s.infra.Cache.InvalidateConversations(ctx, recipients...)
	for _, event := range events {
		s.infra.Notifier.Notify(ctx, notifications.EventGroupMembership, event, recipients...)
	}
}

// CreateGroup creates a group with the creator as accepted admin and every other listed
// user as a pending invitation.
func (s *GroupService) CreateGroup(ctx context.Context, in CreateGroupInput) (*models.GroupDetails, error) {
	if err := requireActor(in.CreatorID); err != nil {
		return nil, err
	}
	name, err := normalizeGroupName(in.Name)
	if err != nil {
		return nil, err
	}
	invitees := dedupeIDs(in.MemberIDs, in.CreatorID)
	if err := requireAllUsers(ctx, s.userRepo, invitees); err != nil {
		return nil, err
	}

	group := &models.Group{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		CreatorID:   in.CreatorID,
	}
	err = runInTx(ctx, s.infra.DB, func(tx *gorm.DB) error {
		groupRepo := s.groupRepo.WithTx(tx)
		if err := groupRepo.Create(ctx, group); err != nil {
			return err
		}
		joinedAt := now()
		if err := groupRepo.CreateMember(ctx, &models.GroupMember{
			GroupID:          group.ID,
			UserID:           in.CreatorID,
			Role:             models.GroupRoleAdmin,
			InvitationStatus: models.InvitationAccepted,
			JoinedAt:         joinedAt,
		}); err != nil {
			return err
		}
		for _, userID := range invitees {
			if err := groupRepo.CreateMember(ctx, &models.GroupMember{
				GroupID:          group.ID,
				UserID:           userID,
				Role:             models.GroupRoleMember,
				InvitationStatus: models.InvitationInvited,
				JoinedAt:         joinedAt,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.infra.Cache.InvalidateConversations(ctx, in.CreatorID)
	for _, userID := range invitees {
		s.infra.Notifier.Notify(ctx, notifications.EventGroupMembership, MembershipEvent{
			GroupID: group.ID,
			UserID:  userID,
			Action:  "invited",
			Status:  models.InvitationInvited,
		}, userID)
	}
	observability.Logger.InfoContext(ctx, "group created",
		slog.Uint64("group_id", uint64(group.ID)),
		slog.Int("invited", len(invitees)))
	return s.GetGroup(ctx, group.ID, in.CreatorID)
}

// AddMembers invites users to the group. Accepted and pending members are skipped;
// users who declined earlier are invited again. It returns the memberships it created
// or re-opened.
func (s *GroupService) AddMembers(ctx context.Context, groupID, requesterID uint, userIDs []uint) ([]models.GroupMember, error) {
	if err := requireActor(requesterID); err != nil {
		return nil, err
	}
	candidates := dedupeIDs(userIDs, requesterID)
	if len(candidates) == 0 {
		return nil, models.NewValidationError("At least one user is required")
	}
	if err := requireAllUsers(ctx, s.userRepo, candidates); err != nil {
		return nil, err
	}

	invited := []models.GroupMember{}
	err := runInTx(ctx, s.infra.DB, func(tx *gorm.DB) error {
		groupRepo := s.groupRepo.WithTx(tx)
		if _, err := groupRepo.LockByID(ctx, groupID); err != nil {
			return err
		}
		if _, err := requireAdmin(ctx, groupRepo, groupID, requesterID); err != nil {
			return err
		}

		joinedAt := now()
		for _, userID := range candidates {
			existing, err := groupRepo.FindMember(ctx, groupID, userID)
			if err != nil {
				return err
			}
			switch {
			case existing == nil:
				member := models.GroupMember{
					GroupID:          groupID,
					UserID:           userID,
					Role:             models.GroupRoleMember,
					InvitationStatus: models.InvitationInvited,
					JoinedAt:         joinedAt,
				}
				if err := groupRepo.CreateMember(ctx, &member); err != nil {
					return err
				}
				invited = append(invited, member)
			case existing.InvitationStatus == models.InvitationDeclined:
				if err := groupRepo.UpdateMember(ctx, existing.ID, map[string]interface{}{
					"invitation_status": models.InvitationInvited,
					"role":              models.GroupRoleMember,
					"joined_at":         joinedAt,
				}); err != nil {
					return err
				}
				existing.InvitationStatus = models.InvitationInvited
				existing.Role = models.GroupRoleMember
				existing.JoinedAt = joinedAt
				invited = append(invited, *existing)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, member := range invited {
		s.infra.Notifier.Notify(ctx, notifications.EventGroupMembership, MembershipEvent{
			GroupID: groupID,
			UserID:  member.UserID,
			Action:  "invited",
			Status:  models.InvitationInvited,
		}, member.UserID)
	}
	return invited, nil
}

// RespondToInvitation accepts or declines a pending invitation. An accepted member starts
// with every existing message marked read.
func (s *GroupService) RespondToInvitation(ctx context.Context, groupID, userID uint, accept bool) (*models.GroupMember, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}

	var member *models.GroupMember
	err := runInTx(ctx, s.infra.DB, func(tx *gorm.DB) error {
		groupRepo := s.groupRepo.WithTx(tx)
		if _, err := groupRepo.LockByID(ctx, groupID); err != nil {
			return err
		}
		var err error
		if member, err = groupRepo.FindMember(ctx, groupID, userID); err != nil {
			return err
		}
		if member == nil || member.InvitationStatus != models.InvitationInvited {
			return models.NewNotFoundError("Invitation", groupID)
		}

		if !accept {
			member.InvitationStatus = models.InvitationDeclined
			return groupRepo.UpdateMember(ctx, member.ID, map[string]interface{}{
				"invitation_status": models.InvitationDeclined,
			})
		}

		latest, err := groupRepo.LatestMessageID(ctx, groupID)
		if err != nil {
			return err
		}
		joinedAt := now()
		if err := groupRepo.UpdateMember(ctx, member.ID, map[string]interface{}{
			"invitation_status":    models.InvitationAccepted,
			"joined_at":            joinedAt,
			"last_read_message_id": latest,
		}); err != nil {
			return err
		}
		member.InvitationStatus = models.InvitationAccepted
		member.JoinedAt = joinedAt
		member.LastReadMessageID = latest

		promoted, err := ensureAdmin(ctx, groupRepo, groupID)
		if err != nil {
			return err
		}
		if promoted != nil && promoted.ID == member.ID {
			member.Role = models.GroupRoleAdmin
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	action := "declined"
	if accept {
		action = "joined"
	}
	s.afterRosterChange(ctx, groupID, []uint{userID}, MembershipEvent{
		GroupID: groupID,
		UserID:  userID,
		Action:  action,
		Role:    member.Role,
		Status:  member.InvitationStatus,
	})
	return member, nil
}

// RemoveMember removes targetID from the group. Admins may remove anyone, including
// pending invitations; removing yourself is the same as LeaveGroup.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, requesterID, targetID uint) error {
	if err := requireActor(requesterID); err != nil {
		return err
	}
	if requesterID == targetID {
		return s.LeaveGroup(ctx, groupID, requesterID)
	}

	var promoted *models.GroupMember
	err := runInTx(ctx, s.infra.DB, func(tx *gorm.DB) error {
		groupRepo := s.groupRepo.WithTx(tx)
		if _, err := groupRepo.LockByID(ctx, groupID); err != nil {
			return err
		}
		if _, err := requireAdmin(ctx, groupRepo, groupID, requesterID); err != nil {
			return err
		}
		target, err := groupRepo.FindMember(ctx, groupID, targetID)
		if err != nil {
			return err
		}
		if target == nil {
			return models.NewNotFoundError("GroupMember", targetID)
		}
		if err := groupRepo.DeleteMember(ctx, target.ID); err != nil {
			return err
		}
		promoted, err = ensureAdmin(ctx, groupRepo, groupID)
		return err
	})
	if err != nil {
		return err
	}

	events := []MembershipEvent{{GroupID: groupID, UserID: targetID, Action: "removed"}}
	if promoted != nil {
		events = append(events, MembershipEvent{GroupID: groupID, UserID: promoted.UserID, Action: "promoted", Role: models.GroupRoleAdmin})
	}
	s.afterRosterChange(ctx, groupID, []uint{targetID}, events...)
	return nil
}

// LeaveGroup removes the caller's own accepted membership. When the last admin leaves,
// the earliest-joined remaining member becomes admin in the same transaction.
func (s *GroupService) LeaveGroup(ctx context.Context, groupID, userID uint) error {
	if err := requireActor(userID); err != nil {
		return err
	}

	var promoted *models.GroupMember
	err := runInTx(ctx, s.infra.DB, func(tx *gorm.DB) error {
		groupRepo := s.groupRepo.WithTx(tx)
		if _, err := groupRepo.LockByID(ctx, groupID); err != nil {
			return err
		}
		member, err := requireAccepted(ctx, groupRepo, groupID, userID)
		if err != nil {
			return err
		}
		if err := groupRepo.DeleteMember(ctx, member.ID); err != nil {
			return err
		}
		promoted, err = ensureAdmin(ctx, groupRepo, groupID)
		return err
	})
	if err != nil {
		return err
	}

	events := []MembershipEvent{{GroupID: groupID, UserID: userID, Action: "left"}}
	if promoted != nil {
		events = append(events, MembershipEvent{GroupID: groupID, UserID: promoted.UserID, Action: "promoted", Role: models.GroupRoleAdmin})
		observability.Logger.InfoContext(ctx, "group admin promoted",
			slog.Uint64("group_id", uint64(groupID)),
			slog.Uint64("user_id", uint64(promoted.UserID)))
	}
	s.afterRosterChange(ctx, groupID, []uint{userID}, events...)
	return nil
}

// SetRole changes the role of an accepted member. Demoting the only admin is a conflict.
func (s *GroupService) SetRole(ctx context.Context, groupID, requesterID, targetID uint, role models.GroupRole) (*models.GroupMember, error) {
	if err := requireActor(requesterID); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, models.NewValidationError("Role must be admin or member")
	}

	var target *models.GroupMember
	changed := false
	err := runInTx(ctx, s.infra.DB, func(tx *gorm.DB) error {
		groupRepo := s.groupRepo.WithTx(tx)
		if _, err := groupRepo.LockByID(ctx, groupID); err != nil {
			return err
		}
		if _, err := requireAdmin(ctx, groupRepo, groupID, requesterID); err != nil {
			return err
		}
		var err error
		if target, err = groupRepo.FindMember(ctx, groupID, targetID); err != nil {
			return err
		}
		if target == nil || target.InvitationStatus != models.InvitationAccepted {
			return models.NewNotFoundError("GroupMember", targetID)
		}
		if target.Role == role {
			return nil
		}
		if target.Role == models.GroupRoleAdmin {
			admins, err := groupRepo.CountAcceptedAdmins(ctx, groupID)
			if err != nil {
				return err
			}
			if admins <= 1 {
				return models.NewConflictError("A group must keep at least one admin", nil)
			}
		}
		if err := groupRepo.UpdateMember(ctx, target.ID, map[string]interface{}{"role": role}); err != nil {
			return err
		}
		target.Role = role
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.afterRosterChange(ctx, groupID, nil, MembershipEvent{GroupID: groupID, UserID: targetID, Action: "role_changed", Role: role})
	}
	return target, nil
}

// DeleteGroup removes the group with all memberships and messages. Only the creator may do it.
func (s *GroupService) DeleteGroup(ctx context.Context, groupID, requesterID uint) error {
	if err := requireActor(requesterID); err != nil {
		return err
	}

	var members []uint
	err := runInTx(ctx, s.infra.DB, func(tx *gorm.DB) error {
		groupRepo := s.groupRepo.WithTx(tx)
		group, err := groupRepo.LockByID(ctx, groupID)
		if err != nil {
			return err
		}
		if group.CreatorID != requesterID {
			return models.NewForbiddenError("Only the group creator can delete this group")
		}
		if members, err = groupRepo.AcceptedMemberIDs(ctx, groupID); err != nil {
			return err
		}
		return groupRepo.DeleteCascade(ctx, groupID)
	})
	if err != nil {
		return err
	}

	s.infra.Cache.InvalidateConversations(ctx, members...)
	s.infra.Notifier.Notify(ctx, notifications.EventGroupMembership, MembershipEvent{GroupID: groupID, Action: "deleted"}, members...)
	observability.Logger.InfoContext(ctx, "group deleted",
		slog.Uint64("group_id", uint64(groupID)),
		slog.Uint64("requester_id", uint64(requesterID)))
	return nil
}

// UpdateGroup edits group metadata. Only accepted admins may do it.
func (s *GroupService) UpdateGroup(ctx context.Context, groupID, requesterID uint, in UpdateGroupInput) (*models.Group, error) {
	if err := requireActor(requesterID); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if in.Name != nil {
		name, err := normalizeGroupName(*in.Name)
		if err != nil {
			return nil, err
		}
		fields["name"] = name
	}
	if in.Description != nil {
		fields["description"] = strings.TrimSpace(*in.Description)
	}
	if in.AvatarPath != nil {
		fields["avatar_path"] = strings.TrimSpace(*in.AvatarPath)
	}

	var group *models.Group
	err := runInTx(ctx, s.infra.DB, func(tx *gorm.DB) error {
		groupRepo := s.groupRepo.WithTx(tx)
		if _, err := groupRepo.GetByID(ctx, groupID); err != nil {
			return err
		}
		if _, err := requireAdmin(ctx, groupRepo, groupID, requesterID); err != nil {
			return err
		}
		if len(fields) > 0 {
			if err := groupRepo.Update(ctx, groupID, fields); err != nil {
				return err
			}
		}
		var err error
		group, err = groupRepo.GetByID(ctx, groupID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(fields) > 0 {
		s.afterRosterChange(ctx, groupID, nil, MembershipEvent{GroupID: groupID, UserID: requesterID, Action: "updated"})
	}
	return group, nil
}

// GetGroup returns the group with its accepted roster. Only accepted members may read it.
func (s *GroupService) GetGroup(ctx context.Context, groupID, viewerID uint) (*models.GroupDetails, error) {
	if err := requireActor(viewerID); err != nil {
		return nil, err
	}
	group, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	viewer, err := requireAccepted(ctx, s.groupRepo, groupID, viewerID)
	if err != nil {
		return nil, err
	}
	members, err := s.groupRepo.ListMembers(ctx, groupID, models.InvitationAccepted)
	if err != nil {
		return nil, err
	}
	return &models.GroupDetails{
		Group:       *group,
		Members:     members,
		MemberCount: int64(len(members)),
		IsAdmin:     viewer.Role == models.GroupRoleAdmin,
	}, nil
}

// IsMember reports whether userID is an accepted member of the group.
func (s *GroupService) IsMember(ctx context.Context, groupID, userID uint) (bool, error) {
	member, err := s.groupRepo.FindMember(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	return member != nil && member.InvitationStatus == models.InvitationAccepted, nil
}

// IsAdmin reports whether userID is an accepted admin of the group.
func (s *GroupService) IsAdmin(ctx context.Context, groupID, userID uint) (bool, error) {
	member, err := s.groupRepo.FindMember(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	return member != nil && member.IsActiveAdmin(), nil
}

// ListInvitations returns the pending invitations of userID with their groups.
func (s *GroupService) ListInvitations(ctx context.Context, userID uint) ([]models.GroupMember, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	return s.groupRepo.ListInvitations(ctx, userID)
}

// SendGroupMessage posts a message to a group. The sender must be an accepted member.
func (s *GroupService) SendGroupMessage(ctx context.Context, in SendGroupInput) (_ *models.GroupMessage, err error) {
	span, ctx := observability.StartOperation(ctx, "messages.send_group", in.SenderID,
		attribute.Int64("group.id", int64(in.GroupID)))
	defer func() { span.Finish(err) }()

	if err := requireActor(in.SenderID); err != nil {
		return nil, err
	}
	content, err := normalizeContent(in.Content, !in.File.IsZero())
	if err != nil {
		return nil, rejectSend(models.ConversationGroup, err)
	}

	msg := &models.GroupMessage{
		GroupID:        in.GroupID,
		SenderID:       in.SenderID,
		Content:        content,
		MessageType:    models.MessageTypeText,
		CreatedAt:      now(),
		FileAttachment: in.File,
	}
	if !in.File.IsZero() {
		msg.MessageType = models.MessageTypeFile
	}

	err = runInTx(ctx, s.infra.DB, func(tx *gorm.DB) error {
		groupRepo := s.groupRepo.WithTx(tx)
		if _, err := groupRepo.GetByID(ctx, in.GroupID); err != nil {
			return err
		}
		member, err := requireAccepted(ctx, groupRepo, in.GroupID, in.SenderID)
		if err != nil {
			return err
		}
		if err := groupRepo.CreateMessage(ctx, msg); err != nil {
			return err
		}
		return groupRepo.UpdateMember(ctx, member.ID, map[string]interface{}{"last_read_message_id": msg.ID})
	})
	if err != nil {
		return nil, rejectSend(models.ConversationGroup, err)
	}

	if sender, err := s.userRepo.GetByID(ctx, msg.SenderID); err == nil {
		msg.Sender = sender
	}
	observability.MessagesSent.WithLabelValues(string(models.ConversationGroup), string(msg.MessageType)).Inc()
	s.fanOut(ctx, msg.GroupID, notifications.EventGroupMessage, msg)
	return msg, nil
}

// SendGroupFile stores an upload and posts it as a file message.
func (s *GroupService) SendGroupFile(ctx context.Context, in SendGroupFileInput) (*models.GroupMessage, error) {
	if err := requireActor(in.SenderID); err != nil {
		return nil, err
	}
	if _, err := normalizeContent(in.Caption, true); err != nil {
		return nil, rejectSend(models.ConversationGroup, err)
	}
	if _, err := s.groupRepo.GetByID(ctx, in.GroupID); err != nil {
		return nil, rejectSend(models.ConversationGroup, err)
	}
	if _, err := requireAccepted(ctx, s.groupRepo, in.GroupID, in.SenderID); err != nil {
		return nil, rejectSend(models.ConversationGroup, err)
	}

	file, err := storeUpload(ctx, s.infra.Files, storage.GroupPrefix(in.GroupID), in.Upload)
	if err != nil {
		return nil, rejectSend(models.ConversationGroup, err)
	}
	return s.SendGroupMessage(ctx, SendGroupInput{
		GroupID:  in.GroupID,
		SenderID: in.SenderID,
		Content:  in.Caption,
		File:     file,
	})
}

// EditGroupMessage replaces the content of a group message. Only its sender, while still
// an accepted member, may edit it.
func (s *GroupService) EditGroupMessage(ctx context.Context, messageID, editorID uint, content string) (*models.GroupMessage, error) {
	if err := requireActor(editorID); err != nil {
		return nil, err
	}

	var msg *models.GroupMessage
	err := runInTx(ctx, s.infra.DB, func(tx *gorm.DB) error {
		groupRepo := s.groupRepo.WithTx(tx)
		var err error
		if msg, err = groupRepo.GetMessage(ctx, messageID); err != nil {
			return err
		}
		if msg.SenderID != editorID {
			return models.NewForbiddenError("You can only edit your own messages")
		}
		if _, err := requireAccepted(ctx, groupRepo, msg.GroupID, editorID); err != nil {
			return err
		}
		trimmed, err := normalizeContent(content, msg.MessageType == models.MessageTypeFile)
		if err != nil {
			return err
		}

		editedAt := now()
		if err := groupRepo.UpdateMessageContent(ctx, msg.ID, trimmed, editedAt); err != nil {
			return err
		}
		msg.Content = trimmed
		msg.IsEdited = true
		msg.EditedAt = &editedAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.fanOut(ctx, msg.GroupID, notifications.EventGroupMessageEdited, msg)
	return msg, nil
}

// DeleteGroupMessage removes a group message. The sender or an accepted admin may delete it.
func (s *GroupService) DeleteGroupMessage(ctx context.Context, messageID, requesterID uint) error {
	if err := requireActor(requesterID); err != nil {
		return err
	}

	var msg *models.GroupMessage
	err := runInTx(ctx, s.infra.DB, func(tx *gorm.DB) error {
		groupRepo := s.groupRepo.WithTx(tx)
		var err error
		if msg, err = groupRepo.GetMessage(ctx, messageID); err != nil {
			return err
		}
		if msg.SenderID != requesterID {
			if _, err := requireAdmin(ctx, groupRepo, msg.GroupID, requesterID); err != nil {
				if models.IsCode(err, models.CodeForbidden) {
					return models.NewForbiddenError("Only the sender or a group admin can delete this message")
				}
				return err
			}
		}
		return groupRepo.DeleteMessage(ctx, msg.ID)
	})
	if err != nil {
		return err
	}

	s.fanOut(ctx, msg.GroupID, notifications.EventGroupMessageDeleted, DeletedMessage{
		ID:             msg.ID,
		ConversationID: msg.GroupID,
		Kind:           string(models.ConversationGroup),
	})
	return nil
}

// FetchGroupHistory returns a chronological window of the group timeline and advances the
// viewer's read watermark to the newest returned message.
func (s *GroupService) FetchGroupHistory(ctx context.Context, groupID, viewerID uint, q models.HistoryQuery) ([]models.GroupMessage, error) {
	if err := requireActor(viewerID); err != nil {
		return nil, err
	}
	if _, err := s.groupRepo.GetByID(ctx, groupID); err != nil {
		return nil, err
	}
	q = normalizeHistoryQuery(q, s.infra.HistoryPageSize)

	var (
		msgs     []models.GroupMessage
		advanced bool
	)
	err := runInTx(ctx, s.infra.DB, func(tx *gorm.DB) error {
		groupRepo := s.groupRepo.WithTx(tx)
		member, err := requireAccepted(ctx, groupRepo, groupID, viewerID)
		if err != nil {
			return err
		}
		if msgs, err = groupRepo.History(ctx, groupID, q); err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		newest := msgs[len(msgs)-1].ID
		if newest <= member.LastReadMessageID {
			return nil
		}
		advanced = true
		return groupRepo.UpdateMember(ctx, member.ID, map[string]interface{}{"last_read_message_id": newest})
	})
	if err != nil {
		return nil, err
	}

	if advanced {
		s.infra.Cache.InvalidateConversations(ctx, viewerID)
	}
	return msgs, nil
}

func (s *GroupService) fanOut(ctx context.Context, groupID uint, eventType string, payload any) {
	recipients, err := s.groupRepo.AcceptedMemberIDs(ctx, groupID)
	if err != nil {
		observability.Logger.WarnContext(ctx, "failed to load group recipients",
			slog.Uint64("group_id", uint64(groupID)), slog.String("error", err.Error()))
		return
	}
	s.infra.Cache.InvalidateConversations(ctx, recipients...)
	s.infra.Notifier.Notify(ctx, eventType, payload, recipients...)
}
