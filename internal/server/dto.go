package server

import (
	"time"

	"parley/internal/models"

	"github.com/jinzhu/copier"
)

// UserResponse is the public projection of an Identity Directory record.
type UserResponse struct {
	ID         uint      `json:"id"`
	Name       string    `json:"name"`
	AvatarPath string    `json:"avatar_path,omitempty"`
	Bio        string    `json:"bio,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ContactResponse is one entry of the caller's contact list.
type ContactResponse struct {
	ContactID uint          `json:"contact_id"`
	AddedAt   time.Time     `json:"added_at"`
	User      *UserResponse `json:"user,omitempty"`
}

// BlockResponse is one entry of the caller's block list.
type BlockResponse struct {
	BlockedID uint          `json:"blocked_id"`
	CreatedAt time.Time     `json:"created_at"`
	User      *UserResponse `json:"user,omitempty"`
}

// ConversationListResponse wraps the aggregated list with the caller's unread total.
type ConversationListResponse struct {
	Conversations []models.ConversationSummary `json:"conversations"`
	TotalUnread   int64                        `json:"total_unread"`
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"max=10000"`
}

type editMessageRequest struct {
	Content string `json:"content" validate:"max=10000"`
}

type createGroupRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=2000"`
	MemberIDs   []uint `json:"member_ids" validate:"dive,gt=0"`
}

type updateGroupRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	AvatarPath  *string `json:"avatar_path" validate:"omitempty,max=512"`
}

type addMembersRequest struct {
	UserIDs []uint `json:"user_ids" validate:"required,min=1,dive,gt=0"`
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin member"`
}

type invitationResponseRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

func toUserResponse(u *models.User) (*UserResponse, error) {
	if u == nil {
		return nil, nil
	}
	out := &UserResponse{}
	if err := copier.Copy(out, u); err != nil {
		return nil, err
	}
	return out, nil
}

func toUserResponses(users []models.User) ([]UserResponse, error) {
	out := make([]UserResponse, 0, len(users))
	if err := copier.Copy(&out, &users); err != nil {
		return nil, err
	}
	return out, nil
}

func toContactResponses(contacts []models.Contact) ([]ContactResponse, error) {
	out := make([]ContactResponse, 0, len(contacts))
	for i := range contacts {
		user, err := toUserResponse(contacts[i].ContactUser)
		if err != nil {
			return nil, err
		}
		out = append(out, ContactResponse{
			ContactID: contacts[i].ContactID,
			AddedAt:   contacts[i].AddedAt,
			User:      user,
		})
	}
	return out, nil
}

func toBlockResponses(blocks []models.Block) ([]BlockResponse, error) {
	out := make([]BlockResponse, 0, len(blocks))
	for i := range blocks {
		user, err := toUserResponse(blocks[i].Blocked)
		if err != nil {
			return nil, err
		}
		out = append(out, BlockResponse{
			BlockedID: blocks[i].BlockedID,
			CreatedAt: blocks[i].CreatedAt,
			User:      user,
		})
	}
	return out, nil
}

func totalUnread(list []models.ConversationSummary) int64 {
	var total int64
	for i := range list {
		total += list[i].UnreadCount
	}
	return total
}
