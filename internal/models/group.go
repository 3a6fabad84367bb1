package models

import "time"

// GroupRole is the role of a member inside a group.
type GroupRole string

const (
	// GroupRoleAdmin may manage membership and group metadata.
	GroupRoleAdmin GroupRole = "admin"
	// GroupRoleMember is a regular participant.
	GroupRoleMember GroupRole = "member"
)

// Valid reports whether r is a known role.
func (r GroupRole) Valid() bool {
	return r == GroupRoleAdmin || r == GroupRoleMember
}

// InvitationStatus is the lifecycle state of a membership row.
type InvitationStatus string

const (
	// InvitationInvited is a pending invitation.
	InvitationInvited InvitationStatus = "invited"
	// InvitationAccepted is an active member.
	InvitationAccepted InvitationStatus = "accepted"
	// InvitationDeclined is a refused invitation.
	InvitationDeclined InvitationStatus = "declined"
)

// Group is a named multi-user conversation.
type Group struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	AvatarPath  string    `gorm:"size:512" json:"avatar_path,omitempty"`
	CreatorID   uint      `gorm:"not null;index" json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Group) TableName() string {
	return "chat_groups"
}

// GroupMember binds a user to a group.
// LastReadMessageID is the per-member unread watermark.
type GroupMember struct {
	ID                uint             `gorm:"primaryKey" json:"id"`
	GroupID           uint             `gorm:"not null;uniqueIndex:idx_group_member" json:"group_id"`
	UserID            uint             `gorm:"not null;uniqueIndex:idx_group_member;index" json:"user_id"`
	Role              GroupRole        `gorm:"type:varchar(10);not null;default:'member'" json:"role"`
	InvitationStatus  InvitationStatus `gorm:"type:varchar(10);not null;default:'invited';index" json:"invitation_status"`
	JoinedAt          time.Time        `gorm:"not null" json:"joined_at"`
	LastReadMessageID uint             `gorm:"not null;default:0" json:"last_read_message_id"`

	User  *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Group *Group `gorm:"foreignKey:GroupID" json:"group,omitempty"`
}

// TableName specifies the table name for GORM
func (GroupMember) TableName() string {
	return "group_members"
}

// IsActiveAdmin reports whether the row is an accepted admin membership.
func (m *GroupMember) IsActiveAdmin() bool {
	return m.InvitationStatus == InvitationAccepted && m.Role == GroupRoleAdmin
}

// GroupDetails is the read model returned to group members.
type GroupDetails struct {
	Group       Group         `json:"group"`
	Members     []GroupMember `json:"members"`
	MemberCount int64         `json:"member_count"`
	IsAdmin     bool          `json:"is_admin"`
}
