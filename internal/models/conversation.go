package models

import "time"

// HiddenConversation is a per-user marker hiding a direct conversation.
// Messages with an id up to HiddenThroughID stay hidden for UserID; newer messages make the
// conversation visible again.
type HiddenConversation struct {
	UserID          uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	CounterpartID   uint      `gorm:"primaryKey;autoIncrement:false" json:"counterpart_id"`
	HiddenThroughID uint      `gorm:"not null;default:0" json:"hidden_through_id"`
	HiddenAt        time.Time `gorm:"not null" json:"hidden_at"`
}

// TableName specifies the table name for GORM
func (HiddenConversation) TableName() string {
	return "hidden_conversations"
}

// ConversationKind distinguishes direct and group entries in the aggregated list.
type ConversationKind string

const (
	// ConversationDirect is a one-to-one conversation keyed by counterpart.
	ConversationDirect ConversationKind = "direct"
	// ConversationGroup is a group conversation keyed by group id.
	ConversationGroup ConversationKind = "group"
)

// ConversationSummary is one entry of a user's conversation list.
type ConversationSummary struct {
	Kind               ConversationKind `json:"kind"`
	ID                 uint             `json:"id"`
	DisplayName        string           `json:"display_name"`
	AvatarRef          string           `json:"avatar_ref,omitempty"`
	LastMessageID      uint             `json:"last_message_id,omitempty"`
	LastMessagePreview string           `json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time       `json:"last_message_at,omitempty"`
	LastSenderID       uint             `json:"last_sender_id,omitempty"`
	LastSenderName     string           `json:"last_sender_name,omitempty"`
	UnreadCount        int64            `json:"unread_count"`

	// Direct conversations only.
	IsContact     bool `json:"is_contact,omitempty"`
	BlockedByYou  bool `json:"blocked_by_you,omitempty"`
	HasBlockedYou bool `json:"has_blocked_you,omitempty"`

	// Group conversations only.
	MemberCount int64 `json:"member_count,omitempty"`
	IsAdmin     bool  `json:"is_admin,omitempty"`
}

// HistoryQuery selects a window of a conversation timeline.
// A positive AfterID polls strictly newer messages; otherwise Page counts back from the newest page.
type HistoryQuery struct {
	Page     int
	PageSize int
	AfterID  uint
}
