package models

import "time"

// MessageType distinguishes text messages from file messages.
type MessageType string

const (
	// MessageTypeText is a plain text message.
	MessageTypeText MessageType = "text"
	// MessageTypeFile carries an opaque reference to a stored file.
	MessageTypeFile MessageType = "file"
)

// FileAttachment is the storage reference of a file message. The bytes live in blob storage.
type FileAttachment struct {
	FileRef          string `gorm:"size:512" json:"file_ref,omitempty"`
	MimeType         string `gorm:"size:128" json:"mime_type,omitempty"`
	OriginalFilename string `gorm:"size:255" json:"original_filename,omitempty"`
	FileSize         int64  `json:"file_size,omitempty"`
}

// IsZero reports whether no file is referenced.
func (f FileAttachment) IsZero() bool {
	return f.FileRef == ""
}

// DirectMessage is a message between exactly two users.
type DirectMessage struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	SenderID    uint        `gorm:"not null;index:idx_dm_pair,priority:1" json:"sender_id"`
	RecipientID uint        `gorm:"not null;index:idx_dm_pair,priority:2;index:idx_dm_unread,priority:1" json:"recipient_id"`
	Content     string      `gorm:"type:text" json:"content"`
	MessageType MessageType `gorm:"type:varchar(10);not null;default:'text'" json:"message_type"`
	IsRead      bool        `gorm:"not null;default:false;index:idx_dm_unread,priority:2" json:"is_read"`
	IsEdited    bool        `gorm:"not null;default:false" json:"is_edited"`
	EditedAt    *time.Time  `json:"edited_at,omitempty"`
	CreatedAt   time.Time   `gorm:"index:idx_dm_pair,priority:3" json:"created_at"`
	FileAttachment
}

// TableName specifies the table name for GORM
func (DirectMessage) TableName() string {
	return "direct_messages"
}

// CounterpartOf returns the other participant of the message from userID's point of view.
func (m *DirectMessage) CounterpartOf(userID uint) uint {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}

// GroupMessage is a message posted to a group.
type GroupMessage struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	GroupID     uint        `gorm:"not null;index:idx_group_message_timeline,priority:1" json:"group_id"`
	SenderID    uint        `gorm:"not null;index" json:"sender_id"`
	Content     string      `gorm:"type:text" json:"content"`
	MessageType MessageType `gorm:"type:varchar(10);not null;default:'text'" json:"message_type"`
	IsEdited    bool        `gorm:"not null;default:false" json:"is_edited"`
	EditedAt    *time.Time  `json:"edited_at,omitempty"`
	CreatedAt   time.Time   `gorm:"index:idx_group_message_timeline,priority:2" json:"created_at"`
	FileAttachment

	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

// TableName specifies the table name for GORM
func (GroupMessage) TableName() string {
	return "group_messages"
}

// Preview renders a one-line summary of a message for conversation lists.
func Preview(content string, messageType MessageType, filename string) string {
	if messageType == MessageTypeFile {
		if content != "" {
			return content
		}
		return "[file] " + filename
	}
	return content
}
