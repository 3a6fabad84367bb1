package models

import "time"

// Contact is a directed "owner keeps target in their contact list" edge.
type Contact struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OwnerID   uint      `gorm:"not null;uniqueIndex:idx_contact_pair" json:"owner_id"`
	ContactID uint      `gorm:"not null;uniqueIndex:idx_contact_pair;index" json:"contact_id"`
	AddedAt   time.Time `gorm:"not null;autoCreateTime" json:"added_at"`

	ContactUser *User `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
}

// TableName specifies the table name for GORM
func (Contact) TableName() string {
	return "contacts"
}

// Block is a directed "blocker refuses contact from blocked" edge.
type Block struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BlockerID uint      `gorm:"not null;uniqueIndex:idx_block_pair" json:"blocker_id"`
	BlockedID uint      `gorm:"not null;uniqueIndex:idx_block_pair;index" json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`

	Blocked *User `gorm:"foreignKey:BlockedID" json:"blocked,omitempty"`
}

// TableName specifies the table name for GORM
func (Block) TableName() string {
	return "blocks"
}

// BlockStatus describes the block edges between a viewer and another user.
type BlockStatus struct {
	BlockedByYou  bool `json:"blocked_by_you"`
	HasBlockedYou bool `json:"has_blocked_you"`
}

// Any reports whether a block exists in either direction.
func (s BlockStatus) Any() bool {
	return s.BlockedByYou || s.HasBlockedYou
}
