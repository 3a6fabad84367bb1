// Package models contains the persistent entities and value types of the messaging core.
package models

import "time"

// User is the Identity Directory record of an account.
// The messaging core only reads it; account lifecycle belongs to the auth service.
type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"size:100;not null;index" json:"name"`
	Email          string    `gorm:"size:255;uniqueIndex;not null" json:"-"`
	PasswordHash   string    `gorm:"size:255" json:"-"`
	AvatarPath     string    `gorm:"size:512" json:"avatar_path,omitempty"`
	Bio            string    `gorm:"type:text" json:"bio,omitempty"`
	EmailConfirmed bool      `gorm:"default:false" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"-"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}
