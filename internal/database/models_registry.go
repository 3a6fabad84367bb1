package database

import "parley/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Contact{},
		&models.Block{},
		&models.DirectMessage{},
		&models.HiddenConversation{},
		&models.Group{},
		&models.GroupMember{},
		&models.GroupMessage{},
	}
}
