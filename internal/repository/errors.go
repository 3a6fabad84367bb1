// Package repository provides data access layer implementations for the messaging core.
package repository

import (
	"errors"

	"parley/internal/database"
	"parley/internal/models"

	"gorm.io/gorm"
)

// storeErr translates a datastore error, keeping not-found semantics for resource lookups.
func storeErr(err error, resource string, id interface{}) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return database.TranslateError(err)
}

// wrapErr translates a datastore error for operations that never look a single record up.
func wrapErr(err error) error {
	return database.TranslateError(err)
}
