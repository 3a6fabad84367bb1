// Package service implements the messaging core: relationships, direct and group
// conversations, visibility markers and the conversation list.
package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"parley/internal/cache"
	"parley/internal/database"
	"parley/internal/models"
	"parley/internal/notifications"
	"parley/internal/observability"
	"parley/internal/storage"

	"gorm.io/gorm"
)

const (
	maxMessageContentLen = 10000 // 10K characters
	defaultPageSize      = 50
	maxPageSize          = 100
)

// Infra is the shared infrastructure of the conversation services.
// Cache, Notifier and Files may be nil: caching and fan-out are then skipped and
// file sends fail with a storage error.
type Infra struct {
	DB              *gorm.DB
	Cache           *cache.Store
	Notifier        *notifications.Notifier
	Files           storage.FileStore
	HistoryPageSize int
	ListCacheTTL    time.Duration
}

// runInTx executes fn in one transaction. Any failure rolls the whole unit back and is
// reported through the core error taxonomy.
func runInTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	err := db.WithContext(ctx).Transaction(fn)
	if err == nil {
		return nil
	}
	translated := database.TranslateError(err)
	if models.ErrorCode(translated) == "" {
		return models.NewStorageError(err)
	}
	return translated
}

func requireActor(userID uint) error {
	if userID == 0 {
		return models.NewUnauthenticatedError()
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

// normalizeContent trims content and enforces the length limit. Empty content is allowed
// only when the message carries a file.
func normalizeContent(content string, hasFile bool) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" && !hasFile {
		return "", models.NewValidationError("Message content is required")
	}
	if utf8.RuneCountInString(content) > maxMessageContentLen {
		return "", models.NewValidationError("Message content too long (max 10000 characters)")
	}
	return content, nil
}

// normalizeHistoryQuery applies paging defaults and caps.
func normalizeHistoryQuery(q models.HistoryQuery, pageSize int) models.HistoryQuery {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if q.PageSize <= 0 {
		q.PageSize = pageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	if q.Page < 1 {
		q.Page = 1
	}
	return q
}

func dedupeIDs(ids []uint, skip uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || id == skip {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// FileUpload is an attachment received from a client.
type FileUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// storeUpload writes the upload under prefix and returns the attachment metadata to persist.
func storeUpload(ctx context.Context, files storage.FileStore, prefix string, up FileUpload) (models.FileAttachment, error) {
	if up.Body == nil {
		return models.FileAttachment{}, models.NewValidationError("File is required")
	}
	if files == nil {
		return models.FileAttachment{}, models.NewStorageError(errors.New("file storage is not configured"))
	}

	filename := storage.SanitizeFilename(up.Filename)
	contentType, body, err := storage.Sniff(up.Body, up.ContentType)
	if err != nil {
		return models.FileAttachment{}, models.NewStorageError(err)
	}

	ref, err := files.Put(ctx, storage.ObjectKey(prefix, filename), body, up.Size, contentType)
	if err != nil {
		return models.FileAttachment{}, models.NewStorageError(err)
	}
	return models.FileAttachment{
		FileRef:          ref,
		MimeType:         contentType,
		OriginalFilename: filename,
		FileSize:         up.Size,
	}, nil
}

// rejectSend counts a refused send and returns err unchanged.
func rejectSend(kind models.ConversationKind, err error) error {
	reason := strings.ToLower(models.ErrorCode(err))
	if reason == "" {
		reason = "internal"
	}
	observability.SendRejections.WithLabelValues(string(kind), reason).Inc()
	return err
}
