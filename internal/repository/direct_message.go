package repository

import (
	"context"
	"time"

	"parley/internal/models"

	"gorm.io/gorm"
)

// DirectMessageRepository persists one-to-one messages.
type DirectMessageRepository interface {
	Create(ctx context.Context, msg *models.DirectMessage) error
	GetByID(ctx context.Context, id uint) (*models.DirectMessage, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.DirectMessage, error)
	UpdateContent(ctx context.Context, id uint, content string, editedAt time.Time) error
	Delete(ctx context.Context, id uint) error
	History(ctx context.Context, userA, userB, hiddenThroughID uint, q models.HistoryQuery) ([]models.DirectMessage, error)
	MarkRead(ctx context.Context, readerID, senderID, throughID uint) (int64, error)
	LatestIDBetween(ctx context.Context, userA, userB uint) (uint, error)
	WithTx(tx *gorm.DB) DirectMessageRepository
}

type directMessageRepository struct {
	db *gorm.DB
}

// NewDirectMessageRepository creates a new direct message repository
func NewDirectMessageRepository(db *gorm.DB) DirectMessageRepository {
	return &directMessageRepository{db: db}
}

func (r *directMessageRepository) WithTx(tx *gorm.DB) DirectMessageRepository {
	return &directMessageRepository{db: tx}
}

func (r *directMessageRepository) Create(ctx context.Context, msg *models.DirectMessage) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return wrapErr(err)
	}
	return nil
}

func (r *directMessageRepository) GetByID(ctx context.Context, id uint) (*models.DirectMessage, error) {
	var msg models.DirectMessage
	if err := r.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, storeErr(err, "Message", id)
	}
	return &msg, nil
}

func (r *directMessageRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.DirectMessage, error) {
	msgs := []models.DirectMessage{}
	if len(ids) == 0 {
		return msgs, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&msgs).Error; err != nil {
		return nil, wrapErr(err)
	}
	return msgs, nil
}

func (r *directMessageRepository) UpdateContent(ctx context.Context, id uint, content string, editedAt time.Time) error {
	if err := r.db.WithContext(ctx).
		Model(&models.DirectMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content":   content,
			"is_edited": true,
			"edited_at": editedAt,
		}).Error; err != nil {
		return wrapErr(err)
	}
	return nil
}

func (r *directMessageRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.DirectMessage{}, id).Error; err != nil {
		return wrapErr(err)
	}
	return nil
}

func pairScope(userA, userB uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?))",
			userA, userB, userB, userA)
	}
}

// History returns one chronological window of the conversation between userA and userB.
// Messages with id <= hiddenThroughID are excluded.
func (r *directMessageRepository) History(ctx context.Context, userA, userB, hiddenThroughID uint, q models.HistoryQuery) ([]models.DirectMessage, error) {
	msgs := []models.DirectMessage{}

	query := r.db.WithContext(ctx).Model(&models.DirectMessage{}).Scopes(pairScope(userA, userB))
	if hiddenThroughID > 0 {
		query = query.Where("id > ?", hiddenThroughID)
	}

	if q.AfterID > 0 {
		if err := query.
			Where("id > ?", q.AfterID).
			Order("created_at ASC, id ASC").
			Limit(q.PageSize).
			Find(&msgs).Error; err != nil {
			return nil, wrapErr(err)
		}
		return msgs, nil
	}

	if err := query.
		Order("created_at DESC, id DESC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&msgs).Error; err != nil {
		return nil, wrapErr(err)
	}
	reverseDirect(msgs)
	return msgs, nil
}

func reverseDirect(msgs []models.DirectMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

// MarkRead flags unread messages from senderID to readerID as read. A zero throughID marks all of them.
func (r *directMessageRepository) MarkRead(ctx context.Context, readerID, senderID, throughID uint) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.DirectMessage{}).
		Where("sender_id = ? AND recipient_id = ? AND is_read = ?", senderID, readerID, false)
	if throughID > 0 {
		query = query.Where("id <= ?", throughID)
	}

	result := query.Update("is_read", true)
	if result.Error != nil {
		return 0, wrapErr(result.Error)
	}
	return result.RowsAffected, nil
}

func (r *directMessageRepository) LatestIDBetween(ctx context.Context, userA, userB uint) (uint, error) {
	var latest uint64
	row := r.db.WithContext(ctx).
		Model(&models.DirectMessage{}).
		Scopes(pairScope(userA, userB)).
		Select("COALESCE(MAX(id), 0)").
		Row()
	if err := row.Scan(&latest); err != nil {
		return 0, wrapErr(err)
	}
	return uint(latest), nil
}
