package repository

import (
	"context"
	"errors"
	"time"

	"parley/internal/database"
	"parley/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GroupRepository persists groups, their memberships and their messages.
type GroupRepository interface {
	Create(ctx context.Context, group *models.Group) error
	GetByID(ctx context.Context, id uint) (*models.Group, error)
	LockByID(ctx context.Context, id uint) (*models.Group, error)
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	DeleteCascade(ctx context.Context, id uint) error

	FindMember(ctx context.Context, groupID, userID uint) (*models.GroupMember, error)
	CreateMember(ctx context.Context, member *models.GroupMember) error
	UpdateMember(ctx context.Context, memberID uint, fields map[string]interface{}) error
	DeleteMember(ctx context.Context, memberID uint) error
	ListMembers(ctx context.Context, groupID uint, status models.InvitationStatus) ([]models.GroupMember, error)
	AcceptedMemberIDs(ctx context.Context, groupID uint) ([]uint, error)
	CountAcceptedAdmins(ctx context.Context, groupID uint) (int64, error)
	EarliestAcceptedMember(ctx context.Context, groupID uint) (*models.GroupMember, error)
	ListInvitations(ctx context.Context, userID uint) ([]models.GroupMember, error)

	CreateMessage(ctx context.Context, msg *models.GroupMessage) error
	GetMessage(ctx context.Context, id uint) (*models.GroupMessage, error)
	UpdateMessageContent(ctx context.Context, id uint, content string, editedAt time.Time) error
	DeleteMessage(ctx context.Context, id uint) error
	History(ctx context.Context, groupID uint, q models.HistoryQuery) ([]models.GroupMessage, error)
	LatestMessageID(ctx context.Context, groupID uint) (uint, error)

	WithTx(tx *gorm.DB) GroupRepository
}

type groupRepository struct {
	db *gorm.DB
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) WithTx(tx *gorm.DB) GroupRepository {
	return &groupRepository{db: tx}
}

func (r *groupRepository) Create(ctx context.Context, group *models.Group) error {
	if err := r.db.WithContext(ctx).Create(group).Error; err != nil {
		return wrapErr(err)
	}
	return nil
}

func (r *groupRepository) GetByID(ctx context.Context, id uint) (*models.Group, error) {
	var group models.Group
	if err := r.db.WithContext(ctx).First(&group, id).Error; err != nil {
		return nil, storeErr(err, "Group", id)
	}
	return &group, nil
}

// LockByID loads the group and, on Postgres, holds its row lock until the transaction ends.
// Membership mutations take this lock first so admin-count checks see a stable member set.
func (r *groupRepository) LockByID(ctx context.Context, id uint) (*models.Group, error) {
	query := r.db.WithContext(ctx)
	if database.SupportsRowLocks(r.db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var group models.Group
	if err := query.First(&group, id).Error; err != nil {
		return nil, storeErr(err, "Group", id)
	}
	return &group, nil
}

func (r *groupRepository) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	if err := r.db.WithContext(ctx).
		Model(&models.Group{}).
		Where("id = ?", id).
		Updates(fields).Error; err != nil {
		return wrapErr(err)
	}
	return nil
}

// DeleteCascade removes the group together with its messages and memberships.
func (r *groupRepository) DeleteCascade(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("group_id = ?", id).Delete(&models.GroupMessage{}).Error; err != nil {
		return wrapErr(err)
	}
	if err := db.Where("group_id = ?", id).Delete(&models.GroupMember{}).Error; err != nil {
		return wrapErr(err)
	}
	if err := db.Delete(&models.Group{}, id).Error; err != nil {
		return wrapErr(err)
	}
	return nil
}

// FindMember returns the membership row, or nil when the user has none.
func (r *groupRepository) FindMember(ctx context.Context, groupID, userID uint) (*models.GroupMember, error) {
	var member models.GroupMember
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrapErr(err)
	}
	return &member, nil
}

func (r *groupRepository) CreateMember(ctx context.Context, member *models.GroupMember) error {
	if err := r.db.WithContext(ctx).Create(member).Error; err != nil {
		return wrapErr(err)
	}
	return nil
}

func (r *groupRepository) UpdateMember(ctx context.Context, memberID uint, fields map[string]interface{}) error {
	if err := r.db.WithContext(ctx).
		Model(&models.GroupMember{}).
		Where("id = ?", memberID).
		Updates(fields).Error; err != nil {
		return wrapErr(err)
	}
	return nil
}

func (r *groupRepository) DeleteMember(ctx context.Context, memberID uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.GroupMember{}, memberID).Error; err != nil {
		return wrapErr(err)
	}
	return nil
}

func (r *groupRepository) ListMembers(ctx context.Context, groupID uint, status models.InvitationStatus) ([]models.GroupMember, error) {
	members := []models.GroupMember{}
	if err := r.db.WithContext(ctx).
		Preload("User").
		Where("group_id = ? AND invitation_status = ?", groupID, status).
		Order("joined_at ASC, id ASC").
		Find(&members).Error; err != nil {
		return nil, wrapErr(err)
	}
	return members, nil
}

func (r *groupRepository) AcceptedMemberIDs(ctx context.Context, groupID uint) ([]uint, error) {
	ids := []uint{}
	if err := r.db.WithContext(ctx).
		Model(&models.GroupMember{}).
		Where("group_id = ? AND invitation_status = ?", groupID, models.InvitationAccepted).
		Pluck("user_id", &ids).Error; err != nil {
		return nil, wrapErr(err)
	}
	return ids, nil
}

func (r *groupRepository) CountAcceptedAdmins(ctx context.Context, groupID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.GroupMember{}).
		Where("group_id = ? AND invitation_status = ? AND role = ?",
			groupID, models.InvitationAccepted, models.GroupRoleAdmin).
		Count(&count).Error; err != nil {
		return 0, wrapErr(err)
	}
	return count, nil
}

// EarliestAcceptedMember returns the longest-standing accepted member, or nil for an empty group.
func (r *groupRepository) EarliestAcceptedMember(ctx context.Context, groupID uint) (*models.GroupMember, error) {
	var member models.GroupMember
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND invitation_status = ?", groupID, models.InvitationAccepted).
		Order("joined_at ASC, id ASC").
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrapErr(err)
	}
	return &member, nil
}

func (r *groupRepository) ListInvitations(ctx context.Context, userID uint) ([]models.GroupMember, error) {
	invitations := []models.GroupMember{}
	if err := r.db.WithContext(ctx).
		Preload("Group").
		Where("user_id = ? AND invitation_status = ?", userID, models.InvitationInvited).
		Order("joined_at DESC, id DESC").
		Find(&invitations).Error; err != nil {
		return nil, wrapErr(err)
	}
	return invitations, nil
}

func (r *groupRepository) CreateMessage(ctx context.Context, msg *models.GroupMessage) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return wrapErr(err)
	}
	return nil
}

func (r *groupRepository) GetMessage(ctx context.Context, id uint) (*models.GroupMessage, error) {
	var msg models.GroupMessage
	if err := r.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, storeErr(err, "GroupMessage", id)
	}
	return &msg, nil
}

func (r *groupRepository) UpdateMessageContent(ctx context.Context, id uint, content string, editedAt time.Time) error {
	if err := r.db.WithContext(ctx).
		Model(&models.GroupMessage{}).
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

func (r *groupRepository) DeleteMessage(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.GroupMessage{}, id).Error; err != nil {
		return wrapErr(err)
	}
	return nil
}

// History returns one chronological window of a group timeline with senders preloaded.
func (r *groupRepository) History(ctx context.Context, groupID uint, q models.HistoryQuery) ([]models.GroupMessage, error) {
	msgs := []models.GroupMessage{}
	query := r.db.WithContext(ctx).Preload("Sender").Where("group_id = ?", groupID)

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
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *groupRepository) LatestMessageID(ctx context.Context, groupID uint) (uint, error) {
	var latest uint64
	row := r.db.WithContext(ctx).
		Model(&models.GroupMessage{}).
		Where("group_id = ?", groupID).
		Select("COALESCE(MAX(id), 0)").
		Row()
	if err := row.Scan(&latest); err != nil {
		return 0, wrapErr(err)
	}
	return uint(latest), nil
}
