package repository

import (
	"context"
	"database/sql"

	"parley/internal/models"

	"gorm.io/gorm"
)

// DirectThread is the aggregate row of one visible direct conversation.
type DirectThread struct {
	CounterpartID uint
	LastMessageID uint
	UnreadCount   int64
}

// GroupThread is the aggregate row of one group the user belongs to.
type GroupThread struct {
	GroupID       uint
	LastMessageID uint
	UnreadCount   int64
	MemberCount   int64
}

// ConversationRepository runs the set-based queries behind the conversation list.
// Each method costs a fixed number of statements regardless of how many conversations exist.
type ConversationRepository interface {
	DirectThreads(ctx context.Context, userID uint) ([]DirectThread, error)
	GroupThreads(ctx context.Context, userID uint) ([]GroupThread, error)
	AcceptedMemberships(ctx context.Context, userID uint) ([]models.GroupMember, error)
	GroupMessagesByIDs(ctx context.Context, ids []uint) ([]models.GroupMessage, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// directThreadsSQL ranks the visible messages of every direct conversation of @user.
// The hidden-conversation marker filters messages before ranking, so a hidden
// conversation resurfaces as soon as a message newer than the marker exists.
const directThreadsSQL = `
SELECT counterpart_id, id AS last_message_id, unread_count
FROM (
	SELECT
		v.id,
		v.counterpart_id,
		ROW_NUMBER() OVER (PARTITION BY v.counterpart_id ORDER BY v.created_at DESC, v.id DESC) AS rn,
		SUM(CASE WHEN v.recipient_id = @user AND NOT v.is_read THEN 1 ELSE 0 END)
			OVER (PARTITION BY v.counterpart_id) AS unread_count
	FROM (
		SELECT
			m.id,
			m.recipient_id,
			m.is_read,
			m.created_at,
			CASE WHEN m.sender_id = @user THEN m.recipient_id ELSE m.sender_id END AS counterpart_id
		FROM direct_messages m
		WHERE m.sender_id = @user OR m.recipient_id = @user
	) v
	LEFT JOIN hidden_conversations h
		ON h.user_id = @user AND h.counterpart_id = v.counterpart_id
	WHERE h.hidden_through_id IS NULL OR v.id > h.hidden_through_id
) ranked
WHERE rn = 1`

// groupThreadsSQL returns one row per accepted membership of @user with the newest
// message id, the unread count past the member watermark and the accepted member count.
const groupThreadsSQL = `
SELECT
	mem.group_id,
	COALESCE(latest.last_message_id, 0) AS last_message_id,
	COALESCE(unread.unread_count, 0) AS unread_count,
	COALESCE(counts.member_count, 0) AS member_count
FROM group_members mem
LEFT JOIN (
	SELECT group_id, id AS last_message_id
	FROM (
		SELECT
			gm.id,
			gm.group_id,
			ROW_NUMBER() OVER (PARTITION BY gm.group_id ORDER BY gm.created_at DESC, gm.id DESC) AS rn
		FROM group_messages gm
		JOIN group_members own ON own.group_id = gm.group_id
		WHERE own.user_id = @user AND own.invitation_status = @accepted
	) ranked
	WHERE rn = 1
) latest ON latest.group_id = mem.group_id
LEFT JOIN (
	SELECT own.group_id, COUNT(gm.id) AS unread_count
	FROM group_members own
	JOIN group_messages gm
		ON gm.group_id = own.group_id
		AND gm.id > own.last_read_message_id
		AND gm.sender_id <> own.user_id
	WHERE own.user_id = @user AND own.invitation_status = @accepted
	GROUP BY own.group_id
) unread ON unread.group_id = mem.group_id
LEFT JOIN (
	SELECT peers.group_id, COUNT(*) AS member_count
	FROM group_members peers
	JOIN group_members own ON own.group_id = peers.group_id
	WHERE own.user_id = @user AND own.invitation_status = @accepted
		AND peers.invitation_status = @accepted
	GROUP BY peers.group_id
) counts ON counts.group_id = mem.group_id
WHERE mem.user_id = @user AND mem.invitation_status = @accepted`

func (r *conversationRepository) DirectThreads(ctx context.Context, userID uint) ([]DirectThread, error) {
	threads := []DirectThread{}
	if err := r.db.WithContext(ctx).
		Raw(directThreadsSQL, sql.Named("user", userID)).
		Scan(&threads).Error; err != nil {
		return nil, wrapErr(err)
	}
	return threads, nil
}

func (r *conversationRepository) GroupThreads(ctx context.Context, userID uint) ([]GroupThread, error) {
	threads := []GroupThread{}
	if err := r.db.WithContext(ctx).
		Raw(groupThreadsSQL,
			sql.Named("user", userID),
			sql.Named("accepted", string(models.InvitationAccepted)),
		).
		Scan(&threads).Error; err != nil {
		return nil, wrapErr(err)
	}
	return threads, nil
}

func (r *conversationRepository) AcceptedMemberships(ctx context.Context, userID uint) ([]models.GroupMember, error) {
	members := []models.GroupMember{}
	if err := r.db.WithContext(ctx).
		Preload("Group").
		Where("user_id = ? AND invitation_status = ?", userID, models.InvitationAccepted).
		Find(&members).Error; err != nil {
		return nil, wrapErr(err)
	}
	return members, nil
}

func (r *conversationRepository) GroupMessagesByIDs(ctx context.Context, ids []uint) ([]models.GroupMessage, error) {
	msgs := []models.GroupMessage{}
	if len(ids) == 0 {
		return msgs, nil
	}
	if err := r.db.WithContext(ctx).
		Preload("Sender").
		Where("id IN ?", ids).
		Find(&msgs).Error; err != nil {
		return nil, wrapErr(err)
	}
	return msgs, nil
}
