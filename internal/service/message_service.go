package service

import (
	"context"
	"log/slog"

	"parley/internal/models"
	"parley/internal/notifications"
	"parley/internal/observability"
	"parley/internal/repository"
	"parley/internal/storage"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// MessageService provides direct messaging, history and visibility logic.
type MessageService struct {
	msgRepo  repository.DirectMessageRepository
	relRepo  repository.RelationshipRepository
	userRepo repository.UserRepository
	visRepo  repository.VisibilityRepository
	infra    Infra
}

// SendDirectInput is the input for sending a direct message.
type SendDirectInput struct {
	SenderID    uint
	RecipientID uint
	Content     string
	File        models.FileAttachment
}

// SendDirectFileInput is the input for uploading and sending a file message.
type SendDirectFileInput struct {
	SenderID    uint
	RecipientID uint
	Caption     string
	Upload      FileUpload
}

// ReadReceipt is published to the sender when the recipient reads their messages.
type ReadReceipt struct {
	ReaderID  uint  `json:"reader_id"`
	SenderID  uint  `json:"sender_id"`
	ThroughID uint  `json:"through_id,omitempty"`
	Count     int64 `json:"count"`
}

// DeletedMessage identifies a removed message in delete events.
type DeletedMessage struct {
	ID             uint   `json:"id"`
	ConversationID uint   `json:"conversation_id"`
	Kind           string `json:"kind"`
}

// NewMessageService returns a new MessageService.
func NewMessageService(
	msgRepo repository.DirectMessageRepository,
	relRepo repository.RelationshipRepository,
	userRepo repository.UserRepository,
	visRepo repository.VisibilityRepository,
	infra Infra,
) *MessageService {
	return &MessageService{
		msgRepo:  msgRepo,
		relRepo:  relRepo,
		userRepo: userRepo,
		visRepo:  visRepo,
		infra:    infra,
	}
}

// checkRecipient verifies the pair may exchange messages: distinct users, existing
// recipient, and no block in either direction.
func checkRecipient(ctx context.Context, userRepo repository.UserRepository, relRepo repository.RelationshipRepository, senderID, recipientID uint) error {
	if recipientID == 0 {
		return models.NewValidationError("Recipient is required")
	}
	if senderID == recipientID {
		return models.NewValidationError("Cannot send a message to yourself")
	}
	exists, err := userRepo.Exists(ctx, recipientID)
	if err != nil {
		return err
	}
	if !exists {
		return models.NewNotFoundError("User", recipientID)
	}
	status, err := relRepo.BlockStatus(ctx, senderID, recipientID)
	if err != nil {
		return err
	}
	if status.Any() {
		return models.NewBlockedError("Messaging is blocked between these users")
	}
	return nil
}

// SendDirectMessage persists a message from sender to recipient.
// The block check and the insert run in one transaction.
func (s *MessageService) SendDirectMessage(ctx context.Context, in SendDirectInput) (_ *models.DirectMessage, err error) {
	span, ctx := observability.StartOperation(ctx, "messages.send_direct", in.SenderID,
		attribute.Int64("recipient.id", int64(in.RecipientID)))
	defer func() { span.Finish(err) }()

	if err := requireActor(in.SenderID); err != nil {
		return nil, err
	}
	content, err := normalizeContent(in.Content, !in.File.IsZero())
	if err != nil {
		return nil, rejectSend(models.ConversationDirect, err)
	}

	msg := &models.DirectMessage{
		SenderID:       in.SenderID,
		RecipientID:    in.RecipientID,
		Content:        content,
		MessageType:    models.MessageTypeText,
		CreatedAt:      now(),
		FileAttachment: in.File,
	}
	if !in.File.IsZero() {
		msg.MessageType = models.MessageTypeFile
	}

	err = runInTx(ctx, s.infra.DB, func(tx *gorm.DB) error {
		if err := checkRecipient(ctx, s.userRepo.WithTx(tx), s.relRepo.WithTx(tx), in.SenderID, in.RecipientID); err != nil {
			return err
		}
		return s.msgRepo.WithTx(tx).Create(ctx, msg)
	})
	if err != nil {
		return nil, rejectSend(models.ConversationDirect, err)
	}

	observability.MessagesSent.WithLabelValues(string(models.ConversationDirect), string(msg.MessageType)).Inc()
	s.infra.Cache.InvalidateConversations(ctx, msg.SenderID, msg.RecipientID)
	s.infra.Notifier.Notify(ctx, notifications.EventDirectMessage, msg, msg.RecipientID, msg.SenderID)
	return msg, nil
}

// SendDirectFile stores an upload and sends it as a file message.
// The pair is checked before any bytes are stored.
func (s *MessageService) SendDirectFile(ctx context.Context, in SendDirectFileInput) (*models.DirectMessage, error) {
	if err := requireActor(in.SenderID); err != nil {
		return nil, err
	}
	if _, err := normalizeContent(in.Caption, true); err != nil {
		return nil, rejectSend(models.ConversationDirect, err)
	}
	if err := checkRecipient(ctx, s.userRepo, s.relRepo, in.SenderID, in.RecipientID); err != nil {
		return nil, rejectSend(models.ConversationDirect, err)
	}

	file, err := storeUpload(ctx, s.infra.Files, storage.DirectPrefix(in.SenderID, in.RecipientID), in.Upload)
	if err != nil {
		return nil, rejectSend(models.ConversationDirect, err)
	}

	// TODO: delete the stored object when the insert below fails; FileStore has no Remove yet.
	return s.SendDirectMessage(ctx, SendDirectInput{
		SenderID:    in.SenderID,
		RecipientID: in.RecipientID,
		Content:     in.Caption,
		File:        file,
	})
}

// EditDirectMessage replaces the content of a message. Only its sender may edit it.
func (s *MessageService) EditDirectMessage(ctx context.Context, messageID, editorID uint, content string) (*models.DirectMessage, error) {
	if err := requireActor(editorID); err != nil {
		return nil, err
	}

	var msg *models.DirectMessage
	err := runInTx(ctx, s.infra.DB, func(tx *gorm.DB) error {
		msgRepo := s.msgRepo.WithTx(tx)
		var err error
		if msg, err = msgRepo.GetByID(ctx, messageID); err != nil {
			return err
		}
		if msg.SenderID != editorID {
			return models.NewForbiddenError("Only the sender can edit this message")
		}
		trimmed, err := normalizeContent(content, msg.MessageType == models.MessageTypeFile)
		if err != nil {
			return err
		}

		editedAt := now()
		if err := msgRepo.UpdateContent(ctx, msg.ID, trimmed, editedAt); err != nil {
			return err
		}
		msg.Content = trimmed
		msg.IsEdited = true
		msg.EditedAt = &editedAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.infra.Cache.InvalidateConversations(ctx, msg.SenderID, msg.RecipientID)
	s.infra.Notifier.Notify(ctx, notifications.EventDirectMessageEdited, msg, msg.RecipientID, msg.SenderID)
	return msg, nil
}

// DeleteDirectMessage removes a message. Only its sender may delete it.
func (s *MessageService) DeleteDirectMessage(ctx context.Context, messageID, requesterID uint) error {
	if err := requireActor(requesterID); err != nil {
		return err
	}

	var msg *models.DirectMessage
	err := runInTx(ctx, s.infra.DB, func(tx *gorm.DB) error {
		msgRepo := s.msgRepo.WithTx(tx)
		var err error
		if msg, err = msgRepo.GetByID(ctx, messageID); err != nil {
			return err
		}
		if msg.SenderID != requesterID {
			return models.NewForbiddenError("Only the sender can delete this message")
		}
		return msgRepo.Delete(ctx, msg.ID)
	})
	if err != nil {
		return err
	}

	s.infra.Cache.InvalidateConversations(ctx, msg.SenderID, msg.RecipientID)
	s.infra.Notifier.Notify(ctx, notifications.EventDirectMessageDeleted, DeletedMessage{
		ID:             msg.ID,
		ConversationID: msg.SenderID,
		Kind:           string(models.ConversationDirect),
	}, msg.RecipientID)
	s.infra.Notifier.Notify(ctx, notifications.EventDirectMessageDeleted, DeletedMessage{
		ID:             msg.ID,
		ConversationID: msg.RecipientID,
		Kind:           string(models.ConversationDirect),
	}, msg.SenderID)
	return nil
}

// FetchHistory returns a chronological window of the conversation between viewer and
// counterpart. Messages hidden by the viewer's marker are left out. Unread messages from
// the counterpart up to the newest returned one are marked read; fetching again changes nothing.
func (s *MessageService) FetchHistory(ctx context.Context, viewerID, counterpartID uint, q models.HistoryQuery) ([]models.DirectMessage, error) {
	if err := requireActor(viewerID); err != nil {
		return nil, err
	}
	if counterpartID == 0 || counterpartID == viewerID {
		return nil, models.NewValidationError("A different counterpart is required")
	}
	exists, err := s.userRepo.Exists(ctx, counterpartID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.NewNotFoundError("User", counterpartID)
	}
	q = normalizeHistoryQuery(q, s.infra.HistoryPageSize)

	var (
		msgs      []models.DirectMessage
		throughID uint
		marked    int64
	)
	err = runInTx(ctx, s.infra.DB, func(tx *gorm.DB) error {
		marker, err := s.visRepo.WithTx(tx).Get(ctx, viewerID, counterpartID)
		if err != nil {
			return err
		}
		var hiddenThrough uint
		if marker != nil {
			hiddenThrough = marker.HiddenThroughID
		}

		msgRepo := s.msgRepo.WithTx(tx)
		if msgs, err = msgRepo.History(ctx, viewerID, counterpartID, hiddenThrough, q); err != nil {
			return err
		}
		for _, m := range msgs {
			if m.SenderID == counterpartID && !m.IsRead && m.ID > throughID {
				throughID = m.ID
			}
		}
		if throughID == 0 {
			return nil
		}
		marked, err = msgRepo.MarkRead(ctx, viewerID, counterpartID, throughID)
		return err
	})
	if err != nil {
		return nil, err
	}

	for i := range msgs {
		if msgs[i].SenderID == counterpartID && msgs[i].ID <= throughID {
			msgs[i].IsRead = true
		}
	}
	if marked > 0 {
		s.publishRead(ctx, ReadReceipt{ReaderID: viewerID, SenderID: counterpartID, ThroughID: throughID, Count: marked})
	}
	return msgs, nil
}

// MarkConversationRead marks every unread message from counterpart to reader as read.
func (s *MessageService) MarkConversationRead(ctx context.Context, readerID, counterpartID uint) (int64, error) {
	if err := requireActor(readerID); err != nil {
		return 0, err
	}
	marked, err := s.msgRepo.MarkRead(ctx, readerID, counterpartID, 0)
	if err != nil {
		return 0, err
	}
	if marked > 0 {
		s.publishRead(ctx, ReadReceipt{ReaderID: readerID, SenderID: counterpartID, Count: marked})
	}
	return marked, nil
}

func (s *MessageService) publishRead(ctx context.Context, receipt ReadReceipt) {
	s.infra.Cache.InvalidateConversations(ctx, receipt.ReaderID)
	s.infra.Notifier.Notify(ctx, notifications.EventMessagesRead, receipt, receipt.SenderID)
}

// HideConversation hides the conversation with counterpart from userID's views up to its
// current newest message. A later message makes it visible again. Hiding again without
// new activity keeps the existing marker.
func (s *MessageService) HideConversation(ctx context.Context, userID, counterpartID uint) (*models.HiddenConversation, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	if counterpartID == 0 || counterpartID == userID {
		return nil, models.NewValidationError("A different counterpart is required")
	}

	var marker *models.HiddenConversation
	err := runInTx(ctx, s.infra.DB, func(tx *gorm.DB) error {
		visRepo := s.visRepo.WithTx(tx)
		latest, err := s.msgRepo.WithTx(tx).LatestIDBetween(ctx, userID, counterpartID)
		if err != nil {
			return err
		}
		existing, err := visRepo.Get(ctx, userID, counterpartID)
		if err != nil {
			return err
		}
		if existing != nil && existing.HiddenThroughID >= latest {
			marker = existing
			return nil
		}

		marker = &models.HiddenConversation{
			UserID:          userID,
			CounterpartID:   counterpartID,
			HiddenThroughID: latest,
			HiddenAt:        now(),
		}
		return visRepo.Hide(ctx, marker)
	})
	if err != nil {
		return nil, err
	}

	s.infra.Cache.InvalidateConversations(ctx, userID)
	observability.Logger.InfoContext(ctx, "conversation hidden",
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("counterpart_id", uint64(counterpartID)),
		slog.Uint64("hidden_through_id", uint64(marker.HiddenThroughID)))
	return marker, nil
}
