// Package notifications fans committed messaging events out to per-user Redis channels.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"parley/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Event types published after a successful commit.
const (
	EventDirectMessage        = "direct_message"
	EventDirectMessageEdited  = "direct_message_edited"
	EventDirectMessageDeleted = "direct_message_deleted"
	EventMessagesRead         = "messages_read"
	EventGroupMessage         = "group_message"
	EventGroupMessageEdited   = "group_message_edited"
	EventGroupMessageDeleted  = "group_message_deleted"
	EventGroupMembership      = "group_membership"
)

const userChannelPrefix = "notifications:user:"

// Event is the JSON envelope delivered to subscribers.
type Event struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// UserChannel returns the Redis channel of a user.
func UserChannel(userID uint) string {
	return fmt.Sprintf("%s%d", userChannelPrefix, userID)
}

// UserIDFromChannel parses the user id out of a user channel name.
func UserIDFromChannel(channel string) (uint, bool) {
	raw, ok := strings.CutPrefix(channel, userChannelPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// Notifier provides helpers to publish notifications into Redis channels.
// A nil Notifier or nil client turns every publish into a no-op.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishUser sends a raw payload to a user's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, payload string) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// Notify publishes an event to every recipient. Delivery is best-effort: failures are
// logged and counted, never returned, because the state change has already committed.
func (n *Notifier) Notify(ctx context.Context, eventType string, payload any, recipients ...uint) {
	if n == nil || n.rdb == nil || len(recipients) == 0 {
		return
	}

	body, err := json.Marshal(Event{Type: eventType, Payload: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		observability.EventsPublished.WithLabelValues(eventType, "encode_error").Inc()
		observability.Logger.ErrorContext(ctx, "failed to encode event",
			slog.String("event_type", eventType), slog.String("error", err.Error()))
		return
	}

	for _, userID := range recipients {
		if err := n.PublishUser(ctx, userID, string(body)); err != nil {
			observability.EventsPublished.WithLabelValues(eventType, "error").Inc()
			observability.Logger.WarnContext(ctx, "failed to publish event",
				slog.String("event_type", eventType),
				slog.Uint64("recipient_id", uint64(userID)),
				slog.String("error", err.Error()))
			continue
		}
		observability.EventsPublished.WithLabelValues(eventType, "ok").Inc()
	}
}

// StartUserSubscriber subscribes to every user channel and calls onMessage for each payload
// until ctx is cancelled.
func (n *Notifier) StartUserSubscriber(ctx context.Context, onMessage func(userID uint, payload string)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe to user channels: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				userID, ok := UserIDFromChannel(msg.Channel)
				if !ok {
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.Logger.Error("panic in user subscriber",
								slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
						}
					}()
					onMessage(userID, msg.Payload)
				}()
			}
		}
	}()

	return nil
}
