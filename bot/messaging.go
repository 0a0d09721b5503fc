package bot

import (
	"fmt"
	"log/slog"

	"slotbook/entity"
)

func (t *TgBot) SendMessage(msg string) {
	t.SendMessageWithLevel(msg, t.minLogLevel)
}

// SendMessageWithLevel sends a message to all enabled users filtered by log
// level. Used by the TelegramHandler slog sink.
func (t *TgBot) SendMessageWithLevel(msg string, level slog.Level) {
	topic := entity.TopicSystem
	if level >= slog.LevelError {
		topic = entity.TopicError
	}
	t.SendMessageWithTopic(msg, level, topic)
}

// SendMessageWithTopic sends a message with topic-based routing: only
// enabled, approved users whose level and topic filters pass receive it.
func (t *TgBot) SendMessageWithTopic(msg string, level slog.Level, topic string) {
	t.mu.RLock()
	users := make(map[int64]*entity.User, len(t.users))
	for k, v := range t.users {
		users[k] = v
	}
	t.mu.RUnlock()

	l := int(level)
	for _, user := range users {
		if !user.TelegramEnabled || !user.IsApproved() {
			continue
		}
		if l < user.LogLevel {
			continue
		}
		if !user.HasTopic(topic) {
			continue
		}
		t.plainResponse(user.TelegramId, msg)
	}
}

// NotifyEvent turns a core mutation event into a staff notification.
// Registered on the core via Subscribe; bulk edits produce one message per
// touched unit, which is acceptable at interview-scheduling volumes.
func (t *TgBot) NotifyEvent(event entity.Event) {
	var msg string
	switch event.Kind {
	case entity.EventSlotClaimed:
		msg = fmt.Sprintf("*Interview booked* by %s", Sanitize(event.Booker))
	case entity.EventSlotCreated:
		msg = "Slot published"
	case entity.EventSlotDeleted:
		msg = "Slot withdrawn"
	case entity.EventInviteCreated:
		msg = "Invite created"
	case entity.EventInviteCancelled:
		msg = "Invite cancelled"
	case entity.EventInviteExpired:
		msg = "Invite expired"
	default:
		return
	}

	level := slog.LevelDebug
	if event.Kind == entity.EventSlotClaimed {
		level = slog.LevelInfo
	}
	t.SendMessageWithTopic(msg, level, event.Topic())
}
