package bot

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"slotbook/entity"
	"slotbook/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
)

func (t *TgBot) plainResponse(chatId int64, text string) {
	if text == "" {
		t.log.With("id", chatId).Debug("empty message")
		return
	}

	_, err := t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		t.log.With(slog.Int64("id", chatId)).Warn("sending message", sl.Err(err))
		_, err = t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{})
		if err != nil {
			t.log.With(slog.Int64("id", chatId)).Error("sending safe message", sl.Err(err))
		}
	}
}

// Sanitize escapes MarkdownV2 reserved characters for safe interpolation
// of user-supplied text into bot messages.
func Sanitize(input string) string {
	reservedChars := "\\_{}#+-.!|()[]=*"
	sanitized := ""
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sanitized += "\\" + string(char)
		} else {
			sanitized += string(char)
		}
	}
	return sanitized
}

func (t *TgBot) requireAdmin(chatId int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	user, ok := t.users[chatId]
	if !ok {
		return false
	}
	return user.IsAdmin()
}

func (t *TgBot) requireApproved(chatId int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	user, ok := t.users[chatId]
	if !ok {
		return false
	}
	return user.IsApproved()
}

func (t *TgBot) findUserByUsername(username string) *entity.User {
	username = strings.TrimPrefix(username, "@")
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, user := range t.users {
		if strings.EqualFold(user.TelegramUsername, username) {
			return user
		}
	}
	return nil
}

// resolveUser finds a user by @username or numeric telegram ID string.
func (t *TgBot) resolveUser(identifier string) *entity.User {
	if strings.HasPrefix(identifier, "@") {
		return t.findUserByUsername(identifier)
	}
	id, err := strconv.ParseInt(identifier, 10, 64)
	if err != nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	user, ok := t.users[id]
	if !ok {
		return nil
	}
	return user
}

func (t *TgBot) notifyAdmins(msg string) {
	t.mu.RLock()
	adminIds := make([]int64, len(t.adminIds))
	copy(adminIds, t.adminIds)
	t.mu.RUnlock()

	for _, id := range adminIds {
		t.plainResponse(id, msg)
	}
}

func userDisplayName(user *entity.User) string {
	if user.TelegramUsername != "" {
		return fmt.Sprintf("@%s (%d)", user.TelegramUsername, user.TelegramId)
	}
	return fmt.Sprintf("%d", user.TelegramId)
}

// reportError logs the error, notifies admins with details, and sends a
// neutral message to the user.
func (t *TgBot) reportError(chatId int64, command string, err error) {
	t.log.Error("bot command failed",
		slog.String("command", command),
		slog.Int64("user_id", chatId),
		sl.Err(err),
	)
	t.notifyAdmins(fmt.Sprintf(
		"Command `%s` failed\nUser: `%d`\nError: `%s`",
		Sanitize(command), chatId, Sanitize(err.Error()),
	))
	t.plainResponse(chatId, "Something went wrong\\. Please try again later\\.")
}
