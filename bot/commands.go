package bot

import (
	"fmt"
	"log/slog"
	"strings"

	"slotbook/entity"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

func (t *TgBot) start(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.db == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	user := t.findUser(chatId)

	// Case 1: Known approved user — re-enable
	if user != nil && user.IsApproved() {
		err := t.db.SetTelegramEnabled(user.TelegramId, true, int(t.minLogLevel))
		if err != nil {
			t.reportError(chatId, "/start", err)
			return nil
		}
		t.plainResponse(chatId, "Notifications ENABLED")
		t.loadUsers()
		return nil
	}

	// Case 2: Known pending user
	if user != nil && user.IsPending() {
		t.plainResponse(chatId, "Your registration is awaiting admin approval\\.")
		return nil
	}

	// Case 3: Unknown user — register and wait for approval
	username := ctx.EffectiveUser.Username
	err := t.db.RegisterTelegramUser(chatId, username)
	if err != nil {
		t.reportError(chatId, "/start register", err)
		return nil
	}

	t.plainResponse(chatId, "Registration received\\. An admin will review your request\\.")
	t.notifyAdmins(fmt.Sprintf("New pending registration: @%s \\(%d\\)\\. Use `/approve %d` to approve\\.", Sanitize(username), chatId, chatId))

	t.loadUsers()
	return nil
}

func (t *TgBot) stop(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.db == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	if !t.requireApproved(chatId) {
		return nil
	}

	user := t.findUser(chatId)
	if user == nil {
		return nil
	}

	err := t.db.SetTelegramEnabled(user.TelegramId, false, user.LogLevel)
	if err != nil {
		t.reportError(chatId, "/stop", err)
		return nil
	}
	t.plainResponse(chatId, "Notifications DISABLED")
	t.loadUsers()
	return nil
}

func (t *TgBot) level(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.db == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	if !t.requireApproved(chatId) {
		t.plainResponse(chatId, "You need to be approved first\\.")
		return nil
	}

	user := t.findUser(chatId)
	if user == nil {
		return nil
	}

	args := strings.Fields(ctx.EffectiveMessage.Text)
	if len(args) < 2 {
		currentLevel := slog.Level(user.LogLevel).String()
		t.plainResponse(chatId, fmt.Sprintf("Your current log level: %s\nAvailable levels: debug, info, warn, error", Sanitize(currentLevel)))
		return nil
	}

	levelStr := strings.ToLower(args[1])
	level := t.minLogLevel
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		t.plainResponse(chatId, fmt.Sprintf("Invalid level: %s\nAvailable levels: debug, info, warn, error", Sanitize(levelStr)))
		return nil
	}

	err := t.db.SetTelegramEnabled(user.TelegramId, true, int(level))
	if err != nil {
		t.reportError(chatId, "/level", err)
		return nil
	}
	t.plainResponse(chatId, fmt.Sprintf("Log level set to: %s", Sanitize(level.String())))
	t.loadUsers()
	return nil
}

func (t *TgBot) topics(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.db == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	if !t.requireApproved(chatId) {
		t.plainResponse(chatId, "You need to be approved first\\.")
		return nil
	}

	user := t.findUser(chatId)
	if user == nil {
		return nil
	}

	allTopics := entity.AllTopics()
	var sb strings.Builder
	sb.WriteString("*Available topics:*\n")
	for _, topic := range allTopics {
		subscribed := user.HasTopic(topic)
		marker := "  "
		if subscribed {
			marker = "\\+ "
		}
		sb.WriteString(fmt.Sprintf("%s`%s`\n", marker, topic))
	}

	if len(user.Topics) == 0 {
		sb.WriteString("\nYou are subscribed to *all* topics\\.")
	}

	sb.WriteString("\nUse `/subscribe <topic>` or `/unsubscribe <topic>`")
	t.plainResponse(chatId, sb.String())
	return nil
}

func (t *TgBot) subscribe(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.db == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	if !t.requireApproved(chatId) {
		t.plainResponse(chatId, "You need to be approved first\\.")
		return nil
	}

	user := t.findUser(chatId)
	if user == nil {
		return nil
	}

	args := strings.Fields(ctx.EffectiveMessage.Text)
	if len(args) < 2 {
		t.plainResponse(chatId, "Usage: `/subscribe <topic|all>`\nAvailable topics: "+Sanitize(strings.Join(entity.AllTopics(), ", ")))
		return nil
	}

	topic := strings.ToLower(args[1])

	if topic == "all" {
		err := t.db.SetTelegramTopics(chatId, nil)
		if err != nil {
			t.reportError(chatId, "/subscribe all", err)
			return nil
		}
		t.plainResponse(chatId, "Subscribed to *all* topics\\.")
		t.loadUsers()
		return nil
	}

	if !entity.IsValidTopic(topic) {
		t.plainResponse(chatId, "Invalid topic: `"+Sanitize(topic)+"`\nAvailable: "+Sanitize(strings.Join(entity.AllTopics(), ", ")))
		return nil
	}

	// Add topic if not already present
	currentTopics := user.Topics
	// Remove "none" sentinel if present
	filtered := make([]string, 0, len(currentTopics))
	for _, ct := range currentTopics {
		if ct != "none" && ct != topic {
			filtered = append(filtered, ct)
		}
	}
	filtered = append(filtered, topic)

	err := t.db.SetTelegramTopics(chatId, filtered)
	if err != nil {
		t.reportError(chatId, "/subscribe", err)
		return nil
	}
	t.plainResponse(chatId, "Subscribed to `"+Sanitize(topic)+"`")
	t.loadUsers()
	return nil
}

func (t *TgBot) unsubscribe(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.db == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	if !t.requireApproved(chatId) {
		t.plainResponse(chatId, "You need to be approved first\\.")
		return nil
	}

	user := t.findUser(chatId)
	if user == nil {
		return nil
	}

	args := strings.Fields(ctx.EffectiveMessage.Text)
	if len(args) < 2 {
		t.plainResponse(chatId, "Usage: `/unsubscribe <topic|all>`\nAvailable topics: "+Sanitize(strings.Join(entity.AllTopics(), ", ")))
		return nil
	}

	topic := strings.ToLower(args[1])

	if topic == "all" {
		err := t.db.SetTelegramTopics(chatId, []string{"none"})
		if err != nil {
			t.reportError(chatId, "/unsubscribe all", err)
			return nil
		}
		t.plainResponse(chatId, "Unsubscribed from all topics\\.")
		t.loadUsers()
		return nil
	}

	if !entity.IsValidTopic(topic) {
		t.plainResponse(chatId, "Invalid topic: `"+Sanitize(topic)+"`\nAvailable: "+Sanitize(strings.Join(entity.AllTopics(), ", ")))
		return nil
	}

	// If user currently has empty topics (subscribed to all), populate with all except the one being removed
	currentTopics := user.Topics
	if len(currentTopics) == 0 {
		currentTopics = entity.AllTopics()
	}

	filtered := make([]string, 0, len(currentTopics))
	for _, ct := range currentTopics {
		if ct != topic {
			filtered = append(filtered, ct)
		}
	}
	if len(filtered) == 0 {
		filtered = []string{"none"}
	}

	err := t.db.SetTelegramTopics(chatId, filtered)
	if err != nil {
		t.reportError(chatId, "/unsubscribe", err)
		return nil
	}
	t.plainResponse(chatId, "Unsubscribed from `"+Sanitize(topic)+"`")
	t.loadUsers()
	return nil
}

func (t *TgBot) status(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.db == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	if !t.requireApproved(chatId) {
		t.plainResponse(chatId, "You need to be approved first\\.")
		return nil
	}

	user := t.findUser(chatId)
	if user == nil {
		return nil
	}

	topics := "all"
	if len(user.Topics) > 0 {
		topics = strings.Join(user.Topics, ", ")
	}

	enabled := "yes"
	if !user.TelegramEnabled {
		enabled = "no"
	}

	msg := fmt.Sprintf(
		"*Your Settings*\n"+
			"Role: `%s`\n"+
			"Enabled: `%s`\n"+
			"Log level: `%s`\n"+
			"Topics: `%s`",
		Sanitize(string(user.Role)),
		enabled,
		Sanitize(slog.Level(user.LogLevel).String()),
		Sanitize(topics),
	)
	t.plainResponse(chatId, msg)
	return nil
}

func (t *TgBot) help(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	isAdmin := t.requireAdmin(chatId)
	isApproved := t.requireApproved(chatId)

	var sb strings.Builder
	sb.WriteString("*Available Commands*\n\n")

	sb.WriteString("`/start` \\- Register or enable notifications\n")
	sb.WriteString("`/help` \\- Show this help\n")

	if isApproved {
		sb.WriteString("\n*User Commands:*\n")
		sb.WriteString("`/stop` \\- Disable notifications\n")
		sb.WriteString("`/level <debug|info|warn|error>` \\- Set log level\n")
		sb.WriteString("`/topics` \\- View topic subscriptions\n")
		sb.WriteString("`/subscribe <topic|all>` \\- Subscribe to topic\n")
		sb.WriteString("`/unsubscribe <topic|all>` \\- Unsubscribe from topic\n")
		sb.WriteString("`/status` \\- Show your settings\n")
	}

	if isAdmin {
		sb.WriteString("\n*Admin Commands:*\n")
		sb.WriteString("`/users` \\- List all users\n")
		sb.WriteString("`/approve <id|@user>` \\- Approve a user\n")
		sb.WriteString("`/revoke <id|@user>` \\- Revoke a user\n")
	}

	t.plainResponse(chatId, sb.String())
	return nil
}

// usersCmd lists all registered Telegram users, grouped by role.
func (t *TgBot) usersCmd(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.db == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	if !t.requireAdmin(chatId) {
		t.plainResponse(chatId, "Admin access required\\.")
		return nil
	}

	t.mu.RLock()
	users := make([]*entity.User, 0, len(t.users))
	for _, u := range t.users {
		users = append(users, u)
	}
	t.mu.RUnlock()

	if len(users) == 0 {
		t.plainResponse(chatId, "No telegram users found\\.")
		return nil
	}

	grouped := map[entity.Role][]*entity.User{}
	for _, u := range users {
		grouped[u.Role] = append(grouped[u.Role], u)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Users* \\(%d total\\)\n", len(users)))

	roleOrder := []entity.Role{entity.RoleAdmin, entity.RoleStaff, entity.RolePending, entity.RoleNone}
	for _, role := range roleOrder {
		roleUsers, ok := grouped[role]
		if !ok || len(roleUsers) == 0 {
			continue
		}
		roleName := string(role)
		if roleName == "" {
			roleName = "none"
		}
		sb.WriteString(fmt.Sprintf("\n*%s* \\(%d\\):\n", Sanitize(roleName), len(roleUsers)))
		for _, u := range roleUsers {
			enabled := "off"
			if u.TelegramEnabled {
				enabled = "on"
			}
			topics := "all"
			if len(u.Topics) > 0 {
				topics = strings.Join(u.Topics, ",")
			}
			sb.WriteString(fmt.Sprintf("  %s \\| %s \\| topics:%s\n",
				Sanitize(userDisplayName(u)),
				Sanitize(enabled),
				Sanitize(topics),
			))
		}
	}

	t.plainResponse(chatId, sb.String())
	return nil
}

func (t *TgBot) approve(_ *tgbotapi.Bot, ctx *ext.Context) error {
	return t.setRoleCmd(ctx, "/approve", entity.RoleStaff, "approved")
}

func (t *TgBot) revoke(_ *tgbotapi.Bot, ctx *ext.Context) error {
	return t.setRoleCmd(ctx, "/revoke", entity.RoleNone, "revoked")
}

func (t *TgBot) setRoleCmd(ctx *ext.Context, command string, role entity.Role, verb string) error {
	if t.db == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	if !t.requireAdmin(chatId) {
		t.plainResponse(chatId, "Admin access required\\.")
		return nil
	}

	args := strings.Fields(ctx.EffectiveMessage.Text)
	if len(args) < 2 {
		t.plainResponse(chatId, fmt.Sprintf("Usage: `%s <id|@user>`", Sanitize(command)))
		return nil
	}

	target := t.resolveUser(args[1])
	if target == nil {
		t.plainResponse(chatId, "User not found: "+Sanitize(args[1]))
		return nil
	}

	if err := t.db.SetRole(target.TelegramId, role); err != nil {
		t.reportError(chatId, command, err)
		return nil
	}
	t.plainResponse(chatId, fmt.Sprintf("User %s %s\\.", Sanitize(userDisplayName(target)), verb))
	if role == entity.RoleStaff {
		t.plainResponse(target.TelegramId, "You have been approved\\. Notifications are now ENABLED\\.")
	}
	t.loadUsers()
	return nil
}
