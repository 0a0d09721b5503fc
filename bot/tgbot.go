// Package bot implements the Telegram bot that pushes scheduling
// notifications to staff.
//
// Architecture overview:
//   - tgbot.go    — TgBot struct, lifecycle (Start/Stop), user cache, Database interface
//   - commands.go  — /start, /stop, /level, /topics, /subscribe, /unsubscribe, /status,
//     /help, plus the admin commands /users, /approve, /revoke
//   - messaging.go — notification routing: level filter → topic filter → send,
//     and NotifyEvent for scheduling events from the core
//   - helpers.go   — shared utilities: Sanitize, plainResponse, resolveUser, reportError
//
// The bot is a pure consumer of the core's mutation events; it holds no
// scheduling state of its own. Staff register via /start and wait for an
// admin to approve them before any notification is delivered.
//
// Thread safety: the users map and adminIds are protected by sync.RWMutex.
// All commands acquire RLock to read; loadUsers() acquires full Lock to refresh.
package bot

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"slotbook/entity"
	"slotbook/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
)

// Database defines the storage operations the bot depends on.
// Implemented by internal/database/mongo.go.
type Database interface {
	GetAllTelegramUsers() ([]*entity.User, error)
	RegisterTelegramUser(telegramId int64, username string) error
	SetTelegramEnabled(id int64, isActive bool, logLevel int) error
	SetTelegramTopics(telegramId int64, topics []string) error
	SetRole(telegramId int64, role entity.Role) error
}

// TgBot is the central Telegram bot instance. It caches all staff users in
// memory (refreshed on every state change) and routes notifications through
// the level → topic pipeline.
type TgBot struct {
	log         *slog.Logger
	api         *tgbotapi.Bot
	db          Database
	mu          sync.RWMutex           // guards users and adminIds
	users       map[int64]*entity.User // telegram_id → User; includes all roles
	minLogLevel slog.Level
	updater     *ext.Updater
	adminIds    []int64 // cached admin telegram IDs for quick notification
}

func NewTgBot(apiKey string, db Database, log *slog.Logger) (*TgBot, error) {
	tgBot := &TgBot{
		log:         log.With(sl.Module("tgbot")),
		db:          db,
		minLogLevel: slog.LevelDebug,
		users:       make(map[int64]*entity.User),
	}

	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	tgBot.api = api

	return tgBot, nil
}

func (t *TgBot) Start() error {
	t.loadUsers()

	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			t.log.Error("handling update:", sl.Err(err))
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})
	t.updater = ext.NewUpdater(dispatcher, nil)

	// User commands
	dispatcher.AddHandler(handlers.NewCommand("start", t.start))
	dispatcher.AddHandler(handlers.NewCommand("stop", t.stop))
	dispatcher.AddHandler(handlers.NewCommand("level", t.level))
	dispatcher.AddHandler(handlers.NewCommand("topics", t.topics))
	dispatcher.AddHandler(handlers.NewCommand("subscribe", t.subscribe))
	dispatcher.AddHandler(handlers.NewCommand("unsubscribe", t.unsubscribe))
	dispatcher.AddHandler(handlers.NewCommand("status", t.status))
	dispatcher.AddHandler(handlers.NewCommand("help", t.help))

	// Admin commands
	dispatcher.AddHandler(handlers.NewCommand("users", t.usersCmd))
	dispatcher.AddHandler(handlers.NewCommand("approve", t.approve))
	dispatcher.AddHandler(handlers.NewCommand("revoke", t.revoke))

	err := t.updater.StartPolling(t.api, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &tgbotapi.GetUpdatesOpts{
			Timeout: 9,
			RequestOpts: &tgbotapi.RequestOpts{
				Timeout: time.Second * 10,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}

	t.updater.Idle()
	return nil
}

func (t *TgBot) Stop() {
	if t.updater != nil {
		t.log.Info("stopping telegram bot")
		t.updater.Stop()
	}
}

// loadUsers refreshes the in-memory user cache from the database.
// Called on startup and after every state-changing operation.
// Rebuilds the adminIds list used by notifyAdmins.
func (t *TgBot) loadUsers() {
	if t.db == nil {
		return
	}
	users, err := t.db.GetAllTelegramUsers()
	if err != nil {
		t.log.Error("loading users", sl.Err(err))
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.users = make(map[int64]*entity.User)
	t.adminIds = nil
	active := 0
	for _, user := range users {
		t.users[user.TelegramId] = user
		if user.TelegramEnabled {
			active++
		}
		if user.IsAdmin() {
			t.adminIds = append(t.adminIds, user.TelegramId)
		}
	}
	t.log.With(
		slog.Int("count", len(t.users)),
		slog.Int("active", active),
		slog.Int("admins", len(t.adminIds)),
	).Debug("loaded users")
}

func (t *TgBot) findUser(id int64) *entity.User {
	t.mu.RLock()
	defer t.mu.RUnlock()
	user, ok := t.users[id]
	if ok {
		return user
	}
	return nil
}
