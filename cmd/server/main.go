package main

import (
	"flag"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"slotbook/bot"
	"slotbook/impl/auth"
	"slotbook/impl/availability"
	"slotbook/impl/core"
	"slotbook/internal/config"
	"slotbook/internal/database"
	"slotbook/internal/http-server/api"
	"slotbook/lib/logger"
	"slotbook/lib/sl"
)

const logFileName = "slotbook.log"

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	lg := logger.SetupLogger(conf.Env, filepath.Join(*logPath, logFileName))
	lg.Info("starting slotbook", slog.String("config", *configPath), slog.String("env", conf.Env))

	db := database.NewMongoClient(conf)
	if db == nil {
		log.Fatal("mongo storage is disabled in config; nothing to serve")
	}

	var tgBot *bot.TgBot
	if conf.Telegram.Enabled {
		var err error
		tgBot, err = bot.NewTgBot(conf.Telegram.ApiKey, db, lg)
		if err != nil {
			lg.Error("creating telegram bot", sl.Err(err))
			tgBot = nil
		} else {
			// Route warnings and errors to subscribed staff chats.
			lg = slog.New(logger.NewTelegramHandler(lg.Handler(), tgBot, slog.LevelWarn))
		}
	}

	loc, err := time.LoadLocation(conf.Schedule.Timezone)
	if err != nil {
		log.Fatal("invalid schedule timezone: ", err)
	}

	editor := availability.New(db, availability.Config{
		Location:     loc,
		DayStartHour: conf.Schedule.DayStartHour,
		DayEndHour:   conf.Schedule.DayEndHour,
		UnitMinutes:  conf.Schedule.UnitMinutes,
		SlotLocation: conf.Schedule.Location,
	}, lg)

	handler := core.New(db, editor, lg)
	handler.SetAuthService(auth.New(db))

	if tgBot != nil {
		handler.Subscribe(tgBot.NotifyEvent)
		go func() {
			if startErr := tgBot.Start(); startErr != nil {
				lg.Error("telegram bot stopped", sl.Err(startErr))
			}
		}()
	}

	err = api.New(conf, lg, handler)
	if err != nil {
		lg.Error("api server stopped", sl.Err(err))
	}
}
