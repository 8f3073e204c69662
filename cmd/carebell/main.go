package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/carebell/carebell/internal/ai"
	"github.com/carebell/carebell/internal/bot"
	"github.com/carebell/carebell/internal/bot/handlers"
	"github.com/carebell/carebell/internal/config"
	"github.com/carebell/carebell/internal/database"
	"github.com/carebell/carebell/internal/format"
	"github.com/carebell/carebell/internal/notify"
	"github.com/carebell/carebell/internal/repository"
	"github.com/carebell/carebell/internal/schedule"
	"github.com/carebell/carebell/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.LogPretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	if cfg.DatabaseURI == "" {
		logger.Fatal().Msg("DATABASE_URI is required")
	}
	if cfg.TelegramToken == "" {
		logger.Fatal().Msg("TELEGRAM_TOKEN is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseURI)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	logger.Info().Msg("connected to database")

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	var aiClient *ai.Client
	if cfg.AIAPIKey != "" {
		aiClient = ai.New(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel)
		logger.Info().Str("model", cfg.AIModel).Msg("AI client initialized")
	} else {
		logger.Info().Msg("AI client not configured, free-text medicine entry disabled")
	}

	userRepo := repository.NewUserRepository(db)
	medicineRepo := repository.NewMedicineRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	missedLogRepo := repository.NewMissedLogRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	loc := cfg.Location()
	svc := schedule.NewService(medicineRepo, scheduleRepo, loc, logger)

	// Dedicated Telegram client for outbound alerts, separate from the
	// bot's long-poll client.
	alertAPI, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create Telegram API")
	}
	notifier := notify.New(scheduleRepo, userRepo, notificationRepo,
		bot.NewMessenger(alertAPI), format.GroupedAlert, format.DoseReminder, logger)

	listener := database.NewListener(db, logger)
	go listener.Run(ctx)

	coordinator := scheduler.New(svc, notifier, userRepo, listener.Updates(),
		cfg.TickInterval, loc, logger)
	go coordinator.Start(ctx)

	b, err := bot.New(cfg.TelegramToken, &handlers.Deps{
		Repos: &handlers.Repositories{
			User:         userRepo,
			Medicine:     medicineRepo,
			Schedule:     scheduleRepo,
			MissedLog:    missedLogRepo,
			Notification: notificationRepo,
		},
		AI:        aiClient,
		Requester: coordinator,
		Location:  loc,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create bot")
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info().Msg("shutting down")
		cancel()
	}()

	logger.Info().Msg("starting bot")
	if err := b.Start(ctx); err != nil && err != context.Canceled {
		logger.Fatal().Err(err).Msg("bot error")
	}
}
