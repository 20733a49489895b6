package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vesting_treasury_bot/internal/app"
	"vesting_treasury_bot/internal/domain/vesting"
	"vesting_treasury_bot/internal/infra/config"
	idb "vesting_treasury_bot/internal/infra/database"
	"vesting_treasury_bot/internal/infra/ledger"
	applogger "vesting_treasury_bot/internal/infra/logger"
	"vesting_treasury_bot/internal/infra/scheduler"
	"vesting_treasury_bot/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	fmt.Println("Vesting Treasury Bot starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Could not load application configuration: %v", err)
	}

	applogger.Init(cfg)
	mainLogger := applogger.Get().WithField("component", "main")
	mainLogger.WithFields(logrus.Fields{
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"admin_id":    cfg.AdminTelegramID,
	}).Info("Configuration loaded")

	ctx := context.Background()

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	mainLogger.Info("Database connection established successfully.")

	if err := idb.EnsureSchema(ctx, db); err != nil {
		mainLogger.WithError(err).Fatal("Could not apply database schema")
	}

	// Initialize Repositories and Ledger
	scheduleRepo := idb.NewPostgresScheduleRepository(db)
	mainLogger.Info("Schedule repository initialized.")
	bookLedger := ledger.NewPostgresLedger(db, vesting.Address(cfg.TreasuryAccount))
	mainLogger.Info("Custody ledger initialized.")
	txManager := idb.NewTxManager(db, vesting.Address(cfg.TreasuryAccount))

	// Initialize Services
	clock := vesting.SystemClock{}
	vestingSvc := app.NewVestingService(scheduleRepo, txManager, clock, applogger.Get().WithField("component", "vesting_service"))
	mainLogger.Info("Vesting service initialized.")
	reportSvc := app.NewTreasuryReportService(scheduleRepo, clock, applogger.Get().WithField("component", "report_service"))
	mainLogger.Info("Treasury report service initialized.")

	// Initialize Scheduler for the daily treasury snapshot
	treasuryScheduler := scheduler.NewTreasuryScheduler(
		reportSvc,
		applogger.Get().WithField("component", "scheduler"),
		cfg.CronSpecTreasuryRpt,
	)
	treasuryScheduler.Start()

	// Initialize Telegram Bot
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := applogger.Get().WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{
					"message":   c.Text(),
					"sender_id": c.Sender().ID,
					"chat_id":   c.Chat().ID,
				})
			}
			entry.Error("Telebot error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not create Telegram bot")
	}

	// Release notifications go to the ops chat through the domain client.
	vestingSvc.SetNotifier(telegram.NewTelebotAdapter(bot), cfg.OpsChatID)

	// Register Handlers
	telegram.RegisterVestingHandlers(ctx, bot, vestingSvc, reportSvc, bookLedger, cfg.AdminTelegramID, applogger.Get().WithField("component", "handlers"))
	mainLogger.Info("Vesting command handlers registered.")

	mainLogger.Info("Application setup complete. Bot and Scheduler are starting...")

	// Start bot in a goroutine so it doesn't block graceful shutdown handling
	go bot.Start()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit // Block until a signal is received

	mainLogger.Info("Shutting down application...")
	treasuryScheduler.Stop()
	bot.Stop()
	// db.Close() is handled by defer
	mainLogger.Info("Application shut down gracefully.")
}
