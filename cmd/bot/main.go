package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"ready2rent-bot/internal/adapters/bot"
	"ready2rent-bot/internal/adapters/notify"
	"ready2rent-bot/internal/adapters/repo"
	"ready2rent-bot/internal/domain"
	"ready2rent-bot/internal/infra/config"
	"ready2rent-bot/internal/infra/db"
	ophttp "ready2rent-bot/internal/infra/http"
	"ready2rent-bot/internal/infra/log"
	"ready2rent-bot/internal/infra/metrics"
	"ready2rent-bot/internal/infra/session"
	"ready2rent-bot/internal/usecase/listings"
	"ready2rent-bot/internal/usecase/submission"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		listingRepo domain.ListingRepo
		err         error
	)
	if cfg.PGDSN != "" {
		pool, connErr := db.Connect(cfg.PGDSN)
		if connErr != nil {
			logger.Fatal().Err(connErr).Msg("no se pudo conectar a Postgres")
		}
		defer pool.Close()
		listingRepo, err = repo.NewPostgres(ctx, pool, logger)
	} else {
		listingRepo, err = repo.NewSheets(ctx, repo.SheetsConfig{
			SpreadsheetID: cfg.Sheets.SpreadsheetID,
			SheetName:     cfg.Sheets.SheetName,
			Creds:         cfg.Sheets.Creds,
		}, logger)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("no se pudo abrir el backend de listados")
	}

	var sessions domain.SessionStore
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		sessions = session.NewRedis(client, cfg.Session.TTL)
	} else {
		memStore := session.NewMemory(cfg.Session.TTL)
		go memStore.Run(ctx, cfg.Session.TTL/10)
		sessions = memStore
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("no se pudo crear el bot")
	}

	notifier := notify.NewTelegram(botAPI, logger, cfg.Admin.IDs, cfg.Admin.Notify)
	listingsUC := listings.NewService(listingRepo, logger, cfg.Limits.ResultWindow)
	submissionUC := submission.NewService(listingRepo, notifier, logger)

	h := bot.NewHandler(botAPI, logger, submissionUC, listingsUC, sessions, notifier, bot.Options{
		AdminIDs:    cfg.Admin.IDs,
		BotUsername: botAPI.Self.UserName,
		UploadDir:   cfg.Uploads.Dir,
		ManualsURL:  cfg.Manuals.SamplePDFURL,
		AdminRecent: cfg.Limits.AdminRecent,
	})

	ophttp.StartOps(ctx, logger, cfg.Port)

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := botAPI.GetUpdatesChan(updateCfg)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
		<-stop
		logger.Info().Msg("parando el bot")
		botAPI.StopReceivingUpdates()
		cancel()
	}()

	logger.Info().Str("bot", botAPI.Self.UserName).Msg("Ready2R bot arrancado")
	for upd := range updates {
		go h.HandleUpdate(ctx, upd)
	}
}

var _ domain.ListingRepo = (*repo.Sheets)(nil)
var _ domain.ListingRepo = (*repo.Postgres)(nil)
var _ domain.SessionStore = (*session.Memory)(nil)
var _ domain.SessionStore = (*session.Redis)(nil)
var _ domain.Notifier = (*notify.Telegram)(nil)
