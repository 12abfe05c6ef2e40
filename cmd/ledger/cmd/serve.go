package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Fi44er/casino_ledger/internal/api"
	"github.com/Fi44er/casino_ledger/internal/bot"
	"github.com/Fi44er/casino_ledger/internal/protocol"
	"github.com/Fi44er/casino_ledger/internal/worker"
	"github.com/Fi44er/casino_ledger/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve aggregator callbacks, admin API and background jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg, logger, cfg.AutoMigrate)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.TelegramBotToken != "" {
			telegramBot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
			if err != nil {
				return err
			}
			adminBot := bot.NewBot(telegramBot, a.service, cfg.AdminChatID, logger)
			a.service.SetNotifier(adminBot)
			go adminBot.Start(ctx, telegramBot.GetUpdatesChan(tgbotapi.NewUpdate(0)))
			defer func() {
				telegramBot.StopReceivingUpdates()
				<-adminBot.Done()
			}()
		} else {
			logger.Warn("TELEGRAM_BOT_TOKEN is empty, admin alerts are only logged")
		}

		lock, closeLock := redisLock(cfg.RedisAddr, logger)
		defer closeLock()
		sweeper := worker.NewSweeper(a.service, lock, logger)
		if err := sweeper.Start(cfg.BonusSweepSchedule); err != nil {
			return err
		}
		defer sweeper.Stop()

		dispatcher := protocol.NewDispatcher(a.service, protocol.NewSigner(cfg.AggregatorSecret), a.service.Notifier(), logger)
		server := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.NewRouter(api.NewHandler(dispatcher, a.service, logger)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Infof("Server starting on %s", cfg.HTTPAddr)
			errCh <- server.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
			logger.Info("Shutting down...")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// redisLock returns a redis backed lock when addr is set, otherwise a local one.
func redisLock(addr string, logger *utils.Logger) (worker.DistributedLock, func()) {
	if addr == "" {
		return worker.LocalLock{}, func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	logger.Infof("Using redis at %s for job locks", addr)
	return worker.NewRedisLock(client), func() { client.Close() }
}
