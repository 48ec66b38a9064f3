package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ai-profile-studio/internal/app"
	"ai-profile-studio/internal/bot"
	"ai-profile-studio/internal/config"
	"ai-profile-studio/internal/httpclient"
	"ai-profile-studio/internal/mediagroup"
	"ai-profile-studio/internal/telegram"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.ValidateBot(); err != nil {
		panic(err)
	}

	logger := app.NewLogger(cfg)

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: httpClient,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	store, err := app.OpenCredentials(cfg, logger)
	if err != nil {
		logger.Error("credential store init failed", "err", err)
		os.Exit(1)
	}

	st, err := app.NewStudio(cfg, store, logger)
	if err != nil {
		logger.Error("studio init failed", "err", err)
		os.Exit(1)
	}

	handler, err := bot.New(bot.Options{
		Messenger: tg,
		Studio:    st,
		OwnerID:   cfg.TelegramOwnerID,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("bot init failed", "err", err)
		os.Exit(1)
	}

	defer handler.Wait()
	defer st.Wait()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One session, one owner: updates are handled one at a time so the
	// menu never races with itself. Generation runs in the background and
	// albums flush on their own goroutine.
	aggregator := mediagroup.New(mediagroup.Options{
		Debounce: cfg.MediaGroupDebounce,
		OnFlush: func(group mediagroup.Group) {
			handler.HandleMediaGroup(ctx, group)
		},
	})
	defer aggregator.Stop()
	handler.SetMediaGroupAggregator(aggregator)

	logger.Info("bot started", "username", tg.Username(), "owner_id", cfg.TelegramOwnerID)

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info("updates channel closed")
				return
			}
			if err := handler.HandleUpdate(ctx, update); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("handle update failed", "err", err)
			}
		}
	}
}
