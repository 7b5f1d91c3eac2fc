package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"lottery_bot/internal/bot"
	"lottery_bot/internal/config"
	"lottery_bot/internal/lock"
	"lottery_bot/internal/logger"
	"lottery_bot/internal/notify"
	"lottery_bot/internal/prize"
	"lottery_bot/internal/scheduler"
	"lottery_bot/internal/storage"
	"lottery_bot/internal/telegram"
	"lottery_bot/internal/validator"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("lottery", "info", "console")
		boot.Fatal().Err(err).Msg("load config")
	}

	log := logger.New("lottery", cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("lottery stopped with error")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	tg, err := telegram.New(cfg.TelegramBotToken, cfg.TelegramSendRate, log)
	if err != nil {
		return err
	}
	log.Info().Str("username", tg.Username()).Int64("bot_id", tg.BotID()).Msg("authorized")

	speech := validator.NewSpeechCount(store)
	pipeline := validator.NewPipeline(validator.Validators{
		JoinGroup:   validator.NewMembership(tg),
		JoinChannel: validator.NewMembership(tg),
		FollowBot:   validator.NewFollowBot(store, tg.BotID()),
		SpeechCount: speech,
	}, store, log)
	pipeline.SetTimeout(cfg.CallTimeout)
	pipeline.SetConcurrency(cfg.ValidationConcurrency)

	b := bot.New(tg, store, cfg, pipeline, speech, log)

	fanout := notify.NewFanout(store, log)
	fanout.SetConcurrency(cfg.NotifyConcurrency)
	fanout.SetTimeout(cfg.CallTimeout)

	sched := scheduler.New(store, pipeline, prize.NewAllocator(store, log), fanout, b, log)
	sched.SetTickInterval(cfg.Scheduler.Interval)
	sched.SetMisfireGrace(cfg.Scheduler.MisfireGrace)
	sched.SetConcurrency(cfg.Scheduler.ActivityConcurrency)
	sched.SetCheckInterval(cfg.Scheduler.CheckInterval)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Redis.Enabled() {
		client, err := lock.OpenRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		sched.SetLocker(lock.NewRedis(client, log), cfg.Scheduler.EndLockTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis end lock")
	} else {
		sched.SetLocker(lock.NewMemory(), cfg.Scheduler.EndLockTTL)
	}

	log.Info().Msg("starting lottery bot")

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	b.Run(ctx)
	<-done

	log.Info().Msg("lottery bot stopped")
	return nil
}
