package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"example.com/openhouse/internal/bot"
	"example.com/openhouse/internal/config"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	b := bot.New()
	b.SetClient(cfg.ClientConfig())
	if runtime.GOOS == "windows" {
		b.SetMediaHook()
	}

	if err := b.UseConfig(cfg.BotConfigPath); err != nil {
		log.Fatal().Err(err).Msg("bot config")
	}

	if err := b.Start(); err != nil {
		log.Fatal().Err(err).Msg("start")
	}
	defer b.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("running… press Ctrl+C to stop")

	<-ctx.Done()
}
