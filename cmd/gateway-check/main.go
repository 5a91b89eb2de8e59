package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/waha-notification-bridge/internal/config"
	"github.com/example/waha-notification-bridge/internal/providers/factory"
	"github.com/example/waha-notification-bridge/internal/recipients"
)

func main() {
	to := flag.String("to", "", "phone number to send a test message to; readiness only when empty")
	text := flag.String("text", "Hello from the WAHA gateway check.", "test message text")
	session := flag.String("session", "", "gateway session; defaults to WAHA_SESSION")
	timeout := flag.Duration("timeout", 70*time.Second, "overall deadline for the check")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	gateway, err := factory.Gateway(cfg.Gateway, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise gateway")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	status, err := gateway.CheckReadiness(ctx, *session)
	if err != nil {
		logger.Fatal().Err(err).Str("base_url", cfg.Gateway.BaseURL).Msg("readiness check failed")
	}
	logger.Info().
		Str("session", status.Name).
		Str("status", status.Status).
		Bool("ready", status.Ready).
		Bool("connected", status.Connected).
		Bool("has_identity", status.HasIdentity).
		Bool("can_send", status.CanSend()).
		Msg("session readiness")

	if *to == "" {
		return
	}

	chatID, err := recipients.Resolve(*to)
	if err != nil {
		logger.Fatal().Err(err).Str("number", *to).Msg("cannot resolve test recipient")
	}

	resp, err := gateway.SendText(ctx, chatID, *text, *session)
	if err != nil {
		logger.Fatal().Err(err).Str("chat_id", chatID).Msg("gateway failed to send message")
	}

	logger.Info().
		Str("chat_id", chatID).
		Int("status_code", resp.StatusCode).
		Interface("data", resp.Data).
		Msg("gateway working as expected")
}
