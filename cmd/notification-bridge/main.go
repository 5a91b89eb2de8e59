package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/example/waha-notification-bridge/internal/config"
	"github.com/example/waha-notification-bridge/internal/dispatch"
	"github.com/example/waha-notification-bridge/internal/kafka/consumer"
	"github.com/example/waha-notification-bridge/internal/kafka/producer"
	kafkapublisher "github.com/example/waha-notification-bridge/internal/kafka/publisher"
	"github.com/example/waha-notification-bridge/internal/logger"
	"github.com/example/waha-notification-bridge/internal/metrics"
	"github.com/example/waha-notification-bridge/internal/providers/factory"
	"github.com/example/waha-notification-bridge/internal/recipients"
	"github.com/example/waha-notification-bridge/internal/transport/httpapi"
	"github.com/example/waha-notification-bridge/internal/worker"
	notificationvalidator "github.com/example/waha-notification-bridge/internal/worker/validator/notification"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(logger.Options{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: "notification-bridge",
		Debug:   cfg.Gateway.Debug,
	})
	if err != nil {
		fail("logger init", err)
	}

	if err := run(ctx, cfg, *baseLogger); err != nil {
		fail("run", err)
	}
}

// run owns every resource opened after logging is configured. Deferred
// closes complete before it returns.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	gatewayLogger := logger.Component(log, "gateway").With().Str("backend", cfg.Gateway.Backend).Logger()
	gateway, err := factory.Gateway(cfg.Gateway, gatewayLogger)
	if err != nil {
		return fmt.Errorf("initialise gateway: %w", err)
	}

	reg := metrics.New()
	recipientSource := recipients.NewFileSource(cfg.Recipients.File)

	deps := worker.Dependencies{
		Validator: notificationvalidator.New(logger.Component(log, "notification-validator")),
		Sender:    gateway,
		Metrics:   reg,
		Logger:    log,
		Now:       time.Now,
	}

	var statusProducer httpapi.ReadinessReporter
	if cfg.Kafka.StatusTopic != "" {
		prod, err := producer.New(cfg.Kafka.Brokers, logger.Component(log, "kafka-producer"),
			producer.WithClientID(cfg.Kafka.ClientID+"-status"))
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		defer func() {
			if err := prod.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close kafka producer")
			}
		}()
		statusProducer = prod
		deps.StatusPublisher = kafkapublisher.NewStatusPublisher(prod, cfg.Kafka.StatusTopic, logger.Component(log, "status-publisher"))
		log.Info().Str("status_topic", cfg.Kafka.StatusTopic).Msg("delivery status events enabled")
	}

	opener, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ConsumerGroup,
		logger.Component(log, "kafka-consumer"), consumer.WithClientID(cfg.Kafka.ClientID))
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	deps.Opener = worker.KafkaSource(opener)

	engine, err := worker.NewEngine(worker.Config{
		Topic:       cfg.Kafka.Topic,
		Session:     cfg.Gateway.Session,
		PollTimeout: worker.DefaultPollTimeout,
	}, deps)
	if err != nil {
		return fmt.Errorf("initialise worker engine: %w", err)
	}

	bulk, err := dispatch.New(gateway, recipientSource, log, dispatch.WithMetrics(reg))
	if err != nil {
		return fmt.Errorf("initialise bulk dispatcher: %w", err)
	}

	router, err := httpapi.NewRouter(httpapi.Dependencies{
		Config:         cfg,
		Gateway:        gateway,
		Consumer:       engine,
		Bulk:           bulk,
		Recipients:     recipientSource,
		StatusProducer: statusProducer,
		Metrics:        reg,
		Logger:         logger.Component(log, "http"),
	})
	if err != nil {
		return fmt.Errorf("initialise http router: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Str("topic", cfg.Kafka.Topic).
			Str("gateway", cfg.Gateway.BaseURL).
			Msg("notification bridge started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("notification bridge init failed")
}
