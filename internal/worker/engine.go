package worker

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/waha-notification-bridge/internal/models"
	"github.com/example/waha-notification-bridge/internal/providers/waha"
	"github.com/example/waha-notification-bridge/internal/recipients"
)

// Outcome reasons recorded for skipped records.
const (
	ReasonNullValue     = "null value"
	ReasonEmptySummary  = "empty summary"
	ReasonInvalidNumber = "invalid number"
)

// DefaultPollTimeout bounds a fetch when the caller does not supply one.
const DefaultPollTimeout = 5 * time.Second

var (
	// ErrQueueUnavailable is returned when the queue connection cannot be
	// established. Nothing is fetched or committed in that case.
	ErrQueueUnavailable = errors.New("queue unavailable")
	// ErrMalformedPayload marks records whose bytes are not valid JSON.
	ErrMalformedPayload = errors.New("parse error")
	// ErrInvalidPayload marks records that decode but miss required fields.
	ErrInvalidPayload = errors.New("validation error")
)

// Source is one open queue connection. It is used for a single batch and
// closed afterwards.
type Source interface {
	Fetch(ctx context.Context, timeout time.Duration) ([]Record, error)
	Commit(ctx context.Context, offsets map[TopicPartition]int64) error
	Close() error
}

// SourceOpener opens a fresh Source per batch.
type SourceOpener interface {
	Open(ctx context.Context) (Source, error)
}

// OpenerFunc adapts a function to SourceOpener.
type OpenerFunc func(ctx context.Context) (Source, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context) (Source, error) {
	return f(ctx)
}

// Sender delivers a text message to a chat address.
type Sender interface {
	SendText(ctx context.Context, chatID, text, session string) (*waha.SendResponse, error)
}

// Validator decodes and validates a record value. On a validation failure it
// may return a partially populated payload alongside the error so the outcome
// can still name the number and company.
type Validator interface {
	ParseAndValidate(ctx context.Context, value []byte) (*models.NotificationPayload, error)
}

// StatusPublisher emits per-record delivery events.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event models.StatusEvent) error
}

// Recorder receives delivery and batch measurements.
type Recorder interface {
	ObserveDelivery(source, outcome string)
	ObserveBatch(d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveDelivery(string, string)    {}
func (nopRecorder) ObserveBatch(time.Duration, error) {}

// Config contains the runtime settings of the engine.
type Config struct {
	Topic       string
	Session     string
	PollTimeout time.Duration
}

// Dependencies collects the runtime collaborators required by the engine.
type Dependencies struct {
	Opener          SourceOpener
	Validator       Validator
	Sender          Sender
	StatusPublisher StatusPublisher
	Metrics         Recorder
	Logger          zerolog.Logger
	Now             func() time.Time
	NewBatchID      func() string
}

// ConsumeOptions tune a single invocation. A nil MaxMessages means uncapped.
type ConsumeOptions struct {
	MaxMessages *int
	PollTimeout time.Duration
}

// Engine pulls one batch per invocation, delivers every record it examines
// and commits the contiguous prefix of handled offsets per partition. It
// never retries; a re-invocation re-reads whatever was left uncommitted.
type Engine struct {
	cfg             Config
	opener          SourceOpener
	validator       Validator
	sender          Sender
	statusPublisher StatusPublisher
	metrics         Recorder
	logger          zerolog.Logger
	now             func() time.Time
	newBatchID      func() string
}

// NewEngine constructs an engine using the supplied configuration and
// collaborators.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if deps.Opener == nil {
		return nil, errors.New("worker: source opener dependency is required")
	}
	if deps.Validator == nil {
		return nil, errors.New("worker: validator dependency is required")
	}
	if deps.Sender == nil {
		return nil, errors.New("worker: sender dependency is required")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "worker_engine").Str("source_topic", cfg.Topic).Logger()

	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}
	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}
	newBatchID := deps.NewBatchID
	if newBatchID == nil {
		newBatchID = uuid.NewString
	}

	return &Engine{
		cfg:             cfg,
		opener:          deps.Opener,
		validator:       deps.Validator,
		sender:          deps.Sender,
		statusPublisher: deps.StatusPublisher,
		metrics:         metrics,
		logger:          logger,
		now:             nowFunc,
		newBatchID:      newBatchID,
	}, nil
}

// Consume runs one batch: open, fetch, order, process, commit, close.
func (e *Engine) Consume(ctx context.Context, opts ConsumeOptions) (*models.BatchResult, error) {
	if opts.MaxMessages != nil && *opts.MaxMessages < 0 {
		return nil, fmt.Errorf("worker: max messages cannot be negative: %d", *opts.MaxMessages)
	}
	timeout := opts.PollTimeout
	if timeout <= 0 {
		timeout = e.cfg.PollTimeout
	}

	start := e.now()
	batchID := e.newBatchID()
	logger := e.logger.With().Str("batch_id", batchID).Logger()

	result, err := e.consume(ctx, logger, batchID, timeout, opts.MaxMessages)
	e.metrics.ObserveBatch(e.now().Sub(start), err)
	if err != nil {
		logger.Error().Err(err).Msg("worker: batch aborted")
		return nil, err
	}

	logger.Info().
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Int("partitions_committed", len(result.Committed)).
		Dur("duration", e.now().Sub(start)).
		Msg("worker: batch complete")
	return result, nil
}

func (e *Engine) consume(ctx context.Context, logger zerolog.Logger, batchID string, timeout time.Duration, maxMessages *int) (*models.BatchResult, error) {
	src, err := e.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("worker: failed to close queue source")
		}
	}()

	records, err := src.Fetch(ctx, timeout)
	if err != nil {
		return nil, fmt.Errorf("worker: fetch: %w", err)
	}
	SortRecords(records)

	logger.Debug().Int("fetched", len(records)).Dur("poll_timeout", timeout).Msg("worker: batch fetched")

	result := &models.BatchResult{
		Status:  "success",
		BatchID: batchID,
		Results: []models.DeliveryResult{},
	}
	frontier := NewFrontier()

	for i := range records {
		if maxMessages != nil && len(result.Results) >= *maxMessages {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("worker: batch interrupted: %w", err)
		}

		rec := &records[i]
		outcome, err := e.process(ctx, rec)
		if err != nil {
			return nil, err
		}

		result.Results = append(result.Results, outcome)
		switch outcome.Status {
		case models.OutcomeSuccess:
			result.Processed++
		case models.OutcomeError:
			result.Failed++
		case models.OutcomeSkipped:
			result.Skipped++
		}
		frontier.Advance(rec.TopicPartition(), rec.Offset)

		e.metrics.ObserveDelivery("consume", outcome.Status)
		e.publishStatus(ctx, logger, batchID, outcome)
	}

	if frontier.Len() > 0 {
		offsets := frontier.Offsets()
		if err := src.Commit(ctx, offsets); err != nil {
			return nil, fmt.Errorf("worker: commit: %w", err)
		}
		result.Committed = make(map[string]int64, len(offsets))
		for tp, off := range offsets {
			result.Committed[tp.String()] = off
		}
	}

	return result, nil
}

// process turns one record into an outcome. The only error it returns is a
// cancellation of ctx observed during the send, which aborts the batch.
func (e *Engine) process(ctx context.Context, rec *Record) (models.DeliveryResult, error) {
	out := models.DeliveryResult{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
	}
	logger := e.logger.With().
		Str("topic", rec.Topic).
		Int32("partition", rec.Partition).
		Int64("offset", rec.Offset).
		Logger()

	if rec.Value == nil {
		logger.Warn().Msg("worker: record has null value")
		return skipped(out, ReasonNullValue), nil
	}

	payload, err := e.validator.ParseAndValidate(ctx, rec.Value)
	if payload != nil {
		out.Number = payload.Number
		out.CompanyName = payload.Company()
	}
	if err != nil {
		reason := err.Error()
		if !errors.Is(err, ErrMalformedPayload) && !errors.Is(err, ErrInvalidPayload) {
			reason = ErrInvalidPayload.Error() + ": " + reason
		}
		logger.Warn().Err(err).Msg("worker: record rejected by validator")
		return skipped(out, reason), nil
	}

	if strings.TrimSpace(payload.Summary) == "" {
		logger.Warn().Str("number", payload.Number).Msg("worker: empty summary")
		return skipped(out, ReasonEmptySummary), nil
	}

	chatID, ok := recipients.Normalize(payload.Number)
	if !ok {
		logger.Warn().Str("number", payload.Number).Msg("worker: invalid number")
		return skipped(out, ReasonInvalidNumber), nil
	}

	if _, err := e.sender.SendText(ctx, chatID, payload.Summary, e.cfg.Session); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return out, fmt.Errorf("worker: send interrupted: %w", err)
		}
		logger.Warn().Str("number", payload.Number).Err(err).Msg("worker: gateway send failed")
		out.Status = models.OutcomeError
		out.Error = err.Error()
		return out, nil
	}

	logger.Info().Str("chat_id", chatID).Msg("worker: notification delivered")
	out.Status = models.OutcomeSuccess
	return out, nil
}

func (e *Engine) publishStatus(ctx context.Context, logger zerolog.Logger, batchID string, outcome models.DeliveryResult) {
	if e.statusPublisher == nil {
		return
	}
	event := models.StatusEvent{
		EventID:     uuid.NewString(),
		BatchID:     batchID,
		Topic:       outcome.Topic,
		Partition:   outcome.Partition,
		Offset:      outcome.Offset,
		Number:      outcome.Number,
		CompanyName: outcome.CompanyName,
		Status:      outcome.Status,
		Error:       outcome.Error,
		Timestamp:   e.now().UTC(),
	}
	if err := e.statusPublisher.PublishStatus(ctx, event); err != nil {
		logger.Error().
			Str("topic", outcome.Topic).
			Int32("partition", outcome.Partition).
			Int64("offset", outcome.Offset).
			Err(err).
			Msg("worker: failed to publish status event")
	}
}

func skipped(out models.DeliveryResult, reason string) models.DeliveryResult {
	out.Status = models.OutcomeSkipped
	out.Error = reason
	return out
}
