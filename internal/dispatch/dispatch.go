package dispatch

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/waha-notification-bridge/internal/models"
	"github.com/example/waha-notification-bridge/internal/worker"
)

// ErrNoRecipients is returned when the recipient list resolves to nothing.
var ErrNoRecipients = errors.New("no valid recipients found")

// RecipientSource yields the chat addresses a bulk send goes to.
type RecipientSource interface {
	Recipients() ([]string, error)
}

// Recorder counts per-recipient outcomes.
type Recorder interface {
	ObserveDelivery(source, outcome string)
}

// Option customises the dispatcher.
type Option func(*Dispatcher)

// WithMetrics attaches an outcome recorder.
func WithMetrics(r Recorder) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.metrics = r
		}
	}
}

// Dispatcher sends one text to every recipient, one at a time, in list order.
// A failed send is recorded and the loop moves on.
type Dispatcher struct {
	sender     worker.Sender
	recipients RecipientSource
	metrics    Recorder
	logger     zerolog.Logger
}

// New constructs a Dispatcher.
func New(sender worker.Sender, recipients RecipientSource, logger zerolog.Logger, opts ...Option) (*Dispatcher, error) {
	if sender == nil {
		return nil, errors.New("dispatch: sender dependency is required")
	}
	if recipients == nil {
		return nil, errors.New("dispatch: recipient source is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	d := &Dispatcher{
		sender:     sender,
		recipients: recipients,
		logger:     logger.With().Str("component", "bulk_dispatcher").Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// SendBulk delivers text to every recipient. Cancellation of ctx stops the
// loop between sends and is returned as an error.
func (d *Dispatcher) SendBulk(ctx context.Context, text, session string) (*models.BulkResult, error) {
	list, err := d.recipients.Recipients()
	if err != nil {
		return nil, fmt.Errorf("dispatch: load recipients: %w", err)
	}
	if len(list) == 0 {
		return nil, ErrNoRecipients
	}

	result := &models.BulkResult{
		Status:  "success",
		Results: make([]models.RecipientResult, 0, len(list)),
	}

	for _, chatID := range list {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("dispatch: bulk send interrupted after %d of %d: %w", len(result.Results), len(list), err)
		}

		if _, err := d.sender.SendText(ctx, chatID, text, session); err != nil {
			d.logger.Warn().Str("chat_id", chatID).Err(err).Msg("bulk send failed for recipient")
			result.Failed++
			result.Results = append(result.Results, models.RecipientResult{ChatID: chatID, Status: models.OutcomeError, Error: err.Error()})
			d.observe(models.OutcomeError)
			continue
		}

		result.Sent++
		result.Results = append(result.Results, models.RecipientResult{ChatID: chatID, Status: models.OutcomeSuccess})
		d.observe(models.OutcomeSuccess)
	}

	d.logger.Info().
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Msg("bulk send complete")
	return result, nil
}

func (d *Dispatcher) observe(outcome string) {
	if d.metrics != nil {
		d.metrics.ObserveDelivery("bulk", outcome)
	}
}
