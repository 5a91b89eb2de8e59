package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/waha-notification-bridge/internal/models"
)

var errProducerNotInitialised = errors.New("kafka publisher: producer not initialised")

// SyncProducer captures the subset of producer behaviour required by the Kafka publishers.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// ErrProducerNotInitialised exposes the sentinel error for callers and tests.
func ErrProducerNotInitialised() error {
	return errProducerNotInitialised
}

// StatusPublisher emits delivery status events to a Kafka topic using the
// shared producer.
type StatusPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewStatusPublisher constructs a StatusPublisher instance.
func NewStatusPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *StatusPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &StatusPublisher{
		producer: prod,
		topic:    topic,
		logger:   logger,
	}
}

// PublishStatus writes the supplied status event to Kafka synchronously. The
// message key identifies the source record so repeated deliveries of the
// same record land on the same partition.
func (p *StatusPublisher) PublishStatus(_ context.Context, event models.StatusEvent) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialised
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal status event: %w", err)
	}

	key := []byte(fmt.Sprintf("%s/%d/%d", event.Topic, event.Partition, event.Offset))
	headers := map[string][]byte{
		"content-type": []byte("application/json"),
		"batch-id":     []byte(event.BatchID),
	}

	if err := p.producer.PublishSync(p.topic, key, headers, payload); err != nil {
		return fmt.Errorf("kafka publisher: publish status event: %w", err)
	}
	p.logger.Debug().
		Str("status_topic", p.topic).
		Str("status", event.Status).
		Msg("status event published")
	return nil
}
