package worker

import (
	"context"
	"time"

	"github.com/example/waha-notification-bridge/internal/kafka/consumer"
)

// KafkaSource adapts a Kafka consumer opener to the engine's SourceOpener.
func KafkaSource(opener *consumer.Opener) SourceOpener {
	return OpenerFunc(func(ctx context.Context) (Source, error) {
		batch, err := opener.Open(ctx)
		if err != nil {
			return nil, err
		}
		return &kafkaSource{batch: batch}, nil
	})
}

type kafkaSource struct {
	batch *consumer.Batch
}

func (s *kafkaSource) Fetch(ctx context.Context, timeout time.Duration) ([]Record, error) {
	recs, err := s.batch.Fetch(ctx, timeout)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, NewRecordFromConsumer(rec))
	}
	return out, nil
}

func (s *kafkaSource) Commit(ctx context.Context, offsets map[TopicPartition]int64) error {
	converted := make(map[consumer.Partition]int64, len(offsets))
	for tp, off := range offsets {
		converted[consumer.Partition{Topic: tp.Topic, Partition: tp.Partition}] = off
	}
	return s.batch.Commit(ctx, converted)
}

func (s *kafkaSource) Close() error {
	return s.batch.Close()
}

// NewRecordFromConsumer converts a Kafka consumer record into a worker record.
func NewRecordFromConsumer(rec consumer.Record) Record {
	return Record{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       rec.Key,
		Value:     rec.Value,
		Timestamp: rec.Timestamp,
		Headers:   rec.Headers,
	}
}
