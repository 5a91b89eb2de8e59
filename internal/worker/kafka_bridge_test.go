package worker_test

import (
	"testing"
	"time"

	"github.com/example/waha-notification-bridge/internal/kafka/consumer"
	"github.com/example/waha-notification-bridge/internal/worker"
)

func TestNewRecordFromConsumerKeepsNilValue(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	rec := worker.NewRecordFromConsumer(consumer.Record{
		Topic:     "notification-payload",
		Partition: 2,
		Offset:    9,
		Key:       []byte("k"),
		Timestamp: ts,
	})

	if rec.Value != nil {
		t.Fatalf("expected nil value to be preserved")
	}
	if rec.TopicPartition() != (worker.TopicPartition{Topic: "notification-payload", Partition: 2}) {
		t.Fatalf("unexpected partition %v", rec.TopicPartition())
	}
	if rec.Offset != 9 || !rec.Timestamp.Equal(ts) || string(rec.Key) != "k" {
		t.Fatalf("unexpected record %+v", rec)
	}
}
