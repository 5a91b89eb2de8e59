package consumer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

const (
	defaultSessionTimeout   = 30 * time.Second
	defaultHeartbeat        = 3 * time.Second
	defaultRebalanceTimeout = 30 * time.Second
	defaultDialTimeout      = 10 * time.Second
	defaultLinger           = 250 * time.Millisecond
	defaultMaxRecords       = 500
	defaultCommitWait       = 100 * time.Millisecond
)

// Option customises the opener during construction.
type Option func(*options)

type options struct {
	clientID   string
	linger     time.Duration
	maxRecords int
	commitWait time.Duration
	newGroup   groupFactory
}

type groupFactory func(brokers []string, groupID string, cfg *sarama.Config) (sarama.ConsumerGroup, error)

// WithClientID sets the Kafka client id.
func WithClientID(id string) Option {
	return func(o *options) {
		if strings.TrimSpace(id) != "" {
			o.clientID = strings.TrimSpace(id)
		}
	}
}

// WithLinger sets how long a fetch keeps collecting after the first record
// arrives.
func WithLinger(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.linger = d
		}
	}
}

// WithMaxRecords caps the number of records a single fetch returns.
func WithMaxRecords(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRecords = n
		}
	}
}

// WithCommitWait sets how long Commit waits for asynchronous commit errors.
func WithCommitWait(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.commitWait = d
		}
	}
}

// Record represents a Kafka message fetched by a batch. Value is nil when the
// message carried no payload.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
	Headers   map[string][]byte
}

// Partition identifies a topic partition for commits.
type Partition struct {
	Topic     string
	Partition int32
}

// Opener creates one consumer group membership per batch. Nothing is shared
// between batches.
type Opener struct {
	logger   zerolog.Logger
	brokers  []string
	topic    string
	groupID  string
	settings options
}

// New constructs an opener for the supplied brokers, topic and consumer group.
func New(brokers []string, topic, groupID string, logger zerolog.Logger, opts ...Option) (*Opener, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka consumer: at least one broker is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka consumer: topic is required")
	}
	if strings.TrimSpace(groupID) == "" {
		return nil, errors.New("kafka consumer: group id is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	settings := options{
		linger:     defaultLinger,
		maxRecords: defaultMaxRecords,
		commitWait: defaultCommitWait,
		newGroup:   sarama.NewConsumerGroup,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	return &Opener{
		logger:   logger.With().Str("component", "kafka_consumer").Logger(),
		brokers:  append([]string(nil), brokers...),
		topic:    topic,
		groupID:  groupID,
		settings: settings,
	}, nil
}

// Open connects to the cluster and prepares a consumer group. Group
// membership begins with the first Fetch.
func (o *Opener) Open(ctx context.Context) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := o.config()
	group, err := o.settings.newGroup(o.brokers, o.groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: connect to %s: %w", strings.Join(o.brokers, ","), err)
	}

	o.logger.Debug().
		Strs("brokers", o.brokers).
		Str("topic", o.topic).
		Str("group_id", o.groupID).
		Msg("kafka consumer group opened")

	return newBatch(group, o.topic, o.groupID, o.logger, o.settings), nil
}

func (o *Opener) config() *sarama.Config {
	cfg := defaultConfig()
	if o.settings.clientID != "" {
		cfg.ClientID = o.settings.clientID
	}
	return cfg
}

func defaultConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = "waha-notification-bridge"
	cfg.Net.DialTimeout = defaultDialTimeout
	cfg.Metadata.Retry.Max = 1

	cfg.Consumer.Group.Session.Timeout = defaultSessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = defaultHeartbeat
	cfg.Consumer.Group.Rebalance.Timeout = defaultRebalanceTimeout
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Offsets.AutoCommit.Enable = false
	cfg.Consumer.Return.Errors = true

	return cfg
}

func fromMessage(msg *sarama.ConsumerMessage) Record {
	return Record{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       cloneBytes(msg.Key),
		Value:     cloneBytes(msg.Value),
		Timestamp: msg.Timestamp,
		Headers:   fromHeaders(msg.Headers),
	}
}

// cloneBytes keeps the distinction between a nil and an empty slice.
func cloneBytes(src []byte) []byte {
	if src == nil {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}

func fromHeaders(headers []*sarama.RecordHeader) map[string][]byte {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string][]byte, len(headers))
	for _, h := range headers {
		if h == nil || len(h.Key) == 0 {
			continue
		}
		out[string(h.Key)] = cloneBytes(h.Value)
	}
	return out
}
