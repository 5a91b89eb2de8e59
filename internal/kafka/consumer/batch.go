package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// ErrSessionEnded is returned by Commit when the group session was revoked
// before offsets could be marked.
var ErrSessionEnded = errors.New("kafka consumer: group session ended before commit")

// Batch is a single consumer group membership used for one fetch and at most
// one commit. Close must always be called.
type Batch struct {
	logger   zerolog.Logger
	group    sarama.ConsumerGroup
	topic    string
	groupID  string
	settings options

	ctx    context.Context
	cancel context.CancelFunc

	loopDone chan struct{}
	errsDone chan struct{}
	arrived  chan struct{}
	full     chan struct{}

	mu         sync.Mutex
	started    bool
	fetched    bool
	collecting bool
	buf        []Record
	session    sarama.ConsumerGroupSession
	loopErr    error
	pending    []error
	closeOnce  sync.Once
	closeErr   error
}

func newBatch(group sarama.ConsumerGroup, topic, groupID string, logger zerolog.Logger, settings options) *Batch {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Batch{
		logger:   logger,
		group:    group,
		topic:    topic,
		groupID:  groupID,
		settings: settings,
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
		errsDone: make(chan struct{}),
		arrived:  make(chan struct{}),
		full:     make(chan struct{}),
	}
	go b.consumeErrors()
	return b
}

// Fetch joins the group and collects records until the first arrivals have
// lingered, the batch is full, or timeout elapses. An empty result is valid.
func (b *Batch) Fetch(ctx context.Context, timeout time.Duration) ([]Record, error) {
	b.mu.Lock()
	if b.fetched {
		b.mu.Unlock()
		return nil, errors.New("kafka consumer: batch already fetched")
	}
	b.fetched = true
	b.collecting = true
	b.started = true
	b.mu.Unlock()

	go b.consumeLoop()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case <-ctx.Done():
		b.stopCollecting()
		return nil, ctx.Err()
	case <-deadline.C:
	case <-b.full:
	case <-b.loopDone:
	case <-b.arrived:
		linger := time.NewTimer(b.settings.linger)
		select {
		case <-ctx.Done():
			linger.Stop()
			b.stopCollecting()
			return nil, ctx.Err()
		case <-linger.C:
		case <-deadline.C:
			linger.Stop()
		case <-b.full:
			linger.Stop()
		}
	}

	records := b.stopCollecting()

	b.mu.Lock()
	loopErr := b.loopErr
	b.mu.Unlock()
	if loopErr != nil && len(records) == 0 {
		return nil, fmt.Errorf("kafka consumer: consume %s: %w", b.topic, loopErr)
	}

	b.logger.Debug().
		Str("topic", b.topic).
		Int("records", len(records)).
		Msg("kafka consumer fetch complete")
	return records, nil
}

// Commit marks each offset as the next one to read for its partition and
// flushes them to the group coordinator. Asynchronous commit failures that
// surface within the commit wait window are returned.
func (b *Batch) Commit(ctx context.Context, offsets map[Partition]int64) error {
	if len(offsets) == 0 {
		return nil
	}

	b.mu.Lock()
	sess := b.session
	b.pending = nil
	b.mu.Unlock()

	if sess == nil {
		return ErrSessionEnded
	}

	for p, off := range offsets {
		sess.MarkOffset(p.Topic, p.Partition, off, "")
	}
	sess.Commit()

	if wait := b.settings.commitWait; wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	b.mu.Lock()
	errs := b.pending
	b.pending = nil
	b.mu.Unlock()
	if len(errs) > 0 {
		return fmt.Errorf("kafka consumer: commit: %w", errors.Join(errs...))
	}

	b.logger.Debug().
		Str("group_id", b.groupID).
		Int("partitions", len(offsets)).
		Msg("kafka consumer offsets committed")
	return nil
}

// Close leaves the group and releases every connection. Uncommitted records
// will be redelivered to the next batch.
func (b *Batch) Close() error {
	b.closeOnce.Do(func() {
		b.cancel()
		b.closeErr = b.group.Close()

		b.mu.Lock()
		started := b.started
		b.mu.Unlock()
		if started {
			<-b.loopDone
		}
		<-b.errsDone
	})
	return b.closeErr
}

func (b *Batch) consumeLoop() {
	defer close(b.loopDone)
	for {
		err := b.group.Consume(b.ctx, []string{b.topic}, &groupHandler{batch: b})
		if b.ctx.Err() != nil {
			return
		}
		if err != nil {
			if !errors.Is(err, sarama.ErrClosedConsumerGroup) {
				b.mu.Lock()
				b.loopErr = err
				b.mu.Unlock()
			}
			return
		}
	}
}

func (b *Batch) consumeErrors() {
	defer close(b.errsDone)
	for err := range b.group.Errors() {
		if err == nil {
			continue
		}
		b.logger.Warn().Err(err).Msg("kafka consumer error")
		b.mu.Lock()
		b.pending = append(b.pending, err)
		b.mu.Unlock()
	}
}

func (b *Batch) offer(msg *sarama.ConsumerMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.collecting || len(b.buf) >= b.settings.maxRecords {
		return
	}
	b.buf = append(b.buf, fromMessage(msg))
	if len(b.buf) == 1 {
		close(b.arrived)
	}
	if len(b.buf) == b.settings.maxRecords {
		close(b.full)
	}
}

func (b *Batch) stopCollecting() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.collecting = false
	out := b.buf
	b.buf = nil
	if out == nil {
		out = []Record{}
	}
	return out
}

func (b *Batch) setSession(sess sarama.ConsumerGroupSession) {
	b.mu.Lock()
	b.session = sess
	b.mu.Unlock()
}

type groupHandler struct {
	batch *Batch
}

func (h *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.batch.setSession(session)
	h.batch.logger.Debug().
		Str("group_id", h.batch.groupID).
		Str("member_id", session.MemberID()).
		Int32("generation", session.GenerationID()).
		Msg("kafka consumer group session started")
	return nil
}

func (h *groupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.batch.setSession(nil)
	h.batch.logger.Debug().
		Str("group_id", h.batch.groupID).
		Msg("kafka consumer group session ended")
	return nil
}

// ConsumeClaim keeps the claim open until the session ends so a commit made
// after the fetch still has a live session to go through.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if msg != nil {
				h.batch.offer(msg)
			}
		case <-session.Context().Done():
			return nil
		}
	}
}
