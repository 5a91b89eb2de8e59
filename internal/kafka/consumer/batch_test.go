package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

type fakeClaim struct {
	topic     string
	partition int32
	messages  chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return c.topic }
func (c *fakeClaim) Partition() int32                         { return c.partition }
func (c *fakeClaim) InitialOffset() int64                     { return sarama.OffsetNewest }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

type fakeSession struct {
	ctx      context.Context
	onCommit func()

	mu      sync.Mutex
	marked  map[Partition]int64
	commits int
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }
func (s *fakeSession) MemberID() string           { return "member-1" }
func (s *fakeSession) GenerationID() int32        { return 1 }
func (s *fakeSession) MarkOffset(topic string, partition int32, offset int64, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked[Partition{Topic: topic, Partition: partition}] = offset
}
func (s *fakeSession) Commit() {
	s.mu.Lock()
	s.commits++
	s.mu.Unlock()
	if s.onCommit != nil {
		s.onCommit()
	}
}
func (s *fakeSession) ResetOffset(string, int32, int64, string)    {}
func (s *fakeSession) MarkMessage(*sarama.ConsumerMessage, string) {}
func (s *fakeSession) Context() context.Context                    { return s.ctx }

type fakeGroup struct {
	claims     []*fakeClaim
	consumeErr error
	onCommit   func()
	errs       chan error

	mu      sync.Mutex
	session *fakeSession
	closed  bool
}

func newFakeGroup(claims ...*fakeClaim) *fakeGroup {
	return &fakeGroup{claims: claims, errs: make(chan error, 4)}
}

func (g *fakeGroup) Consume(ctx context.Context, _ []string, handler sarama.ConsumerGroupHandler) error {
	if g.consumeErr != nil {
		return g.consumeErr
	}
	sess := &fakeSession{ctx: ctx, onCommit: g.onCommit, marked: make(map[Partition]int64)}
	g.mu.Lock()
	g.session = sess
	g.mu.Unlock()

	if err := handler.Setup(sess); err != nil {
		return err
	}
	var wg sync.WaitGroup
	for _, claim := range g.claims {
		wg.Add(1)
		go func(c *fakeClaim) {
			defer wg.Done()
			_ = handler.ConsumeClaim(sess, c)
		}(claim)
	}
	<-ctx.Done()
	wg.Wait()
	return handler.Cleanup(sess)
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }
func (g *fakeGroup) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		close(g.errs)
	}
	return nil
}
func (g *fakeGroup) Pause(map[string][]int32)  {}
func (g *fakeGroup) Resume(map[string][]int32) {}
func (g *fakeGroup) PauseAll()                 {}
func (g *fakeGroup) ResumeAll()                {}

func (g *fakeGroup) currentSession() *fakeSession {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

func claimWith(topic string, partition int32, msgs ...*sarama.ConsumerMessage) *fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	return &fakeClaim{topic: topic, partition: partition, messages: ch}
}

func openWith(t *testing.T, group *fakeGroup, opts ...Option) *Batch {
	t.Helper()
	opts = append(opts, func(o *options) {
		o.newGroup = func([]string, string, *sarama.Config) (sarama.ConsumerGroup, error) { return group, nil }
	})
	opener, err := New([]string{"localhost:9092"}, "notification-payload", "group", zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("new opener: %v", err)
	}
	batch, err := opener.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = batch.Close() })
	return batch
}

func TestFetchCollectsAcrossPartitions(t *testing.T) {
	group := newFakeGroup(
		claimWith("notification-payload", 0,
			&sarama.ConsumerMessage{Topic: "notification-payload", Partition: 0, Offset: 5, Value: []byte(`{}`)},
			&sarama.ConsumerMessage{Topic: "notification-payload", Partition: 0, Offset: 6, Value: []byte{}},
		),
		claimWith("notification-payload", 1,
			&sarama.ConsumerMessage{Topic: "notification-payload", Partition: 1, Offset: 3},
		),
	)
	batch := openWith(t, group, WithLinger(50*time.Millisecond), WithCommitWait(0))

	records, err := batch.Fetch(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	var sawNil, sawEmpty bool
	for _, r := range records {
		if r.Partition == 1 && r.Value == nil {
			sawNil = true
		}
		if r.Offset == 6 && r.Value != nil && len(r.Value) == 0 {
			sawEmpty = true
		}
	}
	if !sawNil || !sawEmpty {
		t.Fatalf("expected nil and empty values to stay distinct: %+v", records)
	}

	offsets := map[Partition]int64{
		{Topic: "notification-payload", Partition: 0}: 7,
		{Topic: "notification-payload", Partition: 1}: 4,
	}
	if err := batch.Commit(context.Background(), offsets); err != nil {
		t.Fatalf("commit: %v", err)
	}
	sess := group.currentSession()
	if sess.commits != 1 || sess.marked[Partition{Topic: "notification-payload", Partition: 0}] != 7 {
		t.Fatalf("unexpected session state: commits=%d marked=%v", sess.commits, sess.marked)
	}
}

func TestFetchTimesOutEmpty(t *testing.T) {
	group := newFakeGroup(claimWith("notification-payload", 0))
	batch := openWith(t, group)

	start := time.Now()
	records, err := batch.Fetch(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 0 || records == nil {
		t.Fatalf("expected empty non-nil slice, got %v", records)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Fatalf("fetch returned before the poll timeout")
	}
}

func TestFetchStopsAtMaxRecords(t *testing.T) {
	group := newFakeGroup(claimWith("notification-payload", 0,
		&sarama.ConsumerMessage{Topic: "notification-payload", Offset: 1, Value: []byte("a")},
		&sarama.ConsumerMessage{Topic: "notification-payload", Offset: 2, Value: []byte("b")},
		&sarama.ConsumerMessage{Topic: "notification-payload", Offset: 3, Value: []byte("c")},
	))
	batch := openWith(t, group, WithMaxRecords(2), WithLinger(time.Second))

	records, err := batch.Fetch(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 2 || records[0].Offset != 1 || records[1].Offset != 2 {
		t.Fatalf("expected the first two records, got %+v", records)
	}
}

func TestFetchSurfacesConsumeError(t *testing.T) {
	group := newFakeGroup()
	group.consumeErr = errors.New("coordinator not available")
	batch := openWith(t, group)

	if _, err := batch.Fetch(context.Background(), time.Second); err == nil {
		t.Fatalf("expected consume error")
	}
}

func TestCommitReportsAsyncErrors(t *testing.T) {
	group := newFakeGroup(claimWith("notification-payload", 0,
		&sarama.ConsumerMessage{Topic: "notification-payload", Offset: 1, Value: []byte("a")},
	))
	group.onCommit = func() { group.errs <- errors.New("offset commit rejected") }
	batch := openWith(t, group, WithLinger(0), WithCommitWait(100*time.Millisecond))

	if _, err := batch.Fetch(context.Background(), time.Second); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	err := batch.Commit(context.Background(), map[Partition]int64{{Topic: "notification-payload", Partition: 0}: 2})
	if err == nil {
		t.Fatalf("expected commit error")
	}
}

func TestCommitWithoutSession(t *testing.T) {
	batch := openWith(t, newFakeGroup())
	err := batch.Commit(context.Background(), map[Partition]int64{{Topic: "t", Partition: 0}: 1})
	if !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	group := newFakeGroup(claimWith("notification-payload", 0))
	batch := openWith(t, group)
	if _, err := batch.Fetch(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := batch.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := batch.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !group.closed {
		t.Fatalf("expected group to be closed")
	}
}

func TestOpenFailure(t *testing.T) {
	opener, err := New([]string{"localhost:9092"}, "topic", "group", zerolog.Nop(), func(o *options) {
		o.newGroup = func([]string, string, *sarama.Config) (sarama.ConsumerGroup, error) {
			return nil, sarama.ErrOutOfBrokers
		}
	})
	if err != nil {
		t.Fatalf("new opener: %v", err)
	}
	if _, err := opener.Open(context.Background()); !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected ErrOutOfBrokers, got %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, "topic", "group", zerolog.Nop()); err == nil {
		t.Fatalf("expected broker error")
	}
	if _, err := New([]string{"b:9092"}, "", "group", zerolog.Nop()); err == nil {
		t.Fatalf("expected topic error")
	}
	if _, err := New([]string{"b:9092"}, "topic", "", zerolog.Nop()); err == nil {
		t.Fatalf("expected group error")
	}
}

func TestConfigUsesManualCommit(t *testing.T) {
	opener, err := New([]string{"b:9092"}, "topic", "group", zerolog.Nop(), WithClientID("bridge-test"))
	if err != nil {
		t.Fatalf("new opener: %v", err)
	}
	cfg := opener.config()
	if cfg.Consumer.Offsets.AutoCommit.Enable {
		t.Fatalf("auto commit must be disabled")
	}
	if cfg.ClientID != "bridge-test" {
		t.Fatalf("unexpected client id %s", cfg.ClientID)
	}
	if defaultConfig().Consumer.Offsets.Initial != sarama.OffsetNewest {
		t.Fatalf("default initial offset must be newest")
	}
}
