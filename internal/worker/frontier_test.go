package worker_test

import (
	"strconv"
	"testing"

	"github.com/example/waha-notification-bridge/internal/worker"
)

func TestFrontierFirstRecordAlwaysAdvances(t *testing.T) {
	f := worker.NewFrontier()
	tp := worker.TopicPartition{Topic: "t", Partition: 2}

	if !f.Advance(tp, 42) {
		t.Fatalf("first offset must advance")
	}
	if f.Offsets()[tp] != 43 {
		t.Fatalf("expected 43, got %d", f.Offsets()[tp])
	}
}

func TestFrontierStopsAtGap(t *testing.T) {
	f := worker.NewFrontier()
	tp := worker.TopicPartition{Topic: "t", Partition: 0}

	f.Advance(tp, 5)
	f.Advance(tp, 6)
	if f.Advance(tp, 8) {
		t.Fatalf("offset after a gap must not advance")
	}
	if f.Advance(tp, 9) {
		t.Fatalf("partition must stay halted after a gap")
	}
	if f.Offsets()[tp] != 7 {
		t.Fatalf("expected 7, got %d", f.Offsets()[tp])
	}
}

func TestFrontierOffsetsIsCopy(t *testing.T) {
	f := worker.NewFrontier()
	tp := worker.TopicPartition{Topic: "t", Partition: 0}
	f.Advance(tp, 1)

	out := f.Offsets()
	out[tp] = 100
	if f.Offsets()[tp] != 2 {
		t.Fatalf("mutating the copy must not affect the frontier")
	}
	if f.Len() != 1 {
		t.Fatalf("expected one tracked partition")
	}
}

func TestSortRecords(t *testing.T) {
	records := []worker.Record{
		{Topic: "b", Partition: 0, Offset: 1},
		{Topic: "a", Partition: 1, Offset: 0},
		{Topic: "a", Partition: 0, Offset: 9},
		{Topic: "a", Partition: 0, Offset: 3},
	}
	worker.SortRecords(records)

	want := []string{"a/0@3", "a/0@9", "a/1@0", "b/0@1"}
	for i, r := range records {
		got := r.TopicPartition().String() + "@" + strconv.FormatInt(r.Offset, 10)
		if got != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], got)
		}
	}
}

