package worker

// Frontier tracks, per partition, the next offset that is safe to commit.
// An offset only moves the frontier when it is exactly the current frontier
// value; the first offset seen for a partition always does. Once a gap
// appears the partition stops advancing for the rest of the batch.
type Frontier struct {
	next map[TopicPartition]int64
}

// NewFrontier returns an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{next: make(map[TopicPartition]int64)}
}

// Advance records that offset on tp has an outcome and reports whether the
// frontier moved.
func (f *Frontier) Advance(tp TopicPartition, offset int64) bool {
	cur, seen := f.next[tp]
	if seen && offset != cur {
		return false
	}
	f.next[tp] = offset + 1
	return true
}

// Offsets returns a copy of the committable offsets.
func (f *Frontier) Offsets() map[TopicPartition]int64 {
	out := make(map[TopicPartition]int64, len(f.next))
	for tp, off := range f.next {
		out[tp] = off
	}
	return out
}

// Len returns the number of tracked partitions.
func (f *Frontier) Len() int {
	return len(f.next)
}
