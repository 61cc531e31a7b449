package console

import "math"

// pendingRead is a Tread waiting for data.
type pendingRead struct {
	tag   uint16
	count uint32
}

// ReadQueue holds the deferred reads of one stream in arrival order.
type ReadQueue struct {
	reads   []pendingRead
	minimum uint32
	max     int
}

// NewReadQueue returns a queue holding at most max reads; zero or less
// means no limit.
func NewReadQueue(max int) *ReadQueue {
	return &ReadQueue{minimum: math.MaxUint32, max: max}
}

// Enqueue records a deferred read of count bytes.
func (q *ReadQueue) Enqueue(tag uint16, count uint32) error {
	if q.max > 0 && len(q.reads) >= q.max {
		return errNoMem
	}
	if count < q.minimum {
		q.minimum = count
	}
	q.reads = append(q.reads, pendingRead{tag: tag, count: count})
	return nil
}

// Remove drops the read tagged tag, if queued.
func (q *ReadQueue) Remove(tag uint16) {
	for i, r := range q.reads {
		if r.tag != tag {
			continue
		}
		q.reads = append(q.reads[:i], q.reads[i+1:]...)
		q.minimum = math.MaxUint32
		for _, r := range q.reads {
			if r.count < q.minimum {
				q.minimum = r.count
			}
		}
		return
	}
}

// Drain takes one batch out of ring for every queued read: the same data
// answers each tag, in enqueue order. It returns nothing and leaves the
// queue alone when there is nothing to deliver.
func (q *ReadQueue) Drain(ring *Ring) ([]uint16, []byte) {
	if len(q.reads) == 0 || ring == nil || ring.Empty() {
		return nil, nil
	}
	data := ring.Consume(int(q.minimum))
	tags := make([]uint16, len(q.reads))
	for i, r := range q.reads {
		tags[i] = r.tag
	}
	q.reads = q.reads[:0]
	q.minimum = math.MaxUint32
	return tags, data
}

// Len is the number of queued reads.
func (q *ReadQueue) Len() int { return len(q.reads) }

// Minimum is the smallest count among the queued reads.
func (q *ReadQueue) Minimum() uint32 { return q.minimum }
