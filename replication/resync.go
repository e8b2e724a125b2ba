package replication

import "sync"

const (
	resyncQueueOccupancyMetricKey = "replication_resync_queue_occupancy"
	resyncQueueCollapseMetricKey  = "replication_resync_queue_collapsed_total"

	// DefaultResyncCapacity bounds the number of per-entity requests a channel
	// buffers between two outbound passes.
	DefaultResyncCapacity = 256
)

// ResyncRequest asks the Outbound Pipeline to resend an attribute even though
// it did not change. All covers every tracked entity of the channel.
type ResyncRequest struct {
	Entity EntityID
	All    bool
}

// ResyncQueue is a bounded, single-consumer queue of forced-resync requests.
// Draining empties it. When the ring overflows the pending requests collapse
// into a single All request so no signal is lost. Producers may run on any
// goroutine.
type ResyncQueue struct {
	mu      sync.Mutex
	data    []ResyncRequest
	head    int
	tail    int
	count   int
	all     bool
	metrics metricSink
}

// NewResyncQueue constructs a queue holding up to capacity entity requests.
func NewResyncQueue(capacity int, metrics metricSink) *ResyncQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &ResyncQueue{
		data:    make([]ResyncRequest, capacity),
		metrics: metrics,
	}
}

// Push stages a request.
func (q *ResyncQueue) Push(req ResyncRequest) {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.all {
		return
	}
	if req.All {
		q.collapseLocked()
		return
	}
	if q.count == len(q.data) {
		if q.metrics != nil {
			q.metrics.Add(resyncQueueCollapseMetricKey, 1)
		}
		q.collapseLocked()
		return
	}
	q.data[q.tail] = req
	q.tail = (q.tail + 1) % len(q.data)
	q.count++
	q.storeOccupancyLocked()
}

// Drain returns the staged requests in FIFO order and clears the queue. A
// collapsed queue drains as a single All request.
func (q *ResyncQueue) Drain() []ResyncRequest {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.all {
		q.all = false
		q.resetLocked()
		return []ResyncRequest{{All: true}}
	}
	if q.count == 0 {
		return nil
	}
	requests := make([]ResyncRequest, q.count)
	for i := 0; i < q.count; i++ {
		requests[i] = q.data[(q.head+i)%len(q.data)]
	}
	q.resetLocked()
	return requests
}

// Len reports the number of staged requests; a collapsed queue reports one.
func (q *ResyncQueue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.all {
		return 1
	}
	return q.count
}

func (q *ResyncQueue) collapseLocked() {
	q.all = true
	q.resetLocked()
}

func (q *ResyncQueue) resetLocked() {
	q.head = 0
	q.tail = 0
	q.count = 0
	q.storeOccupancyLocked()
}

func (q *ResyncQueue) storeOccupancyLocked() {
	if q.metrics == nil {
		return
	}
	occupancy := uint64(q.count)
	if q.all {
		occupancy = 1
	}
	q.metrics.Store(resyncQueueOccupancyMetricKey, occupancy)
}
