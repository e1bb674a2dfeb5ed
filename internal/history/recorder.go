package history

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/chimp-relay/internal/dispatch"
)

// Recorder defaults.
const (
	defaultQueueSize = 64
	writeTimeout     = 5 * time.Second
)

// Logger interface for recorder logging.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder writes deliveries for one run on a background goroutine.
// It implements dispatch.Observer.
//
// Thread Safety:
//   - Observe never blocks; when the queue is full the delivery is dropped
//     and counted.
//   - Close drains the queue before returning.
type Recorder struct {
	repo  Repository
	runID string
	log   Logger
	queue chan dispatch.Delivery

	wg        sync.WaitGroup
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	dropped   atomic.Int64
}

// NewRecorder starts a recorder for runID.
func NewRecorder(repo Repository, runID string, queueSize int, log Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	r := &Recorder{
		repo:  repo,
		runID: runID,
		log:   log,
		queue: make(chan dispatch.Delivery, queueSize),
	}

	r.wg.Add(1)
	go r.worker()

	return r
}

// Observe queues a delivery for writing.
func (r *Recorder) Observe(d dispatch.Delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	select {
	case r.queue <- d:
	default:
		n := r.dropped.Add(1)
		r.log.Warn("history queue full, delivery not recorded", "seq", d.Seq, "dropped", n)
	}
}

// Dropped returns how many deliveries were not recorded because the queue was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting deliveries and waits until the queued ones are written.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()

		r.wg.Wait()
	})
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for d := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := r.repo.AddDelivery(ctx, Delivery{
			RunID:      r.runID,
			Seq:        d.Seq,
			Topic:      d.Topic,
			Payload:    d.Payload,
			QoS:        int(d.QoS),
			Duplicate:  d.Duplicate,
			ReceivedAt: d.ReceivedAt,
		})
		cancel()

		if err != nil {
			r.log.Error("recording delivery failed", "seq", d.Seq, "error", err)
		}
	}
}
