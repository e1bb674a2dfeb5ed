package speech

import (
	"context"
	"sync"
)

// defaultQueueSize applies when the configured queue size is not positive.
const defaultQueueSize = 8

// Speaker is the part of Client the Announcer drives.
type Speaker interface {
	Speak(ctx context.Context, text string) (string, error)
}

// Logger interface for announcer logging.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Announcer speaks queued texts one at a time on a background goroutine.
//
// Thread Safety:
//   - Announce is safe to call from any goroutine and never blocks.
//   - The first synthesis or write error is kept and reported by Err;
//     Failed is closed at the same moment so a run can stop early.
type Announcer struct {
	speaker Speaker
	log     Logger
	queue   chan string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
	err       error
	failed    chan struct{}
}

// NewAnnouncer starts the announcer worker.
func NewAnnouncer(speaker Speaker, queueSize int, log Logger) *Announcer {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Announcer{
		speaker: speaker,
		log:     log,
		queue:   make(chan string, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		failed:  make(chan struct{}),
	}

	a.wg.Add(1)
	go a.worker()

	return a
}

// Announce queues text for synthesis. It returns false when the queue is
// full or the announcer is closed; the text is dropped in that case.
func (a *Announcer) Announce(text string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return false
	}

	select {
	case a.queue <- text:
		return true
	default:
		a.log.Warn("announcement queue full, dropping text", "queue_size", cap(a.queue))
		return false
	}
}

// Close stops accepting texts, finishes the queued ones and waits for the
// worker. It returns Err.
func (a *Announcer) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()

		a.wg.Wait()
		a.cancel()
	})
	return a.Err()
}

// Failed is closed when the first announcement fails.
func (a *Announcer) Failed() <-chan struct{} {
	return a.failed
}

// Err returns the first error met by the worker, if any.
func (a *Announcer) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *Announcer) worker() {
	defer a.wg.Done()

	for text := range a.queue {
		if a.Err() != nil {
			// A failed write ends the run; skip the rest.
			continue
		}

		path, err := a.speaker.Speak(a.ctx, text)
		if err != nil {
			a.log.Error("announcement failed", "error", err)
			a.mu.Lock()
			if a.err == nil {
				a.err = err
				close(a.failed)
			}
			a.mu.Unlock()
			continue
		}
		a.log.Info("announcement written", "path", path)
	}
}
