package actuator

import (
	"sync"
	"time"
)

// outputLine is the part of a GPIO line the blinker drives.
// *gpiocdev.Line satisfies it.
type outputLine interface {
	SetValue(value int) error
	Close() error
}

// blinker plays blink patterns on an output line from its own goroutine.
//
// Activate hands the pattern over through a one-slot mailbox; a pattern
// arriving while another is playing replaces it.
type blinker struct {
	line    outputLine
	log     Logger
	mailbox chan BlinkSpec
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newBlinker(line outputLine, log Logger) *blinker {
	b := &blinker{
		line:    line,
		log:     log,
		mailbox: make(chan BlinkSpec, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

// Activate queues the pattern without blocking.
func (b *blinker) Activate(spec BlinkSpec) {
	select {
	case <-b.stop:
		return
	default:
	}

	for {
		select {
		case b.mailbox <- spec:
			return
		default:
		}
		// Mailbox holds an older pattern that has not started yet; drop it.
		select {
		case <-b.mailbox:
		default:
		}
	}
}

func (b *blinker) Available() bool { return true }

// Close stops the blinker, switches the light off and releases the line.
func (b *blinker) Close() error {
	var err error
	b.once.Do(func() {
		close(b.stop)
		<-b.done
		b.set(0)
		err = b.line.Close()
	})
	return err
}

func (b *blinker) run() {
	defer close(b.done)

	for {
		select {
		case <-b.stop:
			return
		case spec := <-b.mailbox:
			for next := b.play(spec); next != nil; next = b.play(*next) {
			}
		}
	}
}

// play runs one pattern. It returns the pattern that interrupted it, or nil
// when the pattern finished or the blinker is stopping.
func (b *blinker) play(spec BlinkSpec) *BlinkSpec {
	for i := 0; i < spec.RepeatCount; i++ {
		b.set(1)
		if next, interrupted := b.sleep(spec.OnDuration); interrupted {
			b.set(0)
			return next
		}
		b.set(0)
		if next, interrupted := b.sleep(spec.OffDuration); interrupted {
			return next
		}
	}
	return nil
}

// sleep waits for d, returning early on a new pattern or stop.
func (b *blinker) sleep(d time.Duration) (*BlinkSpec, bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil, false
	case spec := <-b.mailbox:
		return &spec, true
	case <-b.stop:
		return nil, true
	}
}

func (b *blinker) set(value int) {
	if err := b.line.SetValue(value); err != nil {
		b.log.Warn("GPIO write failed", "value", value, "error", err)
	}
}
