package actuator

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/chimp-relay/internal/infrastructure/config"
)

// recordingLogger captures log messages for assertions.
type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordingLogger) Info(msg string, _ ...any) { l.add(msg) }
func (l *recordingLogger) Warn(msg string, _ ...any) { l.add(msg) }

func (l *recordingLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *recordingLogger) count(msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.msgs {
		if m == msg {
			n++
		}
	}
	return n
}

// fakeLine records every value written to it.
type fakeLine struct {
	mu     sync.Mutex
	values []int
	closed bool
	err    error
}

func (f *fakeLine) SetValue(v int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = append(f.values, v)
	return f.err
}

func (f *fakeLine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeLine) snapshot() ([]int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.values...), f.closed
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func TestNew_DisabledIsUnavailable(t *testing.T) {
	log := &recordingLogger{}

	d := New(config.ActuatorConfig{Enabled: false}, log)
	defer d.Close()

	if d.Available() {
		t.Error("Available() = true with GPIO disabled, want false")
	}
}

func TestUnavailable_LogsEveryActivation(t *testing.T) {
	log := &recordingLogger{}
	d := Unavailable(log)

	for i := 0; i < 4; i++ {
		d.Activate(BlinkSpec{OnDuration: time.Millisecond, RepeatCount: 1})
	}

	if got := log.count("Shaking not available"); got != 4 {
		t.Errorf("\"Shaking not available\" logged %d times, want 4", got)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestBlinkFromConfig(t *testing.T) {
	spec := BlinkFromConfig(config.BlinkConfig{OnMS: 100, OffMS: 50, Repeat: 10})

	want := BlinkSpec{
		OnDuration:  100 * time.Millisecond,
		OffDuration: 50 * time.Millisecond,
		RepeatCount: 10,
	}
	if spec != want {
		t.Errorf("BlinkFromConfig() = %+v, want %+v", spec, want)
	}
}

func TestBlinker_PlaysPattern(t *testing.T) {
	line := &fakeLine{}
	b := newBlinker(line, &recordingLogger{})
	defer b.Close()

	b.Activate(BlinkSpec{OnDuration: time.Millisecond, OffDuration: time.Millisecond, RepeatCount: 3})

	waitFor(t, func() bool {
		values, _ := line.snapshot()
		return len(values) >= 6
	})

	values, _ := line.snapshot()
	want := []int{1, 0, 1, 0, 1, 0}
	for i, v := range want {
		if values[i] != v {
			t.Fatalf("line values = %v, want prefix %v", values, want)
		}
	}
}

func TestBlinker_ActivateDoesNotBlock(t *testing.T) {
	line := &fakeLine{}
	b := newBlinker(line, &recordingLogger{})
	defer b.Close()

	long := BlinkSpec{OnDuration: time.Second, OffDuration: time.Second, RepeatCount: 10}

	start := time.Now()
	for i := 0; i < 100; i++ {
		b.Activate(long)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("100 Activate() calls took %v, want non-blocking", elapsed)
	}
}

func TestBlinker_CloseTurnsLightOff(t *testing.T) {
	line := &fakeLine{}
	b := newBlinker(line, &recordingLogger{})

	b.Activate(BlinkSpec{OnDuration: time.Second, OffDuration: time.Second, RepeatCount: 1})
	waitFor(t, func() bool {
		values, _ := line.snapshot()
		return len(values) >= 1
	})

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	values, closed := line.snapshot()
	if !closed {
		t.Error("line not closed after Close()")
	}
	if values[len(values)-1] != 0 {
		t.Errorf("last line value = %d, want 0", values[len(values)-1])
	}

	// Activate after Close is ignored
	b.Activate(BlinkSpec{RepeatCount: 1})
	if err := b.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestBlinker_WriteErrorsAreLogged(t *testing.T) {
	line := &fakeLine{err: errors.New("device busy")}
	log := &recordingLogger{}
	b := newBlinker(line, log)
	defer b.Close()

	b.Activate(BlinkSpec{OnDuration: time.Millisecond, OffDuration: time.Millisecond, RepeatCount: 1})

	waitFor(t, func() bool { return log.count("GPIO write failed") >= 2 })
}
