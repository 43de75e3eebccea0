package core

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeOut struct {
	mu     sync.Mutex
	values []int
	closed bool
	setCh  chan int
}

func (l *fakeOut) SetValue(v int) error {
	l.mu.Lock()
	l.values = append(l.values, v)
	ch := l.setCh
	l.mu.Unlock()
	if ch != nil {
		select {
		case ch <- v:
		default:
		}
	}
	return nil
}

func (l *fakeOut) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeOut) lastValue() (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.values) == 0 {
		return 0, false
	}
	return l.values[len(l.values)-1], true
}

type fakeIn struct {
	mu     sync.Mutex
	closed bool
}

func (l *fakeIn) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeIn) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

type fakeLines struct {
	out    *fakeOut
	in     *fakeIn
	onEdge func(time.Duration)
}

func installFakeLines(t *testing.T) *fakeLines {
	t.Helper()
	f := &fakeLines{out: &fakeOut{setCh: make(chan int, 64)}, in: &fakeIn{}}
	old := openLinesFn
	openLinesFn = func(cfg Config, onEdge func(time.Duration)) (outputLine, edgeLine, error) {
		f.onEdge = onEdge
		return f.out, f.in, nil
	}
	t.Cleanup(func() { openLinesFn = old })
	return f
}

func TestStartFailureLeavesNothingArmed(t *testing.T) {
	old := openLinesFn
	openLinesFn = func(cfg Config, onEdge func(time.Duration)) (outputLine, edgeLine, error) {
		return nil, nil, errors.New("line busy")
	}
	t.Cleanup(func() { openLinesFn = old })

	svc := New(Config{DefaultDuty: 50})
	if err := svc.Start(); err == nil {
		t.Fatalf("expected start error")
	}
	// Close after a failed start must be a no-op, not a panic.
	svc.Close()
}

func TestEdgeEventsFlowIntoSnapshot(t *testing.T) {
	f := installFakeLines(t)

	svc := New(Config{DefaultDuty: 50, CarrierPeriod: time.Second})
	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Close()

	base := 2 * time.Second
	f.onEdge(base)
	f.onEdge(base + 1500*time.Microsecond)

	snap := svc.Snapshot()
	if snap.PeriodMicros != 1500 {
		t.Fatalf("period=%d want 1500", snap.PeriodMicros)
	}
	if snap.Edges != 2 {
		t.Fatalf("edges=%d want 2", snap.Edges)
	}
	if snap.LastEdgeNanos != int64(base+1500*time.Microsecond) {
		t.Fatalf("last edge=%d", snap.LastEdgeNanos)
	}
}

func TestDutyWriteThroughDevice(t *testing.T) {
	installFakeLines(t)

	svc := New(Config{DefaultDuty: 50, CarrierPeriod: time.Second})
	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Close()

	if _, err := svc.Device().Write([]byte("30")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := svc.Snapshot().DutyPercent; got != 30 {
		t.Fatalf("duty=%d want 30", got)
	}

	if _, err := svc.Device().Write([]byte("bogus")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	snap := svc.Snapshot()
	if snap.DutyPercent != 30 {
		t.Fatalf("duty=%d want 30 after unparsable write", snap.DutyPercent)
	}
	if snap.DutyWritesRejected != 1 {
		t.Fatalf("rejected=%d want 1", snap.DutyWritesRejected)
	}
}

func TestCloseStopsTicksDetachesEdgeAndParksLineLow(t *testing.T) {
	f := installFakeLines(t)

	// 100ms carrier => 1ms tick, fast enough to observe, slow enough to be
	// schedulable anywhere.
	svc := New(Config{DefaultDuty: 100, CarrierPeriod: 100 * time.Millisecond})
	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 3; i++ {
		select {
		case <-f.out.setCh:
		case <-time.After(2 * time.Second):
			t.Fatalf("generator produced only %d ticks", i)
		}
	}

	svc.Close()

	if !f.in.isClosed() {
		t.Fatalf("edge line not detached")
	}
	f.out.mu.Lock()
	closed := f.out.closed
	f.out.mu.Unlock()
	if !closed {
		t.Fatalf("output line not released")
	}
	if v, ok := f.out.lastValue(); !ok || v != 0 {
		t.Fatalf("output parked at %d want 0", v)
	}

	ticks := svc.Snapshot().Ticks
	time.Sleep(10 * time.Millisecond)
	if got := svc.Snapshot().Ticks; got != ticks {
		t.Fatalf("ticks advanced from %d to %d after Close", ticks, got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	installFakeLines(t)
	svc := New(Config{DefaultDuty: 50, CarrierPeriod: time.Second})
	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Close()
	svc.Close()
}
