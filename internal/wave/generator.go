// Package wave generates a fixed-carrier software PWM signal on a digital
// output line, 100 duty steps per carrier period.
package wave

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

const stepsPerCycle = 100

// Line is the minimal output the generator drives. *gpiocdev.Line satisfies
// it directly.
type Line interface {
	SetValue(v int) error
}

// Clock abstracts time for the tick loop so tests can run against a virtual
// clock. The real clock is monotonic: Go's time.Time carries a monotonic
// reading, so Add/Until arithmetic never runs backward.
type Clock interface {
	Now() time.Time
	SleepUntil(t time.Time)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) SleepUntil(t time.Time) {
	if d := time.Until(t); d > 0 {
		time.Sleep(d)
	}
}

type Config struct {
	// Interval is the step tick period, carrier period / 100.
	Interval time.Duration
	// DefaultDuty is the startup duty-cycle percentage, clamped to [0,100].
	DefaultDuty int
	// Clock defaults to the monotonic wall clock.
	Clock Clock
	// ThreadSetup, if set, runs once on the locked OS thread before the
	// first tick (real-time priority, CPU pinning).
	ThreadSetup func()
}

// Generator drives the output line through repeated 100-step duty cycles.
//
// The step counter is confined to the loop goroutine; the duty cycle is a
// lock-free atomic written by SetDuty and sampled once per tick, so a duty
// change always lands on a tick boundary, never mid-tick. The tick path does
// not block or allocate.
type Generator struct {
	cfg   Config
	clock Clock
	out   Line

	duty     atomic.Int32
	step     int // loop goroutine only
	ticks    atomic.Uint64
	overruns atomic.Uint64

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(cfg Config) *Generator {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Millisecond / stepsPerCycle
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	g := &Generator{cfg: cfg, clock: cfg.Clock, stopCh: make(chan struct{})}
	g.duty.Store(int32(clampDuty(cfg.DefaultDuty)))
	return g
}

// SetDuty clamps p to [0,100] and stores it, returning the value actually
// applied. The new value takes effect on the next tick boundary.
func (g *Generator) SetDuty(p int) int {
	p = clampDuty(p)
	g.duty.Store(int32(p))
	return p
}

// Duty returns the current duty-cycle percentage.
func (g *Generator) Duty() int {
	return int(g.duty.Load())
}

// Ticks returns the number of ticks executed since Start.
func (g *Generator) Ticks() uint64 {
	return g.ticks.Load()
}

// Overruns returns the number of times a tick finished past its next
// deadline and the schedule had to resume from the present.
func (g *Generator) Overruns() uint64 {
	return g.overruns.Load()
}

// Start launches the tick loop driving out.
func (g *Generator) Start(out Line) {
	g.out = out
	g.wg.Add(1)
	go g.run()
}

// Close stops the loop and waits for any in-flight tick to finish. After
// Close returns the line is no longer driven.
func (g *Generator) Close() {
	g.stopOnce.Do(func() {
		close(g.stopCh)
	})
	g.wg.Wait()
}

func (g *Generator) run() {
	defer g.wg.Done()

	// The scheduling attributes applied by ThreadSetup are per-thread.
	runtime.LockOSThread()
	if g.cfg.ThreadSetup != nil {
		g.cfg.ThreadSetup()
	}

	next := g.clock.Now().Add(g.cfg.Interval)
	for {
		g.clock.SleepUntil(next)
		select {
		case <-g.stopCh:
			return
		default:
		}

		g.tick()

		// Deadlines advance from the previous deadline, not the actual fire
		// time, so per-tick jitter does not accumulate drift.
		next = next.Add(g.cfg.Interval)
		if now := g.clock.Now(); next.Before(now) {
			// Late tick: resume from now rather than replaying the backlog.
			g.overruns.Add(1)
			next = now.Add(g.cfg.Interval)
		}
	}
}

func (g *Generator) tick() {
	g.step = (g.step + 1) % stepsPerCycle
	v := 0
	if g.step < int(g.duty.Load()) {
		v = 1
	}
	_ = g.out.SetValue(v)
	g.ticks.Add(1)
}

func clampDuty(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
