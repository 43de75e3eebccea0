// Package core owns the two GPIO lines and wires the waveform generator and
// edge timestamper into one startable subsystem.
package core

import (
	"fmt"
	"sync"
	"time"

	"rtpulse/internal/control"
	"rtpulse/internal/edge"
	"rtpulse/internal/wave"
)

type Config struct {
	// Chip is the GPIO character device name, e.g. "gpiochip0".
	Chip string
	// PWMLine is the line offset driven with the generated waveform.
	PWMLine int
	// MeasLine is the line offset watched for rising edges.
	MeasLine int

	// CarrierPeriod is the PWM repetition period, divided into 100 duty
	// steps.
	CarrierPeriod time.Duration
	// DefaultDuty is the startup duty-cycle percentage. The config layer
	// supplies 50 when the user does not choose one.
	DefaultDuty int

	// ThreadSetup runs on the generator's locked OS thread before the first
	// tick (real-time priority, CPU pinning). Optional.
	ThreadSetup func()
	// Clock overrides the generator's clock, for tests.
	Clock wave.Clock
}

// Snapshot is a point-in-time view of the subsystem state.
type Snapshot struct {
	PeriodMicros       int64  `json:"period_us"`
	LastEdgeNanos      int64  `json:"last_edge_mono_ns"`
	DutyPercent        int    `json:"duty_percent"`
	Ticks              uint64 `json:"ticks"`
	Overruns           uint64 `json:"overruns"`
	Edges              uint64 `json:"edges"`
	DutyWritesRejected uint64 `json:"duty_writes_rejected"`
}

// outputLine and edgeLine are what the hardware backend hands back. The edge
// subscription delivers events through the handler passed to openLines; its
// Close must not return while a handler invocation is still in flight.
type outputLine interface {
	SetValue(v int) error
	Close() error
}

type edgeLine interface {
	Close() error
}

var openLinesFn = openLines

// Service coordinates the generator, the timestamper, and the control device
// over one pair of exclusively held GPIO lines.
type Service struct {
	cfg Config

	gen *wave.Generator
	ts  *edge.Timestamper
	dev *control.Device

	mu  sync.Mutex
	out outputLine
	in  edgeLine

	stopOnce sync.Once
}

func New(cfg Config) *Service {
	if cfg.Chip == "" {
		cfg.Chip = "gpiochip0"
	}
	if cfg.PWMLine == 0 {
		cfg.PWMLine = 12
	}
	if cfg.MeasLine == 0 {
		cfg.MeasLine = 16
	}
	if cfg.CarrierPeriod <= 0 {
		cfg.CarrierPeriod = time.Millisecond
	}

	s := &Service{cfg: cfg, ts: edge.New()}
	s.gen = wave.New(wave.Config{
		Interval:    cfg.CarrierPeriod / 100,
		DefaultDuty: cfg.DefaultDuty,
		Clock:       cfg.Clock,
		ThreadSetup: cfg.ThreadSetup,
	})
	s.dev = control.NewDevice(s.ts, s.gen)
	return s
}

// Device returns the control/observation device bound to this subsystem.
func (s *Service) Device() *control.Device {
	return s.dev
}

// SetDuty clamps and applies a new duty-cycle percentage.
func (s *Service) SetDuty(percent int) int {
	return s.gen.SetDuty(percent)
}

// PeriodMicros returns the latest measured edge period in microseconds.
func (s *Service) PeriodMicros() int64 {
	return s.ts.PeriodMicros()
}

// Start acquires both lines and arms the generator. Acquisition is
// all-or-nothing: on failure everything already acquired has been released
// and nothing is left armed.
func (s *Service) Start() error {
	out, in, err := openLinesFn(s.cfg, s.ts.Edge)
	if err != nil {
		return fmt.Errorf("core: acquire gpio lines: %w", err)
	}

	s.mu.Lock()
	s.out = out
	s.in = in
	s.mu.Unlock()

	s.gen.Start(out)
	return nil
}

// Close tears the subsystem down in an order that guarantees no callback
// runs after it returns: the tick loop is stopped and awaited, the edge
// subscription is detached, then the output is parked low and both lines are
// released.
func (s *Service) Close() {
	s.stopOnce.Do(func() {
		s.gen.Close()

		s.mu.Lock()
		out, in := s.out, s.in
		s.out, s.in = nil, nil
		s.mu.Unlock()

		if in != nil {
			_ = in.Close()
		}
		if out != nil {
			_ = out.SetValue(0)
			_ = out.Close()
		}
	})
}

func (s *Service) Snapshot() Snapshot {
	return Snapshot{
		PeriodMicros:       s.ts.PeriodMicros(),
		LastEdgeNanos:      int64(s.ts.LastEdge()),
		DutyPercent:        s.gen.Duty(),
		Ticks:              s.gen.Ticks(),
		Overruns:           s.gen.Overruns(),
		Edges:              s.ts.Edges(),
		DutyWritesRejected: s.dev.Rejected(),
	}
}
