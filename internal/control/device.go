// Package control implements the user-facing read/write interface of the
// subsystem: reads return the latest measured period, writes set a new duty
// cycle. The Device type carries the byte-level contract; Server exposes it
// on a unix-domain socket.
package control

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
)

// maxWrite bounds accepted write payloads: a 15-byte payload plus terminator,
// matching the historical 16-byte message buffer.
const maxWrite = 16

// ErrPayloadTooLarge is returned for writes of maxWrite bytes or more.
var ErrPayloadTooLarge = errors.New("control: write payload too large")

// PeriodSource supplies the current measured period in microseconds.
type PeriodSource interface {
	PeriodMicros() int64
}

// DutySink accepts a duty-cycle percentage, clamps it to [0,100], and
// returns the value actually applied.
type DutySink interface {
	SetDuty(percent int) int
}

// Device reproduces the character-device contract of the control interface:
// reads render "period_us\n" behind an offset cursor, writes parse a decimal
// duty-cycle percentage.
//
// Safe for concurrent use from any number of callers.
type Device struct {
	src  PeriodSource
	sink DutySink

	// Accepted, if set, is called with each applied duty value. Assign it
	// before the device is shared between goroutines.
	Accepted func(percent int)

	rejected atomic.Uint64
}

func NewDevice(src PeriodSource, sink DutySink) *Device {
	return &Device{src: src, sink: sink}
}

// ReadAt renders the current period as decimal ASCII plus a newline and
// copies it into p starting at off. Once off reaches the end of the rendered
// value it returns 0, io.EOF, giving standard bounded-buffer read semantics.
// ReadAt has no side effects on subsystem state.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	msg := strconv.AppendInt(make([]byte, 0, 24), d.src.PeriodMicros(), 10)
	msg = append(msg, '\n')
	if off >= int64(len(msg)) {
		return 0, io.EOF
	}
	return copy(p, msg[off:]), nil
}

// Write parses p as a decimal duty-cycle percentage.
//
// Payloads of maxWrite bytes or more are rejected with ErrPayloadTooLarge and
// leave state unchanged. A size-legal payload that fails to parse is silently
// dropped, preserving the historical interface contract; the drop is still
// counted for observability. Parsable values are clamped to [0,100] by the
// sink and applied on the next tick boundary.
func (d *Device) Write(p []byte) (int, error) {
	if len(p) >= maxWrite {
		return 0, ErrPayloadTooLarge
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(p)))
	if err != nil {
		d.rejected.Add(1)
		return len(p), nil
	}
	applied := d.sink.SetDuty(v)
	if d.Accepted != nil {
		d.Accepted(applied)
	}
	return len(p), nil
}

// Rejected returns the count of writes dropped because they did not parse.
func (d *Device) Rejected() uint64 {
	return d.rejected.Load()
}
