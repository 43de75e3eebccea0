//go:build linux

package core

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "rtpulse"

// openLines acquires the PWM output and the edge-measurement input on the
// configured chip, both held exclusively for the subsystem's lifetime. Edge
// events arrive with the kernel's monotonic timestamp, taken in the
// interrupt path well before userspace delivery.
func openLines(cfg Config, onEdge func(time.Duration)) (outputLine, edgeLine, error) {
	out, err := gpiocdev.RequestLine(cfg.Chip, cfg.PWMLine,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer(consumer),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("request output %s:%d: %w", cfg.Chip, cfg.PWMLine, err)
	}

	in, err := gpiocdev.RequestLine(cfg.Chip, cfg.MeasLine,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithConsumer(consumer),
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			if evt.Type == gpiocdev.LineEventRisingEdge {
				onEdge(evt.Timestamp)
			}
		}),
	)
	if err != nil {
		_ = out.Close()
		return nil, nil, fmt.Errorf("request input %s:%d: %w", cfg.Chip, cfg.MeasLine, err)
	}

	return out, in, nil
}
