//go:build !linux

package core

import (
	"fmt"
	"time"
)

// Stub for platforms without the GPIO character device.
func openLines(cfg Config, onEdge func(time.Duration)) (outputLine, edgeLine, error) {
	return nil, nil, fmt.Errorf("gpio unsupported on this platform")
}
