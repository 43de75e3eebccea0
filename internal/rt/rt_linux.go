//go:build linux

package rt

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Apply configures the calling thread. The caller must have locked its
// goroutine to the OS thread first (runtime.LockOSThread). A failure leaves
// the thread on default scheduling; callers treat it as a degradation, not a
// fatal error.
func Apply(cfg Config) error {
	if !cfg.enabled() {
		return nil
	}

	if cfg.LockMemory {
		if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
			return fmt.Errorf("rt: mlockall: %w", err)
		}
	}

	if cfg.PinCPU {
		var set unix.CPUSet
		set.Zero()
		set.Set(cfg.CPU)
		if err := unix.SchedSetaffinity(0, &set); err != nil {
			return fmt.Errorf("rt: pin to cpu %d: %w", cfg.CPU, err)
		}
	}

	if cfg.Priority > 0 {
		attr := unix.SchedAttr{
			Policy:   unix.SCHED_FIFO,
			Priority: uint32(cfg.Priority),
		}
		if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
			return fmt.Errorf("rt: set SCHED_FIFO priority %d: %w", cfg.Priority, err)
		}
	}

	return nil
}
