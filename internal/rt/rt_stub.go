//go:build !linux

package rt

import "fmt"

// Stub for platforms without Linux scheduling control.
func Apply(cfg Config) error {
	if cfg.enabled() {
		return fmt.Errorf("rt: real-time scheduling unsupported on this platform")
	}
	return nil
}
