// Package rt applies real-time scheduling attributes to the calling OS
// thread: locked memory, CPU pinning, and SCHED_FIFO priority.
package rt

type Config struct {
	// Priority is the SCHED_FIFO priority (1..99); 0 leaves the default
	// scheduling policy in place. Nonzero values need CAP_SYS_NICE or root.
	Priority int
	// LockMemory locks current and future pages into RAM so the tick loop
	// cannot stall on a page fault.
	LockMemory bool
	// PinCPU pins the thread to the CPU given by CPU.
	PinCPU bool
	CPU    int
}

// enabled reports whether the config asks for anything at all.
func (c Config) enabled() bool {
	return c.Priority > 0 || c.LockMemory || c.PinCPU
}
