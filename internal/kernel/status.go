package kernel

// Status is the result of a blocking kernel operation. Contract violations
// never surface as a Status; they go through the fault path instead.
type Status int

const (
	// StatusOK means the operation completed normally.
	StatusOK Status = iota
	// StatusTimeout means a timed wait expired before the resource
	// became available.
	StatusTimeout
	// StatusReset means the synchronization object was reset while the
	// thread was waiting on it.
	StatusReset
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimeout:
		return "timeout"
	case StatusReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Timeout sentinels for timed waits, expressed in system ticks.
const (
	// Immediate makes a wait non-blocking: if the resource is not
	// available the call returns StatusTimeout at once.
	Immediate uint64 = 0
	// Infinite disables the timeout entirely.
	Infinite uint64 = ^uint64(0)
)

// Thread priority levels. Higher is more urgent. IdlePriority is reserved
// for the idle thread; user threads must be created above it.
const (
	IdlePriority   = 0
	LowPriority    = 1
	NormalPriority = 64
	HighPriority   = 127
)
