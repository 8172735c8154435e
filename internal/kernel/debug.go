package kernel

import "fmt"

// ============================================================================
// Contract checking
// ============================================================================
//
// The kernel distinguishes two error classes. Environmental failures
// (timeouts, resets) are returned as Status values. Contract violations —
// wrong lock variant, blocking from interrupt context, invalid state
// transitions — indicate a bug in the caller; continuing with inconsistent
// kernel state is unsafe, so they halt the kernel through the fault path.

// lockState tracks which System Lock variant currently holds the interrupt
// mask. It is mutated only with the mask held.
type lockState uint8

const (
	lockStateNone lockState = iota
	lockStateThread
	lockStateISR
)

// fault reports a contract violation. The configured fault handler runs
// first (for logging or test capture), then the kernel halts by panicking;
// there is no recovery from a contract violation.
func (k *Kernel) fault(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if k.faultHandler != nil {
		k.faultHandler(msg)
	}
	panic("kernel: halted: " + msg)
}

func (k *Kernel) assertf(cond bool, format string, args ...any) {
	if !cond {
		k.fault(format, args...)
	}
}

// assertLockedI checks that an I-class call site holds the System Lock.
func (k *Kernel) assertLockedI() {
	if k.lockSt == lockStateNone {
		k.fault("I-class call without the system lock")
	}
}
