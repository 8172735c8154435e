package kernel

// ============================================================================
// System Lock
// ============================================================================
//
// The System Lock is the kernel-wide interrupt-masking critical section:
// the single mutual-exclusion mechanism guarding every structure shared
// between thread and interrupt execution. It does not nest — each acquire
// must pair with exactly one release — and the thread-context and
// interrupt-context variants must not be mixed. Both rules are enforced by
// the fault path, not by runtime recovery: violating them is a bug.
//
// On the simulated port an interrupt handler runs with the mask raised for
// its whole duration, the way a kernel-priority handler on a single core
// excludes thread execution. The interrupt-context lock variants therefore
// only mark the critical section for misuse checking; the thread-context
// variants actually raise and lower the mask.

// Lock acquires the System Lock from thread context. self must be the
// calling thread. Entering the lock is also a preemption point: a thread
// displaced by an interrupt surrenders the processor here before touching
// any kernel state.
func (k *Kernel) Lock(self *Thread) {
	k.assertf(k.booted, "system lock on a halted kernel")
	if k.lockOwner.Load() == self {
		k.fault("recursive system lock by thread %q", self.name)
	}
	k.machine.Mask()
	k.assertf(k.machine.IRQDepth() == 0, "thread-context lock from interrupt context")
	k.machine.PreemptionPoint(self.ctx)
	k.assertf(k.lockSt == lockStateNone, "system lock state corrupted")
	k.assertf(k.current == self, "thread %q locked while %q is current", self.name, k.current.name)
	k.lockSt = lockStateThread
	k.lockOwner.Store(self)
}

// Unlock releases the System Lock from thread context.
func (k *Kernel) Unlock() {
	k.assertf(k.lockSt == lockStateThread, "unlock without a matching thread-context lock")
	k.lockSt = lockStateNone
	k.lockOwner.Store(nil)
	k.machine.Unmask()
}

// LockFromISR opens the System Lock critical section from within an
// interrupt handler. The mask is already raised for the whole handler; this
// transition exists so misuse — I-class calls outside the section, unlock
// mismatches, blocking calls from a handler — is caught, and so handler
// code reads the same as it would on a port where the mask write is real.
func (k *Kernel) LockFromISR() {
	k.assertf(k.machine.IRQDepth() > 0, "interrupt-context lock outside a handler")
	k.assertf(k.lockSt == lockStateNone, "interrupt-context lock while already locked")
	k.lockSt = lockStateISR
}

// UnlockFromISR closes the interrupt-context critical section.
func (k *Kernel) UnlockFromISR() {
	k.assertf(k.lockSt == lockStateISR, "unlock without a matching interrupt-context lock")
	k.lockSt = lockStateNone
}

// ============================================================================
// Interrupt entry and the two-phase epilogue
// ============================================================================

// ISR delivers a simulated interrupt: any goroutine may raise one at any
// time. Entry waits for the interrupt mask, so a locked region delays the
// handler exactly as a raised mask delays interrupt entry on hardware.
// The handler runs at interrupt privilege and may use the I-class kernel
// surface between LockFromISR/UnlockFromISR; it must not block. After the
// handler returns, the epilogue decides whether execution resumes the
// interrupted thread or diverts into a reschedule. The simulated controller
// delivers one interrupt at a time; handlers do not nest.
func (k *Kernel) ISR(handler func()) {
	k.assertf(k.booted, "interrupt delivered to a halted kernel")
	k.machine.Mask()
	k.machine.EnterIRQ()
	handler()
	k.irqEpilogue()
	k.machine.LeaveIRQ()
	k.machine.Unmask()
	// Wake the idle loop from its wait-for-interrupt sleep.
	select {
	case k.wfi <- struct{}{}:
	default:
	}
}

// irqEpilogue is the code every interrupt exits through. When the interrupt
// returns to thread level (not to a preempted handler), it raises the
// switch-pending flag if the interrupted thread no longer has the highest
// priority, then hands off to the switch service. The lock spans the
// decide-and-switch pair so the decision cannot be invalidated between the
// check and the switch.
func (k *Kernel) irqEpilogue() {
	k.LockFromISR()
	if k.machine.IRQDepth() == 1 {
		if k.isPreemptionRequiredI() {
			k.switchPending = true
		}
		k.servicePendingSwitchI()
	}
	k.UnlockFromISR()
}

// servicePendingSwitchI is the deferred reschedule service: the analogue of
// the low-priority trap an interrupt epilogue pends when the real switch
// cannot happen at interrupt privilege. It consumes the switch-pending flag.
func (k *Kernel) servicePendingSwitchI() {
	if !k.switchPending {
		return
	}
	k.switchPending = false
	k.preemptI()
}
