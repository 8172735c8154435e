package kernel

// ============================================================================
// Scheduler and ready queue
// ============================================================================
//
// Strict priority scheduling, no time slicing: the ready thread with the
// highest effective priority owns the processor, preemption happens only
// for a strictly higher priority, and equal-priority threads run FIFO in
// the order they became ready. Starvation of low priorities is accepted by
// design. Naming follows the lock discipline: the I suffix marks functions
// callable with the System Lock held from either context, the S suffix
// functions additionally require thread context because they can switch.

// readyI inserts tp into the ready queue, preserving the
// priority-descending, FIFO-among-equals order.
func (k *Kernel) readyI(tp *Thread) {
	k.assertLockedI()
	k.assertf(tp.state != StateReady, "thread %q readied twice", tp.name)
	k.assertf(tp.state != StateFinal, "thread %q readied after termination", tp.name)
	tp.state = StateReady
	tp.wtobj = nil
	tp.wqueue = nil
	k.ready.insertPriority(tp)
}

// popReadyI removes and returns the highest-priority ready thread. The idle
// thread guarantees the queue is never empty while the kernel runs.
func (k *Kernel) popReadyI() *Thread {
	tp := k.ready.popFront()
	k.assertf(tp != nil, "ready queue empty")
	return tp
}

// isPreemptionRequiredI reports whether resuming the current thread would
// violate priority order. Equal priority never preempts.
func (k *Kernel) isPreemptionRequiredI() bool {
	return !k.ready.empty() && k.ready.head.effPrio > k.current.effPrio
}

// rescheduleS reconsiders the running thread after wakeups performed from
// thread context. If a strictly higher-priority thread became ready, the
// caller is put back in the ready queue and the processor switches.
func (k *Kernel) rescheduleS(self *Thread) {
	if !k.isPreemptionRequiredI() {
		return
	}
	ntp := k.popReadyI()
	k.readyI(self)
	k.switchTo(ntp, self)
}

// goSleepS blocks the current thread in the given state and switches to the
// next ready thread. It returns when the thread is next switched in, with
// the status its waker supplied.
func (k *Kernel) goSleepS(self *Thread, state State) Status {
	k.assertf(self == k.current, "sleep of non-current thread %q", self.name)
	self.state = state
	k.switchTo(k.popReadyI(), self)
	return self.wtstatus
}

// goSleepTimeoutS is goSleepS bounded by a virtual timer. On expiry the
// thread is removed from whatever wait queue holds it and woken with
// StatusTimeout. Immediate must be handled by the caller; it never blocks.
func (k *Kernel) goSleepTimeoutS(self *Thread, state State, ticks uint64) Status {
	k.assertf(ticks != Immediate, "timed sleep with an immediate timeout")
	if ticks == Infinite {
		return k.goSleepS(self, state)
	}
	var vt VTimer
	k.SetTimerI(&vt, ticks, timeoutTimer, self)
	st := k.goSleepS(self, state)
	k.ResetTimerI(&vt)
	return st
}

// timeoutTimer is the virtual-timer callback that wakes a timed-out thread.
// By the time it runs the thread may already have been woken normally; the
// state check keeps the two wakeup paths from colliding.
func timeoutTimer(k *Kernel, arg any) {
	tp := arg.(*Thread)
	if tp.state != StateWaiting && tp.state != StateSleeping {
		return
	}
	if tp.wqueue != nil {
		tp.wqueue.remove(tp)
	}
	// A semaphore wait reserved a count unit; give it back.
	if s, ok := tp.wtobj.(*Semaphore); ok {
		s.count++
	}
	tp.waitingEvents = false
	tp.wtstatus = StatusTimeout
	k.readyI(tp)
}

// wakeupS readies tp from thread context with an immediate preemption
// check: if tp outranks the caller the processor switches to it directly,
// without a trip through the ready queue.
func (k *Kernel) wakeupS(self, ntp *Thread, st Status) {
	ntp.wtstatus = st
	if ntp.effPrio <= self.effPrio {
		k.readyI(ntp)
		return
	}
	k.readyI(self)
	ntp.wtobj = nil
	ntp.wqueue = nil
	k.switchTo(ntp, self)
}

// switchTo transfers the processor to ntp. The System Lock is held by the
// calling thread (otp); it travels with the processor, so lock bookkeeping
// is cleared for the gap where the mask is handed over and restored when
// otp is eventually switched back in and this call returns.
func (k *Kernel) switchTo(ntp, otp *Thread) {
	k.current = ntp
	ntp.state = StateRunning
	k.ctxSwitches++
	k.lockSt = lockStateNone
	k.lockOwner.Store(nil)
	k.machine.Switch(ntp.ctx, otp.ctx)
	k.lockSt = lockStateThread
	k.lockOwner.Store(otp)
}

// preemptI is the interrupt-driven reschedule: the interrupted thread goes
// back in the ready queue behind its priority peers and the processor is
// handed to the new head. Runs at interrupt privilege; the displaced
// thread surrenders at its next preemption point.
func (k *Kernel) preemptI() {
	otp := k.current
	ntp := k.popReadyI()
	k.readyI(otp)
	k.current = ntp
	ntp.state = StateRunning
	k.ctxSwitches++
	k.preemptions++
	k.machine.SwitchFromISR(ntp.ctx, otp.ctx)
}
