package kernel

// ============================================================================
// Virtual timers
// ============================================================================
//
// One system-wide list of armed timers, delta-encoded: each entry stores
// ticks relative to its predecessor, so a tick interrupt only decrements the
// head and expiry order is the list order. The list lives from boot to
// shutdown and backs every delay, timeout and polling callback.

// TimerFunc is a virtual-timer callback. It runs in interrupt context with
// the System Lock held; it must be short and must not block. Re-arming the
// timer from inside the callback is allowed.
type TimerFunc func(k *Kernel, arg any)

// VTimer is one scheduled callback. The zero value is a disarmed timer;
// callers own the structure and may re-arm it after it fires or is
// canceled.
type VTimer struct {
	next, prev *VTimer
	delta      uint64
	fn         TimerFunc
	arg        any
	armed      bool
}

// Armed reports whether the timer is queued to fire. System Lock held.
func (vt *VTimer) Armed() bool { return vt.armed }

// SetTimerI arms vt to fire fn(arg) after ticks tick interrupts. I-class.
func (k *Kernel) SetTimerI(vt *VTimer, ticks uint64, fn TimerFunc, arg any) {
	k.assertLockedI()
	k.assertf(ticks > 0 && ticks != Infinite, "timer armed for %d ticks", ticks)
	k.assertf(!vt.armed, "timer armed twice")
	k.assertf(fn != nil, "timer armed without a callback")

	vt.fn = fn
	vt.arg = arg

	// Walk to the insertion point, re-expressing ticks relative to the
	// timers that expire first.
	cur := k.timers.next
	d := ticks
	for cur != &k.timers && cur.delta <= d {
		d -= cur.delta
		cur = cur.next
	}
	vt.delta = d
	vt.prev = cur.prev
	vt.next = cur
	cur.prev.next = vt
	cur.prev = vt
	if cur != &k.timers {
		cur.delta -= d
	}
	vt.armed = true
}

// ResetTimerI cancels an armed timer. Canceling a timer that already fired
// or was never armed is a no-op, not an error. I-class.
func (k *Kernel) ResetTimerI(vt *VTimer) {
	k.assertLockedI()
	if !vt.armed {
		return
	}
	if vt.next != &k.timers {
		vt.next.delta += vt.delta
	}
	k.unlinkTimer(vt)
}

// ArmTimer is the thread-context wrapper around SetTimerI.
func (k *Kernel) ArmTimer(self *Thread, vt *VTimer, ticks uint64, fn TimerFunc, arg any) {
	k.Lock(self)
	k.SetTimerI(vt, ticks, fn, arg)
	k.Unlock()
}

// CancelTimer is the thread-context wrapper around ResetTimerI.
func (k *Kernel) CancelTimer(self *Thread, vt *VTimer) {
	k.Lock(self)
	k.ResetTimerI(vt)
	k.Unlock()
}

// Tick delivers one system-tick interrupt: the simulated SysTick vector.
func (k *Kernel) Tick() {
	k.ISR(func() {
		k.LockFromISR()
		k.tickI()
		k.UnlockFromISR()
	})
}

// tickI advances the timebase by one tick and fires every timer that
// reaches zero. Callbacks run with the System Lock held and may mutate the
// list, so the head is re-peeked after each one.
func (k *Kernel) tickI() {
	k.ticks.Add(1)
	head := k.timers.next
	if head == &k.timers {
		return
	}
	head.delta--
	for head != &k.timers && head.delta == 0 {
		fn, arg := head.fn, head.arg
		k.unlinkTimer(head)
		fn(k, arg)
		head = k.timers.next
	}
}

func (k *Kernel) unlinkTimer(vt *VTimer) {
	vt.prev.next = vt.next
	vt.next.prev = vt.prev
	vt.next, vt.prev = nil, nil
	vt.armed = false
}

// timerDeadlinesI converts the delta list to absolute remaining ticks, in
// expiry order. The result is non-decreasing by construction.
func (k *Kernel) timerDeadlinesI() []uint64 {
	var out []uint64
	sum := uint64(0)
	for cur := k.timers.next; cur != &k.timers; cur = cur.next {
		sum += cur.delta
		out = append(out, sum)
	}
	return out
}
