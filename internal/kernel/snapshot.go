package kernel

// ============================================================================
// Introspection snapshot
// ============================================================================

// ThreadInfo is the externally visible view of one thread.
type ThreadInfo struct {
	ID            uint64 `json:"id"`
	Name          string `json:"name"`
	BasePriority  int    `json:"base_priority"`
	Priority      int    `json:"priority"`
	State         string `json:"state"`
	PendingEvents uint32 `json:"pending_events,omitempty"`
	HeldMutexes   int    `json:"held_mutexes,omitempty"`
}

// TimerInfo is the externally visible view of one armed virtual timer.
type TimerInfo struct {
	// RemainingTicks is the absolute number of ticks until expiry.
	RemainingTicks uint64 `json:"remaining_ticks"`
}

// Snapshot is a consistent point-in-time view of kernel state, taken with
// the System Lock held.
type Snapshot struct {
	Version         string       `json:"version"`
	Ticks           uint64       `json:"ticks"`
	Current         string       `json:"current"`
	ContextSwitches uint64       `json:"context_switches"`
	Preemptions     uint64       `json:"preemptions"`
	Threads         []ThreadInfo `json:"threads"`
	Timers          []TimerInfo  `json:"timers"`
}

// Capture takes a snapshot from outside the kernel's execution model, the
// way a debug probe halts the processor: it runs as a short interrupt
// handler so the state it reads cannot move underneath it.
func (k *Kernel) Capture() Snapshot {
	var snap Snapshot
	k.ISR(func() {
		k.LockFromISR()
		snap = k.captureI()
		k.UnlockFromISR()
	})
	return snap
}

// CaptureFrom takes a snapshot from thread context.
func (k *Kernel) CaptureFrom(self *Thread) Snapshot {
	k.Lock(self)
	snap := k.captureI()
	k.Unlock()
	return snap
}

func (k *Kernel) captureI() Snapshot {
	k.assertLockedI()
	snap := Snapshot{
		Version:         Version,
		Ticks:           k.ticks.Load(),
		Current:         k.current.name,
		ContextSwitches: k.ctxSwitches,
		Preemptions:     k.preemptions,
	}
	for _, tp := range k.registry {
		snap.Threads = append(snap.Threads, ThreadInfo{
			ID:            tp.id,
			Name:          tp.name,
			BasePriority:  tp.basePrio,
			Priority:      tp.effPrio,
			State:         tp.state.String(),
			PendingEvents: uint32(tp.pendingEvents),
			HeldMutexes:   len(tp.held),
		})
	}
	for _, remaining := range k.timerDeadlinesI() {
		snap.Timers = append(snap.Timers, TimerInfo{RemainingTicks: remaining})
	}
	return snap
}
