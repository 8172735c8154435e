package kernel

import (
	"sync/atomic"

	"github.com/keel-rt/keel/internal/port"
)

// ============================================================================
// Threads
// ============================================================================

// State is a thread's position in its lifecycle.
type State uint8

const (
	// StateUninit: created but never started.
	StateUninit State = iota
	// StateReady: eligible to run, queued in the ready queue.
	StateReady
	// StateRunning: the current owner of the processor. Exactly one thread
	// is running at a time and it is never a member of the ready queue.
	StateRunning
	// StateSleeping: blocked on a virtual-timer delay.
	StateSleeping
	// StateWaiting: blocked on a synchronization object.
	StateWaiting
	// StateSuspended: parked by an explicit suspend, released by resume.
	StateSuspended
	// StateFinal: terminated; reclaimed when joined.
	StateFinal
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "uninit"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateWaiting:
		return "waiting"
	case StateSuspended:
		return "suspended"
	case StateFinal:
		return "final"
	default:
		return "invalid"
	}
}

// ThreadFunc is a thread's work function. When it returns the thread
// terminates and stays reclaimable until joined.
type ThreadFunc func(self *Thread)

// Thread is one execution context: its own stack region, saved register
// context, priority and scheduling state. All mutable fields are owned by
// the kernel and touched only under the System Lock.
type Thread struct {
	id       uint64
	name     string
	basePrio int
	effPrio  int // basePrio, possibly boosted by priority inheritance
	state    State

	ctx *port.Context

	// Queue linkage. A thread is in exactly one queue at a time; wqueue
	// points at the wait queue it is blocked on, nil when on the ready
	// queue or not queued at all.
	qnext, qprev *Thread
	wqueue       *threadQueue

	// wtobj is the synchronization object this thread is blocked on.
	wtobj any
	// wtstatus carries the wakeup result set by whoever readies the thread.
	wtstatus Status

	// Pending event flags and the mask of an in-progress event wait.
	pendingEvents EventMask
	waitEventMask EventMask
	waitingEvents bool

	// held lists the mutexes this thread owns, most recently taken first.
	held []*Mutex

	joiner        *Thread
	termRequested atomic.Bool
}

// ID returns the thread's unique identity.
func (tp *Thread) ID() uint64 { return tp.id }

// Name returns the thread's name.
func (tp *Thread) Name() string { return tp.name }

// TerminationRequested reports whether Terminate has been called for this
// thread. Work functions poll it at convenient points; there is no
// asynchronous cancellation.
func (tp *Thread) TerminationRequested() bool { return tp.termRequested.Load() }

// Create allocates a new thread in the uninit state. The thread does not
// run until Start. Priority must be above IdlePriority.
func (k *Kernel) Create(self *Thread, name string, prio int, fn ThreadFunc) *Thread {
	k.assertf(prio > IdlePriority, "thread %q priority %d not above idle", name, prio)
	k.assertf(fn != nil, "thread %q has no work function", name)

	tp := &Thread{
		name:     name,
		basePrio: prio,
		effPrio:  prio,
		state:    StateUninit,
	}
	tp.ctx = port.NewContext(
		func() { fn(tp) },
		func() { k.exitThread(tp) },
	)

	k.Lock(self)
	k.nextID++
	tp.id = k.nextID
	k.registry = append(k.registry, tp)
	k.Unlock()
	return tp
}

// Start makes an uninit thread ready. If it outranks the caller it runs
// immediately.
func (k *Kernel) Start(self, tp *Thread) {
	k.Lock(self)
	k.assertf(tp.state == StateUninit, "start of thread %q in state %v", tp.name, tp.state)
	k.readyI(tp)
	k.rescheduleS(self)
	k.Unlock()
}

// Spawn is Create followed by Start.
func (k *Kernel) Spawn(self *Thread, name string, prio int, fn ThreadFunc) *Thread {
	tp := k.Create(self, name, prio, fn)
	k.Start(self, tp)
	return tp
}

// Terminate requests cooperative termination. The target keeps running
// until its work function observes TerminationRequested and returns.
func (k *Kernel) Terminate(tp *Thread) {
	tp.termRequested.Store(true)
}

// Join blocks until tp terminates, then reclaims it: after Join returns the
// thread is gone from the registry and must not be used again. At most one
// thread may join a given thread.
func (k *Kernel) Join(self, tp *Thread) Status {
	k.Lock(self)
	k.assertf(tp != self, "thread %q joining itself", self.name)
	k.assertf(tp != k.idle, "join of the idle thread")
	k.assertf(tp.joiner == nil, "thread %q already has a joiner", tp.name)
	st := StatusOK
	if tp.state != StateFinal {
		tp.joiner = self
		self.wtobj = tp
		st = k.goSleepS(self, StateWaiting)
	}
	k.unregisterI(tp)
	k.Unlock()
	return st
}

// Sleep blocks the calling thread for the given number of system ticks.
func (k *Kernel) Sleep(self *Thread, ticks uint64) {
	k.assertf(ticks > 0 && ticks != Infinite, "sleep for %d ticks", ticks)
	k.Lock(self)
	k.sleepS(self, ticks)
	k.Unlock()
}

// SleepUntil blocks the calling thread until the system tick counter
// reaches deadline. Returns immediately if the deadline already passed.
func (k *Kernel) SleepUntil(self *Thread, deadline uint64) {
	k.Lock(self)
	if now := k.ticks.Load(); deadline > now {
		k.sleepS(self, deadline-now)
	}
	k.Unlock()
}

// sleepS arms a wakeup timer and blocks. System Lock held.
func (k *Kernel) sleepS(self *Thread, ticks uint64) {
	var vt VTimer
	k.SetTimerI(&vt, ticks, wakeupTimer, self)
	k.goSleepS(self, StateSleeping)
}

// wakeupTimer is the virtual-timer callback ending a timed sleep.
func wakeupTimer(k *Kernel, arg any) {
	tp := arg.(*Thread)
	tp.wtstatus = StatusOK
	k.readyI(tp)
}

// Yield passes the processor to the next ready thread of equal or higher
// priority, placing the caller behind its equal-priority peers. With strict
// priority scheduling this is the only voluntary rotation mechanism.
func (k *Kernel) Yield(self *Thread) {
	k.Lock(self)
	if !k.ready.empty() && k.ready.head.effPrio >= self.effPrio {
		ntp := k.popReadyI()
		k.readyI(self)
		k.switchTo(ntp, self)
	}
	k.Unlock()
}

// Suspend parks the calling thread until another thread resumes it. The
// returned status is whatever the resumer supplied.
func (k *Kernel) Suspend(self *Thread) Status {
	k.Lock(self)
	st := k.goSleepS(self, StateSuspended)
	k.Unlock()
	return st
}

// Resume readies a suspended thread from thread context, preempting the
// caller if the resumed thread outranks it.
func (k *Kernel) Resume(self, tp *Thread, st Status) {
	k.Lock(self)
	k.assertf(tp.state == StateSuspended, "resume of thread %q in state %v", tp.name, tp.state)
	k.wakeupS(self, tp, st)
	k.Unlock()
}

// ResumeI readies a suspended thread from interrupt context. The preemption
// decision is left to the interrupt epilogue.
func (k *Kernel) ResumeI(tp *Thread, st Status) {
	k.assertLockedI()
	k.assertf(tp.state == StateSuspended, "resume of thread %q in state %v", tp.name, tp.state)
	tp.wtstatus = st
	k.readyI(tp)
}

// exitThread is the termination path a thread enters when its work function
// returns. It never returns: the context is switched away from forever.
func (k *Kernel) exitThread(tp *Thread) {
	k.Lock(tp)
	k.assertf(len(tp.held) == 0, "thread %q terminated holding %d mutex(es)", tp.name, len(tp.held))
	tp.state = StateFinal
	if j := tp.joiner; j != nil {
		j.wtobj = nil
		j.wtstatus = StatusOK
		k.readyI(j)
	}
	k.switchTo(k.popReadyI(), tp)
	k.fault("terminated thread %q resumed", tp.name)
}
