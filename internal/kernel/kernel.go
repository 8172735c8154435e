// Package kernel implements the real-time kernel core: the preemptive
// priority scheduler, the interrupt-synchronized System Lock, the virtual
// timer subsystem and the synchronization primitives (event sources, mutex,
// semaphore) that everything above it builds upon.
//
// The kernel runs against the simulated processor in internal/port. All
// scheduler-owned state — ready queue, timer list, wait queues — is mutated
// only with the System Lock held; the lock is the sole mutual-exclusion
// mechanism. There is one physical execution unit: threads interleave with
// interrupt handlers at well-defined preemption points, they do not run in
// parallel.
package kernel

import (
	"runtime"
	"sync/atomic"

	"github.com/keel-rt/keel/internal/port"
)

// Version is the kernel version, checked by scenario files.
const Version = "1.2.0"

// Config carries boot parameters.
type Config struct {
	// MainPriority is the priority assigned to the boot thread.
	MainPriority int
	// FaultHandler, if set, observes the message of a contract violation
	// before the kernel halts.
	FaultHandler func(msg string)
}

// DefaultConfig returns the standard boot parameters.
func DefaultConfig() *Config {
	return &Config{MainPriority: NormalPriority}
}

// Kernel is the single explicit kernel context: current thread, ready
// queue, virtual timer list, counters and the System Lock state. It is
// constructed at boot and lives until Shutdown.
type Kernel struct {
	machine *port.Machine

	current *Thread
	ready   threadQueue
	timers  VTimer // sentinel of the delta-encoded timer ring

	ticks  atomic.Uint64
	nextID uint64

	// registry lists every created, not-yet-reclaimed thread.
	registry []*Thread

	main *Thread
	idle *Thread

	// lockSt and lockOwner track System Lock usage for misuse detection.
	lockSt    lockState
	lockOwner atomic.Pointer[Thread]

	// switchPending is the deferred-reschedule flag set by the interrupt
	// epilogue and consumed by the switch service on interrupt exit.
	switchPending bool

	ctxSwitches uint64
	preemptions uint64

	// wfi wakes the idle loop after an interrupt, like an event-driven
	// wait-for-interrupt instruction.
	wfi chan struct{}

	faultHandler func(string)
	mainPrio     int
	booted       bool
}

// New constructs a halted kernel. Nothing runs until Boot.
func New(cfg *Config) *Kernel {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	k := &Kernel{
		machine:      port.NewMachine(),
		faultHandler: cfg.FaultHandler,
		wfi:          make(chan struct{}, 1),
	}
	k.timers.next, k.timers.prev = &k.timers, &k.timers
	k.mainPrio = cfg.MainPriority
	return k
}

// Boot adopts the calling goroutine as the main thread, creates the idle
// thread and enables scheduling. It returns the main thread handle, which
// the caller passes to every subsequent thread-context kernel call.
func (k *Kernel) Boot() *Thread {
	k.assertf(!k.booted, "kernel booted twice")

	k.nextID++
	main := &Thread{
		id:       k.nextID,
		name:     "main",
		basePrio: k.mainPrio,
		effPrio:  k.mainPrio,
		state:    StateRunning,
		ctx:      port.Adopt(),
	}
	k.main = main
	k.current = main
	k.registry = append(k.registry, main)

	k.nextID++
	idle := &Thread{
		id:       k.nextID,
		name:     "idle",
		basePrio: IdlePriority,
		effPrio:  IdlePriority,
		state:    StateReady,
	}
	idle.ctx = port.NewContext(
		func() { k.idleLoop(idle) },
		func() {},
	)
	k.idle = idle
	k.registry = append(k.registry, idle)
	k.ready.insertPriority(idle)

	k.booted = true
	return main
}

// Shutdown halts the virtual processor, unwinding every parked thread
// goroutine. Must be called from the main thread; the kernel cannot be
// rebooted afterwards.
func (k *Kernel) Shutdown(self *Thread) {
	k.assertf(self == k.main, "shutdown from thread %q", self.name)
	k.assertf(k.booted, "shutdown of a halted kernel")
	k.booted = false
	k.machine.Halt()
}

// Ticks returns the current system tick count.
func (k *Kernel) Ticks() uint64 { return k.ticks.Load() }

// idleLoop is the idle thread body: it owns the processor whenever nothing
// else is ready, sleeping on the simulated wait-for-interrupt event. It
// never blocks on a kernel object.
func (k *Kernel) idleLoop(self *Thread) {
	for {
		select {
		case <-k.wfi:
		case <-k.machine.Quit():
			runtime.Goexit()
		}
		// Preemption point: surrender if an interrupt made a higher
		// priority thread ready while we slept.
		k.Lock(self)
		k.Unlock()
	}
}
