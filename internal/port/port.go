// Package port provides the architecture layer the kernel is written
// against: the saved register context of a thread, the context-switch
// primitive, interrupt masking, and interrupt-nesting bookkeeping.
//
// This implementation is a simulated Cortex-M-like core. Every thread context
// is backed by a goroutine, but the protocol is the hardware one: a context
// switch saves the live register file into the outgoing context, loads the
// incoming one, and transfers the (single) virtual processor. At most one
// thread goroutine executes kernel code at any instant.
package port

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// ============================================================================
// Register file and saved contexts
// ============================================================================

// RegisterFile is the callee-saved register set preserved across a context
// switch, plus the stack pointer. Matches the r4-r11/lr/sp set an ARMv7-M
// port stacks on a switch.
type RegisterFile struct {
	R4, R5, R6, R7 uint64
	R8, R9, R10    uint64
	R11            uint64
	LR             uint64
	SP             uint64
}

// Simulated SRAM layout for thread stacks. Stack regions are synthetic
// address ranges only; no memory is addressed through them.
const (
	stackRegionBase = 0x2000_0000
	stackRegionSize = 0x1000
)

var nextStackRegion atomic.Uint64

// Context is one thread's saved machine context. It is opaque to the kernel
// except through NewContext, Adopt, Switch and SwitchFromISR.
type Context struct {
	regs RegisterFile

	// resume carries the single outstanding switch-in token for the
	// goroutine backing this context.
	resume chan struct{}

	entry     func()
	exit      func()
	started   bool
	displaced bool
}

// NewContext builds the saved context of a thread that has never run. The
// first switch into it starts the entry function with interrupts enabled;
// if entry returns normally, exit is invoked and must not return.
func NewContext(entry, exit func()) *Context {
	region := stackRegionBase + nextStackRegion.Add(1)*stackRegionSize
	return &Context{
		regs: RegisterFile{
			SP: region + stackRegionSize, // full-descending stack, starts at top
			LR: threadStartVector,
		},
		resume: make(chan struct{}, 1),
		entry:  entry,
		exit:   exit,
	}
}

// threadStartVector is the synthetic address of the thread-start trampoline,
// planted in LR so a fresh context "returns" into its entry function.
const threadStartVector = 0x0800_0001

// Adopt builds a context for a goroutine that is already executing (the boot
// thread). It is considered started and currently owning the processor.
func Adopt() *Context {
	return &Context{
		resume:  make(chan struct{}, 1),
		started: true,
	}
}

// Registers returns a copy of the saved register file. Valid only while the
// context is switched out.
func (c *Context) Registers() RegisterFile { return c.regs }

// SetRegisters overwrites the saved register file. Test hook for the
// save/restore identity property; never called by the kernel.
func (c *Context) SetRegisters(r RegisterFile) { c.regs = r }

// ============================================================================
// Virtual processor
// ============================================================================

// Machine is the single virtual processor. The mask mutex is the hardware
// interrupt-masking primitive the kernel's System Lock is built on: holding
// it means interrupts at or below the kernel priority ceiling are masked.
type Machine struct {
	mask sync.Mutex

	// live is the register file currently loaded in the virtual CPU.
	// Mutated only during a switch, with the mask held.
	live RegisterFile

	// irqDepth is the interrupt nesting level. Incremented before a handler
	// runs, so it is readable without the mask held.
	irqDepth atomic.Int32

	// quit releases every parked context when the machine is torn down.
	quit chan struct{}
}

// NewMachine creates a halted virtual processor.
func NewMachine() *Machine {
	return &Machine{quit: make(chan struct{})}
}

// Mask raises the interrupt mask to the kernel ceiling. Blocks until the
// mask is available; the simulated equivalent of writing BASEPRI.
func (m *Machine) Mask() { m.mask.Lock() }

// Unmask lowers the interrupt mask to the ambient level.
func (m *Machine) Unmask() { m.mask.Unlock() }

// EnterIRQ records one level of interrupt nesting.
func (m *Machine) EnterIRQ() { m.irqDepth.Add(1) }

// LeaveIRQ exits one level of interrupt nesting.
func (m *Machine) LeaveIRQ() {
	if m.irqDepth.Add(-1) < 0 {
		panic("port: IRQ nesting underflow")
	}
}

// IRQDepth reports the current interrupt nesting level.
func (m *Machine) IRQDepth() int { return int(m.irqDepth.Load()) }

// Quit returns the teardown channel. Closed exactly once by Halt.
func (m *Machine) Quit() <-chan struct{} { return m.quit }

// Halt tears the machine down. Every context parked in a switch unwinds its
// goroutine; the caller's own context must be the one currently running.
func (m *Machine) Halt() { close(m.quit) }

// LiveRegisters returns a copy of the register file loaded in the CPU.
// Must be called with the mask held.
func (m *Machine) LiveRegisters() RegisterFile { return m.live }

// SetLiveRegisters loads the CPU register file. Test hook; mask held.
func (m *Machine) SetLiveRegisters(r RegisterFile) { m.live = r }

// Switch transfers the processor from otp (the calling context) to ntp.
// Must be called with the mask held by the goroutine backing otp. It saves
// the live register file into otp, restores ntp's, resumes ntp and parks.
// It returns only when otp is switched in again, with the mask re-held; from
// the caller's point of view the switch is an identity transform on the
// non-volatile register set.
func (m *Machine) Switch(ntp, otp *Context) {
	otp.regs = m.live
	m.live = ntp.regs
	m.dispatch(ntp)
	m.mask.Unlock()
	otp.park(m.quit)
	m.mask.Lock()
}

// SwitchFromISR transfers the processor from otp to ntp on behalf of an
// interrupt. The calling goroutine is an interrupt handler, not otp, so otp
// cannot be parked here; it is marked displaced and surrenders at its next
// preemption point. Must be called with the mask held; the caller keeps it
// until the switch decision is complete.
func (m *Machine) SwitchFromISR(ntp, otp *Context) {
	otp.regs = m.live
	otp.displaced = true
	m.live = ntp.regs
	m.dispatch(ntp)
}

// PreemptionPoint surrenders the processor if the calling context was
// displaced by an interrupt since it last ran. Must be called with the mask
// held by the goroutine backing c; returns with the mask re-held once c owns
// the processor again.
func (m *Machine) PreemptionPoint(c *Context) {
	for c.displaced {
		c.displaced = false
		m.mask.Unlock()
		c.park(m.quit)
		m.mask.Lock()
	}
}

// dispatch hands the processor to ntp: first switch-in starts the backing
// goroutine at the thread-start trampoline, later ones deliver the resume
// token consumed by the matching park.
func (m *Machine) dispatch(ntp *Context) {
	if !ntp.started {
		ntp.started = true
		go func() {
			ntp.entry()
			ntp.exit()
			panic("port: context resumed after exit")
		}()
		return
	}
	ntp.resume <- struct{}{}
}

// park blocks until the context is switched in again. On machine teardown
// the goroutine unwinds instead; deferred calls still run.
func (c *Context) park(quit <-chan struct{}) {
	select {
	case <-c.resume:
	case <-quit:
		runtime.Goexit()
	}
}
