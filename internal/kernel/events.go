package kernel

// ============================================================================
// Event flags
// ============================================================================

// EventMask is a set of up to 32 event flags.
type EventMask uint32

// AllEvents matches every flag.
const AllEvents EventMask = ^EventMask(0)

// EventSource fans event flags out to registered listener threads. A
// broadcast ORs a mask into the pending set of every listener and wakes the
// ones waiting on a matching flag.
type EventSource struct {
	k         *Kernel
	listeners *EventListener
}

// EventListener ties one thread to one event source. The caller owns the
// structure; it must stay registered only while the thread is alive.
type EventListener struct {
	source *EventSource
	thread *Thread
	mask   EventMask
	next   *EventListener
}

// NewEventSource returns an event source with no listeners.
func NewEventSource(k *Kernel) *EventSource {
	return &EventSource{k: k}
}

// Register subscribes self to the source. Flags broadcast on the source are
// narrowed by mask before being delivered to the thread.
func (es *EventSource) Register(self *Thread, el *EventListener, mask EventMask) {
	es.k.Lock(self)
	es.k.assertf(el.source == nil, "listener registered twice")
	el.source = es
	el.thread = self
	el.mask = mask
	el.next = es.listeners
	es.listeners = el
	es.k.Unlock()
}

// Unregister removes a listener. Pending flags already delivered to the
// thread are kept.
func (es *EventSource) Unregister(self *Thread, el *EventListener) {
	es.k.Lock(self)
	for cur := &es.listeners; *cur != nil; cur = &(*cur).next {
		if *cur == el {
			*cur = el.next
			el.source = nil
			el.next = nil
			break
		}
	}
	es.k.Unlock()
}

// Broadcast delivers flags to every listener and reschedules so that any
// higher-priority thread woken by the flags runs at once.
func (es *EventSource) Broadcast(self *Thread, flags EventMask) {
	es.k.Lock(self)
	es.BroadcastI(flags)
	es.k.rescheduleS(self)
	es.k.Unlock()
}

// BroadcastI is the interrupt-context broadcast. Woken threads run after
// the interrupt epilogue reschedules.
func (es *EventSource) BroadcastI(flags EventMask) {
	es.k.assertLockedI()
	for el := es.listeners; el != nil; el = el.next {
		es.k.signalEventsI(el.thread, flags&el.mask)
	}
}

// SignalEventsI delivers flags directly to one thread, bypassing sources.
func (k *Kernel) SignalEventsI(tp *Thread, flags EventMask) {
	k.assertLockedI()
	k.signalEventsI(tp, flags)
}

func (k *Kernel) signalEventsI(tp *Thread, flags EventMask) {
	if flags == 0 {
		return
	}
	tp.pendingEvents |= flags
	if tp.waitingEvents && tp.pendingEvents&tp.waitEventMask != 0 {
		tp.waitingEvents = false
		tp.wtstatus = StatusOK
		k.readyI(tp)
	}
}

// WaitAnyEvent sleeps until at least one flag in mask is pending, then
// clears and returns the matching subset.
func (k *Kernel) WaitAnyEvent(self *Thread, mask EventMask) EventMask {
	got, _ := k.WaitAnyEventTimeout(self, mask, Infinite)
	return got
}

// WaitAnyEventTimeout is WaitAnyEvent with a tick deadline. Immediate polls
// without sleeping. On timeout it returns a zero mask and StatusTimeout.
func (k *Kernel) WaitAnyEventTimeout(self *Thread, mask EventMask, ticks uint64) (EventMask, Status) {
	k.Lock(self)
	defer k.Unlock()

	if got := self.pendingEvents & mask; got != 0 {
		self.pendingEvents &^= got
		return got, StatusOK
	}
	if ticks == Immediate {
		return 0, StatusTimeout
	}

	self.waitEventMask = mask
	self.waitingEvents = true
	st := k.goSleepTimeoutS(self, StateWaiting, ticks)
	if st != StatusOK {
		return 0, st
	}
	got := self.pendingEvents & mask
	self.pendingEvents &^= got
	return got, StatusOK
}
