package kernel

// ============================================================================
// Mutexes with priority inheritance
// ============================================================================

// Mutex is a recursive mutual-exclusion lock. While a thread owns a mutex
// its effective priority is raised to that of the highest-priority waiter
// on any mutex it holds; the boost propagates through chains of owners.
type Mutex struct {
	k       *Kernel
	owner   *Thread
	nesting int
	queue   threadQueue
}

// NewMutex returns an unowned mutex.
func NewMutex(k *Kernel) *Mutex {
	return &Mutex{k: k}
}

// Owner returns the current owner, or nil. Point-in-time observation only.
func (m *Mutex) Owner(self *Thread) *Thread {
	m.k.Lock(self)
	tp := m.owner
	m.k.Unlock()
	return tp
}

// Lock acquires the mutex, sleeping while another thread owns it. Recursive
// acquisition by the owner nests.
func (m *Mutex) Lock(self *Thread) {
	m.k.Lock(self)
	m.lockS(self)
	m.k.Unlock()
}

// TryLock acquires the mutex only if that does not require sleeping.
func (m *Mutex) TryLock(self *Thread) bool {
	m.k.Lock(self)
	ok := m.tryLockS(self)
	m.k.Unlock()
	return ok
}

func (m *Mutex) lockS(self *Thread) {
	m.k.assertLockedI()
	if m.tryLockS(self) {
		return
	}
	// Someone else owns it. Propagate our priority down the owner chain
	// before sleeping so the owners cannot be starved by middle-priority
	// threads.
	m.k.boostI(m.owner, self.effPrio)
	self.wtobj = m
	self.wqueue = &m.queue
	m.queue.insertPriority(self)
	st := m.k.goSleepS(self, StateWaiting)
	m.k.assertf(st == StatusOK, "mutex handoff returned %v", st)
	m.k.assertf(m.owner == self, "mutex handoff missed the waiter")
}

func (m *Mutex) tryLockS(self *Thread) bool {
	m.k.assertLockedI()
	switch m.owner {
	case nil:
		m.owner = self
		m.nesting = 1
		self.held = append(self.held, m)
		return true
	case self:
		m.nesting++
		return true
	default:
		return false
	}
}

// Unlock releases the mutex. Only the owner may call it; fully releasing a
// contended mutex hands ownership to the highest-priority waiter and drops
// any priority boost the mutex was sustaining.
func (m *Mutex) Unlock(self *Thread) {
	m.k.Lock(self)
	m.unlockS(self)
	m.k.Unlock()
}

func (m *Mutex) unlockS(self *Thread) {
	m.k.assertLockedI()
	m.k.assertf(m.owner == self, "mutex unlocked by non-owner")
	m.nesting--
	if m.nesting > 0 {
		return
	}

	for i, held := range self.held {
		if held == m {
			self.held = append(self.held[:i], self.held[i+1:]...)
			break
		}
	}
	self.effPrio = self.inheritedPriorityI()

	if m.queue.empty() {
		m.owner = nil
		m.k.rescheduleS(self)
		return
	}
	tp := m.queue.popFront()
	m.owner = tp
	m.nesting = 1
	tp.held = append(tp.held, m)
	tp.wtstatus = StatusOK
	m.k.readyI(tp)
	m.k.rescheduleS(self)
}

// inheritedPriorityI recomputes a thread's effective priority from its base
// priority and the waiters on the mutexes it still holds.
func (tp *Thread) inheritedPriorityI() int {
	prio := tp.basePrio
	for _, m := range tp.held {
		if h := m.queue.head; h != nil && h.effPrio > prio {
			prio = h.effPrio
		}
	}
	return prio
}

// boostI raises tp's effective priority to at least prio and follows the
// blocking chain: if tp itself sleeps on a mutex, its owner is boosted too.
func (k *Kernel) boostI(tp *Thread, prio int) {
	for tp != nil && tp.effPrio < prio {
		tp.effPrio = prio
		switch tp.state {
		case StateReady:
			k.ready.requeue(tp)
		case StateWaiting:
			if m, ok := tp.wtobj.(*Mutex); ok {
				tp.wqueue.requeue(tp)
				tp = m.owner
				continue
			}
		}
		return
	}
}
