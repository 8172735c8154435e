package kernel

// ============================================================================
// Counting semaphores
// ============================================================================

// Semaphore is a counting semaphore. A negative count means -count threads
// are queued on it; waiters are released in priority order, FIFO among
// equals.
type Semaphore struct {
	k     *Kernel
	count int
	queue threadQueue
}

// NewSemaphore returns a semaphore holding n initial permits. n must not be
// negative.
func NewSemaphore(k *Kernel, n int) *Semaphore {
	if n < 0 {
		k.fault("semaphore created with count %d", n)
	}
	return &Semaphore{k: k, count: n}
}

// Count returns the current counter value. Negative values report queued
// waiters. Only meaningful as a point-in-time observation.
func (s *Semaphore) Count(self *Thread) int {
	s.k.Lock(self)
	n := s.count
	s.k.Unlock()
	return n
}

// Wait takes one permit, sleeping until one is signaled or the semaphore is
// reset.
func (s *Semaphore) Wait(self *Thread) Status {
	return s.WaitTimeout(self, Infinite)
}

// WaitTimeout takes one permit, giving up after ticks tick interrupts.
// Immediate polls without sleeping.
func (s *Semaphore) WaitTimeout(self *Thread, ticks uint64) Status {
	s.k.Lock(self)
	st := s.waitS(self, ticks)
	s.k.Unlock()
	return st
}

// WaitI is the interrupt-context poll: it takes a permit only if one is
// available right now.
func (s *Semaphore) WaitI() Status {
	s.k.assertLockedI()
	if s.count <= 0 {
		return StatusTimeout
	}
	s.count--
	return StatusOK
}

func (s *Semaphore) waitS(self *Thread, ticks uint64) Status {
	s.k.assertLockedI()
	s.count--
	if s.count >= 0 {
		return StatusOK
	}
	if ticks == Immediate {
		s.count++
		return StatusTimeout
	}
	self.wtobj = s
	self.wqueue = &s.queue
	s.queue.insertPriority(self)
	return s.k.goSleepTimeoutS(self, StateWaiting, ticks)
}

// Signal releases one permit, waking the highest-priority waiter if any.
func (s *Semaphore) Signal(self *Thread) {
	s.k.Lock(self)
	s.SignalI()
	s.k.rescheduleS(self)
	s.k.Unlock()
}

// SignalI is the I-class release, usable from interrupt handlers. The woken
// thread, if any, runs after the interrupt epilogue reschedules.
func (s *Semaphore) SignalI() {
	s.k.assertLockedI()
	s.count++
	if s.count <= 0 {
		tp := s.queue.popFront()
		tp.wtstatus = StatusOK
		s.k.readyI(tp)
	}
}

// Reset forces the counter to n and releases every queued waiter with
// StatusReset.
func (s *Semaphore) Reset(self *Thread, n int) {
	s.k.Lock(self)
	s.ResetI(n)
	s.k.rescheduleS(self)
	s.k.Unlock()
}

// ResetI is the I-class variant of Reset.
func (s *Semaphore) ResetI(n int) {
	s.k.assertLockedI()
	if n < 0 {
		s.k.fault("semaphore reset to count %d", n)
	}
	for !s.queue.empty() {
		tp := s.queue.popFront()
		tp.wtstatus = StatusReset
		s.k.readyI(tp)
	}
	s.count = n
}
