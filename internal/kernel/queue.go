package kernel

// threadQueue is an intrusive doubly-linked list of threads. A thread is a
// member of at most one queue at a time (the ready queue or one wait queue).
// All operations require the System Lock.
type threadQueue struct {
	head, tail *Thread
}

func (q *threadQueue) empty() bool { return q.head == nil }

// insertBack appends tp, preserving arrival order.
func (q *threadQueue) insertBack(tp *Thread) {
	tp.qnext = nil
	tp.qprev = q.tail
	if q.tail == nil {
		q.head = tp
	} else {
		q.tail.qnext = tp
	}
	q.tail = tp
}

// insertPriority inserts tp ordered by descending effective priority,
// FIFO among equal priorities: tp goes behind every thread whose priority
// is greater than or equal to its own. The tie-break holds even for threads
// inserted inside the same locked section, because insertion order is
// arrival order.
func (q *threadQueue) insertPriority(tp *Thread) {
	cur := q.head
	for cur != nil && cur.effPrio >= tp.effPrio {
		cur = cur.qnext
	}
	if cur == nil {
		q.insertBack(tp)
		return
	}
	tp.qnext = cur
	tp.qprev = cur.qprev
	if cur.qprev == nil {
		q.head = tp
	} else {
		cur.qprev.qnext = tp
	}
	cur.qprev = tp
}

// popFront removes and returns the head, or nil if the queue is empty.
func (q *threadQueue) popFront() *Thread {
	tp := q.head
	if tp == nil {
		return nil
	}
	q.remove(tp)
	return tp
}

// remove unlinks tp from the queue.
func (q *threadQueue) remove(tp *Thread) {
	if tp.qprev == nil {
		q.head = tp.qnext
	} else {
		tp.qprev.qnext = tp.qnext
	}
	if tp.qnext == nil {
		q.tail = tp.qprev
	} else {
		tp.qnext.qprev = tp.qprev
	}
	tp.qnext, tp.qprev = nil, nil
}

// requeue re-sorts tp after its effective priority changed.
func (q *threadQueue) requeue(tp *Thread) {
	q.remove(tp)
	q.insertPriority(tp)
}
