package kernel

import "testing"

const (
	evRxReady EventMask = 1 << 0
	evTxDone  EventMask = 1 << 1
	evError   EventMask = 1 << 2
)

func TestPendingEventsSatisfyWaitWithoutSleeping(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		k.Lock(main)
		k.SignalEventsI(main, evRxReady|evError)
		k.Unlock()

		got := k.WaitAnyEvent(main, evRxReady)
		if got != evRxReady {
			t.Fatalf("got %#x, want %#x", got, evRxReady)
		}
		// Only the matched subset is consumed.
		got, st := k.WaitAnyEventTimeout(main, evError, Immediate)
		if st != StatusOK || got != evError {
			t.Fatalf("got %#x %v, want %#x ok", got, st, evError)
		}
	})
}

func TestEventWaitImmediateWithNothingPending(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		got, st := k.WaitAnyEventTimeout(main, evRxReady, Immediate)
		if st != StatusTimeout || got != 0 {
			t.Fatalf("got %#x %v, want timeout", got, st)
		}
	})
}

func TestBroadcastNarrowedByListenerMask(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		src := NewEventSource(k)
		got := make(chan EventMask, 1)
		tp := k.Spawn(main, "rx", HighPriority, func(self *Thread) {
			var el EventListener
			src.Register(self, &el, evRxReady)
			got <- k.WaitAnyEvent(self, evRxReady|evTxDone)
			src.Unregister(self, &el)
		})
		// evTxDone is outside the listener's mask; it must not leak through.
		src.Broadcast(main, evRxReady|evTxDone)
		if st := k.Join(main, tp); st != StatusOK {
			t.Fatalf("join = %v", st)
		}
		if flags := <-got; flags != evRxReady {
			t.Fatalf("delivered %#x, want %#x", flags, evRxReady)
		}
	})
}

func TestBroadcastWakesEveryListener(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		src := NewEventSource(k)
		got := make(chan string, 2)
		var tps []*Thread
		for _, name := range []string{"l1", "l2"} {
			name := name
			tps = append(tps, k.Spawn(main, name, HighPriority, func(self *Thread) {
				var el EventListener
				src.Register(self, &el, evError)
				k.WaitAnyEvent(self, evError)
				src.Unregister(self, &el)
				got <- name
			}))
		}
		src.Broadcast(main, evError)
		seen := map[string]bool{<-got: true, <-got: true}
		if !seen["l1"] || !seen["l2"] {
			t.Fatalf("woke %v, want both listeners", seen)
		}
		for _, tp := range tps {
			k.Join(main, tp)
		}
	})
}

func TestBroadcastFromInterrupt(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		src := NewEventSource(k)
		got := make(chan EventMask, 1)
		tp := k.Spawn(main, "handler", HighPriority, func(self *Thread) {
			var el EventListener
			src.Register(self, &el, evRxReady)
			got <- k.WaitAnyEvent(self, evRxReady)
			src.Unregister(self, &el)
		})
		k.ISR(func() {
			k.LockFromISR()
			src.BroadcastI(evRxReady)
			k.UnlockFromISR()
		})
		if st := k.Join(main, tp); st != StatusOK {
			t.Fatalf("join = %v", st)
		}
		if flags := <-got; flags != evRxReady {
			t.Fatalf("delivered %#x, want %#x", flags, evRxReady)
		}
	})
}

func TestEventWaitTimesOut(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		res := make(chan Status, 1)
		tp := k.Spawn(main, "waiter", HighPriority, func(self *Thread) {
			_, st := k.WaitAnyEventTimeout(self, evTxDone, 4)
			res <- st
		})
		for i := 0; i < 4; i++ {
			k.Tick()
		}
		if st := k.Join(main, tp); st != StatusOK {
			t.Fatalf("join = %v", st)
		}
		if st := <-res; st != StatusTimeout {
			t.Fatalf("wait = %v, want timeout", st)
		}
	})
}

func TestUnregisteredListenerStopsReceiving(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		src := NewEventSource(k)
		done := make(chan struct{})
		tp := k.Spawn(main, "once", HighPriority, func(self *Thread) {
			var el EventListener
			src.Register(self, &el, evRxReady)
			k.WaitAnyEvent(self, evRxReady)
			src.Unregister(self, &el)
			close(done)
			// Second broadcast lands after unregister; poll must come up dry.
			if got, st := k.WaitAnyEventTimeout(self, evRxReady, Immediate); st != StatusTimeout {
				t.Errorf("got %#x %v after unregister", got, st)
			}
		})
		src.Broadcast(main, evRxReady)
		<-done
		src.Broadcast(main, evRxReady)
		k.Join(main, tp)
	})
}
