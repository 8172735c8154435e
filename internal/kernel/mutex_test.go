package kernel

import "testing"

// prioOf reads a thread's effective priority through the snapshot surface.
func prioOf(k *Kernel, self *Thread, name string) int {
	snap := k.CaptureFrom(self)
	for _, ti := range snap.Threads {
		if ti.Name == name {
			return ti.Priority
		}
	}
	return -1
}

func TestMutexRecursiveAcquire(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		mtx := NewMutex(k)
		mtx.Lock(main)
		mtx.Lock(main)
		if !mtx.TryLock(main) {
			t.Fatal("recursive trylock by the owner failed")
		}
		mtx.Unlock(main)
		mtx.Unlock(main)
		if mtx.Owner(main) != main {
			t.Fatal("mutex released before the outermost unlock")
		}
		mtx.Unlock(main)
		if mtx.Owner(main) != nil {
			t.Fatal("mutex still owned after the outermost unlock")
		}
	})
}

func TestMutexTryLockContended(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		mtx := NewMutex(k)
		taken := make(chan bool, 1)
		mtx.Lock(main)
		tp := k.Spawn(main, "contender", HighPriority, func(self *Thread) {
			taken <- mtx.TryLock(self)
		})
		if <-taken {
			t.Fatal("trylock succeeded on an owned mutex")
		}
		mtx.Unlock(main)
		k.Join(main, tp)
	})
}

func TestMutexHandoffToWaiter(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		mtx := NewMutex(k)
		entered := make(chan string, 2)
		mtx.Lock(main)
		tp := k.Spawn(main, "waiter", HighPriority, func(self *Thread) {
			mtx.Lock(self)
			entered <- "waiter"
			mtx.Unlock(self)
		})
		entered <- "owner"
		mtx.Unlock(main) // hands ownership over; the waiter outranks us
		if first, second := <-entered, <-entered; first != "owner" || second != "waiter" {
			t.Fatalf("critical-section order = %q, %q", first, second)
		}
		k.Join(main, tp)
	})
}

func TestMutexPriorityInheritance(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		mtx := NewMutex(k)
		mtx.Lock(main)
		tp := k.Spawn(main, "urgent", HighPriority, func(self *Thread) {
			mtx.Lock(self)
			mtx.Unlock(self)
		})
		if got := prioOf(k, main, "main"); got != HighPriority {
			t.Fatalf("owner priority = %d while blocking a waiter at %d", got, HighPriority)
		}
		mtx.Unlock(main)
		if got := prioOf(k, main, "main"); got != NormalPriority {
			t.Fatalf("owner priority = %d after release, want base %d", got, NormalPriority)
		}
		k.Join(main, tp)
	})
}

func TestMutexTransitiveInheritance(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		m1 := NewMutex(k)
		m2 := NewMutex(k)

		// bottom holds m2 and parks; middle holds m1 and blocks on m2;
		// urgent blocks on m1. The boost must reach bottom through middle.
		bottom := k.Spawn(main, "bottom", 65, func(self *Thread) {
			m2.Lock(self)
			k.Suspend(self)
			m2.Unlock(self)
		})
		middle := k.Spawn(main, "middle", 66, func(self *Thread) {
			m1.Lock(self)
			m2.Lock(self)
			m2.Unlock(self)
			m1.Unlock(self)
		})
		urgent := k.Spawn(main, "urgent", 90, func(self *Thread) {
			m1.Lock(self)
			m1.Unlock(self)
		})

		if got := prioOf(k, main, "middle"); got != 90 {
			t.Fatalf("middle boosted to %d, want 90", got)
		}
		if got := prioOf(k, main, "bottom"); got != 90 {
			t.Fatalf("bottom boosted to %d, want 90", got)
		}

		k.Resume(main, bottom, StatusOK)
		for _, tp := range []*Thread{bottom, middle, urgent} {
			k.Join(main, tp)
		}
		for _, m := range []*Mutex{m1, m2} {
			if m.Owner(main) != nil {
				t.Fatal("mutex still owned after the chain unwound")
			}
		}
	})
}

func TestMutexUnlockByNonOwnerFaults(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		mtx := NewMutex(k)
		tp := k.Spawn(main, "owner", HighPriority, func(self *Thread) {
			mtx.Lock(self)
			k.Suspend(self)
			mtx.Unlock(self)
		})
		func() {
			defer func() {
				if recover() == nil {
					t.Fatal("unlock by non-owner did not halt the kernel")
				}
			}()
			mtx.Unlock(main)
		}()
		k.Unlock() // the fault fired inside the locked region
		k.Resume(main, tp, StatusOK)
		k.Join(main, tp)
	})
}
