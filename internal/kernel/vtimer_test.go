package kernel

import (
	"fmt"
	"math/rand"
	"testing"
)

func newTestRand() *rand.Rand { return rand.New(rand.NewSource(7)) }

func TestSleepWakesOnExactTick(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		woke := make(chan uint64, 1)
		tp := k.Spawn(main, "sleeper", HighPriority, func(self *Thread) {
			k.Sleep(self, 10)
			woke <- k.Ticks()
		})
		for i := 0; i < 9; i++ {
			k.Tick()
		}
		select {
		case at := <-woke:
			t.Fatalf("woke at tick %d, before the deadline", at)
		default:
		}
		k.Tick()
		if st := k.Join(main, tp); st != StatusOK {
			t.Fatalf("join = %v", st)
		}
		if at := <-woke; at != 10 {
			t.Fatalf("woke at tick %d, want 10", at)
		}
	})
}

func TestSleepUntilPastDeadlineReturnsImmediately(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		for i := 0; i < 5; i++ {
			k.Tick()
		}
		k.SleepUntil(main, 3) // already behind us; must not block
		if now := k.Ticks(); now != 5 {
			t.Fatalf("ticks = %d, want 5", now)
		}
	})
}

func TestTimersFireInDeadlineOrder(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		var fired []string
		log := func(name string) TimerFunc {
			return func(k *Kernel, arg any) {
				fired = append(fired, fmt.Sprintf("%s@%d", name, k.Ticks()))
			}
		}

		// Armed out of deadline order; equal deadlines fire in arming order.
		var a, b, c VTimer
		k.ArmTimer(main, &a, 5, log("a"), nil)
		k.ArmTimer(main, &b, 3, log("b"), nil)
		k.ArmTimer(main, &c, 5, log("c"), nil)

		for i := 0; i < 6; i++ {
			k.Tick()
		}
		want := []string{"b@3", "a@5", "c@5"}
		if len(fired) != len(want) {
			t.Fatalf("fired = %v, want %v", fired, want)
		}
		for i := range want {
			if fired[i] != want[i] {
				t.Fatalf("fired = %v, want %v", fired, want)
			}
		}
	})
}

func TestCancelBeforeExpiryKeepsSiblingsOnSchedule(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		var fired []string
		var short, long VTimer
		k.ArmTimer(main, &short, 3, func(k *Kernel, arg any) {
			fired = append(fired, fmt.Sprintf("short@%d", k.Ticks()))
		}, nil)
		k.ArmTimer(main, &long, 7, func(k *Kernel, arg any) {
			fired = append(fired, fmt.Sprintf("long@%d", k.Ticks()))
		}, nil)

		// long's delta is relative to short; canceling short must fold the
		// delta back so long still fires at tick 7.
		k.CancelTimer(main, &short)
		for i := 0; i < 8; i++ {
			k.Tick()
		}
		if len(fired) != 1 || fired[0] != "long@7" {
			t.Fatalf("fired = %v, want [long@7]", fired)
		}
	})
}

func TestCancelDisarmedTimerIsNoop(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		var vt VTimer
		k.CancelTimer(main, &vt) // never armed
		k.ArmTimer(main, &vt, 1, func(k *Kernel, arg any) {}, nil)
		k.Tick()
		k.CancelTimer(main, &vt) // already fired
		if vt.Armed() {
			t.Fatal("timer still armed after firing")
		}
	})
}

func TestTimerRearmsItselfFromCallback(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		var vt VTimer
		var at []uint64
		var periodic TimerFunc
		periodic = func(k *Kernel, arg any) {
			at = append(at, k.Ticks())
			if len(at) < 3 {
				k.SetTimerI(&vt, 4, periodic, nil)
			}
		}
		k.ArmTimer(main, &vt, 4, periodic, nil)
		for i := 0; i < 12; i++ {
			k.Tick()
		}
		if len(at) != 3 || at[0] != 4 || at[1] != 8 || at[2] != 12 {
			t.Fatalf("periodic fired at %v, want [4 8 12]", at)
		}
	})
}

func TestSnapshotReportsAbsoluteDeadlines(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		var a, b VTimer
		k.ArmTimer(main, &a, 9, func(k *Kernel, arg any) {}, nil)
		k.ArmTimer(main, &b, 2, func(k *Kernel, arg any) {}, nil)

		snap := k.CaptureFrom(main)
		if len(snap.Timers) != 2 {
			t.Fatalf("snapshot holds %d timers, want 2", len(snap.Timers))
		}
		if snap.Timers[0].RemainingTicks != 2 || snap.Timers[1].RemainingTicks != 9 {
			t.Fatalf("remaining = [%d %d], want [2 9]",
				snap.Timers[0].RemainingTicks, snap.Timers[1].RemainingTicks)
		}
		k.CancelTimer(main, &a)
		k.CancelTimer(main, &b)
	})
}

func TestDeadlinesStayMonotonicUnderRandomOps(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		rng := newTestRand()
		timers := make([]VTimer, 16)
		noop := func(*Kernel, any) {}
		for op := 0; op < 500; op++ {
			vt := &timers[rng.Intn(len(timers))]
			switch rng.Intn(3) {
			case 0:
				if !vt.Armed() {
					k.ArmTimer(main, vt, uint64(1+rng.Intn(20)), noop, nil)
				}
			case 1:
				k.CancelTimer(main, vt)
			case 2:
				k.Tick()
			}
			deadlines := k.CaptureFrom(main).Timers
			for i := 1; i < len(deadlines); i++ {
				if deadlines[i].RemainingTicks < deadlines[i-1].RemainingTicks {
					t.Fatalf("op %d: deadlines out of order: %+v", op, deadlines)
				}
			}
		}
		for i := range timers {
			k.CancelTimer(main, &timers[i])
		}
	})
}

func TestArmingAnArmedTimerFaults(t *testing.T) {
	withKernel(t, func(k *Kernel, main *Thread) {
		var vt VTimer
		k.ArmTimer(main, &vt, 5, func(k *Kernel, arg any) {}, nil)
		func() {
			defer func() {
				if recover() == nil {
					t.Fatal("double arm did not halt the kernel")
				}
			}()
			k.ArmTimer(main, &vt, 5, func(k *Kernel, arg any) {}, nil)
		}()
		k.Unlock() // the fault fired inside the locked region
		k.CancelTimer(main, &vt)
	})
}
