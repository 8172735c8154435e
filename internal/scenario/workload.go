package scenario

import (
	"fmt"
	"sync/atomic"

	"github.com/keel-rt/keel/internal/kernel"
)

// Group is a running set of workload threads. Rounds counts completed
// workload iterations across all threads; it keeps counting until Stop.
type Group struct {
	k       *kernel.Kernel
	threads []*kernel.Thread
	gates   []*kernel.Semaphore // kicked on Stop so blocked threads notice
	rounds  atomic.Uint64
}

// Rounds reports the total workload iterations completed so far.
func (g *Group) Rounds() uint64 { return g.rounds.Load() }

// Stop requests termination of every thread in the group and joins them.
func (g *Group) Stop(self *kernel.Thread) {
	for _, tp := range g.threads {
		g.k.Terminate(tp)
	}
	for _, gate := range g.gates {
		gate.Reset(self, 0)
	}
	for _, tp := range g.threads {
		g.k.Join(self, tp)
	}
	g.threads = nil
	g.gates = nil
}

// Spawn starts every workload in cfg and returns the running group.
func Spawn(k *kernel.Kernel, self *kernel.Thread, cfg *Config) (*Group, error) {
	g := &Group{k: k}
	for _, w := range cfg.Workloads {
		switch w.Kind {
		case "sleeper":
			g.spawnSleepers(self, w)
		case "pingpong":
			g.spawnPingPong(self, w)
		case "broadcaster":
			g.spawnBroadcaster(self, w)
		case "contenders":
			g.spawnContenders(self, w)
		default:
			return nil, fmt.Errorf("workload %q has unknown kind %q", w.Name, w.Kind)
		}
	}
	return g, nil
}

func (g *Group) add(tp *kernel.Thread) { g.threads = append(g.threads, tp) }

// spawnSleepers starts Count threads that sleep Period ticks per round.
func (g *Group) spawnSleepers(self *kernel.Thread, w Workload) {
	n := max(w.Count, 1)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%s-%d", w.Name, i)
		g.add(g.k.Spawn(self, name, w.Priority, func(self *kernel.Thread) {
			for !self.TerminationRequested() {
				g.k.Sleep(self, w.Period)
				g.rounds.Add(1)
			}
		}))
	}
}

// spawnPingPong starts a pair of threads bouncing a token between two
// semaphores, pacing each round with a Period-tick sleep.
func (g *Group) spawnPingPong(self *kernel.Thread, w Workload) {
	ping := kernel.NewSemaphore(g.k, 1)
	pong := kernel.NewSemaphore(g.k, 0)
	g.gates = append(g.gates, ping, pong)

	side := func(name string, take, give *kernel.Semaphore) {
		g.add(g.k.Spawn(self, name, w.Priority, func(self *kernel.Thread) {
			for !self.TerminationRequested() {
				if take.Wait(self) != kernel.StatusOK {
					return // gate reset during shutdown
				}
				g.k.Sleep(self, w.Period)
				g.rounds.Add(1)
				give.Signal(self)
			}
		}))
	}
	side(w.Name+"-ping", ping, pong)
	side(w.Name+"-pong", pong, ping)
}

// spawnBroadcaster starts a periodic virtual timer that broadcasts an event
// flag to Count listener threads.
func (g *Group) spawnBroadcaster(self *kernel.Thread, w Workload) {
	const fired kernel.EventMask = 1 << 0
	src := kernel.NewEventSource(g.k)

	n := max(w.Count, 1)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%s-rx-%d", w.Name, i)
		g.add(g.k.Spawn(self, name, w.Priority, func(self *kernel.Thread) {
			var el kernel.EventListener
			src.Register(self, &el, fired)
			defer src.Unregister(self, &el)
			for !self.TerminationRequested() {
				// The timeout bounds the wait so termination is noticed
				// even if the timer thread stopped first.
				if _, st := g.k.WaitAnyEventTimeout(self, fired, 4*w.Period); st == kernel.StatusOK {
					g.rounds.Add(1)
				}
			}
		}))
	}

	g.add(g.k.Spawn(self, w.Name+"-timer", w.Priority, func(self *kernel.Thread) {
		var vt kernel.VTimer
		var periodic kernel.TimerFunc
		periodic = func(k *kernel.Kernel, arg any) {
			src.BroadcastI(fired)
			if !self.TerminationRequested() {
				k.SetTimerI(&vt, w.Period, periodic, nil)
			}
		}
		g.k.ArmTimer(self, &vt, w.Period, periodic, nil)
		for !self.TerminationRequested() {
			g.k.Sleep(self, w.Period)
		}
		g.k.CancelTimer(self, &vt)
	}))
}

// spawnContenders starts Count threads hammering one shared mutex.
func (g *Group) spawnContenders(self *kernel.Thread, w Workload) {
	mtx := kernel.NewMutex(g.k)
	n := max(w.Count, 2)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%s-%d", w.Name, i)
		g.add(g.k.Spawn(self, name, w.Priority, func(self *kernel.Thread) {
			for !self.TerminationRequested() {
				mtx.Lock(self)
				g.k.Sleep(self, w.Period) // hold across a sleep to force contention
				g.rounds.Add(1)
				mtx.Unlock(self)
				g.k.Yield(self)
			}
		}))
	}
}
