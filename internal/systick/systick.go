// Package systick drives a kernel's tick interrupt from wall-clock time.
// On Linux the timebase is a timerfd, which reports missed expirations so a
// descheduled simulator catches up instead of silently losing ticks;
// elsewhere it falls back to a runtime ticker.
package systick

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/keel-rt/keel/internal/kernel"
)

// waiter is one platform timebase. Wait blocks until at least one interval
// elapsed and returns how many did; it returns an error once closed.
type waiter interface {
	Wait() (uint64, error)
	Close() error
}

// Driver periodically raises the kernel's tick interrupt.
type Driver struct {
	w      waiter
	logger *zap.Logger

	stopOnce sync.Once
	done     chan struct{}

	mu       sync.Mutex
	overruns uint64
}

// Start begins delivering tick interrupts to k every interval.
func Start(k *kernel.Kernel, interval time.Duration, logger *zap.Logger) (*Driver, error) {
	w, err := newWaiter(interval)
	if err != nil {
		return nil, err
	}
	d := &Driver{w: w, logger: logger, done: make(chan struct{})}
	logger.Info("systick started",
		zap.Duration("interval", interval),
		zap.String("timebase", timebaseName))
	go d.run(k)
	return d, nil
}

func (d *Driver) run(k *kernel.Kernel) {
	defer close(d.done)
	for {
		n, err := d.w.Wait()
		if err != nil {
			return
		}
		if n > 1 {
			d.mu.Lock()
			d.overruns += n - 1
			d.mu.Unlock()
			d.logger.Debug("tick overrun", zap.Uint64("missed", n-1))
		}
		for ; n > 0; n-- {
			k.Tick()
		}
	}
}

// Overruns reports how many tick intervals elapsed without a timely
// delivery since Start.
func (d *Driver) Overruns() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.overruns
}

// Stop halts tick delivery and waits for the delivery goroutine to drain.
// No tick interrupt is raised after Stop returns.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() {
		_ = d.w.Close()
		<-d.done
	})
}
