//go:build !linux

package systick

import (
	"errors"
	"time"
)

const timebaseName = "ticker"

var errClosed = errors.New("systick: timebase closed")

// tickerWaiter is the fallback timebase. time.Ticker drops ticks under
// load instead of accumulating them, so overruns go unreported here.
type tickerWaiter struct {
	t    *time.Ticker
	quit chan struct{}
}

func newWaiter(interval time.Duration) (waiter, error) {
	return &tickerWaiter{
		t:    time.NewTicker(interval),
		quit: make(chan struct{}),
	}, nil
}

func (w *tickerWaiter) Wait() (uint64, error) {
	select {
	case <-w.t.C:
		return 1, nil
	case <-w.quit:
		return 0, errClosed
	}
}

func (w *tickerWaiter) Close() error {
	w.t.Stop()
	close(w.quit)
	return nil
}
