package systick

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/keel-rt/keel/internal/kernel"
)

func TestDriverAdvancesKernelTicks(t *testing.T) {
	k := kernel.New(kernel.DefaultConfig())
	main := k.Boot()
	defer k.Shutdown(main)

	d, err := Start(k, time.Millisecond, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for k.Ticks() < 10 {
		select {
		case <-deadline:
			t.Fatalf("only %d ticks delivered", k.Ticks())
		case <-time.After(time.Millisecond):
		}
	}
	d.Stop()

	// After Stop no further interrupt may arrive.
	at := k.Ticks()
	time.Sleep(20 * time.Millisecond)
	if now := k.Ticks(); now != at {
		t.Fatalf("ticks advanced after stop: %d -> %d", at, now)
	}
}

func TestDriverWakesSleepingThread(t *testing.T) {
	k := kernel.New(kernel.DefaultConfig())
	main := k.Boot()
	defer k.Shutdown(main)

	d, err := Start(k, time.Millisecond, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	start := k.Ticks()
	k.Sleep(main, 5)
	if woke := k.Ticks(); woke < start+5 {
		t.Fatalf("slept from tick %d to %d, want at least 5 apart", start, woke)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	k := kernel.New(kernel.DefaultConfig())
	main := k.Boot()
	defer k.Shutdown(main)

	d, err := Start(k, time.Millisecond, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	d.Stop()
	d.Stop()
}
