//go:build linux

package systick

import (
	"encoding/binary"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const timebaseName = "timerfd"

// fdWaiter reads expiration counts from a CLOCK_MONOTONIC timerfd. The
// kernel accumulates missed expirations into the counter, so every tick is
// accounted for even when the process stalls. The fd is nonblocking and
// wrapped in an os.File so reads park in the runtime poller and Close
// interrupts a pending Wait.
type fdWaiter struct {
	f *os.File
}

func newWaiter(interval time.Duration) (waiter, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	ts := unix.NsecToTimespec(interval.Nanoseconds())
	spec := unix.ItimerSpec{Interval: ts, Value: ts}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &fdWaiter{f: os.NewFile(uintptr(fd), "timerfd")}, nil
}

func (w *fdWaiter) Wait() (uint64, error) {
	var buf [8]byte
	n, err := w.f.Read(buf[:])
	if err != nil {
		return 0, err
	}
	if n != len(buf) {
		return 0, io.ErrUnexpectedEOF
	}
	return binary.NativeEndian.Uint64(buf[:]), nil
}

func (w *fdWaiter) Close() error {
	return w.f.Close()
}
