// Package inspect exposes kernel state over HTTP for debugging a running
// simulation. Snapshots are taken through the kernel's debug-probe path, so
// an inspector never perturbs scheduling beyond a short interrupt.
package inspect

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/keel-rt/keel/internal/kernel"
)

// NewMux builds the debug endpoint multiplexer:
//
//	GET /kernel          -> full kernel.Snapshot
//	GET /kernel/threads  -> thread table only. Query param: state=<name>
//	GET /kernel/timers   -> armed timers only. Query param: limit=<n>
func NewMux(k *kernel.Kernel) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/kernel", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, k.Capture())
	})

	mux.HandleFunc("/kernel/threads", func(w http.ResponseWriter, r *http.Request) {
		threads := k.Capture().Threads
		if state := r.URL.Query().Get("state"); state != "" {
			out := make([]kernel.ThreadInfo, 0, len(threads))
			for _, ti := range threads {
				if ti.State == state {
					out = append(out, ti)
				}
			}
			threads = out
		}
		writeJSON(w, threads)
	})

	mux.HandleFunc("/kernel/timers", func(w http.ResponseWriter, r *http.Request) {
		timers := k.Capture().Timers
		if limStr := r.URL.Query().Get("limit"); limStr != "" {
			if lim, err := strconv.Atoi(limStr); err == nil && lim >= 0 && lim < len(timers) {
				timers = timers[:lim]
			}
		}
		writeJSON(w, timers)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// StartDebugHTTP serves the debug endpoints on addr and returns the shutdown
// function along with the bound address (useful when addr uses :0).
func StartDebugHTTP(k *kernel.Kernel, addr string, logger *zap.Logger) (shutdown func(ctx context.Context) error, boundAddr string, err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", err
	}
	server := &http.Server{Handler: NewMux(k), ReadHeaderTimeout: 3 * time.Second}
	go func() {
		if serr := server.Serve(ln); serr != nil && serr != http.ErrServerClosed {
			logger.Warn("debug http server stopped", zap.Error(serr))
		}
	}()
	logger.Info("debug http listening", zap.String("addr", ln.Addr().String()))
	return server.Shutdown, ln.Addr().String(), nil
}
