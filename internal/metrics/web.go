package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunStatus summarizes the most recent run for the status page.
type RunStatus struct {
	RunID    string
	Finished time.Time
	Captures int
	Packets  int
	Bytes    int64
	Err      string
}

// WebServer exposes a Recorder over HTTP while a watch session runs.
type WebServer struct {
	recorder    *Recorder
	addr        string
	enablePprof bool
	startTime   time.Time
	status      atomic.Pointer[RunStatus]
}

// WebServerOption configures a WebServer.
type WebServerOption func(*WebServer)

// WithPprof enables /debug/pprof/* endpoints.
func WithPprof(enable bool) WebServerOption {
	return func(ws *WebServer) {
		ws.enablePprof = enable
	}
}

// NewWebServer serves rec on addr.
func NewWebServer(addr string, rec *Recorder, opts ...WebServerOption) *WebServer {
	ws := &WebServer{recorder: rec, addr: addr, startTime: time.Now()}
	for _, opt := range opts {
		opt(ws)
	}
	return ws
}

// SetStatus replaces the run summary shown on /status.
func (s *WebServer) SetStatus(st RunStatus) { s.status.Store(&st) }

// Handler builds the route table.
func (s *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.recorder.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/status", s.handleTextStatus)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

// Serve listens until ctx is cancelled.
func (s *WebServer) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *WebServer) handleTextStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(s.startTime).Truncate(time.Second)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	fmt.Fprintf(w, "=== trafficgen ===\n\n")
	fmt.Fprintf(w, "Uptime:       %s\n", uptime)
	fmt.Fprintf(w, "Go Version:   %s\n", runtime.Version())
	fmt.Fprintf(w, "Goroutines:   %d\n", runtime.NumGoroutine())
	fmt.Fprintf(w, "Alloc:        %s\n\n", formatBytes(m.Alloc))

	st := s.status.Load()
	if st == nil {
		fmt.Fprintf(w, "No run finished yet\n")
		return
	}
	fmt.Fprintf(w, "--- Last run ---\n")
	fmt.Fprintf(w, "Run ID:       %s\n", st.RunID)
	fmt.Fprintf(w, "Finished:     %s\n", st.Finished.Format(time.RFC3339))
	fmt.Fprintf(w, "Captures:     %d\n", st.Captures)
	fmt.Fprintf(w, "Packets:      %d\n", st.Packets)
	fmt.Fprintf(w, "Bytes:        %s\n", formatBytes(uint64(st.Bytes)))
	if st.Err != "" {
		fmt.Fprintf(w, "Error:        %s\n", st.Err)
	}
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
