// Package web exposes the subsystem state over HTTP, for debugging and
// scripted control. It is optional; the unix-socket control endpoint remains
// the primary interface.
package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"rtpulse/internal/core"
)

// maxDutyBody bounds POST /api/duty bodies, mirroring the control device's
// write bound.
const maxDutyBody = 15

// Controller is what the web layer needs from the subsystem.
type Controller interface {
	Snapshot() core.Snapshot
	SetDuty(percent int) int
}

type statusPayload struct {
	core.Snapshot
	UptimeSeconds int64 `json:"uptime_seconds"`
}

func Handler(ctl Controller, startedAt time.Time) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		payload := statusPayload{
			Snapshot:      ctl.Snapshot(),
			UptimeSeconds: int64(time.Since(startedAt).Seconds()),
		}
		b, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			http.Error(w, "marshal failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
		_, _ = w.Write([]byte("\n"))
	})

	mux.HandleFunc("/api/duty", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxDutyBody+1))
		if err != nil {
			http.Error(w, "read body failed", http.StatusBadRequest)
			return
		}
		if len(body) > maxDutyBody {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		// Unlike the byte-stream device, HTTP surfaces parse failures.
		v, err := strconv.Atoi(strings.TrimSpace(string(body)))
		if err != nil {
			http.Error(w, "invalid duty value", http.StatusBadRequest)
			return
		}
		applied := ctl.SetDuty(v)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, "{\"ok\":true,\"duty_percent\":%d}\n", applied)
	})

	return mux
}

// Server runs the HTTP endpoint. Start binds synchronously so a bad listen
// address fails startup rather than surfacing later.
type Server struct {
	srv *http.Server

	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewServer(listen string, ctl Controller) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              listen,
			Handler:           Handler(ctl, time.Now()),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", s.srv.Addr, err)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Serve returns ErrServerClosed on Close; anything else means the
		// listener broke, and the process keeps running on the socket
		// endpoint regardless.
		_ = s.srv.Serve(ln)
	}()
	return nil
}

func (s *Server) Close() {
	s.stopOnce.Do(func() {
		_ = s.srv.Close()
	})
	s.wg.Wait()
}
