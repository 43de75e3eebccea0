package control

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type chanSink struct {
	mu      sync.Mutex
	applied []int
	ch      chan int
}

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan int, 8)}
}

func (s *chanSink) SetDuty(p int) int {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	s.mu.Lock()
	s.applied = append(s.applied, p)
	s.mu.Unlock()
	select {
	case s.ch <- p:
	default:
	}
	return p
}

func startTestServer(t *testing.T, period int64, sink DutySink) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctl.sock")
	srv := NewServer(path, NewDevice(&fakeSource{period: period}, sink))
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv, path
}

func TestServerSendsPeriodLine(t *testing.T) {
	_, path := startTestServer(t, 1000, newChanSink())

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != "1000\n" {
		t.Fatalf("line %q want %q", line, "1000\n")
	}
}

func TestServerAppliesDutyWrite(t *testing.T) {
	sink := newChanSink()
	_, path := startTestServer(t, 0, sink)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("75")); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case got := <-sink.ch:
		if got != 75 {
			t.Fatalf("applied=%d want 75", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("duty write not applied")
	}
}

func TestServerAnswersOversizedWriteWithErr(t *testing.T) {
	sink := newChanSink()
	_, path := startTestServer(t, 500, sink)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	// Consume the period line first.
	if _, err := r.ReadString('\n'); err != nil {
		t.Fatalf("read period: %v", err)
	}

	if _, err := conn.Write([]byte(strings.Repeat("1", 20))); err != nil {
		t.Fatalf("write: %v", err)
	}
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read error line: %v", err)
	}
	if !strings.HasPrefix(line, "ERR ") {
		t.Fatalf("line %q want ERR prefix", line)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.applied) != 0 {
		t.Fatalf("oversized write reached the sink: %v", sink.applied)
	}
}

func TestServerCloseDropsConnectionsAndRemovesSocket(t *testing.T) {
	srv, path := startTestServer(t, 0, newChanSink())

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Consume the period line so the handler is parked in its read loop.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := bufio.NewReader(conn).ReadString('\n'); err != nil {
		t.Fatalf("read: %v", err)
	}

	done := make(chan struct{})
	go func() {
		srv.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close blocked on an open connection")
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("socket file still present after Close (err=%v)", err)
	}
}
