package control

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"sync"
)

// Server exposes a Device on a unix-domain socket. Each accepted connection
// behaves like one open of the device node: the full period line is sent
// once (the offset cursor is then exhausted), and any bytes received are
// handled as duty-cycle writes. An oversized write is answered with an "ERR"
// line, the stream analog of the device's argument-size error.
type Server struct {
	dev  *Device
	path string

	ln net.Listener

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewServer(path string, dev *Device) *Server {
	return &Server{
		dev:    dev,
		path:   path,
		conns:  make(map[net.Conn]struct{}),
		stopCh: make(chan struct{}),
	}
}

// Start begins listening. A stale socket file left by a previous run is
// removed first.
func (s *Server) Start() error {
	if s.path == "" {
		return fmt.Errorf("control: socket path is empty")
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("control: remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("control: listen %s: %w", s.path, err)
	}
	s.ln = ln

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Close stops the listener, drops open connections, waits for their handlers
// to finish, and removes the socket file.
func (s *Server) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	if s.ln != nil {
		_ = s.ln.Close()
	}

	s.connMu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	_ = os.Remove(s.path)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.connMu.Lock()
		select {
		case <-s.stopCh:
			s.connMu.Unlock()
			_ = conn.Close()
			return
		default:
		}
		s.conns[conn] = struct{}{}
		s.connMu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(conn)
			s.connMu.Lock()
			delete(s.conns, conn)
			s.connMu.Unlock()
		}()
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, 64)

	// Drain the device read side through the offset cursor.
	var off int64
	for {
		n, err := s.dev.ReadAt(buf, off)
		if n > 0 {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return
			}
			off += int64(n)
		}
		if err != nil {
			break
		}
	}

	// Then treat anything the peer sends as duty-cycle writes.
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if _, werr := s.dev.Write(buf[:n]); werr != nil {
				if _, werr2 := conn.Write([]byte("ERR " + werr.Error() + "\n")); werr2 != nil {
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}
