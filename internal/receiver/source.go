package receiver

import (
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	// ErrNotConnected is returned by Read when no sender is connected.
	ErrNotConnected = errors.New("no sender connected")

	// ErrReadTimeout is returned by Read when a live connection produced no
	// bytes within the idle timeout. The connection is torn down first.
	ErrReadTimeout = errors.New("read timeout, sender presumed dead")
)

// Source is the pipeline's view of the sender connection. At most one sender
// is connected at a time; the pipeline polls Accept while waiting and Read
// while streaming, with bounded per-call deadlines so the single cooperative
// loop never blocks for long.
type Source interface {
	// Accept attempts to admit a sender when none is connected. It returns
	// true when a new connection became live. It must not block beyond a
	// short poll deadline.
	Accept() bool

	// Live reports whether a sender connection is currently established.
	Live() bool

	// Read fills p with available stream bytes. (0, nil) means no data
	// arrived within the poll deadline but the connection is still
	// considered alive. On disconnect or idle timeout the connection is
	// torn down and an error is returned.
	Read(p []byte) (int, error)

	// RemoteAddr returns the connected sender's address, or "" when idle.
	RemoteAddr() string

	// CloseConn drops the current connection, if any, leaving the listener
	// open for the next sender.
	CloseConn()

	// Close shuts down the listener and any live connection.
	Close() error
}

const (
	// acceptPoll bounds how long a single Accept call may wait.
	acceptPoll = 50 * time.Millisecond

	// readPoll bounds how long a single Read call may wait for bytes.
	readPoll = 20 * time.Millisecond
)

// TCPSource listens on a TCP port and serves the pipeline one sender
// connection at a time. Accepted connections run with TCP_NODELAY so the
// sender's frames are not batched, and an idle timeout declares a silent
// sender dead.
type TCPSource struct {
	ln          *net.TCPListener
	conn        *net.TCPConn
	remote      string
	idleTimeout time.Duration
	lastData    time.Time
}

// ListenTCP opens the stream listener on addr (e.g. ":8090"). idleTimeout is
// how long a live connection may produce no bytes before it is torn down.
func ListenTCP(addr string, idleTimeout time.Duration) (*TCPSource, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &TCPSource{ln: ln, idleTimeout: idleTimeout}, nil
}

// Addr returns the listener's bound address.
func (s *TCPSource) Addr() string {
	return s.ln.Addr().String()
}

// Accept implements Source.
func (s *TCPSource) Accept() bool {
	if s.conn != nil {
		return false
	}
	if err := s.ln.SetDeadline(time.Now().Add(acceptPoll)); err != nil {
		// Listener is closed or broken; nothing to admit.
		return false
	}
	conn, err := s.ln.AcceptTCP()
	if err != nil {
		return false
	}
	conn.SetNoDelay(true)
	s.conn = conn
	s.remote = conn.RemoteAddr().String()
	s.lastData = time.Now()
	return true
}

// Live implements Source.
func (s *TCPSource) Live() bool {
	return s.conn != nil
}

// Read implements Source.
func (s *TCPSource) Read(p []byte) (int, error) {
	if s.conn == nil {
		return 0, ErrNotConnected
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(readPoll)); err != nil {
		// Without a deadline the poll bound is gone; treat the connection
		// as dead rather than risk an unbounded read.
		s.CloseConn()
		return 0, err
	}
	n, err := s.conn.Read(p)
	if n > 0 {
		s.lastData = time.Now()
		return n, nil
	}
	if err == nil {
		return 0, nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		if time.Since(s.lastData) < s.idleTimeout {
			return 0, nil
		}
		s.CloseConn()
		return 0, ErrReadTimeout
	}
	s.CloseConn()
	return 0, err
}

// RemoteAddr implements Source.
func (s *TCPSource) RemoteAddr() string {
	return s.remote
}

// CloseConn implements Source.
func (s *TCPSource) CloseConn() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		s.remote = ""
	}
}

// Close implements Source.
func (s *TCPSource) Close() error {
	s.CloseConn()
	return s.ln.Close()
}
