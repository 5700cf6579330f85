package connection

import (
	"fmt"
	"net"
	"time"
)

// TCPConnection implements Connection over a TCP socket, for talking to a
// probe reachable through a network bridge rather than a local serial port.
type TCPConnection struct {
	conn   net.Conn
	isOpen bool
}

const tcpDialTimeout = 10 * time.Second

// Open dials host:port and keeps the socket for subsequent reads/writes.
func (t *TCPConnection) Open(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid TCP address (expected host:port): %s", addr)
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), tcpDialTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	t.conn = conn
	t.isOpen = true
	return nil
}

// Close tears down the socket.
func (t *TCPConnection) Close() error {
	if t.conn == nil {
		return nil
	}
	t.isOpen = false
	return t.conn.Close()
}

// IsOpen reports whether the socket is currently connected.
func (t *TCPConnection) IsOpen() bool {
	return t.isOpen
}

// Read blocks until exactly n bytes have been read from the bridge.
func (t *TCPConnection) Read(n int) ([]byte, error) {
	if t.conn == nil {
		return nil, fmt.Errorf("TCP connection not open")
	}

	buf := make([]byte, n)
	for read := 0; read < n; {
		got, err := t.conn.Read(buf[read:])
		if err != nil {
			return nil, fmt.Errorf("TCP read error: %w", err)
		}
		if got == 0 {
			return nil, fmt.Errorf("TCP connection closed")
		}
		read += got
	}

	return buf, nil
}

// Write blocks until all of data has been written to the bridge.
func (t *TCPConnection) Write(data []byte) (int, error) {
	if t.conn == nil {
		return 0, fmt.Errorf("TCP connection not open")
	}

	for written := 0; written < len(data); {
		n, err := t.conn.Write(data[written:])
		if err != nil {
			return written, fmt.Errorf("TCP write error: %w", err)
		}
		written += n
	}

	return len(data), nil
}
