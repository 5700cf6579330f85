package bridge

import (
	"fmt"
	"io"
	"log"
	"net"

	"go.bug.st/serial"
)

// Relay is a TCP-to-serial bridge: it accepts framed requests from TCP
// clients and forwards them, byte for byte, to a probe attached to a local
// serial port, returning whatever the probe replies. Grounded on the
// teacher's connection/bridge.go, re-framed around this module's command
// set instead of Foenix's.
type Relay struct {
	tcpHost    string
	tcpPort    int
	serialPort string
	baudRate   int
}

// NewRelay creates a TCP bridge listening on tcpHost:tcpPort and forwarding
// to serialPort at baudRate.
func NewRelay(tcpHost string, tcpPort int, serialPort string, baudRate int) *Relay {
	return &Relay{
		tcpHost:    tcpHost,
		tcpPort:    tcpPort,
		serialPort: serialPort,
		baudRate:   baudRate,
	}
}

// Listen starts the TCP server and relays requests to the serial port until
// the process is killed. It returns only if the listen itself fails; accept
// errors are logged and the loop keeps accepting.
func (r *Relay) Listen() error {
	addr := fmt.Sprintf("%s:%d", r.tcpHost, r.tcpPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("relay: listen: %w", err)
	}
	defer listener.Close()

	log.Printf("relay: listening on %s, forwarding to %s @ %d baud", addr, r.serialPort, r.baudRate)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("relay: accept error: %v", err)
			continue
		}
		log.Printf("relay: connection from %s", conn.RemoteAddr())
		go r.handle(conn)
	}
}

// handle services one TCP client for as long as it stays connected,
// opening a fresh serial transaction for each request — the probe's
// protocol is stateless across requests, so there is no harm in not
// holding the port open between them, and opening per-request means two
// TCP clients can take turns without a persistent lock.
func (r *Relay) handle(tcpConn net.Conn) {
	defer tcpConn.Close()

	for {
		header := make([]byte, 7)
		if _, err := io.ReadFull(tcpConn, header); err != nil {
			if err != io.EOF {
				log.Printf("relay: read header: %v", err)
			}
			return
		}

		command := header[1]
		dataLength := uint16(header[5])<<8 | uint16(header[6])

		var data []byte
		if command == cmdWriteMem || command == cmdWriteReg {
			data = make([]byte, dataLength)
			if _, err := io.ReadFull(tcpConn, data); err != nil {
				log.Printf("relay: read data: %v", err)
				return
			}
		}

		lrcByte := make([]byte, 1)
		if _, err := io.ReadFull(tcpConn, lrcByte); err != nil {
			log.Printf("relay: read LRC: %v", err)
			return
		}

		request := make([]byte, 0, len(header)+len(data)+1)
		request = append(request, header...)
		request = append(request, data...)
		request = append(request, lrcByte[0])

		response, err := r.roundTrip(request, command, dataLength)
		if err != nil {
			log.Printf("relay: round trip: %v", err)
			return
		}

		if _, err := tcpConn.Write(response); err != nil {
			log.Printf("relay: write response: %v", err)
			return
		}
	}
}

// roundTrip opens the serial port, forwards one pre-framed request, and
// reads back a framed response.
func (r *Relay) roundTrip(request []byte, command byte, dataLength uint16) ([]byte, error) {
	mode := &serial.Mode{BaudRate: r.baudRate}
	port, err := serial.Open(r.serialPort, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port: %w", err)
	}
	defer port.Close()

	if n, err := port.Write(request); err != nil {
		return nil, fmt.Errorf("write serial: %w", err)
	} else if n != len(request) {
		return nil, fmt.Errorf("short serial write: wrote %d, expected %d", n, len(request))
	}

	sync := make([]byte, 1)
	if _, err := io.ReadFull(port, sync); err != nil {
		return nil, fmt.Errorf("read response sync: %w", err)
	}

	status := make([]byte, 2)
	if _, err := io.ReadFull(port, status); err != nil {
		return nil, fmt.Errorf("read status bytes: %w", err)
	}

	var data []byte
	if (command == cmdReadMem || command == cmdReadReg || command == cmdIsHalted ||
		command == cmdReadPC || command == cmdCheckError) && dataLength > 0 {
		data = make([]byte, dataLength)
		if _, err := io.ReadFull(port, data); err != nil {
			return nil, fmt.Errorf("read response data: %w", err)
		}
	}

	trailer := make([]byte, 1)
	if _, err := io.ReadFull(port, trailer); err != nil {
		return nil, fmt.Errorf("read response LRC: %w", err)
	}

	response := make([]byte, 0, 1+2+len(data)+1)
	response = append(response, sync...)
	response = append(response, status...)
	response = append(response, data...)
	response = append(response, trailer[0])
	return response, nil
}
