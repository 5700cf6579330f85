package cmd

import (
	"fmt"

	"github.com/blackprobe/probecore/pkg/boards"
	"github.com/blackprobe/probecore/pkg/bridge"
	"github.com/blackprobe/probecore/pkg/connection"
	"github.com/blackprobe/probecore/pkg/stub"
	"github.com/blackprobe/probecore/pkg/target"
	"github.com/blackprobe/probecore/pkg/util"
)

// stubReturnReg and stubStatusReg are the argument-register convention a
// loaded algorithm blob is expected to honor: the blob must return to the
// sentinel address staged into stubReturnReg and leave its exit status in
// stubStatusReg before halting.
const (
	stubReturnReg = 7
	stubStatusReg = 0
)

// loadBlob wraps raw algorithm bytes read from disk into a stub.Blob using
// that convention; EntryOffset is always 0 since the blob is downloaded
// starting at its own entry point.
func loadBlob(code []byte) stub.Blob {
	return stub.Blob{Code: code, EntryOffset: 0, ReturnReg: stubReturnReg, StatusReg: stubStatusReg}
}

// session bundles everything a command needs to talk to an attached
// target: the open transport (closed by session.Close) and the target
// object the chosen board probe installed itself onto.
type session struct {
	conn  connection.Connection
	tp    *bridge.Transport
	board string
	t     *target.Target
}

// openSession opens the configured connection, wraps it in the wire
// protocol, and attaches the named board's driver. eraseStub/writeStub are
// file paths to RAM algorithm blobs; only rp2040 and lm3s consult them.
func openSession(boardName, eraseStubPath, writeStubPath string) (*session, error) {
	if boardName == "" {
		return nil, fmt.Errorf("no board specified (use --board flag; see 'probecore boards')")
	}

	conn := connection.NewConnection(cfg.Port)
	if err := conn.Open(cfg.Port); err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	tp := bridge.NewTransport(conn)
	t := target.New(tp)

	var stubs boards.Stubs
	if eraseStubPath != "" {
		data, err := util.ReadFile(eraseStubPath)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to read erase stub: %w", err)
		}
		stubs.Erase = loadBlob(data)
	}
	if writeStubPath != "" {
		data, err := util.ReadFile(writeStubPath)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to read write stub: %w", err)
		}
		stubs.Write = loadBlob(data)
	}

	if err := boards.Build(t, boardName, tp, stubs, cfg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to attach board %q: %w", boardName, err)
	}

	if err := t.Attach(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("attach failed: %w", err)
	}

	return &session{conn: conn, tp: tp, board: boardName, t: t}, nil
}

func (s *session) Close() error {
	if s.t != nil {
		_ = s.t.Detach()
	}
	return s.conn.Close()
}
