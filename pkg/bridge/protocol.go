// Package bridge implements the wire protocol that carries
// accessor.DebugAccessor / accessor.CoreControl operations over a
// connection.Connection byte stream, plus the TCP-to-serial relay server
// that lets a host reach a probe attached to a different machine's serial
// port (spec.md §6 "External interfaces").
package bridge

// Wire commands. The framing (sync byte, 7-byte header, LRC trailer) is
// the teacher's protocol.go shape; the command set itself is generic
// memory/core-control rather than tied to one CPU family.
const (
	cmdReadMem  = 0x00
	cmdWriteMem = 0x01

	cmdHalt     = 0x20
	cmdResume   = 0x21
	cmdIsHalted = 0x22

	cmdReadPC  = 0x30
	cmdWritePC = 0x31

	cmdReadReg  = 0x32
	cmdWriteReg = 0x33

	cmdCheckError = 0x3F
)

// Protocol sync bytes, unchanged from the teacher's framing.
const (
	requestSyncByte  = 0x55
	responseSyncByte = 0xAA
)
