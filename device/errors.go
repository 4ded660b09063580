package device

import (
	"fmt"

	"propctl/protocol"
)

// ConnectionError means a TCP connection to the device could not be
// established or broke while in use.
type ConnectionError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// InvalidFilenameError is returned before any network I/O when the upload
// name breaks the device's naming rules.
type InvalidFilenameError struct {
	Name   string
	Reason string
}

func (e *InvalidFilenameError) Error() string {
	return fmt.Sprintf("invalid file name %q: %s", e.Name, e.Reason)
}

// DeviceNotReadyError means the announce handshake was not answered with
// the ready acknowledgment.
type DeviceNotReadyError struct {
	Received []byte
}

func (e *DeviceNotReadyError) Error() string {
	if len(e.Received) == 0 {
		return "device not ready: no reply to announce"
	}
	return fmt.Sprintf("device not ready: got %d bytes [%s]", len(e.Received), protocol.FormatBytes(e.Received))
}

// TransferIntegrityError means the source produced a different number of
// bytes than planned.
type TransferIntegrityError struct {
	Packet   uint64
	Packets  uint64
	Expected int
	Actual   int
	Reason   string
}

func (e *TransferIntegrityError) Error() string {
	return fmt.Sprintf("packet %d/%d: %s (expected %d, got %d)", e.Packet, e.Packets, e.Reason, e.Expected, e.Actual)
}
