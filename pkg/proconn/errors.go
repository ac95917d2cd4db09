package proconn

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// ConnectionError is returned by New when the socket cannot be opened or bound.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("proconn: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ControlError is returned when a listen or ignore request was not sent in full.
type ControlError struct {
	Op  string
	Err error
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("proconn: %s request: %v", e.Op, e.Err)
}

func (e *ControlError) Unwrap() error { return e.Err }

// UnexpectedSenderError is returned when a datagram did not come from the kernel.
type UnexpectedSenderError struct {
	PortID uint32
}

func (e *UnexpectedSenderError) Error() string {
	return fmt.Sprintf("proconn: received message from unexpected port %d", e.PortID)
}

// ProtocolError is returned when the kernel reports an error or an overrun.
type ProtocolError struct {
	Type netlink.HeaderType
	// Errno is set for error messages that carry one.
	Errno unix.Errno
}

func (e *ProtocolError) Error() string {
	if e.Errno != 0 {
		return fmt.Sprintf("proconn: received %s message: %v", e.Type, e.Errno)
	}
	return fmt.Sprintf("proconn: received %s message", e.Type)
}

func (e *ProtocolError) Unwrap() error {
	if e.Errno != 0 {
		return e.Errno
	}
	return nil
}

// ReceiveError is returned when reading from the socket fails. Stop closing
// the socket under a blocked Run shows up as a ReceiveError.
type ReceiveError struct {
	Err error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("proconn: receive message failed: %v", e.Err)
}

func (e *ReceiveError) Unwrap() error { return e.Err }

var errEmptyDatagram = errors.New("empty datagram")

// IsClosed reports whether err is a ReceiveError caused by the socket being
// closed, the normal way for Run to end after Stop.
func IsClosed(err error) bool {
	var re *ReceiveError
	if !errors.As(err, &re) {
		return false
	}
	return errors.Is(re.Err, net.ErrClosed) || errors.Is(re.Err, os.ErrClosed)
}
