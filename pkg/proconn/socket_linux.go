//go:build linux

package proconn

import (
	"context"
	"math"
	"runtime"

	"github.com/mdlayher/socket"
	"golang.org/x/sys/unix"
)

// netlinkSocket is a NETLINK_CONNECTOR socket on the runtime network poller,
// so closing it wakes up a goroutine blocked in recvfrom.
type netlinkSocket struct {
	c *socket.Conn
}

// dial opens and binds the socket. With portID 0 the socket is bound to the
// id of the current OS thread, which is what the kernel expects to find in
// the requests sent from it.
func dial(portID uint32) (*netlinkSocket, uint32, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if portID == 0 {
		portID = uint32(unix.Gettid())
	}

	c, err := socket.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM, unix.NETLINK_CONNECTOR, "proconn", nil)
	if err != nil {
		return nil, 0, &ConnectionError{Op: "socket", Err: err}
	}

	if err := c.Bind(procAddr(portID)); err != nil {
		_ = c.Close()
		return nil, 0, &ConnectionError{Op: "bind", Err: err}
	}

	return &netlinkSocket{c: c}, portID, nil
}

func procAddr(portID uint32) *unix.SockaddrNetlink {
	return &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: cnIdxProc,
		Pid:    portID,
	}
}

func (s *netlinkSocket) sendto(ctx context.Context, b []byte, portID uint32) (int, error) {
	return s.c.Sendmsg(ctx, b, nil, procAddr(portID), 0)
}

func (s *netlinkSocket) recvfrom(ctx context.Context, b []byte) (int, uint32, error) {
	n, from, err := s.c.Recvfrom(ctx, b, 0)
	if err != nil {
		return n, 0, err
	}
	sa, ok := from.(*unix.SockaddrNetlink)
	if !ok {
		// Not a netlink peer at all; never equal to the kernel's port.
		return n, math.MaxUint32, nil
	}
	return n, sa.Pid, nil
}

func (s *netlinkSocket) close() error {
	return s.c.Close()
}
