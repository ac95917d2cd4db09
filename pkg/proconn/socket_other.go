//go:build !linux

package proconn

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("the proc connector is only available on linux")

type netlinkSocket struct{}

func dial(uint32) (*netlinkSocket, uint32, error) {
	return nil, 0, &ConnectionError{Op: "socket", Err: errUnsupported}
}

func (*netlinkSocket) sendto(context.Context, []byte, uint32) (int, error) {
	return 0, errUnsupported
}

func (*netlinkSocket) recvfrom(context.Context, []byte) (int, uint32, error) {
	return 0, 0, errUnsupported
}

func (*netlinkSocket) close() error {
	return nil
}
