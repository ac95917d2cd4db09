package proconn

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/tevino/abool"
	"go.uber.org/zap"
)

// The kernel always talks from port 0.
const kernelPortID = 0

// transport is the datagram socket under a conn. Closing it must unblock a
// concurrent recvfrom with an error.
type transport interface {
	sendto(ctx context.Context, b []byte, portID uint32) (int, error)
	// recvfrom returns the port id of the sender.
	recvfrom(ctx context.Context, b []byte) (int, uint32, error)
	close() error
}

// conn owns the proc connector socket.
type conn struct {
	t      transport
	portID uint32
	closed *abool.AtomicBool
	logger *zap.Logger
}

func newConn(t transport, portID uint32, logger *zap.Logger) *conn {
	return &conn{
		t:      t,
		portID: portID,
		closed: abool.New(),
		logger: logger,
	}
}

func (c *conn) register(ctx context.Context) error {
	return c.control(ctx, opListen)
}

func (c *conn) unregister(ctx context.Context) error {
	return c.control(ctx, opIgnore)
}

func (c *conn) control(ctx context.Context, op mcastOp) error {
	if c.closed.IsSet() {
		return &ControlError{Op: op.String(), Err: net.ErrClosed}
	}

	b, err := controlMessage(op, c.portID)
	if err != nil {
		return &ControlError{Op: op.String(), Err: err}
	}

	n, err := c.t.sendto(ctx, b, kernelPortID)
	if err != nil {
		return &ControlError{Op: op.String(), Err: err}
	}
	if n != len(b) {
		return &ControlError{Op: op.String(), Err: fmt.Errorf("short write: sent %d of %d bytes", n, len(b))}
	}

	c.logger.Info("sent proc connector request",
		zap.Stringer("op", op),
		zap.Uint32("port_id", c.portID))
	return nil
}

// receive reads one datagram into buf and returns the filled part.
func (c *conn) receive(ctx context.Context, buf []byte) ([]byte, error) {
	if c.closed.IsSet() {
		return nil, &ReceiveError{Err: net.ErrClosed}
	}

	n, from, err := c.t.recvfrom(ctx, buf)
	if err != nil {
		if c.closed.IsSet() && !errors.Is(err, net.ErrClosed) {
			// The file layer reports its own "use of closed file" error.
			err = fmt.Errorf("%w: %w", net.ErrClosed, err)
		}
		return nil, &ReceiveError{Err: err}
	}
	if n <= 0 {
		return nil, &ReceiveError{Err: errEmptyDatagram}
	}
	if from != kernelPortID {
		return nil, &UnexpectedSenderError{PortID: from}
	}
	return buf[:n], nil
}

func (c *conn) close() error {
	if !c.closed.SetToIf(false, true) {
		return nil
	}
	return c.t.close()
}
