package proconn

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/mdlayher/netlink/nlenc"
	"github.com/tevino/abool"
	"go.uber.org/zap"
)

// Listener subscribes to the proc connector and hands every event to its
// handler.
type Listener struct {
	conn       *conn
	dispatcher *dispatcher
	bufferSize int
	logger     *zap.Logger
	metrics    Metrics
	stopped    *abool.AtomicBool
}

// New opens a proc connector socket. Events are not delivered until Run.
func New(handlers Handlers, cfg *Config) (*Listener, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s, portID, err := dial(cfg.PortID)
	if err != nil {
		return nil, err
	}
	return newListener(handlers, cfg, s, portID), nil
}

func newListener(handlers Handlers, cfg *Config, t transport, portID uint32) *Listener {
	logger := cfg.Logger.With(zap.Uint32("port_id", portID))
	logger.Debug("proc connector socket bound",
		zap.Stringer("handlers", handlers.Kinds()),
		zap.Int("buffer_size", cfg.BufferSize))

	return &Listener{
		conn:       newConn(t, portID, logger),
		dispatcher: newDispatcher(handlers, cfg.Metrics),
		bufferSize: cfg.BufferSize,
		logger:     logger,
		metrics:    cfg.Metrics,
		stopped:    abool.New(),
	}
}

// PortID returns the netlink port the socket is bound to.
func (l *Listener) PortID() uint32 {
	return l.conn.portID
}

// Run subscribes to process events and blocks delivering them until an
// error occurs. After Stop it returns a *ReceiveError; Stopped reports
// whether that was the cause. A handler error is returned as is.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.conn.register(ctx); err != nil {
		return err
	}

	buf := make([]byte, l.bufferSize)
	for {
		b, err := l.conn.receive(ctx, buf)
		if err != nil {
			if l.stopped.IsSet() {
				l.logger.Debug("receive loop ended by stop", zap.Error(err))
			}
			return err
		}
		l.metrics.ObserveDatagram(len(b))

		if err := walkDatagram(b, l.handle); err != nil {
			return err
		}
	}
}

func (l *Listener) handle(payload []byte) error {
	ev, ok := decodeEvent(payload)
	if !ok {
		var tag uint32
		if len(payload) >= evWhat+4 {
			tag = nlenc.Uint32(payload[evWhat : evWhat+4])
		}
		l.metrics.ObserveIgnored(tag)
		l.logger.Debug("ignoring proc event",
			zap.Uint32("tag", tag),
			zap.Int("len", len(payload)))
		return nil
	}
	return l.dispatcher.dispatch(ev)
}

// Stop unsubscribes and closes the socket, unblocking a concurrent Run.
// Only the first call does anything.
func (l *Listener) Stop() error {
	if !l.stopped.SetToIf(false, true) {
		return nil
	}

	var result *multierror.Error
	if err := l.conn.unregister(context.Background()); err != nil {
		result = multierror.Append(result, err)
	}
	if err := l.conn.close(); err != nil {
		result = multierror.Append(result, &ConnectionError{Op: "close", Err: err})
	}
	return result.ErrorOrNil()
}

// Stopped reports whether Stop has been called.
func (l *Listener) Stopped() bool {
	return l.stopped.IsSet()
}
