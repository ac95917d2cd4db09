package proconn

import (
	"fmt"

	"go.uber.org/zap"
)

const maxBufferSize = 1 << 20

// Config configures a Listener.
type Config struct {
	// BufferSize is the size of the receive buffer, one datagram at most.
	BufferSize int
	// PortID is the netlink port the socket binds to. Zero means the id of
	// the OS thread calling New.
	PortID uint32

	Logger  *zap.Logger
	Metrics Metrics
}

func DefaultConfig() *Config {
	return &Config{
		BufferSize: DefaultBufferSize,
		Logger:     zap.NewNop(),
		Metrics:    nopMetrics{},
	}
}

// Validate checks the config and fills in unset optional fields.
func (c *Config) Validate() error {
	if c.BufferSize < MinBufferSize || c.BufferSize > maxBufferSize {
		return fmt.Errorf("buffer_size must be between %d and %d, got %d",
			MinBufferSize, maxBufferSize, c.BufferSize)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
	return nil
}
