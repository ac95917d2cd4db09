package display

import (
	"context"
	"io"
	"time"

	"github.com/lonelysadness/proconn/pkg/proconn"
)

// Monitor redraws a Terminal from a stream of events.
type Monitor struct {
	term     *Terminal
	resolver *Resolver
	interval time.Duration
}

// NewMonitor returns a Monitor drawing to out. resolver may be nil.
func NewMonitor(out io.Writer, resolver *Resolver, interval time.Duration) *Monitor {
	return &Monitor{
		term:     NewTerminal(out),
		resolver: resolver,
		interval: interval,
	}
}

func (m *Monitor) Terminal() *Terminal {
	return m.term
}

// Start consumes events until ctx is done or events is closed.
func (m *Monitor) Start(ctx context.Context, events <-chan proconn.Event) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Initial clear
	m.term.Display()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				m.term.Display()
				return
			}
			m.term.Record(ev, m.detail(ev))

		case <-ticker.C:
			m.term.Display()

		case <-ctx.Done():
			return
		}
	}
}

// detail adds what an exec'ing process now runs.
func (m *Monitor) detail(ev proconn.Event) string {
	exec, ok := ev.(proconn.ExecEvent)
	if !ok {
		return ""
	}
	if desc := m.resolver.Describe(exec.Process.PID); desc != "" {
		return "(" + desc + ")"
	}
	return ""
}
