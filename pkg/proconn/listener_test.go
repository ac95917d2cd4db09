package proconn

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPortID = 31337

func newTestListener(t *testing.T, h Handlers) (*Listener, *fakeTransport, *recordingMetrics) {
	t.Helper()
	cfg := DefaultConfig()
	m := newRecordingMetrics()
	cfg.Metrics = m
	require.NoError(t, cfg.Validate())

	ft := newFakeTransport()
	return newListener(h, cfg, ft, testPortID), ft, m
}

// runAsync starts Run and returns a channel receiving its result.
func runAsync(l *Listener) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- l.Run(context.Background())
	}()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func waitSent(t *testing.T, ft *fakeTransport) {
	t.Helper()
	select {
	case <-ft.sentCh:
	case <-time.After(5 * time.Second):
		t.Fatal("no control message sent")
	}
}

func TestListenerDispatchesPackedEventsInOrder(t *testing.T) {
	var got []Event
	var l *Listener
	l, ft, m := newTestListener(t, Handlers{
		Fork: func(ev ForkEvent) error {
			got = append(got, ev)
			return nil
		},
		Exec: func(ev ExecEvent) error {
			got = append(got, ev)
			return l.Stop()
		},
	})

	ft.queue(datagram(
		procEvent(KindFork, 1, 100, 10, 10, 11, 11),
		procEvent(KindExec, 1, 200, 11, 11),
	))

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsClosed(err))
	assert.True(t, l.Stopped())

	require.Len(t, got, 2)
	assert.Equal(t, ForkEvent{
		Metadata: Metadata{CPU: 1, Timestamp: 100},
		Parent:   TaskIDs{TID: 10, PID: 10},
		Child:    TaskIDs{TID: 11, PID: 11},
	}, got[0])
	assert.Equal(t, ExecEvent{
		Metadata: Metadata{CPU: 1, Timestamp: 200},
		Process:  TaskIDs{TID: 11, PID: 11},
	}, got[1])

	assert.Equal(t, []mcastOp{opListen, opIgnore}, ft.sentOps())
	assert.Equal(t, 1, m.datagrams)
	assert.Equal(t, 1, m.events[KindFork])
	assert.Equal(t, 1, m.events[KindExec])
}

func TestListenerStopFromAnotherGoroutine(t *testing.T) {
	l, ft, _ := newTestListener(t, Handlers{})

	done := runAsync(l)
	waitSent(t, ft)

	require.NoError(t, l.Stop())
	err := waitRun(t, done)

	var re *ReceiveError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, net.ErrClosed)

	// Second stop is a no-op.
	require.NoError(t, l.Stop())
	assert.Equal(t, []mcastOp{opListen, opIgnore}, ft.sentOps())
	assert.Equal(t, 1, ft.closes)
}

func TestListenerWithoutHandlers(t *testing.T) {
	l, ft, m := newTestListener(t, Handlers{})
	assert.Equal(t, KindSet(0), Handlers{}.Kinds())

	done := runAsync(l)
	waitSent(t, ft)

	ft.queue(datagram(procEvent(KindFork, 0, 0, 1, 1, 2, 2)))
	ft.queue(datagram(procEvent(KindExit, 0, 0, 2, 2, 0, 0)))
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.datagrams == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, l.Stop())
	assert.True(t, IsClosed(waitRun(t, done)))

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.events)
	assert.Equal(t, 1, m.dropped[KindFork])
	assert.Equal(t, 1, m.dropped[KindExit])
}

func TestListenerIgnoresUnknownEvents(t *testing.T) {
	var exits []ExitEvent
	var l *Listener
	l, ft, m := newTestListener(t, Handlers{
		Exit: func(ev ExitEvent) error {
			exits = append(exits, ev)
			return l.Stop()
		},
	})

	ft.queue(datagram(
		procEvent(Kind(0), 0, 0),
		procEvent(Kind(0x400), 0, 0, 5, 5),
		procEvent(KindExit, 0, 0, 5, 5, 256, 17)[:exitFixedEnd],
	))

	err := l.Run(context.Background())
	assert.True(t, IsClosed(err))

	require.Len(t, exits, 1)
	assert.True(t, exits[0].Parent.IsMissing())
	assert.Equal(t, []uint32{0, 0x400}, m.ignored)
}

func TestListenerHandlerErrorEndsRun(t *testing.T) {
	errHandler := errors.New("handler failed")
	l, ft, _ := newTestListener(t, Handlers{
		Comm: func(CommEvent) error { return errHandler },
	})

	ft.queue(datagram(commEvent(3, 3, []byte("top"))))

	err := l.Run(context.Background())
	assert.Same(t, errHandler, err)
	assert.False(t, l.Stopped())
	require.NoError(t, l.Stop())
}

func TestListenerReceiveFailures(t *testing.T) {
	errRecv := errors.New("recv failed")

	tests := []struct {
		name  string
		dgram fakeDatagram
		check func(t *testing.T, err error)
	}{
		{
			name:  "unexpected sender",
			dgram: fakeDatagram{b: datagram(procEvent(KindExec, 0, 0, 1, 1)), from: 4321},
			check: func(t *testing.T, err error) {
				var ue *UnexpectedSenderError
				require.ErrorAs(t, err, &ue)
				assert.Equal(t, uint32(4321), ue.PortID)
			},
		},
		{
			name:  "empty datagram",
			dgram: fakeDatagram{b: nil},
			check: func(t *testing.T, err error) {
				var re *ReceiveError
				require.ErrorAs(t, err, &re)
				assert.ErrorIs(t, err, errEmptyDatagram)
				assert.False(t, IsClosed(err))
			},
		},
		{
			name:  "socket error",
			dgram: fakeDatagram{err: errRecv},
			check: func(t *testing.T, err error) {
				var re *ReceiveError
				require.ErrorAs(t, err, &re)
				assert.ErrorIs(t, err, errRecv)
			},
		},
		{
			name:  "overrun",
			dgram: fakeDatagram{b: nlMsg(4, nil)},
			check: func(t *testing.T, err error) {
				var pe *ProtocolError
				require.ErrorAs(t, err, &pe)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			l, ft, _ := newTestListener(t, Handlers{
				Exec: func(ExecEvent) error {
					called = true
					return nil
				},
			})
			ft.incoming <- tt.dgram

			err := l.Run(context.Background())
			require.Error(t, err)
			tt.check(t, err)
			assert.False(t, called)
		})
	}
}

func TestListenerRegisterFailure(t *testing.T) {
	t.Run("send error", func(t *testing.T) {
		errSend := errors.New("sendmsg: operation not permitted")
		l, ft, _ := newTestListener(t, Handlers{})
		ft.sendErr = errSend

		err := l.Run(context.Background())
		var ce *ControlError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "listen", ce.Op)
		assert.ErrorIs(t, err, errSend)
	})

	t.Run("short write", func(t *testing.T) {
		l, ft, _ := newTestListener(t, Handlers{})
		ft.shortWrite = true

		err := l.Run(context.Background())
		var ce *ControlError
		require.ErrorAs(t, err, &ce)
		assert.Contains(t, err.Error(), "short write")
	})
}

func TestListenerStopReportsUnregisterFailure(t *testing.T) {
	l, ft, _ := newTestListener(t, Handlers{})
	ft.sendErr = errors.New("sendmsg: no buffer space available")

	err := l.Stop()
	var ce *ControlError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "ignore", ce.Op)

	// The socket is closed even though unregistering failed.
	assert.Equal(t, 1, ft.closes)
	assert.NoError(t, l.Stop())
}

func TestListenerRunAfterStop(t *testing.T) {
	l, _, _ := newTestListener(t, Handlers{})
	require.NoError(t, l.Stop())

	err := l.Run(context.Background())
	var ce *ControlError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, net.ErrClosed)
}

func TestListenerContextCancel(t *testing.T) {
	l, ft, _ := newTestListener(t, Handlers{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- l.Run(ctx)
	}()
	waitSent(t, ft)
	cancel()

	err := waitRun(t, done)
	var re *ReceiveError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, l.Stop())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferSize = MinBufferSize - 1

	l, err := New(Handlers{}, cfg)
	assert.Nil(t, l)
	assert.ErrorContains(t, err, "buffer_size")
}
