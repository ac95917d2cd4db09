//go:build linux

package proconn

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"
)

func requireRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("subscribing to the proc connector requires root")
	}
}

func TestProcessLifecycle(t *testing.T) {
	requireRoot(t)
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("no shell available")
	}

	var (
		mu    sync.Mutex
		forks = make(map[int32]ForkEvent)
		exits = make(map[int32]ExitEvent)
	)
	cfg := DefaultConfig()
	cfg.Logger = zaptest.NewLogger(t)

	l, err := New(Handlers{
		Fork: func(ev ForkEvent) error {
			mu.Lock()
			defer mu.Unlock()
			forks[ev.Child.TID] = ev
			return nil
		},
		Exit: func(ev ExitEvent) error {
			mu.Lock()
			defer mu.Unlock()
			exits[ev.Process.TID] = ev
			return nil
		},
	}, cfg)
	require.NoError(t, err)

	done := runAsync(l)
	// Let the subscription reach the kernel.
	time.Sleep(100 * time.Millisecond)

	runtime.LockOSThread()
	tid := int32(unix.Gettid())
	cmd := exec.Command(sh, "-c", "exit 7")
	require.NoError(t, cmd.Start())
	runtime.UnlockOSThread()

	pid := int32(cmd.Process.Pid)
	_ = cmd.Wait()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		_, ok := exits[pid]
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, l.Stop())
	assert.True(t, IsClosed(waitRun(t, done)))

	mu.Lock()
	defer mu.Unlock()

	fork, ok := forks[pid]
	require.True(t, ok, "no fork event for %d", pid)
	assert.Equal(t, int32(os.Getpid()), fork.Parent.PID)
	assert.Equal(t, tid, fork.Parent.TID)
	assert.Equal(t, TaskIDs{TID: pid, PID: pid}, fork.Child)

	exit := exits[pid]
	assert.Equal(t, TaskIDs{TID: pid, PID: pid}, exit.Process)
	assert.True(t, exit.WaitStatus().Exited())
	assert.Equal(t, 7, exit.WaitStatus().ExitStatus())
	if !exit.Parent.IsMissing() {
		assert.Equal(t, int32(os.Getpid()), exit.Parent.PID)
	}
}

func TestStopUnblocksRun(t *testing.T) {
	requireRoot(t)

	l, err := New(Handlers{}, nil)
	require.NoError(t, err)
	assert.NotZero(t, l.PortID())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- l.Run(ctx)
	}()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, l.Stop())
	err = waitRun(t, done)
	assert.True(t, IsClosed(err), "unexpected error: %v", err)
	assert.NoError(t, l.Stop())
}
