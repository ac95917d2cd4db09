//go:build linux

package proconn

import "golang.org/x/sys/unix"

// WaitStatus interprets ExitCode the way wait(2) reports it.
func (e ExitEvent) WaitStatus() unix.WaitStatus {
	return unix.WaitStatus(e.ExitCode)
}
