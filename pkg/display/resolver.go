package display

import (
	"fmt"
	"strings"

	"github.com/prometheus/procfs"
)

// Resolver looks up what a process is running. Processes are often gone by
// the time an event is printed, so lookups fail quietly.
type Resolver struct {
	fs procfs.FS
}

func NewResolver(mountPoint string) (*Resolver, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs at %s: %w", mountPoint, err)
	}
	return &Resolver{fs: fs}, nil
}

// Describe returns the command line of pid, or its comm if the command line
// is empty (kernel threads), or "" if the process no longer exists.
func (r *Resolver) Describe(pid int32) string {
	if r == nil || pid <= 0 {
		return ""
	}

	p, err := r.fs.Proc(int(pid))
	if err != nil {
		return ""
	}

	if args, err := p.CmdLine(); err == nil && len(args) > 0 {
		return strings.Join(args, " ")
	}
	if comm, err := p.Comm(); err == nil {
		return "[" + comm + "]"
	}
	return ""
}
