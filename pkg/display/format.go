package display

import (
	"fmt"

	"github.com/lonelysadness/proconn/pkg/proconn"
)

// FormatMeta renders the metadata prefix of an event line.
func FormatMeta(m proconn.Metadata) string {
	return fmt.Sprintf("[%d](CPU#%d)", m.Timestamp, m.CPU)
}

// FormatEvent renders one event as a single line without the metadata.
func FormatEvent(ev proconn.Event) string {
	switch e := ev.(type) {
	case proconn.ForkEvent:
		if e.Child.IsThreadGroupLeader() {
			return fmt.Sprintf("process forked: %d -> %d", e.Parent.PID, e.Child.PID)
		}
		return fmt.Sprintf("thread forked: %d -> %d", e.Child.PID, e.Child.TID)

	case proconn.ExecEvent:
		return fmt.Sprintf("process exec: %d", e.Process.PID)

	case proconn.UIDEvent:
		return fmt.Sprintf("uid: %d -> %d/%d", e.Process.PID, e.RUID, e.EUID)

	case proconn.GIDEvent:
		return fmt.Sprintf("gid: %d -> %d/%d", e.Process.PID, e.RGID, e.EGID)

	case proconn.SIDEvent:
		return fmt.Sprintf("new session: %d", e.Process.PID)

	case proconn.PtraceEvent:
		if e.Tracer.IsMissing() {
			return fmt.Sprintf("ptrace detach: %d", e.Process.PID)
		}
		return fmt.Sprintf("ptrace: %d -> %d", e.Tracer.PID, e.Process.PID)

	case proconn.CommEvent:
		return fmt.Sprintf("comm: %d -> %q", e.Process.PID, e.Comm)

	case proconn.CoredumpEvent:
		return fmt.Sprintf("coredump: %d%s", e.Process.PID, formatParent(e.Parent))

	case proconn.ExitEvent:
		if e.Process.IsThreadGroupLeader() {
			return fmt.Sprintf("process exit: %d -> %d/%d%s",
				e.Process.PID, e.ExitCode, e.ExitSignal, formatParent(e.Parent))
		}
		return fmt.Sprintf("thread exit: %d -> %d/%d", e.Process.TID, e.ExitCode, e.ExitSignal)

	default:
		return fmt.Sprintf("%s event", ev.Kind())
	}
}

func formatParent(parent proconn.TaskIDs) string {
	if parent.IsMissing() {
		return ""
	}
	return fmt.Sprintf(" (parent %d)", parent.PID)
}

// FormatLine is FormatMeta followed by FormatEvent.
func FormatLine(ev proconn.Event) string {
	return FormatMeta(ev.Meta()) + " " + FormatEvent(ev)
}
