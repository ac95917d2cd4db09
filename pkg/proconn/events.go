package proconn

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the tag of a proc event. Kinds are distinct bits so that a set of
// them fits in a KindSet.
type Kind uint32

const (
	KindFork     Kind = 0x00000001
	KindExec     Kind = 0x00000002
	KindUID      Kind = 0x00000004
	KindGID      Kind = 0x00000040
	KindSID      Kind = 0x00000080
	KindPtrace   Kind = 0x00000100
	KindComm     Kind = 0x00000200
	KindCoredump Kind = 0x40000000
	KindExit     Kind = 0x80000000
)

// Kinds lists every kind the decoder understands, in tag order.
var Kinds = []Kind{
	KindFork, KindExec, KindUID, KindGID, KindSID,
	KindPtrace, KindComm, KindCoredump, KindExit,
}

func (k Kind) String() string {
	switch k {
	case KindFork:
		return "fork"
	case KindExec:
		return "exec"
	case KindUID:
		return "uid"
	case KindGID:
		return "gid"
	case KindSID:
		return "sid"
	case KindPtrace:
		return "ptrace"
	case KindComm:
		return "comm"
	case KindCoredump:
		return "coredump"
	case KindExit:
		return "exit"
	default:
		return fmt.Sprintf("unknown(%#x)", uint32(k))
	}
}

// ParseKind is the inverse of Kind.String for known kinds.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// KindSet is a mask of kinds.
type KindSet uint32

func (s KindSet) Has(k Kind) bool {
	return uint32(s)&uint32(k) != 0
}

func (s KindSet) With(k Kind) KindSet {
	return s | KindSet(k)
}

func (s KindSet) String() string {
	var names []string
	for _, k := range Kinds {
		if s.Has(k) {
			names = append(names, k.String())
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// MissingPID stands in for a pid or tid the running kernel does not report.
// Real pids and tids are always positive.
const MissingPID int32 = 0

// Metadata is carried by every event.
type Metadata struct {
	CPU uint32
	// Timestamp is nanoseconds since boot.
	Timestamp uint64
}

func (m Metadata) Meta() Metadata {
	return m
}

// SinceBoot returns the timestamp as a duration since boot.
func (m Metadata) SinceBoot() time.Duration {
	return time.Duration(m.Timestamp)
}

// TaskIDs identifies a task. TID is the kernel task id, PID the id of its
// thread group leader.
type TaskIDs struct {
	TID int32
	PID int32
}

func (t TaskIDs) IsMissing() bool {
	return t.TID == MissingPID && t.PID == MissingPID
}

// IsThreadGroupLeader reports whether the task is the main thread of its process.
func (t TaskIDs) IsThreadGroupLeader() bool {
	return !t.IsMissing() && t.TID == t.PID
}

// Event is one decoded proc connector notification.
type Event interface {
	Kind() Kind
	Meta() Metadata
}

type ForkEvent struct {
	Metadata
	Parent TaskIDs
	Child  TaskIDs
}

type ExecEvent struct {
	Metadata
	Process TaskIDs
}

type UIDEvent struct {
	Metadata
	Process TaskIDs
	RUID    uint32
	EUID    uint32
}

type GIDEvent struct {
	Metadata
	Process TaskIDs
	RGID    uint32
	EGID    uint32
}

// SIDEvent is sent when a task creates a new session.
type SIDEvent struct {
	Metadata
	Process TaskIDs
}

type PtraceEvent struct {
	Metadata
	Process TaskIDs
	// Tracer is missing when the process was detached.
	Tracer TaskIDs
}

type CommEvent struct {
	Metadata
	Process TaskIDs
	Comm    string
}

// CoredumpEvent.Parent is only reported by kernels 4.18 and newer.
type CoredumpEvent struct {
	Metadata
	Process TaskIDs
	Parent  TaskIDs
}

// ExitEvent.Parent is only reported by kernels 4.18 and newer.
type ExitEvent struct {
	Metadata
	Process    TaskIDs
	ExitCode   uint32
	ExitSignal uint32
	Parent     TaskIDs
}

func (ForkEvent) Kind() Kind     { return KindFork }
func (ExecEvent) Kind() Kind     { return KindExec }
func (UIDEvent) Kind() Kind      { return KindUID }
func (GIDEvent) Kind() Kind      { return KindGID }
func (SIDEvent) Kind() Kind      { return KindSID }
func (PtraceEvent) Kind() Kind   { return KindPtrace }
func (CommEvent) Kind() Kind     { return KindComm }
func (CoredumpEvent) Kind() Kind { return KindCoredump }
func (ExitEvent) Kind() Kind     { return KindExit }
