package proconn

import (
	"bytes"

	"github.com/mdlayher/netlink/nlenc"
)

// decodeEvent turns one connector payload into a typed event. It returns
// false for unknown tags and for payloads too short to hold the fields
// every kernel sends for their tag.
//
// The kernel always pads the union to its largest member, so the static
// size of an event tells nothing about which fields the sender knew about.
// Fields added in later kernels are only read when the delivered payload
// length covers them.
func decodeEvent(b []byte) (Event, bool) {
	if len(b) < evHeaderLen {
		return nil, false
	}

	meta := Metadata{
		CPU:       nlenc.Uint32(b[evCPU : evCPU+4]),
		Timestamp: nlenc.Uint64(b[evTimestamp : evTimestamp+8]),
	}

	switch Kind(nlenc.Uint32(b[evWhat : evWhat+4])) {
	case KindFork:
		if len(b) < forkEnd {
			return nil, false
		}
		return ForkEvent{
			Metadata: meta,
			Parent:   taskIDsAt(b, evFirstPID),
			Child:    taskIDsAt(b, evThird),
		}, true

	case KindExec:
		if len(b) < execEnd {
			return nil, false
		}
		return ExecEvent{Metadata: meta, Process: taskIDsAt(b, evFirstPID)}, true

	case KindUID:
		if len(b) < idEnd {
			return nil, false
		}
		return UIDEvent{
			Metadata: meta,
			Process:  taskIDsAt(b, evFirstPID),
			RUID:     u32At(b, evThird),
			EUID:     u32At(b, evFourth),
		}, true

	case KindGID:
		if len(b) < idEnd {
			return nil, false
		}
		return GIDEvent{
			Metadata: meta,
			Process:  taskIDsAt(b, evFirstPID),
			RGID:     u32At(b, evThird),
			EGID:     u32At(b, evFourth),
		}, true

	case KindSID:
		if len(b) < sidEnd {
			return nil, false
		}
		return SIDEvent{Metadata: meta, Process: taskIDsAt(b, evFirstPID)}, true

	case KindPtrace:
		if len(b) < ptraceEnd {
			return nil, false
		}
		return PtraceEvent{
			Metadata: meta,
			Process:  taskIDsAt(b, evFirstPID),
			Tracer:   taskIDsAt(b, evThird),
		}, true

	case KindComm:
		if len(b) < commEnd {
			return nil, false
		}
		return CommEvent{
			Metadata: meta,
			Process:  taskIDsAt(b, evFirstPID),
			Comm:     cString(b[evThird:commEnd]),
		}, true

	case KindCoredump:
		if len(b) < coredumpFixedEnd {
			return nil, false
		}
		ev := CoredumpEvent{
			Metadata: meta,
			Process:  taskIDsAt(b, evFirstPID),
		}
		if len(b) >= coredumpParentEnd {
			ev.Parent = taskIDsAt(b, evThird)
		}
		return ev, true

	case KindExit:
		if len(b) < exitFixedEnd {
			return nil, false
		}
		ev := ExitEvent{
			Metadata:   meta,
			Process:    taskIDsAt(b, evFirstPID),
			ExitCode:   u32At(b, evThird),
			ExitSignal: u32At(b, evFourth),
		}
		if len(b) >= exitParentEnd {
			ev.Parent = taskIDsAt(b, evFifth)
		}
		return ev, true

	default:
		return nil, false
	}
}

// taskIDsAt reads a kernel (pid, tgid) pair. Both halves are read together
// so a pair is never half populated.
func taskIDsAt(b []byte, off int) TaskIDs {
	return TaskIDs{
		TID: nlenc.Int32(b[off : off+4]),
		PID: nlenc.Int32(b[off+4 : off+8]),
	}
}

func u32At(b []byte, off int) uint32 {
	return nlenc.Uint32(b[off : off+4])
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
