package proconn

import (
	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
)

// Connector identifiers of the process events producer (linux/connector.h).
const (
	cnIdxProc = 1
	cnValProc = 1
)

// Multicast operations understood by the proc connector (linux/cn_proc.h).
type mcastOp uint32

const (
	opListen mcastOp = 1
	opIgnore mcastOp = 2
)

func (op mcastOp) String() string {
	switch op {
	case opListen:
		return "listen"
	case opIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

const (
	nlmsgAlignTo  = 4
	nlmsgHdrLen   = 16
	cnMsgHdrLen   = 20
	nlmsgErrorLen = 4

	// DefaultBufferSize is big enough for a datagram carrying one proc event.
	DefaultBufferSize = 2048
)

// Layout of struct proc_event. The header is what, cpu and an 8-byte
// aligned timestamp; the union follows at offset 16.
const (
	evWhat      = 0
	evCPU       = 4
	evTimestamp = 8
	evHeaderLen = 16

	evUnion = evHeaderLen

	// Union member offsets shared by every variant that starts with the
	// process (or parent, for fork) pid/tgid pair.
	evFirstPID  = evUnion
	evFirstTGID = evUnion + 4
	evThird     = evUnion + 8
	evFourth    = evUnion + 12
	evFifth     = evUnion + 16
	evSixth     = evUnion + 20

	commLen = 16

	forkEnd   = evUnion + 16
	execEnd   = evUnion + 8
	idEnd     = evUnion + 16
	sidEnd    = evUnion + 8
	ptraceEnd = evUnion + 16
	commEnd   = evThird + commLen

	// The parent pair of coredump and exit events was added in 4.18.
	coredumpFixedEnd  = evUnion + 8
	coredumpParentEnd = coredumpFixedEnd + 8
	exitFixedEnd      = evUnion + 16
	exitParentEnd     = exitFixedEnd + 8

	// Largest union member is 24 bytes.
	maxEventLen = evUnion + 24

	// MinBufferSize holds one netlink header, one connector header and a
	// full proc event.
	MinBufferSize = nlmsgHdrLen + cnMsgHdrLen + maxEventLen
)

func nlmsgAlign(n int) int {
	return (n + nlmsgAlignTo - 1) &^ (nlmsgAlignTo - 1)
}

// cnMsg is the connector header that follows the netlink header.
type cnMsg struct {
	idx   uint32
	val   uint32
	seq   uint32
	ack   uint32
	len   uint16
	flags uint16
}

func (m cnMsg) isProc() bool {
	return m.idx == cnIdxProc && m.val == cnValProc
}

func parseCnMsg(b []byte) (cnMsg, bool) {
	if len(b) < cnMsgHdrLen {
		return cnMsg{}, false
	}
	return cnMsg{
		idx:   nlenc.Uint32(b[0:4]),
		val:   nlenc.Uint32(b[4:8]),
		seq:   nlenc.Uint32(b[8:12]),
		ack:   nlenc.Uint32(b[12:16]),
		len:   nlenc.Uint16(b[16:18]),
		flags: nlenc.Uint16(b[18:20]),
	}, true
}

func (m cnMsg) marshal(data []byte) []byte {
	b := make([]byte, cnMsgHdrLen+len(data))
	nlenc.PutUint32(b[0:4], m.idx)
	nlenc.PutUint32(b[4:8], m.val)
	nlenc.PutUint32(b[8:12], m.seq)
	nlenc.PutUint32(b[12:16], m.ack)
	nlenc.PutUint16(b[16:18], uint16(len(data)))
	nlenc.PutUint16(b[18:20], m.flags)
	copy(b[cnMsgHdrLen:], data)
	return b
}

// controlMessage builds the netlink datagram that asks the proc connector
// to start or stop multicasting to portID.
func controlMessage(op mcastOp, portID uint32) ([]byte, error) {
	payload := cnMsg{idx: cnIdxProc, val: cnValProc}.marshal(nlenc.Uint32Bytes(uint32(op)))

	msg := netlink.Message{
		Header: netlink.Header{
			Length: uint32(nlmsgHdrLen + len(payload)),
			Type:   netlink.Done,
			PID:    portID,
		},
		Data: payload,
	}
	return msg.MarshalBinary()
}
