package proconn

import (
	"context"
	"net"
	"sync"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
)

// procEvent lays out a struct proc_event the way the newest kernels send
// it: header, then the union padded to its largest member.
func procEvent(kind Kind, cpu uint32, ts uint64, fields ...uint32) []byte {
	b := make([]byte, maxEventLen)
	nlenc.PutUint32(b[evWhat:evWhat+4], uint32(kind))
	nlenc.PutUint32(b[evCPU:evCPU+4], cpu)
	nlenc.PutUint64(b[evTimestamp:evTimestamp+8], ts)
	for i, f := range fields {
		off := evUnion + 4*i
		nlenc.PutUint32(b[off:off+4], f)
	}
	return b
}

func withComm(b []byte, name []byte) []byte {
	copy(b[evThird:evThird+commLen], name)
	return b
}

func commEvent(tid, pid uint32, name []byte) []byte {
	return withComm(procEvent(KindComm, 0, 0, tid, pid), name)
}

func connectorMsg(idx, val uint32, ev []byte) []byte {
	return cnMsg{idx: idx, val: val}.marshal(ev)
}

func nlMsg(typ netlink.HeaderType, data []byte) []byte {
	l := nlmsgHdrLen + len(data)
	b := make([]byte, nlmsgAlign(l))
	nlenc.PutUint32(b[0:4], uint32(l))
	nlenc.PutUint16(b[4:6], uint16(typ))
	copy(b[nlmsgHdrLen:], data)
	return b
}

// datagram packs proc events the way the kernel does, the last one marked
// done.
func datagram(events ...[]byte) []byte {
	var b []byte
	for i, ev := range events {
		typ := netlink.HeaderType(0)
		if i == len(events)-1 {
			typ = netlink.Done
		}
		b = append(b, nlMsg(typ, connectorMsg(cnIdxProc, cnValProc, ev))...)
	}
	return b
}

type fakeDatagram struct {
	b    []byte
	from uint32
	err  error
}

// fakeTransport hands out queued datagrams and blocks when there are none,
// like a socket with nothing to read.
type fakeTransport struct {
	mu   sync.Mutex
	sent [][]byte

	incoming  chan fakeDatagram
	sentCh    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	closes    int

	sendErr    error
	shortWrite bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		incoming: make(chan fakeDatagram, 16),
		sentCh:   make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (f *fakeTransport) queue(b []byte) {
	f.incoming <- fakeDatagram{b: b, from: kernelPortID}
}

func (f *fakeTransport) sendto(_ context.Context, b []byte, portID uint32) (int, error) {
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.mu.Lock()
	f.sent = append(f.sent, append([]byte(nil), b...))
	f.mu.Unlock()
	f.sentCh <- b

	if f.shortWrite {
		return len(b) - 1, nil
	}
	return len(b), nil
}

func (f *fakeTransport) recvfrom(ctx context.Context, b []byte) (int, uint32, error) {
	select {
	case d := <-f.incoming:
		if d.err != nil {
			return 0, 0, d.err
		}
		return copy(b, d.b), d.from, nil
	case <-f.closed:
		return 0, 0, net.ErrClosed
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	}
}

func (f *fakeTransport) close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) sentOps() []mcastOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ops []mcastOp
	for _, b := range f.sent {
		off := nlmsgHdrLen + cnMsgHdrLen
		ops = append(ops, mcastOp(nlenc.Uint32(b[off:off+4])))
	}
	return ops
}

type recordingMetrics struct {
	mu        sync.Mutex
	datagrams int
	events    map[Kind]int
	dropped   map[Kind]int
	ignored   []uint32
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		events:  make(map[Kind]int),
		dropped: make(map[Kind]int),
	}
}

func (m *recordingMetrics) ObserveDatagram(int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datagrams++
}

func (m *recordingMetrics) ObserveEvent(k Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[k]++
}

func (m *recordingMetrics) ObserveDropped(k Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[k]++
}

func (m *recordingMetrics) ObserveIgnored(tag uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignored = append(m.ignored, tag)
}
