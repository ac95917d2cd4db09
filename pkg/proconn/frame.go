package proconn

import (
	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"golang.org/x/sys/unix"
)

// walkDatagram calls fn with the connector payload of every netlink message
// packed in b, in order. Errors returned by fn are passed through untouched.
func walkDatagram(b []byte, fn func(payload []byte) error) error {
	for len(b) >= nlmsgHdrLen {
		l := int(nlenc.Uint32(b[0:4]))
		if l < nlmsgHdrLen || l > len(b) {
			// Same as NLMSG_OK failing: the rest of the datagram is garbage.
			return nil
		}
		typ := netlink.HeaderType(nlenc.Uint16(b[4:6]))
		data := b[nlmsgHdrLen:l]

		switch typ {
		case netlink.Noop:
			b = next(b, l)
			continue
		case netlink.Error, netlink.Overrun:
			return protocolError(typ, data)
		}

		if hdr, ok := parseCnMsg(data); ok && hdr.isProc() {
			payload := data[cnMsgHdrLen:]
			if int(hdr.len) < len(payload) {
				payload = payload[:hdr.len]
			}
			if err := fn(payload); err != nil {
				return err
			}
		}

		if typ == netlink.Done {
			return nil
		}
		b = next(b, l)
	}
	return nil
}

func next(b []byte, l int) []byte {
	l = nlmsgAlign(l)
	if l > len(b) {
		return nil
	}
	return b[l:]
}

func protocolError(typ netlink.HeaderType, data []byte) *ProtocolError {
	pe := &ProtocolError{Type: typ}
	if typ == netlink.Error && len(data) >= nlmsgErrorLen {
		// struct nlmsgerr starts with a negative errno.
		if code := nlenc.Int32(data[0:nlmsgErrorLen]); code < 0 {
			pe.Errno = unix.Errno(-code)
		}
	}
	return pe
}
