//go:build linux

package socket

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// UDP is a raw-fd datagram socket. All operations are non-blocking; EAGAIN
// surfaces as ErrExhausted.
type UDP struct {
	fd       int
	group    netip.Addr
	recvWake func()
	sendWake func()
}

// NewUDP creates an unbound datagram socket. If group is a multicast
// address, Bind joins it on all interfaces.
func NewUDP(group netip.Addr) *UDP {
	return &UDP{fd: -1, group: group}
}

func (u *UDP) IsOpen() bool { return u.fd >= 0 }

func (u *UDP) Bind(port uint16) error {
	if u.fd >= 0 {
		return nil
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("reuseaddr: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("broadcast: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: int(port)}); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("bind :%d: %w", port, err)
	}
	if u.group.Is4() && u.group.IsMulticast() {
		mreq := &unix.IPMreq{Multiaddr: u.group.As4()}
		if err := unix.SetsockoptIPMreq(fd, unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq); err != nil {
			_ = unix.Close(fd)
			return fmt.Errorf("join %s: %w", u.group, err)
		}
		// The kernel loops multicast back to senders by default, which would
		// feed our own heartbeats and frames into the receive path.
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_LOOP, 0); err != nil {
			_ = unix.Close(fd)
			return fmt.Errorf("multicast loop: %w", err)
		}
	}
	u.fd = fd
	u.wake()
	return nil
}

func (u *UDP) SendTo(p []byte, dst netip.AddrPort) error {
	if u.fd < 0 {
		return fmt.Errorf("udp send: socket not open")
	}
	sa := &unix.SockaddrInet4{Port: int(dst.Port()), Addr: dst.Addr().As4()}
	if err := unix.Sendto(u.fd, p, 0, sa); err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return ErrExhausted
		}
		return fmt.Errorf("sendto %s: %w", dst, err)
	}
	return nil
}

func (u *UDP) RecvFrom(p []byte) (int, netip.AddrPort, error) {
	if u.fd < 0 {
		return 0, netip.AddrPort{}, ErrExhausted
	}
	// MSG_TRUNC reports the real datagram length even when it exceeds the
	// buffer, so oversized units are detectable and fully consumed.
	n, from, err := unix.Recvfrom(u.fd, p, unix.MSG_TRUNC)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, netip.AddrPort{}, ErrExhausted
		}
		return 0, netip.AddrPort{}, fmt.Errorf("recvfrom: %w", err)
	}
	var src netip.AddrPort
	if sa, ok := from.(*unix.SockaddrInet4); ok {
		src = netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	}
	return n, src, nil
}

func (u *UDP) Close() error {
	if u.fd < 0 {
		return nil
	}
	err := unix.Close(u.fd)
	u.fd = -1
	return err
}

func (u *UDP) RegisterRecvWaker(fn func()) { u.recvWake = fn }
func (u *UDP) RegisterSendWaker(fn func()) { u.sendWake = fn }

func (u *UDP) wake() {
	if u.recvWake != nil {
		u.recvWake()
	}
	if u.sendWake != nil {
		u.sendWake()
	}
}
