//go:build linux

package socket

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// TCP is a raw-fd stream socket serving one connection at a time. The
// listener persists across connections; Close drops only the active
// connection so the next peer is accepted on a later poll.
type TCP struct {
	lfd      int
	cfd      int
	state    State
	recvWake func()
	sendWake func()
}

// NewTCP creates a stream socket with no listener yet.
func NewTCP() *TCP {
	return &TCP{lfd: -1, cfd: -1, state: StateClosed}
}

func (t *TCP) IsOpen() bool      { t.accept(); return t.cfd >= 0 }
func (t *TCP) IsListening() bool { return t.lfd >= 0 && t.cfd < 0 }

func (t *TCP) Listen(port uint16) error {
	if t.lfd >= 0 {
		return nil
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("reuseaddr: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: int(port)}); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("bind :%d: %w", port, err)
	}
	if err := unix.Listen(fd, 1); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("listen :%d: %w", port, err)
	}
	t.lfd = fd
	t.state = StateListening
	return nil
}

// accept picks up a pending connection when none is active.
func (t *TCP) accept() {
	if t.cfd >= 0 || t.lfd < 0 {
		return
	}
	fd, _, err := unix.Accept4(t.lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	t.cfd = fd
	t.state = StateEstablished
	t.wake()
}

func (t *TCP) State() State {
	t.accept()
	return t.state
}

func (t *TCP) CanSend() bool {
	t.accept()
	return t.state == StateEstablished
}

func (t *TCP) CanRecv() bool {
	t.accept()
	return t.state == StateEstablished
}

func (t *TCP) Send(p []byte) (int, error) {
	if t.cfd < 0 {
		return 0, ErrExhausted
	}
	n, err := unix.Write(t.cfd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrExhausted
		}
		return 0, fmt.Errorf("write: %w", err)
	}
	return n, nil
}

// Recv consumes bytes only when at least len(p) are buffered: a peek first
// checks availability so a short read never discards stream data. A peer
// half-close is observed here and moves the state to CloseWait.
func (t *TCP) Recv(p []byte) (int, error) {
	if t.cfd < 0 || t.state == StateCloseWait {
		return 0, ErrExhausted
	}
	n, _, err := unix.Recvfrom(t.cfd, p, unix.MSG_PEEK)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrExhausted
		}
		return 0, fmt.Errorf("peek: %w", err)
	}
	if n == 0 { // peer closed its side
		t.state = StateCloseWait
		return 0, ErrExhausted
	}
	if n < len(p) {
		return 0, ErrExhausted
	}
	n, err = unix.Read(t.cfd, p)
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}
	return n, nil
}

// Close drops the active connection and returns to listening. A fresh
// connection starts with a clean state.
func (t *TCP) Close() {
	if t.cfd >= 0 {
		_ = unix.Close(t.cfd)
		t.cfd = -1
	}
	if t.lfd >= 0 {
		t.state = StateListening
	} else {
		t.state = StateClosed
	}
}

// Shutdown releases the connection and the listener.
func (t *TCP) Shutdown() {
	t.Close()
	if t.lfd >= 0 {
		_ = unix.Close(t.lfd)
		t.lfd = -1
	}
	t.state = StateClosed
}

func (t *TCP) RegisterRecvWaker(fn func()) { t.recvWake = fn }
func (t *TCP) RegisterSendWaker(fn func()) { t.sendWake = fn }

func (t *TCP) wake() {
	if t.recvWake != nil {
		t.recvWake()
	}
	if t.sendWake != nil {
		t.sendWake()
	}
}
