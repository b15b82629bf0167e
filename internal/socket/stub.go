//go:build !linux

package socket

import (
	"errors"
	"net/netip"
)

// Placeholders so non-linux builds compile; the raw-fd sockets are linux only.

var errUnsupported = errors.New("socket: raw sockets unsupported on this platform")

type UDP struct{}

func NewUDP(group netip.Addr) *UDP { return &UDP{} }

func (*UDP) IsOpen() bool                              { return false }
func (*UDP) Bind(port uint16) error                    { return errUnsupported }
func (*UDP) SendTo(p []byte, dst netip.AddrPort) error { return errUnsupported }
func (*UDP) RecvFrom(p []byte) (int, netip.AddrPort, error) {
	return 0, netip.AddrPort{}, ErrExhausted
}
func (*UDP) Close() error             { return nil }
func (*UDP) RegisterRecvWaker(func()) {}
func (*UDP) RegisterSendWaker(func()) {}

type TCP struct{}

func NewTCP() *TCP { return &TCP{} }

func (*TCP) IsOpen() bool               { return false }
func (*TCP) IsListening() bool          { return false }
func (*TCP) Listen(port uint16) error   { return errUnsupported }
func (*TCP) State() State               { return StateClosed }
func (*TCP) CanSend() bool              { return false }
func (*TCP) CanRecv() bool              { return false }
func (*TCP) Send(p []byte) (int, error) { return 0, ErrExhausted }
func (*TCP) Recv(p []byte) (int, error) { return 0, ErrExhausted }
func (*TCP) Close()                     {}
func (*TCP) Shutdown()                  {}
func (*TCP) RegisterRecvWaker(func())   {}
func (*TCP) RegisterSendWaker(func())   {}
