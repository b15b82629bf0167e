// Package socket defines the non-blocking socket capability set the bridge
// transports drive: bind/listen, slice-based send/receive, connection-state
// queries and optional wake hints. Any stack exposing these operations,
// embedded or general purpose, can host the transports; this package also
// ships a raw-fd implementation for linux.
package socket

import (
	"errors"
	"net/netip"
)

// ErrExhausted reports that a non-blocking operation had no data to return
// or no room to accept more. Callers simply retry on the next poll.
var ErrExhausted = errors.New("socket: exhausted")

// State is the subset of TCP connection states the stream transport tracks.
type State int

const (
	StateClosed State = iota
	StateListening
	StateEstablished
	StateCloseWait
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateListening:
		return "listening"
	case StateEstablished:
		return "established"
	case StateCloseWait:
		return "close-wait"
	default:
		return "unknown"
	}
}

// Packet is a non-blocking datagram socket. Implementations never block:
// when nothing can be done immediately they return ErrExhausted.
type Packet interface {
	// IsOpen reports whether the socket is bound and usable.
	IsOpen() bool
	// Bind opens the socket on the given local port.
	Bind(port uint16) error
	// SendTo queues one datagram for dst.
	SendTo(p []byte, dst netip.AddrPort) error
	// RecvFrom pulls one whole datagram into p. The returned length is the
	// full datagram size even when it exceeds len(p), so callers can detect
	// and discard oversized units.
	RecvFrom(p []byte) (int, netip.AddrPort, error)
	// Close releases the socket. A later Bind reopens it.
	Close() error
	// RegisterRecvWaker and RegisterSendWaker install optional wake hints
	// fired when readiness may have changed. One registration per direction;
	// registering again supersedes the previous callback.
	RegisterRecvWaker(func())
	RegisterSendWaker(func())
}

// Stream is a non-blocking TCP socket serving one connection at a time.
type Stream interface {
	// IsOpen reports whether a connection is active (established or
	// half-closed by the peer).
	IsOpen() bool
	// IsListening reports whether a passive listen is in place with no
	// active connection.
	IsListening() bool
	// Listen starts a passive listen on the given local port.
	Listen(port uint16) error
	// State returns the current connection state.
	State() State
	// CanSend reports whether outbound bytes are currently accepted.
	CanSend() bool
	// CanRecv reports whether inbound bytes may be available.
	CanRecv() bool
	// Send writes p to the connection, returning the bytes accepted.
	Send(p []byte) (int, error)
	// Recv fills p from the connection. Implementations consume bytes only
	// when len(p) bytes are available so a short read never loses data.
	Recv(p []byte) (int, error)
	// Close drops the active connection; the listen stays in place.
	Close()
	RegisterRecvWaker(func())
	RegisterSendWaker(func())
}
