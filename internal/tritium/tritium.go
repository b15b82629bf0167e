// Package tritium implements the wire protocol of the Tritium CAN-Ethernet
// bridge: the bit-packed packet formats exchanged over UDP broadcast and TCP
// streams, the translation between generic CAN frames and the wire frame,
// and the heartbeat packet announcing bridge presence.
package tritium

import (
	"errors"
	"fmt"
	"net/netip"
	"time"
)

const (
	// DefaultPort is the IANA-assigned protocol port.
	DefaultPort uint16 = 4876

	// ProtocolVersion is the fixed 52-bit version identifier every outgoing
	// header carries ("Tritium" packed into 6.5 bytes).
	ProtocolVersion uint64 = 0x5472697469756

	// HeartbeatInterval is the nominal gap between liveness packets.
	HeartbeatInterval = time.Second
)

// BroadcastAddr returns the well-known multicast group packets are sent to.
func BroadcastAddr() netip.Addr { return netip.AddrFrom4([4]byte{239, 255, 60, 60}) }

// Params bundles the protocol constants a transport needs. They are passed
// in at construction rather than read from globals so tests can override
// port, version and timing per instance.
type Params struct {
	Port              uint16
	Broadcast         netip.Addr
	Version           uint64
	HeartbeatInterval time.Duration
}

// DefaultParams returns the production protocol parameters.
func DefaultParams() Params {
	return Params{
		Port:              DefaultPort,
		Broadcast:         BroadcastAddr(),
		Version:           ProtocolVersion,
		HeartbeatInterval: HeartbeatInterval,
	}
}

// Flags is the 8-bit flag field of a wire frame. Values combine by bitwise
// union. Unknown bits decode without error and are otherwise ignored.
type Flags uint8

const (
	FlagHeartbeat Flags = 1 << 7
	FlagSettings  Flags = 1 << 6
	FlagRemote    Flags = 1 << 1
	FlagExtended  Flags = 1 << 0
)

// Has reports whether all bits of mask are set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// ErrBusNumberRange is returned when constructing a BusNumber above 15.
var ErrBusNumberRange = errors.New("tritium: bus number out of range")

// BusNumber identifies one of the 16 CAN buses behind a bridge.
// Construct via NewBusNumber; the zero-config default is DefaultBusNumber.
type BusNumber uint8

// DefaultBusNumber is the bus number used when none is configured.
const DefaultBusNumber BusNumber = 13

// NewBusNumber validates n and returns it as a BusNumber.
func NewBusNumber(n uint8) (BusNumber, error) {
	if n > 0xF {
		return 0, fmt.Errorf("%w: %d", ErrBusNumberRange, n)
	}
	return BusNumber(n), nil
}
