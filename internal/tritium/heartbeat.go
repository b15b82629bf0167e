package tritium

import "encoding/binary"

// Heartbeat builds the periodic liveness packet announcing bridge presence,
// bus assignment and bit rate. Listeners discover a bridge from these
// packets without a handshake. Payload is the data rate (big-endian 16 bit)
// followed by the six MAC bytes; the CAN identifier is zero and the DLC is
// always 8. Pure function; transports decide when to send it.
func (p Params) Heartbeat(mac [6]byte, bus BusNumber, dataRate uint16) Packet {
	var data [8]byte
	binary.BigEndian.PutUint16(data[:2], dataRate)
	copy(data[2:], mac[:])

	return Packet{
		Header: Header{Version: p.Version, Bus: bus},
		Frame: Frame{
			Flags: FlagHeartbeat,
			DLC:   uint8(len(data)),
			Data:  binary.BigEndian.Uint64(data[:]),
		},
	}
}
