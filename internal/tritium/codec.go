package tritium

import (
	"errors"
	"fmt"
)

// Wire unit sizes in bytes. Every encode produces exactly these lengths and
// every decode demands them; there is no length negotiation.
const (
	HeaderLen = 16
	FrameLen  = 14
	PacketLen = HeaderLen + FrameLen
	FilterLen = 24
)

// ErrMalformedLength is returned when a decode buffer does not match the
// exact wire size of its unit.
var ErrMalformedLength = errors.New("tritium: malformed buffer length")

// field is an (offset, width) bit range within its containing buffer,
// MSB-first. One generic accessor pair consumes these tables instead of
// per-field bit arithmetic duplicated per type.
type field struct{ off, width uint }

func (f field) get(buf []byte) uint64    { return getBits(buf, f.off, f.width) }
func (f field) put(buf []byte, v uint64) { setBits(buf, f.off, f.width, v) }

// Header layout (16-byte buffer).
var (
	hdrVersion  = field{8, 52}
	hdrBus      = field{60, 4}
	hdrClientID = field{72, 56}
)

// Frame layout (14-byte buffer).
var (
	frmID    = field{0, 32}
	frmFlags = field{32, 8}
	frmDLC   = field{40, 8}
	frmData  = field{48, 64}
)

// Filter layout (24-byte buffer).
var (
	fltFwdID    = field{0, 32}
	fltFwdRange = field{32, 32}
	fltBus      = field{64, 8}
	fltVersion  = field{72, 52}
	fltClientID = field{132, 56}
)

// Header is the 16-byte packet header. ClientID is reserved and currently
// always zero on the wire.
type Header struct {
	Version  uint64
	Bus      BusNumber
	ClientID uint64
}

// Frame is the 14-byte wire representation of one CAN frame. Data holds up
// to 8 payload bytes with payload byte 0 at the most significant position.
type Frame struct {
	ID    uint32
	Flags Flags
	DLC   uint8
	Data  uint64
}

// Packet is the 30-byte unit sent per UDP datagram and conceptually framed
// over TCP.
type Packet struct {
	Header Header
	Frame  Frame
}

// Filter is the 24-byte filter record. Only its wire shape is defined; the
// bridge neither builds nor consumes filters.
type Filter struct {
	FwdID    uint32
	FwdRange uint32
	Bus      uint8
	Version  uint64
	ClientID uint64
}

func badLength(unit string, want, got int) error {
	return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrMalformedLength, unit, want, got)
}

// EncodeHeader packs h into a fresh 16-byte buffer.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	hdrVersion.put(buf, h.Version)
	hdrBus.put(buf, uint64(h.Bus))
	hdrClientID.put(buf, h.ClientID)
	return buf
}

// DecodeHeader reads a header from an exactly 16-byte buffer.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderLen {
		return Header{}, badLength("header", HeaderLen, len(buf))
	}
	return Header{
		Version:  hdrVersion.get(buf),
		Bus:      BusNumber(hdrBus.get(buf)),
		ClientID: hdrClientID.get(buf),
	}, nil
}

// EncodeFrame packs f into a fresh 14-byte buffer.
func EncodeFrame(f Frame) []byte {
	buf := make([]byte, FrameLen)
	frmID.put(buf, uint64(f.ID))
	frmFlags.put(buf, uint64(f.Flags))
	frmDLC.put(buf, uint64(f.DLC))
	frmData.put(buf, f.Data)
	return buf
}

// DecodeFrame reads a wire frame from an exactly 14-byte buffer.
func DecodeFrame(buf []byte) (Frame, error) {
	if len(buf) != FrameLen {
		return Frame{}, badLength("frame", FrameLen, len(buf))
	}
	return Frame{
		ID:    uint32(frmID.get(buf)),
		Flags: Flags(frmFlags.get(buf)),
		DLC:   uint8(frmDLC.get(buf)),
		Data:  frmData.get(buf),
	}, nil
}

// EncodePacket packs p into a fresh 30-byte buffer (header then frame).
func EncodePacket(p Packet) []byte {
	buf := make([]byte, 0, PacketLen)
	buf = append(buf, EncodeHeader(p.Header)...)
	return append(buf, EncodeFrame(p.Frame)...)
}

// DecodePacket reads a packet from an exactly 30-byte buffer.
func DecodePacket(buf []byte) (Packet, error) {
	if len(buf) != PacketLen {
		return Packet{}, badLength("packet", PacketLen, len(buf))
	}
	h, err := DecodeHeader(buf[:HeaderLen])
	if err != nil {
		return Packet{}, err
	}
	f, err := DecodeFrame(buf[HeaderLen:])
	if err != nil {
		return Packet{}, err
	}
	return Packet{Header: h, Frame: f}, nil
}

// EncodeFilter packs f into a fresh 24-byte buffer.
func EncodeFilter(f Filter) []byte {
	buf := make([]byte, FilterLen)
	fltFwdID.put(buf, uint64(f.FwdID))
	fltFwdRange.put(buf, uint64(f.FwdRange))
	fltBus.put(buf, uint64(f.Bus))
	fltVersion.put(buf, f.Version)
	fltClientID.put(buf, f.ClientID)
	return buf
}

// DecodeFilter reads a filter record from an exactly 24-byte buffer.
func DecodeFilter(buf []byte) (Filter, error) {
	if len(buf) != FilterLen {
		return Filter{}, badLength("filter", FilterLen, len(buf))
	}
	return Filter{
		FwdID:    uint32(fltFwdID.get(buf)),
		FwdRange: uint32(fltFwdRange.get(buf)),
		Bus:      uint8(fltBus.get(buf)),
		Version:  fltVersion.get(buf),
		ClientID: fltClientID.get(buf),
	}, nil
}
