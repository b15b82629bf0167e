package tritium

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/kstaniek/go-tritium-can/internal/can"
)

// ErrFrameLength is returned when a frame's DLC exceeds the classic CAN
// limit of 8 bytes. Rejection happens before any wire bytes are produced.
var ErrFrameLength = errors.New("tritium: frame length exceeds 8 bytes")

// FromCAN converts a generic CAN frame to its wire representation. Payload
// bytes pack big-endian into the 64-bit data word: payload byte 0 occupies
// the most significant byte. The same convention applies in both directions.
func FromCAN(cf can.Frame) (Frame, error) {
	if cf.Len > 8 {
		return Frame{}, fmt.Errorf("%w: dlc %d", ErrFrameLength, cf.Len)
	}
	var flags Flags
	if cf.Extended {
		flags |= FlagExtended
	}
	if cf.Remote {
		flags |= FlagRemote
	}
	var data uint64
	if !cf.Remote {
		var buf [8]byte
		copy(buf[:], cf.Data[:cf.Len])
		data = binary.BigEndian.Uint64(buf[:])
	}
	return Frame{ID: cf.ID, Flags: flags, DLC: cf.Len, Data: data}, nil
}

// ToCAN reconstructs a generic CAN frame from its wire representation. The
// identifier width comes solely from the Extended flag; exactly DLC payload
// bytes are exposed. Remote frames carry a DLC but no payload bytes.
func ToCAN(wf Frame) (can.Frame, error) {
	if wf.DLC > 8 {
		return can.Frame{}, fmt.Errorf("%w: dlc %d", ErrFrameLength, wf.DLC)
	}
	cf := can.Frame{
		Extended: wf.Flags.Has(FlagExtended),
		Remote:   wf.Flags.Has(FlagRemote),
		Len:      wf.DLC,
	}
	if cf.Extended {
		cf.ID = wf.ID & can.CAN_EFF_MASK
	} else {
		cf.ID = wf.ID & can.CAN_SFF_MASK
	}
	if !cf.Remote {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], wf.Data)
		copy(cf.Data[:cf.Len], buf[:cf.Len])
	}
	return cf, nil
}
