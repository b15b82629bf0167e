package serial

import (
	"bytes"

	"github.com/kstaniek/go-tritium-can/internal/can"
	"github.com/kstaniek/go-tritium-can/internal/metrics"
)

// Codec translates between CAN frames and the SLCAN (Lawicel) ASCII line
// protocol spoken by serial CAN adapters. One frame per line, '\r'
// terminated, hex upper case:
//
//	tiiiLDD..   standard data frame, iii = 11-bit id, L = dlc
//	TiiiiiiiiLDD..  extended data frame, 8 hex digit 29-bit id
//	riiiL / RiiiiiiiiL  remote frames, no data bytes
//
// Adapter chatter between frames (status bytes, bare '\r', bell) is skipped
// without counting as malformed; a line that starts like a frame but fails
// to parse is counted and resynced past.
type Codec struct{}

const (
	sffDigits = 3
	effDigits = 8

	// longest line: 'T' + 8 id digits + dlc + 16 data digits + '\r'
	maxLine = 1 + effDigits + 1 + 16 + 1
)

const hexUpper = "0123456789ABCDEF"

// CompactBuffer reclaims consumed prefix capacity when the underlying buffer
// grows too large relative to unread bytes. Returns true if compaction
// occurred.
func CompactBuffer(b *bytes.Buffer) bool {
	data := b.Bytes()
	if len(data) < 1024 {
		return false
	}
	if cap(data) > 0 && len(data)*4 < cap(data) {
		clone := make([]byte, len(data))
		copy(clone, data)
		b.Reset()
		_, _ = b.Write(clone)
		return true
	}
	return false
}

func appendHex(dst []byte, v uint32, digits int) []byte {
	for i := digits - 1; i >= 0; i-- {
		dst = append(dst, hexUpper[(v>>(uint(i)*4))&0xF])
	}
	return dst
}

func parseHex(s []byte) (uint32, bool) {
	var v uint32
	for _, c := range s {
		var d uint32
		switch {
		case c >= '0' && c <= '9':
			d = uint32(c - '0')
		case c >= 'A' && c <= 'F':
			d = uint32(c-'A') + 10
		case c >= 'a' && c <= 'f':
			d = uint32(c-'a') + 10
		default:
			return 0, false
		}
		v = v<<4 | d
	}
	return v, true
}

func isCmd(c byte) bool { return c == 't' || c == 'T' || c == 'r' || c == 'R' }

// Encode renders one frame as an SLCAN line including the trailing '\r'.
// Over-length DLCs are clamped to 8.
func (Codec) Encode(f can.Frame) []byte {
	buf := make([]byte, 0, maxLine)
	switch {
	case f.Extended && f.Remote:
		buf = append(buf, 'R')
		buf = appendHex(buf, f.ID&can.CAN_EFF_MASK, effDigits)
	case f.Extended:
		buf = append(buf, 'T')
		buf = appendHex(buf, f.ID&can.CAN_EFF_MASK, effDigits)
	case f.Remote:
		buf = append(buf, 'r')
		buf = appendHex(buf, f.ID&can.CAN_SFF_MASK, sffDigits)
	default:
		buf = append(buf, 't')
		buf = appendHex(buf, f.ID&can.CAN_SFF_MASK, sffDigits)
	}
	n := f.Len
	if n > 8 {
		n = 8
	}
	buf = append(buf, hexUpper[n])
	if !f.Remote {
		for _, b := range f.Data[:n] {
			buf = appendHex(buf, uint32(b), 2)
		}
	}
	return append(buf, '\r')
}

// DecodeStream drains all complete frames from in, emitting them via out.
// Partial trailing input stays buffered for the next call. It returns nil
// unless the buffer itself misbehaves, which bytes.Buffer never does.
func (Codec) DecodeStream(in *bytes.Buffer, out func(can.Frame)) error {
	for {
		data := in.Bytes()
		_ = CompactBuffer(in)
		if len(data) == 0 {
			return nil
		}

		// Align to a frame command byte, dropping adapter chatter.
		if !isCmd(data[0]) {
			i := 0
			for i < len(data) && !isCmd(data[i]) {
				i++
			}
			in.Next(i)
			continue
		}

		cr := bytes.IndexByte(data, '\r')
		if cr < 0 {
			if len(data) > maxLine {
				// No terminator within the longest legal line: garbage.
				metrics.IncMalformed()
				in.Next(1)
				continue
			}
			return nil
		}

		fr, ok := parseLine(data[:cr])
		if !ok {
			metrics.IncMalformed()
			in.Next(1)
			continue
		}
		out(fr)
		metrics.IncSerialRx()
		in.Next(cr + 1)
	}
}

func parseLine(line []byte) (can.Frame, bool) {
	cmd := line[0]
	extended := cmd == 'T' || cmd == 'R'
	remote := cmd == 'r' || cmd == 'R'
	idDigits := sffDigits
	if extended {
		idDigits = effDigits
	}
	if len(line) < 1+idDigits+1 {
		return can.Frame{}, false
	}
	id, ok := parseHex(line[1 : 1+idDigits])
	if !ok {
		return can.Frame{}, false
	}
	if extended {
		if id > can.CAN_EFF_MASK {
			return can.Frame{}, false
		}
	} else if id > can.CAN_SFF_MASK {
		return can.Frame{}, false
	}
	dlc, ok := parseHex(line[1+idDigits : 1+idDigits+1])
	if !ok || dlc > 8 {
		return can.Frame{}, false
	}
	want := 1 + idDigits + 1
	if !remote {
		want += int(dlc) * 2
	}
	if len(line) != want {
		return can.Frame{}, false
	}

	fr := can.Frame{ID: id, Extended: extended, Remote: remote, Len: uint8(dlc)}
	if !remote {
		for i := 0; i < int(dlc); i++ {
			off := 1 + idDigits + 1 + i*2
			b, ok := parseHex(line[off : off+2])
			if !ok {
				return can.Frame{}, false
			}
			fr.Data[i] = byte(b)
		}
	}
	return fr, true
}
