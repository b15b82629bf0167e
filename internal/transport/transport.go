// Package transport holds the pieces shared by the CAN backends: the
// asynchronous fan-in writer and the capability interfaces a backend codec
// or sink can satisfy.
package transport

import (
	"bytes"

	"github.com/kstaniek/go-tritium-can/internal/can"
)

// FrameEncoder renders a single CAN frame into the backend's wire format.
type FrameEncoder interface {
	Encode(can.Frame) []byte
}

// StreamDecoder drains all complete frames from an accumulating buffer,
// leaving partial trailing input in place for the next read.
type StreamDecoder interface {
	DecodeStream(in *bytes.Buffer, out func(can.Frame)) error
}

// FrameSink is a generic CAN frame transmission target.
type FrameSink interface {
	SendFrame(can.Frame) error
}
