package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/kstaniek/go-tritium-can/internal/can"
	"github.com/kstaniek/go-tritium-can/internal/metrics"
	"github.com/kstaniek/go-tritium-can/internal/socket"
	"github.com/kstaniek/go-tritium-can/internal/tritium"
)

// TCPServer serves one stream connection at a time on the protocol port and
// reproduces datagram alignment over the byte stream: the first bytes
// written on a fresh connection are a 30-byte zero block, after which the
// stream repeats 14-byte frames. A receiver reading fixed-size chunks from
// the first byte therefore stays aligned to frame boundaries. The receive
// side applies the same discipline, discarding the peer's 30-byte prefix
// once per connection.
type TCPServer struct {
	sock socket.Stream
	opts options

	lastHeartbeat time.Time
	txStart       bool
	rxStart       bool
}

// zeroPrefix is the one-time stream alignment block, one packet long.
var zeroPrefix [tritium.PacketLen]byte

// NewTCPServer wraps sock, which stays owned by the caller. now seeds the
// heartbeat timer.
func NewTCPServer(sock socket.Stream, now time.Time, opts ...Option) *TCPServer {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &TCPServer{sock: sock, opts: o, lastHeartbeat: now}
}

// BusNumber returns the current bus number.
func (s *TCPServer) BusNumber() tritium.BusNumber { return s.opts.bus }

// SetBusNumber changes the bus number stamped on subsequent packets.
func (s *TCPServer) SetBusNumber(b tritium.BusNumber) { s.opts.bus = b }

// SetDataRate changes the bit rate announced in subsequent heartbeats.
func (s *TCPServer) SetDataRate(r uint16) { s.opts.dataRate = r }

// Poll keeps the passive listen alive, closes the local side once the peer
// half-closes, and emits heartbeats while the connection accepts outbound
// bytes. Closing resets the alignment bookkeeping so the next connection
// starts a fresh prefix cycle. Listen failures are logged and retried on
// the next call.
func (s *TCPServer) Poll(now time.Time) {
	if !s.sock.IsOpen() && !s.sock.IsListening() {
		if err := s.sock.Listen(s.opts.params.Port); err != nil {
			metrics.IncError(metrics.ErrTCPListen)
			s.opts.logger.Error("tcp_listen_error", "port", s.opts.params.Port, "error", err)
		}
	}

	if s.sock.State() == socket.StateCloseWait {
		s.sock.Close()
		s.txStart = false
		s.rxStart = false
		return
	}

	if s.sock.CanSend() && now.Sub(s.lastHeartbeat) > s.opts.params.HeartbeatInterval {
		if err := s.writeHeartbeat(); err != nil {
			metrics.IncError(metrics.ErrTCPSend)
			s.opts.logger.Error("tcp_heartbeat_error", "error", err)
		} else {
			s.lastHeartbeat = now
			metrics.IncHeartbeat("tcp")
		}
	}
}

// SendHeartbeat writes a heartbeat frame immediately. The interval timer is
// not touched.
func (s *TCPServer) SendHeartbeat() error { return s.writeHeartbeat() }

func (s *TCPServer) writeHeartbeat() error {
	pkt := s.opts.params.Heartbeat(s.opts.mac, s.opts.bus, s.opts.dataRate)
	return s.writeWire(tritium.EncodeFrame(pkt.Frame))
}

// writeWire emits the one-time alignment prefix before the first frame of a
// connection, then the 14-byte frame itself. Heartbeats go through here too
// so the 30-then-14 framing contract holds even when a heartbeat is the
// first thing sent on a fresh connection.
func (s *TCPServer) writeWire(frame []byte) error {
	if !s.txStart {
		if err := s.sendAll(zeroPrefix[:]); err != nil {
			return err
		}
		s.txStart = true
	}
	return s.sendAll(frame)
}

func (s *TCPServer) sendAll(p []byte) error {
	n, err := s.sock.Send(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		// The stream is misaligned beyond repair; drop the connection so the
		// next one starts a clean prefix cycle.
		s.sock.Close()
		s.txStart = false
		s.rxStart = false
		return fmt.Errorf("tcp short write: %d of %d bytes", n, len(p))
	}
	return nil
}

// SendFrame writes one CAN frame to the stream, prefixed by the alignment
// block when it is the first write of the connection. An over-length frame
// is rejected before any wire bytes are produced.
func (s *TCPServer) SendFrame(cf can.Frame) error {
	wf, err := tritium.FromCAN(cf)
	if err != nil {
		return err
	}
	if err := s.writeWire(tritium.EncodeFrame(wf)); err != nil {
		if errors.Is(err, socket.ErrExhausted) {
			return err
		}
		metrics.IncError(metrics.ErrTCPSend)
		return fmt.Errorf("tcp send: %w", err)
	}
	metrics.IncTCPTx()
	return nil
}

// RecvFrame reads the next frame from the stream. The peer's 30-byte
// alignment prefix is discarded once per connection; if the prefix is all
// that was available this call reports no frame. A short read also reports
// no frame, never an error.
func (s *TCPServer) RecvFrame() (can.Frame, bool, error) {
	if !s.sock.CanRecv() {
		return can.Frame{}, false, nil
	}
	if !s.rxStart {
		var prefix [tritium.PacketLen]byte
		n, err := s.sock.Recv(prefix[:])
		if err != nil {
			if errors.Is(err, socket.ErrExhausted) {
				return can.Frame{}, false, nil
			}
			metrics.IncError(metrics.ErrTCPRecv)
			return can.Frame{}, false, fmt.Errorf("tcp recv: %w", err)
		}
		if n != len(prefix) {
			return can.Frame{}, false, nil
		}
		s.rxStart = true
	}

	var buf [tritium.FrameLen]byte
	n, err := s.sock.Recv(buf[:])
	if err != nil {
		if errors.Is(err, socket.ErrExhausted) {
			return can.Frame{}, false, nil
		}
		metrics.IncError(metrics.ErrTCPRecv)
		return can.Frame{}, false, fmt.Errorf("tcp recv: %w", err)
	}
	if n != tritium.FrameLen {
		metrics.IncMalformed()
		return can.Frame{}, false, nil
	}
	wf, err := tritium.DecodeFrame(buf[:])
	if err != nil {
		metrics.IncMalformed()
		return can.Frame{}, false, nil
	}
	cf, err := tritium.ToCAN(wf)
	if err != nil {
		metrics.IncMalformed()
		s.opts.logger.Debug("tcp_recv_bad_frame", "error", err)
		return can.Frame{}, false, nil
	}
	metrics.IncTCPRx()
	return cf, true, nil
}

// RegisterRecvWaker and RegisterSendWaker forward optional wake hints to
// the socket. They never change the poll/send/receive contract.
func (s *TCPServer) RegisterRecvWaker(fn func()) { s.sock.RegisterRecvWaker(fn) }
func (s *TCPServer) RegisterSendWaker(fn func()) { s.sock.RegisterSendWaker(fn) }
