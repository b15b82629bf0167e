package bridge

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/kstaniek/go-tritium-can/internal/can"
	"github.com/kstaniek/go-tritium-can/internal/metrics"
	"github.com/kstaniek/go-tritium-can/internal/socket"
	"github.com/kstaniek/go-tritium-can/internal/tritium"
)

// UDPServer broadcasts frames and heartbeats as complete 30-byte packets
// and receives the same from peers. UDP carries no connection state: every
// datagram stands alone.
type UDPServer struct {
	sock socket.Packet
	dst  netip.AddrPort
	opts options

	lastHeartbeat time.Time
	rxBuf         [tritium.PacketLen]byte
}

// NewUDPServer wraps sock, which stays owned by the caller. now seeds the
// heartbeat timer so the first heartbeat goes out one interval after start.
func NewUDPServer(sock socket.Packet, now time.Time, opts ...Option) *UDPServer {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &UDPServer{
		sock:          sock,
		dst:           netip.AddrPortFrom(o.params.Broadcast, o.params.Port),
		opts:          o,
		lastHeartbeat: now,
	}
}

// BusNumber returns the current bus number.
func (s *UDPServer) BusNumber() tritium.BusNumber { return s.opts.bus }

// SetBusNumber changes the bus number stamped on subsequent packets.
func (s *UDPServer) SetBusNumber(b tritium.BusNumber) { s.opts.bus = b }

// SetDataRate changes the bit rate announced in subsequent heartbeats.
func (s *UDPServer) SetDataRate(r uint16) { s.opts.dataRate = r }

// Poll binds the socket when needed and emits a heartbeat once the interval
// has elapsed. Idempotent; bind and send failures are logged and retried on
// the next call. The timestamp advances only on a successful send, so a
// failed heartbeat is retried without waiting out another interval, and a
// jump across several intervals produces a single heartbeat.
func (s *UDPServer) Poll(now time.Time) {
	if !s.sock.IsOpen() {
		if err := s.sock.Bind(s.opts.params.Port); err != nil {
			metrics.IncError(metrics.ErrUDPBind)
			s.opts.logger.Error("udp_bind_error", "port", s.opts.params.Port, "error", err)
		}
	}

	if now.Sub(s.lastHeartbeat) > s.opts.params.HeartbeatInterval {
		if err := s.writeHeartbeat(); err != nil {
			metrics.IncError(metrics.ErrUDPSend)
			s.opts.logger.Error("udp_heartbeat_error", "error", err)
		} else {
			s.lastHeartbeat = now
			metrics.IncHeartbeat("udp")
		}
	}
}

// SendHeartbeat broadcasts a heartbeat immediately. The interval timer is
// not touched.
func (s *UDPServer) SendHeartbeat() error { return s.writeHeartbeat() }

func (s *UDPServer) writeHeartbeat() error {
	pkt := s.opts.params.Heartbeat(s.opts.mac, s.opts.bus, s.opts.dataRate)
	return s.sock.SendTo(tritium.EncodePacket(pkt), s.dst)
}

// SendFrame broadcasts one CAN frame as a complete packet, independent of
// the heartbeat timer. An over-length frame is rejected before any wire
// bytes are produced.
func (s *UDPServer) SendFrame(cf can.Frame) error {
	wf, err := tritium.FromCAN(cf)
	if err != nil {
		return err
	}
	pkt := tritium.Packet{
		Header: tritium.Header{Version: s.opts.params.Version, Bus: s.opts.bus},
		Frame:  wf,
	}
	if err := s.sock.SendTo(tritium.EncodePacket(pkt), s.dst); err != nil {
		metrics.IncError(metrics.ErrUDPSend)
		return fmt.Errorf("udp send: %w", err)
	}
	metrics.IncUDPTx()
	return nil
}

// RecvFrame attempts exactly one datagram read. Datagrams whose length is
// not exactly one packet are discarded, never buffered or reassembled; the
// ok result is false when no usable frame arrived.
func (s *UDPServer) RecvFrame() (can.Frame, bool, error) {
	n, _, err := s.sock.RecvFrom(s.rxBuf[:])
	if err != nil {
		if errors.Is(err, socket.ErrExhausted) {
			return can.Frame{}, false, nil
		}
		metrics.IncError(metrics.ErrUDPRecv)
		return can.Frame{}, false, fmt.Errorf("udp recv: %w", err)
	}
	if n != tritium.PacketLen {
		metrics.IncMalformed()
		s.opts.logger.Debug("udp_recv_malformed", "len", n)
		return can.Frame{}, false, nil
	}
	pkt, err := tritium.DecodePacket(s.rxBuf[:])
	if err != nil {
		metrics.IncMalformed()
		return can.Frame{}, false, nil
	}
	cf, err := tritium.ToCAN(pkt.Frame)
	if err != nil {
		metrics.IncMalformed()
		s.opts.logger.Debug("udp_recv_bad_frame", "error", err)
		return can.Frame{}, false, nil
	}
	metrics.IncUDPRx()
	return cf, true, nil
}

// RegisterRecvWaker and RegisterSendWaker forward optional wake hints to
// the socket. They never change the poll/send/receive contract.
func (s *UDPServer) RegisterRecvWaker(fn func()) { s.sock.RegisterRecvWaker(fn) }
func (s *UDPServer) RegisterSendWaker(fn func()) { s.sock.RegisterSendWaker(fn) }
