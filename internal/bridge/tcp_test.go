package bridge

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/kstaniek/go-tritium-can/internal/can"
	"github.com/kstaniek/go-tritium-can/internal/metrics"
	"github.com/kstaniek/go-tritium-can/internal/socket"
	"github.com/kstaniek/go-tritium-can/internal/tritium"
)

// fakeStream is an in-memory socket.Stream with all-or-nothing Recv
// semantics matching the real implementation.
type fakeStream struct {
	open        bool
	listening   bool
	listenErr   error
	listenCalls int
	state       socket.State
	canSend     bool
	canRecv     bool
	sendErr     error
	shortSend   int          // when > 0, Send accepts at most this many bytes
	recvErr     error        // when set, Recv fails hard
	wire        bytes.Buffer // bytes the server sent
	rx          bytes.Buffer // bytes available from the peer
	closeCalls  int
}

func (f *fakeStream) IsOpen() bool      { return f.open }
func (f *fakeStream) IsListening() bool { return f.listening }

func (f *fakeStream) Listen(port uint16) error {
	f.listenCalls++
	if f.listenErr != nil {
		return f.listenErr
	}
	f.listening = true
	f.state = socket.StateListening
	return nil
}

func (f *fakeStream) State() socket.State { return f.state }
func (f *fakeStream) CanSend() bool       { return f.canSend }
func (f *fakeStream) CanRecv() bool       { return f.canRecv }

func (f *fakeStream) Send(p []byte) (int, error) {
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	if f.shortSend > 0 && len(p) > f.shortSend {
		return f.wire.Write(p[:f.shortSend])
	}
	return f.wire.Write(p)
}

func (f *fakeStream) Recv(p []byte) (int, error) {
	if f.recvErr != nil {
		return 0, f.recvErr
	}
	if f.rx.Len() < len(p) {
		return 0, socket.ErrExhausted
	}
	return f.rx.Read(p)
}

func (f *fakeStream) Close() {
	f.closeCalls++
	f.open = false
	f.canSend = false
	f.canRecv = false
	f.state = socket.StateListening
	f.listening = true
}

func (f *fakeStream) RegisterRecvWaker(func()) {}
func (f *fakeStream) RegisterSendWaker(func()) {}

// connect simulates a peer completing the handshake.
func (f *fakeStream) connect() {
	f.open = true
	f.listening = false
	f.canSend = true
	f.canRecv = true
	f.state = socket.StateEstablished
}

func newTCPUnderTest(fs *fakeStream, now time.Time) *TCPServer {
	return NewTCPServer(fs, now,
		WithMAC([6]byte{1, 2, 3, 4, 5, 6}),
		WithBusNumber(7),
		WithDataRate(500),
	)
}

func TestTCP_PollListens(t *testing.T) {
	fs := &fakeStream{}
	s := newTCPUnderTest(fs, time.Unix(0, 0))
	s.Poll(time.Unix(0, 0))
	if !fs.listening {
		t.Fatalf("poll did not start listening")
	}
	s.Poll(time.Unix(0, 0))
	if fs.listenCalls != 1 {
		t.Fatalf("listen called %d times, want 1", fs.listenCalls)
	}
}

func TestTCP_PollRetriesListenFailure(t *testing.T) {
	fs := &fakeStream{listenErr: errors.New("eaddrinuse")}
	s := newTCPUnderTest(fs, time.Unix(0, 0))
	s.Poll(time.Unix(0, 0))
	s.Poll(time.Unix(0, 0))
	if fs.listenCalls != 2 {
		t.Fatalf("listen not retried: %d calls", fs.listenCalls)
	}
	fs.listenErr = nil
	s.Poll(time.Unix(0, 0))
	if !fs.listening {
		t.Fatalf("listen should succeed once the error clears")
	}
}

func TestTCP_FirstSendEmitsPrefix(t *testing.T) {
	fs := &fakeStream{}
	s := newTCPUnderTest(fs, time.Unix(0, 0))
	fs.connect()

	cf := can.Frame{ID: 0x123, Len: 2, Data: [8]byte{0xAB, 0xCD}}
	if err := s.SendFrame(cf); err != nil {
		t.Fatalf("first SendFrame: %v", err)
	}
	want := tritium.PacketLen + tritium.FrameLen
	if fs.wire.Len() != want {
		t.Fatalf("first send produced %d bytes, want %d", fs.wire.Len(), want)
	}
	out := fs.wire.Bytes()
	for i := 0; i < tritium.PacketLen; i++ {
		if out[i] != 0 {
			t.Fatalf("prefix byte %d = %#x, want 0", i, out[i])
		}
	}
	wf, err := tritium.DecodeFrame(out[tritium.PacketLen:])
	if err != nil {
		t.Fatalf("decode frame after prefix: %v", err)
	}
	back, err := tritium.ToCAN(wf)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if back != cf {
		t.Fatalf("frame after prefix: got %+v want %+v", back, cf)
	}

	// The next send is bare: exactly one frame, no prefix.
	if err := s.SendFrame(cf); err != nil {
		t.Fatalf("second SendFrame: %v", err)
	}
	if fs.wire.Len() != want+tritium.FrameLen {
		t.Fatalf("second send produced %d extra bytes, want %d",
			fs.wire.Len()-want, tritium.FrameLen)
	}
}

func TestTCP_PrefixResetsAfterCloseWait(t *testing.T) {
	fs := &fakeStream{}
	s := newTCPUnderTest(fs, time.Unix(0, 0))
	fs.connect()

	if err := s.SendFrame(can.Frame{ID: 1, Len: 0}); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	fs.wire.Reset()

	// Peer half-closes; the next poll must drop the connection and reset
	// the alignment bookkeeping.
	fs.state = socket.StateCloseWait
	s.Poll(time.Unix(0, 0))
	if fs.closeCalls != 1 {
		t.Fatalf("close calls %d, want 1", fs.closeCalls)
	}

	fs.connect()
	if err := s.SendFrame(can.Frame{ID: 2, Len: 0}); err != nil {
		t.Fatalf("SendFrame after reconnect: %v", err)
	}
	if fs.wire.Len() != tritium.PacketLen+tritium.FrameLen {
		t.Fatalf("reconnect send produced %d bytes, want prefix + frame = %d",
			fs.wire.Len(), tritium.PacketLen+tritium.FrameLen)
	}
}

func TestTCP_HeartbeatGoesThroughPrefix(t *testing.T) {
	fs := &fakeStream{}
	start := time.Unix(0, 0)
	s := newTCPUnderTest(fs, start)
	fs.connect()

	s.Poll(start.Add(2 * tritium.HeartbeatInterval))
	if fs.wire.Len() != tritium.PacketLen+tritium.FrameLen {
		t.Fatalf("heartbeat-first connection wrote %d bytes, want %d",
			fs.wire.Len(), tritium.PacketLen+tritium.FrameLen)
	}
	wf, err := tritium.DecodeFrame(fs.wire.Bytes()[tritium.PacketLen:])
	if err != nil {
		t.Fatalf("decode heartbeat frame: %v", err)
	}
	if !wf.Flags.Has(tritium.FlagHeartbeat) {
		t.Fatalf("flags %#x missing heartbeat bit", wf.Flags)
	}
	if want := uint64(0x01F4010203040506); wf.Data != want {
		t.Fatalf("heartbeat payload %#016x, want %#016x", wf.Data, want)
	}
}

func TestTCP_NoHeartbeatWithoutConnection(t *testing.T) {
	fs := &fakeStream{listening: true, state: socket.StateListening}
	start := time.Unix(0, 0)
	s := newTCPUnderTest(fs, start)
	s.Poll(start.Add(5 * tritium.HeartbeatInterval))
	if fs.wire.Len() != 0 {
		t.Fatalf("heartbeat written with no peer: %d bytes", fs.wire.Len())
	}
}

func TestTCP_RecvDiscardsPeerPrefix(t *testing.T) {
	fs := &fakeStream{}
	s := newTCPUnderTest(fs, time.Unix(0, 0))
	fs.connect()

	cf := can.Frame{ID: 0x42, Len: 1, Data: [8]byte{0x99}}
	wf, err := tritium.FromCAN(cf)
	if err != nil {
		t.Fatalf("FromCAN: %v", err)
	}

	// Only the prefix available: consumed, no frame.
	fs.rx.Write(make([]byte, tritium.PacketLen))
	if _, ok, err := s.RecvFrame(); ok || err != nil {
		t.Fatalf("prefix-only recv: ok=%v err=%v", ok, err)
	}
	if fs.rx.Len() != 0 {
		t.Fatalf("prefix not consumed: %d bytes left", fs.rx.Len())
	}

	// One frame arrives: returned without a second prefix skip.
	fs.rx.Write(tritium.EncodeFrame(wf))
	got, ok, err := s.RecvFrame()
	if err != nil || !ok {
		t.Fatalf("RecvFrame: ok=%v err=%v", ok, err)
	}
	if got != cf {
		t.Fatalf("received %+v, want %+v", got, cf)
	}
}

func TestTCP_RecvPrefixAndFrameTogether(t *testing.T) {
	fs := &fakeStream{}
	s := newTCPUnderTest(fs, time.Unix(0, 0))
	fs.connect()

	cf := can.Frame{ID: 0x7FF, Len: 4, Data: [8]byte{1, 2, 3, 4}}
	wf, err := tritium.FromCAN(cf)
	if err != nil {
		t.Fatalf("FromCAN: %v", err)
	}
	fs.rx.Write(make([]byte, tritium.PacketLen))
	fs.rx.Write(tritium.EncodeFrame(wf))

	got, ok, err := s.RecvFrame()
	if err != nil || !ok {
		t.Fatalf("RecvFrame: ok=%v err=%v", ok, err)
	}
	if got != cf {
		t.Fatalf("received %+v, want %+v", got, cf)
	}
}

func TestTCP_RecvShortDataYieldsNothing(t *testing.T) {
	fs := &fakeStream{}
	s := newTCPUnderTest(fs, time.Unix(0, 0))
	fs.connect()

	fs.rx.Write(make([]byte, tritium.PacketLen)) // prefix
	fs.rx.Write([]byte{0x01, 0x02, 0x03})        // partial frame

	if _, ok, err := s.RecvFrame(); ok || err != nil {
		t.Fatalf("partial frame recv: ok=%v err=%v", ok, err)
	}
	// The partial bytes stay queued for the next poll.
	if fs.rx.Len() != 3 {
		t.Fatalf("partial frame consumed: %d bytes left, want 3", fs.rx.Len())
	}
}

func TestTCP_RecvIgnoredWhileNotConnected(t *testing.T) {
	fs := &fakeStream{listening: true, state: socket.StateListening}
	s := newTCPUnderTest(fs, time.Unix(0, 0))
	if _, ok, err := s.RecvFrame(); ok || err != nil {
		t.Fatalf("recv without connection: ok=%v err=%v", ok, err)
	}
}

func TestTCP_ShortWriteDropsConnection(t *testing.T) {
	fs := &fakeStream{shortSend: 10}
	s := newTCPUnderTest(fs, time.Unix(0, 0))
	fs.connect()

	err := s.SendFrame(can.Frame{ID: 1, Len: 0})
	if err == nil || errors.Is(err, socket.ErrExhausted) {
		t.Fatalf("short write not reported: %v", err)
	}
	if fs.closeCalls != 1 {
		t.Fatalf("close calls %d, want 1", fs.closeCalls)
	}

	// The reconnect starts a fresh prefix cycle, never a second partial one.
	fs.shortSend = 0
	fs.wire.Reset()
	fs.connect()
	if err := s.SendFrame(can.Frame{ID: 2, Len: 0}); err != nil {
		t.Fatalf("SendFrame after reconnect: %v", err)
	}
	if fs.wire.Len() != tritium.PacketLen+tritium.FrameLen {
		t.Fatalf("reconnect send produced %d bytes, want prefix + frame = %d",
			fs.wire.Len(), tritium.PacketLen+tritium.FrameLen)
	}
}

func TestTCP_RecvPrefixErrorSurfaces(t *testing.T) {
	fs := &fakeStream{recvErr: errors.New("connection reset")}
	s := newTCPUnderTest(fs, time.Unix(0, 0))
	fs.connect()

	before := metrics.Snap().Errors
	_, ok, err := s.RecvFrame()
	if ok || err == nil {
		t.Fatalf("prefix read error swallowed: ok=%v err=%v", ok, err)
	}
	if after := metrics.Snap().Errors; after == before {
		t.Fatalf("prefix read error not counted")
	}
}

func TestTCP_SendFrameOverLength(t *testing.T) {
	fs := &fakeStream{}
	s := newTCPUnderTest(fs, time.Unix(0, 0))
	fs.connect()
	err := s.SendFrame(can.Frame{ID: 1, Len: 9})
	if !errors.Is(err, tritium.ErrFrameLength) {
		t.Fatalf("got %v, want ErrFrameLength", err)
	}
	if fs.wire.Len() != 0 {
		t.Fatalf("over-length frame produced wire bytes")
	}
}
