package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-tritium-can/internal/bridge"
	"github.com/kstaniek/go-tritium-can/internal/can"
	"github.com/kstaniek/go-tritium-can/internal/hub"
	"github.com/kstaniek/go-tritium-can/internal/socket"
)

// poller is the single-threaded heart of the bridge: one ticker drives both
// transport state machines, drains received frames toward the CAN backend
// and pushes backend frames out to the network. All transport state is
// touched from this goroutine only.
type poller struct {
	udp       *bridge.UDPServer
	tcp       *bridge.TCPServer
	sub       *hub.Subscription
	sendToCAN func(can.Frame) error
	interval  time.Duration
	l         *slog.Logger
}

func (p *poller) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer p.l.Info("poller_end")
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.step(time.Now())
		}
	}
}

// step runs one poll cycle. Budgets bound the per-tick work so a flood in
// one direction cannot stall heartbeats or the other direction.
func (p *poller) step(now time.Time) {
	p.udp.Poll(now)
	p.tcp.Poll(now)

	for i := 0; i < maxRxPerTick; i++ {
		cf, ok, err := p.udp.RecvFrame()
		if err != nil {
			p.l.Warn("udp_recv_error", "error", err)
			break
		}
		if !ok {
			break
		}
		if err := p.sendToCAN(cf); err != nil {
			p.l.Debug("backend_send_drop", "error", err)
		}
	}
	for i := 0; i < maxRxPerTick; i++ {
		cf, ok, err := p.tcp.RecvFrame()
		if err != nil {
			p.l.Warn("tcp_recv_error", "error", err)
			break
		}
		if !ok {
			break
		}
		if err := p.sendToCAN(cf); err != nil {
			p.l.Debug("backend_send_drop", "error", err)
		}
	}

drain:
	for i := 0; i < maxTxPerTick; i++ {
		select {
		case fr := <-p.sub.Out:
			if err := p.udp.SendFrame(fr); err != nil {
				p.l.Debug("udp_send_drop", "error", err)
			}
			// No TCP peer shows up as exhausted; not worth logging.
			if err := p.tcp.SendFrame(fr); err != nil && !errors.Is(err, socket.ErrExhausted) {
				p.l.Debug("tcp_send_drop", "error", err)
			}
		default:
			break drain
		}
	}
}
