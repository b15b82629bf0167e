// Package hub fans frames arriving from the CAN side out to every network
// transport subscription. Broadcast never blocks: a subscription that cannot
// keep up either loses the frame or is kicked, per policy.
package hub

import (
	"sync"

	"github.com/kstaniek/go-tritium-can/internal/can"
	"github.com/kstaniek/go-tritium-can/internal/logging"
	"github.com/kstaniek/go-tritium-can/internal/metrics"
)

type BackpressurePolicy int

const (
	PolicyDrop BackpressurePolicy = iota
	PolicyKick
)

// Subscription is one consumer of broadcast frames, typically a transport
// poll loop draining Out between socket polls.
type Subscription struct {
	Name      string
	Out       chan can.Frame
	Closed    chan struct{}
	closeOnce sync.Once
}

// NewSubscription allocates a subscription with an Out buffer of the given size.
func NewSubscription(name string, buf int) *Subscription {
	return &Subscription{
		Name:   name,
		Out:    make(chan can.Frame, buf),
		Closed: make(chan struct{}),
	}
}

// Close signals the subscription is done (idempotent).
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.Closed)
	})
}

type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	Policy BackpressurePolicy
}

// New creates a Hub with the drop policy.
func New() *Hub { return &Hub{subs: make(map[*Subscription]struct{})} }

// Add registers a subscription with the hub.
func (h *Hub) Add(s *Subscription) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	cur := len(h.subs)
	h.mu.Unlock()
	metrics.SetHubClients(cur)
	logging.L().Info("hub_subscribed", "name", s.Name, "subscriptions", cur)
}

// Remove unregisters a subscription; safe to call multiple times.
func (h *Hub) Remove(s *Subscription) {
	h.mu.Lock()
	_, existed := h.subs[s]
	if existed {
		delete(h.subs, s)
	}
	cur := len(h.subs)
	h.mu.Unlock()
	s.Close()
	metrics.SetHubClients(cur)
	if existed {
		logging.L().Info("hub_unsubscribed", "name", s.Name, "subscriptions", cur)
	}
}

// Broadcast hands one frame to every subscription, honoring the
// backpressure policy. It never blocks on a full queue.
func (h *Hub) Broadcast(fr can.Frame) {
	subs := h.Snapshot()
	metrics.SetBroadcastFanout(len(subs))
	if len(subs) > 0 {
		max := 0
		sum := 0
		for _, s := range subs {
			l := len(s.Out)
			if l > max {
				max = l
			}
			sum += l
		}
		metrics.SetQueueDepth(max, sum/len(subs))
	}
	for _, s := range subs {
		select {
		case s.Out <- fr:
		default:
			if h.Policy == PolicyKick {
				metrics.IncHubKick()
				s.Close()
			} else {
				metrics.IncHubDrop()
			}
		}
	}
}

// Snapshot returns a slice copy of current subscriptions (read-only use).
func (h *Hub) Snapshot() []*Subscription {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()
	return subs
}

// Count returns the number of active subscriptions.
func (h *Hub) Count() int { h.mu.RLock(); n := len(h.subs); h.mu.RUnlock(); return n }
