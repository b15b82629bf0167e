// Package bridge contains the UDP and TCP transport state machines that
// drive the Tritium wire protocol over a borrowed socket. Both transports
// are single-threaded and poll-driven: no operation blocks, and Poll must be
// called at a bounded cadence (10 ms target) to keep heartbeats and
// bind/listen retries on schedule. Missing the cadence only delays them.
package bridge

import (
	"log/slog"

	"github.com/kstaniek/go-tritium-can/internal/logging"
	"github.com/kstaniek/go-tritium-can/internal/tritium"
)

type options struct {
	params   tritium.Params
	mac      [6]byte
	bus      tritium.BusNumber
	dataRate uint16
	logger   *slog.Logger
}

func defaultOptions() options {
	return options{
		params: tritium.DefaultParams(),
		bus:    tritium.DefaultBusNumber,
		logger: logging.L(),
	}
}

// Option configures a transport at construction.
type Option func(*options)

// WithParams overrides the protocol parameters (port, broadcast group,
// version, heartbeat interval).
func WithParams(p tritium.Params) Option { return func(o *options) { o.params = p } }

// WithMAC sets the bridge MAC address announced in heartbeats.
func WithMAC(mac [6]byte) Option { return func(o *options) { o.mac = mac } }

// WithBusNumber sets the CAN bus number stamped on outgoing headers.
func WithBusNumber(b tritium.BusNumber) Option { return func(o *options) { o.bus = b } }

// WithDataRate sets the CAN bit rate announced in heartbeats.
func WithDataRate(r uint16) Option { return func(o *options) { o.dataRate = r } }

// WithLogger overrides the transport logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
