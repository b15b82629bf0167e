package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-tritium-can/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	UDPTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udp_tx_frames_total",
		Help: "Total CAN frames broadcast as UDP packets.",
	})
	UDPRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udp_rx_frames_total",
		Help: "Total CAN frames decoded from received UDP packets.",
	})
	TCPTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_tx_frames_total",
		Help: "Total CAN frames written to the TCP stream.",
	})
	TCPRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_rx_frames_total",
		Help: "Total CAN frames decoded from the TCP stream.",
	})
	Heartbeats = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heartbeats_sent_total",
		Help: "Total heartbeat packets sent, by transport.",
	}, []string{"transport"})
	SerialRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_rx_frames_total",
		Help: "Total CAN frames decoded from the serial adapter.",
	})
	SerialTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_tx_frames_total",
		Help: "Total CAN frames written to the serial adapter.",
	})
	SocketCANRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketcan_rx_frames_total",
		Help: "Total CAN frames read from the SocketCAN interface.",
	})
	SocketCANTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketcan_tx_frames_total",
		Help: "Total CAN frames written to the SocketCAN interface.",
	})
	HubDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_frames_total",
		Help: "Total CAN frames dropped because a transport subscription was full.",
	})
	HubKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_kicked_clients_total",
		Help: "Total subscriptions closed for falling behind (kick policy).",
	})
	HubClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_clients",
		Help: "Current number of hub subscriptions.",
	})
	BroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_broadcast_fanout",
		Help: "Subscriptions reached by the most recent broadcast.",
	})
	QueueDepthMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_max",
		Help: "Deepest subscription queue observed at the last broadcast.",
	})
	QueueDepthAvg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_avg",
		Help: "Mean subscription queue depth at the last broadcast.",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total discarded receive units (wrong length, undecodable, bad dlc).",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrUDPBind        = "udp_bind"
	ErrUDPSend        = "udp_send"
	ErrUDPRecv        = "udp_recv"
	ErrTCPListen      = "tcp_listen"
	ErrTCPSend        = "tcp_send"
	ErrTCPRecv        = "tcp_recv"
	ErrSerialWrite    = "serial_write"
	ErrSerialOverflow = "serial_tx_overflow"
	ErrSerialRead     = "serial_read"
	ErrSocketCANWrite = "socketcan_write"
	ErrSocketCANOver  = "socketcan_tx_overflow"
	ErrSocketCANRead  = "socketcan_read"
)

// StartHTTP serves Prometheus metrics at /metrics plus a /ready probe.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localUDPTx       uint64
	localUDPRx       uint64
	localTCPTx       uint64
	localTCPRx       uint64
	localHeartbeats  uint64
	localSerialRx    uint64
	localSerialTx    uint64
	localSocketCANRx uint64
	localSocketCANTx uint64
	localHubDrop     uint64
	localMalformed   uint64
	localErrors      uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	UDPTx       uint64
	UDPRx       uint64
	TCPTx       uint64
	TCPRx       uint64
	Heartbeats  uint64
	SerialRx    uint64
	SerialTx    uint64
	SocketCANRx uint64
	SocketCANTx uint64
	HubDrops    uint64
	Malformed   uint64
	Errors      uint64 // sum across error labels
}

func Snap() Snapshot {
	return Snapshot{
		UDPTx:       atomic.LoadUint64(&localUDPTx),
		UDPRx:       atomic.LoadUint64(&localUDPRx),
		TCPTx:       atomic.LoadUint64(&localTCPTx),
		TCPRx:       atomic.LoadUint64(&localTCPRx),
		Heartbeats:  atomic.LoadUint64(&localHeartbeats),
		SerialRx:    atomic.LoadUint64(&localSerialRx),
		SerialTx:    atomic.LoadUint64(&localSerialTx),
		SocketCANRx: atomic.LoadUint64(&localSocketCANRx),
		SocketCANTx: atomic.LoadUint64(&localSocketCANTx),
		HubDrops:    atomic.LoadUint64(&localHubDrop),
		Malformed:   atomic.LoadUint64(&localMalformed),
		Errors:      atomic.LoadUint64(&localErrors),
	}
}

// Wrapper helpers to keep call sites simple.
func IncUDPTx() {
	UDPTxFrames.Inc()
	atomic.AddUint64(&localUDPTx, 1)
}

func IncUDPRx() {
	UDPRxFrames.Inc()
	atomic.AddUint64(&localUDPRx, 1)
}

func IncTCPTx() {
	TCPTxFrames.Inc()
	atomic.AddUint64(&localTCPTx, 1)
}

func IncTCPRx() {
	TCPRxFrames.Inc()
	atomic.AddUint64(&localTCPRx, 1)
}

// IncHeartbeat records one heartbeat sent on the named transport ("udp" or "tcp").
func IncHeartbeat(transport string) {
	Heartbeats.WithLabelValues(transport).Inc()
	atomic.AddUint64(&localHeartbeats, 1)
}

func IncSerialRx() {
	SerialRxFrames.Inc()
	atomic.AddUint64(&localSerialRx, 1)
}

func IncSerialTx() {
	SerialTxFrames.Inc()
	atomic.AddUint64(&localSerialTx, 1)
}

// IncSocketCANRx increments SocketCAN receive counters.
func IncSocketCANRx() {
	SocketCANRxFrames.Inc()
	atomic.AddUint64(&localSocketCANRx, 1)
}

// IncSocketCANTx increments SocketCAN transmit counters.
func IncSocketCANTx() {
	SocketCANTxFrames.Inc()
	atomic.AddUint64(&localSocketCANTx, 1)
}

func IncHubDrop() {
	HubDroppedFrames.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func IncHubKick() {
	HubKickedClients.Inc()
}

func SetHubClients(n int) { HubClients.Set(float64(n)) }

func SetBroadcastFanout(n int) { BroadcastFanout.Set(float64(n)) }

func SetQueueDepth(max, avg int) {
	QueueDepthMax.Set(float64(max))
	QueueDepthAvg.Set(float64(avg))
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common label series so the first error does not pay a
	// registration latency.
	for _, lbl := range []string{
		ErrUDPBind, ErrUDPSend, ErrUDPRecv,
		ErrTCPListen, ErrTCPSend, ErrTCPRecv,
		ErrSerialWrite, ErrSerialOverflow, ErrSerialRead,
		ErrSocketCANWrite, ErrSocketCANOver, ErrSocketCANRead,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
	for _, lbl := range []string{"udp", "tcp"} {
		Heartbeats.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}
