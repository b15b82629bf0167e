package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	port            int
	bus             int
	dataRate        int
	mac             string
	backend         string
	canIf           string
	serialDev       string
	baud            int
	serialReadTO    time.Duration
	pollInterval    time.Duration
	logFormat       string
	logLevel        string
	metricsAddr     string
	hubBuffer       int
	hubPolicy       string
	logMetricsEvery time.Duration
	mdnsEnable      bool
	mdnsName        string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	port := flag.Int("port", 4876, "Protocol UDP/TCP port")
	bus := flag.Int("bus", 13, "CAN bus number stamped on outgoing packets (0-15)")
	dataRate := flag.Int("data-rate", 500, "CAN bit rate announced in heartbeats (kbit/s)")
	mac := flag.String("mac", "", "Bridge MAC for heartbeats (aa:bb:cc:dd:ee:ff); empty = first interface")
	backend := flag.String("backend", "socketcan", "CAN backend: serial|socketcan|none")
	canIf := flag.String("can-if", "can0", "SocketCAN interface (when --backend=socketcan)")
	serialDev := flag.String("serial", "/dev/ttyUSB0", "Serial SLCAN device path (when --backend=serial)")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	serialReadTO := flag.Duration("serial-read-timeout", 50*time.Millisecond, "Serial read timeout")
	pollInterval := flag.Duration("poll-interval", 10*time.Millisecond, "Transport poll cadence")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	hubBuf := flag.Int("hub-buffer", 512, "Per-subscription hub buffer (frames)")
	hubPolicy := flag.String("hub-policy", "drop", "Backpressure policy: drop|kick")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Avahi advertisement")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default tritium-server-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.port = *port
	cfg.bus = *bus
	cfg.dataRate = *dataRate
	cfg.mac = *mac
	cfg.backend = *backend
	cfg.canIf = *canIf
	cfg.serialDev = *serialDev
	cfg.baud = *baud
	cfg.serialReadTO = *serialReadTO
	cfg.pollInterval = *pollInterval
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.hubBuffer = *hubBuf
	cfg.hubPolicy = *hubPolicy
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or sockets, only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.port <= 0 || c.port > 65535 {
		return fmt.Errorf("port out of range: %d", c.port)
	}
	if c.bus < 0 || c.bus > 15 {
		return fmt.Errorf("bus must be 0-15 (got %d)", c.bus)
	}
	if c.dataRate <= 0 || c.dataRate > 65535 {
		return fmt.Errorf("data-rate out of range: %d", c.dataRate)
	}
	if c.mac != "" {
		hw, err := net.ParseMAC(c.mac)
		if err != nil {
			return fmt.Errorf("invalid mac: %w", err)
		}
		if len(hw) != 6 {
			return fmt.Errorf("mac must be 6 bytes (got %d)", len(hw))
		}
	}
	switch c.backend {
	case "serial", "socketcan", "none":
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.hubPolicy {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid hub-policy: %s", c.hubPolicy)
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer must be > 0 (got %d)", c.hubBuffer)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.pollInterval <= 0 {
		return fmt.Errorf("poll-interval must be > 0")
	}
	return nil
}

// applyEnvOverrides maps TRITIUM_SERVER_* environment variables to config
// fields unless a corresponding flag was explicitly set. Empty values are
// ignored; durations accept Go time.ParseDuration format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	envInt := func(flagName, env string, min, max int, dst *int) {
		if _, ok := set[flagName]; ok {
			return
		}
		if v, ok := get(env); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= min && n <= max {
				*dst = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid %s: %w", env, err)
			}
		}
	}
	envStr := func(flagName, env string, dst *string) {
		if _, ok := set[flagName]; ok {
			return
		}
		if v, ok := get(env); ok && v != "" {
			*dst = v
		}
	}
	envDur := func(flagName, env string, dst *time.Duration) {
		if _, ok := set[flagName]; ok {
			return
		}
		if v, ok := get(env); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				*dst = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid %s: %w", env, err)
			}
		}
	}

	envInt("port", "TRITIUM_SERVER_PORT", 1, 65535, &c.port)
	envInt("bus", "TRITIUM_SERVER_BUS", 0, 15, &c.bus)
	envInt("data-rate", "TRITIUM_SERVER_DATA_RATE", 1, 65535, &c.dataRate)
	envStr("mac", "TRITIUM_SERVER_MAC", &c.mac)
	envStr("backend", "TRITIUM_SERVER_BACKEND", &c.backend)
	envStr("can-if", "TRITIUM_SERVER_IF", &c.canIf)
	envStr("serial", "TRITIUM_SERVER_SERIAL", &c.serialDev)
	envInt("baud", "TRITIUM_SERVER_BAUD", 1, 1<<30, &c.baud)
	envDur("serial-read-timeout", "TRITIUM_SERVER_SERIAL_READ_TIMEOUT", &c.serialReadTO)
	envDur("poll-interval", "TRITIUM_SERVER_POLL_INTERVAL", &c.pollInterval)
	envStr("log-format", "TRITIUM_SERVER_LOG_FORMAT", &c.logFormat)
	envStr("log-level", "TRITIUM_SERVER_LOG_LEVEL", &c.logLevel)
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("TRITIUM_SERVER_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	envInt("hub-buffer", "TRITIUM_SERVER_HUB_BUFFER", 1, 1<<30, &c.hubBuffer)
	envStr("hub-policy", "TRITIUM_SERVER_HUB_POLICY", &c.hubPolicy)
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("TRITIUM_SERVER_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid TRITIUM_SERVER_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("TRITIUM_SERVER_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	envStr("mdns-name", "TRITIUM_SERVER_MDNS_NAME", &c.mdnsName)
	return firstErr
}

// resolveMAC returns the heartbeat MAC: either the configured one or the
// hardware address of the first non-loopback interface that has one.
func resolveMAC(c *appConfig) ([6]byte, error) {
	var mac [6]byte
	if c.mac != "" {
		hw, err := net.ParseMAC(c.mac)
		if err != nil {
			return mac, fmt.Errorf("parse mac: %w", err)
		}
		copy(mac[:], hw)
		return mac, nil
	}
	ifs, err := net.Interfaces()
	if err != nil {
		return mac, fmt.Errorf("interfaces: %w", err)
	}
	for _, ifi := range ifs {
		if ifi.Flags&net.FlagLoopback != 0 || len(ifi.HardwareAddr) != 6 {
			continue
		}
		copy(mac[:], ifi.HardwareAddr)
		return mac, nil
	}
	// No usable interface: all-zero MAC still produces valid heartbeats.
	return mac, nil
}
