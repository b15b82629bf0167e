package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kstaniek/go-tritium-can/internal/bridge"
	"github.com/kstaniek/go-tritium-can/internal/hub"
	"github.com/kstaniek/go-tritium-can/internal/metrics"
	"github.com/kstaniek/go-tritium-can/internal/socket"
	"github.com/kstaniek/go-tritium-can/internal/tritium"
)

// Helper implementations live in dedicated files: version.go, config.go,
// logger.go, hub_init.go, metrics_logger.go, backend.go, poller.go, mdns.go.

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("tritium-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	h := initHub(cfg, l)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	sendToCAN, cleanup, berr := initBackend(ctx, cfg, h, l, &wg)
	if berr != nil {
		l.Error("backend_init_error", "error", berr)
		return
	}

	mac, err := resolveMAC(cfg)
	if err != nil {
		l.Error("mac_resolve_error", "error", err)
		return
	}

	params := tritium.DefaultParams()
	params.Port = uint16(cfg.port)
	busNum, err := tritium.NewBusNumber(uint8(cfg.bus))
	if err != nil {
		l.Error("bus_number_error", "error", err)
		return
	}
	opts := []bridge.Option{
		bridge.WithParams(params),
		bridge.WithMAC(mac),
		bridge.WithBusNumber(busNum),
		bridge.WithDataRate(uint16(cfg.dataRate)),
		bridge.WithLogger(l),
	}
	now := time.Now()
	udpSrv := bridge.NewUDPServer(socket.NewUDP(params.Broadcast), now, opts...)
	tcpSrv := bridge.NewTCPServer(socket.NewTCP(), now, opts...)
	l.Info("bridge_config", "port", params.Port, "bus", cfg.bus, "data_rate", cfg.dataRate,
		"mac", fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5]))

	sub := hub.NewSubscription("network", cfg.hubBuffer)
	h.Add(sub)
	defer h.Remove(sub)

	p := &poller{
		udp:       udpSrv,
		tcp:       tcpSrv,
		sub:       sub,
		sendToCAN: sendToCAN,
		interval:  cfg.pollInterval,
		l:         l,
	}
	wg.Add(1)
	go p.run(ctx, &wg)

	// The protocol port is fixed up front, so mDNS can start right away.
	go func() {
		cleanupMDNS, err := startMDNS(ctx, cfg, cfg.port)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		if cfg.mdnsEnable {
			l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", cfg.port)
		}
		go func() { <-ctx.Done(); cleanupMDNS() }()
	}()

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	cleanup()
	wg.Wait()
}
