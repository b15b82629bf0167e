package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kstaniek/go-tritium-can/internal/can"
	"github.com/kstaniek/go-tritium-can/internal/hub"
)

// initBackend selects the CAN backend, starts its RX loop and returns a
// frame sender and cleanup. Frames the backend receives are broadcast
// through the hub; the returned sender carries network frames toward the
// CAN side. The "none" backend discards outbound frames and produces none,
// which still leaves the wire protocol fully observable.
func initBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger, wg *sync.WaitGroup) (func(can.Frame) error, func(), error) {
	switch cfg.backend {
	case "serial":
		return initSerialBackend(ctx, cfg, h, l, wg)
	case "socketcan":
		return initSocketCANBackend(ctx, cfg, h, l, wg)
	case "none":
		return func(can.Frame) error { return nil }, func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown backend %q (use serial|socketcan|none)", cfg.backend)
	}
}
