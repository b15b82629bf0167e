package main

import (
	"log/slog"
	"os"

	"github.com/kstaniek/go-tritium-can/internal/logging"
)

func setupLogger(format, level string) *slog.Logger {
	l := logging.New(format, logging.ParseLevel(level), os.Stderr).With("app", "tritium-server")
	logging.Set(l)
	return l
}
