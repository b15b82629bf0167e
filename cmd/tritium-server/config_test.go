package main

import (
	"testing"
	"time"
)

func validConfig() *appConfig {
	return &appConfig{
		port:         4876,
		bus:          13,
		dataRate:     500,
		mac:          "",
		backend:      "serial",
		canIf:        "can0",
		serialDev:    "/dev/null",
		baud:         115200,
		serialReadTO: 10 * time.Millisecond,
		pollInterval: 10 * time.Millisecond,
		logFormat:    "text",
		logLevel:     "info",
		hubBuffer:    8,
		hubPolicy:    "drop",
	}
}

func TestConfigValidate_OK(t *testing.T) {
	if err := validConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_MACFormats(t *testing.T) {
	c := validConfig()
	c.mac = "02:00:5e:10:00:01"
	if err := c.validate(); err != nil {
		t.Fatalf("valid mac rejected: %v", err)
	}
	c.mac = "02-00-5e-10-00-01"
	if err := c.validate(); err != nil {
		t.Fatalf("dash mac rejected: %v", err)
	}
	c.mac = "02:00:5e:10:00:01:02:03" // EUI-64, not usable in heartbeats
	if err := c.validate(); err == nil {
		t.Fatalf("8-byte mac accepted")
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badPortLow", func(c *appConfig) { c.port = 0 }},
		{"badPortHigh", func(c *appConfig) { c.port = 70000 }},
		{"badBus", func(c *appConfig) { c.bus = 16 }},
		{"badBusNeg", func(c *appConfig) { c.bus = -1 }},
		{"badDataRate", func(c *appConfig) { c.dataRate = 0 }},
		{"badMAC", func(c *appConfig) { c.mac = "zz:zz" }},
		{"badBackend", func(c *appConfig) { c.backend = "x" }},
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"badPolicy", func(c *appConfig) { c.hubPolicy = "x" }},
		{"badHubBuf", func(c *appConfig) { c.hubBuffer = 0 }},
		{"badBaud", func(c *appConfig) { c.baud = 0 }},
		{"badSerialTO", func(c *appConfig) { c.serialReadTO = 0 }},
		{"badPollInterval", func(c *appConfig) { c.pollInterval = 0 }},
	}
	for _, tc := range tests {
		base := validConfig()
		tc.mod(base)
		if err := base.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
