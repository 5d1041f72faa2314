package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"COCAINE_IPC_PATH", "COCAINE_SPOOL_PATH", "COCAINE_PLUGIN_PATH",
		"COCAINE_RUNTIME_PATH", "COCAINE_BUS_HWM", "COCAINE_HEARTBEAT_INTERVAL",
		"COCAINE_DISOWN_TIMEOUT", "COCAINE_METRICS_ADDR",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Paths.IPC != "/var/run/cocaine" {
		t.Errorf("Paths.IPC = %q", cfg.Paths.IPC)
	}
	if cfg.Paths.Spool != "/var/spool/cocaine" {
		t.Errorf("Paths.Spool = %q", cfg.Paths.Spool)
	}
	if cfg.Paths.Plugins != "/usr/lib/cocaine" {
		t.Errorf("Paths.Plugins = %q", cfg.Paths.Plugins)
	}
	if cfg.Paths.Runtime != "/var/lib/cocaine" {
		t.Errorf("Paths.Runtime = %q", cfg.Paths.Runtime)
	}
	if cfg.Bus.HWM != 10 {
		t.Errorf("Bus.HWM = %d", cfg.Bus.HWM)
	}
	if cfg.Bus.HeartbeatInterval != 5*time.Second {
		t.Errorf("Bus.HeartbeatInterval = %v", cfg.Bus.HeartbeatInterval)
	}
	if cfg.Bus.DisownTimeout != 5*time.Second {
		t.Errorf("Bus.DisownTimeout = %v", cfg.Bus.DisownTimeout)
	}
	if cfg.Metrics.Addr != "" {
		t.Errorf("Metrics.Addr = %q", cfg.Metrics.Addr)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("COCAINE_IPC_PATH", "/tmp/sockets")
	t.Setenv("COCAINE_BUS_HWM", "64")
	t.Setenv("COCAINE_HEARTBEAT_INTERVAL", "250ms")
	t.Setenv("COCAINE_METRICS_ADDR", ":9100")

	cfg := Load()

	if cfg.Paths.IPC != "/tmp/sockets" {
		t.Errorf("Paths.IPC = %q", cfg.Paths.IPC)
	}
	if cfg.Bus.HWM != 64 {
		t.Errorf("Bus.HWM = %d", cfg.Bus.HWM)
	}
	if cfg.Bus.HeartbeatInterval != 250*time.Millisecond {
		t.Errorf("Bus.HeartbeatInterval = %v", cfg.Bus.HeartbeatInterval)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q", cfg.Metrics.Addr)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("COCAINE_BUS_HWM", "many")
	t.Setenv("COCAINE_DISOWN_TIMEOUT", "soon")

	cfg := Load()

	if cfg.Bus.HWM != 10 {
		t.Errorf("Bus.HWM = %d, want the default", cfg.Bus.HWM)
	}
	if cfg.Bus.DisownTimeout != 5*time.Second {
		t.Errorf("Bus.DisownTimeout = %v, want the default", cfg.Bus.DisownTimeout)
	}
}
