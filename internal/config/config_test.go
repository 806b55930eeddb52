package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigTree(t *testing.T, setting, env string) string {
	t.Helper()
	tmp := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmp, "config", "dev"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, "config", "setting.ini"), []byte(setting), 0o644); err != nil {
		t.Fatalf("write setting: %v", err)
	}
	if env != "" {
		if err := os.WriteFile(filepath.Join(tmp, "config", "dev", "bridge.ini"), []byte(env), 0o644); err != nil {
			t.Fatalf("write env config: %v", err)
		}
	}
	return tmp
}

func TestLoadBridgeConfig(t *testing.T) {
	setting := "environment=dev\ntransport=sse\nlog_level=debug\nport=4000\n"
	env := "port=4100\ntransport=websocket\nkeepalive_interval=5s\nledger_path=/tmp/bridge-usage.db\n"
	tmp := writeConfigTree(t, setting, env)

	os.Setenv("BRIDGE_LEDGER_PATH", "/tmp/env-usage.db")
	t.Cleanup(func() { os.Unsetenv("BRIDGE_LEDGER_PATH") })

	cfg, err := LoadBridgeConfig(tmp)
	if err != nil {
		t.Fatalf("LoadBridgeConfig: %v", err)
	}
	if cfg.Port != 4100 {
		t.Fatalf("expected env config port to win, got %d", cfg.Port)
	}
	if cfg.Transport != TransportWebSocket {
		t.Fatalf("unexpected transport %s", cfg.Transport)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level from base config, got %s", cfg.LogLevel)
	}
	if cfg.KeepAliveInterval != 5*time.Second {
		t.Fatalf("unexpected keepalive interval %v", cfg.KeepAliveInterval)
	}
	if cfg.LedgerPath != "/tmp/env-usage.db" {
		t.Fatalf("expected env var ledger path to win, got %s", cfg.LedgerPath)
	}
}

func TestLoadBridgeConfigDefaults(t *testing.T) {
	cfg, err := LoadBridgeConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadBridgeConfig: %v", err)
	}
	if cfg.Environment != "dev" {
		t.Fatalf("unexpected environment %s", cfg.Environment)
	}
	if cfg.Port != 3939 {
		t.Fatalf("unexpected default port %d", cfg.Port)
	}
	if cfg.Transport != TransportSSE {
		t.Fatalf("unexpected default transport %s", cfg.Transport)
	}
	if cfg.Provider != "static" {
		t.Fatalf("unexpected default provider %s", cfg.Provider)
	}
	if cfg.KeepAliveInterval != 15*time.Second {
		t.Fatalf("unexpected default keepalive %v", cfg.KeepAliveInterval)
	}
	if cfg.LedgerPath != "" {
		t.Fatalf("ledger should default to disabled, got %s", cfg.LedgerPath)
	}
}

func TestLoadBridgeConfigRejectsBadTransport(t *testing.T) {
	tmp := writeConfigTree(t, "environment=dev\n", "transport=carrier-pigeon\n")
	if _, err := LoadBridgeConfig(tmp); err == nil {
		t.Fatalf("expected error for invalid transport")
	}
}
