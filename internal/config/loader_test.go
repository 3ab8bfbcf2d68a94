package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
addr: ":9000"
log_level: debug
event_queue_size: 64
max_handlers: 128
post_timeout_ms: 250
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.LogLevel != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.EventQueueSize != 64 || cfg.MaxHandlers != 128 {
		t.Fatalf("bus sizing = %+v", cfg)
	}
	if got := cfg.PostTimeout(); got != 250*time.Millisecond {
		t.Fatalf("post timeout = %v, want 250ms", got)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"addr":":9100","max_services":16}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9100" || cfg.MaxServices != 16 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "config.toml", "addr = \":9200\"\nmax_event_payload = 512\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9200" || cfg.MaxEventPayload != 512 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeFile(t, "config.ini", "addr=:9300")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("TIANSHAND_ADDR", ":7000")
	t.Setenv("TIANSHAND_EVENT_QUEUE_SIZE", "256")
	t.Setenv("TIANSHAND_CORS_ORIGINS", "http://a.local,http://b.local")

	cfg := Config{Addr: ":9000", LogLevel: "warn", EventQueueSize: 32}
	cfg, err := ApplyEnv(cfg)
	if err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Fatalf("addr = %q, env should win", cfg.Addr)
	}
	if cfg.EventQueueSize != 256 {
		t.Fatalf("queue size = %d, env should win", cfg.EventQueueSize)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level = %q, unset env clobbered it", cfg.LogLevel)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.local" {
		t.Fatalf("cors origins = %v, want two split on comma", cfg.CORSOrigins)
	}
}

func TestMergeFillsUnspecified(t *testing.T) {
	cfg := Merge(Config{Addr: ":9000"}, Default())
	if cfg.Addr != ":9000" {
		t.Fatalf("addr = %q, explicit value lost", cfg.Addr)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log level = %q, want default", cfg.LogLevel)
	}
	if cfg.HeartbeatSeconds != 30 {
		t.Fatalf("heartbeat = %d, want default", cfg.HeartbeatSeconds)
	}
}

func TestMergeNegativeHeartbeatDisables(t *testing.T) {
	cfg := Merge(Config{HeartbeatSeconds: -1}, Default())
	if cfg.HeartbeatSeconds != -1 {
		t.Fatalf("heartbeat = %d, explicit disable lost to default", cfg.HeartbeatSeconds)
	}
}

func TestPostTimeoutZeroMeansBusDefault(t *testing.T) {
	if got := (Config{}).PostTimeout(); got != 0 {
		t.Fatalf("post timeout = %v, want 0", got)
	}
}
