package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.SessionTTLSeconds != 3600 {
		t.Fatalf("default session ttl = %d", cfg.SessionTTLSeconds)
	}
	if cfg.ReplayCapacity != 100 {
		t.Fatalf("default replay capacity = %d", cfg.ReplayCapacity)
	}
	if !cfg.EnableReplay || !cfg.EnableHeartbeat {
		t.Fatalf("replay/heartbeat should default on: %+v", cfg)
	}
	if cfg.QueuePolicy != "drop_oldest" {
		t.Fatalf("default queue policy = %s", cfg.QueuePolicy)
	}
	if cfg.Store.Backend != StoreMemory {
		t.Fatalf("default store backend = %s", cfg.Store.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "streamweaver.json")
	data := []byte(`{"httpAddr":":9090","queuePolicy":"block","batch":{"enabled":true,"maxSize":20},"store":{"backend":"redis","redis":{"addr":"localhost:6379"}}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("httpAddr = %s", cfg.HTTPAddr)
	}
	if cfg.QueuePolicy != "block" {
		t.Fatalf("queuePolicy = %s", cfg.QueuePolicy)
	}
	if !cfg.Batch.Enabled || cfg.Batch.MaxSize != 20 {
		t.Fatalf("batch = %+v", cfg.Batch)
	}
	// Unset fields keep defaults.
	if cfg.Batch.MaxDelayMs != 50 {
		t.Fatalf("batch maxDelayMs = %d, want default 50", cfg.Batch.MaxDelayMs)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "streamweaver.yaml")
	data := []byte("httpAddr: \":7070\"\nsessionTtlSeconds: 120\nstore:\n  backend: pebble\n  dataDir: /tmp/sw\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":7070" || cfg.SessionTTLSeconds != 120 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Store.Backend != StorePebble || cfg.Store.DataDir != "/tmp/sw" {
		t.Fatalf("store = %+v", cfg.Store)
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("STREAMWEAVER_HTTP_ADDR", ":6060")
	t.Setenv("STREAMWEAVER_QUEUE_POLICY", "drop_newest")
	t.Setenv("STREAMWEAVER_MAX_STREAMS", "250")
	t.Setenv("STREAMWEAVER_BATCH_ENABLED", "true")
	t.Setenv("STREAMWEAVER_ENABLE_HEARTBEAT", "false")
	t.Setenv("STREAMWEAVER_ENABLE_REPLAY", "false")
	FromEnv(&cfg)
	if cfg.HTTPAddr != ":6060" {
		t.Fatalf("env override addr = %s", cfg.HTTPAddr)
	}
	if cfg.QueuePolicy != "drop_newest" {
		t.Fatalf("env override policy = %s", cfg.QueuePolicy)
	}
	if cfg.MaxStreams != 250 {
		t.Fatalf("env override max streams = %d", cfg.MaxStreams)
	}
	if !cfg.Batch.Enabled {
		t.Fatalf("env override batch enabled")
	}
	if cfg.EnableHeartbeat || cfg.EnableReplay {
		t.Fatalf("env overrides did not disable heartbeat/replay: %+v", cfg)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.QueuePolicy = "random" },
		func(c *Config) { c.SessionTTLSeconds = 0 },
		func(c *Config) { c.ReplayCapacity = -1 },
		func(c *Config) { c.MaxStreams = 0 },
		func(c *Config) { c.Store.Backend = "etcd" },
		func(c *Config) { c.Store.Backend = StorePebble; c.Store.DataDir = "" },
		func(c *Config) { c.Store.Backend = StoreRedis; c.Store.Redis.Addr = "" },
	}
	for i, mutate := range bad {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d: invalid config passed validation", i)
		}
	}
}
