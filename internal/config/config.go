package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/AbdalrahmanWael/StreamWeaver/internal/backpressure"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	HTTPAddr string `json:"httpAddr" yaml:"httpAddr"`

	// SessionTTLSeconds is how long a session survives without publish
	// activity before the sweeper evicts it.
	SessionTTLSeconds int `json:"sessionTtlSeconds" yaml:"sessionTtlSeconds"`
	// EnableReplay retains recent events per session for reconnect
	// catch-up. Off means live tail only; cursors are ignored.
	EnableReplay bool `json:"enableReplay" yaml:"enableReplay"`
	// ReplayCapacity bounds the per-session replay buffer.
	ReplayCapacity int `json:"replayCapacity" yaml:"replayCapacity"`
	// EnableHeartbeat synthesizes keepalives on idle streams.
	EnableHeartbeat bool `json:"enableHeartbeat" yaml:"enableHeartbeat"`
	// HeartbeatSeconds paces keepalives on idle streams.
	HeartbeatSeconds int `json:"heartbeatSeconds" yaml:"heartbeatSeconds"`
	// QueueCapacity bounds each connection's delivery queue.
	QueueCapacity int `json:"queueCapacity" yaml:"queueCapacity"`
	// QueuePolicy is drop_oldest, drop_newest, or block.
	QueuePolicy string `json:"queuePolicy" yaml:"queuePolicy"`
	// MaxStreams caps concurrent streams served by this instance.
	MaxStreams int `json:"maxStreams" yaml:"maxStreams"`
	// SweepSeconds paces the idle-session sweeper.
	SweepSeconds int `json:"sweepSeconds" yaml:"sweepSeconds"`

	Batch BatchConfig `json:"batch" yaml:"batch"`
	Store StoreConfig `json:"store" yaml:"store"`
	Log   LogConfig   `json:"log" yaml:"log"`
}

// BatchConfig controls default event batching for new connections.
type BatchConfig struct {
	Enabled    bool `json:"enabled" yaml:"enabled"`
	MaxSize    int  `json:"maxSize" yaml:"maxSize"`
	MaxDelayMs int  `json:"maxDelayMs" yaml:"maxDelayMs"`
}

// Store backends.
const (
	StoreMemory = "memory"
	StorePebble = "pebble"
	StoreRedis  = "redis"
)

// StoreConfig selects and configures the session metadata backend.
type StoreConfig struct {
	// Backend is memory, pebble, or redis.
	Backend string `json:"backend" yaml:"backend"`
	// DataDir is the Pebble database directory (pebble backend only).
	DataDir string      `json:"dataDir" yaml:"dataDir"`
	Redis   RedisConfig `json:"redis" yaml:"redis"`
}

// RedisConfig holds the redis backend connection settings.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:          ":8080",
		SessionTTLSeconds: 3600,
		EnableReplay:      true,
		ReplayCapacity:    100,
		EnableHeartbeat:   true,
		HeartbeatSeconds:  30,
		QueueCapacity:     1000,
		QueuePolicy:       string(backpressure.DropOldest),
		MaxStreams:        100,
		SweepSeconds:      60,
		Batch: BatchConfig{
			Enabled:    false,
			MaxSize:    10,
			MaxDelayMs: 50,
		},
		Store: StoreConfig{
			Backend: StoreMemory,
			DataDir: DefaultDataDir(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If
// path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate checks the cross-field constraints a server cannot start
// without.
func (c Config) Validate() error {
	if _, err := backpressure.ParsePolicy(c.QueuePolicy); err != nil {
		return err
	}
	if c.SessionTTLSeconds < 1 {
		return fmt.Errorf("config: sessionTtlSeconds must be positive, got %d", c.SessionTTLSeconds)
	}
	if c.ReplayCapacity < 1 {
		return fmt.Errorf("config: replayCapacity must be positive, got %d", c.ReplayCapacity)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("config: queueCapacity must be positive, got %d", c.QueueCapacity)
	}
	if c.MaxStreams < 1 {
		return fmt.Errorf("config: maxStreams must be positive, got %d", c.MaxStreams)
	}
	switch c.Store.Backend {
	case StoreMemory:
	case StorePebble:
		if c.Store.DataDir == "" {
			return fmt.Errorf("config: pebble store requires dataDir")
		}
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("config: redis store requires redis.addr")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	return nil
}
