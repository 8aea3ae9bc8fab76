package config

import (
	"os"
	"strconv"
)

// FromEnv overlays STREAMWEAVER_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	setString(&cfg.HTTPAddr, "STREAMWEAVER_HTTP_ADDR")
	setInt(&cfg.SessionTTLSeconds, "STREAMWEAVER_SESSION_TTL_SECONDS")
	setBool(&cfg.EnableReplay, "STREAMWEAVER_ENABLE_REPLAY")
	setInt(&cfg.ReplayCapacity, "STREAMWEAVER_REPLAY_CAPACITY")
	setBool(&cfg.EnableHeartbeat, "STREAMWEAVER_ENABLE_HEARTBEAT")
	setInt(&cfg.HeartbeatSeconds, "STREAMWEAVER_HEARTBEAT_SECONDS")
	setInt(&cfg.QueueCapacity, "STREAMWEAVER_QUEUE_CAPACITY")
	setString(&cfg.QueuePolicy, "STREAMWEAVER_QUEUE_POLICY")
	setInt(&cfg.MaxStreams, "STREAMWEAVER_MAX_STREAMS")
	setInt(&cfg.SweepSeconds, "STREAMWEAVER_SWEEP_SECONDS")

	setBool(&cfg.Batch.Enabled, "STREAMWEAVER_BATCH_ENABLED")
	setInt(&cfg.Batch.MaxSize, "STREAMWEAVER_BATCH_MAX_SIZE")
	setInt(&cfg.Batch.MaxDelayMs, "STREAMWEAVER_BATCH_MAX_DELAY_MS")

	setString(&cfg.Store.Backend, "STREAMWEAVER_STORE_BACKEND")
	setString(&cfg.Store.DataDir, "STREAMWEAVER_DATA_DIR")
	setString(&cfg.Store.Redis.Addr, "STREAMWEAVER_REDIS_ADDR")
	setString(&cfg.Store.Redis.Password, "STREAMWEAVER_REDIS_PASSWORD")
	setInt(&cfg.Store.Redis.DB, "STREAMWEAVER_REDIS_DB")

	setString(&cfg.Log.Level, "STREAMWEAVER_LOG_LEVEL")
	setString(&cfg.Log.Format, "STREAMWEAVER_LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
