// Package config provides loading and environment overlay for the
// StreamWeaver server configuration. It exposes a Default() baseline,
// file loading (JSON or YAML by extension), and a STREAMWEAVER_* env
// overlay applied on top.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/streamweaver.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { ... }
package config
