package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	clientcmd "github.com/AbdalrahmanWael/StreamWeaver/internal/cmd/client"
	serverrun "github.com/AbdalrahmanWael/StreamWeaver/internal/cmd/server"
	cfgpkg "github.com/AbdalrahmanWael/StreamWeaver/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "streamweaver",
		Short: "StreamWeaver event streaming CLI",
		Long:  "StreamWeaver streams agentic workflow events to clients. This CLI manages the server and basic operations.",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the streamweaver server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			httpAddr, _ := cmd.Flags().GetString("http")
			storeBackend, _ := cmd.Flags().GetString("store")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			redisAddr, _ := cmd.Flags().GetString("redis-addr")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)
			// Flags win over file and env.
			if httpAddr != "" {
				cfg.HTTPAddr = httpAddr
			}
			if storeBackend != "" {
				cfg.Store.Backend = storeBackend
			}
			if dataDir != "" {
				cfg.Store.DataDir = dataDir
			}
			if redisAddr != "" {
				cfg.Store.Redis.Addr = redisAddr
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if logFormat != "" {
				cfg.Log.Format = logFormat
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serverStartCmd.Flags().String("config", "", "Config file path (JSON or YAML)")
	serverStartCmd.Flags().String("http", "", "HTTP listen address (default :8080)")
	serverStartCmd.Flags().String("store", "", "Session store backend: memory|pebble|redis")
	serverStartCmd.Flags().String("data-dir", "", "Pebble data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("redis-addr", "", "Redis address for the redis store backend")
	serverStartCmd.Flags().String("log-level", os.Getenv("STREAMWEAVER_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("STREAMWEAVER_LOG_FORMAT"), "Log format: text|json (default json)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	rootCmd.AddCommand(clientcmd.NewSessionCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewPublishCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewTailCommand(apiURL))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("STREAMWEAVER_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
