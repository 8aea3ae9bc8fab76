package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/AbdalrahmanWael/StreamWeaver/internal/backpressure"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/batch"
	cfgpkg "github.com/AbdalrahmanWael/StreamWeaver/internal/config"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/observe"
	httpserver "github.com/AbdalrahmanWael/StreamWeaver/internal/server/http"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/store"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/stream"
	logpkg "github.com/AbdalrahmanWael/StreamWeaver/pkg/log"
)

type Options struct {
	Config cfgpkg.Config
}

// Run starts the server and blocks until ctx is cancelled or a listener
// fails.
func Run(ctx context.Context, opts Options) error {
	// Be robust to callers that don't pass a signal-aware context.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	st, err := openStore(sctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	defer st.Close()

	observer := observe.Observer(observe.NewLogObserver(logger))
	if otelObs, err := observe.NewOTel(otel.Meter("streamweaver")); err == nil {
		observer = observe.Multi(observer, otelObs)
	} else {
		logger.Warn("metrics instruments unavailable", logpkg.Err(err))
	}

	policy, err := backpressure.ParsePolicy(cfg.QueuePolicy)
	if err != nil {
		return err
	}
	batchCfg := batch.DefaultConfig()
	batchCfg.Enabled = cfg.Batch.Enabled
	if cfg.Batch.MaxSize > 0 {
		batchCfg.MaxSize = cfg.Batch.MaxSize
	}
	if cfg.Batch.MaxDelayMs > 0 {
		batchCfg.MaxDelay = time.Duration(cfg.Batch.MaxDelayMs) * time.Millisecond
	}

	svc := stream.NewService(stream.Options{
		SessionTTL:        time.Duration(cfg.SessionTTLSeconds) * time.Second,
		ReplayCapacity:    cfg.ReplayCapacity,
		DisableReplay:     !cfg.EnableReplay,
		HeartbeatInterval: time.Duration(cfg.HeartbeatSeconds) * time.Second,
		DisableHeartbeats: !cfg.EnableHeartbeat,
		QueueCapacity:     cfg.QueueCapacity,
		QueuePolicy:       policy,
		MaxStreams:        cfg.MaxStreams,
		SweepInterval:     time.Duration(cfg.SweepSeconds) * time.Second,
		Batch:             batchCfg,
		Logger:            logger,
		Observer:          observer,
		Store:             st,
	})
	go svc.Start(sctx)

	logger.Info("starting streamweaver server",
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("store", cfg.Store.Backend),
		logpkg.Str("policy", cfg.QueuePolicy),
		logpkg.Int("max_streams", cfg.MaxStreams))

	hsrv := httpserver.New(svc, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- hsrv.ListenAndServe(sctx, cfg.HTTPAddr) }()

	select {
	case <-sctx.Done():
	case err := <-errCh:
		if err != nil && sctx.Err() == nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	svc.Shutdown(shutdownCtx)
	hsrv.Close()
	return nil
}

func newLogger(cfg cfgpkg.LogConfig) logpkg.Logger {
	level, err := logpkg.ParseLevel(cfg.Level)
	if err != nil {
		level = logpkg.InfoLevel
	}
	format := logpkg.FormatJSON
	if cfg.Format == "text" {
		format = logpkg.FormatText
	}
	return logpkg.NewLogger(logpkg.WithLevel(level), logpkg.WithFormat(format))
}

func openStore(ctx context.Context, cfg cfgpkg.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case cfgpkg.StorePebble:
		return store.NewPebble(cfg.DataDir)
	case cfgpkg.StoreRedis:
		return store.NewRedis(ctx, store.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	default:
		return store.NewMemory(), nil
	}
}
