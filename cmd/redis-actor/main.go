// Command redis-actor runs the connection manager behind an HTTP facade.
//
//	redis-actor -config config.yml
//
//	curl -X PUT --data-binary hello 'localhost:8080/kv/greeting?ttl=30s'
//	curl localhost:8080/kv/greeting
//	curl -X POST -d '{"urls":["redis://10.0.0.2:6379"]}' localhost:8080/reconnect
//	curl localhost:8080/status
//	curl localhost:8080/metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trvinh99/redis-actor/adapters/api"
	promadapter "github.com/trvinh99/redis-actor/adapters/prometheus"
	"github.com/trvinh99/redis-actor/core/app"
	"github.com/trvinh99/redis-actor/internal/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := newLogger(os.Stdout, cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(log)

	if err := run(ctx, log, cfg); err != nil {
		log.Error("redis-actor failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func run(ctx context.Context, log *slog.Logger, cfg config.Config) error {
	metrics := promadapter.NewAllMetrics(prometheus.DefaultRegisterer)

	a, err := app.Run(app.Config{
		Context:           ctx,
		Log:               log,
		ActorMetrics:      metrics.Actor,
		Metrics:           metrics.ConnMgr,
		URLs:              cfg.Redis.URLs,
		Auth:              cfg.Redis.Auth(),
		PoolSize:          cfg.Redis.PoolSize,
		ConnectionTimeout: cfg.Redis.ConnectionTimeout,
		OperationTimeout:  cfg.Redis.OperationTimeout,
		QueryTimeout:      cfg.Redis.QueryTimeout,
		NATSBucket:        cfg.NATS.Bucket,
	})
	if err != nil {
		return fmt.Errorf("start app: %w", err)
	}
	defer a.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", api.NewHandler(a.Client(), api.Options{Log: log}))

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", slog.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", slog.Any("error", err))
	}
	return a.Shutdown(shutdownCtx)
}
