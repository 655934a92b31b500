// clusterd serves cluster queries over HTTP for a GeoJSON file or a snapshot.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Martini024/point-cluster/internal/config"
	"github.com/Martini024/point-cluster/internal/dataset"
	"github.com/Martini024/point-cluster/internal/logger"
	"github.com/Martini024/point-cluster/internal/metrics"
	"github.com/Martini024/point-cluster/internal/server"
)

func main() {
	cfg, err := config.Load()
	l := logger.Setup()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	l.Debug("config_loaded", "addr", cfg.Addr, "max_zoom", cfg.MaxZoom, "radius", cfg.Radius)

	ds, err := dataset.Open(cfg, l, logger.Cluster())
	if err != nil {
		l.Error("dataset_error", "err", err)
		os.Exit(1)
	}
	metrics.LoadedPoints.Set(float64(ds.Index.Len()))
	metrics.LoadDurationSeconds.Set(ds.Took.Seconds())
	l.Info("dataset_ready", "id", ds.ID, "points", ds.Index.Len(), "took", ds.Took)

	rc := server.OpenRedis(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		defer rc.Close()
		if err := rc.Ping(context.Background()).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: server.New(ds, server.Options{
			Cache:        server.NewRedisCache(rc, "cluster:", cfg.CacheTTL),
			RateLimitQPS: cfg.RateLimitQPS,
			Logger:       l,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Error("shutdown_error", "err", err)
		}
	}()

	l.Info("http_listen", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("http_error", "err", err)
		os.Exit(1)
	}
	l.Info("http_stopped")
}
