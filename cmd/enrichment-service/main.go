package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tenanttags/internal/app"
	"tenanttags/internal/hook"
	"tenanttags/pkg/config"
	"tenanttags/pkg/db"
	"tenanttags/pkg/logger"
	"tenanttags/pkg/middleware"
	"tenanttags/pkg/openapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env, "enrichment-service")
	defer log.Sync()

	middleware.InitTracing("tenanttags-hook", log)

	deps := app.Deps{Registry: prometheus.DefaultRegisterer}
	if cfg.Enrichment.TenantSourceStrategy == config.StrategyExternalLookup {
		deps.Pool = db.MustConnect(cfg, log)
		deps.Redis = db.MustRedis(cfg, log)
	}
	a, err := app.New(context.Background(), cfg, log, deps)
	if err != nil {
		log.Fatalw("pipeline", "err", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.Tracing())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	apiDoc := openapi.NewRegistry()
	hook.Describe(apiDoc, cfg.Hook.RequiredScope)
	r.Get("/openapi.json", apiDoc.ServeHandler("tenanttags-hook", "1.0.0"))
	r.Group(func(r chi.Router) {
		r.Use(middleware.HookAuth(cfg, log))
		hook.RegisterHTTP(r, a.Orchestrator, log)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infow("enrichment-service listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = middleware.ShutdownTracing(ctx)
	if deps.Pool != nil {
		deps.Pool.Close()
	}
	if deps.Redis != nil {
		_ = deps.Redis.Close()
	}
	fmt.Println("enrichment-service stopped")
}
