package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gateload/gateload/pkg/types"
	"github.com/gateload/gateload/server/internal/alerts"
	"github.com/gateload/gateload/server/internal/api"
	"github.com/gateload/gateload/server/internal/auth"
	"github.com/gateload/gateload/server/internal/compute"
	"github.com/gateload/gateload/server/internal/config"
	"github.com/gateload/gateload/server/internal/metrics"
	"github.com/gateload/gateload/server/internal/pipeline"
	"github.com/gateload/gateload/server/internal/publish"
	"github.com/gateload/gateload/server/internal/query"
	"github.com/gateload/gateload/server/internal/source"
	"github.com/gateload/gateload/server/internal/store"
	"github.com/gateload/gateload/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file; empty uses defaults")
	uiDir := flag.String("ui-dir", "", "serve dashboard static files from this directory; leave empty to disable")
	flag.Parse()

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	slog.Info("gateload-server starting",
		"config", *configPath,
		"http_port", cfg.Server.HTTPPort,
		"csv_path", cfg.Source.Path,
		"alpha", cfg.Estimator.Alpha,
		"throughput_per_officer", cfg.Capacity.ThroughputPerOfficer,
		"auth_mode", cfg.Server.Auth.Mode,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loc := cfg.Source.Location()

	// Shared state: one writer (the loop), many readers (HTTP, hub).
	est := compute.NewEstimator(cfg.Estimator.Alpha)
	model := compute.NewModel(compute.Params{
		ThroughputPerOfficer: cfg.Capacity.ThroughputPerOfficer,
		Green:                cfg.Capacity.GreenThreshold,
		Yellow:               cfg.Capacity.YellowThreshold,
		MinServiceRate:       cfg.Capacity.MinServiceRate,
		Officers:             cfg.Capacity.Officers,
	})
	hist := store.New(cfg.History.Capacity)
	src := source.NewCSV(cfg.Source.Path, source.Options{
		TimestampColumns:  cfg.Source.TimestampColumns,
		CheckpointColumn:  cfg.Source.CheckpointColumn,
		DefaultCheckpoint: cfg.Source.DefaultCheckpoint,
	})

	loop := pipeline.New(pipeline.Deps{
		Source:    src,
		Estimator: est,
		Model:     model,
		History:   hist,
		Location:  loc,
		Interval:  cfg.Source.PollInterval,
	})
	svc := query.New(query.Deps{
		History:           hist,
		Model:             model,
		Estimator:         est,
		Source:            src,
		Location:          loc,
		AnalysisWindow:    cfg.History.AnalysisWindow,
		DefaultCheckpoint: cfg.Source.DefaultCheckpoint,
	})

	reg := metrics.New(func() float64 { return float64(hist.Len()) })
	alertEngine := alerts.New(cfg.Alerts)
	hub := ws.New(svc, cfg.Stream.Interval)

	loop.OnTick(reg.ObserveTick)
	loop.Subscribe(reg.Observe)
	loop.Subscribe(func(rec types.HistoryRecord) {
		reg.SetOfficers(rec.CheckpointID, model.Officers(rec.CheckpointID))
	})
	loop.Subscribe(alertEngine.Evaluate)
	loop.Subscribe(func(types.HistoryRecord) { hub.Broadcast() })

	if cfg.Publish.Kafka.Enabled() {
		pub := publish.NewKafka(cfg.Publish.Kafka)
		loop.Subscribe(pub.Publish)
		go pub.Run(ctx)
		slog.Info("kafka publishing enabled",
			"brokers", cfg.Publish.Kafka.Brokers, "topic", cfg.Publish.Kafka.Topic)
	}

	go loop.Run(ctx)
	go hub.Run(ctx)

	if cfg.Source.Watch {
		go func() {
			if err := source.Watch(ctx, cfg.Source.Path, loop.Notify); err != nil {
				slog.Warn("source watcher unavailable, polling only", "err", err)
			}
		}()
	}

	// Hot reload re-applies officer overrides; everything else needs a restart.
	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				for cp, n := range next.Capacity.Officers {
					stored := model.SetOfficers(cp, n)
					reg.SetOfficers(cp, stored)
					slog.Info("officer override applied", "checkpoint", cp, "officers", stored)
				}
			})
			if err != nil {
				slog.Warn("config watcher unavailable", "err", err)
			}
		}()
	}

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(api.Deps{
		Query:      svc,
		Alerts:     alertEngine,
		Status:     loop.Status,
		Records:    hist.Len,
		HistoryCap: hist.Cap(),
		CSVPath:    src.AbsPath(),
		WriteGuard: auth.APIKey(
			cfg.Server.Auth.Mode,
			cfg.Server.Auth.EffectiveHeader(),
			cfg.Server.Auth.Key(),
		),
	}))
	httpMux.Handle("/metrics", reg)
	httpMux.Handle("/ws/stream", hub)

	// Optional dashboard UI. Unknown paths fall back to index.html.
	if *uiDir != "" {
		fs := http.FileServer(http.Dir(*uiDir))
		httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := filepath.Join(*uiDir, filepath.Clean("/"+r.URL.Path))
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, filepath.Join(*uiDir, "index.html"))
				return
			}
			fs.ServeHTTP(w, r)
		})
		slog.Info("serving UI static files", "dir", *uiDir)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort, "csv_path", src.AbsPath())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("gateload-server shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
