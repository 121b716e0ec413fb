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
	"syscall"
	"time"

	"github.com/vitalwatch/vitalwatch/server/internal/alerts"
	"github.com/vitalwatch/vitalwatch/server/internal/api"
	"github.com/vitalwatch/vitalwatch/server/internal/auth"
	"github.com/vitalwatch/vitalwatch/server/internal/config"
	"github.com/vitalwatch/vitalwatch/server/internal/metrics"
	"github.com/vitalwatch/vitalwatch/server/internal/receiver"
	"github.com/vitalwatch/vitalwatch/server/internal/store"
	"github.com/vitalwatch/vitalwatch/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	console := flag.Bool("console", true, "print every alert to stdout")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("vitalwatch-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	lvl, _ := cfg.Server.Log.SlogLevel()
	level.Set(lvl)

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"interval", cfg.Server.Evaluation.Interval,
		"ingest_dirs", len(cfg.Server.Ingest.Dirs),
		"ingest_websockets", len(cfg.Server.Ingest.WebSockets),
		"webhooks", len(cfg.Server.Alerts.Webhooks),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st := store.New()
	rx := receiver.New(st)

	// Alert delivery: log, console, webhooks, NATS and the live stream.
	var engine *alerts.Engine
	hub := ws.New(func() []alerts.Alert { return engine.Recent() })
	notifier := alerts.NewNotifier(cfg.Server.Alerts.Webhooks)
	sinks := []alerts.Sink{alerts.LogSink(logger), notifier.Sink(), hub.Sink()}
	if *console {
		sinks = append(sinks, alerts.WriterSink(os.Stdout))
	}
	if nc := cfg.Server.Alerts.NATS; nc.Enabled() {
		pub, err := alerts.NewNATSPublisher(nc.URL, nc.Subject)
		if err != nil {
			slog.Error("failed to connect alert publisher", "url", nc.URL, "err", err)
			os.Exit(1)
		}
		defer pub.Close()
		sinks = append(sinks, pub.Sink())
	}

	engine, err = alerts.New(st, alerts.Fanout(sinks...), cfg.Server.Alerts)
	if err != nil {
		slog.Error("failed to build alert engine", "err", err)
		os.Exit(1)
	}

	// Ingest: files once at startup, then live feeds.
	for _, dir := range cfg.Server.Ingest.Dirs {
		n, err := receiver.ReadDir(ctx, dir, rx)
		if err != nil {
			slog.Error("failed to read ingest dir", "dir", dir, "err", err)
			continue
		}
		slog.Info("ingest dir loaded", "dir", dir, "records", n)
	}
	for _, url := range cfg.Server.Ingest.WebSockets {
		go receiver.NewWebSocketReader(url, rx).Run(ctx)
	}
	if nc := cfg.Server.Ingest.NATS; nc.Enabled() {
		sub, err := receiver.SubscribeNATS(nc.URL, nc.Subject, rx)
		if err != nil {
			slog.Error("failed to subscribe to NATS", "url", nc.URL, "subject", nc.Subject, "err", err)
			os.Exit(1)
		}
		defer sub.Close()
	}

	go engine.Run(ctx, cfg.Server.Evaluation.Interval)
	go hub.Run(ctx)

	// Hot reload of log level and alert policy.
	go func() {
		err := config.Watch(ctx, *configPath, func(c *config.Config, changed []string) {
			for _, section := range changed {
				switch section {
				case "log":
					if l, err := c.Server.Log.SlogLevel(); err == nil {
						level.Set(l)
					}
				case "alerts":
					if err := engine.Reload(c.Server.Alerts); err != nil {
						slog.Warn("alert reload rejected", "err", err)
					}
				}
			}
		})
		if err != nil {
			slog.Warn("config watch stopped", "err", err)
		}
	}()

	reg := metrics.NewRegistry()
	reg.Register(metrics.EngineCollector(engine.Stats))
	reg.Register(metrics.StoreCollector(st))
	reg.Register(metrics.ReceiverCollector(rx.Stats))
	reg.Register(metrics.GaugeFunc("vitalwatch_stream_clients", "Connected alert stream clients.",
		func() float64 { return float64(hub.Count()) }))

	handler := api.New(api.Deps{
		Store:    st,
		Alerts:   engine,
		Receiver: rx,
		Metrics:  reg.Handler(),
		Stream:   hub,
		Auth: auth.APIKey(
			cfg.Server.Auth.Mode,
			cfg.Server.Auth.EffectiveHeader(),
			cfg.Server.Auth.Key(),
			"/api/v1/health",
		),
	})

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("vitalwatch-server shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	engine.Close()
	notifier.Wait()
}
