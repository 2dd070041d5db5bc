package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"

	"github.com/hearthnet/hearth/pkg/rpc"
	"github.com/hearthnet/hearth/server/internal/api"
	"github.com/hearthnet/hearth/server/internal/auth"
	"github.com/hearthnet/hearth/server/internal/broadcast"
	"github.com/hearthnet/hearth/server/internal/config"
	"github.com/hearthnet/hearth/server/internal/heartbeat"
	"github.com/hearthnet/hearth/server/internal/metrics"
	"github.com/hearthnet/hearth/server/internal/receiver"
	"github.com/hearthnet/hearth/server/internal/registry"
	"github.com/hearthnet/hearth/server/internal/router"
	"github.com/hearthnet/hearth/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envFile := flag.String("env-file", ".env", "load environment variables from this file when it exists")
	staticDir := flag.String("static-dir", "", "serve the web client from this directory on the same origin; leave empty to disable")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		slog.Warn("env file not loaded", "path", *envFile, "err", err)
	}

	slog.Info("hearth-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Log.SlogLevel())

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
		"ws_path", cfg.Server.WSPath,
		"tls", cfg.Server.TLS.Enabled(),
		"auth_mode", cfg.Server.Auth.Mode,
		"identity_mode", cfg.Server.Identity.Mode,
		"heartbeat_interval", cfg.Server.Heartbeat.Interval,
	)

	verifier, err := auth.NewVerifier(cfg.Server.Identity.Mode, cfg.Server.Identity.Secret())
	if err != nil {
		slog.Error("identity verifier", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Presence core: registry, facade, heartbeat sweep.
	reg := registry.New()
	facade := broadcast.New(reg)
	monitor := heartbeat.New(reg, facade, heartbeat.Options{
		Interval:        cfg.Server.Heartbeat.Interval,
		AckTimeout:      cfg.Server.Heartbeat.AckTimeout,
		AlwaysBroadcast: cfg.Server.Heartbeat.AlwaysBroadcast,
	})
	monitorDone := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(monitorDone)
	}()

	hub := ws.New(reg, router.New(reg, verifier), ws.Options{
		SendBuffer:      cfg.Server.SendBuffer,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
		PongWait:        2*cfg.Server.Heartbeat.Interval + 10*time.Second,
	})
	hub.SetAllowedOrigins(cfg.Server.AllowedOrigins)

	// Hot reload: log level and allowed origins apply live.
	go func() {
		current := cfg
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			level.Set(next.Log.SlogLevel())
			hub.SetAllowedOrigins(next.Server.AllowedOrigins)
			if fields := config.RestartRequired(current, next); len(fields) > 0 {
				slog.Warn("config: changes need a restart to apply", "fields", fields)
			}
			current = next
		})
		if err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// gRPC notify ingress with optional API key authentication interceptor.
	var grpcSrv *grpc.Server
	if cfg.Server.GRPCPort != 0 {
		interceptor := auth.APIKeyInterceptor(
			cfg.Server.Auth.Mode,
			cfg.Server.Auth.EffectiveHeader(),
			cfg.Server.Auth.Key(),
		)
		grpcSrv = grpc.NewServer(grpc.UnaryInterceptor(interceptor))
		rpc.RegisterNotifyServiceServer(grpcSrv, receiver.New(facade))

		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			slog.Error("failed to listen on gRPC port",
				"port", cfg.Server.GRPCPort, "err", err)
			os.Exit(1)
		}

		go func() {
			slog.Info("gRPC notify service listening", "port", cfg.Server.GRPCPort)
			if err := grpcSrv.Serve(lis); err != nil {
				slog.Error("gRPC server stopped", "err", err)
			}
		}()
	}

	// Combined HTTP server: WebSocket endpoint + REST API + metrics on HTTPPort.
	httpMux := http.NewServeMux()
	httpMux.Handle(cfg.Server.WSPath, hub)
	httpMux.Handle("/api/", api.New(reg, facade, api.Options{
		NotifyAuth: auth.APIKeyMiddleware(
			cfg.Server.Auth.Mode,
			cfg.Server.Auth.EffectiveHeader(),
			cfg.Server.Auth.Key(),
		),
	}))
	httpMux.Handle("/metrics", metrics.Handler())

	// Optional: serve the web client so the WebSocket endpoint shares its origin.
	// The "/" catch-all serves index.html for any unknown path (SPA routing).
	if *staticDir != "" {
		fs := http.FileServer(http.Dir(*staticDir))
		httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := *staticDir + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, *staticDir+"/index.html")
				return
			}
			fs.ServeHTTP(w, r)
		})
		slog.Info("serving web client", "dir", *staticDir)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort, "ws_path", cfg.Server.WSPath)
		var err error
		if cfg.Server.TLS.Enabled() {
			err = httpSrv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("hearth-server shutting down")
	<-monitorDone
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
