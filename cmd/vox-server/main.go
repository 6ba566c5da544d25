package main

import (
	"context"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"

	"voxrelay/internal/config"
	"voxrelay/internal/events"
	"voxrelay/internal/pipeline"
	"voxrelay/internal/proxy"
	"voxrelay/internal/server"
	"voxrelay/internal/store"
	"voxrelay/internal/voice"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	cfgFile := cli.StringP("config", "c", "", "YAML config file")
	logLevel := cli.StringP("log", "l", "", "Log level (overrides config)")
	listen := cli.StringP("listen", "a", "", "Listen address (overrides config)")
	cli.Parse()

	cfg, err := config.Load(*envFile, *cfgFile)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *listen != "" {
		cfg.Server.ListenAddr = *listen
	}
	log.SetDefault(config.NewLogger(os.Stdout, cfg.Log))

	log.Info("Booting up")

	if err := cfg.Server.EnsureDirs(); err != nil {
		log.Error("Failed to create data directories", "err", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Server.DBPath)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Server.DBPath, "err", err)
		os.Exit(1)
	}
	defer st.Close()
	log.Debug("Loaded database", "path", cfg.Server.DBPath)

	httpClient, err := proxy.NewHTTPClient(cfg.SocksProxy, 2*time.Minute)
	if err != nil {
		log.Error("Failed to set up socks proxy", "proxy", cfg.SocksProxy, "err", err)
		os.Exit(1)
	}

	set, err := voice.New(cfg.Voice, httpClient)
	if err != nil {
		log.Error("Failed to set up voice backends", "err", err)
		os.Exit(1)
	}

	hub := events.NewHub()
	pipe := pipeline.New(set, st, hub, cfg.Server.IncomingDir(), cfg.Server.UploadDir)
	srv := server.New(cfg.Server, st, pipe, hub)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.Listen() }()

	log.Info("Boot up - successful", "addr", cfg.Server.ListenAddr)

	select {
	case err := <-errc:
		log.Error("Server stopped", "err", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Shutdown failed", "err", err)
	}
}
