package main

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/spf13/pflag"

	"voxrelay/internal/audio"
	"voxrelay/internal/audio/pa"
	"voxrelay/internal/audio/speaker"
	"voxrelay/internal/client"
	"voxrelay/internal/config"
	"voxrelay/internal/ipc"
	"voxrelay/internal/notify"
	"voxrelay/internal/proxy"
	"voxrelay/internal/session"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	cfgFile := cli.StringP("config", "c", "", "YAML config file")
	logLevel := cli.StringP("log", "l", "", "Log level (overrides config)")
	server := cli.StringP("server", "s", "", "Server URL (overrides config)")
	cli.Parse()

	cfg, err := config.Load(*envFile, *cfgFile)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *server != "" {
		cfg.Client.ServerURL = *server
	}
	log.SetDefault(config.NewLogger(os.Stdout, cfg.Log))

	log.Info("Booting up")

	if err := cfg.Client.EnsureDirs(); err != nil {
		log.Error("Failed to create data directories", "err", err)
		os.Exit(1)
	}

	httpClient, err := proxy.NewHTTPClient(cfg.SocksProxy, cfg.Client.HTTPTimeout)
	if err != nil {
		log.Error("Failed to set up socks proxy", "proxy", cfg.SocksProxy, "err", err)
		os.Exit(1)
	}
	api := client.New(cfg.Client.ServerURL, httpClient)

	if err := pa.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer pa.Terminate()

	rec := audio.NewRecorder(pa.NewInput(audio.SampleRate), cfg.Client.UploadDir, audio.DefaultQueue)
	sink := speaker.New()

	var duck audio.Attenuator
	if cfg.Client.DuckOthers {
		duck = audio.NewDucker([]string{"vox-daemon", "ALSA plug-in [vox-daemon]"}, 10)
	}
	player := audio.NewPlayer(sink, duck, cfg.Client.DataDir)

	log.Debug("Loaded audio")

	ctl := session.New(api, rec, player, notify.New(sink, cfg.Client.Cue), session.Options{
		DeviceName: cfg.Client.DeviceName,
		DeviceType: cfg.Client.DeviceType,
		Heartbeat:  cfg.Client.Heartbeat,
	})

	ctlSrv, err := ipc.Listen(cfg.Client.Socket, func(req ipc.Request) ipc.Reply {
		return handle(ctl, req)
	})
	if err != nil {
		log.Error("Failed ipc server", "socket", cfg.Client.Socket, "err", err)
		os.Exit(1)
	}
	defer ctlSrv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Boot up - successful", "server", cfg.Client.ServerURL, "socket", cfg.Client.Socket)

	if err := ctl.Run(ctx); err != nil {
		log.Error("Session ended", "err", err)
	}
	log.Info("Bye")
}

func handle(ctl *session.Controller, req ipc.Request) ipc.Reply {
	var err error
	switch req.Cmd {
	case ipc.CmdPress:
		err = ctl.Press()
	case ipc.CmdRelease:
		err = ctl.Release()
	case ipc.CmdToggle:
		err = ctl.Toggle()
	case ipc.CmdStatus:
	default:
		err = fmt.Errorf("unknown command %q", req.Cmd)
		log.Warn("Unknown command", "cmd", req.Cmd)
	}

	snap := ctl.Snapshot()
	rep := ipc.Reply{
		OK:       err == nil,
		State:    string(snap.State),
		Status:   snap.Status,
		DeviceID: snap.DeviceID,
		History:  snap.History,
		Dropped:  snap.Dropped,
	}
	if err != nil {
		rep.Error = err.Error()
	}
	return rep
}
