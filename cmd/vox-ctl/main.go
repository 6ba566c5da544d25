package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"

	"voxrelay/internal/client"
	"voxrelay/internal/config"
	"voxrelay/internal/ipc"
	"voxrelay/internal/proxy"
	"voxrelay/pkg/protocol"
)

const usage = `usage: vox-ctl [flags] <command>

commands:
  press | release | toggle   drive the daemon's push-to-talk
  status                     show daemon state and conversation history
  watch                      follow server events
  history                    list recent conversations from the server
  devices                    list registered devices
`

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	cfgFile := cli.StringP("config", "c", "", "YAML config file")
	socket := cli.StringP("socket", "s", "", "Daemon control socket (overrides config)")
	deviceID := cli.Int64P("device", "d", 0, "Device id filter for history")
	limit := cli.IntP("limit", "n", 20, "Number of conversations for history")
	cli.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		cli.PrintDefaults()
	}
	cli.Parse()

	if cli.NArg() != 1 {
		cli.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*envFile, *cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *socket != "" {
		cfg.Client.Socket = *socket
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient, err := proxy.NewHTTPClient(cfg.SocksProxy, 30*time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, "proxy:", err)
		os.Exit(1)
	}
	api := client.New(cfg.Client.ServerURL, httpClient)

	switch cmd := cli.Arg(0); cmd {
	case ipc.CmdPress, ipc.CmdRelease, ipc.CmdToggle, ipc.CmdStatus:
		err = control(ctx, cfg.Client.Socket, cmd)
	case "watch":
		err = watch(ctx, api.EventsURL())
	case "history":
		err = history(ctx, api, *deviceID, *limit)
	case "devices":
		err = devices(ctx, api)
	default:
		cli.Usage()
		os.Exit(2)
	}
	if err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func control(ctx context.Context, socket, cmd string) error {
	rep, err := ipc.Send(ctx, socket, cmd)
	if err != nil {
		return fmt.Errorf("vox-daemon not running: %w", err)
	}
	fmt.Printf("state:  %s\nstatus: %s\ndevice: %d\n", rep.State, rep.Status, rep.DeviceID)
	if rep.Dropped > 0 {
		fmt.Printf("dropped frames: %d\n", rep.Dropped)
	}
	if cmd == ipc.CmdStatus && len(rep.History) > 0 {
		fmt.Println()
		fmt.Println(strings.Join(rep.History, "\n"))
	}
	if !rep.OK {
		return fmt.Errorf("%s: %s", cmd, rep.Error)
	}
	return nil
}

func watch(ctx context.Context, url string) error {
	feed := protocol.NewFeed(url, 2*time.Second)
	return feed.Run(ctx, func(ev *protocol.Event) {
		fmt.Printf("%s  %s\n", ev.Time.Local().Format(time.TimeOnly), ev)
	})
}

func history(ctx context.Context, api *client.Client, deviceID int64, limit int) error {
	convs, err := api.Conversations(ctx, deviceID, limit)
	if err != nil {
		return err
	}
	// oldest first, like a transcript
	for i := len(convs) - 1; i >= 0; i-- {
		c := convs[i]
		fmt.Printf("[%s] device %d\nYou: %s\nAI: %s\n---\n",
			c.Timestamp.Local().Format(time.DateTime), c.DeviceID, c.UserInput, c.AIResponse)
	}
	return nil
}

func devices(ctx context.Context, api *client.Client) error {
	devs, err := api.Devices(ctx)
	if err != nil {
		return err
	}
	for _, d := range devs {
		fmt.Printf("%4d  %-8s %-14s %-24s last seen %s\n",
			d.ID, d.Status, d.DeviceType, d.Name, d.LastSeen.Local().Format(time.DateTime))
	}
	return nil
}
