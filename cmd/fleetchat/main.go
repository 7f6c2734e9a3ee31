// Command fleetchat is a minimal terminal client for a FleetSocket server.
//
// Lines typed on stdin are sent to the active room. Commands:
//
//	/join <room>   switch the active room
//	/name <name>   change the display name
//	/quit          exit
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ggoodman/fleetsocket/client"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fleetchat: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := client.ConfigFromEnv()
	if err != nil {
		return exitConfig, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui := newTerminal(os.Stdout)
	c := client.New(cfg,
		client.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))),
		client.OnChange(ui.render),
		client.OnState(ui.state),
	)
	ui.banner(cfg)

	go func() {
		readInput(ctx, os.Stdin, c, ui)
		stop()
	}()

	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		return exitRuntime, err
	}
	return exitOK, nil
}
