package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"drafter/internal/app"
	"drafter/internal/tui"
)

func main() {
	var (
		cfgPath  string
		headless bool
	)
	flag.StringVar(&cfgPath, "config", defaultConfigPath(), "path to config (json or yaml)")
	flag.BoolVar(&headless, "headless", false, "read commands from stdin instead of running the TUI")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath, app.Options{Headless: headless})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	reason := app.StopSignal
	if headless {
		reason = a.RunHeadless(ctx, os.Stdin, os.Stdout)
	} else if err := tui.New(a).Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "tui:", err)
		reason = app.StopFatalError
	} else if ctx.Err() == nil {
		reason = app.StopQuit
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

// defaultConfigPath prefers an existing drafter.yaml, then drafter.json.
func defaultConfigPath() string {
	for _, p := range []string{"./drafter.yaml", "./drafter.yml"} {
		if _, err := os.Stat(filepath.Clean(p)); err == nil {
			return p
		}
	}
	return "./drafter.json"
}
