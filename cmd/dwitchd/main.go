// Command dwitchd is the dwitch switching daemon (spec §7): it loads its
// TOML configuration, restores the persisted cache, and runs the
// connection layer and TAP workers until signalled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aytixel/dwitch/internal/config"
	"github.com/aytixel/dwitch/internal/daemon"
	"github.com/aytixel/dwitch/internal/netns"
)

var version = "dev"

func main() {
	// Must run before anything else touches goroutines or threads: on
	// Linux this may be a re-exec'd namespace helper invocation, which
	// exits the process itself (internal/netns).
	netns.MaybeRunHelper()

	var (
		configPath  = flag.String("config", config.DefaultPath, "path to TOML configuration file")
		logLevel    = flag.String("log-level", "", "override log_level from the config file")
		showVersion = flag.Bool("version", false, "show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("dwitchd %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dwitchd: %v\n", err)
		os.Exit(1)
	}

	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	if env := os.Getenv("DWITCH_LOG"); env != "" {
		level = env
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)}))

	d := daemon.New(cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := d.Run(ctx); err != nil {
		log.Error("daemon exited with error", "err", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
