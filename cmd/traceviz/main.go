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

	"traceviz/internal/config"
	"traceviz/internal/logging"
	"traceviz/internal/monitor"
	"traceviz/internal/parser"
	"traceviz/internal/server"
	"traceviz/internal/state"
	"traceviz/internal/storage"
	"traceviz/internal/termview"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to configuration file (YAML)")
		addr       = flag.String("addr", "", "address for the web server (overrides listen_addr)")
		watchFile  = flag.String("watch", "", "trace file to load and reload on change (overrides watch_file)")
		renderFile = flag.String("render", "", "print the timeline of a trace file to stdout and exit")
		width      = flag.Int("width", 60, "track width in characters for -render")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *watchFile != "" {
		cfg.WatchFile = *watchFile
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configure logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if *renderFile != "" {
		if err := render(*renderFile, *width); err != nil {
			fatal(logger, "render trace", err)
		}
		return
	}

	slot, err := storage.Open(cfg.Storage.Driver, cfg.DataDirectory)
	if err != nil {
		fatal(logger, "initialise storage", err)
	}
	defer slot.Close()
	logger.Info("storage ready", "driver", cfg.Storage.Driver, "dir", cfg.DataDirectory)

	store := state.New(slot, cfg.Storage.Key, logger)
	store.Restore()

	if cfg.WatchFile != "" {
		mon, err := monitor.New(cfg.WatchFile, store, logger)
		if err != nil {
			fatal(logger, "watch trace file", err)
		}
		mon.Start()
		defer mon.Stop()
	}

	srv := server.New(cfg.ListenAddr, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", "error", err)
		}
	}()

	logger.Info("traceviz listening", "addr", cfg.ListenAddr)
	if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal(logger, "server error", err)
	}
}

func render(path string, width int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read trace file: %w", err)
	}
	trace, err := parser.ParseBytes(data)
	if err != nil {
		return err
	}
	return termview.Render(os.Stdout, trace, width)
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
