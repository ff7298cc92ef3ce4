package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/timrolsh/chat-relay/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so that deferred cleanup always executes
// before the process exits.
func run() error {
	// Configuration & logger. A .env file is optional.
	_ = godotenv.Load()

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		return err
	}
	server.SetConfig(cfg)

	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)
	server.GetHub().SetLogger(log)

	log.Info("starting chat relay", "port", cfg.Port, "admin", cfg.AdminName)

	mux := server.SetupRoutes()
	httpServer := server.CreateServer(cfg.Port, mux)

	// Signals drive the graceful shutdown path.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer)
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-stop:
		log.Info("received shutdown signal", "signal", sig.String())
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.Error("HTTP shutdown failed", "error", err)
	}
	if err := server.GetHub().Shutdown(shutdownTimeout); err != nil {
		log.Error("hub shutdown failed", "error", err)
	}

	log.Info("chat relay stopped")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
