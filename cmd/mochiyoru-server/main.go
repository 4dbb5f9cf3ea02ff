package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/five82/mochiyoru/internal/config"
	"github.com/five82/mochiyoru/internal/logging"
	"github.com/five82/mochiyoru/internal/server"
	"github.com/five82/mochiyoru/internal/server/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "override config path (optional)")
	listen := flag.String("listen", "", "listen address (overrides config)")
	database := flag.String("db", "", "sqlite path or postgres:// URL (overrides config)")
	flag.Parse()

	if err := serve(*configPath, *listen, *database); err != nil {
		fmt.Fprintf(os.Stderr, "mochiyoru-server: %v\n", err)
		return 1
	}
	return 0
}

func serve(configPath, listen, database string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if database != "" {
		cfg.Server.Database = database
	}
	logger := logging.New(os.Stderr, cfg.Server.LogLevel, "mochiyoru-server")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(ctx, cfg.Server.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	srv, err := server.New(server.Options{
		Store:        db,
		Logger:       logger,
		PingInterval: cfg.Server.PingInterval,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Listen, "database", redact(cfg.Server.Database))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// redact hides credentials in a database URL.
func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
