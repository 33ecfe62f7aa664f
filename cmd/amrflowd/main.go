// Command amrflowd runs the annotation platform daemon: the HTTP API and
// the export worker, backed by a single SQLite database.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amrlab/amrflow/internal/auth"
	"github.com/amrlab/amrflow/internal/config"
	"github.com/amrlab/amrflow/internal/db"
	"github.com/amrlab/amrflow/internal/export"
	"github.com/amrlab/amrflow/internal/store"
	"github.com/amrlab/amrflow/internal/web"
)

func main() {
	var configFile = flag.String("config", "",
		"Path to config file (default: ~/.amrflow/amrflow.yaml)")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	settings, err := config.Load(*configFile)
	if err != nil {
		log.Error("unable to load configuration", "err", err)
		os.Exit(1)
	}

	sqlDB, err := db.Open(settings.DatabasePath, log)
	if err != nil {
		log.Error("unable to open database",
			"path", settings.DatabasePath, "err", err)
		os.Exit(1)
	}

	storage := store.NewSQLStore(sqlDB)
	defer storage.Close()

	issuer := auth.NewTokenIssuer(settings.SecretKey,
		settings.JWTAlgorithm, settings.TokenTTL())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	// The export worker drains the job queue alongside the HTTP server.
	worker := export.NewWorker(
		storage, export.NewService(storage, log), settings.ExportDir,
		settings.WorkerPollInterval(), log,
	)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := worker.Run(ctx); err != nil &&
			!errors.Is(err, context.Canceled) {

			log.Error("export worker stopped", "err", err)
			cancel()
		}
	}()

	server := web.NewServer(settings, storage, issuer, log)
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		if err := server.Start(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {

			log.Error("http server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(), 10*time.Second,
	)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("unable to shut down http server", "err", err)
	}

	<-serverDone
	<-workerDone
	log.Info("daemon stopped")
}
