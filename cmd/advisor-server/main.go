package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/optiq-labs/optiq/internal/api"
	"github.com/optiq-labs/optiq/internal/history"
	"github.com/optiq-labs/optiq/internal/sysprobe"
	"github.com/optiq-labs/optiq/pkg/config"
	"github.com/optiq-labs/optiq/pkg/engine"
)

func main() {
	var (
		configPath    = flag.String("config", "", "Path to configuration file (optional)")
		dbPath        = flag.String("db", "advisor.db", "Path to SQLite history database")
		port          = flag.String("port", "8080", "Port to run API server on")
		probeInterval = flag.Duration("probe-interval", 30*time.Second, "Host utilization probe interval")
		logLevel      = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(level)
	}

	opts, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Ensure database directory exists
	dbDir := filepath.Dir(*dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		logger.WithError(err).Fatal("Failed to create database directory")
	}

	logger.WithField("path", *dbPath).Info("Connecting to history database")
	db, err := history.NewDatabase(*dbPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize history database")
	}
	defer db.Close()

	repo := history.NewRepository(db)

	eng, err := engine.New(opts, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create engine")
	}
	eng.SetSink(history.NewSink(repo, logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start engine")
	}
	defer eng.Stop()

	probe := sysprobe.NewProbe(logger)
	go probe.Run(ctx, eng, *probeInterval)

	// Shut the background cycles down cleanly on SIGINT/SIGTERM
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		logger.WithField("signal", sig).Info("Shutting down")
		cancel()
		eng.Stop()
		os.Exit(0)
	}()

	logger.WithField("port", *port).Info("Starting advisor API server")
	server := api.NewServer(eng, repo, *port)

	if err := server.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start server")
	}
}
