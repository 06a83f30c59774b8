package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"grid-hedge-bot-go/internal/config"
	"grid-hedge-bot-go/internal/engine"
	"grid-hedge-bot-go/internal/logger"
	"grid-hedge-bot-go/internal/models"
	"grid-hedge-bot-go/internal/reporter"
	"grid-hedge-bot-go/internal/store"
	"grid-hedge-bot-go/internal/venue"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Credentials commonly live in a local .env; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.System.Log)
	defer log.Sync()

	repo, err := newRepository(cfg, log)
	if err != nil {
		log.Fatal("failed to open state store", zap.Error(err))
	}
	defer repo.Close()

	venues := venue.NewManager(cfg.Venues, log)
	sched := engine.NewScheduler(cfg, venues, repo, reporter.New(log), log)

	ctx := context.Background()
	if err := sched.Init(ctx); err != nil {
		log.Fatal("failed to initialize engine", zap.Error(err))
	}
	sched.Start(ctx)
	log.Info("engine running", zap.String("config", *configPath))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.Info("signal received, shutting down", zap.String("signal", received.String()))

	sched.Shutdown(ctx)
}

func newRepository(cfg *models.Config, log *zap.Logger) (store.Repository, error) {
	switch cfg.System.Storage {
	case "badger":
		return store.NewBadgerRepository(filepath.Join(cfg.System.DataDir, "badger"), log)
	case "file", "":
		return store.NewFileRepository(cfg.System.DataDir, log)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.System.Storage)
	}
}
