// Vectoradmind is the vector-admin background daemon. It runs the job
// ledger, the NATS worker runtime and the HTTP admission API in one
// process.
//
// Configuration is loaded from a YAML file plus environment overrides
// (SERVER_HTTP_PORT, DATABASE_DSN, NATS_URL, ...). See internal/config.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectoradmin/internal/api"
	"github.com/fyrsmithlabs/vectoradmin/internal/config"
	"github.com/fyrsmithlabs/vectoradmin/internal/logging"
	"github.com/fyrsmithlabs/vectoradmin/internal/queue"
	"github.com/fyrsmithlabs/vectoradmin/internal/records"
	"github.com/fyrsmithlabs/vectoradmin/internal/runtime"
	"github.com/fyrsmithlabs/vectoradmin/internal/vcache"
	"github.com/fyrsmithlabs/vectoradmin/internal/workers"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "vectoradmind",
	Short:   "Vector database administration daemon",
	Long:    "vectoradmind runs the job ledger, background workers and HTTP API for managing documents across Pinecone, Chroma, Qdrant and Weaviate organizations.",
	Version: fmt.Sprintf("%s (%s)", version, gitCommit),
	RunE:    runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the daemon",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// deferredDispatcher lets the ledger publish through the NATS dispatcher,
// which can only be built after the worker registry that depends on the
// ledger exists.
type deferredDispatcher struct {
	inner queue.Dispatcher
}

func (d *deferredDispatcher) Publish(ctx context.Context, task queue.Task) error {
	if d.inner == nil {
		return errors.New("dispatcher not started")
	}
	return d.inner.Publish(ctx, task)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Starting vectoradmind",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("database_driver", cfg.Database.Driver),
		zap.Bool("embedded_nats", cfg.NATS.Embedded))

	db, err := records.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	store := records.NewStore(db)

	forwarder := &deferredDispatcher{}
	ledger := queue.NewLedger(db, forwarder, logger)
	if err := ledger.Migrate(); err != nil {
		return fmt.Errorf("migrate job ledger: %w", err)
	}

	cache, err := vcache.NewFileStore(cfg.Storage.VectorCacheDir, logger)
	if err != nil {
		return fmt.Errorf("open vector cache: %w", err)
	}

	nc, closeNATS, err := runtime.Connect(cfg.NATS)
	if err != nil {
		return fmt.Errorf("connect NATS: %w", err)
	}
	defer closeNATS()

	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))

	service := workers.NewService(store, ledger, cache, cfg.Embeddings, nil, nil, logger)

	registry := service.BuildRegistry()
	dispatcher, err := runtime.NewDispatcher(nc, registry, logger)
	if err != nil {
		return fmt.Errorf("build dispatcher: %w", err)
	}
	forwarder.inner = dispatcher

	if err := dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logger.Warn("Dispatcher close failed", zap.Error(err))
		}
	}()

	logger.Info("Workers started", zap.Int("tasks", len(registry)))

	srv := api.NewServer(cfg.Server, service, nil, logger)
	logger.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"))

	if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}
