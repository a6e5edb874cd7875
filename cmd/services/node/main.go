package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/harmonet/harmonet/internal/clock"
	"github.com/harmonet/harmonet/internal/config"
	"github.com/harmonet/harmonet/internal/dedup"
	"github.com/harmonet/harmonet/internal/directory"
	"github.com/harmonet/harmonet/internal/handlers"
	"github.com/harmonet/harmonet/internal/importer"
	"github.com/harmonet/harmonet/internal/logging"
	"github.com/harmonet/harmonet/internal/models"
	"github.com/harmonet/harmonet/internal/peers"
	"github.com/harmonet/harmonet/internal/queue"
	"github.com/harmonet/harmonet/internal/reconfig"
	"github.com/harmonet/harmonet/internal/registry"
	"github.com/harmonet/harmonet/internal/router"
	"github.com/harmonet/harmonet/internal/scheduler"
	"github.com/harmonet/harmonet/internal/syncjobs"
	"github.com/harmonet/harmonet/internal/syncmode"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
	BuildTime = "unknown" // Injected via ldflags during build
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Content node starting...",
		"version", Version, "commit", GitCommit, "build time", BuildTime,
		"endpoint", cfg.Node.Endpoint)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Open the clock ledger
	ledger, err := clock.Open(ctx, cfg.Clock.DBPath, logger)
	if err != nil {
		logger.Fatal("Failed to open clock ledger", "error", err)
	}
	defer func() { _ = ledger.Close() }()
	logger.Info("Clock ledger opened", "db_path", cfg.Clock.DBPath)

	// 4. Start the clock drift checker
	driftChecker := clock.NewDriftChecker(ledger, cfg.Clock.DriftCheckInterval, logger)
	driftChecker.Start(ctx)
	defer driftChecker.Stop()

	// 5. Create the sync job queue
	q, err := queue.NewQueue(cfg.Queue)
	if err != nil {
		logger.Fatal("Failed to create queue", "error", err)
	}
	defer func() { _ = q.Close() }()
	logger.Info("Sync job queue ready", "queue_type", cfg.Queue.Type)

	// 6. Dedup registry and enqueuer shared by scheduler, HTTP and executor
	registryDedup := dedup.NewRegistry()
	enqueuer := syncjobs.NewEnqueuer(q, registryDedup, logger)

	// 7. Peer client, health checker and directory client
	peerClient := peers.NewClient(cfg.Sync.RequestTimeout, logger)
	healthChecker := peers.NewHealthChecker(peerClient, cfg.Scheduler.HealthCheckTimeout, logger)
	directoryClient := directory.NewClient(cfg.Directory, logger)

	// 8. Sync executor draining the manual and recurring pools
	executor := syncjobs.NewExecutor(q, enqueuer, registryDedup, ledger, peerClient, cfg.Sync, logger)
	if err := executor.Start(ctx); err != nil {
		logger.Fatal("Failed to start sync executor", "error", err)
	}
	defer executor.Stop()

	// 9. Replica set scheduler
	if cfg.Scheduler.Enabled {
		resolver := syncmode.NewResolver(ledger, logger)
		reconfigurator := reconfig.NewReconfigurator(nil, logger)
		sched := scheduler.New(cfg.Node.Endpoint, cfg.Scheduler, cfg.EffectiveRunDelay(), scheduler.Deps{
			Directory:      directoryClient,
			Health:         healthChecker,
			LocalClocks:    ledger,
			RemoteClocks:   peerClient,
			Resolver:       resolver,
			Submitter:      enqueuer,
			Reconfigurator: reconfigurator,
		}, logger)
		sched.Start(ctx)
		defer sched.Stop()
	} else {
		logger.Info("Replica set scheduler is disabled in configuration")
	}

	// 10. Content importer serving incoming sync requests
	contentImporter := importer.New(peerClient, ledger, logger)

	// 11. HTTP surface
	h := handlers.New(logger, cfg.Node, ledger, contentImporter, enqueuer, registryDedup, Version)
	app := router.New(logger, h, *cfg)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
		logger.Info("HTTP server listening", "address", addr)
		if err := app.Listen(addr); err != nil {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()
	defer func() { _ = app.Shutdown() }()

	// 12. Register with etcd when enabled
	if cfg.Etcd.Enabled {
		etcdClient, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: cfg.Etcd.DialTimeout,
			Username:    cfg.Etcd.Username,
			Password:    cfg.Etcd.Password,
		})
		if err != nil {
			logger.Fatal("Failed to connect to etcd", "error", err)
		}
		defer func() { _ = etcdClient.Close() }()
		logger.Info("Connected to etcd", "endpoints", cfg.Etcd.Endpoints)

		nodeInfo := models.NodeInfo{
			Wallet:   cfg.Node.Wallet,
			Endpoint: cfg.Node.Endpoint,
			Status:   "active",
			Version:  Version,
		}
		registration := registry.NewNodeRegistration(etcdClient, nodeInfo, ledger, logger)
		if err := registration.Register(ctx); err != nil {
			logger.Fatal("Failed to register node", "error", err)
		}
		defer func() {
			deregCtx, deregCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer deregCancel()
			if err := registration.Deregister(deregCtx); err != nil {
				logger.Error("Failed to deregister node", "error", err)
			}
		}()
	}

	logger.Info("Content node started successfully",
		"endpoint", cfg.Node.Endpoint,
		"http_port", cfg.Server.HTTPPort,
		"queue_type", cfg.Queue.Type,
		"scheduler_enabled", cfg.Scheduler.Enabled,
	)

	waitForShutdown(logger, cancel)

	logger.Info("Content node stopped")
}

// waitForShutdown waits for interrupt signal and triggers graceful shutdown
func waitForShutdown(logger *logging.Logger, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig.String())
	cancel()

	// Give some time for graceful shutdown
	time.Sleep(2 * time.Second)
}
