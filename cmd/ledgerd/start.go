package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/witnz/ledgerd/internal/alert"
	"github.com/witnz/ledgerd/internal/auth"
	"github.com/witnz/ledgerd/internal/config"
	"github.com/witnz/ledgerd/internal/consensus"
	"github.com/witnz/ledgerd/internal/feed"
	"github.com/witnz/ledgerd/internal/ledger"
	"github.com/witnz/ledgerd/internal/server"
	"github.com/witnz/ledgerd/internal/storage"
	"github.com/witnz/ledgerd/internal/verify"
)

const (
	shutdownTimeout = 5 * time.Second
	syncTimeout     = 30 * time.Second
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a ledgerd node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		return runNode(cfg, logger)
	},
}

func runNode(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cfg.Node.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, l, err := openLedger(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	logger.Info("starting ledgerd node",
		zap.String("node_id", cfg.Node.ID),
		zap.String("owner", cfg.Ledger.Owner),
		zap.String("data_dir", cfg.Node.DataDir))

	alertManager := alert.NewManager(cfg.Alerts.Enabled, cfg.Alerts.SlackWebhook)

	feedManager, closeFeed, err := startFeed(ctx, cfg, alertManager, logger)
	if err != nil {
		return err
	}
	defer closeFeed()
	l.AddObserver(feedManager)

	applier, stopApplier, err := startApplier(ctx, cfg, l, store, logger)
	if err != nil {
		return err
	}
	defer stopApplier()

	verifier := verify.NewAuditVerifier(store, alertManager, logger)
	if cfg.Verify.PauseOnTamper {
		verifier.OnTamper(func(te *verify.TamperingError) {
			pauseOnTamper(ctx, applier, l, cfg.Ledger.Owner, te, logger)
		})
	}
	if interval := cfg.VerifyIntervalDuration(); interval > 0 {
		if err := verifier.Start(ctx, interval); err != nil {
			return fmt.Errorf("failed to start verifier: %w", err)
		}
		defer verifier.Stop()
	}

	srv, err := server.New(server.Options{
		Addr:              cfg.Server.HTTPAddr,
		Ledger:            l,
		Applier:           applier,
		Verifier:          auth.NewJWTAuthority([]byte(cfg.Auth.JWTSecret)),
		Logger:            logger,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	fmt.Println("ledgerd node is running. Press Ctrl+C to stop.")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	fmt.Println("\nShutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", zap.Error(err))
	}

	fmt.Println("ledgerd node stopped")
	return nil
}

// startFeed wires the operation feed handlers. The returned func stops the
// worker and then closes the handlers it feeds.
func startFeed(ctx context.Context, cfg *config.Config, alertManager *alert.Manager, logger *zap.Logger) (*feed.Manager, func(), error) {
	manager := feed.NewManager(feed.Options{
		Logger:       logger.Named("feed"),
		AlertManager: alertManager,
	})

	if alertManager.Enabled() {
		manager.AddHandler(feed.NewAlertHandler(alertManager))
	}

	var sink *feed.PostgresSink
	if cfg.Export.Enabled {
		var err error
		sink, err = feed.ConnectPostgres(ctx, cfg.Export.ConnectionString(), cfg.Export.Table)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect export database: %w", err)
		}
		manager.AddHandler(sink)
		logger.Info("exporting operations to postgres",
			zap.String("host", cfg.Export.Host),
			zap.String("table", cfg.Export.Table))
	}

	if err := manager.Start(ctx); err != nil {
		if sink != nil {
			closeSink(sink, logger)
		}
		return nil, nil, err
	}

	return manager, func() {
		manager.Stop()
		if sink != nil {
			closeSink(sink, logger)
		}
		if dropped := manager.Dropped(); dropped > 0 {
			logger.Warn("operation feed dropped entries", zap.Uint64("dropped", dropped))
		}
	}, nil
}

type sinkCloser interface {
	Close(ctx context.Context) error
}

func closeSink(sink sinkCloser, logger *zap.Logger) {
	if err := sink.Close(context.Background()); err != nil {
		logger.Warn("failed to close export connection", zap.Error(err))
	}
}

// startApplier returns the Raft node in replicated mode and a local applier
// otherwise.
func startApplier(ctx context.Context, cfg *config.Config, l *ledger.Ledger, store *storage.Storage, logger *zap.Logger) (consensus.Applier, func(), error) {
	if !cfg.Raft.Enabled {
		logger.Info("running in single-node mode")
		return consensus.NewLocalApplier(l), func() {}, nil
	}

	node, err := consensus.NewNode(&consensus.NodeConfig{
		NodeID:    cfg.Node.ID,
		BindAddr:  cfg.Node.BindAddr,
		DataDir:   cfg.Node.DataDir,
		Bootstrap: cfg.Node.Bootstrap,
		PeerAddrs: cfg.Node.PeerAddrs,
		LogStore:  cfg.Raft.LogStore,
		Logger:    logger.Named("raft"),
	}, l, store)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create raft node: %w", err)
	}
	if err := node.Start(ctx); err != nil {
		node.Stop()
		return nil, nil, fmt.Errorf("failed to start raft node: %w", err)
	}
	logger.Info("raft node started", zap.String("leader", node.Leader()))

	syncCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	err = node.WaitForSync(syncCtx)
	cancel()
	if err != nil {
		logger.Warn("serving before the replica caught up", zap.Error(err), zap.Any("raft", node.Stats()))
	}

	var rotator *consensus.LeadershipRotator
	if interval := cfg.LeadershipTransferDuration(); interval > 0 {
		rotator = consensus.NewLeadershipRotator(node, interval, logger.Named("rotator"))
		if err := rotator.Start(ctx); err != nil {
			node.Stop()
			return nil, nil, fmt.Errorf("failed to start leadership rotator: %w", err)
		}
	}

	return node, func() {
		if rotator != nil {
			rotator.Stop()
		}
		if err := node.Stop(); err != nil {
			logger.Warn("failed to stop raft node", zap.Error(err))
		}
	}, nil
}

// pauseOnTamper stops all writes as the owner. Only the leader can apply it;
// followers leave it to the leader's own verifier.
func pauseOnTamper(ctx context.Context, applier consensus.Applier, l *ledger.Ledger, owner string, te *verify.TamperingError, logger *zap.Logger) {
	paused, err := l.IsPaused()
	if err != nil {
		logger.Error("failed to read pause state", zap.Error(err))
		return
	}
	if paused {
		logger.Debug("ledger already paused, skipping emergency stop", zap.String("reason", te.Reason))
		return
	}

	cmd, err := ledger.NewCommand(ledger.OpEmergencyStop, owner, nil)
	if err != nil {
		logger.Error("failed to build emergency stop", zap.Error(err))
		return
	}
	if _, err := applier.Apply(ctx, cmd); err != nil {
		logger.Error("emergency stop after tampering failed", zap.Error(err), zap.String("reason", te.Reason))
		return
	}
	logger.Warn("ledger paused after tampering was detected", zap.String("reason", te.Reason))
}
