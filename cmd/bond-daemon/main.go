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
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bond-mesh/go-node/internal/bond"
	"bond-mesh/go-node/internal/config"
	"bond-mesh/go-node/internal/identity"
	"bond-mesh/go-node/internal/observe"
	"bond-mesh/go-node/internal/platform/privacylog"
	"bond-mesh/go-node/internal/transport"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	backend := flag.String("transport", "", "Network backend override: go-waku | memory")
	flag.Parse()
	if *showVersion {
		fmt.Printf("bond-daemon version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *backend != "" {
		_ = os.Setenv("BOND_NETWORK_BACKEND", *backend)
	}

	cfg := config.LoadFromPath(*configPath)
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("bond-daemon failed", "err", err)
		os.Exit(1)
	}
	logger.Info("bond-daemon stopped")
}

func run(ctx context.Context, cfg config.Settings, logger *slog.Logger) error {
	mgr, err := provisionIdentity(cfg, logger)
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	nodeID, err := mgr.NodeID()
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	logger.Info("identity ready", "node_id", nodeID)

	node := transport.NewNode(cfg.Network)
	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	defer node.Stop(context.Background())
	logger.Info("transport started", "backend", cfg.Network.Backend, "state", node.Status().State)

	var metrics *observe.Metrics
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metrics = observe.NewMetrics(prometheus.DefaultRegisterer)
		metricsSrv = &http.Server{
			Addr:    cfg.Metrics.ListenAddress,
			Handler: promhttp.Handler(),
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics listener stopped", "err", err)
			}
		}()
		logger.Info("metrics listening", "addr", cfg.Metrics.ListenAddress)
	}

	engine := bond.NewEngine(cfg.Bond, mgr, node.Endpoint(nodeID), logger, metrics)
	_, events, cancel := engine.Notifications().Subscribe(0)
	defer cancel()

	logger.Info("bond-daemon started", "version", version)
	for {
		select {
		case <-ctx.Done():
			if metricsSrv != nil {
				shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
				_ = metricsSrv.Shutdown(shutdownCtx)
				cancelShutdown()
			}
			return nil
		case ev, ok := <-events:
			if !ok {
				return errors.New("notification stream closed")
			}
			logger.Debug("bond event", "kind", string(ev.Kind), "seq", ev.Seq)
		}
	}
}

// provisionIdentity loads the sealed seed when one exists, otherwise creates
// a fresh identity. Without a passphrase the identity stays in memory only.
func provisionIdentity(cfg config.Settings, logger *slog.Logger) (*identity.Manager, error) {
	mgr := identity.NewManager()
	passphrase := os.Getenv("BOND_SEED_PASSPHRASE")

	if passphrase == "" {
		if _, err := mgr.Create(); err != nil {
			return nil, err
		}
		logger.Warn("BOND_SEED_PASSPHRASE not set, identity will not survive restart")
		return mgr, nil
	}

	if _, err := os.Stat(cfg.Identity.SeedPath); err == nil {
		if err := mgr.LoadSealedSeed(cfg.Identity.SeedPath, passphrase); err != nil {
			return nil, err
		}
		return mgr, nil
	}

	if _, err := mgr.Create(); err != nil {
		return nil, err
	}
	if err := mgr.SealSeed(cfg.Identity.SeedPath, passphrase); err != nil {
		return nil, err
	}
	logger.Info("sealed new identity seed", "path", cfg.Identity.SeedPath)
	return mgr, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	base := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(privacylog.WrapHandler(base))
}
