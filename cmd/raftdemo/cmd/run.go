package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cod-technologies/tender/config"
	"github.com/cod-technologies/tender/raft"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start this node and participate in the group's leader election",
	RunE:  runNode,
}

func runNode(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	self := cfg.Self()
	logger := raft.NewLogger(self, cfg.Log.Level)

	store, closeStore, err := openHardStateStore(cfg)
	if err != nil {
		return fmt.Errorf("open hard state store: %w", err)
	}
	defer closeStore()

	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	metrics := raft.NewMetrics(self)
	transport := raft.NewGRPCTransport(cfg.AddressBook(), opts.HeartbeatInterval*4)
	defer transport.Close()

	events := raft.EventSinkFunc(func(_ context.Context, ev raft.Event) error {
		logger.Infof("event: %#v", ev)
		return nil
	})

	node, err := raft.NewNode(self, opts, store, transport, raft.GoroutineSpawner{}, events, metrics, logger)
	if err != nil {
		return fmt.Errorf("construct node: %w", err)
	}

	grpcServer := raft.NewGRPCServer(node)
	listener, err := net.Listen("tcp", cfg.Node.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Node.GRPCAddr, err)
	}
	go func() {
		if err := grpcServer.Server().Serve(listener); err != nil {
			logger.Errorf("grpc server stopped: %v", err)
		}
	}()
	defer grpcServer.GracefulStop()

	httpServer := newStatusServer(cfg, node)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server stopped: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- node.Run(ctx) }()

	if err := node.Initialize(ctx, cfg.Membership(), cfg.Cluster.ForceLeader); err != nil {
		return fmt.Errorf("initialize node: %w", err)
	}

	<-ctx.Done()
	logger.Infof("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	return <-runDone
}

// openHardStateStore picks the HardStateStore backend named by
// cfg.Storage.Backend, returning a no-op close func for backends with
// nothing to release.
func openHardStateStore(cfg *config.Config) (raft.HardStateStore, func(), error) {
	noop := func() {}
	switch cfg.Storage.Backend {
	case "mem":
		return raft.NewMemHardStateStore(), noop, nil
	case "file":
		s, err := raft.NewFileHardStateStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case "badger":
		s, err := raft.OpenBadgerHardStateStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// newStatusServer builds the demo's HTTP surface: a JSON /status
// endpoint reporting this node's view of the group, and /metrics for
// Prometheus scraping.
func newStatusServer(cfg *config.Config, node *raft.Node) *http.Server {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/status", func(c *gin.Context) {
		leader := node.Leader()
		leaderStr := ""
		if leader != nil {
			leaderStr = leader.String()
		}
		c.JSON(http.StatusOK, gin.H{
			"node":  node.ID().String(),
			"state": node.State().String(),
			"term":  node.Term(),
			"leader": leaderStr,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &http.Server{Addr: cfg.HTTP.Addr, Handler: router}
}
