package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/DerekChowAHOP/membership-protocol/discovery"
	"github.com/DerekChowAHOP/membership-protocol/internal/telemetry"
	"github.com/DerekChowAHOP/membership-protocol/pkg/gossip"
	"github.com/DerekChowAHOP/membership-protocol/pkg/node"
)

const defaultPort = "7946"

var (
	version = "dev"
	gitSHA  = "unknown"
)

var (
	selfAddr       string
	introducerAddr string
	etcdEndpoints  string
	httpAddr       string
	tick           time.Duration
	gossipInterval int
	tFail          int64
	tRemove        int64
	joinRetry      int
	maxInbox       int
	debug          bool
)

var rootCmd = &cobra.Command{
	Use:   "membershipd",
	Short: "Run one gossip membership participant over UDP",
	Long: `Run one participant of the heartbeat gossip membership protocol.

Examples:
  # Start the introducer
  membershipd --addr=127.0.0.1:7946

  # Join through it
  membershipd --addr=127.0.0.1:7947 --introducer=127.0.0.1:7946

  # Let etcd decide who introduces
  membershipd --addr=10.0.0.5:7946 --etcd=http://etcd:2379`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&selfAddr, "addr", "a", envOr("SELF_ADDR", "127.0.0.1:"+defaultPort), "UDP address of this node (IPv4 host:port)")
	f.StringVarP(&introducerAddr, "introducer", "i", os.Getenv("INTRODUCER"), "introducer address; defaults to self")
	f.StringVar(&etcdEndpoints, "etcd", os.Getenv("ETCD_ENDPOINTS"), "comma-separated etcd endpoints used to discover the introducer")
	f.StringVar(&httpAddr, "http", os.Getenv("HTTP_ADDR"), "admin HTTP listen address (healthz, members, metrics); empty disables")
	f.DurationVar(&tick, "tick", time.Second, "protocol round length")

	def := gossip.DefaultConfig()
	f.IntVar(&gossipInterval, "gossip-interval", def.GossipInterval, "ticks between gossip rounds")
	f.Int64Var(&tFail, "tfail", def.TFail, "ticks without heartbeat before a peer is marked dead")
	f.Int64Var(&tRemove, "tremove", def.TRemove, "ticks without heartbeat before a peer is removed")
	f.IntVar(&joinRetry, "join-retry", def.JoinRetryInterval, "ticks between join request retries; 0 disables")
	f.IntVar(&maxInbox, "max-inbox", def.MaxInbox, "datagrams queued between ticks before dropping; 0 is unbounded")
	f.BoolVar(&debug, "debug", false, "development logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(debug)
	if err != nil {
		return err
	}
	defer logger.Sync()
	telemetry.SetBuildInfo(version, gitSHA)

	// 1. Resolve who we are
	self, err := node.ParseAddress(selfAddr, defaultPort)
	if err != nil {
		return fmt.Errorf("bad --addr: %w", err)
	}

	// 2. Resolve the introducer, through etcd when configured
	intro := self
	if etcdEndpoints != "" {
		cli, err := discovery.NewClient(strings.Split(etcdEndpoints, ","))
		if err != nil {
			return fmt.Errorf("etcd client: %w", err)
		}
		defer cli.Close()

		stop, err := discover(cmd.Context(), cli, self, &intro, logger)
		if err != nil {
			return err
		}
		defer stop()
	} else if introducerAddr != "" {
		intro, err = node.ParseAddress(introducerAddr, defaultPort)
		if err != nil {
			return fmt.Errorf("bad --introducer: %w", err)
		}
	}

	// 3. Transport and protocol
	transport, err := gossip.ListenUDP(self, logger.Named("udp"))
	if err != nil {
		return err
	}
	defer transport.Close()

	cfg := gossip.DefaultConfig()
	cfg.GossipInterval = gossipInterval
	cfg.TFail = tFail
	cfg.TRemove = tRemove
	cfg.JoinRetryInterval = joinRetry
	cfg.MaxInbox = maxInbox
	cfg.Clock = gossip.NewWallClock(tick)
	cfg.Logger = logger.Named("gossip")

	g, err := gossip.New(self, transport, cfg)
	if err != nil {
		return err
	}
	transport.Serve(g)
	if err := g.Start(intro); err != nil {
		return err
	}
	logger.Info("node started", zap.Stringer("self", self), zap.Stringer("introducer", intro), zap.Duration("tick", tick))

	// 4. Admin HTTP
	var srv *http.Server
	if httpAddr != "" {
		n := node.NewNode(g, httpAddr)
		srv = &http.Server{Addr: n.Addr(), Handler: n.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin http failed", zap.Error(err))
			}
		}()
		logger.Info("admin http listening", zap.String("addr", httpAddr))
	}

	// 5. Drive the protocol until interrupted
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.Tick()
		case s := <-sig:
			logger.Info("shutting down", zap.Stringer("signal", s))
			g.Stop()
			if srv != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := srv.Shutdown(ctx); err != nil {
					logger.Warn("admin http shutdown failed", zap.Error(err))
				}
				cancel()
			}
			return nil
		}
	}
}

// discover picks an introducer among the registered nodes, claiming the role
// only when none is registered, and registers this node. The returned func
// releases both leases.
func discover(ctx context.Context, cli *clientv3.Client, self gossip.Address, intro *gossip.Address, logger *zap.Logger) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	introStr, releaseClaim, err := discovery.ResolveIntroducer(ctx, cli, self.String(), 10)
	if err != nil {
		return nil, err
	}
	addr, err := gossip.ParseAddress(introStr)
	if err != nil {
		releaseClaim()
		return nil, fmt.Errorf("introducer %q from etcd: %w", introStr, err)
	}
	*intro = addr
	logger.Info("introducer resolved via etcd", zap.String("introducer", introStr), zap.Bool("self", addr == self))

	leaseID, releaseNode, err := discovery.RegisterNode(cli, self.String(), 10)
	if err != nil {
		releaseClaim()
		return nil, fmt.Errorf("register node: %w", err)
	}
	if nodes, err := discovery.ListNodes(ctx, cli); err == nil {
		logger.Info("registered with etcd", zap.Int("known_nodes", len(nodes)), zap.Strings("nodes", nodes))
	}
	return func() {
		releaseNode()
		_, _ = cli.Revoke(context.TODO(), leaseID)
		releaseClaim()
	}, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
