package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/DerekChowAHOP/membership-protocol/pkg/gossip"
)

// events counts membership changes across the whole simulated group.
type events struct {
	mu      sync.Mutex
	added   int
	removed map[gossip.Address]int // peer -> nodes that removed it
}

func (e *events) NodeAdded(_, _ gossip.Address) {
	e.mu.Lock()
	e.added++
	e.mu.Unlock()
}

func (e *events) NodeRemoved(_, peer gossip.Address) {
	e.mu.Lock()
	e.removed[peer]++
	e.mu.Unlock()
}

func main() {
	n := flag.Int("n", 10, "number of nodes")
	rounds := flag.Int("rounds", 700, "rounds to simulate")
	failAt := flag.Int("fail-at", 100, "round at which nodes fail")
	failures := flag.Int("fail", 1, "number of nodes failing at -fail-at")
	drop := flag.Float64("drop", 0, "message drop probability")
	seed := flag.Int64("seed", 1, "random seed")
	gossipInterval := flag.Int("gossip-interval", gossip.DefaultConfig().GossipInterval, "ticks between gossip rounds")
	tFail := flag.Int64("tfail", gossip.DefaultConfig().TFail, "ticks before a peer is marked dead")
	tRemove := flag.Int64("tremove", gossip.DefaultConfig().TRemove, "ticks before a peer is removed")
	debug := flag.Bool("debug", false, "log protocol events")
	flag.Parse()

	logger := zap.NewNop()
	if *debug {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger = l
	}
	defer logger.Sync()

	if *failures >= *n {
		fmt.Fprintln(os.Stderr, "-fail must be smaller than -n")
		os.Exit(2)
	}

	clock := &gossip.ManualClock{}
	net := gossip.NewNetwork(*drop, *seed)
	ev := &events{removed: make(map[gossip.Address]int)}

	cfg := gossip.DefaultConfig()
	cfg.GossipInterval = *gossipInterval
	cfg.TFail = *tFail
	cfg.TRemove = *tRemove
	cfg.Clock = clock
	cfg.Logger = logger
	cfg.Events = ev

	introducer := gossip.NewAddressID(1, 0)
	nodes := make([]*gossip.Gossiper, *n)
	for i := range nodes {
		addr := gossip.NewAddressID(uint32(i+1), 0)
		g, err := gossip.New(addr, net, cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		net.Attach(addr, g)
		nodes[i] = g
	}

	// Never fail the introducer so late joiners can still get in.
	rng := rand.New(rand.NewSource(*seed))
	failed := make(map[int]bool)
	for len(failed) < *failures {
		failed[1+rng.Intn(*n-1)] = true
	}

	for r := 0; r < *rounds; r++ {
		// One node joins per round, like a staggered rollout.
		if r < len(nodes) && nodes[r].Status() == gossip.StatusUninitialized {
			if err := nodes[r].Start(introducer); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		}
		if r == *failAt {
			for i := range failed {
				nodes[i].Stop()
				logger.Info("node failed", zap.Stringer("node", nodes[i].Self()), zap.Int("round", r))
			}
		}
		for _, g := range nodes {
			g.Tick()
		}
		clock.Advance(1)
	}

	sent, recv, dropped := net.Stats()
	fmt.Printf("Simulated %d nodes for %d rounds (drop=%.2f)\n", *n, *rounds, *drop)
	for _, g := range nodes {
		members := g.Members()
		addrs := make([]string, 0, len(members))
		for _, m := range members {
			addrs = append(addrs, fmt.Sprintf("%s(hb=%d)", m.Addr, m.Heartbeat))
		}
		if len(addrs) > 1 {
			sort.Strings(addrs[1:])
		}
		fmt.Printf("%-12s %-9s sent=%-6d recv=%-6d %v\n",
			g.Self(), g.Status(), sent[g.Self()], recv[g.Self()], addrs)
	}

	ev.mu.Lock()
	defer ev.mu.Unlock()
	fmt.Printf("joins observed=%d dropped messages=%d\n", ev.added, dropped)
	for i := range failed {
		addr := nodes[i].Self()
		fmt.Printf("failed node %s removed by %d/%d live nodes\n", addr, ev.removed[addr], *n-len(failed))
	}
}
