package node

import (
	"net/http"
	"time"

	"github.com/DerekChowAHOP/membership-protocol/internal/telemetry"
	"github.com/DerekChowAHOP/membership-protocol/pkg/gossip"
)

// Node exposes a running gossiper over HTTP for operators.
type Node struct {
	gsp     *gossip.Gossiper
	addr    string
	started time.Time
}

func NewNode(g *gossip.Gossiper, httpAddr string) *Node {
	return &Node{
		gsp:     g,
		addr:    httpAddr,
		started: time.Now(),
	}
}

func (n *Node) Addr() string {
	return n.addr
}

// Handler wires the admin endpoints.
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", telemetry.Instrument("healthz", http.HandlerFunc(n.Healthz)))
	mux.Handle("/info", telemetry.Instrument("info", http.HandlerFunc(n.Info)))
	mux.Handle("/members", telemetry.Instrument("members", http.HandlerFunc(n.Members)))
	mux.Handle("/metrics", telemetry.MetricsHandler())
	return mux
}
