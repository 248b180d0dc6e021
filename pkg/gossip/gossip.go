package gossip

// Entry point for the gossip subsystem: the Gossiper owns the node state
// (self address, heartbeat, join status, gossip countdown) and the
// membership table, and exposes the Start / Tick / Stop lifecycle.

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/DerekChowAHOP/membership-protocol/internal/telemetry"
)

var ErrAlreadyStarted = errors.New("gossip: already started")

// Status is the join state of a Gossiper.
type Status uint8

const (
	StatusUninitialized Status = iota
	StatusJoining
	StatusInGroup
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "UNINITIALIZED"
	case StatusJoining:
		return "JOINING"
	case StatusInGroup:
		return "IN_GROUP"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// EventLog receives membership changes as they happen on this node.
type EventLog interface {
	NodeAdded(self, peer Address)
	NodeRemoved(self, peer Address)
}

// Config tunes the protocol. Times are in Clock units, intervals in ticks.
type Config struct {
	GossipInterval    int   // ticks between gossip rounds
	TFail             int64 // staleness before an entry is marked dead
	TRemove           int64 // staleness before an entry is removed
	JoinRetryInterval int   // ticks between JOINREQ re-sends; 0 disables
	MaxInbox          int   // payloads queued between ticks; 0 is unbounded

	Clock  Clock
	Logger *zap.Logger
	Events EventLog
}

// DefaultConfig returns the reference timings: gossip every 4 ticks,
// suspect after 5, remove after 20.
func DefaultConfig() Config {
	return Config{
		GossipInterval:    4,
		TFail:             5,
		TRemove:           20,
		JoinRetryInterval: 10,
		MaxInbox:          4096,
	}
}

func (c Config) Validate() error {
	if c.GossipInterval <= 0 {
		return fmt.Errorf("gossip interval must be greater than 0, got %d", c.GossipInterval)
	}
	if c.TFail <= 0 {
		return fmt.Errorf("tfail must be greater than 0, got %d", c.TFail)
	}
	if c.TFail >= c.TRemove {
		return fmt.Errorf("tfail (%d) must be less than tremove (%d)", c.TFail, c.TRemove)
	}
	if c.JoinRetryInterval < 0 {
		return fmt.Errorf("join retry interval must not be negative, got %d", c.JoinRetryInterval)
	}
	if c.MaxInbox < 0 {
		return fmt.Errorf("max inbox must not be negative, got %d", c.MaxInbox)
	}
	return nil
}

// Gossiper runs the membership protocol for one node. Tick, Start and Stop
// must be called from a single driver goroutine; Deliver and the read
// accessors are safe from any goroutine.
type Gossiper struct {
	self   Address
	cfg    Config
	sender Sender
	clock  Clock
	logger *zap.Logger
	events EventLog
	fd     FailureDetector
	inbox  Inbox

	stopped atomic.Bool

	mu         sync.RWMutex // guards the fields below for readers off the tick goroutine
	status     Status
	heartbeat  int64
	introducer Address
	table      *MemberList
	countdown  int
	joinTimer  int
}

// New creates a gossiper for self. It fails if self is the zero address or
// the config is invalid; nothing is sent until Start.
func New(self Address, sender Sender, cfg Config) (*Gossiper, error) {
	if self.IsZero() {
		return nil, errors.New("gossip: self address must be set")
	}
	if sender == nil {
		return nil, errors.New("gossip: sender is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = &ManualClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Gossiper{
		self:   self,
		cfg:    cfg,
		sender: sender,
		clock:  cfg.Clock,
		logger: cfg.Logger.With(zap.Stringer("self", self)),
		events: cfg.Events,
		fd:     FailureDetector{TFail: cfg.TFail, TRemove: cfg.TRemove},
		inbox:  Inbox{Limit: cfg.MaxInbox},
	}, nil
}

// Start initializes the table with self and joins the group through
// introducer. The introducer itself is in the group immediately.
func (g *Gossiper) Start(introducer Address) error {
	if introducer.IsZero() {
		return errors.New("gossip: introducer address must be set")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status != StatusUninitialized {
		return ErrAlreadyStarted
	}

	now := g.clock.Now()
	g.heartbeat = 0
	g.introducer = introducer
	g.table = NewMemberList(g.self, g.heartbeat, now)
	g.countdown = g.cfg.GossipInterval
	telemetry.Members.WithLabelValues(g.self.String()).Set(1)

	if g.self == introducer {
		g.status = StatusInGroup
		g.logger.Info("starting up group")
		return nil
	}

	g.status = StatusJoining
	g.sendJoinReq()
	return nil
}

// Tick runs one protocol round: drain and dispatch inbound messages, then,
// once in the group, gossip when the countdown elapses and sweep for
// failures.
func (g *Gossiper) Tick() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status == StatusUninitialized || g.status == StatusFailed {
		return
	}

	now := g.clock.Now()
	for _, data := range g.inbox.Drain() {
		g.dispatch(data, now)
	}

	if g.status != StatusInGroup {
		g.retryJoin()
		return
	}

	g.countdown--
	if g.countdown <= 0 {
		g.gossipRound(now)
		g.countdown = g.cfg.GossipInterval
	}
	g.sweep(now)
	telemetry.Members.WithLabelValues(g.self.String()).Set(float64(g.table.Len()))
}

// Stop marks the node failed. Later ticks are no-ops and deliveries are
// discarded; in-flight sends are not drained.
func (g *Gossiper) Stop() {
	g.stopped.Store(true)
	g.mu.Lock()
	g.status = StatusFailed
	g.mu.Unlock()
	g.inbox.Drain()
	telemetry.Members.DeleteLabelValues(g.self.String())
	g.logger.Info("node stopped")
}

// Deliver queues a received payload for the next Tick. Payloads beyond
// Config.MaxInbox are dropped.
func (g *Gossiper) Deliver(payload []byte) {
	if g.stopped.Load() {
		return
	}
	if !g.inbox.Push(payload) {
		telemetry.DroppedMessages.WithLabelValues("queue_full").Inc()
	}
}

func (g *Gossiper) Self() Address { return g.self }

func (g *Gossiper) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

func (g *Gossiper) Heartbeat() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.heartbeat
}

// Members returns a snapshot of the table, self first. Nil before Start.
func (g *Gossiper) Members() []Entry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.table == nil {
		return nil
	}
	return g.table.All()
}

// Member looks up one entry.
func (g *Gossiper) Member(addr Address) (Entry, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.table == nil {
		return Entry{}, false
	}
	return g.table.Get(addr)
}

// gossipRound bumps the local heartbeat and broadcasts the full table to
// every peer.
func (g *Gossiper) gossipRound(now int64) {
	g.heartbeat++
	g.table.SetSelfHeartbeat(g.heartbeat, now)

	payload := EncodePing(g.table.entries)
	peers := g.table.Peers()
	for _, peer := range peers {
		g.send(peer, MsgPing, payload)
	}
	telemetry.GossipRounds.Inc()
	g.logger.Debug("gossip round",
		zap.Int64("heartbeat", g.heartbeat),
		zap.Int("peers", len(peers)),
		zap.Int("bytes", len(payload)))
}

func (g *Gossiper) sweep(now int64) {
	res := g.fd.Sweep(g.table, now)
	for _, addr := range res.Suspected {
		telemetry.Suspicions.Inc()
		g.logger.Info("peer suspected", zap.Stringer("peer", addr))
	}
	for _, addr := range res.Removed {
		telemetry.Evictions.Inc()
		g.logger.Info("peer removed", zap.Stringer("peer", addr))
		if g.events != nil {
			g.events.NodeRemoved(g.self, addr)
		}
	}
}

func (g *Gossiper) retryJoin() {
	if g.status != StatusJoining || g.cfg.JoinRetryInterval == 0 {
		return
	}
	g.joinTimer--
	if g.joinTimer <= 0 {
		g.logger.Info("no join reply, retrying", zap.Stringer("introducer", g.introducer))
		g.sendJoinReq()
	}
}

func (g *Gossiper) sendJoinReq() {
	g.joinTimer = g.cfg.JoinRetryInterval
	g.logger.Info("trying to join", zap.Stringer("introducer", g.introducer))
	g.send(g.introducer, MsgJoinReq, EncodeJoin(MsgJoinReq, g.self, g.heartbeat))
}

// send is fire-and-forget: failures are logged and counted, never retried.
func (g *Gossiper) send(to Address, t MsgType, payload []byte) {
	if err := g.sender.Send(g.self, to, payload); err != nil {
		telemetry.DroppedMessages.WithLabelValues("send_error").Inc()
		g.logger.Debug("send failed", zap.Stringer("to", to), zap.Stringer("type", t), zap.Error(err))
		return
	}
	telemetry.MessagesSent.WithLabelValues(t.String()).Inc()
}
