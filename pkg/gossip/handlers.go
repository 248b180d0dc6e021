package gossip

import (
	"errors"

	"go.uber.org/zap"

	"github.com/DerekChowAHOP/membership-protocol/internal/telemetry"
)

// dispatch decodes one inbound payload and routes it. Malformed payloads
// are dropped whole.
func (g *Gossiper) dispatch(data []byte, now int64) {
	msg, err := Decode(data, now)
	if err != nil {
		telemetry.DroppedMessages.WithLabelValues(dropReason(err)).Inc()
		g.logger.Debug("dropping message", zap.Int("bytes", len(data)), zap.Error(err))
		return
	}
	telemetry.MessagesReceived.WithLabelValues(msg.Type.String()).Inc()

	switch msg.Type {
	case MsgJoinReq:
		g.handleJoinReq(msg, now)
	case MsgJoinRep:
		g.handleJoinRep(msg, now)
	case MsgPing:
		g.handlePing(msg, now)
	}
}

// handleJoinReq admits the sender and answers with our own address and
// heartbeat. Only a member of the group can admit others.
func (g *Gossiper) handleJoinReq(msg Message, now int64) {
	if g.status != StatusInGroup {
		telemetry.DroppedMessages.WithLabelValues("not_in_group").Inc()
		g.logger.Debug("ignoring join request while not in group", zap.Stringer("from", msg.Addr))
		return
	}
	g.merge(msg.Addr, msg.Heartbeat, now)
	// A peer we still hold as dead is not readmitted until its entry is
	// removed, so it gets no reply and keeps retrying.
	if e, ok := g.table.Get(msg.Addr); !ok || e.Dead() {
		telemetry.DroppedMessages.WithLabelValues("dead_peer").Inc()
		g.logger.Debug("not admitting peer still listed as dead", zap.Stringer("from", msg.Addr))
		return
	}
	g.send(msg.Addr, MsgJoinRep, EncodeJoin(MsgJoinRep, g.self, g.heartbeat))
}

// handleJoinRep completes the handshake. Late duplicate replies, e.g. to a
// retried JOINREQ, still count as a liveness observation of the sender.
func (g *Gossiper) handleJoinRep(msg Message, now int64) {
	if g.status == StatusJoining {
		g.status = StatusInGroup
		g.logger.Info("joined group", zap.Stringer("via", msg.Addr))
	}
	g.merge(msg.Addr, msg.Heartbeat, now)
}

// handlePing folds a peer's whole table into ours. It is accepted in any
// live state: a PING can only come from a node already in the group.
func (g *Gossiper) handlePing(msg Message, now int64) {
	for _, e := range msg.Entries {
		g.merge(e.Addr, e.Heartbeat, now)
	}
}

// merge applies one observation. Reports about ourselves are skipped: the
// self entry is driven only by the local heartbeat.
func (g *Gossiper) merge(addr Address, heartbeat, now int64) {
	if addr == g.self {
		return
	}
	res := g.table.Merge(addr, heartbeat, now)
	telemetry.Merges.WithLabelValues(res.String()).Inc()

	switch res {
	case MergeInserted:
		g.logger.Info("peer added", zap.Stringer("peer", addr), zap.Int64("heartbeat", heartbeat))
		if g.events != nil {
			g.events.NodeAdded(g.self, addr)
		}
	case MergeMarkedDead:
		g.logger.Debug("peer reported dead", zap.Stringer("peer", addr))
	}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrShortMessage):
		return "short"
	case errors.Is(err, ErrUnknownType):
		return "unknown_type"
	default:
		return "malformed"
	}
}
