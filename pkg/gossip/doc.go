// Package gossip implements a heartbeat-based group membership protocol.
// Every participant keeps a local membership table (self always first),
// broadcasts the whole table to every known peer on a fixed cadence, and
// evicts peers whose heartbeat stops increasing. Membership is eventually
// consistent and best effort; there is no consensus.
//
// The protocol is driven entirely by Tick: the caller invokes it once per
// round, and all table mutation happens synchronously inside that call.
// Transports only push received payloads into the gossiper with Deliver and
// accept outbound payloads through the Sender interface.
//
// Typical usage:
//
//	g, _ := gossip.New(self, net, gossip.DefaultConfig())
//	g.Start(introducer)
//	for range ticker.C {
//		g.Tick()
//	}
//	g.Stop()
//
// Tests and simulations use the in-process Network; real deployments use
// UDPTransport.
package gossip
