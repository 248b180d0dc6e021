package gossip

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

// ErrUnknownDestination is returned when sending to an unattached address.
var ErrUnknownDestination = errors.New("gossip: unknown destination")

// Receiver accepts delivered payloads. *Gossiper implements it.
type Receiver interface {
	Deliver(payload []byte)
}

// Network is an in-process emulated network for tests and simulations.
// Sends are delivered synchronously into the receiver's inbox unless the
// message is dropped. Safe for concurrent use.
type Network struct {
	mu       sync.Mutex
	nodes    map[Address]Receiver
	dropRate float64
	rng      *rand.Rand
	sent     map[Address]int
	recv     map[Address]int
	dropped  int
}

// NewNetwork creates a network that drops each message with probability
// dropRate, using seed for reproducibility.
func NewNetwork(dropRate float64, seed int64) *Network {
	return &Network{
		nodes:    make(map[Address]Receiver),
		dropRate: dropRate,
		rng:      rand.New(rand.NewSource(seed)),
		sent:     make(map[Address]int),
		recv:     make(map[Address]int),
	}
}

// Attach registers r as the receiver for addr.
func (n *Network) Attach(addr Address, r Receiver) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nodes[addr] = r
}

// Detach removes addr; later sends to it fail.
func (n *Network) Detach(addr Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.nodes, addr)
}

// SetDropRate changes the drop probability.
func (n *Network) SetDropRate(p float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropRate = p
}

func (n *Network) Send(from, to Address, payload []byte) error {
	n.mu.Lock()
	r, ok := n.nodes[to]
	if !ok {
		n.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownDestination, to)
	}
	n.sent[from]++
	if n.dropRate > 0 && n.rng.Float64() < n.dropRate {
		n.dropped++
		n.mu.Unlock()
		return nil
	}
	n.recv[to]++
	n.mu.Unlock()

	r.Deliver(payload)
	return nil
}

// Stats returns per-address sent and received counts and the drop total.
func (n *Network) Stats() (sent, recv map[Address]int, dropped int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	sent = make(map[Address]int, len(n.sent))
	for k, v := range n.sent {
		sent[k] = v
	}
	recv = make(map[Address]int, len(n.recv))
	for k, v := range n.recv {
		recv[k] = v
	}
	return sent, recv, n.dropped
}
