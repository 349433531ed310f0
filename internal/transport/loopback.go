package transport

import (
	"context"
	"fmt"
	"sync"

	"minhton/internal/mdomain"
)

// Dispatcher is what a Node exposes to accept an inbound delivery: the
// header plus an already-typed payload (decoded per Header.Type).
type Dispatcher func(ctx context.Context, h mdomain.Header, payload any) error

// Loopback is an in-process transport registry keyed by physical
// address string, used by tests to avoid real sockets while exercising
// the exact same Sender interface algorithms use in production.
type Loopback struct {
	mu    sync.RWMutex
	nodes map[string]Dispatcher
}

// NewLoopback creates an empty registry.
func NewLoopback() *Loopback {
	return &Loopback{nodes: make(map[string]Dispatcher)}
}

// Register binds addr to a node's inbound Dispatcher.
func (l *Loopback) Register(addr mdomain.PhysicalAddress, d Dispatcher) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nodes[addr.String()] = d
}

// Unregister removes addr, e.g. on node shutdown.
func (l *Loopback) Unregister(addr mdomain.PhysicalAddress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.nodes, addr.String())
}

// Send implements algorithm.Sender by calling the target's Dispatcher
// directly, synchronously, on the caller's goroutine.
func (l *Loopback) Send(ctx context.Context, to mdomain.NodeRef, h mdomain.Header, payload any) error {
	l.mu.RLock()
	d, ok := l.nodes[to.Physical.String()]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("loopback: no node registered at %s", to.Physical.String())
	}
	return d(ctx, h, payload)
}

// SendExact always returns an error: Loopback resolves targets by
// physical address only, and search-exact routing is carried by
// internal/algorithm/searchexact.
func (l *Loopback) SendExact(ctx context.Context, target mdomain.LogicalPosition, h mdomain.Header, payload any) error {
	return fmt.Errorf("loopback: SendExact requires a physical address; route via algorithm/searchexact instead")
}
