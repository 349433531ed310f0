package mnode

import (
	"context"
	"testing"

	"minhton/internal/algorithm"
	"minhton/internal/mdomain"
	"minhton/internal/transport"
)

func mustNode(t *testing.T, fanout uint16, addr string, port uint16, lb *transport.Loopback) *Node {
	t.Helper()
	physical := mdomain.PhysicalAddress{IP: addr, Port: port}
	n, err := New(fanout, physical, lb)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lb.Register(physical, n.Deliver)
	return n
}

func TestRootStartInitializesAtOrigin(t *testing.T) {
	lb := transport.NewLoopback()
	root := mustNode(t, 2, "127.0.0.1", 9000, lb)

	if err := root.Start(context.Background(), JoinInfo{AsRoot: true}); err != nil {
		t.Fatalf("Start(AsRoot): %v", err)
	}
	self := root.ctx.Routing.Self()
	if !self.Logical.Initialized {
		t.Fatalf("expected root to be positioned after Start(AsRoot)")
	}
	if self.Logical.Pos.Level != 0 || self.Logical.Pos.Number != 0 {
		t.Fatalf("expected root at (0,0), got (%d,%d)", self.Logical.Pos.Level, self.Logical.Pos.Number)
	}
}

func TestStartRequiresAJoinMode(t *testing.T) {
	lb := transport.NewLoopback()
	n := mustNode(t, 2, "127.0.0.1", 9001, lb)
	if err := n.Start(context.Background(), JoinInfo{}); err == nil {
		t.Fatalf("expected error for empty JoinInfo")
	}
}

func TestJoinViaNodeInfoSendsJoinToSeed(t *testing.T) {
	lb := transport.NewLoopback()
	root := mustNode(t, 2, "127.0.0.1", 9010, lb)
	if err := root.Start(context.Background(), JoinInfo{AsRoot: true}); err != nil {
		t.Fatalf("root Start: %v", err)
	}

	joiner := mustNode(t, 2, "127.0.0.1", 9011, lb)
	seed := root.ctx.Routing.Self()
	if err := joiner.Start(context.Background(), JoinInfo{ViaNodeInfo: seed}); err != nil {
		t.Fatalf("joiner Start(ViaNodeInfo): %v", err)
	}
	// StartJoin is the joiner's first NextEventID() call, so its Join
	// procedure is keyed by event id 1.
	if !joiner.ctx.Procs.Has(algorithm.JoinKey(1)) {
		t.Fatalf("expected joiner to have an outstanding join procedure")
	}
}
