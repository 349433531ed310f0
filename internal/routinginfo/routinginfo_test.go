package routinginfo

import (
	"testing"

	"minhton/internal/mdomain"
	"minhton/internal/position"
)

func mustTopo(t *testing.T, fanout uint16) position.Topology {
	t.Helper()
	topo, err := position.NewTopology(fanout)
	if err != nil {
		t.Fatalf("NewTopology: %v", err)
	}
	return topo
}

func TestSetPositionFixesChildPositions(t *testing.T) {
	topo := mustTopo(t, 2)
	ri := New(topo, position.DefaultHorizontalScale, mdomain.PhysicalAddress{IP: "127.0.0.1", Port: 2000})
	if err := ri.SetPosition(position.Position{Level: 1, Number: 0}); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	children := ri.Children()
	if len(children) != 2 {
		t.Fatalf("expected 2 children slots, got %d", len(children))
	}
	if children[0].Logical.Pos != (position.Position{Level: 2, Number: 0}) {
		t.Errorf("child[0] = %v, want (2,0)", children[0].Logical.Pos)
	}
	if children[0].IsInitialized() {
		t.Errorf("child[0] should not be initialized (no physical half yet)")
	}
}

func TestSetPositionTwiceFails(t *testing.T) {
	topo := mustTopo(t, 2)
	ri := New(topo, position.DefaultHorizontalScale, mdomain.PhysicalAddress{IP: "127.0.0.1", Port: 2000})
	if err := ri.SetPosition(position.Position{Level: 0, Number: 0}); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	if err := ri.SetPosition(position.Position{Level: 1, Number: 0}); err == nil {
		t.Fatalf("second SetPosition should fail")
	}
}

func TestSetChildRejectsWrongPosition(t *testing.T) {
	topo := mustTopo(t, 2)
	ri := NewRoot(topo, mdomain.PhysicalAddress{IP: "127.0.0.1", Port: 2000})
	wrong := mdomain.NodeRef{
		Logical:  mdomain.LogicalPosition{Pos: position.Position{Level: 5, Number: 5}, Fanout: 2, Initialized: true},
		Physical: mdomain.PhysicalAddress{IP: "127.0.0.1", Port: 3000},
	}
	if err := ri.SetChild(wrong, 0); err == nil {
		t.Fatalf("SetChild should reject mismatched logical position")
	}
}

func TestSetChildThenRemoveNeighborRestoresPhysicalUnset(t *testing.T) {
	topo := mustTopo(t, 2)
	ri := NewRoot(topo, mdomain.PhysicalAddress{IP: "127.0.0.1", Port: 2000})
	childPos := ri.Children()[0].Logical.Pos
	child := mdomain.NodeRef{
		Logical:  mdomain.LogicalPosition{Pos: childPos, Fanout: 2, Initialized: true},
		Physical: mdomain.PhysicalAddress{IP: "127.0.0.1", Port: 2001},
		Status:   mdomain.StatusRunning,
	}
	if err := ri.SetChild(child, 0); err != nil {
		t.Fatalf("SetChild: %v", err)
	}
	if !ri.Children()[0].IsInitialized() {
		t.Fatalf("child[0] should be initialized after SetChild")
	}
	if err := ri.RemoveNeighbor(child); err != nil {
		t.Fatalf("RemoveNeighbor: %v", err)
	}
	if ri.Children()[0].IsInitialized() {
		t.Fatalf("child[0] should be reset after RemoveNeighbor")
	}
	// logical half survives the reset (invariant 1).
	if ri.Children()[0].Logical.Pos != childPos {
		t.Fatalf("child[0] logical half should survive reset")
	}
}

func TestCannotRemoveParent(t *testing.T) {
	topo := mustTopo(t, 2)
	ri := New(topo, position.DefaultHorizontalScale, mdomain.PhysicalAddress{IP: "127.0.0.1", Port: 2001})
	if err := ri.SetPosition(position.Position{Level: 1, Number: 0}); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	parentPos := ri.Parent().Logical.Pos
	parent := mdomain.NodeRef{Logical: mdomain.LogicalPosition{Pos: parentPos, Fanout: 2, Initialized: true}}
	if err := ri.RemoveNeighbor(parent); err != mdomain.ErrCannotRemoveParent {
		t.Fatalf("RemoveNeighbor(parent) = %v, want ErrCannotRemoveParent", err)
	}
}

func TestResetPositionClearsEverything(t *testing.T) {
	topo := mustTopo(t, 2)
	ri := NewRoot(topo, mdomain.PhysicalAddress{IP: "127.0.0.1", Port: 2000})
	ri.ResetPosition(1)
	if ri.IsInitialized() {
		t.Fatalf("self should be uninitialized after reset_position")
	}
	if len(ri.Children()) != 0 {
		t.Fatalf("children should be cleared after reset_position")
	}
}

func TestAdjacentWrongSideRejected(t *testing.T) {
	topo := mustTopo(t, 2)
	ri := New(topo, position.DefaultHorizontalScale, mdomain.PhysicalAddress{IP: "127.0.0.1", Port: 2000})
	if err := ri.SetPosition(position.Position{Level: 1, Number: 1}); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	// (1,0) is to the left of (1,1); offering it as adjacent-right
	// should be rejected by the horizontal-order invariant.
	wrongSide := mdomain.NodeRef{
		Logical:  mdomain.LogicalPosition{Pos: position.Position{Level: 1, Number: 0}, Fanout: 2, Initialized: true},
		Physical: mdomain.PhysicalAddress{IP: "127.0.0.1", Port: 2002},
	}
	if err := ri.SetAdjacentRight(wrongSide); err != mdomain.ErrWrongSide {
		t.Fatalf("SetAdjacentRight(wrong side) = %v, want ErrWrongSide", err)
	}
}

func TestChangeSubscriberNotified(t *testing.T) {
	topo := mustTopo(t, 2)
	ri := NewRoot(topo, mdomain.PhysicalAddress{IP: "127.0.0.1", Port: 2000})
	var got []ChangeNotification
	ri.Subscribe(func(n ChangeNotification) { got = append(got, n) })
	childPos := ri.Children()[0].Logical.Pos
	child := mdomain.NodeRef{
		Logical:  mdomain.LogicalPosition{Pos: childPos, Fanout: 2, Initialized: true},
		Physical: mdomain.PhysicalAddress{IP: "127.0.0.1", Port: 2001},
	}
	if err := ri.SetChild(child, 0); err != nil {
		t.Fatalf("SetChild: %v", err)
	}
	if len(got) != 1 || got[0].Relationship != mdomain.RelChild {
		t.Fatalf("expected one Child change notification, got %+v", got)
	}
}
