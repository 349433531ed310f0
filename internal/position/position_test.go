package position

import "testing"

func TestParentChildRoundTrip(t *testing.T) {
	for _, fanout := range []uint16{2, 3, 5, 8} {
		topo, err := NewTopology(fanout)
		if err != nil {
			t.Fatalf("NewTopology(%d): %v", fanout, err)
		}
		for level := uint32(1); level < 4; level++ {
			max, _ := topo.maxNumber(level)
			for n := uint64(0); n < max; n++ {
				p := Position{Level: level, Number: n}
				children, err := topo.Children(p)
				if err != nil {
					t.Fatalf("Children(%v): %v", p, err)
				}
				for _, c := range children {
					parent, err := topo.Parent(c)
					if err != nil {
						t.Fatalf("Parent(%v): %v", c, err)
					}
					if !IsSamePosition(parent, p) {
						t.Errorf("parent(children(%v)) = %v, want %v", p, parent, p)
					}
				}
			}
		}
	}
}

func TestRootHasNoParent(t *testing.T) {
	topo, _ := NewTopology(2)
	if _, err := topo.Parent(Position{0, 0}); err != ErrRootHasNoParent {
		t.Fatalf("Parent(root) = %v, want ErrRootHasNoParent", err)
	}
}

func TestIsPositionValid(t *testing.T) {
	topo, _ := NewTopology(2)
	if err := topo.IsPositionValid(Position{Level: 1, Number: 1}); err != nil {
		t.Fatalf("(1,1) should be valid for fanout 2: %v", err)
	}
	if err := topo.IsPositionValid(Position{Level: 1, Number: 2}); err != ErrInvalidPosition {
		t.Fatalf("(1,2) should be invalid for fanout 2, got %v", err)
	}
}

func TestFillLevelRightToLeft(t *testing.T) {
	cases := map[uint32]bool{0: true, 1: false, 2: true, 3: false}
	for level, want := range cases {
		if got := FillLevelRightToLeft(level); got != want {
			t.Errorf("FillLevelRightToLeft(%d) = %v, want %v", level, got, want)
		}
	}
}

func TestRoutingTableSymmetry(t *testing.T) {
	// Invariant 3 (spec.md S8 #3): for every level, left_rt(N) U {N} U
	// right_rt(N) unioned over all N on that level equals the full
	// [0, m^l) range with the correct multiplicity of RT-neighbor-ness
	// (here we only check that every generated RT neighbor position is
	// itself a valid position on the same level).
	topo, _ := NewTopology(3)
	for level := uint32(1); level < 4; level++ {
		max, _ := topo.maxNumber(level)
		for n := uint64(0); n < max; n++ {
			p := Position{Level: level, Number: n}
			left, err := topo.LeftRT(p)
			if err != nil {
				t.Fatalf("LeftRT(%v): %v", p, err)
			}
			right, err := topo.RightRT(p)
			if err != nil {
				t.Fatalf("RightRT(%v): %v", p, err)
			}
			for _, q := range append(left, right...) {
				if q.Level != level {
					t.Errorf("RT neighbor %v of %v not on same level", q, p)
				}
				if err := topo.IsPositionValid(q); err != nil {
					t.Errorf("RT neighbor %v of %v invalid: %v", q, p, err)
				}
			}
		}
	}
}

func TestDSNSetEvenLevelsOnly(t *testing.T) {
	topo, _ := NewTopology(2)
	if _, err := topo.DSNSet(1); err == nil {
		t.Fatalf("DSNSet(1) should fail on odd level")
	}
	set, err := topo.DSNSet(2)
	if err != nil {
		t.Fatalf("DSNSet(2): %v", err)
	}
	if len(set) == 0 {
		t.Fatalf("DSNSet(2) empty")
	}
}

func TestCoveringDSNOfDSNIsItself(t *testing.T) {
	topo, _ := NewTopology(2)
	dsns, err := topo.DSNSet(2)
	if err != nil {
		t.Fatalf("DSNSet: %v", err)
	}
	for _, d := range dsns {
		p := Position{Level: 2, Number: d}
		cov, err := topo.CoveringDSN(p)
		if err != nil {
			t.Fatalf("CoveringDSN(%v): %v", p, err)
		}
		if !IsSamePosition(cov, p) {
			t.Errorf("CoveringDSN(%v) = %v, want self", p, cov)
		}
	}
}

func TestTreeMapperOrdersInOrderTraversal(t *testing.T) {
	topo, _ := NewTopology(2)
	// On a binary tree of height 2, the in-order horizontal sequence at
	// level 2 is exactly increasing number order (0,1,2,3).
	var prev float64
	for n := uint64(0); n < 4; n++ {
		v, err := topo.TreeMapper(Position{Level: 2, Number: n}, DefaultHorizontalScale)
		if err != nil {
			t.Fatalf("TreeMapper: %v", err)
		}
		if n > 0 && v <= prev {
			t.Errorf("TreeMapper not increasing at n=%d: prev=%f v=%f", n, prev, v)
		}
		prev = v
	}
}

func TestHorizontalOrderConsistentWithParentChild(t *testing.T) {
	topo, _ := NewTopology(2)
	left, err := topo.HorizontalOrder(Position{1, 0}, Position{1, 1}, DefaultHorizontalScale)
	if err != nil {
		t.Fatalf("HorizontalOrder: %v", err)
	}
	if !left {
		t.Errorf("(1,0) should be left of (1,1)")
	}
}
