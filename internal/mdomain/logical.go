// Package mdomain holds MINHTON's identity and addressing value objects
// (LogicalPosition, PhysicalAddress, NodeRef) and the message set
// exchanged between nodes. Everything here is a small, value-copied
// record; no type in this package owns a mutex or a goroutine.
package mdomain

import (
	"fmt"

	"minhton/internal/position"

	"github.com/oklog/ulid/v2"
)

// LogicalPosition is a node's place in the conceptual tree plus a fresh
// identity (UUID) that changes on every position change, per spec.md §3.
type LogicalPosition struct {
	Pos         position.Position
	Fanout      uint16
	UUID        string
	Initialized bool
}

// NewLogicalPosition returns an initialized LogicalPosition with a fresh
// UUID. A LogicalPosition is normally constructed this way exactly once
// per position change (set_position, leave-with-replacement adoption).
func NewLogicalPosition(pos position.Position, fanout uint16) LogicalPosition {
	return LogicalPosition{
		Pos:         pos,
		Fanout:      fanout,
		UUID:        ulid.Make().String(),
		Initialized: true,
	}
}

// Equal reports whether two LogicalPositions are equal per spec.md §3:
// the (level, number, fanout, initialized) tuple, explicitly excluding
// UUID (a fresh identity is regenerated on every position change, so
// two positions that happen to be the same place in the tree at
// different times are still "equal" for routing purposes).
func (lp LogicalPosition) Equal(other LogicalPosition) bool {
	return lp.Initialized == other.Initialized &&
		lp.Pos == other.Pos &&
		lp.Fanout == other.Fanout
}

func (lp LogicalPosition) String() string {
	if !lp.Initialized {
		return "<uninit>"
	}
	return fmt.Sprintf("%s@%s", lp.Pos.String(), lp.UUID)
}
