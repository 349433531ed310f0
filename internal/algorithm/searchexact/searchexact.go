// Package searchexact implements the Search-Exact substrate of
// spec.md §4.8: greedy routing of an opaque payload toward a target
// NodeRef with known logical position but unknown physical address.
package searchexact

import (
	"context"
	"fmt"

	"minhton/internal/algorithm"
	"minhton/internal/mdomain"
	"minhton/internal/position"
)

// Strategy is the pluggable search-exact algorithm.
type Strategy interface {
	// Route begins or continues a hop: forwards toward target, or
	// delivers locally if self is the target, or reports failure back
	// to origin if no neighbor is closer.
	Route(ctx context.Context, c *algorithm.Context, origin mdomain.NodeRef, target mdomain.LogicalPosition, inner mdomain.Header, payload any, deliver func(mdomain.Header, any) error) error

	// HandleFailure runs at origin on SearchExactFailure.
	HandleFailure(ctx context.Context, c *algorithm.Context, from mdomain.Header) error
}

// Default is the RT-neighbor-greedy strategy described in §4.8: move
// to whichever known neighbor is closer to target in horizontal order.
type Default struct{}

func (Default) Route(ctx context.Context, c *algorithm.Context, origin mdomain.NodeRef, target mdomain.LogicalPosition, inner mdomain.Header, payload any, deliver func(mdomain.Header, any) error) error {
	if position.IsSamePosition(c.Self.Logical.Pos, target.Pos) {
		return deliver(inner, payload)
	}

	closer, ok := closestKnownNeighbor(c, target.Pos)
	if !ok {
		h := mdomain.Header{Sender: c.Self, Target: origin, Type: mdomain.MsgSearchExactFailure, EventID: c.IDs.NextEventID()}
		return c.Sender.Send(ctx, origin, h, mdomain.SearchExactFailure{})
	}
	wrapped := mdomain.SearchExact{Payload: payload, InnerType: inner.Type}
	h := mdomain.Header{Sender: c.Self, Target: closer, Type: mdomain.MsgSearchExact, EventID: inner.EventID, RefEventID: inner.RefEventID}
	return c.Sender.Send(ctx, closer, h, wrapped)
}

// closestKnownNeighbor returns the known neighbor with the smallest
// tree-mapper distance to target, if that neighbor is strictly closer
// than self.
func closestKnownNeighbor(c *algorithm.Context, target position.Position) (mdomain.NodeRef, bool) {
	targetH, err := c.Topology.TreeMapper(target, c.Routing.HorizontalScale())
	if err != nil {
		return mdomain.NodeRef{}, false
	}
	selfH, err := c.Topology.TreeMapper(c.Self.Logical.Pos, c.Routing.HorizontalScale())
	if err != nil {
		return mdomain.NodeRef{}, false
	}
	best := mdomain.NodeRef{}
	bestDist := abs(selfH - targetH)
	found := false
	for _, n := range c.Routing.AllKnownNeighbors() {
		if !n.IsInitialized() {
			continue
		}
		nh, err := c.Topology.TreeMapper(n.Logical.Pos, c.Routing.HorizontalScale())
		if err != nil {
			continue
		}
		d := abs(nh - targetH)
		if d < bestDist {
			bestDist = d
			best = n
			found = true
		}
	}
	return best, found
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func (Default) HandleFailure(ctx context.Context, c *algorithm.Context, from mdomain.Header) error {
	return fmt.Errorf("%w: search-exact failed en route to target, event_id=%d", mdomain.ErrFSM, from.RefEventID)
}
