// Package join implements the Join protocol of spec.md §4.4.
package join

import (
	"context"
	"fmt"

	"minhton/internal/algorithm"
	"minhton/internal/fsm"
	"minhton/internal/logger"
	"minhton/internal/mdomain"
	"minhton/internal/position"
	"minhton/internal/procinfo"
)

// Strategy is the pluggable Join algorithm. A node binds exactly one
// implementation (spec.md §9's algorithm polymorphism); Default below
// is the "sophisticated join" described in §4.4.
type Strategy interface {
	// StartJoin begins (1)/(2): either multicast discovery or a direct
	// Join to target, arming the matching response timeout.
	StartJoin(ctx context.Context, c *algorithm.Context, seed mdomain.NodeRef) error

	// HandleBootstrapResponse evaluates a candidate offered in response
	// to a BootstrapDiscover and, on the first valid one, starts the
	// direct join against it.
	HandleBootstrapResponse(ctx context.Context, c *algorithm.Context, candidate mdomain.NodeRef) error

	// HandleJoin runs at a node that receives a Join on behalf of some
	// entering node; forwards deeper into the tree or accepts as a
	// child.
	HandleJoin(ctx context.Context, c *algorithm.Context, from mdomain.Header, entering mdomain.NodeRef) error

	// HandleJoinAccept runs at the entering node: adopts the computed
	// position, ingests neighbors, acks.
	HandleJoinAccept(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.JoinAccept) error

	// HandleJoinAcceptAck runs at the accepting node: broadcasts
	// UpdateNeighbors to everyone who needs to learn of the new child.
	HandleJoinAcceptAck(ctx context.Context, c *algorithm.Context, from mdomain.Header) error

	// HandleJoinAcceptAckTimeout runs at the accepting node when no ack
	// arrived in time: silently reverts, freeing the child slot.
	HandleJoinAcceptAckTimeout(c *algorithm.Context, childIndex int) error
}

// Default is the sophisticated-join strategy of spec.md §4.4.
type Default struct{}

// freeChildSlot finds the first child index, in fill-level-right-to-left
// order, without an initialized physical half — the "free child slot in
// the direction dictated by fill-level-right-to-left" rule.
func freeChildSlot(c *algorithm.Context) (int, bool) {
	children := c.Routing.Children()
	rightToLeft := position.FillLevelRightToLeft(c.Routing.Self().Logical.Pos.Level + 1)
	if rightToLeft {
		for idx := len(children) - 1; idx >= 0; idx-- {
			if !children[idx].IsInitialized() {
				return idx, true
			}
		}
		return 0, false
	}
	for idx, child := range children {
		if !child.IsInitialized() {
			return idx, true
		}
	}
	return 0, false
}

func (Default) StartJoin(ctx context.Context, c *algorithm.Context, seed mdomain.NodeRef) error {
	evID := c.IDs.NextEventID()
	if err := c.Procs.Save(algorithm.JoinKey(evID), procinfo.JoinState{EventID: evID, Target: seed}); err != nil {
		return err
	}
	h := mdomain.Header{Sender: c.Self, Target: seed, Type: mdomain.MsgJoin, EventID: evID}
	if err := c.Sender.Send(ctx, seed, h, mdomain.Join{}); err != nil {
		return err
	}
	c.Timers.Arm(fsm.TimeoutJoinAcceptResponse, evID, func() {
		_ = c.FSM.Accept(fsm.EventTimeout{Kind: fsm.TimeoutJoinAcceptResponse})
	})
	return nil
}

func (d Default) HandleBootstrapResponse(ctx context.Context, c *algorithm.Context, candidate mdomain.NodeRef) error {
	if !candidate.IsValidPeer() {
		return fmt.Errorf("%w: invalid bootstrap candidate", mdomain.ErrInvalidMessage)
	}
	return d.StartJoin(ctx, c, candidate)
}

// HandleJoin forwards the entering node's Join request toward a node
// with a free child slot: it accepts locally if this node has one, and
// otherwise descends into its first initialized child.
func (d Default) HandleJoin(ctx context.Context, c *algorithm.Context, from mdomain.Header, entering mdomain.NodeRef) error {
	idx, ok := freeChildSlot(c)
	if !ok {
		// No free slot here: forward deeper via the lowest-numbered
		// child with already-occupied slots (greedy descent), as the
		// next hop toward an eventual leaf.
		children := c.Routing.Children()
		for _, child := range children {
			if child.IsInitialized() {
				h := mdomain.Header{Sender: entering, Target: child, Type: mdomain.MsgJoin, EventID: from.EventID, RefEventID: from.EventID}
				return c.Sender.Send(ctx, child, h, mdomain.Join{})
			}
		}
		return fmt.Errorf("%w: no free child slot and no children to descend into", mdomain.ErrFSM)
	}

	childPos, err := c.Topology.Children(c.Routing.Self().Logical.Pos)
	if err != nil {
		return err
	}
	pos := childPos[idx]
	enteringRef := mdomain.NodeRef{
		Logical:  mdomain.LogicalPosition{Pos: pos, Fanout: c.Self.Logical.Fanout, Initialized: true},
		Physical: entering.Physical,
		Status:   mdomain.StatusRunning,
	}
	if err := c.Routing.SetChild(enteringRef, idx); err != nil {
		return err
	}
	evID := c.IDs.NextEventID()
	if err := c.Procs.Save(algorithm.AcceptChildKey(evID), procinfo.AcceptChildState{EventID: evID, ChildIndex: idx, EnteringRef: enteringRef}); err != nil {
		return err
	}
	payload := mdomain.JoinAccept{
		Fanout:        c.Self.Logical.Fanout,
		AdjacentLeft:  c.Routing.AdjacentLeft(),
		AdjacentRight: c.Routing.AdjacentRight(),
		RTNeighbors:   c.Routing.InitializedRTNeighbors(),
	}
	h := mdomain.Header{Sender: c.Self, Target: enteringRef, Type: mdomain.MsgJoinAccept, EventID: evID, RefEventID: from.EventID}
	if err := c.FSM.Accept(fsm.EventSendMsg{Type: mdomain.MsgJoinAccept}); err != nil {
		return err
	}
	if err := c.Sender.Send(ctx, entering, h, payload); err != nil {
		return err
	}
	c.Timers.Arm(fsm.TimeoutJoinAcceptAckResponse, evID, func() {
		_ = d.HandleJoinAcceptAckTimeout(c, idx)
	})
	return nil
}

func (d Default) HandleJoinAccept(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.JoinAccept) error {
	// The entering node's own position is not carried in the JoinAccept
	// payload: HandleJoin puts the child NodeRef it computed (position
	// included) in the header's Target, and it is read from there.
	pos := from.Target.Logical.Pos
	if err := c.Routing.SetPosition(pos); err != nil {
		return err
	}
	for _, n := range payload.RTNeighbors {
		_ = c.Routing.UpdateRoutingTableNeighbor(n)
	}
	if payload.AdjacentLeft.IsValidPeer() {
		_ = c.Routing.SetAdjacentLeft(payload.AdjacentLeft)
	}
	if payload.AdjacentRight.IsValidPeer() {
		_ = c.Routing.SetAdjacentRight(payload.AdjacentRight)
	}
	if err := c.FSM.Accept(fsm.EventReceiveMsg{Type: mdomain.MsgJoinAccept}); err != nil {
		return err
	}
	ackH := mdomain.Header{Sender: c.Self, Target: from.Sender, Type: mdomain.MsgJoinAcceptAck, EventID: c.IDs.NextEventID(), RefEventID: from.EventID}
	return c.Sender.Send(ctx, from.Sender, ackH, mdomain.JoinAcceptAck{})
}

func (d Default) HandleJoinAcceptAck(ctx context.Context, c *algorithm.Context, from mdomain.Header) error {
	v, err := c.Procs.Load(algorithm.AcceptChildKey(from.RefEventID))
	if err != nil {
		return err
	}
	state := v.(procinfo.AcceptChildState)
	c.Timers.Cancel(fsm.TimeoutJoinAcceptAckResponse, from.RefEventID)
	if err := c.FSM.Accept(fsm.EventReceiveMsg{Type: mdomain.MsgJoinAcceptAck}); err != nil {
		return err
	}
	_ = c.Procs.Remove(algorithm.AcceptChildKey(from.RefEventID))

	update := mdomain.UpdateNeighbors{
		Neighbors: []mdomain.NeighborUpdate{{Node: state.EnteringRef, Relationship: mdomain.RelChild}},
		Ack:       true,
	}
	for _, n := range c.Routing.AllKnownNeighbors() {
		h := mdomain.Header{Sender: c.Self, Target: n, Type: mdomain.MsgUpdateNeighbors, EventID: c.IDs.NextEventID()}
		if err := c.Sender.Send(ctx, n, h, update); err != nil {
			c.Logger.Warn("join: UpdateNeighbors broadcast failed", logger.F("peer", n.String()), logger.F("err", err))
		}
	}
	return nil
}

func (Default) HandleJoinAcceptAckTimeout(c *algorithm.Context, childIndex int) error {
	if err := c.Routing.ResetChild(childIndex); err != nil {
		return err
	}
	return c.FSM.Accept(fsm.EventTimeout{Kind: fsm.TimeoutJoinAcceptAckResponse})
}
