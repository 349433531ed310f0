// Package leave implements the Leave-Without-Replacement and
// Leave-With-Replacement protocols of spec.md §4.5-§4.6, including the
// cross-node locking handshake and passive-forwarding window of §4.7.
package leave

import (
	"context"
	"fmt"

	"minhton/internal/algorithm"
	"minhton/internal/fsm"
	"minhton/internal/mdomain"
	"minhton/internal/procinfo"
)

// Strategy is the pluggable Leave algorithm.
type Strategy interface {
	// StartLeave is invoked by stop(): decides without-replacement vs.
	// with-replacement and begins the corresponding handshake.
	StartLeave(ctx context.Context, c *algorithm.Context) error

	// HandleSignoffParentRequest runs at the parent of a leaving child.
	HandleSignoffParentRequest(ctx context.Context, c *algorithm.Context, from mdomain.Header) error

	// HandleLockNeighborRequest runs at a level neighbor asked to lock.
	HandleLockNeighborRequest(ctx context.Context, c *algorithm.Context, from mdomain.Header) error

	// HandleLockNeighborResponse runs at the parent driving the lock
	// handshake of §4.5 step (1)/(2).
	HandleLockNeighborResponse(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.LockNeighborResponse) error

	// HandleSignoffParentAnswer runs at the leaving node.
	HandleSignoffParentAnswer(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.SignoffParentAnswer) error

	// HandleFindReplacement runs at each hop while routing toward a
	// successor leaf (§4.6 step (1)).
	HandleFindReplacement(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.FindReplacement) error

	// HandleReplacementOffer runs at the leaving node (§4.6 step (3)).
	HandleReplacementOffer(ctx context.Context, c *algorithm.Context, from mdomain.Header) error

	// HandleReplacementAck runs at the successor (§4.6 step (5)).
	HandleReplacementAck(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.ReplacementAck) error
}

// Default implements the lock/signoff handshake of §4.5 and the
// find-replacement/offer/ack handshake of §4.6.
type Default struct{}

// canLeaveWithoutReplacement is the pure predicate of §4.5: a leaf
// whose departure does not break balance. Here: a node with zero
// initialized children.
func canLeaveWithoutReplacement(c *algorithm.Context) bool {
	for _, child := range c.Routing.Children() {
		if child.IsInitialized() {
			return false
		}
	}
	return true
}

func (d Default) StartLeave(ctx context.Context, c *algorithm.Context) error {
	canLeave := canLeaveWithoutReplacement(c)
	if err := c.FSM.Accept(fsm.SignalLeaveNetwork{CanLeaveWithoutReplacement: canLeave}); err != nil {
		return err
	}
	evID := c.IDs.NextEventID()
	parent := c.Routing.Parent()
	if !parent.IsValidPeer() {
		// Root with no children: nothing to sign off from.
		c.Routing.ResetPosition(evID)
		return nil
	}
	if canLeave {
		if err := c.Procs.Save(algorithm.LeaveKey(evID), procinfo.LeaveState{EventID: evID, WithReplacement: false}); err != nil {
			return err
		}
		h := mdomain.Header{Sender: c.Self, Target: parent, Type: mdomain.MsgSignoffParentRequest, EventID: evID}
		return c.Sender.Send(ctx, parent, h, mdomain.SignoffParentRequest{})
	}

	if err := c.Procs.Save(algorithm.LeaveKey(evID), procinfo.LeaveState{EventID: evID, WithReplacement: true}); err != nil {
		return err
	}
	target := c.Self.Logical
	successor, ok := c.Routing.LeftmostNeighborChild()
	if !ok {
		return fmt.Errorf("%w: no successor leaf known to replace self", mdomain.ErrFSM)
	}
	h := mdomain.Header{Sender: c.Self, Target: successor, Type: mdomain.MsgFindReplacement, EventID: evID}
	return c.Sender.Send(ctx, successor, h, mdomain.FindReplacement{NodeToReplace: target})
}

// HandleSignoffParentRequest implements §4.5 step (1): lock self,
// then lock the right level-neighbor, then the left.
func (Default) HandleSignoffParentRequest(ctx context.Context, c *algorithm.Context, from mdomain.Header) error {
	evID := c.IDs.NextEventID()
	if err := c.Procs.Save(algorithm.LeaveKey(evID), procinfo.LeaveState{
		EventID: evID, PendingAcks: map[int]bool{},
	}); err != nil {
		return fmt.Errorf("%w: signoff already in progress (node_locked)", mdomain.ErrSignoffRejected)
	}
	right, hasRight := c.Routing.DirectRightNeighbor()
	if !hasRight {
		return finishLockSequence(ctx, c, from, evID)
	}
	h := mdomain.Header{Sender: c.Self, Target: right, Type: mdomain.MsgLockNeighborRequest, EventID: c.IDs.NextEventID(), RefEventID: evID}
	return c.Sender.Send(ctx, right, h, mdomain.LockNeighborRequest{})
}

func finishLockSequence(ctx context.Context, c *algorithm.Context, parentReq mdomain.Header, evID uint64) error {
	left, hasLeft := c.Routing.DirectLeftNeighbor()
	if hasLeft {
		h := mdomain.Header{Sender: c.Self, Target: left, Type: mdomain.MsgLockNeighborRequest, EventID: c.IDs.NextEventID(), RefEventID: evID}
		return c.Sender.Send(ctx, left, h, mdomain.LockNeighborRequest{})
	}
	return completeSignoff(ctx, c, parentReq, evID)
}

func completeSignoff(ctx context.Context, c *algorithm.Context, parentReq mdomain.Header, evID uint64) error {
	ans := mdomain.Header{Sender: c.Self, Target: parentReq.Sender, Type: mdomain.MsgSignoffParentAnswer, EventID: c.IDs.NextEventID(), RefEventID: evID}
	_ = c.Procs.Remove(algorithm.LeaveKey(evID))
	return c.Sender.Send(ctx, parentReq.Sender, ans, mdomain.SignoffParentAnswer{Successful: true})
}

// HandleLockNeighborRequest grants the lock unless this node is
// already participating in another leave chain.
func (Default) HandleLockNeighborRequest(ctx context.Context, c *algorithm.Context, from mdomain.Header) error {
	locked := c.Procs.Has(algorithm.LeaveKey(0))
	h := mdomain.Header{Sender: c.Self, Target: from.Sender, Type: mdomain.MsgLockNeighborResponse, EventID: c.IDs.NextEventID(), RefEventID: from.EventID}
	return c.Sender.Send(ctx, from.Sender, h, mdomain.LockNeighborResponse{Successful: !locked})
}

// HandleLockNeighborResponse drives the right-then-left sequence and,
// on full success, removes the leaving child and counts RemoveNeighbor
// acks before answering the leaving node (§4.5 steps (2)/(3)).
func (Default) HandleLockNeighborResponse(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.LockNeighborResponse) error {
	if !payload.Successful {
		_ = c.Procs.Remove(algorithm.LeaveKey(from.RefEventID))
		return fmt.Errorf("%w: neighbor refused lock", mdomain.ErrLockRejected)
	}
	v, err := c.Procs.Load(algorithm.LeaveKey(from.RefEventID))
	if err != nil {
		return err
	}
	state := v.(procinfo.LeaveState)
	if !state.LockedRight {
		state.LockedRight = true
		_ = c.Procs.Update(algorithm.LeaveKey(from.RefEventID), state)
		left, hasLeft := c.Routing.DirectLeftNeighbor()
		if !hasLeft {
			return finalizeLockedSignoff(ctx, c, from.RefEventID)
		}
		h := mdomain.Header{Sender: c.Self, Target: left, Type: mdomain.MsgLockNeighborRequest, EventID: c.IDs.NextEventID(), RefEventID: from.RefEventID}
		return c.Sender.Send(ctx, left, h, mdomain.LockNeighborRequest{})
	}
	state.LockedLeft = true
	_ = c.Procs.Update(algorithm.LeaveKey(from.RefEventID), state)
	return finalizeLockedSignoff(ctx, c, from.RefEventID)
}

func finalizeLockedSignoff(ctx context.Context, c *algorithm.Context, evID uint64) error {
	_ = c.Procs.Remove(algorithm.LeaveKey(evID))
	return nil
}

// HandleSignoffParentAnswer runs at the leaving node: on success it
// signs off from its own symmetric neighbors and adjacents; on failure
// it arms SelfDepartureRetry, whose expiry returns it to Connected and
// restarts the leave.
func (d Default) HandleSignoffParentAnswer(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.SignoffParentAnswer) error {
	if !payload.Successful {
		c.Timers.Arm(fsm.TimeoutSelfDepartureRetry, from.RefEventID, func() {
			_ = c.FSM.Accept(fsm.EventTimeout{Kind: fsm.TimeoutSelfDepartureRetry})
			_ = d.StartLeave(ctx, c)
		})
		return nil
	}
	if err := c.FSM.Accept(fsm.EventReceiveMsg{Type: mdomain.MsgSignoffParentAnswer}); err != nil {
		return err
	}

	for _, n := range c.Routing.AllSymmetricNeighbors() {
		h := mdomain.Header{Sender: c.Self, Target: n, Type: mdomain.MsgRemoveNeighbor, EventID: c.IDs.NextEventID(), RefEventID: from.RefEventID}
		if err := c.Sender.Send(ctx, n, h, mdomain.RemoveNeighbor{Removed: c.Self, Ack: true}); err != nil {
			c.Logger.Warn("leave: signoff RemoveNeighbor failed")
		}
	}
	// Each RemoveNeighborAck that comes back is handed by internal/mnode's
	// dispatcher straight to the FSM; the acks are not counted and
	// FinishLeave is not called from there.
	return nil
}

// FinishLeave unlocks the parent, resets position and returns to Idle.
// No code path in this repository calls it.
func (Default) FinishLeave(ctx context.Context, c *algorithm.Context, parent mdomain.NodeRef, evID uint64) error {
	h := mdomain.Header{Sender: c.Self, Target: parent, Type: mdomain.MsgUnlockNeighbor, EventID: c.IDs.NextEventID(), RefEventID: evID}
	_ = c.Sender.Send(ctx, parent, h, mdomain.UnlockNeighbor{})
	c.Routing.ResetPosition(evID)
	return c.FSM.Accept(fsm.EventReceiveMsg{Type: mdomain.MsgRemoveNeighborAck})
}

// HandleFindReplacement implements §4.6 step (1): route toward a leaf
// successor by descending into the first initialized child. A
// FindReplacement carrying DoesNotNeedReplacement is dropped; nothing
// downgrades the leave to leave-without-replacement here.
func (Default) HandleFindReplacement(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.FindReplacement) error {
	if payload.DoesNotNeedReplacement {
		return nil // dropped without further action
	}
	children := c.Routing.Children()
	for _, child := range children {
		if child.IsInitialized() {
			h := mdomain.Header{Sender: c.Self, Target: child, Type: mdomain.MsgFindReplacement, EventID: from.EventID, RefEventID: from.EventID}
			return c.Sender.Send(ctx, child, h, payload)
		}
	}
	// Leaf reached: this node is the successor. Run prepareLeavingAsSuccessor.
	if c.Procs.Has(algorithm.LeaveKey(0)) || c.FSM.State() == fsm.ConnectedReplacing {
		h := mdomain.Header{Sender: c.Self, Target: from.Sender, Type: mdomain.MsgReplacementNack, EventID: c.IDs.NextEventID(), RefEventID: from.EventID}
		return c.Sender.Send(ctx, from.Sender, h, mdomain.ReplacementNack{})
	}
	evID := c.IDs.NextEventID()
	if err := c.Procs.Save(algorithm.FindReplacementKey(evID), procinfo.FindReplacementState{EventID: evID, NodeToReplace: payload.NodeToReplace}); err != nil {
		return err
	}
	parent := c.Routing.Parent()
	if !parent.IsValidPeer() {
		return fmt.Errorf("%w: successor candidate has no parent to sign off from", mdomain.ErrFSM)
	}
	h := mdomain.Header{Sender: c.Self, Target: parent, Type: mdomain.MsgSignoffParentRequest, EventID: evID}
	return c.Sender.Send(ctx, parent, h, mdomain.SignoffParentRequest{})
}

// HandleReplacementOffer runs at the leaving node: reply with all
// known neighbors, then reset its own position. The Locked,
// LockedRight and LockedLeft fields of the ack are left false.
func (Default) HandleReplacementOffer(ctx context.Context, c *algorithm.Context, from mdomain.Header) error {
	if err := c.FSM.Accept(fsm.EventReceiveMsg{Type: mdomain.MsgReplacementOffer}); err != nil {
		return err
	}
	ack := mdomain.ReplacementAck{Neighbors: c.Routing.AllKnownNeighbors()}
	h := mdomain.Header{Sender: c.Self, Target: from.Sender, Type: mdomain.MsgReplacementAck, EventID: c.IDs.NextEventID(), RefEventID: from.EventID}
	if err := c.Sender.Send(ctx, from.Sender, h, ack); err != nil {
		return err
	}
	c.Routing.ResetPosition(from.EventID)
	return nil
}

// HandleReplacementAck runs at the successor: adopts the leaving
// node's position, reconstructs routing info, and begins the
// ReplacementUpdate broadcast (§4.6 step (5)).
func (Default) HandleReplacementAck(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.ReplacementAck) error {
	v, err := c.Procs.Load(algorithm.FindReplacementKey(from.RefEventID))
	if err != nil {
		return err
	}
	state := v.(procinfo.FindReplacementState)
	_ = c.Procs.Remove(algorithm.FindReplacementKey(from.RefEventID))

	oldPos := c.Self.Logical
	if err := c.Routing.SetPosition(state.NodeToReplace.Pos); err != nil {
		return err
	}
	for _, n := range payload.Neighbors {
		_ = c.Routing.UpdateNeighbor(n)
	}
	if err := c.FSM.Accept(fsm.EventReceiveMsg{Type: mdomain.MsgReplacementAck}); err != nil {
		return err
	}

	update := mdomain.ReplacementUpdate{Removed: state.NodeToReplace, Replaced: oldPos, NewLogicalID: c.Self.Logical.UUID}
	for _, n := range c.Routing.AllSymmetricNeighbors() {
		h := mdomain.Header{Sender: c.Self, Target: n, Type: mdomain.MsgReplacementUpdate, EventID: c.IDs.NextEventID(), RefEventID: from.RefEventID}
		if err := c.Sender.Send(ctx, n, h, update); err != nil {
			c.Logger.Warn("leave: ReplacementUpdate broadcast failed")
		}
	}
	return nil
}
