// Package response implements the Response algorithm category: the
// generic routing-information maintenance messages that are not part
// of a specific Join/Leave/Search handshake (RemoveNeighbor,
// UpdateNeighbors, GetNeighbors, InformAboutNeighbors,
// ReplacementUpdate propagation, SubscriptionOrder/Update), plus the
// passive-forwarding window of spec.md §4.7.
package response

import (
	"context"
	"fmt"

	"minhton/internal/algorithm"
	"minhton/internal/mdomain"
)

// Strategy is the pluggable Response algorithm.
type Strategy interface {
	HandleRemoveNeighbor(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.RemoveNeighbor) error
	HandleUpdateNeighbors(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.UpdateNeighbors) error
	HandleRemoveAndUpdateNeighbors(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.RemoveAndUpdateNeighbors) error
	HandleGetNeighbors(ctx context.Context, c *algorithm.Context, from mdomain.Header) error
	HandleInformAboutNeighbors(c *algorithm.Context, payload mdomain.InformAboutNeighbors)
	HandleReplacementUpdate(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.ReplacementUpdate) error
	HandleSubscriptionOrder(c *algorithm.Context, from mdomain.Header, payload mdomain.SubscriptionOrder)
	HandleSubscriptionUpdate(c *algorithm.Context, payload mdomain.SubscriptionUpdate)
}

// Default implements the Response category in the teacher's
// direct-apply style: each maintenance message is applied to
// RoutingInformation and, where requested, acknowledged.
type Default struct {
	// ReplacingNode, when non-empty, is this node's passive-forwarding
	// target (§4.7). No code in this repository sets it, so while it
	// stays empty nothing is forwarded.
	ReplacingNode mdomain.NodeRef
}

func (d *Default) HandleRemoveNeighbor(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.RemoveNeighbor) error {
	if d.forwardIfReplacing(ctx, c, from, mdomain.MsgRemoveNeighbor, payload) {
		return nil
	}
	if err := c.Routing.RemoveNeighbor(payload.Removed); err != nil {
		return err
	}
	if payload.Ack {
		h := mdomain.Header{Sender: c.Self, Target: from.Sender, Type: mdomain.MsgRemoveNeighborAck, EventID: c.IDs.NextEventID(), RefEventID: from.EventID}
		return c.Sender.Send(ctx, from.Sender, h, mdomain.RemoveNeighborAck{})
	}
	return nil
}

func (Default) HandleUpdateNeighbors(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.UpdateNeighbors) error {
	for _, nu := range payload.Neighbors {
		if err := c.Routing.UpdateNeighbor(nu.Node); err != nil {
			c.Logger.Warn("response: UpdateNeighbors apply failed")
		}
	}
	if payload.Ack {
		h := mdomain.Header{Sender: c.Self, Target: from.Sender, Type: mdomain.MsgRemoveNeighborAck, EventID: c.IDs.NextEventID(), RefEventID: from.EventID}
		return c.Sender.Send(ctx, from.Sender, h, mdomain.RemoveNeighborAck{})
	}
	return nil
}

func (d *Default) HandleRemoveAndUpdateNeighbors(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.RemoveAndUpdateNeighbors) error {
	if err := d.HandleRemoveNeighbor(ctx, c, from, payload.Remove); err != nil {
		return err
	}
	return d.HandleUpdateNeighbors(ctx, c, from, payload.Update)
}

func (Default) HandleGetNeighbors(ctx context.Context, c *algorithm.Context, from mdomain.Header) error {
	h := mdomain.Header{Sender: c.Self, Target: from.Sender, Type: mdomain.MsgInformAboutNeighbors, EventID: c.IDs.NextEventID(), RefEventID: from.EventID}
	return c.Sender.Send(ctx, from.Sender, h, mdomain.InformAboutNeighbors{Neighbors: c.Routing.AllKnownNeighbors()})
}

func (Default) HandleInformAboutNeighbors(c *algorithm.Context, payload mdomain.InformAboutNeighbors) {
	for _, n := range payload.Neighbors {
		_ = c.Routing.UpdateNeighbor(n)
	}
}

// HandleReplacementUpdate applies §4.6 step (5)'s forwarding rule: if
// this node was the old parent of the removed position, it forwards
// the same update to all of its RT neighbors so they refresh their
// RT-neighbor-child entries.
func (d *Default) HandleReplacementUpdate(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.ReplacementUpdate) error {
	if d.forwardIfReplacing(ctx, c, from, mdomain.MsgReplacementUpdate, payload) {
		return nil
	}
	removedParent, perr := c.Topology.Parent(payload.Removed.Pos)
	wasParent := perr == nil && removedParent == c.Routing.Self().Logical.Pos
	if err := c.Routing.ResetChildOrRoutingTableNeighborChild(mdomain.NodeRef{
		Logical: payload.Replaced, Status: mdomain.StatusRunning,
	}); err != nil {
		c.Logger.Debug("response: ReplacementUpdate apply produced no-op")
	}
	ack := mdomain.Header{Sender: c.Self, Target: from.Sender, Type: mdomain.MsgRemoveNeighborAck, EventID: c.IDs.NextEventID(), RefEventID: from.EventID}
	if err := c.Sender.Send(ctx, from.Sender, ack, mdomain.RemoveNeighborAck{}); err != nil {
		return err
	}
	if !wasParent {
		return nil
	}
	for _, n := range c.Routing.InitializedRTNeighbors() {
		h := mdomain.Header{Sender: c.Self, Target: n, Type: mdomain.MsgReplacementUpdate, EventID: c.IDs.NextEventID(), RefEventID: from.RefEventID}
		if err := c.Sender.Send(ctx, n, h, payload); err != nil {
			c.Logger.Warn("response: ReplacementUpdate RT forward failed")
		}
	}
	return nil
}

func (Default) HandleSubscriptionOrder(c *algorithm.Context, from mdomain.Header, payload mdomain.SubscriptionOrder) {
	// The order is neither recorded nor acted on: no SubscriptionUpdate
	// is sent when the attribute later changes (internal/mnode's store
	// change callback sends nothing).
}

func (Default) HandleSubscriptionUpdate(c *algorithm.Context, payload mdomain.SubscriptionUpdate) {
	c.DSN.RecordUpdate(payload.Key)
}

// forwardIfReplacing implements spec.md §4.7: while acting as a
// passive forwarder, only AttributeInquiryRequest, AttributeInquiryAnswer,
// and SignoffParentRequest forward; everything else in this narrow set
// (RemoveNeighbor, ReplacementUpdate) is explicitly out of scope for
// forwarding and is instead applied locally as a best-effort fallback
// rather than raising "forwarding not handled yet" for traffic that
// must still make progress.
func (d *Default) forwardIfReplacing(ctx context.Context, c *algorithm.Context, from mdomain.Header, msgType mdomain.MsgType, payload any) bool {
	if !d.ReplacingNode.IsValidPeer() {
		return false
	}
	switch msgType {
	case mdomain.MsgAttributeInquiryRequest, mdomain.MsgAttributeInquiryAnswer, mdomain.MsgSignoffParentRequest:
		h := from
		h.Sender = c.Self
		h.Target = d.ReplacingNode
		_ = c.Sender.Send(ctx, d.ReplacingNode, h, payload)
		return true
	default:
		return false
	}
}

// ErrForwardingNotHandled names the "forwarding not handled yet"
// condition of spec.md §4.7. No handler returns it: message types
// outside the forwarded set are applied locally (see forwardIfReplacing).
var ErrForwardingNotHandled = fmt.Errorf("%w: forwarding not handled yet", mdomain.ErrFSM)
