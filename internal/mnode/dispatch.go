package mnode

import (
	"context"
	"fmt"

	"minhton/internal/fsm"
	"minhton/internal/mdomain"
)

// Deliver implements grpctransport.Handler (and is called directly by
// transport.Loopback): it dispatches an inbound message to the owning
// algorithm category by h.Type, the exhaustive switch spec.md §9
// mandates in place of virtual dispatch.
func (n *Node) Deliver(ctx context.Context, h mdomain.Header, payload any) error {
	switch h.Type {
	case mdomain.MsgBootstrapDiscover:
		return n.bootstrapAlg.HandleBootstrapDiscover(ctx, n.ctx, h)
	case mdomain.MsgBootstrapResponse:
		p, ok := payload.(mdomain.BootstrapResponse)
		if !ok {
			return errWrongPayload(h)
		}
		candidate, accepted := n.bootstrapAlg.HandleBootstrapResponse(ctx, n.ctx, h, p)
		if accepted {
			n.ctx.Timers.Cancel(fsm.TimeoutBootstrapResponse, h.RefEventID)
			return n.joinAlg.HandleBootstrapResponse(ctx, n.ctx, candidate)
		}
		return nil

	case mdomain.MsgJoin:
		return n.joinAlg.HandleJoin(ctx, n.ctx, h, h.Sender)
	case mdomain.MsgJoinAccept:
		p, ok := payload.(mdomain.JoinAccept)
		if !ok {
			return errWrongPayload(h)
		}
		return n.joinAlg.HandleJoinAccept(ctx, n.ctx, h, p)
	case mdomain.MsgJoinAcceptAck:
		return n.joinAlg.HandleJoinAcceptAck(ctx, n.ctx, h)

	case mdomain.MsgRemoveNeighbor:
		p, ok := payload.(mdomain.RemoveNeighbor)
		if !ok {
			return errWrongPayload(h)
		}
		return n.responseAlg.HandleRemoveNeighbor(ctx, n.ctx, h, p)
	case mdomain.MsgRemoveNeighborAck:
		return n.ctx.FSM.Accept(fsm.EventReceiveMsg{Type: mdomain.MsgRemoveNeighborAck})
	case mdomain.MsgUpdateNeighbors:
		p, ok := payload.(mdomain.UpdateNeighbors)
		if !ok {
			return errWrongPayload(h)
		}
		return n.responseAlg.HandleUpdateNeighbors(ctx, n.ctx, h, p)
	case mdomain.MsgRemoveAndUpdateNeighbors:
		p, ok := payload.(mdomain.RemoveAndUpdateNeighbors)
		if !ok {
			return errWrongPayload(h)
		}
		return n.responseAlg.HandleRemoveAndUpdateNeighbors(ctx, n.ctx, h, p)
	case mdomain.MsgReplacementUpdate:
		p, ok := payload.(mdomain.ReplacementUpdate)
		if !ok {
			return errWrongPayload(h)
		}
		return n.responseAlg.HandleReplacementUpdate(ctx, n.ctx, h, p)
	case mdomain.MsgGetNeighbors:
		return n.responseAlg.HandleGetNeighbors(ctx, n.ctx, h)
	case mdomain.MsgInformAboutNeighbors:
		p, ok := payload.(mdomain.InformAboutNeighbors)
		if !ok {
			return errWrongPayload(h)
		}
		n.responseAlg.HandleInformAboutNeighbors(n.ctx, p)
		return nil
	case mdomain.MsgSubscriptionOrder:
		p, ok := payload.(mdomain.SubscriptionOrder)
		if !ok {
			return errWrongPayload(h)
		}
		n.responseAlg.HandleSubscriptionOrder(n.ctx, h, p)
		return nil
	case mdomain.MsgSubscriptionUpdate:
		p, ok := payload.(mdomain.SubscriptionUpdate)
		if !ok {
			return errWrongPayload(h)
		}
		n.responseAlg.HandleSubscriptionUpdate(n.ctx, p)
		return nil

	case mdomain.MsgFindReplacement:
		p, ok := payload.(mdomain.FindReplacement)
		if !ok {
			return errWrongPayload(h)
		}
		return n.leaveAlg.HandleFindReplacement(ctx, n.ctx, h, p)
	case mdomain.MsgReplacementNack:
		return n.ctx.FSM.Accept(fsm.EventReceiveMsg{Type: mdomain.MsgReplacementNack})
	case mdomain.MsgSignoffParentRequest:
		return n.leaveAlg.HandleSignoffParentRequest(ctx, n.ctx, h)
	case mdomain.MsgSignoffParentAnswer:
		p, ok := payload.(mdomain.SignoffParentAnswer)
		if !ok {
			return errWrongPayload(h)
		}
		return n.leaveAlg.HandleSignoffParentAnswer(ctx, n.ctx, h, p)
	case mdomain.MsgLockNeighborRequest:
		return n.leaveAlg.HandleLockNeighborRequest(ctx, n.ctx, h)
	case mdomain.MsgLockNeighborResponse:
		p, ok := payload.(mdomain.LockNeighborResponse)
		if !ok {
			return errWrongPayload(h)
		}
		return n.leaveAlg.HandleLockNeighborResponse(ctx, n.ctx, h, p)
	case mdomain.MsgUnlockNeighbor:
		return n.ctx.FSM.Accept(fsm.EventReceiveMsg{Type: mdomain.MsgUnlockNeighbor})
	case mdomain.MsgReplacementOffer:
		return n.leaveAlg.HandleReplacementOffer(ctx, n.ctx, h)
	case mdomain.MsgReplacementAck:
		p, ok := payload.(mdomain.ReplacementAck)
		if !ok {
			return errWrongPayload(h)
		}
		return n.leaveAlg.HandleReplacementAck(ctx, n.ctx, h, p)

	case mdomain.MsgSearchExact:
		p, ok := payload.(mdomain.SearchExact)
		if !ok {
			return errWrongPayload(h)
		}
		return n.searchExactAlg.Route(ctx, n.ctx, h.Sender, mdomain.LogicalPosition{Pos: h.Target.Logical.Pos}, mdomain.Header{
			Sender: h.Sender, Target: h.Target, Type: p.InnerType, EventID: h.EventID, RefEventID: h.RefEventID,
		}, p.Payload, n.deliverInner)
	case mdomain.MsgSearchExactFailure:
		return n.searchExactAlg.HandleFailure(ctx, n.ctx, h)

	case mdomain.MsgFindQueryRequest:
		p, ok := payload.(mdomain.FindQueryRequest)
		if !ok {
			return errWrongPayload(h)
		}
		return n.entitySearchAlg.HandleFindQueryRequest(ctx, n.ctx, h, p)
	case mdomain.MsgFindQueryAnswer:
		p, ok := payload.(mdomain.FindQueryAnswer)
		if !ok {
			return errWrongPayload(h)
		}
		n.entitySearchAlg.HandleFindQueryAnswer(n.ctx, h, p)
		return nil
	case mdomain.MsgAttributeInquiryRequest:
		p, ok := payload.(mdomain.AttributeInquiryRequest)
		if !ok {
			return errWrongPayload(h)
		}
		return n.handleAttributeInquiryRequest(ctx, h, p)
	case mdomain.MsgAttributeInquiryAnswer:
		p, ok := payload.(mdomain.AttributeInquiryAnswer)
		if !ok {
			return errWrongPayload(h)
		}
		n.entitySearchAlg.HandleAttributeInquiryAnswer(n.ctx, h, p)
		return nil

	case mdomain.MsgEmpty:
		return nil
	default:
		return fmt.Errorf("%w: unhandled message type %s", mdomain.ErrInvalidMessage, h.Type)
	}
}

// deliverInner re-enters Deliver for a payload unwrapped from a
// SearchExact envelope once it reaches its target.
func (n *Node) deliverInner(h mdomain.Header, payload any) error {
	return n.Deliver(context.Background(), h, payload)
}

// handleAttributeInquiryRequest answers a DSN's attribute lookup
// against the local store, the counterpart to entitysearch.Default's
// AttributeInquiryRequest fan-out: InquireAll returns every locally
// held attribute, otherwise only the requested keys (missing ones are
// reported back via RemovedAttributeKeys so the DSN can drop them from
// its cover snapshot).
func (n *Node) handleAttributeInquiryRequest(ctx context.Context, h mdomain.Header, p mdomain.AttributeInquiryRequest) error {
	answer := mdomain.AttributeInquiryAnswer{InquiredNode: n.ctx.Self}
	if p.InquireAll {
		answer.AttributeValues = n.ctx.Store.All()
	} else {
		for _, key := range p.MissingKeys {
			if a, ok := n.ctx.Store.Get(key); ok {
				answer.AttributeValues = append(answer.AttributeValues, a)
			} else {
				answer.RemovedAttributeKeys = append(answer.RemovedAttributeKeys, key)
			}
		}
	}
	out := mdomain.Header{Sender: n.ctx.Self, Target: h.Sender, Type: mdomain.MsgAttributeInquiryAnswer, EventID: n.ctx.IDs.NextEventID(), RefEventID: h.RefEventID}
	return n.ctx.Sender.Send(ctx, h.Sender, out, answer)
}

func errWrongPayload(h mdomain.Header) error {
	return fmt.Errorf("%w: payload type mismatch for %s", mdomain.ErrInvalidMessage, h.Type)
}
