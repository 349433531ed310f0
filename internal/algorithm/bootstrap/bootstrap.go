// Package bootstrap implements the Bootstrap category of spec.md §4.4
// step (1): multicast discovery and the candidate-filtering rule that
// decides whether to answer a BootstrapDiscover.
package bootstrap

import (
	"context"

	"minhton/internal/algorithm"
	"minhton/internal/fsm"
	"minhton/internal/mdomain"
	"minhton/internal/position"
)

// Strategy is the pluggable Bootstrap algorithm.
type Strategy interface {
	// Discover emits BootstrapDiscover over the configured transport
	// (multicast or a register-backed rendezvous) and arms the
	// BootstrapResponseTimeout.
	Discover(ctx context.Context, c *algorithm.Context, send func(mdomain.BootstrapDiscover) error) error

	// HandleBootstrapDiscover runs at every connected node: answers
	// with a candidate iff it has a free child slot in the direction
	// dictated by fill-level-right-to-left.
	HandleBootstrapDiscover(ctx context.Context, c *algorithm.Context, from mdomain.Header) error

	// HandleBootstrapResponse records the first valid candidate.
	HandleBootstrapResponse(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.BootstrapResponse) (mdomain.NodeRef, bool)

	// Timeout runs when BootstrapResponseTimeout fires: valid iff at
	// least one response was recorded.
	Timeout(c *algorithm.Context) error
}

// Default is the multicast-discovery strategy.
type Default struct{}

func (Default) Discover(ctx context.Context, c *algorithm.Context, send func(mdomain.BootstrapDiscover) error) error {
	evID := c.IDs.NextEventID()
	if err := c.FSM.Accept(fsm.SignalJoinNetwork{Mode: fsm.JoinViaBootstrap}); err != nil {
		return err
	}
	c.Timers.Arm(fsm.TimeoutBootstrapResponse, evID, func() {
		valid := c.Procs.Has(algorithm.BootstrapKey(evID))
		_ = c.FSM.Accept(fsm.EventTimeout{Kind: fsm.TimeoutBootstrapResponse, ValidBootstrapResponse: valid})
	})
	return send(mdomain.BootstrapDiscover{DiscoveryMessage: "join-request"})
}

// HandleBootstrapDiscover answers iff this node has a free child slot
// in the direction fill_level_right_to_left(self.level+1) dictates.
func (Default) HandleBootstrapDiscover(ctx context.Context, c *algorithm.Context, from mdomain.Header) error {
	children := c.Routing.Children()
	rightToLeft := position.FillLevelRightToLeft(c.Self.Logical.Pos.Level + 1)
	var hasFree bool
	if rightToLeft {
		hasFree = len(children) > 0 && !children[len(children)-1].IsInitialized()
	} else {
		hasFree = len(children) > 0 && !children[0].IsInitialized()
	}
	if !hasFree {
		return nil
	}
	h := mdomain.Header{Sender: c.Self, Target: from.Sender, Type: mdomain.MsgBootstrapResponse, EventID: c.IDs.NextEventID(), RefEventID: from.EventID}
	return c.Sender.Send(ctx, from.Sender, h, mdomain.BootstrapResponse{NodeToJoin: c.Self})
}

// HandleBootstrapResponse records the first candidate seen for evID;
// later ones are ignored (spec.md: "the first valid response...
// becomes the target").
func (Default) HandleBootstrapResponse(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.BootstrapResponse) (mdomain.NodeRef, bool) {
	key := algorithm.BootstrapKey(from.RefEventID)
	if c.Procs.Has(key) {
		return mdomain.NodeRef{}, false
	}
	_ = c.Procs.Save(key, payload.NodeToJoin)
	return payload.NodeToJoin, true
}

func (Default) Timeout(c *algorithm.Context) error {
	return nil
}
