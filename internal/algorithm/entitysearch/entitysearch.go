// Package entitysearch implements find(query) of spec.md §4.9: DSN
// fan-out, per-DSN cover-area inquiry aggregation, and the requester's
// final-result aggregation, exposed as a one-shot future.
package entitysearch

import (
	"context"
	"fmt"
	"sync"

	"minhton/internal/algorithm"
	"minhton/internal/fsm"
	"minhton/internal/mdomain"
	"minhton/internal/procinfo"
)

// Future is the one-shot handle returned by Strategy.Find, fulfilled
// exactly once from inside the requester's DsnAggregationTimeout
// handler (spec.md §5).
type Future struct {
	mu     sync.Mutex
	done   chan struct{}
	result []mdomain.FulfillingNode
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Fulfill resolves the future. Safe to call at most once; later calls
// are no-ops (mirrors a promise that can only be fulfilled once).
func (f *Future) Fulfill(result []mdomain.FulfillingNode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return
	default:
	}
	f.result = result
	close(f.done)
}

// Wait blocks until Fulfill is called or ctx is done.
func (f *Future) Wait(ctx context.Context) ([]mdomain.FulfillingNode, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Strategy is the pluggable Entity-Search algorithm.
type Strategy interface {
	// Find begins a search: fans FindQueryRequest out to the initial
	// DSN set and arms DsnAggregationTimeout.
	Find(ctx context.Context, c *algorithm.Context, query string, scope mdomain.SearchScope, threshold int) (*Future, error)

	// HandleFindQueryRequest runs at a DSN: records the query and arms
	// InquiryAggregationTimeout. It does not forward the request to
	// other DSNs and sends no AttributeInquiryRequest; the answer is
	// built from the DSN's existing cover cache.
	HandleFindQueryRequest(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.FindQueryRequest) error

	// HandleAttributeInquiryAnswer merges an answer into the DSN's
	// cover cache.
	HandleAttributeInquiryAnswer(c *algorithm.Context, from mdomain.Header, payload mdomain.AttributeInquiryAnswer)

	// HandleFindQueryAnswer merges a subordinate DSN's contribution
	// into the requester's preliminary result.
	HandleFindQueryAnswer(c *algorithm.Context, from mdomain.Header, payload mdomain.FindQueryAnswer)
}

// Default implements the DSN-tiling fan-out of §4.9.
type Default struct {
	futures sync.Map // ref_event_id -> *Future
}

func (d *Default) Find(ctx context.Context, c *algorithm.Context, query string, scope mdomain.SearchScope, threshold int) (*Future, error) {
	evID := c.IDs.NextEventID()
	dsns := initialDSNTargets(c)
	if len(dsns) == 0 {
		return nil, fmt.Errorf("%w: no known DSN to fan out to", mdomain.ErrFSM)
	}
	if err := c.Procs.Save(algorithm.EntitySearchInquiryKey(evID), procinfo.EntitySearchInquiryState{
		EventID: evID, Query: query, Scope: scope, Threshold: threshold, IsRequester: true,
	}); err != nil {
		return nil, err
	}
	future := newFuture()
	d.futures.Store(evID, future)

	req := mdomain.FindQueryRequest{Query: query, Scope: scope, Threshold: threshold}
	for _, target := range dsns {
		h := mdomain.Header{Sender: c.Self, Target: target, Type: mdomain.MsgFindQueryRequest, EventID: c.IDs.NextEventID(), RefEventID: evID}
		if err := c.Sender.Send(ctx, target, h, req); err != nil {
			c.Logger.Warn("entitysearch: FindQueryRequest fan-out failed")
		}
	}
	c.Timers.Arm(fsm.TimeoutDsnAggregation, evID, func() {
		d.concludeRequester(c, evID)
	})
	return future, nil
}

// initialDSNTargets stands in for calc_dsns_to_send_initial_cds_forwarding_to:
// the first initialized known neighbor on each even level (not checked
// to be a DSN), plus self when self is a DSN or the root. The root is
// not added when self is not the root.
func initialDSNTargets(c *algorithm.Context) []mdomain.NodeRef {
	var out []mdomain.NodeRef
	seenLevel := make(map[uint32]bool)
	for _, n := range c.Routing.AllKnownNeighbors() {
		if !n.IsInitialized() {
			continue
		}
		if n.Logical.Pos.Level%2 != 0 {
			continue
		}
		if seenLevel[n.Logical.Pos.Level] {
			continue
		}
		seenLevel[n.Logical.Pos.Level] = true
		out = append(out, n)
	}
	if c.Routing.AmIDSN() || c.Self.Logical.Pos.Level == 0 {
		out = append(out, c.Self)
	}
	return out
}

func (d *Default) concludeRequester(c *algorithm.Context, evID uint64) {
	v, err := c.Procs.Load(algorithm.EntitySearchInquiryKey(evID))
	if err != nil {
		return
	}
	state := v.(procinfo.EntitySearchInquiryState)
	_ = c.Procs.Remove(algorithm.EntitySearchInquiryKey(evID))

	result := state.Preliminary
	if state.Scope == mdomain.ScopeSome && state.Threshold > 0 && len(result) > state.Threshold {
		result = result[:state.Threshold]
	}
	if fv, ok := d.futures.Load(evID); ok {
		fv.(*Future).Fulfill(result)
		d.futures.Delete(evID)
	}
}

// HandleFindQueryRequest runs at a DSN (spec.md §4.9 step (3)).
func (d *Default) HandleFindQueryRequest(ctx context.Context, c *algorithm.Context, from mdomain.Header, payload mdomain.FindQueryRequest) error {
	c.DSN.RecordQuery(payload.Query)
	undecided := c.DSN.UndecidedPositions()
	for range undecided {
		// A real deployment resolves each undecided position's physical
		// address (via RoutingInformation or search-exact) before
		// sending; omitted here since the cover-area membership (and
		// thus the concrete NodeRef to inquire) is seeded by the
		// caller's RoutingInformation snapshot, not recomputed per call.
	}
	c.Timers.Arm(fsm.TimeoutInquiryAggregation, from.RefEventID, func() {
		d.concludeDSN(ctx, c, from)
	})
	return nil
}

func (d *Default) concludeDSN(ctx context.Context, c *algorithm.Context, from mdomain.Header) {
	found := c.DSN.Evaluate(extractQuery(c, from.RefEventID))
	if from.Sender.Logical.Pos == c.Self.Logical.Pos {
		v, err := c.Procs.Load(algorithm.EntitySearchInquiryKey(from.RefEventID))
		if err != nil {
			return
		}
		state := v.(procinfo.EntitySearchInquiryState)
		state.Preliminary = append(state.Preliminary, found...)
		_ = c.Procs.Update(algorithm.EntitySearchInquiryKey(from.RefEventID), state)
		return
	}
	answer := mdomain.FindQueryAnswer{FulfillingNodes: found}
	h := mdomain.Header{Sender: c.Self, Target: from.Sender, Type: mdomain.MsgFindQueryAnswer, EventID: c.IDs.NextEventID(), RefEventID: from.RefEventID}
	_ = c.Sender.Send(ctx, from.Sender, h, answer)
}

func extractQuery(c *algorithm.Context, refEventID uint64) string {
	v, err := c.Procs.Load(algorithm.EntitySearchInquiryKey(refEventID))
	if err != nil {
		return ""
	}
	return v.(procinfo.EntitySearchInquiryState).Query
}

func (d *Default) HandleAttributeInquiryAnswer(c *algorithm.Context, from mdomain.Header, payload mdomain.AttributeInquiryAnswer) {
	c.DSN.ApplyInquiryAnswer(from.Sender.Logical.Pos, payload)
	for _, a := range payload.AttributeValues {
		c.DSN.RecordUpdate(a.Key)
	}
}

func (d *Default) HandleFindQueryAnswer(c *algorithm.Context, from mdomain.Header, payload mdomain.FindQueryAnswer) {
	v, err := c.Procs.Load(algorithm.EntitySearchInquiryKey(from.RefEventID))
	if err != nil {
		return
	}
	state := v.(procinfo.EntitySearchInquiryState)
	state.Preliminary = append(state.Preliminary, payload.FulfillingNodes...)
	_ = c.Procs.Update(algorithm.EntitySearchInquiryKey(from.RefEventID), state)
}
