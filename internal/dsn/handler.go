package dsn

import (
	"sync"
	"time"

	"minhton/internal/logger"
	"minhton/internal/mdomain"
	"minhton/internal/position"
)

// CoverEntry is one cached node's attribute state inside a DSN's cover
// area (spec.md §4.9 step (3)): either fully answered, partially known,
// or entirely undecided.
type CoverEntry struct {
	Node       mdomain.NodeRef
	Attributes map[string]mdomain.Attribute
	Decided    bool // true once every attribute this DSN cares about is known
}

// subscriptionCounters tracks the timestamp-based frequency bookkeeping
// of spec.md §4.9's last paragraph: how often an attribute is queried,
// versus how often its owning peer updates it.
type subscriptionCounters struct {
	queryCount  int
	updateCount int
	subscribed  bool
}

// Handler is the per-node DSN role: cover-area cache plus subscription
// optimization. A node only exercises this when it is acting as a DSN
// (RoutingInformation.AmIDSN()); other nodes construct a Handler too
// (cheap, empty) so algorithm code does not need a nil check.
type Handler struct {
	topo position.Topology

	mu    sync.Mutex
	cover map[position.Position]*CoverEntry
	freq  map[string]*subscriptionCounters // keyed by attribute key

	lgr logger.Logger

	// subscribeThreshold is the ratio of query count to update count
	// above which a SubscriptionOrder is issued (spec.md: "frequently
	// queried" vs. "updates less often than queried").
	subscribeThreshold float64
}

// Option configures a Handler at construction.
type Option func(*Handler)

// WithLogger sets the logger used for structured diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.lgr = l
		}
	}
}

// WithSubscribeThreshold overrides the default query/update ratio (3:1)
// used to decide when to push a SubscriptionOrder.
func WithSubscribeThreshold(ratio float64) Option {
	return func(h *Handler) { h.subscribeThreshold = ratio }
}

// NewHandler creates an empty DSN cover-area cache.
func NewHandler(topo position.Topology, opts ...Option) *Handler {
	h := &Handler{
		topo:               topo,
		cover:              make(map[position.Position]*CoverEntry),
		freq:               make(map[string]*subscriptionCounters),
		lgr:                &logger.NopLogger{},
		subscribeThreshold: 3.0,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ResetCover clears the cover cache; it does not seed it with the
// positions of the cover area. Entries are added by SeedCover and by
// ApplyInquiryAnswer.
func (h *Handler) ResetCover(self position.Position) {
	// cover membership is not computed here, and no code outside this
	// package's tests calls SeedCover; ResetCover only clears stale
	// state between rounds.
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cover = make(map[position.Position]*CoverEntry)
}

// SeedCover marks pos as a member of the current cover area, undecided
// until an inquiry answer (or local knowledge, for self) fills it in.
func (h *Handler) SeedCover(pos position.Position, known mdomain.NodeRef) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cover[pos] = &CoverEntry{Node: known, Attributes: make(map[string]mdomain.Attribute)}
}

// ApplyInquiryAnswer merges an AttributeInquiryAnswer into the cover
// cache (spec.md §4.9 step (3)), marking the answering position decided.
func (h *Handler) ApplyInquiryAnswer(pos position.Position, ans mdomain.AttributeInquiryAnswer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.cover[pos]
	if !ok {
		entry = &CoverEntry{Node: ans.InquiredNode, Attributes: make(map[string]mdomain.Attribute)}
		h.cover[pos] = entry
	}
	for _, a := range ans.AttributeValues {
		entry.Attributes[a.Key] = a
	}
	for _, k := range ans.RemovedAttributeKeys {
		delete(entry.Attributes, k)
	}
	entry.Decided = true
	h.lgr.Debug("dsn: cover entry decided", logger.F("level", pos.Level), logger.F("number", pos.Number))
}

// UndecidedPositions returns the cover positions that still need an
// AttributeInquiryRequest sent.
func (h *Handler) UndecidedPositions() []position.Position {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []position.Position
	for pos, e := range h.cover {
		if !e.Decided {
			out = append(out, pos)
		}
	}
	return out
}

// Evaluate runs query (spec.md's LocalStore.Satisfies syntax) over every
// decided cover entry and returns the fulfilling nodes with the
// attribute values that satisfied it.
func (h *Handler) Evaluate(query string) []mdomain.FulfillingNode {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []mdomain.FulfillingNode
	key, want, hasValue := splitQuery(query)
	for _, e := range h.cover {
		a, ok := e.Attributes[key]
		if !ok {
			continue
		}
		if hasValue && a.Value != want {
			continue
		}
		out = append(out, mdomain.FulfillingNode{Node: e.Node, Attributes: []mdomain.Attribute{a}})
	}
	return out
}

// RecordQuery bumps the per-attribute request-frequency counter, used
// by the subscription-optimization heuristic.
func (h *Handler) RecordQuery(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.counters(key)
	c.queryCount++
}

// RecordUpdate bumps the update-frequency counter for key, fed by
// SubscriptionUpdate messages or local observation of AttributeInquiryAnswer
// changes over time.
func (h *Handler) RecordUpdate(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.counters(key)
	c.updateCount++
}

func (h *Handler) counters(key string) *subscriptionCounters {
	c, ok := h.freq[key]
	if !ok {
		c = &subscriptionCounters{}
		h.freq[key] = c
	}
	return c
}

// ShouldSubscribe reports whether key has crossed the query/update
// ratio that warrants issuing a SubscriptionOrder, and is not already
// subscribed. Calling MarkSubscribed marks it so the decision is made once.
func (h *Handler) ShouldSubscribe(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.freq[key]
	if !ok || c.subscribed || c.updateCount == 0 {
		return ok && !c.subscribed && c.queryCount > 0 && c.updateCount == 0
	}
	return float64(c.queryCount)/float64(c.updateCount) >= h.subscribeThreshold
}

// ShouldUnsubscribe reports the inverse: update frequency has overtaken
// query frequency for an already-subscribed attribute.
func (h *Handler) ShouldUnsubscribe(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.freq[key]
	if !ok || !c.subscribed {
		return false
	}
	return c.updateCount > 0 && float64(c.queryCount)/float64(c.updateCount) < 1.0
}

// MarkSubscribed/MarkUnsubscribed flip the subscribed flag once the
// corresponding SubscriptionOrder/implicit-unsubscribe has actually
// been sent, so ShouldSubscribe/ShouldUnsubscribe don't fire twice.
func (h *Handler) MarkSubscribed(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counters(key).subscribed = true
}

func (h *Handler) MarkUnsubscribed(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counters(key).subscribed = false
}

// AggregationWindow is the default InquiryAggregationTimeout duration;
// overridable per-deployment via configuration (SPEC_FULL.md §A.3).
const AggregationWindow = 300 * time.Millisecond
