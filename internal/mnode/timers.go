package mnode

import (
	"sync"
	"sync/atomic"
	"time"

	"minhton/internal/fsm"
)

// watchdog is the in-memory timer set of spec.md §5: "watchdog/timer
// set (ditto, owned by the node, never shared)." Each timer kind
// carries its own default duration, overridable via configuration.
type watchdog struct {
	mu      sync.Mutex
	timers  map[timerKey]*time.Timer
	lengths map[fsm.TimeoutKind]time.Duration
}

type timerKey struct {
	kind fsm.TimeoutKind
	ref  uint64
}

func defaultTimeoutLengths() map[fsm.TimeoutKind]time.Duration {
	return map[fsm.TimeoutKind]time.Duration{
		fsm.TimeoutBootstrapResponse:        500 * time.Millisecond,
		fsm.TimeoutJoinAcceptResponse:       1 * time.Second,
		fsm.TimeoutJoinAcceptAckResponse:    1 * time.Second,
		fsm.TimeoutReplacementOfferResponse: 1 * time.Second,
		fsm.TimeoutReplacementAckResponse:   1 * time.Second,
		fsm.TimeoutDsnAggregation:           500 * time.Millisecond,
		fsm.TimeoutInquiryAggregation:       300 * time.Millisecond,
		fsm.TimeoutSelfDepartureRetry:       1 * time.Second,
		fsm.TimeoutJoinRetry:                2 * time.Second,
	}
}

func newWatchdog(overrides map[fsm.TimeoutKind]time.Duration) *watchdog {
	lengths := defaultTimeoutLengths()
	for k, v := range overrides {
		lengths[k] = v
	}
	return &watchdog{timers: make(map[timerKey]*time.Timer), lengths: lengths}
}

// Arm starts (or restarts) the timer for (kind, refEventID), firing fn
// on its own goroutine — the caller is responsible for re-entering the
// node's single-threaded event loop (e.g. via a channel send) rather
// than mutating node state directly from fn.
func (w *watchdog) Arm(kind fsm.TimeoutKind, refEventID uint64, fn func()) {
	key := timerKey{kind: kind, ref: refEventID}
	d := w.lengths[kind]
	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.timers[key]; ok {
		existing.Stop()
	}
	w.timers[key] = time.AfterFunc(d, fn)
}

// Cancel stops and forgets the timer for (kind, refEventID), a no-op
// if none is armed.
func (w *watchdog) Cancel(kind fsm.TimeoutKind, refEventID uint64) {
	key := timerKey{kind: kind, ref: refEventID}
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[key]; ok {
		t.Stop()
		delete(w.timers, key)
	}
}

// StopAll cancels every outstanding timer, used on node shutdown.
func (w *watchdog) StopAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for k, t := range w.timers {
		t.Stop()
		delete(w.timers, k)
	}
}

// idGenerator implements algorithm.IDs with a monotonically
// increasing per-node counter, matching spec.md §5's "event_id (fresh
// per initiating action)".
type idGenerator struct{ next uint64 }

func (g *idGenerator) NextEventID() uint64 { return atomic.AddUint64(&g.next, 1) }
