// Package fsm implements the per-node finite state machine of spec.md
// §4.3: an explicit transition table over (Signal, SendMsg, ReceiveMsg,
// Timeout) events. The FSM never reaches into RoutingInformation or
// ProcedureInfo — it only tracks which state the node's event loop is
// in and whether a given event is legal in that state; side effects
// (arming timers, sending messages, mutating routing info) are the
// caller's (internal/mnode and internal/algorithm) responsibility.
package fsm

import (
	"fmt"

	"minhton/internal/logger"
	"minhton/internal/mdomain"
)

// State is one of the per-node lifecycle states of spec.md §3.
type State uint8

const (
	Idle State = iota
	WaitForBootstrapResponse
	WaitForJoinAccept
	JoinFailed
	Connected
	ConnectedAcceptingChild
	ConnectedWaitingParentResponse
	ConnectedWaitingParentResponseDirectLeaveWoReplacement
	SignOffFromInlevelNeighbors
	SignOffFromInlevelNeighborsDirectLeaveWoReplacement
	ConnectedReplacing
	WaitForReplacementOffer
	ErrorState
)

func (s State) String() string {
	names := [...]string{
		"Idle", "WaitForBootstrapResponse", "WaitForJoinAccept", "JoinFailed",
		"Connected", "ConnectedAcceptingChild", "ConnectedWaitingParentResponse",
		"ConnectedWaitingParentResponseDirectLeaveWoReplacement",
		"SignOffFromInlevelNeighbors", "SignOffFromInlevelNeighborsDirectLeaveWoReplacement",
		"ConnectedReplacing", "WaitForReplacementOffer", "ErrorState",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// transitionKey is a (state, event-tag) pair: the flattened lookup key
// for the transition table.
type transitionKey struct {
	from State
	tag  string
}

// FSM is the per-node state machine. It is single-threaded with
// respect to its own node (spec.md §4.3) — callers must not invoke
// Accept concurrently for the same FSM instance; the enclosing Node
// event loop enforces this by construction.
type FSM struct {
	state State
	table map[transitionKey]State
	lgr   logger.Logger
}

// Option configures an FSM at construction.
type Option func(*FSM)

// WithLogger sets the logger used for structured diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(f *FSM) {
		if l != nil {
			f.lgr = l
		}
	}
}

// New creates an FSM starting in Idle, with the transition table of
// spec.md §4.3 (extended to completeness per SPEC_FULL.md §C: ErrorState
// is re-enterable via a fresh join signal).
func New(opts ...Option) *FSM {
	f := &FSM{
		state: Idle,
		table: buildTable(),
		lgr:   &logger.NopLogger{},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// State returns the current state.
func (f *FSM) State() State { return f.state }

func key(s State, e Event) transitionKey { return transitionKey{from: s, tag: e.tag()} }

func t(table map[transitionKey]State, from State, e Event, to State) {
	table[key(from, e)] = to
}

func buildTable() map[transitionKey]State {
	m := make(map[transitionKey]State)

	// -- Join, via bootstrap --------------------------------------
	t(m, Idle, SignalJoinNetwork{Mode: JoinViaBootstrap}, WaitForBootstrapResponse)
	t(m, ErrorState, SignalJoinNetwork{Mode: JoinViaBootstrap}, WaitForBootstrapResponse)
	t(m, WaitForBootstrapResponse, EventTimeout{Kind: TimeoutBootstrapResponse, ValidBootstrapResponse: true}, WaitForJoinAccept)
	t(m, WaitForBootstrapResponse, EventTimeout{Kind: TimeoutBootstrapResponse, ValidBootstrapResponse: false}, ErrorState)

	// -- Join, via direct address or seed NodeRef ------------------
	t(m, Idle, SignalJoinNetwork{Mode: JoinViaAddress}, WaitForJoinAccept)
	t(m, Idle, SignalJoinNetwork{Mode: JoinViaNodeInfo}, WaitForJoinAccept)
	t(m, ErrorState, SignalJoinNetwork{Mode: JoinViaAddress}, WaitForJoinAccept)
	t(m, ErrorState, SignalJoinNetwork{Mode: JoinViaNodeInfo}, WaitForJoinAccept)

	// -- Join acceptance (entering-node side) ----------------------
	t(m, WaitForJoinAccept, EventTimeout{Kind: TimeoutJoinAcceptResponse}, JoinFailed)
	t(m, JoinFailed, EventTimeout{Kind: TimeoutJoinRetry}, WaitForJoinAccept)
	t(m, WaitForJoinAccept, EventReceiveMsg{Type: mdomain.MsgJoinAccept}, Connected)

	// -- Join acceptance (accepting-node side) ---------------------
	t(m, Connected, EventSendMsg{Type: mdomain.MsgJoinAccept}, ConnectedAcceptingChild)
	t(m, ConnectedAcceptingChild, EventReceiveMsg{Type: mdomain.MsgJoinAcceptAck}, Connected)
	t(m, ConnectedAcceptingChild, EventTimeout{Kind: TimeoutJoinAcceptAckResponse}, Connected)

	// -- Leave without replacement ----------------------------------
	t(m, Connected, SignalLeaveNetwork{CanLeaveWithoutReplacement: true}, ConnectedWaitingParentResponseDirectLeaveWoReplacement)
	t(m, ConnectedWaitingParentResponseDirectLeaveWoReplacement, EventReceiveMsg{Type: mdomain.MsgSignoffParentAnswer}, SignOffFromInlevelNeighborsDirectLeaveWoReplacement)
	t(m, SignOffFromInlevelNeighborsDirectLeaveWoReplacement, EventReceiveMsg{Type: mdomain.MsgRemoveNeighborAck}, Idle)
	// Protocol abort (spec.md §7): after a negative SignoffParentAnswer
	// the leaving node keeps waiting until SelfDepartureRetry fires,
	// which returns it to Connected to retry.
	t(m, ConnectedWaitingParentResponseDirectLeaveWoReplacement, EventTimeout{Kind: TimeoutSelfDepartureRetry}, Connected)

	// -- Leave with replacement --------------------------------------
	t(m, Connected, SignalLeaveNetwork{CanLeaveWithoutReplacement: false}, WaitForReplacementOffer)
	t(m, WaitForReplacementOffer, EventReceiveMsg{Type: mdomain.MsgReplacementOffer}, ConnectedWaitingParentResponse)
	t(m, ConnectedWaitingParentResponse, EventReceiveMsg{Type: mdomain.MsgSignoffParentAnswer}, SignOffFromInlevelNeighbors)
	t(m, SignOffFromInlevelNeighbors, EventReceiveMsg{Type: mdomain.MsgRemoveNeighborAck}, Idle)
	t(m, WaitForReplacementOffer, EventReceiveMsg{Type: mdomain.MsgReplacementNack}, WaitForReplacementOffer)
	t(m, WaitForReplacementOffer, EventTimeout{Kind: TimeoutSelfDepartureRetry}, WaitForReplacementOffer)

	// -- Acting as a successor taking over a leaving node's position --
	t(m, Connected, EventSendMsg{Type: mdomain.MsgReplacementOffer}, ConnectedReplacing)
	t(m, ConnectedReplacing, EventReceiveMsg{Type: mdomain.MsgReplacementAck}, Connected)
	t(m, ConnectedReplacing, EventTimeout{Kind: TimeoutReplacementAckResponse}, Connected)

	// -- Bootstrap-discover receive is legal in every state ----------
	for _, s := range allStates() {
		t(m, s, EventReceiveMsg{Type: mdomain.MsgBootstrapDiscover}, s)
	}

	return m
}

func allStates() []State {
	return []State{
		Idle, WaitForBootstrapResponse, WaitForJoinAccept, JoinFailed, Connected,
		ConnectedAcceptingChild, ConnectedWaitingParentResponse,
		ConnectedWaitingParentResponseDirectLeaveWoReplacement,
		SignOffFromInlevelNeighbors, SignOffFromInlevelNeighborsDirectLeaveWoReplacement,
		ConnectedReplacing, WaitForReplacementOffer, ErrorState,
	}
}

// Accept processes event against the current state.
//
// Behavior (spec.md §4.3):
//   - If a transition matches, the state moves and Accept returns nil.
//   - If no transition matches, the state is left untouched and Accept
//     returns mdomain.ErrFSM. The caller decides whether this is a
//     programmer error (critical messages) or benign (non-critical,
//     e.g. a stray ack after a procedure already completed).
//   - A transition into ErrorState never itself returns an error; only
//     an *unmatched* event does.
func (f *FSM) Accept(e Event) error {
	k := key(f.state, e)
	next, ok := f.table[k]
	if !ok {
		f.lgr.Warn("fsm: no transition", logger.F("state", f.state.String()), logger.F("event", e.tag()))
		return fmt.Errorf("%w: state=%s event=%s", mdomain.ErrFSM, f.state, e.tag())
	}
	f.lgr.Debug("fsm: transition", logger.F("from", f.state.String()), logger.F("event", e.tag()), logger.F("to", next.String()))
	f.state = next
	return nil
}

// CanAccept reports whether e would be accepted in the current state,
// without mutating it. Used by guards that need to decide before
// committing to a side effect (e.g. "should I even attempt this send").
func (f *FSM) CanAccept(e Event) bool {
	_, ok := f.table[key(f.state, e)]
	return ok
}
