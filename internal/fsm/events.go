package fsm

import (
	"fmt"

	"minhton/internal/mdomain"
)

// Event is the common interface for everything the FSM accepts: tagged
// sums over Signal, SendMsg, ReceiveMsg, and Timeout (spec.md §4.3).
// tag() encodes exactly the guard-relevant bits of the event so the
// transition table can be a flat map keyed by (State, tag).
type Event interface {
	tag() string
}

// JoinMode selects which guard applies to a JoinNetwork signal.
type JoinMode uint8

const (
	JoinViaBootstrap JoinMode = iota
	JoinViaAddress
	JoinViaNodeInfo
)

func (m JoinMode) String() string {
	switch m {
	case JoinViaBootstrap:
		return "ViaBootstrap"
	case JoinViaAddress:
		return "ViaAddress"
	case JoinViaNodeInfo:
		return "ViaNodeInfo"
	default:
		return "Unknown"
	}
}

// SignalJoinNetwork is emitted by the application (or by start()) to
// begin joining the overlay.
type SignalJoinNetwork struct {
	Mode    JoinMode
	Address mdomain.PhysicalAddress // set iff Mode == JoinViaAddress
	Seed    mdomain.NodeRef         // set iff Mode == JoinViaNodeInfo
}

func (s SignalJoinNetwork) tag() string { return fmt.Sprintf("Signal:Join:%s", s.Mode) }

// SignalLeaveNetwork is emitted by the application (or by stop()) to
// begin leaving the overlay gracefully.
type SignalLeaveNetwork struct {
	CanLeaveWithoutReplacement bool
}

func (s SignalLeaveNetwork) tag() string {
	return fmt.Sprintf("Signal:Leave:can_leave=%v", s.CanLeaveWithoutReplacement)
}

// EventSendMsg fires right before a message of Type is sent, letting
// the FSM move into a "waiting for response" state atomically with the
// send (spec.md's "Connected + Send(JoinAccept) -> ConnectedAcceptingChild").
type EventSendMsg struct {
	Type mdomain.MsgType
}

func (e EventSendMsg) tag() string { return "Send:" + e.Type.String() }

// EventReceiveMsg fires when a message of Type arrives.
// DoesNotNeedReplacement is only meaningful for MsgFindReplacement,
// matching spec.md §4.6 step (1).
type EventReceiveMsg struct {
	Type                   mdomain.MsgType
	DoesNotNeedReplacement bool
}

func (e EventReceiveMsg) tag() string { return "Recv:" + e.Type.String() }

// TimeoutKind enumerates the fixed set of timer kinds named in spec.md §5.
type TimeoutKind uint8

const (
	TimeoutBootstrapResponse TimeoutKind = iota
	TimeoutJoinAcceptResponse
	TimeoutJoinAcceptAckResponse
	TimeoutReplacementOfferResponse
	TimeoutReplacementAckResponse
	TimeoutDsnAggregation
	TimeoutInquiryAggregation
	TimeoutSelfDepartureRetry
	TimeoutJoinRetry
)

func (k TimeoutKind) String() string {
	names := [...]string{
		"BootstrapResponse", "JoinAcceptResponse", "JoinAcceptAckResponse",
		"ReplacementOfferResponse", "ReplacementAckResponse", "DsnAggregation",
		"InquiryAggregation", "SelfDepartureRetry", "JoinRetry",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("TimeoutKind(%d)", k)
}

// EventTimeout fires when an armed timer of Kind expires.
// ValidBootstrapResponse is only meaningful for TimeoutBootstrapResponse
// (true iff at least one BootstrapResponse arrived before the timer
// fired, per spec.md §4.4 step (1)).
type EventTimeout struct {
	Kind                    TimeoutKind
	ValidBootstrapResponse bool
}

func (e EventTimeout) tag() string {
	if e.Kind == TimeoutBootstrapResponse {
		return fmt.Sprintf("Timeout:%s:valid=%v", e.Kind, e.ValidBootstrapResponse)
	}
	return "Timeout:" + e.Kind.String()
}
