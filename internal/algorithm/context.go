// Package algorithm defines the pluggable, per-message-category
// strategy interfaces of spec.md §4.4-§4.9 (Join, Leave, Search-Exact,
// Entity-Search, Bootstrap, Response) and the shared Context each
// strategy runs against. Concrete strategies live in the join, leave,
// searchexact, entitysearch, bootstrap, and response subpackages;
// internal/mnode selects and wires one implementation per category,
// matching spec.md §9's "Algorithm polymorphism" design note.
package algorithm

import (
	"context"

	"minhton/internal/dsn"
	"minhton/internal/fsm"
	"minhton/internal/logger"
	"minhton/internal/mdomain"
	"minhton/internal/position"
	"minhton/internal/procinfo"
	"minhton/internal/routinginfo"
)

// Sender is the outbound half of the transport abstraction an
// algorithm needs: deliver a message to a known NodeRef, or route one
// toward a logical position whose physical address may be unknown
// (search-exact substrate, spec.md §4.8).
type Sender interface {
	Send(ctx context.Context, to mdomain.NodeRef, h mdomain.Header, payload any) error
	SendExact(ctx context.Context, target mdomain.LogicalPosition, h mdomain.Header, payload any) error
}

// Timers is the watchdog abstraction of spec.md §5: "every wait is
// encoded as timer arm + state change + return from handler."
type Timers interface {
	Arm(kind fsm.TimeoutKind, refEventID uint64, fn func())
	Cancel(kind fsm.TimeoutKind, refEventID uint64)
}

// IDs generates fresh event ids (spec.md §5's per-event correlation).
type IDs interface {
	NextEventID() uint64
}

// Context bundles everything a strategy implementation is allowed to
// touch. It intentionally exposes the concrete RoutingInformation/
// ProcedureInfo/FSM/dsn types rather than narrower interfaces: the
// teacher's algorithm layer (operation.go/worker.go) does the same,
// reaching directly into routingtable.RoutingTable.
type Context struct {
	Self     mdomain.NodeRef
	Topology position.Topology

	Routing *routinginfo.RoutingInformation
	Procs   *procinfo.ProcedureInfo
	FSM     *fsm.FSM
	Store   *dsn.LocalStore
	DSN     *dsn.Handler

	Sender Sender
	Timers Timers
	IDs    IDs
	Logger logger.Logger
}

// Inbound is one received, already-validated message handed to a
// strategy's Handle method.
type Inbound struct {
	Header  mdomain.Header
	Payload any
}
