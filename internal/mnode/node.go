// Package mnode is the Node composition root: it binds transport, FSM,
// RoutingInformation, ProcedureInfo, the DSN handler/local store, and
// one Strategy implementation per algorithm category into the
// application API of spec.md §6 (start/stop/insert/update/remove/find).
package mnode

import (
	"context"
	"fmt"
	"time"

	"minhton/internal/algorithm"
	"minhton/internal/algorithm/bootstrap"
	"minhton/internal/algorithm/entitysearch"
	"minhton/internal/algorithm/join"
	"minhton/internal/algorithm/leave"
	"minhton/internal/algorithm/response"
	"minhton/internal/algorithm/searchexact"
	"minhton/internal/dsn"
	"minhton/internal/fsm"
	"minhton/internal/logger"
	"minhton/internal/mdomain"
	"minhton/internal/position"
	"minhton/internal/procinfo"
	"minhton/internal/routinginfo"
)

// JoinInfo parameterizes start() (spec.md §6): exactly one of the
// three join modes is set.
type JoinInfo struct {
	AsRoot       bool
	ViaBootstrap bool
	ViaAddress   mdomain.PhysicalAddress
	ViaNodeInfo  mdomain.NodeRef
}

// Node is a single MINHTON participant.
type Node struct {
	ctx      *algorithm.Context
	watchdog *watchdog
	ids      *idGenerator

	joinAlg         join.Strategy
	leaveAlg        *leave.Default
	searchExactAlg  searchexact.Strategy
	entitySearchAlg *entitysearch.Default
	bootstrapAlg    bootstrap.Strategy
	responseAlg     *response.Default

	discover func(mdomain.BootstrapDiscover) error
}

// Option configures a Node at construction.
type Option func(*Node)

// WithLogger sets the logger threaded into every component.
func WithLogger(l logger.Logger) Option {
	return func(n *Node) {
		if l != nil {
			n.ctx.Logger = l
		}
	}
}

// WithTimeoutOverrides replaces default timer lengths per kind.
func WithTimeoutOverrides(overrides map[fsm.TimeoutKind]time.Duration) Option {
	return func(n *Node) {
		n.watchdog = newWatchdog(overrides)
	}
}

// WithDiscover wires the BootstrapDiscover sender (internal/bootstrap's
// Sender.Send is the concrete implementation); tests can pass a no-op.
func WithDiscover(fn func(mdomain.BootstrapDiscover) error) Option {
	return func(n *Node) { n.discover = fn }
}

// New constructs a Node with topology fanout m, bound to sender for
// outbound delivery.
func New(fanout uint16, physical mdomain.PhysicalAddress, sender algorithm.Sender, opts ...Option) (*Node, error) {
	topo, err := position.NewTopology(fanout)
	if err != nil {
		return nil, err
	}
	routing := routinginfo.New(topo, position.DefaultHorizontalScale, physical)
	n := &Node{
		watchdog:        newWatchdog(nil),
		ids:             &idGenerator{},
		joinAlg:         join.Default{},
		leaveAlg:        &leave.Default{},
		searchExactAlg:  searchexact.Default{},
		entitySearchAlg: &entitysearch.Default{},
		bootstrapAlg:    bootstrap.Default{},
		responseAlg:     &response.Default{},
	}
	n.ctx = &algorithm.Context{
		Self:     routing.Self(),
		Topology: topo,
		Routing:  routing,
		Procs:    procinfo.New(),
		FSM:      fsm.New(),
		DSN:      dsn.NewHandler(topo),
		Sender:   sender,
		Timers:   n.watchdog,
		IDs:      n.ids,
		Logger:   &logger.NopLogger{},
	}
	n.ctx.Store = dsn.NewLocalStore(dsn.WithChangeCallback(n.onLocalAttributeChange))

	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Start brings the node into the overlay per spec.md §6.
func (n *Node) Start(ctx context.Context, info JoinInfo) error {
	if info.AsRoot {
		return n.ctx.Routing.SetPosition(position.Position{Level: 0, Number: 0})
	}
	if info.ViaBootstrap {
		if n.discover == nil {
			return fmt.Errorf("mnode: start via bootstrap requires WithDiscover")
		}
		return n.bootstrapAlg.Discover(ctx, n.ctx, n.discover)
	}
	if info.ViaAddress.Initialized() {
		seed := mdomain.NodeRef{Physical: info.ViaAddress, Status: mdomain.StatusRunning}
		if err := n.ctx.FSM.Accept(fsm.SignalJoinNetwork{Mode: fsm.JoinViaAddress, Address: info.ViaAddress}); err != nil {
			return err
		}
		return n.joinAlg.StartJoin(ctx, n.ctx, seed)
	}
	if info.ViaNodeInfo.IsValidPeer() {
		if err := n.ctx.FSM.Accept(fsm.SignalJoinNetwork{Mode: fsm.JoinViaNodeInfo, Seed: info.ViaNodeInfo}); err != nil {
			return err
		}
		return n.joinAlg.StartJoin(ctx, n.ctx, info.ViaNodeInfo)
	}
	return fmt.Errorf("mnode: JoinInfo specifies no join mode")
}

// Stop leaves the overlay gracefully (spec.md §6).
func (n *Node) Stop(ctx context.Context) error {
	return n.leaveAlg.StartLeave(ctx, n.ctx)
}

// Insert/Update/Remove are the local attribute store operations of
// spec.md §6. The changes stay local: onLocalAttributeChange sends no
// SubscriptionUpdate to any DSN.
func (n *Node) Insert(entries []mdomain.Attribute) { n.ctx.Store.Insert(entries) }
func (n *Node) Update(entries []mdomain.Attribute) { n.ctx.Store.Update(entries) }
func (n *Node) Remove(keys []string)               { n.ctx.Store.Remove(keys) }

// Find issues an entity-search query (spec.md §4.9) and returns a
// future fulfilled once the requester's DsnAggregationTimeout fires.
func (n *Node) Find(ctx context.Context, query string, scope mdomain.SearchScope, threshold int) (*entitysearch.Future, error) {
	return n.entitySearchAlg.Find(ctx, n.ctx, query, scope, threshold)
}

func (n *Node) onLocalAttributeChange(key string, val mdomain.Attribute, removed bool) {
	if removed {
		return
	}
	if !n.ctx.DSN.ShouldUnsubscribe(key) {
		return
	}
}
