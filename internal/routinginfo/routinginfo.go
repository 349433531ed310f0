// Package routinginfo implements RoutingInformation: the per-node
// neighbor database described in spec.md §3/§4.2. It holds self,
// parent, children, adjacents, and routing-table neighbors (plus their
// children), enforces the invariants listed in spec.md §3, and notifies
// subscribers of every change.
//
// Concurrency: every neighbor slot is protected by its own mutex,
// mirroring the teacher's per-entry locking in routingtable.RoutingTable,
// because a single node-wide lock would serialize unrelated reads (e.g.
// a GetChildren call blocking on an unrelated SetAdjacentLeft). The
// enclosing Node event loop (spec.md §5) still serializes all mutating
// calls; the per-entry locks here exist for safe concurrent reads by
// housekeeping goroutines (logging, metrics) alongside the event loop.
package routinginfo

import (
	"fmt"
	"sort"
	"sync"

	"minhton/internal/logger"
	"minhton/internal/mdomain"
	"minhton/internal/position"
)

// entry is one neighbor slot: a fixed logical position (once the owning
// RoutingInformation is initialized) plus a mutable physical half.
type entry struct {
	mu  sync.RWMutex
	ref mdomain.NodeRef
}

func (e *entry) get() mdomain.NodeRef {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ref
}

// setPhysical updates only the physical half (and status), keeping the
// logical half untouched — invariant 1 in spec.md §3.
func (e *entry) setPhysical(phys mdomain.PhysicalAddress, status mdomain.Status) (old mdomain.NodeRef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	old = e.ref
	e.ref.Physical = phys
	e.ref.Status = status
	return old
}

// resetPhysical clears the physical half, keeping the fixed logical half.
func (e *entry) resetPhysical() (old mdomain.NodeRef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	old = e.ref
	e.ref.Physical = mdomain.PhysicalAddress{}
	e.ref.Status = mdomain.StatusUninit
	return old
}

func (e *entry) setFixed(ref mdomain.NodeRef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ref = ref
}

func (e *entry) clear() (old mdomain.NodeRef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	old = e.ref
	e.ref = mdomain.NodeRef{}
	return old
}

// ChangeNotification describes one neighbor-slot mutation, delivered to
// every subscriber registered via Subscribe.
type ChangeNotification struct {
	New           mdomain.NodeRef
	Relationship  mdomain.Relationship
	Old           mdomain.NodeRef
	PositionIndex int
}

// Subscriber receives neighbor-slot change notifications.
type Subscriber func(ChangeNotification)

// PositionSubscriber receives self's own position-change notifications
// (set_position / reset_position).
type PositionSubscriber func(mdomain.LogicalPosition)

// RoutingInformation is the per-node neighbor database.
type RoutingInformation struct {
	lgr  logger.Logger
	topo position.Topology
	k    float64

	selfMu sync.RWMutex
	self   mdomain.NodeRef

	parent *entry

	childMu  sync.RWMutex
	children []*entry // len == fanout once initialized, nil before

	adjLeft  *entry
	adjRight *entry

	rtMu        sync.RWMutex
	rtNeighbors []*entry // sorted by Position.Number within the level
	rtChildren  []*entry // children of rtNeighbors, index i*fanout+c

	subMu       sync.Mutex
	changeSubs  []Subscriber
	posSubs     []PositionSubscriber
}

// Option configures a RoutingInformation at construction.
type Option func(*RoutingInformation)

// WithLogger sets the logger used for structured diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(ri *RoutingInformation) {
		if l != nil {
			ri.lgr = l
		}
	}
}

// New creates an uninitialized RoutingInformation: self has no logical
// position yet. physical is self's own transport address, known from
// the moment the node starts listening, independent of tree position.
func New(topo position.Topology, k float64, physical mdomain.PhysicalAddress, opts ...Option) *RoutingInformation {
	ri := &RoutingInformation{
		topo:     topo,
		k:        k,
		self:     mdomain.NodeRef{Physical: physical},
		parent:   &entry{},
		adjLeft:  &entry{},
		adjRight: &entry{},
		lgr:      &logger.NopLogger{},
	}
	for _, o := range opts {
		o(ri)
	}
	ri.lgr.Debug("routing information initialized (uninitialized position)")
	return ri
}

// NewRoot creates a RoutingInformation already initialized at (0,0).
func NewRoot(topo position.Topology, physical mdomain.PhysicalAddress, opts ...Option) *RoutingInformation {
	ri := New(topo, position.DefaultHorizontalScale, physical, opts...)
	if err := ri.SetPosition(position.Position{Level: 0, Number: 0}); err != nil {
		// Root at (0,0) is always a valid position for any topology;
		// this would only fail on a programmer error upstream.
		panic(fmt.Sprintf("routinginfo: NewRoot: %v", err))
	}
	return ri
}

// Subscribe registers a callback for neighbor-slot change notifications.
func (ri *RoutingInformation) Subscribe(s Subscriber) {
	ri.subMu.Lock()
	defer ri.subMu.Unlock()
	ri.changeSubs = append(ri.changeSubs, s)
}

// SubscribePosition registers a callback for self position changes.
func (ri *RoutingInformation) SubscribePosition(s PositionSubscriber) {
	ri.subMu.Lock()
	defer ri.subMu.Unlock()
	ri.posSubs = append(ri.posSubs, s)
}

func (ri *RoutingInformation) notify(n ChangeNotification) {
	ri.subMu.Lock()
	subs := append([]Subscriber(nil), ri.changeSubs...)
	ri.subMu.Unlock()
	for _, s := range subs {
		s(n)
	}
}

func (ri *RoutingInformation) notifyPosition(pos mdomain.LogicalPosition) {
	ri.subMu.Lock()
	subs := append([]PositionSubscriber(nil), ri.posSubs...)
	ri.subMu.Unlock()
	for _, s := range subs {
		s(pos)
	}
}

// Self returns self's current NodeRef.
func (ri *RoutingInformation) Self() mdomain.NodeRef {
	ri.selfMu.RLock()
	defer ri.selfMu.RUnlock()
	return ri.self
}

// IsInitialized reports whether self has a logical position.
func (ri *RoutingInformation) IsInitialized() bool {
	return ri.Self().Logical.Initialized
}

// SetPosition sets self's logical position and fixes the logical half
// of every derived slot (parent, children, adjacents placeholder,
// routing-table neighbors and their children). Only legal on an
// uninitialized self (spec.md §4.2).
func (ri *RoutingInformation) SetPosition(pos position.Position) error {
	if ri.IsInitialized() {
		return fmt.Errorf("%w: set_position called on an already-initialized node", mdomain.ErrLogicalMismatch)
	}
	if err := ri.topo.IsPositionValid(pos); err != nil {
		return err
	}

	fanout := ri.topo.Fanout
	logical := mdomain.NewLogicalPosition(pos, fanout)

	ri.selfMu.Lock()
	ri.self.Logical = logical
	physical := ri.self.Physical
	ri.selfMu.Unlock()

	// Parent.
	if pos.Level > 0 {
		parentPos, err := ri.topo.Parent(pos)
		if err != nil {
			return err
		}
		ri.parent.setFixed(mdomain.NodeRef{Logical: mdomain.LogicalPosition{Pos: parentPos, Fanout: fanout, Initialized: true}})
	}

	// Children.
	children, err := ri.topo.Children(pos)
	if err != nil {
		return err
	}
	ri.childMu.Lock()
	ri.children = make([]*entry, len(children))
	for i, c := range children {
		ri.children[i] = &entry{ref: mdomain.NodeRef{Logical: mdomain.LogicalPosition{Pos: c, Fanout: fanout, Initialized: true}}}
	}
	ri.childMu.Unlock()

	// Routing table and its children.
	left, err := ri.topo.LeftRT(pos)
	if err != nil {
		return err
	}
	right, err := ri.topo.RightRT(pos)
	if err != nil {
		return err
	}
	all := append(append([]position.Position{}, left...), right...)
	sort.Slice(all, func(i, j int) bool { return all[i].Number < all[j].Number })

	ri.rtMu.Lock()
	ri.rtNeighbors = make([]*entry, len(all))
	ri.rtChildren = nil
	for i, p := range all {
		ri.rtNeighbors[i] = &entry{ref: mdomain.NodeRef{Logical: mdomain.LogicalPosition{Pos: p, Fanout: fanout, Initialized: true}}}
		childPositions, err := ri.topo.Children(p)
		if err == nil {
			for _, cp := range childPositions {
				ri.rtChildren = append(ri.rtChildren, &entry{ref: mdomain.NodeRef{Logical: mdomain.LogicalPosition{Pos: cp, Fanout: fanout, Initialized: true}}})
			}
		}
	}
	ri.rtMu.Unlock()

	ri.selfMu.Lock()
	ri.self.Physical = physical
	ri.selfMu.Unlock()

	ri.lgr.Debug("set_position: self initialized", logger.F("pos", pos.String()))
	ri.notifyPosition(logical)
	return nil
}

// ResetPosition clears self's logical half and every neighbor entry,
// emitting a single position-change notification (spec.md §4.2).
func (ri *RoutingInformation) ResetPosition(eventID uint64) {
	ri.selfMu.Lock()
	physical := ri.self.Physical
	ri.self = mdomain.NodeRef{Physical: physical}
	ri.selfMu.Unlock()

	ri.parent.clear()
	ri.adjLeft.clear()
	ri.adjRight.clear()

	ri.childMu.Lock()
	ri.children = nil
	ri.childMu.Unlock()

	ri.rtMu.Lock()
	ri.rtNeighbors = nil
	ri.rtChildren = nil
	ri.rtMu.Unlock()

	ri.lgr.Debug("reset_position: self and all neighbors cleared", logger.F("event_id", eventID))
	ri.notifyPosition(mdomain.LogicalPosition{})
}

// SetParent updates the parent slot, per the error conditions in
// spec.md §4.2.
func (ri *RoutingInformation) SetParent(node mdomain.NodeRef) error {
	if !ri.IsInitialized() {
		return fmt.Errorf("%w: self not initialized", mdomain.ErrUninitialized)
	}
	self := ri.Self()
	if self.Logical.Pos.Level == 0 {
		return mdomain.ErrRootHasNoParent
	}
	if !node.Logical.Initialized {
		return fmt.Errorf("%w: parent node", mdomain.ErrUninitialized)
	}
	expected, err := ri.topo.Parent(self.Logical.Pos)
	if err != nil {
		return err
	}
	if expected != node.Logical.Pos {
		return fmt.Errorf("%w: got %v want %v", mdomain.ErrLogicalMismatch, node.Logical.Pos, expected)
	}
	old := ri.parent.get()
	if old.Physical != node.Physical {
		ri.parent.setPhysical(node.Physical, node.Status)
		ri.lgr.Debug("set_parent: updated", logger.F("parent", node.String()))
		ri.notify(ChangeNotification{New: node, Relationship: mdomain.RelParent, Old: old})
	}
	return nil
}

// SetChild updates child slot i.
func (ri *RoutingInformation) SetChild(node mdomain.NodeRef, i int) error {
	if !ri.IsInitialized() {
		return fmt.Errorf("%w: self not initialized", mdomain.ErrUninitialized)
	}
	ri.childMu.RLock()
	defer ri.childMu.RUnlock()
	if i < 0 || i >= len(ri.children) {
		return fmt.Errorf("%w: child index %d", mdomain.ErrOutOfRange, i)
	}
	if !node.Logical.Initialized {
		return fmt.Errorf("%w: child node", mdomain.ErrUninitialized)
	}
	slot := ri.children[i]
	expected := slot.get().Logical.Pos
	if expected != node.Logical.Pos {
		return fmt.Errorf("%w: got %v want %v", mdomain.ErrLogicalMismatch, node.Logical.Pos, expected)
	}
	old := slot.get()
	slot.setPhysical(node.Physical, node.Status)
	ri.lgr.Debug("set_child: updated", logger.F("index", i), logger.F("child", node.String()))
	ri.notify(ChangeNotification{New: node, Relationship: mdomain.RelChild, Old: old, PositionIndex: i})
	return nil
}

func (ri *RoutingInformation) horizontal(pos position.Position) (float64, error) {
	return ri.topo.TreeMapper(pos, ri.k)
}

// SetAdjacentLeft updates the adjacent-left slot, enforcing invariant 4.
func (ri *RoutingInformation) SetAdjacentLeft(node mdomain.NodeRef) error {
	return ri.setAdjacent(ri.adjLeft, node, mdomain.RelAdjacentLeft, true)
}

// SetAdjacentRight updates the adjacent-right slot, enforcing invariant 4.
func (ri *RoutingInformation) SetAdjacentRight(node mdomain.NodeRef) error {
	return ri.setAdjacent(ri.adjRight, node, mdomain.RelAdjacentRight, false)
}

func (ri *RoutingInformation) setAdjacent(slot *entry, node mdomain.NodeRef, rel mdomain.Relationship, wantLeft bool) error {
	if !ri.IsInitialized() {
		return fmt.Errorf("%w: self not initialized", mdomain.ErrUninitialized)
	}
	if !node.Logical.Initialized {
		return fmt.Errorf("%w: adjacent node", mdomain.ErrUninitialized)
	}
	self := ri.Self()
	selfH, err := ri.horizontal(self.Logical.Pos)
	if err != nil {
		return err
	}
	otherH, err := ri.horizontal(node.Logical.Pos)
	if err != nil {
		return err
	}
	if wantLeft && otherH >= selfH {
		return mdomain.ErrWrongSide
	}
	if !wantLeft && otherH <= selfH {
		return mdomain.ErrWrongSide
	}
	old := slot.get()
	slot.setFixed(node)
	ri.lgr.Debug("set_adjacent: updated", logger.F("relationship", rel.String()), logger.F("node", node.String()))
	ri.notify(ChangeNotification{New: node, Relationship: rel, Old: old})
	return nil
}

// findRTNeighbor locates the routing-table-neighbor slot matching pos
// via binary search on the sorted-by-number table.
func (ri *RoutingInformation) findRTNeighbor(pos position.Position) *entry {
	ri.rtMu.RLock()
	defer ri.rtMu.RUnlock()
	idx := sort.Search(len(ri.rtNeighbors), func(i int) bool {
		return ri.rtNeighbors[i].get().Logical.Pos.Number >= pos.Number
	})
	if idx < len(ri.rtNeighbors) {
		e := ri.rtNeighbors[idx]
		if e.get().Logical.Pos == pos {
			return e
		}
	}
	return nil
}

func (ri *RoutingInformation) findRTChild(pos position.Position) *entry {
	ri.rtMu.RLock()
	defer ri.rtMu.RUnlock()
	for _, e := range ri.rtChildren {
		if e.get().Logical.Pos == pos {
			return e
		}
	}
	return nil
}

// UpdateRoutingTableNeighbor updates the physical half of the
// routing-table-neighbor slot matching node's logical position.
func (ri *RoutingInformation) UpdateRoutingTableNeighbor(node mdomain.NodeRef) error {
	if !node.Logical.Initialized {
		return fmt.Errorf("%w: rt neighbor node", mdomain.ErrUninitialized)
	}
	slot := ri.findRTNeighbor(node.Logical.Pos)
	if slot == nil {
		return fmt.Errorf("%w: no rt-neighbor slot for %v", mdomain.ErrLogicalMismatch, node.Logical.Pos)
	}
	old := slot.get()
	slot.setPhysical(node.Physical, node.Status)
	ri.lgr.Debug("update_routing_table_neighbor", logger.F("node", node.String()))
	ri.notify(ChangeNotification{New: node, Relationship: mdomain.RelRoutingTableNeighbor, Old: old})
	return nil
}

// UpdateRoutingTableNeighborChild updates the physical half of the
// routing-table-neighbor-child slot matching node's logical position.
func (ri *RoutingInformation) UpdateRoutingTableNeighborChild(node mdomain.NodeRef) error {
	if !node.Logical.Initialized {
		return fmt.Errorf("%w: rt neighbor child node", mdomain.ErrUninitialized)
	}
	slot := ri.findRTChild(node.Logical.Pos)
	if slot == nil {
		return fmt.Errorf("%w: no rt-neighbor-child slot for %v", mdomain.ErrLogicalMismatch, node.Logical.Pos)
	}
	old := slot.get()
	slot.setPhysical(node.Physical, node.Status)
	ri.lgr.Debug("update_routing_table_neighbor_child", logger.F("node", node.String()))
	ri.notify(ChangeNotification{New: node, Relationship: mdomain.RelRoutingTableNeighborChild, Old: old})
	return nil
}

// ResetChild clears the physical half of child slot i.
func (ri *RoutingInformation) ResetChild(i int) error {
	ri.childMu.RLock()
	defer ri.childMu.RUnlock()
	if i < 0 || i >= len(ri.children) {
		return fmt.Errorf("%w: child index %d", mdomain.ErrOutOfRange, i)
	}
	old := ri.children[i].resetPhysical()
	ri.lgr.Debug("reset_child", logger.F("index", i))
	ri.notify(ChangeNotification{Relationship: mdomain.RelChild, Old: old, PositionIndex: i})
	return nil
}

// ResetAdjacentLeft clears the adjacent-left slot entirely (it is not a
// logically-fixed slot the way children/RT neighbors are).
func (ri *RoutingInformation) ResetAdjacentLeft() {
	old := ri.adjLeft.clear()
	ri.lgr.Debug("reset_adjacent_left")
	ri.notify(ChangeNotification{Relationship: mdomain.RelAdjacentLeft, Old: old})
}

// ResetAdjacentRight clears the adjacent-right slot entirely.
func (ri *RoutingInformation) ResetAdjacentRight() {
	old := ri.adjRight.clear()
	ri.lgr.Debug("reset_adjacent_right")
	ri.notify(ChangeNotification{Relationship: mdomain.RelAdjacentRight, Old: old})
}

// ResetRoutingTableNeighbor clears the physical half of the rt-neighbor
// slot matching node's logical position.
func (ri *RoutingInformation) ResetRoutingTableNeighbor(node mdomain.NodeRef) error {
	slot := ri.findRTNeighbor(node.Logical.Pos)
	if slot == nil {
		return fmt.Errorf("%w: no rt-neighbor slot for %v", mdomain.ErrLogicalMismatch, node.Logical.Pos)
	}
	old := slot.resetPhysical()
	ri.lgr.Debug("reset_routing_table_neighbor", logger.F("pos", node.Logical.Pos.String()))
	ri.notify(ChangeNotification{Relationship: mdomain.RelRoutingTableNeighbor, Old: old})
	return nil
}

// ResetChildOrRoutingTableNeighborChild clears whichever slot (child or
// RT-neighbor-child) matches node's logical position.
func (ri *RoutingInformation) ResetChildOrRoutingTableNeighborChild(node mdomain.NodeRef) error {
	ri.childMu.RLock()
	for i, c := range ri.children {
		if c.get().Logical.Pos == node.Logical.Pos {
			ri.childMu.RUnlock()
			return ri.ResetChild(i)
		}
	}
	ri.childMu.RUnlock()
	if slot := ri.findRTChild(node.Logical.Pos); slot != nil {
		old := slot.resetPhysical()
		ri.lgr.Debug("reset_routing_table_neighbor_child", logger.F("pos", node.Logical.Pos.String()))
		ri.notify(ChangeNotification{Relationship: mdomain.RelRoutingTableNeighborChild, Old: old})
		return nil
	}
	return fmt.Errorf("%w: no child or rt-neighbor-child slot for %v", mdomain.ErrLogicalMismatch, node.Logical.Pos)
}

// RemoveNeighbor locates every slot matching node.Logical across
// adjacents, routing table, and routing-table children, and resets
// each. The parent is never removable.
func (ri *RoutingInformation) RemoveNeighbor(node mdomain.NodeRef) error {
	self := ri.Self()
	if self.Logical.Initialized {
		if parentPos, err := ri.topo.Parent(self.Logical.Pos); err == nil && parentPos == node.Logical.Pos {
			return mdomain.ErrCannotRemoveParent
		}
	}
	found := false
	if ri.adjLeft.get().Logical.Pos == node.Logical.Pos {
		ri.ResetAdjacentLeft()
		found = true
	}
	if ri.adjRight.get().Logical.Pos == node.Logical.Pos {
		ri.ResetAdjacentRight()
		found = true
	}
	if slot := ri.findRTNeighbor(node.Logical.Pos); slot != nil {
		_ = ri.ResetRoutingTableNeighbor(node)
		found = true
	}
	if slot := ri.findRTChild(node.Logical.Pos); slot != nil {
		old := slot.resetPhysical()
		ri.notify(ChangeNotification{Relationship: mdomain.RelRoutingTableNeighborChild, Old: old})
		found = true
	}
	ri.childMu.RLock()
	for i, c := range ri.children {
		if c.get().Logical.Pos == node.Logical.Pos {
			ri.childMu.RUnlock()
			_ = ri.ResetChild(i)
			ri.childMu.RLock()
			found = true
		}
	}
	ri.childMu.RUnlock()
	if !found {
		ri.lgr.Debug("remove_neighbor: no matching slot", logger.F("pos", node.Logical.Pos.String()))
	}
	return nil
}

// UpdateNeighbor inspects node.Logical against self's computed
// structure and routes the update to whichever slot(s) it belongs in.
func (ri *RoutingInformation) UpdateNeighbor(node mdomain.NodeRef) error {
	self := ri.Self()
	if !self.Logical.Initialized {
		return fmt.Errorf("%w: self not initialized", mdomain.ErrUninitialized)
	}
	if parentPos, err := ri.topo.Parent(self.Logical.Pos); err == nil && parentPos == node.Logical.Pos {
		return ri.SetParent(node)
	}
	ri.childMu.RLock()
	for i, c := range ri.children {
		if c.get().Logical.Pos == node.Logical.Pos {
			ri.childMu.RUnlock()
			return ri.SetChild(node, i)
		}
	}
	ri.childMu.RUnlock()
	if ri.adjLeft.get().Logical.Pos == node.Logical.Pos {
		ri.adjLeft.setPhysical(node.Physical, node.Status)
		return nil
	}
	if ri.adjRight.get().Logical.Pos == node.Logical.Pos {
		ri.adjRight.setPhysical(node.Physical, node.Status)
		return nil
	}
	if ri.findRTNeighbor(node.Logical.Pos) != nil {
		return ri.UpdateRoutingTableNeighbor(node)
	}
	if ri.findRTChild(node.Logical.Pos) != nil {
		return ri.UpdateRoutingTableNeighborChild(node)
	}
	return fmt.Errorf("%w: no slot matches %v", mdomain.ErrLogicalMismatch, node.Logical.Pos)
}

// -- Queries ----------------------------------------------------------

// Parent returns the parent NodeRef (empty iff self is root).
func (ri *RoutingInformation) Parent() mdomain.NodeRef { return ri.parent.get() }

// AdjacentLeft returns the adjacent-left NodeRef.
func (ri *RoutingInformation) AdjacentLeft() mdomain.NodeRef { return ri.adjLeft.get() }

// AdjacentRight returns the adjacent-right NodeRef.
func (ri *RoutingInformation) AdjacentRight() mdomain.NodeRef { return ri.adjRight.get() }

// Children returns all m child slots (including uninitialized ones).
func (ri *RoutingInformation) Children() []mdomain.NodeRef {
	ri.childMu.RLock()
	defer ri.childMu.RUnlock()
	out := make([]mdomain.NodeRef, len(ri.children))
	for i, c := range ri.children {
		out[i] = c.get()
	}
	return out
}

// RTNeighborsLeftToRight returns routing-table neighbors to the left of
// self ordered nearest-first.
func (ri *RoutingInformation) RTNeighborsLeftToRight() []mdomain.NodeRef {
	self := ri.Self()
	ri.rtMu.RLock()
	defer ri.rtMu.RUnlock()
	var out []mdomain.NodeRef
	for i := len(ri.rtNeighbors) - 1; i >= 0; i-- {
		ref := ri.rtNeighbors[i].get()
		if ref.Logical.Pos.Number < self.Logical.Pos.Number {
			out = append(out, ref)
		}
	}
	return out
}

// RTNeighborsRightToLeft returns routing-table neighbors to the right of
// self ordered nearest-first.
func (ri *RoutingInformation) RTNeighborsRightToLeft() []mdomain.NodeRef {
	self := ri.Self()
	ri.rtMu.RLock()
	defer ri.rtMu.RUnlock()
	var out []mdomain.NodeRef
	for _, e := range ri.rtNeighbors {
		ref := e.get()
		if ref.Logical.Pos.Number > self.Logical.Pos.Number {
			out = append(out, ref)
		}
	}
	return out
}

// InitializedRTNeighbors returns every RT neighbor whose physical half
// is currently known.
func (ri *RoutingInformation) InitializedRTNeighbors() []mdomain.NodeRef {
	ri.rtMu.RLock()
	defer ri.rtMu.RUnlock()
	var out []mdomain.NodeRef
	for _, e := range ri.rtNeighbors {
		if ref := e.get(); ref.IsInitialized() {
			out = append(out, ref)
		}
	}
	return out
}

// DirectLeftNeighbor returns the RT neighbor immediately to the left of
// self on the same level (the nearest entry from RTNeighborsLeftToRight).
func (ri *RoutingInformation) DirectLeftNeighbor() (mdomain.NodeRef, bool) {
	lst := ri.RTNeighborsLeftToRight()
	if len(lst) == 0 {
		return mdomain.NodeRef{}, false
	}
	return lst[0], true
}

// DirectRightNeighbor returns the RT neighbor immediately to the right.
func (ri *RoutingInformation) DirectRightNeighbor() (mdomain.NodeRef, bool) {
	lst := ri.RTNeighborsRightToLeft()
	if len(lst) == 0 {
		return mdomain.NodeRef{}, false
	}
	return lst[0], true
}

// LeftmostNeighbor returns the farthest-left RT neighbor known.
func (ri *RoutingInformation) LeftmostNeighbor() (mdomain.NodeRef, bool) {
	lst := ri.RTNeighborsLeftToRight()
	if len(lst) == 0 {
		return mdomain.NodeRef{}, false
	}
	return lst[len(lst)-1], true
}

// RightmostNeighbor returns the farthest-right RT neighbor known.
func (ri *RoutingInformation) RightmostNeighbor() (mdomain.NodeRef, bool) {
	lst := ri.RTNeighborsRightToLeft()
	if len(lst) == 0 {
		return mdomain.NodeRef{}, false
	}
	return lst[len(lst)-1], true
}

// LeftmostNeighborChild returns the leftmost known RT-neighbor-child.
func (ri *RoutingInformation) LeftmostNeighborChild() (mdomain.NodeRef, bool) {
	ri.rtMu.RLock()
	defer ri.rtMu.RUnlock()
	if len(ri.rtChildren) == 0 {
		return mdomain.NodeRef{}, false
	}
	best := ri.rtChildren[0].get()
	for _, e := range ri.rtChildren[1:] {
		ref := e.get()
		if ref.Logical.Pos.Number < best.Logical.Pos.Number {
			best = ref
		}
	}
	return best, true
}

// AllSymmetricNeighbors returns every peer that, in turn, knows self:
// parent, children, adjacents, and RT neighbors (RT-neighbor-children
// do not know self back, so they are excluded here; see
// AllKnownNeighbors).
func (ri *RoutingInformation) AllSymmetricNeighbors() []mdomain.NodeRef {
	var out []mdomain.NodeRef
	add := func(n mdomain.NodeRef) {
		if n.IsValidPeer() {
			out = append(out, n)
		}
	}
	add(ri.Parent())
	for _, c := range ri.Children() {
		add(c)
	}
	add(ri.AdjacentLeft())
	add(ri.AdjacentRight())
	ri.rtMu.RLock()
	for _, e := range ri.rtNeighbors {
		add(e.get())
	}
	ri.rtMu.RUnlock()
	return dedupeByPosition(out)
}

// AllKnownNeighbors returns AllSymmetricNeighbors plus RT-neighbor
// children (known to self asymmetrically).
func (ri *RoutingInformation) AllKnownNeighbors() []mdomain.NodeRef {
	out := ri.AllSymmetricNeighbors()
	ri.rtMu.RLock()
	for _, e := range ri.rtChildren {
		if ref := e.get(); ref.IsValidPeer() {
			out = append(out, ref)
		}
	}
	ri.rtMu.RUnlock()
	return dedupeByPosition(out)
}

func dedupeByPosition(in []mdomain.NodeRef) []mdomain.NodeRef {
	seen := make(map[position.Position]bool, len(in))
	out := in[:0:0]
	for _, n := range in {
		if seen[n.Logical.Pos] {
			continue
		}
		seen[n.Logical.Pos] = true
		out = append(out, n)
	}
	return out
}

// LowestKnownNode returns the deepest-level initialized neighbor or
// child known to self, used by the bootstrap algorithm to answer
// discovery requests with the most specific candidate available.
func (ri *RoutingInformation) LowestKnownNode() (mdomain.NodeRef, bool) {
	best, ok := mdomain.NodeRef{}, false
	consider := func(n mdomain.NodeRef) {
		if !n.IsInitialized() {
			return
		}
		if !ok || n.Logical.Pos.Level > best.Logical.Pos.Level {
			best, ok = n, true
		}
	}
	for _, n := range ri.AllKnownNeighbors() {
		consider(n)
	}
	consider(ri.Self())
	return best, ok
}

// AmIDSN reports whether self's current position is a DSN.
func (ri *RoutingInformation) AmIDSN() bool {
	self := ri.Self()
	if !self.Logical.Initialized {
		return false
	}
	pos := self.Logical.Pos
	if pos.Level%2 != 0 {
		return false
	}
	dsns, err := ri.topo.DSNSet(pos.Level)
	if err != nil {
		return false
	}
	for _, d := range dsns {
		if d == pos.Number {
			return true
		}
	}
	return false
}

// AmITempDSN reports whether self stands in for a DSN that has no
// reachable occupant yet (no occupant has joined that exact position).
// Without a membership oracle this always reports false; nothing in
// this repository tracks occupancy for it.
func (ri *RoutingInformation) AmITempDSN() bool {
	return false
}

// CoveringDSNOrTempDSN returns the position of the DSN covering self.
func (ri *RoutingInformation) CoveringDSNOrTempDSN() (position.Position, error) {
	self := ri.Self()
	if !self.Logical.Initialized {
		return position.Position{}, mdomain.ErrUninitialized
	}
	return ri.topo.CoveringDSN(self.Logical.Pos)
}

// NextDSNExists reports whether there is a DSN neighbor further right
// on self's covering DSN level.
func (ri *RoutingInformation) NextDSNExists() bool {
	_, ok := ri.GetNextDSN()
	return ok
}

// GetNextDSN returns the nearest RT neighbor to the right that is
// itself a DSN.
func (ri *RoutingInformation) GetNextDSN() (mdomain.NodeRef, bool) {
	for _, n := range ri.RTNeighborsRightToLeft() {
		if n.Logical.Pos.Level%2 == 0 {
			if dsns, err := ri.topo.DSNSet(n.Logical.Pos.Level); err == nil {
				for _, d := range dsns {
					if d == n.Logical.Pos.Number {
						return n, true
					}
				}
			}
		}
	}
	return mdomain.NodeRef{}, false
}

// Topology exposes the configured fanout topology, for algorithms that
// need to run RoutingCalculations directly (e.g. the join algorithm
// routing toward a free child slot).
func (ri *RoutingInformation) Topology() position.Topology { return ri.topo }

// HorizontalScale exposes the K constant used by TreeMapper.
func (ri *RoutingInformation) HorizontalScale() float64 { return ri.k }
