// Package procinfo implements ProcedureInfo: the per-node scratchpad
// keyed by procedure kind (and, for entity search, by ref_event_id)
// described in spec.md §3. It stores whatever an in-flight algorithm
// needs to resume on the next message or timeout — pending NodeRef
// lists, event ids, find-queries, preliminary results, aggregation
// start timestamps, DSN counters, and promise handles.
package procinfo

import (
	"fmt"
	"sync"

	"minhton/internal/logger"
	"minhton/internal/mdomain"
)

// Kind is the procedure category a scratchpad entry belongs to.
type Kind uint8

const (
	KindBootstrap Kind = iota
	KindJoin
	KindLeave
	KindAcceptChild
	KindFindReplacement
	KindEntitySearchInquiry
)

func (k Kind) String() string {
	names := [...]string{"Bootstrap", "Join", "Leave", "AcceptChild", "FindReplacement", "EntitySearchInquiry"}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Key identifies one scratchpad slot. Every kind is keyed by the event
// id of the procedure that owns the slot (see the helpers in
// internal/algorithm/keys.go), so several procedures of the same kind
// can be in flight at a node at once under different ids.
type Key struct {
	Kind       Kind
	RefEventID uint64
}

// ProcedureInfo is the per-node scratchpad. save/load/update/remove
// fail when the key is absent (or already present, on save) — spec.md
// §4.2/§7 ("Algorithm" error kind).
type ProcedureInfo struct {
	mu   sync.Mutex
	data map[Key]any
	lgr  logger.Logger
}

// Option configures a ProcedureInfo at construction.
type Option func(*ProcedureInfo)

// WithLogger sets the logger used for structured diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(p *ProcedureInfo) {
		if l != nil {
			p.lgr = l
		}
	}
}

// New creates an empty ProcedureInfo.
func New(opts ...Option) *ProcedureInfo {
	p := &ProcedureInfo{
		data: make(map[Key]any),
		lgr:  &logger.NopLogger{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Save stores value under key. Fails with ErrProcedureAlreadyExists if
// the key is already occupied — the caller must Remove (or Update) an
// existing entry before starting a new procedure of the same kind.
func (p *ProcedureInfo) Save(key Key, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.data[key]; ok {
		return fmt.Errorf("%w: kind=%s ref_event_id=%d", mdomain.ErrProcedureAlreadyExists, key.Kind, key.RefEventID)
	}
	p.data[key] = value
	p.lgr.Debug("procinfo: saved", logger.F("kind", key.Kind.String()), logger.F("ref_event_id", key.RefEventID))
	return nil
}

// Load returns the value stored under key. Fails with
// ErrProcedureNotFound if absent — the normal path for a late-arriving
// ack after the procedure has already been cleaned up.
func (p *ProcedureInfo) Load(key Key) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: kind=%s ref_event_id=%d", mdomain.ErrProcedureNotFound, key.Kind, key.RefEventID)
	}
	return v, nil
}

// Update replaces the value stored under key. Fails with
// ErrProcedureNotFound if absent.
func (p *ProcedureInfo) Update(key Key, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.data[key]; !ok {
		return fmt.Errorf("%w: kind=%s ref_event_id=%d", mdomain.ErrProcedureNotFound, key.Kind, key.RefEventID)
	}
	p.data[key] = value
	p.lgr.Debug("procinfo: updated", logger.F("kind", key.Kind.String()), logger.F("ref_event_id", key.RefEventID))
	return nil
}

// Remove deletes the entry stored under key. Fails with
// ErrProcedureNotFound if absent.
func (p *ProcedureInfo) Remove(key Key) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.data[key]; !ok {
		return fmt.Errorf("%w: kind=%s ref_event_id=%d", mdomain.ErrProcedureNotFound, key.Kind, key.RefEventID)
	}
	delete(p.data, key)
	p.lgr.Debug("procinfo: removed", logger.F("kind", key.Kind.String()), logger.F("ref_event_id", key.RefEventID))
	return nil
}

// Has reports whether key is currently occupied, without erroring —
// useful in guards that need to branch rather than propagate an error
// (e.g. "am I already replacing someone?").
func (p *ProcedureInfo) Has(key Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.data[key]
	return ok
}

// -- Typed scratchpad payloads ----------------------------------------
//
// These are the concrete shapes algorithms store under each Kind. They
// live here (not in the algorithm packages) so that any algorithm
// implementation can be swapped (spec.md §9's "Algorithm polymorphism")
// without changing what the scratchpad holds.

// BootstrapState tracks an in-flight bootstrap discovery.
type BootstrapState struct {
	EventID uint64
}

// JoinState tracks an in-flight join from the entering node's side.
type JoinState struct {
	EventID uint64
	Target  mdomain.NodeRef
}

// AcceptChildState tracks an in-flight child acceptance from the
// accepting parent's side, between sending JoinAccept and receiving
// JoinAcceptAck.
type AcceptChildState struct {
	EventID     uint64
	ChildIndex  int
	EnteringRef mdomain.NodeRef
}

// LeaveState tracks an in-flight leave from the leaving node's side.
type LeaveState struct {
	EventID         uint64
	WithReplacement bool
	PendingAcks     map[int]bool // index into the list of symmetric neighbors awaiting ack
	LockedRight     bool
	LockedLeft      bool
}

// FindReplacementState tracks an in-flight successor search/handover
// from the side of whichever node currently holds the "am I the
// successor" role (parent locking, then signoff, then ReplacementOffer).
type FindReplacementState struct {
	EventID       uint64
	NodeToReplace mdomain.LogicalPosition
	PendingAcks   int
}

// EntitySearchInquiryState tracks one in-flight DSN aggregation,
// whether at the requester (aggregating FindQueryAnswers) or at a DSN
// (aggregating AttributeInquiryAnswers).
type EntitySearchInquiryState struct {
	EventID           uint64
	Query             string
	Scope             mdomain.SearchScope
	Threshold         int
	StartTimestampUnixNano int64
	Preliminary       []mdomain.FulfillingNode
	Addressed         int
	Answered          int
	IsRequester       bool
}
