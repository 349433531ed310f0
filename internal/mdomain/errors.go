package mdomain

import "errors"

// Error kinds per spec.md §7. These are sentinels, not one error type
// per failure — callers wrap them with fmt.Errorf("...: %w", ...) so
// errors.Is keeps working across package boundaries (RoutingInformation,
// FSM, algorithms, transport).
var (
	// Positional: invalid level/number/fanout, out-of-range index.
	// RoutingCalculations uses position.ErrInvalidPosition directly;
	// this is the RoutingInformation-level analogue for out-of-range
	// child/RT indices.
	ErrOutOfRange = errors.New("mdomain: index out of range")

	// Logical: root-has-no-parent, cannot-remove-parent, not-yet-initialized.
	ErrRootHasNoParent  = errors.New("mdomain: root has no parent")
	ErrCannotRemoveParent = errors.New("mdomain: parent cannot be removed, only updated")
	ErrUninitialized    = errors.New("mdomain: node reference is not initialized")
	ErrLogicalMismatch  = errors.New("mdomain: logical position does not match computed position")
	ErrWrongSide        = errors.New("mdomain: horizontal value violates adjacency invariant")

	// Invalid message: header fails validation.
	ErrInvalidMessage = errors.New("mdomain: message fails validation")

	// FSM: unmatched event in a critical state.
	ErrFSM = errors.New("mdomain: no transition for event in current state")

	// Algorithm: ProcedureInfo key missing/already present.
	ErrProcedureNotFound      = errors.New("mdomain: procedure entry not found")
	ErrProcedureAlreadyExists = errors.New("mdomain: procedure entry already exists")

	// Protocol abort.
	ErrSignoffRejected    = errors.New("mdomain: signoff rejected by parent")
	ErrLockRejected       = errors.New("mdomain: neighbor lock rejected")
	ErrReplacementNacked  = errors.New("mdomain: replacement offer nacked")

	// DSN / entity search.
	ErrNotDSN = errors.New("mdomain: node is not a DSN for this position")
)
