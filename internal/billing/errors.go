package billing

import "errors"

var (
	// ErrFreeTarget rejects payment creation for zero-price catalog entries.
	ErrFreeTarget = errors.New("billing: target is free, nothing to pay")

	// ErrPlanAlreadyActive rejects buying the plan the user already runs on.
	ErrPlanAlreadyActive = errors.New("billing: plan already active")

	// ErrPlanConflict rejects switching away from a paid plan before its
	// cycle ends.
	ErrPlanConflict = errors.New("billing: another paid plan is active until cycle end")

	// ErrPaymentNotPending rejects confirm/fail transitions from any state
	// but pending.
	ErrPaymentNotPending = errors.New("billing: payment is not pending")

	// ErrUnknownKind rejects payment kinds other than plan/package.
	ErrUnknownKind = errors.New("billing: unknown payment kind")

	// errDuplicateCharge aborts a deduction whose source ref was already
	// charged; mapped to a false return, never surfaced.
	errDuplicateCharge = errors.New("billing: duplicate usage charge")

	// errInsufficient aborts a deduction transaction; mapped to false.
	errInsufficient = errors.New("billing: insufficient minutes")
)
