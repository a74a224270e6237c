package domain

import "errors"

var (
	// ErrLiquidityInsufficient means the book is too shallow for the
	// required size. Skip the opportunity; not an operator-facing error.
	ErrLiquidityInsufficient = errors.New("insufficient liquidity")

	// ErrRouting means the held currency maps to neither side of the
	// current leg's pair. The route is malformed; no order may be placed
	// and no rescue is possible.
	ErrRouting = errors.New("held currency not part of leg pair")

	// ErrSignatureInvalid means an envelope failed authentication. Dropped
	// from the execution path, logged only.
	ErrSignatureInvalid = errors.New("command signature invalid")

	// ErrOrderTimeout means a leg order got no response within the bound.
	ErrOrderTimeout = errors.New("order timed out")

	// ErrOrderRejected means the exchange rejected or did not fill a leg.
	ErrOrderRejected = errors.New("order rejected")

	// ErrRescueFailed is terminal: funds are stranded off the base
	// currency and manual intervention is required.
	ErrRescueFailed = errors.New("rescue failed, manual intervention required")

	// ErrExecutionBusy means a command arrived while another execution
	// holds the capital pool.
	ErrExecutionBusy = errors.New("execution already in flight")

	// ErrLockHeld means the distributed capital lock is held elsewhere.
	ErrLockHeld = errors.New("lock already held")

	// ErrPairNotFound means a symbol is unknown to the exchange snapshot.
	ErrPairNotFound = errors.New("pair not found")

	// ErrCommandStale means a command's timestamp fell outside the
	// configured freshness window.
	ErrCommandStale = errors.New("command too old")
)
