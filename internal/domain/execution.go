package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionStatus tracks one command's pass through the 3-leg state machine.
type ExecutionStatus string

const (
	ExecInit         ExecutionStatus = "init"
	ExecLegRunning   ExecutionStatus = "leg_running"
	ExecDone         ExecutionStatus = "done"
	ExecAborting     ExecutionStatus = "aborting"
	ExecRescued      ExecutionStatus = "rescued"
	ExecRescueFailed ExecutionStatus = "rescue_failed"
)

// LegOutcome classifies the result of a single market order.
type LegOutcome string

const (
	LegFilled   LegOutcome = "filled"   // order filled, state advances
	LegUnfilled LegOutcome = "unfilled" // accepted but nothing executed
	LegTimeout  LegOutcome = "timeout"  // no response within the bound
	LegError    LegOutcome = "error"    // rejected or transport failure
)

// ExecutionState is the mutable position of one engine invocation. Owned
// exclusively by that invocation; never shared across commands.
type ExecutionState struct {
	LegIndex     int // 0 before the first leg, 3 after the last
	HeldCurrency string
	HeldAmount   decimal.Decimal
	Status       ExecutionStatus
}

// LegFill records one leg's order for the execution record.
type LegFill struct {
	Symbol       string
	Side         OrderSide
	RequestedQty decimal.Decimal
	FilledQty    decimal.Decimal
	AvgPrice     decimal.Decimal
	Outcome      LegOutcome
}

// ExecutionRecord is the final account of one command: every leg attempted,
// the terminal status, and any rescue result. Persisted for reconciliation.
type ExecutionRecord struct {
	ID            string
	CommandID     string
	Route         Route
	Status        ExecutionStatus
	Legs          []LegFill
	FinalCurrency string
	FinalAmount   decimal.Decimal
	Rescue        *LegFill // set when a rescue order was attempted
	StartedAt     time.Time
	CompletedAt   time.Time
}
