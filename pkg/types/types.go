package types

import (
	"fmt"
	"time"
)

// PoolRef uniquely addresses a yield-bearing position: one asset in one
// lending protocol on one chain.
type PoolRef struct {
	Chain       string `json:"chain"`
	Protocol    string `json:"protocol"`
	Asset       string `json:"asset"`
	PoolAddress string `json:"pool_address,omitempty"`
}

func (p PoolRef) String() string {
	return fmt.Sprintf("%s/%s/%s", p.Chain, p.Protocol, p.Asset)
}

// Recommendation is an externally produced instruction to move a stablecoin
// position between two pools. The engine treats it as immutable and performs
// only structural validation; economic soundness is the analyzer's problem.
type Recommendation struct {
	ID              string  `json:"id,omitempty"`
	SourcePool      PoolRef `json:"source_pool"`
	DestPool        PoolRef `json:"dest_pool"`
	Asset           string  `json:"asset"`
	Amount          float64 `json:"amount"` // token units, converted to wei per token decimals
	ExpectedGainBps int     `json:"expected_gain_bps"`
}

// OperationKind identifies one step of a recommendation plan.
type OperationKind string

const (
	OpWithdraw OperationKind = "withdraw"
	OpBridge   OperationKind = "bridge"
	OpSupply   OperationKind = "supply"
)

// OperationStatus tracks a single step. Transitions are append-only:
// Pending -> Submitted -> Confirmed | Failed. There are no backward moves.
type OperationStatus string

const (
	StatusPending   OperationStatus = "pending"
	StatusSubmitted OperationStatus = "submitted"
	StatusConfirmed OperationStatus = "confirmed"
	StatusFailed    OperationStatus = "failed"
)

// BridgeRoute describes the cross-chain leg of a plan. The bridge itself is
// an external collaborator; the engine only records what it was asked to do.
type BridgeRoute struct {
	FromChain string `json:"from_chain"`
	ToChain   string `json:"to_chain"`
	Asset     string `json:"asset"`
}

// Operation is one step of a plan. A single Operation never mutates more
// than one pool's on-chain balance.
type Operation struct {
	Kind   OperationKind      `json:"kind"`
	Pool   PoolRef            `json:"pool,omitempty"`
	Route  *BridgeRoute       `json:"route,omitempty"`
	Amount float64            `json:"amount"`
	Status OperationStatus    `json:"status"`
	Record *TransactionRecord `json:"record,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// TransactionRecord is the audit trail of one broadcast transaction. It is
// created when the transaction hits the mempool and is terminal once
// Confirmed or Failed; the persistence collaborator keeps it forever.
type TransactionRecord struct {
	Hash        string          `json:"hash"`
	Chain       string          `json:"chain"`
	Nonce       uint64          `json:"nonce"`
	GasUsed     uint64          `json:"gas_used,omitempty"`
	Status      OperationStatus `json:"status"`
	RetryCount  int             `json:"retry_count"`
	ExplorerURL string          `json:"explorer_url,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// ExecutionState is the engine-level state of a recommendation.
type ExecutionState string

const (
	StatePlanned          ExecutionState = "planned"
	StateWithdrawPending  ExecutionState = "withdraw_pending"
	StateWithdrawDone     ExecutionState = "withdraw_confirmed"
	StateBridgePending    ExecutionState = "bridge_pending"
	StateBridgeDone       ExecutionState = "bridge_confirmed"
	StateSupplyPending    ExecutionState = "supply_pending"
	StateDone             ExecutionState = "done"
	StateFailed           ExecutionState = "failed"
)

// ExecutionResult is handed to the persistence and notification
// collaborators once a plan stops, successfully or not. FailedStep is -1
// unless FinalState is StateFailed.
type ExecutionResult struct {
	RecommendationID string         `json:"recommendation_id"`
	FinalState       ExecutionState `json:"final_state"`
	FailedStep       int            `json:"failed_step"`
	FailureReason    string         `json:"failure_reason,omitempty"`
	Operations       []Operation    `json:"operations"`
}
