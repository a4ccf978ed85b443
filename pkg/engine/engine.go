// Package engine turns recommendations into ordered sequences of on-chain
// transactions: withdraw from the source pool, bridge when the chains
// differ, supply into the destination pool. Every step must confirm before
// the next starts, and a failed step halts the plan without rollback; the
// worst case is funds parked in the signer's own wallet.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/yieldex/onchain/pkg/chain"
	"github.com/yieldex/onchain/pkg/config"
	"github.com/yieldex/onchain/pkg/protocol"
	"github.com/yieldex/onchain/pkg/types"
)

// Resolver hands out operators and per-chain executors. *protocol.Registry
// is the production implementation.
type Resolver interface {
	Resolve(chainName, protocolID string) (protocol.Operator, error)
	ExecutorFor(chainName string) (*chain.Executor, error)
}

// Engine drives recommendation plans. Safe for use from one goroutine per
// recommendation; submissions on the same chain serialize in the chain
// executor's nonce sequence.
type Engine struct {
	cfg      *config.Config
	resolver Resolver
	bridge   Bridge
	store    *Store
}

// New creates an engine. A nil bridge rejects cross-chain plans at their
// bridge step; a nil store disables crash recovery.
func New(cfg *config.Config, resolver Resolver, bridge Bridge, store *Store) *Engine {
	if bridge == nil {
		bridge = UnconfiguredBridge{}
	}
	return &Engine{cfg: cfg, resolver: resolver, bridge: bridge, store: store}
}

// Execute validates, plans and runs a recommendation. Structural validation
// failures return an error with a nil result and nothing on-chain. Once
// execution starts, failures are contained: the result carries the failed
// step index and reason, and the error return is nil so one bad
// recommendation never stops the caller's loop.
func (e *Engine) Execute(ctx context.Context, rec types.Recommendation) (*types.ExecutionResult, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	ops, err := Plan(rec)
	if err != nil {
		return nil, err
	}

	srcOp, err := e.resolver.Resolve(rec.SourcePool.Chain, rec.SourcePool.Protocol)
	if err != nil {
		return nil, fmt.Errorf("source pool %s: %w", rec.SourcePool, err)
	}
	destOp, err := e.resolver.Resolve(rec.DestPool.Chain, rec.DestPool.Protocol)
	if err != nil {
		return nil, fmt.Errorf("dest pool %s: %w", rec.DestPool, err)
	}

	if supported, err := destOp.SupportsToken(ctx, rec.Asset); err != nil {
		return nil, fmt.Errorf("dest pool %s: %w", rec.DestPool, err)
	} else if !supported {
		return nil, fmt.Errorf("dest pool %s: %w", rec.DestPool, types.ErrUnsupportedToken)
	}

	record := &ExecutionRecord{Recommendation: rec, State: types.StatePlanned, Operations: ops}
	e.resume(record)
	e.persist(record)

	for i := range record.Operations {
		op := &record.Operations[i]
		if op.Status == types.StatusConfirmed {
			log.Printf("[engine] %s: step %d (%s) already confirmed, skipping", rec.ID, i, op.Kind)
			continue
		}
		if err := ctx.Err(); err != nil {
			// Cancellation never interrupts an in-flight transaction; it
			// only stops the plan from advancing.
			return e.fail(record, i, fmt.Errorf("execution cancelled: %w", err)), nil
		}

		// A prior run already broadcast this step. That transaction may
		// still mine, so it must settle before a replacement is even
		// considered: re-issuing here would double a withdraw or supply.
		if op.Record != nil && op.Record.Hash != "" {
			settled, done := e.settlePrior(ctx, record, i, op)
			if done {
				return settled, nil
			}
			continue
		}

		record.State = pendingState(op.Kind)
		e.persist(record)

		var txRecord *types.TransactionRecord
		var stepErr error
		switch op.Kind {
		case types.OpWithdraw:
			txRecord, stepErr = srcOp.Withdraw(ctx, rec.Asset, op.Amount)
		case types.OpBridge:
			txRecord, stepErr = e.bridge.Move(ctx, *op.Route, op.Amount)
		case types.OpSupply:
			txRecord, stepErr = e.supply(ctx, destOp, rec.Asset, op.Amount)
		default:
			stepErr = fmt.Errorf("unknown operation kind %q", op.Kind)
		}
		if stepErr != nil {
			return e.fail(record, i, stepErr), nil
		}

		op.Record = txRecord
		op.Status = txRecord.Status
		e.persist(record)

		if txRecord.Status == types.StatusSubmitted {
			exec, err := e.executorForOp(op)
			if err != nil {
				return e.fail(record, i, err), nil
			}
			txRecord, err = exec.AwaitConfirmation(ctx, txRecord)
			op.Record = txRecord
			op.Status = txRecord.Status
			if err != nil {
				return e.fail(record, i, err), nil
			}
		}

		switch txRecord.Status {
		case types.StatusConfirmed:
			op.Status = types.StatusConfirmed
			record.State = doneState(op.Kind)
			e.persist(record)
			log.Printf("[engine] %s: step %d (%s) confirmed, tx=%s", rec.ID, i, op.Kind, txRecord.Hash)
		case types.StatusPending:
			// Mined nowhere within the confirmation window. Halting keeps
			// the plan recoverable: the transaction may still land.
			return e.fail(record, i, fmt.Errorf("confirmation timed out for tx %s", txRecord.Hash)), nil
		default:
			return e.fail(record, i, fmt.Errorf("step ended in status %s", txRecord.Status)), nil
		}
	}

	record.State = types.StateDone
	e.persist(record)
	return &types.ExecutionResult{
		RecommendationID: rec.ID,
		FinalState:       types.StateDone,
		FailedStep:       -1,
		Operations:       record.Operations,
	}, nil
}

// settlePrior re-polls a transaction left in flight by an earlier run of
// the same recommendation. Confirmed promotes the step and lets the plan
// continue (done=false); anything else halts with a terminal result
// (done=true). The step is never re-issued while its first transaction is
// unaccounted for.
func (e *Engine) settlePrior(ctx context.Context, record *ExecutionRecord, step int, op *types.Operation) (*types.ExecutionResult, bool) {
	exec, err := e.executorForOp(op)
	if err != nil {
		return e.fail(record, step, err), true
	}
	log.Printf("[engine] %s: step %d (%s) has in-flight tx %s from an earlier run, re-polling",
		record.Recommendation.ID, step, op.Kind, op.Record.Hash)

	settled, err := exec.AwaitConfirmation(ctx, op.Record)
	if settled != nil {
		op.Record = settled
		op.Status = settled.Status
	}
	if err != nil {
		return e.fail(record, step, err), true
	}
	if settled.Status != types.StatusConfirmed {
		return e.fail(record, step, fmt.Errorf("tx %s from an earlier run is still unconfirmed", settled.Hash)), true
	}
	record.State = doneState(op.Kind)
	e.persist(record)
	log.Printf("[engine] %s: step %d (%s) confirmed by earlier run, tx=%s",
		record.Recommendation.ID, step, op.Kind, settled.Hash)
	return nil, false
}

// supply issues the deposit, approving the spender first if the protocol
// reports a short allowance.
func (e *Engine) supply(ctx context.Context, op protocol.Operator, asset string, amount float64) (*types.TransactionRecord, error) {
	record, err := op.Supply(ctx, asset, amount)
	if !errors.Is(err, types.ErrInsufficientAllowance) {
		return record, err
	}
	if aerr := e.approve(ctx, op, asset, amount); aerr != nil {
		return nil, fmt.Errorf("approval failed: %w", aerr)
	}
	return op.Supply(ctx, asset, amount)
}

// approve grants the protocol's spender contract exactly the amount being
// supplied and waits for the approval to confirm.
func (e *Engine) approve(ctx context.Context, op protocol.Operator, asset string, amount float64) error {
	exec, err := e.resolver.ExecutorFor(op.ChainName())
	if err != nil {
		return err
	}
	spender, err := op.Spender(asset)
	if err != nil {
		return err
	}
	tokenAddr, err := e.cfg.TokenAddress(asset, op.ChainName())
	if err != nil {
		return err
	}

	token := chain.NewERC20(exec.Client(), ethcommon.HexToAddress(tokenAddr))
	decimals, err := token.Decimals(ctx)
	if err != nil {
		return err
	}
	amountWei := chain.ToWei(amount, decimals)

	call, err := token.ApproveCall(spender, amountWei)
	if err != nil {
		return err
	}
	record, err := exec.Submit(ctx, call)
	if err != nil {
		return err
	}
	log.Printf("[engine] approval sent on %s: tx=%s", op.ChainName(), record.Hash)
	record, err = exec.AwaitConfirmation(ctx, record)
	if err != nil {
		return err
	}
	if record.Status != types.StatusConfirmed {
		return fmt.Errorf("approval tx %s ended in status %s", record.Hash, record.Status)
	}
	return nil
}

// resume folds a previously stored record into the fresh plan so confirmed
// steps are never re-issued after a crash.
func (e *Engine) resume(record *ExecutionRecord) {
	if e.store == nil {
		return
	}
	stored, err := e.store.Load(record.Recommendation.ID)
	if err != nil {
		log.Printf("[engine] ⚠️ failed to load state for %s: %v", record.Recommendation.ID, err)
		return
	}
	if stored == nil || len(stored.Operations) != len(record.Operations) {
		return
	}
	for i := range stored.Operations {
		if stored.Operations[i].Kind != record.Operations[i].Kind {
			return
		}
	}
	record.State = stored.State
	record.Operations = stored.Operations
	log.Printf("[engine] resuming %s from state %s", record.Recommendation.ID, stored.State)
}

func (e *Engine) persist(record *ExecutionRecord) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(record); err != nil {
		log.Printf("[engine] ⚠️ failed to persist state for %s: %v", record.Recommendation.ID, err)
	}
}

// fail marks the current step failed, persists, and builds the terminal
// result. Prior confirmed steps stay as they are: funds already withdrawn
// sit in the signer's wallet, which is recoverable by hand.
func (e *Engine) fail(record *ExecutionRecord, step int, err error) *types.ExecutionResult {
	op := &record.Operations[step]
	op.Status = types.StatusFailed
	op.Error = err.Error()
	record.State = types.StateFailed
	e.persist(record)
	log.Printf("[engine] %s: step %d (%s) failed: %v", record.Recommendation.ID, step, op.Kind, err)
	return &types.ExecutionResult{
		RecommendationID: record.Recommendation.ID,
		FinalState:       types.StateFailed,
		FailedStep:       step,
		FailureReason:    err.Error(),
		Operations:       record.Operations,
	}
}

// executorForOp finds the chain executor that submitted an operation.
func (e *Engine) executorForOp(op *types.Operation) (*chain.Executor, error) {
	chainName := op.Pool.Chain
	if op.Kind == types.OpBridge && op.Route != nil {
		chainName = op.Route.FromChain
	}
	return e.resolver.ExecutorFor(chainName)
}

func pendingState(kind types.OperationKind) types.ExecutionState {
	switch kind {
	case types.OpWithdraw:
		return types.StateWithdrawPending
	case types.OpBridge:
		return types.StateBridgePending
	default:
		return types.StateSupplyPending
	}
}

func doneState(kind types.OperationKind) types.ExecutionState {
	switch kind {
	case types.OpWithdraw:
		return types.StateWithdrawDone
	case types.OpBridge:
		return types.StateBridgeDone
	default:
		return types.StateDone
	}
}
