package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yieldex/onchain/pkg/types"
)

// ErrInvalidRecommendation covers structural validation failures: asset
// mismatch, non-positive amount, self moves. Economic soundness is never
// checked here.
var ErrInvalidRecommendation = errors.New("invalid recommendation")

// Plan decomposes a recommendation into its ordered operations: Withdraw
// from the source pool, a Bridge leg only when the chains differ, then
// Supply into the destination pool. No transaction is built here.
func Plan(rec types.Recommendation) ([]types.Operation, error) {
	if rec.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %v", ErrInvalidRecommendation, rec.Amount)
	}
	asset := strings.ToUpper(rec.Asset)
	if asset == "" {
		return nil, fmt.Errorf("%w: missing asset", ErrInvalidRecommendation)
	}
	if !strings.EqualFold(rec.SourcePool.Asset, rec.Asset) || !strings.EqualFold(rec.DestPool.Asset, rec.Asset) {
		return nil, fmt.Errorf("%w: asset mismatch between pools (%s, %s) and recommendation (%s)",
			ErrInvalidRecommendation, rec.SourcePool.Asset, rec.DestPool.Asset, rec.Asset)
	}
	if rec.SourcePool == rec.DestPool {
		return nil, fmt.Errorf("%w: source and destination pool are identical", ErrInvalidRecommendation)
	}

	ops := []types.Operation{
		{Kind: types.OpWithdraw, Pool: rec.SourcePool, Amount: rec.Amount, Status: types.StatusPending},
	}
	if rec.SourcePool.Chain != rec.DestPool.Chain {
		ops = append(ops, types.Operation{
			Kind: types.OpBridge,
			Route: &types.BridgeRoute{
				FromChain: rec.SourcePool.Chain,
				ToChain:   rec.DestPool.Chain,
				Asset:     asset,
			},
			Amount: rec.Amount,
			Status: types.StatusPending,
		})
	}
	ops = append(ops, types.Operation{
		Kind: types.OpSupply, Pool: rec.DestPool, Amount: rec.Amount, Status: types.StatusPending,
	})
	return ops, nil
}
