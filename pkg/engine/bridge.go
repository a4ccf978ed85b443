package engine

import (
	"context"
	"errors"

	"github.com/yieldex/onchain/pkg/types"
)

// ErrNoBridge is returned when a cross-chain plan reaches its bridge step
// and no bridge operator was configured. The withdraw has already landed by
// then, so the funds sit safely in the signer's wallet on the source chain.
var ErrNoBridge = errors.New("no bridge operator configured")

// Bridge moves an asset between chains. It is an external collaborator
// invoked as one opaque step: Move blocks through the bridge's own
// confirmation handling and returns a terminal record.
type Bridge interface {
	Move(ctx context.Context, route types.BridgeRoute, amount float64) (*types.TransactionRecord, error)
}

// UnconfiguredBridge rejects every move. It is the default so that
// same-chain recommendations work without any bridge setup.
type UnconfiguredBridge struct{}

func (UnconfiguredBridge) Move(ctx context.Context, route types.BridgeRoute, amount float64) (*types.TransactionRecord, error) {
	return nil, ErrNoBridge
}
