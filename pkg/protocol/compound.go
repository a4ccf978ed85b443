package protocol

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yieldex/onchain/pkg/chain"
	"github.com/yieldex/onchain/pkg/config"
	"github.com/yieldex/onchain/pkg/types"
)

// Compound V3 deploys one Comet market per base asset. Supplying the base
// asset earns interest; balanceOf reports the rebasing base-asset balance
// directly, so no exchange rate is involved.
const cometABIJSON = `[
	{"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],"name":"supply","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],"name":"withdraw","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"baseToken","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getUtilization","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"utilization","type":"uint256"}],"name":"getSupplyRate","outputs":[{"name":"","type":"uint64"}],"stateMutability":"view","type":"function"}
]`

var cometABI = mustABI(cometABIJSON)

// CompoundOperator drives Compound V3 Comet markets. Only base-asset
// positions are handled; collateral-only assets earn nothing and are
// reported as unsupported.
type CompoundOperator struct {
	base
}

func newCompoundOperator(b base) *CompoundOperator {
	return &CompoundOperator{base: b}
}

// market resolves the Comet contract for an asset.
func (o *CompoundOperator) market(asset string) (common.Address, error) {
	addr, err := o.cfg.MarketContract(config.ProtocolCompoundV3, o.client.Name(), asset)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(addr), nil
}

func (o *CompoundOperator) SupportsToken(ctx context.Context, asset string) (bool, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return false, err
	}
	comet, err := o.market(asset)
	if err != nil {
		return false, nil
	}
	return o.cachedSupport(ctx, token, func() (bool, error) {
		var baseToken common.Address
		if err := o.read(ctx, cometABI, comet, &baseToken, "baseToken"); err != nil {
			return false, err
		}
		return baseToken == token, nil
	})
}

func (o *CompoundOperator) Spender(asset string) (common.Address, error) {
	return o.market(asset)
}

func (o *CompoundOperator) Supply(ctx context.Context, asset string, amount float64) (*types.TransactionRecord, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return nil, err
	}
	comet, err := o.market(asset)
	if err != nil {
		return nil, err
	}
	decimals, err := o.erc20(token).Decimals(ctx)
	if err != nil {
		return nil, err
	}
	amountWei := chain.ToWei(amount, decimals)

	if err := o.checkWalletBalance(ctx, token, amountWei); err != nil {
		return nil, err
	}
	if err := o.checkAllowance(ctx, token, comet, amountWei); err != nil {
		return nil, err
	}
	return o.submit(ctx, cometABI, comet, "supply", token, amountWei)
}

func (o *CompoundOperator) Withdraw(ctx context.Context, asset string, amount float64) (*types.TransactionRecord, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return nil, err
	}
	comet, err := o.market(asset)
	if err != nil {
		return nil, err
	}
	decimals, err := o.erc20(token).Decimals(ctx)
	if err != nil {
		return nil, err
	}
	amountWei := chain.ToWei(amount, decimals)

	var supplied *big.Int
	if err := o.read(ctx, cometABI, comet, &supplied, "balanceOf", o.client.Address()); err != nil {
		return nil, err
	}
	if supplied.Cmp(amountWei) < 0 {
		return nil, fmt.Errorf("%w: supplied %s, need %s", types.ErrInsufficientBalance, supplied, amountWei)
	}
	return o.submit(ctx, cometABI, comet, "withdraw", token, amountWei)
}

func (o *CompoundOperator) Balance(ctx context.Context, asset string) (float64, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return 0, err
	}
	comet, err := o.market(asset)
	if err != nil {
		return 0, err
	}
	decimals, err := o.erc20(token).Decimals(ctx)
	if err != nil {
		return 0, err
	}
	var supplied *big.Int
	if err := o.read(ctx, cometABI, comet, &supplied, "balanceOf", o.client.Address()); err != nil {
		return 0, err
	}
	return chain.FromWei(supplied, decimals), nil
}

func (o *CompoundOperator) Rate(ctx context.Context, asset string) (int64, error) {
	comet, err := o.market(asset)
	if err != nil {
		return 0, err
	}
	var utilization *big.Int
	if err := o.read(ctx, cometABI, comet, &utilization, "getUtilization"); err != nil {
		return 0, err
	}
	var perSecond uint64
	if err := o.read(ctx, cometABI, comet, &perSecond, "getSupplyRate", utilization); err != nil {
		return 0, err
	}
	return WadPerSecondToBps(new(big.Int).SetUint64(perSecond)), nil
}
