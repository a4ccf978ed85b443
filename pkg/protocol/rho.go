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

// Rho Markets is a Compound V2-style cToken fork on Scroll. Deposits mint
// interest-bearing rTokens; the underlying balance is rToken balance times
// the stored exchange rate.
const rTokenABIJSON = `[
	{"inputs":[{"name":"mintAmount","type":"uint256"}],"name":"mint","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"redeemAmount","type":"uint256"}],"name":"redeemUnderlying","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"exchangeRateStored","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"supplyRatePerBlock","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"underlying","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

var rTokenABI = mustABI(rTokenABIJSON)

// Scroll produces a block roughly every three seconds.
const rhoBlocksPerYear = secondsPerYear / 3

// RhoOperator drives Rho Markets rTokens.
type RhoOperator struct {
	base
}

func newRhoOperator(b base) *RhoOperator {
	return &RhoOperator{base: b}
}

func (o *RhoOperator) market(asset string) (common.Address, error) {
	addr, err := o.cfg.MarketContract(config.ProtocolRhoMarkets, o.client.Name(), asset)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(addr), nil
}

// underlyingBalance converts an rToken balance to underlying units using
// the stored exchange rate (scaled by 1e18).
func (o *RhoOperator) underlyingBalance(ctx context.Context, rToken common.Address) (*big.Int, error) {
	var held *big.Int
	if err := o.read(ctx, rTokenABI, rToken, &held, "balanceOf", o.client.Address()); err != nil {
		return nil, err
	}
	var rate *big.Int
	if err := o.read(ctx, rTokenABI, rToken, &rate, "exchangeRateStored"); err != nil {
		return nil, err
	}
	out := new(big.Int).Mul(held, rate)
	return out.Div(out, wad), nil
}

func (o *RhoOperator) SupportsToken(ctx context.Context, asset string) (bool, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return false, err
	}
	rToken, err := o.market(asset)
	if err != nil {
		return false, nil
	}
	return o.cachedSupport(ctx, token, func() (bool, error) {
		var underlying common.Address
		if err := o.read(ctx, rTokenABI, rToken, &underlying, "underlying"); err != nil {
			return false, err
		}
		return underlying == token, nil
	})
}

func (o *RhoOperator) Spender(asset string) (common.Address, error) {
	return o.market(asset)
}

func (o *RhoOperator) Supply(ctx context.Context, asset string, amount float64) (*types.TransactionRecord, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return nil, err
	}
	rToken, err := o.market(asset)
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
	if err := o.checkAllowance(ctx, token, rToken, amountWei); err != nil {
		return nil, err
	}
	return o.submit(ctx, rTokenABI, rToken, "mint", amountWei)
}

func (o *RhoOperator) Withdraw(ctx context.Context, asset string, amount float64) (*types.TransactionRecord, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return nil, err
	}
	rToken, err := o.market(asset)
	if err != nil {
		return nil, err
	}
	decimals, err := o.erc20(token).Decimals(ctx)
	if err != nil {
		return nil, err
	}
	amountWei := chain.ToWei(amount, decimals)

	supplied, err := o.underlyingBalance(ctx, rToken)
	if err != nil {
		return nil, err
	}
	if supplied.Cmp(amountWei) < 0 {
		return nil, fmt.Errorf("%w: supplied %s, need %s", types.ErrInsufficientBalance, supplied, amountWei)
	}
	return o.submit(ctx, rTokenABI, rToken, "redeemUnderlying", amountWei)
}

func (o *RhoOperator) Balance(ctx context.Context, asset string) (float64, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return 0, err
	}
	rToken, err := o.market(asset)
	if err != nil {
		return 0, err
	}
	decimals, err := o.erc20(token).Decimals(ctx)
	if err != nil {
		return 0, err
	}
	supplied, err := o.underlyingBalance(ctx, rToken)
	if err != nil {
		return 0, err
	}
	return chain.FromWei(supplied, decimals), nil
}

func (o *RhoOperator) Rate(ctx context.Context, asset string) (int64, error) {
	rToken, err := o.market(asset)
	if err != nil {
		return 0, err
	}
	var perBlock *big.Int
	if err := o.read(ctx, rTokenABI, rToken, &perBlock, "supplyRatePerBlock"); err != nil {
		return 0, err
	}
	return WadPerBlockToBps(perBlock, rhoBlocksPerYear), nil
}
