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

// FluidOperator drives Fluid fTokens, which are plain ERC-4626 vaults.
// Fluid publishes supply rates through an off-chain resolver rather than
// the vault itself, so Rate is not available here; recommendations carry
// their expected gain from the scoring side.
type FluidOperator struct {
	base
}

func newFluidOperator(b base) *FluidOperator {
	return &FluidOperator{base: b}
}

func (o *FluidOperator) market(asset string) (common.Address, error) {
	addr, err := o.cfg.MarketContract(config.ProtocolFluid, o.client.Name(), asset)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(addr), nil
}

func (o *FluidOperator) SupportsToken(ctx context.Context, asset string) (bool, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return false, err
	}
	fToken, err := o.market(asset)
	if err != nil {
		return false, nil
	}
	return o.cachedSupport(ctx, token, func() (bool, error) {
		underlying, err := o.vaultAsset(ctx, fToken)
		if err != nil {
			return false, err
		}
		return underlying == token, nil
	})
}

func (o *FluidOperator) Spender(asset string) (common.Address, error) {
	return o.market(asset)
}

func (o *FluidOperator) Supply(ctx context.Context, asset string, amount float64) (*types.TransactionRecord, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return nil, err
	}
	fToken, err := o.market(asset)
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
	if err := o.checkAllowance(ctx, token, fToken, amountWei); err != nil {
		return nil, err
	}
	return o.submit(ctx, erc4626ABI, fToken, "deposit", amountWei, o.client.Address())
}

func (o *FluidOperator) Withdraw(ctx context.Context, asset string, amount float64) (*types.TransactionRecord, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return nil, err
	}
	fToken, err := o.market(asset)
	if err != nil {
		return nil, err
	}
	decimals, err := o.erc20(token).Decimals(ctx)
	if err != nil {
		return nil, err
	}
	amountWei := chain.ToWei(amount, decimals)

	var max *big.Int
	if err := o.read(ctx, erc4626ABI, fToken, &max, "maxWithdraw", o.client.Address()); err != nil {
		return nil, err
	}
	if max.Cmp(amountWei) < 0 {
		return nil, fmt.Errorf("%w: withdrawable %s, need %s", types.ErrInsufficientBalance, max, amountWei)
	}
	self := o.client.Address()
	return o.submit(ctx, erc4626ABI, fToken, "withdraw", amountWei, self, self)
}

func (o *FluidOperator) Balance(ctx context.Context, asset string) (float64, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return 0, err
	}
	fToken, err := o.market(asset)
	if err != nil {
		return 0, err
	}
	decimals, err := o.erc20(token).Decimals(ctx)
	if err != nil {
		return 0, err
	}
	assets, err := o.vaultAssetBalance(ctx, fToken)
	if err != nil {
		return 0, err
	}
	return chain.FromWei(assets, decimals), nil
}

func (o *FluidOperator) Rate(ctx context.Context, asset string) (int64, error) {
	return 0, fmt.Errorf("%w: fluid vaults expose no on-chain supply rate", types.ErrUnsupportedProtocolCall)
}
