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

// Silo V2 collateral types. Standard deposits are borrowable collateral;
// protected deposits cannot be lent out.
const (
	siloCollateralStandard  = uint8(0)
	siloCollateralProtected = uint8(1)
)

// Silo V2 silos are ERC-4626 vaults whose state-changing methods take an
// extra collateral-type argument. Read methods are plain 4626.
const siloABIJSON = `[
	{"inputs":[{"name":"assets","type":"uint256"},{"name":"receiver","type":"address"},{"name":"collateralType","type":"uint8"}],"name":"deposit","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"assets","type":"uint256"},{"name":"receiver","type":"address"},{"name":"owner","type":"address"},{"name":"collateralType","type":"uint8"}],"name":"withdraw","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"owner","type":"address"},{"name":"collateralType","type":"uint8"}],"name":"maxWithdraw","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// Silo lens contract, one per chain, used for the deposit APR. Optional:
// without a configured lens the operator still executes moves, it just
// cannot report a rate.
const siloLensABIJSON = `[
	{"inputs":[{"name":"silo","type":"address"}],"name":"getDepositAPR","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var (
	siloABI     = mustABI(siloABIJSON)
	siloLensABI = mustABI(siloLensABIJSON)
)

// SiloOperator drives Silo V2 markets. Deposits use the standard
// (borrowable) collateral type, matching how yield positions are held.
type SiloOperator struct {
	base
}

func newSiloOperator(b base) *SiloOperator {
	return &SiloOperator{base: b}
}

func (o *SiloOperator) market(asset string) (common.Address, error) {
	addr, err := o.cfg.MarketContract(config.ProtocolSiloV2, o.client.Name(), asset)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(addr), nil
}

func (o *SiloOperator) SupportsToken(ctx context.Context, asset string) (bool, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return false, err
	}
	silo, err := o.market(asset)
	if err != nil {
		return false, nil
	}
	return o.cachedSupport(ctx, token, func() (bool, error) {
		underlying, err := o.vaultAsset(ctx, silo)
		if err != nil {
			return false, err
		}
		return underlying == token, nil
	})
}

func (o *SiloOperator) Spender(asset string) (common.Address, error) {
	return o.market(asset)
}

func (o *SiloOperator) Supply(ctx context.Context, asset string, amount float64) (*types.TransactionRecord, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return nil, err
	}
	silo, err := o.market(asset)
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
	if err := o.checkAllowance(ctx, token, silo, amountWei); err != nil {
		return nil, err
	}
	return o.submit(ctx, siloABI, silo, "deposit", amountWei, o.client.Address(), siloCollateralStandard)
}

func (o *SiloOperator) Withdraw(ctx context.Context, asset string, amount float64) (*types.TransactionRecord, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return nil, err
	}
	silo, err := o.market(asset)
	if err != nil {
		return nil, err
	}
	decimals, err := o.erc20(token).Decimals(ctx)
	if err != nil {
		return nil, err
	}
	amountWei := chain.ToWei(amount, decimals)

	var max *big.Int
	if err := o.read(ctx, siloABI, silo, &max, "maxWithdraw", o.client.Address(), siloCollateralStandard); err != nil {
		return nil, err
	}
	if max.Cmp(amountWei) < 0 {
		return nil, fmt.Errorf("%w: withdrawable %s, need %s", types.ErrInsufficientBalance, max, amountWei)
	}
	self := o.client.Address()
	return o.submit(ctx, siloABI, silo, "withdraw", amountWei, self, self, siloCollateralStandard)
}

func (o *SiloOperator) Balance(ctx context.Context, asset string) (float64, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return 0, err
	}
	silo, err := o.market(asset)
	if err != nil {
		return 0, err
	}
	decimals, err := o.erc20(token).Decimals(ctx)
	if err != nil {
		return 0, err
	}
	assets, err := o.vaultAssetBalance(ctx, silo)
	if err != nil {
		return 0, err
	}
	return chain.FromWei(assets, decimals), nil
}

func (o *SiloOperator) Rate(ctx context.Context, asset string) (int64, error) {
	silo, err := o.market(asset)
	if err != nil {
		return 0, err
	}
	lensAddr, err := o.cfg.PoolContract(config.ProtocolSiloV2, o.client.Name())
	if err != nil {
		return 0, fmt.Errorf("%w: no silo lens configured for %s", types.ErrUnsupportedProtocolCall, o.client.Name())
	}
	var apr *big.Int
	if err := o.read(ctx, siloLensABI, common.HexToAddress(lensAddr), &apr, "getDepositAPR", silo); err != nil {
		return 0, err
	}
	return WadFractionToBps(apr), nil
}
