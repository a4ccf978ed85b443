package protocol

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yieldex/onchain/pkg/chain"
	"github.com/yieldex/onchain/pkg/config"
	"github.com/yieldex/onchain/pkg/types"
)

// Aave V3 pool. getReserveData returns the DataTypes.ReserveData struct;
// all fields are static so the tuple decodes as a flat sequence.
const aaveV3PoolABIJSON = `[
	{"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"onBehalfOf","type":"address"},{"name":"referralCode","type":"uint16"}],"name":"supply","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"to","type":"address"}],"name":"withdraw","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"asset","type":"address"}],"name":"getReserveData","outputs":[{"name":"configuration","type":"uint256"},{"name":"liquidityIndex","type":"uint128"},{"name":"currentLiquidityRate","type":"uint128"},{"name":"variableBorrowIndex","type":"uint128"},{"name":"currentVariableBorrowRate","type":"uint128"},{"name":"currentStableBorrowRate","type":"uint128"},{"name":"lastUpdateTimestamp","type":"uint40"},{"name":"id","type":"uint16"},{"name":"aTokenAddress","type":"address"},{"name":"stableDebtTokenAddress","type":"address"},{"name":"variableDebtTokenAddress","type":"address"},{"name":"interestRateStrategyAddress","type":"address"},{"name":"accruedToTreasury","type":"uint128"},{"name":"unbacked","type":"uint128"},{"name":"isolationModeTotalDebt","type":"uint128"}],"stateMutability":"view","type":"function"}
]`

// Aave V2 lending pool (also Lendle on Mantle, which is a V2 fork).
const aaveV2PoolABIJSON = `[
	{"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"onBehalfOf","type":"address"},{"name":"referralCode","type":"uint16"}],"name":"deposit","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"to","type":"address"}],"name":"withdraw","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"asset","type":"address"}],"name":"getReserveData","outputs":[{"name":"configuration","type":"uint256"},{"name":"liquidityIndex","type":"uint128"},{"name":"variableBorrowIndex","type":"uint128"},{"name":"currentLiquidityRate","type":"uint128"},{"name":"currentVariableBorrowRate","type":"uint128"},{"name":"currentStableBorrowRate","type":"uint128"},{"name":"lastUpdateTimestamp","type":"uint40"},{"name":"aTokenAddress","type":"address"},{"name":"stableDebtTokenAddress","type":"address"},{"name":"variableDebtTokenAddress","type":"address"},{"name":"interestRateStrategyAddress","type":"address"},{"name":"id","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var (
	aaveV3PoolABI = mustABI(aaveV3PoolABIJSON)
	aaveV2PoolABI = mustABI(aaveV2PoolABIJSON)
)

// Reserve configuration bitfield: bit 56 = active, bit 57 = frozen.
const (
	reserveActiveBit = 56
	reserveFrozenBit = 57
)

type aaveV3ReserveData struct {
	Configuration               *big.Int
	LiquidityIndex              *big.Int
	CurrentLiquidityRate        *big.Int
	VariableBorrowIndex         *big.Int
	CurrentVariableBorrowRate   *big.Int
	CurrentStableBorrowRate     *big.Int
	LastUpdateTimestamp         *big.Int
	Id                          uint16
	ATokenAddress               common.Address
	StableDebtTokenAddress      common.Address
	VariableDebtTokenAddress    common.Address
	InterestRateStrategyAddress common.Address
	AccruedToTreasury           *big.Int
	Unbacked                    *big.Int
	IsolationModeTotalDebt      *big.Int
}

type aaveV2ReserveData struct {
	Configuration               *big.Int
	LiquidityIndex              *big.Int
	VariableBorrowIndex         *big.Int
	CurrentLiquidityRate        *big.Int
	CurrentVariableBorrowRate   *big.Int
	CurrentStableBorrowRate     *big.Int
	LastUpdateTimestamp         *big.Int
	ATokenAddress               common.Address
	StableDebtTokenAddress      common.Address
	VariableDebtTokenAddress    common.Address
	InterestRateStrategyAddress common.Address
	Id                          uint8
}

// AaveOperator drives Aave V3, Aave V2 and Lendle (V2 fork) pools. The only
// differences between the variants are the deposit method name and the
// reserve-data layout.
type AaveOperator struct {
	base
	pool common.Address
	v3   bool
}

func newAaveOperator(b base, protocol string) (*AaveOperator, error) {
	addr, err := b.cfg.PoolContract(protocol, b.client.Name())
	if err != nil {
		return nil, err
	}
	return &AaveOperator{
		base: b,
		pool: common.HexToAddress(addr),
		v3:   protocol == config.ProtocolAaveV3,
	}, nil
}

// reserve fetches and normalizes the pool's reserve entry for a token.
func (o *AaveOperator) reserve(ctx context.Context, token common.Address) (active, frozen bool, aToken common.Address, liquidityRate *big.Int, err error) {
	if o.v3 {
		var data aaveV3ReserveData
		if err = o.read(ctx, aaveV3PoolABI, o.pool, &data, "getReserveData", token); err != nil {
			return
		}
		cfg := data.Configuration
		active = cfg.Bit(reserveActiveBit) == 1
		frozen = cfg.Bit(reserveFrozenBit) == 1
		aToken = data.ATokenAddress
		liquidityRate = data.CurrentLiquidityRate
		return
	}
	var data aaveV2ReserveData
	if err = o.read(ctx, aaveV2PoolABI, o.pool, &data, "getReserveData", token); err != nil {
		return
	}
	cfg := data.Configuration
	active = cfg.Bit(reserveActiveBit) == 1
	frozen = cfg.Bit(reserveFrozenBit) == 1
	aToken = data.ATokenAddress
	liquidityRate = data.CurrentLiquidityRate
	return
}

func (o *AaveOperator) SupportsToken(ctx context.Context, asset string) (bool, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return false, err
	}
	return o.cachedSupport(ctx, token, func() (bool, error) {
		active, frozen, aToken, _, err := o.reserve(ctx, token)
		if err != nil {
			if errors.Is(err, types.ErrWouldRevert) {
				// An unlisted token yields a zeroed reserve, not a revert.
				return false, fmt.Errorf("%w: getReserveData: %v", types.ErrUnsupportedProtocolCall, err)
			}
			return false, err
		}
		if aToken == (common.Address{}) {
			return false, nil
		}
		return active && !frozen, nil
	})
}

func (o *AaveOperator) Spender(asset string) (common.Address, error) {
	return o.pool, nil
}

func (o *AaveOperator) Supply(ctx context.Context, asset string, amount float64) (*types.TransactionRecord, error) {
	token, err := o.tokenAddress(asset)
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
	if err := o.checkAllowance(ctx, token, o.pool, amountWei); err != nil {
		return nil, err
	}

	if o.v3 {
		return o.submit(ctx, aaveV3PoolABI, o.pool, "supply", token, amountWei, o.client.Address(), uint16(0))
	}
	return o.submit(ctx, aaveV2PoolABI, o.pool, "deposit", token, amountWei, o.client.Address(), uint16(0))
}

func (o *AaveOperator) Withdraw(ctx context.Context, asset string, amount float64) (*types.TransactionRecord, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return nil, err
	}
	active, _, aToken, _, err := o.reserve(ctx, token)
	if err != nil {
		return nil, err
	}
	if !active || aToken == (common.Address{}) {
		return nil, fmt.Errorf("%w: %s on %s/%s", types.ErrUnsupportedToken, asset, o.ChainName(), o.protocol)
	}

	receipt := o.erc20(aToken)
	decimals, err := receipt.Decimals(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := receipt.BalanceOf(ctx, o.client.Address())
	if err != nil {
		return nil, err
	}
	amountWei := chain.ToWei(amount, decimals)
	if balance.Cmp(amountWei) < 0 {
		return nil, fmt.Errorf("%w: have %s aToken units, need %s", types.ErrInsufficientBalance, balance, amountWei)
	}

	abiVariant := aaveV3PoolABI
	if !o.v3 {
		abiVariant = aaveV2PoolABI
	}
	return o.submit(ctx, abiVariant, o.pool, "withdraw", token, amountWei, o.client.Address())
}

func (o *AaveOperator) Balance(ctx context.Context, asset string) (float64, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return 0, err
	}
	_, _, aToken, _, err := o.reserve(ctx, token)
	if err != nil {
		return 0, err
	}
	if aToken == (common.Address{}) {
		return 0, nil
	}
	receipt := o.erc20(aToken)
	decimals, err := receipt.Decimals(ctx)
	if err != nil {
		return 0, err
	}
	balance, err := receipt.BalanceOf(ctx, o.client.Address())
	if err != nil {
		return 0, err
	}
	return chain.FromWei(balance, decimals), nil
}

func (o *AaveOperator) Rate(ctx context.Context, asset string) (int64, error) {
	token, err := o.tokenAddress(asset)
	if err != nil {
		return 0, err
	}
	_, _, _, liquidityRate, err := o.reserve(ctx, token)
	if err != nil {
		return 0, err
	}
	return RayToBps(liquidityRate), nil
}
