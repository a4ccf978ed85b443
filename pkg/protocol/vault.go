package protocol

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Shared ERC-4626 surface. Fluid fTokens implement it as-is; Silo V2 adds
// a collateral-type argument to the state-changing methods but keeps the
// read side identical.
const erc4626ABIJSON = `[
	{"inputs":[],"name":"asset","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"assets","type":"uint256"},{"name":"receiver","type":"address"}],"name":"deposit","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"assets","type":"uint256"},{"name":"receiver","type":"address"},{"name":"owner","type":"address"}],"name":"withdraw","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"owner","type":"address"}],"name":"maxWithdraw","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"shares","type":"uint256"}],"name":"convertToAssets","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var erc4626ABI = mustABI(erc4626ABIJSON)

// vaultAsset reads the vault's underlying asset address.
func (b *base) vaultAsset(ctx context.Context, vault common.Address) (common.Address, error) {
	var asset common.Address
	if err := b.read(ctx, erc4626ABI, vault, &asset, "asset"); err != nil {
		return common.Address{}, err
	}
	return asset, nil
}

// vaultAssetBalance reads the signer's share balance and converts it to
// underlying units.
func (b *base) vaultAssetBalance(ctx context.Context, vault common.Address) (*big.Int, error) {
	var shares *big.Int
	if err := b.read(ctx, erc4626ABI, vault, &shares, "balanceOf", b.client.Address()); err != nil {
		return nil, err
	}
	if shares.Sign() == 0 {
		return big.NewInt(0), nil
	}
	var assets *big.Int
	if err := b.read(ctx, erc4626ABI, vault, &assets, "convertToAssets", shares); err != nil {
		return nil, err
	}
	return assets, nil
}
