package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ERC20 wraps the token calls every operator needs.
type ERC20 struct {
	client *Client
	token  common.Address
}

// NewERC20 binds a token contract on a chain.
func NewERC20(client *Client, token common.Address) *ERC20 {
	return &ERC20{client: client, token: token}
}

func (t *ERC20) call(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}
	return t.client.backend.CallContract(ctx, ethereum.CallMsg{To: &t.token, Data: data}, nil)
}

// Decimals returns the token's decimal count.
func (t *ERC20) Decimals(ctx context.Context) (uint8, error) {
	out, err := t.call(ctx, "decimals")
	if err != nil {
		return 0, fmt.Errorf("failed to read decimals: %w", err)
	}
	var decimals uint8
	if err := erc20ABI.UnpackIntoInterface(&decimals, "decimals", out); err != nil {
		return 0, fmt.Errorf("failed to unpack decimals: %w", err)
	}
	return decimals, nil
}

// BalanceOf returns the token balance of an account.
func (t *ERC20) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := t.call(ctx, "balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	var balance *big.Int
	if err := erc20ABI.UnpackIntoInterface(&balance, "balanceOf", out); err != nil {
		return nil, fmt.Errorf("failed to unpack balance: %w", err)
	}
	return balance, nil
}

// Allowance returns how much the spender may pull from the owner.
func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := t.call(ctx, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to read allowance: %w", err)
	}
	var allowance *big.Int
	if err := erc20ABI.UnpackIntoInterface(&allowance, "allowance", out); err != nil {
		return nil, fmt.Errorf("failed to unpack allowance: %w", err)
	}
	return allowance, nil
}

// ApproveCall builds the unsigned approve(spender, amount) call.
func (t *ERC20) ApproveCall(spender common.Address, amount *big.Int) (Call, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return Call{}, fmt.Errorf("failed to pack approve call: %w", err)
	}
	return Call{To: t.token, Data: data}, nil
}

// ToWei converts a token-unit amount to base units given decimals.
func ToWei(amount float64, decimals uint8) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(amount), new(big.Float).SetInt(pow10(decimals)))
	wei, _ := scaled.Int(nil)
	return wei
}

// FromWei converts base units to token units given decimals.
func FromWei(amount *big.Int, decimals uint8) float64 {
	f := new(big.Float).Quo(new(big.Float).SetInt(amount), new(big.Float).SetInt(pow10(decimals)))
	out, _ := f.Float64()
	return out
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
