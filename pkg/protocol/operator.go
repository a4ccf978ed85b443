package protocol

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yieldex/onchain/pkg/cache"
	"github.com/yieldex/onchain/pkg/chain"
	"github.com/yieldex/onchain/pkg/config"
	"github.com/yieldex/onchain/pkg/types"
)

// Operator is the uniform contract over one lending protocol family on one
// chain. Variants differ only in their contract address table, calldata
// encoding and rate-unit conversion; the registry and the engine never
// branch on a protocol name.
type Operator interface {
	// Protocol returns the protocol id (e.g. "aave-v3").
	Protocol() string

	// ChainName returns the chain the operator is bound to.
	ChainName() string

	// SupportsToken reports whether the protocol lists the asset on this
	// chain. Fails with ErrUnsupportedProtocolCall when the registry call
	// reverts for a reason other than "not listed".
	SupportsToken(ctx context.Context, asset string) (bool, error)

	// Spender returns the contract that must be approved before Supply.
	Spender(asset string) (common.Address, error)

	// Supply deposits amount (token units) into the protocol. The caller
	// must have satisfied the allowance precondition; fails with
	// ErrInsufficientAllowance otherwise.
	Supply(ctx context.Context, asset string, amount float64) (*types.TransactionRecord, error)

	// Withdraw pulls amount (token units) out of the protocol back to the
	// signer wallet. Fails with ErrInsufficientBalance when the position
	// is smaller than amount; no transaction is built in that case.
	Withdraw(ctx context.Context, asset string, amount float64) (*types.TransactionRecord, error)

	// Balance returns the signer's position in the protocol, in token units.
	Balance(ctx context.Context, asset string) (float64, error)

	// Rate returns the current supply APY in basis points per year,
	// normalized from the protocol's native representation.
	Rate(ctx context.Context, asset string) (int64, error)
}

// supportCacheTTL bounds how long a token-support answer is trusted. The
// cache is advisory: always safe to evict and recompute from chain state.
const supportCacheTTL = 10 * time.Minute

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// base carries the chain handles and config shared by every operator
// variant.
type base struct {
	protocol string
	client   *chain.Client
	exec     *chain.Executor
	cfg      *config.Config
	cache    cache.Cache
}

func (b *base) Protocol() string  { return b.protocol }
func (b *base) ChainName() string { return b.client.Name() }

func (b *base) tokenAddress(asset string) (common.Address, error) {
	addr, err := b.cfg.TokenAddress(asset, b.client.Name())
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(addr), nil
}

func (b *base) erc20(token common.Address) *chain.ERC20 {
	return chain.NewERC20(b.client, token)
}

// read packs a method call against a contract and unpacks a single output.
func (b *base) read(ctx context.Context, contractABI abi.ABI, to common.Address, out interface{}, method string, args ...interface{}) error {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s call: %w", method, err)
	}
	raw, err := b.exec.Read(ctx, to, data)
	if err != nil {
		return err
	}
	if err := contractABI.UnpackIntoInterface(out, method, raw); err != nil {
		return fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return nil
}

// submit packs a state-changing method call and hands it to the executor.
func (b *base) submit(ctx context.Context, contractABI abi.ABI, to common.Address, method string, args ...interface{}) (*types.TransactionRecord, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}
	return b.exec.Submit(ctx, chain.Call{To: to, Data: data})
}

// supportKey is the advisory-cache key for a token-support lookup.
func (b *base) supportKey(token common.Address) string {
	return fmt.Sprintf("support:%s:%s:%s", b.client.Name(), b.protocol, strings.ToLower(token.Hex()))
}

// cachedSupport consults the advisory cache before hitting the chain, and
// stores fresh answers with a TTL. Races between concurrent writers are
// tolerated; the cache is never authoritative.
func (b *base) cachedSupport(ctx context.Context, token common.Address, lookup func() (bool, error)) (bool, error) {
	key := b.supportKey(token)
	if v, ok := b.cache.Get(ctx, key); ok {
		return v == "true", nil
	}
	supported, err := lookup()
	if err != nil {
		return false, err
	}
	if supported {
		b.cache.Set(ctx, key, "true", supportCacheTTL)
	} else {
		b.cache.Set(ctx, key, "false", supportCacheTTL)
	}
	return supported, nil
}

// checkWalletBalance verifies the signer holds at least amountWei of token.
func (b *base) checkWalletBalance(ctx context.Context, token common.Address, amountWei *big.Int) error {
	balance, err := b.erc20(token).BalanceOf(ctx, b.client.Address())
	if err != nil {
		return err
	}
	if balance.Cmp(amountWei) < 0 {
		return fmt.Errorf("%w: wallet has %s, need %s", types.ErrInsufficientBalance, balance, amountWei)
	}
	return nil
}

// checkAllowance verifies the spender is approved for at least amountWei.
func (b *base) checkAllowance(ctx context.Context, token, spender common.Address, amountWei *big.Int) error {
	allowance, err := b.erc20(token).Allowance(ctx, b.client.Address(), spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amountWei) < 0 {
		return fmt.Errorf("%w: approved %s, need %s", types.ErrInsufficientAllowance, allowance, amountWei)
	}
	return nil
}
