package protocol

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/yieldex/onchain/pkg/cache"
	"github.com/yieldex/onchain/pkg/chain"
	"github.com/yieldex/onchain/pkg/config"
)

// scriptedBackend routes eth_call by 4-byte selector to canned responses.
type scriptedBackend struct {
	stubBackend
	responses map[[4]byte][]byte
}

func (s *scriptedBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var sel [4]byte
	copy(sel[:], msg.Data[:4])
	if resp, ok := s.responses[sel]; ok {
		return resp, nil
	}
	return nil, ethereum.NotFound
}

func (s *scriptedBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return nil, ethereum.NotFound
}

func selector(m string, fromABI string) [4]byte {
	var sel [4]byte
	switch fromABI {
	case "v3":
		copy(sel[:], aaveV3PoolABI.Methods[m].ID)
	default:
		copy(sel[:], aaveV2PoolABI.Methods[m].ID)
	}
	return sel
}

// packV3Reserve encodes a getReserveData response with the given
// configuration bitfield, liquidity rate and aToken address.
func packV3Reserve(t *testing.T, configuration, liquidityRate *big.Int, aToken common.Address) []byte {
	t.Helper()
	zero := big.NewInt(0)
	out, err := aaveV3PoolABI.Methods["getReserveData"].Outputs.Pack(
		configuration, zero, liquidityRate, zero, zero, zero,
		zero, uint16(0), aToken, common.Address{}, common.Address{}, common.Address{},
		zero, zero, zero,
	)
	if err != nil {
		t.Fatalf("pack reserve data: %v", err)
	}
	return out
}

func newAaveTestOperator(t *testing.T, backend chain.Backend) *AaveOperator {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	client := chain.NewClientWithBackend("Ethereum", 1, backend, key)
	exec := chain.NewExecutor(client, chain.DefaultExecutorOptions())
	b := base{
		protocol: config.ProtocolAaveV3,
		client:   client,
		exec:     exec,
		cfg:      config.DefaultConfig(),
		cache:    cache.NewMemoryCache(),
	}
	op, err := newAaveOperator(b, config.ProtocolAaveV3)
	if err != nil {
		t.Fatalf("newAaveOperator: %v", err)
	}
	return op
}

func TestAaveSupportsTokenActiveReserve(t *testing.T) {
	configuration := new(big.Int).Lsh(big.NewInt(1), reserveActiveBit)
	aToken := common.HexToAddress("0x98C23E9d8f34FEFb1B7BD6a91B7FF122F4e16F5c")
	backend := &scriptedBackend{responses: map[[4]byte][]byte{
		selector("getReserveData", "v3"): packV3Reserve(t, configuration, big.NewInt(0), aToken),
	}}
	op := newAaveTestOperator(t, backend)

	supported, err := op.SupportsToken(context.Background(), "USDC")
	if err != nil {
		t.Fatalf("SupportsToken: %v", err)
	}
	if !supported {
		t.Error("expected active reserve to be supported")
	}
}

func TestAaveSupportsTokenFrozenReserve(t *testing.T) {
	configuration := new(big.Int).Lsh(big.NewInt(1), reserveActiveBit)
	configuration.Or(configuration, new(big.Int).Lsh(big.NewInt(1), reserveFrozenBit))
	aToken := common.HexToAddress("0x98C23E9d8f34FEFb1B7BD6a91B7FF122F4e16F5c")
	backend := &scriptedBackend{responses: map[[4]byte][]byte{
		selector("getReserveData", "v3"): packV3Reserve(t, configuration, big.NewInt(0), aToken),
	}}
	op := newAaveTestOperator(t, backend)

	supported, err := op.SupportsToken(context.Background(), "USDC")
	if err != nil {
		t.Fatalf("SupportsToken: %v", err)
	}
	if supported {
		t.Error("frozen reserve must not be supported")
	}
}

func TestAaveSupportsTokenZeroAToken(t *testing.T) {
	configuration := new(big.Int).Lsh(big.NewInt(1), reserveActiveBit)
	backend := &scriptedBackend{responses: map[[4]byte][]byte{
		selector("getReserveData", "v3"): packV3Reserve(t, configuration, big.NewInt(0), common.Address{}),
	}}
	op := newAaveTestOperator(t, backend)

	supported, err := op.SupportsToken(context.Background(), "USDC")
	if err != nil {
		t.Fatalf("SupportsToken: %v", err)
	}
	if supported {
		t.Error("unlisted reserve must not be supported")
	}
}

func TestAaveRateNormalizesRay(t *testing.T) {
	// 5% in ray scaling must come back as 500 bps.
	rate, _ := new(big.Int).SetString("50000000000000000000000000", 10)
	configuration := new(big.Int).Lsh(big.NewInt(1), reserveActiveBit)
	aToken := common.HexToAddress("0x98C23E9d8f34FEFb1B7BD6a91B7FF122F4e16F5c")
	backend := &scriptedBackend{responses: map[[4]byte][]byte{
		selector("getReserveData", "v3"): packV3Reserve(t, configuration, rate, aToken),
	}}
	op := newAaveTestOperator(t, backend)

	bps, err := op.Rate(context.Background(), "USDC")
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if bps != 500 {
		t.Errorf("Rate = %d bps, want 500", bps)
	}
}

func TestAaveSupportsTokenCached(t *testing.T) {
	configuration := new(big.Int).Lsh(big.NewInt(1), reserveActiveBit)
	aToken := common.HexToAddress("0x98C23E9d8f34FEFb1B7BD6a91B7FF122F4e16F5c")
	backend := &scriptedBackend{responses: map[[4]byte][]byte{
		selector("getReserveData", "v3"): packV3Reserve(t, configuration, big.NewInt(0), aToken),
	}}
	op := newAaveTestOperator(t, backend)

	if _, err := op.SupportsToken(context.Background(), "USDC"); err != nil {
		t.Fatalf("SupportsToken: %v", err)
	}
	// Second lookup must be served from the cache even if the chain
	// stops answering.
	backend.responses = nil
	supported, err := op.SupportsToken(context.Background(), "USDC")
	if err != nil {
		t.Fatalf("SupportsToken (cached): %v", err)
	}
	if !supported {
		t.Error("expected cached support answer")
	}
}
