package chain

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/yieldex/onchain/pkg/types"
)

// fakeBackend is an in-memory chain node for executor tests.
type fakeBackend struct {
	mu sync.Mutex

	estimateErr error
	sendErrs    []error // consumed one per SendTransaction, nil entries succeed
	nonceQueue  []uint64
	receipts    map[common.Hash]*ethtypes.Receipt

	sentNonces []uint64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{receipts: make(map[common.Hash]*ethtypes.Receipt)}
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 50000, nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.nonceQueue) > 1 {
		n := f.nonceQueue[0]
		f.nonceQueue = f.nonceQueue[1:]
		return n, nil
	}
	if len(f.nonceQueue) == 1 {
		return f.nonceQueue[0], nil
	}
	return 0, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	f.sentNonces = append(f.sentNonces, tx.Nonce())
	return nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) sent() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, len(f.sentNonces))
	copy(out, f.sentNonces)
	return out
}

func newTestExecutor(t *testing.T, backend Backend, opts ExecutorOptions) *Executor {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	client := NewClientWithBackend("Testnet", 1, backend, key)
	return NewExecutor(client, opts)
}

func fastOptions() ExecutorOptions {
	return ExecutorOptions{
		MaxAttempts:  3,
		RetryDelay:   time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		MaxWait:      50 * time.Millisecond,
	}
}

func testCall() Call {
	return Call{To: common.HexToAddress("0x1"), Data: []byte{0xde, 0xad}}
}

func TestSubmitAssignsContiguousNonces(t *testing.T) {
	backend := newFakeBackend()
	exec := newTestExecutor(t, backend, fastOptions())

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = exec.Submit(context.Background(), testCall())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	nonces := backend.sent()
	if len(nonces) != n {
		t.Fatalf("broadcast %d transactions, want %d", len(nonces), n)
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i] < nonces[j] })
	for i, nonce := range nonces {
		if nonce != uint64(i) {
			t.Fatalf("nonce sequence has a gap or duplicate: %v", nonces)
		}
	}
}

func TestSubmitRevertIsNeverBroadcast(t *testing.T) {
	backend := newFakeBackend()
	backend.estimateErr = errors.New("execution reverted: SUPPLY_PAUSED")
	exec := newTestExecutor(t, backend, fastOptions())

	_, err := exec.Submit(context.Background(), testCall())
	if !errors.Is(err, types.ErrWouldRevert) {
		t.Fatalf("expected ErrWouldRevert, got %v", err)
	}
	if got := backend.sent(); len(got) != 0 {
		t.Errorf("reverting call must not be broadcast, sent %v", got)
	}
}

func TestSubmitRetriesTransientBroadcastErrors(t *testing.T) {
	backend := newFakeBackend()
	backend.sendErrs = []error{errors.New("connection refused"), nil}
	exec := newTestExecutor(t, backend, fastOptions())

	record, err := exec.Submit(context.Background(), testCall())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if record.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", record.RetryCount)
	}
	if record.Status != types.StatusSubmitted {
		t.Errorf("Status = %q, want %q", record.Status, types.StatusSubmitted)
	}
}

func TestSubmitGivesUpAfterMaxAttempts(t *testing.T) {
	backend := newFakeBackend()
	backend.sendErrs = []error{
		errors.New("connection refused"),
		errors.New("connection refused"),
		errors.New("connection refused"),
	}
	exec := newTestExecutor(t, backend, fastOptions())

	_, err := exec.Submit(context.Background(), testCall())
	if !errors.Is(err, types.ErrTransientRPC) {
		t.Fatalf("expected ErrTransientRPC, got %v", err)
	}

	// The abandoned nonce must be reusable by the next submission.
	record, err := exec.Submit(context.Background(), testCall())
	if err != nil {
		t.Fatalf("Submit after failure: %v", err)
	}
	if record.Nonce != 0 {
		t.Errorf("Nonce = %d, want the abandoned 0", record.Nonce)
	}
}

func TestSubmitResyncsOnNonceTooLow(t *testing.T) {
	backend := newFakeBackend()
	// Initial sync sees 0, the node rejects it, resync sees 7.
	backend.nonceQueue = []uint64{0, 7}
	backend.sendErrs = []error{errors.New("nonce too low"), nil}
	exec := newTestExecutor(t, backend, fastOptions())

	record, err := exec.Submit(context.Background(), testCall())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if record.Nonce != 7 {
		t.Errorf("Nonce = %d, want resynced 7", record.Nonce)
	}
}

func TestAwaitConfirmationSuccess(t *testing.T) {
	backend := newFakeBackend()
	exec := newTestExecutor(t, backend, fastOptions())

	record, err := exec.Submit(context.Background(), testCall())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	backend.mu.Lock()
	backend.receipts[common.HexToHash(record.Hash)] = &ethtypes.Receipt{
		Status:  ethtypes.ReceiptStatusSuccessful,
		GasUsed: 42000,
	}
	backend.mu.Unlock()

	record, err = exec.AwaitConfirmation(context.Background(), record)
	if err != nil {
		t.Fatalf("AwaitConfirmation: %v", err)
	}
	if record.Status != types.StatusConfirmed {
		t.Errorf("Status = %q, want %q", record.Status, types.StatusConfirmed)
	}
	if record.GasUsed != 42000 {
		t.Errorf("GasUsed = %d, want 42000", record.GasUsed)
	}
}

func TestAwaitConfirmationMinedRevert(t *testing.T) {
	backend := newFakeBackend()
	exec := newTestExecutor(t, backend, fastOptions())

	record, err := exec.Submit(context.Background(), testCall())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	backend.mu.Lock()
	backend.receipts[common.HexToHash(record.Hash)] = &ethtypes.Receipt{
		Status:  ethtypes.ReceiptStatusFailed,
		GasUsed: 30000,
	}
	backend.mu.Unlock()

	record, err = exec.AwaitConfirmation(context.Background(), record)
	if !errors.Is(err, types.ErrMinedButReverted) {
		t.Fatalf("expected ErrMinedButReverted, got %v", err)
	}
	if record.Status != types.StatusFailed {
		t.Errorf("Status = %q, want %q", record.Status, types.StatusFailed)
	}
	if types.IsRetryable(err) {
		t.Error("a mined revert must not be retryable")
	}
}

func TestAwaitConfirmationTimeoutLeavesPending(t *testing.T) {
	backend := newFakeBackend()
	exec := newTestExecutor(t, backend, fastOptions())

	record, err := exec.Submit(context.Background(), testCall())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	record, err = exec.AwaitConfirmation(context.Background(), record)
	if err != nil {
		t.Fatalf("AwaitConfirmation: %v", err)
	}
	if record.Status != types.StatusPending {
		t.Errorf("Status = %q, want %q", record.Status, types.StatusPending)
	}
}
