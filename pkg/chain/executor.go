package chain

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/yieldex/onchain/pkg/types"
)

// Call is an unsigned contract call prepared by a protocol operator.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// ExecutorOptions tune retry and confirmation behavior.
type ExecutorOptions struct {
	// MaxAttempts bounds broadcast retries on transient RPC errors.
	MaxAttempts int
	// RetryDelay is the pause between broadcast attempts.
	RetryDelay time.Duration
	// PollInterval is the receipt polling cadence.
	PollInterval time.Duration
	// MaxWait bounds how long AwaitConfirmation polls before giving up.
	MaxWait time.Duration
}

// DefaultExecutorOptions returns the production defaults.
func DefaultExecutorOptions() ExecutorOptions {
	return ExecutorOptions{
		MaxAttempts:  3,
		RetryDelay:   2 * time.Second,
		PollInterval: 2 * time.Second,
		MaxWait:      3 * time.Minute,
	}
}

// Executor signs and broadcasts prepared calls on one chain and polls for
// their confirmation. All submissions for a (chain, signer) pair go through
// one Executor; the client's nonce sequence serializes them.
type Executor struct {
	client *Client
	opts   ExecutorOptions
}

// NewExecutor creates an executor over a chain client.
func NewExecutor(client *Client, opts ExecutorOptions) *Executor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	return &Executor{client: client, opts: opts}
}

// Client returns the underlying chain client.
func (e *Executor) Client() *Client { return e.client }

// Submit estimates gas through a read-only simulation, assigns the next
// nonce, signs, and broadcasts. It returns as soon as the transaction is
// accepted by the mempool, with status Submitted. A simulation revert fails
// fast with ErrWouldRevert and nothing is broadcast.
func (e *Executor) Submit(ctx context.Context, call Call) (*types.TransactionRecord, error) {
	value := call.Value
	if value == nil {
		value = big.NewInt(0)
	}

	msg := ethereum.CallMsg{
		From:  e.client.address,
		To:    &call.To,
		Value: value,
		Data:  call.Data,
	}

	estimated, err := e.client.backend.EstimateGas(ctx, msg)
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrWouldRevert, revertReason(err))
		}
		return nil, fmt.Errorf("%w: gas estimation: %v", types.ErrTransientRPC, err)
	}
	gasLimit := estimated * 120 / 100 // safety margin over the node's estimate

	gasPrice, err := e.client.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gas price: %v", types.ErrTransientRPC, err)
	}

	lease, err := e.client.nonces.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrTransientRPC, err)
	}

	resynced := false
	for attempt := 1; ; attempt++ {
		tx := ethtypes.NewTransaction(lease.Nonce, call.To, value, gasLimit, gasPrice, call.Data)
		signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(e.client.chainID), e.client.privateKey)
		if err != nil {
			lease.Abandon()
			return nil, fmt.Errorf("failed to sign transaction: %w", err)
		}

		err = e.client.backend.SendTransaction(ctx, signedTx)
		if err == nil {
			lease.Commit()
			hash := signedTx.Hash().Hex()
			log.Printf("[%s] transaction sent: nonce=%d hash=%s", e.client.name, signedTx.Nonce(), hash)
			return &types.TransactionRecord{
				Hash:        hash,
				Chain:       e.client.name,
				Nonce:       signedTx.Nonce(),
				Status:      types.StatusSubmitted,
				RetryCount:  attempt - 1,
				ExplorerURL: e.client.ExplorerTxURL(hash),
				SubmittedAt: time.Now().UTC(),
			}, nil
		}

		if isNonceTooLow(err) && !resynced {
			// The cached nonce went stale before anything was mined;
			// resync from chain and retry once.
			log.Printf("[%s] nonce too low, resyncing from chain", e.client.name)
			if rerr := lease.Resync(ctx); rerr != nil {
				lease.Abandon()
				return nil, fmt.Errorf("%w: %v", types.ErrTransientRPC, rerr)
			}
			resynced = true
			continue
		}

		if isRevert(err) {
			lease.Abandon()
			return nil, fmt.Errorf("%w: %s", types.ErrWouldRevert, revertReason(err))
		}

		if attempt >= e.opts.MaxAttempts {
			lease.Abandon()
			return nil, fmt.Errorf("%w: broadcast failed after %d attempts: %v", types.ErrTransientRPC, attempt, err)
		}

		log.Printf("[%s] broadcast attempt %d failed: %v", e.client.name, attempt, err)
		select {
		case <-ctx.Done():
			lease.Abandon()
			return nil, ctx.Err()
		case <-time.After(e.opts.RetryDelay):
		}
	}
}

// AwaitConfirmation polls until the transaction is mined or MaxWait passes.
// On timeout the record comes back with status Pending and no error; the
// caller decides whether to keep polling or treat the step as failed. A
// mined transaction that reverted returns ErrMinedButReverted and is never
// retried here.
func (e *Executor) AwaitConfirmation(ctx context.Context, record *types.TransactionRecord) (*types.TransactionRecord, error) {
	waitCtx, cancel := context.WithTimeout(ctx, e.opts.MaxWait)
	defer cancel()

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	hash := common.HexToHash(record.Hash)
	for {
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return record, ctx.Err()
			}
			record.Status = types.StatusPending
			return record, nil
		case <-ticker.C:
			receipt, err := e.client.backend.TransactionReceipt(waitCtx, hash)
			if err != nil {
				continue // not mined yet, or a transient read error; keep polling
			}
			record.GasUsed = receipt.GasUsed
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				record.Status = types.StatusFailed
				return record, fmt.Errorf("%w: tx %s", types.ErrMinedButReverted, record.Hash)
			}
			record.Status = types.StatusConfirmed
			log.Printf("[%s] transaction confirmed: hash=%s gasUsed=%d", e.client.name, record.Hash, receipt.GasUsed)
			return record, nil
		}
	}
}

// Read executes a read-only contract call.
func (e *Executor) Read(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := e.client.backend.CallContract(ctx, ethereum.CallMsg{
		From: e.client.address,
		To:   &to,
		Data: data,
	}, nil)
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrWouldRevert, revertReason(err))
		}
		return nil, fmt.Errorf("%w: %v", types.ErrTransientRPC, err)
	}
	return out, nil
}

func isRevert(err error) bool {
	s := err.Error()
	return strings.Contains(s, "execution reverted") || strings.Contains(s, "always failing transaction")
}

func isNonceTooLow(err error) bool {
	return strings.Contains(err.Error(), "nonce too low")
}

// revertReason pulls the human part out of an RPC revert error when the
// node included one.
func revertReason(err error) string {
	s := err.Error()
	if i := strings.Index(s, "execution reverted:"); i >= 0 {
		reason := strings.TrimSpace(s[i+len("execution reverted:"):])
		if reason != "" {
			return reason
		}
	}
	return s
}
