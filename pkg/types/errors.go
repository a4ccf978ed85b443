package types

import "errors"

// Error taxonomy for the execution engine. Retry behavior is a property of
// the error kind, not of the call site: only ErrTransientRPC is ever retried
// automatically.
var (
	// ErrUnsupportedChain means the chain itself is not configured.
	ErrUnsupportedChain = errors.New("unsupported chain")

	// ErrUnknownProtocol means no contract address table exists for the
	// (chain, protocol) pair.
	ErrUnknownProtocol = errors.New("unknown protocol")

	// ErrUnsupportedToken means the protocol does not list the token.
	ErrUnsupportedToken = errors.New("token not supported by protocol")

	// ErrInsufficientBalance means the wallet or receipt-token balance is
	// below the requested amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientAllowance means the spender contract is not approved
	// for the requested amount.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrWouldRevert means the pre-broadcast simulation reverted, so the
	// transaction was never sent.
	ErrWouldRevert = errors.New("transaction would revert")

	// ErrTransientRPC covers network timeouts and RPC hiccups.
	ErrTransientRPC = errors.New("transient rpc error")

	// ErrMinedButReverted means the transaction landed on-chain and
	// reverted. Never retried automatically: a blind retry could duplicate
	// a state-changing action.
	ErrMinedButReverted = errors.New("transaction mined but reverted")

	// ErrUnsupportedProtocolCall means a protocol registry call failed for
	// a reason other than "token not listed".
	ErrUnsupportedProtocolCall = errors.New("unsupported protocol call")
)

// IsRetryable reports whether the executor may retry the operation that
// produced err. Configuration gaps, precondition failures and on-chain
// reverts are all final for the recommendation they belong to.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientRPC)
}
