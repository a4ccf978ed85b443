package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is the per-chain connection state: RPC backend, chain id, signer
// account and the nonce sequence that orders every transaction this signer
// sends on the chain. One Client exists per configured chain.
type Client struct {
	name        string
	chainID     *big.Int
	explorerURL string

	backend    Backend
	rpc        *ethclient.Client
	privateKey *ecdsa.PrivateKey
	address    common.Address

	nonces *NonceSequence
}

// Dial connects to a chain RPC endpoint and derives the signer account.
func Dial(name string, chainID int64, rpcURL, explorerURL, privateKeyHex string) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("no RPC URL for chain %s", name)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", name, err)
	}

	c := newClient(name, chainID, explorerURL, rpc, privateKey)
	c.rpc = rpc
	return c, nil
}

// NewClientWithBackend builds a client over an arbitrary backend. Used by
// tests; Dial is the production path.
func NewClientWithBackend(name string, chainID int64, backend Backend, privateKey *ecdsa.PrivateKey) *Client {
	return newClient(name, chainID, "", backend, privateKey)
}

func newClient(name string, chainID int64, explorerURL string, backend Backend, privateKey *ecdsa.PrivateKey) *Client {
	publicKey := privateKey.Public().(*ecdsa.PublicKey)
	address := crypto.PubkeyToAddress(*publicKey)

	return &Client{
		name:        name,
		chainID:     big.NewInt(chainID),
		explorerURL: explorerURL,
		backend:     backend,
		privateKey:  privateKey,
		address:     address,
		nonces: &NonceSequence{
			backend: backend,
			account: address,
		},
	}
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

// Name returns the configured chain name.
func (c *Client) Name() string { return c.name }

// ChainID returns the EVM chain id.
func (c *Client) ChainID() *big.Int { return c.chainID }

// Address returns the signer account address.
func (c *Client) Address() common.Address { return c.address }

// Backend exposes the JSON-RPC surface for read calls.
func (c *Client) Backend() Backend { return c.backend }

// Nonces returns the signer's nonce sequence on this chain.
func (c *Client) Nonces() *NonceSequence { return c.nonces }

// ExplorerTxURL renders a block-explorer link for a transaction, or "".
func (c *Client) ExplorerTxURL(txHash string) string {
	if c.explorerURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/tx/%s", strings.TrimRight(c.explorerURL, "/"), txHash)
}

// NonceSequence hands out strictly increasing nonces for one (chain, signer)
// pair. A lease holds the sequence lock until the caller either commits
// (transaction accepted by the mempool) or abandons it, so two concurrent
// submissions can never read-then-increment concurrently and the sequence
// has no gaps.
type NonceSequence struct {
	mu      sync.Mutex
	backend Backend
	account common.Address
	next    uint64
	synced  bool
}

// NonceLease is an exclusive claim on the next nonce. Exactly one of Commit
// or Abandon must be called.
type NonceLease struct {
	seq   *NonceSequence
	Nonce uint64
}

// Acquire blocks until the sequence is free, syncing from chain state on
// first use, and returns a lease on the next nonce.
func (s *NonceSequence) Acquire(ctx context.Context) (*NonceLease, error) {
	s.mu.Lock()
	if !s.synced {
		pending, err := s.backend.PendingNonceAt(ctx, s.account)
		if err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("failed to sync nonce: %w", err)
		}
		s.next = pending
		s.synced = true
	}
	return &NonceLease{seq: s, Nonce: s.next}, nil
}

// Resync refreshes the leased nonce from chain state. Used after a
// nonce-too-low rejection, which means some other submission path consumed
// the cached value.
func (l *NonceLease) Resync(ctx context.Context) error {
	pending, err := l.seq.backend.PendingNonceAt(ctx, l.seq.account)
	if err != nil {
		return fmt.Errorf("failed to resync nonce: %w", err)
	}
	l.seq.next = pending
	l.Nonce = pending
	return nil
}

// Commit records the nonce as consumed and releases the sequence. Call only
// after the transaction was accepted for broadcast.
func (l *NonceLease) Commit() {
	l.seq.next = l.Nonce + 1
	l.seq.mu.Unlock()
}

// Abandon releases the sequence without consuming the nonce.
func (l *NonceLease) Abandon() {
	l.seq.mu.Unlock()
}
