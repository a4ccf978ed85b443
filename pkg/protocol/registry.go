package protocol

import (
	"fmt"
	"log"
	"sync"

	"github.com/yieldex/onchain/pkg/cache"
	"github.com/yieldex/onchain/pkg/chain"
	"github.com/yieldex/onchain/pkg/config"
	"github.com/yieldex/onchain/pkg/types"
)

// Dialer opens a chain client. Overridable in tests to inject fakes.
type Dialer func(cfg config.ChainConfig, privateKeyHex string) (*chain.Client, error)

func defaultDialer(cfg config.ChainConfig, privateKeyHex string) (*chain.Client, error) {
	return chain.Dial(cfg.Name, cfg.ChainID, cfg.RPCURL, cfg.ExplorerURL, privateKeyHex)
}

// Registry constructs and memoizes one Operator per (chain, protocol) pair
// and one Executor per chain. Chain clients are dialed lazily on first
// use, so configuring a chain without ever touching it costs nothing.
type Registry struct {
	cfg    *config.Config
	cache  cache.Cache
	dialer Dialer
	opts   chain.ExecutorOptions

	mu        sync.Mutex
	executors map[string]*chain.Executor
	operators map[string]Operator
}

// NewRegistry creates a registry over cfg. A nil cache disables the
// advisory token-support cache.
func NewRegistry(cfg *config.Config, c cache.Cache) *Registry {
	if c == nil {
		c = cache.NoOpCache{}
	}
	return &Registry{
		cfg:       cfg,
		cache:     c,
		dialer:    defaultDialer,
		opts:      chain.DefaultExecutorOptions(),
		executors: make(map[string]*chain.Executor),
		operators: make(map[string]Operator),
	}
}

// SetDialer replaces the chain dialer. Must be called before any Resolve.
func (r *Registry) SetDialer(d Dialer) { r.dialer = d }

// SetExecutorOptions replaces the retry/poll tuning applied to executors
// created after the call.
func (r *Registry) SetExecutorOptions(opts chain.ExecutorOptions) { r.opts = opts }

// ExecutorFor returns the shared Executor for a chain, dialing the client
// on first use. The executor serializes nonce assignment, so all
// submissions for one (chain, signer) pair must go through it.
func (r *Registry) ExecutorFor(chainName string) (*chain.Executor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executorLocked(chainName)
}

func (r *Registry) executorLocked(chainName string) (*chain.Executor, error) {
	if exec, ok := r.executors[chainName]; ok {
		return exec, nil
	}
	chainCfg, err := r.cfg.Chain(chainName)
	if err != nil {
		return nil, err
	}
	client, err := r.dialer(chainCfg, r.cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", chainName, err)
	}
	log.Printf("🔗 Connected to %s (chain id %d) as %s", chainName, chainCfg.ChainID, client.Address().Hex())
	exec := chain.NewExecutor(client, r.opts)
	r.executors[chainName] = exec
	return exec, nil
}

// Resolve returns the operator for a protocol on a chain, constructing it
// on first use. Repeated calls return the same instance; operators are
// safe for concurrent reads once constructed.
func (r *Registry) Resolve(chainName, protocol string) (Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := chainName + "/" + protocol
	if op, ok := r.operators[key]; ok {
		return op, nil
	}

	if _, err := r.cfg.Chain(chainName); err != nil {
		return nil, err
	}
	if !r.cfg.HasProtocol(protocol, chainName) {
		return nil, fmt.Errorf("%w: %s has no %s deployment", types.ErrUnknownProtocol, chainName, protocol)
	}

	exec, err := r.executorLocked(chainName)
	if err != nil {
		return nil, err
	}
	b := base{
		protocol: protocol,
		client:   exec.Client(),
		exec:     exec,
		cfg:      r.cfg,
		cache:    r.cache,
	}

	var op Operator
	switch protocol {
	case config.ProtocolAaveV3, config.ProtocolAaveV2, config.ProtocolLendle:
		op, err = newAaveOperator(b, protocol)
		if err != nil {
			return nil, err
		}
	case config.ProtocolCompoundV3:
		op = newCompoundOperator(b)
	case config.ProtocolRhoMarkets:
		op = newRhoOperator(b)
	case config.ProtocolFluid:
		op = newFluidOperator(b)
	case config.ProtocolSiloV2:
		op = newSiloOperator(b)
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownProtocol, protocol)
	}

	r.operators[key] = op
	return op, nil
}

// Close tears down every dialed chain client.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, exec := range r.executors {
		exec.Client().Close()
		delete(r.executors, name)
	}
}
