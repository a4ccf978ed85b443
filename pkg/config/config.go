package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/yieldex/onchain/pkg/types"
)

// ChainConfig is the static description of one EVM chain.
type ChainConfig struct {
	Name        string
	ChainID     int64
	RPCURL      string
	ExplorerURL string
}

// Config is the full configuration surface the engine consumes. The tables
// ship with code defaults (DefaultConfig) and the process entry point
// overlays environment values on top; missing entries surface as
// ErrUnsupportedChain / ErrUnknownProtocol at resolution time, never as
// silent no-ops.
type Config struct {
	// Chains maps chain name to its connection parameters.
	Chains map[string]ChainConfig

	// PoolContracts maps protocol id -> chain -> pool contract address, for
	// protocols with a single pool entry point per chain (aave-v2, aave-v3,
	// lendle).
	PoolContracts map[string]map[string]string

	// MarketContracts maps protocol id -> chain -> asset symbol -> market
	// contract address, for protocols with one contract per listed asset
	// (compound-v3 comets, rho markets, fluid fTokens, silo markets).
	MarketContracts map[string]map[string]map[string]string

	// Stablecoins maps asset symbol -> chain -> ERC-20 address.
	Stablecoins map[string]map[string]string

	// PrivateKey is the hex-encoded signer key. Custody is out of scope;
	// this is a credential reference supplied by the environment.
	PrivateKey string

	// Feed settings for the analytics collaborator connection.
	FeedURL     string
	FeedWSURL   string

	// Optional Redis cache. Empty address disables it.
	RedisAddress  string
	RedisPassword string
	RedisDB       int
}

// Load builds the runtime configuration: code defaults plus environment
// overrides. RPC URLs come from <CHAIN>_RPC_URL variables, the signer key
// from PRIVATE_KEY.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for name, chain := range cfg.Chains {
		envKey := strings.ToUpper(name) + "_RPC_URL"
		if url := os.Getenv(envKey); url != "" {
			chain.RPCURL = url
			cfg.Chains[name] = chain
		}
	}

	cfg.PrivateKey = os.Getenv("PRIVATE_KEY")
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("PRIVATE_KEY environment variable is required")
	}

	cfg.FeedURL = os.Getenv("FEED_URL")
	cfg.FeedWSURL = os.Getenv("FEED_WS_URL")
	cfg.RedisAddress = os.Getenv("REDIS_ADDRESS")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if db := os.Getenv("REDIS_DB"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("REDIS_DB must be an integer, got %q", db)
		}
		cfg.RedisDB = n
	}

	return cfg, nil
}

// Chain returns the configuration for a chain name.
func (c *Config) Chain(name string) (ChainConfig, error) {
	chain, ok := c.Chains[name]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: %s", types.ErrUnsupportedChain, name)
	}
	if chain.RPCURL == "" {
		return ChainConfig{}, fmt.Errorf("%w: no RPC URL configured for %s", types.ErrUnsupportedChain, name)
	}
	return chain, nil
}

// TokenAddress resolves a stablecoin symbol to its ERC-20 address on a chain.
func (c *Config) TokenAddress(token, chain string) (string, error) {
	addr := c.Stablecoins[strings.ToUpper(token)][chain]
	if addr == "" {
		return "", fmt.Errorf("%w: %s on %s", types.ErrUnsupportedToken, token, chain)
	}
	return addr, nil
}

// PoolContract resolves the pool entry point for a single-pool protocol.
func (c *Config) PoolContract(protocol, chain string) (string, error) {
	chains, ok := c.PoolContracts[protocol]
	if !ok {
		return "", fmt.Errorf("%w: %s", types.ErrUnknownProtocol, protocol)
	}
	addr, ok := chains[chain]
	if !ok || addr == "" {
		return "", fmt.Errorf("%w: %s has no contracts on %s", types.ErrUnknownProtocol, protocol, chain)
	}
	return addr, nil
}

// MarketContract resolves the per-asset market contract for a protocol.
func (c *Config) MarketContract(protocol, chain, asset string) (string, error) {
	chains, ok := c.MarketContracts[protocol]
	if !ok {
		return "", fmt.Errorf("%w: %s", types.ErrUnknownProtocol, protocol)
	}
	markets, ok := chains[chain]
	if !ok {
		return "", fmt.Errorf("%w: %s has no contracts on %s", types.ErrUnknownProtocol, protocol, chain)
	}
	addr, ok := markets[strings.ToUpper(asset)]
	if !ok || addr == "" {
		return "", fmt.Errorf("%w: %s on %s for %s", types.ErrUnsupportedToken, asset, chain, protocol)
	}
	return addr, nil
}

// HasProtocol reports whether any contract table exists for (protocol, chain).
func (c *Config) HasProtocol(protocol, chain string) bool {
	if chains, ok := c.PoolContracts[protocol]; ok {
		if addr := chains[chain]; addr != "" {
			return true
		}
	}
	if chains, ok := c.MarketContracts[protocol]; ok {
		if markets := chains[chain]; len(markets) > 0 {
			return true
		}
	}
	return false
}

// ExplorerTxURL renders a block-explorer link for a transaction hash, or ""
// when the chain has no configured explorer.
func (c *Config) ExplorerTxURL(chain, txHash string) string {
	cc, ok := c.Chains[chain]
	if !ok || cc.ExplorerURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/tx/%s", strings.TrimRight(cc.ExplorerURL, "/"), txHash)
}
