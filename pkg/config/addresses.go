package config

// Protocol ids understood by the operator registry.
const (
	ProtocolAaveV3     = "aave-v3"
	ProtocolAaveV2     = "aave-v2"
	ProtocolLendle     = "lendle"
	ProtocolCompoundV3 = "compound-v3"
	ProtocolRhoMarkets = "rho-markets"
	ProtocolFluid      = "fluid"
	ProtocolSiloV2     = "silo-v2"
)

// DefaultConfig returns the shipped chain and contract tables. RPC URLs are
// intentionally empty here; they always come from the environment.
func DefaultConfig() *Config {
	return &Config{
		Chains: map[string]ChainConfig{
			"Ethereum":  {Name: "Ethereum", ChainID: 1, ExplorerURL: "https://etherscan.io"},
			"Polygon":   {Name: "Polygon", ChainID: 137, ExplorerURL: "https://polygonscan.com"},
			"Arbitrum":  {Name: "Arbitrum", ChainID: 42161, ExplorerURL: "https://arbiscan.io"},
			"Optimism":  {Name: "Optimism", ChainID: 10, ExplorerURL: "https://optimistic.etherscan.io"},
			"Base":      {Name: "Base", ChainID: 8453, ExplorerURL: "https://basescan.org"},
			"Avalanche": {Name: "Avalanche", ChainID: 43114, ExplorerURL: "https://snowtrace.io"},
			"Mantle":    {Name: "Mantle", ChainID: 5000, ExplorerURL: "https://explorer.mantle.xyz"},
			"Scroll":    {Name: "Scroll", ChainID: 534352, ExplorerURL: "https://scrollscan.com"},
			"Sonic":     {Name: "Sonic", ChainID: 146, ExplorerURL: "https://sonicscan.org"},
		},

		PoolContracts: map[string]map[string]string{
			ProtocolAaveV3: {
				"Ethereum":  "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2",
				"Polygon":   "0x794a61358D6845594F94dc1DB02A252b5b4814aD",
				"Avalanche": "0x794a61358D6845594F94dc1DB02A252b5b4814aD",
				"Arbitrum":  "0x794a61358D6845594F94dc1DB02A252b5b4814aD",
				"Optimism":  "0x794a61358D6845594F94dc1DB02A252b5b4814aD",
				"Base":      "0xA238Dd80C259a72e81d7e4664a9801593F98d1c5",
			},
			ProtocolAaveV2: {
				"Ethereum":  "0x7d2768dE32b0b80b7a3454c06BdAc94A69DDc7A9",
				"Polygon":   "0x8dFf5E27EA6b7AC08EbFdf9eB090F32ee9a30fcf",
				"Avalanche": "0x4F01AeD16D97E3aB5ab2B501154DC9bb0F1A5A2C",
			},
			ProtocolLendle: {
				"Mantle": "0xCFa5aE7c2CE8Fadc6426C1ff872cA45378Fb7cF3",
			},
		},

		MarketContracts: map[string]map[string]map[string]string{
			ProtocolCompoundV3: {
				"Ethereum": {
					"USDC": "0xc3d688B66703497DAA19211EEdff47f25384cdc3",
				},
				"Arbitrum": {
					"USDC": "0x9c4ec768c28520B50860ea7a15bd7213a9fF58bf",
				},
				"Polygon": {
					"USDC": "0xF25212E676D1F7F89Cd72fFEe66158f541246445",
				},
				"Base": {
					"USDC": "0xb125E6687d4313864e53df431d5425969c15Eb2F",
				},
			},
			ProtocolRhoMarkets: {
				"Scroll": {
					"USDC": "0xAD3d07d431B85B525D81372802504Fa18DBd554c",
					"USDT": "0x855CEA8626Fa7b42c13e7A688b179bf61e6c1e81",
				},
			},
			ProtocolFluid: {
				"Arbitrum": {
					"USDC": "0x4CFA50B7Ce747e2D61724fcAc57f24B748FF2b2A",
					"USDT": "0x876Ec6bE52486Eeec06bc06434f3E629D695C6Ba",
				},
			},
			ProtocolSiloV2: {
				"Sonic": {
					"USDC": "0x6030aD53d90ec2fB67F3805794dBB3Fa5FD6Eb64",
				},
				"Arbitrum": {
					"USDC": "0x7e88AE5E50474A48deA4c42a634aA7485e7CaA62",
				},
			},
		},

		Stablecoins: map[string]map[string]string{
			"USDT": {
				"Ethereum":  "0xdAC17F958D2ee523a2206206994597C13D831ec7",
				"Polygon":   "0xc2132D05D31c914a87C6611C10748AEb04B58e8F",
				"Arbitrum":  "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9",
				"Optimism":  "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58",
				"Avalanche": "0x9702230A8Ea53601f5cD2dc00fDBc13d4dF4A8c7",
				"Mantle":    "0x201EBa5CC46D216Ce6DC03F6a759e8E766e956aE",
			},
			"USDC": {
				"Ethereum":  "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
				"Polygon":   "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
				"Arbitrum":  "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
				"Optimism":  "0x7F5c764cBc14f9669B88837ca1490cCa17c31607",
				"Base":      "0x833589fCD6eDb6E08B4DF7441424273dE8F059F7",
				"Avalanche": "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
				"Mantle":    "0x09Bc4E0D864854c6aFB6eB9A9cDF58aC190D0dF9",
				"Scroll":    "0x06eFdBFf2a14a7c8E15944D1F4A48F9F95F663A4",
				"Sonic":     "0x29219dd400f2Bf60E5a23d13Be72B486D4038894",
			},
			"DAI": {
				"Ethereum":  "0x6B175474E89094C44Da98b954EedeAC495271d0F",
				"Polygon":   "0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063",
				"Arbitrum":  "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1",
				"Optimism":  "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1",
				"Base":      "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb",
				"Avalanche": "0xd586E7F844cEa2F87f50152665BCbc2C279D8d70",
			},
		},
	}
}
