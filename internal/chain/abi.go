package chain

// Contract function names used by the facilitator.
const (
	FunctionDistribute                = "distribute"
	FunctionUsdcByWallet              = "usdcByWallet"
	FunctionPerWalletCap              = "perWalletUsdcCap"
	FunctionTotalCap                  = "totalUsdcCap"
	FunctionUsdcCounted               = "usdcCounted"
	FunctionTotalSupply               = "totalSupply"
	FunctionBalanceOf                 = "balanceOf"
	FunctionDistributor               = "distributor"
	FunctionOwner                     = "owner"
	FunctionAuthorizationState        = "authorizationState"
	FunctionTransferWithAuthorization = "transferWithAuthorization"
)

var (
	// TokenABI covers the reward token's controlled distribution entry point
	// and its cap accounting views.
	TokenABI = []byte(`[
		{
			"inputs": [
				{"name": "to", "type": "address"},
				{"name": "usdcAmount6", "type": "uint256"}
			],
			"name": "distribute",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [{"name": "", "type": "address"}],
			"name": "usdcByWallet",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "perWalletUsdcCap",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "totalUsdcCap",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "usdcCounted",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// StatsABI is the read-only surface backing the stats endpoint.
	StatsABI = []byte(`[
		{
			"inputs": [],
			"name": "totalSupply",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [{"name": "account", "type": "address"}],
			"name": "balanceOf",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "usdcCounted",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "totalUsdcCap",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "perWalletUsdcCap",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "distributor",
			"outputs": [{"name": "", "type": "address"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "owner",
			"outputs": [{"name": "", "type": "address"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// TransferWithAuthorizationABI is the EIP-3009 spend entry point with
	// split v,r,s signature components (EOA signatures).
	TransferWithAuthorizationABI = []byte(`[
		{
			"inputs": [
				{"name": "from", "type": "address"},
				{"name": "to", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "validAfter", "type": "uint256"},
				{"name": "validBefore", "type": "uint256"},
				{"name": "nonce", "type": "bytes32"},
				{"name": "v", "type": "uint8"},
				{"name": "r", "type": "bytes32"},
				{"name": "s", "type": "bytes32"}
			],
			"name": "transferWithAuthorization",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)

	// AuthorizationStateABI checks whether an EIP-3009 nonce was consumed.
	AuthorizationStateABI = []byte(`[
		{
			"inputs": [
				{"name": "authorizer", "type": "address"},
				{"name": "nonce", "type": "bytes32"}
			],
			"name": "authorizationState",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
)
