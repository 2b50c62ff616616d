// Package networks holds the static table of EVM networks the storefront
// accepts USDC payments on.
package networks

import (
	"sort"
	"strings"

	"github.com/web3-storefront/internal/types"
)

// MerchantAddress receives every crypto payment
const MerchantAddress = "0x50E193Ac6d36d1424Dd1e0DdB2d113953976F112"

// USDCDecimals is the token precision of USDC on every supported network
const USDCDecimals = 6

// NativeDecimals is the precision of the native coin on every supported network
const NativeDecimals = 18

// DefaultColor is returned for unknown chains
const DefaultColor = "#666666"

const alchemyKeyPlaceholder = "{alchemyKey}"

// Network describes one supported chain
type Network struct {
	ChainID        types.ChainID `json:"chainId"`
	Label          string        `json:"label"`
	RPCURL         string        `json:"-"`
	BlockExplorer  string        `json:"blockExplorer"`
	USDCAddress    string        `json:"usdcAddress"`
	Color          string        `json:"color"`
	NativeCurrency string        `json:"nativeCurrency"`
}

// IsLocal reports whether the network is the local development chain, where
// payments move the native coin instead of the token.
func (n Network) IsLocal() bool {
	return n.ChainID == types.ChainHardhat
}

var table = map[types.ChainID]Network{
	types.ChainEthereum: {
		ChainID:        types.ChainEthereum,
		Label:          "Ethereum",
		RPCURL:         "https://eth-mainnet.g.alchemy.com/v2/" + alchemyKeyPlaceholder,
		BlockExplorer:  "https://etherscan.io/",
		USDCAddress:    "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		Color:          "#ff8b9e",
		NativeCurrency: "ETH",
	},
	types.ChainOptimism: {
		ChainID:        types.ChainOptimism,
		Label:          "Optimism",
		RPCURL:         "https://opt-mainnet.g.alchemy.com/v2/" + alchemyKeyPlaceholder,
		BlockExplorer:  "https://optimistic.etherscan.io/",
		USDCAddress:    "0x7F5c764cBc14f9669B88837ca1490cCa17c31607",
		Color:          "#f01a37",
		NativeCurrency: "ETH",
	},
	types.ChainPolygon: {
		ChainID:        types.ChainPolygon,
		Label:          "Polygon",
		RPCURL:         "https://polygon-mainnet.g.alchemy.com/v2/" + alchemyKeyPlaceholder,
		BlockExplorer:  "https://polygonscan.com/",
		USDCAddress:    "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
		Color:          "#2bbdf7",
		NativeCurrency: "POL",
	},
	types.ChainArbitrum: {
		ChainID:        types.ChainArbitrum,
		Label:          "Arbitrum",
		RPCURL:         "https://arb-mainnet.g.alchemy.com/v2/" + alchemyKeyPlaceholder,
		BlockExplorer:  "https://arbiscan.io/",
		USDCAddress:    "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		Color:          "#28a0f0",
		NativeCurrency: "ETH",
	},
	types.ChainBase: {
		ChainID:        types.ChainBase,
		Label:          "Base",
		RPCURL:         "https://base-mainnet.g.alchemy.com/v2/" + alchemyKeyPlaceholder,
		BlockExplorer:  "https://basescan.org/",
		USDCAddress:    "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Color:          "#0052ff",
		NativeCurrency: "ETH",
	},
	types.ChainAvalanche: {
		ChainID:        types.ChainAvalanche,
		Label:          "Avalanche",
		RPCURL:         "https://api.avax.network/ext/bc/C/rpc",
		BlockExplorer:  "https://snowtrace.io/",
		USDCAddress:    "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
		Color:          "#E84142",
		NativeCurrency: "AVAX",
	},
	types.ChainBSC: {
		ChainID:        types.ChainBSC,
		Label:          "BSC",
		RPCURL:         "https://bsc-dataseed.binance.org/",
		BlockExplorer:  "https://bscscan.com/",
		USDCAddress:    "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d",
		Color:          "#F0B90B",
		NativeCurrency: "BNB",
	},
	types.ChainFantom: {
		ChainID:        types.ChainFantom,
		Label:          "Fantom",
		RPCURL:         "https://rpc.ankr.com/fantom",
		BlockExplorer:  "https://ftmscan.com/",
		USDCAddress:    "0x04068DA6C83AFCFA0e13ba15A6696662335D5B75",
		Color:          "#1969FF",
		NativeCurrency: "FTM",
	},
	types.ChainHardhat: {
		ChainID:        types.ChainHardhat,
		Label:          "Localhost",
		RPCURL:         "http://localhost:8545",
		BlockExplorer:  "",
		USDCAddress:    "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		Color:          "#b8af0c",
		NativeCurrency: "ETH",
	},
}

// Get returns the network for a chain id
func Get(chainID types.ChainID) (Network, bool) {
	n, ok := table[chainID]
	return n, ok
}

// IsSupported reports whether payments are accepted on the chain
func IsSupported(chainID types.ChainID) bool {
	_, ok := table[chainID]
	return ok
}

// USDCAddress returns the USDC contract on the chain, falling back to mainnet
// for unknown chains.
func USDCAddress(chainID types.ChainID) string {
	if n, ok := table[chainID]; ok && n.USDCAddress != "" {
		return n.USDCAddress
	}
	return table[types.ChainEthereum].USDCAddress
}

// Color returns the display color of the chain
func Color(chainID types.ChainID) string {
	if n, ok := table[chainID]; ok && n.Color != "" {
		return n.Color
	}
	return DefaultColor
}

// Supported returns every network ordered by chain id
func Supported() []Network {
	out := make([]Network, 0, len(table))
	for _, n := range table {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// IsLocal reports whether the chain is the local development network
func IsLocal(chainID types.ChainID) bool {
	return chainID == types.ChainHardhat
}

// RPCEndpoint resolves the node URL of a network. Alchemy-hosted URLs get the
// API key substituted; localURL, when set, replaces the local network's URL.
func RPCEndpoint(n Network, alchemyKey, localURL string) string {
	if n.IsLocal() && localURL != "" {
		return localURL
	}
	return strings.ReplaceAll(n.RPCURL, alchemyKeyPlaceholder, alchemyKey)
}
