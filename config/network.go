package config

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/log"
	"github.com/flightpath-fi/consolidator-service/registry"
)

// NetworkConfig is the chain table for one deployment environment.
type NetworkConfig struct {
	Chains []ChainConfig
}

// ChainConfig is the configuration form of one registry.ChainSpec.
type ChainConfig struct {
	ChainID         uint64         `mapstructure:"ChainID"`
	Name            string         `mapstructure:"Name"`
	RPCURL          string         `mapstructure:"RPCURL"`
	BridgeEndpoint  common.Address `mapstructure:"BridgeEndpoint"`
	AccumulatorAddr common.Address `mapstructure:"AccumulatorAddr"`
	FlightAssets    []AssetConfig  `mapstructure:"FlightAssets"`
}

// AssetConfig is the configuration form of one registry.Asset.
type AssetConfig struct {
	Symbol   string         `mapstructure:"Symbol"`
	Address  common.Address `mapstructure:"Address"`
	Decimals uint8          `mapstructure:"Decimals"`
}

// RPCURLs returns the chainID to RPC URL table.
func (n NetworkConfig) RPCURLs() map[uint64]string {
	urls := make(map[uint64]string, len(n.Chains))
	for _, chain := range n.Chains {
		urls[chain.ChainID] = chain.RPCURL
	}
	return urls
}

// ChainSpecs converts the network table into registry specs.
func (n NetworkConfig) ChainSpecs() []registry.ChainSpec {
	specs := make([]registry.ChainSpec, 0, len(n.Chains))
	for _, chain := range n.Chains {
		assets := make([]registry.Asset, 0, len(chain.FlightAssets))
		for _, asset := range chain.FlightAssets {
			assets = append(assets, registry.Asset{
				Symbol:   asset.Symbol,
				Address:  asset.Address,
				Decimals: asset.Decimals,
			})
		}
		specs = append(specs, registry.ChainSpec{
			ChainID:         chain.ChainID,
			Name:            chain.Name,
			BridgeEndpoint:  chain.BridgeEndpoint,
			AccumulatorAddr: chain.AccumulatorAddr,
			FlightAssets:    assets,
		})
	}
	return specs
}

const (
	testnet = "testnet"
	local   = "local"
)

//nolint:gomnd
var (
	mainnetConfig = NetworkConfig{
		Chains: []ChainConfig{
			{
				ChainID:         1,
				Name:            "ethereum",
				BridgeEndpoint:  common.HexToAddress("0x5c7BCd6E7De5423a257D81B442095A1a6ced35C5"),
				AccumulatorAddr: common.HexToAddress("0xB5a683b8C877F2cB2dC8a0E36507b4DE0a238C47"),
				FlightAssets: []AssetConfig{
					{Symbol: "USDC", Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Decimals: 6},
					{Symbol: "USDT", Address: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), Decimals: 6},
					{Symbol: "DAI", Address: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), Decimals: 18},
					{Symbol: "WETH", Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Decimals: 18},
				},
			},
			{
				ChainID:         10,
				Name:            "optimism",
				BridgeEndpoint:  common.HexToAddress("0x6f26Bf09B1C792e3228e5467807a900A503c0281"),
				AccumulatorAddr: common.HexToAddress("0x2e94171493Dd2D4E92e6135B984b97C4eD16Cf13"),
				FlightAssets: []AssetConfig{
					{Symbol: "USDC", Address: common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"), Decimals: 6},
					{Symbol: "USDC.E", Address: common.HexToAddress("0x7F5c764cBc14f9669B88837ca1490cCa17c31607"), Decimals: 6},
					{Symbol: "WETH", Address: common.HexToAddress("0x4200000000000000000000000000000000000006"), Decimals: 18},
				},
			},
			{
				ChainID:         137,
				Name:            "polygon",
				BridgeEndpoint:  common.HexToAddress("0x9295ee1d8C5b022Be115A2AD3c30C72E34e7F096"),
				AccumulatorAddr: common.HexToAddress("0x58Dd9a87aF428c9dBE3B90a71cBD4b4D69f7C1A2"),
				FlightAssets: []AssetConfig{
					{Symbol: "USDC", Address: common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"), Decimals: 6},
					{Symbol: "USDC.E", Address: common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"), Decimals: 6},
					{Symbol: "WETH", Address: common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619"), Decimals: 18},
					{Symbol: "WPOL", Address: common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270"), Decimals: 18},
				},
			},
			{
				ChainID:         42161,
				Name:            "arbitrum",
				BridgeEndpoint:  common.HexToAddress("0xe35e9842fceaCA96570B734083f4a58e8F7C5f2A"),
				AccumulatorAddr: common.HexToAddress("0x7cF0A1a49dA8F9E7b0fB43C57979Ab4AF5477d91"),
				FlightAssets: []AssetConfig{
					{Symbol: "USDC", Address: common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"), Decimals: 6},
					{Symbol: "USDC.E", Address: common.HexToAddress("0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8"), Decimals: 6},
					{Symbol: "WETH", Address: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"), Decimals: 18},
				},
			},
			{
				ChainID:         8453,
				Name:            "base",
				BridgeEndpoint:  common.HexToAddress("0x09aea4b2242abC8bb4BB78D537A67a245A7bEC64"),
				AccumulatorAddr: common.HexToAddress("0xE4c52E1b1A5F54F407b8BA43e97dC4bA22cC6e3F"),
				FlightAssets: []AssetConfig{
					{Symbol: "USDC", Address: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), Decimals: 6},
					{Symbol: "USDBC", Address: common.HexToAddress("0xd9aAEc86B65D86f6A7B5B1b0c42FFA531710b6CA"), Decimals: 6},
					{Symbol: "WETH", Address: common.HexToAddress("0x4200000000000000000000000000000000000006"), Decimals: 18},
				},
			},
		},
	}
	testnetConfig = NetworkConfig{
		Chains: []ChainConfig{
			{
				ChainID:         11155111,
				Name:            "sepolia",
				BridgeEndpoint:  common.HexToAddress("0x5ef6C01E11889d86803e0B23e3cB3F9E9d97B662"),
				AccumulatorAddr: common.HexToAddress("0x53E91bE8b23261F1DD1A09423E14fB68A6c66e3A"),
				FlightAssets: []AssetConfig{
					{Symbol: "USDC", Address: common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"), Decimals: 6},
					{Symbol: "WETH", Address: common.HexToAddress("0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14"), Decimals: 18},
				},
			},
			{
				ChainID:         421614,
				Name:            "arbitrum-sepolia",
				BridgeEndpoint:  common.HexToAddress("0x7E63A5f1a8F0B4d0934B2f2327DAED3F6bb2ee75"),
				AccumulatorAddr: common.HexToAddress("0x82B564983aE7274c86695917BBf8C99ECb6F0F8F"),
				FlightAssets: []AssetConfig{
					{Symbol: "USDC", Address: common.HexToAddress("0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d"), Decimals: 6},
					{Symbol: "WETH", Address: common.HexToAddress("0x980B62Da83eFf3D4576C647993b0c1D7faf17c73"), Decimals: 18},
				},
			},
			{
				ChainID:         84532,
				Name:            "base-sepolia",
				BridgeEndpoint:  common.HexToAddress("0x82B564983aE7274c86695917BBf8C99ECb6F0F8F"),
				AccumulatorAddr: common.HexToAddress("0x6f26Bf09B1C792e3228e5467807a900A503c0281"),
				FlightAssets: []AssetConfig{
					{Symbol: "USDC", Address: common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"), Decimals: 6},
					{Symbol: "WETH", Address: common.HexToAddress("0x4200000000000000000000000000000000000006"), Decimals: 18},
				},
			},
		},
	}
	localConfig = NetworkConfig{
		Chains: []ChainConfig{
			{
				ChainID:         1337,
				Name:            "local-a",
				BridgeEndpoint:  common.HexToAddress("0x0165878A594ca255338adfa4d48449f69242Eb8F"),
				AccumulatorAddr: common.HexToAddress("0xDc64a140Aa3E981100a9becA4E685f962f0cF6C9"),
				FlightAssets: []AssetConfig{
					{Symbol: "USDC", Address: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), Decimals: 6},
				},
			},
			{
				ChainID:         1338,
				Name:            "local-b",
				BridgeEndpoint:  common.HexToAddress("0x9d98deabc42dd696deb9e40b4f1cab7ddbf55988"),
				AccumulatorAddr: common.HexToAddress("0x2279B7A0a67DB372996a5FaB50D91eAA73d2eBe6"),
				FlightAssets: []AssetConfig{
					{Symbol: "USDC", Address: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), Decimals: 6},
				},
			},
		},
	}
)

func (cfg *Config) loadNetworkConfig(network string) {
	switch network {
	case testnet:
		log.Debug("Testnet network selected")
		cfg.NetworkConfig = testnetConfig
	case local:
		log.Debug("Local network selected")
		cfg.NetworkConfig = localConfig
	default:
		log.Debug("Mainnet network selected")
		cfg.NetworkConfig = mainnetConfig
	}
}
