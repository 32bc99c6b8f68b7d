package registry

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/gerror"
)

// Asset is one bridgeable token on one chain. Immutable, defined by the
// network configuration at startup.
type Asset struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
}

// ChainSpec is the static description of one supported chain: its flight
// (bridgeable) assets and the bridge endpoint deposits are sent through.
type ChainSpec struct {
	ChainID         uint64
	Name            string
	BridgeEndpoint  common.Address
	AccumulatorAddr common.Address
	FlightAssets    []Asset
}

// Registry holds the static chain and flight-asset tables. It is loaded once
// at startup and injected into the route composer, never mutated at runtime.
type Registry struct {
	chains map[uint64]ChainSpec
}

// New builds a Registry from the configured chain specs.
func New(specs []ChainSpec) *Registry {
	chains := make(map[uint64]ChainSpec, len(specs))
	for _, spec := range specs {
		chains[spec.ChainID] = spec
	}
	return &Registry{chains: chains}
}

// Chain returns the spec for the given chainID.
func (r *Registry) Chain(chainID uint64) (ChainSpec, error) {
	spec, ok := r.chains[chainID]
	if !ok {
		return ChainSpec{}, gerror.ErrUnsupportedChain
	}
	return spec, nil
}

// ChainName returns the human readable name for the given chainID.
func (r *Registry) ChainName(chainID uint64) (string, error) {
	spec, err := r.Chain(chainID)
	if err != nil {
		return "", err
	}
	return spec.Name, nil
}

// BridgeEndpoint returns the bridge deposit contract for the given chainID.
func (r *Registry) BridgeEndpoint(chainID uint64) (common.Address, error) {
	spec, err := r.Chain(chainID)
	if err != nil {
		return common.Address{}, err
	}
	return spec.BridgeEndpoint, nil
}

// FlightAssets returns the bridgeable assets configured for the given chainID.
func (r *Registry) FlightAssets(chainID uint64) ([]Asset, error) {
	spec, err := r.Chain(chainID)
	if err != nil {
		return nil, err
	}
	return spec.FlightAssets, nil
}

// FlightAssetByAddress looks up a flight asset on a chain by contract address.
func (r *Registry) FlightAssetByAddress(chainID uint64, addr common.Address) (Asset, error) {
	assets, err := r.FlightAssets(chainID)
	if err != nil {
		return Asset{}, err
	}
	for _, a := range assets {
		if a.Address == addr {
			return a, nil
		}
	}
	return Asset{}, gerror.ErrUnsupportedAsset
}

// IsFlightAsset reports whether addr is a registered flight asset on chainID.
func (r *Registry) IsFlightAsset(chainID uint64, addr common.Address) bool {
	_, err := r.FlightAssetByAddress(chainID, addr)
	return err == nil
}

// stableSymbols are the USDC-class symbols preferred as flight assets.
var stableSymbols = map[string]bool{
	"USDC":   true,
	"USDC.E": true,
	"USDBC":  true,
	"USDT":   true,
	"DAI":    true,
}

// wrappedNativeSymbols are the second-preference flight asset class.
var wrappedNativeSymbols = map[string]bool{
	"WETH":   true,
	"WMATIC": true,
	"WPOL":   true,
	"WBNB":   true,
	"WAVAX":  true,
}

func isStable(symbol string) bool {
	return stableSymbols[strings.ToUpper(symbol)]
}

func isWrappedNative(symbol string) bool {
	return wrappedNativeSymbols[strings.ToUpper(symbol)]
}

// SelectFlightAsset picks the asset pair used to fly value from sourceChainID
// to destChainID: the same symbol must be a flight asset on both ends.
// Preference order: USDC-class stable, then wrapped native, then any mutually
// available symbol. When the two chains share no flight symbol the route
// cannot be built.
func (r *Registry) SelectFlightAsset(sourceChainID, destChainID uint64) (Asset, Asset, error) {
	srcAssets, err := r.FlightAssets(sourceChainID)
	if err != nil {
		return Asset{}, Asset{}, err
	}
	dstAssets, err := r.FlightAssets(destChainID)
	if err != nil {
		return Asset{}, Asset{}, err
	}

	dstBySymbol := make(map[string]Asset, len(dstAssets))
	for _, a := range dstAssets {
		dstBySymbol[strings.ToUpper(a.Symbol)] = a
	}

	var (
		stableSrc, stableDst   Asset
		wrappedSrc, wrappedDst Asset
		anySrc, anyDst         Asset
		foundStable            bool
		foundWrapped           bool
		foundAny               bool
	)
	for _, src := range srcAssets {
		dst, ok := dstBySymbol[strings.ToUpper(src.Symbol)]
		if !ok {
			continue
		}
		switch {
		case isStable(src.Symbol):
			if !foundStable {
				stableSrc, stableDst, foundStable = src, dst, true
			}
		case isWrappedNative(src.Symbol):
			if !foundWrapped {
				wrappedSrc, wrappedDst, foundWrapped = src, dst, true
			}
		default:
			if !foundAny {
				anySrc, anyDst, foundAny = src, dst, true
			}
		}
	}

	switch {
	case foundStable:
		return stableSrc, stableDst, nil
	case foundWrapped:
		return wrappedSrc, wrappedDst, nil
	case foundAny:
		return anySrc, anyDst, nil
	}
	return Asset{}, Asset{}, gerror.NewNoRouteError("no flight asset intersection between chains")
}

// Accumulator returns the accumulator contract configured on the given chain.
// An empty address means no accumulator is deployed there.
func (r *Registry) Accumulator(chainID uint64) (common.Address, error) {
	spec, err := r.Chain(chainID)
	if err != nil {
		return common.Address{}, err
	}
	return spec.AccumulatorAddr, nil
}
