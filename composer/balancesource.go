package composer

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/flightpath-fi/consolidator-service/etherman"
	"github.com/flightpath-fi/consolidator-service/log"
	"github.com/flightpath-fi/consolidator-service/registry"
)

// RPCBalanceSource reads confirmed balances straight from the chain RPCs.
// One owner per source: the composer resolves routes for a single account.
type RPCBalanceSource struct {
	reg     *registry.Registry
	owner   common.Address
	clients map[uint64]*ethclient.Client
}

// NewRPCBalanceSource dials every configured RPC. Chains without an RPC URL
// are skipped with a warning rather than failing the whole startup.
func NewRPCBalanceSource(ctx context.Context, reg *registry.Registry, owner common.Address, rpcURLs map[uint64]string) (*RPCBalanceSource, error) {
	clients := make(map[uint64]*ethclient.Client, len(rpcURLs))
	for chainID, rawurl := range rpcURLs {
		if rawurl == "" {
			log.Warnf("no RPC URL for chain %d, balances there will read as zero", chainID)
			continue
		}
		client, err := ethclient.DialContext(ctx, rawurl)
		if err != nil {
			return nil, err
		}
		clients[chainID] = client
	}
	return &RPCBalanceSource{reg: reg, owner: owner, clients: clients}, nil
}

// GetChainBalances returns the owner's balance of asset on every chain that
// lists it as a flight asset.
func (s *RPCBalanceSource) GetChainBalances(ctx context.Context, asset SourceAsset) ([]ChainBalance, error) {
	var balances []ChainBalance
	for chainID, client := range s.clients {
		spec, err := s.reg.Chain(chainID)
		if err != nil {
			continue
		}
		var holding *registry.Asset
		for i := range spec.FlightAssets {
			if spec.FlightAssets[i].Symbol == asset.Symbol {
				holding = &spec.FlightAssets[i]
				break
			}
		}
		if holding == nil {
			continue
		}

		callData, err := etherman.BalanceOfCallData(s.owner)
		if err != nil {
			return nil, err
		}
		token := holding.Address
		result, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: callData}, nil)
		if err != nil {
			return nil, err
		}
		balance, err := etherman.UnpackBalanceOf(result)
		if err != nil {
			return nil, err
		}

		balances = append(balances, ChainBalance{
			ChainID:         chainID,
			ChainName:       spec.Name,
			ContractAddress: token,
			Balance:         fromSmallestUnit(balance, holding.Decimals),
		})
	}
	return balances, nil
}
