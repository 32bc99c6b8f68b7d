package composer

import (
	"context"
)

// balanceSourceInterface provides confirmed balance snapshots for the asset
// being consolidated.
type balanceSourceInterface interface {
	GetChainBalances(ctx context.Context, asset SourceAsset) ([]ChainBalance, error)
}
