package dispatcher

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/authcodec"
	"github.com/flightpath-fi/consolidator-service/composer"
	"github.com/flightpath-fi/consolidator-service/etherman"
)

// Commitment is one signed route: the chain-agnostic root, the single user
// signature over it, and the per-leg authorization material, aligned with
// the route's ChainActions.
type Commitment struct {
	Root      common.Hash
	Signature []byte
	Auths     []LegAuth
}

// commitmentBatches is the batch list the signature actually covers. The
// route's empty destination slot stands in for the accumulator execution;
// its leaf commits to the conversion bundle the accumulator will run there.
func commitmentBatches(route *composer.TransferRoute) []etherman.ChainActionBatch {
	batches := make([]etherman.ChainActionBatch, len(route.ChainActions))
	copy(batches, route.ChainActions)
	for i, batch := range batches {
		if batch.IsEmpty() && batch.ChainID == route.DestChainID {
			batches[i] = etherman.ChainActionBatch{ChainID: route.DestChainID, Calls: route.DestCalls}
		}
	}
	return batches
}

// SignRoute builds the commitment tree over the route's batches, one fresh
// random salt per leg, and signs the root once. Leg i of the result
// authorizes ChainActions[i].
func SignRoute(route *composer.TransferRoute, signer authcodec.Signer) (*Commitment, error) {
	batches := commitmentBatches(route)

	auths := make([]LegAuth, len(batches))
	leaves := make([]common.Hash, len(batches))
	for i, batch := range batches {
		var salt common.Hash
		if _, err := rand.Read(salt[:]); err != nil {
			return nil, fmt.Errorf("failed to draw leg salt: %w", err)
		}
		auths[i].Salt = salt
		auths[i].Index = i
		leaves[i] = authcodec.BuildLeaf(batch.ChainID, authcodec.CallsHash(batch), salt)
	}

	tree, err := authcodec.NewTree(leaves)
	if err != nil {
		return nil, err
	}
	root := tree.Root()
	for i := range auths {
		proof, err := tree.Proof(i)
		if err != nil {
			return nil, err
		}
		auths[i].Proof = proof
	}

	signature, err := signer.Sign(authcodec.SignableDigest(root))
	if err != nil {
		return nil, err
	}
	return &Commitment{Root: root, Signature: signature, Auths: auths}, nil
}

// SignAndDispatch signs the route and submits its source legs. The
// destination leg's authorization is returned inside the commitment for the
// settlement side; it has nothing to broadcast here.
func (d *Dispatcher) SignAndDispatch(ctx context.Context, route *composer.TransferRoute, signer authcodec.Signer) (*Commitment, error) {
	commitment, err := SignRoute(route, signer)
	if err != nil {
		return nil, err
	}
	if err := d.Dispatch(ctx, route, commitment.Root, commitment.Signature, commitment.Auths); err != nil {
		return nil, err
	}
	return commitment, nil
}
