package authcodec

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/flightpath-fi/consolidator-service/etherman"
	"github.com/flightpath-fi/consolidator-service/gerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBatch(chainID uint64) etherman.ChainActionBatch {
	return etherman.ChainActionBatch{
		ChainID: chainID,
		Calls: []etherman.Call{
			{
				To:    common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
				Data:  []byte{0x01, 0x02, 0x03},
				Value: big.NewInt(0),
			},
			{
				To:    common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
				Data:  []byte{0x04},
				Value: big.NewInt(100),
			},
		},
	}
}

func TestCallsHashSensitivity(t *testing.T) {
	base := CallsHash(testBatch(1))

	modified := testBatch(1)
	modified.Calls[0].Data = []byte{0x01, 0x02, 0x04}
	assert.NotEqual(t, base, CallsHash(modified))

	modified = testBatch(1)
	modified.Calls[1].Value = big.NewInt(101)
	assert.NotEqual(t, base, CallsHash(modified))

	modified = testBatch(1)
	modified.Calls[0].To = modified.Calls[1].To
	assert.NotEqual(t, base, CallsHash(modified))

	modified = testBatch(1)
	modified.Calls[0], modified.Calls[1] = modified.Calls[1], modified.Calls[0]
	assert.NotEqual(t, base, CallsHash(modified))

	// the batch chainID is bound in the leaf, not the calls hash
	assert.Equal(t, base, CallsHash(testBatch(10)))
}

func TestBuildLeafChainBinding(t *testing.T) {
	callsHash := CallsHash(testBatch(1))
	salt := common.HexToHash("0x01")

	leaf1 := BuildLeaf(1, callsHash, salt)
	leaf10 := BuildLeaf(10, callsHash, salt)
	assert.NotEqual(t, leaf1, leaf10)
	assert.NotEqual(t, leaf1, BuildLeaf(1, callsHash, common.HexToHash("0x02")))
	assert.Equal(t, leaf1, BuildLeaf(1, callsHash, salt))
}

func TestTreeProofRoundTrip(t *testing.T) {
	for _, count := range []int{1, 2, 3, 4, 5, 9} {
		t.Run(fmt.Sprintf("%d leaves", count), func(t *testing.T) {
			leaves := make([]common.Hash, count)
			for i := range leaves {
				leaves[i] = crypto.Keccak256Hash([]byte{byte(i)})
			}
			tree, err := NewTree(leaves)
			require.NoError(t, err)
			root := tree.Root()

			for i, leaf := range leaves {
				proof, err := tree.Proof(i)
				require.NoError(t, err)
				assert.True(t, VerifyProof(leaf, proof, i, root))
				if count > 1 {
					// a proof is position bound
					assert.False(t, VerifyProof(leaf, proof, (i+1)%count, root))
				}
				assert.False(t, VerifyProof(leaf, proof, i, crypto.Keccak256Hash([]byte("other"))))
			}
		})
	}
}

func TestTreeRejectsInvalidInput(t *testing.T) {
	_, err := NewTree(nil)
	assert.Error(t, err)

	tree, err := NewTree([]common.Hash{crypto.Keccak256Hash([]byte{0})})
	require.NoError(t, err)
	_, err = tree.Proof(1)
	assert.Error(t, err)
	_, err = tree.Proof(-1)
	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)
	root := crypto.Keccak256Hash([]byte("commitment root"))

	digest := SignableDigest(root)
	sig, err := crypto.Sign(digest[:], key)
	require.NoError(t, err)

	require.NoError(t, VerifySignature(root, sig, signer))

	// the on-chain 27/28 recovery id convention is accepted too
	onChain := append([]byte{}, sig...)
	onChain[crypto.RecoveryIDOffset] += 27
	require.NoError(t, VerifySignature(root, onChain, signer))

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	assert.ErrorIs(t, VerifySignature(root, sig, crypto.PubkeyToAddress(otherKey.PublicKey)), gerror.ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(root, sig[:10], signer), gerror.ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(crypto.Keccak256Hash([]byte("tampered")), sig, signer), gerror.ErrInvalidSignature)
}

func TestVerifyLegRejectsCrossChainReplay(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	batches := []etherman.ChainActionBatch{testBatch(1), testBatch(10)}
	salts := []common.Hash{common.HexToHash("0xa1"), common.HexToHash("0xa2")}
	leaves := make([]common.Hash, len(batches))
	for i, batch := range batches {
		leaves[i] = BuildLeaf(batch.ChainID, CallsHash(batch), salts[i])
	}
	tree, err := NewTree(leaves)
	require.NoError(t, err)
	root := tree.Root()
	digest := SignableDigest(root)
	sig, err := crypto.Sign(digest[:], key)
	require.NoError(t, err)

	for i, batch := range batches {
		proof, err := tree.Proof(i)
		require.NoError(t, err)
		require.NoError(t, VerifyLeg(batch.ChainID, CallsHash(batch), salts[i], proof, i, root, sig, signer))

		// the same material must not verify on the other chain
		otherChain := batches[(i+1)%len(batches)].ChainID
		assert.ErrorIs(t, VerifyLeg(otherChain, CallsHash(batch), salts[i], proof, i, root, sig, signer), gerror.ErrInvalidProof)
	}
}

func TestSaltRegistryExactlyOnce(t *testing.T) {
	reg := NewSaltRegistry()
	salt := common.HexToHash("0x01")

	assert.False(t, reg.IsConsumed(1, salt))
	require.NoError(t, reg.Consume(1, salt))
	assert.True(t, reg.IsConsumed(1, salt))
	assert.ErrorIs(t, reg.Consume(1, salt), gerror.ErrSaltAlreadyConsumed)

	// salts are chain local
	require.NoError(t, reg.Consume(10, salt))
	require.NoError(t, reg.Consume(1, common.HexToHash("0x02")))
}
