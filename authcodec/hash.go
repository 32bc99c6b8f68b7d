package authcodec

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/etherman"
	"github.com/iden3/go-iden3-crypto/keccak256"
	"golang.org/x/crypto/sha3"
)

// KeyLen is the byte length of tree nodes.
const KeyLen = 32

func hash(data ...[KeyLen]byte) [KeyLen]byte {
	var res [KeyLen]byte
	hash := sha3.NewLegacyKeccak256()
	for _, d := range data {
		hash.Write(d[:]) //nolint:errcheck,gosec
	}
	copy(res[:], hash.Sum(nil))
	return res
}

// HashZero is an empty hash
var HashZero = [KeyLen]byte{}

func generateZeroHashes(height uint8) [][KeyLen]byte {
	var zeroHashes = [][KeyLen]byte{
		HashZero,
	}
	for i := 1; i <= int(height); i++ {
		zeroHashes = append(zeroHashes, hash(zeroHashes[i-1], zeroHashes[i-1]))
	}
	return zeroHashes
}

// CallsHash commits to a per-chain call batch: for each call, target word,
// value word and the keccak of its calldata, all hashed in execution order.
func CallsHash(batch etherman.ChainActionBatch) common.Hash {
	var parts [][]byte
	for _, c := range batch.Calls {
		var target [KeyLen]byte
		copy(target[KeyLen-common.AddressLength:], c.To[:])
		var value [KeyLen]byte
		if c.Value != nil {
			c.Value.FillBytes(value[:])
		}
		parts = append(parts, target[:], value[:], keccak256.Hash(c.Data))
	}
	var res common.Hash
	copy(res[:], keccak256.Hash(parts...))
	return res
}

// BuildLeaf builds the chain-bound commitment leaf for one call batch. The
// chainID is folded in so the same (calls, salt) pair can never verify on a
// second chain even though the root itself is chain-agnostic.
func BuildLeaf(chainID uint64, callsHash, salt common.Hash) common.Hash {
	chain := make([]byte, 8)
	binary.BigEndian.PutUint64(chain, chainID)
	var leaf common.Hash
	copy(leaf[:], keccak256.Hash(chain, callsHash[:], salt[:]))
	return leaf
}
