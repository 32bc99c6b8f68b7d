package authcodec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// zeroHashes is the pre-calculated zero hash array
var zeroHashes [][KeyLen]byte

func init() {
	// 16 levels bounds the tree at 65536 legs, far beyond any realistic
	// multi-chain route.
	zeroHashes = generateZeroHashes(16) // nolint
}

// Tree is an in-memory merkle tree over the per-chain commitment leaves of
// one route. Unlike an exit tree it is built once, from a complete leaf set,
// and never appended to: a route's leg count is fixed at resolution time.
type Tree struct {
	levels [][][KeyLen]byte
	height uint8
	count  int
}

// NewTree builds a tree from the given leaves. Incomplete right branches are
// padded with zero hashes level by level.
func NewTree(leaves []common.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("cannot build a tree without leaves")
	}

	var height uint8
	for (1 << height) < len(leaves) {
		height++
	}
	if int(height) >= len(zeroHashes) {
		return nil, fmt.Errorf("too many leaves: %d", len(leaves))
	}

	level := make([][KeyLen]byte, 1<<height)
	for i, l := range leaves {
		level[i] = l
	}
	for i := len(leaves); i < len(level); i++ {
		level[i] = zeroHashes[0]
	}

	levels := [][][KeyLen]byte{level}
	for h := uint8(0); h < height; h++ {
		next := make([][KeyLen]byte, len(level)/2)
		for i := range next {
			next[i] = hash(level[2*i], level[2*i+1])
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels, height: height, count: len(leaves)}, nil
}

// Root returns the chain-agnostic commitment root.
func (t *Tree) Root() common.Hash {
	return common.Hash(t.levels[t.height][0])
}

// Proof returns the sibling path for the leaf at index, ordered from the
// leaf level up to the root.
func (t *Tree) Proof(index int) ([]common.Hash, error) {
	if index < 0 || index >= t.count {
		return nil, fmt.Errorf("leaf index %d out of range", index)
	}
	siblings := make([]common.Hash, 0, t.height)
	for h := uint8(0); h < t.height; h++ {
		siblings = append(siblings, common.Hash(t.levels[h][(index>>h)^1]))
	}
	return siblings, nil
}

// VerifyProof walks the sibling path from leaf to the claimed root. The bit
// at position h of index selects whether the sibling hashes on the left or
// the right, as in the exit tree sibling walk.
func VerifyProof(leaf common.Hash, proof []common.Hash, index int, root common.Hash) bool {
	cur := [KeyLen]byte(leaf)
	for h, sibling := range proof {
		if index&(1<<h) > 0 {
			cur = hash([KeyLen]byte(sibling), cur)
		} else {
			cur = hash(cur, [KeyLen]byte(sibling))
		}
	}
	return common.Hash(cur) == root
}
