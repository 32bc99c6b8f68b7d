// Package authcodec builds the chain-agnostic commitment a user signs once
// to authorize every per-chain call batch of a route, and verifies each
// chain-bound leaf independently against that single signature.
package authcodec

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/flightpath-fi/consolidator-service/gerror"
)

// Signer is the opaque signing capability: one signature per user-initiated
// route, regardless of how many chains the route spans.
type Signer interface {
	Sign(digest common.Hash) ([]byte, error)
	Address() common.Address
}

// SignableDigest applies the personal-message wrapping to the commitment
// root. The wrapping is applied once, to the root only; leaves are never
// signed directly.
func SignableDigest(root common.Hash) common.Hash {
	prefix := []byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(root)))
	return crypto.Keccak256Hash(prefix, root[:])
}

// VerifySignature checks that sig opens over the commitment root for the
// expected signer.
func VerifySignature(root common.Hash, sig []byte, expected common.Address) error {
	if len(sig) != crypto.SignatureLength {
		return gerror.ErrInvalidSignature
	}
	digest := SignableDigest(root)
	// accept the on-chain 27/28 recovery id convention
	s := make([]byte, crypto.SignatureLength)
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 { //nolint:gomnd
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(digest[:], s)
	if err != nil {
		return gerror.ErrInvalidSignature
	}
	if crypto.PubkeyToAddress(*pub) != expected {
		return gerror.ErrInvalidSignature
	}
	return nil
}

// VerifyLeg recomputes the local leaf from the batch about to execute, walks
// the supplied proof to the claimed root and checks the signature over the
// root. This is the full per-chain verification an executor runs before
// touching any balance.
func VerifyLeg(chainID uint64, callsHash, salt common.Hash, proof []common.Hash, index int, root common.Hash, sig []byte, expected common.Address) error {
	leaf := BuildLeaf(chainID, callsHash, salt)
	if !VerifyProof(leaf, proof, index, root) {
		return gerror.ErrInvalidProof
	}
	return VerifySignature(root, sig, expected)
}

// SaltRegistry tracks consumed batch salts per chain. Replay protection is
// per-salt and chain-local: there is no cross-chain shared mutable state, so
// each chain's executor holds its own registry.
type SaltRegistry struct {
	mu       sync.Mutex
	consumed map[uint64]map[common.Hash]bool
}

// NewSaltRegistry creates an empty registry.
func NewSaltRegistry() *SaltRegistry {
	return &SaltRegistry{consumed: make(map[uint64]map[common.Hash]bool)}
}

// Consume marks the salt as used on the given chain. A second Consume for the
// same (chainID, salt) fails: a signed batch executes at most once per chain.
func (r *SaltRegistry) Consume(chainID uint64, salt common.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	salts, ok := r.consumed[chainID]
	if !ok {
		salts = make(map[common.Hash]bool)
		r.consumed[chainID] = salts
	}
	if salts[salt] {
		return gerror.ErrSaltAlreadyConsumed
	}
	salts[salt] = true
	return nil
}

// IsConsumed reports whether the salt was already used on the given chain.
func (r *SaltRegistry) IsConsumed(chainID uint64, salt common.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consumed[chainID][salt]
}
