package accumulator

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/authcodec"
)

// LegVerifier is the default authorization callback: it checks the chain
// bound leaf against the commitment root and the single signature over it,
// and consumes salts chain-locally.
type LegVerifier struct {
	chainID uint64
	salts   *authcodec.SaltRegistry
}

// NewLegVerifier creates a verifier for the given settlement chain.
func NewLegVerifier(chainID uint64, salts *authcodec.SaltRegistry) *LegVerifier {
	return &LegVerifier{chainID: chainID, salts: salts}
}

// VerifyExecution recomputes the local leaf from callsHash and walks the
// proof to the root the signature opens over.
func (v *LegVerifier) VerifyExecution(callsHash common.Hash, auth *ExecutionAuth) error {
	return authcodec.VerifyLeg(v.chainID, callsHash, auth.Salt, auth.Proof, auth.Index, auth.Root, auth.Signature, auth.Signer)
}

// ConsumeSalt marks the authorization salt used on this chain.
func (v *LegVerifier) ConsumeSalt(auth *ExecutionAuth) error {
	return v.salts.Consume(v.chainID, auth.Salt)
}
