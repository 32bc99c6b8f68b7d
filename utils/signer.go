package utils

import (
	"crypto/ecdsa"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/flightpath-fi/consolidator-service/config/types"
)

// KeySigner signs commitment digests with a local ECDSA key. It implements
// the opaque sign(payload) capability the route flow consumes: production
// deployments swap in a passkey or MPC signer behind the same interface.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewKeySignerFromKeystore loads the signing key from an encrypted keystore file.
func NewKeySignerFromKeystore(ks types.KeystoreFileConfig) (*KeySigner, error) {
	keystoreEncrypted, err := os.ReadFile(filepath.Clean(ks.Path))
	if err != nil {
		return nil, err
	}
	key, err := keystore.DecryptKey(keystoreEncrypted, ks.Password)
	if err != nil {
		return nil, err
	}
	return NewKeySigner(key.PrivateKey), nil
}

// NewKeySigner wraps an in-memory private key.
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

// Sign signs the 32-byte digest and returns a 65-byte [R || S || V] signature.
func (s *KeySigner) Sign(digest common.Hash) ([]byte, error) {
	return crypto.Sign(digest[:], s.key)
}

// Address returns the signer account address.
func (s *KeySigner) Address() common.Address {
	return s.addr
}
