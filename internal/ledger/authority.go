package ledger

import (
	"github.com/Klingon-tech/klingnet-lock/pkg/crypto"
	"github.com/Klingon-tech/klingnet-lock/pkg/types"
)

// Authority is a principal authorizing a ledger mutation. Identity is the
// address being acted for; Authorize proves the right to act for it on
// the operation summarized by digest.
//
// Two implementations exist: Signed (a key holder's signature) and
// derive.Authority (a program-derived address proven by its seeds).
type Authority interface {
	Identity() types.Address
	Authorize(digest types.Hash) error
}

// Signed is an authority backed by a Schnorr signature over the digest of
// the operation being authorized.
type Signed struct {
	PubKey    []byte
	Signature []byte
}

// Identity returns the signer's identity address.
func (s Signed) Identity() types.Address {
	return crypto.IdentityFromPubKey(s.PubKey)
}

// Authorize verifies the signature over digest.
func (s Signed) Authorize(digest types.Hash) error {
	if !crypto.VerifySignature(digest[:], s.Signature, s.PubKey) {
		return ErrBadSignature
	}
	return nil
}

// Sign builds a Signed authority over digest with key.
func Sign(key *crypto.PrivateKey, digest types.Hash) (Signed, error) {
	sig, err := key.SignDigest(digest)
	if err != nil {
		return Signed{}, err
	}
	return Signed{PubKey: key.PublicKey(), Signature: sig}, nil
}
