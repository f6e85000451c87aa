// Package crypto provides the hashing and signature primitives used by the
// lock escrow and its ledger.
package crypto

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-lock/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// IdentityFromPubKey derives the identity address of a signer from its
// compressed public key. Identity = BLAKE3(compressed_pubkey).
func IdentityFromPubKey(pubKey []byte) types.Address {
	return types.Address(Hash(pubKey))
}

// Digest accumulates length-prefixed fields into a BLAKE3 hash. Signed
// requests are hashed through a Digest so that no two distinct field
// sequences share an encoding.
type Digest struct {
	h *blake3.Hasher
}

// NewDigest starts a digest under the given domain label.
func NewDigest(domain string) *Digest {
	d := &Digest{h: blake3.New()}
	d.WriteString(domain)
	return d
}

// WriteBytes appends a length-prefixed byte field.
func (d *Digest) WriteBytes(b []byte) *Digest {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	d.h.Write(n[:])
	d.h.Write(b)
	return d
}

// WriteString appends a length-prefixed string field.
func (d *Digest) WriteString(s string) *Digest {
	return d.WriteBytes([]byte(s))
}

// WriteUint64 appends a fixed-width big-endian integer.
func (d *Digest) WriteUint64(v uint64) *Digest {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	d.h.Write(b[:])
	return d
}

// Sum returns the 32-byte digest.
func (d *Digest) Sum() types.Hash {
	var out types.Hash
	copy(out[:], d.h.Sum(nil))
	return out
}
