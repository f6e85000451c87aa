// Package derive computes program-derived addresses: deterministic
// identifiers computed from a program ID, a namespace tag and key material,
// for which no private key exists.
//
// Derived addresses use BLAKE3 in derive-key mode with a context string of
// their own, so they can never coincide with a signer identity
// (BLAKE3(pubkey)) or with an address derived under another tag or
// program.
package derive

import (
	"encoding/binary"
	"errors"

	"github.com/Klingon-tech/klingnet-lock/pkg/types"
	"github.com/zeebo/blake3"
)

// Context is the BLAKE3 derive-key context for program-derived addresses.
const Context = "klingnet-lock 2025-06 program derived address v1"

// ErrBadProof is returned when an authority's seeds do not reproduce its
// claimed address.
var ErrBadProof = errors.New("derived authority proof mismatch")

// Address computes the derived address for (program, tag, keys...).
// Every field is length-prefixed, so distinct inputs never share an
// encoding.
func Address(program types.Address, tag string, keys ...[]byte) types.Address {
	h := blake3.NewDeriveKey(Context)
	h.Write(program[:])
	writeField(h, []byte(tag))
	for _, k := range keys {
		writeField(h, k)
	}
	var out types.Address
	copy(out[:], h.Sum(nil))
	return out
}

func writeField(h *blake3.Hasher, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	h.Write(n[:])
	h.Write(b)
}

// Program holds the derivation rights of one program. Only code holding a
// Program can mint Authority values for its derived addresses.
type Program struct {
	id types.Address
}

// NewProgram returns derivation rights for the program with the given ID.
func NewProgram(id types.Address) *Program {
	return &Program{id: id}
}

// ID returns the program ID.
func (p *Program) ID() types.Address {
	return p.id
}

// Derive computes a derived address under this program.
func (p *Program) Derive(tag string, keys ...[]byte) types.Address {
	return Address(p.id, tag, keys...)
}

// Authority mints a signing capability for a derived address.
func (p *Program) Authority(tag string, keys ...[]byte) Authority {
	seeds := make([][]byte, len(keys))
	for i, k := range keys {
		seeds[i] = append([]byte(nil), k...)
	}
	return Authority{
		program: p.id,
		tag:     tag,
		seeds:   seeds,
		addr:    p.Derive(tag, keys...),
	}
}

// Authority is a non-interactive signer for a derived address. Its proof is
// the derivation itself: the seeds reproduce the address under the program
// that minted it.
type Authority struct {
	program types.Address
	tag     string
	seeds   [][]byte
	addr    types.Address
}

// Identity returns the derived address this authority signs for.
func (a Authority) Identity() types.Address {
	return a.addr
}

// Program returns the program that minted the authority.
func (a Authority) Program() types.Address {
	return a.program
}

// Authorize re-derives the address from the seeds. The digest of the
// operation is not needed: the derivation is the whole proof.
func (a Authority) Authorize(types.Hash) error {
	if a.program.IsZero() || Address(a.program, a.tag, a.seeds...) != a.addr {
		return ErrBadProof
	}
	return nil
}
