package escrow

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-lock/internal/alloc"
	"github.com/Klingon-tech/klingnet-lock/internal/storage"
	"github.com/Klingon-tech/klingnet-lock/pkg/types"
)

// Derivation tags. They are disjoint so an entry address and a vault
// authority never coincide for the same key.
const (
	TagLock  = "lock"
	TagVault = "vault"
)

// EntrySize is the fixed size of a registry entry's data.
const EntrySize = types.HashSize

// Entry is the registry record of one escrowed asset. It lives at
// derive("lock", asset) and is never rewritten.
type Entry struct {
	Address types.Address `json:"address"`
	Asset   types.AssetID `json:"asset"`
}

func (e *Entry) encode() []byte {
	buf := make([]byte, EntrySize)
	copy(buf, e.Asset[:])
	return buf
}

func decodeEntry(addr types.Address, data []byte) (*Entry, error) {
	if len(data) != EntrySize {
		return nil, fmt.Errorf("entry %s: size %d, want %d", addr, len(data), EntrySize)
	}
	e := &Entry{Address: addr}
	copy(e.Asset[:], data)
	return e, nil
}

// loadEntry reads the entry of asset. Anything other than an object owned
// by this program at the derived address reads as not initialized.
func (e *Escrow) loadEntry(r storage.Reader, asset types.AssetID) (*Entry, error) {
	addr := e.EntryAddress(asset)
	obj, err := alloc.Load(r, addr)
	if errors.Is(err, alloc.ErrNotFound) {
		return nil, fmt.Errorf("asset %s: %w", asset, ErrNotInitialized)
	}
	if err != nil {
		return nil, err
	}
	if obj.Owner != e.program.ID() {
		return nil, fmt.Errorf("object %s not owned by escrow: %w", addr, ErrNotInitialized)
	}
	entry, err := decodeEntry(addr, obj.Data)
	if err != nil {
		return nil, err
	}
	if entry.Asset != asset {
		return nil, fmt.Errorf("entry %s holds asset %s: %w", addr, entry.Asset, ErrInvalidMint)
	}
	return entry, nil
}
