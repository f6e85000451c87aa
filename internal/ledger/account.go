package ledger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-lock/internal/alloc"
	"github.com/Klingon-tech/klingnet-lock/internal/storage"
	"github.com/Klingon-tech/klingnet-lock/pkg/types"
)

// AccountSize is the fixed data size of a ledger account object.
const AccountSize = 32 + 32 + 8

var prefixAsset = []byte("m/") // m/<asset(32)> -> Asset JSON

// Account is a balance of one asset held by one owner.
//
// Layout: asset(32) | owner(32) | balance(8, big-endian).
type Account struct {
	Address types.Address `json:"address"`
	Asset   types.AssetID `json:"asset"`
	Owner   types.Address `json:"owner"`
	Balance uint64        `json:"balance"`
}

func (a *Account) encode() []byte {
	buf := make([]byte, AccountSize)
	copy(buf[0:32], a.Asset[:])
	copy(buf[32:64], a.Owner[:])
	binary.BigEndian.PutUint64(buf[64:], a.Balance)
	return buf
}

func decodeAccount(addr types.Address, data []byte) (*Account, error) {
	if len(data) != AccountSize {
		return nil, fmt.Errorf("account %s: %d bytes, want %d", addr, len(data), AccountSize)
	}
	a := &Account{Address: addr}
	copy(a.Asset[:], data[0:32])
	copy(a.Owner[:], data[32:64])
	a.Balance = binary.BigEndian.Uint64(data[64:])
	return a, nil
}

// Asset describes a fungible asset the ledger tracks.
type Asset struct {
	ID            types.AssetID `json:"id"`
	MintAuthority types.Address `json:"mint_authority"`
	Decimals      uint8         `json:"decimals"`
	Supply        uint64        `json:"supply"`
}

func assetKey(id types.AssetID) []byte {
	key := make([]byte, len(prefixAsset)+types.HashSize)
	copy(key, prefixAsset)
	copy(key[len(prefixAsset):], id[:])
	return key
}

func loadAsset(r storage.Reader, id types.AssetID) (*Asset, error) {
	data, err := r.Get(assetKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("asset %s: %w", id, ErrUnknownAsset)
	}
	if err != nil {
		return nil, fmt.Errorf("asset get: %w", err)
	}
	var a Asset
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("asset unmarshal: %w", err)
	}
	return &a, nil
}

func putAsset(tx *storage.Tx, a *Asset) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("asset marshal: %w", err)
	}
	return tx.Put(assetKey(a.ID), data)
}

func (l *Ledger) loadAccount(r storage.Reader, addr types.Address) (*Account, error) {
	obj, err := alloc.Load(r, addr)
	if errors.Is(err, alloc.ErrNotFound) {
		return nil, fmt.Errorf("account %s: %w", addr, ErrNoAccount)
	}
	if err != nil {
		return nil, err
	}
	if obj.Owner != l.program.ID() {
		return nil, fmt.Errorf("object %s is not a ledger account: %w", addr, ErrNoAccount)
	}
	return decodeAccount(addr, obj.Data)
}

func storeAccount(tx *storage.Tx, a *Account) error {
	return alloc.Rewrite(tx, a.Address, a.encode())
}
