// Package alloc is the storage-allocation primitive: it creates fixed-size
// objects at caller-chosen addresses, charging rent to a payer's native
// funds, and refuses to allocate an address twice.
package alloc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/Klingon-tech/klingnet-lock/internal/storage"
	"github.com/Klingon-tech/klingnet-lock/pkg/types"
)

// ObjectOverhead is the rent-bearing size of an object's metadata.
const ObjectOverhead = 128

var (
	prefixObject = []byte("o/") // o/<address(32)> -> owner(32) || data
	prefixFunds  = []byte("f/") // f/<address(32)> -> uint64 BE
)

var (
	// ErrAddressInUse is returned when allocating an address that already
	// holds an object.
	ErrAddressInUse = errors.New("address already in use")
	// ErrInsufficientFunds is returned when the payer cannot cover rent.
	ErrInsufficientFunds = errors.New("insufficient funds for rent")
	// ErrNotFound is returned when no object lives at an address.
	ErrNotFound = errors.New("object not found")
	// ErrSizeMismatch is returned when rewriting an object with data of a
	// different size.
	ErrSizeMismatch = errors.New("object size is fixed")
)

// Object is an allocated record. Owner is the program allowed to rewrite it.
type Object struct {
	Address types.Address
	Owner   types.Address
	Data    []byte
}

// Allocator charges rent for new objects.
type Allocator struct {
	rentPerByte uint64
}

// New creates an allocator charging rentPerByte native units per byte.
func New(rentPerByte uint64) *Allocator {
	return &Allocator{rentPerByte: rentPerByte}
}

// Rent returns the rent for an object carrying size bytes of data. A rent
// that does not fit in a uint64 is more than any payer can hold and fails
// with ErrInsufficientFunds.
func (a *Allocator) Rent(size int) (uint64, error) {
	hi, lo := bits.Mul64(uint64(ObjectOverhead+size), a.rentPerByte)
	if hi != 0 {
		return 0, fmt.Errorf("rent for %d bytes overflows: %w", size, ErrInsufficientFunds)
	}
	return lo, nil
}

// Allocate creates an object at addr owned by owner, paid for by payer.
// It fails with ErrAddressInUse if addr is taken and with
// ErrInsufficientFunds if payer cannot cover the rent; on failure nothing
// is staged.
func (a *Allocator) Allocate(tx *storage.Tx, addr, owner types.Address, data []byte, payer types.Address) (*Object, error) {
	exists, err := tx.Has(objectKey(addr))
	if err != nil {
		return nil, fmt.Errorf("alloc lookup %s: %w", addr, err)
	}
	if exists {
		return nil, fmt.Errorf("allocate %s: %w", addr, ErrAddressInUse)
	}

	rent, err := a.Rent(len(data))
	if err != nil {
		return nil, err
	}
	have, err := Funds(tx, payer)
	if err != nil {
		return nil, err
	}
	if have < rent {
		return nil, fmt.Errorf("payer %s has %d, rent is %d: %w", payer, have, rent, ErrInsufficientFunds)
	}
	if err := putFunds(tx, payer, have-rent); err != nil {
		return nil, err
	}

	obj := &Object{Address: addr, Owner: owner, Data: append([]byte(nil), data...)}
	if err := tx.Put(objectKey(addr), encodeObject(obj)); err != nil {
		return nil, err
	}
	return obj, nil
}

// Load reads the object at addr.
func Load(r storage.Reader, addr types.Address) (*Object, error) {
	raw, err := r.Get(objectKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load %s: %w", addr, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", addr, err)
	}
	return decodeObject(addr, raw)
}

// Rewrite replaces the data of an existing object. The size is fixed at
// allocation and the owner cannot change.
func Rewrite(tx *storage.Tx, addr types.Address, data []byte) error {
	obj, err := Load(tx, addr)
	if err != nil {
		return err
	}
	if len(data) != len(obj.Data) {
		return fmt.Errorf("rewrite %s: %d bytes into %d: %w", addr, len(data), len(obj.Data), ErrSizeMismatch)
	}
	obj.Data = data
	return tx.Put(objectKey(addr), encodeObject(obj))
}

// Funds returns the native balance of addr (zero if never funded).
func Funds(r storage.Reader, addr types.Address) (uint64, error) {
	raw, err := r.Get(fundsKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("funds %s: %w", addr, err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("funds %s: corrupt record", addr)
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Deposit credits native funds to addr.
func Deposit(tx *storage.Tx, addr types.Address, amount uint64) error {
	have, err := Funds(tx, addr)
	if err != nil {
		return err
	}
	if have > math.MaxUint64-amount {
		return fmt.Errorf("deposit to %s overflows", addr)
	}
	return putFunds(tx, addr, have+amount)
}

func putFunds(tx *storage.Tx, addr types.Address, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return tx.Put(fundsKey(addr), b[:])
}

func encodeObject(o *Object) []byte {
	buf := make([]byte, types.AddressSize+len(o.Data))
	copy(buf, o.Owner[:])
	copy(buf[types.AddressSize:], o.Data)
	return buf
}

func decodeObject(addr types.Address, raw []byte) (*Object, error) {
	if len(raw) < types.AddressSize {
		return nil, fmt.Errorf("object %s: corrupt header", addr)
	}
	obj := &Object{Address: addr, Data: append([]byte(nil), raw[types.AddressSize:]...)}
	copy(obj.Owner[:], raw[:types.AddressSize])
	return obj, nil
}

func objectKey(addr types.Address) []byte {
	return appendKey(prefixObject, addr)
}

func fundsKey(addr types.Address) []byte {
	return appendKey(prefixFunds, addr)
}

func appendKey(prefix []byte, addr types.Address) []byte {
	key := make([]byte, len(prefix)+types.AddressSize)
	copy(key, prefix)
	copy(key[len(prefix):], addr[:])
	return key
}
