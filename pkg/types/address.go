package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// AddressSize is the length of an address in bytes.
const AddressSize = 32

// Address identifies a principal or an allocated object: a user identity
// (hash of a public key), a program, or a derived address.
type Address [AddressSize]byte

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the hex-encoded address.
func (a Address) String() string {
	return Hash(a).String()
}

// Bytes returns a copy of the address as a byte slice.
func (a Address) Bytes() []byte {
	return Hash(a).Bytes()
}

// Compare orders addresses byte-wise.
func (a Address) Compare(b Address) int {
	return bytes.Compare(a[:], b[:])
}

// MarshalJSON encodes the address as a hex string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a hex string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a 32-byte hex address, with or without a 0x prefix.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	b, err := decodeFixedHex(s, AddressSize)
	if err != nil {
		return Address{}, fmt.Errorf("address: %w", err)
	}
	var a Address
	copy(a[:], b)
	return a, nil
}
