package escrow

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// RecipientLength is the length of a destination address: "0x" and 40 hex
// digits.
const RecipientLength = 2 + 2*common.AddressLength

// ValidRecipient reports whether s is a destination-chain address. The
// check is lexical only; mixed case is accepted without checksum
// verification.
func ValidRecipient(s string) bool {
	if len(s) != RecipientLength || !strings.HasPrefix(s, "0x") {
		return false
	}
	return common.IsHexAddress(s)
}
