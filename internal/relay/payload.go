// Package relay hands committed lock events to the outside world: a Redis
// list a destination-chain relayer consumes, or the log.
package relay

import (
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingnet-lock/internal/escrow"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// lockArgs is the ABI layout of a lock as submitted on the destination
// chain: (bytes32 sender, uint256 amount, address recipient, bytes32 asset,
// uint64 seq).
var lockArgs = abi.Arguments{
	{Name: "sender", Type: mustType("bytes32")},
	{Name: "amount", Type: mustType("uint256")},
	{Name: "recipient", Type: mustType("address")},
	{Name: "asset", Type: mustType("bytes32")},
	{Name: "seq", Type: mustType("uint64")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", t, err))
	}
	return typ
}

// Payload ABI-encodes ev.
func Payload(ev *escrow.Event) ([]byte, error) {
	if !common.IsHexAddress(ev.Recipient) {
		return nil, fmt.Errorf("event %d: bad recipient %q", ev.Seq, ev.Recipient)
	}
	return lockArgs.Pack(
		[32]byte(ev.Sender),
		new(big.Int).SetUint64(ev.Amount),
		common.HexToAddress(ev.Recipient),
		[32]byte(ev.Asset),
		ev.Seq,
	)
}
