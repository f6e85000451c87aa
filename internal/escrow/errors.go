package escrow

import "errors"

// Error kinds reported by Initialize and Lock. Each aborts the call with no
// state change.
var (
	ErrAlreadyInitialized = errors.New("escrow already initialized for asset")
	ErrAllocationFailed   = errors.New("payer cannot fund escrow storage")
	ErrInvalidMint        = errors.New("account asset does not match escrow entry")
	ErrInvalidOwner       = errors.New("source account not owned by initiator")
	ErrInvalidVault       = errors.New("vault account not owned by vault authority")
	ErrInvalidRecipient   = errors.New("invalid destination address")
	ErrInvalidAmount      = errors.New("lock amount must be positive")
	ErrNotInitialized     = errors.New("escrow not initialized for asset")
	ErrUnknownAsset       = errors.New("unknown asset")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrReplayed           = errors.New("lock request already applied")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrAlreadyInitialized, "AlreadyInitialized"},
	{ErrAllocationFailed, "AllocationFailed"},
	{ErrInvalidMint, "InvalidMint"},
	{ErrInvalidOwner, "InvalidOwner"},
	{ErrInvalidVault, "InvalidVault"},
	{ErrInvalidRecipient, "InvalidRecipient"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrNotInitialized, "NotInitialized"},
	{ErrUnknownAsset, "UnknownAsset"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrReplayed, "Replayed"},
}

// Kind returns the name of the escrow error kind err wraps, or "" if it
// wraps none.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}
