package rpc

import (
	"github.com/Klingon-tech/klingnet-lock/internal/escrow"
	"github.com/Klingon-tech/klingnet-lock/internal/ledger"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeEscrowError    = -32001 // Data carries the escrow error kind.
	CodeLedgerError    = -32002 // Data carries the ledger error kind.
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// AssetParam is used by endpoints that take a single asset ID.
type AssetParam struct {
	Asset string `json:"asset"`
}

// AddressParam is used by ledger_getAccount.
type AddressParam struct {
	Address string `json:"address"`
}

// InitializeParam is used by lock_initialize and lock_getInitDigest.
type InitializeParam struct {
	Asset       string `json:"asset"`
	PayerPubKey string `json:"payer_pubkey"`
	Signature   string `json:"signature,omitempty"`
}

// LockParam is used by lock_lock and lock_getLockDigest. Vault is optional
// and defaults to the asset's vault account.
type LockParam struct {
	Asset     string `json:"asset"`
	Amount    uint64 `json:"amount"`
	Recipient string `json:"recipient"`
	Source    string `json:"source"`
	Vault     string `json:"vault,omitempty"`
	Nonce     uint64 `json:"nonce"`
	PubKey    string `json:"pubkey"`
	Signature string `json:"signature,omitempty"`
}

// EventsParam is used by lock_getEvents.
type EventsParam struct {
	From  uint64 `json:"from"`
	Limit int    `json:"limit"`
}

// RecipientParam is used by lock_validateRecipient.
type RecipientParam struct {
	Recipient string `json:"recipient"`
}

// ── Result types ────────────────────────────────────────────────────────

// EntryResult describes the escrow of one asset. The derived addresses are
// reported even when the escrow is not initialized.
type EntryResult struct {
	Asset          string `json:"asset"`
	Initialized    bool   `json:"initialized"`
	Entry          string `json:"entry"`
	VaultAuthority string `json:"vault_authority"`
	VaultAccount   string `json:"vault_account"`
	VaultBalance   uint64 `json:"vault_balance"`
}

// EventsResult is a page of lock events.
type EventsResult struct {
	Events []*escrow.Event `json:"events"`
	Last   uint64          `json:"last"`
}

// ProgramsResult names the program IDs digests and derived addresses are
// computed under.
type ProgramsResult struct {
	Escrow string `json:"escrow"`
	Ledger string `json:"ledger"`
}

// DigestResult carries a digest to sign.
type DigestResult struct {
	Digest string `json:"digest"`
}

// ValidResult is the answer of lock_validateRecipient.
type ValidResult struct {
	Valid bool `json:"valid"`
}

// AccountResult is a ledger account.
type AccountResult struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Owner   string `json:"owner"`
	Balance uint64 `json:"balance"`
}

// NewAccountResult converts a ledger account for RPC responses.
func NewAccountResult(a *ledger.Account) *AccountResult {
	return &AccountResult{
		Address: a.Address.String(),
		Asset:   a.Asset.String(),
		Owner:   a.Owner.String(),
		Balance: a.Balance,
	}
}
