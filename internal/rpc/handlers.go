package rpc

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-lock/internal/escrow"
	"github.com/Klingon-tech/klingnet-lock/internal/ledger"
	"github.com/Klingon-tech/klingnet-lock/pkg/types"
)

// ── Error mapping ───────────────────────────────────────────────────────

var ledgerKinds = []struct {
	err  error
	name string
}{
	{ledger.ErrInsufficientFunds, "InsufficientFunds"},
	{ledger.ErrNoAccount, "NoAccount"},
	{ledger.ErrUnknownAsset, "UnknownAsset"},
	{ledger.ErrAssetMismatch, "AssetMismatch"},
	{ledger.ErrOwnerMismatch, "OwnerMismatch"},
	{ledger.ErrOverflow, "Overflow"},
}

// toRPCError maps an escrow or ledger error to a JSON-RPC error.
func toRPCError(err error) *Error {
	if kind := escrow.Kind(err); kind != "" {
		return &Error{Code: CodeEscrowError, Message: err.Error(), Data: kind}
	}
	for _, k := range ledgerKinds {
		if errors.Is(err, k.err) {
			return &Error{Code: CodeLedgerError, Message: err.Error(), Data: k.name}
		}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

// ── Param decoding ──────────────────────────────────────────────────────

func parseAsset(s string) (types.AssetID, *Error) {
	if s == "" {
		return types.AssetID{}, &Error{Code: CodeInvalidParams, Message: "asset is required"}
	}
	id, err := types.HexToAssetID(s)
	if err != nil {
		return types.AssetID{}, &Error{Code: CodeInvalidParams, Message: "invalid asset: must be 32-byte hex"}
	}
	return id, nil
}

func parseAddr(field, s string) (types.Address, *Error) {
	addr, err := types.ParseAddress(s)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s: must be 32-byte hex", field)}
	}
	return addr, nil
}

func parseHexBytes(field, s string) ([]byte, *Error) {
	if s == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: field + " is required"}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s: must be hex", field)}
	}
	return b, nil
}

func (s *Server) lockRequest(p *LockParam, needSig bool) (*escrow.LockRequest, *Error) {
	asset, rpcErr := parseAsset(p.Asset)
	if rpcErr != nil {
		return nil, rpcErr
	}
	source, rpcErr := parseAddr("source", p.Source)
	if rpcErr != nil {
		return nil, rpcErr
	}
	req := &escrow.LockRequest{
		Asset:     asset,
		Amount:    p.Amount,
		Recipient: p.Recipient,
		Source:    source,
		Nonce:     p.Nonce,
	}
	if p.Vault != "" {
		if req.Vault, rpcErr = parseAddr("vault", p.Vault); rpcErr != nil {
			return nil, rpcErr
		}
	}
	if !needSig {
		return req, nil
	}
	if req.Initiator.PubKey, rpcErr = parseHexBytes("pubkey", p.PubKey); rpcErr != nil {
		return nil, rpcErr
	}
	if req.Initiator.Signature, rpcErr = parseHexBytes("signature", p.Signature); rpcErr != nil {
		return nil, rpcErr
	}
	return req, nil
}

// ── Lock endpoints ──────────────────────────────────────────────────────

func (s *Server) handleLockInitialize(req *Request) (interface{}, *Error) {
	var params InitializeParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	asset, rpcErr := parseAsset(params.Asset)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pub, rpcErr := parseHexBytes("payer_pubkey", params.PayerPubKey)
	if rpcErr != nil {
		return nil, rpcErr
	}
	sig, rpcErr := parseHexBytes("signature", params.Signature)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if _, err := s.escrow.Initialize(asset, ledger.Signed{PubKey: pub, Signature: sig}); err != nil {
		return nil, toRPCError(err)
	}
	return s.entryResult(asset)
}

func (s *Server) handleLockLock(req *Request) (interface{}, *Error) {
	var params LockParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	lockReq, rpcErr := s.lockRequest(&params, true)
	if rpcErr != nil {
		return nil, rpcErr
	}

	ev, err := s.escrow.Lock(lockReq)
	if err != nil {
		return nil, toRPCError(err)
	}
	return ev, nil
}

func (s *Server) handleLockGetEntry(req *Request) (interface{}, *Error) {
	var params AssetParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	asset, rpcErr := parseAsset(params.Asset)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.entryResult(asset)
}

func (s *Server) entryResult(asset types.AssetID) (*EntryResult, *Error) {
	result := &EntryResult{
		Asset:          asset.String(),
		Entry:          s.escrow.EntryAddress(asset).String(),
		VaultAuthority: s.escrow.VaultAuthority(asset).String(),
		VaultAccount:   s.escrow.VaultAccount(asset).String(),
	}
	_, err := s.escrow.Entry(asset)
	if errors.Is(err, escrow.ErrNotInitialized) {
		return result, nil
	}
	if err != nil {
		return nil, toRPCError(err)
	}
	result.Initialized = true

	bal, err := s.ledger.Balance(s.escrow.VaultAccount(asset))
	if err != nil {
		return nil, toRPCError(err)
	}
	result.VaultBalance = bal
	return result, nil
}

func (s *Server) handleLockGetEvents(req *Request) (interface{}, *Error) {
	var params EventsParam
	if req.Params != nil {
		if err := parseParams(req, &params); err != nil {
			return nil, err
		}
	}
	if params.Limit < 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "limit must not be negative"}
	}

	events, err := s.escrow.Events().Since(params.From, params.Limit)
	if err != nil {
		return nil, toRPCError(err)
	}
	last, err := s.escrow.Events().Last()
	if err != nil {
		return nil, toRPCError(err)
	}
	if events == nil {
		events = []*escrow.Event{}
	}
	return &EventsResult{Events: events, Last: last}, nil
}

func (s *Server) handleLockValidateRecipient(req *Request) (interface{}, *Error) {
	var params RecipientParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	return &ValidResult{Valid: escrow.ValidRecipient(params.Recipient)}, nil
}

func (s *Server) handleLockGetInitDigest(req *Request) (interface{}, *Error) {
	var params InitializeParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	asset, rpcErr := parseAsset(params.Asset)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pub, rpcErr := parseHexBytes("payer_pubkey", params.PayerPubKey)
	if rpcErr != nil {
		return nil, rpcErr
	}
	payer := ledger.Signed{PubKey: pub}.Identity()
	return &DigestResult{Digest: s.escrow.InitDigest(asset, payer).String()}, nil
}

func (s *Server) handleLockGetLockDigest(req *Request) (interface{}, *Error) {
	var params LockParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	lockReq, rpcErr := s.lockRequest(&params, false)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &DigestResult{Digest: s.escrow.LockDigest(lockReq).String()}, nil
}

func (s *Server) handleLockGetPrograms(_ *Request) (interface{}, *Error) {
	return &ProgramsResult{
		Escrow: s.escrow.ProgramID().String(),
		Ledger: s.ledger.ProgramID().String(),
	}, nil
}

// ── Ledger endpoints ────────────────────────────────────────────────────

func (s *Server) handleLedgerGetAccount(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Address == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "address is required"}
	}
	addr, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	acct, err := s.ledger.Get(addr)
	if errors.Is(err, ledger.ErrNoAccount) {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("account not found: %s", addr)}
	}
	if err != nil {
		return nil, toRPCError(err)
	}
	return NewAccountResult(acct), nil
}
