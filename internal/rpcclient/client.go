// Package rpcclient provides a JSON-RPC 2.0 client for klingnet lock nodes.
package rpcclient

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Klingon-tech/klingnet-lock/internal/escrow"
	"github.com/Klingon-tech/klingnet-lock/internal/rpc"
	"github.com/Klingon-tech/klingnet-lock/pkg/crypto"
	"github.com/Klingon-tech/klingnet-lock/pkg/types"
)

// ErrDigestMismatch is returned when the node reports a digest other than
// the one the client computed for the same instruction. Nothing is signed.
var ErrDigestMismatch = errors.New("node digest differs from local digest")

// Client is a JSON-RPC 2.0 HTTP client.
type Client struct {
	endpoint string
	http     *http.Client

	programs *Programs
}

// Programs are the program IDs signed digests commit to.
type Programs struct {
	Escrow types.Address
	Ledger types.Address
}

// New creates a new RPC client targeting the given endpoint URL.
func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, 10*time.Second)
}

// NewWithTimeout creates a new RPC client with a custom HTTP timeout.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int         `json:"id"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// rpcError is a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// RPCError is returned when the server responds with an error. Kind holds
// the escrow or ledger error kind, if the server reported one.
type RPCError struct {
	Code    int
	Message string
	Kind    string
}

func (e *RPCError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("rpc error %d (%s): %s", e.Code, e.Kind, e.Message)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// WithPrograms pins the program IDs the client signs for. Without it they
// are fetched once with lock_getPrograms.
func (c *Client) WithPrograms(p Programs) *Client {
	c.programs = &p
	return c
}

// Call invokes a JSON-RPC method and unmarshals the result into the provided pointer.
// If result is nil, the response result is discarded.
func (c *Client) Call(method string, params, result interface{}) error {
	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.http.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if rpcResp.Error != nil {
		return &RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
			Kind:    rpcResp.Error.Data,
		}
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}

	return nil
}

// ── Typed calls ─────────────────────────────────────────────────────────

// Entry returns the escrow state of asset.
func (c *Client) Entry(asset types.AssetID) (*rpc.EntryResult, error) {
	var res rpc.EntryResult
	if err := c.Call("lock_getEntry", rpc.AssetParam{Asset: asset.String()}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Events returns up to limit lock events starting at sequence number from.
func (c *Client) Events(from uint64, limit int) (*rpc.EventsResult, error) {
	var res rpc.EventsResult
	if err := c.Call("lock_getEvents", rpc.EventsParam{From: from, Limit: limit}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ValidateRecipient asks the node whether s is an acceptable destination
// address.
func (c *Client) ValidateRecipient(s string) (bool, error) {
	var res rpc.ValidResult
	if err := c.Call("lock_validateRecipient", rpc.RecipientParam{Recipient: s}, &res); err != nil {
		return false, err
	}
	return res.Valid, nil
}

// Account returns a ledger account.
func (c *Client) Account(addr types.Address) (*rpc.AccountResult, error) {
	var res rpc.AccountResult
	if err := c.Call("ledger_getAccount", rpc.AddressParam{Address: addr.String()}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Programs returns the program IDs the client signs for.
func (c *Client) Programs() (Programs, error) {
	if c.programs != nil {
		return *c.programs, nil
	}
	var res rpc.ProgramsResult
	if err := c.Call("lock_getPrograms", nil, &res); err != nil {
		return Programs{}, err
	}
	esc, err := types.ParseAddress(res.Escrow)
	if err != nil {
		return Programs{}, fmt.Errorf("escrow program: %w", err)
	}
	led, err := types.ParseAddress(res.Ledger)
	if err != nil {
		return Programs{}, fmt.Errorf("ledger program: %w", err)
	}
	c.programs = &Programs{Escrow: esc, Ledger: led}
	return *c.programs, nil
}

// Initialize creates the escrow of asset, paid for by payer. The digest is
// computed locally and signed only if the node agrees on it.
func (c *Client) Initialize(asset types.AssetID, payer *crypto.PrivateKey) (*rpc.EntryResult, error) {
	programs, err := c.Programs()
	if err != nil {
		return nil, err
	}
	params := rpc.InitializeParam{
		Asset:       asset.String(),
		PayerPubKey: hex.EncodeToString(payer.PublicKey()),
	}
	digest := escrow.InitDigestFor(programs.Escrow, asset, payer.Identity())
	sig, err := c.signDigest("lock_getInitDigest", params, digest, payer)
	if err != nil {
		return nil, err
	}
	params.Signature = sig

	var res rpc.EntryResult
	if err := c.Call("lock_initialize", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// LockRequest describes a lock to submit. Vault may be zero to use the
// asset's vault account.
type LockRequest struct {
	Asset     types.AssetID
	Amount    uint64
	Recipient string
	Source    types.Address
	Vault     types.Address
	Nonce     uint64
}

// Lock moves tokens from the source account into the asset's vault and
// returns the recorded event. The source account must be owned by key.
func (c *Client) Lock(req LockRequest, key *crypto.PrivateKey) (*escrow.Event, error) {
	programs, err := c.Programs()
	if err != nil {
		return nil, err
	}
	params := rpc.LockParam{
		Asset:     req.Asset.String(),
		Amount:    req.Amount,
		Recipient: req.Recipient,
		Source:    req.Source.String(),
		Nonce:     req.Nonce,
		PubKey:    hex.EncodeToString(key.PublicKey()),
	}
	vault := req.Vault
	if vault.IsZero() {
		vault = escrow.VaultAccountFor(programs.Escrow, programs.Ledger, req.Asset)
	}
	params.Vault = vault.String()

	digest := escrow.LockDigestFor(programs.Escrow, vault, &escrow.LockRequest{
		Asset:     req.Asset,
		Amount:    req.Amount,
		Recipient: req.Recipient,
		Source:    req.Source,
		Nonce:     req.Nonce,
	})
	sig, err := c.signDigest("lock_getLockDigest", params, digest, key)
	if err != nil {
		return nil, err
	}
	params.Signature = sig

	var ev escrow.Event
	if err := c.Call("lock_lock", params, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// signDigest signs the locally computed digest after checking the node
// computes the same one for params.
func (c *Client) signDigest(method string, params interface{}, digest types.Hash, key *crypto.PrivateKey) (string, error) {
	var res rpc.DigestResult
	if err := c.Call(method, params, &res); err != nil {
		return "", err
	}
	remote, err := types.HexToHash(res.Digest)
	if err != nil {
		return "", fmt.Errorf("%s: bad digest: %w", method, err)
	}
	if remote != digest {
		return "", fmt.Errorf("%s: node sent %s, want %s: %w", method, remote, digest, ErrDigestMismatch)
	}
	sig, err := key.SignDigest(digest)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return hex.EncodeToString(sig), nil
}
