package rpcclient

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Klingon-tech/klingnet-lock/internal/alloc"
	"github.com/Klingon-tech/klingnet-lock/internal/escrow"
	"github.com/Klingon-tech/klingnet-lock/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-lock/internal/log"
	"github.com/Klingon-tech/klingnet-lock/internal/rpc"
	"github.com/Klingon-tech/klingnet-lock/internal/storage"
	"github.com/Klingon-tech/klingnet-lock/pkg/crypto"
	"github.com/Klingon-tech/klingnet-lock/pkg/types"
)

const testRecipient = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"

var (
	testAsset    = types.AssetID{0xC1, 0x1E}
	testEscrowID = types.Address{0xE5}
	testLedgerID = types.Address{0x1E}
)

type testEnv struct {
	client *Client
	escrow *escrow.Escrow
	ledger *ledger.Ledger
	minter *crypto.PrivateKey
	payer  *crypto.PrivateKey
}

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	state := storage.NewSerial(storage.NewMemory())
	a := alloc.New(1)
	l := ledger.New(testLedgerID, state, a)
	esc := escrow.New(escrow.Config{ProgramID: testEscrowID}, state, l, a)

	minter, payer := mustKey(t), mustKey(t)
	if err := l.CreateAsset(testAsset, minter.Identity(), 6); err != nil {
		t.Fatalf("create asset: %v", err)
	}
	if err := l.FundNative(payer.Identity(), 1_000_000); err != nil {
		t.Fatalf("fund payer: %v", err)
	}

	// Create and start RPC server on random port.
	srv := rpc.New("127.0.0.1:0", esc, l)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		client: New("http://" + srv.Addr() + "/"),
		escrow: esc,
		ledger: l,
		minter: minter,
		payer:  payer,
	}
}

// depositor opens a source account for a fresh key and mints balance to it.
func (env *testEnv) depositor(t *testing.T, balance uint64) (*crypto.PrivateKey, types.Address) {
	t.Helper()
	key := mustKey(t)
	acct, err := env.ledger.Open(key.Identity(), testAsset, env.payer.Identity())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	auth, err := ledger.Sign(env.minter, env.ledger.MintDigest(acct.Address, balance, 1))
	if err != nil {
		t.Fatalf("sign mint: %v", err)
	}
	if err := env.ledger.MintTo(acct.Address, balance, 1, auth); err != nil {
		t.Fatalf("mint: %v", err)
	}
	return key, acct.Address
}

func TestClient_InitializeAndLock(t *testing.T) {
	env := setupTestEnv(t)

	entry, err := env.client.Entry(testAsset)
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if entry.Initialized {
		t.Fatal("escrow initialized before lock_initialize")
	}

	entry, err = env.client.Initialize(testAsset, env.payer)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !entry.Initialized {
		t.Error("initialized = false after lock_initialize")
	}
	if entry.VaultAccount != env.escrow.VaultAccount(testAsset).String() {
		t.Errorf("vault_account = %s, want %s", entry.VaultAccount, env.escrow.VaultAccount(testAsset))
	}

	key, source := env.depositor(t, 500)
	ev, err := env.client.Lock(LockRequest{
		Asset:     testAsset,
		Amount:    200,
		Recipient: testRecipient,
		Source:    source,
		Nonce:     1,
	}, key)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if ev.Seq != 1 || ev.Amount != 200 || ev.Sender != key.Identity() || ev.Recipient != testRecipient {
		t.Errorf("event = %+v", ev)
	}

	acct, err := env.client.Account(source)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if acct.Balance != 300 {
		t.Errorf("source balance = %d, want 300", acct.Balance)
	}

	entry, err = env.client.Entry(testAsset)
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if entry.VaultBalance != 200 {
		t.Errorf("vault_balance = %d, want 200", entry.VaultBalance)
	}

	page, err := env.client.Events(0, 10)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if page.Last != 1 || len(page.Events) != 1 || page.Events[0].ID != ev.ID {
		t.Errorf("events page = %+v", page)
	}
}

func TestClient_InitializeTwice(t *testing.T) {
	env := setupTestEnv(t)

	if _, err := env.client.Initialize(testAsset, env.payer); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	_, err := env.client.Initialize(testAsset, env.payer)

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != rpc.CodeEscrowError || rpcErr.Kind != "AlreadyInitialized" {
		t.Errorf("error = %d/%q, want %d/AlreadyInitialized", rpcErr.Code, rpcErr.Kind, rpc.CodeEscrowError)
	}
}

func TestClient_LockInvalidRecipient(t *testing.T) {
	env := setupTestEnv(t)
	if _, err := env.client.Initialize(testAsset, env.payer); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	key, source := env.depositor(t, 100)

	_, err := env.client.Lock(LockRequest{
		Asset:     testAsset,
		Amount:    10,
		Recipient: "0x1234",
		Source:    source,
		Nonce:     1,
	}, key)

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Kind != "InvalidRecipient" {
		t.Errorf("kind = %q, want InvalidRecipient", rpcErr.Kind)
	}
}

func TestClient_ValidateRecipient(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		in   string
		want bool
	}{
		{testRecipient, true},
		{"1234567890123456789012345678901234567890", false},
		{"0x12345678901234567890123456789012345678zz", false},
	}
	for _, tt := range tests {
		got, err := env.client.ValidateRecipient(tt.in)
		if err != nil {
			t.Fatalf("ValidateRecipient(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ValidateRecipient(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClient_AccountNotFound(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.client.Account(types.Address{0x99})
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != rpc.CodeNotFound {
		t.Errorf("error code = %d, want %d", rpcErr.Code, rpc.CodeNotFound)
	}
}

func TestClient_Call_InvalidEndpoint(t *testing.T) {
	client := New("http://127.0.0.1:1/") // nothing listens on port 1

	if _, err := client.Entry(testAsset); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestClient_Call_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	var raw json.RawMessage
	err := env.client.Call("nonexistent_method", nil, &raw)
	if err == nil {
		t.Fatal("expected error for unknown method")
	}

	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -32601 {
		t.Errorf("error code = %d, want -32601", rpcErr.Code)
	}
}

func TestClient_Programs(t *testing.T) {
	env := setupTestEnv(t)

	p, err := env.client.Programs()
	if err != nil {
		t.Fatalf("Programs: %v", err)
	}
	if p.Escrow != testEscrowID || p.Ledger != testLedgerID {
		t.Errorf("programs = %+v", p)
	}
}

func TestClient_LockPinnedProgramMismatch(t *testing.T) {
	env := setupTestEnv(t)
	if _, err := env.client.Initialize(testAsset, env.payer); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	key, source := env.depositor(t, 100)

	env.client.WithPrograms(Programs{Escrow: types.Address{0xE6}, Ledger: testLedgerID})
	_, err := env.client.Lock(LockRequest{
		Asset:     testAsset,
		Amount:    10,
		Recipient: testRecipient,
		Source:    source,
		Nonce:     1,
	}, key)
	if !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("Lock error = %v, want ErrDigestMismatch", err)
	}

	acct, err := env.client.Account(source)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if acct.Balance != 100 {
		t.Errorf("source balance = %d, want 100", acct.Balance)
	}
}

// dishonestNode answers digest requests with the digest of a different
// instruction and records whether a signed instruction was submitted.
func dishonestNode(t *testing.T, submitted *atomic.Bool) *httptest.Server {
	t.Helper()
	const attacker = "0x000000000000000000000000000000000000dEaD"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		var result interface{}
		switch req.Method {
		case "lock_getPrograms":
			result = rpc.ProgramsResult{Escrow: testEscrowID.String(), Ledger: testLedgerID.String()}
		case "lock_getInitDigest":
			result = rpc.DigestResult{Digest: escrow.InitDigestFor(testEscrowID, testAsset, types.Address{0xBA, 0xD}).String()}
		case "lock_getLockDigest":
			var p rpc.LockParam
			if err := json.Unmarshal(req.Params, &p); err != nil {
				t.Errorf("decode params: %v", err)
				return
			}
			source, _ := types.ParseAddress(p.Source)
			vault := escrow.VaultAccountFor(testEscrowID, testLedgerID, testAsset)
			d := escrow.LockDigestFor(testEscrowID, vault, &escrow.LockRequest{
				Asset:     testAsset,
				Amount:    p.Amount,
				Recipient: attacker,
				Source:    source,
				Nonce:     p.Nonce,
			})
			result = rpc.DigestResult{Digest: d.String()}
		default:
			submitted.Store(true)
			result = map[string]string{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rpc.Response{JSONRPC: "2.0", Result: result, ID: 1})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_RefusesForeignDigest(t *testing.T) {
	key := mustKey(t)

	t.Run("lock", func(t *testing.T) {
		var submitted atomic.Bool
		client := New(dishonestNode(t, &submitted).URL)

		_, err := client.Lock(LockRequest{
			Asset:     testAsset,
			Amount:    50,
			Recipient: testRecipient,
			Source:    types.Address{0x5C},
			Nonce:     1,
		}, key)
		if !errors.Is(err, ErrDigestMismatch) {
			t.Fatalf("Lock error = %v, want ErrDigestMismatch", err)
		}
		if submitted.Load() {
			t.Error("a signed lock reached the node")
		}
	})

	t.Run("initialize", func(t *testing.T) {
		var submitted atomic.Bool
		client := New(dishonestNode(t, &submitted).URL)

		if _, err := client.Initialize(testAsset, key); !errors.Is(err, ErrDigestMismatch) {
			t.Fatalf("Initialize error = %v, want ErrDigestMismatch", err)
		}
		if submitted.Load() {
			t.Error("a signed initialize reached the node")
		}
	})
}
