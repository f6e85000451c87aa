package escrow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-lock/internal/alloc"
	"github.com/Klingon-tech/klingnet-lock/internal/derive"
	"github.com/Klingon-tech/klingnet-lock/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-lock/internal/log"
	"github.com/Klingon-tech/klingnet-lock/internal/storage"
	"github.com/Klingon-tech/klingnet-lock/pkg/crypto"
	"github.com/Klingon-tech/klingnet-lock/pkg/types"
)

const recipient = "0x1234567890123456789012345678901234567890"

var (
	escrowID = types.Address{0xE5}
	ledgerID = types.Address{0x1E}
	assetX   = types.AssetID{0x0A}
	assetY   = types.AssetID{0x0B}
)

// recorder is a Notifier that keeps every event it is given.
type recorder struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (r *recorder) Notify(_ context.Context, ev *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type env struct {
	escrow *Escrow
	ledger *ledger.Ledger
	state  *storage.Serial
	minter *crypto.PrivateKey
	payer  *crypto.PrivateKey
	rec    *recorder
	nonce  uint64
}

func newEnv(t *testing.T, db storage.DB) *env {
	t.Helper()
	klog.Init("error", false, "")

	state := storage.NewSerial(db)
	a := alloc.New(1)
	l := ledger.New(ledgerID, state, a)
	rec := &recorder{}
	e := New(Config{ProgramID: escrowID}, state, l, a, rec)
	e.now = func() time.Time { return time.Unix(1700000000, 0) }

	return &env{
		escrow: e,
		ledger: l,
		state:  state,
		minter: mustKey(t),
		payer:  mustKey(t),
		rec:    rec,
	}
}

func setup(t *testing.T) *env {
	t.Helper()
	v := newEnv(t, storage.NewMemory())
	for _, id := range []types.AssetID{assetX, assetY} {
		if err := v.ledger.CreateAsset(id, v.minter.Identity(), 6); err != nil {
			t.Fatalf("CreateAsset: %v", err)
		}
	}
	if err := v.ledger.FundNative(v.payer.Identity(), 1_000_000); err != nil {
		t.Fatalf("FundNative: %v", err)
	}
	return v
}

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	k, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return k
}

func (v *env) signInit(t *testing.T, key *crypto.PrivateKey, asset types.AssetID) ledger.Signed {
	t.Helper()
	auth, err := ledger.Sign(key, v.escrow.InitDigest(asset, key.Identity()))
	if err != nil {
		t.Fatalf("sign init: %v", err)
	}
	return auth
}

func (v *env) initialize(t *testing.T, asset types.AssetID) *Entry {
	t.Helper()
	entry, err := v.escrow.Initialize(asset, v.signInit(t, v.payer, asset))
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return entry
}

// depositor opens a funded account of asset owned by a fresh key.
func (v *env) depositor(t *testing.T, asset types.AssetID, balance uint64) (*crypto.PrivateKey, types.Address) {
	t.Helper()
	key := mustKey(t)
	acct, err := v.ledger.Open(key.Identity(), asset, v.payer.Identity())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if balance > 0 {
		v.nonce++
		auth, err := ledger.Sign(v.minter, v.ledger.MintDigest(acct.Address, balance, v.nonce))
		if err != nil {
			t.Fatalf("sign mint: %v", err)
		}
		if err := v.ledger.MintTo(acct.Address, balance, v.nonce, auth); err != nil {
			t.Fatalf("MintTo: %v", err)
		}
	}
	return key, acct.Address
}

func (v *env) lockRequest(t *testing.T, key *crypto.PrivateKey, asset types.AssetID, source types.Address, amount uint64, to string, nonce uint64) *LockRequest {
	t.Helper()
	req := &LockRequest{
		Asset:     asset,
		Amount:    amount,
		Recipient: to,
		Source:    source,
		Nonce:     nonce,
	}
	auth, err := ledger.Sign(key, v.escrow.LockDigest(req))
	if err != nil {
		t.Fatalf("sign lock: %v", err)
	}
	req.Initiator = auth
	return req
}

func (v *env) balance(t *testing.T, addr types.Address) uint64 {
	t.Helper()
	bal, err := v.ledger.Balance(addr)
	if err != nil {
		t.Fatalf("Balance(%s): %v", addr, err)
	}
	return bal
}

func TestInitialize(t *testing.T) {
	v := setup(t)
	before, _ := v.ledger.NativeBalance(v.payer.Identity())

	entry := v.initialize(t, assetX)

	if entry.Address != derive.Address(escrowID, TagLock, assetX[:]) {
		t.Error("entry not at derive(lock, asset)")
	}
	got, err := v.escrow.Entry(assetX)
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if got.Asset != assetX || got.Address != entry.Address {
		t.Errorf("Entry = %+v", got)
	}

	authority := derive.Address(escrowID, TagVault, entry.Address[:])
	if v.escrow.VaultAuthority(assetX) != authority {
		t.Error("vault authority not derive(vault, entry)")
	}
	vault, err := v.ledger.Get(v.escrow.VaultAccount(assetX))
	if err != nil {
		t.Fatalf("vault account: %v", err)
	}
	if vault.Asset != assetX || vault.Owner != authority || vault.Balance != 0 {
		t.Errorf("vault account = %+v", vault)
	}

	after, _ := v.ledger.NativeBalance(v.payer.Identity())
	wantRent := (alloc.ObjectOverhead + EntrySize) + (alloc.ObjectOverhead + ledger.AccountSize)
	if before-after != uint64(wantRent) {
		t.Errorf("rent charged = %d, want %d", before-after, wantRent)
	}
}

func TestInitialize_Twice(t *testing.T) {
	v := setup(t)
	v.initialize(t, assetX)

	key, src := v.depositor(t, assetX, 50)
	if _, err := v.escrow.Lock(v.lockRequest(t, key, assetX, src, 20, recipient, 1)); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	funds, _ := v.ledger.NativeBalance(v.payer.Identity())

	_, err := v.escrow.Initialize(assetX, v.signInit(t, v.payer, assetX))
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second Initialize err = %v, want ErrAlreadyInitialized", err)
	}
	if bal := v.balance(t, v.escrow.VaultAccount(assetX)); bal != 20 {
		t.Errorf("vault balance after second Initialize = %d, want 20", bal)
	}
	if after, _ := v.ledger.NativeBalance(v.payer.Identity()); after != funds {
		t.Errorf("payer charged %d by rejected Initialize", funds-after)
	}
}

func TestInitialize_Rejections(t *testing.T) {
	v := setup(t)

	t.Run("unknown asset", func(t *testing.T) {
		asset := types.AssetID{0xFF}
		_, err := v.escrow.Initialize(asset, v.signInit(t, v.payer, asset))
		if !errors.Is(err, ErrUnknownAsset) {
			t.Errorf("err = %v, want ErrUnknownAsset", err)
		}
	})

	t.Run("signature for another asset", func(t *testing.T) {
		_, err := v.escrow.Initialize(assetX, v.signInit(t, v.payer, assetY))
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("unfunded payer", func(t *testing.T) {
		poor := mustKey(t)
		_, err := v.escrow.Initialize(assetX, v.signInit(t, poor, assetX))
		if !errors.Is(err, ErrAllocationFailed) {
			t.Errorf("err = %v, want ErrAllocationFailed", err)
		}
	})

	if _, err := v.escrow.Entry(assetX); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Entry after rejected Initialize err = %v, want ErrNotInitialized", err)
	}
}

func TestInitialize_AllOrNothing(t *testing.T) {
	v := setup(t)
	payer := mustKey(t)
	// Enough for the entry, not for the vault account.
	entryRent := uint64(alloc.ObjectOverhead + EntrySize)
	if err := v.ledger.FundNative(payer.Identity(), entryRent); err != nil {
		t.Fatalf("FundNative: %v", err)
	}

	_, err := v.escrow.Initialize(assetX, v.signInit(t, payer, assetX))
	if !errors.Is(err, ErrAllocationFailed) {
		t.Fatalf("err = %v, want ErrAllocationFailed", err)
	}
	if _, err := v.escrow.Entry(assetX); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("entry left behind: %v", err)
	}
	if funds, _ := v.ledger.NativeBalance(payer.Identity()); funds != entryRent {
		t.Errorf("payer funds = %d, want %d", funds, entryRent)
	}
}

func TestInitialize_AdoptsPreopenedVault(t *testing.T) {
	v := setup(t)
	authority := v.escrow.VaultAuthority(assetX)
	if _, err := v.ledger.Open(authority, assetX, v.payer.Identity()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	v.initialize(t, assetX)

	key, src := v.depositor(t, assetX, 5)
	if _, err := v.escrow.Lock(v.lockRequest(t, key, assetX, src, 5, recipient, 1)); err != nil {
		t.Fatalf("Lock into adopted vault: %v", err)
	}
}

func TestVaultAuthority_DistinctPerAsset(t *testing.T) {
	v := setup(t)
	seen := make(map[types.Address]types.AssetID)
	for i := 0; i < 512; i++ {
		asset := types.AssetID{byte(i), byte(i >> 8), 0x5A}
		authority := v.escrow.VaultAuthority(asset)
		if prev, ok := seen[authority]; ok {
			t.Fatalf("assets %s and %s share vault authority", prev, asset)
		}
		seen[authority] = asset
		if authority == v.escrow.EntryAddress(asset) {
			t.Fatalf("vault authority equals entry address for %s", asset)
		}
	}
}

func TestDigestFor_MatchesEscrow(t *testing.T) {
	v := setup(t)
	key := mustKey(t)

	if got, want := VaultAccountFor(escrowID, ledgerID, assetX), v.escrow.VaultAccount(assetX); got != want {
		t.Errorf("VaultAccountFor = %s, want %s", got, want)
	}
	if got, want := InitDigestFor(escrowID, assetX, key.Identity()), v.escrow.InitDigest(assetX, key.Identity()); got != want {
		t.Errorf("InitDigestFor = %s, want %s", got, want)
	}

	req := &LockRequest{Asset: assetX, Amount: 7, Recipient: recipient, Source: types.Address{0x5C}, Nonce: 3}
	vault := VaultAccountFor(escrowID, ledgerID, assetX)
	if got, want := LockDigestFor(escrowID, vault, req), v.escrow.LockDigest(req); got != want {
		t.Errorf("LockDigestFor = %s, want %s", got, want)
	}

	other := *req
	other.Recipient = "0x000000000000000000000000000000000000dEaD"
	if LockDigestFor(escrowID, vault, &other) == LockDigestFor(escrowID, vault, req) {
		t.Error("lock digest does not commit to the recipient")
	}
	if LockDigestFor(types.Address{0xE6}, vault, req) == LockDigestFor(escrowID, vault, req) {
		t.Error("lock digest does not commit to the program")
	}
}

func TestLock(t *testing.T) {
	v := setup(t)
	v.initialize(t, assetX)
	key, src := v.depositor(t, assetX, 100)
	vault := v.escrow.VaultAccount(assetX)

	ev, err := v.escrow.Lock(v.lockRequest(t, key, assetX, src, 30, recipient, 1))
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	if bal := v.balance(t, src); bal != 70 {
		t.Errorf("source balance = %d, want 70", bal)
	}
	if bal := v.balance(t, vault); bal != 30 {
		t.Errorf("vault balance = %d, want 30", bal)
	}

	if ev.Sender != key.Identity() || ev.Amount != 30 || ev.Recipient != recipient {
		t.Errorf("event = %+v", ev)
	}
	if ev.Seq != 1 || ev.Asset != assetX || ev.Vault != vault || ev.Timestamp != 1700000000 {
		t.Errorf("event metadata = %+v", ev)
	}

	if v.rec.count() != 1 || v.rec.events[0] != ev {
		t.Errorf("notifier saw %d events", v.rec.count())
	}
	stored, err := v.escrow.Events().Since(0, 0)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != ev.ID || stored[0].Recipient != recipient {
		t.Errorf("stored events = %+v", stored)
	}
}

func TestLock_Sequence(t *testing.T) {
	v := setup(t)
	v.initialize(t, assetX)
	key, src := v.depositor(t, assetX, 100)

	for i := uint64(1); i <= 5; i++ {
		ev, err := v.escrow.Lock(v.lockRequest(t, key, assetX, src, i, recipient, i))
		if err != nil {
			t.Fatalf("Lock %d: %v", i, err)
		}
		if ev.Seq != i {
			t.Errorf("lock %d got seq %d", i, ev.Seq)
		}
	}
	if bal := v.balance(t, v.escrow.VaultAccount(assetX)); bal != 15 {
		t.Errorf("vault balance = %d, want 15", bal)
	}

	page, err := v.escrow.Events().Since(3, 2)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(page) != 2 || page[0].Seq != 3 || page[1].Seq != 4 {
		t.Errorf("Since(3, 2) returned %d events", len(page))
	}
	if last, _ := v.escrow.Events().Last(); last != 5 {
		t.Errorf("Last = %d, want 5", last)
	}
}

// assertUnchanged fails if any of the given balances moved.
func (v *env) assertUnchanged(t *testing.T, want map[types.Address]uint64) {
	t.Helper()
	for addr, bal := range want {
		if got := v.balance(t, addr); got != bal {
			t.Errorf("balance of %s = %d, want %d", addr, got, bal)
		}
	}
}

func TestLock_InvalidRecipient(t *testing.T) {
	v := setup(t)
	v.initialize(t, assetX)
	key, src := v.depositor(t, assetX, 10)
	vault := v.escrow.VaultAccount(assetX)

	for i, to := range []string{
		"0xZZZ4567890123456789012345678901234567890",
		"0x123456789012345678901234567890123456789",
		"1234567890123456789012345678901234567890ab",
		"",
	} {
		_, err := v.escrow.Lock(v.lockRequest(t, key, assetX, src, 1, to, uint64(i)))
		if !errors.Is(err, ErrInvalidRecipient) {
			t.Errorf("Lock(%q) err = %v, want ErrInvalidRecipient", to, err)
		}
	}
	v.assertUnchanged(t, map[types.Address]uint64{src: 10, vault: 0})
	if v.rec.count() != 0 {
		t.Error("event emitted for rejected lock")
	}
}

func TestLock_RecipientCheckedFirst(t *testing.T) {
	v := setup(t)
	// Not initialized, zero amount and a bad recipient: recipient wins.
	_, err := v.escrow.Lock(&LockRequest{Asset: assetX, Recipient: "0x"})
	if !errors.Is(err, ErrInvalidRecipient) {
		t.Errorf("err = %v, want ErrInvalidRecipient", err)
	}
}

func TestLock_ZeroAmount(t *testing.T) {
	v := setup(t)
	v.initialize(t, assetX)
	key, src := v.depositor(t, assetX, 10)

	_, err := v.escrow.Lock(v.lockRequest(t, key, assetX, src, 0, recipient, 1))
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("err = %v, want ErrInvalidAmount", err)
	}
	if last, _ := v.escrow.Events().Last(); last != 0 {
		t.Error("event recorded for zero lock")
	}
}

func TestLock_NotInitialized(t *testing.T) {
	v := setup(t)
	key, src := v.depositor(t, assetX, 10)

	_, err := v.escrow.Lock(v.lockRequest(t, key, assetX, src, 1, recipient, 1))
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("err = %v, want ErrNotInitialized", err)
	}
}

func TestLock_InvalidOwner(t *testing.T) {
	v := setup(t)
	v.initialize(t, assetX)
	_, src := v.depositor(t, assetX, 10)
	intruder := mustKey(t)
	vault := v.escrow.VaultAccount(assetX)

	_, err := v.escrow.Lock(v.lockRequest(t, intruder, assetX, src, 5, recipient, 1))
	if !errors.Is(err, ErrInvalidOwner) {
		t.Errorf("err = %v, want ErrInvalidOwner", err)
	}
	v.assertUnchanged(t, map[types.Address]uint64{src: 10, vault: 0})
}

func TestLock_SourceOfOtherAsset(t *testing.T) {
	v := setup(t)
	v.initialize(t, assetX)
	key, src := v.depositor(t, assetY, 10)

	_, err := v.escrow.Lock(v.lockRequest(t, key, assetX, src, 5, recipient, 1))
	if !errors.Is(err, ErrInvalidMint) {
		t.Errorf("err = %v, want ErrInvalidMint", err)
	}
	v.assertUnchanged(t, map[types.Address]uint64{src: 10})
}

func TestLock_VaultOfOtherAsset(t *testing.T) {
	v := setup(t)
	v.initialize(t, assetX)
	v.initialize(t, assetY)
	key, src := v.depositor(t, assetX, 10)

	req := &LockRequest{
		Asset:     assetX,
		Amount:    5,
		Recipient: recipient,
		Source:    src,
		Vault:     v.escrow.VaultAccount(assetY),
		Nonce:     1,
	}
	req.Initiator, _ = ledger.Sign(key, v.escrow.LockDigest(req))

	_, err := v.escrow.Lock(req)
	if !errors.Is(err, ErrInvalidMint) {
		t.Errorf("err = %v, want ErrInvalidMint", err)
	}
	v.assertUnchanged(t, map[types.Address]uint64{src: 10, req.Vault: 0})
}

func TestLock_VaultBoundToOtherAuthority(t *testing.T) {
	v := setup(t)
	v.initialize(t, assetX)
	v.initialize(t, assetY)
	key, src := v.depositor(t, assetX, 10)

	// An account of asset X held by asset Y's vault authority.
	foreign, err := v.ledger.Open(v.escrow.VaultAuthority(assetY), assetX, v.payer.Identity())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	req := &LockRequest{
		Asset:     assetX,
		Amount:    5,
		Recipient: recipient,
		Source:    src,
		Vault:     foreign.Address,
		Nonce:     1,
	}
	req.Initiator, _ = ledger.Sign(key, v.escrow.LockDigest(req))

	_, err = v.escrow.Lock(req)
	if !errors.Is(err, ErrInvalidVault) {
		t.Errorf("err = %v, want ErrInvalidVault", err)
	}
	v.assertUnchanged(t, map[types.Address]uint64{src: 10, foreign.Address: 0})
}

func TestLock_VaultNotAnAccount(t *testing.T) {
	v := setup(t)
	v.initialize(t, assetX)
	key, src := v.depositor(t, assetX, 10)

	req := &LockRequest{
		Asset:     assetX,
		Amount:    5,
		Recipient: recipient,
		Source:    src,
		Vault:     v.escrow.EntryAddress(assetX),
		Nonce:     1,
	}
	req.Initiator, _ = ledger.Sign(key, v.escrow.LockDigest(req))

	if _, err := v.escrow.Lock(req); !errors.Is(err, ErrInvalidVault) {
		t.Errorf("err = %v, want ErrInvalidVault", err)
	}
}

func TestLock_Unauthorized(t *testing.T) {
	v := setup(t)
	v.initialize(t, assetX)
	key, src := v.depositor(t, assetX, 10)

	req := v.lockRequest(t, key, assetX, src, 5, recipient, 1)
	req.Amount = 9 // signed for 5

	if _, err := v.escrow.Lock(req); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
	v.assertUnchanged(t, map[types.Address]uint64{src: 10})
}

func TestLock_Replayed(t *testing.T) {
	v := setup(t)
	v.initialize(t, assetX)
	key, src := v.depositor(t, assetX, 10)
	req := v.lockRequest(t, key, assetX, src, 4, recipient, 7)

	if _, err := v.escrow.Lock(req); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := v.escrow.Lock(req); !errors.Is(err, ErrReplayed) {
		t.Errorf("replay err = %v, want ErrReplayed", err)
	}
	v.assertUnchanged(t, map[types.Address]uint64{src: 6, v.escrow.VaultAccount(assetX): 4})
	if v.rec.count() != 1 {
		t.Errorf("notifier saw %d events, want 1", v.rec.count())
	}
}

func TestLock_InsufficientFunds(t *testing.T) {
	v := setup(t)
	v.initialize(t, assetX)
	key, src := v.depositor(t, assetX, 3)

	_, err := v.escrow.Lock(v.lockRequest(t, key, assetX, src, 4, recipient, 1))
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Errorf("err = %v, want ledger.ErrInsufficientFunds", err)
	}
	if last, _ := v.escrow.Events().Last(); last != 0 {
		t.Error("event recorded for failed transfer")
	}

	// Nothing was consumed; the full balance still locks.
	if _, err := v.escrow.Lock(v.lockRequest(t, key, assetX, src, 3, recipient, 1)); err != nil {
		t.Errorf("Lock after failed transfer: %v", err)
	}
}

func TestLock_NotifierFailureKeepsLock(t *testing.T) {
	v := setup(t)
	v.rec.err = errors.New("relay down")
	v.initialize(t, assetX)
	key, src := v.depositor(t, assetX, 10)

	if _, err := v.escrow.Lock(v.lockRequest(t, key, assetX, src, 10, recipient, 1)); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if bal := v.balance(t, v.escrow.VaultAccount(assetX)); bal != 10 {
		t.Errorf("vault balance = %d, want 10", bal)
	}
}

func TestLock_Concurrent(t *testing.T) {
	v := setup(t)
	v.initialize(t, assetX)

	const workers = 8
	const perWorker = 10
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		key, src := v.depositor(t, assetX, perWorker)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := uint64(1); i <= perWorker; i++ {
				req := &LockRequest{Asset: assetX, Amount: 1, Recipient: recipient, Source: src, Nonce: i}
				req.Initiator, _ = ledger.Sign(key, v.escrow.LockDigest(req))
				if _, err := v.escrow.Lock(req); err != nil {
					t.Errorf("Lock: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if bal := v.balance(t, v.escrow.VaultAccount(assetX)); bal != workers*perWorker {
		t.Errorf("vault balance = %d, want %d", bal, workers*perWorker)
	}
	if last, _ := v.escrow.Events().Last(); last != workers*perWorker {
		t.Errorf("last seq = %d, want %d", last, workers*perWorker)
	}
}

func TestEvents_SurviveRestart(t *testing.T) {
	dir := t.TempDir()

	db, err := storage.NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	v := newEnv(t, db)
	if err := v.ledger.CreateAsset(assetX, v.minter.Identity(), 6); err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	v.ledger.FundNative(v.payer.Identity(), 10_000)
	v.initialize(t, assetX)
	key, src := v.depositor(t, assetX, 10)
	want, err := v.escrow.Lock(v.lockRequest(t, key, assetX, src, 10, recipient, 1))
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	db.Close()

	db, err = storage.NewBadger(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	v = newEnv(t, db)

	got, err := v.escrow.Events().Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != want.ID || got.Sender != want.Sender || got.Amount != 10 || got.Recipient != recipient {
		t.Errorf("event after restart = %+v, want %+v", got, want)
	}
	if bal := v.balance(t, v.escrow.VaultAccount(assetX)); bal != 10 {
		t.Errorf("vault balance after restart = %d, want 10", bal)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrAlreadyInitialized, "AlreadyInitialized"},
		{ErrInvalidVault, "InvalidVault"},
		{errors.Join(errors.New("ctx"), ErrInvalidRecipient), "InvalidRecipient"},
		{ledger.ErrInsufficientFunds, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
