// Package ledger is the fungible-token ledger the escrow calls into. It
// keeps assets and per-owner accounts and moves balances between accounts
// atomically under an authority check. It knows nothing about escrows.
package ledger

import (
	"errors"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingnet-lock/internal/alloc"
	"github.com/Klingon-tech/klingnet-lock/internal/derive"
	klog "github.com/Klingon-tech/klingnet-lock/internal/log"
	"github.com/Klingon-tech/klingnet-lock/internal/storage"
	"github.com/Klingon-tech/klingnet-lock/pkg/crypto"
	"github.com/Klingon-tech/klingnet-lock/pkg/types"
	"github.com/rs/zerolog"
)

// TagAccount is the derivation tag of associated account addresses.
const TagAccount = "account"

var (
	ErrUnknownAsset      = errors.New("unknown asset")
	ErrAssetExists       = errors.New("asset already exists")
	ErrNoAccount         = errors.New("no such ledger account")
	ErrAccountExists     = errors.New("ledger account already exists")
	ErrAssetMismatch     = errors.New("accounts hold different assets")
	ErrOwnerMismatch     = errors.New("authority does not own the source account")
	ErrBadSignature      = errors.New("invalid signature")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOverflow          = errors.New("balance overflow")
	ErrReplayed          = errors.New("signed request already applied")
)

// Ledger tracks fungible balances.
type Ledger struct {
	program *derive.Program
	state   *storage.Serial
	alloc   *alloc.Allocator
	logger  zerolog.Logger
}

// New creates a ledger with the given program ID over state. Accounts are
// allocated through a.
func New(programID types.Address, state *storage.Serial, a *alloc.Allocator) *Ledger {
	return &Ledger{
		program: derive.NewProgram(programID),
		state:   state,
		alloc:   a,
		logger:  klog.WithComponent("ledger"),
	}
}

// ProgramID returns the ledger's program ID; every account object is owned
// by it.
func (l *Ledger) ProgramID() types.Address {
	return l.program.ID()
}

// AccountAddress returns the associated account address of owner for asset.
func (l *Ledger) AccountAddress(owner types.Address, asset types.AssetID) types.Address {
	return AccountAddressFor(l.program.ID(), owner, asset)
}

// AccountAddressFor is AccountAddress under the ledger program with the
// given ID.
func AccountAddressFor(program, owner types.Address, asset types.AssetID) types.Address {
	return derive.Address(program, TagAccount, owner[:], asset[:])
}

// CreateAsset registers a new asset whose supply only mintAuthority can
// grow.
func (l *Ledger) CreateAsset(id types.AssetID, mintAuthority types.Address, decimals uint8) error {
	return l.state.Update(func(tx *storage.Tx) error {
		return l.InitAsset(tx, id, mintAuthority, decimals)
	})
}

// InitAsset stages the registration of a new asset on tx.
func (l *Ledger) InitAsset(tx *storage.Tx, id types.AssetID, mintAuthority types.Address, decimals uint8) error {
	has, err := tx.Has(assetKey(id))
	if err != nil {
		return err
	}
	if has {
		return fmt.Errorf("create asset %s: %w", id, ErrAssetExists)
	}
	return putAsset(tx, &Asset{ID: id, MintAuthority: mintAuthority, Decimals: decimals})
}

// Asset reads an asset inside a transaction or view.
func (l *Ledger) Asset(r storage.Reader, id types.AssetID) (*Asset, error) {
	return loadAsset(r, id)
}

// Account reads a ledger account inside a transaction or view.
func (l *Ledger) Account(r storage.Reader, addr types.Address) (*Account, error) {
	return l.loadAccount(r, addr)
}

// OpenAccount allocates the associated account of owner for asset, paid
// for by payer. It reports ErrAccountExists if the address is taken.
func (l *Ledger) OpenAccount(tx *storage.Tx, owner types.Address, asset types.AssetID, payer types.Address) (*Account, error) {
	if _, err := loadAsset(tx, asset); err != nil {
		return nil, err
	}
	acct := &Account{
		Address: l.AccountAddress(owner, asset),
		Asset:   asset,
		Owner:   owner,
	}
	_, err := l.alloc.Allocate(tx, acct.Address, l.program.ID(), acct.encode(), payer)
	if errors.Is(err, alloc.ErrAddressInUse) {
		return nil, fmt.Errorf("open account %s: %w", acct.Address, ErrAccountExists)
	}
	if err != nil {
		return nil, fmt.Errorf("open account %s: %w", acct.Address, err)
	}
	return acct, nil
}

// Transfer moves amount from one account to another, staged on tx. The
// authority must own the source account and prove it over digest, the
// digest of the instruction the transfer belongs to. Nothing is staged
// unless every check passes.
func (l *Ledger) Transfer(tx *storage.Tx, from, to types.Address, amount uint64, auth Authority, digest types.Hash) error {
	src, err := l.loadAccount(tx, from)
	if err != nil {
		return err
	}
	dst, err := l.loadAccount(tx, to)
	if err != nil {
		return err
	}
	if src.Asset != dst.Asset {
		return fmt.Errorf("transfer %s -> %s: %w", from, to, ErrAssetMismatch)
	}
	if src.Owner != auth.Identity() {
		return fmt.Errorf("transfer from %s: %w", from, ErrOwnerMismatch)
	}
	if err := auth.Authorize(digest); err != nil {
		return fmt.Errorf("transfer from %s: %w: %w", from, ErrUnauthorized, err)
	}
	if src.Balance < amount {
		return fmt.Errorf("transfer %d from %s holding %d: %w", amount, from, src.Balance, ErrInsufficientFunds)
	}
	if from == to {
		return nil
	}
	if dst.Balance > math.MaxUint64-amount {
		return fmt.Errorf("transfer %d to %s: %w", amount, to, ErrOverflow)
	}

	src.Balance -= amount
	dst.Balance += amount
	if err := storeAccount(tx, src); err != nil {
		return err
	}
	if err := storeAccount(tx, dst); err != nil {
		return err
	}
	l.logger.Debug().
		Str("from", from.String()).
		Str("to", to.String()).
		Uint64("amount", amount).
		Msg("transfer staged")
	return nil
}

// Open allocates the associated account of owner for asset in its own
// transaction.
func (l *Ledger) Open(owner types.Address, asset types.AssetID, payer types.Address) (*Account, error) {
	var acct *Account
	err := l.state.Update(func(tx *storage.Tx) error {
		var err error
		acct, err = l.OpenAccount(tx, owner, asset, payer)
		return err
	})
	return acct, err
}

// MintTo grows the supply of an account's asset. The authority must be the
// asset's mint authority, signing MintDigest for this (to, amount, nonce);
// each signed mint can be applied once.
func (l *Ledger) MintTo(to types.Address, amount, nonce uint64, auth Authority) error {
	digest := l.MintDigest(to, amount, nonce)
	return l.state.Update(func(tx *storage.Tx) error {
		dst, err := l.loadAccount(tx, to)
		if err != nil {
			return err
		}
		asset, err := loadAsset(tx, dst.Asset)
		if err != nil {
			return err
		}
		if asset.MintAuthority != auth.Identity() {
			return fmt.Errorf("mint %s: %w", asset.ID, ErrUnauthorized)
		}
		if err := auth.Authorize(digest); err != nil {
			return fmt.Errorf("mint %s: %w: %w", asset.ID, ErrUnauthorized, err)
		}
		used, err := tx.Has(usedKey(digest))
		if err != nil {
			return err
		}
		if used {
			return fmt.Errorf("mint %s: %w", asset.ID, ErrReplayed)
		}
		if asset.Supply > math.MaxUint64-amount || dst.Balance > math.MaxUint64-amount {
			return fmt.Errorf("mint %d of %s: %w", amount, asset.ID, ErrOverflow)
		}
		asset.Supply += amount
		dst.Balance += amount
		if err := putAsset(tx, asset); err != nil {
			return err
		}
		if err := tx.Put(usedKey(digest), []byte{1}); err != nil {
			return err
		}
		return storeAccount(tx, dst)
	})
}

// MintDigest is the digest a mint authority signs to mint amount into to.
func (l *Ledger) MintDigest(to types.Address, amount, nonce uint64) types.Hash {
	id := l.program.ID()
	return crypto.NewDigest("klingnet-lock/ledger/mint").
		WriteBytes(id[:]).
		WriteBytes(to[:]).
		WriteUint64(amount).
		WriteUint64(nonce).
		Sum()
}

var prefixUsed = []byte("u/") // u/<digest(32)> -> 1

func usedKey(d types.Hash) []byte {
	key := make([]byte, len(prefixUsed)+types.HashSize)
	copy(key, prefixUsed)
	copy(key[len(prefixUsed):], d[:])
	return key
}

// Balance returns the balance of a ledger account.
func (l *Ledger) Balance(addr types.Address) (uint64, error) {
	var bal uint64
	err := l.state.View(func(r storage.Reader) error {
		acct, err := l.loadAccount(r, addr)
		if err != nil {
			return err
		}
		bal = acct.Balance
		return nil
	})
	return bal, err
}

// Get returns a ledger account outside of any transaction.
func (l *Ledger) Get(addr types.Address) (*Account, error) {
	var acct *Account
	err := l.state.View(func(r storage.Reader) error {
		var err error
		acct, err = l.loadAccount(r, addr)
		return err
	})
	return acct, err
}

// FundNative credits native (rent-paying) funds to addr.
func (l *Ledger) FundNative(addr types.Address, amount uint64) error {
	return l.state.Update(func(tx *storage.Tx) error {
		return alloc.Deposit(tx, addr, amount)
	})
}

// NativeBalance returns the native funds of addr.
func (l *Ledger) NativeBalance(addr types.Address) (uint64, error) {
	var n uint64
	err := l.state.View(func(r storage.Reader) error {
		var err error
		n, err = alloc.Funds(r, addr)
		return err
	})
	return n, err
}

