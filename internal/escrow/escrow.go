// Package escrow implements the cross-chain token lock: one registry entry
// and one vault account per asset, created by Initialize, and Lock, which
// moves tokens from a depositor into the vault and records a TokensLocked
// event for the relayer.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingnet-lock/internal/alloc"
	"github.com/Klingon-tech/klingnet-lock/internal/derive"
	klog "github.com/Klingon-tech/klingnet-lock/internal/log"
	"github.com/Klingon-tech/klingnet-lock/internal/ledger"
	"github.com/Klingon-tech/klingnet-lock/internal/storage"
	"github.com/Klingon-tech/klingnet-lock/pkg/crypto"
	"github.com/Klingon-tech/klingnet-lock/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultNotifyTimeout bounds each notifier call.
const DefaultNotifyTimeout = 5 * time.Second

// Config holds escrow parameters.
type Config struct {
	ProgramID     types.Address
	NotifyTimeout time.Duration
}

// Escrow is the lock program.
type Escrow struct {
	program       *derive.Program
	state         *storage.Serial
	ledger        *ledger.Ledger
	alloc         *alloc.Allocator
	events        *EventStore
	notifiers     []Notifier
	notifyTimeout time.Duration
	now           func() time.Time
	logger        zerolog.Logger
}

// New creates the escrow program. Entries are allocated through a on
// state, the same state the ledger runs on.
func New(cfg Config, state *storage.Serial, l *ledger.Ledger, a *alloc.Allocator, notifiers ...Notifier) *Escrow {
	timeout := cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	return &Escrow{
		program:       derive.NewProgram(cfg.ProgramID),
		state:         state,
		ledger:        l,
		alloc:         a,
		events:        NewEventStore(state),
		notifiers:     notifiers,
		notifyTimeout: timeout,
		now:           time.Now,
		logger:        klog.WithComponent("escrow"),
	}
}

// ProgramID returns the escrow program ID.
func (e *Escrow) ProgramID() types.Address {
	return e.program.ID()
}

// Events returns the event log.
func (e *Escrow) Events() *EventStore {
	return e.events
}

// EntryAddress returns derive("lock", asset).
func (e *Escrow) EntryAddress(asset types.AssetID) types.Address {
	return e.program.Derive(TagLock, asset[:])
}

// VaultAuthority returns derive("vault", entry address) for asset.
func (e *Escrow) VaultAuthority(asset types.AssetID) types.Address {
	return e.vaultAuthority(e.EntryAddress(asset)).Identity()
}

// VaultAccount returns the ledger account the vault authority of asset
// holds its tokens in.
func (e *Escrow) VaultAccount(asset types.AssetID) types.Address {
	return e.ledger.AccountAddress(e.VaultAuthority(asset), asset)
}

// VaultAccountFor computes the vault account of asset for an escrow program
// keeping its vaults in the ledger program ledgerID. It needs no state, so
// clients can compute the address they sign for.
func VaultAccountFor(program, ledgerID types.Address, asset types.AssetID) types.Address {
	entry := derive.Address(program, TagLock, asset[:])
	authority := derive.Address(program, TagVault, entry[:])
	return ledger.AccountAddressFor(ledgerID, authority, asset)
}

func (e *Escrow) vaultAuthority(entry types.Address) derive.Authority {
	return e.program.Authority(TagVault, entry[:])
}

// Entry returns the registry entry of asset.
func (e *Escrow) Entry(asset types.AssetID) (*Entry, error) {
	var entry *Entry
	err := e.state.View(func(r storage.Reader) error {
		var err error
		entry, err = e.loadEntry(r, asset)
		return err
	})
	return entry, err
}

// InitDigest is the digest a payer signs to initialize the escrow of asset.
func (e *Escrow) InitDigest(asset types.AssetID, payer types.Address) types.Hash {
	return InitDigestFor(e.program.ID(), asset, payer)
}

// InitDigestFor is InitDigest for the escrow program with the given ID.
func InitDigestFor(program types.Address, asset types.AssetID, payer types.Address) types.Hash {
	return crypto.NewDigest("klingnet-lock/escrow/initialize").
		WriteBytes(program[:]).
		WriteBytes(asset[:]).
		WriteBytes(payer[:]).
		Sum()
}

// Initialize creates the registry entry and vault account of asset, paid
// for by payer, which must sign InitDigest. Both are created or neither.
func (e *Escrow) Initialize(asset types.AssetID, payer ledger.Signed) (*Entry, error) {
	logger := klog.WithAsset(e.logger, asset.String())
	defer klog.Timed(logger, "initialize")()

	payerID := payer.Identity()
	if err := payer.Authorize(e.InitDigest(asset, payerID)); err != nil {
		return nil, fmt.Errorf("initialize %s: %w: %w", asset, ErrUnauthorized, err)
	}

	entry := &Entry{Address: e.EntryAddress(asset), Asset: asset}
	vault := e.vaultAuthority(entry.Address)

	err := e.state.Update(func(tx *storage.Tx) error {
		if _, err := e.ledger.Asset(tx, asset); err != nil {
			if errors.Is(err, ledger.ErrUnknownAsset) {
				return fmt.Errorf("initialize %s: %w", asset, ErrUnknownAsset)
			}
			return err
		}

		_, err := e.alloc.Allocate(tx, entry.Address, e.program.ID(), entry.encode(), payerID)
		switch {
		case errors.Is(err, alloc.ErrAddressInUse):
			return fmt.Errorf("initialize %s: %w", asset, ErrAlreadyInitialized)
		case errors.Is(err, alloc.ErrInsufficientFunds):
			return fmt.Errorf("initialize %s entry: %w: %w", asset, ErrAllocationFailed, err)
		case err != nil:
			return err
		}

		return e.openVault(tx, asset, vault.Identity(), payerID)
	})
	if err != nil {
		logger.Debug().Err(err).Msg("initialize rejected")
		return nil, err
	}

	logger.Info().
		Str("entry", entry.Address.String()).
		Str("vault_authority", vault.Identity().String()).
		Str("payer", payerID.String()).
		Msg("escrow initialized")
	return entry, nil
}

// openVault opens the vault account, adopting one already opened for the
// same owner and asset.
func (e *Escrow) openVault(tx *storage.Tx, asset types.AssetID, owner, payer types.Address) error {
	_, err := e.ledger.OpenAccount(tx, owner, asset, payer)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, alloc.ErrInsufficientFunds):
		return fmt.Errorf("initialize %s vault: %w: %w", asset, ErrAllocationFailed, err)
	case !errors.Is(err, ledger.ErrAccountExists):
		return err
	}

	existing, err := e.ledger.Account(tx, e.ledger.AccountAddress(owner, asset))
	if err != nil {
		return fmt.Errorf("initialize %s: %w: %w", asset, ErrInvalidVault, err)
	}
	if existing.Asset != asset || existing.Owner != owner {
		return fmt.Errorf("initialize %s: vault address taken: %w", asset, ErrInvalidVault)
	}
	return nil
}

// LockRequest is a deposit into the escrow of Asset.
type LockRequest struct {
	Asset     types.AssetID
	Amount    uint64
	Recipient string
	// Source is the initiator's ledger account the tokens leave.
	Source types.Address
	// Vault is the ledger account receiving the tokens. Zero means the
	// asset's vault account.
	Vault types.Address
	// Nonce makes otherwise identical requests distinct.
	Nonce     uint64
	Initiator ledger.Signed
}

// LockDigest is the digest the initiator signs for req. The vault field is
// resolved before hashing.
func (e *Escrow) LockDigest(req *LockRequest) types.Hash {
	vault := req.Vault
	if vault.IsZero() {
		vault = e.VaultAccount(req.Asset)
	}
	return LockDigestFor(e.program.ID(), vault, req)
}

// LockDigestFor is the lock digest under the escrow program with the given
// ID. vault is the resolved vault account; req.Vault is ignored.
func LockDigestFor(program, vault types.Address, req *LockRequest) types.Hash {
	return crypto.NewDigest("klingnet-lock/escrow/lock").
		WriteBytes(program[:]).
		WriteBytes(req.Asset[:]).
		WriteBytes(req.Source[:]).
		WriteBytes(vault[:]).
		WriteUint64(req.Amount).
		WriteString(req.Recipient).
		WriteUint64(req.Nonce).
		Sum()
}

// Lock validates req, moves req.Amount from the source account into the
// vault and records the TokensLocked event. Checks run in a fixed order and
// the first failure aborts with no state change.
func (e *Escrow) Lock(req *LockRequest) (*Event, error) {
	logger := klog.WithAsset(e.logger, req.Asset.String())
	defer klog.Timed(logger, "lock")()

	if !ValidRecipient(req.Recipient) {
		return nil, fmt.Errorf("lock recipient %q: %w", req.Recipient, ErrInvalidRecipient)
	}
	if req.Amount == 0 {
		return nil, ErrInvalidAmount
	}

	vaultAddr := req.Vault
	if vaultAddr.IsZero() {
		vaultAddr = e.VaultAccount(req.Asset)
	}
	digest := e.LockDigest(req)
	initiator := req.Initiator.Identity()

	ev := &Event{
		ID:        uuid.New(),
		Asset:     req.Asset,
		Vault:     vaultAddr,
		Sender:    initiator,
		Amount:    req.Amount,
		Recipient: req.Recipient,
		Timestamp: e.now().Unix(),
	}

	err := e.state.Update(func(tx *storage.Tx) error {
		entry, err := e.loadEntry(tx, req.Asset)
		if err != nil {
			return err
		}
		src, err := e.ledger.Account(tx, req.Source)
		if err != nil {
			return fmt.Errorf("lock source: %w", err)
		}
		if src.Asset != entry.Asset {
			return fmt.Errorf("lock source %s holds %s: %w", src.Address, src.Asset, ErrInvalidMint)
		}
		if src.Owner != initiator {
			return fmt.Errorf("lock source %s: %w", src.Address, ErrInvalidOwner)
		}
		vault, err := e.ledger.Account(tx, vaultAddr)
		if err != nil {
			return fmt.Errorf("lock vault: %w: %w", ErrInvalidVault, err)
		}
		if vault.Asset != entry.Asset {
			return fmt.Errorf("lock vault %s holds %s: %w", vault.Address, vault.Asset, ErrInvalidMint)
		}
		if vault.Owner != e.vaultAuthority(entry.Address).Identity() {
			return fmt.Errorf("lock vault %s: %w", vault.Address, ErrInvalidVault)
		}
		if err := req.Initiator.Authorize(digest); err != nil {
			return fmt.Errorf("lock: %w: %w", ErrUnauthorized, err)
		}
		used, err := tx.Has(replayKey(digest))
		if err != nil {
			return err
		}
		if used {
			return ErrReplayed
		}

		if err := e.ledger.Transfer(tx, src.Address, vault.Address, req.Amount, req.Initiator, digest); err != nil {
			return fmt.Errorf("lock transfer: %w", err)
		}
		if err := tx.Put(replayKey(digest), []byte{1}); err != nil {
			return err
		}
		return e.events.append(tx, ev)
	})
	if err != nil {
		logger.Debug().Err(err).Msg("lock rejected")
		return nil, err
	}

	logger.Info().
		Uint64("seq", ev.Seq).
		Str("sender", ev.Sender.String()).
		Uint64("amount", ev.Amount).
		Str("recipient", ev.Recipient).
		Msg("tokens locked")

	e.notify(ev)
	return ev, nil
}

func (e *Escrow) notify(ev *Event) {
	for _, n := range e.notifiers {
		ctx, cancel := context.WithTimeout(context.Background(), e.notifyTimeout)
		if err := n.Notify(ctx, ev); err != nil {
			e.logger.Warn().Err(err).Uint64("seq", ev.Seq).Msg("event notification failed")
		}
		cancel()
	}
}

var prefixReplay = []byte("r/") // r/<lock digest(32)> -> 1

func replayKey(d types.Hash) []byte {
	key := make([]byte, len(prefixReplay)+types.HashSize)
	copy(key, prefixReplay)
	copy(key[len(prefixReplay):], d[:])
	return key
}
