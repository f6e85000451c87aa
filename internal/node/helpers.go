package node

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/klingnet-lock/config"
	"github.com/Klingon-tech/klingnet-lock/internal/alloc"
	"github.com/Klingon-tech/klingnet-lock/internal/ledger"
	"github.com/Klingon-tech/klingnet-lock/internal/storage"
	"github.com/Klingon-tech/klingnet-lock/pkg/types"
)

// genesisKey holds the hash of the genesis applied to the state.
var genesisKey = []byte("g/genesis")

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// applyGenesis creates the genesis assets and funds in one transaction and
// records the genesis hash. On state that already carries a genesis it
// only checks the hash matches. It reports whether anything was written.
func applyGenesis(state *storage.Serial, l *ledger.Ledger, g *config.Genesis) (bool, error) {
	hash, err := g.Hash()
	if err != nil {
		return false, fmt.Errorf("hash genesis: %w", err)
	}

	applied := false
	err = state.Update(func(tx *storage.Tx) error {
		stored, err := tx.Get(genesisKey)
		if err == nil {
			if !bytes.Equal(stored, hash[:]) {
				return fmt.Errorf("state was created from genesis %x, config has %s", stored, hash)
			}
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		for _, a := range g.Assets {
			id, err := types.HexToAssetID(a.ID)
			if err != nil {
				return err
			}
			mint, err := types.ParseAddress(a.MintAuthority)
			if err != nil {
				return err
			}
			if err := l.InitAsset(tx, id, mint, a.Decimals); err != nil {
				return err
			}
		}
		for addrStr, amount := range g.Funds {
			addr, err := types.ParseAddress(addrStr)
			if err != nil {
				return err
			}
			if err := alloc.Deposit(tx, addr, amount); err != nil {
				return err
			}
		}
		applied = true
		return tx.Put(genesisKey, hash[:])
	})
	return applied, err
}
