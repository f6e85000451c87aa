package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Klingon-tech/klingnet-lock/pkg/crypto"
	"github.com/Klingon-tech/klingnet-lock/pkg/types"
)

// Genesis is the initial ledger state: the assets that exist and the
// native funds addresses start with. It is applied once, when the state is
// empty; later starts only check that the same genesis is configured.
type Genesis struct {
	// Ledger identity
	Name string `json:"name"`

	// Assets created at genesis.
	Assets []GenesisAsset `json:"assets"`

	// Initial native funds (address -> amount), used to pay storage rent.
	Funds map[string]uint64 `json:"funds,omitempty"`
}

// GenesisAsset declares one asset.
type GenesisAsset struct {
	ID            string `json:"id"`             // 32-byte hex
	MintAuthority string `json:"mint_authority"` // 32-byte hex identity
	Decimals      uint8  `json:"decimals"`
}

// MaxDecimals bounds GenesisAsset.Decimals.
const MaxDecimals = 18

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("name is required")
	}

	seen := make(map[types.AssetID]struct{}, len(g.Assets))
	for i, a := range g.Assets {
		id, err := types.HexToAssetID(a.ID)
		if err != nil {
			return fmt.Errorf("assets[%d]: %w", i, err)
		}
		if id.IsZero() {
			return fmt.Errorf("assets[%d]: id must not be zero", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("assets[%d]: duplicate id %s", i, id)
		}
		seen[id] = struct{}{}
		if _, err := types.ParseAddress(a.MintAuthority); err != nil {
			return fmt.Errorf("assets[%d] mint_authority: %w", i, err)
		}
		if a.Decimals > MaxDecimals {
			return fmt.Errorf("assets[%d]: decimals %d exceeds %d", i, a.Decimals, MaxDecimals)
		}
	}

	for addrStr := range g.Funds {
		if _, err := types.ParseAddress(addrStr); err != nil {
			return fmt.Errorf("invalid funds address %q: %w", addrStr, err)
		}
	}
	return nil
}

// Hash returns a BLAKE3 hash of the genesis configuration.
// Used to detect a different genesis being configured for existing state.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
