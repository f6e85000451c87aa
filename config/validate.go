package config

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-lock/pkg/types"
)

// MaxRentPerByte bounds escrow.rent_per_byte.
const MaxRentPerByte = 1 << 32

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}

	switch cfg.Storage.Engine {
	case EngineBadger, EngineMemory:
	case "":
		cfg.Storage.Engine = EngineBadger
	default:
		return fmt.Errorf("storage.engine must be %q or %q", EngineBadger, EngineMemory)
	}

	escrowID, err := parseProgramID(cfg.Escrow.ProgramID, "escrow.program_id")
	if err != nil {
		return err
	}
	ledgerID, err := parseProgramID(cfg.Ledger.ProgramID, "ledger.program_id")
	if err != nil {
		return err
	}
	if escrowID == ledgerID {
		return fmt.Errorf("escrow.program_id and ledger.program_id must differ")
	}

	if cfg.Escrow.RentPerByte > MaxRentPerByte {
		return fmt.Errorf("escrow.rent_per_byte must be at most %d", uint64(MaxRentPerByte))
	}

	if cfg.Relay.Timeout <= 0 {
		return fmt.Errorf("relay.timeout must be positive")
	}
	if cfg.Relay.Redis.Enabled {
		if cfg.Relay.Redis.Addr == "" {
			return fmt.Errorf("relay.redis.addr is required when relay.redis.enabled")
		}
		if cfg.Relay.Redis.List == "" {
			return fmt.Errorf("relay.redis.list is required when relay.redis.enabled")
		}
	}
	return nil
}

// EscrowProgramID returns the parsed escrow program ID.
func (c *Config) EscrowProgramID() (types.Address, error) {
	return parseProgramID(c.Escrow.ProgramID, "escrow.program_id")
}

// LedgerProgramID returns the parsed ledger program ID.
func (c *Config) LedgerProgramID() (types.Address, error) {
	return parseProgramID(c.Ledger.ProgramID, "ledger.program_id")
}

func parseProgramID(s, field string) (types.Address, error) {
	id, err := types.ParseAddress(s)
	if err != nil {
		return types.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	if id.IsZero() {
		return types.Address{}, fmt.Errorf("%s must not be zero", field)
	}
	return id, nil
}
