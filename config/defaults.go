package config

import (
	"time"

	"github.com/Klingon-tech/klingnet-lock/pkg/crypto"
)

// Default program IDs. Deployments normally keep them; a private network
// may pick its own.
var (
	DefaultEscrowProgramID = crypto.Hash([]byte("klingnet-lock/program/escrow")).String()
	DefaultLedgerProgramID = crypto.Hash([]byte("klingnet-lock/program/ledger")).String()
)

// DefaultMainnet returns the default node configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Storage: StorageConfig{
			Engine: EngineBadger,
		},
		Escrow: EscrowConfig{
			ProgramID:   DefaultEscrowProgramID,
			RentPerByte: 10,
		},
		Ledger: LedgerConfig{
			ProgramID: DefaultLedgerProgramID,
		},
		Relay: RelayConfig{
			Timeout: 5 * time.Second,
			Redis: RedisConfig{
				Enabled: false,
				Addr:    "127.0.0.1:6379",
				List:    "klingnet-lock:events",
			},
		},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       8750,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default node configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.RPC.Port = 8850
	cfg.Relay.Redis.List = "klingnet-lock:testnet:events"
	return cfg
}

// Default returns the default node configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
