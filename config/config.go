// Package config handles application configuration.
//
// Configuration is layered: built-in defaults for the network, then a
// key = value .conf file or a YAML file, then LOCK_* environment variables.
// The ledger genesis (assets and initial funds) is a separate JSON file.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Storage engines.
const (
	EngineBadger = "badger"
	EngineMemory = "memory"
)

// =============================================================================
// Node Configuration
// =============================================================================

// Config holds node runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`
	Genesis string      `conf:"genesis"` // Ledger genesis file; empty = none.

	Storage StorageConfig
	Escrow  EscrowConfig
	Ledger  LedgerConfig
	Relay   RelayConfig
	RPC     RPCConfig
	Log     LogConfig
}

// StorageConfig selects the state database.
type StorageConfig struct {
	Engine string `conf:"storage.engine"` // badger or memory
}

// EscrowConfig holds lock program settings.
type EscrowConfig struct {
	ProgramID   string `conf:"escrow.program_id"`     // 32-byte hex
	RentPerByte uint64 `conf:"escrow.rent_per_byte"` // Native units per stored byte.
}

// LedgerConfig holds token ledger settings.
type LedgerConfig struct {
	ProgramID string `conf:"ledger.program_id"` // 32-byte hex
}

// RelayConfig holds event relay settings.
type RelayConfig struct {
	Timeout time.Duration `conf:"relay.timeout"`
	Redis   RedisConfig
}

// RedisConfig holds the Redis event publisher settings.
type RedisConfig struct {
	Enabled bool   `conf:"relay.redis.enabled"`
	Addr    string `conf:"relay.redis.addr"` // host:port
	List    string `conf:"relay.redis.list"`
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingnet-lock
//	macOS:   ~/Library/Application Support/KlingnetLock
//	Windows: %APPDATA%\KlingnetLock
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet-lock"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "KlingnetLock")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "KlingnetLock")
		}
		return filepath.Join(home, "AppData", "Roaming", "KlingnetLock")
	default:
		return filepath.Join(home, ".klingnet-lock")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// StateDir returns the state database directory.
func (c *Config) StateDir() string {
	return filepath.Join(c.NetworkDataDir(), "state")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingnet-lock.conf")
}
