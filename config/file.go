package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads node configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a node config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value
	case "genesis":
		cfg.Genesis = value

	// Storage
	case "storage.engine":
		cfg.Storage.Engine = strings.ToLower(value)

	// Programs
	case "escrow.program_id":
		cfg.Escrow.ProgramID = value
	case "escrow.rent_per_byte":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Escrow.RentPerByte = n
	case "ledger.program_id":
		cfg.Ledger.ProgramID = value

	// Relay
	case "relay.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Relay.Timeout = d
	case "relay.redis.enabled", "relay.redis":
		cfg.Relay.Redis.Enabled = parseBool(value)
	case "relay.redis.addr":
		cfg.Relay.Redis.Addr = value
	case "relay.redis.list":
		cfg.Relay.Redis.List = value

	// RPC
	case "rpc.enabled", "rpc":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.RPC.Port = port
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default node configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	def := Default(network)
	content := `# Klingnet Lock Node Configuration
#
# Every key can also be set in a YAML file (nested keys) or through a
# LOCK_* environment variable, e.g. LOCK_RPC_PORT or LOCK_RELAY_REDIS_ADDR.

# Network: mainnet or testnet
network = ` + string(network) + `

# Data directory (default: ~/.klingnet-lock)
# datadir = ~/.klingnet-lock

# Ledger genesis file (assets and initial native funds, JSON)
# genesis = genesis.json

# ============================================================================
# Storage
# ============================================================================

# badger (persistent) or memory (tests, throwaway nodes)
storage.engine = badger

# ============================================================================
# Programs
# ============================================================================

escrow.program_id = ` + def.Escrow.ProgramID + `
ledger.program_id = ` + def.Ledger.ProgramID + `

# Native units charged per stored byte when an escrow is initialized
escrow.rent_per_byte = ` + strconv.FormatUint(def.Escrow.RentPerByte, 10) + `

# ============================================================================
# Relay
# ============================================================================

relay.timeout = ` + def.Relay.Timeout.String() + `

# Push every lock event to a Redis list for the destination-chain relayer
relay.redis.enabled = false
relay.redis.addr = ` + def.Relay.Redis.Addr + `
relay.redis.list = ` + def.Relay.Redis.List + `

# ============================================================================
# RPC Server
# ============================================================================

rpc.enabled = true
rpc.addr = 127.0.0.1
rpc.port = ` + strconv.Itoa(def.RPC.Port) + `
rpc.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# rpc.cors = http://localhost:3000

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
