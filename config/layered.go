package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LOCK"

// LoadYAML loads node configuration from a YAML file. Nested mappings are
// flattened into the dotted keys of the .conf format and lists are joined
// with commas, so
//
//	relay:
//	  redis:
//	    addr: 10.0.0.5:6379
//
// yields relay.redis.addr = 10.0.0.5:6379. A missing file yields no values.
func LoadYAML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}

	var doc map[interface{}]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	values := make(map[string]string)
	if err := flatten("", doc, values); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return values, nil
}

func flatten(prefix string, node map[interface{}]interface{}, out map[string]string) error {
	for k, v := range node {
		key := fmt.Sprint(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		switch val := v.(type) {
		case map[interface{}]interface{}:
			if err := flatten(key, val, out); err != nil {
				return err
			}
		case []interface{}:
			items := make([]string, 0, len(val))
			for _, item := range val {
				if _, nested := item.(map[interface{}]interface{}); nested {
					return fmt.Errorf("key %q: lists of mappings are not supported", key)
				}
				items = append(items, fmt.Sprint(item))
			}
			out[key] = strings.Join(items, ",")
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(val)
		}
	}
	return nil
}

// envOverrides names every variable ApplyEnv reads. Keys come from the
// field names split on word boundaries, e.g. RelayRedisAddr is read from
// LOCK_RELAY_REDIS_ADDR.
type envOverrides struct {
	Network           *string `split_words:"true"`
	Datadir           *string `split_words:"true"`
	Genesis           *string `split_words:"true"`
	StorageEngine     *string `split_words:"true"`
	EscrowProgramID   *string `split_words:"true"`
	EscrowRentPerByte *string `split_words:"true"`
	LedgerProgramID   *string `split_words:"true"`
	RelayTimeout      *string `split_words:"true"`
	RelayRedisEnabled *string `split_words:"true"`
	RelayRedisAddr    *string `split_words:"true"`
	RelayRedisList    *string `split_words:"true"`
	RPCEnabled        *string `split_words:"true"`
	RPCAddr           *string `split_words:"true"`
	RPCPort           *string `split_words:"true"`
	RPCAllowed        *string `split_words:"true"`
	RPCCors           *string `split_words:"true"`
	LogLevel          *string `split_words:"true"`
	LogFile           *string `split_words:"true"`
	LogJSON           *string `split_words:"true"`
}

// ApplyEnv overrides cfg with LOCK_* environment variables. Values use the
// .conf syntax; unset variables leave the current value in place.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	values := make(map[string]string)
	for key, v := range map[string]*string{
		"network":              env.Network,
		"datadir":              env.Datadir,
		"genesis":              env.Genesis,
		"storage.engine":       env.StorageEngine,
		"escrow.program_id":    env.EscrowProgramID,
		"escrow.rent_per_byte": env.EscrowRentPerByte,
		"ledger.program_id":    env.LedgerProgramID,
		"relay.timeout":        env.RelayTimeout,
		"relay.redis.enabled":  env.RelayRedisEnabled,
		"relay.redis.addr":     env.RelayRedisAddr,
		"relay.redis.list":     env.RelayRedisList,
		"rpc.enabled":          env.RPCEnabled,
		"rpc.addr":             env.RPCAddr,
		"rpc.port":             env.RPCPort,
		"rpc.allowed":          env.RPCAllowed,
		"rpc.cors":             env.RPCCors,
		"log.level":            env.LogLevel,
		"log.file":             env.LogFile,
		"log.json":             env.LogJSON,
	} {
		if v != nil {
			values[key] = *v
		}
	}
	if err := ApplyFileConfig(cfg, values); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// Load builds the node configuration: defaults for network, then the file
// at path (.yml/.yaml as YAML, anything else as key = value; empty path
// skips it), then the environment. The result is validated.
func Load(network NetworkType, path string) (*Config, error) {
	cfg := Default(network)

	if path != "" {
		var (
			values map[string]string
			err    error
		)
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yml", ".yaml":
			values, err = LoadYAML(path)
		default:
			values, err = LoadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		if err := ApplyFileConfig(cfg, values); err != nil {
			return nil, err
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
