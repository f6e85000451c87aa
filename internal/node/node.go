// Package node assembles a lock node: state database, storage allocator,
// token ledger, lock program, event relay and JSON-RPC server. It can be
// embedded in any binary.
package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Klingon-tech/klingnet-lock/config"
	"github.com/Klingon-tech/klingnet-lock/internal/alloc"
	"github.com/Klingon-tech/klingnet-lock/internal/escrow"
	"github.com/Klingon-tech/klingnet-lock/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-lock/internal/log"
	"github.com/Klingon-tech/klingnet-lock/internal/relay"
	"github.com/Klingon-tech/klingnet-lock/internal/rpc"
	"github.com/Klingon-tech/klingnet-lock/internal/storage"
	"github.com/rs/zerolog"
)

// Node is a fully-initialized lock node.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	// Core
	db     storage.DB
	state  *storage.Serial
	alloc  *alloc.Allocator
	ledger *ledger.Ledger
	escrow *escrow.Escrow

	// Relay
	redis *relay.RedisPublisher

	// RPC
	rpcServer *rpc.Server
}

// New creates and initializes a new Node. It performs all setup steps
// (logger, storage, genesis, ledger, escrow, relay, RPC) but does NOT
// start serving. Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := expandHome(cfg.Log.File)
	if logFile == "" && cfg.Storage.Engine == config.EngineBadger {
		logsDir := expandHome(cfg.LogsDir())
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "klingnet-lock.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	escrowID, err := cfg.EscrowProgramID()
	if err != nil {
		return nil, err
	}
	ledgerID, err := cfg.LedgerProgramID()
	if err != nil {
		return nil, err
	}

	// ── 2. Genesis ──────────────────────────────────────────────────
	var genesis *config.Genesis
	if cfg.Genesis != "" {
		genesis, err = config.LoadGenesis(expandHome(cfg.Genesis))
		if err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("escrow_program", escrowID.String()).
		Str("ledger_program", ledgerID.String()).
		Str("storage", cfg.Storage.Engine).
		Msg("Starting Klingnet Lock Node")

	// ── 3. Open storage ─────────────────────────────────────────────
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	state := storage.NewSerial(storage.NewPrefixDB(db, []byte(string(cfg.Network)+"/")))

	// ── 4. Ledger and genesis ───────────────────────────────────────
	a := alloc.New(cfg.Escrow.RentPerByte)
	l := ledger.New(ledgerID, state, a)

	if genesis != nil {
		applied, err := applyGenesis(state, l, genesis)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("apply genesis: %w", err)
		}
		if applied {
			logger.Info().
				Str("name", genesis.Name).
				Int("assets", len(genesis.Assets)).
				Int("funded", len(genesis.Funds)).
				Msg("Genesis applied")
		}
	}

	// ── 5. Relay ────────────────────────────────────────────────────
	notifiers := relay.Multi{relay.NewLogNotifier()}
	var redisPub *relay.RedisPublisher
	if cfg.Relay.Redis.Enabled {
		redisPub = relay.NewRedisPublisher(cfg.Relay.Redis.Addr, cfg.Relay.Redis.List, cfg.Relay.Timeout)
		notifiers = append(notifiers, redisPub)
		logger.Info().
			Str("addr", cfg.Relay.Redis.Addr).
			Str("list", cfg.Relay.Redis.List).
			Msg("Redis event relay enabled")
	}

	// ── 6. Escrow ───────────────────────────────────────────────────
	esc := escrow.New(escrow.Config{
		ProgramID:     escrowID,
		NotifyTimeout: cfg.Relay.Timeout,
	}, state, l, a, notifiers)

	// ── 7. RPC ──────────────────────────────────────────────────────
	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		rpcAddr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
		rpcServer = rpc.New(rpcAddr, esc, l, cfg.RPC)
	}

	return &Node{
		cfg:       cfg,
		genesis:   genesis,
		logger:    logger,
		db:        db,
		state:     state,
		alloc:     a,
		ledger:    l,
		escrow:    esc,
		redis:     redisPub,
		rpcServer: rpcServer,
	}, nil
}

func openDB(cfg *config.Config) (storage.DB, error) {
	if cfg.Storage.Engine == config.EngineMemory {
		return storage.NewMemory(), nil
	}
	dir := expandHome(cfg.StateDir())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	db, err := storage.NewBadger(dir)
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", dir, err)
	}
	return db, nil
}

// Start begins serving RPC, if enabled.
func (n *Node) Start() error {
	if n.rpcServer == nil {
		return nil
	}
	if err := n.rpcServer.Start(); err != nil {
		return err
	}
	n.logger.Info().Str("addr", n.rpcServer.Addr()).Msg("RPC server started")
	return nil
}

// Stop shuts the node down and releases its resources.
func (n *Node) Stop() error {
	var errs []error
	if n.rpcServer != nil {
		if err := n.rpcServer.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop rpc: %w", err))
		}
	}
	if n.redis != nil {
		if err := n.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	n.logger.Info().Msg("Goodbye!")
	return errors.Join(errs...)
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Escrow returns the lock program.
func (n *Node) Escrow() *escrow.Escrow { return n.escrow }

// Ledger returns the token ledger.
func (n *Node) Ledger() *ledger.Ledger { return n.ledger }

// State returns the serialized state store.
func (n *Node) State() *storage.Serial { return n.state }

// Genesis returns the configured genesis, or nil if none.
func (n *Node) Genesis() *config.Genesis { return n.genesis }
