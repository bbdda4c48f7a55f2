// Package node wires the vault, its token ledgers, storage and the RPC
// server into a runnable daemon.
package node

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Klingon-tech/klingvault/config"
	klog "github.com/Klingon-tech/klingvault/internal/log"
	"github.com/Klingon-tech/klingvault/internal/metrics"
	"github.com/Klingon-tech/klingvault/internal/rpc"
	"github.com/Klingon-tech/klingvault/internal/storage"
	"github.com/Klingon-tech/klingvault/internal/token"
	"github.com/Klingon-tech/klingvault/internal/vault"
	"github.com/Klingon-tech/klingvault/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultAuditInterval is how often a running node audits the ledger.
const DefaultAuditInterval = 10 * time.Minute

// ErrGenesisMismatch is returned when the database was created from a
// different genesis than the configured one.
var ErrGenesisMismatch = errors.New("database was initialized with a different genesis")

var keyGenesisHash = []byte("node/genesis_hash")

// Node is an initialized vault daemon.
type Node struct {
	cfg       *config.Config
	genesis   *config.Genesis
	logger    zerolog.Logger
	logCloser io.Closer

	db        storage.DB
	vault     *vault.Vault
	metrics   *metrics.Registry
	rpcServer *rpc.Server

	// AuditInterval overrides DefaultAuditInterval; zero disables the loop.
	AuditInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens storage, applies genesis on first start and prepares the RPC
// server. It does not listen or start background work; call Start for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Address HRP ──────────────────────────────────────────────
	if cfg.Network == config.Testnet {
		types.SetAddressHRP(types.TestnetHRP)
	} else {
		types.SetAddressHRP(types.MainnetHRP)
	}

	// ── 2. Logger ───────────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		if err := os.MkdirAll(cfg.LogsDir(), 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(cfg.LogsDir(), "klingvault.log")
	}
	logCloser, err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.Node

	// ── 3. Genesis ──────────────────────────────────────────────────
	genesis, err := config.GenesisFor(cfg)
	if err != nil {
		logCloser.Close()
		return nil, err
	}
	logger.Info().
		Str("chain_id", genesis.ChainID).
		Str("network", string(cfg.Network)).
		Str("stake", genesis.Stake.Symbol).
		Str("reward", genesis.Reward.Symbol).
		Msg("Starting klingvault node")

	// ── 4. Storage ──────────────────────────────────────────────────
	db, err := storage.NewBadger(cfg.StateDir())
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("open database at %s: %w", cfg.StateDir(), err)
	}
	logger.Info().Str("path", cfg.StateDir()).Msg("Database opened")

	// ── 5. Vault ────────────────────────────────────────────────────
	var reg *metrics.Registry
	var vm *metrics.Vault
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
		vm = reg.Vault
	}
	v, err := vault.New(vault.Config{
		DB:      db,
		Stake:   ledgerOpener(config.StakeNamespace),
		Reward:  ledgerOpener(config.RewardNamespace),
		Metrics: vm,
	})
	if err != nil {
		db.Close()
		logCloser.Close()
		return nil, err
	}

	if err := ApplyGenesis(context.Background(), v, db, genesis); err != nil {
		db.Close()
		logCloser.Close()
		return nil, fmt.Errorf("apply genesis: %w", err)
	}

	// ── 6. RPC server ───────────────────────────────────────────────
	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		rpcAddr := net.JoinHostPort(cfg.RPC.Addr, strconv.Itoa(cfg.RPC.Port))
		rpcServer = rpc.New(rpcAddr, rpc.Backend{
			ChainID: genesis.ChainID,
			Vault:   v,
			DB:      db,
			Tokens: map[string]string{
				genesis.Stake.Symbol:  config.StakeNamespace,
				genesis.Reward.Symbol: config.RewardNamespace,
			},
		}, cfg.RPC)
		if reg != nil {
			rpcServer.SetMetrics(reg)
		}
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		cfg:           cfg,
		genesis:       genesis,
		logger:        logger,
		logCloser:     logCloser,
		db:            db,
		vault:         v,
		metrics:       reg,
		rpcServer:     rpcServer,
		AuditInterval: DefaultAuditInterval,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

func ledgerOpener(ns string) vault.TokenOpener {
	return func(db storage.DB) vault.Token {
		return token.Open(storage.NewPrefixDB(db, []byte(ns)))
	}
}

// ApplyGenesis initializes both token ledgers and the vault on a fresh
// database and records the genesis hash. On an initialized database it
// only checks that the hash matches.
func ApplyGenesis(ctx context.Context, v *vault.Vault, db storage.DB, g *config.Genesis) error {
	want, err := g.Hash()
	if err != nil {
		return err
	}
	stored, err := db.Get(keyGenesisHash)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if err := v.Atomic(ctx, "genesis_tokens", func(ctx context.Context, db storage.DB) error {
			if err := initLedger(ctx, db, config.StakeNamespace, g.Stake, g); err != nil {
				return err
			}
			if err := initLedger(ctx, db, config.RewardNamespace, g.Reward, g); err != nil {
				return err
			}
			return db.Put(keyGenesisHash, want[:])
		}); err != nil {
			return err
		}
		klog.Node.Info().Str("hash", want.String()).Msg("Token ledgers created from genesis")
	case err != nil:
		return err
	case !bytes.Equal(stored, want[:]):
		return fmt.Errorf("%w: stored %x, configured %s", ErrGenesisMismatch, stored, want)
	}

	ok, err := v.Initialized()
	if err != nil {
		return err
	}
	if ok {
		klog.Node.Info().Msg("Vault resumed from database")
		return nil
	}
	return v.Initialize(ctx, g.Admin, g.Vault.Params())
}

// initLedger creates one ledger, mints its initial supply to the treasury
// and makes the treasury a minter.
func initLedger(ctx context.Context, db storage.DB, ns string, tg config.TokenGenesis, g *config.Genesis) error {
	l, err := token.Init(storage.NewPrefixDB(db, []byte(ns)), tg.Metadata, g.Admin)
	if err != nil {
		return fmt.Errorf("%s: %w", tg.Symbol, err)
	}
	if tg.InitialSupply != nil && !tg.InitialSupply.IsZero() {
		if err := l.Mint(ctx, g.Admin, g.Treasury, tg.InitialSupply); err != nil {
			return fmt.Errorf("%s initial supply: %w", tg.Symbol, err)
		}
	}
	if g.Treasury != g.Admin {
		if err := l.GrantRole(g.Admin, token.MinterRole, g.Treasury); err != nil {
			return fmt.Errorf("%s treasury minter: %w", tg.Symbol, err)
		}
	}
	return nil
}

// Start begins listening for RPC and launches the periodic audit.
func (n *Node) Start() error {
	stats, err := n.vault.GetVaultStats(n.ctx)
	if err != nil {
		return err
	}
	if n.metrics != nil {
		n.metrics.Vault.SetState(metrics.Snapshot{
			TotalStaked:       stats.TotalStaked,
			RewardRate:        stats.RewardRate,
			AccRewardPerShare: stats.AccRewardPerShare,
			CollectedFees:     stats.CollectedFees,
			Paused:            stats.Paused,
		})
	}

	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return fmt.Errorf("start RPC: %w", err)
		}
		n.logger.Info().Str("addr", n.rpcServer.Addr()).Msg("RPC server started")
	}

	if n.AuditInterval > 0 {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runAuditLoop(n.AuditInterval)
		}()
	}

	n.logger.Info().
		Str("vault", n.vault.Address().String()).
		Str("total_staked", stats.TotalStaked.Dec()).
		Bool("paused", stats.Paused).
		Msg("Node started successfully")
	return nil
}

func (n *Node) runAuditLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.audit()
		}
	}
}

func (n *Node) audit() {
	rep, err := n.vault.Audit(n.ctx)
	if err != nil {
		n.logger.Error().Err(err).Msg("Audit failed")
		return
	}
	if !rep.Consistent {
		n.logger.Warn().Strs("problems", rep.Problems).Msg("Vault audit found inconsistencies")
		return
	}
	n.logger.Debug().Int("positions", rep.Positions).Msg("Vault audit clean")
}

// Stop shuts down the RPC server and background work and closes storage.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()

	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	if n.db != nil {
		n.db.Close()
	}
	n.logger.Info().Msg("Goodbye!")
	if n.logCloser != nil {
		n.logCloser.Close()
	}
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Vault returns the node's vault.
func (n *Node) Vault() *vault.Vault {
	return n.vault
}

// Genesis returns the genesis the node was started with.
func (n *Node) Genesis() *config.Genesis {
	return n.genesis
}
