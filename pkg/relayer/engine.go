package relayer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainsafe/ckb-bridge-relayer/internal/metrics"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/asset"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/txgen"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/types"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/config"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/db"
)

// ChainClient defines the CKB node calls the relayer depends on.
// GetBlockByNumber, GetHeaderByNumber and GetTransaction return nil, nil when the node
// does not know the block or transaction.
type ChainClient interface {
	GetTipHeader(ctx context.Context) (*types.Header, error)
	GetBlockByNumber(ctx context.Context, height uint64) (*types.Block, error)
	GetHeaderByNumber(ctx context.Context, height uint64) (*types.Header, error)
	GetTransaction(ctx context.Context, txHash common.Hash) (*types.TransactionWithStatus, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error)
}

// CellIndexer defines the live cell index the relayer queries
type CellIndexer interface {
	WaitUntilSync(ctx context.Context) error
	GetCells(ctx context.Context, key *types.SearchKey, limit uint64, cursor string) (*types.LiveCells, error)
}

// KVStore persists small pieces of relayer state such as the ledger cursor
type KVStore interface {
	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key, value string) error
}

// BurnStore defines the burn record operations
type BurnStore interface {
	CreateBurns(ctx context.Context, burns []*db.Burn) error
	GetUnconfirmedBurns(ctx context.Context, height uint64) ([]*db.Burn, error)
	ConfirmBurns(ctx context.Context, txHashes []string, confirmNumber uint64) (int64, error)
	RollbackBurns(ctx context.Context, height uint64) (int64, error)
}

// MintStore defines the mint record operations
type MintStore interface {
	GetPendingMints(ctx context.Context, limit int) ([]*db.Mint, error)
	CountPendingMints(ctx context.Context) (int, error)
	UpdateMints(ctx context.Context, mints []*db.Mint) error
	MarkMintSuccessByHash(ctx context.Context, mintHash string) (int64, error)
}

// UnlockStore queues releases on the origin chains
type UnlockStore interface {
	CreateUnlock(ctx context.Context, u *db.Unlock) error
}

// Store is everything the engine needs from the database
type Store interface {
	KVStore
	BurnStore
	MintStore
	UnlockStore
}

// TxGenerator builds unsigned bridge transactions
type TxGenerator interface {
	BridgeLockscript(a *asset.Asset) *types.Script
	CreateBridgeCells(ctx context.Context, from *types.Script, locks []*types.Script) (*txgen.UnsignedTx, error)
	Mint(ctx context.Context, from *types.Script, reqs []*txgen.MintRequest) (*txgen.UnsignedTx, error)
}

// Signer signs the committee inputs of a transaction
type Signer interface {
	SignTransaction(tx *types.Transaction, group []int) error
}

// Dependencies are the collaborators injected into the engine
type Dependencies struct {
	Chain     ChainClient
	Indexer   CellIndexer
	Store     Store
	Generator TxGenerator
	Signer    Signer
}

// Status is a point-in-time view of the engine
type Status struct {
	Role          string `json:"role"`
	Ready         bool   `json:"ready"`
	CursorHeight  uint64 `json:"cursor_height"`
	CursorHash    string `json:"cursor_hash"`
	TipHeight     uint64 `json:"tip_height"`
	ConfirmNumber uint64 `json:"confirm_number"`
}

// Engine orchestrates the block watcher and, for the collector, the mint worker
type Engine struct {
	config  *config.Config
	deps    Dependencies
	watcher *BlockWatcher
	minter  *MintWorker
	cursor  *Cursor
	logger  *zap.Logger

	ready    atomic.Bool
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine creates a new relayer engine
func NewEngine(cfg *config.Config, scripts *Scripts, deps Dependencies, logger *zap.Logger) *Engine {
	rc := cfg.Relayer
	classifier := NewClassifier(deps.Chain, scripts, logger.Named("classifier"))
	watcher := NewBlockWatcher(deps.Chain, deps.Store, classifier, WatcherConfig{
		ConfirmNumber: cfg.CKB.ConfirmNumber,
		Collector:     rc.IsCollector(),
		PollInterval:  rc.BlockPollInterval,
		RetryBackoff:  rc.RetryBackoff,
	}, logger.Named("watcher"))

	e := &Engine{
		config:  cfg,
		deps:    deps,
		watcher: watcher,
		cursor:  NewCursor(deps.Store),
		logger:  logger,
		stopCh:  make(chan struct{}),
	}

	if rc.IsCollector() {
		poller := NewFinalityPoller(deps.Chain, rc.FinalityPollInterval, logger.Named("poller"))
		custody := NewCustodyProvisioner(
			deps.Indexer, deps.Chain, deps.Generator, deps.Signer, poller,
			scripts.CommitteeLock, rc.CustodyTimeoutIters, logger.Named("custody"))
		e.minter = NewMintWorker(deps.Chain, deps.Indexer, deps.Store, deps.Generator, deps.Signer,
			poller, custody, scripts.CommitteeLock, MintWorkerConfig{
				BatchSize:     rc.MintBatchSize,
				PollInterval:  rc.MintPollInterval,
				RetryBackoff:  rc.RetryBackoff,
				TimeoutIters:  rc.MintTimeoutIterations,
				AddressPrefix: cfg.CKB.AddressPrefix,
			}, logger.Named("minter"))
	}
	return e
}

// Start launches the engine loops. They run until Stop is called or ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	if _, err := e.deps.Chain.GetTipHeader(ctx); err != nil {
		return fmt.Errorf("failed to reach ckb node: %w", err)
	}

	e.logger.Info("Starting relayer engine",
		zap.String("role", e.config.Relayer.Role),
		zap.Uint64("confirm_number", e.config.CKB.ConfirmNumber))

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.watcher.Run(ctx); err != nil && ctx.Err() == nil {
			e.logger.Error("Block watcher stopped", zap.Error(err))
		}
	}()

	if e.minter != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.minter.Run(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("Mint worker stopped", zap.Error(err))
			}
		}()
	}

	e.wg.Add(1)
	go e.monitor(ctx)

	e.logger.Info("Relayer engine started")
	return nil
}

// Stop stops the relayer engine and waits for its loops to return. Later calls are no-ops.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.logger.Info("Stopping relayer engine")
		close(e.stopCh)
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()
		e.logger.Info("Relayer engine stopped")
	})
}

// IsReady reports whether the last readiness check reached the node
func (e *Engine) IsReady() bool {
	return e.ready.Load()
}

// Status reports the cursor against the chain tip
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	height, hash, err := e.cursor.Get(ctx)
	if err != nil {
		return nil, err
	}
	tip, err := e.deps.Chain.GetTipHeader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tip header: %w", err)
	}
	return &Status{
		Role:          e.config.Relayer.Role,
		Ready:         e.IsReady(),
		CursorHeight:  height,
		CursorHash:    hash,
		TipHeight:     uint64(tip.Number),
		ConfirmNumber: e.config.CKB.ConfirmNumber,
	}, nil
}

// monitor refreshes readiness and the pending mint gauge
func (e *Engine) monitor(ctx context.Context) {
	defer e.wg.Done()

	interval := e.config.Relayer.ReadinessInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.checkReadiness(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.checkReadiness(ctx)
		}
	}
}

func (e *Engine) checkReadiness(ctx context.Context) {
	if _, err := e.deps.Chain.GetTipHeader(ctx); err != nil {
		if e.ready.Swap(false) {
			e.logger.Warn("Relayer not ready", zap.Error(err))
		}
		return
	}
	e.ready.Store(true)

	if e.minter == nil {
		return
	}
	n, err := e.deps.Store.CountPendingMints(ctx)
	if err != nil {
		e.logger.Warn("Failed to count pending mints", zap.Error(err))
		return
	}
	metrics.PendingMints.Set(float64(n))
}
