package relayer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/ckb-bridge-relayer/internal/metrics"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/asset"
	apperrors "github.com/chainsafe/ckb-bridge-relayer/pkg/app/errors"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/types"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/db"
)

// WatcherConfig paces the block watcher.
type WatcherConfig struct {
	ConfirmNumber uint64
	Collector     bool
	PollInterval  time.Duration
	RetryBackoff  time.Duration
}

// BlockWatcher follows CKB block by block, recording burns and mint confirmations.
type BlockWatcher struct {
	chain      ChainClient
	store      Store
	cursor     *Cursor
	classifier *Classifier
	confirm    *ConfirmationManager
	cfg        WatcherConfig
	logger     *zap.Logger

	height uint64
	hash   string
}

// NewBlockWatcher creates a block watcher
func NewBlockWatcher(
	chain ChainClient,
	store Store,
	classifier *Classifier,
	cfg WatcherConfig,
	logger *zap.Logger,
) *BlockWatcher {
	return &BlockWatcher{
		chain:      chain,
		store:      store,
		cursor:     NewCursor(store),
		classifier: classifier,
		confirm:    NewConfirmationManager(store, cfg.ConfirmNumber, logger),
		cfg:        cfg,
		logger:     logger,
	}
}

// Run follows the chain until ctx is cancelled.
func (w *BlockWatcher) Run(ctx context.Context) error {
	for {
		err := w.init(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Error("Failed to initialise block watcher", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("watcher", "init").Inc()
		if err := sleep(ctx, w.cfg.RetryBackoff); err != nil {
			return err
		}
	}

	w.logger.Info("Block watcher started",
		zap.Uint64("block_number", w.height),
		zap.String("block_hash", w.hash),
		zap.Uint64("confirm_number", w.cfg.ConfirmNumber),
		zap.Bool("collector", w.cfg.Collector))

	for {
		wait, err := w.step(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			w.logger.Error("Failed to handle block",
				zap.Uint64("block_number", w.height+1),
				zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("watcher", "block").Inc()
			wait = w.cfg.RetryBackoff
		}
		if wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
}

// init loads the cursor, starting at the current tip on a cold start.
func (w *BlockWatcher) init(ctx context.Context) error {
	height, hash, err := w.cursor.Get(ctx)
	if err != nil {
		return err
	}
	if height != 0 {
		w.height, w.hash = height, hash
		return nil
	}

	tip, err := w.chain.GetTipHeader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get tip header: %w", err)
	}
	if err := w.cursor.Set(ctx, uint64(tip.Number), tip.Hash.Hex()); err != nil {
		return err
	}
	w.height, w.hash = uint64(tip.Number), tip.Hash.Hex()
	w.logger.Info("No cursor recorded, starting from tip", zap.Uint64("block_number", w.height))
	return nil
}

// step handles the next block, returning how long to wait when it is not produced yet.
func (w *BlockWatcher) step(ctx context.Context) (time.Duration, error) {
	block, err := w.chain.GetBlockByNumber(ctx, w.height+1)
	if err != nil {
		return 0, fmt.Errorf("failed to get block: %w", err)
	}
	if block == nil {
		return w.cfg.PollInterval, nil
	}
	return 0, w.HandleBlock(ctx, block)
}

// HandleBlock processes one block on top of the cursor. It is safe to retry after a failure.
func (w *BlockWatcher) HandleBlock(ctx context.Context, block *types.Block) error {
	h := uint64(block.Header.Number)
	blockHash := block.Header.Hash.Hex()

	if w.forked(block) {
		return w.rollback(ctx, block)
	}

	confirmedHeight := saturatingSub(h, w.cfg.ConfirmNumber)
	if _, err := w.confirm.Promote(ctx, confirmedHeight, w.fanOut); err != nil {
		return fmt.Errorf("failed to promote burns: %w", err)
	}

	var burns []*db.Burn
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		c := w.classifier.Classify(ctx, tx, h)
		if c.Mint {
			metrics.EventsDetected.WithLabelValues("mint").Inc()
			if err := w.onMint(ctx, tx); err != nil {
				return err
			}
		}
		if c.Burn != nil {
			metrics.EventsDetected.WithLabelValues("burn").Inc()
			burns = append(burns, c.Burn)
		}
	}
	if len(burns) > 0 {
		if err := w.store.CreateBurns(ctx, burns); err != nil {
			return fmt.Errorf("failed to record burns: %w", err)
		}
	}

	if err := w.cursor.Set(ctx, h, blockHash); err != nil {
		return err
	}
	w.height, w.hash = h, blockHash

	metrics.BlocksProcessed.Inc()
	metrics.LastProcessedBlock.Set(float64(h))
	w.logger.Debug("Handled block",
		zap.Uint64("block_number", h),
		zap.String("block_hash", blockHash),
		zap.Int("txs", len(block.Transactions)),
		zap.Int("burns", len(burns)))
	return nil
}

func (w *BlockWatcher) forked(block *types.Block) bool {
	h := uint64(block.Header.Number)
	return w.cfg.ConfirmNumber != 0 &&
		w.height+1 == h &&
		w.hash != "" &&
		!strings.EqualFold(block.Header.ParentHash.Hex(), w.hash)
}

// rollback drops unconfirmed burns above the last final height and rewinds the cursor there.
func (w *BlockWatcher) rollback(ctx context.Context, block *types.Block) error {
	h := uint64(block.Header.Number)
	confirmedHeight := saturatingSub(h-1, w.cfg.ConfirmNumber)

	w.logger.Warn("Fork detected",
		zap.Uint64("block_number", h),
		zap.String("parent_hash", block.Header.ParentHash.Hex()),
		zap.String("cursor_hash", w.hash),
		zap.Uint64("rollback_to", confirmedHeight))
	metrics.ForksDetected.Inc()

	removed, err := w.store.RollbackBurns(ctx, confirmedHeight)
	if err != nil {
		return fmt.Errorf("failed to roll back burns: %w", err)
	}

	header, err := w.chain.GetHeaderByNumber(ctx, confirmedHeight)
	if err != nil {
		return fmt.Errorf("failed to get header %d: %w", confirmedHeight, err)
	}
	if header == nil {
		return fmt.Errorf("header %d not found", confirmedHeight)
	}
	if err := w.cursor.Set(ctx, confirmedHeight, header.Hash.Hex()); err != nil {
		return err
	}
	w.height, w.hash = confirmedHeight, header.Hash.Hex()

	w.logger.Info("Rolled back",
		zap.Uint64("block_number", confirmedHeight),
		zap.Int64("burns_removed", removed))
	return nil
}

func (w *BlockWatcher) onMint(ctx context.Context, tx *types.TransactionView) error {
	if !w.cfg.Collector {
		return nil
	}
	n, err := w.store.MarkMintSuccessByHash(ctx, tx.Hash.Hex())
	if err != nil {
		return fmt.Errorf("failed to mark mint %s: %w", tx.Hash.Hex(), err)
	}
	if n > 0 {
		w.logger.Info("Mint committed", zap.String("tx_hash", tx.Hash.Hex()), zap.Int64("records", n))
	}
	return nil
}

// fanOut creates one unlock per confirmed burn on the burn's origin chain.
func (w *BlockWatcher) fanOut(ctx context.Context, burns []*db.Burn) error {
	if !w.cfg.Collector {
		return nil
	}
	for _, b := range burns {
		unlock := &db.Unlock{
			CkbTxHash:        b.CkbTxHash,
			Chain:            b.Chain,
			Asset:            b.Asset,
			Amount:           b.Amount,
			RecipientAddress: b.RecipientAddress,
			Status:           db.UnlockPending,
		}
		switch b.Chain {
		case asset.ChainBTC, asset.ChainETH, asset.ChainEOS:
		case asset.ChainTRON:
			unlock.AssetType = asset.TronAssetType(b.Asset)
		default:
			return apperrors.NotSupportedError(nil, fmt.Sprintf("unlock for chain %s", b.Chain))
		}
		if err := w.store.CreateUnlock(ctx, unlock); err != nil {
			return err
		}
		w.logger.Info("Created unlock",
			zap.String("tx_hash", b.CkbTxHash),
			zap.String("chain", b.Chain.String()),
			zap.String("amount", b.Amount))
	}
	return nil
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
