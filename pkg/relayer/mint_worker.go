package relayer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainsafe/ckb-bridge-relayer/internal/metrics"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/asset"
	apperrors "github.com/chainsafe/ckb-bridge-relayer/pkg/app/errors"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/address"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/txgen"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/types"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/db"
)

// BatchOutcome is how a mint batch ended
type BatchOutcome int

const (
	// BatchSuccess means the mint transaction was committed.
	BatchSuccess BatchOutcome = iota
	// BatchRecoverableTimeout means the transaction was sent but not committed in time.
	// Records stay pending with the mint hash recorded.
	BatchRecoverableTimeout
	// BatchFatal means the batch failed before or while sending. Records move to error.
	BatchFatal
)

func (o BatchOutcome) String() string {
	switch o {
	case BatchSuccess:
		return "success"
	case BatchRecoverableTimeout:
		return "timeout"
	case BatchFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// BatchResult is the result of one mint batch
type BatchResult struct {
	Outcome  BatchOutcome
	MintHash string
	Status   types.TxStatus
	Reason   string
}

func fatal(format string, args ...any) BatchResult {
	return BatchResult{Outcome: BatchFatal, Reason: fmt.Sprintf(format, args...)}
}

// MintWorkerConfig paces the mint worker
type MintWorkerConfig struct {
	BatchSize    int
	PollInterval time.Duration
	RetryBackoff time.Duration
	TimeoutIters int

	// AddressPrefix restricts recipients to one network when set.
	AddressPrefix string
}

// MintWorker turns pending mint records into committed sUDT mint transactions.
type MintWorker struct {
	chain         ChainClient
	indexer       CellIndexer
	store         MintStore
	gen           TxGenerator
	signer        Signer
	poller        *FinalityPoller
	custody       *CustodyProvisioner
	committeeLock *types.Script
	committeeHash common.Hash
	cfg           MintWorkerConfig
	logger        *zap.Logger
}

// NewMintWorker creates a mint worker
func NewMintWorker(
	chain ChainClient,
	indexer CellIndexer,
	store MintStore,
	gen TxGenerator,
	signer Signer,
	poller *FinalityPoller,
	custody *CustodyProvisioner,
	committeeLock *types.Script,
	cfg MintWorkerConfig,
	logger *zap.Logger,
) *MintWorker {
	return &MintWorker{
		chain:         chain,
		indexer:       indexer,
		store:         store,
		gen:           gen,
		signer:        signer,
		poller:        poller,
		custody:       custody,
		committeeLock: committeeLock,
		committeeHash: committeeLock.Hash(),
		cfg:           cfg,
		logger:        logger,
	}
}

// Run processes pending mints until ctx is cancelled.
func (w *MintWorker) Run(ctx context.Context) error {
	w.logger.Info("Mint worker started", zap.Int("batch_size", w.cfg.BatchSize))
	for {
		processed, err := w.RunOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var wait time.Duration
		switch {
		case err != nil:
			w.logger.Error("Mint pass failed", zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("minter", "pass").Inc()
			wait = w.cfg.RetryBackoff
		case processed == 0:
			wait = w.cfg.PollInterval
		}
		if wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
}

// RunOnce handles one page of pending mints and returns how many records it settled or submitted.
func (w *MintWorker) RunOnce(ctx context.Context) (int, error) {
	mints, err := w.store.GetPendingMints(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending mints: %w", err)
	}
	if len(mints) == 0 {
		return 0, nil
	}

	batch, resolved, err := w.resume(ctx, mints)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return resolved, nil
	}

	batchID := uuid.NewString()
	start := time.Now()
	result, err := w.processBatch(ctx, batchID, batch)
	if err != nil {
		return resolved, err
	}
	metrics.MintBatchDuration.Observe(time.Since(start).Seconds())

	if err := w.finish(ctx, batchID, batch, result); err != nil {
		return resolved, err
	}
	return resolved + len(batch), nil
}

// resume checks records that already carry a mint hash. Committed ones are settled, ones still
// in the pool are left for a later pass and lost ones are minted again in this batch.
func (w *MintWorker) resume(ctx context.Context, mints []*db.Mint) ([]*db.Mint, int, error) {
	var batch, settled []*db.Mint
	statuses := make(map[string]types.TxStatus)
	for _, m := range mints {
		if m.MintHash == "" {
			batch = append(batch, m)
			continue
		}

		status, ok := statuses[m.MintHash]
		if !ok {
			res, err := w.chain.GetTransaction(ctx, common.HexToHash(m.MintHash))
			if err != nil {
				return nil, 0, fmt.Errorf("failed to check mint %s: %w", m.MintHash, err)
			}
			status = types.TxStatusUnknown
			if res != nil {
				status = res.TxStatus.Status
			}
			statuses[m.MintHash] = status
		}

		switch status {
		case types.TxStatusCommitted:
			m.Status = db.MintSuccess
			settled = append(settled, m)
		case types.TxStatusPending, types.TxStatusProposed:
			w.logger.Debug("Mint still in pool", zap.String("id", m.ID), zap.String("mint_hash", m.MintHash))
		default:
			w.logger.Warn("Mint transaction lost, minting again",
				zap.String("id", m.ID),
				zap.String("mint_hash", m.MintHash),
				zap.String("status", string(status)))
			m.MintHash = ""
			batch = append(batch, m)
		}
	}

	if len(settled) > 0 {
		if err := w.store.UpdateMints(ctx, settled); err != nil {
			return nil, 0, fmt.Errorf("failed to settle committed mints: %w", err)
		}
		w.logger.Info("Settled committed mints", zap.Strings("mint_ids", mintIDs(settled)))
	}
	return batch, len(settled), nil
}

// processBatch runs one batch to an outcome. An error means the batch did not start and the
// records are untouched.
func (w *MintWorker) processBatch(ctx context.Context, batchID string, mints []*db.Mint) (BatchResult, error) {
	logger := w.logger.With(zap.String("batch_id", batchID))

	if err := w.indexer.WaitUntilSync(ctx); err != nil {
		return BatchResult{}, fmt.Errorf("failed to sync indexer: %w", err)
	}

	reqs, assets, err := w.mapRecords(mints)
	if err != nil {
		return fatal("invalid mint record: %v", err), nil
	}

	missing, err := w.custody.EnsureProvisioned(ctx, assets)
	if err != nil {
		return fatal("failed to check custody cells: %v", err), nil
	}
	if len(missing) > 0 {
		logger.Info("Creating custody cells", zap.Int("assets", len(missing)))
		status, err := w.custody.CreateCustodyCells(ctx, missing)
		if err != nil {
			return fatal("failed to create custody cells: %v", err), nil
		}
		if status != types.TxStatusCommitted {
			logger.Warn("Custody transaction not committed, minting anyway", zap.String("status", string(status)))
		}
	}

	for _, m := range mints {
		m.Status = db.MintPending
		m.Message = ""
	}
	if err := w.store.UpdateMints(ctx, mints); err != nil {
		return fatal("failed to mark mints pending: %v", err), nil
	}

	unsigned, err := w.gen.Mint(ctx, w.committeeLock, reqs)
	if err != nil {
		return fatal("failed to build mint transaction: %v", err), nil
	}
	if err := w.signer.SignTransaction(unsigned.Tx, unsigned.SigningGroup); err != nil {
		return fatal("failed to sign mint transaction: %v", err), nil
	}
	txHash, err := w.chain.SendTransaction(ctx, unsigned.Tx)
	if err != nil {
		metrics.TransactionsSent.WithLabelValues("mint", "failed").Inc()
		return fatal("failed to send mint transaction: %v", err), nil
	}
	metrics.TransactionsSent.WithLabelValues("mint", "sent").Inc()

	mintHash := txHash.Hex()
	logger.Info("Mint transaction sent",
		zap.String("mint_hash", mintHash),
		zap.Strings("mint_ids", mintIDs(mints)))

	for _, m := range mints {
		m.MintHash = mintHash
	}
	if err := w.store.UpdateMints(ctx, mints); err != nil {
		logger.Warn("Failed to record mint hash", zap.String("mint_hash", mintHash), zap.Error(err))
	}

	status, err := w.poller.WaitUntilCommitted(ctx, txHash, w.cfg.TimeoutIters)
	if err != nil {
		logger.Warn("Failed to wait for mint transaction", zap.String("mint_hash", mintHash), zap.Error(err))
	}
	if err == nil && status == types.TxStatusCommitted {
		return BatchResult{Outcome: BatchSuccess, MintHash: mintHash, Status: status}, nil
	}
	return BatchResult{Outcome: BatchRecoverableTimeout, MintHash: mintHash, Status: status}, nil
}

// mapRecords turns mint records into mint requests and the assets they touch.
func (w *MintWorker) mapRecords(mints []*db.Mint) ([]*txgen.MintRequest, []*asset.Asset, error) {
	reqs := make([]*txgen.MintRequest, 0, len(mints))
	assets := make([]*asset.Asset, 0, len(mints))
	for _, m := range mints {
		switch m.Chain {
		case asset.ChainBTC, asset.ChainETH, asset.ChainEOS, asset.ChainTRON:
		default:
			return nil, nil, apperrors.NotSupportedError(nil, fmt.Sprintf("mint %s: chain %s", m.ID, m.Chain))
		}

		a, err := asset.New(m.Chain, m.Asset, w.committeeHash)
		if err != nil {
			return nil, nil, fmt.Errorf("mint %s: %w", m.ID, err)
		}
		recipient, err := w.parseRecipient(m.RecipientLockscript)
		if err != nil {
			return nil, nil, fmt.Errorf("mint %s: %w", m.ID, err)
		}
		amount, ok := new(big.Int).SetString(m.Amount, 10)
		if !ok || amount.Sign() < 0 {
			return nil, nil, fmt.Errorf("mint %s: invalid amount %q", m.ID, m.Amount)
		}
		var extra []byte
		if m.SudtExtraData != "" {
			extra, err = hexutil.Decode(m.SudtExtraData)
			if err != nil {
				return nil, nil, fmt.Errorf("mint %s: invalid sudt extra data: %w", m.ID, err)
			}
		}

		reqs = append(reqs, &txgen.MintRequest{
			Asset:     a,
			Recipient: recipient,
			Amount:    amount,
			ExtraData: extra,
		})
		assets = append(assets, a)
	}
	return reqs, assets, nil
}

func (w *MintWorker) parseRecipient(addr string) (*types.Script, error) {
	if w.cfg.AddressPrefix == "" {
		return address.Parse(addr)
	}
	return address.ParseNetwork(addr, w.cfg.AddressPrefix)
}

// finish writes the batch outcome to every record of the batch.
func (w *MintWorker) finish(ctx context.Context, batchID string, mints []*db.Mint, result BatchResult) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	logger := w.logger.With(zap.String("batch_id", batchID), zap.Strings("mint_ids", mintIDs(mints)))
	for _, m := range mints {
		switch result.Outcome {
		case BatchSuccess:
			m.Status = db.MintSuccess
			m.MintHash = result.MintHash
			m.Message = ""
		case BatchRecoverableTimeout:
			m.Status = db.MintPending
			m.MintHash = result.MintHash
		case BatchFatal:
			m.Status = db.MintError
			m.Message = result.Reason
		}
	}

	switch result.Outcome {
	case BatchSuccess:
		logger.Info("Mint committed", zap.String("mint_hash", result.MintHash))
	case BatchRecoverableTimeout:
		logger.Warn("Mint not committed in time, keeping records pending",
			zap.String("mint_hash", result.MintHash),
			zap.String("status", string(result.Status)))
	case BatchFatal:
		logger.Error("Mint batch failed", zap.String("reason", result.Reason))
	}
	metrics.MintBatches.WithLabelValues(result.Outcome.String()).Inc()

	if err := w.store.UpdateMints(ctx, mints); err != nil {
		return fmt.Errorf("failed to record mint outcome: %w", err)
	}
	return nil
}

func mintIDs(mints []*db.Mint) []string {
	ids := make([]string, len(mints))
	for i, m := range mints {
		ids[i] = m.ID
	}
	return ids
}
