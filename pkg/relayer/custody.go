package relayer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chainsafe/ckb-bridge-relayer/internal/metrics"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/asset"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/types"
)

// CustodyProvisioner makes sure every asset has a bridge custody cell before it is minted.
type CustodyProvisioner struct {
	indexer       CellIndexer
	chain         ChainClient
	gen           TxGenerator
	signer        Signer
	poller        *FinalityPoller
	committeeLock *types.Script
	timeoutIters  int
	logger        *zap.Logger
}

// NewCustodyProvisioner creates a custody provisioner
func NewCustodyProvisioner(
	indexer CellIndexer,
	chain ChainClient,
	gen TxGenerator,
	signer Signer,
	poller *FinalityPoller,
	committeeLock *types.Script,
	timeoutIters int,
	logger *zap.Logger,
) *CustodyProvisioner {
	return &CustodyProvisioner{
		indexer:       indexer,
		chain:         chain,
		gen:           gen,
		signer:        signer,
		poller:        poller,
		committeeLock: committeeLock,
		timeoutIters:  timeoutIters,
		logger:        logger,
	}
}

// EnsureProvisioned returns the distinct assets that have no live custody cell yet.
func (p *CustodyProvisioner) EnsureProvisioned(ctx context.Context, assets []*asset.Asset) ([]*asset.Asset, error) {
	seen := make(map[string]struct{}, len(assets))
	var missing []*asset.Asset
	for _, a := range assets {
		if _, ok := seen[a.Key()]; ok {
			continue
		}
		seen[a.Key()] = struct{}{}

		key := &types.SearchKey{
			Script:     *p.gen.BridgeLockscript(a),
			ScriptType: types.ScriptTypeLock,
		}
		cells, err := p.indexer.GetCells(ctx, key, 1, "")
		if err != nil {
			return nil, fmt.Errorf("failed to look up custody cell for %s: %w", a.Key(), err)
		}
		if cells == nil || len(cells.Objects) == 0 {
			missing = append(missing, a)
		}
	}
	return missing, nil
}

// CreateCustodyCells creates one custody cell per asset in a single transaction, waits for it
// and resyncs the indexer. A non-committed status after the wait is returned without an error.
func (p *CustodyProvisioner) CreateCustodyCells(ctx context.Context, assets []*asset.Asset) (types.TxStatus, error) {
	locks := make([]*types.Script, len(assets))
	keys := make([]string, len(assets))
	for i, a := range assets {
		locks[i] = p.gen.BridgeLockscript(a)
		keys[i] = a.Key()
	}

	unsigned, err := p.gen.CreateBridgeCells(ctx, p.committeeLock, locks)
	if err != nil {
		return "", fmt.Errorf("failed to build custody transaction: %w", err)
	}
	if err := p.signer.SignTransaction(unsigned.Tx, unsigned.SigningGroup); err != nil {
		return "", fmt.Errorf("failed to sign custody transaction: %w", err)
	}
	txHash, err := p.chain.SendTransaction(ctx, unsigned.Tx)
	if err != nil {
		metrics.TransactionsSent.WithLabelValues("custody", "failed").Inc()
		return "", fmt.Errorf("failed to send custody transaction: %w", err)
	}
	metrics.TransactionsSent.WithLabelValues("custody", "sent").Inc()
	p.logger.Info("Custody transaction sent",
		zap.String("tx_hash", txHash.Hex()),
		zap.Strings("assets", keys))

	status, err := p.poller.WaitUntilCommitted(ctx, txHash, p.timeoutIters)
	if err != nil {
		return status, err
	}
	if err := p.indexer.WaitUntilSync(ctx); err != nil {
		return status, fmt.Errorf("failed to sync indexer: %w", err)
	}
	return status, nil
}
