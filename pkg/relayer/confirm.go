package relayer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chainsafe/ckb-bridge-relayer/internal/metrics"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/db"
)

// ConfirmationManager promotes burns once they are deep enough.
type ConfirmationManager struct {
	store         BurnStore
	confirmNumber uint64
	logger        *zap.Logger
}

// NewConfirmationManager creates a confirmation manager
func NewConfirmationManager(store BurnStore, confirmNumber uint64, logger *zap.Logger) *ConfirmationManager {
	return &ConfirmationManager{store: store, confirmNumber: confirmNumber, logger: logger}
}

// Promote confirms every unconfirmed burn at or below confirmedHeight and returns them.
// onConfirmed runs before the status flip; when it fails nothing is promoted and the
// same burns are offered again on the next call.
func (m *ConfirmationManager) Promote(
	ctx context.Context,
	confirmedHeight uint64,
	onConfirmed func(context.Context, []*db.Burn) error,
) ([]*db.Burn, error) {
	burns, err := m.store.GetUnconfirmedBurns(ctx, confirmedHeight)
	if err != nil {
		return nil, err
	}
	if len(burns) == 0 {
		return nil, nil
	}

	if onConfirmed != nil {
		if err := onConfirmed(ctx, burns); err != nil {
			return nil, fmt.Errorf("failed to hand off confirmed burns: %w", err)
		}
	}

	hashes := make([]string, len(burns))
	for i, b := range burns {
		hashes[i] = b.CkbTxHash
		b.ConfirmStatus = db.BurnConfirmed
		b.ConfirmNumber = m.confirmNumber
	}
	if _, err := m.store.ConfirmBurns(ctx, hashes, m.confirmNumber); err != nil {
		return nil, err
	}

	for _, b := range burns {
		metrics.BurnsConfirmed.WithLabelValues(b.Chain.String()).Inc()
	}
	m.logger.Info("Confirmed burns",
		zap.Uint64("confirmed_height", confirmedHeight),
		zap.Strings("tx_hashes", hashes))
	return burns, nil
}
