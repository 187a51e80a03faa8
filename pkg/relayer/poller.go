package relayer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/types"
)

// FinalityPoller waits for transactions to be committed.
type FinalityPoller struct {
	chain    ChainClient
	interval time.Duration
	logger   *zap.Logger
}

// NewFinalityPoller creates a poller checking every interval
func NewFinalityPoller(chain ChainClient, interval time.Duration, logger *zap.Logger) *FinalityPoller {
	return &FinalityPoller{chain: chain, interval: interval, logger: logger}
}

// WaitUntilCommitted polls txHash until it is committed or maxIterations polls have passed,
// and returns the last status seen. Running out of iterations is not an error.
func (p *FinalityPoller) WaitUntilCommitted(ctx context.Context, txHash common.Hash, maxIterations int) (types.TxStatus, error) {
	seen := make(map[types.TxStatus]struct{})
	for i := 0; ; i++ {
		res, err := p.chain.GetTransaction(ctx, txHash)
		if err != nil {
			return "", fmt.Errorf("failed to get transaction %s: %w", txHash.Hex(), err)
		}
		status := types.TxStatusUnknown
		if res != nil {
			status = res.TxStatus.Status
		}

		if _, ok := seen[status]; !ok {
			seen[status] = struct{}{}
			p.logger.Info("Transaction status",
				zap.String("tx_hash", txHash.Hex()),
				zap.String("status", string(status)),
				zap.Int("iteration", i))
		}
		if status == types.TxStatusCommitted {
			return status, nil
		}

		if err := sleep(ctx, p.interval); err != nil {
			return status, err
		}
		if i+1 >= maxIterations {
			return status, nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
