package relayer

import (
	"bytes"
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainsafe/ckb-bridge-relayer/pkg/asset"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/types"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/db"
)

// Scripts identifies the deployed scripts and the committee lock the relayer matches against.
type Scripts struct {
	CommitteeLock      *types.Script
	SudtCodeHash       common.Hash
	RecipientCodeHash  common.Hash
	BridgeLockCodeHash common.Hash
	BridgeLockHashType types.HashType
}

// Classification is the outcome of inspecting one transaction.
// Mint and Burn are evaluated independently.
type Classification struct {
	Mint bool
	Burn *db.Burn
}

// Classifier recognises bridge mint and burn transactions.
// Classification never fails: lookup errors and malformed payloads are a no-match.
type Classifier struct {
	chain         ChainClient
	scripts       *Scripts
	committeeHash common.Hash
	logger        *zap.Logger
}

// NewClassifier creates a classifier
func NewClassifier(chain ChainClient, scripts *Scripts, logger *zap.Logger) *Classifier {
	return &Classifier{
		chain:         chain,
		scripts:       scripts,
		committeeHash: scripts.CommitteeLock.Hash(),
		logger:        logger,
	}
}

// Classify inspects tx, included in the block at blockNumber.
func (c *Classifier) Classify(ctx context.Context, tx *types.TransactionView, blockNumber uint64) Classification {
	return Classification{
		Mint: c.IsMint(ctx, tx),
		Burn: c.ParseBurn(ctx, tx, blockNumber),
	}
}

// IsMint reports whether tx creates an sUDT output and spends a committee cell first.
func (c *Classifier) IsMint(ctx context.Context, tx *types.TransactionView) bool {
	hasSudt := false
	for i := range tx.Outputs {
		if t := tx.Outputs[i].Type; t != nil && t.CodeHash == c.scripts.SudtCodeHash {
			hasSudt = true
			break
		}
	}
	if !hasSudt {
		return false
	}

	prev, ok := c.firstInputOutput(ctx, tx)
	if !ok {
		return false
	}
	return prev.Lock.Hash() == c.committeeHash
}

// ParseBurn returns the burn carried by tx, or nil when tx is not a bridge burn.
func (c *Classifier) ParseBurn(ctx context.Context, tx *types.TransactionView, blockNumber uint64) *db.Burn {
	if len(tx.Outputs) == 0 || len(tx.OutputsData) == 0 {
		return nil
	}
	data, err := asset.DecodeRecipientCellData(tx.OutputsData[0])
	if err != nil {
		return nil
	}

	switch data.Chain {
	case asset.ChainBTC, asset.ChainETH, asset.ChainEOS, asset.ChainTRON:
	default:
		// ADA enters through mint records only
		return nil
	}

	a, err := asset.New(data.Chain, string(data.Asset), c.committeeHash)
	if err != nil {
		return nil
	}

	recipientType := tx.Outputs[0].Type
	if recipientType == nil || recipientType.CodeHash != c.scripts.RecipientCodeHash {
		return nil
	}

	prev, ok := c.firstInputOutput(ctx, tx)
	if !ok || prev.Type == nil {
		return nil
	}
	expectedArgs := a.BridgeLockHash(c.scripts.BridgeLockCodeHash, c.scripts.BridgeLockHashType)
	if prev.Type.CodeHash != c.scripts.SudtCodeHash || !bytes.Equal(prev.Type.Args, expectedArgs.Bytes()) {
		return nil
	}

	burn := &db.Burn{
		CkbTxHash:        tx.Hash.Hex(),
		SenderLockHash:   prev.Lock.Hash().Hex(),
		Chain:            data.Chain,
		Asset:            a.Address,
		Amount:           data.Amount.String(),
		BridgeFee:        data.Fee.String(),
		RecipientAddress: string(data.RecipientAddress),
		BlockNumber:      blockNumber,
		ConfirmStatus:    db.BurnUnconfirmed,
	}
	c.logger.Info("Detected burn",
		zap.String("tx_hash", burn.CkbTxHash),
		zap.String("chain", burn.Chain.String()),
		zap.String("asset", burn.Asset),
		zap.String("amount", burn.Amount),
		zap.String("recipient", burn.RecipientAddress))
	return burn
}

// firstInputOutput resolves the cell spent by the first input of tx.
func (c *Classifier) firstInputOutput(ctx context.Context, tx *types.TransactionView) (*types.CellOutput, bool) {
	if len(tx.Inputs) == 0 {
		return nil, false
	}
	prevOut := tx.Inputs[0].PreviousOutput
	// cellbase
	if prevOut.TxHash == (common.Hash{}) {
		return nil, false
	}

	prev, err := c.chain.GetTransaction(ctx, prevOut.TxHash)
	if err != nil {
		c.logger.Debug("Previous transaction lookup failed",
			zap.String("tx_hash", tx.Hash.Hex()),
			zap.String("prev_tx_hash", prevOut.TxHash.Hex()),
			zap.Error(err))
		return nil, false
	}
	if prev == nil || prev.Transaction == nil {
		return nil, false
	}
	idx := int(prevOut.Index)
	if idx >= len(prev.Transaction.Outputs) {
		return nil, false
	}
	return &prev.Transaction.Outputs[idx], true
}
