// Package rpc provides JSON-RPC clients for a CKB node and its cell indexer.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// ErrNotFound is returned when the node has no object for the request.
var ErrNotFound = errors.New("not found")

// Client talks to a CKB node.
type Client struct {
	c      *gethrpc.Client
	logger *zap.Logger
}

// Dial connects to the node at url.
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Client, error) {
	c, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial ckb node: %w", err)
	}
	return &Client{c: c, logger: logger}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.c.Close()
}

// GetTipHeader returns the current tip header.
func (c *Client) GetTipHeader(ctx context.Context) (*types.Header, error) {
	var header *types.Header
	if err := c.c.CallContext(ctx, &header, "get_tip_header"); err != nil {
		return nil, fmt.Errorf("get_tip_header: %w", err)
	}
	if header == nil {
		return nil, ErrNotFound
	}
	return header, nil
}

// GetTipBlockNumber returns the current tip height.
func (c *Client) GetTipBlockNumber(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := c.c.CallContext(ctx, &n, "get_tip_block_number"); err != nil {
		return 0, fmt.Errorf("get_tip_block_number: %w", err)
	}
	return uint64(n), nil
}

// GetBlockByNumber returns the canonical block at height, or nil when it does not exist yet.
func (c *Client) GetBlockByNumber(ctx context.Context, height uint64) (*types.Block, error) {
	var block *types.Block
	if err := c.c.CallContext(ctx, &block, "get_block_by_number", hexutil.Uint64(height)); err != nil {
		return nil, fmt.Errorf("get_block_by_number(%d): %w", height, err)
	}
	return block, nil
}

// GetHeaderByNumber returns the canonical header at height, or nil when it does not exist yet.
func (c *Client) GetHeaderByNumber(ctx context.Context, height uint64) (*types.Header, error) {
	var header *types.Header
	if err := c.c.CallContext(ctx, &header, "get_header_by_number", hexutil.Uint64(height)); err != nil {
		return nil, fmt.Errorf("get_header_by_number(%d): %w", height, err)
	}
	return header, nil
}

// GetTransaction returns a transaction with its status, or nil when the node does not know it.
func (c *Client) GetTransaction(ctx context.Context, txHash common.Hash) (*types.TransactionWithStatus, error) {
	var tx *types.TransactionWithStatus
	if err := c.c.CallContext(ctx, &tx, "get_transaction", txHash); err != nil {
		return nil, fmt.Errorf("get_transaction(%s): %w", txHash.Hex(), err)
	}
	return tx, nil
}

// SendTransaction submits a signed transaction and returns its hash.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	var txHash common.Hash
	if err := c.c.CallContext(ctx, &txHash, "send_transaction", tx, "passthrough"); err != nil {
		return common.Hash{}, fmt.Errorf("send_transaction: %w", err)
	}
	c.logger.Debug("Transaction submitted", zap.String("tx_hash", txHash.Hex()))
	return txHash, nil
}

// Indexer talks to a CKB cell indexer.
type Indexer struct {
	c            *gethrpc.Client
	node         *Client
	syncInterval time.Duration
	logger       *zap.Logger
}

// DialIndexer connects to the indexer at url. node is used to compare sync progress.
func DialIndexer(ctx context.Context, url string, node *Client, syncInterval time.Duration, logger *zap.Logger) (*Indexer, error) {
	c, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial ckb indexer: %w", err)
	}
	if syncInterval <= 0 {
		syncInterval = time.Second
	}
	return &Indexer{c: c, node: node, syncInterval: syncInterval, logger: logger}, nil
}

// Close closes the underlying connection.
func (i *Indexer) Close() {
	i.c.Close()
}

// GetCells returns one page of live cells matching key. An empty cursor starts from the beginning.
func (i *Indexer) GetCells(ctx context.Context, key *types.SearchKey, limit uint64, cursor string) (*types.LiveCells, error) {
	var after any
	if cursor != "" {
		after = cursor
	}
	var cells types.LiveCells
	if err := i.c.CallContext(ctx, &cells, "get_cells", key, "asc", hexutil.Uint64(limit), after); err != nil {
		return nil, fmt.Errorf("get_cells: %w", err)
	}
	return &cells, nil
}

// GetTip returns the indexer tip.
func (i *Indexer) GetTip(ctx context.Context) (*types.IndexerTip, error) {
	var tip *types.IndexerTip
	if err := i.c.CallContext(ctx, &tip, "get_indexer_tip"); err != nil {
		return nil, fmt.Errorf("get_indexer_tip: %w", err)
	}
	if tip == nil {
		return nil, ErrNotFound
	}
	return tip, nil
}

// WaitUntilSync blocks until the indexer has caught up with the node tip.
func (i *Indexer) WaitUntilSync(ctx context.Context) error {
	for {
		nodeTip, err := i.node.GetTipBlockNumber(ctx)
		if err != nil {
			return err
		}
		tip, err := i.GetTip(ctx)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if tip != nil && uint64(tip.BlockNumber) >= nodeTip {
			return nil
		}

		i.logger.Debug("Waiting for indexer to sync", zap.Uint64("node_tip", nodeTip))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(i.syncInterval):
		}
	}
}
