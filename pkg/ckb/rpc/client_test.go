package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newRPCServer answers each call with handler(method, params).
func newRPCServer(t *testing.T, handler func(method string, params []json.RawMessage) any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		resp := map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  handler(req.Method, req.Params),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_GetBlockByNumber(t *testing.T) {
	srv := newRPCServer(t, func(method string, params []json.RawMessage) any {
		require.Equal(t, "get_block_by_number", method)
		var n string
		require.NoError(t, json.Unmarshal(params[0], &n))
		if n == "0x5" {
			return map[string]any{
				"header":       map[string]any{"version": "0x0", "number": "0x5", "hash": common.HexToHash("0x05").Hex(), "parent_hash": common.HexToHash("0x04").Hex(), "timestamp": "0x0"},
				"transactions": []any{},
			}
		}
		return nil
	})

	c, err := Dial(context.Background(), srv.URL, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	block, err := c.GetBlockByNumber(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, block)
	require.Equal(t, common.HexToHash("0x04"), block.Header.ParentHash)

	missing, err := c.GetBlockByNumber(context.Background(), 6)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestClient_GetHeaderByNumber(t *testing.T) {
	srv := newRPCServer(t, func(method string, params []json.RawMessage) any {
		require.Equal(t, "get_header_by_number", method)
		var n string
		require.NoError(t, json.Unmarshal(params[0], &n))
		if n == "0x7" {
			return map[string]any{"version": "0x0", "number": "0x7", "hash": common.HexToHash("0x07").Hex(), "parent_hash": common.HexToHash("0x06").Hex(), "timestamp": "0x0"}
		}
		return nil
	})

	c, err := Dial(context.Background(), srv.URL, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	header, err := c.GetHeaderByNumber(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, header)
	require.Equal(t, common.HexToHash("0x07"), header.Hash)

	missing, err := c.GetHeaderByNumber(context.Background(), 8)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestClient_GetTransactionStatus(t *testing.T) {
	srv := newRPCServer(t, func(method string, _ []json.RawMessage) any {
		require.Equal(t, "get_transaction", method)
		return map[string]any{
			"transaction": nil,
			"tx_status":   map[string]any{"status": "proposed", "block_hash": nil},
		}
	})

	c, err := Dial(context.Background(), srv.URL, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	tx, err := c.GetTransaction(context.Background(), common.HexToHash("0xaa"))
	require.NoError(t, err)
	require.Equal(t, types.TxStatusProposed, tx.TxStatus.Status)
}

func TestIndexer_WaitUntilSync(t *testing.T) {
	var indexerCalls atomic.Int32
	node := newRPCServer(t, func(method string, _ []json.RawMessage) any {
		return "0xa"
	})
	indexer := newRPCServer(t, func(method string, _ []json.RawMessage) any {
		require.Equal(t, "get_indexer_tip", method)
		n := indexerCalls.Add(1)
		if n < 3 {
			return map[string]any{"block_hash": common.HexToHash("0x01").Hex(), "block_number": "0x8"}
		}
		return map[string]any{"block_hash": common.HexToHash("0x01").Hex(), "block_number": "0xa"}
	})

	ctx := context.Background()
	nodeClient, err := Dial(ctx, node.URL, zap.NewNop())
	require.NoError(t, err)
	idx, err := DialIndexer(ctx, indexer.URL, nodeClient, time.Millisecond, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, idx.WaitUntilSync(ctx))
	require.Equal(t, int32(3), indexerCalls.Load())
}

func TestIndexer_WaitUntilSyncCancelled(t *testing.T) {
	node := newRPCServer(t, func(string, []json.RawMessage) any { return "0xa" })
	indexer := newRPCServer(t, func(string, []json.RawMessage) any {
		return map[string]any{"block_hash": common.HexToHash("0x01").Hex(), "block_number": "0x1"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	nodeClient, err := Dial(ctx, node.URL, zap.NewNop())
	require.NoError(t, err)
	idx, err := DialIndexer(ctx, indexer.URL, nodeClient, time.Millisecond, zap.NewNop())
	require.NoError(t, err)

	require.ErrorIs(t, idx.WaitUntilSync(ctx), context.DeadlineExceeded)
}

func TestIndexer_GetCells(t *testing.T) {
	srv := newRPCServer(t, func(method string, params []json.RawMessage) any {
		require.Equal(t, "get_cells", method)
		require.Len(t, params, 4)
		require.Equal(t, "null", string(params[3]))
		return map[string]any{
			"objects": []any{map[string]any{
				"output": map[string]any{
					"capacity": "0x174876e800",
					"lock":     map[string]any{"code_hash": common.HexToHash("0x01").Hex(), "hash_type": "type", "args": "0x"},
					"type":     nil,
				},
				"output_data":  "0x",
				"out_point":    map[string]any{"tx_hash": common.HexToHash("0x02").Hex(), "index": "0x0"},
				"block_number": "0x1",
				"tx_index":     "0x0",
			}},
			"last_cursor": "0xdead",
		}
	})

	idx, err := DialIndexer(context.Background(), srv.URL, nil, time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	cells, err := idx.GetCells(context.Background(), &types.SearchKey{ScriptType: types.ScriptTypeLock}, 10, "")
	require.NoError(t, err)
	require.Len(t, cells.Objects, 1)
	require.Equal(t, "0xdead", cells.LastCursor)
	require.Equal(t, uint64(100_000_000_000), uint64(cells.Objects[0].Output.Capacity))
}
