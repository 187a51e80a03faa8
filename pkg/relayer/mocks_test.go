package relayer

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/chainsafe/ckb-bridge-relayer/pkg/asset"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/address"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/txgen"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/types"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/db"
)

// MockChainClient is a mock implementation of ChainClient
type MockChainClient struct {
	GetTipHeaderFunc      func(ctx context.Context) (*types.Header, error)
	GetBlockByNumberFunc  func(ctx context.Context, height uint64) (*types.Block, error)
	GetHeaderByNumberFunc func(ctx context.Context, height uint64) (*types.Header, error)
	GetTransactionFunc    func(ctx context.Context, txHash common.Hash) (*types.TransactionWithStatus, error)
	SendTransactionFunc   func(ctx context.Context, tx *types.Transaction) (common.Hash, error)
}

func (m *MockChainClient) GetTipHeader(ctx context.Context) (*types.Header, error) {
	if m.GetTipHeaderFunc != nil {
		return m.GetTipHeaderFunc(ctx)
	}
	return &types.Header{}, nil
}

func (m *MockChainClient) GetBlockByNumber(ctx context.Context, height uint64) (*types.Block, error) {
	if m.GetBlockByNumberFunc != nil {
		return m.GetBlockByNumberFunc(ctx, height)
	}
	return nil, nil
}

func (m *MockChainClient) GetHeaderByNumber(ctx context.Context, height uint64) (*types.Header, error) {
	if m.GetHeaderByNumberFunc != nil {
		return m.GetHeaderByNumberFunc(ctx, height)
	}
	return &types.Header{Number: hexUint64(height), Hash: blockHash(height)}, nil
}

func (m *MockChainClient) GetTransaction(ctx context.Context, txHash common.Hash) (*types.TransactionWithStatus, error) {
	if m.GetTransactionFunc != nil {
		return m.GetTransactionFunc(ctx, txHash)
	}
	return nil, nil
}

func (m *MockChainClient) SendTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	if m.SendTransactionFunc != nil {
		return m.SendTransactionFunc(ctx, tx)
	}
	return common.Hash{}, nil
}

// MockIndexer is a mock implementation of CellIndexer
type MockIndexer struct {
	WaitUntilSyncFunc func(ctx context.Context) error
	GetCellsFunc      func(ctx context.Context, key *types.SearchKey, limit uint64, cursor string) (*types.LiveCells, error)
}

func (m *MockIndexer) WaitUntilSync(ctx context.Context) error {
	if m.WaitUntilSyncFunc != nil {
		return m.WaitUntilSyncFunc(ctx)
	}
	return nil
}

func (m *MockIndexer) GetCells(ctx context.Context, key *types.SearchKey, limit uint64, cursor string) (*types.LiveCells, error) {
	if m.GetCellsFunc != nil {
		return m.GetCellsFunc(ctx, key, limit, cursor)
	}
	return &types.LiveCells{}, nil
}

// MockGenerator is a mock implementation of TxGenerator
type MockGenerator struct {
	CreateBridgeCellsFunc func(ctx context.Context, from *types.Script, locks []*types.Script) (*txgen.UnsignedTx, error)
	MintFunc              func(ctx context.Context, from *types.Script, reqs []*txgen.MintRequest) (*txgen.UnsignedTx, error)
}

func (m *MockGenerator) BridgeLockscript(a *asset.Asset) *types.Script {
	return a.BridgeLockscript(testBridgeLockCodeHash, types.HashTypeType)
}

func (m *MockGenerator) CreateBridgeCells(ctx context.Context, from *types.Script, locks []*types.Script) (*txgen.UnsignedTx, error) {
	if m.CreateBridgeCellsFunc != nil {
		return m.CreateBridgeCellsFunc(ctx, from, locks)
	}
	return &txgen.UnsignedTx{Tx: &types.Transaction{}, SigningGroup: []int{0}}, nil
}

func (m *MockGenerator) Mint(ctx context.Context, from *types.Script, reqs []*txgen.MintRequest) (*txgen.UnsignedTx, error) {
	if m.MintFunc != nil {
		return m.MintFunc(ctx, from, reqs)
	}
	return &txgen.UnsignedTx{Tx: &types.Transaction{}, SigningGroup: []int{0}}, nil
}

// MockSigner is a mock implementation of Signer
type MockSigner struct {
	SignTransactionFunc func(tx *types.Transaction, group []int) error
}

func (m *MockSigner) SignTransaction(tx *types.Transaction, group []int) error {
	if m.SignTransactionFunc != nil {
		return m.SignTransactionFunc(tx, group)
	}
	return nil
}

// MemoryStore is an in-memory Store. Err fields make the matching call fail.
type MemoryStore struct {
	mu      sync.Mutex
	kv      map[string]string
	burns   map[string]*db.Burn
	mints   []*db.Mint
	unlocks map[string]*db.Unlock

	CreateUnlockErr error
	UpdateMintsErr  error
	UpdateMintsHook func(mints []*db.Mint)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		kv:      make(map[string]string),
		burns:   make(map[string]*db.Burn),
		unlocks: make(map[string]*db.Unlock),
	}
}

func (s *MemoryStore) GetKV(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv[key], nil
}

func (s *MemoryStore) SetKV(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	return nil
}

func (s *MemoryStore) CreateBurns(_ context.Context, burns []*db.Burn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range burns {
		if _, ok := s.burns[b.CkbTxHash]; ok {
			continue
		}
		cp := *b
		s.burns[b.CkbTxHash] = &cp
	}
	return nil
}

func (s *MemoryStore) GetUnconfirmedBurns(_ context.Context, height uint64) ([]*db.Burn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*db.Burn
	for _, b := range s.burns {
		if b.ConfirmStatus == db.BurnUnconfirmed && b.BlockNumber <= height {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].CkbTxHash < out[j].CkbTxHash
	})
	return out, nil
}

func (s *MemoryStore) ConfirmBurns(_ context.Context, txHashes []string, confirmNumber uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, h := range txHashes {
		b, ok := s.burns[h]
		if !ok || b.ConfirmStatus != db.BurnUnconfirmed {
			continue
		}
		b.ConfirmStatus = db.BurnConfirmed
		b.ConfirmNumber = confirmNumber
		n++
	}
	return n, nil
}

func (s *MemoryStore) RollbackBurns(_ context.Context, height uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for h, b := range s.burns {
		if b.ConfirmStatus == db.BurnUnconfirmed && b.BlockNumber > height {
			delete(s.burns, h)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Burn(txHash string) *db.Burn {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.burns[txHash]
	if !ok {
		return nil
	}
	cp := *b
	return &cp
}

func (s *MemoryStore) BurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.burns)
}

func (s *MemoryStore) AddMints(mints ...*db.Mint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range mints {
		cp := *m
		if cp.Status == "" {
			cp.Status = db.MintPending
		}
		s.mints = append(s.mints, &cp)
	}
}

func (s *MemoryStore) GetPendingMints(_ context.Context, limit int) ([]*db.Mint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*db.Mint
	for _, m := range s.mints {
		if m.Status != db.MintPending {
			continue
		}
		cp := *m
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) CountPendingMints(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.mints {
		if m.Status == db.MintPending {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) UpdateMints(_ context.Context, mints []*db.Mint) error {
	if s.UpdateMintsHook != nil {
		s.UpdateMintsHook(mints)
	}
	if s.UpdateMintsErr != nil {
		return s.UpdateMintsErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range mints {
		for _, m := range s.mints {
			if m.ID == u.ID {
				m.Status = u.Status
				m.MintHash = u.MintHash
				m.Message = u.Message
			}
		}
	}
	return nil
}

func (s *MemoryStore) MarkMintSuccessByHash(_ context.Context, mintHash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.mints {
		if m.MintHash == mintHash {
			m.Status = db.MintSuccess
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Mint(id string) *db.Mint {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.mints {
		if m.ID == id {
			cp := *m
			return &cp
		}
	}
	return nil
}

func (s *MemoryStore) CreateUnlock(_ context.Context, u *db.Unlock) error {
	if s.CreateUnlockErr != nil {
		return s.CreateUnlockErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s/%s", u.Chain, u.CkbTxHash)
	if _, ok := s.unlocks[key]; ok {
		return nil
	}
	cp := *u
	s.unlocks[key] = &cp
	return nil
}

func (s *MemoryStore) Unlocks() []*db.Unlock {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*db.Unlock, 0, len(s.unlocks))
	for _, u := range s.unlocks {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CkbTxHash < out[j].CkbTxHash })
	return out
}

var (
	testSudtCodeHash       = common.HexToHash("0x01")
	testRecipientCodeHash  = common.HexToHash("0x02")
	testBridgeLockCodeHash = common.HexToHash("0x03")
	testEthAsset           = "0x0000000000000000000000000000000000000000"
)

func hexUint64(v uint64) hexutil.Uint64 {
	return hexutil.Uint64(v)
}

func blockHash(height uint64) common.Hash {
	return common.BytesToHash([]byte(fmt.Sprintf("block-%d", height)))
}

func txHash(name string) common.Hash {
	return common.BytesToHash([]byte(name))
}

func testScripts() *Scripts {
	return &Scripts{
		CommitteeLock: &types.Script{
			CodeHash: address.SecpBlake160CodeHash,
			HashType: types.HashTypeType,
			Args:     common.FromHex("0x1111111111111111111111111111111111111111"),
		},
		SudtCodeHash:       testSudtCodeHash,
		RecipientCodeHash:  testRecipientCodeHash,
		BridgeLockCodeHash: testBridgeLockCodeHash,
		BridgeLockHashType: types.HashTypeType,
	}
}

func userLock(b byte) types.Script {
	args := make([]byte, 20)
	for i := range args {
		args[i] = b
	}
	return types.Script{CodeHash: address.SecpBlake160CodeHash, HashType: types.HashTypeType, Args: args}
}

func userAddress(b byte) string {
	lock := userLock(b)
	addr, err := address.Encode(address.PrefixTestnet, &lock)
	if err != nil {
		panic(err)
	}
	return addr
}

// testChain is an in-memory CKB node: a canonical chain plus known transactions.
type testChain struct {
	mu     sync.Mutex
	blocks map[uint64]*types.Block
	txs    map[common.Hash]*types.TransactionWithStatus
	tip    uint64
}

func newTestChain() *testChain {
	return &testChain{
		blocks: make(map[uint64]*types.Block),
		txs:    make(map[common.Hash]*types.TransactionWithStatus),
	}
}

// addBlock appends a block at height on top of blockHash(height-1).
func (c *testChain) addBlock(height uint64, txs ...types.TransactionView) *types.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := &types.Block{
		Header: types.Header{
			Number:     hexUint64(height),
			Hash:       blockHash(height),
			ParentHash: blockHash(height - 1),
		},
		Transactions: txs,
	}
	c.blocks[height] = b
	if height > c.tip {
		c.tip = height
	}
	for i := range txs {
		c.txs[txs[i].Hash] = &types.TransactionWithStatus{
			Transaction: &txs[i],
			TxStatus:    types.TransactionStatus{Status: types.TxStatusCommitted},
		}
	}
	return b
}

func (c *testChain) addTx(tx types.TransactionView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txs[tx.Hash] = &types.TransactionWithStatus{
		Transaction: &tx,
		TxStatus:    types.TransactionStatus{Status: types.TxStatusCommitted},
	}
}

func (c *testChain) client() *MockChainClient {
	return &MockChainClient{
		GetTipHeaderFunc: func(_ context.Context) (*types.Header, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			return &types.Header{Number: hexUint64(c.tip), Hash: blockHash(c.tip)}, nil
		},
		GetBlockByNumberFunc: func(_ context.Context, height uint64) (*types.Block, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.blocks[height], nil
		},
		GetTransactionFunc: func(_ context.Context, h common.Hash) (*types.TransactionWithStatus, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.txs[h], nil
		},
	}
}

// burnTx builds a burn of amount of the ETH test asset and registers the cell it spends.
func burnTx(c *testChain, name string, amount int64) types.TransactionView {
	scripts := testScripts()
	a, err := asset.New(asset.ChainETH, testEthAsset, scripts.CommitteeLock.Hash())
	if err != nil {
		panic(err)
	}

	prev := types.TransactionView{Hash: txHash(name + "-prev")}
	prev.Outputs = []types.CellOutput{{
		Lock: userLock(0x22),
		Type: &types.Script{
			CodeHash: testSudtCodeHash,
			HashType: types.HashTypeType,
			Args:     a.BridgeLockHash(testBridgeLockCodeHash, types.HashTypeType).Bytes(),
		},
	}}
	c.addTx(prev)

	data := &asset.RecipientCellData{
		RecipientAddress:   []byte("0x2222222222222222222222222222222222222222"),
		Chain:              asset.ChainETH,
		Asset:              []byte(testEthAsset),
		BridgeLockCodeHash: testBridgeLockCodeHash,
		OwnerLockHash:      scripts.CommitteeLock.Hash(),
		Amount:             big.NewInt(amount),
		Fee:                big.NewInt(1),
	}
	encoded, err := data.Encode()
	if err != nil {
		panic(err)
	}

	tx := types.TransactionView{Hash: txHash(name)}
	tx.Inputs = []types.CellInput{{PreviousOutput: types.OutPoint{TxHash: prev.Hash, Index: 0}}}
	tx.Outputs = []types.CellOutput{{
		Lock: userLock(0x22),
		Type: &types.Script{CodeHash: testRecipientCodeHash, HashType: types.HashTypeType},
	}}
	tx.OutputsData = []hexutil.Bytes{encoded}
	return tx
}

// mintTx builds a committee mint and registers the committee cell it spends.
func mintTx(c *testChain, name string) types.TransactionView {
	scripts := testScripts()
	prev := types.TransactionView{Hash: txHash(name + "-prev")}
	prev.Outputs = []types.CellOutput{{Lock: *scripts.CommitteeLock}}
	c.addTx(prev)

	tx := types.TransactionView{Hash: txHash(name)}
	tx.Inputs = []types.CellInput{{PreviousOutput: types.OutPoint{TxHash: prev.Hash, Index: 0}}}
	tx.Outputs = []types.CellOutput{{
		Lock: userLock(0x33),
		Type: &types.Script{CodeHash: testSudtCodeHash, HashType: types.HashTypeType},
	}}
	tx.OutputsData = []hexutil.Bytes{make([]byte, 16)}
	return tx
}
