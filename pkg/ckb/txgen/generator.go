// Package txgen builds unsigned CKB transactions for custody cell creation
// and sUDT minting, funding them from the committee's plain capacity cells.
package txgen

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/chainsafe/ckb-bridge-relayer/pkg/asset"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/molecule"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

const collectPageSize = 100

var (
	// ErrInsufficientCapacity is returned when the committee cannot fund a transaction.
	ErrInsufficientCapacity = errors.New("insufficient committee capacity")
	// ErrBridgeCellNotFound is returned when minting an asset whose custody cell does not exist.
	ErrBridgeCellNotFound = errors.New("bridge cell not found")
)

// CellCollector pages through live cells.
type CellCollector interface {
	GetCells(ctx context.Context, key *types.SearchKey, limit uint64, cursor string) (*types.LiveCells, error)
}

// ScriptDep is a deployed script: how to reference it and which cell carries its code.
type ScriptDep struct {
	CodeHash common.Hash
	HashType types.HashType
	CellDep  types.CellDep
}

// Config holds the deployed scripts and fee policy.
type Config struct {
	Secp256k1  ScriptDep
	SudtType   ScriptDep
	BridgeLock ScriptDep
	// Fee is the fixed fee in shannons paid by every generated transaction.
	Fee uint64
}

// MintRequest is one sUDT output to create.
type MintRequest struct {
	Asset     *asset.Asset
	Recipient *types.Script
	Amount    *big.Int
	ExtraData []byte
}

// UnsignedTx is a built transaction and the inputs the committee must sign.
type UnsignedTx struct {
	Tx           *types.Transaction
	SigningGroup []int
}

// Generator assembles transactions.
type Generator struct {
	collector CellCollector
	cfg       Config
	logger    *zap.Logger
}

// NewGenerator creates a generator.
func NewGenerator(collector CellCollector, cfg Config, logger *zap.Logger) *Generator {
	return &Generator{collector: collector, cfg: cfg, logger: logger}
}

// BridgeLockscript returns the custody lock of a.
func (g *Generator) BridgeLockscript(a *asset.Asset) *types.Script {
	return a.BridgeLockscript(g.cfg.BridgeLock.CodeHash, g.cfg.BridgeLock.HashType)
}

// SudtType returns the sUDT type script whose args are the custody lock hash of a.
func (g *Generator) SudtType(a *asset.Asset) *types.Script {
	lockHash := g.BridgeLockscript(a).Hash()
	return &types.Script{
		CodeHash: g.cfg.SudtType.CodeHash,
		HashType: g.cfg.SudtType.HashType,
		Args:     lockHash.Bytes(),
	}
}

// CreateBridgeCells builds one minimal-capacity cell per custody lock, funded by from.
func (g *Generator) CreateBridgeCells(ctx context.Context, from *types.Script, locks []*types.Script) (*UnsignedTx, error) {
	if len(locks) == 0 {
		return nil, fmt.Errorf("no bridge cells to create")
	}

	tx := g.newTx(g.cfg.Secp256k1.CellDep)
	var need uint64
	for _, lock := range locks {
		out := types.CellOutput{Lock: *lock}
		out.Capacity = hexutil.Uint64(out.OccupiedCapacity(nil))
		need += uint64(out.Capacity)
		tx.Outputs = append(tx.Outputs, out)
		tx.OutputsData = append(tx.OutputsData, hexutil.Bytes{})
	}

	group, err := g.fund(ctx, tx, from, need)
	if err != nil {
		return nil, err
	}
	return &UnsignedTx{Tx: tx, SigningGroup: group}, nil
}

// Mint builds a transaction minting every request. Each distinct asset's
// custody cell is consumed and recreated unchanged so the sUDT owner check passes.
func (g *Generator) Mint(ctx context.Context, from *types.Script, reqs []*MintRequest) (*UnsignedTx, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("no mint requests")
	}

	tx := g.newTx(g.cfg.Secp256k1.CellDep, g.cfg.SudtType.CellDep, g.cfg.BridgeLock.CellDep)

	var need uint64
	for _, req := range reqs {
		amount, err := molecule.Uint128(req.Amount)
		if err != nil {
			return nil, fmt.Errorf("mint amount: %w", err)
		}
		data := append(amount, req.ExtraData...)
		out := types.CellOutput{Lock: *req.Recipient, Type: g.SudtType(req.Asset)}
		out.Capacity = hexutil.Uint64(out.OccupiedCapacity(data))
		need += uint64(out.Capacity)
		tx.Outputs = append(tx.Outputs, out)
		tx.OutputsData = append(tx.OutputsData, data)
	}

	// committee inputs are placed first; bridge cells follow them
	group, err := g.fund(ctx, tx, from, need)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, req := range reqs {
		key := req.Asset.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		cell, err := g.findBridgeCell(ctx, req.Asset)
		if err != nil {
			return nil, err
		}
		tx.Inputs = append(tx.Inputs, types.CellInput{PreviousOutput: cell.OutPoint})
		tx.Outputs = append(tx.Outputs, cell.Output)
		tx.OutputsData = append(tx.OutputsData, cell.OutputData)
	}
	for len(tx.Witnesses) < len(tx.Inputs) {
		tx.Witnesses = append(tx.Witnesses, hexutil.Bytes{})
	}

	return &UnsignedTx{Tx: tx, SigningGroup: group}, nil
}

func (g *Generator) newTx(deps ...types.CellDep) *types.Transaction {
	return &types.Transaction{
		CellDeps:    deps,
		HeaderDeps:  []common.Hash{},
		Inputs:      []types.CellInput{},
		Outputs:     []types.CellOutput{},
		OutputsData: []hexutil.Bytes{},
		Witnesses:   []hexutil.Bytes{},
	}
}

func (g *Generator) findBridgeCell(ctx context.Context, a *asset.Asset) (*types.Cell, error) {
	key := &types.SearchKey{Script: *g.BridgeLockscript(a), ScriptType: types.ScriptTypeLock}
	page, err := g.collector.GetCells(ctx, key, 1, "")
	if err != nil {
		return nil, fmt.Errorf("search bridge cell: %w", err)
	}
	if len(page.Objects) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrBridgeCellNotFound, a.Chain, a.Address)
	}
	return page.Objects[0], nil
}

// fund prepends committee capacity cells covering need plus fee and appends a change output.
// It returns the input indexes owned by from.
func (g *Generator) fund(ctx context.Context, tx *types.Transaction, from *types.Script, need uint64) ([]int, error) {
	change := types.CellOutput{Lock: *from}
	minChange := change.OccupiedCapacity(nil)
	target := need + g.cfg.Fee

	var (
		inputs    []types.CellInput
		collected uint64
		cursor    string
	)
	key := &types.SearchKey{Script: *from, ScriptType: types.ScriptTypeLock}
	for collected < target+minChange {
		page, err := g.collector.GetCells(ctx, key, collectPageSize, cursor)
		if err != nil {
			return nil, fmt.Errorf("collect committee cells: %w", err)
		}
		for _, cell := range page.Objects {
			if cell.Output.Type != nil || len(cell.OutputData) > 0 {
				continue
			}
			inputs = append(inputs, types.CellInput{PreviousOutput: cell.OutPoint})
			collected += uint64(cell.Output.Capacity)
			if collected >= target+minChange {
				break
			}
		}
		if len(page.Objects) < collectPageSize || page.LastCursor == "" || page.LastCursor == cursor {
			break
		}
		cursor = page.LastCursor
	}
	if collected < target+minChange {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientCapacity, collected, target+minChange)
	}

	change.Capacity = hexutil.Uint64(collected - target)
	tx.Inputs = append(inputs, tx.Inputs...)
	tx.Outputs = append(tx.Outputs, change)
	tx.OutputsData = append(tx.OutputsData, hexutil.Bytes{})

	group := make([]int, len(inputs))
	for i := range group {
		group[i] = i
	}
	tx.Witnesses = make([]hexutil.Bytes, len(tx.Inputs))
	for i := range tx.Witnesses {
		tx.Witnesses[i] = hexutil.Bytes{}
	}

	g.logger.Debug("Funded transaction",
		zap.Int("inputs", len(inputs)),
		zap.Uint64("collected", collected),
		zap.Uint64("fee", g.cfg.Fee))
	return group, nil
}
