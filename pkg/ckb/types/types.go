// Package types defines the CKB chain objects exchanged with the node and
// indexer JSON-RPC endpoints together with their molecule serialization.
package types

import (
	"bytes"
	"fmt"

	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/hash"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/molecule"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// HashType selects how a script's code hash is matched against cell deps.
type HashType string

const (
	HashTypeData  HashType = "data"
	HashTypeType  HashType = "type"
	HashTypeData1 HashType = "data1"
	HashTypeData2 HashType = "data2"
)

// Byte returns the molecule encoding of the hash type.
func (h HashType) Byte() (byte, error) {
	switch h {
	case HashTypeData:
		return 0, nil
	case HashTypeType:
		return 1, nil
	case HashTypeData1:
		return 2, nil
	case HashTypeData2:
		return 4, nil
	default:
		return 0, fmt.Errorf("unknown hash type %q", string(h))
	}
}

// DepType describes how a cell dep is resolved.
type DepType string

const (
	DepTypeCode     DepType = "code"
	DepTypeDepGroup DepType = "dep_group"
)

func (d DepType) byte() byte {
	if d == DepTypeDepGroup {
		return 1
	}
	return 0
}

// ScriptType selects which script of a cell an indexer search matches.
type ScriptType string

const (
	ScriptTypeLock ScriptType = "lock"
	ScriptTypeType ScriptType = "type"
)

// Script is a lock or type script.
type Script struct {
	CodeHash common.Hash   `json:"code_hash"`
	HashType HashType      `json:"hash_type"`
	Args     hexutil.Bytes `json:"args"`
}

// Serialize returns the molecule encoding of the script.
func (s *Script) Serialize() ([]byte, error) {
	ht, err := s.HashType.Byte()
	if err != nil {
		return nil, err
	}
	return molecule.Table(s.CodeHash.Bytes(), []byte{ht}, molecule.Bytes(s.Args)), nil
}

// Hash returns the script hash. Scripts with an unknown hash type hash to the zero value.
func (s *Script) Hash() common.Hash {
	data, err := s.Serialize()
	if err != nil {
		return common.Hash{}
	}
	return hash.Blake256(data)
}

// Equals reports whether two scripts are identical.
func (s *Script) Equals(o *Script) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.CodeHash == o.CodeHash && s.HashType == o.HashType && bytes.Equal(s.Args, o.Args)
}

// OccupiedBytes is the on-chain footprint of the script.
func (s *Script) OccupiedBytes() uint64 {
	return uint64(common.HashLength + 1 + len(s.Args))
}

// OutPoint references a cell by creating transaction and output index.
type OutPoint struct {
	TxHash common.Hash `json:"tx_hash"`
	Index  hexutil.Uint `json:"index"`
}

func (o *OutPoint) serialize() []byte {
	return append(o.TxHash.Bytes(), molecule.Uint32(uint32(o.Index))...)
}

// CellInput consumes a live cell.
type CellInput struct {
	Since          hexutil.Uint64 `json:"since"`
	PreviousOutput OutPoint       `json:"previous_output"`
}

// CellOutput describes a cell created by a transaction.
type CellOutput struct {
	Capacity hexutil.Uint64 `json:"capacity"`
	Lock     Script         `json:"lock"`
	Type     *Script        `json:"type"`
}

func (c *CellOutput) serialize() ([]byte, error) {
	lock, err := c.Lock.Serialize()
	if err != nil {
		return nil, err
	}
	var typ []byte
	if c.Type != nil {
		if typ, err = c.Type.Serialize(); err != nil {
			return nil, err
		}
	}
	return molecule.Table(molecule.Uint64(uint64(c.Capacity)), lock, molecule.Option(typ)), nil
}

// OccupiedCapacity returns the minimal capacity in shannons the output needs to hold data.
func (c *CellOutput) OccupiedCapacity(data []byte) uint64 {
	size := uint64(8) + c.Lock.OccupiedBytes() + uint64(len(data))
	if c.Type != nil {
		size += c.Type.OccupiedBytes()
	}
	return size * ShannonsPerCKB
}

// ShannonsPerCKB is the capacity unit conversion factor.
const ShannonsPerCKB uint64 = 100_000_000

// CellDep makes code or a dep group available to scripts of a transaction.
type CellDep struct {
	OutPoint OutPoint `json:"out_point"`
	DepType  DepType  `json:"dep_type"`
}

// Transaction is the JSON-RPC transaction body.
type Transaction struct {
	Version     hexutil.Uint    `json:"version"`
	CellDeps    []CellDep       `json:"cell_deps"`
	HeaderDeps  []common.Hash   `json:"header_deps"`
	Inputs      []CellInput     `json:"inputs"`
	Outputs     []CellOutput    `json:"outputs"`
	OutputsData []hexutil.Bytes `json:"outputs_data"`
	Witnesses   []hexutil.Bytes `json:"witnesses"`
}

// SerializeRaw returns the molecule encoding of the transaction without witnesses.
func (tx *Transaction) SerializeRaw() ([]byte, error) {
	deps := make([][]byte, len(tx.CellDeps))
	for i := range tx.CellDeps {
		d := tx.CellDeps[i]
		deps[i] = append(d.OutPoint.serialize(), d.DepType.byte())
	}
	headers := make([][]byte, len(tx.HeaderDeps))
	for i, h := range tx.HeaderDeps {
		headers[i] = h.Bytes()
	}
	inputs := make([][]byte, len(tx.Inputs))
	for i := range tx.Inputs {
		in := tx.Inputs[i]
		inputs[i] = append(molecule.Uint64(uint64(in.Since)), in.PreviousOutput.serialize()...)
	}
	outputs := make([][]byte, len(tx.Outputs))
	for i := range tx.Outputs {
		out, err := tx.Outputs[i].serialize()
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		outputs[i] = out
	}
	data := make([][]byte, len(tx.OutputsData))
	for i, d := range tx.OutputsData {
		data[i] = molecule.Bytes(d)
	}

	return molecule.Table(
		molecule.Uint32(uint32(tx.Version)),
		molecule.FixVec(deps),
		molecule.FixVec(headers),
		molecule.FixVec(inputs),
		molecule.DynVec(outputs),
		molecule.DynVec(data),
	), nil
}

// ComputeHash returns the transaction hash.
func (tx *Transaction) ComputeHash() (common.Hash, error) {
	raw, err := tx.SerializeRaw()
	if err != nil {
		return common.Hash{}, err
	}
	return hash.Blake256(raw), nil
}

// TransactionView is a transaction as returned inside blocks and lookups.
type TransactionView struct {
	Transaction
	Hash common.Hash `json:"hash"`
}

// WitnessArgs is the conventional witness layout.
type WitnessArgs struct {
	Lock       []byte
	InputType  []byte
	OutputType []byte
}

func optBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return molecule.Bytes(b)
}

// Serialize returns the molecule encoding of the witness args.
func (w *WitnessArgs) Serialize() []byte {
	return molecule.Table(
		molecule.Option(optBytes(w.Lock)),
		molecule.Option(optBytes(w.InputType)),
		molecule.Option(optBytes(w.OutputType)),
	)
}

// Header is a block header.
type Header struct {
	Version    hexutil.Uint   `json:"version"`
	Number     hexutil.Uint64 `json:"number"`
	Hash       common.Hash    `json:"hash"`
	ParentHash common.Hash    `json:"parent_hash"`
	Timestamp  hexutil.Uint64 `json:"timestamp"`
}

// Block is a block with its transactions.
type Block struct {
	Header       Header            `json:"header"`
	Transactions []TransactionView `json:"transactions"`
}

// TxStatus is the pool/chain state of a transaction as reported by the node.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusProposed  TxStatus = "proposed"
	TxStatusCommitted TxStatus = "committed"
	TxStatusUnknown   TxStatus = "unknown"
	TxStatusRejected  TxStatus = "rejected"
)

// TransactionStatus carries a status and, once committed, the containing block.
type TransactionStatus struct {
	Status    TxStatus     `json:"status"`
	BlockHash *common.Hash `json:"block_hash"`
	Reason    *string      `json:"reason"`
}

// TransactionWithStatus is the get_transaction result.
type TransactionWithStatus struct {
	Transaction *TransactionView  `json:"transaction"`
	TxStatus    TransactionStatus `json:"tx_status"`
}

// SearchFilter narrows an indexer search.
type SearchFilter struct {
	Script *Script `json:"script,omitempty"`
}

// SearchKey selects cells by lock or type script.
type SearchKey struct {
	Script     Script        `json:"script"`
	ScriptType ScriptType    `json:"script_type"`
	Filter     *SearchFilter `json:"filter,omitempty"`
}

// Cell is a live cell reported by the indexer.
type Cell struct {
	Output      CellOutput     `json:"output"`
	OutputData  hexutil.Bytes  `json:"output_data"`
	OutPoint    OutPoint       `json:"out_point"`
	BlockNumber hexutil.Uint64 `json:"block_number"`
	TxIndex     hexutil.Uint   `json:"tx_index"`
}

// LiveCells is a page of indexer results.
type LiveCells struct {
	Objects    []*Cell `json:"objects"`
	LastCursor string  `json:"last_cursor"`
}

// IndexerTip is the last block the indexer has processed.
type IndexerTip struct {
	BlockHash   common.Hash    `json:"block_hash"`
	BlockNumber hexutil.Uint64 `json:"block_number"`
}
