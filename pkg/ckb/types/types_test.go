package types

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

var secpCodeHash = common.HexToHash("0x9bd7e06f3ecf4be0f2fcd2188b23f1b9fcc88e5d4b65a8637b17723bbda3cce8")

func TestScript_Serialize(t *testing.T) {
	s := &Script{CodeHash: secpCodeHash, HashType: HashTypeType, Args: make([]byte, 20)}
	enc, err := s.Serialize()
	require.NoError(t, err)
	require.Len(t, enc, 16+32+1+4+20)
	require.Equal(t, "49000000100000003000000031000000", hex.EncodeToString(enc[:16]))
	require.Equal(t, byte(1), enc[48])
}

func TestScript_HashDiffersByArgs(t *testing.T) {
	a := &Script{CodeHash: secpCodeHash, HashType: HashTypeType, Args: []byte{1}}
	b := &Script{CodeHash: secpCodeHash, HashType: HashTypeType, Args: []byte{2}}
	require.NotEqual(t, a.Hash(), b.Hash())
	require.Equal(t, a.Hash(), (&Script{CodeHash: secpCodeHash, HashType: HashTypeType, Args: []byte{1}}).Hash())
}

func TestScript_UnknownHashType(t *testing.T) {
	s := &Script{CodeHash: secpCodeHash, HashType: "bogus"}
	_, err := s.Serialize()
	require.Error(t, err)
	require.Equal(t, common.Hash{}, s.Hash())
}

func TestWitnessArgs_Placeholder(t *testing.T) {
	w := &WitnessArgs{Lock: make([]byte, 65)}
	enc := w.Serialize()
	require.Len(t, enc, 85)
	require.Equal(t, "5500000010000000550000005500000041000000", hex.EncodeToString(enc[:20]))
}

func TestCellOutput_OccupiedCapacity(t *testing.T) {
	out := &CellOutput{
		Lock: Script{CodeHash: secpCodeHash, HashType: HashTypeType, Args: make([]byte, 20)},
	}
	require.Equal(t, uint64(61)*ShannonsPerCKB, out.OccupiedCapacity(nil))

	out.Type = &Script{CodeHash: secpCodeHash, HashType: HashTypeData, Args: make([]byte, 32)}
	require.Equal(t, uint64(61+65+16)*ShannonsPerCKB, out.OccupiedCapacity(make([]byte, 16)))
}

func TestTransaction_ComputeHashStable(t *testing.T) {
	tx := &Transaction{
		CellDeps: []CellDep{{OutPoint: OutPoint{TxHash: common.HexToHash("0x01"), Index: 0}, DepType: DepTypeDepGroup}},
		Inputs:   []CellInput{{PreviousOutput: OutPoint{TxHash: common.HexToHash("0x02"), Index: 1}}},
		Outputs: []CellOutput{{
			Capacity: hexutil.Uint64(100 * ShannonsPerCKB),
			Lock:     Script{CodeHash: secpCodeHash, HashType: HashTypeType, Args: make([]byte, 20)},
		}},
		OutputsData: []hexutil.Bytes{{}},
		Witnesses:   []hexutil.Bytes{{}},
	}
	h1, err := tx.ComputeHash()
	require.NoError(t, err)

	// witnesses are not part of the hash
	tx.Witnesses = []hexutil.Bytes{{0x01, 0x02}}
	h2, err := tx.ComputeHash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	tx.Outputs[0].Capacity++
	h3, err := tx.ComputeHash()
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}

func TestBlock_JSON(t *testing.T) {
	raw := `{
		"header": {"version":"0x0","number":"0x10","hash":"0x` + hex.EncodeToString(make([]byte, 31)) + `aa","parent_hash":"0x` + hex.EncodeToString(make([]byte, 31)) + `bb","timestamp":"0x1"},
		"transactions": [{
			"version":"0x0","cell_deps":[],"header_deps":[],"inputs":[],
			"outputs":[{"capacity":"0x64","lock":{"code_hash":"0x` + hex.EncodeToString(secpCodeHash[:]) + `","hash_type":"type","args":"0x"},"type":null}],
			"outputs_data":["0x"],"witnesses":[],
			"hash":"0x` + hex.EncodeToString(make([]byte, 31)) + `cc"
		}]
	}`
	var b Block
	require.NoError(t, json.Unmarshal([]byte(raw), &b))
	require.Equal(t, uint64(16), uint64(b.Header.Number))
	require.Equal(t, byte(0xbb), b.Header.ParentHash[31])
	require.Len(t, b.Transactions, 1)
	require.Equal(t, byte(0xcc), b.Transactions[0].Hash[31])
	require.Nil(t, b.Transactions[0].Outputs[0].Type)
	require.Equal(t, HashTypeType, b.Transactions[0].Outputs[0].Lock.HashType)
}
