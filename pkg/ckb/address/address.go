// Package address converts CKB bech32/bech32m addresses into lock scripts.
package address

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/types"
	"github.com/ethereum/go-ethereum/common"
)

const (
	PrefixMainnet = "ckb"
	PrefixTestnet = "ckt"
)

const (
	formatFull         byte = 0x00
	formatShort        byte = 0x01
	formatFullDataOld  byte = 0x02
	formatFullTypeOld  byte = 0x04
	shortIndexSecp     byte = 0x00
	shortIndexMultisig byte = 0x01
)

var (
	// SecpBlake160CodeHash is the type hash of the default secp256k1/blake160 lock.
	SecpBlake160CodeHash = common.HexToHash("0x9bd7e06f3ecf4be0f2fcd2188b23f1b9fcc88e5d4b65a8637b17723bbda3cce8")
	// MultisigCodeHash is the type hash of the default secp256k1/multisig lock.
	MultisigCodeHash = common.HexToHash("0x5c5069eb0857efc65e1bca0c07df34c31663b3622fd3876c876320fc9634e2a8")
)

// Parse decodes a CKB address of either network into its lock script.
func Parse(addr string) (*types.Script, error) {
	_, script, err := parse(addr)
	return script, err
}

// ParseNetwork is Parse restricted to addresses carrying prefix.
func ParseNetwork(addr, prefix string) (*types.Script, error) {
	hrp, script, err := parse(addr)
	if err != nil {
		return nil, err
	}
	if hrp != prefix {
		return nil, fmt.Errorf("address %q is for network %q, expected %q", addr, hrp, prefix)
	}
	return script, nil
}

func parse(addr string) (string, *types.Script, error) {
	hrp, data, err := bech32.DecodeNoLimit(addr)
	if err != nil {
		return "", nil, fmt.Errorf("decode address %q: %w", addr, err)
	}
	if hrp != PrefixMainnet && hrp != PrefixTestnet {
		return "", nil, fmt.Errorf("unknown address prefix %q", hrp)
	}
	script, err := decodePayload(data)
	if err != nil {
		return "", nil, err
	}
	return hrp, script, nil
}

func decodePayload(data []byte) (*types.Script, error) {
	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("convert address payload: %w", err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty address payload")
	}

	body := payload[1:]
	switch payload[0] {
	case formatFull:
		if len(body) < common.HashLength+1 {
			return nil, fmt.Errorf("full address payload too short")
		}
		ht, err := hashTypeFromByte(body[common.HashLength])
		if err != nil {
			return nil, err
		}
		return &types.Script{
			CodeHash: common.BytesToHash(body[:common.HashLength]),
			HashType: ht,
			Args:     append([]byte{}, body[common.HashLength+1:]...),
		}, nil
	case formatShort:
		if len(body) < 1 {
			return nil, fmt.Errorf("short address payload too short")
		}
		var codeHash common.Hash
		switch body[0] {
		case shortIndexSecp:
			codeHash = SecpBlake160CodeHash
		case shortIndexMultisig:
			codeHash = MultisigCodeHash
		default:
			return nil, fmt.Errorf("unsupported short address code hash index %d", body[0])
		}
		return &types.Script{
			CodeHash: codeHash,
			HashType: types.HashTypeType,
			Args:     append([]byte{}, body[1:]...),
		}, nil
	case formatFullDataOld, formatFullTypeOld:
		if len(body) < common.HashLength {
			return nil, fmt.Errorf("full address payload too short")
		}
		ht := types.HashTypeData
		if payload[0] == formatFullTypeOld {
			ht = types.HashTypeType
		}
		return &types.Script{
			CodeHash: common.BytesToHash(body[:common.HashLength]),
			HashType: ht,
			Args:     append([]byte{}, body[common.HashLength:]...),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported address format 0x%02x", payload[0])
	}
}

// Encode renders a lock script as a full-format (bech32m) address.
func Encode(prefix string, script *types.Script) (string, error) {
	ht, err := script.HashType.Byte()
	if err != nil {
		return "", err
	}
	payload := make([]byte, 0, 2+common.HashLength+len(script.Args))
	payload = append(payload, formatFull)
	payload = append(payload, script.CodeHash.Bytes()...)
	payload = append(payload, ht)
	payload = append(payload, script.Args...)

	conv, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert address payload: %w", err)
	}
	return bech32.EncodeM(prefix, conv)
}

func hashTypeFromByte(b byte) (types.HashType, error) {
	switch b {
	case 0:
		return types.HashTypeData, nil
	case 1:
		return types.HashTypeType, nil
	case 2:
		return types.HashTypeData1, nil
	case 4:
		return types.HashTypeData2, nil
	default:
		return "", fmt.Errorf("unknown hash type byte %d", b)
	}
}
