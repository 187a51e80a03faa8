// Package asset describes the foreign-chain assets bridged onto CKB and the
// per-asset custody lock arguments derived from them.
package asset

import (
	"fmt"
	"regexp"

	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/molecule"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ChainType identifies the foreign chain an asset originates from.
// Values are part of the on-chain encoding and must not change.
type ChainType uint8

const (
	ChainBTC  ChainType = 0
	ChainETH  ChainType = 1
	ChainEOS  ChainType = 2
	ChainTRON ChainType = 3
	ChainADA  ChainType = 5
)

func (c ChainType) String() string {
	switch c {
	case ChainBTC:
		return "btc"
	case ChainETH:
		return "eth"
	case ChainEOS:
		return "eos"
	case ChainTRON:
		return "tron"
	case ChainADA:
		return "ada"
	default:
		return fmt.Sprintf("chain(%d)", uint8(c))
	}
}

// Valid reports whether c is a known chain.
func (c ChainType) Valid() bool {
	switch c {
	case ChainBTC, ChainETH, ChainEOS, ChainTRON, ChainADA:
		return true
	}
	return false
}

// Asset is an (origin chain, asset identifier) pair owned by a committee lock.
type Asset struct {
	Chain         ChainType
	Address       string
	OwnerLockHash common.Hash
}

// New creates an asset for a supported chain.
func New(chain ChainType, address string, ownerLockHash common.Hash) (*Asset, error) {
	if !chain.Valid() {
		return nil, fmt.Errorf("unsupported chain type %d", uint8(chain))
	}
	if address == "" {
		return nil, fmt.Errorf("empty asset identifier for chain %s", chain)
	}
	return &Asset{Chain: chain, Address: address, OwnerLockHash: ownerLockHash}, nil
}

// BridgeLockscriptArgs returns the molecule-encoded custody lock args:
// table { owner_lock_hash: Byte32, chain: byte, asset: Bytes }.
func (a *Asset) BridgeLockscriptArgs() []byte {
	return molecule.Table(
		a.OwnerLockHash.Bytes(),
		[]byte{byte(a.Chain)},
		molecule.Bytes([]byte(a.Address)),
	)
}

// Key identifies the asset for deduplication.
func (a *Asset) Key() string {
	return hexutil.Encode(a.BridgeLockscriptArgs())
}

// BridgeLockscript returns the custody lock for the asset.
func (a *Asset) BridgeLockscript(codeHash common.Hash, hashType types.HashType) *types.Script {
	return &types.Script{
		CodeHash: codeHash,
		HashType: hashType,
		Args:     a.BridgeLockscriptArgs(),
	}
}

// BridgeLockHash is the script hash of the custody lock, used as sUDT type args.
func (a *Asset) BridgeLockHash(codeHash common.Hash, hashType types.HashType) common.Hash {
	return a.BridgeLockscript(codeHash, hashType).Hash()
}

// DecodeBridgeLockscriptArgs parses custody lock args back into an asset.
func DecodeBridgeLockscriptArgs(args []byte) (*Asset, error) {
	fields, err := molecule.DecodeTable(args, 3)
	if err != nil {
		return nil, fmt.Errorf("decode bridge lockscript args: %w", err)
	}
	if len(fields[0]) != common.HashLength || len(fields[1]) != 1 {
		return nil, fmt.Errorf("decode bridge lockscript args: malformed fields")
	}
	addr, err := molecule.DecodeBytes(fields[2])
	if err != nil {
		return nil, fmt.Errorf("decode bridge lockscript args: %w", err)
	}
	return New(ChainType(fields[1][0]), string(addr), common.BytesToHash(fields[0]))
}

const (
	TronAssetTRX   = "trx"
	TronAssetTRC10 = "trc10"
	TronAssetTRC20 = "trc20"
)

var numeric = regexp.MustCompile(`^[0-9]+$`)

// TronAssetType classifies a TRON asset identifier.
func TronAssetType(asset string) string {
	switch {
	case asset == TronAssetTRX:
		return TronAssetTRX
	case numeric.MatchString(asset):
		return TronAssetTRC10
	default:
		return TronAssetTRC20
	}
}
