package asset

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/molecule"
	"github.com/ethereum/go-ethereum/common"
)

// ErrMalformedRecipientData is returned for output data that is not a recipient cell.
var ErrMalformedRecipientData = errors.New("malformed recipient cell data")

// RecipientCellData is the payload of a burn's recipient cell.
type RecipientCellData struct {
	RecipientAddress   []byte
	Chain              ChainType
	Asset              []byte
	BridgeLockCodeHash common.Hash
	OwnerLockHash      common.Hash
	Amount             *big.Int
	Fee                *big.Int
}

// Encode returns the molecule encoding of the recipient data.
func (r *RecipientCellData) Encode() ([]byte, error) {
	amount, err := molecule.Uint128(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("encode amount: %w", err)
	}
	fee, err := molecule.Uint128(r.Fee)
	if err != nil {
		return nil, fmt.Errorf("encode fee: %w", err)
	}
	return molecule.Table(
		molecule.Bytes(r.RecipientAddress),
		[]byte{byte(r.Chain)},
		molecule.Bytes(r.Asset),
		r.BridgeLockCodeHash.Bytes(),
		r.OwnerLockHash.Bytes(),
		amount,
		fee,
	), nil
}

// DecodeRecipientCellData parses recipient cell output data.
func DecodeRecipientCellData(data []byte) (*RecipientCellData, error) {
	fields, err := molecule.DecodeTable(data, 7)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecipientData, err)
	}
	if len(fields[1]) != 1 || len(fields[3]) != common.HashLength || len(fields[4]) != common.HashLength {
		return nil, fmt.Errorf("%w: bad fixed field size", ErrMalformedRecipientData)
	}

	recipient, err := molecule.DecodeBytes(fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: recipient: %v", ErrMalformedRecipientData, err)
	}
	assetID, err := molecule.DecodeBytes(fields[2])
	if err != nil {
		return nil, fmt.Errorf("%w: asset: %v", ErrMalformedRecipientData, err)
	}
	amount, err := molecule.DecodeUint128(fields[5])
	if err != nil {
		return nil, fmt.Errorf("%w: amount: %v", ErrMalformedRecipientData, err)
	}
	fee, err := molecule.DecodeUint128(fields[6])
	if err != nil {
		return nil, fmt.Errorf("%w: fee: %v", ErrMalformedRecipientData, err)
	}

	return &RecipientCellData{
		RecipientAddress:   recipient,
		Chain:              ChainType(fields[1][0]),
		Asset:              assetID,
		BridgeLockCodeHash: common.BytesToHash(fields[3]),
		OwnerLockHash:      common.BytesToHash(fields[4]),
		Amount:             amount,
		Fee:                fee,
	}, nil
}
