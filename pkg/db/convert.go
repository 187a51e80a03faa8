package db

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/chainsafe/ckb-bridge-relayer/pkg/asset"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/db/dao"
)

func parseAmount(field, v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", field, v, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid %s %q: negative", field, v)
	}
	return d, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toBurnDao(b *Burn) (*dao.CkbBurnDao, error) {
	amount, err := parseAmount("amount", b.Amount)
	if err != nil {
		return nil, err
	}
	fee, err := parseAmount("bridge fee", b.BridgeFee)
	if err != nil {
		return nil, err
	}
	status := b.ConfirmStatus
	if status == "" {
		status = BurnUnconfirmed
	}
	return &dao.CkbBurnDao{
		CkbTxHash:        b.CkbTxHash,
		SenderLockHash:   b.SenderLockHash,
		Chain:            int16(b.Chain),
		Asset:            b.Asset,
		Amount:           amount,
		BridgeFee:        fee,
		RecipientAddress: b.RecipientAddress,
		BlockNumber:      int64(b.BlockNumber),
		ConfirmNumber:    int64(b.ConfirmNumber),
		ConfirmStatus:    string(status),
	}, nil
}

func toBurn(r *dao.CkbBurnDao) *Burn {
	return &Burn{
		CkbTxHash:        r.CkbTxHash,
		SenderLockHash:   r.SenderLockHash,
		Chain:            asset.ChainType(r.Chain),
		Asset:            r.Asset,
		Amount:           r.Amount.String(),
		BridgeFee:        r.BridgeFee.String(),
		RecipientAddress: r.RecipientAddress,
		BlockNumber:      uint64(r.BlockNumber),
		ConfirmNumber:    uint64(r.ConfirmNumber),
		ConfirmStatus:    BurnConfirmStatus(r.ConfirmStatus),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func toBurns(rows []*dao.CkbBurnDao) []*Burn {
	burns := make([]*Burn, len(rows))
	for i, r := range rows {
		burns[i] = toBurn(r)
	}
	return burns
}

func toMintDao(m *Mint) (*dao.CkbMintDao, error) {
	amount, err := parseAmount("amount", m.Amount)
	if err != nil {
		return nil, err
	}
	status := m.Status
	if status == "" {
		status = MintPending
	}
	return &dao.CkbMintDao{
		ID:                  m.ID,
		Chain:               int16(m.Chain),
		Asset:               m.Asset,
		Amount:              amount,
		RecipientLockscript: m.RecipientLockscript,
		SudtExtraData:       m.SudtExtraData,
		Status:              string(status),
		MintHash:            nullableString(m.MintHash),
		Message:             nullableString(m.Message),
	}, nil
}

func toMint(r *dao.CkbMintDao) *Mint {
	return &Mint{
		ID:                  r.ID,
		Chain:               asset.ChainType(r.Chain),
		Asset:               r.Asset,
		Amount:              r.Amount.String(),
		RecipientLockscript: r.RecipientLockscript,
		SudtExtraData:       r.SudtExtraData,
		Status:              MintStatus(r.Status),
		MintHash:            derefString(r.MintHash),
		Message:             derefString(r.Message),
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

func toUnlockDao(u *Unlock) (*dao.UnlockDao, error) {
	amount, err := parseAmount("amount", u.Amount)
	if err != nil {
		return nil, err
	}
	status := u.Status
	if status == "" {
		status = UnlockPending
	}
	return &dao.UnlockDao{
		CkbTxHash:        u.CkbTxHash,
		Chain:            int16(u.Chain),
		Asset:            u.Asset,
		AssetType:        u.AssetType,
		Amount:           amount,
		RecipientAddress: u.RecipientAddress,
		Status:           string(status),
		UnlockTxHash:     nullableString(u.UnlockTxHash),
		Message:          nullableString(u.Message),
	}, nil
}

func toUnlock(r *dao.UnlockDao) *Unlock {
	return &Unlock{
		CkbTxHash:        r.CkbTxHash,
		Chain:            asset.ChainType(r.Chain),
		Asset:            r.Asset,
		AssetType:        r.AssetType,
		Amount:           r.Amount.String(),
		RecipientAddress: r.RecipientAddress,
		Status:           UnlockStatus(r.Status),
		UnlockTxHash:     derefString(r.UnlockTxHash),
		Message:          derefString(r.Message),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func toAdaLockDao(l *AdaLock) (*dao.AdaLockDao, error) {
	amount, err := parseAmount("amount", l.Amount)
	if err != nil {
		return nil, err
	}
	fee, err := parseAmount("bridge fee", l.BridgeFee)
	if err != nil {
		return nil, err
	}
	status := l.Status
	if status == "" {
		status = AdaLockPending
	}
	return &dao.AdaLockDao{
		TxID:          l.TxID,
		Sender:        l.Sender,
		Amount:        amount,
		BridgeFee:     fee,
		Recipient:     l.Recipient,
		SudtExtraData: l.SudtExtraData,
		Data:          l.Data,
		Direction:     l.Direction,
		Status:        string(status),
		ConfirmNumber: int64(l.ConfirmNumber),
	}, nil
}

func toAdaLock(r *dao.AdaLockDao) *AdaLock {
	return &AdaLock{
		TxID:          r.TxID,
		Sender:        r.Sender,
		Amount:        r.Amount.String(),
		BridgeFee:     r.BridgeFee.String(),
		Recipient:     r.Recipient,
		SudtExtraData: r.SudtExtraData,
		Data:          r.Data,
		Direction:     r.Direction,
		Status:        AdaLockStatus(r.Status),
		ConfirmNumber: uint64(r.ConfirmNumber),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
