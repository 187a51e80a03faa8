package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/chainsafe/ckb-bridge-relayer/pkg/asset"
	apperrors "github.com/chainsafe/ckb-bridge-relayer/pkg/app/errors"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/db/dao"
)

// Store provides database operations for the relayer
type Store struct {
	db *bun.DB
}

// NewStore creates a new postgres store
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetKV returns the value stored under key, or "" when the key is unset
func (s *Store) GetKV(ctx context.Context, key string) (string, error) {
	row := new(dao.KVStoreDao)
	err := s.db.NewSelect().Model(row).Where("key = ?", key).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return row.Value, nil
}

// SetKV upserts key
func (s *Store) SetKV(ctx context.Context, key, value string) error {
	_, err := s.db.NewInsert().
		Model(&dao.KVStoreDao{Key: key, Value: value, UpdatedAt: time.Now()}).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// CreateBurns inserts burn records. Records already present are left untouched.
func (s *Store) CreateBurns(ctx context.Context, burns []*Burn) error {
	if len(burns) == 0 {
		return nil
	}
	rows := make([]*dao.CkbBurnDao, 0, len(burns))
	for _, b := range burns {
		row, err := toBurnDao(b)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	_, err := s.db.NewInsert().
		Model(&rows).
		On("CONFLICT (ckb_tx_hash) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create burns: %w", err)
	}
	return nil
}

// GetUnconfirmedBurns returns unconfirmed burns at or below height
func (s *Store) GetUnconfirmedBurns(ctx context.Context, height uint64) ([]*Burn, error) {
	var rows []*dao.CkbBurnDao
	err := s.db.NewSelect().
		Model(&rows).
		Where("confirm_status = ?", string(BurnUnconfirmed)).
		Where("block_number <= ?", int64(height)).
		Order("block_number ASC", "ckb_tx_hash ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get unconfirmed burns: %w", err)
	}
	return toBurns(rows), nil
}

// ConfirmBurns marks the given unconfirmed burns as confirmed and returns how many changed
func (s *Store) ConfirmBurns(ctx context.Context, txHashes []string, confirmNumber uint64) (int64, error) {
	if len(txHashes) == 0 {
		return 0, nil
	}
	res, err := s.db.NewUpdate().
		Model((*dao.CkbBurnDao)(nil)).
		Set("confirm_status = ?", string(BurnConfirmed)).
		Set("confirm_number = ?", int64(confirmNumber)).
		Set("updated_at = ?", time.Now()).
		Where("ckb_tx_hash IN (?)", bun.In(txHashes)).
		Where("confirm_status = ?", string(BurnUnconfirmed)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to confirm burns: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RollbackBurns deletes unconfirmed burns above height
func (s *Store) RollbackBurns(ctx context.Context, height uint64) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*dao.CkbBurnDao)(nil)).
		Where("block_number > ?", int64(height)).
		Where("confirm_status = ?", string(BurnUnconfirmed)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to roll back burns: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetBurn returns a burn by CKB transaction hash
func (s *Store) GetBurn(ctx context.Context, txHash string) (*Burn, error) {
	row := new(dao.CkbBurnDao)
	err := s.db.NewSelect().Model(row).Where("ckb_tx_hash = ?", txHash).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ResourceNotFoundError(err, "burn not found")
		}
		return nil, fmt.Errorf("failed to get burn: %w", err)
	}
	return toBurn(row), nil
}

// ListBurns returns the most recent burns
func (s *Store) ListBurns(ctx context.Context, limit int) ([]*Burn, error) {
	var rows []*dao.CkbBurnDao
	err := s.db.NewSelect().
		Model(&rows).
		Order("block_number DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list burns: %w", err)
	}
	return toBurns(rows), nil
}

// UpdateBurnBridgeFee records the fee kept by the bridge once the unlock amount is known
func (s *Store) UpdateBurnBridgeFee(ctx context.Context, txHash, unlockAmount string) error {
	unlock, err := decimal.NewFromString(unlockAmount)
	if err != nil {
		return fmt.Errorf("invalid unlock amount %q: %w", unlockAmount, err)
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(dao.CkbBurnDao)
		err := tx.NewSelect().Model(row).Where("ckb_tx_hash = ?", txHash).For("UPDATE").Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("failed to get burn: %w", err)
		}
		_, err = tx.NewUpdate().
			Model((*dao.CkbBurnDao)(nil)).
			Set("bridge_fee = ?", row.Amount.Sub(unlock)).
			Set("updated_at = ?", time.Now()).
			Where("ckb_tx_hash = ?", txHash).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update burn bridge fee: %w", err)
		}
		return nil
	})
}

// CreateMints inserts mint requests
func (s *Store) CreateMints(ctx context.Context, mints []*Mint) error {
	if len(mints) == 0 {
		return nil
	}
	rows := make([]*dao.CkbMintDao, 0, len(mints))
	for _, m := range mints {
		row, err := toMintDao(m)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if _, err := s.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create mints: %w", err)
	}
	return nil
}

// GetPendingMints returns up to limit pending mints, oldest first
func (s *Store) GetPendingMints(ctx context.Context, limit int) ([]*Mint, error) {
	var rows []*dao.CkbMintDao
	err := s.db.NewSelect().
		Model(&rows).
		Where("status = ?", string(MintPending)).
		Order("created_at ASC", "id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending mints: %w", err)
	}
	mints := make([]*Mint, len(rows))
	for i, r := range rows {
		mints[i] = toMint(r)
	}
	return mints, nil
}

// CountPendingMints returns the number of pending mints
func (s *Store) CountPendingMints(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().
		Model((*dao.CkbMintDao)(nil)).
		Where("status = ?", string(MintPending)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending mints: %w", err)
	}
	return n, nil
}

// GetMint returns a mint by id
func (s *Store) GetMint(ctx context.Context, id string) (*Mint, error) {
	row := new(dao.CkbMintDao)
	err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ResourceNotFoundError(err, "mint not found")
		}
		return nil, fmt.Errorf("failed to get mint: %w", err)
	}
	return toMint(row), nil
}

// UpdateMints persists status, mint hash and message of each mint in one transaction
func (s *Store) UpdateMints(ctx context.Context, mints []*Mint) error {
	if len(mints) == 0 {
		return nil
	}
	now := time.Now()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, m := range mints {
			_, err := tx.NewUpdate().
				Model((*dao.CkbMintDao)(nil)).
				Set("status = ?", string(m.Status)).
				Set("mint_hash = ?", nullableString(m.MintHash)).
				Set("message = ?", nullableString(m.Message)).
				Set("updated_at = ?", now).
				Where("id = ?", m.ID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to update mint %s: %w", m.ID, err)
			}
		}
		return nil
	})
}

// MarkMintSuccessByHash sets every mint carrying mintHash to success
func (s *Store) MarkMintSuccessByHash(ctx context.Context, mintHash string) (int64, error) {
	res, err := s.db.NewUpdate().
		Model((*dao.CkbMintDao)(nil)).
		Set("status = ?", string(MintSuccess)).
		Set("updated_at = ?", time.Now()).
		Where("mint_hash = ?", mintHash).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to mark mints successful: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func unlockTable(chain asset.ChainType) (string, error) {
	switch chain {
	case asset.ChainBTC:
		return "btc_unlocks", nil
	case asset.ChainETH:
		return "eth_unlocks", nil
	case asset.ChainEOS:
		return "eos_unlocks", nil
	case asset.ChainTRON:
		return "tron_unlocks", nil
	case asset.ChainADA:
		return "ada_unlocks", nil
	default:
		return "", apperrors.NotSupportedError(nil, fmt.Sprintf("no unlock table for chain %s", chain))
	}
}

// UnlockTables lists the per-chain unlock tables
func UnlockTables() []string {
	return []string{"btc_unlocks", "eth_unlocks", "eos_unlocks", "tron_unlocks", "ada_unlocks"}
}

// CreateUnlock inserts an unlock into its chain's table. A second insert for the same burn is a no-op.
func (s *Store) CreateUnlock(ctx context.Context, u *Unlock) error {
	table, err := unlockTable(u.Chain)
	if err != nil {
		return err
	}
	row, err := toUnlockDao(u)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().
		Model(row).
		ModelTableExpr(table).
		On("CONFLICT (ckb_tx_hash) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create %s unlock: %w", u.Chain, err)
	}
	return nil
}

// GetUnlocksByStatus returns up to limit unlocks of chain in status, oldest first
func (s *Store) GetUnlocksByStatus(ctx context.Context, chain asset.ChainType, status UnlockStatus, limit int) ([]*Unlock, error) {
	table, err := unlockTable(chain)
	if err != nil {
		return nil, err
	}
	var rows []*dao.UnlockDao
	err = s.db.NewSelect().
		Model(&rows).
		ModelTableExpr(table + " AS unlock_dao").
		Where("status = ?", string(status)).
		Order("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s unlocks: %w", chain, err)
	}
	unlocks := make([]*Unlock, len(rows))
	for i, r := range rows {
		unlocks[i] = toUnlock(r)
	}
	return unlocks, nil
}

// SetUnlocksSuccess marks unlocks of chain as successful
func (s *Store) SetUnlocksSuccess(ctx context.Context, chain asset.ChainType, txHashes []string) error {
	if len(txHashes) == 0 {
		return nil
	}
	table, err := unlockTable(chain)
	if err != nil {
		return err
	}
	_, err = s.db.NewUpdate().
		Model((*dao.UnlockDao)(nil)).
		ModelTableExpr(table + " AS unlock_dao").
		Set("status = ?", string(UnlockSuccess)).
		Set("updated_at = ?", time.Now()).
		Where("ckb_tx_hash IN (?)", bun.In(txHashes)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set %s unlocks successful: %w", chain, err)
	}
	return nil
}

// CreateAdaLocks inserts Cardano lock records
func (s *Store) CreateAdaLocks(ctx context.Context, locks []*AdaLock) error {
	if len(locks) == 0 {
		return nil
	}
	rows := make([]*dao.AdaLockDao, 0, len(locks))
	for _, l := range locks {
		row, err := toAdaLockDao(l)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if _, err := s.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create ada locks: %w", err)
	}
	return nil
}

// UpdateAdaLockConfirmations records confirmation progress of Cardano locks
func (s *Store) UpdateAdaLockConfirmations(ctx context.Context, updates []AdaLockConfirmation) error {
	now := time.Now()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, u := range updates {
			_, err := tx.NewUpdate().
				Model((*dao.AdaLockDao)(nil)).
				Set("confirm_number = ?", int64(u.ConfirmNumber)).
				Set("status = ?", string(u.Status)).
				Set("updated_at = ?", now).
				Where("txid = ?", u.TxID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to update ada lock %s: %w", u.TxID, err)
			}
		}
		return nil
	})
}

// GetAdaLock returns a Cardano lock by transaction id
func (s *Store) GetAdaLock(ctx context.Context, txID string) (*AdaLock, error) {
	row := new(dao.AdaLockDao)
	err := s.db.NewSelect().Model(row).Where("txid = ?", txID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ResourceNotFoundError(err, "ada lock not found")
		}
		return nil, fmt.Errorf("failed to get ada lock: %w", err)
	}
	return toAdaLock(row), nil
}

// UpdateBridgeInRecord completes the mint backing a Cardano lock and records the lock's
// bridge fee as lock amount minus mint amount. Unknown mint ids are ignored.
func (s *Store) UpdateBridgeInRecord(ctx context.Context, u BridgeInUpdate) error {
	lockAmount, err := decimal.NewFromString(u.LockAmount)
	if err != nil {
		return fmt.Errorf("invalid lock amount %q: %w", u.LockAmount, err)
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		mint := new(dao.CkbMintDao)
		err := tx.NewSelect().Model(mint).Where("id = ?", u.MintID).For("UPDATE").Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("failed to get mint: %w", err)
		}

		now := time.Now()
		_, err = tx.NewUpdate().
			Model((*dao.AdaLockDao)(nil)).
			Set("bridge_fee = ?", lockAmount.Sub(mint.Amount)).
			Set("updated_at = ?", now).
			Where("txid = ?", u.MintID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update ada lock bridge fee: %w", err)
		}

		_, err = tx.NewUpdate().
			Model((*dao.CkbMintDao)(nil)).
			Set("asset = ?", u.Asset).
			Set("recipient_lockscript = ?", u.Recipient).
			Set("sudt_extra_data = ?", u.SudtExtraData).
			Set("updated_at = ?", now).
			Where("id = ?", u.MintID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update mint: %w", err)
		}
		return nil
	})
}
