package relayer

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/chainsafe/ckb-bridge-relayer/pkg/asset"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/db"
)

func seedBurns(t *testing.T, store *MemoryStore, heights map[string]uint64) {
	t.Helper()
	var burns []*db.Burn
	for hash, h := range heights {
		burns = append(burns, &db.Burn{
			CkbTxHash:     hash,
			Chain:         asset.ChainETH,
			Amount:        "10",
			BlockNumber:   h,
			ConfirmStatus: db.BurnUnconfirmed,
		})
	}
	if err := store.CreateBurns(context.Background(), burns); err != nil {
		t.Fatalf("CreateBurns failed: %v", err)
	}
}

func TestConfirmationManager_PromotesAtOrBelowHeight(t *testing.T) {
	store := NewMemoryStore()
	seedBurns(t, store, map[string]uint64{"0xa": 10, "0xb": 20, "0xc": 21})
	m := NewConfirmationManager(store, 6, zap.NewNop())

	var handed []string
	promoted, err := m.Promote(context.Background(), 20, func(_ context.Context, burns []*db.Burn) error {
		for _, b := range burns {
			handed = append(handed, b.CkbTxHash)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	if len(promoted) != 2 || len(handed) != 2 {
		t.Fatalf("Expected 2 burns promoted and handed off, got %d and %d", len(promoted), len(handed))
	}
	if handed[0] != "0xa" || handed[1] != "0xb" {
		t.Errorf("Expected burns in block order, got %v", handed)
	}
	for _, hash := range []string{"0xa", "0xb"} {
		b := store.Burn(hash)
		if b.ConfirmStatus != db.BurnConfirmed || b.ConfirmNumber != 6 {
			t.Errorf("Burn %s: expected confirmed at depth 6, got %s/%d", hash, b.ConfirmStatus, b.ConfirmNumber)
		}
	}
	if store.Burn("0xc").ConfirmStatus != db.BurnUnconfirmed {
		t.Errorf("Expected burn above the confirmed height to stay unconfirmed")
	}

	promoted, err = m.Promote(context.Background(), 20, nil)
	if err != nil {
		t.Fatalf("Second Promote failed: %v", err)
	}
	if len(promoted) != 0 {
		t.Errorf("Expected second promotion to be a no-op, got %d burns", len(promoted))
	}
}

func TestConfirmationManager_HandOffFailure(t *testing.T) {
	store := NewMemoryStore()
	seedBurns(t, store, map[string]uint64{"0xa": 5})
	m := NewConfirmationManager(store, 1, zap.NewNop())

	_, err := m.Promote(context.Background(), 5, func(context.Context, []*db.Burn) error {
		return errors.New("unlock table unavailable")
	})
	if err == nil {
		t.Fatalf("Expected Promote to fail when the hand-off fails")
	}
	if store.Burn("0xa").ConfirmStatus != db.BurnUnconfirmed {
		t.Errorf("Expected burn to stay unconfirmed after a failed hand-off")
	}

	calls := 0
	promoted, err := m.Promote(context.Background(), 5, func(context.Context, []*db.Burn) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if calls != 1 || len(promoted) != 1 {
		t.Errorf("Expected the retry to hand off the burn once, got %d calls and %d burns", calls, len(promoted))
	}
}
