package relayer

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/types"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/config"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/db"
)

func testConfig(role string) *config.Config {
	return &config.Config{
		CKB: config.CKBConfig{ConfirmNumber: 3},
		Relayer: config.RelayerConfig{
			Role:                  role,
			BlockPollInterval:     time.Millisecond,
			RetryBackoff:          time.Millisecond,
			MintPollInterval:      time.Millisecond,
			FinalityPollInterval:  time.Millisecond,
			ReadinessInterval:     5 * time.Millisecond,
			MintTimeoutIterations: 5,
			CustodyTimeoutIters:   5,
			MintBatchSize:         10,
		},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEngine_StartStop(t *testing.T) {
	chain := newTestChain()
	for h := uint64(1); h <= 5; h++ {
		chain.addBlock(h)
	}
	store := NewMemoryStore()
	engine := NewEngine(testConfig(config.RoleWatcher), testScripts(), Dependencies{
		Chain:   chain.client(),
		Indexer: &MockIndexer{},
		Store:   store,
	}, zap.NewNop())

	if engine.minter != nil {
		t.Errorf("Expected no mint worker outside the collector role")
	}
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "readiness", engine.IsReady)

	chain.addBlock(6)
	waitFor(t, "block 6", func() bool {
		h, _, _ := NewCursor(store).Get(context.Background())
		return h == 6
	})

	status, err := engine.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.CursorHeight != 6 || status.TipHeight != 6 {
		t.Errorf("Expected cursor and tip at 6, got %d and %d", status.CursorHeight, status.TipHeight)
	}
	if status.Role != config.RoleWatcher || !status.Ready || status.ConfirmNumber != 3 {
		t.Errorf("Unexpected status %+v", status)
	}

	done := make(chan struct{})
	go func() {
		engine.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return")
	}

	// A second Stop, as a deferred call after an explicit one would make, must not panic.
	engine.Stop()
}

func TestEngine_CollectorMints(t *testing.T) {
	chain := newTestChain()
	chain.addBlock(1)
	env := newMintEnv(t, 5)
	env.custodyUp = true
	env.store.AddMints(ethMint("m1", "100"))

	client := chain.client()
	client.GetTransactionFunc = env.chain.GetTransactionFunc
	client.SendTransactionFunc = env.chain.SendTransactionFunc

	engine := NewEngine(testConfig(config.RoleCollector), testScripts(), Dependencies{
		Chain:     client,
		Indexer:   env.indexer,
		Store:     env.store,
		Generator: env.gen,
		Signer:    &MockSigner{},
	}, zap.NewNop())
	if engine.minter == nil {
		t.Fatalf("Expected a mint worker for the collector role")
	}

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer engine.Stop()

	waitFor(t, "mint success", func() bool {
		return env.store.Mint("m1").Status == db.MintSuccess
	})
}

func TestEngine_StartFailsWithoutNode(t *testing.T) {
	client := &MockChainClient{
		GetTipHeaderFunc: func(_ context.Context) (*types.Header, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}
	engine := NewEngine(testConfig(config.RoleWatcher), testScripts(), Dependencies{
		Chain: client,
		Store: NewMemoryStore(),
	}, zap.NewNop())

	if err := engine.Start(context.Background()); err == nil {
		t.Errorf("Expected Start to fail when the node is unreachable")
	}
	if engine.IsReady() {
		t.Errorf("Expected engine not to be ready")
	}
}
