package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/ckb-bridge-relayer/pkg/app/errors"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/config"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/db"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/relayer"
)

type mockRecords struct {
	mock.Mock
}

func (m *mockRecords) ListBurns(ctx context.Context, limit int) ([]*db.Burn, error) {
	args := m.Called(ctx, limit)
	burns, _ := args.Get(0).([]*db.Burn)
	return burns, args.Error(1)
}

func (m *mockRecords) GetBurn(ctx context.Context, txHash string) (*db.Burn, error) {
	args := m.Called(ctx, txHash)
	burn, _ := args.Get(0).(*db.Burn)
	return burn, args.Error(1)
}

func (m *mockRecords) GetMint(ctx context.Context, id string) (*db.Mint, error) {
	args := m.Called(ctx, id)
	mint, _ := args.Get(0).(*db.Mint)
	return mint, args.Error(1)
}

type stubEngine struct {
	ready  bool
	status *relayer.Status
	err    error
}

func (e *stubEngine) IsReady() bool { return e.ready }

func (e *stubEngine) Status(_ context.Context) (*relayer.Status, error) {
	return e.status, e.err
}

func newTestRouter(store RecordReader, engine EngineStatus) http.Handler {
	s := NewServer(&config.Config{Monitoring: config.MonitoringConfig{Enabled: true}})
	return s.newRouter(store, engine, zap.NewNop())
}

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var got errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response JSON: %v", err)
	}
	return got
}

func TestReady(t *testing.T) {
	engine := &stubEngine{}
	h := newTestRouter(&mockRecords{}, engine)

	if rec := serve(h, "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
	engine.ready = true
	if rec := serve(h, "/ready"); rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if rec := serve(h, "/health"); rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestStatus(t *testing.T) {
	engine := &stubEngine{ready: true, status: &relayer.Status{Role: "collector", CursorHeight: 90, TipHeight: 95}}
	rec := serve(newTestRouter(&mockRecords{}, engine), "/api/v1/status")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var got relayer.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response JSON: %v", err)
	}
	if got.CursorHeight != 90 || got.TipHeight != 95 || got.Role != "collector" {
		t.Fatalf("unexpected status %+v", got)
	}
}

func TestStatus_NodeDown(t *testing.T) {
	engine := &stubEngine{ready: true, err: errors.New("connection refused")}
	rec := serve(newTestRouter(&mockRecords{}, engine), "/api/v1/status")

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, rec.Code)
	}
}

func TestStatus_NotReady(t *testing.T) {
	engine := &stubEngine{err: errors.New("connection refused")}
	rec := serve(newTestRouter(&mockRecords{}, engine), "/api/v1/status")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
	if got := decodeError(t, rec); got.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected error body %+v", got)
	}
}

func TestListBurns(t *testing.T) {
	store := &mockRecords{}
	store.On("ListBurns", mock.Anything, 20).Return([]*db.Burn{{CkbTxHash: "0x01", Amount: "5"}}, nil)
	rec := serve(newTestRouter(store, &stubEngine{}), "/api/v1/burns?limit=20")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var got struct {
		Burns []*db.Burn `json:"burns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response JSON: %v", err)
	}
	if len(got.Burns) != 1 || got.Burns[0].CkbTxHash != "0x01" {
		t.Fatalf("unexpected burns %+v", got.Burns)
	}
	store.AssertExpectations(t)
}

func TestListBurns_InvalidLimit(t *testing.T) {
	store := &mockRecords{}
	for _, limit := range []string{"abc", "0", "5000"} {
		rec := serve(newTestRouter(store, &stubEngine{}), "/api/v1/burns?limit="+limit)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("limit %s: expected status %d, got %d", limit, http.StatusBadRequest, rec.Code)
		}
	}
	store.AssertNotCalled(t, "ListBurns", mock.Anything, mock.Anything)
}

func TestListBurns_StoreFailureIsOpaque(t *testing.T) {
	store := &mockRecords{}
	store.On("ListBurns", mock.Anything, defaultListLimit).Return(nil, errors.New("pq: password authentication failed"))
	rec := serve(newTestRouter(store, &stubEngine{}), "/api/v1/burns")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if got := decodeError(t, rec); got.Error != http.StatusText(http.StatusInternalServerError) {
		t.Fatalf("expected opaque error, got %q", got.Error)
	}
}

func TestGetBurn_NotFound(t *testing.T) {
	store := &mockRecords{}
	store.On("GetBurn", mock.Anything, "0xabc").
		Return(nil, apperrors.ResourceNotFoundError(nil, "burn not found"))
	rec := serve(newTestRouter(store, &stubEngine{}), "/api/v1/burns/0xabc")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
	if got := decodeError(t, rec); got.Error != "burn not found" || got.Code != http.StatusNotFound {
		t.Fatalf("unexpected error body %+v", got)
	}
}

func TestGetMint(t *testing.T) {
	store := &mockRecords{}
	store.On("GetMint", mock.Anything, "m-1").
		Return(&db.Mint{ID: "m-1", Status: db.MintPending, MintHash: "0xfeed"}, nil)
	rec := serve(newTestRouter(store, &stubEngine{}), "/api/v1/mints/m-1")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var got db.Mint
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response JSON: %v", err)
	}
	if got.ID != "m-1" || got.MintHash != "0xfeed" || got.Status != db.MintPending {
		t.Fatalf("unexpected mint %+v", got)
	}
}
