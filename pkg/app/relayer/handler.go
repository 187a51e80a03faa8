package relayer

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/ckb-bridge-relayer/pkg/app/errors"
	apphttp "github.com/chainsafe/ckb-bridge-relayer/pkg/app/http"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/db"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/relayer"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// RecordReader is the read side of the relayer store served over HTTP
type RecordReader interface {
	ListBurns(ctx context.Context, limit int) ([]*db.Burn, error)
	GetBurn(ctx context.Context, txHash string) (*db.Burn, error)
	GetMint(ctx context.Context, id string) (*db.Mint, error)
}

// EngineStatus reports the engine state
type EngineStatus interface {
	IsReady() bool
	Status(ctx context.Context) (*relayer.Status, error)
}

type handler struct {
	store  RecordReader
	engine EngineStatus
	logger *zap.Logger
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *handler) ready(w http.ResponseWriter, _ *http.Request) {
	if !h.engine.IsReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("NOT_READY"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("READY"))
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) error {
	st, err := h.engine.Status(r.Context())
	if err != nil {
		h.logger.Warn("Failed to get relayer status", zap.Error(err))
		if !h.engine.IsReady() {
			return apperrors.RecoveringError(err, "relayer is not ready")
		}
		return apperrors.DependencyError(err, "ckb node unavailable")
	}
	apphttp.WriteJSON(w, http.StatusOK, st)
	return nil
}

func (h *handler) listBurns(w http.ResponseWriter, r *http.Request) error {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			return apperrors.BadRequestError(nil, "limit must be between 1 and 1000")
		}
		limit = n
	}

	burns, err := h.store.ListBurns(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list burns", zap.Error(err))
		return apperrors.GeneralError(err)
	}
	apphttp.WriteJSON(w, http.StatusOK, map[string]any{"burns": burns})
	return nil
}

func (h *handler) getBurn(w http.ResponseWriter, r *http.Request) error {
	txHash := chi.URLParam(r, "txHash")
	burn, err := h.store.GetBurn(r.Context(), txHash)
	if err != nil {
		if !apperrors.Is(err, apperrors.CategoryResourceNotFound) {
			h.logger.Error("Failed to get burn", zap.String("tx_hash", txHash), zap.Error(err))
		}
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, burn)
	return nil
}

func (h *handler) getMint(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	mint, err := h.store.GetMint(r.Context(), id)
	if err != nil {
		if !apperrors.Is(err, apperrors.CategoryResourceNotFound) {
			h.logger.Error("Failed to get mint", zap.String("id", id), zap.Error(err))
		}
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, mint)
	return nil
}
