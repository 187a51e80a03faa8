// Package http holds the chi handler plumbing shared by the relayer's HTTP surface
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/chainsafe/ckb-bridge-relayer/pkg/app/errors"
)

// HandlerFunc is an HTTP handler that reports failure by returning an error
type HandlerFunc func(http.ResponseWriter, *http.Request) error

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// HandleError adapts h to http.HandlerFunc, rendering returned errors with WriteError.
//
//	r.Get("/burns/{txHash}", apphttp.HandleError(h.getBurn))
func HandleError(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			WriteError(w, err)
		}
	}
}

// WriteError renders err as a JSON error body. Categorised errors keep their message and
// status code; anything else is reported as an opaque 500.
func WriteError(w http.ResponseWriter, err error) {
	var svcErr *apperrors.ServiceError
	if !errors.As(err, &svcErr) {
		WriteJSON(w, http.StatusInternalServerError, &errorResponse{
			Error: "Unexpected Service Error",
			Code:  http.StatusInternalServerError,
		})
		return
	}

	code := svcErr.StatusCode()
	msg := svcErr.Message
	if apperrors.IsInternalError(err) {
		msg = http.StatusText(code)
	}
	WriteJSON(w, code, &errorResponse{Error: msg, Code: code})
}

// WriteJSON writes v with the given status code
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
