package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/ferreirogomes/ryzer/models"
)

func init() {
	// Valores monetários saem como números JSON, não como strings.
	decimal.MarshalJSONWithoutQuotes = true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeFailure converte um erro do domínio em status HTTP e mensagem única.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrAssetNotFound):
		writeError(w, http.StatusNotFound, models.ErrAssetNotFound.Error())
	case errors.Is(err, models.ErrInvalidBuyer):
		writeError(w, http.StatusBadRequest, models.ErrInvalidBuyer.Error())
	case errors.Is(err, models.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, models.ErrInvalidQuantity.Error())
	case errors.Is(err, models.ErrInsufficientSupply):
		writeError(w, http.StatusConflict, models.ErrInsufficientSupply.Error())
	case errors.Is(err, models.ErrIdempotencyKeyReused):
		writeError(w, http.StatusUnprocessableEntity, models.ErrIdempotencyKeyReused.Error())
	case errors.Is(err, models.ErrBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, models.ErrBusy.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled before it was processed")
	default:
		// Detalhes de armazenamento ficam no log, não na resposta.
		writeError(w, http.StatusInternalServerError, models.ErrStorageFailure.Error())
	}
}
