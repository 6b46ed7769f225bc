package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/ferreirogomes/ryzer/models"
	"github.com/ferreirogomes/ryzer/services"
	"github.com/ferreirogomes/ryzer/storage"
)

// TransactionReader expõe o histórico e o resumo do ledger.
type TransactionReader interface {
	ListTransactions(ctx context.Context, query services.TransactionQuery) ([]models.TransactionView, error)
	Summary(ctx context.Context) (models.Summary, error)
}

// TransactionHandler lida com requisições HTTP do histórico de transações.
type TransactionHandler struct {
	Queries TransactionReader
}

// NewTransactionHandler cria uma nova instância do handler de transações.
func NewTransactionHandler(q TransactionReader) *TransactionHandler {
	return &TransactionHandler{Queries: q}
}

// List lista o histórico, opcionalmente filtrado.
// GET /transactions?q=&order=asc|desc&asset_id=
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := services.TransactionQuery{Search: params.Get("q")}

	switch strings.ToLower(params.Get("order")) {
	case "", "asc":
	case "desc":
		query.Order = storage.OrderDesc
	default:
		writeError(w, http.StatusBadRequest, "order must be asc or desc")
		return
	}

	if raw := params.Get("asset_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "asset_id must be a positive integer")
			return
		}
		query.AssetID = id
	}

	views, err := h.Queries.ListTransactions(r.Context(), query)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// Summary devolve volume total e quantidade de transações.
// GET /transactions/summary
func (h *TransactionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Queries.Summary(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
