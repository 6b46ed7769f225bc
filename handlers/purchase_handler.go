package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ferreirogomes/ryzer/models"
	"github.com/ferreirogomes/ryzer/services"
)

// IdempotencyKeyHeader carrega a chave opcional que torna a repetição de uma compra segura.
const IdempotencyKeyHeader = "Idempotency-Key"

// Purchaser executa compras.
type Purchaser interface {
	Purchase(ctx context.Context, req services.PurchaseRequest) (models.Transaction, error)
}

// PurchaseHandler lida com requisições de compra.
type PurchaseHandler struct {
	Engine Purchaser
	log    *zap.Logger
}

// NewPurchaseHandler cria uma nova instância do handler de compras.
func NewPurchaseHandler(engine Purchaser, log *zap.Logger) *PurchaseHandler {
	return &PurchaseHandler{Engine: engine, log: log}
}

type buyRequest struct {
	AssetID   json.RawMessage `json:"assetId"`
	Quantity  json.RawMessage `json:"quantity"`
	BuyerName string          `json:"buyerName"`
}

// Buy executa uma compra.
// POST /buy
func (h *PurchaseHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var body buyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	if key != "" {
		parsed, err := uuid.Parse(key)
		if err != nil {
			writeError(w, http.StatusBadRequest, IdempotencyKeyHeader+" must be a UUID")
			return
		}
		key = parsed.String()
	}

	// Um ID ilegível não identifica nenhum ativo; uma quantidade que não é inteira
	// vira 0 e o motor a recusa depois das validações de ativo e comprador.
	assetID, ok := parseWhole(body.AssetID)
	if !ok {
		writeFailure(w, models.ErrAssetNotFound)
		return
	}
	quantity, _ := parseWhole(body.Quantity)

	txn, err := h.Engine.Purchase(r.Context(), services.PurchaseRequest{
		AssetID:        assetID,
		BuyerName:      body.BuyerName,
		Quantity:       quantity,
		IdempotencyKey: key,
	})
	if err != nil {
		h.log.Debug("compra recusada", zap.Int64("asset_id", assetID), zap.Error(err))
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

var (
	maxWhole = decimal.NewFromInt(math.MaxInt64)
	minWhole = decimal.NewFromInt(math.MinInt64)
)

// parseWhole aceita números JSON ou strings numéricas, desde que sejam inteiros.
func parseWhole(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, false
		}
	}
	d, err := decimal.NewFromString(text)
	if err != nil || !d.IsInteger() {
		return 0, false
	}
	// Fora do int64 satura: uma quantidade enorme continua sendo uma quantidade válida.
	switch {
	case d.GreaterThan(maxWhole):
		return math.MaxInt64, true
	case d.LessThan(minWhole):
		return math.MinInt64, true
	}
	return d.IntPart(), true
}
