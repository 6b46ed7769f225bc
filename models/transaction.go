package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction é o registro imutável de uma compra aceita no ledger.
// Depois de gravada, nenhuma rotina a altera ou remove.
type Transaction struct {
	ID        int64  `json:"id" db:"id"`
	AssetID   int64  `json:"asset_id" db:"asset_id"`
	BuyerName string `json:"buyer" db:"buyer_name"`
	Quantity  int64  `json:"quantity" db:"quantity"`
	// Preço unitário capturado no momento da compra.
	UnitPrice  decimal.Decimal `json:"price" db:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price" db:"total_price"`
	Timestamp  time.Time       `json:"timestamp" db:"created_at"`
	// Chave de idempotência enviada pelo cliente, vazia quando ausente.
	RequestKey string `json:"-" db:"request_key"`
}

// TransactionView é uma transação acompanhada do nome resolvido do ativo.
type TransactionView struct {
	Transaction
	AssetName string `json:"asset_name"`
}

// Summary agrega o ledger inteiro. Sempre derivado de um fold sobre as transações.
type Summary struct {
	TotalVolume decimal.Decimal `json:"total_volume"`
	TotalCount  int64           `json:"total_count"`
}

// TotalFor calcula quantidade × preço unitário.
func TotalFor(unitPrice decimal.Decimal, quantity int64) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(quantity))
}
