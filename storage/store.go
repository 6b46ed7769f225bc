package storage

import (
	"context"
	"time"

	"github.com/ferreirogomes/ryzer/models"
)

// Order define a ordem de listagem do ledger.
type Order int

const (
	// OrderAsc é a ordem natural do ledger: timestamp crescente, id como desempate.
	OrderAsc Order = iota
	OrderDesc
)

// ListFilter restringe a listagem do ledger. Campos zerados não filtram.
type ListFilter struct {
	AssetID int64
	// Substring do nome do comprador, sem diferenciar maiúsculas.
	Buyer string
	Order Order
	Limit int
}

// LedgerHead descreve o fim do ledger, usado para semear o sequenciador e versionar caches.
type LedgerHead struct {
	LastID        int64
	LastTimestamp time.Time
	Count         int64
}

// AssetCatalog é a leitura do catálogo de ativos.
type AssetCatalog interface {
	GetAsset(ctx context.Context, id int64) (models.Asset, bool, error)
	ListAssets(ctx context.Context) ([]models.Asset, error)
}

// Ledger é o registro append-only de transações aceitas.
type Ledger interface {
	// AppendTransaction é idempotente no ID: regravar um ID existente não faz nada.
	AppendTransaction(ctx context.Context, txn models.Transaction) error
	ListTransactions(ctx context.Context, filter ListFilter) ([]models.Transaction, error)
	Totals(ctx context.Context) (models.Summary, error)
	Head(ctx context.Context) (LedgerHead, error)
}

// Store junta catálogo e ledger e oferece uma unidade de trabalho atômica sobre os dois.
type Store interface {
	AssetCatalog
	Ledger
	// WithinTx executa fn numa transação: ou todas as escritas de fn valem, ou nenhuma.
	WithinTx(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// Tx são as operações disponíveis dentro de uma unidade de trabalho.
type Tx interface {
	GetAsset(ctx context.Context, id int64) (models.Asset, bool, error)
	// Reserve decrementa o estoque restante se houver quantidade suficiente.
	// Devolve o ativo já atualizado, models.ErrAssetNotFound ou models.ErrInsufficientSupply.
	Reserve(ctx context.Context, assetID, quantity int64) (models.Asset, error)
	// AppendTransaction informa se a linha foi gravada; false significa que o ID já existia.
	AppendTransaction(ctx context.Context, txn models.Transaction) (bool, error)
	FindByRequestKey(ctx context.Context, key string) (models.Transaction, bool, error)
	SoldQuantity(ctx context.Context, assetID int64) (int64, error)
	// SetRemainingSupply é usado apenas pela reconciliação.
	SetRemainingSupply(ctx context.Context, assetID, remaining int64) error
	// InsertAsset cria o ativo se ele ainda não existir. Ativos existentes nunca são alterados.
	InsertAsset(ctx context.Context, asset models.Asset) (bool, error)
}
