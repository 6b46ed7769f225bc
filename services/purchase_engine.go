package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ferreirogomes/ryzer/events"
	"github.com/ferreirogomes/ryzer/models"
	"github.com/ferreirogomes/ryzer/storage"
)

const publishTimeout = 5 * time.Second

var errIDCollision = errors.New("id de transação já existe no ledger")

// PurchaseRequest é um pedido de compra de frações de um ativo.
type PurchaseRequest struct {
	AssetID   int64
	BuyerName string
	Quantity  int64
	// Opcional. Repetir a mesma chave com os mesmos dados devolve a compra original.
	IdempotencyKey string
}

// PurchaseEngine aceita ou recusa compras. É o único caminho que altera o estoque restante.
type PurchaseEngine struct {
	store     storage.Store
	locks     *AssetLocks
	seq       *Sequencer
	publisher events.Publisher
	log       *zap.Logger
}

// NewPurchaseEngine cria o motor de compras. publisher pode ser nil.
func NewPurchaseEngine(store storage.Store, locks *AssetLocks, seq *Sequencer, publisher events.Publisher, log *zap.Logger) *PurchaseEngine {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &PurchaseEngine{
		store:     store,
		locks:     locks,
		seq:       seq,
		publisher: publisher,
		log:       log,
	}
}

// Purchase valida o pedido, reserva o estoque e grava a transação numa única unidade de trabalho.
//
// As falhas são reportadas nesta ordem: ErrAssetNotFound, ErrInvalidBuyer,
// ErrInvalidQuantity, ErrInsufficientSupply. ErrBusy indica que o ativo ficou
// ocupado além do tempo de espera; ErrStorageFailure indica que nada foi gravado.
func (e *PurchaseEngine) Purchase(ctx context.Context, req PurchaseRequest) (models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return models.Transaction{}, err
	}

	asset, found, err := e.store.GetAsset(ctx, req.AssetID)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}
	if !found {
		return models.Transaction{}, models.ErrAssetNotFound
	}
	buyer := strings.TrimSpace(req.BuyerName)
	if buyer == "" {
		return models.Transaction{}, models.ErrInvalidBuyer
	}
	if req.Quantity <= 0 {
		return models.Transaction{}, models.ErrInvalidQuantity
	}

	unlock, err := e.locks.Acquire(ctx, asset.ID)
	if err != nil {
		if errors.Is(err, models.ErrBusy) {
			e.log.Warn("ativo ocupado, compra recusada", zap.Int64("asset_id", asset.ID))
		}
		return models.Transaction{}, err
	}
	defer unlock()

	// Daqui em diante a compra vai até o fim mesmo que o chamador desista.
	workCtx := context.WithoutCancel(ctx)

	var (
		txn    models.Transaction
		replay bool
	)
	err = e.store.WithinTx(workCtx, func(tx storage.Tx) error {
		if req.IdempotencyKey != "" {
			prev, found, err := tx.FindByRequestKey(workCtx, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if found {
				if prev.AssetID != asset.ID || prev.BuyerName != buyer || prev.Quantity != req.Quantity {
					return models.ErrIdempotencyKeyReused
				}
				txn, replay = prev, true
				return nil
			}
		}

		reserved, err := tx.Reserve(workCtx, asset.ID, req.Quantity)
		if err != nil {
			return err
		}
		asset = reserved

		id, ts := e.seq.Next()
		txn = models.Transaction{
			ID:         id,
			AssetID:    asset.ID,
			BuyerName:  buyer,
			Quantity:   req.Quantity,
			UnitPrice:  asset.UnitPrice,
			TotalPrice: models.TotalFor(asset.UnitPrice, req.Quantity),
			Timestamp:  ts,
			RequestKey: req.IdempotencyKey,
		}
		inserted, err := tx.AppendTransaction(workCtx, txn)
		if err != nil {
			return err
		}
		if !inserted {
			return errIDCollision
		}
		return nil
	})
	if err != nil {
		return models.Transaction{}, e.classify(workCtx, asset.ID, err)
	}

	if replay {
		e.log.Info("compra repetida com a mesma chave, devolvendo a original",
			zap.Int64("transaction_id", txn.ID), zap.String("idempotency_key", req.IdempotencyKey))
		return txn, nil
	}
	unlock()

	e.log.Info("compra aceita",
		zap.Int64("transaction_id", txn.ID),
		zap.Int64("asset_id", txn.AssetID),
		zap.Int64("quantity", txn.Quantity),
		zap.Int64("remaining_supply", asset.RemainingSupply),
		zap.String("total_price", txn.TotalPrice.String()))
	e.publish(workCtx, txn, asset.Name)
	return txn, nil
}

// classify mantém as falhas de negócio e converte o resto em ErrStorageFailure.
func (e *PurchaseEngine) classify(ctx context.Context, assetID int64, err error) error {
	switch {
	case errors.Is(err, models.ErrInsufficientSupply),
		errors.Is(err, models.ErrIdempotencyKeyReused),
		errors.Is(err, models.ErrAssetNotFound):
		return err
	}

	if errors.Is(err, errIDCollision) {
		// Outro processo gravou no mesmo ledger; realinha a sequência para a próxima tentativa.
		if head, herr := e.store.Head(ctx); herr == nil {
			e.seq.Advance(head)
		}
	}
	e.log.Error("falha ao gravar compra, nada foi alterado", zap.Int64("asset_id", assetID), zap.Error(err))
	return fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
}

func (e *PurchaseEngine) publish(ctx context.Context, txn models.Transaction, assetName string) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	view := models.TransactionView{Transaction: txn, AssetName: models.DisplayName(txn.AssetID, assetName)}
	if err := e.publisher.Publish(ctx, events.NewPurchaseEvent(view)); err != nil {
		e.log.Warn("falha ao publicar evento de compra", zap.Int64("transaction_id", txn.ID), zap.Error(err))
	}
}
