package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ferreirogomes/ryzer/models"
)

// TypePurchaseAccepted identifica o evento emitido após o commit de uma compra.
const TypePurchaseAccepted = "purchase.accepted"

// PurchaseEvent é publicado depois que a compra já está gravada no ledger.
type PurchaseEvent struct {
	EventID     string                 `json:"event_id"`
	Type        string                 `json:"type"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Transaction models.TransactionView `json:"transaction"`
}

// NewPurchaseEvent monta o evento de uma compra aceita.
func NewPurchaseEvent(view models.TransactionView) PurchaseEvent {
	return PurchaseEvent{
		EventID:     uuid.NewString(),
		Type:        TypePurchaseAccepted,
		OccurredAt:  view.Timestamp,
		Transaction: view,
	}
}

// Encode serializa o evento para o corpo da mensagem.
func (e PurchaseEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher entrega eventos de compra a um destino externo.
// Publicar é best-effort: o chamador registra a falha e segue.
type Publisher interface {
	Publish(ctx context.Context, ev PurchaseEvent) error
	Close() error
}

// Noop descarta os eventos.
type Noop struct{}

func (Noop) Publish(context.Context, PurchaseEvent) error { return nil }

func (Noop) Close() error { return nil }

// Multi entrega cada evento a todos os publishers, mesmo se algum falhar.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev PurchaseEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
