package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull indica que o evento foi descartado porque a fila está cheia.
	ErrQueueFull = errors.New("fila de eventos cheia")
	// ErrPublisherClosed indica publicação depois de Close.
	ErrPublisherClosed = errors.New("publisher encerrado")
)

// Async tira a entrega do caminho da requisição. Publish só enfileira;
// uma goroutine entrega ao publisher interno na ordem de chegada.
type Async struct {
	inner   Publisher
	queue   chan PurchaseEvent
	timeout time.Duration
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ Publisher = (*Async)(nil)

// NewAsync inicia a goroutine de entrega. timeout limita cada entrega ao publisher interno.
func NewAsync(inner Publisher, size int, timeout time.Duration, log *zap.Logger) *Async {
	a := &Async{
		inner:   inner,
		queue:   make(chan PurchaseEvent, size),
		timeout: timeout,
		log:     log,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Publish enfileira o evento sem bloquear.
func (a *Async) Publish(_ context.Context, ev PurchaseEvent) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrPublisherClosed
	}
	select {
	case a.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.inner.Publish(ctx, ev); err != nil {
			a.log.Warn("falha ao entregar evento de compra",
				zap.String("event_id", ev.EventID),
				zap.Int64("transaction_id", ev.Transaction.ID),
				zap.Error(err))
		}
		cancel()
	}
}

// Close entrega o que já está na fila e fecha o publisher interno.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.inner.Close()
}
