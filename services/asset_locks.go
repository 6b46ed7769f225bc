package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ferreirogomes/ryzer/models"
)

// AssetLocks dá exclusividade por ativo com espera limitada.
// Compras de ativos diferentes nunca disputam o mesmo lock.
type AssetLocks struct {
	mu      sync.Mutex
	locks   map[int64]*semaphore.Weighted
	timeout time.Duration
}

// NewAssetLocks cria o conjunto de locks. timeout é a espera máxima por um ativo ocupado.
func NewAssetLocks(timeout time.Duration) *AssetLocks {
	return &AssetLocks{
		locks:   make(map[int64]*semaphore.Weighted),
		timeout: timeout,
	}
}

func (l *AssetLocks) getLock(assetID int64) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.locks[assetID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.locks[assetID] = sem
	}
	return sem
}

// Acquire espera pelo lock do ativo e devolve a função que o libera.
// Se o contexto do chamador terminar antes, devolve ctx.Err(); se o tempo
// de espera esgotar, devolve models.ErrBusy.
func (l *AssetLocks) Acquire(ctx context.Context, assetID int64) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sem := l.getLock(assetID)

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := sem.Acquire(waitCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: waited %s for asset %d", models.ErrBusy, l.timeout, assetID)
	}

	var once sync.Once
	return func() { once.Do(func() { sem.Release(1) }) }, nil
}
