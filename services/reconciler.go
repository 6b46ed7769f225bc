package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ferreirogomes/ryzer/models"
	"github.com/ferreirogomes/ryzer/storage"
)

// ErrOversold indica um ledger que vendeu mais do que a oferta total do ativo.
var ErrOversold = errors.New("ledger vendeu acima da oferta total")

// Drift registra um estoque restante corrigido pela reconciliação.
type Drift struct {
	AssetID  int64 `json:"asset_id"`
	Recorded int64 `json:"recorded"`
	Expected int64 `json:"expected"`
}

// ReconcileReport resume uma passada de reconciliação.
type ReconcileReport struct {
	Checked  int     `json:"checked"`
	Fixed    []Drift `json:"fixed"`
	Oversold []Drift `json:"oversold"`
	// Ativos ocupados por compras durante a passada; ficam para a próxima.
	Skipped []int64 `json:"skipped"`
}

// Reconciler recalcula o estoque restante de cada ativo a partir do ledger,
// que é a fonte da verdade: restante = oferta total - soma das quantidades vendidas.
type Reconciler struct {
	store    storage.Store
	locks    *AssetLocks
	interval time.Duration
	log      *zap.Logger
}

// NewReconciler cria o reconciliador. interval = 0 desliga a execução periódica.
func NewReconciler(store storage.Store, locks *AssetLocks, interval time.Duration, log *zap.Logger) *Reconciler {
	return &Reconciler{store: store, locks: locks, interval: interval, log: log}
}

// Reconcile verifica todos os ativos, cada um sob o seu lock.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	assets, err := r.store.ListAssets(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}

	var errs []error
	for _, a := range assets {
		drift, err := r.reconcileAsset(ctx, a.ID)
		switch {
		case errors.Is(err, models.ErrBusy):
			report.Skipped = append(report.Skipped, a.ID)
			continue
		case errors.Is(err, ErrOversold):
			report.Oversold = append(report.Oversold, *drift)
			errs = append(errs, err)
		case err != nil:
			return report, err
		case drift != nil:
			report.Fixed = append(report.Fixed, *drift)
		}
		report.Checked++
	}

	if len(errs) > 0 {
		return report, errors.Join(errs...)
	}
	return report, nil
}

func (r *Reconciler) reconcileAsset(ctx context.Context, assetID int64) (*Drift, error) {
	unlock, err := r.locks.Acquire(ctx, assetID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var drift *Drift
	err = r.store.WithinTx(ctx, func(tx storage.Tx) error {
		a, found, err := tx.GetAsset(ctx, assetID)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		sold, err := tx.SoldQuantity(ctx, assetID)
		if err != nil {
			return err
		}

		expected := a.TotalSupply - sold
		if expected == a.RemainingSupply {
			return nil
		}
		drift = &Drift{AssetID: assetID, Recorded: a.RemainingSupply, Expected: expected}
		if expected < 0 {
			return fmt.Errorf("%w: asset %d sold %d of %d", ErrOversold, assetID, sold, a.TotalSupply)
		}
		return tx.SetRemainingSupply(ctx, assetID, expected)
	})

	if errors.Is(err, ErrOversold) {
		r.log.Error("ledger vendeu acima da oferta, estoque não alterado",
			zap.Int64("asset_id", assetID), zap.Int64("expected", drift.Expected))
		return drift, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}
	if drift != nil {
		r.log.Warn("estoque restante divergia do ledger, corrigido",
			zap.Int64("asset_id", assetID),
			zap.Int64("recorded", drift.Recorded),
			zap.Int64("expected", drift.Expected))
	}
	return drift, nil
}

// Run reconcilia uma vez e depois a cada intervalo, até o contexto terminar.
func (r *Reconciler) Run(ctx context.Context) error {
	r.log.Info("iniciando reconciliação de estoque", zap.Duration("interval", r.interval))
	r.runOnce(ctx)
	if r.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) {
	report, err := r.Reconcile(ctx)
	if err != nil {
		// Erros não derrubam o serviço; a próxima passada tenta de novo.
		r.log.Error("reconciliação falhou", zap.Error(err))
		return
	}
	r.log.Debug("reconciliação concluída",
		zap.Int("checked", report.Checked),
		zap.Int("fixed", len(report.Fixed)),
		zap.Int("skipped", len(report.Skipped)))
}
