package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ferreirogomes/ryzer/config"
	"github.com/ferreirogomes/ryzer/storage"
)

// openStore abre o armazenamento escolhido em DB_DRIVER, já migrado.
func openStore(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.DBDriver == storage.DriverMemory {
		log.Warn("usando armazenamento em memória; nada sobrevive a um reinício")
		return storage.NewMemoryStore(), nil
	}
	db, err := storage.NewDB(cfg.DBDriver, cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	return storage.NewSQLStore(db), nil
}

// seedFromFile cadastra os ativos do arquivo que ainda não existem.
func seedFromFile(ctx context.Context, store storage.Store, path string, log *zap.Logger) error {
	assets, err := storage.LoadSeedFile(path)
	if err != nil {
		return err
	}
	n, err := storage.Seed(ctx, store, assets)
	if err != nil {
		return fmt.Errorf("falha ao semear ativos: %w", err)
	}
	log.Info("seed concluído", zap.String("file", path), zap.Int("inserted", n), zap.Int("total", len(assets)))
	return nil
}
