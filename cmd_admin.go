package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ferreirogomes/ryzer/services"
	"github.com/ferreirogomes/ryzer/storage"
)

var migrateSteps int

// migrateCmd aplica ou desfaz migrações do banco configurado.
var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Aplica (up) ou desfaz (down) migrações",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DBDriver == storage.DriverMemory {
			return errors.New("DB_DRIVER=memory não tem migrações")
		}
		dir := migrate.Up
		if len(args) == 1 && args[0] == "down" {
			dir = migrate.Down
		}

		db, err := storage.Connect(cfg.DBDriver, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.Migrate(dir, migrateSteps)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d migrações aplicadas\n", n)
		return nil
	},
}

// seedCmd cadastra ativos de um arquivo YAML.
var seedCmd = &cobra.Command{
	Use:   "seed [arquivo]",
	Short: "Cadastra os ativos do arquivo que ainda não existem",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.SeedFile
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return errors.New("informe o arquivo de seed ou defina SEED_FILE")
		}
		if cfg.DBDriver == storage.DriverMemory {
			logger.Warn("seed em memória é descartado ao fim do comando")
		}

		store, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		return seedFromFile(cmd.Context(), store, path, logger)
	},
}

// reconcileCmd roda uma passada de reconciliação e imprime o relatório.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Recalcula o estoque restante a partir do ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		r := services.NewReconciler(store, services.NewAssetLocks(cfg.LockTimeout), 0, logger)
		report, err := r.Reconcile(cmd.Context())

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			logger.Warn("falha ao imprimir relatório", zap.Error(encErr))
		}
		return err
	},
}

func init() {
	migrateCmd.Flags().IntVar(&migrateSteps, "steps", 0, "máximo de migrações a aplicar (0 = todas)")
}
