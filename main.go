package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ferreirogomes/ryzer/config"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd carrega configuração e logger antes de qualquer subcomando.
var rootCmd = &cobra.Command{
	Use:   "ryzer",
	Short: "Motor de compras de ativos tokenizados e ledger de transações",
	Long: `ryzer vende frações de ativos de oferta fixa e registra cada compra aceita
num ledger append-only.

Subcomandos:
  serve     - sobe a API HTTP, o feed em websocket e a reconciliação periódica
  migrate   - aplica ou desfaz as migrações do banco
  seed      - cadastra os ativos de um arquivo YAML que ainda não existem
  reconcile - recalcula o estoque restante a partir do ledger`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger, err = newLogger(cfg)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, reconcileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger usa a configuração de desenvolvimento localmente e JSON nos demais ambientes.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.IsLocal() {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("LOG_LEVEL inválido: %w", err)
		}
		zc.Level = level
	}
	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("falha ao criar logger: %w", err)
	}
	return log.With(zap.String("env", cfg.AppEnv)), nil
}
