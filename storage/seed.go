package storage

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ferreirogomes/ryzer/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// moneyScale é o número de casas decimais das colunas monetárias no Postgres.
const moneyScale = 4

type seedFile struct {
	Assets []seedAsset `yaml:"assets"`
}

type seedAsset struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Price       string `yaml:"price"`
	TotalSupply int64  `yaml:"total_supply"`
	ROI         string `yaml:"roi"`
}

// LoadSeedFile lê o catálogo inicial de um arquivo YAML.
func LoadSeedFile(path string) ([]models.Asset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("falha ao ler arquivo de seed: %w", err)
	}
	return ParseSeed(raw)
}

// ParseSeed valida e converte o YAML de seed em ativos com estoque cheio.
func ParseSeed(raw []byte) ([]models.Asset, error) {
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("seed inválido: %w", err)
	}

	now := time.Now().UTC()
	seen := make(map[int64]bool, len(f.Assets))
	assets := make([]models.Asset, 0, len(f.Assets))
	for i, s := range f.Assets {
		if s.ID <= 0 {
			return nil, fmt.Errorf("seed: ativo %d sem id positivo", i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("seed: id %d repetido", s.ID)
		}
		seen[s.ID] = true

		price, err := decimal.NewFromString(strings.TrimSpace(s.Price))
		if err != nil || !price.IsPositive() || !fitsMoneyScale(price) {
			return nil, fmt.Errorf("seed: preço inválido para o ativo %d: %q", s.ID, s.Price)
		}
		if s.TotalSupply <= 0 {
			return nil, fmt.Errorf("seed: oferta total inválida para o ativo %d", s.ID)
		}

		a := models.Asset{
			ID:              s.ID,
			Name:            strings.TrimSpace(s.Name),
			UnitPrice:       price,
			TotalSupply:     s.TotalSupply,
			RemainingSupply: s.TotalSupply,
			CreatedAt:       now,
		}
		if roi := strings.TrimSpace(s.ROI); roi != "" {
			v, err := decimal.NewFromString(roi)
			if err != nil || !fitsMoneyScale(v) {
				return nil, fmt.Errorf("seed: roi inválido para o ativo %d: %q", s.ID, s.ROI)
			}
			a.ROIPercent = decimal.NewNullDecimal(v)
		}
		assets = append(assets, a)
	}
	return assets, nil
}

// fitsMoneyScale informa se o valor cabe nas colunas NUMERIC(_, 4) sem arredondar.
func fitsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(moneyScale))
}

// Seed cria os ativos que ainda não existem. Ativos já cadastrados não são tocados,
// pois preço e oferta são imutáveis.
func Seed(ctx context.Context, store Store, assets []models.Asset) (int, error) {
	inserted := 0
	err := store.WithinTx(ctx, func(tx Tx) error {
		inserted = 0
		for _, a := range assets {
			ok, err := tx.InsertAsset(ctx, a)
			if err != nil {
				return err
			}
			if ok {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
