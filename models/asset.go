package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Asset representa um ativo tokenizado de oferta fixa, vendido em frações.
type Asset struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
	// Preço por token. Imutável para o núcleo de compras.
	UnitPrice   decimal.Decimal `json:"price" db:"unit_price"`
	TotalSupply int64           `json:"total_supply" db:"total_supply"`
	// Alterado apenas por compras aceitas (e pela reconciliação).
	RemainingSupply int64 `json:"supply" db:"remaining_supply"`
	// Informativo, usado só na projeção de renda.
	ROIPercent decimal.NullDecimal `json:"roi" db:"roi_percent"`
	CreatedAt  time.Time           `json:"created_at" db:"created_at"`
}

// Projection é a renda projetada de uma compra, exibida no diálogo de compra.
type Projection struct {
	TotalPrice    decimal.Decimal `json:"total_price"`
	AnnualIncome  decimal.Decimal `json:"annual_income"`
	MonthlyIncome decimal.Decimal `json:"monthly_income"`
}

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// Project calcula o preço total e a renda projetada para a quantidade informada.
// Sem ROI cadastrado, a renda projetada é zero.
func (a Asset) Project(quantity int64) Projection {
	total := a.UnitPrice.Mul(decimal.NewFromInt(quantity))
	p := Projection{TotalPrice: total, AnnualIncome: decimal.Zero, MonthlyIncome: decimal.Zero}
	if a.ROIPercent.Valid {
		p.AnnualIncome = total.Mul(a.ROIPercent.Decimal).Div(hundred).Round(2)
		p.MonthlyIncome = p.AnnualIncome.Div(twelve).Round(2)
	}
	return p
}

// DisplayName devolve o nome amigável do ativo ou o marcador "Asset #<id>".
func DisplayName(id int64, name string) string {
	if name == "" {
		return fmt.Sprintf("Asset #%d", id)
	}
	return name
}
