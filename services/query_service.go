package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ferreirogomes/ryzer/models"
	"github.com/ferreirogomes/ryzer/storage"
)

// SummaryCache guarda resumos já calculados, versionados pela contagem do ledger.
type SummaryCache interface {
	Get(ctx context.Context, ledgerCount int64) (models.Summary, bool, error)
	Put(ctx context.Context, s models.Summary) error
}

// TransactionQuery filtra a listagem do histórico.
type TransactionQuery struct {
	// Busca sem diferenciar maiúsculas no nome do ativo ou do comprador.
	Search  string
	AssetID int64
	Order   storage.Order
}

// QueryService atende as leituras: histórico, resumo e catálogo.
type QueryService struct {
	store storage.Store
	cache SummaryCache
	group singleflight.Group
	log   *zap.Logger
}

// NewQueryService cria o serviço de consultas. cache pode ser nil.
func NewQueryService(store storage.Store, cache SummaryCache, log *zap.Logger) *QueryService {
	return &QueryService{store: store, cache: cache, log: log}
}

// ListTransactions devolve o histórico com o nome de cada ativo resolvido.
// Ativos sem nome aparecem como "Asset #<id>".
func (q *QueryService) ListTransactions(ctx context.Context, query TransactionQuery) ([]models.TransactionView, error) {
	assets, err := q.store.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}
	names := make(map[int64]string, len(assets))
	for _, a := range assets {
		names[a.ID] = a.Name
	}
	name := func(id int64) string { return models.DisplayName(id, names[id]) }

	term := strings.ToLower(strings.TrimSpace(query.Search))
	filter := storage.ListFilter{AssetID: query.AssetID, Order: query.Order}
	if term != "" && !anyNameContains(names, term) {
		// Nenhum ativo casa com o termo: só o comprador pode casar, e o banco filtra.
		filter.Buyer = term
		term = ""
	}

	txns, err := q.store.ListTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}

	views := make([]models.TransactionView, 0, len(txns))
	for _, t := range txns {
		v := models.TransactionView{Transaction: t, AssetName: name(t.AssetID)}
		if term != "" &&
			!strings.Contains(strings.ToLower(v.AssetName), term) &&
			!strings.Contains(strings.ToLower(t.BuyerName), term) {
			continue
		}
		views = append(views, v)
	}
	return views, nil
}

// anyNameContains informa se o termo pode casar com o nome resolvido de alguma transação.
func anyNameContains(names map[int64]string, term string) bool {
	for id, n := range names {
		if strings.Contains(strings.ToLower(models.DisplayName(id, n)), term) {
			return true
		}
	}
	// Ativos fora do catálogo viram "Asset #<id>"; na dúvida, não delega ao banco.
	return strings.Trim(term, "aset #0123456789") == ""
}

// Summary devolve volume total e quantidade de transações, sempre iguais à soma do ledger.
func (q *QueryService) Summary(ctx context.Context) (models.Summary, error) {
	if q.cache == nil {
		return q.totals(ctx)
	}

	head, err := q.store.Head(ctx)
	if err != nil {
		return models.Summary{}, fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}
	cached, ok, err := q.cache.Get(ctx, head.Count)
	if err != nil {
		q.log.Warn("cache de resumo indisponível, somando o ledger", zap.Error(err))
	}
	if ok {
		return cached, nil
	}

	// Uma soma em andamento para uma contagem menor não serve a quem já leu a maior.
	v, err, _ := q.group.Do("summary:"+strconv.FormatInt(head.Count, 10), func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		s, err := q.totals(fctx)
		if err != nil {
			return nil, err
		}
		if err := q.cache.Put(fctx, s); err != nil {
			q.log.Warn("falha ao atualizar cache de resumo", zap.Error(err))
		}
		return s, nil
	})
	if err != nil {
		return models.Summary{}, err
	}
	return v.(models.Summary), nil
}

func (q *QueryService) totals(ctx context.Context) (models.Summary, error) {
	s, err := q.store.Totals(ctx)
	if err != nil {
		return models.Summary{}, fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}
	return s, nil
}

// Assets lista o catálogo.
func (q *QueryService) Assets(ctx context.Context) ([]models.Asset, error) {
	assets, err := q.store.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}
	return assets, nil
}

// Asset busca um ativo do catálogo.
func (q *QueryService) Asset(ctx context.Context, id int64) (models.Asset, error) {
	a, found, err := q.store.GetAsset(ctx, id)
	if err != nil {
		return models.Asset{}, fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}
	if !found {
		return models.Asset{}, models.ErrAssetNotFound
	}
	return a, nil
}

// Projection calcula preço e renda projetada de uma compra hipotética.
func (q *QueryService) Projection(ctx context.Context, id, quantity int64) (models.Projection, error) {
	a, err := q.Asset(ctx, id)
	if err != nil {
		return models.Projection{}, err
	}
	if quantity <= 0 {
		return models.Projection{}, models.ErrInvalidQuantity
	}
	return a.Project(quantity), nil
}
