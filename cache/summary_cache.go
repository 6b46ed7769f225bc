package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ferreirogomes/ryzer/models"
)

const (
	fieldCount  = "count"
	fieldVolume = "volume"
)

// Connect abre o cliente Redis e confirma com um PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("falha ao conectar ao redis: %w", err)
	}
	return rdb, nil
}

// SummaryCache guarda o último resumo do ledger junto com a contagem que o gerou.
// Como o ledger só cresce, a contagem identifica o estado: um valor só é servido
// quando a contagem guardada é igual à atual.
type SummaryCache struct {
	rdb redis.Cmdable
	key string
}

// NewSummaryCache cria o cache sobre um cliente Redis.
func NewSummaryCache(rdb redis.Cmdable, key string) *SummaryCache {
	return &SummaryCache{rdb: rdb, key: key}
}

// Get devolve o resumo guardado se ele corresponder a ledgerCount.
func (c *SummaryCache) Get(ctx context.Context, ledgerCount int64) (models.Summary, bool, error) {
	fields, err := c.rdb.HGetAll(ctx, c.key).Result()
	if err != nil {
		return models.Summary{}, false, fmt.Errorf("falha ao ler resumo do cache: %w", err)
	}
	if len(fields) == 0 {
		return models.Summary{}, false, nil
	}

	count, err := strconv.ParseInt(fields[fieldCount], 10, 64)
	if err != nil || count != ledgerCount {
		return models.Summary{}, false, nil
	}
	volume, err := decimal.NewFromString(fields[fieldVolume])
	if err != nil {
		return models.Summary{}, false, nil
	}
	return models.Summary{TotalVolume: volume, TotalCount: count}, true, nil
}

// Put grava o resumo. Os dois campos são escritos num único HSET.
func (c *SummaryCache) Put(ctx context.Context, s models.Summary) error {
	err := c.rdb.HSet(ctx, c.key, fieldCount, s.TotalCount, fieldVolume, s.TotalVolume.String()).Err()
	if err != nil {
		return fmt.Errorf("falha ao gravar resumo no cache: %w", err)
	}
	return nil
}
