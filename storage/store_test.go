package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ferreirogomes/ryzer/models"
	"github.com/ferreirogomes/ryzer/storage"
)

var errBoom = errors.New("boom")

func testAsset(id, supply int64, price string) models.Asset {
	return models.Asset{
		ID:              id,
		Name:            "Ativo de teste",
		UnitPrice:       decimal.RequireFromString(price),
		TotalSupply:     supply,
		RemainingSupply: supply,
		CreatedAt:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testTxn(id, assetID int64, buyer string, qty int64, ts time.Time) models.Transaction {
	price := decimal.NewFromInt(100)
	return models.Transaction{
		ID:         id,
		AssetID:    assetID,
		BuyerName:  buyer,
		Quantity:   qty,
		UnitPrice:  price,
		TotalPrice: models.TotalFor(price, qty),
		Timestamp:  ts,
	}
}

// newStores devolve um Store de cada implementação, já com os ativos informados.
func newStores(t *testing.T, assets ...models.Asset) map[string]storage.Store {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "ryzer.db") + "?_time_format=sqlite"
	db, err := storage.NewDB(storage.DriverSQLite, dsn, zap.NewNop())
	require.NoError(t, err)
	sqlStore := storage.NewSQLStore(db)
	t.Cleanup(func() { sqlStore.Close() })

	_, err = storage.Seed(context.Background(), sqlStore, assets)
	require.NoError(t, err)

	return map[string]storage.Store{
		"memory": storage.NewMemoryStore(assets...),
		"sqlite": sqlStore,
	}
}

func TestReserveAndAppendCommitTogether(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t, testAsset(1, 5, "100")) {
		t.Run(name, func(t *testing.T) {
			ts := time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC)
			err := store.WithinTx(ctx, func(tx storage.Tx) error {
				a, err := tx.Reserve(ctx, 1, 3)
				if err != nil {
					return err
				}
				assert.Equal(t, int64(2), a.RemainingSupply)
				inserted, err := tx.AppendTransaction(ctx, testTxn(1, 1, "Alice", 3, ts))
				assert.True(t, inserted)
				return err
			})
			require.NoError(t, err)

			a, found, err := store.GetAsset(ctx, 1)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, int64(2), a.RemainingSupply)

			txns, err := store.ListTransactions(ctx, storage.ListFilter{})
			require.NoError(t, err)
			require.Len(t, txns, 1)
			assert.Equal(t, "Alice", txns[0].BuyerName)
			assert.True(t, ts.Equal(txns[0].Timestamp), "timestamp %s != %s", txns[0].Timestamp, ts)
			assert.True(t, decimal.NewFromInt(300).Equal(txns[0].TotalPrice))
		})
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t, testAsset(1, 5, "100")) {
		t.Run(name, func(t *testing.T) {
			err := store.WithinTx(ctx, func(tx storage.Tx) error {
				if _, err := tx.Reserve(ctx, 1, 3); err != nil {
					return err
				}
				if _, err := tx.AppendTransaction(ctx, testTxn(1, 1, "Alice", 3, time.Now().UTC())); err != nil {
					return err
				}
				return errBoom
			})
			assert.ErrorIs(t, err, errBoom)

			a, _, err := store.GetAsset(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(5), a.RemainingSupply)

			txns, err := store.ListTransactions(ctx, storage.ListFilter{})
			require.NoError(t, err)
			assert.Empty(t, txns)
		})
	}
}

func TestReserveFailures(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t, testAsset(1, 2, "100")) {
		t.Run(name, func(t *testing.T) {
			err := store.WithinTx(ctx, func(tx storage.Tx) error {
				_, err := tx.Reserve(ctx, 1, 5)
				return err
			})
			assert.ErrorIs(t, err, models.ErrInsufficientSupply)

			err = store.WithinTx(ctx, func(tx storage.Tx) error {
				_, err := tx.Reserve(ctx, 99, 1)
				return err
			})
			assert.ErrorIs(t, err, models.ErrAssetNotFound)

			a, _, err := store.GetAsset(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(2), a.RemainingSupply)
		})
	}
}

func TestAppendIsIdempotentOnID(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t, testAsset(1, 5, "100")) {
		t.Run(name, func(t *testing.T) {
			txn := testTxn(7, 1, "Alice", 1, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
			require.NoError(t, store.AppendTransaction(ctx, txn))
			require.NoError(t, store.AppendTransaction(ctx, txn))

			sum, err := store.Totals(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), sum.TotalCount)
			assert.True(t, decimal.NewFromInt(100).Equal(sum.TotalVolume))
		})
	}
}

func TestListTransactionsOrderAndFilters(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for name, store := range newStores(t, testAsset(1, 50, "100"), testAsset(2, 50, "100")) {
		t.Run(name, func(t *testing.T) {
			// Inseridos fora de ordem; IDs 2 e 3 empatam no timestamp.
			require.NoError(t, store.AppendTransaction(ctx, testTxn(3, 2, "carol_x", 1, base.Add(time.Second))))
			require.NoError(t, store.AppendTransaction(ctx, testTxn(1, 1, "Alice", 1, base)))
			require.NoError(t, store.AppendTransaction(ctx, testTxn(2, 1, "Bob 100%", 1, base.Add(time.Second))))
			require.NoError(t, store.AppendTransaction(ctx, testTxn(4, 2, "ALINE", 1, base.Add(2*time.Second))))

			ids := func(txns []models.Transaction) []int64 {
				out := make([]int64, 0, len(txns))
				for _, t := range txns {
					out = append(out, t.ID)
				}
				return out
			}

			all, err := store.ListTransactions(ctx, storage.ListFilter{})
			require.NoError(t, err)
			assert.Equal(t, []int64{1, 2, 3, 4}, ids(all))

			desc, err := store.ListTransactions(ctx, storage.ListFilter{Order: storage.OrderDesc, Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, []int64{4, 3}, ids(desc))

			byAsset, err := store.ListTransactions(ctx, storage.ListFilter{AssetID: 2})
			require.NoError(t, err)
			assert.Equal(t, []int64{3, 4}, ids(byAsset))

			byBuyer, err := store.ListTransactions(ctx, storage.ListFilter{Buyer: "al"})
			require.NoError(t, err)
			assert.Equal(t, []int64{1, 4}, ids(byBuyer))

			// Curingas do LIKE são tratados como texto.
			literal, err := store.ListTransactions(ctx, storage.ListFilter{Buyer: "0%"})
			require.NoError(t, err)
			assert.Equal(t, []int64{2}, ids(literal))
			underscore, err := store.ListTransactions(ctx, storage.ListFilter{Buyer: "l_x"})
			require.NoError(t, err)
			assert.Equal(t, []int64{3}, ids(underscore))
		})
	}
}

func TestHeadAndTotals(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t, testAsset(1, 50, "100")) {
		t.Run(name, func(t *testing.T) {
			head, err := store.Head(ctx)
			require.NoError(t, err)
			assert.Equal(t, storage.LedgerHead{}, head)

			last := time.Date(2024, 6, 1, 10, 30, 0, 500000000, time.UTC)
			require.NoError(t, store.AppendTransaction(ctx, testTxn(1, 1, "Alice", 2, last.Add(-time.Hour))))
			require.NoError(t, store.AppendTransaction(ctx, testTxn(2, 1, "Bob", 3, last)))

			head, err = store.Head(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), head.LastID)
			assert.Equal(t, int64(2), head.Count)
			assert.True(t, last.Equal(head.LastTimestamp))

			sum, err := store.Totals(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), sum.TotalCount)
			assert.True(t, decimal.NewFromInt(500).Equal(sum.TotalVolume))
		})
	}
}

func TestRequestKeyLookup(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t, testAsset(1, 50, "100")) {
		t.Run(name, func(t *testing.T) {
			keyed := testTxn(1, 1, "Alice", 2, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
			keyed.RequestKey = "6f1c2b8e-3d0a-4a43-9a8e-2f4b1d9c7e10"
			require.NoError(t, store.AppendTransaction(ctx, keyed))
			// Transações sem chave não conflitam entre si.
			require.NoError(t, store.AppendTransaction(ctx, testTxn(2, 1, "Bob", 1, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))))
			require.NoError(t, store.AppendTransaction(ctx, testTxn(3, 1, "Carol", 1, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC))))

			err := store.WithinTx(ctx, func(tx storage.Tx) error {
				got, found, err := tx.FindByRequestKey(ctx, keyed.RequestKey)
				require.NoError(t, err)
				require.True(t, found)
				assert.Equal(t, int64(1), got.ID)
				assert.Equal(t, keyed.RequestKey, got.RequestKey)

				_, found, err = tx.FindByRequestKey(ctx, "missing")
				require.NoError(t, err)
				assert.False(t, found)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestSoldQuantityAndSetRemaining(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t, testAsset(1, 10, "100")) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.AppendTransaction(ctx, testTxn(1, 1, "Alice", 3, time.Now().UTC())))
			require.NoError(t, store.AppendTransaction(ctx, testTxn(2, 1, "Bob", 4, time.Now().UTC())))

			err := store.WithinTx(ctx, func(tx storage.Tx) error {
				sold, err := tx.SoldQuantity(ctx, 1)
				require.NoError(t, err)
				assert.Equal(t, int64(7), sold)
				return tx.SetRemainingSupply(ctx, 1, 3)
			})
			require.NoError(t, err)

			a, _, err := store.GetAsset(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(3), a.RemainingSupply)

			err = store.WithinTx(ctx, func(tx storage.Tx) error {
				return tx.SetRemainingSupply(ctx, 42, 1)
			})
			assert.ErrorIs(t, err, models.ErrAssetNotFound)
		})
	}
}

func TestTxAppendReportsExistingID(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t, testAsset(1, 10, "100")) {
		t.Run(name, func(t *testing.T) {
			txn := testTxn(5, 1, "Alice", 1, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
			require.NoError(t, store.AppendTransaction(ctx, txn))

			other := testTxn(5, 1, "Mallory", 9, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))
			err := store.WithinTx(ctx, func(tx storage.Tx) error {
				inserted, err := tx.AppendTransaction(ctx, other)
				require.NoError(t, err)
				assert.False(t, inserted)
				return nil
			})
			require.NoError(t, err)

			txns, err := store.ListTransactions(ctx, storage.ListFilter{})
			require.NoError(t, err)
			require.Len(t, txns, 1)
			assert.Equal(t, "Alice", txns[0].BuyerName)
		})
	}
}

func TestMoneyRoundTripsExactly(t *testing.T) {
	ctx := context.Background()
	longPrice := decimal.RequireFromString("123456789.123456789")
	asset := testAsset(1, 100, "123456789.123456789")
	asset.ROIPercent = decimal.NewNullDecimal(decimal.RequireFromString("7.1234"))
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	for name, store := range newStores(t, asset) {
		t.Run(name, func(t *testing.T) {
			got, found, err := store.GetAsset(ctx, 1)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "123456789.123456789", got.UnitPrice.String())
			assert.Equal(t, "7.1234", got.ROIPercent.Decimal.String())

			tenth := decimal.RequireFromString("0.1")
			for i := int64(1); i <= 3; i++ {
				txn := testTxn(i, 1, "Alice", 1, base.Add(time.Duration(i)*time.Second))
				txn.UnitPrice, txn.TotalPrice = tenth, models.TotalFor(tenth, 1)
				require.NoError(t, store.AppendTransaction(ctx, txn))
			}
			big := testTxn(4, 1, "Bob", 7, base.Add(time.Minute))
			big.UnitPrice, big.TotalPrice = longPrice, models.TotalFor(longPrice, 7)
			require.NoError(t, store.AppendTransaction(ctx, big))

			txns, err := store.ListTransactions(ctx, storage.ListFilter{})
			require.NoError(t, err)
			require.Len(t, txns, 4)
			assert.Equal(t, "123456789.123456789", txns[3].UnitPrice.String())
			assert.Equal(t, "864197523.864197523", txns[3].TotalPrice.String())

			fold := decimal.Zero
			for _, txn := range txns {
				fold = fold.Add(txn.TotalPrice)
			}
			sum, err := store.Totals(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(4), sum.TotalCount)
			assert.True(t, fold.Equal(sum.TotalVolume), "fold=%s totals=%s", fold, sum.TotalVolume)
			assert.Equal(t, "864197524.164197523", sum.TotalVolume.String())
		})
	}
}
