package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ferreirogomes/ryzer/models"
)

const (
	assetColumns = `id, name, unit_price, total_supply, remaining_supply, roi_percent, created_at`
	txColumns    = `id, asset_id, buyer_name, quantity, unit_price, total_price, created_at, COALESCE(request_key, '') AS request_key`
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SQLStore implementa Store sobre Postgres ou SQLite via sqlx.
type SQLStore struct {
	db *DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore cria um Store sobre uma conexão já migrada.
func NewSQLStore(db *DB) *SQLStore {
	return &SQLStore{db: db}
}

// GetAsset busca um ativo pelo ID.
func (s *SQLStore) GetAsset(ctx context.Context, id int64) (models.Asset, bool, error) {
	return getAsset(ctx, s.db, id)
}

// ListAssets lista o catálogo em ordem de ID.
func (s *SQLStore) ListAssets(ctx context.Context) ([]models.Asset, error) {
	assets := []models.Asset{}
	if err := sqlx.SelectContext(ctx, s.db, &assets, `SELECT `+assetColumns+` FROM assets ORDER BY id`); err != nil {
		return nil, fmt.Errorf("falha ao listar ativos: %w", err)
	}
	for i := range assets {
		assets[i].CreatedAt = assets[i].CreatedAt.UTC()
	}
	return assets, nil
}

// AppendTransaction grava a transação fora de uma unidade de trabalho.
func (s *SQLStore) AppendTransaction(ctx context.Context, txn models.Transaction) error {
	_, err := appendTransaction(ctx, s.db, txn)
	return err
}

// ListTransactions lista o ledger aplicando o filtro.
func (s *SQLStore) ListTransactions(ctx context.Context, filter ListFilter) ([]models.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if filter.AssetID != 0 {
		where = append(where, "asset_id = ?")
		args = append(args, filter.AssetID)
	}
	if filter.Buyer != "" {
		where = append(where, `LOWER(buyer_name) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(filter.Buyer))+"%")
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + txColumns + ` FROM transactions`)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if filter.Order == OrderDesc {
		b.WriteString(" ORDER BY created_at DESC, id DESC")
	} else {
		b.WriteString(" ORDER BY created_at, id")
	}
	if filter.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	txns := []models.Transaction{}
	if err := sqlx.SelectContext(ctx, s.db, &txns, s.db.Rebind(b.String()), args...); err != nil {
		return nil, fmt.Errorf("falha ao listar transações: %w", err)
	}
	for i := range txns {
		txns[i].Timestamp = txns[i].Timestamp.UTC()
	}
	return txns, nil
}

// Totals soma o ledger inteiro. No Postgres a soma é feita pelo banco em NUMERIC;
// no SQLite os valores são TEXT e a soma é feita aqui, em decimal.
func (s *SQLStore) Totals(ctx context.Context) (models.Summary, error) {
	if s.db.Driver() == DriverSQLite {
		return s.foldTotals(ctx)
	}
	var sum models.Summary
	row := s.db.QueryRowxContext(ctx, `SELECT COALESCE(SUM(total_price), 0), COUNT(*) FROM transactions`)
	if err := row.Scan(&sum.TotalVolume, &sum.TotalCount); err != nil {
		return models.Summary{}, fmt.Errorf("falha ao somar o ledger: %w", err)
	}
	return sum, nil
}

func (s *SQLStore) foldTotals(ctx context.Context) (models.Summary, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT total_price FROM transactions`)
	if err != nil {
		return models.Summary{}, fmt.Errorf("falha ao somar o ledger: %w", err)
	}
	defer rows.Close()

	sum := models.Summary{TotalVolume: decimal.Zero}
	for rows.Next() {
		var total decimal.Decimal
		if err := rows.Scan(&total); err != nil {
			return models.Summary{}, fmt.Errorf("falha ao ler total da transação: %w", err)
		}
		sum.TotalVolume = sum.TotalVolume.Add(total)
		sum.TotalCount++
	}
	if err := rows.Err(); err != nil {
		return models.Summary{}, fmt.Errorf("falha ao somar o ledger: %w", err)
	}
	return sum, nil
}

// Head devolve o último ID, o último timestamp e o tamanho do ledger.
func (s *SQLStore) Head(ctx context.Context) (LedgerHead, error) {
	var head LedgerHead
	if err := s.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&head.Count); err != nil {
		return LedgerHead{}, fmt.Errorf("falha ao contar transações: %w", err)
	}
	if head.Count == 0 {
		return head, nil
	}
	// IDs e timestamps crescem juntos, então a última linha carrega os dois máximos.
	err := s.db.QueryRowxContext(ctx, `SELECT id, created_at FROM transactions ORDER BY id DESC LIMIT 1`).
		Scan(&head.LastID, &head.LastTimestamp)
	if err != nil {
		return LedgerHead{}, fmt.Errorf("falha ao ler o fim do ledger: %w", err)
	}
	head.LastTimestamp = head.LastTimestamp.UTC()
	return head, nil
}

// WithinTx executa fn numa transação do banco. Qualquer erro de fn desfaz tudo.
func (s *SQLStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("falha ao iniciar transação: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&sqlTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("falha no rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("falha no commit: %w", err)
	}
	return nil
}

// Close fecha a conexão.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type sqlTx struct {
	tx *sqlx.Tx
}

func (t *sqlTx) GetAsset(ctx context.Context, id int64) (models.Asset, bool, error) {
	return getAsset(ctx, t.tx, id)
}

func (t *sqlTx) Reserve(ctx context.Context, assetID, quantity int64) (models.Asset, error) {
	var a models.Asset
	query := t.tx.Rebind(`UPDATE assets SET remaining_supply = remaining_supply - ?
		WHERE id = ? AND remaining_supply >= ? RETURNING ` + assetColumns)
	err := sqlx.GetContext(ctx, t.tx, &a, query, quantity, assetID, quantity)
	if err == nil {
		a.CreatedAt = a.CreatedAt.UTC()
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Asset{}, fmt.Errorf("falha ao reservar estoque: %w", err)
	}

	current, found, err := getAsset(ctx, t.tx, assetID)
	if err != nil {
		return models.Asset{}, err
	}
	if !found {
		return models.Asset{}, models.ErrAssetNotFound
	}
	return models.Asset{}, fmt.Errorf("%w: requested %d, available %d",
		models.ErrInsufficientSupply, quantity, current.RemainingSupply)
}

func (t *sqlTx) AppendTransaction(ctx context.Context, txn models.Transaction) (bool, error) {
	return appendTransaction(ctx, t.tx, txn)
}

func (t *sqlTx) FindByRequestKey(ctx context.Context, key string) (models.Transaction, bool, error) {
	var txn models.Transaction
	err := sqlx.GetContext(ctx, t.tx, &txn, t.tx.Rebind(`SELECT `+txColumns+` FROM transactions WHERE request_key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Transaction{}, false, nil
	}
	if err != nil {
		return models.Transaction{}, false, fmt.Errorf("falha ao buscar chave de requisição: %w", err)
	}
	txn.Timestamp = txn.Timestamp.UTC()
	return txn, true, nil
}

func (t *sqlTx) SoldQuantity(ctx context.Context, assetID int64) (int64, error) {
	var sold int64
	err := t.tx.QueryRowxContext(ctx, t.tx.Rebind(`SELECT COALESCE(SUM(quantity), 0) FROM transactions WHERE asset_id = ?`), assetID).Scan(&sold)
	if err != nil {
		return 0, fmt.Errorf("falha ao somar vendas do ativo %d: %w", assetID, err)
	}
	return sold, nil
}

func (t *sqlTx) SetRemainingSupply(ctx context.Context, assetID, remaining int64) error {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`UPDATE assets SET remaining_supply = ? WHERE id = ?`), remaining, assetID)
	if err != nil {
		return fmt.Errorf("falha ao atualizar estoque do ativo %d: %w", assetID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrAssetNotFound
	}
	return nil
}

func (t *sqlTx) InsertAsset(ctx context.Context, a models.Asset) (bool, error) {
	query := t.tx.Rebind(`INSERT INTO assets (` + assetColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)
	res, err := t.tx.ExecContext(ctx, query,
		a.ID, a.Name, a.UnitPrice, a.TotalSupply, a.RemainingSupply, a.ROIPercent, a.CreatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("falha ao inserir ativo %d: %w", a.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func getAsset(ctx context.Context, q sqlx.ExtContext, id int64) (models.Asset, bool, error) {
	var a models.Asset
	err := sqlx.GetContext(ctx, q, &a, q.Rebind(`SELECT `+assetColumns+` FROM assets WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Asset{}, false, nil
	}
	if err != nil {
		return models.Asset{}, false, fmt.Errorf("falha ao buscar ativo %d: %w", id, err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, true, nil
}

func appendTransaction(ctx context.Context, q sqlx.ExtContext, txn models.Transaction) (bool, error) {
	query := q.Rebind(`INSERT INTO transactions
		(id, asset_id, buyer_name, quantity, unit_price, total_price, created_at, request_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)
	key := sql.NullString{String: txn.RequestKey, Valid: txn.RequestKey != ""}
	res, err := q.ExecContext(ctx, query,
		txn.ID, txn.AssetID, txn.BuyerName, txn.Quantity, txn.UnitPrice, txn.TotalPrice, txn.Timestamp.UTC(), key)
	if err != nil {
		return false, fmt.Errorf("falha ao gravar transação %d: %w", txn.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
