package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ferreirogomes/ryzer/models"
)

// MemoryStore é um Store em memória. Cada unidade de trabalho roda sob o mutex
// global e guarda um diário de desfazer, aplicado se fn devolver erro.
type MemoryStore struct {
	mu     sync.RWMutex
	assets map[int64]models.Asset
	// Mantido em ordem de (timestamp, id).
	ledger []models.Transaction
	byID   map[int64]struct{}
	byKey  map[string]models.Transaction
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore cria um store vazio, opcionalmente já com ativos.
func NewMemoryStore(assets ...models.Asset) *MemoryStore {
	s := &MemoryStore{
		assets: make(map[int64]models.Asset),
		byID:   make(map[int64]struct{}),
		byKey:  make(map[string]models.Transaction),
	}
	for _, a := range assets {
		s.assets[a.ID] = a
	}
	return s
}

func (s *MemoryStore) GetAsset(ctx context.Context, id int64) (models.Asset, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	return a, ok, nil
}

func (s *MemoryStore) ListAssets(ctx context.Context) ([]models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) AppendTransaction(ctx context.Context, txn models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(txn)
	return nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, filter ListFilter) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buyer := strings.ToLower(filter.Buyer)
	out := []models.Transaction{}
	add := func(t models.Transaction) bool {
		if filter.AssetID != 0 && t.AssetID != filter.AssetID {
			return true
		}
		if buyer != "" && !strings.Contains(strings.ToLower(t.BuyerName), buyer) {
			return true
		}
		out = append(out, t)
		return filter.Limit <= 0 || len(out) < filter.Limit
	}
	if filter.Order == OrderDesc {
		for i := len(s.ledger) - 1; i >= 0; i-- {
			if !add(s.ledger[i]) {
				break
			}
		}
	} else {
		for _, t := range s.ledger {
			if !add(t) {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) Totals(ctx context.Context) (models.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum models.Summary
	for _, t := range s.ledger {
		sum.TotalVolume = sum.TotalVolume.Add(t.TotalPrice)
	}
	sum.TotalCount = int64(len(s.ledger))
	return sum, nil
}

func (s *MemoryStore) Head(ctx context.Context) (LedgerHead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	head := LedgerHead{Count: int64(len(s.ledger))}
	for _, t := range s.ledger {
		if t.ID > head.LastID {
			head.LastID = t.ID
		}
		if t.Timestamp.After(head.LastTimestamp) {
			head.LastTimestamp = t.Timestamp
		}
	}
	return head, nil
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// appendLocked insere mantendo a ordem do ledger. O chamador segura s.mu.
func (s *MemoryStore) appendLocked(txn models.Transaction) bool {
	if _, dup := s.byID[txn.ID]; dup {
		return false
	}
	i := sort.Search(len(s.ledger), func(i int) bool {
		cur := s.ledger[i]
		if cur.Timestamp.Equal(txn.Timestamp) {
			return cur.ID > txn.ID
		}
		return cur.Timestamp.After(txn.Timestamp)
	})
	s.ledger = append(s.ledger, models.Transaction{})
	copy(s.ledger[i+1:], s.ledger[i:])
	s.ledger[i] = txn
	s.byID[txn.ID] = struct{}{}
	if txn.RequestKey != "" {
		s.byKey[txn.RequestKey] = txn
	}
	return true
}

func (s *MemoryStore) removeLocked(id int64) {
	for i, t := range s.ledger {
		if t.ID == id {
			s.ledger = append(s.ledger[:i], s.ledger[i+1:]...)
			delete(s.byID, id)
			if t.RequestKey != "" {
				delete(s.byKey, t.RequestKey)
			}
			return
		}
	}
}

type memTx struct {
	s    *MemoryStore
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) GetAsset(ctx context.Context, id int64) (models.Asset, bool, error) {
	a, ok := t.s.assets[id]
	return a, ok, nil
}

func (t *memTx) Reserve(ctx context.Context, assetID, quantity int64) (models.Asset, error) {
	a, ok := t.s.assets[assetID]
	if !ok {
		return models.Asset{}, models.ErrAssetNotFound
	}
	if a.RemainingSupply < quantity {
		return models.Asset{}, fmt.Errorf("%w: requested %d, available %d",
			models.ErrInsufficientSupply, quantity, a.RemainingSupply)
	}
	before := a
	a.RemainingSupply -= quantity
	t.s.assets[assetID] = a
	t.undo = append(t.undo, func() { t.s.assets[assetID] = before })
	return a, nil
}

func (t *memTx) AppendTransaction(ctx context.Context, txn models.Transaction) (bool, error) {
	if _, dup := t.s.byKey[txn.RequestKey]; txn.RequestKey != "" && dup {
		if _, sameID := t.s.byID[txn.ID]; !sameID {
			return false, fmt.Errorf("chave de requisição duplicada: %s", txn.RequestKey)
		}
	}
	if !t.s.appendLocked(txn) {
		return false, nil
	}
	id := txn.ID
	t.undo = append(t.undo, func() { t.s.removeLocked(id) })
	return true, nil
}

func (t *memTx) FindByRequestKey(ctx context.Context, key string) (models.Transaction, bool, error) {
	txn, ok := t.s.byKey[key]
	return txn, ok, nil
}

func (t *memTx) SoldQuantity(ctx context.Context, assetID int64) (int64, error) {
	var sold int64
	for _, txn := range t.s.ledger {
		if txn.AssetID == assetID {
			sold += txn.Quantity
		}
	}
	return sold, nil
}

func (t *memTx) SetRemainingSupply(ctx context.Context, assetID, remaining int64) error {
	a, ok := t.s.assets[assetID]
	if !ok {
		return models.ErrAssetNotFound
	}
	before := a
	a.RemainingSupply = remaining
	t.s.assets[assetID] = a
	t.undo = append(t.undo, func() { t.s.assets[assetID] = before })
	return nil
}

func (t *memTx) InsertAsset(ctx context.Context, a models.Asset) (bool, error) {
	if _, exists := t.s.assets[a.ID]; exists {
		return false, nil
	}
	t.s.assets[a.ID] = a
	id := a.ID
	t.undo = append(t.undo, func() { delete(t.s.assets, id) })
	return true, nil
}
