package services

import (
	"sync"
	"time"

	"github.com/ferreirogomes/ryzer/storage"
)

// Sequencer atribui pares (id, timestamp) crescentes às transações.
// O timestamp nunca volta, mesmo que o relógio da máquina volte.
type Sequencer struct {
	mu     sync.Mutex
	lastID int64
	lastTS time.Time
	now    func() time.Time
}

// NewSequencer continua a sequência a partir do fim do ledger.
func NewSequencer(head storage.LedgerHead) *Sequencer {
	return &Sequencer{
		lastID: head.LastID,
		lastTS: head.LastTimestamp.UTC(),
		now:    time.Now,
	}
}

// Next reserva o próximo ID e o timestamp correspondente, em UTC com precisão de microssegundos.
func (s *Sequencer) Next() (int64, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC().Truncate(time.Microsecond)
	if ts.Before(s.lastTS) {
		ts = s.lastTS
	}
	s.lastID++
	s.lastTS = ts
	return s.lastID, ts
}

// Advance move a sequência para depois de head, se head estiver à frente.
func (s *Sequencer) Advance(head storage.LedgerHead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if head.LastID > s.lastID {
		s.lastID = head.LastID
	}
	if ts := head.LastTimestamp.UTC(); ts.After(s.lastTS) {
		s.lastTS = ts
	}
}
