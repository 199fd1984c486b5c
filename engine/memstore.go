package engine

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store. It backs tests and local development; the
// Postgres store is the durable production implementation.
type MemStore struct {
	mu      sync.RWMutex
	ledgers map[Address]Ledger
	entries map[Address]Entry
}

func NewMemStore() *MemStore {
	return &MemStore{
		ledgers: make(map[Address]Ledger),
		entries: make(map[Address]Entry),
	}
}

func (s *MemStore) CreateLedger(_ context.Context, addr Address, l *Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledgers[addr]; ok {
		return ErrLedgerExists
	}
	s.ledgers[addr] = *l
	return nil
}

func (s *MemStore) GetLedger(_ context.Context, addr Address) (*Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.ledgers[addr]
	if !ok {
		return nil, ErrLedgerNotFound
	}
	return &l, nil
}

func (s *MemStore) AcquireProcessingLock(_ context.Context, addr Address) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[addr]
	if !ok {
		return nil, ErrLedgerNotFound
	}
	if l.ProcessingLock {
		return nil, ErrOperationInProgress
	}
	l.ProcessingLock = true
	s.ledgers[addr] = l
	return &l, nil
}

func (s *MemStore) PutLedger(_ context.Context, addr Address, l *Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledgers[addr]; !ok {
		return ErrLedgerNotFound
	}
	s.ledgers[addr] = *l
	return nil
}

func (s *MemStore) CreateEntry(_ context.Context, addr Address, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[addr]; ok {
		return ErrDuplicateEntry
	}
	s.entries[addr] = *e
	return nil
}

func (s *MemStore) GetEntry(_ context.Context, addr Address) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[addr]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return &e, nil
}
