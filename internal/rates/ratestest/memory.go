// Package ratestest provides an in-memory rates.Store for tests.
package ratestest

import (
	"context"
	"sync"
	"time"

	"github.com/Dan9191/cuotificador/internal/models"
	"github.com/Dan9191/cuotificador/internal/rates"
)

// MemoryStore is a rates.Store kept in process memory. Transactions work on a copy
// that replaces the live data only when fn succeeds.
type MemoryStore struct {
	mu     sync.Mutex
	rows   map[int64]models.RateEntry
	nextID int64
	now    func() time.Time

	listErr error
}

// NewMemoryStore creates a store holding entries
func NewMemoryStore(entries ...models.RateEntry) *MemoryStore {
	s := &MemoryStore{rows: map[int64]models.RateEntry{}, nextID: 1, now: time.Now}
	for _, e := range entries {
		if e.ID == 0 {
			e.ID = s.nextID
		}
		if e.ID >= s.nextID {
			s.nextID = e.ID + 1
		}
		s.rows[e.ID] = e
	}
	return s
}

func (s *MemoryStore) ListRates(_ context.Context) ([]models.RateEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]models.RateEntry, 0, len(s.rows))
	for _, e := range s.rows {
		out = append(out, e)
	}
	return out, nil
}

// FailListing makes ListRates return err until it is called again with nil.
// Transactions keep working.
func (s *MemoryStore) FailListing(err error) {
	s.mu.Lock()
	s.listErr = err
	s.mu.Unlock()
}

func (s *MemoryStore) WithTx(_ context.Context, fn func(tx rates.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{rows: make(map[int64]models.RateEntry, len(s.rows)), nextID: s.nextID, now: s.now}
	for id, e := range s.rows {
		tx.rows[id] = e
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.rows = tx.rows
	s.nextID = tx.nextID
	return nil
}

type memoryTx struct {
	rows   map[int64]models.RateEntry
	nextID int64
	now    func() time.Time
}

func (tx *memoryTx) FindRate(_ context.Context, key models.RateKey) (models.RateEntry, error) {
	for _, e := range tx.rows {
		if e.Key() == key {
			return e, nil
		}
	}
	return models.RateEntry{}, models.ErrNotFound
}

func (tx *memoryTx) InsertRate(ctx context.Context, entry *models.RateEntry) error {
	if _, err := tx.FindRate(ctx, entry.Key()); err == nil {
		return models.ErrDuplicateConflict
	}
	entry.ID = tx.nextID
	tx.nextID++
	tx.stamp(entry)
	tx.rows[entry.ID] = *entry
	return nil
}

func (tx *memoryTx) UpdateRate(_ context.Context, entry *models.RateEntry) error {
	if _, ok := tx.rows[entry.ID]; !ok {
		return models.ErrNotFound
	}
	tx.stamp(entry)
	tx.rows[entry.ID] = *entry
	return nil
}

func (tx *memoryTx) DeleteRate(_ context.Context, id int64) error {
	if _, ok := tx.rows[id]; !ok {
		return models.ErrNotFound
	}
	delete(tx.rows, id)
	return nil
}

func (tx *memoryTx) DeleteRates(_ context.Context, bankID, cardID int64) (int64, error) {
	var n int64
	for id, e := range tx.rows {
		if e.BankID == bankID && e.CardID == cardID {
			delete(tx.rows, id)
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) stamp(entry *models.RateEntry) {
	now := tx.now().UTC().Truncate(time.Second)
	entry.UpdatedAt = &now
}
