// Package rates holds the rate table and the tiered rate lookup.
package rates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Dan9191/cuotificador/internal/models"
)

// ErrStaleSnapshot means a change was committed but the snapshot could not be
// reloaded afterwards. The data is persisted; reads lag until the next reload.
var ErrStaleSnapshot = errors.New("rates saved but snapshot not reloaded")

// UpsertMode selects between upsert and insert-only semantics
type UpsertMode int

const (
	Upsert UpsertMode = iota
	InsertOnly
)

// Outcome reports what an upsert did to the store
type Outcome int

const (
	Inserted Outcome = iota
	Updated
	Unchanged
)

// Table is the session's view of the configured rates. Reads are served from
// an in-memory snapshot; every mutation is written through the store and then
// reloads the snapshot.
type Table struct {
	store Store

	mu       sync.RWMutex
	entries  map[models.RateKey]models.RateEntry
	loadedAt time.Time
}

// NewTable creates an empty table backed by store. Call Reload before use.
func NewTable(store Store) *Table {
	return &Table{store: store, entries: map[models.RateKey]models.RateEntry{}}
}

// Reload replaces the snapshot with the store's current contents
func (t *Table) Reload(ctx context.Context) error {
	list, err := t.store.ListRates(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rates: %w", err)
	}
	entries := make(map[models.RateKey]models.RateEntry, len(list))
	for _, e := range list {
		entries[e.Key()] = e
	}

	t.mu.Lock()
	t.entries = entries
	t.loadedAt = time.Now()
	t.mu.Unlock()
	return nil
}

// LoadedAt returns when the snapshot was last reloaded
func (t *Table) LoadedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loadedAt
}

// Lookup returns the entry stored under exactly key
func (t *Table) Lookup(key models.RateKey) (models.RateEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key]
	return e, ok
}

// Entries returns every entry ordered by bank, card and installments
func (t *Table) Entries() []models.RateEntry {
	t.mu.RLock()
	out := make([]models.RateEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.BankID != b.BankID {
			return a.BankID < b.BankID
		}
		if a.CardID != b.CardID {
			return a.CardID < b.CardID
		}
		return a.Installments < b.Installments
	})
	return out
}

// ListByBankAndCard returns the rates that apply to the bank and card, sorted
// by installments. Generic-bank entries fill in installment counts the bank
// does not configure itself.
func (t *Table) ListByBankAndCard(bankID, cardID int64) []models.RateEntry {
	byCount := map[int]models.RateEntry{}

	t.mu.RLock()
	for _, e := range t.entries {
		if e.CardID != cardID {
			continue
		}
		switch e.BankID {
		case bankID:
			byCount[e.Installments] = e
		case models.GenericBankID:
			if _, ok := byCount[e.Installments]; !ok {
				byCount[e.Installments] = e
			}
		}
	}
	t.mu.RUnlock()

	out := make([]models.RateEntry, 0, len(byCount))
	for _, e := range byCount {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Installments < out[j].Installments })
	return out
}

// Upsert stores entry. With InsertOnly an existing entry for the same key
// yields ErrDuplicateConflict.
func (t *Table) Upsert(ctx context.Context, entry models.RateEntry, mode UpsertMode) (models.RateEntry, error) {
	var saved models.RateEntry
	err := t.Apply(ctx, func(tx Tx) error {
		var err error
		saved, _, err = UpsertTx(ctx, tx, entry, mode)
		return err
	})
	return saved, err
}

// Remove deletes the entry with the given id
func (t *Table) Remove(ctx context.Context, id int64) error {
	return t.Apply(ctx, func(tx Tx) error {
		return tx.DeleteRate(ctx, id)
	})
}

// ReplaceAll atomically replaces every entry of a bank and card with entries
func (t *Table) ReplaceAll(ctx context.Context, bankID, cardID int64, entries []models.RateEntry) error {
	seen := map[int]bool{}
	for _, e := range entries {
		if e.BankID != bankID || e.CardID != cardID {
			return fmt.Errorf("entry for bank %d card %d in replace of bank %d card %d", e.BankID, e.CardID, bankID, cardID)
		}
		if err := e.Validate(); err != nil {
			return err
		}
		if seen[e.Installments] {
			return fmt.Errorf("%w: %d installments listed twice", models.ErrDuplicateConflict, e.Installments)
		}
		seen[e.Installments] = true
	}

	return t.Apply(ctx, func(tx Tx) error {
		if _, err := tx.DeleteRates(ctx, bankID, cardID); err != nil {
			return err
		}
		for i := range entries {
			e := entries[i].Rounded()
			e.ID = 0
			if e.Source == "" {
				e.Source = models.SourceManual
			}
			if err := tx.InsertRate(ctx, &e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Apply runs fn in one store transaction and reloads the snapshot after a
// successful commit. A failed reload after commit wraps ErrStaleSnapshot.
func (t *Table) Apply(ctx context.Context, fn func(tx Tx) error) error {
	if err := t.store.WithTx(ctx, fn); err != nil {
		return err
	}
	if err := t.Reload(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStaleSnapshot, err)
	}
	return nil
}

// UpsertTx inserts entry or updates the rate and surcharge of the entry with
// the same key. Figures are rounded to stored precision before comparing, so
// writes are skipped when nothing changed at that precision.
func UpsertTx(ctx context.Context, tx Tx, entry models.RateEntry, mode UpsertMode) (models.RateEntry, Outcome, error) {
	if err := entry.Validate(); err != nil {
		return models.RateEntry{}, 0, err
	}
	entry = entry.Rounded()
	if entry.Source == "" {
		entry.Source = models.SourceManual
	}

	existing, err := tx.FindRate(ctx, entry.Key())
	switch {
	case errors.Is(err, models.ErrNotFound):
		entry.ID = 0
		if err := tx.InsertRate(ctx, &entry); err != nil {
			return models.RateEntry{}, 0, err
		}
		return entry, Inserted, nil
	case err != nil:
		return models.RateEntry{}, 0, err
	case mode == InsertOnly:
		return existing, 0, fmt.Errorf("%w: bank %d card %d installments %d",
			models.ErrDuplicateConflict, entry.BankID, entry.CardID, entry.Installments)
	}

	if existing.Rate.Equal(entry.Rate) && existing.FixedSurcharge.Equal(entry.FixedSurcharge) && existing.Source == entry.Source {
		return existing, Unchanged, nil
	}
	existing.Rate = entry.Rate
	existing.FixedSurcharge = entry.FixedSurcharge
	existing.Source = entry.Source
	if err := tx.UpdateRate(ctx, &existing); err != nil {
		return models.RateEntry{}, 0, err
	}
	return existing, Updated, nil
}
