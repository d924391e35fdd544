package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cuotificador/internal/models"
	"github.com/Dan9191/cuotificador/internal/permissions"
	"github.com/Dan9191/cuotificador/internal/rates"
)

// RateFilter narrows ListRates. Nil fields match everything.
type RateFilter struct {
	BankID *int64
	CardID *int64
}

// ListRates returns the stored rate entries matching filter
func (s *Service) ListRates(_ context.Context, filter RateFilter) []models.RateEntry {
	all := s.table.Entries()
	out := make([]models.RateEntry, 0, len(all))
	for _, e := range all {
		if filter.BankID != nil && e.BankID != *filter.BankID {
			continue
		}
		if filter.CardID != nil && e.CardID != *filter.CardID {
			continue
		}
		out = append(out, e)
	}
	return out
}

// CreateRate adds a rate entry. An entry for the same bank, card and
// installments yields ErrDuplicateConflict.
func (s *Service) CreateRate(ctx context.Context, entry models.RateEntry) (models.RateEntry, error) {
	return s.saveRate(ctx, entry, rates.InsertOnly)
}

// SaveRate adds a rate entry or replaces the rate of the existing one
func (s *Service) SaveRate(ctx context.Context, entry models.RateEntry) (models.RateEntry, error) {
	return s.saveRate(ctx, entry, rates.Upsert)
}

func (s *Service) saveRate(ctx context.Context, entry models.RateEntry, mode rates.UpsertMode) (models.RateEntry, error) {
	if err := s.gate.Check(ctx, permissions.ConfigureRates); err != nil {
		return models.RateEntry{}, err
	}
	if err := entry.Validate(); err != nil {
		return models.RateEntry{}, err
	}
	if err := s.requireTargets(ctx, entry.BankID, entry.CardID); err != nil {
		return models.RateEntry{}, err
	}
	entry.Source = models.SourceManual

	saved, err := s.table.Upsert(ctx, entry, mode)
	if err := s.committed(err); err != nil {
		return models.RateEntry{}, err
	}
	s.log.WithFields(logrus.Fields{
		"bank_id":      saved.BankID,
		"card_id":      saved.CardID,
		"installments": saved.Installments,
	}).Infof("Rate saved: %s%% + %s", saved.Rate, saved.FixedSurcharge)
	return saved, nil
}

// UpdateRate changes the rate and surcharge of the entry with id
func (s *Service) UpdateRate(ctx context.Context, id int64, rate, surcharge decimal.Decimal) (models.RateEntry, error) {
	if err := s.gate.Check(ctx, permissions.ConfigureRates); err != nil {
		return models.RateEntry{}, err
	}
	var existing *models.RateEntry
	for _, e := range s.table.Entries() {
		if e.ID == id {
			existing = &e
			break
		}
	}
	if existing == nil {
		return models.RateEntry{}, fmt.Errorf("rate %d: %w", id, models.ErrNotFound)
	}

	existing.Rate = rate
	existing.FixedSurcharge = surcharge
	existing.Source = models.SourceManual
	if err := existing.Validate(); err != nil {
		return models.RateEntry{}, err
	}
	saved, err := s.table.Upsert(ctx, *existing, rates.Upsert)
	if err := s.committed(err); err != nil {
		return models.RateEntry{}, err
	}
	return saved, nil
}

// RemoveRate deletes the entry with id
func (s *Service) RemoveRate(ctx context.Context, id int64) error {
	if err := s.gate.Check(ctx, permissions.ConfigureRates); err != nil {
		return err
	}
	if err := s.committed(s.table.Remove(ctx, id)); err != nil {
		return fmt.Errorf("failed to remove rate %d: %w", id, err)
	}
	s.log.Infof("Rate %d removed", id)
	return nil
}

// ReplaceRates atomically replaces every entry of a bank and card
func (s *Service) ReplaceRates(ctx context.Context, bankID, cardID int64, entries []models.RateEntry) error {
	if err := s.gate.Check(ctx, permissions.ConfigureRates); err != nil {
		return err
	}
	if err := s.requireTargets(ctx, bankID, cardID); err != nil {
		return err
	}
	for i := range entries {
		entries[i].BankID = bankID
		entries[i].CardID = cardID
		entries[i].Source = models.SourceManual
	}
	if err := s.committed(s.table.ReplaceAll(ctx, bankID, cardID, entries)); err != nil {
		return err
	}
	s.log.Infof("Replaced rates of bank %d card %d with %d entries", bankID, cardID, len(entries))
	return nil
}

// committed accepts a stale snapshot: the change itself is persisted
func (s *Service) committed(err error) error {
	if errors.Is(err, rates.ErrStaleSnapshot) {
		s.log.Warnf("Rate change saved but not yet visible: %v", err)
		return nil
	}
	return err
}

// requireTargets checks that the bank and card of a rate exist
func (s *Service) requireTargets(ctx context.Context, bankID, cardID int64) error {
	if bankID != models.GenericBankID {
		if _, err := s.catalog.FindBankByID(ctx, bankID); err != nil {
			return err
		}
	}
	if _, err := s.catalog.FindCardByID(ctx, cardID); err != nil {
		return err
	}
	return nil
}
