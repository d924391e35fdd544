package service

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cuotificador/internal/importer"
	"github.com/Dan9191/cuotificador/internal/models"
	"github.com/Dan9191/cuotificador/internal/permissions"
	"github.com/Dan9191/cuotificador/internal/rates"
)

// ImportRates reads rows in format from r and upserts them in one
// transaction. Rows with unknown codes or bad figures are reported in the
// summary and the rest are still imported; the returned error then wraps
// ErrPartialImportFailure.
func (s *Service) ImportRates(ctx context.Context, format string, r io.Reader) (models.ImportSummary, error) {
	var summary models.ImportSummary
	if err := s.gate.Check(ctx, permissions.ConfigureRates); err != nil {
		return summary, err
	}

	var (
		records []importer.Record
		rowErrs []models.RowError
		err     error
	)
	switch strings.ToLower(format) {
	case importer.FormatCSV, "":
		records, rowErrs, err = importer.ReadCSV(r)
	case importer.FormatXML:
		records, rowErrs, err = importer.ReadXML(r)
	default:
		return summary, fmt.Errorf("%w: unsupported import format %q", models.ErrInvalidInput, format)
	}
	if err != nil {
		return summary, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	for _, re := range rowErrs {
		summary.AddError(re.Row, "%s", re.Message)
	}

	banks, err := s.catalog.ListBanks(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list banks: %w", err)
	}
	cards, err := s.catalog.ListCards(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list cards: %w", err)
	}
	bankIDs, bankCodes := indexBanks(banks)
	cardIDs, cardCodes := indexCards(cards)

	type pendingRow struct {
		row   int
		entry models.RateEntry
	}
	var pending []pendingRow
	seen := map[models.RateKey]int{}

	for _, rec := range records {
		bankID := models.GenericBankID
		if !importer.IsGenericBank(rec.BankCode) {
			id, ok := bankIDs[strings.ToLower(rec.BankCode)]
			if !ok {
				summary.AddError(rec.Row, "unknown bank code %q%s", rec.BankCode, hint(rec.BankCode, bankCodes))
				continue
			}
			bankID = id
		}
		cardID, ok := cardIDs[strings.ToLower(rec.CardCode)]
		if !ok {
			summary.AddError(rec.Row, "unknown card code %q%s", rec.CardCode, hint(rec.CardCode, cardCodes))
			continue
		}

		entry := models.RateEntry{
			BankID:         bankID,
			CardID:         cardID,
			Installments:   rec.Installments,
			Rate:           rec.Rate,
			FixedSurcharge: rec.FixedSurcharge,
			Source:         models.SourceImport,
		}
		if err := entry.Validate(); err != nil {
			summary.AddError(rec.Row, "%v", err)
			continue
		}
		if first, dup := seen[entry.Key()]; dup {
			summary.AddError(rec.Row, "same bank, card and installments as row %d", first)
			continue
		}
		seen[entry.Key()] = rec.Row
		pending = append(pending, pendingRow{row: rec.Row, entry: entry})
	}

	err = s.table.Apply(ctx, func(tx rates.Tx) error {
		for _, p := range pending {
			if _, _, err := rates.UpsertTx(ctx, tx, p.entry, rates.Upsert); err != nil {
				return fmt.Errorf("row %d: %w", p.row, err)
			}
		}
		return nil
	})
	if err := s.committed(err); err != nil {
		return summary, fmt.Errorf("failed to import rates: %w", err)
	}
	summary.ImportedCount = len(pending)

	slices.SortStableFunc(summary.ErrorDetails, func(a, b models.RowError) int { return a.Row - b.Row })
	s.metrics.ImportRows(summary.ImportedCount, summary.ErrorCount)
	s.log.WithFields(logrus.Fields{
		"format":   format,
		"imported": summary.ImportedCount,
		"rejected": summary.ErrorCount,
	}).Info("Rates imported")
	return summary, summary.Err()
}

// ExportRates returns every stored entry as import rows with bank and card names
func (s *Service) ExportRates(ctx context.Context) ([]models.RateRow, error) {
	if err := s.gate.Check(ctx, permissions.ConfigureRates); err != nil {
		return nil, err
	}
	banks, err := s.catalog.ListBanks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list banks: %w", err)
	}
	cards, err := s.catalog.ListCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	bankByID := make(map[int64]models.Bank, len(banks))
	for _, b := range banks {
		bankByID[b.ID] = b
	}
	cardByID := make(map[int64]models.Card, len(cards))
	for _, c := range cards {
		cardByID[c.ID] = c
	}

	entries := s.table.Entries()
	rows := make([]models.RateRow, 0, len(entries))
	for _, e := range entries {
		row := models.RateRow{
			BankCode:       importer.GenericBankCode,
			Installments:   e.Installments,
			Rate:           e.Rate,
			FixedSurcharge: e.FixedSurcharge,
		}
		if e.BankID != models.GenericBankID {
			if b, ok := bankByID[e.BankID]; ok {
				row.BankCode, row.BankName = b.Code, b.Name
			} else {
				s.log.Warnf("Rate %d references missing bank %d", e.ID, e.BankID)
				row.BankCode = strconv.FormatInt(e.BankID, 10)
			}
		}
		c, ok := cardByID[e.CardID]
		if !ok {
			s.log.Warnf("Skipping rate %d of missing card %d", e.ID, e.CardID)
			continue
		}
		row.CardCode, row.CardName = c.Code, c.Name
		rows = append(rows, row)
	}
	return rows, nil
}

func indexBanks(banks []models.Bank) (map[string]int64, []string) {
	ids := make(map[string]int64, len(banks))
	codes := make([]string, 0, len(banks))
	for _, b := range banks {
		ids[strings.ToLower(b.Code)] = b.ID
		codes = append(codes, b.Code)
	}
	return ids, codes
}

func indexCards(cards []models.Card) (map[string]int64, []string) {
	ids := make(map[string]int64, len(cards))
	codes := make([]string, 0, len(cards))
	for _, c := range cards {
		ids[strings.ToLower(c.Code)] = c.ID
		codes = append(codes, c.Code)
	}
	return ids, codes
}

func hint(code string, candidates []string) string {
	if s := importer.Suggest(code, candidates); s != "" {
		return fmt.Sprintf(" (did you mean %q?)", s)
	}
	return ""
}
