package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RateRow is one row of the bulk import/export surface
type RateRow struct {
	BankCode       string          `json:"bank_code"`
	BankName       string          `json:"bank_name,omitempty"`
	CardCode       string          `json:"card_code"`
	CardName       string          `json:"card_name,omitempty"`
	Installments   int             `json:"installments"`
	Rate           decimal.Decimal `json:"rate"`
	FixedSurcharge decimal.Decimal `json:"fixed_surcharge"`
}

// RowError describes why a single import row was rejected
type RowError struct {
	Row     int    `json:"row"` // 1-based, excluding header
	Message string `json:"message"`
}

// ImportSummary is the outcome of a bulk import
type ImportSummary struct {
	ImportedCount int        `json:"imported_count"`
	ErrorCount    int        `json:"error_count"`
	ErrorDetails  []RowError `json:"error_details"`
}

// AddError records a rejected row
func (s *ImportSummary) AddError(row int, format string, args ...any) {
	s.ErrorCount++
	s.ErrorDetails = append(s.ErrorDetails, RowError{Row: row, Message: fmt.Sprintf(format, args...)})
}

// Err returns ErrPartialImportFailure when some rows were rejected
func (s ImportSummary) Err() error {
	if s.ErrorCount == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d rows rejected", ErrPartialImportFailure, s.ErrorCount, s.ErrorCount+s.ImportedCount)
}
