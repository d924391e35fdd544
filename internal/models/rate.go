package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rate sources
const (
	SourceManual   = "manual"
	SourceImport   = "import"
	SourceExternal = "external"
)

// Stored precision of rate figures
const (
	RateScale           = 4
	FixedSurchargeScale = 2
)

// RateKey identifies a rate entry. At most one entry exists per key.
type RateKey struct {
	BankID       int64 `json:"bank_id"`
	CardID       int64 `json:"card_id"`
	Installments int   `json:"installments"`
}

// Generic returns the same key on the generic bank
func (k RateKey) Generic() RateKey {
	return RateKey{BankID: GenericBankID, CardID: k.CardID, Installments: k.Installments}
}

// RateEntry is the annual rate and fixed surcharge applied to a bank/card/installment combination
type RateEntry struct {
	ID             int64           `json:"id"`
	BankID         int64           `json:"bank_id"`
	CardID         int64           `json:"card_id"`
	Installments   int             `json:"installments"`
	Rate           decimal.Decimal `json:"rate"` // Annual percent
	FixedSurcharge decimal.Decimal `json:"fixed_surcharge"`
	Source         string          `json:"source"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty"`
}

// Key returns the uniqueness key of the entry
func (e RateEntry) Key() RateKey {
	return RateKey{BankID: e.BankID, CardID: e.CardID, Installments: e.Installments}
}

// Rounded returns the entry with its figures at stored precision
func (e RateEntry) Rounded() RateEntry {
	e.Rate = e.Rate.Round(RateScale)
	e.FixedSurcharge = e.FixedSurcharge.Round(FixedSurchargeScale)
	return e
}

// Validate checks the entry invariants
func (e RateEntry) Validate() error {
	if e.Installments < 1 {
		return ErrInvalidInstallmentCount
	}
	if e.Rate.IsNegative() || e.FixedSurcharge.IsNegative() {
		return ErrInvalidRate
	}
	return nil
}
