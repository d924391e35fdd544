package models

import "github.com/shopspring/decimal"

// Quote sources
const (
	QuoteSourceLocal    = "local"
	QuoteSourceExternal = "external"
)

// Quote is the computed cost of paying an amount in installments
type Quote struct {
	BankID              int64           `json:"bank_id"`
	CardID              int64           `json:"card_id"`
	Installments        int             `json:"installments"`
	OriginalAmount      decimal.Decimal `json:"original_amount"`
	Rate                decimal.Decimal `json:"rate"`
	FixedSurcharge      decimal.Decimal `json:"fixed_surcharge"`
	TotalWithInterest   decimal.Decimal `json:"total_with_interest"`
	PerInstallment      decimal.Decimal `json:"per_installment"`
	EffectiveAnnualCost decimal.Decimal `json:"effective_annual_cost"` // CFT, rounded to 2 places
	Strategy            string          `json:"strategy,omitempty"`
	Tier                string          `json:"tier,omitempty"`
	Source              string          `json:"source"`
}

// ExternalInstallmentPlan is a plan published by a payment provider for one card
type ExternalInstallmentPlan struct {
	CardCode     string          `json:"card_code"`
	Installments int             `json:"installments"`
	InterestRate decimal.Decimal `json:"interest_rate"`
}

// ExternalCalculationRequest asks the provider to price one purchase
type ExternalCalculationRequest struct {
	CardCode     string          `json:"card_code"`
	Installments int             `json:"installments"`
	Amount       decimal.Decimal `json:"amount"`
}

// ExternalCalculation is the provider's answer to an ExternalCalculationRequest
type ExternalCalculation struct {
	InterestRate      decimal.Decimal `json:"interest_rate"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	InstallmentAmount decimal.Decimal `json:"installment_amount"`
}
