// Package quote turns resolved rates and provider answers into quotes.
package quote

import (
	"github.com/shopspring/decimal"

	"github.com/Dan9191/cuotificador/internal/calculator"
	"github.com/Dan9191/cuotificador/internal/metrics"
	"github.com/Dan9191/cuotificador/internal/models"
	"github.com/Dan9191/cuotificador/internal/rates"
)

// Quoter prices purchases against the local rate table
type Quoter struct {
	resolver *rates.Resolver
	metrics  *metrics.Metrics
}

// NewQuoter creates a quoter. m may be nil.
func NewQuoter(resolver *rates.Resolver, m *metrics.Metrics) *Quoter {
	return &Quoter{resolver: resolver, metrics: m}
}

// Local resolves the rate for key in mode and prices amount with strategy
func (q *Quoter) Local(key models.RateKey, amount decimal.Decimal, strategy calculator.Strategy, mode rates.Mode) (models.Quote, error) {
	if !amount.IsPositive() {
		return models.Quote{}, models.ErrInvalidAmount
	}
	res, err := q.resolver.Resolve(key, mode)
	if err != nil {
		return models.Quote{}, err
	}
	out, err := calculator.Calculate(strategy, calculator.Input{
		Amount:         amount,
		Rate:           res.Rate,
		FixedSurcharge: res.FixedSurcharge,
		Installments:   key.Installments,
	})
	if err != nil {
		return models.Quote{}, err
	}

	q.metrics.Quote(models.QuoteSourceLocal, string(res.Tier))
	return models.Quote{
		BankID:              key.BankID,
		CardID:              key.CardID,
		Installments:        key.Installments,
		OriginalAmount:      amount,
		Rate:                res.Rate,
		FixedSurcharge:      res.FixedSurcharge,
		TotalWithInterest:   out.TotalWithInterest,
		PerInstallment:      out.PerInstallment,
		EffectiveAnnualCost: out.CFTRounded(),
		Strategy:            strategy.Name(),
		Tier:                string(res.Tier),
		Source:              models.QuoteSourceLocal,
	}, nil
}

// External builds a quote from the provider's own calculation. The
// per-installment amount is derived from the provider's total so that
// total = per-installment * n always holds.
func (q *Quoter) External(key models.RateKey, amount decimal.Decimal, calc models.ExternalCalculation) (models.Quote, error) {
	if !amount.IsPositive() {
		return models.Quote{}, models.ErrInvalidAmount
	}
	if key.Installments < 1 {
		return models.Quote{}, models.ErrInvalidInstallmentCount
	}
	n := decimal.NewFromInt(int64(key.Installments))
	total := calc.TotalAmount
	cft := total.Sub(amount).Mul(decimal.NewFromInt(1200)).Div(amount.Mul(n))

	q.metrics.Quote(models.QuoteSourceExternal, "")
	return models.Quote{
		BankID:              key.BankID,
		CardID:              key.CardID,
		Installments:        key.Installments,
		OriginalAmount:      amount,
		Rate:                calc.InterestRate,
		FixedSurcharge:      decimal.Zero,
		TotalWithInterest:   total,
		PerInstallment:      total.Div(n),
		EffectiveAnnualCost: cft.Round(2),
		Source:              models.QuoteSourceExternal,
	}, nil
}

// Options prices amount for every installment count configured for the bank
// and card, or for the standard counts when nothing is configured
func (q *Quoter) Options(table *rates.Table, bankID, cardID int64, amount decimal.Decimal, strategy calculator.Strategy) ([]models.Quote, error) {
	counts := rates.StandardInstallments
	if configured := table.ListByBankAndCard(bankID, cardID); len(configured) > 0 {
		counts = make([]int, 0, len(configured))
		for _, e := range configured {
			counts = append(counts, e.Installments)
		}
	}

	quotes := make([]models.Quote, 0, len(counts))
	for _, n := range counts {
		qt, err := q.Local(models.RateKey{BankID: bankID, CardID: cardID, Installments: n}, amount, strategy, rates.ModeSimulation)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, qt)
	}
	return quotes, nil
}
