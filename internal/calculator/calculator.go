// Package calculator prices a purchase paid in installments.
package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/cuotificador/internal/models"
)

var (
	hundred       = decimal.NewFromInt(100)
	twelveHundred = decimal.NewFromInt(1200)
)

// Strategy applies an annual rate to an amount financed over n installments.
// The fixed surcharge is added by Calculate, not by the strategy.
type Strategy interface {
	Name() string
	Interest(amount, rate decimal.Decimal, installments int) decimal.Decimal
}

// ProratedInterestStrategy charges the annual rate prorated by months:
// amount * rate/100 * n/12.
type ProratedInterestStrategy struct{}

func (ProratedInterestStrategy) Name() string { return "prorated" }

func (ProratedInterestStrategy) Interest(amount, rate decimal.Decimal, installments int) decimal.Decimal {
	return amount.Mul(rate).Mul(decimal.NewFromInt(int64(installments))).Div(twelveHundred)
}

// FlatInterestStrategy charges the rate once on the whole amount regardless of
// the number of installments: amount * rate/100. Used by the interactive simulator.
type FlatInterestStrategy struct{}

func (FlatInterestStrategy) Name() string { return "flat" }

func (FlatInterestStrategy) Interest(amount, rate decimal.Decimal, _ int) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}

// StrategyByName returns the strategy registered under name. Empty means prorated.
func StrategyByName(name string) (Strategy, error) {
	switch name {
	case "", "prorated":
		return ProratedInterestStrategy{}, nil
	case "flat":
		return FlatInterestStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown interest strategy %q", models.ErrInvalidInput, name)
	}
}

// Input holds the figures to price
type Input struct {
	Amount         decimal.Decimal
	Rate           decimal.Decimal // Annual percent
	FixedSurcharge decimal.Decimal
	Installments   int
}

// Result holds full-precision figures
type Result struct {
	TotalWithInterest   decimal.Decimal
	PerInstallment      decimal.Decimal
	EffectiveAnnualCost decimal.Decimal // CFT percent
}

// CFTRounded returns the CFT rounded to 2 decimal places for display
func (r Result) CFTRounded() decimal.Decimal {
	return r.EffectiveAnnualCost.Round(2)
}

// Calculate prices in with the given strategy
func Calculate(s Strategy, in Input) (Result, error) {
	if !in.Amount.IsPositive() {
		return Result{}, models.ErrInvalidAmount
	}
	if in.Installments <= 0 {
		return Result{}, models.ErrInvalidInstallmentCount
	}
	if in.Rate.IsNegative() || in.FixedSurcharge.IsNegative() {
		return Result{}, models.ErrInvalidRate
	}

	n := decimal.NewFromInt(int64(in.Installments))
	total := in.Amount.Add(s.Interest(in.Amount, in.Rate, in.Installments)).Add(in.FixedSurcharge)

	// (total/amount - 1) * 12/n * 100
	cft := total.Sub(in.Amount).Mul(twelveHundred).Div(in.Amount.Mul(n))

	return Result{
		TotalWithInterest:   total,
		PerInstallment:      total.Div(n),
		EffectiveAnnualCost: cft,
	}, nil
}

// Prorated is Calculate with ProratedInterestStrategy
func Prorated(in Input) (Result, error) {
	return Calculate(ProratedInterestStrategy{}, in)
}

// Flat is Calculate with FlatInterestStrategy
func Flat(in Input) (Result, error) {
	return Calculate(FlatInterestStrategy{}, in)
}
