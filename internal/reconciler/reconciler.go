// Package reconciler merges payment-provider installment plans into the local
// rate table and prices point-of-sale purchases against live provider data.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cuotificador/internal/calculator"
	"github.com/Dan9191/cuotificador/internal/metrics"
	"github.com/Dan9191/cuotificador/internal/models"
	"github.com/Dan9191/cuotificador/internal/quote"
	"github.com/Dan9191/cuotificador/internal/rates"
)

// Provider is an external source of installment plans
type Provider interface {
	FetchPlans(ctx context.Context, bank models.Bank) ([]models.ExternalInstallmentPlan, error)
	CalculateInstallments(ctx context.Context, bank models.Bank, req models.ExternalCalculationRequest) (models.ExternalCalculation, error)
}

// Catalog looks up banks and cards
type Catalog interface {
	ListBanks(ctx context.Context) ([]models.Bank, error)
	FindBankByID(ctx context.Context, id int64) (*models.Bank, error)
	ListCards(ctx context.Context) ([]models.Card, error)
	FindCardByID(ctx context.Context, id int64) (*models.Card, error)
}

// Reconciler syncs provider plans into a rate table
type Reconciler struct {
	catalog   Catalog
	table     *rates.Table
	quoter    *quote.Quoter
	providers map[string]Provider
	metrics   *metrics.Metrics
	log       *logrus.Logger
	now       func() time.Time
}

// New creates a reconciler. providers is keyed by Bank.Provider.
func New(catalog Catalog, table *rates.Table, quoter *quote.Quoter, providers map[string]Provider, m *metrics.Metrics, log *logrus.Logger) *Reconciler {
	return &Reconciler{
		catalog:   catalog,
		table:     table,
		quoter:    quoter,
		providers: providers,
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

// SyncAll reconciles every API-enabled bank. A failing bank is recorded in
// the report and never stops the others.
func (r *Reconciler) SyncAll(ctx context.Context) (models.SyncReport, error) {
	report := models.SyncReport{StartedAt: r.now()}

	banks, err := r.catalog.ListBanks(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list banks: %w", err)
	}
	cards, err := r.cardsByCode(ctx)
	if err != nil {
		return report, err
	}

	for _, bank := range banks {
		if !bank.APIEnabled {
			continue
		}
		report.Results = append(report.Results, r.syncBank(ctx, bank, cards))
	}
	report.FinishedAt = r.now()

	r.log.WithFields(logrus.Fields{
		"banks":  len(report.Results),
		"failed": report.Failed(),
	}).Info("External rate sync finished")
	return report, nil
}

// SyncBank reconciles a single bank
func (r *Reconciler) SyncBank(ctx context.Context, bankID int64) (models.BankSyncResult, error) {
	bank, err := r.catalog.FindBankByID(ctx, bankID)
	if err != nil {
		return models.BankSyncResult{}, err
	}
	cards, err := r.cardsByCode(ctx)
	if err != nil {
		return models.BankSyncResult{}, err
	}
	return r.syncBank(ctx, *bank, cards), nil
}

func (r *Reconciler) syncBank(ctx context.Context, bank models.Bank, cards map[string]models.Card) models.BankSyncResult {
	result := models.BankSyncResult{BankID: bank.ID, BankCode: bank.Code}
	logger := r.log.WithFields(logrus.Fields{"bank_id": bank.ID, "bank_code": bank.Code})

	fail := func(err error) models.BankSyncResult {
		result.Success = false
		result.Inserted, result.Updated, result.Unchanged = 0, 0, 0
		result.Error = err.Error()
		logger.Errorf("External rate sync failed: %v", err)
		r.metrics.BankSync(bank.Code, false)
		return result
	}

	if !bank.APIEnabled {
		return fail(fmt.Errorf("bank %s has no API integration enabled", bank.Code))
	}
	provider, ok := r.providers[bank.Provider]
	if !ok {
		return fail(fmt.Errorf("no provider %q configured", bank.Provider))
	}

	plans, err := provider.FetchPlans(ctx, bank)
	if err != nil {
		return fail(err)
	}

	err = r.table.Apply(ctx, func(tx rates.Tx) error {
		result.Inserted, result.Updated, result.Unchanged, result.Skipped = 0, 0, 0, 0
		for _, plan := range plans {
			card, ok := cards[strings.ToLower(strings.TrimSpace(plan.CardCode))]
			if !ok {
				result.Skipped++
				logger.WithField("card_code", plan.CardCode).Warn("Skipping plan for unknown card")
				continue
			}
			if plan.Installments < 1 || plan.InterestRate.IsNegative() {
				result.Skipped++
				logger.WithFields(logrus.Fields{
					"card_code":    plan.CardCode,
					"installments": plan.Installments,
					"rate":         plan.InterestRate.String(),
				}).Warn("Skipping invalid plan")
				continue
			}

			entry := models.RateEntry{
				BankID:         bank.ID,
				CardID:         card.ID,
				Installments:   plan.Installments,
				Rate:           plan.InterestRate,
				FixedSurcharge: decimal.Zero,
				Source:         models.SourceExternal,
			}
			// Plans carry no surcharge, so a configured one is kept
			existing, err := tx.FindRate(ctx, entry.Key())
			switch {
			case err == nil:
				entry.FixedSurcharge = existing.FixedSurcharge
			case !errors.Is(err, models.ErrNotFound):
				return err
			}

			_, outcome, err := rates.UpsertTx(ctx, tx, entry, rates.Upsert)
			if err != nil {
				return err
			}
			switch outcome {
			case rates.Inserted:
				result.Inserted++
			case rates.Updated:
				result.Updated++
			case rates.Unchanged:
				result.Unchanged++
			}
		}
		return nil
	})
	if errors.Is(err, rates.ErrStaleSnapshot) {
		logger.Warnf("Plans stored but rate snapshot not reloaded: %v", err)
	} else if err != nil {
		return fail(fmt.Errorf("failed to store plans: %w", err))
	}

	result.Success = true
	r.metrics.BankSync(bank.Code, true)
	logger.WithFields(logrus.Fields{
		"inserted":  result.Inserted,
		"updated":   result.Updated,
		"unchanged": result.Unchanged,
		"skipped":   result.Skipped,
	}).Info("Bank rates synced from provider")
	return result
}

func (r *Reconciler) cardsByCode(ctx context.Context) (map[string]models.Card, error) {
	cards, err := r.catalog.ListCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	byCode := make(map[string]models.Card, len(cards))
	for _, c := range cards {
		byCode[strings.ToLower(c.Code)] = c
	}
	return byCode, nil
}

// LiveQuoteRequest asks for a point-of-sale quote
type LiveQuoteRequest struct {
	BankID       int64
	CardID       int64
	Installments int
	Amount       decimal.Decimal
	Strategy     calculator.Strategy // Used only for the local fallback
}

// LiveQuote prices a purchase with the provider's live calculation. When the
// bank has no integration or the provider has no answer, it falls back to
// the local rates in simulation mode. Nothing is persisted.
func (r *Reconciler) LiveQuote(ctx context.Context, req LiveQuoteRequest) (models.Quote, error) {
	if !req.Amount.IsPositive() {
		return models.Quote{}, models.ErrInvalidAmount
	}
	if req.Installments < 1 {
		return models.Quote{}, models.ErrInvalidInstallmentCount
	}
	if req.Strategy == nil {
		req.Strategy = calculator.ProratedInterestStrategy{}
	}
	key := models.RateKey{BankID: req.BankID, CardID: req.CardID, Installments: req.Installments}

	if q, ok := r.externalQuote(ctx, key, req.Amount); ok {
		return q, nil
	}
	return r.quoter.Local(key, req.Amount, req.Strategy, rates.ModeSimulation)
}

func (r *Reconciler) externalQuote(ctx context.Context, key models.RateKey, amount decimal.Decimal) (models.Quote, bool) {
	if key.BankID == models.GenericBankID {
		return models.Quote{}, false
	}
	bank, err := r.catalog.FindBankByID(ctx, key.BankID)
	if err != nil {
		r.log.Debugf("No bank %d for live quote: %v", key.BankID, err)
		return models.Quote{}, false
	}
	provider, ok := r.providers[bank.Provider]
	if !bank.APIEnabled || !ok {
		return models.Quote{}, false
	}
	card, err := r.catalog.FindCardByID(ctx, key.CardID)
	if err != nil {
		r.log.Debugf("No card %d for live quote: %v", key.CardID, err)
		return models.Quote{}, false
	}

	calc, err := provider.CalculateInstallments(ctx, *bank, models.ExternalCalculationRequest{
		CardCode:     card.Code,
		Installments: key.Installments,
		Amount:       amount,
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{"bank_id": bank.ID, "card_code": card.Code}).
			Warnf("Live quote unavailable, using local rates: %v", err)
		return models.Quote{}, false
	}

	if err := checkCalculation(calc, amount); err != nil {
		r.log.WithFields(logrus.Fields{"bank_id": bank.ID, "card_code": card.Code}).
			Warnf("Unusable provider calculation, using local rates: %v", err)
		return models.Quote{}, false
	}

	q, err := r.quoter.External(key, amount, calc)
	if err != nil {
		return models.Quote{}, false
	}
	if diff := q.PerInstallment.Sub(calc.InstallmentAmount).Abs(); diff.GreaterThan(decimal.RequireFromString("0.01")) {
		r.log.Debugf("Provider installment %s differs from total/n %s", calc.InstallmentAmount, q.PerInstallment)
	}
	return q, true
}

// checkCalculation rejects provider answers that cannot price amount: missing
// or non-positive totals, totals below the amount and negative rates
func checkCalculation(calc models.ExternalCalculation, amount decimal.Decimal) error {
	switch {
	case !calc.TotalAmount.IsPositive():
		return fmt.Errorf("total amount %s is not positive", calc.TotalAmount)
	case calc.TotalAmount.LessThan(amount):
		return fmt.Errorf("total amount %s is below the purchase amount %s", calc.TotalAmount, amount)
	case calc.InterestRate.IsNegative():
		return fmt.Errorf("interest rate %s is negative", calc.InterestRate)
	}
	return nil
}
