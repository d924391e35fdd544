package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cuotificador/internal/calculator"
	"github.com/Dan9191/cuotificador/internal/metrics"
	"github.com/Dan9191/cuotificador/internal/models"
	"github.com/Dan9191/cuotificador/internal/permissions"
	"github.com/Dan9191/cuotificador/internal/quote"
	"github.com/Dan9191/cuotificador/internal/rates"
	"github.com/Dan9191/cuotificador/internal/reconciler"
)

// Catalog stores banks and cards
type Catalog interface {
	reconciler.Catalog
	FindBankByCode(ctx context.Context, code string) (*models.Bank, error)
	CreateBank(ctx context.Context, bank *models.Bank) error
	UpdateBank(ctx context.Context, bank *models.Bank) error
	FindCardByCode(ctx context.Context, code string) (*models.Card, error)
	CreateCard(ctx context.Context, card *models.Card) error
	UpdateCard(ctx context.Context, card *models.Card) error
}

// Service handles business logic
type Service struct {
	catalog    Catalog
	table      *rates.Table
	resolver   *rates.Resolver
	quoter     *quote.Quoter
	reconciler *reconciler.Reconciler
	gate       *permissions.Gate
	metrics    *metrics.Metrics
	log        *logrus.Logger
}

// NewService initializes a new service
func NewService(catalog Catalog, table *rates.Table, resolver *rates.Resolver, quoter *quote.Quoter,
	rec *reconciler.Reconciler, gate *permissions.Gate, m *metrics.Metrics, log *logrus.Logger) *Service {
	return &Service{
		catalog:    catalog,
		table:      table,
		resolver:   resolver,
		quoter:     quoter,
		reconciler: rec,
		gate:       gate,
		metrics:    m,
		log:        log,
	}
}

// QuoteRequest asks for the price of a purchase in installments
type QuoteRequest struct {
	BankID       int64           `json:"bank_id"`
	CardID       int64           `json:"card_id"`
	Installments int             `json:"installments"`
	Amount       decimal.Decimal `json:"amount"`
	Strategy     string          `json:"strategy,omitempty"`
}

// Quote prices a purchase against the local rates. Combinations without a
// configured rate fall back to the default ladder.
func (s *Service) Quote(_ context.Context, req QuoteRequest) (models.Quote, error) {
	strategy, err := calculator.StrategyByName(req.Strategy)
	if err != nil {
		return models.Quote{}, err
	}
	if req.Installments < 1 {
		return models.Quote{}, models.ErrInvalidInstallmentCount
	}
	key := models.RateKey{BankID: req.BankID, CardID: req.CardID, Installments: req.Installments}
	return s.quoter.Local(key, req.Amount, strategy, rates.ModeSimulation)
}

// PlanOptions prices amount for every installment count offered to a bank and card
func (s *Service) PlanOptions(_ context.Context, bankID, cardID int64, amount decimal.Decimal, strategyName string) ([]models.Quote, error) {
	strategy, err := calculator.StrategyByName(strategyName)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}
	return s.quoter.Options(s.table, bankID, cardID, amount, strategy)
}

// LiveQuote prices a point-of-sale purchase with the provider's live
// calculation when the bank has one
func (s *Service) LiveQuote(ctx context.Context, req QuoteRequest) (models.Quote, error) {
	strategy, err := calculator.StrategyByName(req.Strategy)
	if err != nil {
		return models.Quote{}, err
	}
	return s.reconciler.LiveQuote(ctx, reconciler.LiveQuoteRequest{
		BankID:       req.BankID,
		CardID:       req.CardID,
		Installments: req.Installments,
		Amount:       req.Amount,
		Strategy:     strategy,
	})
}

// ResolveConfigured returns the rate configured for key without the default
// ladder, as the configuration screens see it
func (s *Service) ResolveConfigured(_ context.Context, key models.RateKey) (rates.Resolution, error) {
	if key.Installments < 1 {
		return rates.Resolution{}, models.ErrInvalidInstallmentCount
	}
	return s.resolver.Resolve(key, rates.ModeConfiguration)
}

// SyncAll reconciles every bank with an API integration
func (s *Service) SyncAll(ctx context.Context) (models.SyncReport, error) {
	if err := s.gate.Check(ctx, permissions.SyncExternal); err != nil {
		return models.SyncReport{}, err
	}
	report, err := s.reconciler.SyncAll(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to sync external rates: %w", err)
	}
	return report, nil
}

// SyncBank reconciles one bank
func (s *Service) SyncBank(ctx context.Context, bankID int64) (models.BankSyncResult, error) {
	if err := s.gate.Check(ctx, permissions.SyncExternal); err != nil {
		return models.BankSyncResult{}, err
	}
	return s.reconciler.SyncBank(ctx, bankID)
}
