package reconciler

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/cuotificador/internal/models"
	"github.com/Dan9191/cuotificador/internal/quote"
	"github.com/Dan9191/cuotificador/internal/rates"
	"github.com/Dan9191/cuotificador/internal/rates/ratestest"
)

type fakeCatalog struct {
	banks []models.Bank
	cards []models.Card
}

func (c *fakeCatalog) ListBanks(context.Context) ([]models.Bank, error) { return c.banks, nil }
func (c *fakeCatalog) ListCards(context.Context) ([]models.Card, error) { return c.cards, nil }

func (c *fakeCatalog) FindBankByID(_ context.Context, id int64) (*models.Bank, error) {
	for _, b := range c.banks {
		if b.ID == id {
			return &b, nil
		}
	}
	return nil, models.ErrNotFound
}

func (c *fakeCatalog) FindCardByID(_ context.Context, id int64) (*models.Card, error) {
	for _, card := range c.cards {
		if card.ID == id {
			return &card, nil
		}
	}
	return nil, models.ErrNotFound
}

type fakeProvider struct {
	plans    map[int64][]models.ExternalInstallmentPlan
	failing  map[int64]error
	calc     *models.ExternalCalculation
	calcErr  error
	requests []models.ExternalCalculationRequest
}

func (p *fakeProvider) FetchPlans(_ context.Context, bank models.Bank) ([]models.ExternalInstallmentPlan, error) {
	if err := p.failing[bank.ID]; err != nil {
		return nil, err
	}
	return p.plans[bank.ID], nil
}

func (p *fakeProvider) CalculateInstallments(_ context.Context, _ models.Bank, req models.ExternalCalculationRequest) (models.ExternalCalculation, error) {
	p.requests = append(p.requests, req)
	if p.calcErr != nil {
		return models.ExternalCalculation{}, p.calcErr
	}
	return *p.calc, nil
}

func plan(card string, n int, rate string) models.ExternalInstallmentPlan {
	return models.ExternalInstallmentPlan{CardCode: card, Installments: n, InterestRate: decimal.RequireFromString(rate)}
}

func silentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fixture struct {
	rec      *Reconciler
	table    *rates.Table
	store    *ratestest.MemoryStore
	provider *fakeProvider
}

func newFixture(t *testing.T, entries ...models.RateEntry) fixture {
	t.Helper()
	catalog := &fakeCatalog{
		banks: []models.Bank{
			{ID: 1, Code: "A", APIEnabled: true, Provider: models.ProviderPayWay},
			{ID: 2, Code: "B", APIEnabled: true, Provider: models.ProviderPayWay},
			{ID: 3, Code: "C", APIEnabled: false},
		},
		cards: []models.Card{
			{ID: 10, Code: "VISA", Type: models.CardTypeCredit},
			{ID: 11, Code: "Master", Type: models.CardTypeCredit},
		},
	}
	provider := &fakeProvider{plans: map[int64][]models.ExternalInstallmentPlan{}, failing: map[int64]error{}}

	store := ratestest.NewMemoryStore(entries...)
	table := rates.NewTable(store)
	require.NoError(t, table.Reload(context.Background()))
	quoter := quote.NewQuoter(rates.NewResolver(table, rates.DefaultLadder), nil)

	rec := New(catalog, table, quoter, map[string]Provider{models.ProviderPayWay: provider}, nil, silentLogger())
	return fixture{rec: rec, table: table, store: store, provider: provider}
}

func TestSyncAll_IsolatesFailingBank(t *testing.T) {
	f := newFixture(t)
	f.provider.failing[1] = &models.ProviderError{Code: "unreachable", Err: errors.New("connection refused")}
	f.provider.plans[2] = []models.ExternalInstallmentPlan{plan("visa", 3, "12"), plan("MASTER", 6, "18")}

	report, err := f.rec.SyncAll(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 2, "disabled banks are not synced")

	a, b := report.Results[0], report.Results[1]
	assert.Equal(t, int64(1), a.BankID)
	assert.False(t, a.Success)
	assert.Contains(t, a.Error, "unreachable")
	assert.Equal(t, int64(2), b.BankID)
	assert.True(t, b.Success)
	assert.Equal(t, 2, b.Inserted)
	assert.Equal(t, 1, report.Failed())

	got, ok := f.table.Lookup(models.RateKey{BankID: 2, CardID: 10, Installments: 3})
	require.True(t, ok)
	assert.Equal(t, models.SourceExternal, got.Source)
	assert.True(t, got.Rate.Equal(decimal.NewFromInt(12)))
}

func TestSyncAll_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.provider.plans[1] = []models.ExternalInstallmentPlan{plan("VISA", 3, "12"), plan("VISA", 6, "18")}

	_, err := f.rec.SyncAll(context.Background())
	require.NoError(t, err)
	first := f.table.Entries()

	report, err := f.rec.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, f.table.Entries())
	assert.Equal(t, 0, report.Results[0].Inserted)
	assert.Equal(t, 0, report.Results[0].Updated)
	assert.Equal(t, 2, report.Results[0].Unchanged)
}

func TestSyncBank_UpdatesInPlaceAndKeepsSurcharge(t *testing.T) {
	f := newFixture(t, models.RateEntry{
		BankID: 1, CardID: 10, Installments: 3,
		Rate: decimal.NewFromInt(9), FixedSurcharge: decimal.NewFromInt(150), Source: models.SourceManual,
	})
	f.provider.plans[1] = []models.ExternalInstallmentPlan{plan("VISA", 3, "12"), plan("NARANJA", 3, "5")}

	res, err := f.rec.SyncBank(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Skipped)

	entries := f.table.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Rate.Equal(decimal.NewFromInt(12)))
	assert.True(t, entries[0].FixedSurcharge.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, models.SourceExternal, entries[0].Source)
}

func TestSyncBank_DisabledAndUnknown(t *testing.T) {
	f := newFixture(t)

	res, err := f.rec.SyncBank(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, res.Success)

	_, err = f.rec.SyncBank(context.Background(), 99)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSyncBank_SkipsInvalidPlans(t *testing.T) {
	f := newFixture(t)
	f.provider.plans[1] = []models.ExternalInstallmentPlan{plan("VISA", 0, "12"), plan("VISA", 3, "-1"), plan("VISA", 6, "15")}

	res, err := f.rec.SyncBank(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Inserted)
}

func TestLiveQuote_UsesProvider(t *testing.T) {
	f := newFixture(t)
	f.provider.calc = &models.ExternalCalculation{
		InterestRate:      decimal.NewFromInt(25),
		TotalAmount:       decimal.NewFromInt(112500),
		InstallmentAmount: decimal.NewFromInt(18750),
	}

	q, err := f.rec.LiveQuote(context.Background(), LiveQuoteRequest{BankID: 1, CardID: 10, Installments: 6, Amount: decimal.NewFromInt(100000)})
	require.NoError(t, err)
	assert.Equal(t, models.QuoteSourceExternal, q.Source)
	assert.True(t, q.PerInstallment.Equal(decimal.NewFromInt(18750)))
	require.Len(t, f.provider.requests, 1)
	assert.Equal(t, "VISA", f.provider.requests[0].CardCode)
	assert.Empty(t, f.table.Entries(), "live quotes persist nothing")
}

func TestLiveQuote_FallsBackToLocal(t *testing.T) {
	f := newFixture(t, models.RateEntry{BankID: 1, CardID: 10, Installments: 6, Rate: decimal.NewFromInt(30), Source: models.SourceManual})
	f.provider.calcErr = &models.ProviderError{Code: "plan_not_found"}

	q, err := f.rec.LiveQuote(context.Background(), LiveQuoteRequest{BankID: 1, CardID: 10, Installments: 6, Amount: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	assert.Equal(t, models.QuoteSourceLocal, q.Source)
	assert.Equal(t, "exact", q.Tier)
	assert.True(t, q.Rate.Equal(decimal.NewFromInt(30)))

	// Bank without integration never calls the provider
	q, err = f.rec.LiveQuote(context.Background(), LiveQuoteRequest{BankID: 3, CardID: 10, Installments: 12, Amount: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	assert.Equal(t, "ladder", q.Tier)
	assert.Len(t, f.provider.requests, 1)
}

func TestLiveQuote_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.rec.LiveQuote(context.Background(), LiveQuoteRequest{BankID: 1, CardID: 10, Installments: 3, Amount: decimal.Zero})
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = f.rec.LiveQuote(context.Background(), LiveQuoteRequest{BankID: 1, CardID: 10, Installments: 0, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, models.ErrInvalidInstallmentCount)
}

func TestSyncBank_RoundsPlansToStoredPrecision(t *testing.T) {
	f := newFixture(t)
	f.provider.plans[1] = []models.ExternalInstallmentPlan{plan("VISA", 3, "12.34567")}

	res, err := f.rec.SyncBank(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)

	got, ok := f.table.Lookup(models.RateKey{BankID: 1, CardID: 10, Installments: 3})
	require.True(t, ok)
	assert.Equal(t, "12.3457", got.Rate.String())
	stamped := got.UpdatedAt

	res, err = f.rec.SyncBank(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 1, res.Unchanged)

	got, _ = f.table.Lookup(models.RateKey{BankID: 1, CardID: 10, Installments: 3})
	assert.Equal(t, stamped, got.UpdatedAt)
}

func TestSyncBank_CommittedDespiteStaleSnapshot(t *testing.T) {
	f := newFixture(t)
	f.provider.plans[1] = []models.ExternalInstallmentPlan{plan("VISA", 3, "12")}
	f.store.FailListing(errors.New("read replica lagging"))

	res, err := f.rec.SyncBank(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Inserted)

	f.store.FailListing(nil)
	require.NoError(t, f.table.Reload(context.Background()))
	_, ok := f.table.Lookup(models.RateKey{BankID: 1, CardID: 10, Installments: 3})
	assert.True(t, ok)
}

func TestLiveQuote_RejectsUnusableCalculation(t *testing.T) {
	tests := []struct {
		name string
		calc models.ExternalCalculation
	}{
		{"empty answer", models.ExternalCalculation{}},
		{"total below amount", models.ExternalCalculation{
			InterestRate: decimal.NewFromInt(10), TotalAmount: decimal.NewFromInt(90000), InstallmentAmount: decimal.NewFromInt(15000),
		}},
		{"negative rate", models.ExternalCalculation{
			InterestRate: decimal.NewFromInt(-5), TotalAmount: decimal.NewFromInt(110000), InstallmentAmount: decimal.NewFromInt(18333),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.provider.calc = &tt.calc

			q, err := f.rec.LiveQuote(context.Background(), LiveQuoteRequest{BankID: 1, CardID: 10, Installments: 6, Amount: decimal.NewFromInt(100000)})
			require.NoError(t, err)
			require.Len(t, f.provider.requests, 1)
			assert.Equal(t, models.QuoteSourceLocal, q.Source)
			assert.Equal(t, "ladder", q.Tier)
			// Ladder gives 15% for 6 installments
			assert.True(t, q.TotalWithInterest.Equal(decimal.NewFromInt(107500)), "total: %s", q.TotalWithInterest)
			assert.False(t, q.EffectiveAnnualCost.IsNegative())
		})
	}
}
