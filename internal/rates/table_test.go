package rates_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/cuotificador/internal/models"
	"github.com/Dan9191/cuotificador/internal/rates"
	"github.com/Dan9191/cuotificador/internal/rates/ratestest"
)

func entry(bankID, cardID int64, n int, rate string) models.RateEntry {
	return models.RateEntry{
		BankID:       bankID,
		CardID:       cardID,
		Installments: n,
		Rate:         decimal.RequireFromString(rate),
		Source:       models.SourceManual,
	}
}

func loadedTable(t *testing.T, entries ...models.RateEntry) *rates.Table {
	t.Helper()
	table := rates.NewTable(ratestest.NewMemoryStore(entries...))
	require.NoError(t, table.Reload(context.Background()))
	return table
}

func TestTable_UpsertInsertsThenUpdates(t *testing.T) {
	ctx := context.Background()
	table := loadedTable(t)

	saved, err := table.Upsert(ctx, entry(5, 2, 3, "12"), rates.Upsert)
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)
	assert.NotNil(t, saved.UpdatedAt)

	again := entry(5, 2, 3, "14")
	again.FixedSurcharge = decimal.NewFromInt(50)
	updated, err := table.Upsert(ctx, again, rates.Upsert)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, updated.ID)

	got, ok := table.Lookup(models.RateKey{BankID: 5, CardID: 2, Installments: 3})
	require.True(t, ok)
	assert.True(t, got.Rate.Equal(decimal.NewFromInt(14)))
	assert.True(t, got.FixedSurcharge.Equal(decimal.NewFromInt(50)))
	assert.Len(t, table.Entries(), 1)
}

func TestTable_InsertOnlyConflicts(t *testing.T) {
	ctx := context.Background()
	table := loadedTable(t, entry(5, 2, 3, "12"))

	_, err := table.Upsert(ctx, entry(5, 2, 3, "20"), rates.InsertOnly)
	assert.ErrorIs(t, err, models.ErrDuplicateConflict)

	got, _ := table.Lookup(models.RateKey{BankID: 5, CardID: 2, Installments: 3})
	assert.True(t, got.Rate.Equal(decimal.NewFromInt(12)))
}

func TestTable_UpsertRejectsInvalidEntries(t *testing.T) {
	table := loadedTable(t)

	_, err := table.Upsert(context.Background(), entry(1, 1, 0, "10"), rates.Upsert)
	assert.ErrorIs(t, err, models.ErrInvalidInstallmentCount)

	_, err = table.Upsert(context.Background(), entry(1, 1, 3, "-1"), rates.Upsert)
	assert.ErrorIs(t, err, models.ErrInvalidRate)
	assert.Empty(t, table.Entries())
}

func TestTable_Remove(t *testing.T) {
	ctx := context.Background()
	table := loadedTable(t, entry(5, 2, 3, "12"))
	id := table.Entries()[0].ID

	require.NoError(t, table.Remove(ctx, id))
	assert.Empty(t, table.Entries())

	assert.ErrorIs(t, table.Remove(ctx, id), models.ErrNotFound)
}

func TestTable_ListByBankAndCardMergesGeneric(t *testing.T) {
	table := loadedTable(t,
		entry(0, 2, 1, "0"),
		entry(0, 2, 3, "10"),
		entry(0, 2, 6, "15"),
		entry(5, 2, 3, "12"),
		entry(5, 2, 12, "30"),
		entry(5, 9, 3, "99"),
		entry(7, 2, 6, "77"),
	)

	list := table.ListByBankAndCard(5, 2)
	require.Len(t, list, 4)

	var counts []int
	for _, e := range list {
		counts = append(counts, e.Installments)
	}
	assert.Equal(t, []int{1, 3, 6, 12}, counts)
	assert.Equal(t, int64(0), list[0].BankID)
	assert.Equal(t, int64(5), list[1].BankID, "bank-specific entry overrides generic")
	assert.True(t, list[1].Rate.Equal(decimal.NewFromInt(12)))
	assert.Equal(t, int64(0), list[2].BankID)
}

func TestTable_ReplaceAll(t *testing.T) {
	ctx := context.Background()
	table := loadedTable(t, entry(5, 2, 3, "12"), entry(5, 2, 6, "18"), entry(5, 3, 6, "18"))

	err := table.ReplaceAll(ctx, 5, 2, []models.RateEntry{entry(5, 2, 12, "30"), entry(5, 2, 18, "45")})
	require.NoError(t, err)

	list := table.ListByBankAndCard(5, 2)
	require.Len(t, list, 2)
	assert.Equal(t, 12, list[0].Installments)
	assert.Equal(t, 18, list[1].Installments)
	assert.Len(t, table.ListByBankAndCard(5, 3), 1)
}

func TestTable_ReplaceAllIsAtomic(t *testing.T) {
	ctx := context.Background()
	table := loadedTable(t, entry(5, 2, 3, "12"))

	err := table.ReplaceAll(ctx, 5, 2, []models.RateEntry{entry(5, 2, 6, "15"), entry(5, 2, 6, "16")})
	assert.ErrorIs(t, err, models.ErrDuplicateConflict)

	err = table.ReplaceAll(ctx, 5, 2, []models.RateEntry{entry(5, 2, 6, "15"), entry(5, 2, 9, "-3")})
	assert.ErrorIs(t, err, models.ErrInvalidRate)

	list := table.ListByBankAndCard(5, 2)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Installments)
}

func TestTable_ApplyRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	table := loadedTable(t)
	boom := errors.New("boom")

	err := table.Apply(ctx, func(tx rates.Tx) error {
		if _, _, err := rates.UpsertTx(ctx, tx, entry(1, 1, 3, "10"), rates.Upsert); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, table.Entries())
}

func TestUpsertTx_Outcomes(t *testing.T) {
	ctx := context.Background()
	store := ratestest.NewMemoryStore()

	var outcomes []rates.Outcome
	for _, rate := range []string{"10", "10", "11"} {
		require.NoError(t, store.WithTx(ctx, func(tx rates.Tx) error {
			_, o, err := rates.UpsertTx(ctx, tx, entry(1, 1, 3, rate), rates.Upsert)
			outcomes = append(outcomes, o)
			return err
		}))
	}
	assert.Equal(t, []rates.Outcome{rates.Inserted, rates.Unchanged, rates.Updated}, outcomes)
}

func TestTable_MutationReloadsSnapshot(t *testing.T) {
	ctx := context.Background()
	table := loadedTable(t)
	before := table.LoadedAt()

	_, err := table.Upsert(ctx, entry(1, 1, 1, "0"), rates.Upsert)
	require.NoError(t, err)
	assert.False(t, table.LoadedAt().Before(before))
	_, ok := table.Lookup(models.RateKey{BankID: 1, CardID: 1, Installments: 1})
	assert.True(t, ok)
}

func TestUpsertTx_ComparesAtStoredPrecision(t *testing.T) {
	ctx := context.Background()
	store := ratestest.NewMemoryStore()

	var outcomes []rates.Outcome
	var saved models.RateEntry
	for _, rate := range []string{"12.34567", "12.34567", "12.34574", "12.3458"} {
		require.NoError(t, store.WithTx(ctx, func(tx rates.Tx) error {
			e := entry(1, 1, 3, rate)
			e.FixedSurcharge = decimal.RequireFromString("99.999")
			var o rates.Outcome
			var err error
			saved, o, err = rates.UpsertTx(ctx, tx, e, rates.Upsert)
			outcomes = append(outcomes, o)
			return err
		}))
	}
	assert.Equal(t, []rates.Outcome{rates.Inserted, rates.Unchanged, rates.Unchanged, rates.Updated}, outcomes)
	assert.Equal(t, "12.3458", saved.Rate.String())
	assert.Equal(t, "100", saved.FixedSurcharge.String())
}

func TestTable_ApplyReportsStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	store := ratestest.NewMemoryStore()
	table := rates.NewTable(store)
	require.NoError(t, table.Reload(ctx))

	store.FailListing(errors.New("connection reset"))
	_, err := table.Upsert(ctx, entry(1, 1, 3, "10"), rates.Upsert)
	assert.ErrorIs(t, err, rates.ErrStaleSnapshot)
	assert.Empty(t, table.Entries(), "snapshot not refreshed")

	store.FailListing(nil)
	require.NoError(t, table.Reload(ctx))
	assert.Len(t, table.Entries(), 1, "change was committed")
}
