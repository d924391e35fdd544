package rates_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/cuotificador/internal/models"
	"github.com/Dan9191/cuotificador/internal/rates"
)

func TestLadder_DefaultSteps(t *testing.T) {
	tests := []struct {
		installments int
		want         int64
	}{
		{1, 0}, {2, 10}, {3, 10}, {4, 15}, {6, 15}, {7, 25}, {12, 25}, {13, 40}, {48, 40},
	}
	for _, tt := range tests {
		rate, ok := rates.DefaultLadder.Rate(tt.installments)
		require.True(t, ok)
		assert.True(t, rate.Equal(decimal.NewFromInt(tt.want)), "%d installments: got %s", tt.installments, rate)
	}
}

func TestResolver_Precedence(t *testing.T) {
	table := loadedTable(t,
		entry(5, 2, 3, "12"),
		entry(0, 2, 3, "11"),
		entry(0, 2, 6, "16"),
	)
	r := rates.NewResolver(table, rates.DefaultLadder)

	res, err := r.Resolve(models.RateKey{BankID: 5, CardID: 2, Installments: 3}, rates.ModeSimulation)
	require.NoError(t, err)
	assert.Equal(t, rates.TierExact, res.Tier)
	assert.True(t, res.Rate.Equal(decimal.NewFromInt(12)), "table value must win over ladder's 10%%")

	res, err = r.Resolve(models.RateKey{BankID: 5, CardID: 2, Installments: 6}, rates.ModeSimulation)
	require.NoError(t, err)
	assert.Equal(t, rates.TierGeneric, res.Tier)
	assert.True(t, res.Rate.Equal(decimal.NewFromInt(16)))
	require.NotNil(t, res.Entry)
	assert.Equal(t, models.GenericBankID, res.Entry.BankID)

	res, err = r.Resolve(models.RateKey{BankID: 5, CardID: 2, Installments: 12}, rates.ModeSimulation)
	require.NoError(t, err)
	assert.Equal(t, rates.TierLadder, res.Tier)
	assert.True(t, res.Rate.Equal(decimal.NewFromInt(25)))
	assert.Nil(t, res.Entry)
}

func TestResolver_ConfigurationModeNeverUsesLadder(t *testing.T) {
	r := rates.NewResolver(loadedTable(t, entry(0, 2, 3, "11")), rates.DefaultLadder)

	_, err := r.Resolve(models.RateKey{BankID: 5, CardID: 2, Installments: 12}, rates.ModeConfiguration)
	assert.ErrorIs(t, err, models.ErrNotConfigured)

	res, err := r.Resolve(models.RateKey{BankID: 5, CardID: 2, Installments: 3}, rates.ModeConfiguration)
	require.NoError(t, err)
	assert.Equal(t, rates.TierGeneric, res.Tier)
}

func TestResolver_DisabledLadder(t *testing.T) {
	r := rates.NewResolver(loadedTable(t), nil)

	_, err := r.Resolve(models.RateKey{BankID: 1, CardID: 1, Installments: 1}, rates.ModeSimulation)
	assert.ErrorIs(t, err, models.ErrNotConfigured)
}

func TestResolver_InvalidInstallments(t *testing.T) {
	r := rates.NewResolver(loadedTable(t), rates.DefaultLadder)

	_, err := r.Resolve(models.RateKey{BankID: 1, CardID: 1, Installments: 0}, rates.ModeSimulation)
	assert.ErrorIs(t, err, models.ErrInvalidInstallmentCount)
}

func TestResolver_SeesMutations(t *testing.T) {
	table := loadedTable(t)
	r := rates.NewResolver(table, rates.DefaultLadder)
	key := models.RateKey{BankID: 5, CardID: 2, Installments: 3}

	res, err := r.Resolve(key, rates.ModeSimulation)
	require.NoError(t, err)
	assert.Equal(t, rates.TierLadder, res.Tier)

	_, err = table.Upsert(t.Context(), entry(5, 2, 3, "12"), rates.Upsert)
	require.NoError(t, err)

	res, err = r.Resolve(key, rates.ModeSimulation)
	require.NoError(t, err)
	assert.Equal(t, rates.TierExact, res.Tier)
}
