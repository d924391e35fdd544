package rates

import (
	"github.com/shopspring/decimal"

	"github.com/Dan9191/cuotificador/internal/models"
)

// Mode selects which lookup tiers are allowed
type Mode int

const (
	// ModeSimulation falls back to the ladder so quotes never block on missing configuration
	ModeSimulation Mode = iota
	// ModeConfiguration only reports configured rates
	ModeConfiguration
)

// Tier names where a resolved rate came from
type Tier string

const (
	TierExact   Tier = "exact"
	TierGeneric Tier = "generic"
	TierLadder  Tier = "ladder"
)

// LadderStep applies Rate to installment counts up to MaxInstallments.
// A zero MaxInstallments matches any count.
type LadderStep struct {
	MaxInstallments int
	Rate            decimal.Decimal
}

// Ladder is an ordered list of steps keyed only on installment count
type Ladder []LadderStep

// DefaultLadder is the simulator's fallback when a rate is not configured
var DefaultLadder = Ladder{
	{MaxInstallments: 1, Rate: decimal.Zero},
	{MaxInstallments: 3, Rate: decimal.NewFromInt(10)},
	{MaxInstallments: 6, Rate: decimal.NewFromInt(15)},
	{MaxInstallments: 12, Rate: decimal.NewFromInt(25)},
	{MaxInstallments: 0, Rate: decimal.NewFromInt(40)},
}

// StandardInstallments are offered by the simulator when nothing is configured
var StandardInstallments = []int{1, 3, 6, 12, 18, 24}

// Rate returns the rate of the first step covering installments
func (l Ladder) Rate(installments int) (decimal.Decimal, bool) {
	for _, s := range l {
		if s.MaxInstallments == 0 || installments <= s.MaxInstallments {
			return s.Rate, true
		}
	}
	return decimal.Zero, false
}

// Lookuper is the read side of a rate table
type Lookuper interface {
	Lookup(key models.RateKey) (models.RateEntry, bool)
}

// Resolution is the single applicable rate for a key
type Resolution struct {
	Rate           decimal.Decimal
	FixedSurcharge decimal.Decimal
	Tier           Tier
	Entry          *models.RateEntry // Nil for the ladder tier
}

// Resolver picks the applicable rate: exact match, then generic bank, then
// the ladder (simulation only)
type Resolver struct {
	table  Lookuper
	ladder Ladder
}

// NewResolver creates a resolver over table. A nil ladder disables the last tier.
func NewResolver(table Lookuper, ladder Ladder) *Resolver {
	return &Resolver{table: table, ladder: ladder}
}

// Resolve returns the applicable rate or ErrNotConfigured
func (r *Resolver) Resolve(key models.RateKey, mode Mode) (Resolution, error) {
	if key.Installments < 1 {
		return Resolution{}, models.ErrInvalidInstallmentCount
	}

	if e, ok := r.table.Lookup(key); ok {
		return fromEntry(e, TierExact), nil
	}
	if key.BankID != models.GenericBankID {
		if e, ok := r.table.Lookup(key.Generic()); ok {
			return fromEntry(e, TierGeneric), nil
		}
	}

	if mode == ModeSimulation {
		if rate, ok := r.ladder.Rate(key.Installments); ok {
			return Resolution{Rate: rate, FixedSurcharge: decimal.Zero, Tier: TierLadder}, nil
		}
	}
	return Resolution{}, models.ErrNotConfigured
}

func fromEntry(e models.RateEntry, tier Tier) Resolution {
	return Resolution{Rate: e.Rate, FixedSurcharge: e.FixedSurcharge, Tier: tier, Entry: &e}
}
