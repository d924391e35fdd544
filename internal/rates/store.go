package rates

import (
	"context"

	"github.com/Dan9191/cuotificador/internal/models"
)

// Store is the durable side of a Table
type Store interface {
	ListRates(ctx context.Context) ([]models.RateEntry, error)
	// WithTx runs fn in a single transaction, rolling back if fn fails
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of rate mutations available inside a transaction
type Tx interface {
	FindRate(ctx context.Context, key models.RateKey) (models.RateEntry, error)
	InsertRate(ctx context.Context, entry *models.RateEntry) error
	UpdateRate(ctx context.Context, entry *models.RateEntry) error
	DeleteRate(ctx context.Context, id int64) error
	DeleteRates(ctx context.Context, bankID, cardID int64) (int64, error)
}
