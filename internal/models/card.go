package models

// CardType distinguishes credit and debit cards
type CardType string

const (
	CardTypeCredit CardType = "credit"
	CardTypeDebit  CardType = "debit"
)

// Card represents a card brand accepted at the point of sale
type Card struct {
	ID   int64    `json:"id"`
	Name string   `json:"name"`
	Code string   `json:"code"`
	Type CardType `json:"type"`
}

// Valid reports whether the card type is one of the known values
func (t CardType) Valid() bool {
	return t == CardTypeCredit || t == CardTypeDebit
}
