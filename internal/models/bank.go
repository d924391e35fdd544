package models

// GenericBankID is the wildcard bank used as a fallback for any bank
const GenericBankID int64 = 0

// Provider names for banks with API integration
const (
	ProviderPayWay   = "payway"
	ProviderSOAPFeed = "soapfeed"
)

// Bank represents an issuing or acquiring bank
type Bank struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Code           string          `json:"code"`
	APIEnabled     bool            `json:"api_enabled"`
	Provider       string          `json:"provider,omitempty"`
	APICredentials *APICredentials `json:"-"` // Stored encrypted
}

// APICredentials are the per-bank keys used against the payment provider
type APICredentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	SiteID    string `json:"site_id,omitempty"`
}
