package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidInstallmentCount = errors.New("invalid installment count")
	ErrInvalidRate             = errors.New("rate and surcharge must not be negative")
	ErrNotConfigured           = errors.New("no rate configured")
	ErrDuplicateConflict       = errors.New("rate entry already exists")
	ErrNotFound                = errors.New("not found")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrExternalProvider        = errors.New("external provider error")
	ErrPartialImportFailure    = errors.New("import completed with errors")
	ErrInvalidInput            = errors.New("invalid input")
)

// ProviderError wraps a failure reported by, or talking to, an external payment provider
type ProviderError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Err != nil && e.Code != "":
		return fmt.Sprintf("provider error %s: %s: %v", e.Code, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("provider error: %v", e.Err)
	default:
		return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is makes every ProviderError match ErrExternalProvider
func (e *ProviderError) Is(target error) bool { return target == ErrExternalProvider }
