package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Dan9191/cuotificador/internal/models"
	"github.com/Dan9191/cuotificador/internal/permissions"
)

// ListBanks returns every bank
func (s *Service) ListBanks(ctx context.Context) ([]models.Bank, error) {
	return s.catalog.ListBanks(ctx)
}

// GetBank returns a bank by id
func (s *Service) GetBank(ctx context.Context, id int64) (*models.Bank, error) {
	return s.catalog.FindBankByID(ctx, id)
}

// CreateBank registers a bank
func (s *Service) CreateBank(ctx context.Context, bank *models.Bank) error {
	if err := s.gate.Check(ctx, permissions.ManageBanks); err != nil {
		return err
	}
	if err := validateBank(bank); err != nil {
		return err
	}
	if err := s.catalog.CreateBank(ctx, bank); err != nil {
		return err
	}
	s.log.Infof("Bank created: %s (%d)", bank.Code, bank.ID)
	return nil
}

// UpdateBank changes a bank. Nil credentials keep the stored ones.
func (s *Service) UpdateBank(ctx context.Context, bank *models.Bank) error {
	if err := s.gate.Check(ctx, permissions.ManageBanks); err != nil {
		return err
	}
	if err := validateBank(bank); err != nil {
		return err
	}
	if err := s.catalog.UpdateBank(ctx, bank); err != nil {
		return err
	}
	s.log.Infof("Bank updated: %s (%d)", bank.Code, bank.ID)
	return nil
}

func validateBank(bank *models.Bank) error {
	bank.Name = strings.TrimSpace(bank.Name)
	bank.Code = strings.TrimSpace(bank.Code)
	if bank.Name == "" || bank.Code == "" {
		return fmt.Errorf("%w: bank name and code are required", models.ErrInvalidInput)
	}
	if bank.Code == "*" {
		return fmt.Errorf("%w: bank code %q is reserved", models.ErrInvalidInput, bank.Code)
	}
	if !bank.APIEnabled {
		return nil
	}
	switch bank.Provider {
	case models.ProviderPayWay, models.ProviderSOAPFeed:
		return nil
	default:
		return fmt.Errorf("%w: unknown provider %q", models.ErrInvalidInput, bank.Provider)
	}
}

// ListCards returns every card
func (s *Service) ListCards(ctx context.Context) ([]models.Card, error) {
	return s.catalog.ListCards(ctx)
}

// GetCard returns a card by id
func (s *Service) GetCard(ctx context.Context, id int64) (*models.Card, error) {
	return s.catalog.FindCardByID(ctx, id)
}

// CreateCard registers a card
func (s *Service) CreateCard(ctx context.Context, card *models.Card) error {
	if err := s.gate.Check(ctx, permissions.ManageCards); err != nil {
		return err
	}
	if err := validateCard(card); err != nil {
		return err
	}
	if err := s.catalog.CreateCard(ctx, card); err != nil {
		return err
	}
	s.log.Infof("Card created: %s (%d)", card.Code, card.ID)
	return nil
}

// UpdateCard changes a card
func (s *Service) UpdateCard(ctx context.Context, card *models.Card) error {
	if err := s.gate.Check(ctx, permissions.ManageCards); err != nil {
		return err
	}
	if err := validateCard(card); err != nil {
		return err
	}
	if err := s.catalog.UpdateCard(ctx, card); err != nil {
		return err
	}
	s.log.Infof("Card updated: %s (%d)", card.Code, card.ID)
	return nil
}

func validateCard(card *models.Card) error {
	card.Name = strings.TrimSpace(card.Name)
	card.Code = strings.TrimSpace(card.Code)
	if card.Name == "" || card.Code == "" {
		return fmt.Errorf("%w: card name and code are required", models.ErrInvalidInput)
	}
	if !card.Type.Valid() {
		return fmt.Errorf("%w: card type must be %q or %q", models.ErrInvalidInput, models.CardTypeCredit, models.CardTypeDebit)
	}
	return nil
}
