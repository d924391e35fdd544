package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Dan9191/cuotificador/internal/models"
	"github.com/Dan9191/cuotificador/internal/utils"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository provides database operations
type Repository struct {
	db  *sql.DB
	key []byte // Encrypts bank API credentials
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB, key []byte) *Repository {
	return &Repository{db: db, key: key}
}

// ListBanks returns every bank ordered by name
func (r *Repository) ListBanks(ctx context.Context) ([]models.Bank, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, code, api_enabled, provider, api_credentials
		FROM banks
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list banks: %w", err)
	}
	defer rows.Close()

	var banks []models.Bank
	for rows.Next() {
		bank, err := r.scanBank(rows)
		if err != nil {
			return nil, err
		}
		banks = append(banks, *bank)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list banks: %w", err)
	}
	return banks, nil
}

// FindBankByID retrieves a bank by id
func (r *Repository) FindBankByID(ctx context.Context, id int64) (*models.Bank, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, code, api_enabled, provider, api_credentials
		FROM banks
		WHERE id = $1`, id)
	bank, err := r.scanBank(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bank %d: %w", id, models.ErrNotFound)
	}
	return bank, err
}

// FindBankByCode retrieves a bank by code, ignoring case
func (r *Repository) FindBankByCode(ctx context.Context, code string) (*models.Bank, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, code, api_enabled, provider, api_credentials
		FROM banks
		WHERE lower(code) = lower($1)`, code)
	bank, err := r.scanBank(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bank %q: %w", code, models.ErrNotFound)
	}
	return bank, err
}

// CreateBank creates a new bank in the database
func (r *Repository) CreateBank(ctx context.Context, bank *models.Bank) error {
	creds, err := r.sealCredentials(bank.APICredentials)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO banks (name, code, api_enabled, provider, api_credentials)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, bank.Name, bank.Code, bank.APIEnabled, bank.Provider, creds).
		Scan(&bank.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("bank code %q: %w", bank.Code, models.ErrDuplicateConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create bank: %w", err)
	}
	return nil
}

// UpdateBank updates a bank. Nil credentials keep the stored ones.
func (r *Repository) UpdateBank(ctx context.Context, bank *models.Bank) error {
	var (
		res sql.Result
		err error
	)
	if bank.APICredentials == nil {
		res, err = r.db.ExecContext(ctx, `
			UPDATE banks SET name = $1, code = $2, api_enabled = $3, provider = $4
			WHERE id = $5`, bank.Name, bank.Code, bank.APIEnabled, bank.Provider, bank.ID)
	} else {
		creds, sealErr := r.sealCredentials(bank.APICredentials)
		if sealErr != nil {
			return sealErr
		}
		res, err = r.db.ExecContext(ctx, `
			UPDATE banks SET name = $1, code = $2, api_enabled = $3, provider = $4, api_credentials = $5
			WHERE id = $6`, bank.Name, bank.Code, bank.APIEnabled, bank.Provider, creds, bank.ID)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("bank code %q: %w", bank.Code, models.ErrDuplicateConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to update bank: %w", err)
	}
	return expectAffected(res, fmt.Sprintf("bank %d", bank.ID))
}

// ListCards returns every card ordered by name
func (r *Repository) ListCards(ctx context.Context) ([]models.Card, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, code, type
		FROM cards
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var cards []models.Card
	for rows.Next() {
		var c models.Card
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.Type); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}

// FindCardByID retrieves a card by id
func (r *Repository) FindCardByID(ctx context.Context, id int64) (*models.Card, error) {
	c := &models.Card{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, code, type
		FROM cards
		WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Code, &c.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("card %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card: %w", err)
	}
	return c, nil
}

// FindCardByCode retrieves a card by code, ignoring case
func (r *Repository) FindCardByCode(ctx context.Context, code string) (*models.Card, error) {
	c := &models.Card{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, code, type
		FROM cards
		WHERE lower(code) = lower($1)`, code).
		Scan(&c.ID, &c.Name, &c.Code, &c.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("card %q: %w", code, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card: %w", err)
	}
	return c, nil
}

// CreateCard creates a new card in the database
func (r *Repository) CreateCard(ctx context.Context, card *models.Card) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO cards (name, code, type)
		VALUES ($1, $2, $3)
		RETURNING id`, card.Name, card.Code, card.Type).
		Scan(&card.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("card code %q: %w", card.Code, models.ErrDuplicateConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}
	return nil
}

// UpdateCard updates a card
func (r *Repository) UpdateCard(ctx context.Context, card *models.Card) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE cards SET name = $1, code = $2, type = $3
		WHERE id = $4`, card.Name, card.Code, card.Type, card.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("card code %q: %w", card.Code, models.ErrDuplicateConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}
	return expectAffected(res, fmt.Sprintf("card %d", card.ID))
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanBank(s scanner) (*models.Bank, error) {
	bank := &models.Bank{}
	var creds string
	err := s.Scan(&bank.ID, &bank.Name, &bank.Code, &bank.APIEnabled, &bank.Provider, &creds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan bank: %w", err)
	}
	if creds != "" {
		bank.APICredentials, err = r.openCredentials(creds)
		if err != nil {
			return nil, fmt.Errorf("bank %d: %w", bank.ID, err)
		}
	}
	return bank, nil
}

func (r *Repository) sealCredentials(creds *models.APICredentials) (string, error) {
	if creds == nil {
		return "", nil
	}
	raw, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("failed to encode credentials: %w", err)
	}
	sealed, err := utils.Encrypt(string(raw), r.key)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	return sealed, nil
}

func (r *Repository) openCredentials(sealed string) (*models.APICredentials, error) {
	raw, err := utils.Decrypt(sealed, r.key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	creds := &models.APICredentials{}
	if err := json.Unmarshal([]byte(raw), creds); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return creds, nil
}

func expectAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return nil
}
