package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dan9191/cuotificador/internal/models"
	"github.com/Dan9191/cuotificador/internal/rates"
)

const rateColumns = `id, bank_id, card_id, installments, rate, fixed_surcharge, source, updated_at`

// ListRates returns every configured rate
func (r *Repository) ListRates(ctx context.Context) ([]models.RateEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+rateColumns+` FROM rate_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rates: %w", err)
	}
	defer rows.Close()

	var list []models.RateEntry
	for rows.Next() {
		e, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list rates: %w", err)
	}
	return list, nil
}

// WithTx runs fn inside a database transaction. The transaction is rolled
// back when fn returns an error.
func (r *Repository) WithTx(ctx context.Context, fn func(tx rates.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&Tx{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Tx provides rate mutations inside a transaction
type Tx struct {
	q querier
}

// FindRate retrieves the rate stored under key
func (t *Tx) FindRate(ctx context.Context, key models.RateKey) (models.RateEntry, error) {
	row := t.q.QueryRowContext(ctx, `
		SELECT `+rateColumns+`
		FROM rate_entries
		WHERE bank_id = $1 AND card_id = $2 AND installments = $3`,
		key.BankID, key.CardID, key.Installments)
	e, err := scanRate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RateEntry{}, models.ErrNotFound
	}
	return e, err
}

// InsertRate inserts a new rate entry
func (t *Tx) InsertRate(ctx context.Context, entry *models.RateEntry) error {
	now := time.Now().UTC().Truncate(time.Second)
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO rate_entries (bank_id, card_id, installments, rate, fixed_surcharge, source, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		entry.BankID, entry.CardID, entry.Installments, entry.Rate, entry.FixedSurcharge, entry.Source, now).
		Scan(&entry.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("bank %d card %d installments %d: %w",
			entry.BankID, entry.CardID, entry.Installments, models.ErrDuplicateConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert rate: %w", err)
	}
	entry.UpdatedAt = &now
	return nil
}

// UpdateRate updates the rate, surcharge and source of an entry
func (t *Tx) UpdateRate(ctx context.Context, entry *models.RateEntry) error {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := t.q.ExecContext(ctx, `
		UPDATE rate_entries SET rate = $1, fixed_surcharge = $2, source = $3, updated_at = $4
		WHERE id = $5`,
		entry.Rate, entry.FixedSurcharge, entry.Source, now, entry.ID)
	if err != nil {
		return fmt.Errorf("failed to update rate: %w", err)
	}
	if err := expectAffected(res, fmt.Sprintf("rate %d", entry.ID)); err != nil {
		return err
	}
	entry.UpdatedAt = &now
	return nil
}

// DeleteRate deletes a rate entry by id
func (t *Tx) DeleteRate(ctx context.Context, id int64) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM rate_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rate: %w", err)
	}
	return expectAffected(res, fmt.Sprintf("rate %d", id))
}

// DeleteRates deletes every entry of a bank and card
func (t *Tx) DeleteRates(ctx context.Context, bankID, cardID int64) (int64, error) {
	res, err := t.q.ExecContext(ctx, `DELETE FROM rate_entries WHERE bank_id = $1 AND card_id = $2`, bankID, cardID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rates: %w", err)
	}
	return res.RowsAffected()
}

func scanRate(s scanner) (models.RateEntry, error) {
	var (
		e         models.RateEntry
		updatedAt sql.NullTime
	)
	err := s.Scan(&e.ID, &e.BankID, &e.CardID, &e.Installments, &e.Rate, &e.FixedSurcharge, &e.Source, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return e, err
	}
	if err != nil {
		return e, fmt.Errorf("failed to scan rate: %w", err)
	}
	if updatedAt.Valid {
		t := updatedAt.Time.UTC()
		e.UpdatedAt = &t
	}
	return e, nil
}
