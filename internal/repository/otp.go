package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kwabena-osei/vaultcore/internal/domain"
)

const otpColumns = `tx_ref, code_hash, expires_at, attempts_remaining, created_at`

type OtpRepository struct {
	db *sql.DB
}

func NewOtpRepository(db *sql.DB) *OtpRepository {
	return &OtpRepository{db: db}
}

func (r *OtpRepository) Create(ctx context.Context, tx *sql.Tx, c *domain.OtpChallenge) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO otp_challenges (tx_ref, code_hash, expires_at, attempts_remaining, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.TxRef, c.CodeHash, c.ExpiresAt, c.AttemptsRemaining, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *OtpRepository) GetByTxRef(ctx context.Context, txRef string) (*domain.OtpChallenge, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+otpColumns+` FROM otp_challenges WHERE tx_ref = $1`, txRef,
	)
	c, err := scanOtpChallenge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByTxRef: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByTxRef: %w", err)
	}
	return c, nil
}

// GetForUpdate locks the challenge row so concurrent verify attempts are
// serialized against the attempt counter.
func (r *OtpRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, txRef string) (*domain.OtpChallenge, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+otpColumns+` FROM otp_challenges WHERE tx_ref = $1 FOR UPDATE`, txRef,
	)
	c, err := scanOtpChallenge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return c, nil
}

func (r *OtpRepository) DecrementAttempts(ctx context.Context, tx *sql.Tx, txRef string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE otp_challenges SET attempts_remaining = attempts_remaining - 1
		WHERE tx_ref = $1 AND attempts_remaining > 0`,
		txRef,
	)
	if err != nil {
		return fmt.Errorf("DecrementAttempts: %w", err)
	}
	return nil
}

// Replace swaps in a fresh code and expiry, restoring the attempt budget.
func (r *OtpRepository) Replace(ctx context.Context, tx *sql.Tx, c *domain.OtpChallenge) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE otp_challenges SET code_hash = $1, expires_at = $2, attempts_remaining = $3
		WHERE tx_ref = $4`,
		c.CodeHash, c.ExpiresAt, c.AttemptsRemaining, c.TxRef,
	)
	if err != nil {
		return fmt.Errorf("Replace: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Replace: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Replace: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *OtpRepository) Delete(ctx context.Context, tx *sql.Tx, txRef string) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM otp_challenges WHERE tx_ref = $1`, txRef,
	)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

func scanOtpChallenge(s scanner) (*domain.OtpChallenge, error) {
	var c domain.OtpChallenge
	err := s.Scan(&c.TxRef, &c.CodeHash, &c.ExpiresAt, &c.AttemptsRemaining, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
