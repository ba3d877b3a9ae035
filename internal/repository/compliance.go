package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kwabena-osei/vaultcore/internal/domain"
)

type ComplianceRepository struct {
	db *sql.DB
}

func NewComplianceRepository(db *sql.DB) *ComplianceRepository {
	return &ComplianceRepository{db: db}
}

// SeedSteps creates one unset row per required step for a new international
// transfer, inside the initiation transaction.
func (r *ComplianceRepository) SeedSteps(ctx context.Context, tx *sql.Tx, txRef string) error {
	for _, step := range domain.RequiredComplianceSteps() {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO compliance_steps (tx_ref, step, completed) VALUES ($1, $2, false)`,
			txRef, step,
		)
		if err != nil {
			return fmt.Errorf("SeedSteps: %s: %w", step, err)
		}
	}
	return nil
}

func (r *ComplianceRepository) MarkComplete(ctx context.Context, tx *sql.Tx, txRef string, step domain.ComplianceStep, actor string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE compliance_steps SET completed = true, actor = $1, completed_at = now()
		WHERE tx_ref = $2 AND step = $3`,
		actor, txRef, step,
	)
	if err != nil {
		return fmt.Errorf("MarkComplete: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkComplete: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkComplete: %w", domain.ErrNotFound)
	}
	return nil
}

// AllComplete reports whether every seeded step for the transfer is set.
func (r *ComplianceRepository) AllComplete(ctx context.Context, tx *sql.Tx, txRef string) (bool, error) {
	var remaining int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM compliance_steps WHERE tx_ref = $1 AND NOT completed`,
		txRef,
	).Scan(&remaining)
	if err != nil {
		return false, fmt.Errorf("AllComplete: %w", err)
	}
	return remaining == 0, nil
}

func (r *ComplianceRepository) GetByTxRef(ctx context.Context, txRef string) ([]domain.ComplianceStepResult, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tx_ref, step, completed, actor, completed_at
		FROM compliance_steps WHERE tx_ref = $1 ORDER BY step`,
		txRef,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByTxRef: %w", err)
	}
	defer rows.Close()

	var results []domain.ComplianceStepResult
	for rows.Next() {
		var sr domain.ComplianceStepResult
		if err := rows.Scan(&sr.TxRef, &sr.Step, &sr.Completed, &sr.Actor, &sr.CompletedAt); err != nil {
			return nil, fmt.Errorf("GetByTxRef: scan: %w", err)
		}
		results = append(results, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByTxRef: rows: %w", err)
	}
	return results, nil
}
