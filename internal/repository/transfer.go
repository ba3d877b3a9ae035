package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kwabena-osei/vaultcore/internal/domain"
)

const transferColumns = `tx_ref, account_id, direction, amount, fee_amount,
	fee_mode, currency, region, status, holder_name, institution,
	account_number, routing_code, branch, jurisdiction, memo, failure_reason,
	idempotency_key, created_at, completed_at`

type TransferRepository struct {
	db *sql.DB
}

func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) Create(ctx context.Context, tx *sql.Tx, t *domain.Transfer) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transfers (
			tx_ref, account_id, direction, amount, fee_amount, fee_mode,
			currency, region, status, holder_name, institution, account_number,
			routing_code, branch, jurisdiction, memo, failure_reason,
			idempotency_key, created_at, completed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)`,
		t.TxRef, t.AccountID, t.Direction, t.Amount, t.FeeAmount, t.FeeMode,
		t.Currency, t.Region, t.Status,
		t.Counterparty.HolderName, t.Counterparty.Institution, t.Counterparty.AccountNumber,
		t.Counterparty.RoutingCode, t.Counterparty.Branch, t.Counterparty.Jurisdiction,
		t.Memo, t.FailureReason, t.IdempotencyKey, t.CreatedAt, t.CompletedAt,
	)
	if err != nil {
		// Two in-flight initiations with the same key both pass the
		// service pre-check; the unique index decides the loser here.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "transfers_idempotency_key_key" {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateRequest)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// CreateClassification writes the counterparty-perspective entry. It must be
// called inside the same transaction as Create; the tx_ref foreign key keeps
// the pair from ever being orphaned.
func (r *TransferRepository) CreateClassification(ctx context.Context, tx *sql.Tx, c *domain.TransferClassification) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transfer_classifications (tx_ref, counterparty_entry, created_at)
		VALUES ($1, $2, $3)`,
		c.TxRef, c.CounterpartyEntry, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("CreateClassification: %w", err)
	}
	return nil
}

func (r *TransferRepository) GetByTxRef(ctx context.Context, txRef string) (*domain.Transfer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE tx_ref = $1`, txRef,
	)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByTxRef: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByTxRef: %w", err)
	}
	return t, nil
}

// GetByTxRefForUpdate locks the transfer row. Finalize and cancel both take
// this lock first, so only one of a concurrent pair can win; the loser sees a
// terminal status on re-read.
func (r *TransferRepository) GetByTxRefForUpdate(ctx context.Context, tx *sql.Tx, txRef string) (*domain.Transfer, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE tx_ref = $1 FOR UPDATE`, txRef,
	)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByTxRefForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByTxRefForUpdate: %w", err)
	}
	return t, nil
}

func (r *TransferRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transfer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE idempotency_key = $1`, key,
	)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByIdempotencyKey: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByIdempotencyKey: %w", err)
	}
	return t, nil
}

func (r *TransferRepository) Exists(ctx context.Context, txRef string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM transfers WHERE tx_ref = $1)`, txRef,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("Exists: %w", err)
	}
	return exists, nil
}

// UpdateStatus transitions a pending transfer to a terminal status. The
// `status = 'pending'` guard makes the transition race-safe: zero rows
// affected means someone else finalized first.
func (r *TransferRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, txRef string, status domain.TransferStatus, failureReason *string, completedAt *time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE transfers SET status = $1, failure_reason = $2, completed_at = $3
		WHERE tx_ref = $4 AND status = 'pending'`,
		status, failureReason, completedAt, txRef,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrAlreadyFinalized)
	}
	return nil
}

// ListFilter narrows the read-only query surface. Zero values mean "any",
// except AccountIDs, which the caller must always scope to the requesting
// customer's accounts.
type ListFilter struct {
	AccountIDs []uuid.UUID
	Status     domain.TransferStatus
	Region     domain.TransferRegion
	From       *time.Time
	To         *time.Time
	Search     string
	Limit      int
	Offset     int
}

func (r *TransferRepository) List(ctx context.Context, f ListFilter) ([]domain.Transfer, int, error) {
	where := `WHERE 1=1`
	args := []any{}
	n := 0

	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if len(f.AccountIDs) > 0 {
		where += ` AND account_id = ANY(` + arg(pq.Array(f.AccountIDs)) + `)`
	}
	if f.Status != "" {
		where += ` AND status = ` + arg(f.Status)
	}
	if f.Region != "" {
		where += ` AND region = ` + arg(f.Region)
	}
	if f.From != nil {
		where += ` AND created_at >= ` + arg(*f.From)
	}
	if f.To != nil {
		where += ` AND created_at < ` + arg(*f.To)
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		where += ` AND (tx_ref ILIKE ` + p + ` OR memo ILIKE ` + p + ` OR holder_name ILIKE ` + p + `)`
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transfers `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("List: count: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	// tx_ref breaks created_at ties so offset paging stays stable.
	query := `SELECT ` + transferColumns + ` FROM transfers ` + where +
		` ORDER BY created_at DESC, tx_ref LIMIT ` + arg(limit) + ` OFFSET ` + arg(f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var transfers []domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("List: scan: %w", err)
		}
		transfers = append(transfers, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("List: rows: %w", err)
	}
	return transfers, total, nil
}

// ListStalePending returns pending transfers of one region created before the
// cutoff, for the expiry sweep.
func (r *TransferRepository) ListStalePending(ctx context.Context, region domain.TransferRegion, before time.Time, limit int) ([]domain.Transfer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers
		WHERE status = 'pending' AND region = $1 AND created_at < $2
		ORDER BY created_at LIMIT $3`,
		region, before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListStalePending: %w", err)
	}
	defer rows.Close()

	var transfers []domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("ListStalePending: scan: %w", err)
		}
		transfers = append(transfers, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListStalePending: rows: %w", err)
	}
	return transfers, nil
}

func scanTransfer(s scanner) (*domain.Transfer, error) {
	var t domain.Transfer
	err := s.Scan(
		&t.TxRef, &t.AccountID, &t.Direction, &t.Amount, &t.FeeAmount, &t.FeeMode,
		&t.Currency, &t.Region, &t.Status,
		&t.Counterparty.HolderName, &t.Counterparty.Institution, &t.Counterparty.AccountNumber,
		&t.Counterparty.RoutingCode, &t.Counterparty.Branch, &t.Counterparty.Jurisdiction,
		&t.Memo, &t.FailureReason, &t.IdempotencyKey, &t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
