package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/kwabena-osei/vaultcore/internal/domain"
)

const transferEventColumns = `id, tx_ref, event_type, payload, status,
	attempts, last_attempt, created_at`

// OutboxRepository stores transfer lifecycle events for the notification
// dispatcher. Writes happen in the same transaction as the ledger mutation
// they describe; the dispatcher drains rows asynchronously.
type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, tx *sql.Tx, event *domain.TransferEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transfer_events (
			id, tx_ref, event_type, payload, status, attempts, last_attempt, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.TxRef, event.EventType, event.Payload,
		event.Status, event.Attempts, event.LastAttempt, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// GetPending returns the oldest undelivered events. Nothing is claimed;
// delivery is at-least-once and a second dispatcher instance may redeliver.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]domain.TransferEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transferEventColumns+` FROM transfer_events
		WHERE status = $1 ORDER BY created_at LIMIT $2`,
		domain.TransferEventStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("GetPending: %w", err)
	}
	defer rows.Close()

	var events []domain.TransferEvent
	for rows.Next() {
		e, err := scanTransferEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("GetPending: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetPending: rows: %w", err)
	}
	return events, nil
}

func (r *OutboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransferEventStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transfer_events SET status = $1, attempts = attempts + 1, last_attempt = now()
		WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

func scanTransferEvent(s scanner) (*domain.TransferEvent, error) {
	var e domain.TransferEvent
	err := s.Scan(
		&e.ID, &e.TxRef, &e.EventType, &e.Payload,
		&e.Status, &e.Attempts, &e.LastAttempt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
