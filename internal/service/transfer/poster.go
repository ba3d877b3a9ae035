package transfer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kwabena-osei/vaultcore/internal/domain"
	"github.com/kwabena-osei/vaultcore/internal/logging"
)

// Finalize is the ledger poster: the only code that settles a transfer into
// the balance. The transfer row lock arbitrates races with Cancel and with a
// second Finalize; the account row lock covers the re-check and the mutation.
// A retry against a settled transfer returns ErrAlreadyFinalized and changes
// nothing.
func (s *Service) Finalize(ctx context.Context, txRef string) (*domain.Transfer, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Finalize: begin tx: %w", err)
	}
	defer tx.Rollback()

	t, err := s.transfers.GetByTxRefForUpdate(ctx, tx, txRef)
	if err != nil {
		return nil, fmt.Errorf("Finalize: %w", err)
	}
	if t.Status != domain.TransferStatusPending {
		return t, fmt.Errorf("Finalize: %w", domain.ErrAlreadyFinalized)
	}

	now := time.Now().UTC()

	// A stale pending transfer must fail, never settle.
	switch t.Region {
	case domain.RegionLocal:
		ch, err := s.otps.GetForUpdate(ctx, tx, txRef)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("Finalize: %w", err)
		}
		if ch != nil {
			if !ch.Expired(now) {
				// A live challenge means the OTP path has not passed yet.
				return nil, fmt.Errorf("Finalize: %w", domain.ErrInvalidState)
			}
			failed, err := s.failPending(ctx, tx, t, domain.ReasonChallengeExpired, now)
			if err != nil {
				return nil, fmt.Errorf("Finalize: %w", err)
			}
			if err := s.otps.Delete(ctx, tx, txRef); err != nil {
				return nil, fmt.Errorf("Finalize: %w", err)
			}
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("Finalize: commit: %w", err)
			}
			return failed, fmt.Errorf("Finalize: %w", domain.ErrChallengeExpired)
		}
	case domain.RegionInternational:
		if now.After(t.CreatedAt.Add(s.config.ComplianceWindow())) {
			failed, err := s.failPending(ctx, tx, t, domain.ReasonComplianceTimeout, now)
			if err != nil {
				return nil, fmt.Errorf("Finalize: %w", err)
			}
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("Finalize: commit: %w", err)
			}
			return failed, fmt.Errorf("Finalize: %w", domain.ErrComplianceTimeout)
		}
		complete, err := s.compliance.AllComplete(ctx, tx, txRef)
		if err != nil {
			return nil, fmt.Errorf("Finalize: %w", err)
		}
		if !complete {
			return nil, fmt.Errorf("Finalize: %w", domain.ErrInvalidState)
		}
	}

	finalized, err := s.finalizeLocked(ctx, tx, t, now)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			if commitErr := tx.Commit(); commitErr != nil {
				return nil, fmt.Errorf("Finalize: commit: %w", commitErr)
			}
		}
		return nil, fmt.Errorf("Finalize: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Finalize: commit: %w", err)
	}
	return finalized, nil
}

// finalizeLocked settles a transfer whose row lock the caller already holds.
// It takes the account lock, re-verifies cover, mutates the balance, writes
// the terminal status, and queues the notification, all in the caller's
// transaction. On a shortfall it records the failure instead and reports
// ErrInsufficientFunds; the caller must still commit.
func (s *Service) finalizeLocked(ctx context.Context, tx *sql.Tx, t *domain.Transfer, now time.Time) (*domain.Transfer, error) {
	log := logging.FromContext(ctx)

	acct, err := s.accounts.GetForUpdate(ctx, tx, t.AccountID)
	if err != nil {
		return nil, fmt.Errorf("finalizeLocked: %w", err)
	}

	switch t.Direction {
	case domain.DirectionDebit:
		total := t.DebitTotal()
		if acct.Balance < total {
			// The balance must cover the full debit even if the
			// reservation was somehow lost.
			reason := domain.ReasonInsufficientFundsAtSettlement
			if err := s.transfers.UpdateStatus(ctx, tx, t.TxRef, domain.TransferStatusFailed, &reason, &now); err != nil {
				return nil, fmt.Errorf("finalizeLocked: %w", err)
			}
			if err := s.accounts.UpdateBalances(ctx, tx, acct.ID, acct.Balance, acct.Reserved-total, acct.Version+1); err != nil {
				return nil, fmt.Errorf("finalizeLocked: release: %w", err)
			}
			if err := s.emitEvent(ctx, tx, t, domain.TransferEventFailed, reason, now); err != nil {
				return nil, fmt.Errorf("finalizeLocked: %w", err)
			}
			return nil, fmt.Errorf("finalizeLocked: %w", domain.ErrInsufficientFunds)
		}
		if err := s.accounts.UpdateBalances(ctx, tx, acct.ID, acct.Balance-total, acct.Reserved-total, acct.Version+1); err != nil {
			return nil, fmt.Errorf("finalizeLocked: debit: %w", err)
		}
	case domain.DirectionCredit:
		if err := s.accounts.UpdateBalances(ctx, tx, acct.ID, acct.Balance+t.CreditTotal(), acct.Reserved, acct.Version+1); err != nil {
			return nil, fmt.Errorf("finalizeLocked: credit: %w", err)
		}
	}

	if err := s.transfers.UpdateStatus(ctx, tx, t.TxRef, domain.TransferStatusSuccess, nil, &now); err != nil {
		return nil, fmt.Errorf("finalizeLocked: %w", err)
	}
	if err := s.emitEvent(ctx, tx, t, domain.TransferEventFinalized, "", now); err != nil {
		return nil, fmt.Errorf("finalizeLocked: %w", err)
	}

	log.Info("transfer finalized",
		"tx_ref", t.TxRef,
		"account_id", t.AccountID,
		"direction", t.Direction,
		"amount", t.Amount,
	)

	settled := *t
	settled.Status = domain.TransferStatusSuccess
	settled.CompletedAt = &now
	return &settled, nil
}

// failPending transitions a locked pending transfer to failed and releases
// its reservation. Caller commits.
func (s *Service) failPending(ctx context.Context, tx *sql.Tx, t *domain.Transfer, reason string, now time.Time) (*domain.Transfer, error) {
	if err := s.transfers.UpdateStatus(ctx, tx, t.TxRef, domain.TransferStatusFailed, &reason, &now); err != nil {
		return nil, fmt.Errorf("failPending: %w", err)
	}

	if t.Direction == domain.DirectionDebit {
		acct, err := s.accounts.GetForUpdate(ctx, tx, t.AccountID)
		if err != nil {
			return nil, fmt.Errorf("failPending: %w", err)
		}
		if err := s.accounts.UpdateBalances(ctx, tx, acct.ID, acct.Balance, acct.Reserved-t.DebitTotal(), acct.Version+1); err != nil {
			return nil, fmt.Errorf("failPending: release: %w", err)
		}
	}

	if err := s.emitEvent(ctx, tx, t, domain.TransferEventFailed, reason, now); err != nil {
		return nil, fmt.Errorf("failPending: %w", err)
	}

	failed := *t
	failed.Status = domain.TransferStatusFailed
	failed.FailureReason = &reason
	failed.CompletedAt = &now
	return &failed, nil
}

// Cancel aborts a pending transfer before finalization, releasing its
// reservation. It loses to any concurrent finalize that took the row lock
// first, surfacing ErrInvalidState.
func (s *Service) Cancel(ctx context.Context, txRef string) (*domain.Transfer, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Cancel: begin tx: %w", err)
	}
	defer tx.Rollback()

	t, err := s.transfers.GetByTxRefForUpdate(ctx, tx, txRef)
	if err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}
	if t.Status != domain.TransferStatusPending {
		return nil, fmt.Errorf("Cancel: %w", domain.ErrInvalidState)
	}

	now := time.Now().UTC()
	if err := s.transfers.UpdateStatus(ctx, tx, txRef, domain.TransferStatusCancelled, nil, &now); err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}

	if t.Direction == domain.DirectionDebit {
		acct, err := s.accounts.GetForUpdate(ctx, tx, t.AccountID)
		if err != nil {
			return nil, fmt.Errorf("Cancel: %w", err)
		}
		if err := s.accounts.UpdateBalances(ctx, tx, acct.ID, acct.Balance, acct.Reserved-t.DebitTotal(), acct.Version+1); err != nil {
			return nil, fmt.Errorf("Cancel: release: %w", err)
		}
	}

	if t.Region == domain.RegionLocal {
		if err := s.otps.Delete(ctx, tx, txRef); err != nil {
			return nil, fmt.Errorf("Cancel: %w", err)
		}
	}

	if err := s.emitEvent(ctx, tx, t, domain.TransferEventCancelled, "", now); err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Cancel: commit: %w", err)
	}

	cancelled := *t
	cancelled.Status = domain.TransferStatusCancelled
	cancelled.CompletedAt = &now
	return &cancelled, nil
}

type eventPayload struct {
	TxRef    string `json:"tx_ref"`
	Event    string `json:"event"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Region   string `json:"region"`
	Reason   string `json:"reason,omitempty"`
	OtpCode  string `json:"otp_code,omitempty"`
}

func (s *Service) emitEvent(ctx context.Context, tx *sql.Tx, t *domain.Transfer, eventType domain.TransferEventType, reason string, now time.Time) error {
	return s.emitEventWithCode(ctx, tx, t, eventType, reason, "", now)
}

func (s *Service) emitEventWithCode(ctx context.Context, tx *sql.Tx, t *domain.Transfer, eventType domain.TransferEventType, reason, otpCode string, now time.Time) error {
	payload, err := json.Marshal(eventPayload{
		TxRef:    t.TxRef,
		Event:    string(eventType),
		Amount:   t.Amount,
		Currency: string(t.Currency),
		Region:   string(t.Region),
		Reason:   reason,
		OtpCode:  otpCode,
	})
	if err != nil {
		return fmt.Errorf("emitEvent: marshal: %w", err)
	}

	event := &domain.TransferEvent{
		ID:        uuid.New(),
		TxRef:     t.TxRef,
		EventType: eventType,
		Payload:   payload,
		Status:    domain.TransferEventStatusPending,
		CreatedAt: now,
	}
	if err := s.outbox.Create(ctx, tx, event); err != nil {
		return fmt.Errorf("emitEvent: %w", err)
	}
	return nil
}
