package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kwabena-osei/vaultcore/internal/domain"
	"github.com/kwabena-osei/vaultcore/internal/logging"
)

// MarkStepComplete sets one gate in the international compliance chain.
// Steps carry no ordering between them; the transfer settles the moment the
// last required gate is set, inside the same transaction. A transfer past
// its compliance window fails instead of settling.
func (s *Service) MarkStepComplete(ctx context.Context, txRef string, step domain.ComplianceStep, actor string) (*domain.Transfer, error) {
	log := logging.FromContext(ctx)

	if !step.IsValid() {
		return nil, fmt.Errorf("MarkStepComplete: %q: %w", step, domain.ErrUnknownStep)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("MarkStepComplete: begin tx: %w", err)
	}
	defer tx.Rollback()

	t, err := s.transfers.GetByTxRefForUpdate(ctx, tx, txRef)
	if err != nil {
		return nil, fmt.Errorf("MarkStepComplete: %w", err)
	}
	if t.Region != domain.RegionInternational {
		return nil, fmt.Errorf("MarkStepComplete: %w", domain.ErrInvalidState)
	}
	if t.Status != domain.TransferStatusPending {
		return nil, fmt.Errorf("MarkStepComplete: %w", domain.ErrInvalidState)
	}

	now := time.Now().UTC()
	if now.After(t.CreatedAt.Add(s.config.ComplianceWindow())) {
		if _, err := s.failPending(ctx, tx, t, domain.ReasonComplianceTimeout, now); err != nil {
			return nil, fmt.Errorf("MarkStepComplete: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("MarkStepComplete: commit: %w", err)
		}
		log.Warn("compliance window elapsed", "tx_ref", txRef)
		return nil, fmt.Errorf("MarkStepComplete: %w", domain.ErrComplianceTimeout)
	}

	if err := s.compliance.MarkComplete(ctx, tx, txRef, step, actor); err != nil {
		return nil, fmt.Errorf("MarkStepComplete: %w", err)
	}

	complete, err := s.compliance.AllComplete(ctx, tx, txRef)
	if err != nil {
		return nil, fmt.Errorf("MarkStepComplete: %w", err)
	}

	if !complete {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("MarkStepComplete: commit: %w", err)
		}
		log.Info("compliance step recorded", "tx_ref", txRef, "step", step, "actor", actor)
		return t, nil
	}

	finalized, err := s.finalizeLocked(ctx, tx, t, now)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			if commitErr := tx.Commit(); commitErr != nil {
				return nil, fmt.Errorf("MarkStepComplete: commit: %w", commitErr)
			}
		}
		return nil, fmt.Errorf("MarkStepComplete: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("MarkStepComplete: commit: %w", err)
	}

	log.Info("compliance chain complete", "tx_ref", txRef, "final_step", step)
	return finalized, nil
}
