package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kwabena-osei/vaultcore/internal/domain"
)

// Sweeper fails stale pending transfers in the background: local transfers
// whose OTP window passed and international transfers past the compliance
// window. The lazy checks in verify/finalize remain the primary guard; the
// sweep keeps abandoned transfers from pinning reservations forever.
type Sweeper struct {
	svc      *Service
	logger   *slog.Logger
	interval time.Duration
}

func NewSweeper(svc *Service, logger *slog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{svc: svc, logger: logger, interval: interval}
}

func (sw *Sweeper) Start(ctx context.Context) {
	sw.logger.Info("expiry sweeper started", "interval", sw.interval)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			sw.sweep(ctx)
		}
	}
}

// SweepOnce runs a single sweep pass outside the ticker loop.
func (sw *Sweeper) SweepOnce(ctx context.Context) {
	sw.sweep(ctx)
}

func (sw *Sweeper) sweep(ctx context.Context) {
	now := time.Now().UTC()

	otpCutoff := now.Add(-sw.svc.config.OTPTTL())
	sw.sweepRegion(ctx, domain.RegionLocal, otpCutoff)

	complianceCutoff := now.Add(-sw.svc.config.ComplianceWindow())
	sw.sweepRegion(ctx, domain.RegionInternational, complianceCutoff)
}

func (sw *Sweeper) sweepRegion(ctx context.Context, region domain.TransferRegion, cutoff time.Time) {
	stale, err := sw.svc.transfers.ListStalePending(ctx, region, cutoff, 50)
	if err != nil {
		sw.logger.Error("failed to list stale pending transfers", "region", region, "error", err)
		return
	}

	for _, t := range stale {
		if err := sw.svc.expirePending(ctx, t.TxRef); err != nil {
			// Losing to a concurrent finalize or cancel is expected.
			if errors.Is(err, domain.ErrAlreadyFinalized) || errors.Is(err, domain.ErrInvalidState) {
				continue
			}
			sw.logger.Error("failed to expire transfer", "tx_ref", t.TxRef, "error", err)
			continue
		}
		sw.logger.Info("expired stale pending transfer", "tx_ref", t.TxRef, "region", region)
	}
}

// expirePending fails one stale pending transfer, re-checking everything
// under the row lock so the sweep can never race a finalize into a double
// transition.
func (s *Service) expirePending(ctx context.Context, txRef string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("expirePending: begin tx: %w", err)
	}
	defer tx.Rollback()

	t, err := s.transfers.GetByTxRefForUpdate(ctx, tx, txRef)
	if err != nil {
		return fmt.Errorf("expirePending: %w", err)
	}
	if t.Status != domain.TransferStatusPending {
		return fmt.Errorf("expirePending: %w", domain.ErrAlreadyFinalized)
	}

	now := time.Now().UTC()
	var reason string

	switch t.Region {
	case domain.RegionLocal:
		challenge, err := s.otps.GetForUpdate(ctx, tx, txRef)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("expirePending: %w", err)
		}
		if challenge != nil && !challenge.Expired(now) {
			// Re-issued with a fresh window since the sweep listed it.
			return fmt.Errorf("expirePending: %w", domain.ErrInvalidState)
		}
		if err := deleteChallengeIfAny(ctx, tx, s.otps, txRef); err != nil {
			return fmt.Errorf("expirePending: %w", err)
		}
		reason = domain.ReasonChallengeExpired
	case domain.RegionInternational:
		if !now.After(t.CreatedAt.Add(s.config.ComplianceWindow())) {
			return fmt.Errorf("expirePending: %w", domain.ErrInvalidState)
		}
		reason = domain.ReasonComplianceTimeout
	}

	if _, err := s.failPending(ctx, tx, t, reason, now); err != nil {
		return fmt.Errorf("expirePending: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("expirePending: commit: %w", err)
	}
	return nil
}

func deleteChallengeIfAny(ctx context.Context, tx *sql.Tx, otps otpRepo, txRef string) error {
	if err := otps.Delete(ctx, tx, txRef); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}
