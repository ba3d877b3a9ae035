package transfer

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/kwabena-osei/vaultcore/internal/domain"
	"github.com/kwabena-osei/vaultcore/internal/logging"
)

// issueOTP creates the challenge for a freshly initiated local transfer and
// queues the otp_issued notification carrying the plaintext code. Runs inside
// the initiation transaction; only the hash is persisted on the challenge.
func (s *Service) issueOTP(ctx context.Context, tx *sql.Tx, t *domain.Transfer) error {
	code, err := generateOTPCode()
	if err != nil {
		return fmt.Errorf("issueOTP: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("issueOTP: hash: %w", err)
	}

	now := time.Now().UTC()
	challenge := &domain.OtpChallenge{
		TxRef:             t.TxRef,
		CodeHash:          string(hash),
		ExpiresAt:         now.Add(s.config.OTPTTL()),
		AttemptsRemaining: s.config.OTPMaxAttempts,
		CreatedAt:         now,
	}
	if err := s.otps.Create(ctx, tx, challenge); err != nil {
		return fmt.Errorf("issueOTP: %w", err)
	}

	if err := s.emitEventWithCode(ctx, tx, t, domain.TransferEventOtpIssued, "", code, now); err != nil {
		return fmt.Errorf("issueOTP: %w", err)
	}
	return nil
}

// VerifyOTP advances the domestic authorization path. A correct code before
// expiry finalizes the transfer exactly once; expiry or an exhausted attempt
// budget fails the transfer and releases its reservation; a plain mismatch
// burns one attempt and leaves the transfer pending.
func (s *Service) VerifyOTP(ctx context.Context, txRef, code string) (*domain.Transfer, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("VerifyOTP: begin tx: %w", err)
	}
	defer tx.Rollback()

	t, err := s.transfers.GetByTxRefForUpdate(ctx, tx, txRef)
	if err != nil {
		return nil, fmt.Errorf("VerifyOTP: %w", err)
	}
	if t.Region != domain.RegionLocal {
		return nil, fmt.Errorf("VerifyOTP: %w", domain.ErrInvalidState)
	}
	if t.Status != domain.TransferStatusPending {
		return nil, fmt.Errorf("VerifyOTP: %w", domain.ErrAlreadyFinalized)
	}

	challenge, err := s.otps.GetForUpdate(ctx, tx, txRef)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("VerifyOTP: %w", domain.ErrInvalidState)
		}
		return nil, fmt.Errorf("VerifyOTP: %w", err)
	}

	now := time.Now().UTC()

	if challenge.Expired(now) {
		if _, err := s.failPending(ctx, tx, t, domain.ReasonChallengeExpired, now); err != nil {
			return nil, fmt.Errorf("VerifyOTP: %w", err)
		}
		if err := s.otps.Delete(ctx, tx, txRef); err != nil {
			return nil, fmt.Errorf("VerifyOTP: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("VerifyOTP: commit: %w", err)
		}
		log.Warn("otp challenge expired", "tx_ref", txRef)
		return nil, fmt.Errorf("VerifyOTP: %w", domain.ErrChallengeExpired)
	}

	if challenge.AttemptsRemaining <= 0 {
		return nil, s.exhaustChallenge(ctx, tx, t, now)
	}

	if bcrypt.CompareHashAndPassword([]byte(challenge.CodeHash), []byte(code)) != nil {
		if err := s.otps.DecrementAttempts(ctx, tx, txRef); err != nil {
			return nil, fmt.Errorf("VerifyOTP: %w", err)
		}
		if challenge.AttemptsRemaining == 1 {
			// That mismatch consumed the last attempt.
			return nil, s.exhaustChallenge(ctx, tx, t, now)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("VerifyOTP: commit: %w", err)
		}
		log.Warn("otp code mismatch", "tx_ref", txRef, "attempts_left", challenge.AttemptsRemaining-1)
		return nil, fmt.Errorf("VerifyOTP: %w", domain.ErrCodeMismatch)
	}

	finalized, err := s.finalizeLocked(ctx, tx, t, now)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			if err := s.otps.Delete(ctx, tx, txRef); err != nil {
				return nil, fmt.Errorf("VerifyOTP: %w", err)
			}
			if commitErr := tx.Commit(); commitErr != nil {
				return nil, fmt.Errorf("VerifyOTP: commit: %w", commitErr)
			}
		}
		return nil, fmt.Errorf("VerifyOTP: %w", err)
	}

	if err := s.otps.Delete(ctx, tx, txRef); err != nil {
		return nil, fmt.Errorf("VerifyOTP: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("VerifyOTP: commit: %w", err)
	}
	return finalized, nil
}

// exhaustChallenge fails the transfer for a consumed attempt budget and
// commits the caller's transaction.
func (s *Service) exhaustChallenge(ctx context.Context, tx *sql.Tx, t *domain.Transfer, now time.Time) error {
	if _, err := s.failPending(ctx, tx, t, domain.ReasonChallengeExhausted, now); err != nil {
		return fmt.Errorf("exhaustChallenge: %w", err)
	}
	if err := s.otps.Delete(ctx, tx, t.TxRef); err != nil {
		return fmt.Errorf("exhaustChallenge: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("exhaustChallenge: commit: %w", err)
	}
	return fmt.Errorf("exhaustChallenge: %w", domain.ErrChallengeExhausted)
}

// ResendOTP replaces the challenge with a fresh code and expiry, restoring
// the attempt budget. Issuance is rate-limited per account.
func (s *Service) ResendOTP(ctx context.Context, txRef string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ResendOTP: begin tx: %w", err)
	}
	defer tx.Rollback()

	t, err := s.transfers.GetByTxRefForUpdate(ctx, tx, txRef)
	if err != nil {
		return fmt.Errorf("ResendOTP: %w", err)
	}
	if t.Region != domain.RegionLocal || t.Status != domain.TransferStatusPending {
		return fmt.Errorf("ResendOTP: %w", domain.ErrInvalidState)
	}

	if !s.otpLimiter(t.AccountID).Allow() {
		return fmt.Errorf("ResendOTP: %w", domain.ErrRateLimited)
	}

	code, err := generateOTPCode()
	if err != nil {
		return fmt.Errorf("ResendOTP: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("ResendOTP: hash: %w", err)
	}

	now := time.Now().UTC()
	if err := s.otps.Replace(ctx, tx, &domain.OtpChallenge{
		TxRef:             txRef,
		CodeHash:          string(hash),
		ExpiresAt:         now.Add(s.config.OTPTTL()),
		AttemptsRemaining: s.config.OTPMaxAttempts,
	}); err != nil {
		return fmt.Errorf("ResendOTP: %w", err)
	}

	if err := s.emitEventWithCode(ctx, tx, t, domain.TransferEventOtpIssued, "", code, now); err != nil {
		return fmt.Errorf("ResendOTP: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ResendOTP: commit: %w", err)
	}
	return nil
}

func (s *Service) otpLimiter(accountID uuid.UUID) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.otpLimiters[accountID]
	if !ok {
		perMinute := s.config.OTPIssuePerMinute
		if perMinute <= 0 {
			perMinute = 3
		}
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
		s.otpLimiters[accountID] = l
	}
	return l
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generateOTPCode: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
