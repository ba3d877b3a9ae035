// Package transfer implements the funds-transfer core: initiation with
// reservation, the OTP and compliance authorization paths, and the ledger
// poster that finalizes balances. All balance decisions happen under the
// owning account's row lock; authorization waits hold no locks.
package transfer

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kwabena-osei/vaultcore/internal/config"
	"github.com/kwabena-osei/vaultcore/internal/domain"
	"github.com/kwabena-osei/vaultcore/internal/fees"
	"github.com/kwabena-osei/vaultcore/internal/reference"
	"github.com/kwabena-osei/vaultcore/internal/repository"
)

type transferRepo interface {
	Create(ctx context.Context, tx *sql.Tx, t *domain.Transfer) error
	CreateClassification(ctx context.Context, tx *sql.Tx, c *domain.TransferClassification) error
	GetByTxRef(ctx context.Context, txRef string) (*domain.Transfer, error)
	GetByTxRefForUpdate(ctx context.Context, tx *sql.Tx, txRef string) (*domain.Transfer, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transfer, error)
	Exists(ctx context.Context, txRef string) (bool, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, txRef string, status domain.TransferStatus, failureReason *string, completedAt *time.Time) error
	List(ctx context.Context, f repository.ListFilter) ([]domain.Transfer, int, error)
	ListStalePending(ctx context.Context, region domain.TransferRegion, before time.Time, limit int) ([]domain.Transfer, error)
}

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByCustomerAndCurrency(ctx context.Context, customerID uuid.UUID, currency domain.Currency) (*domain.Account, error)
	GetByCustomerID(ctx context.Context, customerID uuid.UUID) ([]domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalances(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance, newReserved, newVersion int64) error
}

type customerRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
}

type otpRepo interface {
	Create(ctx context.Context, tx *sql.Tx, c *domain.OtpChallenge) error
	GetForUpdate(ctx context.Context, tx *sql.Tx, txRef string) (*domain.OtpChallenge, error)
	DecrementAttempts(ctx context.Context, tx *sql.Tx, txRef string) error
	Replace(ctx context.Context, tx *sql.Tx, c *domain.OtpChallenge) error
	Delete(ctx context.Context, tx *sql.Tx, txRef string) error
}

type complianceRepo interface {
	SeedSteps(ctx context.Context, tx *sql.Tx, txRef string) error
	MarkComplete(ctx context.Context, tx *sql.Tx, txRef string, step domain.ComplianceStep, actor string) error
	AllComplete(ctx context.Context, tx *sql.Tx, txRef string) (bool, error)
	GetByTxRef(ctx context.Context, txRef string) ([]domain.ComplianceStepResult, error)
}

type outboxRepo interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.TransferEvent) error
}

type beneficiaryDirectory interface {
	Lookup(ctx context.Context, customerID, beneficiaryID uuid.UUID) (*domain.Beneficiary, error)
}

type Service struct {
	transfers  transferRepo
	accounts   accountRepo
	customers  customerRepo
	otps       otpRepo
	compliance complianceRepo
	outbox     outboxRepo
	directory  beneficiaryDirectory
	refs       *reference.Generator
	fees       *fees.Schedule
	db         *sql.DB
	config     *config.Config

	mu          sync.Mutex
	otpLimiters map[uuid.UUID]*rate.Limiter
}

func NewService(
	transfers transferRepo,
	accounts accountRepo,
	customers customerRepo,
	otps otpRepo,
	compliance complianceRepo,
	outbox outboxRepo,
	directory beneficiaryDirectory,
	refs *reference.Generator,
	feeSchedule *fees.Schedule,
	db *sql.DB,
	cfg *config.Config,
) *Service {
	return &Service{
		transfers:   transfers,
		accounts:    accounts,
		customers:   customers,
		otps:        otps,
		compliance:  compliance,
		outbox:      outbox,
		directory:   directory,
		refs:        refs,
		fees:        feeSchedule,
		db:          db,
		config:      cfg,
		otpLimiters: make(map[uuid.UUID]*rate.Limiter),
	}
}

func (s *Service) GetByTxRef(ctx context.Context, txRef string) (*domain.Transfer, error) {
	t, err := s.transfers.GetByTxRef(ctx, txRef)
	if err != nil {
		return nil, fmt.Errorf("GetByTxRef: %w", err)
	}
	return t, nil
}

// GetForCustomer fetches a transfer only if the caller owns the account it
// belongs to; anything else reads as not found.
func (s *Service) GetForCustomer(ctx context.Context, txRef string, customerID uuid.UUID) (*domain.Transfer, error) {
	t, err := s.transfers.GetByTxRef(ctx, txRef)
	if err != nil {
		return nil, fmt.Errorf("GetForCustomer: %w", err)
	}

	acct, err := s.accounts.GetByID(ctx, t.AccountID)
	if err != nil {
		return nil, fmt.Errorf("GetForCustomer: %w", err)
	}
	if acct.CustomerID != customerID {
		return nil, fmt.Errorf("GetForCustomer: %w", domain.ErrNotFound)
	}
	return t, nil
}

func (s *Service) GetComplianceSteps(ctx context.Context, txRef string) ([]domain.ComplianceStepResult, error) {
	results, err := s.compliance.GetByTxRef(ctx, txRef)
	if err != nil {
		return nil, fmt.Errorf("GetComplianceSteps: %w", err)
	}
	return results, nil
}

// allocateTxRef generates a reference and verifies it against stored
// transfers, regenerating on the astronomically rare collision.
func (s *Service) allocateTxRef(ctx context.Context) (string, error) {
	const maxAttempts = 5
	for range maxAttempts {
		ref, err := s.refs.Generate()
		if err != nil {
			return "", fmt.Errorf("allocateTxRef: %w", err)
		}
		exists, err := s.transfers.Exists(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("allocateTxRef: %w", err)
		}
		if !exists {
			return ref, nil
		}
	}
	return "", fmt.Errorf("allocateTxRef: gave up after %d collisions", maxAttempts)
}
