package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kwabena-osei/vaultcore/internal/config"
	"github.com/kwabena-osei/vaultcore/internal/domain"
	"github.com/kwabena-osei/vaultcore/internal/logging"
)

type InitiateRequest struct {
	CustomerID    uuid.UUID
	Currency      domain.Currency
	Amount        int64
	Region        domain.TransferRegion
	FeeMode       domain.FeeMode
	BeneficiaryID *uuid.UUID
	Counterparty  domain.Counterparty
	Memo          *string

	// Optional client token; a retried submission with the same key is
	// rejected as a duplicate instead of moving money twice.
	IdempotencyKey string
}

// Initiate validates a transfer request, reserves funds, creates the pending
// records, and routes the transfer to its authorization path. It never
// mutates the settled balance; that is the poster's job.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*domain.Transfer, error) {
	log := logging.FromContext(ctx)

	if req.Amount <= 0 {
		return nil, fmt.Errorf("Initiate: %w", domain.ErrInvalidAmount)
	}
	if !req.Currency.IsValid() {
		return nil, fmt.Errorf("Initiate: %w", domain.ErrInvalidCurrency)
	}
	if !req.Region.IsValid() {
		return nil, fmt.Errorf("Initiate: invalid region %q: %w", req.Region, domain.ErrInvalidCounterparty)
	}
	if req.FeeMode == "" {
		req.FeeMode = domain.FeeModeSHA
	}
	if !req.FeeMode.IsValid() {
		return nil, fmt.Errorf("Initiate: invalid fee mode %q: %w", req.FeeMode, domain.ErrInvalidCounterparty)
	}

	if req.IdempotencyKey != "" {
		if _, err := s.transfers.GetByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
			return nil, fmt.Errorf("Initiate: %w", domain.ErrDuplicateRequest)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("Initiate: %w", err)
		}
	}

	acct, err := s.accounts.GetByCustomerAndCurrency(ctx, req.CustomerID, req.Currency)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("Initiate: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("Initiate: %w", err)
	}

	fee, err := s.fees.FeeFor(req.Amount, req.Region)
	if err != nil {
		return nil, fmt.Errorf("Initiate: %w", err)
	}
	debitTotal := req.Amount
	if req.FeeMode == domain.FeeModeOUR {
		debitTotal += fee
	}

	// Advisory pre-check; the definitive one happens under the row lock.
	if acct.Available() < debitTotal {
		return nil, fmt.Errorf("Initiate: %w", domain.ErrInsufficientFunds)
	}

	customer, err := s.customers.GetByID(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("Initiate: %w", err)
	}
	if !customer.PermitsRegion(req.Region) {
		return nil, fmt.Errorf("Initiate: %w", domain.ErrTransferDisabled)
	}

	switches := s.config.Switches()
	if !regionEnabled(switches, req.Region) {
		return nil, fmt.Errorf("Initiate: kill-switch: %w", domain.ErrTransferDisabled)
	}

	cp := req.Counterparty
	if req.BeneficiaryID != nil {
		b, err := s.directory.Lookup(ctx, req.CustomerID, *req.BeneficiaryID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// An unresolvable beneficiary reads the same as a bad
				// counterparty; the caller learns nothing about other
				// customers' saved entries.
				return nil, fmt.Errorf("Initiate: beneficiary: %w", domain.ErrInvalidCounterparty)
			}
			return nil, fmt.Errorf("Initiate: beneficiary: %w", err)
		}
		cp = counterpartyFromBeneficiary(b, cp)
	}
	if err := validateCounterparty(cp, req.Region); err != nil {
		return nil, fmt.Errorf("Initiate: %w", err)
	}

	txRef, err := s.allocateTxRef(ctx)
	if err != nil {
		return nil, fmt.Errorf("Initiate: %w", err)
	}

	now := time.Now().UTC()
	t := &domain.Transfer{
		TxRef:        txRef,
		AccountID:    acct.ID,
		Direction:    domain.DirectionDebit,
		Amount:       req.Amount,
		FeeAmount:    fee,
		FeeMode:      req.FeeMode,
		Currency:     req.Currency,
		Region:       req.Region,
		Status:       domain.TransferStatusPending,
		Counterparty: cp,
		Memo:         req.Memo,
		CreatedAt:    now,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		t.IdempotencyKey = &key
	}

	if err := s.createPending(ctx, t, debitTotal); err != nil {
		return nil, fmt.Errorf("Initiate: %w", err)
	}

	log.Info("transfer initiated",
		"tx_ref", t.TxRef,
		"account_id", acct.ID,
		"region", t.Region,
		"amount", t.Amount,
		"fee", t.FeeAmount,
		"currency", t.Currency,
	)

	return t, nil
}

// createPending runs the initiation critical section: reserve funds and
// create the transfer with all its satellite rows in one transaction.
func (s *Service) createPending(ctx context.Context, t *domain.Transfer, debitTotal int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("createPending: begin tx: %w", err)
	}
	defer tx.Rollback()

	acct, err := s.accounts.GetForUpdate(ctx, tx, t.AccountID)
	if err != nil {
		return fmt.Errorf("createPending: %w", err)
	}
	if acct.Status != domain.AccountStatusActive {
		if acct.Status == domain.AccountStatusFrozen {
			return fmt.Errorf("createPending: %w", domain.ErrAccountFrozen)
		}
		return fmt.Errorf("createPending: %w", domain.ErrAccountClosed)
	}
	if acct.Available() < debitTotal {
		return fmt.Errorf("createPending: %w", domain.ErrInsufficientFunds)
	}

	if err := s.transfers.Create(ctx, tx, t); err != nil {
		return fmt.Errorf("createPending: %w", err)
	}

	classification := &domain.TransferClassification{
		TxRef:             t.TxRef,
		CounterpartyEntry: domain.OppositeDirection(t.Direction),
		CreatedAt:         t.CreatedAt,
	}
	if err := s.transfers.CreateClassification(ctx, tx, classification); err != nil {
		return fmt.Errorf("createPending: %w", err)
	}

	switch t.Region {
	case domain.RegionLocal:
		if err := s.issueOTP(ctx, tx, t); err != nil {
			return fmt.Errorf("createPending: %w", err)
		}
	case domain.RegionInternational:
		if err := s.compliance.SeedSteps(ctx, tx, t.TxRef); err != nil {
			return fmt.Errorf("createPending: %w", err)
		}
	}

	if err := s.accounts.UpdateBalances(ctx, tx, acct.ID, acct.Balance, acct.Reserved+debitTotal, acct.Version+1); err != nil {
		return fmt.Errorf("createPending: reserve: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("createPending: commit: %w", err)
	}
	return nil
}

func regionEnabled(sw config.Switches, region domain.TransferRegion) bool {
	switch region {
	case domain.RegionLocal:
		return sw.Local
	case domain.RegionInternational:
		return sw.International
	default:
		return false
	}
}

func validateCounterparty(cp domain.Counterparty, region domain.TransferRegion) error {
	if cp.Institution == "" || cp.AccountNumber == "" || cp.HolderName == "" {
		return fmt.Errorf("validateCounterparty: %w", domain.ErrInvalidCounterparty)
	}
	if region == domain.RegionInternational {
		if cp.Jurisdiction == nil || *cp.Jurisdiction == "" {
			return fmt.Errorf("validateCounterparty: jurisdiction: %w", domain.ErrInvalidCounterparty)
		}
		if cp.RoutingCode == nil || *cp.RoutingCode == "" {
			return fmt.Errorf("validateCounterparty: routing code: %w", domain.ErrInvalidCounterparty)
		}
	}
	return nil
}

func counterpartyFromBeneficiary(b *domain.Beneficiary, override domain.Counterparty) domain.Counterparty {
	cp := domain.Counterparty{
		HolderName:    b.HolderName,
		Institution:   b.Institution,
		AccountNumber: b.AccountNumber,
		RoutingCode:   b.RoutingCode,
		Branch:        b.Branch,
		Jurisdiction:  b.Jurisdiction,
	}
	// Explicit request fields win over the saved template.
	if override.HolderName != "" {
		cp.HolderName = override.HolderName
	}
	if override.Institution != "" {
		cp.Institution = override.Institution
	}
	if override.AccountNumber != "" {
		cp.AccountNumber = override.AccountNumber
	}
	if override.RoutingCode != nil {
		cp.RoutingCode = override.RoutingCode
	}
	if override.Branch != nil {
		cp.Branch = override.Branch
	}
	if override.Jurisdiction != nil {
		cp.Jurisdiction = override.Jurisdiction
	}
	return cp
}
