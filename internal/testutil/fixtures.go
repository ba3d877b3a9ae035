package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kwabena-osei/vaultcore/internal/domain"
)

func SeedCustomer(t *testing.T, db *sql.DB, email, name string) *domain.Customer {
	t.Helper()

	c := &domain.Customer{
		ID:                       uuid.New(),
		Email:                    email,
		Name:                     name,
		Verification:             domain.VerificationVerified,
		CanTransfer:              true,
		CanLocalTransfer:         true,
		CanInternationalTransfer: true,
		CreatedAt:                time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO customers (id, email, name, verification, can_transfer,
		 can_local_transfer, can_international_transfer, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Email, c.Name, c.Verification,
		c.CanTransfer, c.CanLocalTransfer, c.CanInternationalTransfer, c.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed customer %s: %v", email, err)
	}
	return c
}

func SeedAccount(t *testing.T, db *sql.DB, customerID uuid.UUID, currency string, balance, reserved int64) *domain.Account {
	t.Helper()

	a := &domain.Account{
		ID:         uuid.New(),
		CustomerID: customerID,
		Currency:   domain.Currency(currency),
		Balance:    balance,
		Reserved:   reserved,
		Version:    1,
		Status:     domain.AccountStatusActive,
		CreatedAt:  time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO accounts (id, customer_id, currency, balance, reserved, version, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.CustomerID, a.Currency, a.Balance, a.Reserved, a.Version, a.Status, a.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed account %s/%s: %v", customerID, currency, err)
	}
	return a
}

func SeedBeneficiary(t *testing.T, db *sql.DB, customerID uuid.UUID, holderName, institution, accountNumber, currency string) *domain.Beneficiary {
	t.Helper()

	b := &domain.Beneficiary{
		ID:            uuid.New(),
		CustomerID:    customerID,
		HolderName:    holderName,
		Institution:   institution,
		AccountNumber: accountNumber,
		Currency:      domain.Currency(currency),
		CreatedAt:     time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO beneficiaries (id, customer_id, holder_name, institution,
		 account_number, routing_code, branch, jurisdiction, currency, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.CustomerID, b.HolderName, b.Institution, b.AccountNumber,
		b.RoutingCode, b.Branch, b.Jurisdiction, b.Currency, b.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed beneficiary %s: %v", holderName, err)
	}
	return b
}

// SeedPendingTransfer writes a pending transfer row directly, bypassing the
// initiation path, for exercising the poster in isolation. The caller is
// responsible for seeding a matching reservation on debit records.
func SeedPendingTransfer(t *testing.T, db *sql.DB, accountID uuid.UUID, txRef string, direction domain.TransferDirection, amount int64, region domain.TransferRegion) *domain.Transfer {
	t.Helper()

	tr := &domain.Transfer{
		TxRef:     txRef,
		AccountID: accountID,
		Direction: direction,
		Amount:    amount,
		FeeMode:   domain.FeeModeSHA,
		Currency:  domain.CurrencyUSD,
		Region:    region,
		Status:    domain.TransferStatusPending,
		Counterparty: domain.Counterparty{
			HolderName:    "Ama Serwaa",
			Institution:   "First Continental",
			AccountNumber: "0011223344",
		},
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO transfers (tx_ref, account_id, direction, amount, fee_amount, fee_mode,
		 currency, region, status, holder_name, institution, account_number, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		tr.TxRef, tr.AccountID, tr.Direction, tr.Amount, tr.FeeAmount, tr.FeeMode,
		tr.Currency, tr.Region, tr.Status,
		tr.Counterparty.HolderName, tr.Counterparty.Institution, tr.Counterparty.AccountNumber,
		tr.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed pending transfer %s: %v", txRef, err)
	}
	return tr
}

// SeedChallenge attaches an OTP challenge with a known plaintext code to a
// pending transfer. Pass a negative ttl to seed an already-expired challenge.
func SeedChallenge(t *testing.T, db *sql.DB, txRef, code string, ttl time.Duration, attemptsRemaining int) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash otp code: %v", err)
	}

	_, err = db.Exec(
		`INSERT INTO otp_challenges (tx_ref, code_hash, expires_at, attempts_remaining, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		txRef, string(hash), time.Now().UTC().Add(ttl), attemptsRemaining, time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("seed otp challenge %s: %v", txRef, err)
	}
}

func GetAccountBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) int64 {
	t.Helper()

	var balance int64
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get account balance %s: %v", accountID, err)
	}
	return balance
}

func GetAccountReserved(t *testing.T, db *sql.DB, accountID uuid.UUID) int64 {
	t.Helper()

	var reserved int64
	err := db.QueryRow(`SELECT reserved FROM accounts WHERE id = $1`, accountID).Scan(&reserved)
	if err != nil {
		t.Fatalf("get account reserved %s: %v", accountID, err)
	}
	return reserved
}

func GetTransferStatus(t *testing.T, db *sql.DB, txRef string) string {
	t.Helper()

	var status string
	err := db.QueryRow(`SELECT status FROM transfers WHERE tx_ref = $1`, txRef).Scan(&status)
	if err != nil {
		t.Fatalf("get transfer status %s: %v", txRef, err)
	}
	return status
}

func CountTransferEvents(t *testing.T, db *sql.DB, txRef string) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM transfer_events WHERE tx_ref = $1`, txRef).Scan(&count)
	if err != nil {
		t.Fatalf("count transfer events %s: %v", txRef, err)
	}
	return count
}
