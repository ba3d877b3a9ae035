package transfer_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwabena-osei/vaultcore/internal/config"
	"github.com/kwabena-osei/vaultcore/internal/domain"
	"github.com/kwabena-osei/vaultcore/internal/fees"
	"github.com/kwabena-osei/vaultcore/internal/reference"
	"github.com/kwabena-osei/vaultcore/internal/repository"
	"github.com/kwabena-osei/vaultcore/internal/service/transfer"
	"github.com/kwabena-osei/vaultcore/internal/testutil"
)

func testConfig() *config.Config {
	return &config.Config{
		LocalTransfersEnabled:         true,
		InternationalTransfersEnabled: true,
		OTPTTLMinutes:                 5,
		OTPMaxAttempts:                5,
		OTPIssuePerMinute:             3,
		ComplianceWindowHrs:           72,
		LocalFeePct:                   0.001,
		InternationalFeePct:           0.0125,
	}
}

func setupTransferService(t *testing.T, db *sql.DB, cfg *config.Config) *transfer.Service {
	t.Helper()
	return transfer.NewService(
		repository.NewTransferRepository(db),
		repository.NewAccountRepository(db),
		repository.NewCustomerRepository(db),
		repository.NewOtpRepository(db),
		repository.NewComplianceRepository(db),
		repository.NewOutboxRepository(db),
		repository.NewCachedDirectory(repository.NewBeneficiaryRepository(db), time.Minute),
		reference.NewGenerator(),
		fees.NewSchedule(cfg.LocalFeePct, cfg.InternationalFeePct),
		db,
		cfg,
	)
}

func localCounterparty() domain.Counterparty {
	return domain.Counterparty{
		HolderName:    "Ama Serwaa",
		Institution:   "First Continental",
		AccountNumber: "0011223344",
	}
}

func internationalCounterparty() domain.Counterparty {
	routing := "BNORDFRPP"
	jurisdiction := "FR"
	return domain.Counterparty{
		HolderName:    "Jean Dupont",
		Institution:   "Banque du Nord",
		AccountNumber: "FR7630006000011234567890189",
		RoutingCode:   &routing,
		Jurisdiction:  &jurisdiction,
	}
}

// issuedOTPCode digs the plaintext code out of the latest otp_issued outbox
// row; delivery is the only place the code exists outside the bcrypt hash.
func issuedOTPCode(t *testing.T, db *sql.DB, txRef string) string {
	t.Helper()

	var payload []byte
	err := db.QueryRow(
		`SELECT payload FROM transfer_events
		 WHERE tx_ref = $1 AND event_type = 'otp_issued'
		 ORDER BY created_at DESC, id LIMIT 1`, txRef,
	).Scan(&payload)
	require.NoError(t, err)

	var p struct {
		OtpCode string `json:"otp_code"`
	}
	require.NoError(t, json.Unmarshal(payload, &p))
	require.Len(t, p.OtpCode, 6)
	return p.OtpCode
}

func TestLocalTransfer_OTPHappyPath(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, testConfig())
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	acct := testutil.SeedAccount(t, db, customer.ID, "USD", 50_000, 0)

	tr, err := svc.Initiate(ctx, transfer.InitiateRequest{
		CustomerID:   customer.ID,
		Currency:     domain.CurrencyUSD,
		Amount:       20_000,
		Region:       domain.RegionLocal,
		Counterparty: localCounterparty(),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusPending, tr.Status)
	assert.Equal(t, domain.DirectionDebit, tr.Direction)
	assert.Equal(t, int64(20), tr.FeeAmount)

	// Initiation reserves, never settles.
	assert.Equal(t, int64(50_000), testutil.GetAccountBalance(t, db, acct.ID))
	assert.Equal(t, int64(20_000), testutil.GetAccountReserved(t, db, acct.ID))

	code := issuedOTPCode(t, db, tr.TxRef)

	settled, err := svc.AttemptAdvance(ctx, tr.TxRef, transfer.AdvanceInput{Code: code})
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusSuccess, settled.Status)
	require.NotNil(t, settled.CompletedAt)

	assert.Equal(t, int64(30_000), testutil.GetAccountBalance(t, db, acct.ID))
	assert.Equal(t, int64(0), testutil.GetAccountReserved(t, db, acct.ID))

	// Challenge rows do not outlive the transfer.
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM otp_challenges WHERE tx_ref = $1`, tr.TxRef).Scan(&count))
	assert.Equal(t, 0, count)

	// otp_issued plus finalized.
	assert.Equal(t, 2, testutil.CountTransferEvents(t, db, tr.TxRef))
}

func TestInitiate_InsufficientFunds(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, testConfig())
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	acct := testutil.SeedAccount(t, db, customer.ID, "USD", 10_000, 0)

	_, err := svc.Initiate(ctx, transfer.InitiateRequest{
		CustomerID:   customer.ID,
		Currency:     domain.CurrencyUSD,
		Amount:       15_000,
		Region:       domain.RegionLocal,
		Counterparty: localCounterparty(),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// No record and no reservation for a rejected initiation.
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM transfers WHERE account_id = $1`, acct.ID).Scan(&count))
	assert.Equal(t, 0, count)
	assert.Equal(t, int64(0), testutil.GetAccountReserved(t, db, acct.ID))
}

func TestInitiate_ReservationBlocksSecondTransfer(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, testConfig())
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	acct := testutil.SeedAccount(t, db, customer.ID, "USD", 10_000, 0)

	var wg sync.WaitGroup
	results := make(chan error, 2)

	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Initiate(ctx, transfer.InitiateRequest{
				CustomerID:   customer.ID,
				Currency:     domain.CurrencyUSD,
				Amount:       8_000,
				Region:       domain.RegionLocal,
				Counterparty: localCounterparty(),
			})
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	var failures int
	for err := range results {
		if err != nil {
			require.ErrorIs(t, err, domain.ErrInsufficientFunds)
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one of the two should be rejected")

	assert.Equal(t, int64(10_000), testutil.GetAccountBalance(t, db, acct.ID))
	assert.Equal(t, int64(8_000), testutil.GetAccountReserved(t, db, acct.ID))
}

func TestVerifyOTP_MismatchThenExhaustion(t *testing.T) {
	cfg := testConfig()
	cfg.OTPMaxAttempts = 3
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, cfg)
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	acct := testutil.SeedAccount(t, db, customer.ID, "USD", 50_000, 0)

	tr, err := svc.Initiate(ctx, transfer.InitiateRequest{
		CustomerID:   customer.ID,
		Currency:     domain.CurrencyUSD,
		Amount:       20_000,
		Region:       domain.RegionLocal,
		Counterparty: localCounterparty(),
	})
	require.NoError(t, err)

	// First two mismatches burn attempts but keep the transfer pending.
	for range 2 {
		_, err = svc.AttemptAdvance(ctx, tr.TxRef, transfer.AdvanceInput{Code: "000000"})
		require.ErrorIs(t, err, domain.ErrCodeMismatch)
		assert.Equal(t, "pending", testutil.GetTransferStatus(t, db, tr.TxRef))
	}

	// The final mismatch consumes the budget and fails the transfer.
	_, err = svc.AttemptAdvance(ctx, tr.TxRef, transfer.AdvanceInput{Code: "000000"})
	require.ErrorIs(t, err, domain.ErrChallengeExhausted)

	assert.Equal(t, "failed", testutil.GetTransferStatus(t, db, tr.TxRef))
	assert.Equal(t, int64(50_000), testutil.GetAccountBalance(t, db, acct.ID))
	assert.Equal(t, int64(0), testutil.GetAccountReserved(t, db, acct.ID))

	// The right code is worthless once the transfer is terminal.
	code := issuedOTPCode(t, db, tr.TxRef)
	_, err = svc.AttemptAdvance(ctx, tr.TxRef, transfer.AdvanceInput{Code: code})
	require.ErrorIs(t, err, domain.ErrAlreadyFinalized)
}

func TestVerifyOTP_ExpiredChallengeFailsTransfer(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, testConfig())
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	acct := testutil.SeedAccount(t, db, customer.ID, "USD", 50_000, 20_000)

	tr := testutil.SeedPendingTransfer(t, db, acct.ID, "TX-20260101000000-EXP0000001", domain.DirectionDebit, 20_000, domain.RegionLocal)
	testutil.SeedChallenge(t, db, tr.TxRef, "246810", -time.Minute, 5)

	// Even the correct code loses once the challenge has expired.
	_, err := svc.AttemptAdvance(ctx, tr.TxRef, transfer.AdvanceInput{Code: "246810"})
	require.ErrorIs(t, err, domain.ErrChallengeExpired)

	assert.Equal(t, "failed", testutil.GetTransferStatus(t, db, tr.TxRef))
	assert.Equal(t, int64(50_000), testutil.GetAccountBalance(t, db, acct.ID))
	assert.Equal(t, int64(0), testutil.GetAccountReserved(t, db, acct.ID))
}

func TestResendOTP_InvalidatesOldCode(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, testConfig())
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	testutil.SeedAccount(t, db, customer.ID, "USD", 50_000, 0)

	tr, err := svc.Initiate(ctx, transfer.InitiateRequest{
		CustomerID:   customer.ID,
		Currency:     domain.CurrencyUSD,
		Amount:       20_000,
		Region:       domain.RegionLocal,
		Counterparty: localCounterparty(),
	})
	require.NoError(t, err)

	oldCode := issuedOTPCode(t, db, tr.TxRef)
	require.NoError(t, svc.ResendOTP(ctx, tr.TxRef))
	newCode := issuedOTPCode(t, db, tr.TxRef)

	if oldCode != newCode {
		_, err = svc.AttemptAdvance(ctx, tr.TxRef, transfer.AdvanceInput{Code: oldCode})
		require.ErrorIs(t, err, domain.ErrCodeMismatch)
	}

	settled, err := svc.AttemptAdvance(ctx, tr.TxRef, transfer.AdvanceInput{Code: newCode})
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusSuccess, settled.Status)
}

func TestResendOTP_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.OTPIssuePerMinute = 2
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, cfg)
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	testutil.SeedAccount(t, db, customer.ID, "USD", 50_000, 0)

	tr, err := svc.Initiate(ctx, transfer.InitiateRequest{
		CustomerID:   customer.ID,
		Currency:     domain.CurrencyUSD,
		Amount:       20_000,
		Region:       domain.RegionLocal,
		Counterparty: localCounterparty(),
	})
	require.NoError(t, err)

	require.NoError(t, svc.ResendOTP(ctx, tr.TxRef))
	require.NoError(t, svc.ResendOTP(ctx, tr.TxRef))
	require.ErrorIs(t, svc.ResendOTP(ctx, tr.TxRef), domain.ErrRateLimited)
}

func TestInternationalTransfer_ComplianceChain(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, testConfig())
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	acct := testutil.SeedAccount(t, db, customer.ID, "USD", 100_000, 0)

	tr, err := svc.Initiate(ctx, transfer.InitiateRequest{
		CustomerID:   customer.ID,
		Currency:     domain.CurrencyUSD,
		Amount:       40_000,
		Region:       domain.RegionInternational,
		Counterparty: internationalCounterparty(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500), tr.FeeAmount)

	steps, err := svc.GetComplianceSteps(ctx, tr.TxRef)
	require.NoError(t, err)
	require.Len(t, steps, 6)
	for _, s := range steps {
		assert.False(t, s.Completed)
	}

	// Five of six completions leave the transfer pending and funds reserved.
	required := domain.RequiredComplianceSteps()
	for _, step := range required[:5] {
		updated, err := svc.AttemptAdvance(ctx, tr.TxRef, transfer.AdvanceInput{Step: step, Actor: "officer-1"})
		require.NoError(t, err)
		assert.Equal(t, domain.TransferStatusPending, updated.Status)
	}
	assert.Equal(t, int64(100_000), testutil.GetAccountBalance(t, db, acct.ID))
	assert.Equal(t, int64(40_000), testutil.GetAccountReserved(t, db, acct.ID))

	// The sixth completion settles in the same transaction.
	settled, err := svc.AttemptAdvance(ctx, tr.TxRef, transfer.AdvanceInput{Step: required[5], Actor: "officer-2"})
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusSuccess, settled.Status)

	assert.Equal(t, int64(60_000), testutil.GetAccountBalance(t, db, acct.ID))
	assert.Equal(t, int64(0), testutil.GetAccountReserved(t, db, acct.ID))
}

func TestMarkStepComplete_UnknownStep(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, testConfig())
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	testutil.SeedAccount(t, db, customer.ID, "USD", 100_000, 0)

	tr, err := svc.Initiate(ctx, transfer.InitiateRequest{
		CustomerID:   customer.ID,
		Currency:     domain.CurrencyUSD,
		Amount:       40_000,
		Region:       domain.RegionInternational,
		Counterparty: internationalCounterparty(),
	})
	require.NoError(t, err)

	_, err = svc.AttemptAdvance(ctx, tr.TxRef, transfer.AdvanceInput{Step: "vibes_check", Actor: "officer-1"})
	require.ErrorIs(t, err, domain.ErrUnknownStep)
	assert.Equal(t, "pending", testutil.GetTransferStatus(t, db, tr.TxRef))
}

func TestMarkStepComplete_WindowElapsed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, testConfig())
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	acct := testutil.SeedAccount(t, db, customer.ID, "USD", 100_000, 0)

	tr, err := svc.Initiate(ctx, transfer.InitiateRequest{
		CustomerID:   customer.ID,
		Currency:     domain.CurrencyUSD,
		Amount:       40_000,
		Region:       domain.RegionInternational,
		Counterparty: internationalCounterparty(),
	})
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE transfers SET created_at = now() - interval '73 hours' WHERE tx_ref = $1`, tr.TxRef)
	require.NoError(t, err)

	_, err = svc.AttemptAdvance(ctx, tr.TxRef, transfer.AdvanceInput{
		Step:  domain.StepCoreOrigination,
		Actor: "officer-1",
	})
	require.ErrorIs(t, err, domain.ErrComplianceTimeout)

	assert.Equal(t, "failed", testutil.GetTransferStatus(t, db, tr.TxRef))
	assert.Equal(t, int64(100_000), testutil.GetAccountBalance(t, db, acct.ID))
	assert.Equal(t, int64(0), testutil.GetAccountReserved(t, db, acct.ID))
}

func TestCancel_ReleasesReservation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, testConfig())
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	acct := testutil.SeedAccount(t, db, customer.ID, "USD", 50_000, 0)

	tr, err := svc.Initiate(ctx, transfer.InitiateRequest{
		CustomerID:   customer.ID,
		Currency:     domain.CurrencyUSD,
		Amount:       20_000,
		Region:       domain.RegionLocal,
		Counterparty: localCounterparty(),
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, tr.TxRef)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusCancelled, cancelled.Status)

	assert.Equal(t, int64(50_000), testutil.GetAccountBalance(t, db, acct.ID))
	assert.Equal(t, int64(0), testutil.GetAccountReserved(t, db, acct.ID))

	// Cancelling twice, or finalizing after cancel, changes nothing.
	_, err = svc.Cancel(ctx, tr.TxRef)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = svc.Finalize(ctx, tr.TxRef)
	require.ErrorIs(t, err, domain.ErrAlreadyFinalized)
	assert.Equal(t, "cancelled", testutil.GetTransferStatus(t, db, tr.TxRef))
}

func TestFinalize_CreditTransfer(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, testConfig())
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	acct := testutil.SeedAccount(t, db, customer.ID, "USD", 10_000, 0)

	testutil.SeedPendingTransfer(t, db, acct.ID, "TX-20260101000000-CREDIT0001", domain.DirectionCredit, 5_000, domain.RegionLocal)

	settled, err := svc.Finalize(ctx, "TX-20260101000000-CREDIT0001")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusSuccess, settled.Status)

	assert.Equal(t, int64(15_000), testutil.GetAccountBalance(t, db, acct.ID))

	// Settling a second time is a no-op.
	_, err = svc.Finalize(ctx, "TX-20260101000000-CREDIT0001")
	require.ErrorIs(t, err, domain.ErrAlreadyFinalized)
	assert.Equal(t, int64(15_000), testutil.GetAccountBalance(t, db, acct.ID))
}

func TestInitiate_KillSwitchDisablesRegion(t *testing.T) {
	cfg := testConfig()
	cfg.LocalTransfersEnabled = false
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, cfg)
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	testutil.SeedAccount(t, db, customer.ID, "USD", 50_000, 0)

	_, err := svc.Initiate(ctx, transfer.InitiateRequest{
		CustomerID:   customer.ID,
		Currency:     domain.CurrencyUSD,
		Amount:       20_000,
		Region:       domain.RegionLocal,
		Counterparty: localCounterparty(),
	})
	require.ErrorIs(t, err, domain.ErrTransferDisabled)

	// The other region stays open.
	_, err = svc.Initiate(ctx, transfer.InitiateRequest{
		CustomerID:   customer.ID,
		Currency:     domain.CurrencyUSD,
		Amount:       20_000,
		Region:       domain.RegionInternational,
		Counterparty: internationalCounterparty(),
	})
	require.NoError(t, err)
}

func TestInitiate_IdempotencyKeyRejectsDuplicate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, testConfig())
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	acct := testutil.SeedAccount(t, db, customer.ID, "USD", 50_000, 0)

	key := uuid.NewString()
	req := transfer.InitiateRequest{
		CustomerID:     customer.ID,
		Currency:       domain.CurrencyUSD,
		Amount:         20_000,
		Region:         domain.RegionLocal,
		Counterparty:   localCounterparty(),
		IdempotencyKey: key,
	}

	_, err := svc.Initiate(ctx, req)
	require.NoError(t, err)

	_, err = svc.Initiate(ctx, req)
	require.ErrorIs(t, err, domain.ErrDuplicateRequest)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM transfers WHERE account_id = $1`, acct.ID).Scan(&count))
	assert.Equal(t, 1, count)
	assert.Equal(t, int64(20_000), testutil.GetAccountReserved(t, db, acct.ID))
}

func TestInitiate_BeneficiaryPrefill(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, testConfig())
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	testutil.SeedAccount(t, db, customer.ID, "USD", 50_000, 0)
	b := testutil.SeedBeneficiary(t, db, customer.ID, "Saved Holder", "Saved Bank", "5566778899", "USD")

	tr, err := svc.Initiate(ctx, transfer.InitiateRequest{
		CustomerID:    customer.ID,
		Currency:      domain.CurrencyUSD,
		Amount:        10_000,
		Region:        domain.RegionLocal,
		BeneficiaryID: &b.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Saved Holder", tr.Counterparty.HolderName)
	assert.Equal(t, "Saved Bank", tr.Counterparty.Institution)
	assert.Equal(t, "5566778899", tr.Counterparty.AccountNumber)
}

func TestInitiate_BeneficiaryScopedToOwner(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, testConfig())
	ctx := context.Background()

	owner := testutil.SeedCustomer(t, db, "owner@test.com", "Owner")
	intruder := testutil.SeedCustomer(t, db, "intruder@test.com", "Intruder")
	testutil.SeedAccount(t, db, intruder.ID, "USD", 50_000, 0)
	b := testutil.SeedBeneficiary(t, db, owner.ID, "Saved Holder", "Saved Bank", "5566778899", "USD")

	_, err := svc.Initiate(ctx, transfer.InitiateRequest{
		CustomerID:    intruder.ID,
		Currency:      domain.CurrencyUSD,
		Amount:        10_000,
		Region:        domain.RegionLocal,
		BeneficiaryID: &b.ID,
	})
	require.ErrorIs(t, err, domain.ErrInvalidCounterparty)
}

func TestList_FiltersAndScoping(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, testConfig())
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	other := testutil.SeedCustomer(t, db, "other@test.com", "Other")
	testutil.SeedAccount(t, db, customer.ID, "USD", 100_000, 0)
	testutil.SeedAccount(t, db, other.ID, "USD", 100_000, 0)

	for range 3 {
		_, err := svc.Initiate(ctx, transfer.InitiateRequest{
			CustomerID:   customer.ID,
			Currency:     domain.CurrencyUSD,
			Amount:       5_000,
			Region:       domain.RegionLocal,
			Counterparty: localCounterparty(),
		})
		require.NoError(t, err)
	}
	_, err := svc.Initiate(ctx, transfer.InitiateRequest{
		CustomerID:   other.ID,
		Currency:     domain.CurrencyUSD,
		Amount:       5_000,
		Region:       domain.RegionLocal,
		Counterparty: localCounterparty(),
	})
	require.NoError(t, err)

	transfers, total, err := svc.List(ctx, transfer.ListRequest{CustomerID: customer.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, transfers, 3)

	// Status filter.
	transfers, total, err = svc.List(ctx, transfer.ListRequest{
		CustomerID: customer.ID,
		Status:     domain.TransferStatusSuccess,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, transfers)

	// Counterparty name search.
	transfers, _, err = svc.List(ctx, transfer.ListRequest{
		CustomerID: customer.ID,
		Search:     "serwaa",
	})
	require.NoError(t, err)
	assert.Len(t, transfers, 3)
}

func TestList_PaginatesAcrossCurrencies(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, testConfig())
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	testutil.SeedAccount(t, db, customer.ID, "USD", 100_000, 0)
	testutil.SeedAccount(t, db, customer.ID, "EUR", 100_000, 0)

	for _, currency := range []domain.Currency{domain.CurrencyUSD, domain.CurrencyEUR} {
		for range 3 {
			_, err := svc.Initiate(ctx, transfer.InitiateRequest{
				CustomerID:   customer.ID,
				Currency:     currency,
				Amount:       5_000,
				Region:       domain.RegionLocal,
				Counterparty: localCounterparty(),
			})
			require.NoError(t, err)
		}
	}

	// The limit caps the page across both wallets, not per wallet.
	page, total, err := svc.List(ctx, transfer.ListRequest{CustomerID: customer.ID, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	require.Len(t, page, 2)

	// Walking the offsets visits each transfer exactly once.
	seen := make(map[string]bool)
	for offset := 0; offset < total; offset += 2 {
		page, _, err := svc.List(ctx, transfer.ListRequest{CustomerID: customer.ID, Limit: 2, Offset: offset})
		require.NoError(t, err)
		require.Len(t, page, 2)
		for _, tr := range page {
			assert.False(t, seen[tr.TxRef], "transfer %s returned on two pages", tr.TxRef)
			seen[tr.TxRef] = true
		}
	}
	assert.Len(t, seen, 6)
}

func TestInitiate_ConcurrentDuplicateIdempotencyKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, testConfig())
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	acct := testutil.SeedAccount(t, db, customer.ID, "USD", 100_000, 0)

	// Both submissions can pass the read-side duplicate check; the unique
	// index on the key must still reject the loser as a duplicate.
	var wg sync.WaitGroup
	results := make(chan error, 2)

	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Initiate(ctx, transfer.InitiateRequest{
				CustomerID:     customer.ID,
				Currency:       domain.CurrencyUSD,
				Amount:         5_000,
				Region:         domain.RegionLocal,
				Counterparty:   localCounterparty(),
				IdempotencyKey: "retry-7c2d",
			})
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	var failures int
	for err := range results {
		if err != nil {
			require.ErrorIs(t, err, domain.ErrDuplicateRequest)
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one submission should be rejected")

	// The loser's transaction rolled back without touching the reservation.
	assert.Equal(t, int64(5_000), testutil.GetAccountReserved(t, db, acct.ID))
}

func TestOutbox_GetPendingOldestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, testConfig())
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	testutil.SeedAccount(t, db, customer.ID, "USD", 100_000, 0)

	var txRefs []string
	for range 2 {
		tr, err := svc.Initiate(ctx, transfer.InitiateRequest{
			CustomerID:   customer.ID,
			Currency:     domain.CurrencyUSD,
			Amount:       5_000,
			Region:       domain.RegionLocal,
			Counterparty: localCounterparty(),
		})
		require.NoError(t, err)
		txRefs = append(txRefs, tr.TxRef)
	}

	outbox := repository.NewOutboxRepository(db)

	events, err := outbox.GetPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, txRefs[0], events[0].TxRef)

	// Dispatched rows leave the queue.
	require.NoError(t, outbox.UpdateStatus(ctx, events[0].ID, domain.TransferEventStatusDispatched))

	events, err = outbox.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, txRefs[1], events[0].TxRef)
}

func TestSweeper_ExpiresStalePending(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupTransferService(t, db, testConfig())
	ctx := context.Background()

	customer := testutil.SeedCustomer(t, db, "kofi@test.com", "Kofi Mensah")
	acct := testutil.SeedAccount(t, db, customer.ID, "USD", 100_000, 0)

	local, err := svc.Initiate(ctx, transfer.InitiateRequest{
		CustomerID:   customer.ID,
		Currency:     domain.CurrencyUSD,
		Amount:       10_000,
		Region:       domain.RegionLocal,
		Counterparty: localCounterparty(),
	})
	require.NoError(t, err)

	intl, err := svc.Initiate(ctx, transfer.InitiateRequest{
		CustomerID:   customer.ID,
		Currency:     domain.CurrencyUSD,
		Amount:       20_000,
		Region:       domain.RegionInternational,
		Counterparty: internationalCounterparty(),
	})
	require.NoError(t, err)

	// Age both past their deadlines.
	_, err = db.Exec(`UPDATE transfers SET created_at = now() - interval '74 hours' WHERE tx_ref IN ($1, $2)`, local.TxRef, intl.TxRef)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE otp_challenges SET expires_at = now() - interval '1 minute' WHERE tx_ref = $1`, local.TxRef)
	require.NoError(t, err)

	sweeper := transfer.NewSweeper(svc, slog.Default(), time.Hour)
	sweeper.SweepOnce(ctx)

	assert.Equal(t, "failed", testutil.GetTransferStatus(t, db, local.TxRef))
	assert.Equal(t, "failed", testutil.GetTransferStatus(t, db, intl.TxRef))
	assert.Equal(t, int64(100_000), testutil.GetAccountBalance(t, db, acct.ID))
	assert.Equal(t, int64(0), testutil.GetAccountReserved(t, db, acct.ID))
}
