package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwabena-osei/vaultcore/internal/auth"
	"github.com/kwabena-osei/vaultcore/internal/domain"
	"github.com/kwabena-osei/vaultcore/internal/service/transfer"
)

type mockTransferService struct {
	initiated  *transfer.InitiateRequest
	transfer   *domain.Transfer
	err        error
	cancelErr  error
	advanceErr error
}

func (m *mockTransferService) Initiate(_ context.Context, req transfer.InitiateRequest) (*domain.Transfer, error) {
	m.initiated = &req
	return m.transfer, m.err
}

func (m *mockTransferService) GetForCustomer(_ context.Context, txRef string, _ uuid.UUID) (*domain.Transfer, error) {
	if m.transfer != nil && m.transfer.TxRef == txRef {
		return m.transfer, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockTransferService) GetComplianceSteps(_ context.Context, _ string) ([]domain.ComplianceStepResult, error) {
	return nil, nil
}

func (m *mockTransferService) List(_ context.Context, _ transfer.ListRequest) ([]domain.Transfer, int, error) {
	if m.transfer == nil {
		return nil, 0, nil
	}
	return []domain.Transfer{*m.transfer}, 1, nil
}

func (m *mockTransferService) AttemptAdvance(_ context.Context, _ string, _ transfer.AdvanceInput) (*domain.Transfer, error) {
	return m.transfer, m.advanceErr
}

func (m *mockTransferService) ResendOTP(_ context.Context, _ string) error {
	return m.err
}

func (m *mockTransferService) Cancel(_ context.Context, _ string) (*domain.Transfer, error) {
	return m.transfer, m.cancelErr
}

func pendingTransfer() *domain.Transfer {
	return &domain.Transfer{
		TxRef:     "TX-20260101000000-TEST000001",
		AccountID: uuid.New(),
		Direction: domain.DirectionDebit,
		Amount:    10_000,
		FeeAmount: 10,
		FeeMode:   domain.FeeModeSHA,
		Currency:  domain.CurrencyUSD,
		Region:    domain.RegionLocal,
		Status:    domain.TransferStatusPending,
		Counterparty: domain.Counterparty{
			HolderName:    "Ama Serwaa",
			Institution:   "First Continental",
			AccountNumber: "0011223344",
		},
		CreatedAt: time.Now().UTC(),
	}
}

func authedRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := auth.ContextWithCustomerID(req.Context(), uuid.New())
	return req.WithContext(ctx)
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestTransferCreate_Validation(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{
			name:      "missing currency",
			body:      `{"amount":1000,"region":"local","counterparty":{"holder_name":"A","institution":"B","account_number":"C"}}`,
			wantField: "currency",
		},
		{
			name:      "bad currency",
			body:      `{"currency":"XXX","amount":1000,"region":"local","counterparty":{"holder_name":"A","institution":"B","account_number":"C"}}`,
			wantField: "currency",
		},
		{
			name:      "zero amount",
			body:      `{"currency":"USD","amount":0,"region":"local","counterparty":{"holder_name":"A","institution":"B","account_number":"C"}}`,
			wantField: "amount",
		},
		{
			name:      "bad region",
			body:      `{"currency":"USD","amount":1000,"region":"interstellar","counterparty":{"holder_name":"A","institution":"B","account_number":"C"}}`,
			wantField: "region",
		},
		{
			name:      "bad fee mode",
			body:      `{"currency":"USD","amount":1000,"region":"local","fee_mode":"ALL","counterparty":{"holder_name":"A","institution":"B","account_number":"C"}}`,
			wantField: "fee_mode",
		},
		{
			name:      "no counterparty and no beneficiary",
			body:      `{"currency":"USD","amount":1000,"region":"local"}`,
			wantField: "counterparty",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewTransferHandler(&mockTransferService{})
			rec := httptest.NewRecorder()

			h.Create(rec, authedRequest(http.MethodPost, "/api/v1/transfers", tc.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, "VALIDATION_FAILED", resp.Error.Code)
			assert.Contains(t, rec.Body.String(), tc.wantField)
		})
	}
}

func TestTransferCreate_Success(t *testing.T) {
	mock := &mockTransferService{transfer: pendingTransfer()}
	h := NewTransferHandler(mock)
	rec := httptest.NewRecorder()

	body := `{"currency":"USD","amount":10000,"region":"local","counterparty":{"holder_name":"Ama Serwaa","institution":"First Continental","account_number":"0011223344"}}`
	req := authedRequest(http.MethodPost, "/api/v1/transfers", body)
	req.Header.Set("Idempotency-Key", "key-123")

	h.Create(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/api/v1/transfers/TX-20260101000000-TEST000001", rec.Header().Get("Location"))

	require.NotNil(t, mock.initiated)
	assert.Equal(t, "key-123", mock.initiated.IdempotencyKey)
	assert.Equal(t, int64(10000), mock.initiated.Amount)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
}

func TestTransferCreate_DomainErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"insufficient funds", domain.ErrInsufficientFunds, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
		{"transfers disabled", domain.ErrTransferDisabled, http.StatusForbidden, "TRANSFER_DISABLED"},
		{"bad counterparty", domain.ErrInvalidCounterparty, http.StatusBadRequest, "INVALID_COUNTERPARTY"},
		{"duplicate request", domain.ErrDuplicateRequest, http.StatusConflict, "DUPLICATE_REQUEST"},
	}

	body := `{"currency":"USD","amount":10000,"region":"local","counterparty":{"holder_name":"A","institution":"B","account_number":"C"}}`

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewTransferHandler(&mockTransferService{err: tc.err})
			rec := httptest.NewRecorder()

			h.Create(rec, authedRequest(http.MethodPost, "/api/v1/transfers", body))

			assert.Equal(t, tc.wantStatus, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.wantCode, resp.Error.Code)
		})
	}
}

func TestTransferAdvance_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"code mismatch", domain.ErrCodeMismatch, http.StatusUnprocessableEntity, "CODE_MISMATCH"},
		{"challenge expired", domain.ErrChallengeExpired, http.StatusUnprocessableEntity, "CHALLENGE_EXPIRED"},
		{"challenge exhausted", domain.ErrChallengeExhausted, http.StatusUnprocessableEntity, "CHALLENGE_EXHAUSTED"},
		{"unknown step", domain.ErrUnknownStep, http.StatusBadRequest, "UNKNOWN_STEP"},
		{"already finalized", domain.ErrAlreadyFinalized, http.StatusConflict, "ALREADY_FINALIZED"},
		{"compliance timeout", domain.ErrComplianceTimeout, http.StatusUnprocessableEntity, "COMPLIANCE_TIMEOUT"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := pendingTransfer()
			h := NewTransferHandler(&mockTransferService{transfer: tr, advanceErr: tc.err})
			rec := httptest.NewRecorder()

			req := authedRequest(http.MethodPost, "/api/v1/transfers/"+tr.TxRef+"/advance", `{"code":"123456"}`)
			req.SetPathValue("txRef", tr.TxRef)

			h.Advance(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.wantCode, resp.Error.Code)
		})
	}
}

func TestTransferGet_UnknownRefIs404(t *testing.T) {
	h := NewTransferHandler(&mockTransferService{})
	rec := httptest.NewRecorder()

	req := authedRequest(http.MethodGet, "/api/v1/transfers/TX-NOPE", "")
	req.SetPathValue("txRef", "TX-NOPE")

	h.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransferCreate_Unauthenticated(t *testing.T) {
	h := NewTransferHandler(&mockTransferService{})
	rec := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(`{}`))
	h.Create(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
