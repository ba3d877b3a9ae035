package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kwabena-osei/vaultcore/internal/auth"
	"github.com/kwabena-osei/vaultcore/internal/domain"
	"github.com/kwabena-osei/vaultcore/internal/logging"
	"github.com/kwabena-osei/vaultcore/internal/service/transfer"
)

type transferService interface {
	Initiate(ctx context.Context, req transfer.InitiateRequest) (*domain.Transfer, error)
	GetForCustomer(ctx context.Context, txRef string, customerID uuid.UUID) (*domain.Transfer, error)
	GetComplianceSteps(ctx context.Context, txRef string) ([]domain.ComplianceStepResult, error)
	List(ctx context.Context, req transfer.ListRequest) ([]domain.Transfer, int, error)
	AttemptAdvance(ctx context.Context, txRef string, input transfer.AdvanceInput) (*domain.Transfer, error)
	ResendOTP(ctx context.Context, txRef string) error
	Cancel(ctx context.Context, txRef string) (*domain.Transfer, error)
}

type TransferHandler struct {
	transfers transferService
}

func NewTransferHandler(transfers transferService) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

type counterpartyRequest struct {
	HolderName    string  `json:"holder_name"`
	Institution   string  `json:"institution"`
	AccountNumber string  `json:"account_number"`
	RoutingCode   *string `json:"routing_code,omitempty"`
	Branch        *string `json:"branch,omitempty"`
	Jurisdiction  *string `json:"jurisdiction,omitempty"`
}

type createTransferRequest struct {
	Currency      string               `json:"currency"`
	Amount        int64                `json:"amount"`
	Region        string               `json:"region"`
	FeeMode       string               `json:"fee_mode"`
	BeneficiaryID *uuid.UUID           `json:"beneficiary_id,omitempty"`
	Counterparty  *counterpartyRequest `json:"counterparty,omitempty"`
	Memo          *string              `json:"memo,omitempty"`
}

func (r createTransferRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be USD, EUR, GBP, or NGN"})
	}

	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}

	if r.Region == "" {
		errs = append(errs, FieldError{Field: "region", Message: "required"})
	} else if !domain.TransferRegion(r.Region).IsValid() {
		errs = append(errs, FieldError{Field: "region", Message: "must be local or international"})
	}

	if r.FeeMode != "" && !domain.FeeMode(r.FeeMode).IsValid() {
		errs = append(errs, FieldError{Field: "fee_mode", Message: "must be SHA, OUR, or BEN"})
	}

	if r.BeneficiaryID == nil && r.Counterparty == nil {
		errs = append(errs, FieldError{Field: "counterparty", Message: "counterparty or beneficiary_id required"})
	}

	return errs
}

type advanceTransferRequest struct {
	Code  string `json:"code,omitempty"`
	Step  string `json:"step,omitempty"`
	Actor string `json:"actor,omitempty"`
}

type counterpartyDTO struct {
	HolderName    string  `json:"holder_name"`
	Institution   string  `json:"institution"`
	AccountNumber string  `json:"account_number"`
	RoutingCode   *string `json:"routing_code,omitempty"`
	Branch        *string `json:"branch,omitempty"`
	Jurisdiction  *string `json:"jurisdiction,omitempty"`
}

type transferDTO struct {
	TxRef         string          `json:"tx_ref"`
	AccountID     uuid.UUID       `json:"account_id"`
	Direction     string          `json:"direction"`
	Amount        int64           `json:"amount"`
	FeeAmount     int64           `json:"fee_amount"`
	FeeMode       string          `json:"fee_mode"`
	Currency      string          `json:"currency"`
	Region        string          `json:"region"`
	Status        string          `json:"status"`
	Counterparty  counterpartyDTO `json:"counterparty"`
	Memo          *string         `json:"memo,omitempty"`
	FailureReason *string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

type complianceStepDTO struct {
	Step        string     `json:"step"`
	Completed   bool       `json:"completed"`
	Actor       *string    `json:"actor,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func toTransferDTO(t *domain.Transfer) transferDTO {
	return transferDTO{
		TxRef:     t.TxRef,
		AccountID: t.AccountID,
		Direction: string(t.Direction),
		Amount:    t.Amount,
		FeeAmount: t.FeeAmount,
		FeeMode:   string(t.FeeMode),
		Currency:  string(t.Currency),
		Region:    string(t.Region),
		Status:    string(t.Status),
		Counterparty: counterpartyDTO{
			HolderName:    t.Counterparty.HolderName,
			Institution:   t.Counterparty.Institution,
			AccountNumber: t.Counterparty.AccountNumber,
			RoutingCode:   t.Counterparty.RoutingCode,
			Branch:        t.Counterparty.Branch,
			Jurisdiction:  t.Counterparty.Jurisdiction,
		},
		Memo:          t.Memo,
		FailureReason: t.FailureReason,
		CreatedAt:     t.CreatedAt,
		CompletedAt:   t.CompletedAt,
	}
}

func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	customerID, ok := auth.CustomerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	initReq := transfer.InitiateRequest{
		CustomerID:     customerID,
		Currency:       domain.Currency(req.Currency),
		Amount:         req.Amount,
		Region:         domain.TransferRegion(req.Region),
		FeeMode:        domain.FeeMode(req.FeeMode),
		BeneficiaryID:  req.BeneficiaryID,
		Memo:           req.Memo,
		IdempotencyKey: idempotencyKey,
	}
	if req.Counterparty != nil {
		initReq.Counterparty = domain.Counterparty{
			HolderName:    req.Counterparty.HolderName,
			Institution:   req.Counterparty.Institution,
			AccountNumber: req.Counterparty.AccountNumber,
			RoutingCode:   req.Counterparty.RoutingCode,
			Branch:        req.Counterparty.Branch,
			Jurisdiction:  req.Counterparty.Jurisdiction,
		}
	}

	t, err := h.transfers.Initiate(r.Context(), initReq)
	if err != nil {
		log.Warn("transfer initiation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/transfers/%s", t.TxRef))
	RespondSuccess(w, http.StatusCreated, toTransferDTO(t))
}

func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	customerID, ok := auth.CustomerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	txRef := r.PathValue("txRef")

	t, err := h.transfers.GetForCustomer(r.Context(), txRef, customerID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("transfer lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dto := struct {
		transferDTO
		ComplianceSteps []complianceStepDTO `json:"compliance_steps,omitempty"`
	}{transferDTO: toTransferDTO(t)}

	if t.Region == domain.RegionInternational {
		steps, err := h.transfers.GetComplianceSteps(r.Context(), txRef)
		if err != nil {
			logging.FromContext(r.Context()).Warn("compliance step lookup failed", "error", err)
			RespondDomainError(w, err)
			return
		}
		for _, s := range steps {
			dto.ComplianceSteps = append(dto.ComplianceSteps, complianceStepDTO{
				Step:        string(s.Step),
				Completed:   s.Completed,
				Actor:       s.Actor,
				CompletedAt: s.CompletedAt,
			})
		}
	}

	RespondSuccess(w, http.StatusOK, dto)
}

func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
	customerID, ok := auth.CustomerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	q := r.URL.Query()

	req := transfer.ListRequest{
		CustomerID: customerID,
		Currency:   domain.Currency(q.Get("currency")),
		Status:     domain.TransferStatus(q.Get("status")),
		Region:     domain.TransferRegion(q.Get("region")),
		Search:     q.Get("q"),
	}

	if v := q.Get("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			RespondValidationError(w, []FieldError{{Field: "from", Message: "must be RFC3339"}})
			return
		}
		req.From = &ts
	}
	if v := q.Get("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			RespondValidationError(w, []FieldError{{Field: "to", Message: "must be RFC3339"}})
			return
		}
		req.To = &ts
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			RespondValidationError(w, []FieldError{{Field: "limit", Message: "must be a non-negative integer"}})
			return
		}
		req.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			RespondValidationError(w, []FieldError{{Field: "offset", Message: "must be a non-negative integer"}})
			return
		}
		req.Offset = n
	}

	transfers, total, err := h.transfers.List(r.Context(), req)
	if err != nil {
		logging.FromContext(r.Context()).Warn("transfer list failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]transferDTO, 0, len(transfers))
	for i := range transfers {
		dtos = append(dtos, toTransferDTO(&transfers[i]))
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"transfers": dtos,
		"total":     total,
	})
}

func (h *TransferHandler) Advance(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	customerID, ok := auth.CustomerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	txRef := r.PathValue("txRef")

	// Ownership before mutation.
	if _, err := h.transfers.GetForCustomer(r.Context(), txRef, customerID); err != nil {
		RespondDomainError(w, err)
		return
	}

	var req advanceTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	t, err := h.transfers.AttemptAdvance(r.Context(), txRef, transfer.AdvanceInput{
		Code:  req.Code,
		Step:  domain.ComplianceStep(req.Step),
		Actor: req.Actor,
	})
	if err != nil {
		log.Warn("transfer advance failed", "tx_ref", txRef, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransferDTO(t))
}

func (h *TransferHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	customerID, ok := auth.CustomerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	txRef := r.PathValue("txRef")

	if _, err := h.transfers.GetForCustomer(r.Context(), txRef, customerID); err != nil {
		RespondDomainError(w, err)
		return
	}

	if err := h.transfers.ResendOTP(r.Context(), txRef); err != nil {
		logging.FromContext(r.Context()).Warn("otp resend failed", "tx_ref", txRef, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusAccepted, map[string]string{"tx_ref": txRef})
}

func (h *TransferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	customerID, ok := auth.CustomerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	txRef := r.PathValue("txRef")

	if _, err := h.transfers.GetForCustomer(r.Context(), txRef, customerID); err != nil {
		RespondDomainError(w, err)
		return
	}

	t, err := h.transfers.Cancel(r.Context(), txRef)
	if err != nil {
		logging.FromContext(r.Context()).Warn("transfer cancel failed", "tx_ref", txRef, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransferDTO(t))
}
