package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kwabena-osei/vaultcore/internal/auth"
	"github.com/kwabena-osei/vaultcore/internal/domain"
	"github.com/kwabena-osei/vaultcore/internal/logging"
)

type accountRepository interface {
	GetByCustomerID(ctx context.Context, customerID uuid.UUID) ([]domain.Account, error)
}

type AccountHandler struct {
	accounts accountRepository
}

func NewAccountHandler(accounts accountRepository) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type accountDTO struct {
	ID         uuid.UUID `json:"id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Currency   string    `json:"currency"`
	Balance    int64     `json:"balance"`
	Reserved   int64     `json:"reserved"`
	Available  int64     `json:"available"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

func toAccountDTO(a *domain.Account) accountDTO {
	return accountDTO{
		ID:         a.ID,
		CustomerID: a.CustomerID,
		Currency:   string(a.Currency),
		Balance:    a.Balance,
		Reserved:   a.Reserved,
		Available:  a.Available(),
		Status:     string(a.Status),
		CreatedAt:  a.CreatedAt,
	}
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	customerID, ok := auth.CustomerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	accounts, err := h.accounts.GetByCustomerID(r.Context(), customerID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list accounts", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]accountDTO, len(accounts))
	for i := range accounts {
		dtos[i] = toAccountDTO(&accounts[i])
	}

	RespondSuccess(w, http.StatusOK, dtos)
}
