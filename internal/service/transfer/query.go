package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kwabena-osei/vaultcore/internal/domain"
	"github.com/kwabena-osei/vaultcore/internal/repository"
)

// ListRequest is the read-only query surface consumed by the presentation
// layer. Every terminal transfer stays permanently queryable.
type ListRequest struct {
	CustomerID uuid.UUID
	Currency   domain.Currency
	Status     domain.TransferStatus
	Region     domain.TransferRegion
	From       *time.Time
	To         *time.Time
	Search     string
	Limit      int
	Offset     int
}

func (s *Service) List(ctx context.Context, req ListRequest) ([]domain.Transfer, int, error) {
	filter := repository.ListFilter{
		Status: req.Status,
		Region: req.Region,
		From:   req.From,
		To:     req.To,
		Search: req.Search,
		Limit:  req.Limit,
		Offset: req.Offset,
	}

	if req.Currency != "" {
		acct, err := s.accounts.GetByCustomerAndCurrency(ctx, req.CustomerID, req.Currency)
		if err != nil {
			return nil, 0, fmt.Errorf("List: %w", err)
		}
		filter.AccountIDs = []uuid.UUID{acct.ID}
	} else {
		// Scope to the caller's accounts; a customer can never list
		// another ledger through the shared surface.
		accounts, err := s.accounts.GetByCustomerID(ctx, req.CustomerID)
		if err != nil {
			return nil, 0, fmt.Errorf("List: %w", err)
		}
		if len(accounts) == 0 {
			return nil, 0, nil
		}
		for _, acct := range accounts {
			filter.AccountIDs = append(filter.AccountIDs, acct.ID)
		}
	}

	// One query across all wallets keeps limit and offset meaningful
	// for multi-currency customers.
	transfers, total, err := s.transfers.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	return transfers, total, nil
}
