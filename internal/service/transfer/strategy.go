package transfer

import (
	"context"
	"fmt"

	"github.com/kwabena-osei/vaultcore/internal/domain"
)

// AdvanceInput is the single payload for advancing either authorization
// path: the OTP variant reads Code, the compliance variant reads Step/Actor.
type AdvanceInput struct {
	Code  string
	Step  domain.ComplianceStep
	Actor string
}

// Strategy is the polymorphic authorization path. Both variants expose one
// contract; the caller never branches on region itself.
type Strategy interface {
	AttemptAdvance(ctx context.Context, txRef string, input AdvanceInput) (*domain.Transfer, error)
}

type otpStrategy struct {
	svc *Service
}

func (st otpStrategy) AttemptAdvance(ctx context.Context, txRef string, input AdvanceInput) (*domain.Transfer, error) {
	if input.Code == "" {
		return nil, fmt.Errorf("AttemptAdvance: otp code required: %w", domain.ErrCodeMismatch)
	}
	return st.svc.VerifyOTP(ctx, txRef, input.Code)
}

type complianceStrategy struct {
	svc *Service
}

func (st complianceStrategy) AttemptAdvance(ctx context.Context, txRef string, input AdvanceInput) (*domain.Transfer, error) {
	return st.svc.MarkStepComplete(ctx, txRef, input.Step, input.Actor)
}

func (s *Service) strategyFor(region domain.TransferRegion) Strategy {
	if region == domain.RegionLocal {
		return otpStrategy{svc: s}
	}
	return complianceStrategy{svc: s}
}

// AttemptAdvance moves a pending transfer one step along its authorization
// path, whichever path that is.
func (s *Service) AttemptAdvance(ctx context.Context, txRef string, input AdvanceInput) (*domain.Transfer, error) {
	t, err := s.transfers.GetByTxRef(ctx, txRef)
	if err != nil {
		return nil, fmt.Errorf("AttemptAdvance: %w", err)
	}
	return s.strategyFor(t.Region).AttemptAdvance(ctx, txRef, input)
}
