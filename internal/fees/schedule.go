// Package fees computes transfer fees from percentage schedules. All math is
// done in decimal and rounded down to whole minor units so the ledger never
// sees fractional cents.
package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kwabena-osei/vaultcore/internal/domain"
)

type Schedule struct {
	localPct         decimal.Decimal
	internationalPct decimal.Decimal
}

func NewSchedule(localPct, internationalPct float64) *Schedule {
	return &Schedule{
		localPct:         decimal.NewFromFloat(localPct),
		internationalPct: decimal.NewFromFloat(internationalPct),
	}
}

// FeeFor returns the fee in minor units for a transfer of amount in the given
// region. The fee-allocation mode decides who bears it, not how much it is.
func (s *Schedule) FeeFor(amount int64, region domain.TransferRegion) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("FeeFor: %w", domain.ErrInvalidAmount)
	}

	var pct decimal.Decimal
	switch region {
	case domain.RegionLocal:
		pct = s.localPct
	case domain.RegionInternational:
		pct = s.internationalPct
	default:
		return 0, fmt.Errorf("FeeFor: unknown region %q", region)
	}

	fee := decimal.NewFromInt(amount).Mul(pct).Floor()
	return fee.IntPart(), nil
}
