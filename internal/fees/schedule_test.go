package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwabena-osei/vaultcore/internal/domain"
)

func TestFeeFor(t *testing.T) {
	sched := NewSchedule(0.001, 0.0125)

	tests := []struct {
		name    string
		amount  int64
		region  domain.TransferRegion
		want    int64
		wantErr error
	}{
		{name: "local fee", amount: 50_000, region: domain.RegionLocal, want: 50},
		{name: "international fee", amount: 50_000, region: domain.RegionInternational, want: 625},
		{name: "fractional cents round down", amount: 1999, region: domain.RegionLocal, want: 1},
		{name: "small amount rounds to zero", amount: 100, region: domain.RegionLocal, want: 0},
		{name: "zero amount rejected", amount: 0, region: domain.RegionLocal, wantErr: domain.ErrInvalidAmount},
		{name: "negative amount rejected", amount: -500, region: domain.RegionInternational, wantErr: domain.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, err := sched.FeeFor(tt.amount, tt.region)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, fee)
		})
	}
}

func TestFeeForUnknownRegion(t *testing.T) {
	sched := NewSchedule(0.001, 0.0125)

	_, err := sched.FeeFor(1000, domain.TransferRegion("galactic"))
	require.Error(t, err)
}
