package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwabena-osei/vaultcore/internal/config"
	"github.com/kwabena-osei/vaultcore/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestValidateCounterparty(t *testing.T) {
	tests := []struct {
		name    string
		cp      domain.Counterparty
		region  domain.TransferRegion
		wantErr error
	}{
		{
			name: "valid local",
			cp: domain.Counterparty{
				HolderName:    "Ama Serwaa",
				Institution:   "First Continental",
				AccountNumber: "0011223344",
			},
			region: domain.RegionLocal,
		},
		{
			name: "valid international",
			cp: domain.Counterparty{
				HolderName:    "Jean Dupont",
				Institution:   "Banque du Nord",
				AccountNumber: "FR7630006000011234567890189",
				RoutingCode:   strPtr("BNORDFRPP"),
				Jurisdiction:  strPtr("FR"),
			},
			region: domain.RegionInternational,
		},
		{
			name: "missing holder name",
			cp: domain.Counterparty{
				Institution:   "First Continental",
				AccountNumber: "0011223344",
			},
			region:  domain.RegionLocal,
			wantErr: domain.ErrInvalidCounterparty,
		},
		{
			name: "missing institution",
			cp: domain.Counterparty{
				HolderName:    "Ama Serwaa",
				AccountNumber: "0011223344",
			},
			region:  domain.RegionLocal,
			wantErr: domain.ErrInvalidCounterparty,
		},
		{
			name: "missing account number",
			cp: domain.Counterparty{
				HolderName:  "Ama Serwaa",
				Institution: "First Continental",
			},
			region:  domain.RegionLocal,
			wantErr: domain.ErrInvalidCounterparty,
		},
		{
			name: "international without jurisdiction",
			cp: domain.Counterparty{
				HolderName:    "Jean Dupont",
				Institution:   "Banque du Nord",
				AccountNumber: "FR7630006000011234567890189",
				RoutingCode:   strPtr("BNORDFRPP"),
			},
			region:  domain.RegionInternational,
			wantErr: domain.ErrInvalidCounterparty,
		},
		{
			name: "international without routing code",
			cp: domain.Counterparty{
				HolderName:    "Jean Dupont",
				Institution:   "Banque du Nord",
				AccountNumber: "FR7630006000011234567890189",
				Jurisdiction:  strPtr("FR"),
			},
			region:  domain.RegionInternational,
			wantErr: domain.ErrInvalidCounterparty,
		},
		{
			name: "international with empty jurisdiction string",
			cp: domain.Counterparty{
				HolderName:    "Jean Dupont",
				Institution:   "Banque du Nord",
				AccountNumber: "FR7630006000011234567890189",
				RoutingCode:   strPtr("BNORDFRPP"),
				Jurisdiction:  strPtr(""),
			},
			region:  domain.RegionInternational,
			wantErr: domain.ErrInvalidCounterparty,
		},
		{
			// Local records do not need routing details.
			name: "local without routing code is fine",
			cp: domain.Counterparty{
				HolderName:    "Ama Serwaa",
				Institution:   "First Continental",
				AccountNumber: "0011223344",
			},
			region: domain.RegionLocal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCounterparty(tt.cp, tt.region)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRegionEnabled(t *testing.T) {
	sw := config.Switches{Local: true, International: false}

	assert.True(t, regionEnabled(sw, domain.RegionLocal))
	assert.False(t, regionEnabled(sw, domain.RegionInternational))
	assert.False(t, regionEnabled(sw, domain.TransferRegion("galactic")))
}

func TestCounterpartyFromBeneficiary(t *testing.T) {
	b := &domain.Beneficiary{
		HolderName:    "Saved Holder",
		Institution:   "Saved Bank",
		AccountNumber: "111222333",
		RoutingCode:   strPtr("SAVEDBIC"),
		Jurisdiction:  strPtr("DE"),
	}

	t.Run("no overrides uses saved template", func(t *testing.T) {
		cp := counterpartyFromBeneficiary(b, domain.Counterparty{})
		assert.Equal(t, "Saved Holder", cp.HolderName)
		assert.Equal(t, "Saved Bank", cp.Institution)
		assert.Equal(t, "111222333", cp.AccountNumber)
		require.NotNil(t, cp.RoutingCode)
		assert.Equal(t, "SAVEDBIC", *cp.RoutingCode)
	})

	t.Run("explicit fields win over template", func(t *testing.T) {
		cp := counterpartyFromBeneficiary(b, domain.Counterparty{
			HolderName:   "Override Holder",
			Jurisdiction: strPtr("FR"),
		})
		assert.Equal(t, "Override Holder", cp.HolderName)
		assert.Equal(t, "Saved Bank", cp.Institution)
		require.NotNil(t, cp.Jurisdiction)
		assert.Equal(t, "FR", *cp.Jurisdiction)
	})
}

func TestStrategyFor(t *testing.T) {
	svc := &Service{}

	_, isOtp := svc.strategyFor(domain.RegionLocal).(otpStrategy)
	assert.True(t, isOtp)

	_, isCompliance := svc.strategyFor(domain.RegionInternational).(complianceStrategy)
	assert.True(t, isCompliance)
}

func TestDebitAndCreditTotals(t *testing.T) {
	base := domain.Transfer{Amount: 10_000, FeeAmount: 125}

	sha := base
	sha.FeeMode = domain.FeeModeSHA
	assert.Equal(t, int64(10_000), sha.DebitTotal())
	assert.Equal(t, int64(10_000), sha.CreditTotal())

	our := base
	our.FeeMode = domain.FeeModeOUR
	assert.Equal(t, int64(10_125), our.DebitTotal())
	assert.Equal(t, int64(10_000), our.CreditTotal())

	ben := base
	ben.FeeMode = domain.FeeModeBEN
	assert.Equal(t, int64(10_000), ben.DebitTotal())
	assert.Equal(t, int64(9_875), ben.CreditTotal())
}
