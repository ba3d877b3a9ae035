package domain

import "time"

// ComplianceStep names one gate in the international settlement chain. Steps
// have no ordering between them; all must complete before settlement.
type ComplianceStep string

const (
	StepCoreOrigination       ComplianceStep = "core_origination"
	StepMonetaryClearance     ComplianceStep = "monetary_clearance"
	StepExternalSignature     ComplianceStep = "external_signature"
	StepDigitalCompliance     ComplianceStep = "digital_compliance"
	StepTaxAudit              ComplianceStep = "tax_audit"
	StepTransferAuthorization ComplianceStep = "transfer_authorization"
)

// RequiredComplianceSteps returns the full chain, in seed order.
func RequiredComplianceSteps() []ComplianceStep {
	return []ComplianceStep{
		StepCoreOrigination,
		StepMonetaryClearance,
		StepExternalSignature,
		StepDigitalCompliance,
		StepTaxAudit,
		StepTransferAuthorization,
	}
}

func (s ComplianceStep) IsValid() bool {
	for _, known := range RequiredComplianceSteps() {
		if s == known {
			return true
		}
	}
	return false
}

type ComplianceStepResult struct {
	TxRef       string
	Step        ComplianceStep
	Completed   bool
	Actor       *string
	CompletedAt *time.Time
}
