package domain

import (
	"time"

	"github.com/google/uuid"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// Customer carries the capability flags checked at transfer initiation. The
// flags are administrative kill-switches scoped to one customer; the global
// region switches live in configuration.
type Customer struct {
	ID                       uuid.UUID
	Email                    string
	Name                     string
	Verification             VerificationStatus
	CanTransfer              bool
	CanLocalTransfer         bool
	CanInternationalTransfer bool
	CreatedAt                time.Time
}

// PermitsRegion reports whether this customer may originate a transfer in
// the given region. The master flag gates both regional flags.
func (c *Customer) PermitsRegion(region TransferRegion) bool {
	if !c.CanTransfer || c.Verification != VerificationVerified {
		return false
	}
	if region == RegionLocal {
		return c.CanLocalTransfer
	}
	return c.CanInternationalTransfer
}
