package domain

import (
	"time"

	"github.com/google/uuid"
)

// Beneficiary is a saved counterparty template. The transfer core only ever
// reads these rows; they are owned by the profile service.
type Beneficiary struct {
	ID            uuid.UUID
	CustomerID    uuid.UUID
	HolderName    string
	Institution   string
	AccountNumber string
	RoutingCode   *string
	Branch        *string
	Jurisdiction  *string
	Currency      Currency
	CreatedAt     time.Time
}
