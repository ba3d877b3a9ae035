package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransferDirection string

const (
	DirectionDebit  TransferDirection = "debit"
	DirectionCredit TransferDirection = "credit"
)

type TransferRegion string

const (
	RegionLocal         TransferRegion = "local"
	RegionInternational TransferRegion = "international"
)

func (r TransferRegion) IsValid() bool {
	return r == RegionLocal || r == RegionInternational
}

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusSuccess   TransferStatus = "success"
	TransferStatusFailed    TransferStatus = "failed"
	TransferStatusCancelled TransferStatus = "cancelled"
)

// IsTerminal reports whether no further transition is permitted.
func (s TransferStatus) IsTerminal() bool {
	return s == TransferStatusSuccess || s == TransferStatusFailed || s == TransferStatusCancelled
}

// FeeMode is the fee-allocation convention: SHA shares the fee with the
// counterparty (taken from proceeds), OUR charges the sender on top, BEN
// charges the beneficiary.
type FeeMode string

const (
	FeeModeSHA FeeMode = "SHA"
	FeeModeOUR FeeMode = "OUR"
	FeeModeBEN FeeMode = "BEN"
)

func (m FeeMode) IsValid() bool {
	return m == FeeModeSHA || m == FeeModeOUR || m == FeeModeBEN
}

// Counterparty describes the other side of a transfer. RoutingCode carries
// the SWIFT/BIC or local routing number; Jurisdiction is required for
// international transfers only.
type Counterparty struct {
	HolderName    string
	Institution   string
	AccountNumber string
	RoutingCode   *string
	Branch        *string
	Jurisdiction  *string
}

// Transfer is the permanent audit record of one movement of money. TxRef is
// the primary key and the join key for every satellite record; it never
// changes once assigned. Rows are never deleted.
type Transfer struct {
	TxRef          string
	AccountID      uuid.UUID
	Direction      TransferDirection
	Amount         int64
	FeeAmount      int64
	FeeMode        FeeMode
	Currency       Currency
	Region         TransferRegion
	Status         TransferStatus
	Counterparty   Counterparty
	Memo           *string
	FailureReason  *string
	IdempotencyKey *string
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// DebitTotal is the amount earmarked against the sender's balance: the
// principal plus, under OUR allocation, the fee charged on top.
func (t *Transfer) DebitTotal() int64 {
	if t.FeeMode == FeeModeOUR {
		return t.Amount + t.FeeAmount
	}
	return t.Amount
}

// CreditTotal is the amount actually credited for an inbound record: the
// principal less the fee when the beneficiary bears it.
func (t *Transfer) CreditTotal() int64 {
	if t.FeeMode == FeeModeBEN {
		return t.Amount - t.FeeAmount
	}
	return t.Amount
}

// TransferClassification records the same physical movement from the
// counterparty's perspective, so either ledger can query it without a second
// transfer row. Created in the same transaction as the Transfer.
type TransferClassification struct {
	TxRef             string
	CounterpartyEntry TransferDirection
	CreatedAt         time.Time
}

// OppositeDirection gives the counterparty-side entry for a transfer.
func OppositeDirection(d TransferDirection) TransferDirection {
	if d == DirectionDebit {
		return DirectionCredit
	}
	return DirectionDebit
}
