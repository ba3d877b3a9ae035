package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TransferEventType string

const (
	TransferEventOtpIssued TransferEventType = "otp_issued"
	TransferEventFinalized TransferEventType = "finalized"
	TransferEventFailed    TransferEventType = "failed"
	TransferEventCancelled TransferEventType = "cancelled"
)

type TransferEventStatus string

const (
	TransferEventStatusPending    TransferEventStatus = "pending"
	TransferEventStatusDispatched TransferEventStatus = "dispatched"
	TransferEventStatusFailed     TransferEventStatus = "failed"
)

// TransferEvent is an outbox row consumed by the notification dispatcher.
// Rows are written in the same transaction as the ledger mutation they
// describe; delivery is best-effort and never blocks the ledger.
type TransferEvent struct {
	ID          uuid.UUID
	TxRef       string
	EventType   TransferEventType
	Payload     json.RawMessage
	Status      TransferEventStatus
	Attempts    int
	LastAttempt *time.Time
	CreatedAt   time.Time
}
