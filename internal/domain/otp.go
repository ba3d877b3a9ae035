package domain

import "time"

// OtpChallenge gates a local transfer. Only the bcrypt hash of the code is
// stored; the plaintext goes out once through the notification outbox.
// The row is deleted on successful verification.
type OtpChallenge struct {
	TxRef             string
	CodeHash          string
	ExpiresAt         time.Time
	AttemptsRemaining int
	CreatedAt         time.Time
}

func (c *OtpChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
