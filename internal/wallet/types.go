package wallet

import (
	"context"

	"github.com/google/uuid"
)

// Ledger is the boundary to the business wallet service. Budget locking
// reserves funds here before a campaign is allowed to spend.
type Ledger interface {
	// Lock reserves amountCents against the business balance and returns
	// the wallet-side lock identifier.
	Lock(ctx context.Context, params LockParams) (*Lock, error)
	// Release frees a previously created lock.
	Release(ctx context.Context, lockID uuid.UUID) error
	// Debit settles spend against an active lock.
	Debit(ctx context.Context, params DebitParams) error
	// GetAvailableBalance returns the spendable balance in cents.
	GetAvailableBalance(ctx context.Context, businessID uuid.UUID) (int64, error)
}

// LockParams describes a fund reservation request.
type LockParams struct {
	BusinessID  uuid.UUID
	AmountCents int64
	Reference   string
}

// Lock is the wallet-side view of a fund reservation.
type Lock struct {
	ID          uuid.UUID `json:"id"`
	BusinessID  uuid.UUID `json:"business_id"`
	AmountCents int64     `json:"amount_cents"`
	Reference   string    `json:"reference"`
}

// DebitParams settles spend against a lock.
type DebitParams struct {
	LockID      uuid.UUID
	AmountCents int64
	Reference   string
}
