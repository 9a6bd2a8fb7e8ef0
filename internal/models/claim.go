package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Claim is an amount a member owes the association (Forderung).
type Claim struct {
	// ID is assigned by the store.
	ID int64

	// AssociationID is the association (Verein) the claim belongs to.
	AssociationID int64

	// MemberID is the member who owes the amount.
	MemberID int64

	Kind ClaimKind

	// Amount is the owed amount; always positive.
	Amount   decimal.Decimal
	Currency string

	// Period is the billing period, if the claim covers one.
	Period *Period

	DueDate     time.Time
	Description string

	// Status caches the derivation from the claim's allocations.
	// Only the finance package writes it.
	Status ClaimStatus

	// Allocated is the sum of all allocations against the claim. It is
	// filled in by the store when the claim is read.
	Allocated decimal.Decimal

	CreatedAt time.Time

	// SettledAt is set the moment the claim becomes PAID and cleared if it
	// regresses.
	SettledAt *time.Time

	// Deleted marks a soft-deleted claim. Claims are never removed while
	// allocations reference them.
	Deleted bool
}

// Remaining is the part of the claim not yet covered by allocations.
func (c *Claim) Remaining() decimal.Decimal {
	return c.Amount.Sub(c.Allocated)
}

// IsOverdue reports whether the claim is unpaid past its due date.
// It is a view over the current state, evaluated at asOf.
func (c *Claim) IsOverdue(asOf time.Time) bool {
	return c.Status != ClaimPaid && Day(c.DueDate).Before(Day(asOf))
}

// ReferenceYear is the year printed in the claim's remittance reference.
func (c *Claim) ReferenceYear() int {
	if c.Period != nil {
		return c.Period.Year
	}
	return c.DueDate.Year()
}

// Reference returns the remittance token "F<claimID>-<year>" a member is
// asked to put on their transfer.
func (c *Claim) Reference() string {
	return fmt.Sprintf("F%d-%d", c.ID, c.ReferenceYear())
}

// Payment is a confirmed money movement between a member and the
// association (Zahlung).
type Payment struct {
	ID            int64
	AssociationID int64
	MemberID      int64

	// Amount is always positive; Direction carries the sign.
	Amount    decimal.Decimal
	Currency  string
	Direction PaymentDirection

	PaymentDate time.Time
	Method      PaymentMethod
	Reference   string

	// BankAccountID and BankTransactionID link the payment to the bank
	// statement row that funded it, if any.
	BankAccountID     *int64
	BankTransactionID *int64

	Status PaymentStatus

	// Allocated is the sum of all allocations against the payment, filled
	// in by the store when the payment is read.
	Allocated decimal.Decimal

	CreatedAt time.Time
}

// Unallocated is the part of the payment not applied to any claim.
func (p *Payment) Unallocated() decimal.Decimal {
	return p.Amount.Sub(p.Allocated)
}

// Allocation is the share of a payment applied to a claim. There is at most
// one allocation per (claim, payment) pair.
type Allocation struct {
	ID        int64
	ClaimID   int64
	PaymentID int64
	Amount    decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}
