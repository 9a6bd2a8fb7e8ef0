package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PassThroughItem is money received on behalf of a third party and passed
// on (Durchlaufender Posten). Both legs use the same account code and amount,
// so the item nets to zero once settled.
type PassThroughItem struct {
	ID            int64
	AssociationID int64
	AccountCode   string
	Description   string
	Amount        decimal.Decimal
	Status        PassThroughStatus

	InflowDate    time.Time
	InflowEntryID int64

	OutflowDate    *time.Time
	OutflowEntryID *int64

	CreatedAt time.Time
}

// DonationProtocol records a counted donation, e.g. the contents of a
// collection box, broken down by denomination (SpendenProtokoll).
type DonationProtocol struct {
	ID            int64
	AssociationID int64
	Date          time.Time
	Occasion      string
	TotalAmount   decimal.Decimal
	CountedBy     string

	// CashBookEntryID is the entry the donation was posted through, if any.
	CashBookEntryID *int64

	Details   []DonationDetail
	CreatedAt time.Time
}

// DonationDetail is one denomination line: Value x Count = Subtotal.
type DonationDetail struct {
	Value    decimal.Decimal
	Count    int
	Subtotal decimal.Decimal
}
