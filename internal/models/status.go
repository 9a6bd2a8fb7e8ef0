package models

import "fmt"

// ClaimStatus is derived from a claim's allocations; it is never set directly.
type ClaimStatus string

const (
	ClaimOpen          ClaimStatus = "OPEN"
	ClaimPartiallyPaid ClaimStatus = "PARTIALLY_PAID"
	ClaimPaid          ClaimStatus = "PAID"
)

// ClaimKind classifies what a claim was raised for.
type ClaimKind string

const (
	KindMembershipFee ClaimKind = "MEMBERSHIP_FEE"
	KindEventFee      ClaimKind = "EVENT_FEE"
	KindAdHoc         ClaimKind = "AD_HOC"
)

// Valid reports whether k is a known claim kind.
func (k ClaimKind) Valid() bool {
	switch k {
	case KindMembershipFee, KindEventFee, KindAdHoc:
		return true
	}
	return false
}

// PaymentStatus has a single state: a payment is a fact, not a balance.
type PaymentStatus string

const PaymentConfirmed PaymentStatus = "CONFIRMED"

// PaymentDirection tells whether money came in from or went out to a member.
type PaymentDirection string

const (
	DirectionIn  PaymentDirection = "IN"
	DirectionOut PaymentDirection = "OUT"
)

// PaymentMethod is how the money moved.
type PaymentMethod string

const (
	MethodTransfer    PaymentMethod = "TRANSFER"
	MethodCash        PaymentMethod = "CASH"
	MethodDirectDebit PaymentMethod = "DIRECT_DEBIT"
	MethodOther       PaymentMethod = "OTHER"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodTransfer, MethodCash, MethodDirectDebit, MethodOther:
		return true
	}
	return false
}

// MatchState tracks an imported bank transaction through reconciliation.
// Transitions: UNMATCHED -> MATCHED, UNMATCHED -> SKIPPED.
type MatchState string

const (
	MatchUnmatched MatchState = "UNMATCHED"
	MatchMatched   MatchState = "MATCHED"
	MatchSkipped   MatchState = "SKIPPED"
)

// PassThroughStatus is OFFEN until the outflow leg has been posted.
type PassThroughStatus string

const (
	PassThroughOpen    PassThroughStatus = "OFFEN"
	PassThroughSettled PassThroughStatus = "ERLEDIGT"
)

// Column is one of the four amount columns of the cash book.
type Column string

const (
	ColumnCashIn  Column = "CASH_IN"
	ColumnCashOut Column = "CASH_OUT"
	ColumnBankIn  Column = "BANK_IN"
	ColumnBankOut Column = "BANK_OUT"
)

// ParseColumn validates a column name.
func ParseColumn(s string) (Column, error) {
	c := Column(s)
	switch c {
	case ColumnCashIn, ColumnCashOut, ColumnBankIn, ColumnBankOut:
		return c, nil
	}
	return "", fmt.Errorf("unknown cash book column %q", s)
}

// IsInflow reports whether the column records money coming in.
func (c Column) IsInflow() bool {
	return c == ColumnCashIn || c == ColumnBankIn
}

// IsCash reports whether the column belongs to the cash side of the book.
func (c Column) IsCash() bool {
	return c == ColumnCashIn || c == ColumnCashOut
}

// Medium is where money is held: the cash box or the bank.
type Medium string

const (
	MediumCash Medium = "CASH"
	MediumBank Medium = "BANK"
)

// InColumn returns the inflow column for the medium.
func (m Medium) InColumn() Column {
	if m == MediumCash {
		return ColumnCashIn
	}
	return ColumnBankIn
}

// OutColumn returns the outflow column for the medium.
func (m Medium) OutColumn() Column {
	if m == MediumCash {
		return ColumnCashOut
	}
	return ColumnBankOut
}

// Valid reports whether m is a known medium.
func (m Medium) Valid() bool {
	return m == MediumCash || m == MediumBank
}
