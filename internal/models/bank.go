package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Member is a member (Mitglied) as seen by the settlement engine. The member
// directory itself is maintained elsewhere.
type Member struct {
	ID            int64
	AssociationID int64
	FirstName     string
	LastName      string
	Active        bool
}

// FullName returns "First Last".
func (m *Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// BankAccount is one of the association's own accounts that statements are
// imported for.
type BankAccount struct {
	ID            int64
	AssociationID int64
	Name          string
	IBAN          string
}

// NormalizeIBAN strips spaces and upper-cases an IBAN.
func NormalizeIBAN(iban string) string {
	return strings.ToUpper(strings.Join(strings.Fields(iban), ""))
}

// StatementRow is one normalized row of a bank statement export.
type StatementRow struct {
	BookingDate time.Time

	// Amount is signed: positive is money coming in.
	Amount decimal.Decimal

	CounterpartyName string
	CounterpartyIBAN string
	RemittanceText   string
	Reference        string
}

// BankTransaction is an imported statement row (BankBuchung). Amount and
// BookingDate never change after import.
type BankTransaction struct {
	ID            int64
	AssociationID int64
	BankAccountID int64
	BookingDate   time.Time

	// Amount is signed: positive is money coming in.
	Amount decimal.Decimal

	CounterpartyName string
	CounterpartyIBAN string
	RemittanceText   string
	Reference        string

	// ImportBatch identifies the import run that created the row.
	ImportBatch string

	MatchState MatchState
	MatchRule  string
	SkipReason string

	// PaymentID and MemberID are set once the transaction is matched.
	PaymentID *int64
	MemberID  *int64

	CreatedAt time.Time
}

// IsInflow reports whether money came in.
func (t *BankTransaction) IsInflow() bool {
	return t.Amount.IsPositive()
}
