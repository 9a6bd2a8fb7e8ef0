package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is an entry of the chart of accounts (FiBuKonto).
type Account struct {
	Code   string
	Name   string
	Active bool
}

// CashBookEntry is one line of the cash book (Kassenbuch). For a standard
// posting exactly one of the four amount columns is positive.
type CashBookEntry struct {
	ID            int64
	AssociationID int64
	Year          int

	// VoucherNumber is unique per (association, year) and runs 1, 2, 3, ...
	VoucherNumber int

	VoucherDate time.Time
	AccountCode string
	Description string

	CashIn  decimal.Decimal
	CashOut decimal.Decimal
	BankIn  decimal.Decimal
	BankOut decimal.Decimal

	MemberID          *int64
	PaymentID         *int64
	BankTransactionID *int64

	CreatedAt time.Time
}

// Column returns the column carrying the entry's amount and that amount.
func (e *CashBookEntry) Column() (Column, decimal.Decimal) {
	switch {
	case e.CashIn.IsPositive():
		return ColumnCashIn, e.CashIn
	case e.CashOut.IsPositive():
		return ColumnCashOut, e.CashOut
	case e.BankIn.IsPositive():
		return ColumnBankIn, e.BankIn
	default:
		return ColumnBankOut, e.BankOut
	}
}

// SetColumn places amount in column c and zeroes the other three.
func (e *CashBookEntry) SetColumn(c Column, amount decimal.Decimal) {
	e.CashIn, e.CashOut, e.BankIn, e.BankOut = decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	switch c {
	case ColumnCashIn:
		e.CashIn = amount
	case ColumnCashOut:
		e.CashOut = amount
	case ColumnBankIn:
		e.BankIn = amount
	case ColumnBankOut:
		e.BankOut = amount
	}
}

// EntryLinks are the optional references a cash book entry can carry.
type EntryLinks struct {
	MemberID          *int64
	PaymentID         *int64
	BankTransactionID *int64
}

// Balances are the holdings of an association at one point in time.
type Balances struct {
	Cash    decimal.Decimal
	Bank    decimal.Decimal
	Savings decimal.Decimal
}

// ColumnTotals are the summed amount columns of a set of entries.
type ColumnTotals struct {
	CashIn  decimal.Decimal
	CashOut decimal.Decimal
	BankIn  decimal.Decimal
	BankOut decimal.Decimal
	Entries int
}

// YearClosing is the immutable balance snapshot of one association year
// (Jahresabschluss).
type YearClosing struct {
	AssociationID int64
	Year          int

	Opening Balances
	Closing Balances
	Totals  ColumnTotals

	ClosingDate time.Time

	Reviewed   bool
	ReviewedBy string
	ReviewedAt *time.Time
}
