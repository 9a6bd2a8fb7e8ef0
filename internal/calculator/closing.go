package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/vereinsledger/internal/models"
)

// SumColumns totals the four amount columns of a set of cash book entries.
func SumColumns(entries []*models.CashBookEntry) models.ColumnTotals {
	totals := models.ColumnTotals{
		CashIn:  decimal.Zero,
		CashOut: decimal.Zero,
		BankIn:  decimal.Zero,
		BankOut: decimal.Zero,
	}
	for _, e := range entries {
		totals.CashIn = totals.CashIn.Add(e.CashIn)
		totals.CashOut = totals.CashOut.Add(e.CashOut)
		totals.BankIn = totals.BankIn.Add(e.BankIn)
		totals.BankOut = totals.BankOut.Add(e.BankOut)
		totals.Entries++
	}
	return totals
}

// CloseBalances applies a year's column totals to its opening balances:
// closing = opening + inflows - outflows, per column. Savings are not posted
// through the cash book and carry over unchanged.
func CloseBalances(opening models.Balances, totals models.ColumnTotals) models.Balances {
	return models.Balances{
		Cash:    opening.Cash.Add(totals.CashIn).Sub(totals.CashOut),
		Bank:    opening.Bank.Add(totals.BankIn).Sub(totals.BankOut),
		Savings: opening.Savings,
	}
}

// ValidatePosting checks the single-column rule of a standard posting:
// exactly one column is positive and the other three are zero.
func ValidatePosting(e *models.CashBookEntry) error {
	positive := 0
	for _, v := range []decimal.Decimal{e.CashIn, e.CashOut, e.BankIn, e.BankOut} {
		switch {
		case v.IsNegative():
			return fmt.Errorf("amount columns must not be negative")
		case v.IsPositive():
			positive++
		}
	}
	if positive != 1 {
		return fmt.Errorf("exactly one amount column must be set, got %d", positive)
	}
	return nil
}
