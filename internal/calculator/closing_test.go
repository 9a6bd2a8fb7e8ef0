package calculator

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mmynk/vereinsledger/internal/models"
)

func entry(c models.Column, amount string) *models.CashBookEntry {
	e := &models.CashBookEntry{}
	e.SetColumn(c, d(amount))
	return e
}

func TestCloseBalances(t *testing.T) {
	entries := []*models.CashBookEntry{
		entry(models.ColumnCashIn, "200"),
		entry(models.ColumnCashIn, "50"),
		entry(models.ColumnCashOut, "80"),
		entry(models.ColumnBankIn, "1000"),
		entry(models.ColumnBankOut, "250.50"),
	}

	totals := SumColumns(entries)
	if totals.Entries != 5 {
		t.Errorf("Entries = %d, want 5", totals.Entries)
	}
	if !totals.CashIn.Equal(d("250")) {
		t.Errorf("CashIn = %s, want 250", totals.CashIn)
	}

	opening := models.Balances{Cash: d("100"), Bank: d("500"), Savings: d("3000")}
	closing := CloseBalances(opening, totals)

	if !closing.Cash.Equal(d("270")) {
		t.Errorf("closing cash = %s, want 270", closing.Cash)
	}
	if !closing.Bank.Equal(d("1249.50")) {
		t.Errorf("closing bank = %s, want 1249.50", closing.Bank)
	}
	if !closing.Savings.Equal(d("3000")) {
		t.Errorf("closing savings = %s, want 3000", closing.Savings)
	}
}

func TestSumColumnsEmpty(t *testing.T) {
	totals := SumColumns(nil)
	closing := CloseBalances(models.Balances{Cash: d("10"), Bank: decimal.Zero}, totals)
	if !closing.Cash.Equal(d("10")) || !closing.Bank.IsZero() {
		t.Errorf("closing = %+v, want opening unchanged", closing)
	}
}

func TestValidatePosting(t *testing.T) {
	tests := []struct {
		name    string
		entry   *models.CashBookEntry
		wantErr bool
	}{
		{"single column", entry(models.ColumnBankOut, "12.34"), false},
		{"no column", &models.CashBookEntry{CashIn: decimal.Zero, CashOut: decimal.Zero, BankIn: decimal.Zero, BankOut: decimal.Zero}, true},
		{"two columns", &models.CashBookEntry{CashIn: d("1"), CashOut: decimal.Zero, BankIn: d("1"), BankOut: decimal.Zero}, true},
		{"negative column", &models.CashBookEntry{CashIn: d("-1"), CashOut: decimal.Zero, BankIn: decimal.Zero, BankOut: decimal.Zero}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePosting(tt.entry)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePosting() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDonationTotal(t *testing.T) {
	details := []models.DonationDetail{
		{Value: d("5"), Count: 10},
		{Value: d("10"), Count: 3},
	}

	total, err := DonationTotal(details)
	if err != nil {
		t.Fatalf("DonationTotal failed: %v", err)
	}
	if !total.Equal(d("80")) {
		t.Errorf("total = %s, want 80", total)
	}
	if !details[0].Subtotal.Equal(d("50")) || !details[1].Subtotal.Equal(d("30")) {
		t.Errorf("subtotals = %s, %s, want 50, 30", details[0].Subtotal, details[1].Subtotal)
	}

	if _, err := DonationTotal([]models.DonationDetail{{Value: d("0"), Count: 1}}); err == nil {
		t.Error("expected error for zero denomination")
	}
}
