package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Max Mustermann", "max mustermann"},
		{"MÜLLER, Jürgen", "muller jurgen"},
		{"  José   Pérez ", "jose perez"},
		{"Straßer-Groß", "strasser gross"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeName(tt.in); got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIBAN(t *testing.T) {
	if got := NormalizeIBAN("de89 3704 0044 0532 0130 00"); got != "DE89370400440532013000" {
		t.Errorf("NormalizeIBAN = %q", got)
	}
}

func TestPeriodRoundTrip(t *testing.T) {
	for _, s := range []string{"2025", "2025-03", "2025-Q2"} {
		p, err := ParsePeriod(s)
		if err != nil {
			t.Fatalf("ParsePeriod(%q) failed: %v", s, err)
		}
		if p.String() != s {
			t.Errorf("ParsePeriod(%q).String() = %q", s, p.String())
		}
	}

	for _, s := range []string{"", "25x", "2025-13", "2025-Q5"} {
		if _, err := ParsePeriod(s); err == nil {
			t.Errorf("ParsePeriod(%q) expected error", s)
		}
	}
}

func TestYearMonth(t *testing.T) {
	ym, err := ParseYearMonth("2024-11")
	if err != nil {
		t.Fatalf("ParseYearMonth failed: %v", err)
	}
	if ym.Year != 2024 || ym.Month != time.November || ym.String() != "2024-11" {
		t.Errorf("unexpected year-month %+v", ym)
	}
}

func TestClaimViews(t *testing.T) {
	c := &Claim{
		ID:        42,
		Amount:    decimal.NewFromInt(100),
		Allocated: decimal.NewFromInt(40),
		DueDate:   Date(2025, time.March, 31),
		Status:    ClaimPartiallyPaid,
	}

	if !c.Remaining().Equal(decimal.NewFromInt(60)) {
		t.Errorf("Remaining = %s, want 60", c.Remaining())
	}
	if c.Reference() != "F42-2025" {
		t.Errorf("Reference = %q, want F42-2025", c.Reference())
	}
	if c.IsOverdue(Date(2025, time.March, 31)) {
		t.Error("claim must not be overdue on its due date")
	}
	if !c.IsOverdue(Date(2025, time.April, 1)) {
		t.Error("claim must be overdue the day after its due date")
	}

	c.Status = ClaimPaid
	if c.IsOverdue(Date(2026, time.January, 1)) {
		t.Error("paid claim is never overdue")
	}

	c.Period = &Period{Year: 2024, Quarter: 4}
	if c.Reference() != "F42-2024" {
		t.Errorf("Reference with period = %q, want F42-2024", c.Reference())
	}
}

func TestFormatMoney(t *testing.T) {
	if got := FormatMoney(decimal.NewFromInt(50)); got != "50.00" {
		t.Errorf("FormatMoney = %q, want 50.00", got)
	}
	if cur, err := NormalizeCurrency(" eur "); err != nil || cur != "EUR" {
		t.Errorf("NormalizeCurrency = %q, %v", cur, err)
	}
	if _, err := NormalizeCurrency("EURO"); err == nil {
		t.Error("expected error for four-letter currency")
	}
}
