package statement

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/mmynk/vereinsledger/internal/models"
)

type field int

const (
	fieldDate field = iota
	fieldAmount
	fieldDebit
	fieldCredit
	fieldName
	fieldIBAN
	fieldRemittance
	fieldReference
)

// headerNames maps known column titles to fields. Titles are compared after
// models.NormalizeName, so case, umlauts and punctuation do not matter.
var headerNames = map[field][]string{
	fieldDate:       {"Buchungstag", "Buchungsdatum", "Datum", "Booking date", "Date", "Transaction date"},
	fieldAmount:     {"Betrag", "Betrag (EUR)", "Betrag in EUR", "Umsatz", "Amount", "Amount (EUR)"},
	fieldDebit:      {"Soll", "Belastung", "Debit"},
	fieldCredit:     {"Haben", "Gutschrift", "Credit"},
	fieldName:       {"Beguenstigter/Zahlungspflichtiger", "Begünstigter/Zahlungspflichtiger", "Name Zahlungsbeteiligter", "Auftraggeber/Empfänger", "Zahlungspflichtiger", "Empfänger", "Auftraggeber", "Name", "Counterparty", "Payee", "Payer"},
	fieldIBAN:       {"IBAN", "IBAN Zahlungsbeteiligter", "Kontonummer/IBAN", "Counterparty IBAN"},
	fieldRemittance: {"Verwendungszweck", "Remittance information", "Remittance", "Purpose", "Description"},
	fieldReference:  {"Referenz", "Kundenreferenz", "Kundenreferenz (End-to-End)", "End-to-End-Referenz", "Reference"},
}

var headerLookup = func() map[string]field {
	m := make(map[string]field)
	for f, names := range headerNames {
		for _, n := range names {
			m[models.NormalizeName(n)] = f
		}
	}
	return m
}()

// columns maps fields to record indexes.
type columns map[field]int

// detectColumns recognizes a header row: it needs a date column and either
// an amount column or a debit/credit pair.
func detectColumns(record []string) (columns, bool) {
	cols := make(columns)
	for i, title := range record {
		f, ok := headerLookup[models.NormalizeName(title)]
		if !ok {
			continue
		}
		if _, taken := cols[f]; !taken {
			cols[f] = i
		}
	}
	_, hasDate := cols[fieldDate]
	_, hasAmount := cols[fieldAmount]
	_, hasDebit := cols[fieldDebit]
	_, hasCredit := cols[fieldCredit]
	return cols, hasDate && (hasAmount || (hasDebit && hasCredit))
}

func (c columns) get(record []string, f field) string {
	i, ok := c[f]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (c columns) row(record []string) (models.StatementRow, error) {
	date, err := ParseDate(c.get(record, fieldDate))
	if err != nil {
		return models.StatementRow{}, err
	}

	var amount decimal.Decimal
	if _, ok := c[fieldAmount]; ok {
		amount, err = ParseAmount(c.get(record, fieldAmount))
		if err != nil {
			return models.StatementRow{}, err
		}
	} else {
		amount, err = debitCredit(c.get(record, fieldDebit), c.get(record, fieldCredit))
		if err != nil {
			return models.StatementRow{}, err
		}
	}

	return models.StatementRow{
		BookingDate:      date,
		Amount:           amount,
		CounterpartyName: c.get(record, fieldName),
		CounterpartyIBAN: models.NormalizeIBAN(c.get(record, fieldIBAN)),
		RemittanceText:   strings.Join(strings.Fields(c.get(record, fieldRemittance)), " "),
		Reference:        c.get(record, fieldReference),
	}, nil
}

// debitCredit combines separate debit and credit columns into a signed
// amount. Debits are taken as outflows whatever their sign.
func debitCredit(debit, credit string) (decimal.Decimal, error) {
	total := decimal.Zero
	if debit != "" {
		d, err := ParseAmount(debit)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Sub(d.Abs())
	}
	if credit != "" {
		c, err := ParseAmount(credit)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(c.Abs())
	}
	return total, nil
}

var dateLayouts = []string{
	"02.01.2006",
	"2.1.2006",
	"02.01.06",
	"2006-01-02",
	"02/01/2006",
	"01-02-06",
	"2006/01/02",
}

// ParseDate reads a booking date. Besides the usual text layouts it accepts
// spreadsheet serial day numbers.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("missing booking date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.Day(t), nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 1 && serial < 100000 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return models.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseAmount reads a signed amount in German ("-1.234,56") or English
// ("-1,234.56") notation. A currency code or symbol and a trailing minus
// sign are tolerated.
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := s
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "EUR"), "EUR")
	s = strings.ReplaceAll(s, "€", "")
	s = strings.Join(strings.Fields(s), "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("missing amount")
	}

	negative := false
	switch {
	case strings.HasSuffix(s, "-"):
		negative, s = true, strings.TrimSuffix(s, "-")
	case strings.HasPrefix(s, "-"):
		negative, s = true, strings.TrimPrefix(s, "-")
	case strings.HasPrefix(s, "+"):
		s = strings.TrimPrefix(s, "+")
	}

	s = normalizeSeparators(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unrecognized amount %q", raw)
	}
	if !models.IsMoney(d) {
		return decimal.Zero, fmt.Errorf("amount %q has more than %d decimal places", raw, models.MoneyPlaces)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// normalizeSeparators rewrites a number to use '.' as the only decimal
// separator and no grouping.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// 1.234,56
			return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
		}
		// 1,234.56
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || len(s)-lastDot-1 == 3 {
			return strings.ReplaceAll(s, ".", "")
		}
		return s
	default:
		return s
	}
}
