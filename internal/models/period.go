package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the persisted and wire form of a calendar date.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a calendar date in UTC.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a DateLayout string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// YearMonth is a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// ParseYearMonth parses the "2006-01" form.
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return YearMonth{}, fmt.Errorf("invalid year-month %q: %w", s, err)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

// Period is the billing period a claim covers: a whole year, a month, or a
// quarter of a year. Month and Quarter are zero when not used; at most one of
// them is set.
type Period struct {
	Year    int
	Month   int
	Quarter int
}

// String renders "2025", "2025-03" or "2025-Q2".
func (p Period) String() string {
	switch {
	case p.Month > 0:
		return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
	case p.Quarter > 0:
		return fmt.Sprintf("%04d-Q%d", p.Year, p.Quarter)
	default:
		return fmt.Sprintf("%04d", p.Year)
	}
}

// Validate checks the field ranges.
func (p Period) Validate() error {
	if p.Year < 1900 || p.Year > 9999 {
		return fmt.Errorf("period year %d out of range", p.Year)
	}
	if p.Month != 0 && p.Quarter != 0 {
		return fmt.Errorf("period cannot have both month and quarter")
	}
	if p.Month < 0 || p.Month > 12 {
		return fmt.Errorf("period month %d out of range", p.Month)
	}
	if p.Quarter < 0 || p.Quarter > 4 {
		return fmt.Errorf("period quarter %d out of range", p.Quarter)
	}
	return nil
}

// ParsePeriod is the inverse of Period.String.
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	year, rest, hasRest := strings.Cut(s, "-")
	y, err := strconv.Atoi(year)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q", s)
	}
	p := Period{Year: y}
	if hasRest {
		if q, ok := strings.CutPrefix(rest, "Q"); ok {
			p.Quarter, err = strconv.Atoi(q)
		} else {
			p.Month, err = strconv.Atoi(rest)
		}
		if err != nil {
			return Period{}, fmt.Errorf("invalid period %q", s)
		}
	}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}
