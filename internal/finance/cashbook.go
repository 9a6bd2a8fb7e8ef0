package finance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/vereinsledger/internal/calculator"
	"github.com/mmynk/vereinsledger/internal/models"
	"github.com/mmynk/vereinsledger/internal/storage"
)

// EntryInput is a standard cash book posting: one amount in one column.
type EntryInput struct {
	AssociationID int64
	Year          int
	VoucherDate   time.Time
	AccountCode   string
	Description   string
	Column        models.Column
	Amount        decimal.Decimal
	Links         models.EntryLinks
}

// PostEntry books an entry under the next voucher number of the year.
func (s *Service) PostEntry(ctx context.Context, in EntryInput) (*models.CashBookEntry, error) {
	var entry *models.CashBookEntry
	err := s.store.WithTx(ctx, func(tx storage.Tx) (err error) {
		entry, err = s.postEntry(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.postedEntry(entry)
	return entry, nil
}

// postEntry validates and inserts an entry inside tx. The voucher number is
// read and used in the same transaction.
func (s *Service) postEntry(ctx context.Context, tx storage.Tx, in EntryInput) (*models.CashBookEntry, error) {
	if err := checkAmount("entry amount", in.Amount); err != nil {
		return nil, err
	}
	if _, err := models.ParseColumn(string(in.Column)); err != nil {
		return nil, validationf("%v", err)
	}
	if in.VoucherDate.IsZero() {
		return nil, validationf("voucher date is required")
	}
	if in.Year == 0 {
		in.Year = in.VoucherDate.Year()
	}
	if in.VoucherDate.Year() != in.Year {
		return nil, validationf("voucher date %s is outside year %d", in.VoucherDate.Format(models.DateLayout), in.Year)
	}
	if err := resolveAccountCode(ctx, tx, in.AccountCode); err != nil {
		return nil, err
	}

	closing, err := tx.GetClosing(ctx, in.AssociationID, in.Year)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, err
	case closing.Reviewed:
		return nil, fmt.Errorf("%w: %d was reviewed by %s", ErrClosedYear, in.Year, closing.ReviewedBy)
	}
	_, err = tx.GetClosing(ctx, in.AssociationID, in.Year+1)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %d carries the balances of %d", ErrClosedYear, in.Year+1, in.Year)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	number, err := tx.NextVoucherNumber(ctx, in.AssociationID, in.Year)
	if err != nil {
		return nil, err
	}

	entry := &models.CashBookEntry{
		AssociationID:     in.AssociationID,
		Year:              in.Year,
		VoucherNumber:     number,
		VoucherDate:       models.Day(in.VoucherDate),
		AccountCode:       in.AccountCode,
		Description:       in.Description,
		MemberID:          in.Links.MemberID,
		PaymentID:         in.Links.PaymentID,
		BankTransactionID: in.Links.BankTransactionID,
		CreatedAt:         s.now().UTC(),
	}
	entry.SetColumn(in.Column, in.Amount)
	if err := calculator.ValidatePosting(entry); err != nil {
		return nil, validationf("%v", err)
	}
	if err := tx.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// postedEntry logs and counts an entry once its transaction has committed.
func (s *Service) postedEntry(e *models.CashBookEntry) {
	if e == nil {
		return
	}
	column, amount := e.Column()
	s.metrics.VoucherPosted(string(column))
	slog.Info("Cash book entry posted",
		"association_id", e.AssociationID,
		"year", e.Year,
		"voucher", e.VoucherNumber,
		"account", e.AccountCode,
		"column", column,
		"amount", models.FormatMoney(amount),
	)
}

// resolveAccountCode checks that the code is a known, active account.
func resolveAccountCode(ctx context.Context, tx storage.Tx, code string) error {
	if code == "" {
		return validationf("account code is required")
	}
	account, err := tx.GetAccount(ctx, code)
	if err != nil {
		return err
	}
	if !account.Active {
		return validationf("account %s (%s) is inactive", account.Code, account.Name)
	}
	return nil
}

// ListEntries returns the entries of a year in voucher order.
func (s *Service) ListEntries(ctx context.Context, associationID int64, year int) (entries []*models.CashBookEntry, err error) {
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		entries, err = tx.ListEntries(ctx, associationID, year)
		return err
	})
	return entries, err
}

// CloseYear computes and stores the closing of a year. With nil opening
// balances the prior year's closing balances carry forward, or zero for the
// association's first closing. A non-empty reviewer closes and reviews in
// one step.
func (s *Service) CloseYear(ctx context.Context, associationID int64, year int, opening *models.Balances, reviewedBy string) (*models.YearClosing, error) {
	if year <= 0 {
		return nil, validationf("invalid year %d", year)
	}
	if opening != nil {
		for name, v := range map[string]decimal.Decimal{"cash": opening.Cash, "bank": opening.Bank, "savings": opening.Savings} {
			if !models.IsMoney(v) {
				return nil, validationf("opening %s balance %s has too many decimal places", name, v)
			}
		}
	}

	var closing *models.YearClosing
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		_, err := tx.GetClosing(ctx, associationID, year)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %d", ErrAlreadyClosed, year)
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}

		carried, binding, err := s.carriedBalances(ctx, tx, associationID, year)
		if err != nil {
			return err
		}
		start := carried
		if opening != nil {
			start = *opening
			if binding && !balancesEqual(start, carried) {
				return validationf("opening balances %s contradict the closing of %d (%s)",
					formatBalances(start), year-1, formatBalances(carried))
			}
		}

		entries, err := tx.ListEntries(ctx, associationID, year)
		if err != nil {
			return err
		}
		totals := calculator.SumColumns(entries)

		closing = &models.YearClosing{
			AssociationID: associationID,
			Year:          year,
			Opening:       start,
			Closing:       calculator.CloseBalances(start, totals),
			Totals:        totals,
			ClosingDate:   s.today(),
		}
		if reviewedBy != "" {
			at := s.now().UTC()
			closing.Reviewed = true
			closing.ReviewedBy = reviewedBy
			closing.ReviewedAt = &at
		}

		if err := tx.InsertClosing(ctx, closing); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return fmt.Errorf("%w: %d", ErrAlreadyClosed, year)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.YearClosed()
	slog.Info("Year closed",
		"association_id", associationID,
		"year", year,
		"entries", closing.Totals.Entries,
		"closing_cash", models.FormatMoney(closing.Closing.Cash),
		"closing_bank", models.FormatMoney(closing.Closing.Bank),
		"reviewed", closing.Reviewed,
	)
	return closing, nil
}

// carriedBalances returns the opening balances the year inherits: the
// closing of the prior year, or zero when nothing was closed or posted
// before the year. binding is true in the first case. Closings must be
// sequential once the first one exists or once earlier years have entries.
func (s *Service) carriedBalances(ctx context.Context, tx storage.Tx, associationID int64, year int) (carried models.Balances, binding bool, err error) {
	zero := models.Balances{Cash: decimal.Zero, Bank: decimal.Zero, Savings: decimal.Zero}

	prior, err := tx.GetClosing(ctx, associationID, year-1)
	if err == nil {
		if !prior.Reviewed {
			if err := s.refreshClosing(ctx, tx, prior); err != nil {
				return zero, false, err
			}
		}
		return prior.Closing, true, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return zero, false, err
	}

	closed, err := tx.HasClosings(ctx, associationID)
	if err != nil {
		return zero, false, err
	}
	if !closed {
		closed, err = tx.HasEntriesBefore(ctx, associationID, year)
		if err != nil {
			return zero, false, err
		}
	}
	if closed {
		return zero, false, fmt.Errorf("%w: close %d before %d", ErrOutOfOrder, year-1, year)
	}
	return zero, false, nil
}

// refreshClosing folds entries posted after an unreviewed closing was
// computed into its totals and closing balances.
func (s *Service) refreshClosing(ctx context.Context, tx storage.Tx, closing *models.YearClosing) error {
	entries, err := tx.ListEntries(ctx, closing.AssociationID, closing.Year)
	if err != nil {
		return err
	}
	totals := calculator.SumColumns(entries)
	if totalsEqual(totals, closing.Totals) {
		return nil
	}

	refreshed := calculator.CloseBalances(closing.Opening, totals)
	next, err := tx.GetClosing(ctx, closing.AssociationID, closing.Year+1)
	if err == nil && !balancesEqual(next.Opening, refreshed) {
		return validationf("entries of %d changed after %d was closed on its balances", closing.Year, closing.Year+1)
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	closing.Totals = totals
	closing.Closing = refreshed
	closing.ClosingDate = s.today()
	return tx.UpdateClosing(ctx, closing)
}

// ReviewClosing marks a closing reviewed, which freezes the year. Entries
// posted after the closing was computed are folded in first.
func (s *Service) ReviewClosing(ctx context.Context, associationID int64, year int, reviewer string) (*models.YearClosing, error) {
	if reviewer == "" {
		return nil, validationf("reviewer is required")
	}

	var closing *models.YearClosing
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		closing, err = tx.GetClosing(ctx, associationID, year)
		if err != nil {
			return err
		}
		if closing.Reviewed {
			return fmt.Errorf("%w: %d was reviewed by %s", ErrClosedYear, year, closing.ReviewedBy)
		}

		if err := s.refreshClosing(ctx, tx, closing); err != nil {
			return err
		}

		at := s.now().UTC()
		if err := tx.MarkClosingReviewed(ctx, associationID, year, reviewer, at); err != nil {
			return err
		}
		closing.Reviewed = true
		closing.ReviewedBy = reviewer
		closing.ReviewedAt = &at
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Year closing reviewed", "association_id", associationID, "year", year, "reviewer", reviewer)
	return closing, nil
}

// GetClosing returns the closing of a year.
func (s *Service) GetClosing(ctx context.Context, associationID int64, year int) (closing *models.YearClosing, err error) {
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		closing, err = tx.GetClosing(ctx, associationID, year)
		return err
	})
	return closing, err
}

// YearBalance is the running state of a cash book year.
type YearBalance struct {
	Year    int
	Opening models.Balances
	Totals  models.ColumnTotals
	Current models.Balances

	Closed   bool
	Reviewed bool
}

// YearBalances returns the opening balances of the year and the balances
// after all entries posted so far.
func (s *Service) YearBalances(ctx context.Context, associationID int64, year int) (*YearBalance, error) {
	result := &YearBalance{Year: year}
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		closing, err := tx.GetClosing(ctx, associationID, year)
		switch {
		case err == nil:
			result.Opening = closing.Opening
			result.Closed = true
			result.Reviewed = closing.Reviewed
		case errors.Is(err, storage.ErrNotFound):
			prior, err := tx.GetClosing(ctx, associationID, year-1)
			switch {
			case err == nil:
				result.Opening = prior.Closing
			case errors.Is(err, storage.ErrNotFound):
				result.Opening = models.Balances{Cash: decimal.Zero, Bank: decimal.Zero, Savings: decimal.Zero}
			default:
				return err
			}
		default:
			return err
		}

		entries, err := tx.ListEntries(ctx, associationID, year)
		if err != nil {
			return err
		}
		result.Totals = calculator.SumColumns(entries)
		result.Current = calculator.CloseBalances(result.Opening, result.Totals)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func balancesEqual(a, b models.Balances) bool {
	return a.Cash.Equal(b.Cash) && a.Bank.Equal(b.Bank) && a.Savings.Equal(b.Savings)
}

func totalsEqual(a, b models.ColumnTotals) bool {
	return a.Entries == b.Entries &&
		a.CashIn.Equal(b.CashIn) && a.CashOut.Equal(b.CashOut) &&
		a.BankIn.Equal(b.BankIn) && a.BankOut.Equal(b.BankOut)
}

func formatBalances(b models.Balances) string {
	return fmt.Sprintf("cash %s, bank %s, savings %s",
		models.FormatMoney(b.Cash), models.FormatMoney(b.Bank), models.FormatMoney(b.Savings))
}
