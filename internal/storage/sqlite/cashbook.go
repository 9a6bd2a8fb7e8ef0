package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mmynk/vereinsledger/internal/models"
	"github.com/mmynk/vereinsledger/internal/storage"
)

// NextVoucherNumber returns the next free voucher number of the year. It is
// only safe to use inside the transaction that inserts the entry.
func (t *sqlTx) NextVoucherNumber(ctx context.Context, associationID int64, year int) (int, error) {
	var next int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(voucher_number), 0) + 1 FROM cash_book_entries WHERE association_id = ? AND year = ?`,
		associationID, year,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to read voucher sequence: %w", err)
	}
	return next, nil
}

// InsertEntry persists a cash book entry. A voucher number already taken
// within the year yields storage.ErrDuplicate.
func (t *sqlTx) InsertEntry(ctx context.Context, e *models.CashBookEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO cash_book_entries (association_id, year, voucher_number, voucher_date, account_code, description,
		                                cash_in, cash_out, bank_in, bank_out, member_id, payment_id,
		                                bank_transaction_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.AssociationID, e.Year, e.VoucherNumber, formatDate(e.VoucherDate), e.AccountCode, e.Description,
		toCents(e.CashIn), toCents(e.CashOut), toCents(e.BankIn), toCents(e.BankOut),
		nullInt64(e.MemberID), nullInt64(e.PaymentID), nullInt64(e.BankTransactionID), e.CreatedAt.Unix(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("voucher %d/%d: %w", e.Year, e.VoucherNumber, storage.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert cash book entry: %w", err)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read cash book entry id: %w", err)
	}
	return nil
}

// ListEntries returns the entries of a year in voucher order.
func (t *sqlTx) ListEntries(ctx context.Context, associationID int64, year int) ([]*models.CashBookEntry, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, association_id, year, voucher_number, voucher_date, account_code, description,
		        cash_in, cash_out, bank_in, bank_out, member_id, payment_id, bank_transaction_id, created_at
		 FROM cash_book_entries
		 WHERE association_id = ? AND year = ?
		 ORDER BY voucher_number`,
		associationID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list cash book entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.CashBookEntry
	for rows.Next() {
		e := &models.CashBookEntry{}
		var (
			voucherDate                      string
			cashIn, cashOut, bankIn, bankOut int64
			memberID, paymentID, bankTxnID   sql.NullInt64
			createdAt                        int64
		)
		if err := rows.Scan(&e.ID, &e.AssociationID, &e.Year, &e.VoucherNumber, &voucherDate, &e.AccountCode,
			&e.Description, &cashIn, &cashOut, &bankIn, &bankOut, &memberID, &paymentID, &bankTxnID,
			&createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan cash book entry: %w", err)
		}
		if e.VoucherDate, err = parseDate(voucherDate); err != nil {
			return nil, err
		}
		e.CashIn, e.CashOut = fromCents(cashIn), fromCents(cashOut)
		e.BankIn, e.BankOut = fromCents(bankIn), fromCents(bankOut)
		e.MemberID = int64Ptr(memberID)
		e.PaymentID = int64Ptr(paymentID)
		e.BankTransactionID = int64Ptr(bankTxnID)
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cash book entries: %w", err)
	}
	return entries, nil
}

// GetClosing retrieves the closing of a year.
func (t *sqlTx) GetClosing(ctx context.Context, associationID int64, year int) (*models.YearClosing, error) {
	c := &models.YearClosing{}
	var (
		openCash, openBank, openSavings    int64
		closeCash, closeBank, closeSavings int64
		cashIn, cashOut, bankIn, bankOut   int64
		closingDate                        string
		reviewed                           int
		reviewedAt                         sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT association_id, year, opening_cash, opening_bank, opening_savings,
		        closing_cash, closing_bank, closing_savings,
		        total_cash_in, total_cash_out, total_bank_in, total_bank_out, entry_count,
		        closing_date, reviewed, reviewed_by, reviewed_at
		 FROM year_closings WHERE association_id = ? AND year = ?`,
		associationID, year,
	).Scan(&c.AssociationID, &c.Year, &openCash, &openBank, &openSavings,
		&closeCash, &closeBank, &closeSavings,
		&cashIn, &cashOut, &bankIn, &bankOut, &c.Totals.Entries,
		&closingDate, &reviewed, &c.ReviewedBy, &reviewedAt)
	if err != nil {
		return nil, notFound(err, "year closing", fmt.Sprintf("%d/%d", associationID, year))
	}

	if c.ClosingDate, err = parseDate(closingDate); err != nil {
		return nil, err
	}
	c.Opening = models.Balances{Cash: fromCents(openCash), Bank: fromCents(openBank), Savings: fromCents(openSavings)}
	c.Closing = models.Balances{Cash: fromCents(closeCash), Bank: fromCents(closeBank), Savings: fromCents(closeSavings)}
	c.Totals.CashIn, c.Totals.CashOut = fromCents(cashIn), fromCents(cashOut)
	c.Totals.BankIn, c.Totals.BankOut = fromCents(bankIn), fromCents(bankOut)
	c.Reviewed = reviewed != 0
	c.ReviewedAt = unixPtr(reviewedAt)
	return c, nil
}

// HasClosings reports whether any year of the association is closed.
func (t *sqlTx) HasClosings(ctx context.Context, associationID int64) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM year_closings WHERE association_id = ?`, associationID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count year closings: %w", err)
	}
	return n > 0, nil
}

// HasEntriesBefore reports whether the association has entries in a year
// before the given one.
func (t *sqlTx) HasEntriesBefore(ctx context.Context, associationID int64, year int) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cash_book_entries WHERE association_id = ? AND year < ?`, associationID, year,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count earlier entries: %w", err)
	}
	return n > 0, nil
}

// InsertClosing persists a year closing.
func (t *sqlTx) InsertClosing(ctx context.Context, c *models.YearClosing) error {
	var reviewedAt interface{} = nil
	if c.ReviewedAt != nil {
		reviewedAt = c.ReviewedAt.Unix()
	}

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO year_closings (association_id, year, opening_cash, opening_bank, opening_savings,
		                            closing_cash, closing_bank, closing_savings,
		                            total_cash_in, total_cash_out, total_bank_in, total_bank_out, entry_count,
		                            closing_date, reviewed, reviewed_by, reviewed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.AssociationID, c.Year, toCents(c.Opening.Cash), toCents(c.Opening.Bank), toCents(c.Opening.Savings),
		toCents(c.Closing.Cash), toCents(c.Closing.Bank), toCents(c.Closing.Savings),
		toCents(c.Totals.CashIn), toCents(c.Totals.CashOut), toCents(c.Totals.BankIn), toCents(c.Totals.BankOut),
		c.Totals.Entries, formatDate(c.ClosingDate), boolToInt(c.Reviewed), c.ReviewedBy, reviewedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("year closing %d/%d: %w", c.AssociationID, c.Year, storage.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert year closing: %w", err)
	}
	return nil
}

// UpdateClosing overwrites the computed part of a closing.
func (t *sqlTx) UpdateClosing(ctx context.Context, c *models.YearClosing) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE year_closings
		 SET opening_cash = ?, opening_bank = ?, opening_savings = ?,
		     closing_cash = ?, closing_bank = ?, closing_savings = ?,
		     total_cash_in = ?, total_cash_out = ?, total_bank_in = ?, total_bank_out = ?, entry_count = ?,
		     closing_date = ?
		 WHERE association_id = ? AND year = ?`,
		toCents(c.Opening.Cash), toCents(c.Opening.Bank), toCents(c.Opening.Savings),
		toCents(c.Closing.Cash), toCents(c.Closing.Bank), toCents(c.Closing.Savings),
		toCents(c.Totals.CashIn), toCents(c.Totals.CashOut), toCents(c.Totals.BankIn), toCents(c.Totals.BankOut),
		c.Totals.Entries, formatDate(c.ClosingDate), c.AssociationID, c.Year,
	)
	if err != nil {
		return fmt.Errorf("failed to update year closing: %w", err)
	}
	return requireRow(res, "year closing", fmt.Sprintf("%d/%d", c.AssociationID, c.Year))
}

// MarkClosingReviewed records who reviewed a closing.
func (t *sqlTx) MarkClosingReviewed(ctx context.Context, associationID int64, year int, reviewer string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE year_closings SET reviewed = 1, reviewed_by = ?, reviewed_at = ?
		 WHERE association_id = ? AND year = ?`,
		reviewer, at.Unix(), associationID, year,
	)
	if err != nil {
		return fmt.Errorf("failed to mark year closing reviewed: %w", err)
	}
	return requireRow(res, "year closing", fmt.Sprintf("%d/%d", associationID, year))
}

const passThroughColumns = `id, association_id, account_code, description, amount, status,
	inflow_date, inflow_entry_id, outflow_date, outflow_entry_id, created_at`

func scanPassThrough(row interface{ Scan(...any) error }) (*models.PassThroughItem, error) {
	p := &models.PassThroughItem{}
	var (
		amount, createdAt int64
		inflowDate        string
		outflowDate       sql.NullString
		outflowEntryID    sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.AssociationID, &p.AccountCode, &p.Description, &amount, &p.Status,
		&inflowDate, &p.InflowEntryID, &outflowDate, &outflowEntryID, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if p.InflowDate, err = parseDate(inflowDate); err != nil {
		return nil, err
	}
	if outflowDate.Valid {
		d, err := parseDate(outflowDate.String)
		if err != nil {
			return nil, err
		}
		p.OutflowDate = &d
	}
	p.Amount = fromCents(amount)
	p.OutflowEntryID = int64Ptr(outflowEntryID)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	return p, nil
}

// CreatePassThrough persists a new pass-through item.
func (t *sqlTx) CreatePassThrough(ctx context.Context, p *models.PassThroughItem) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO pass_through_items (association_id, account_code, description, amount, status,
		                                 inflow_date, inflow_entry_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.AssociationID, p.AccountCode, p.Description, toCents(p.Amount), p.Status,
		formatDate(p.InflowDate), p.InflowEntryID, p.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert pass-through item: %w", err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read pass-through item id: %w", err)
	}
	return nil
}

// GetPassThrough retrieves a pass-through item by ID.
func (t *sqlTx) GetPassThrough(ctx context.Context, id int64) (*models.PassThroughItem, error) {
	p, err := scanPassThrough(t.tx.QueryRowContext(ctx,
		`SELECT `+passThroughColumns+` FROM pass_through_items WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "pass-through item", id)
	}
	return p, nil
}

// SettlePassThrough moves an open item to settled. It returns
// storage.ErrNotFound if no open item with that ID exists.
func (t *sqlTx) SettlePassThrough(ctx context.Context, id int64, outflowDate time.Time, outflowEntryID int64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE pass_through_items SET status = ?, outflow_date = ?, outflow_entry_id = ?
		 WHERE id = ? AND status = ?`,
		models.PassThroughSettled, formatDate(outflowDate), outflowEntryID, id, models.PassThroughOpen,
	)
	if err != nil {
		return fmt.Errorf("failed to settle pass-through item: %w", err)
	}
	return requireRow(res, "open pass-through item", id)
}

// ListOpenPassThrough returns the association's open items, oldest first.
func (t *sqlTx) ListOpenPassThrough(ctx context.Context, associationID int64) ([]*models.PassThroughItem, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+passThroughColumns+` FROM pass_through_items
		 WHERE association_id = ? AND status = ?
		 ORDER BY inflow_date, id`,
		associationID, models.PassThroughOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to list pass-through items: %w", err)
	}
	defer rows.Close()

	var items []*models.PassThroughItem
	for rows.Next() {
		p, err := scanPassThrough(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pass-through item: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pass-through items: %w", err)
	}
	return items, nil
}

// CreateDonation persists a donation protocol with its denomination lines.
func (t *sqlTx) CreateDonation(ctx context.Context, d *models.DonationProtocol) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO donation_protocols (association_id, date, occasion, total, counted_by, cash_book_entry_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.AssociationID, formatDate(d.Date), d.Occasion, toCents(d.TotalAmount), d.CountedBy,
		nullInt64(d.CashBookEntryID), d.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert donation protocol: %w", err)
	}
	d.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read donation protocol id: %w", err)
	}

	for i, line := range d.Details {
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO donation_details (protocol_id, position, value, count, subtotal) VALUES (?, ?, ?, ?, ?)`,
			d.ID, i, toCents(line.Value), line.Count, toCents(line.Subtotal),
		)
		if err != nil {
			return fmt.Errorf("failed to insert donation detail: %w", err)
		}
	}
	return nil
}

// GetDonation retrieves a donation protocol with its denomination lines.
func (t *sqlTx) GetDonation(ctx context.Context, id int64) (*models.DonationProtocol, error) {
	d := &models.DonationProtocol{}
	var (
		date             string
		total, createdAt int64
		entryID          sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, association_id, date, occasion, total, counted_by, cash_book_entry_id, created_at
		 FROM donation_protocols WHERE id = ?`, id,
	).Scan(&d.ID, &d.AssociationID, &date, &d.Occasion, &total, &d.CountedBy, &entryID, &createdAt)
	if err != nil {
		return nil, notFound(err, "donation protocol", id)
	}
	if d.Date, err = parseDate(date); err != nil {
		return nil, err
	}
	d.TotalAmount = fromCents(total)
	d.CashBookEntryID = int64Ptr(entryID)
	d.CreatedAt = time.Unix(createdAt, 0).UTC()

	rows, err := t.tx.QueryContext(ctx,
		`SELECT value, count, subtotal FROM donation_details WHERE protocol_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list donation details: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var value, subtotal int64
		var line models.DonationDetail
		if err := rows.Scan(&value, &line.Count, &subtotal); err != nil {
			return nil, fmt.Errorf("failed to scan donation detail: %w", err)
		}
		line.Value = fromCents(value)
		line.Subtotal = fromCents(subtotal)
		d.Details = append(d.Details, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate donation details: %w", err)
	}
	return d, nil
}
