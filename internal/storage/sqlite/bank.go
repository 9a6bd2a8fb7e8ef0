package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mmynk/vereinsledger/internal/models"
	"github.com/mmynk/vereinsledger/internal/storage"
)

const bankTransactionColumns = `id, association_id, bank_account_id, booking_date, amount, counterparty_name,
	counterparty_iban, remittance_text, reference, import_batch, match_state, match_rule, skip_reason,
	payment_id, member_id, created_at`

func scanBankTransaction(row interface{ Scan(...any) error }) (*models.BankTransaction, error) {
	t := &models.BankTransaction{}
	var (
		amount, createdAt   int64
		bookingDate         string
		paymentID, memberID sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.AssociationID, &t.BankAccountID, &bookingDate, &amount, &t.CounterpartyName,
		&t.CounterpartyIBAN, &t.RemittanceText, &t.Reference, &t.ImportBatch, &t.MatchState, &t.MatchRule,
		&t.SkipReason, &paymentID, &memberID, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if t.BookingDate, err = parseDate(bookingDate); err != nil {
		return nil, err
	}
	t.Amount = fromCents(amount)
	t.PaymentID = int64Ptr(paymentID)
	t.MemberID = int64Ptr(memberID)
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	return t, nil
}

// InsertBankTransaction stores an imported row in UNMATCHED state. A row that
// repeats (bank account, booking date, amount, reference) is rejected with
// storage.ErrDuplicate and nothing is written.
func (t *sqlTx) InsertBankTransaction(ctx context.Context, bt *models.BankTransaction) error {
	if bt.CreatedAt.IsZero() {
		bt.CreatedAt = time.Now().UTC()
	}
	if bt.MatchState == "" {
		bt.MatchState = models.MatchUnmatched
	}

	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO bank_transactions (association_id, bank_account_id, booking_date, amount, counterparty_name,
		                                counterparty_iban, remittance_text, reference, import_batch, match_state,
		                                created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (bank_account_id, booking_date, amount, reference) DO NOTHING`,
		bt.AssociationID, bt.BankAccountID, formatDate(bt.BookingDate), toCents(bt.Amount), bt.CounterpartyName,
		models.NormalizeIBAN(bt.CounterpartyIBAN), bt.RemittanceText, bt.Reference, bt.ImportBatch, bt.MatchState,
		bt.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert bank transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check bank transaction insert: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("bank transaction %s %s %s: %w",
			formatDate(bt.BookingDate), models.FormatMoney(bt.Amount), bt.Reference, storage.ErrDuplicate)
	}

	bt.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read bank transaction id: %w", err)
	}
	return nil
}

// GetBankTransaction retrieves an imported row by ID.
func (t *sqlTx) GetBankTransaction(ctx context.Context, id int64) (*models.BankTransaction, error) {
	bt, err := scanBankTransaction(t.tx.QueryRowContext(ctx,
		`SELECT `+bankTransactionColumns+` FROM bank_transactions WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "bank transaction", id)
	}
	return bt, nil
}

// ListUnmatched returns the association's UNMATCHED rows in booking order.
func (t *sqlTx) ListUnmatched(ctx context.Context, associationID int64) ([]*models.BankTransaction, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+bankTransactionColumns+` FROM bank_transactions
		 WHERE association_id = ? AND match_state = ?
		 ORDER BY booking_date, id`,
		associationID, models.MatchUnmatched)
	if err != nil {
		return nil, fmt.Errorf("failed to list bank transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.BankTransaction
	for rows.Next() {
		bt, err := scanBankTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bank transaction: %w", err)
		}
		out = append(out, bt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bank transactions: %w", err)
	}
	return out, nil
}

// MarkMatched moves an UNMATCHED row to MATCHED. It returns storage.ErrNotFound
// if no UNMATCHED row with that ID exists.
func (t *sqlTx) MarkMatched(ctx context.Context, id, memberID, paymentID int64, rule string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE bank_transactions SET match_state = ?, match_rule = ?, member_id = ?, payment_id = ?
		 WHERE id = ? AND match_state = ?`,
		models.MatchMatched, rule, memberID, paymentID, id, models.MatchUnmatched,
	)
	if err != nil {
		return fmt.Errorf("failed to mark bank transaction matched: %w", err)
	}
	return requireRow(res, "unmatched bank transaction", id)
}

// MarkSkipped moves an UNMATCHED row to SKIPPED.
func (t *sqlTx) MarkSkipped(ctx context.Context, id int64, reason string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE bank_transactions SET match_state = ?, skip_reason = ?
		 WHERE id = ? AND match_state = ?`,
		models.MatchSkipped, reason, id, models.MatchUnmatched,
	)
	if err != nil {
		return fmt.Errorf("failed to mark bank transaction skipped: %w", err)
	}
	return requireRow(res, "unmatched bank transaction", id)
}
