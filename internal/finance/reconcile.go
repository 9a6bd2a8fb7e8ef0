package finance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/vereinsledger/internal/matcher"
	"github.com/mmynk/vereinsledger/internal/models"
	"github.com/mmynk/vereinsledger/internal/statement"
	"github.com/mmynk/vereinsledger/internal/storage"
)

// RowStatus is the outcome of one statement row.
type RowStatus string

const (
	// RowSuccess: imported, matched and posted.
	RowSuccess RowStatus = "SUCCESS"
	// RowUnmatched: imported and waiting in the unmatched queue.
	RowUnmatched RowStatus = "UNMATCHED"
	// RowSkipped: already imported earlier.
	RowSkipped RowStatus = "SKIPPED"
	// RowFailed: invalid, or matched but not postable. A failed row that was
	// imported stays in the unmatched queue.
	RowFailed RowStatus = "FAILED"
)

// RowResult reports what happened to one statement row.
type RowResult struct {
	// Row is the 1-based row index, or the source line for file imports.
	Row    int
	Status RowStatus

	BankTransactionID int64
	PaymentID         int64
	MemberID          int64
	Rule              string
	Error             string
}

// ImportResult summarizes a statement import. Every row is counted in
// exactly one of the four counts.
type ImportResult struct {
	Batch          string
	SuccessCount   int
	FailedCount    int
	SkippedCount   int
	UnmatchedCount int
	Details        []RowResult
}

func (r *ImportResult) add(row RowResult) {
	switch row.Status {
	case RowSuccess:
		r.SuccessCount++
	case RowUnmatched:
		r.UnmatchedCount++
	case RowSkipped:
		r.SkippedCount++
	default:
		r.FailedCount++
	}
	r.Details = append(r.Details, row)
}

// ImportStatement imports statement rows for one of the association's bank
// accounts. Rows are processed independently: a failing row is reported and
// the import goes on. Rows already imported are skipped, so importing the
// same statement twice creates nothing new.
func (s *Service) ImportStatement(ctx context.Context, associationID, bankAccountID int64, rows []models.StatementRow) (*ImportResult, error) {
	return s.importStatement(ctx, associationID, bankAccountID, rows, nil)
}

// ImportStatementFile parses a CSV or XLSX export and imports its rows. Rows
// the parser could not read are reported as failed with their line number.
func (s *Service) ImportStatementFile(ctx context.Context, associationID, bankAccountID int64, filename string, content []byte) (*ImportResult, error) {
	parsed, err := statement.Parse(filename, content)
	if err != nil {
		return nil, validationf("failed to parse statement %s: %v", filename, err)
	}

	result, err := s.importStatement(ctx, associationID, bankAccountID, parsed.Rows, parsed.Lines)
	if err != nil {
		return nil, err
	}
	for _, rowErr := range parsed.Errors {
		s.metrics.ImportRow(strings.ToLower(string(RowFailed)))
		result.add(RowResult{Row: rowErr.Line, Status: RowFailed, Error: rowErr.Err.Error()})
	}
	sort.SliceStable(result.Details, func(i, j int) bool { return result.Details[i].Row < result.Details[j].Row })
	return result, nil
}

func (s *Service) importStatement(ctx context.Context, associationID, bankAccountID int64, rows []models.StatementRow, lines []int) (*ImportResult, error) {
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		account, err := tx.GetBankAccount(ctx, bankAccountID)
		if err != nil {
			return err
		}
		if account.AssociationID != associationID {
			return notInAssociation("bank account", bankAccountID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start import: %w", err)
	}

	result := &ImportResult{Batch: uuid.NewString()}
	for i, row := range rows {
		n := i + 1
		if lines != nil {
			n = lines[i]
		}
		rr := s.importRow(ctx, associationID, bankAccountID, result.Batch, row)
		rr.Row = n
		s.metrics.ImportRow(strings.ToLower(string(rr.Status)))
		result.add(rr)
	}

	slog.Info("Statement imported",
		"association_id", associationID,
		"bank_account_id", bankAccountID,
		"batch", result.Batch,
		"rows", len(rows),
		"success", result.SuccessCount,
		"unmatched", result.UnmatchedCount,
		"skipped", result.SkippedCount,
		"failed", result.FailedCount,
	)
	return result, nil
}

func (s *Service) importRow(ctx context.Context, associationID, bankAccountID int64, batch string, row models.StatementRow) RowResult {
	switch {
	case row.BookingDate.IsZero():
		return RowResult{Status: RowFailed, Error: "booking date is required"}
	case row.Amount.IsZero():
		return RowResult{Status: RowFailed, Error: "amount must not be zero"}
	case !models.IsMoney(row.Amount):
		return RowResult{Status: RowFailed, Error: fmt.Sprintf("amount %s has more than %d decimal places", row.Amount, models.MoneyPlaces)}
	}

	txn := &models.BankTransaction{
		AssociationID:    associationID,
		BankAccountID:    bankAccountID,
		BookingDate:      models.Day(row.BookingDate),
		Amount:           row.Amount,
		CounterpartyName: row.CounterpartyName,
		CounterpartyIBAN: row.CounterpartyIBAN,
		RemittanceText:   row.RemittanceText,
		Reference:        row.Reference,
		ImportBatch:      batch,
		MatchState:       models.MatchUnmatched,
		CreatedAt:        s.now().UTC(),
	}
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		return tx.InsertBankTransaction(ctx, txn)
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return RowResult{Status: RowSkipped}
	}
	if err != nil {
		return RowResult{Status: RowFailed, Error: err.Error()}
	}

	rr := RowResult{Status: RowUnmatched, BankTransactionID: txn.ID}
	match, err := s.matcher.Match(ctx, txn)
	if err != nil {
		rr.Status, rr.Error = RowFailed, err.Error()
		return rr
	}
	if match.Outcome != matcher.Unique {
		return rr
	}

	rr.Rule = string(match.Rule)
	var settled *settlement
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		member, err := memberOf(ctx, tx, associationID, match.MemberID)
		if err != nil {
			return err
		}
		settled, err = s.settle(ctx, tx, txn, member, match.ClaimID, match.Rule)
		return err
	})
	if err != nil {
		slog.Warn("Matched bank transaction could not be posted",
			"bank_transaction_id", txn.ID,
			"member_id", match.MemberID,
			"rule", match.Rule,
			"error", err,
		)
		rr.Status, rr.Error = RowFailed, err.Error()
		return rr
	}
	s.settled(txn, settled, match.Rule)

	rr.Status = RowSuccess
	rr.MemberID = settled.payment.MemberID
	rr.PaymentID = settled.payment.ID
	return rr
}

// settlement is what settle wrote for a bank transaction.
type settlement struct {
	payment     *models.Payment
	allocations []*models.Allocation
	entry       *models.CashBookEntry
}

// settle books a bank transaction for a member: the payment, its allocations
// (to claimID first, when given), the bank column entry on the member payment
// account and the MATCHED state, all in tx.
func (s *Service) settle(ctx context.Context, tx storage.Tx, txn *models.BankTransaction, member *models.Member, claimID int64, rule matcher.Rule) (*settlement, error) {
	direction, column := models.DirectionIn, models.ColumnBankIn
	if !txn.IsInflow() {
		direction, column = models.DirectionOut, models.ColumnBankOut
	}
	reference := txn.Reference
	if reference == "" {
		reference = txn.RemittanceText
	}

	payment := &models.Payment{
		AssociationID:     txn.AssociationID,
		MemberID:          member.ID,
		Amount:            txn.Amount.Abs(),
		Currency:          s.currency,
		Direction:         direction,
		PaymentDate:       txn.BookingDate,
		Method:            models.MethodTransfer,
		Reference:         reference,
		BankAccountID:     &txn.BankAccountID,
		BankTransactionID: &txn.ID,
		Status:            models.PaymentConfirmed,
		Allocated:         decimal.Zero,
		CreatedAt:         s.now().UTC(),
	}
	if err := tx.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	out := &settlement{payment: payment}

	if claimID != 0 && direction == models.DirectionIn {
		claim, err := claimOf(ctx, tx, txn.AssociationID, claimID)
		if err != nil {
			return nil, err
		}
		if amount := decimal.Min(claim.Remaining(), payment.Amount); amount.IsPositive() && claim.MemberID == member.ID {
			alloc, err := s.allocate(ctx, tx, claim, payment, amount)
			if err != nil {
				return nil, err
			}
			out.allocations = append(out.allocations, alloc)
		}
	}
	rest, err := s.autoAllocate(ctx, tx, payment)
	if err != nil {
		return nil, err
	}
	out.allocations = append(out.allocations, rest...)

	out.entry, err = s.postEntry(ctx, tx, EntryInput{
		AssociationID: txn.AssociationID,
		Year:          txn.BookingDate.Year(),
		VoucherDate:   txn.BookingDate,
		AccountCode:   s.account,
		Description:   paymentDescription(member, txn.RemittanceText),
		Column:        column,
		Amount:        payment.Amount,
		Links: models.EntryLinks{
			MemberID:          &payment.MemberID,
			PaymentID:         &payment.ID,
			BankTransactionID: &txn.ID,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := tx.MarkMatched(ctx, txn.ID, member.ID, payment.ID, string(rule)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: bank transaction %d", ErrAlreadyMatched, txn.ID)
		}
		return nil, err
	}
	txn.MatchState = models.MatchMatched
	txn.MatchRule = string(rule)
	txn.MemberID = &member.ID
	txn.PaymentID = &payment.ID
	return out, nil
}

// settled logs and counts a committed settlement.
func (s *Service) settled(txn *models.BankTransaction, st *settlement, rule matcher.Rule) {
	s.postedEntry(st.entry)
	s.metrics.Matched(string(rule))
	slog.Info("Bank transaction matched",
		"association_id", txn.AssociationID,
		"bank_transaction_id", txn.ID,
		"member_id", st.payment.MemberID,
		"payment_id", st.payment.ID,
		"rule", rule,
		"amount", models.FormatMoney(txn.Amount),
		"allocations", len(st.allocations),
	)
}

// GetUnmatched returns the association's bank transactions waiting for
// manual resolution.
func (s *Service) GetUnmatched(ctx context.Context, associationID int64) (txns []*models.BankTransaction, err error) {
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		txns, err = tx.ListUnmatched(ctx, associationID)
		return err
	})
	return txns, err
}

// MatchToMember resolves an unmatched bank transaction by hand. It books
// exactly what an automatic match would.
func (s *Service) MatchToMember(ctx context.Context, associationID, bankTransactionID, memberID int64) (*PaymentResult, error) {
	var (
		txn     *models.BankTransaction
		settled *settlement
	)
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		txn, err = unmatchedTransaction(ctx, tx, associationID, bankTransactionID)
		if err != nil {
			return err
		}
		member, err := memberOf(ctx, tx, associationID, memberID)
		if err != nil {
			return err
		}
		settled, err = s.settle(ctx, tx, txn, member, 0, matcher.RuleManual)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.settled(txn, settled, matcher.RuleManual)

	return &PaymentResult{
		Payment:     settled.payment,
		Allocations: settled.allocations,
		Entry:       settled.entry,
	}, nil
}

// SkipTransaction marks an unmatched bank transaction as needing no posting,
// e.g. a transfer between the association's own accounts.
func (s *Service) SkipTransaction(ctx context.Context, associationID, bankTransactionID int64, reason string) error {
	if reason == "" {
		return validationf("a reason is required to skip a bank transaction")
	}
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := unmatchedTransaction(ctx, tx, associationID, bankTransactionID); err != nil {
			return err
		}
		if err := tx.MarkSkipped(ctx, bankTransactionID, reason); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: bank transaction %d", ErrAlreadyMatched, bankTransactionID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("Bank transaction skipped",
		"association_id", associationID,
		"bank_transaction_id", bankTransactionID,
		"reason", reason,
	)
	return nil
}

// unmatchedTransaction loads a transaction of the association that is still
// UNMATCHED.
func unmatchedTransaction(ctx context.Context, tx storage.Tx, associationID, id int64) (*models.BankTransaction, error) {
	txn, err := tx.GetBankTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.AssociationID != associationID {
		return nil, notInAssociation("bank transaction", id)
	}
	if txn.MatchState != models.MatchUnmatched {
		return nil, fmt.Errorf("%w: bank transaction %d is %s", ErrAlreadyMatched, id, txn.MatchState)
	}
	return txn, nil
}
