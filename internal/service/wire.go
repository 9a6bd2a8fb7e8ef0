package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/vereinsledger/internal/finance"
	"github.com/mmynk/vereinsledger/internal/models"
)

// Wire forms of the engine's records. Amounts travel as decimal strings and
// dates as "2006-01-02".

type Claim struct {
	ID          int64           `json:"id"`
	MemberID    int64           `json:"member_id"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Period      string          `json:"period,omitempty"`
	DueDate     string          `json:"due_date"`
	Description string          `json:"description,omitempty"`
	Status      string          `json:"status"`
	Allocated   decimal.Decimal `json:"allocated"`
	Remaining   decimal.Decimal `json:"remaining"`
	Reference   string          `json:"reference"`
	Overdue     bool            `json:"overdue"`
	SettledAt   *time.Time      `json:"settled_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toClaim(c *models.Claim, now time.Time) *Claim {
	out := &Claim{
		ID:          c.ID,
		MemberID:    c.MemberID,
		Kind:        string(c.Kind),
		Amount:      c.Amount,
		Currency:    c.Currency,
		DueDate:     c.DueDate.Format(models.DateLayout),
		Description: c.Description,
		Status:      string(c.Status),
		Allocated:   c.Allocated,
		Remaining:   c.Remaining(),
		Reference:   c.Reference(),
		Overdue:     c.IsOverdue(now),
		SettledAt:   c.SettledAt,
		CreatedAt:   c.CreatedAt,
	}
	if c.Period != nil {
		out.Period = c.Period.String()
	}
	return out
}

func toClaims(claims []*models.Claim, now time.Time) []*Claim {
	out := make([]*Claim, len(claims))
	for i, c := range claims {
		out[i] = toClaim(c, now)
	}
	return out
}

type Payment struct {
	ID                int64           `json:"id"`
	MemberID          int64           `json:"member_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Direction         string          `json:"direction"`
	PaymentDate       string          `json:"payment_date"`
	Method            string          `json:"method"`
	Reference         string          `json:"reference,omitempty"`
	BankAccountID     *int64          `json:"bank_account_id,omitempty"`
	BankTransactionID *int64          `json:"bank_transaction_id,omitempty"`
	Status            string          `json:"status"`
	Allocated         decimal.Decimal `json:"allocated"`
	Unallocated       decimal.Decimal `json:"unallocated"`
}

func toPayment(p *models.Payment) *Payment {
	if p == nil {
		return nil
	}
	return &Payment{
		ID:                p.ID,
		MemberID:          p.MemberID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Direction:         string(p.Direction),
		PaymentDate:       p.PaymentDate.Format(models.DateLayout),
		Method:            string(p.Method),
		Reference:         p.Reference,
		BankAccountID:     p.BankAccountID,
		BankTransactionID: p.BankTransactionID,
		Status:            string(p.Status),
		Allocated:         p.Allocated,
		Unallocated:       p.Unallocated(),
	}
}

type Allocation struct {
	ID        int64           `json:"id"`
	ClaimID   int64           `json:"claim_id"`
	PaymentID int64           `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
}

func toAllocations(allocations []*models.Allocation) []*Allocation {
	out := make([]*Allocation, len(allocations))
	for i, a := range allocations {
		out[i] = &Allocation{ID: a.ID, ClaimID: a.ClaimID, PaymentID: a.PaymentID, Amount: a.Amount}
	}
	return out
}

type Entry struct {
	ID                int64           `json:"id"`
	Year              int             `json:"year"`
	VoucherNumber     int             `json:"voucher_number"`
	VoucherDate       string          `json:"voucher_date"`
	AccountCode       string          `json:"account_code"`
	Description       string          `json:"description"`
	Column            string          `json:"column"`
	Amount            decimal.Decimal `json:"amount"`
	MemberID          *int64          `json:"member_id,omitempty"`
	PaymentID         *int64          `json:"payment_id,omitempty"`
	BankTransactionID *int64          `json:"bank_transaction_id,omitempty"`
}

func toEntry(e *models.CashBookEntry) *Entry {
	if e == nil {
		return nil
	}
	column, amount := e.Column()
	return &Entry{
		ID:                e.ID,
		Year:              e.Year,
		VoucherNumber:     e.VoucherNumber,
		VoucherDate:       e.VoucherDate.Format(models.DateLayout),
		AccountCode:       e.AccountCode,
		Description:       e.Description,
		Column:            string(column),
		Amount:            amount,
		MemberID:          e.MemberID,
		PaymentID:         e.PaymentID,
		BankTransactionID: e.BankTransactionID,
	}
}

// PaymentResult is a payment with what was booked for it.
type PaymentResult struct {
	Payment     *Payment      `json:"payment"`
	Allocations []*Allocation `json:"allocations"`
	Entry       *Entry        `json:"entry,omitempty"`
}

func toPaymentResult(r *finance.PaymentResult) *PaymentResult {
	return &PaymentResult{
		Payment:     toPayment(r.Payment),
		Allocations: toAllocations(r.Allocations),
		Entry:       toEntry(r.Entry),
	}
}

type Balances struct {
	Cash    decimal.Decimal `json:"cash"`
	Bank    decimal.Decimal `json:"bank"`
	Savings decimal.Decimal `json:"savings"`
}

func toBalances(b models.Balances) Balances {
	return Balances{Cash: b.Cash, Bank: b.Bank, Savings: b.Savings}
}

type ColumnTotals struct {
	CashIn  decimal.Decimal `json:"cash_in"`
	CashOut decimal.Decimal `json:"cash_out"`
	BankIn  decimal.Decimal `json:"bank_in"`
	BankOut decimal.Decimal `json:"bank_out"`
	Entries int             `json:"entries"`
}

func toTotals(t models.ColumnTotals) ColumnTotals {
	return ColumnTotals{CashIn: t.CashIn, CashOut: t.CashOut, BankIn: t.BankIn, BankOut: t.BankOut, Entries: t.Entries}
}

type Closing struct {
	Year        int          `json:"year"`
	Opening     Balances     `json:"opening"`
	Closing     Balances     `json:"closing"`
	Totals      ColumnTotals `json:"totals"`
	ClosingDate string       `json:"closing_date"`
	Reviewed    bool         `json:"reviewed"`
	ReviewedBy  string       `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time   `json:"reviewed_at,omitempty"`
}

func toClosing(c *models.YearClosing) *Closing {
	return &Closing{
		Year:        c.Year,
		Opening:     toBalances(c.Opening),
		Closing:     toBalances(c.Closing),
		Totals:      toTotals(c.Totals),
		ClosingDate: c.ClosingDate.Format(models.DateLayout),
		Reviewed:    c.Reviewed,
		ReviewedBy:  c.ReviewedBy,
		ReviewedAt:  c.ReviewedAt,
	}
}

type BankTransaction struct {
	ID               int64           `json:"id"`
	BankAccountID    int64           `json:"bank_account_id"`
	BookingDate      string          `json:"booking_date"`
	Amount           decimal.Decimal `json:"amount"`
	CounterpartyName string          `json:"counterparty_name,omitempty"`
	CounterpartyIBAN string          `json:"counterparty_iban,omitempty"`
	RemittanceText   string          `json:"remittance_text,omitempty"`
	Reference        string          `json:"reference,omitempty"`
	ImportBatch      string          `json:"import_batch"`
	MatchState       string          `json:"match_state"`
}

func toBankTransactions(txns []*models.BankTransaction) []*BankTransaction {
	out := make([]*BankTransaction, len(txns))
	for i, t := range txns {
		out[i] = &BankTransaction{
			ID:               t.ID,
			BankAccountID:    t.BankAccountID,
			BookingDate:      t.BookingDate.Format(models.DateLayout),
			Amount:           t.Amount,
			CounterpartyName: t.CounterpartyName,
			CounterpartyIBAN: t.CounterpartyIBAN,
			RemittanceText:   t.RemittanceText,
			Reference:        t.Reference,
			ImportBatch:      t.ImportBatch,
			MatchState:       string(t.MatchState),
		}
	}
	return out
}

type StatementRow struct {
	BookingDate      string          `json:"booking_date"`
	Amount           decimal.Decimal `json:"amount"`
	CounterpartyName string          `json:"counterparty_name,omitempty"`
	CounterpartyIBAN string          `json:"counterparty_iban,omitempty"`
	RemittanceText   string          `json:"remittance_text,omitempty"`
	Reference        string          `json:"reference,omitempty"`
}

type RowResult struct {
	Row               int    `json:"row"`
	Status            string `json:"status"`
	BankTransactionID int64  `json:"bank_transaction_id,omitempty"`
	PaymentID         int64  `json:"payment_id,omitempty"`
	MemberID          int64  `json:"member_id,omitempty"`
	Rule              string `json:"rule,omitempty"`
	Error             string `json:"error,omitempty"`
}

type ImportResult struct {
	Batch          string       `json:"batch"`
	SuccessCount   int          `json:"success_count"`
	FailedCount    int          `json:"failed_count"`
	SkippedCount   int          `json:"skipped_count"`
	UnmatchedCount int          `json:"unmatched_count"`
	Details        []*RowResult `json:"details"`
}

func toImportResult(r *finance.ImportResult) *ImportResult {
	out := &ImportResult{
		Batch:          r.Batch,
		SuccessCount:   r.SuccessCount,
		FailedCount:    r.FailedCount,
		SkippedCount:   r.SkippedCount,
		UnmatchedCount: r.UnmatchedCount,
		Details:        make([]*RowResult, len(r.Details)),
	}
	for i, d := range r.Details {
		out.Details[i] = &RowResult{
			Row:               d.Row,
			Status:            string(d.Status),
			BankTransactionID: d.BankTransactionID,
			PaymentID:         d.PaymentID,
			MemberID:          d.MemberID,
			Rule:              string(d.Rule),
			Error:             d.Error,
		}
	}
	return out
}

type PassThroughItem struct {
	ID             int64           `json:"id"`
	AccountCode    string          `json:"account_code"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	Status         string          `json:"status"`
	InflowDate     string          `json:"inflow_date"`
	InflowEntryID  int64           `json:"inflow_entry_id"`
	OutflowDate    string          `json:"outflow_date,omitempty"`
	OutflowEntryID *int64          `json:"outflow_entry_id,omitempty"`
}

func toPassThrough(item *models.PassThroughItem) *PassThroughItem {
	out := &PassThroughItem{
		ID:             item.ID,
		AccountCode:    item.AccountCode,
		Description:    item.Description,
		Amount:         item.Amount,
		Status:         string(item.Status),
		InflowDate:     item.InflowDate.Format(models.DateLayout),
		InflowEntryID:  item.InflowEntryID,
		OutflowEntryID: item.OutflowEntryID,
	}
	if item.OutflowDate != nil {
		out.OutflowDate = item.OutflowDate.Format(models.DateLayout)
	}
	return out
}

type DonationDetail struct {
	Value    decimal.Decimal `json:"value"`
	Count    int             `json:"count"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type Donation struct {
	ID              int64             `json:"id"`
	Date            string            `json:"date"`
	Occasion        string            `json:"occasion"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	CountedBy       string            `json:"counted_by,omitempty"`
	CashBookEntryID *int64            `json:"cash_book_entry_id,omitempty"`
	Details         []*DonationDetail `json:"details"`
}

func toDonation(p *models.DonationProtocol) *Donation {
	out := &Donation{
		ID:              p.ID,
		Date:            p.Date.Format(models.DateLayout),
		Occasion:        p.Occasion,
		TotalAmount:     p.TotalAmount,
		CountedBy:       p.CountedBy,
		CashBookEntryID: p.CashBookEntryID,
		Details:         make([]*DonationDetail, len(p.Details)),
	}
	for i, d := range p.Details {
		out.Details[i] = &DonationDetail{Value: d.Value, Count: d.Count, Subtotal: d.Subtotal}
	}
	return out
}
