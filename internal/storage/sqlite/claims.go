package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/vereinsledger/internal/models"
)

const claimColumns = `c.id, c.association_id, c.member_id, c.kind, c.amount, c.currency, c.period,
	c.due_date, c.description, c.status, c.created_at, c.settled_at, c.deleted,
	COALESCE((SELECT SUM(a.amount) FROM allocations a WHERE a.claim_id = c.id), 0)`

func scanClaim(row interface{ Scan(...any) error }) (*models.Claim, error) {
	c := &models.Claim{}
	var (
		amount, allocated, createdAt int64
		period                       sql.NullString
		dueDate                      string
		settledAt                    sql.NullInt64
		deleted                      int
	)
	if err := row.Scan(&c.ID, &c.AssociationID, &c.MemberID, &c.Kind, &amount, &c.Currency, &period,
		&dueDate, &c.Description, &c.Status, &createdAt, &settledAt, &deleted, &allocated); err != nil {
		return nil, err
	}

	var err error
	if c.DueDate, err = parseDate(dueDate); err != nil {
		return nil, err
	}
	if period.Valid {
		p, err := models.ParsePeriod(period.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt period of claim %d: %w", c.ID, err)
		}
		c.Period = &p
	}
	c.Amount = fromCents(amount)
	c.Allocated = fromCents(allocated)
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	c.SettledAt = unixPtr(settledAt)
	c.Deleted = deleted != 0
	return c, nil
}

// CreateClaim persists a new claim and sets its ID.
func (t *sqlTx) CreateClaim(ctx context.Context, c *models.Claim) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	var period interface{} = nil
	if c.Period != nil {
		period = c.Period.String()
	}

	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO claims (association_id, member_id, kind, amount, currency, period, due_date,
		                     description, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.AssociationID, c.MemberID, c.Kind, toCents(c.Amount), c.Currency, period, formatDate(c.DueDate),
		c.Description, c.Status, c.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read claim id: %w", err)
	}
	return nil
}

// GetClaim retrieves a claim by ID, including its allocated sum.
func (t *sqlTx) GetClaim(ctx context.Context, claimID int64) (*models.Claim, error) {
	c, err := scanClaim(t.tx.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claims c WHERE c.id = ?`, claimID))
	if err != nil {
		return nil, notFound(err, "claim", claimID)
	}
	return c, nil
}

// ListClaimsByMember returns all claims of a member, including deleted ones.
func (t *sqlTx) ListClaimsByMember(ctx context.Context, memberID int64) ([]*models.Claim, error) {
	return t.queryClaims(ctx,
		`SELECT `+claimColumns+` FROM claims c WHERE c.member_id = ? ORDER BY c.due_date, c.id`,
		memberID)
}

// ListOpenClaims returns the member's unpaid, non-deleted claims, oldest first.
func (t *sqlTx) ListOpenClaims(ctx context.Context, memberID int64) ([]*models.Claim, error) {
	return t.queryClaims(ctx,
		`SELECT `+claimColumns+` FROM claims c
		 WHERE c.member_id = ? AND c.status <> ? AND c.deleted = 0
		 ORDER BY c.due_date, c.id`,
		memberID, models.ClaimPaid)
}

// ListUnpaidClaims returns the association's unpaid, non-deleted claims, oldest first.
func (t *sqlTx) ListUnpaidClaims(ctx context.Context, associationID int64) ([]*models.Claim, error) {
	return t.queryClaims(ctx,
		`SELECT `+claimColumns+` FROM claims c
		 WHERE c.association_id = ? AND c.status <> ? AND c.deleted = 0
		 ORDER BY c.due_date, c.id`,
		associationID, models.ClaimPaid)
}

func (t *sqlTx) queryClaims(ctx context.Context, query string, args ...any) ([]*models.Claim, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	var claims []*models.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate claims: %w", err)
	}
	return claims, nil
}

// UpdateClaimStatus stores a derived status.
func (t *sqlTx) UpdateClaimStatus(ctx context.Context, claimID int64, status models.ClaimStatus, settledAt *time.Time) error {
	var settled interface{} = nil
	if settledAt != nil {
		settled = settledAt.Unix()
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE claims SET status = ?, settled_at = ? WHERE id = ?`,
		status, settled, claimID,
	)
	if err != nil {
		return fmt.Errorf("failed to update claim status: %w", err)
	}
	return requireRow(res, "claim", claimID)
}

// SoftDeleteClaim flags a claim as deleted. The row and its allocations stay.
func (t *sqlTx) SoftDeleteClaim(ctx context.Context, claimID int64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE claims SET deleted = 1 WHERE id = ?`, claimID)
	if err != nil {
		return fmt.Errorf("failed to delete claim: %w", err)
	}
	return requireRow(res, "claim", claimID)
}

const paymentColumns = `p.id, p.association_id, p.member_id, p.amount, p.currency, p.direction,
	p.payment_date, p.method, p.reference, p.bank_account_id, p.bank_transaction_id, p.status, p.created_at,
	COALESCE((SELECT SUM(a.amount) FROM allocations a WHERE a.payment_id = p.id), 0)`

func scanPayment(row interface{ Scan(...any) error }) (*models.Payment, error) {
	p := &models.Payment{}
	var (
		amount, allocated, createdAt   int64
		paymentDate                    string
		bankAccountID, bankTransaction sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.AssociationID, &p.MemberID, &amount, &p.Currency, &p.Direction,
		&paymentDate, &p.Method, &p.Reference, &bankAccountID, &bankTransaction, &p.Status, &createdAt,
		&allocated); err != nil {
		return nil, err
	}

	var err error
	if p.PaymentDate, err = parseDate(paymentDate); err != nil {
		return nil, err
	}
	p.Amount = fromCents(amount)
	p.Allocated = fromCents(allocated)
	p.BankAccountID = int64Ptr(bankAccountID)
	p.BankTransactionID = int64Ptr(bankTransaction)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	return p, nil
}

// CreatePayment persists a new payment and sets its ID.
func (t *sqlTx) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO payments (association_id, member_id, amount, currency, direction, payment_date, method,
		                       reference, bank_account_id, bank_transaction_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.AssociationID, p.MemberID, toCents(p.Amount), p.Currency, p.Direction, formatDate(p.PaymentDate),
		p.Method, p.Reference, nullInt64(p.BankAccountID), nullInt64(p.BankTransactionID), p.Status,
		p.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read payment id: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment by ID, including its allocated sum.
func (t *sqlTx) GetPayment(ctx context.Context, paymentID int64) (*models.Payment, error) {
	p, err := scanPayment(t.tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments p WHERE p.id = ?`, paymentID))
	if err != nil {
		return nil, notFound(err, "payment", paymentID)
	}
	return p, nil
}

// ListPaymentsByMember returns a member's payments in date order.
func (t *sqlTx) ListPaymentsByMember(ctx context.Context, memberID int64) ([]*models.Payment, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments p WHERE p.member_id = ? ORDER BY p.payment_date, p.id`,
		memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return payments, nil
}

const allocationColumns = `id, claim_id, payment_id, amount, created_at, updated_at`

func scanAllocation(row interface{ Scan(...any) error }) (*models.Allocation, error) {
	a := &models.Allocation{}
	var amount, createdAt, updatedAt int64
	if err := row.Scan(&a.ID, &a.ClaimID, &a.PaymentID, &amount, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.Amount = fromCents(amount)
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	a.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return a, nil
}

// GetAllocation retrieves an allocation by ID.
func (t *sqlTx) GetAllocation(ctx context.Context, allocationID int64) (*models.Allocation, error) {
	a, err := scanAllocation(t.tx.QueryRowContext(ctx,
		`SELECT `+allocationColumns+` FROM allocations WHERE id = ?`, allocationID))
	if err != nil {
		return nil, notFound(err, "allocation", allocationID)
	}
	return a, nil
}

// FindAllocation retrieves the allocation of a (claim, payment) pair.
func (t *sqlTx) FindAllocation(ctx context.Context, claimID, paymentID int64) (*models.Allocation, error) {
	a, err := scanAllocation(t.tx.QueryRowContext(ctx,
		`SELECT `+allocationColumns+` FROM allocations WHERE claim_id = ? AND payment_id = ?`,
		claimID, paymentID))
	if err != nil {
		return nil, notFound(err, "allocation", fmt.Sprintf("claim=%d payment=%d", claimID, paymentID))
	}
	return a, nil
}

// CreateAllocation persists a new allocation and sets its ID.
func (t *sqlTx) CreateAllocation(ctx context.Context, a *models.Allocation) error {
	ts := time.Now().UTC()
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO allocations (claim_id, payment_id, amount, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		a.ClaimID, a.PaymentID, toCents(a.Amount), ts.Unix(), ts.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert allocation: %w", err)
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read allocation id: %w", err)
	}
	a.CreatedAt, a.UpdatedAt = ts, ts
	return nil
}

// UpdateAllocationAmount overwrites an allocation's amount.
func (t *sqlTx) UpdateAllocationAmount(ctx context.Context, allocationID int64, amount decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE allocations SET amount = ?, updated_at = ? WHERE id = ?`,
		toCents(amount), now(), allocationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update allocation: %w", err)
	}
	return requireRow(res, "allocation", allocationID)
}

// DeleteAllocation removes an allocation.
func (t *sqlTx) DeleteAllocation(ctx context.Context, allocationID int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM allocations WHERE id = ?`, allocationID)
	if err != nil {
		return fmt.Errorf("failed to delete allocation: %w", err)
	}
	return requireRow(res, "allocation", allocationID)
}

// SumAllocatedForClaim returns the allocated sum of a claim.
func (t *sqlTx) SumAllocatedForClaim(ctx context.Context, claimID int64) (decimal.Decimal, error) {
	return t.sumAllocations(ctx, "claim_id", claimID)
}

// SumAllocatedForPayment returns the allocated sum of a payment.
func (t *sqlTx) SumAllocatedForPayment(ctx context.Context, paymentID int64) (decimal.Decimal, error) {
	return t.sumAllocations(ctx, "payment_id", paymentID)
}

func (t *sqlTx) sumAllocations(ctx context.Context, column string, id int64) (decimal.Decimal, error) {
	var cents int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM allocations WHERE `+column+` = ?`, id,
	).Scan(&cents)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum allocations: %w", err)
	}
	return fromCents(cents), nil
}

// ListAllocationsByClaim returns the allocations of a claim in creation order.
func (t *sqlTx) ListAllocationsByClaim(ctx context.Context, claimID int64) ([]*models.Allocation, error) {
	return t.queryAllocations(ctx,
		`SELECT `+allocationColumns+` FROM allocations WHERE claim_id = ? ORDER BY id`, claimID)
}

// ListAllocationsByPayment returns the allocations of a payment in creation order.
func (t *sqlTx) ListAllocationsByPayment(ctx context.Context, paymentID int64) ([]*models.Allocation, error) {
	return t.queryAllocations(ctx,
		`SELECT `+allocationColumns+` FROM allocations WHERE payment_id = ? ORDER BY id`, paymentID)
}

func (t *sqlTx) queryAllocations(ctx context.Context, query string, args ...any) ([]*models.Allocation, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	defer rows.Close()

	var out []*models.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate allocations: %w", err)
	}
	return out, nil
}
