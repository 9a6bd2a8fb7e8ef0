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

// Allocate applies amount of a payment to a claim. Repeated allocations of
// the same pair accumulate into one row. Nothing is written if the claim or
// the payment would be over-allocated.
func (s *Service) Allocate(ctx context.Context, associationID, paymentID, claimID int64, amount decimal.Decimal) (*models.Allocation, error) {
	if err := checkAmount("allocation amount", amount); err != nil {
		return nil, err
	}

	var alloc *models.Allocation
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		payment, err := paymentOf(ctx, tx, associationID, paymentID)
		if err != nil {
			return err
		}
		claim, err := claimOf(ctx, tx, associationID, claimID)
		if err != nil {
			return err
		}
		alloc, err = s.allocate(ctx, tx, claim, payment, amount)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrOverAllocation) {
			s.metrics.AllocationRejected()
			slog.Warn("Allocation rejected",
				"association_id", associationID,
				"payment_id", paymentID,
				"claim_id", claimID,
				"amount", models.FormatMoney(amount),
				"error", err,
			)
		}
		return nil, err
	}

	slog.Info("Allocation recorded",
		"association_id", associationID,
		"payment_id", paymentID,
		"claim_id", claimID,
		"amount", models.FormatMoney(amount),
	)
	return alloc, nil
}

// allocate checks both sides of the allocation against the sums read in tx,
// upserts the row and re-derives the claim status.
func (s *Service) allocate(ctx context.Context, tx storage.Tx, claim *models.Claim, payment *models.Payment, amount decimal.Decimal) (*models.Allocation, error) {
	if payment.Direction != models.DirectionIn {
		return nil, validationf("outbound payment %d cannot be allocated to claims", payment.ID)
	}
	if claim.Deleted {
		return nil, validationf("claim %d is deleted", claim.ID)
	}
	if claim.Currency != payment.Currency {
		return nil, validationf("claim %d is in %s, payment %d in %s", claim.ID, claim.Currency, payment.ID, payment.Currency)
	}

	claimAllocated, err := tx.SumAllocatedForClaim(ctx, claim.ID)
	if err != nil {
		return nil, err
	}
	if claimAllocated.Add(amount).GreaterThan(claim.Amount) {
		return nil, fmt.Errorf("%w: %s leaves %s open, cannot allocate %s", ErrOverAllocation,
			describeClaim(claim), models.FormatMoney(claim.Amount.Sub(claimAllocated)), models.FormatMoney(amount))
	}
	paymentAllocated, err := tx.SumAllocatedForPayment(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	if paymentAllocated.Add(amount).GreaterThan(payment.Amount) {
		return nil, fmt.Errorf("%w: payment %d has %s unallocated, cannot allocate %s", ErrOverAllocation,
			payment.ID, models.FormatMoney(payment.Amount.Sub(paymentAllocated)), models.FormatMoney(amount))
	}

	alloc, err := tx.FindAllocation(ctx, claim.ID, payment.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		alloc = &models.Allocation{ClaimID: claim.ID, PaymentID: payment.ID, Amount: amount}
		if err := tx.CreateAllocation(ctx, alloc); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		alloc.Amount = alloc.Amount.Add(amount)
		if err := tx.UpdateAllocationAmount(ctx, alloc.ID, alloc.Amount); err != nil {
			return nil, err
		}
	}

	if _, err := s.recomputeStatus(ctx, tx, claim.ID); err != nil {
		return nil, err
	}
	return alloc, nil
}

// AutoAllocate spreads the unallocated part of a payment over the member's
// open claims, oldest due date first. Running it again without new claims
// or payments changes nothing.
func (s *Service) AutoAllocate(ctx context.Context, associationID, paymentID int64) ([]*models.Allocation, error) {
	var allocs []*models.Allocation
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		payment, err := paymentOf(ctx, tx, associationID, paymentID)
		if err != nil {
			return err
		}
		allocs, err = s.autoAllocate(ctx, tx, payment)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(allocs) > 0 {
		slog.Info("Payment auto-allocated",
			"association_id", associationID,
			"payment_id", paymentID,
			"allocations", len(allocs),
		)
	}
	return allocs, nil
}

func (s *Service) autoAllocate(ctx context.Context, tx storage.Tx, payment *models.Payment) ([]*models.Allocation, error) {
	if payment.Direction != models.DirectionIn {
		return nil, nil
	}

	allocated, err := tx.SumAllocatedForPayment(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	available := payment.Amount.Sub(allocated)
	if !available.IsPositive() {
		return nil, nil
	}

	open, err := tx.ListOpenClaims(ctx, payment.MemberID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*models.Claim, len(open))
	candidates := make([]calculator.OpenClaim, 0, len(open))
	for _, c := range open {
		if c.Currency != payment.Currency || c.AssociationID != payment.AssociationID {
			continue
		}
		byID[c.ID] = c
		candidates = append(candidates, calculator.OpenClaim{ClaimID: c.ID, DueDate: c.DueDate, Remaining: c.Remaining()})
	}

	var allocs []*models.Allocation
	for _, step := range calculator.PlanAllocations(available, candidates) {
		alloc, err := s.allocate(ctx, tx, byID[step.ClaimID], payment, step.Amount)
		if err != nil {
			return nil, err
		}
		allocs = append(allocs, alloc)
	}
	return allocs, nil
}

// Deallocate shrinks an allocation to amount, or removes it when amount is
// zero, and re-derives the claim status.
func (s *Service) Deallocate(ctx context.Context, associationID, allocationID int64, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return validationf("allocation amount must not be negative, got %s", amount)
	}
	if !models.IsMoney(amount) {
		return validationf("allocation amount must not have more than %d decimal places", models.MoneyPlaces)
	}

	var claimID int64
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		alloc, err := tx.GetAllocation(ctx, allocationID)
		if err != nil {
			return err
		}
		claim, err := claimOf(ctx, tx, associationID, alloc.ClaimID)
		if err != nil {
			return err
		}
		claimID = claim.ID

		switch {
		case amount.IsZero():
			err = tx.DeleteAllocation(ctx, alloc.ID)
		case amount.LessThan(alloc.Amount):
			err = tx.UpdateAllocationAmount(ctx, alloc.ID, amount)
		case amount.Equal(alloc.Amount):
			return nil
		default:
			return validationf("allocation %d is %s and cannot grow to %s; use Allocate",
				alloc.ID, models.FormatMoney(alloc.Amount), models.FormatMoney(amount))
		}
		if err != nil {
			return err
		}
		_, err = s.recomputeStatus(ctx, tx, claim.ID)
		return err
	})
	if err != nil {
		return err
	}

	slog.Info("Allocation reduced",
		"association_id", associationID,
		"allocation_id", allocationID,
		"claim_id", claimID,
		"amount", models.FormatMoney(amount),
	)
	return nil
}

// CreditBalance is the money a member has paid that is not applied to any
// claim, less refunds paid out to the member.
func (s *Service) CreditBalance(ctx context.Context, associationID, memberID int64) (decimal.Decimal, error) {
	var payments []*models.Payment
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := memberOf(ctx, tx, associationID, memberID); err != nil {
			return err
		}
		var err error
		payments, err = tx.ListPaymentsByMember(ctx, memberID)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}

	balances := make([]calculator.PaymentBalance, len(payments))
	for i, p := range payments {
		balances[i] = calculator.PaymentBalance{Direction: p.Direction, Amount: p.Amount, Allocated: p.Allocated}
	}
	return calculator.CreditBalance(balances), nil
}

// NewPayment is the input of RecordPayment.
type NewPayment struct {
	AssociationID int64
	MemberID      int64
	Amount        decimal.Decimal
	Currency      string
	Direction     models.PaymentDirection
	PaymentDate   time.Time
	Method        models.PaymentMethod
	Reference     string

	// PostToCashBook books the payment to the member payment account: cash
	// payments in a cash column, all others in a bank column.
	PostToCashBook bool

	// AutoAllocate applies an inbound payment to the member's open claims.
	AutoAllocate bool
}

// PaymentResult is a recorded payment with what was booked for it.
type PaymentResult struct {
	Payment     *models.Payment
	Allocations []*models.Allocation
	Entry       *models.CashBookEntry
}

// RecordPayment records a payment that did not come through a bank import,
// e.g. cash handed to the treasurer.
func (s *Service) RecordPayment(ctx context.Context, in NewPayment) (*PaymentResult, error) {
	if err := checkAmount("payment amount", in.Amount); err != nil {
		return nil, err
	}
	if in.Direction == "" {
		in.Direction = models.DirectionIn
	}
	if in.Direction != models.DirectionIn && in.Direction != models.DirectionOut {
		return nil, validationf("unknown payment direction %q", in.Direction)
	}
	if in.Method == "" {
		in.Method = models.MethodCash
	}
	if !in.Method.Valid() {
		return nil, validationf("unknown payment method %q", in.Method)
	}
	if in.PaymentDate.IsZero() {
		in.PaymentDate = s.today()
	}
	currency, err := s.currencyOrDefault(in.Currency)
	if err != nil {
		return nil, err
	}

	result := &PaymentResult{}
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		member, err := memberOf(ctx, tx, in.AssociationID, in.MemberID)
		if err != nil {
			return err
		}

		payment := &models.Payment{
			AssociationID: in.AssociationID,
			MemberID:      member.ID,
			Amount:        in.Amount,
			Currency:      currency,
			Direction:     in.Direction,
			PaymentDate:   models.Day(in.PaymentDate),
			Method:        in.Method,
			Reference:     in.Reference,
			Status:        models.PaymentConfirmed,
			Allocated:     decimal.Zero,
			CreatedAt:     s.now().UTC(),
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}
		result.Payment = payment

		if in.AutoAllocate {
			if result.Allocations, err = s.autoAllocate(ctx, tx, payment); err != nil {
				return err
			}
		}

		if in.PostToCashBook {
			medium := models.MediumBank
			if in.Method == models.MethodCash {
				medium = models.MediumCash
			}
			column := medium.InColumn()
			if in.Direction == models.DirectionOut {
				column = medium.OutColumn()
			}
			result.Entry, err = s.postEntry(ctx, tx, EntryInput{
				AssociationID: in.AssociationID,
				Year:          payment.PaymentDate.Year(),
				VoucherDate:   payment.PaymentDate,
				AccountCode:   s.account,
				Description:   paymentDescription(member, in.Reference),
				Column:        column,
				Amount:        payment.Amount,
				Links:         models.EntryLinks{MemberID: &payment.MemberID, PaymentID: &payment.ID},
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.postedEntry(result.Entry)

	slog.Info("Payment recorded",
		"association_id", in.AssociationID,
		"payment_id", result.Payment.ID,
		"member_id", in.MemberID,
		"amount", models.FormatMoney(in.Amount),
		"direction", in.Direction,
		"allocations", len(result.Allocations),
	)
	return result, nil
}

// ListAllocations returns the allocations of a claim or of a payment. Exactly
// one of claimID and paymentID must be set.
func (s *Service) ListAllocations(ctx context.Context, associationID, claimID, paymentID int64) ([]*models.Allocation, error) {
	if (claimID == 0) == (paymentID == 0) {
		return nil, validationf("exactly one of claim id and payment id is required")
	}

	var allocs []*models.Allocation
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		if claimID != 0 {
			if _, err = claimOf(ctx, tx, associationID, claimID); err != nil {
				return err
			}
			allocs, err = tx.ListAllocationsByClaim(ctx, claimID)
			return err
		}
		if _, err = paymentOf(ctx, tx, associationID, paymentID); err != nil {
			return err
		}
		allocs, err = tx.ListAllocationsByPayment(ctx, paymentID)
		return err
	})
	return allocs, err
}

func paymentDescription(m *models.Member, reference string) string {
	if reference == "" {
		return "Zahlung " + m.FullName()
	}
	return "Zahlung " + m.FullName() + ": " + reference
}
