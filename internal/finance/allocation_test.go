package finance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/vereinsledger/internal/models"
)

func TestCreateClaim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("starts open", func(t *testing.T) {
		c := env.claim(t, env.juergen, "60", day(2025, time.January, 31))
		assert.Equal(t, models.ClaimOpen, c.Status)
		assert.Equal(t, models.DefaultCurrency, c.Currency)
		assert.Nil(t, c.SettledAt)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		for _, amount := range []string{"0", "-5", "1.005"} {
			_, err := env.svc.CreateClaim(ctx, NewClaim{
				AssociationID: assoc,
				MemberID:      env.juergen.ID,
				Amount:        dec(amount),
				DueDate:       day(2025, time.January, 31),
			})
			assert.ErrorIs(t, err, ErrValidation, "amount %s", amount)
		}
	})

	t.Run("member of another association", func(t *testing.T) {
		_, err := env.svc.CreateClaim(ctx, NewClaim{
			AssociationID: assoc,
			MemberID:      env.foreign.ID,
			Amount:        dec("10"),
			DueDate:       day(2025, time.January, 31),
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("overdue is evaluated at query time", func(t *testing.T) {
		future := env.claim(t, env.anna, "20", day(2025, time.December, 31))
		overdue, err := env.svc.OverdueClaims(ctx, assoc, day(2025, time.June, 15))
		require.NoError(t, err)
		for _, c := range overdue {
			assert.NotEqual(t, future.ID, c.ID)
		}

		overdue, err = env.svc.OverdueClaims(ctx, assoc, day(2026, time.January, 2))
		require.NoError(t, err)
		ids := make([]int64, len(overdue))
		for i, c := range overdue {
			ids[i] = c.ID
		}
		assert.Contains(t, ids, future.ID)
	})
}

func TestAllocationStatusLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	claim := env.claim(t, env.juergen, "100", day(2025, time.January, 31))
	first := env.payment(t, env.juergen, "40")
	second := env.payment(t, env.juergen, "60")

	_, err := env.svc.Allocate(ctx, assoc, first.ID, claim.ID, dec("40"))
	require.NoError(t, err)
	got := env.getClaim(t, claim.ID)
	assert.Equal(t, models.ClaimPartiallyPaid, got.Status)
	assert.Nil(t, got.SettledAt)

	alloc60, err := env.svc.Allocate(ctx, assoc, second.ID, claim.ID, dec("60"))
	require.NoError(t, err)
	got = env.getClaim(t, claim.ID)
	assert.Equal(t, models.ClaimPaid, got.Status)
	require.NotNil(t, got.SettledAt)

	require.NoError(t, env.svc.Deallocate(ctx, assoc, alloc60.ID, dec("0")))
	got = env.getClaim(t, claim.ID)
	assert.Equal(t, models.ClaimPartiallyPaid, got.Status)
	assert.Nil(t, got.SettledAt, "settledAt is cleared when the claim regresses")
	assert.True(t, got.Allocated.Equal(dec("40")))
}

func TestOverAllocation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	claim := env.claim(t, env.juergen, "50", day(2025, time.January, 31))
	big := env.payment(t, env.juergen, "80")

	alloc, err := env.svc.Allocate(ctx, assoc, big.ID, claim.ID, dec("30"))
	require.NoError(t, err)

	t.Run("claim side", func(t *testing.T) {
		_, err := env.svc.Allocate(ctx, assoc, big.ID, claim.ID, dec("20.01"))
		assert.ErrorIs(t, err, ErrOverAllocation)

		got := env.getClaim(t, claim.ID)
		assert.True(t, got.Allocated.Equal(dec("30")), "allocated = %s", got.Allocated)
		assert.Equal(t, models.ClaimPartiallyPaid, got.Status)
	})

	t.Run("payment side", func(t *testing.T) {
		small := env.payment(t, env.juergen, "5")
		other := env.claim(t, env.juergen, "50", day(2025, time.February, 28))
		_, err := env.svc.Allocate(ctx, assoc, small.ID, other.ID, dec("6"))
		assert.ErrorIs(t, err, ErrOverAllocation)

		allocs, err := env.svc.ListAllocations(ctx, assoc, other.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, allocs)
	})

	t.Run("repeated pair accumulates", func(t *testing.T) {
		again, err := env.svc.Allocate(ctx, assoc, big.ID, claim.ID, dec("20"))
		require.NoError(t, err)
		assert.Equal(t, alloc.ID, again.ID)
		assert.True(t, again.Amount.Equal(dec("50")))

		allocs, err := env.svc.ListAllocations(ctx, assoc, 0, big.ID)
		require.NoError(t, err)
		assert.Len(t, allocs, 1)
		assert.Equal(t, models.ClaimPaid, env.getClaim(t, claim.ID).Status)
	})

	t.Run("deallocate cannot grow", func(t *testing.T) {
		err := env.svc.Deallocate(ctx, assoc, alloc.ID, dec("51"))
		assert.ErrorIs(t, err, ErrValidation)
		err = env.svc.Deallocate(ctx, assoc, alloc.ID, dec("-1"))
		assert.ErrorIs(t, err, ErrValidation)

		require.NoError(t, env.svc.Deallocate(ctx, assoc, alloc.ID, dec("10")))
		got := env.getClaim(t, claim.ID)
		assert.True(t, got.Allocated.Equal(dec("10")))
		assert.Equal(t, models.ClaimPartiallyPaid, got.Status)
	})
}

func TestAutoAllocateOldestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	feb := env.claim(t, env.anna, "50", day(2025, time.February, 1))
	jan := env.claim(t, env.anna, "30", day(2025, time.January, 1))
	payment := env.payment(t, env.anna, "40")

	allocs, err := env.svc.AutoAllocate(ctx, assoc, payment.ID)
	require.NoError(t, err)
	require.Len(t, allocs, 2)

	assert.Equal(t, jan.ID, allocs[0].ClaimID)
	assert.True(t, allocs[0].Amount.Equal(dec("30")))
	assert.Equal(t, feb.ID, allocs[1].ClaimID)
	assert.True(t, allocs[1].Amount.Equal(dec("10")))

	assert.Equal(t, models.ClaimPaid, env.getClaim(t, jan.ID).Status)
	assert.Equal(t, models.ClaimPartiallyPaid, env.getClaim(t, feb.ID).Status)

	again, err := env.svc.AutoAllocate(ctx, assoc, payment.ID)
	require.NoError(t, err)
	assert.Empty(t, again, "a second run allocates nothing")
}

func TestCreditBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.claim(t, env.juergen, "30", day(2025, time.January, 1))
	res, err := env.svc.RecordPayment(ctx, NewPayment{
		AssociationID: assoc,
		MemberID:      env.juergen.ID,
		Amount:        dec("100"),
		AutoAllocate:  true,
	})
	require.NoError(t, err)
	require.Len(t, res.Allocations, 1)

	credit, err := env.svc.CreditBalance(ctx, assoc, env.juergen.ID)
	require.NoError(t, err)
	assert.True(t, credit.Equal(dec("70")), "credit = %s", credit)

	_, err = env.svc.RecordPayment(ctx, NewPayment{
		AssociationID: assoc,
		MemberID:      env.juergen.ID,
		Amount:        dec("25"),
		Direction:     models.DirectionOut,
		Method:        models.MethodTransfer,
	})
	require.NoError(t, err)

	credit, err = env.svc.CreditBalance(ctx, assoc, env.juergen.ID)
	require.NoError(t, err)
	assert.True(t, credit.Equal(dec("45")), "credit after refund = %s", credit)
}

func TestRecordPaymentPostsToCashBook(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.RecordPayment(ctx, NewPayment{
		AssociationID:  assoc,
		MemberID:       env.anna.ID,
		Amount:         dec("12.50"),
		Method:         models.MethodCash,
		PaymentDate:    day(2025, time.May, 3),
		PostToCashBook: true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Entry)

	column, amount := res.Entry.Column()
	assert.Equal(t, models.ColumnCashIn, column)
	assert.True(t, amount.Equal(dec("12.5")))
	assert.Equal(t, accountMembers, res.Entry.AccountCode)
	assert.Equal(t, 1, res.Entry.VoucherNumber)
	require.NotNil(t, res.Entry.PaymentID)
	assert.Equal(t, res.Payment.ID, *res.Entry.PaymentID)
}

func TestDeleteClaim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	older := env.claim(t, env.juergen, "30", day(2025, time.January, 1))
	newer := env.claim(t, env.juergen, "50", day(2025, time.February, 1))
	require.NoError(t, env.svc.DeleteClaim(ctx, assoc, older.ID))

	// A deleted claim is kept for history but takes no more money.
	deleted := env.getClaim(t, older.ID)
	assert.True(t, deleted.Deleted)

	p := env.payment(t, env.juergen, "40")
	allocs, err := env.svc.AutoAllocate(ctx, assoc, p.ID)
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, newer.ID, allocs[0].ClaimID)
	assert.True(t, allocs[0].Amount.Equal(dec("40")))

	_, err = env.svc.Allocate(ctx, assoc, p.ID, older.ID, dec("0.01"))
	assert.ErrorIs(t, err, ErrValidation)

	overdue, err := env.svc.OverdueClaims(ctx, assoc, day(2025, time.June, 1))
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, newer.ID, overdue[0].ID)

	assert.ErrorIs(t, env.svc.DeleteClaim(ctx, otherAssoc, newer.ID), ErrNotFound)
}

func TestAllocateUnderConcurrency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	claim := env.claim(t, env.juergen, "100", day(2025, time.January, 31))
	const n = 10
	payments := make([]*models.Payment, n)
	for i := range payments {
		payments[i] = env.payment(t, env.juergen, "60")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		errs      []error
	)
	for _, p := range payments {
		wg.Add(1)
		go func(paymentID int64) {
			defer wg.Done()
			_, err := env.svc.Allocate(ctx, assoc, paymentID, claim.ID, dec("60"))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			succeeded++
		}(p.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	require.Len(t, errs, n-1)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrOverAllocation)
	}

	got := env.getClaim(t, claim.ID)
	assert.True(t, got.Allocated.LessThanOrEqual(got.Amount), "allocated = %s", got.Allocated)
	assert.True(t, got.Allocated.Equal(dec("60")), "allocated = %s", got.Allocated)
	assert.Equal(t, models.ClaimPartiallyPaid, got.Status)

	allocs, err := env.svc.ListAllocations(ctx, assoc, claim.ID, 0)
	require.NoError(t, err)
	assert.Len(t, allocs, 1)
}
