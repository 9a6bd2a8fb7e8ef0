// Package calculator holds the pure arithmetic of the settlement engine:
// status derivation, allocation planning, closing balances and donation sums.
// Nothing in here touches storage.
package calculator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/vereinsledger/internal/models"
)

// DeriveClaimStatus maps a claim amount and its allocated sum to a status:
// PAID iff allocated == amount, PARTIALLY_PAID iff 0 < allocated < amount,
// OPEN otherwise.
func DeriveClaimStatus(amount, allocated decimal.Decimal) models.ClaimStatus {
	switch {
	case allocated.IsPositive() && allocated.GreaterThanOrEqual(amount):
		return models.ClaimPaid
	case allocated.IsPositive():
		return models.ClaimPartiallyPaid
	default:
		return models.ClaimOpen
	}
}

// OpenClaim is a claim with the information the allocation planner needs.
type OpenClaim struct {
	ClaimID   int64
	DueDate   time.Time
	Remaining decimal.Decimal
}

// PlannedAllocation is one step of an allocation plan.
type PlannedAllocation struct {
	ClaimID int64
	Amount  decimal.Decimal
}

// PlanAllocations distributes an available amount over open claims, oldest
// due date first (claim ID breaks ties). Each claim receives
// min(available, remaining). Claims with nothing remaining are skipped.
//
// The plan is deterministic: the same inputs always produce the same steps in
// the same order.
func PlanAllocations(available decimal.Decimal, claims []OpenClaim) []PlannedAllocation {
	if !available.IsPositive() {
		return nil
	}

	sorted := make([]OpenClaim, len(claims))
	copy(sorted, claims)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].DueDate.Equal(sorted[j].DueDate) {
			return sorted[i].DueDate.Before(sorted[j].DueDate)
		}
		return sorted[i].ClaimID < sorted[j].ClaimID
	})

	var plan []PlannedAllocation
	remaining := available
	for _, c := range sorted {
		if !remaining.IsPositive() {
			break
		}
		if !c.Remaining.IsPositive() {
			continue
		}
		amount := decimal.Min(remaining, c.Remaining)
		plan = append(plan, PlannedAllocation{ClaimID: c.ClaimID, Amount: amount})
		remaining = remaining.Sub(amount)
	}
	return plan
}

// PaymentBalance is a payment reduced to what the credit balance needs.
type PaymentBalance struct {
	Direction models.PaymentDirection
	Amount    decimal.Decimal
	Allocated decimal.Decimal
}

// CreditBalance is the money a member has paid but that is not applied to
// any claim: the unallocated part of inbound payments, less refunds paid out.
func CreditBalance(payments []PaymentBalance) decimal.Decimal {
	credit := decimal.Zero
	for _, p := range payments {
		if p.Direction == models.DirectionOut {
			credit = credit.Sub(p.Amount)
			continue
		}
		credit = credit.Add(p.Amount.Sub(p.Allocated))
	}
	return credit
}
