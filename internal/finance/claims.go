package finance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/vereinsledger/internal/calculator"
	"github.com/mmynk/vereinsledger/internal/models"
	"github.com/mmynk/vereinsledger/internal/storage"
)

// NewClaim is the input of CreateClaim.
type NewClaim struct {
	AssociationID int64
	MemberID      int64
	Kind          models.ClaimKind
	Amount        decimal.Decimal
	Currency      string
	DueDate       time.Time
	Period        *models.Period
	Description   string
}

// CreateClaim records an amount a member owes. The claim starts OPEN.
func (s *Service) CreateClaim(ctx context.Context, in NewClaim) (*models.Claim, error) {
	if err := checkAmount("claim amount", in.Amount); err != nil {
		return nil, err
	}
	if in.Kind == "" {
		in.Kind = models.KindAdHoc
	}
	if !in.Kind.Valid() {
		return nil, validationf("unknown claim kind %q", in.Kind)
	}
	if in.DueDate.IsZero() {
		return nil, validationf("due date is required")
	}
	if in.Period != nil {
		if err := in.Period.Validate(); err != nil {
			return nil, validationf("%v", err)
		}
	}
	currency, err := s.currencyOrDefault(in.Currency)
	if err != nil {
		return nil, err
	}

	claim := &models.Claim{
		AssociationID: in.AssociationID,
		MemberID:      in.MemberID,
		Kind:          in.Kind,
		Amount:        in.Amount,
		Currency:      currency,
		Period:        in.Period,
		DueDate:       models.Day(in.DueDate),
		Description:   in.Description,
		Status:        models.ClaimOpen,
		Allocated:     decimal.Zero,
		CreatedAt:     s.now().UTC(),
	}

	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := memberOf(ctx, tx, in.AssociationID, in.MemberID); err != nil {
			return err
		}
		return tx.CreateClaim(ctx, claim)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Claim created",
		"association_id", claim.AssociationID,
		"claim_id", claim.ID,
		"member_id", claim.MemberID,
		"amount", models.FormatMoney(claim.Amount),
		"due_date", claim.DueDate.Format(models.DateLayout),
	)
	return claim, nil
}

// GetClaim returns a claim of the association.
func (s *Service) GetClaim(ctx context.Context, associationID, claimID int64) (claim *models.Claim, err error) {
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		claim, err = claimOf(ctx, tx, associationID, claimID)
		return err
	})
	return claim, err
}

// ListClaims returns all claims of a member, deleted ones included.
func (s *Service) ListClaims(ctx context.Context, associationID, memberID int64) (claims []*models.Claim, err error) {
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := memberOf(ctx, tx, associationID, memberID); err != nil {
			return err
		}
		claims, err = tx.ListClaimsByMember(ctx, memberID)
		return err
	})
	return claims, err
}

// OverdueClaims returns the association's claims that are overdue as of the
// given date.
func (s *Service) OverdueClaims(ctx context.Context, associationID int64, asOf time.Time) ([]*models.Claim, error) {
	var unpaid []*models.Claim
	err := s.store.WithTx(ctx, func(tx storage.Tx) (err error) {
		unpaid, err = tx.ListUnpaidClaims(ctx, associationID)
		return err
	})
	if err != nil {
		return nil, err
	}

	var overdue []*models.Claim
	for _, c := range unpaid {
		if c.IsOverdue(asOf) {
			overdue = append(overdue, c)
		}
	}
	return overdue, nil
}

// DeleteClaim soft-deletes a claim. Its allocations stay in place; the claim
// no longer takes part in matching or automatic allocation.
func (s *Service) DeleteClaim(ctx context.Context, associationID, claimID int64) error {
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := claimOf(ctx, tx, associationID, claimID); err != nil {
			return err
		}
		return tx.SoftDeleteClaim(ctx, claimID)
	})
	if err != nil {
		return err
	}
	slog.Info("Claim deleted", "association_id", associationID, "claim_id", claimID)
	return nil
}

// RecomputeStatus derives the claim's status from its allocations and stores
// it.
func (s *Service) RecomputeStatus(ctx context.Context, associationID, claimID int64) (claim *models.Claim, err error) {
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := claimOf(ctx, tx, associationID, claimID); err != nil {
			return err
		}
		claim, err = s.recomputeStatus(ctx, tx, claimID)
		return err
	})
	return claim, err
}

// recomputeStatus re-reads the claim with its allocated sum and stores the
// derived status. SettledAt is set when the claim becomes PAID and cleared
// when it falls back.
func (s *Service) recomputeStatus(ctx context.Context, tx storage.Tx, claimID int64) (*models.Claim, error) {
	claim, err := tx.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}

	status := calculator.DeriveClaimStatus(claim.Amount, claim.Allocated)
	settledAt := claim.SettledAt
	switch {
	case status != models.ClaimPaid:
		settledAt = nil
	case settledAt == nil:
		at := s.now().UTC()
		settledAt = &at
	}

	if status == claim.Status && sameTime(settledAt, claim.SettledAt) {
		return claim, nil
	}
	if err := tx.UpdateClaimStatus(ctx, claimID, status, settledAt); err != nil {
		return nil, err
	}

	slog.Debug("Claim status derived", "claim_id", claimID, "from", claim.Status, "to", status)
	claim.Status = status
	claim.SettledAt = settledAt
	return claim, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (s *Service) currencyOrDefault(code string) (string, error) {
	if code == "" {
		code = s.currency
	}
	currency, err := models.NormalizeCurrency(code)
	if err != nil {
		return "", validationf("%v", err)
	}
	return currency, nil
}

// memberOf loads a member and checks it belongs to the association.
func memberOf(ctx context.Context, tx storage.Tx, associationID, memberID int64) (*models.Member, error) {
	m, err := tx.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m.AssociationID != associationID {
		return nil, notInAssociation("member", memberID)
	}
	return m, nil
}

// claimOf loads a claim and checks it belongs to the association.
func claimOf(ctx context.Context, tx storage.Tx, associationID, claimID int64) (*models.Claim, error) {
	c, err := tx.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if c.AssociationID != associationID {
		return nil, notInAssociation("claim", claimID)
	}
	return c, nil
}

// paymentOf loads a payment and checks it belongs to the association.
func paymentOf(ctx context.Context, tx storage.Tx, associationID, paymentID int64) (*models.Payment, error) {
	p, err := tx.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.AssociationID != associationID {
		return nil, notInAssociation("payment", paymentID)
	}
	return p, nil
}

func describeClaim(c *models.Claim) string {
	return fmt.Sprintf("claim %d (%s of %s %s allocated)", c.ID,
		models.FormatMoney(c.Allocated), models.FormatMoney(c.Amount), c.Currency)
}
