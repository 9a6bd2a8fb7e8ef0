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

// DonationInput is a counted donation with its denomination breakdown.
type DonationInput struct {
	AssociationID int64
	Date          time.Time
	Occasion      string
	TotalAmount   decimal.Decimal
	CountedBy     string
	Details       []models.DonationDetail

	// PostToAccount, when set, books the total as a cash inflow on that
	// account and links the entry from the protocol.
	PostToAccount string
}

// RecordDonation stores a donation protocol. The details must add up to the
// declared total exactly.
func (s *Service) RecordDonation(ctx context.Context, in DonationInput) (*models.DonationProtocol, error) {
	if err := checkAmount("donation total", in.TotalAmount); err != nil {
		return nil, err
	}
	if len(in.Details) == 0 {
		return nil, validationf("a donation protocol needs at least one denomination")
	}
	if in.Date.IsZero() {
		in.Date = s.today()
	}

	details := make([]models.DonationDetail, len(in.Details))
	copy(details, in.Details)
	for i, d := range details {
		if !models.IsMoney(d.Value) {
			return nil, validationf("detail %d: value %s has too many decimal places", i+1, d.Value)
		}
	}
	sum, err := calculator.DonationTotal(details)
	if err != nil {
		return nil, validationf("%v", err)
	}
	if !sum.Equal(in.TotalAmount) {
		slog.Warn("Donation protocol rejected",
			"association_id", in.AssociationID,
			"declared", models.FormatMoney(in.TotalAmount),
			"counted", models.FormatMoney(sum),
		)
		return nil, fmt.Errorf("%w: details add up to %s, declared total is %s",
			ErrSumMismatch, models.FormatMoney(sum), models.FormatMoney(in.TotalAmount))
	}

	protocol := &models.DonationProtocol{
		AssociationID: in.AssociationID,
		Date:          models.Day(in.Date),
		Occasion:      in.Occasion,
		TotalAmount:   in.TotalAmount,
		CountedBy:     in.CountedBy,
		Details:       details,
		CreatedAt:     s.now().UTC(),
	}

	var entry *models.CashBookEntry
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		if in.PostToAccount != "" {
			var err error
			entry, err = s.postEntry(ctx, tx, EntryInput{
				AssociationID: in.AssociationID,
				Year:          protocol.Date.Year(),
				VoucherDate:   protocol.Date,
				AccountCode:   in.PostToAccount,
				Description:   donationDescription(in.Occasion),
				Column:        models.ColumnCashIn,
				Amount:        in.TotalAmount,
			})
			if err != nil {
				return err
			}
			protocol.CashBookEntryID = &entry.ID
		}
		return tx.CreateDonation(ctx, protocol)
	})
	if err != nil {
		return nil, err
	}
	s.postedEntry(entry)
	s.metrics.DonationRecorded()

	slog.Info("Donation recorded",
		"association_id", in.AssociationID,
		"protocol_id", protocol.ID,
		"total", models.FormatMoney(protocol.TotalAmount),
		"posted", entry != nil,
	)
	return protocol, nil
}

// GetDonation returns a donation protocol with its details.
func (s *Service) GetDonation(ctx context.Context, associationID, protocolID int64) (*models.DonationProtocol, error) {
	var protocol *models.DonationProtocol
	err := s.store.WithTx(ctx, func(tx storage.Tx) (err error) {
		protocol, err = tx.GetDonation(ctx, protocolID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if protocol.AssociationID != associationID {
		return nil, notInAssociation("donation protocol", protocolID)
	}
	return protocol, nil
}

func donationDescription(occasion string) string {
	if occasion == "" {
		return "Spende"
	}
	return "Spende " + occasion
}
