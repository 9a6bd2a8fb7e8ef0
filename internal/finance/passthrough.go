package finance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/vereinsledger/internal/models"
	"github.com/mmynk/vereinsledger/internal/storage"
)

// InflowInput is the first leg of a pass-through item: money received for a
// third party.
type InflowInput struct {
	AssociationID int64
	Date          time.Time
	AccountCode   string
	Description   string
	Amount        decimal.Decimal
	Medium        models.Medium
}

// RecordInflow posts the inflow leg and opens the item.
func (s *Service) RecordInflow(ctx context.Context, in InflowInput) (*models.PassThroughItem, error) {
	if in.Medium == "" {
		in.Medium = models.MediumBank
	}
	if !in.Medium.Valid() {
		return nil, validationf("unknown medium %q", in.Medium)
	}

	var (
		item  *models.PassThroughItem
		entry *models.CashBookEntry
	)
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		entry, err = s.postEntry(ctx, tx, EntryInput{
			AssociationID: in.AssociationID,
			Year:          in.Date.Year(),
			VoucherDate:   in.Date,
			AccountCode:   in.AccountCode,
			Description:   in.Description,
			Column:        in.Medium.InColumn(),
			Amount:        in.Amount,
		})
		if err != nil {
			return err
		}

		item = &models.PassThroughItem{
			AssociationID: in.AssociationID,
			AccountCode:   in.AccountCode,
			Description:   in.Description,
			Amount:        in.Amount,
			Status:        models.PassThroughOpen,
			InflowDate:    entry.VoucherDate,
			InflowEntryID: entry.ID,
			CreatedAt:     s.now().UTC(),
		}
		return tx.CreatePassThrough(ctx, item)
	})
	if err != nil {
		return nil, err
	}
	s.postedEntry(entry)

	slog.Info("Pass-through item opened",
		"association_id", in.AssociationID,
		"item_id", item.ID,
		"account", item.AccountCode,
		"amount", models.FormatMoney(item.Amount),
	)
	return item, nil
}

// OutflowInput is the second leg of a pass-through item: the money passed on.
type OutflowInput struct {
	Date time.Time

	// AccountCode must equal the item's code. Empty means the item's code.
	AccountCode string

	Description string
	Medium      models.Medium
}

// RecordOutflow posts the outflow leg for the full item amount on the same
// account and settles the item.
func (s *Service) RecordOutflow(ctx context.Context, associationID, itemID int64, out OutflowInput) (*models.PassThroughItem, error) {
	if out.Medium == "" {
		out.Medium = models.MediumBank
	}
	if !out.Medium.Valid() {
		return nil, validationf("unknown medium %q", out.Medium)
	}
	if out.Date.IsZero() {
		out.Date = s.today()
	}

	var (
		item  *models.PassThroughItem
		entry *models.CashBookEntry
	)
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		item, err = tx.GetPassThrough(ctx, itemID)
		if err != nil {
			return err
		}
		if item.AssociationID != associationID {
			return notInAssociation("pass-through item", itemID)
		}
		if item.Status == models.PassThroughSettled {
			return fmt.Errorf("%w: item %d was passed on %s", ErrAlreadySettled, item.ID,
				item.OutflowDate.Format(models.DateLayout))
		}
		if out.AccountCode != "" && out.AccountCode != item.AccountCode {
			return validationf("outflow account %s differs from inflow account %s", out.AccountCode, item.AccountCode)
		}
		if models.Day(out.Date).Before(item.InflowDate) {
			return validationf("outflow date %s is before inflow date %s",
				out.Date.Format(models.DateLayout), item.InflowDate.Format(models.DateLayout))
		}

		description := out.Description
		if description == "" {
			description = item.Description
		}
		entry, err = s.postEntry(ctx, tx, EntryInput{
			AssociationID: associationID,
			Year:          out.Date.Year(),
			VoucherDate:   out.Date,
			AccountCode:   item.AccountCode,
			Description:   description,
			Column:        out.Medium.OutColumn(),
			Amount:        item.Amount,
		})
		if err != nil {
			return err
		}

		if err := tx.SettlePassThrough(ctx, item.ID, entry.VoucherDate, entry.ID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: item %d", ErrAlreadySettled, item.ID)
			}
			return err
		}
		item.Status = models.PassThroughSettled
		item.OutflowDate = &entry.VoucherDate
		item.OutflowEntryID = &entry.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.postedEntry(entry)

	slog.Info("Pass-through item settled",
		"association_id", associationID,
		"item_id", item.ID,
		"amount", models.FormatMoney(item.Amount),
	)
	return item, nil
}

// ListOpenPassThrough returns the items still waiting for their outflow leg.
func (s *Service) ListOpenPassThrough(ctx context.Context, associationID int64) (items []*models.PassThroughItem, err error) {
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		items, err = tx.ListOpenPassThrough(ctx, associationID)
		return err
	})
	return items, err
}
