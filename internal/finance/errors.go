package finance

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/vereinsledger/internal/models"
	"github.com/mmynk/vereinsledger/internal/storage"
)

// Error kinds returned by the engine. Callers test for them with errors.Is;
// the wrapped message carries the specifics.
var (
	ErrValidation     = errors.New("validation failed")
	ErrOverAllocation = errors.New("allocation exceeds open amount")
	ErrAlreadyMatched = errors.New("bank transaction already matched")
	ErrAlreadyClosed  = errors.New("year already closed")
	ErrClosedYear     = errors.New("year is closed and reviewed")
	ErrOutOfOrder     = errors.New("prior year not closed")
	ErrSumMismatch    = errors.New("donation details do not match total")
	ErrAlreadySettled = errors.New("pass-through item already settled")
	ErrNotFound       = storage.ErrNotFound
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// checkAmount requires a positive amount with at most two fractional digits.
func checkAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return validationf("%s must be positive, got %s", field, amount)
	}
	if !models.IsMoney(amount) {
		return validationf("%s must not have more than %d decimal places, got %s", field, models.MoneyPlaces, amount)
	}
	return nil
}

// notInAssociation hides records of other associations behind ErrNotFound.
func notInAssociation(what string, id any) error {
	return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
}
