package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/vereinsledger/internal/models"
)

// DonationTotal fills in each detail's subtotal (value x count) and returns
// the sum over all details.
func DonationTotal(details []models.DonationDetail) (decimal.Decimal, error) {
	total := decimal.Zero
	for i := range details {
		d := &details[i]
		if !d.Value.IsPositive() {
			return decimal.Zero, fmt.Errorf("detail %d: value must be positive", i+1)
		}
		if d.Count < 0 {
			return decimal.Zero, fmt.Errorf("detail %d: count must not be negative", i+1)
		}
		d.Subtotal = d.Value.Mul(decimal.NewFromInt(int64(d.Count)))
		total = total.Add(d.Subtotal)
	}
	return total, nil
}
