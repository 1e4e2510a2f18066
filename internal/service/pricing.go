package service

import (
	"fmt"

	"storefront-checkout/internal/config"
	"storefront-checkout/internal/model"

	"github.com/shopspring/decimal"
)

var centsPerUnit = decimal.NewFromInt(100)

// CalculateOrderAmount computes the charge total and the platform fee in
// integer minor currency units. Each price string is converted to cents
// exactly once; accumulation stays in int64 so long carts cannot drift.
func CalculateOrderAmount(items []model.CheckoutItem, pricingCfg *config.Pricing) (total int64, fee int64, err error) {
	for _, item := range items {
		if item.Quantity <= 0 {
			return 0, 0, fmt.Errorf("product %s: %w", item.ProductID, ErrInvalidQuantity)
		}

		cents, err := priceToCents(item.Price)
		if err != nil {
			return 0, 0, fmt.Errorf("product %s: %w", item.ProductID, err)
		}

		total += cents * int64(item.Quantity)
	}

	// Floored integer division keeps the fee deterministic and <= total.
	fee = total * pricingCfg.FeeBps / 10000

	return total, fee, nil
}

func priceToCents(price string) (int64, error) {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, price)
	}

	cents := d.Mul(centsPerUnit)
	if !cents.IsInteger() || cents.IsNegative() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, price)
	}

	return cents.IntPart(), nil
}
