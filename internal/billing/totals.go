// Package billing holds the pure money and calendar rules shared by every
// mutation path: invoice totals, balance reconciliation, status derivation,
// overdue days and recurring billing dates.
package billing

import (
	"github.com/shopspring/decimal"

	"receivables/internal/common"
	"receivables/internal/models"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// DiscountReasons maps predefined discount reasons to their percentage.
var DiscountReasons = map[string]decimal.Decimal{
	"early_payment":  decimal.NewFromInt(5),
	"loyal_customer": decimal.NewFromInt(10),
	"volume":         decimal.NewFromInt(15),
	"promotion":      decimal.NewFromInt(20),
}

// Totals is the result of pricing a set of line items.
type Totals struct {
	Items          []models.LineItem
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	Taxable        decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
}

// Round2 rounds a money amount to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputeInvoiceTotals prices the items and applies the invoice-wide discount
// and tax: total = (subtotal - discount) * (1 + taxRate).
func ComputeInvoiceTotals(items []models.LineItem, discount *models.Discount, taxRate decimal.Decimal) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, common.NewValidationError("items", "at least one line item is required")
	}
	if taxRate.IsNegative() {
		return Totals{}, common.NewValidationError("tax_rate", "cannot be negative")
	}

	priced := make([]models.LineItem, len(items))
	subtotal := decimal.Zero
	for i, item := range items {
		if !item.Quantity.IsPositive() {
			return Totals{}, common.NewValidationError("items", "line %d: quantity must be positive", i+1)
		}
		if !item.UnitPrice.IsPositive() {
			return Totals{}, common.NewValidationError("items", "line %d: unit price must be positive", i+1)
		}
		if item.DiscountPercent.IsNegative() || item.DiscountPercent.GreaterThan(hundred) {
			return Totals{}, common.NewValidationError("items", "line %d: discount must be between 0 and 100", i+1)
		}

		factor := one.Sub(item.DiscountPercent.Div(hundred))
		item.Amount = Round2(item.Quantity.Mul(item.UnitPrice).Mul(factor))
		priced[i] = item
		subtotal = subtotal.Add(item.Amount)
	}

	discountAmount, err := discountAmount(subtotal, discount)
	if err != nil {
		return Totals{}, err
	}

	taxable := subtotal.Sub(discountAmount)
	total := Round2(taxable.Mul(one.Add(taxRate)))

	return Totals{
		Items:          priced,
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		Taxable:        taxable,
		Tax:            total.Sub(taxable),
		Total:          total,
	}, nil
}

// discountAmount resolves a typed discount against the subtotal. Percentages
// clamp to 100 and fixed amounts clamp to the subtotal; negatives are rejected.
func discountAmount(subtotal decimal.Decimal, discount *models.Discount) (decimal.Decimal, error) {
	if discount == nil {
		return decimal.Zero, nil
	}

	switch discount.Type {
	case models.DiscountTypePercentage:
		if discount.Value.IsNegative() {
			return decimal.Zero, common.NewValidationError("discount", "percentage cannot be negative")
		}
		pct := decimal.Min(discount.Value, hundred)
		return Round2(subtotal.Mul(pct).Div(hundred)), nil
	case models.DiscountTypeFixed:
		if discount.Value.IsNegative() {
			return decimal.Zero, common.NewValidationError("discount", "amount cannot be negative")
		}
		return Round2(decimal.Min(discount.Value, subtotal)), nil
	case models.DiscountTypeReason:
		pct, ok := DiscountReasons[discount.Reason]
		if !ok {
			return decimal.Zero, common.NewValidationError("discount", "unknown discount reason %q", discount.Reason)
		}
		return Round2(subtotal.Mul(pct).Div(hundred)), nil
	case "":
		return decimal.Zero, nil
	default:
		return decimal.Zero, common.NewValidationError("discount", "unknown discount type %q", discount.Type)
	}
}
