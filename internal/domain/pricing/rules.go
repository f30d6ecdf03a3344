package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Rule computes a single discount amount for a set of line items. Rules are
// composed by summation: each contributes independently of the others, which
// keeps them individually testable.
type Rule interface {
	// Name identifies the rule in logs and tests.
	Name() string
	// Apply returns the discount amount for the given items and subtotal.
	Apply(items []LineItem, subtotal decimal.Decimal) (decimal.Decimal, error)
}

// BulkDiscount grants a percentage of the subtotal when the total quantity
// across all lines exceeds MinQuantity.
type BulkDiscount struct {
	MinQuantity int
	Percent     decimal.Decimal
}

func (r *BulkDiscount) Name() string { return "bulk" }

func (r *BulkDiscount) Apply(items []LineItem, subtotal decimal.Decimal) (decimal.Decimal, error) {
	total := 0
	for _, it := range items {
		total += it.Quantity
	}
	if total <= r.MinQuantity {
		return decimal.Zero, nil
	}
	return subtotal.Mul(r.Percent).Div(hundred), nil
}

// CategoryDiscount grants a percentage of the line total for every item
// carrying one of the configured category tags. Matching is case-insensitive
// on the whole tag; an item matching several configured tags is discounted
// once per match, mirroring how the promotion is defined.
type CategoryDiscount struct {
	Categories []string
	Percent    decimal.Decimal
}

func (r *CategoryDiscount) Name() string { return "category" }

func (r *CategoryDiscount) Apply(items []LineItem, _ decimal.Decimal) (decimal.Decimal, error) {
	promo := make(map[string]struct{}, len(r.Categories))
	for _, c := range r.Categories {
		promo[strings.ToLower(c)] = struct{}{}
	}

	amount := decimal.Zero
	for _, it := range items {
		line := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		for _, tag := range it.Categories {
			if _, ok := promo[strings.ToLower(tag)]; ok {
				amount = amount.Add(line.Mul(r.Percent).Div(hundred))
			}
		}
	}
	return amount, nil
}
