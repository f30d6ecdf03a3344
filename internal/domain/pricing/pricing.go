// Package pricing computes cart pricing (subtotal, tax, shipping, discount,
// total) for checkout. The calculator is a pure function of its input and
// configuration: identical items always produce identical pricing, which lets
// the quote shown to the user and the amount persisted on the order be
// computed independently and still agree.
package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Config holds the pricing policy constants. It is immutable after
// construction and injected explicitly so tests can supply deterministic
// values.
type Config struct {
	// TaxRate is the tax fraction applied to the subtotal, e.g. 0.1 for 10%.
	TaxRate decimal.Decimal
	// ShippingFee is the flat shipping fee charged below the free-shipping
	// threshold.
	ShippingFee decimal.Decimal
	// FreeShippingThreshold is the subtotal at or above which shipping is free.
	FreeShippingThreshold decimal.Decimal
	// MinOrderAmount is the smallest total Validate accepts.
	MinOrderAmount decimal.Decimal
	// Currency is the ISO currency code stamped on every pricing result.
	Currency string
	// DecimalPlaces is the rounding precision for every monetary value.
	DecimalPlaces int32

	// BulkMinQuantity is the total item quantity above which the bulk
	// discount applies.
	BulkMinQuantity int
	// BulkPercent is the bulk discount percentage of the subtotal.
	BulkPercent decimal.Decimal
	// PromoCategories lists category tags eligible for the promotional
	// per-line discount.
	PromoCategories []string
	// PromoPercent is the promotional discount percentage of each matching
	// line total.
	PromoPercent decimal.Decimal
}

// DefaultConfig returns the production defaults: 10% tax, 10,000 VND flat
// shipping free from 500,000 VND, 5% bulk discount above 10 units, and 10%
// off promotional category lines.
func DefaultConfig() Config {
	return Config{
		TaxRate:               decimal.RequireFromString("0.1"),
		ShippingFee:           decimal.NewFromInt(10000),
		FreeShippingThreshold: decimal.NewFromInt(500000),
		MinOrderAmount:        decimal.NewFromInt(10000),
		Currency:              "VND",
		DecimalPlaces:         0,
		BulkMinQuantity:       10,
		BulkPercent:           decimal.NewFromInt(5),
		PromoCategories:       []string{"electronics"},
		PromoPercent:          decimal.NewFromInt(10),
	}
}

// LineItem is a priced cart line: an immutable snapshot of the product at the
// time the cart was built. Category tags drive promotional discounts.
type LineItem struct {
	ProductID   string
	ProductName string
	ImageURL    string
	UnitPrice   decimal.Decimal
	Quantity    int
	Categories  []string
}

// LineTotal returns the rounded unit price times quantity for this line.
func (it LineItem) LineTotal(places int32) decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(places)
}

// CartPricing is the value object produced by the calculator. It is never
// persisted or cached: catalog prices and discount rules can change between
// quote and checkout, so it is recomputed on every request.
type CartPricing struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal

	Currency              string
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	ItemCount             int
}

// InvalidPricingError reports why a computed pricing fails validation.
type InvalidPricingError struct {
	Reasons []string
}

func (e *InvalidPricingError) Error() string {
	return fmt.Sprintf("invalid cart pricing: %s", strings.Join(e.Reasons, "; "))
}

// Calculator computes CartPricing from line items according to an immutable
// Config and an ordered list of discount rules.
type Calculator struct {
	cfg   Config
	rules []Rule
}

// NewCalculator builds a Calculator with the standard rule set (bulk discount
// then category discount) derived from cfg.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{
		cfg: cfg,
		rules: []Rule{
			&BulkDiscount{MinQuantity: cfg.BulkMinQuantity, Percent: cfg.BulkPercent},
			&CategoryDiscount{Categories: cfg.PromoCategories, Percent: cfg.PromoPercent},
		},
	}
}

// NewCalculatorWithRules builds a Calculator with an explicit rule list.
// Rules are applied in order and their amounts summed.
func NewCalculatorWithRules(cfg Config, rules []Rule) *Calculator {
	return &Calculator{cfg: cfg, rules: rules}
}

// Calculate prices the given items. Every monetary component is rounded
// half-up at the configured number of decimal places, both per line and on
// output, so the result is deterministic and idempotent for identical input.
//
// If a discount rule fails, the calculator falls back to a conservative
// pricing of tax=0, shipping=0, discount=0, total=subtotal: a priced cart
// must never become unpriceable mid-checkout. Callers that care about
// constraints run Validate on the result.
func (c *Calculator) Calculate(items []LineItem) CartPricing {
	subtotal := decimal.Zero
	itemCount := 0
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal(c.cfg.DecimalPlaces))
		itemCount += it.Quantity
	}
	subtotal = c.round(subtotal)

	discount, err := c.applyRules(items, subtotal)
	if err != nil {
		return CartPricing{
			Subtotal:              subtotal,
			Tax:                   decimal.Zero,
			Shipping:              decimal.Zero,
			Discount:              decimal.Zero,
			Total:                 subtotal,
			Currency:              c.cfg.Currency,
			TaxRate:               decimal.Zero,
			FreeShippingThreshold: c.cfg.FreeShippingThreshold,
			ItemCount:             itemCount,
		}
	}

	tax := c.round(subtotal.Mul(c.cfg.TaxRate))
	shipping := c.shipping(subtotal)
	total := c.round(subtotal.Add(tax).Add(shipping).Sub(discount))

	return CartPricing{
		Subtotal:              subtotal,
		Tax:                   tax,
		Shipping:              shipping,
		Discount:              discount,
		Total:                 total,
		Currency:              c.cfg.Currency,
		TaxRate:               c.cfg.TaxRate,
		FreeShippingThreshold: c.cfg.FreeShippingThreshold,
		ItemCount:             itemCount,
	}
}

// LineTotal returns the rounded line total for one item at the calculator's
// precision. Order line snapshots use this so that the sum of item totals
// reconciles with the computed subtotal.
func (c *Calculator) LineTotal(it LineItem) decimal.Decimal {
	return it.LineTotal(c.cfg.DecimalPlaces)
}

// Validate rejects pricings with negative components or a total below the
// configured minimum order amount. The orchestrator surfaces this to the
// caller instead of placing the order.
func (c *Calculator) Validate(p CartPricing) error {
	var reasons []string
	for _, check := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"subtotal", p.Subtotal},
		{"tax", p.Tax},
		{"shipping", p.Shipping},
		{"discount", p.Discount},
		{"total", p.Total},
	} {
		if check.value.IsNegative() {
			reasons = append(reasons, check.name+" cannot be negative")
		}
	}
	if p.Total.LessThan(c.cfg.MinOrderAmount) {
		reasons = append(reasons, fmt.Sprintf("order total must be at least %s %s", c.cfg.MinOrderAmount, c.cfg.Currency))
	}
	if len(reasons) > 0 {
		return &InvalidPricingError{Reasons: reasons}
	}
	return nil
}

// applyRules runs every discount rule in order and sums their rounded
// amounts. Discounts are additive, never stacked multiplicatively.
func (c *Calculator) applyRules(items []LineItem, subtotal decimal.Decimal) (decimal.Decimal, error) {
	discount := decimal.Zero
	for _, rule := range c.rules {
		amount, err := rule.Apply(items, subtotal)
		if err != nil {
			return decimal.Zero, err
		}
		discount = discount.Add(c.round(floorAtZero(amount)))
	}
	return discount, nil
}

// shipping is free at or above the threshold, otherwise the flat fee.
func (c *Calculator) shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(c.cfg.FreeShippingThreshold) {
		return decimal.Zero
	}
	return c.round(c.cfg.ShippingFee)
}

// round applies half-up rounding at the configured precision. Monetary
// values here are non-negative, so decimal's round-half-away-from-zero is
// exactly round-half-up on value*10^places.
func (c *Calculator) round(d decimal.Decimal) decimal.Decimal {
	return d.Round(c.cfg.DecimalPlaces)
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
