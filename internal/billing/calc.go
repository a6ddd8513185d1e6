package billing

import (
	"github.com/shopspring/decimal"
)

// Monetary arithmetic runs on decimals and is rounded to 2 fraction digits
// once, at the edge of the calculator; intermediate values keep full
// precision. Rates are whole-number percents (21 means 21%).

var hundred = decimal.NewFromInt(100)

// ReconcileQuantity derives the billable-this-period quantity from the
// cumulative-to-date (origin) and already-invoiced (previous) readings.
// A negative result is a downward revision; it is returned as-is and the
// caller decides how to surface it.
func ReconcileQuantity(origin, previous float64) float64 {
	q, _ := decimal.NewFromFloat(origin).Sub(decimal.NewFromFloat(previous)).Float64()
	return q
}

// LineSubtotal computes a line's net amount after the line-level discount.
func LineSubtotal(currentQty, unitPrice, discountRate float64) float64 {
	qty := decimal.NewFromFloat(currentQty)
	price := decimal.NewFromFloat(unitPrice)
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(discountRate).Div(hundred))
	v, _ := qty.Mul(price).Mul(factor).Round(2).Float64()
	return v
}

// Totals is the derived monetary state of an invoice.
type Totals struct {
	Subtotal        float64
	VATAmount       float64
	RetentionAmount float64
	GuaranteeAmount float64
	Total           float64
}

// TotalsInput parameterises ComputeTotals. ReverseCharge suppresses VAT
// entirely; retention applies whenever its rate is positive; guarantee only
// when explicitly flagged.
type TotalsInput struct {
	LineSubtotals []float64
	VATRate       float64
	RetentionRate float64
	GuaranteeRate float64
	HasGuarantee  bool
	ReverseCharge bool
}

// ComputeTotals derives subtotal, VAT, retention, guarantee and total for a
// set of lines. total = subtotal + vat − retention − guarantee.
func ComputeTotals(in TotalsInput) Totals {
	subtotal := decimal.Zero
	for _, s := range in.LineSubtotals {
		subtotal = subtotal.Add(decimal.NewFromFloat(s))
	}

	vat := decimal.Zero
	if !in.ReverseCharge {
		vat = subtotal.Mul(decimal.NewFromFloat(in.VATRate)).Div(hundred)
	}

	retention := decimal.Zero
	if in.RetentionRate > 0 {
		retention = subtotal.Mul(decimal.NewFromFloat(in.RetentionRate)).Div(hundred)
	}

	guarantee := decimal.Zero
	if in.HasGuarantee {
		guarantee = subtotal.Mul(decimal.NewFromFloat(in.GuaranteeRate)).Div(hundred)
	}

	subtotal = subtotal.Round(2)
	vat = vat.Round(2)
	retention = retention.Round(2)
	guarantee = guarantee.Round(2)
	total := subtotal.Add(vat).Sub(retention).Sub(guarantee).Round(2)

	sf, _ := subtotal.Float64()
	vf, _ := vat.Float64()
	rf, _ := retention.Float64()
	gf, _ := guarantee.Float64()
	tf, _ := total.Float64()
	return Totals{Subtotal: sf, VATAmount: vf, RetentionAmount: rf, GuaranteeAmount: gf, Total: tf}
}

// LineVAT computes the VAT share of one line at the invoice's rate.
func LineVAT(lineSubtotal, vatRate float64, reverseCharge bool) float64 {
	if reverseCharge {
		return 0
	}
	v, _ := decimal.NewFromFloat(lineSubtotal).Mul(decimal.NewFromFloat(vatRate)).Div(hundred).Round(2).Float64()
	return v
}

// RederiveBalance recomputes paid-to-date and pending from the full payment
// history against a frozen total. Pending is clamped at zero.
func RederiveBalance(total float64, payments []Payment) (paid, pending float64) {
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(decimal.NewFromFloat(p.Amount))
	}
	sum = sum.Round(2)
	rest := decimal.NewFromFloat(total).Sub(sum).Round(2)
	if rest.IsNegative() {
		rest = decimal.Zero
	}
	paid, _ = sum.Float64()
	pending, _ = rest.Float64()
	return paid, pending
}

// ClosingUnitPrice derives the per-hour price of a monthly-closing invoice
// line so that hours × price reproduces the closing amount after rounding.
func ClosingUnitPrice(amount, hours float64) float64 {
	if hours <= 0 {
		return amount
	}
	v, _ := decimal.NewFromFloat(amount).Div(decimal.NewFromFloat(hours)).Round(2).Float64()
	return v
}

// DuplicateLines seeds a new draft's lines from a prior invoice for the
// monthly workflow: previous takes the old current reading (cumulative
// continuity) and current resets to zero pending the new origin reading,
// so origin is seeded equal to previous until the operator enters it.
func DuplicateLines(lines []InvoiceLine) []CreateInvoiceLine {
	out := make([]CreateInvoiceLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, CreateInvoiceLine{
			Description:  l.Description,
			Unit:         l.Unit,
			OriginQty:    l.CurrentQty,
			PreviousQty:  l.CurrentQty,
			UnitPrice:    l.UnitPrice,
			DiscountRate: l.DiscountRate,
			LineOrder:    l.LineOrder,
		})
	}
	return out
}
