package billing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReconcileQuantity(t *testing.T) {
	tests := []struct {
		name     string
		origin   float64
		previous float64
		want     float64
	}{
		{"first certification", 40, 0, 40},
		{"progress", 100, 40, 60},
		{"no progress", 40, 40, 0},
		{"downward revision", 30, 40, -10},
		{"fractional", 10.5, 3.2, 7.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, ReconcileQuantity(tt.origin, tt.previous), 1e-9)
		})
	}
}

func TestLineSubtotal(t *testing.T) {
	require.Equal(t, 3000.0, LineSubtotal(60, 50, 0))
	require.Equal(t, 2700.0, LineSubtotal(60, 50, 10))
	require.Equal(t, 0.0, LineSubtotal(0, 50, 0))
	require.Equal(t, -500.0, LineSubtotal(-10, 50, 0))
	// rounding at the line edge
	require.Equal(t, 33.33, LineSubtotal(1, 33.333, 0))
}

func TestComputeTotalsBudgetLine(t *testing.T) {
	// origin 100, previous 40, price 50: current 60, subtotal 3000,
	// VAT 21% = 630, total 3630.
	current := ReconcileQuantity(100, 40)
	sub := LineSubtotal(current, 50, 0)
	got := ComputeTotals(TotalsInput{
		LineSubtotals: []float64{sub},
		VATRate:       21,
	})
	require.Equal(t, 3000.0, got.Subtotal)
	require.Equal(t, 630.0, got.VATAmount)
	require.Equal(t, 0.0, got.RetentionAmount)
	require.Equal(t, 0.0, got.GuaranteeAmount)
	require.Equal(t, 3630.0, got.Total)
}

func TestComputeTotalsWithGuarantee(t *testing.T) {
	// same invoice with a 5% guarantee: 150 withheld, total 3480.
	got := ComputeTotals(TotalsInput{
		LineSubtotals: []float64{3000},
		VATRate:       21,
		GuaranteeRate: 5,
		HasGuarantee:  true,
	})
	require.Equal(t, 150.0, got.GuaranteeAmount)
	require.Equal(t, 3480.0, got.Total)
}

func TestComputeTotalsReverseCharge(t *testing.T) {
	got := ComputeTotals(TotalsInput{
		LineSubtotals: []float64{3000},
		VATRate:       21,
		ReverseCharge: true,
	})
	require.Equal(t, 0.0, got.VATAmount)
	require.Equal(t, 3000.0, got.Total)
}

func TestComputeTotalsIdentity(t *testing.T) {
	// total = subtotal + vat - retention - guarantee across combinations.
	tests := []struct {
		name          string
		vatRate       float64
		retentionRate float64
		guaranteeRate float64
		hasGuarantee  bool
		reverseCharge bool
	}{
		{"plain", 21, 0, 0, false, false},
		{"retention", 21, 5, 0, false, false},
		{"guarantee", 21, 0, 5, true, false},
		{"retention and guarantee", 10, 3, 5, true, false},
		{"isp with guarantee", 21, 0, 5, true, true},
		{"isp with retention", 21, 2, 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTotals(TotalsInput{
				LineSubtotals: []float64{1234.56, 789.01},
				VATRate:       tt.vatRate,
				RetentionRate: tt.retentionRate,
				GuaranteeRate: tt.guaranteeRate,
				HasGuarantee:  tt.hasGuarantee,
				ReverseCharge: tt.reverseCharge,
			})
			require.InDelta(t, got.Subtotal+got.VATAmount-got.RetentionAmount-got.GuaranteeAmount, got.Total, 1e-9)
			if tt.reverseCharge {
				require.Equal(t, 0.0, got.VATAmount)
			}
		})
	}
}

func TestRederiveBalance(t *testing.T) {
	payments := []Payment{{Amount: 2000}, {Amount: 1630}}

	paid, pending := RederiveBalance(3630, payments[:1])
	require.Equal(t, 2000.0, paid)
	require.Equal(t, 1630.0, pending)

	paid, pending = RederiveBalance(3630, payments)
	require.Equal(t, 3630.0, paid)
	require.Equal(t, 0.0, pending)

	// re-deriving from the same history is idempotent
	paid2, pending2 := RederiveBalance(3630, payments)
	require.Equal(t, paid, paid2)
	require.Equal(t, pending, pending2)
}

func TestRederiveBalanceClampsPending(t *testing.T) {
	_, pending := RederiveBalance(100, []Payment{{Amount: 60}, {Amount: 60}})
	require.Equal(t, 0.0, pending)
}

func TestDuplicateLines(t *testing.T) {
	src := []InvoiceLine{{
		Description: "Excavation",
		Unit:        "m3",
		OriginQty:   100,
		PreviousQty: 40,
		CurrentQty:  60,
		UnitPrice:   50,
		LineOrder:   1,
	}}
	out := DuplicateLines(src)
	require.Len(t, out, 1)
	// the new previous takes the old current; current computes to zero
	// until the operator enters the new origin reading
	require.Equal(t, 60.0, out[0].PreviousQty)
	require.Equal(t, 60.0, out[0].OriginQty)
	require.Equal(t, 0.0, ReconcileQuantity(out[0].OriginQty, out[0].PreviousQty))
	require.Equal(t, "Excavation", out[0].Description)
	require.Equal(t, 50.0, out[0].UnitPrice)
}

func TestClosingUnitPrice(t *testing.T) {
	require.Equal(t, 75.0, ClosingUnitPrice(12000, 160))
	require.Equal(t, 33.33, ClosingUnitPrice(100, 3))
	require.Equal(t, 500.0, ClosingUnitPrice(500, 0))
}

func TestFormatNumber(t *testing.T) {
	require.Equal(t, "FA000001", FormatNumber("FA", 6, 1))
	require.Equal(t, "FR000042", FormatNumber("FR", 6, 42))
	require.Equal(t, "FA1000000", FormatNumber("FA", 6, 1000000))
	require.Equal(t, "FA000007", FormatNumber("FA", 0, 7))
}
