package billing

import (
	"context"
	"fmt"

	"github.com/solera-erp/solera-erp/internal/shared"
)

// seqAttempts bounds the compare-and-swap retry loop. Conflicts only occur
// when two requests draw a number at the same instant, so a handful of
// retries is plenty; beyond that the caller retries the whole request.
const seqAttempts = 3

// SeriesNumber is an issued, formatted invoice number.
type SeriesNumber struct {
	Series     string
	Number     int
	FiscalYear int
	Formatted  string
}

// NextNumber draws the next sequential number for a series within the
// caller's transaction. The counter advance is a conditional update keyed
// on the observed value, so two concurrent callers can never obtain the
// same number: the loser's update matches zero rows and the read is
// repeated. Counters reset to 1 when the fiscal year rolls over.
func NextNumber(ctx context.Context, tx TxRepository, kind SeriesKind, fiscalYear int) (SeriesNumber, error) {
	for attempt := 0; attempt < seqAttempts; attempt++ {
		cfg, err := tx.GetSeriesConfig(ctx, kind)
		if err != nil {
			return SeriesNumber{}, err
		}
		if cfg == nil {
			return SeriesNumber{}, fmt.Errorf("%w: no numbering configuration for series %s", shared.ErrSequencing, kind)
		}
		if cfg.FiscalYear > fiscalYear {
			return SeriesNumber{}, fmt.Errorf("%w: series %s already advanced to fiscal year %d", shared.ErrSequencing, kind, cfg.FiscalYear)
		}

		next := cfg.LastNumber + 1
		if cfg.FiscalYear < fiscalYear {
			next = 1
		}

		ok, err := tx.AdvanceSeriesCounter(ctx, kind, cfg.FiscalYear, cfg.LastNumber, fiscalYear, next)
		if err != nil {
			return SeriesNumber{}, err
		}
		if !ok {
			continue
		}

		return SeriesNumber{
			Series:     cfg.Prefix,
			Number:     next,
			FiscalYear: fiscalYear,
			Formatted:  FormatNumber(cfg.Prefix, cfg.PadWidth, next),
		}, nil
	}
	return SeriesNumber{}, fmt.Errorf("%w: counter conflict for series %s after %d attempts", shared.ErrSequencing, kind, seqAttempts)
}

// FormatNumber renders "<series-prefix><zero-padded-sequence>".
func FormatNumber(prefix string, padWidth, n int) string {
	if padWidth <= 0 {
		padWidth = 6
	}
	return fmt.Sprintf("%s%0*d", prefix, padWidth, n)
}
