package billing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const summaryCacheKey = "billing:summary"

// AgingBuckets groups outstanding balances by days past due.
type AgingBuckets struct {
	Current   float64 `json:"current"`
	Bucket30  float64 `json:"bucket_30"`
	Bucket60  float64 `json:"bucket_60"`
	Bucket90  float64 `json:"bucket_90"`
	Bucket120 float64 `json:"bucket_120"`
}

// Summary is the outstanding/aging snapshot served to the back office.
type Summary struct {
	AsOf                 time.Time    `json:"as_of"`
	OutstandingTotal     float64      `json:"outstanding_total"`
	OutstandingFormatted string       `json:"outstanding_formatted"`
	OutstandingCount     int          `json:"outstanding_count"`
	OverdueCount         int          `json:"overdue_count"`
	Aging                AgingBuckets `json:"aging"`
	RetainedGuarantees   float64      `json:"retained_guarantees"`
	RetainedCount        int          `json:"retained_count"`
}

// Invoices are euro-denominated; es-ES grouping for the display figure.
var summaryPrinter = message.NewPrinter(language.Spanish)

// SummaryCache serves the billing summary from redis, deduplicating
// concurrent rebuilds with singleflight. A nil cache degrades to computing
// on every call.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewSummaryCache constructs a summary cache.
func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{client: client, ttl: ttl}
}

// WithSummaryCache attaches a cache to the service.
func (s *Service) WithSummaryCache(c *SummaryCache) *Service {
	s.summaryCache = c
	return s
}

// BillingSummary returns the outstanding/aging snapshot, cached when a
// cache is attached.
func (s *Service) BillingSummary(ctx context.Context) (*Summary, error) {
	if s.summaryCache == nil {
		return s.computeSummary(ctx)
	}
	return s.summaryCache.get(ctx, s)
}

// RefreshSummary recomputes the snapshot and overwrites the cached copy.
// The nightly sweep calls this so the first morning read is warm.
func (s *Service) RefreshSummary(ctx context.Context) (*Summary, error) {
	summary, err := s.computeSummary(ctx)
	if err != nil {
		return nil, err
	}
	if s.summaryCache != nil {
		if err := s.summaryCache.put(ctx, summary); err != nil {
			s.logger.Warn("summary cache write failed", slog.Any("error", err))
		}
	}
	return summary, nil
}

func (c *SummaryCache) get(ctx context.Context, s *Service) (*Summary, error) {
	payload, err := c.client.Get(ctx, summaryCacheKey).Bytes()
	if err == nil {
		var cached Summary
		if err := json.Unmarshal(payload, &cached); err == nil {
			return &cached, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn("summary cache read failed", slog.Any("error", err))
	}

	v, err, _ := c.group.Do(summaryCacheKey, func() (interface{}, error) {
		summary, err := s.computeSummary(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.put(ctx, summary); err != nil {
			s.logger.Warn("summary cache write failed", slog.Any("error", err))
		}
		return summary, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Summary), nil
}

func (c *SummaryCache) put(ctx context.Context, summary *Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryCacheKey, data, c.ttl).Err()
}

// computeSummary aggregates outstanding invoices into aging buckets and
// totals retained guarantees.
func (s *Service) computeSummary(ctx context.Context) (*Summary, error) {
	asOf := s.now()
	outstanding, err := s.repo.ListOutstanding(ctx)
	if err != nil {
		return nil, err
	}

	summary := Summary{AsOf: asOf}
	for _, inv := range outstanding {
		summary.OutstandingTotal += inv.Pending
		summary.OutstandingCount++
		if inv.EffectiveStatus(asOf) == StatusOverdue {
			summary.OverdueCount++
		}
		days := int(asOf.Sub(inv.DueDate).Hours() / 24)
		switch {
		case days <= 0:
			summary.Aging.Current += inv.Pending
		case days <= 30:
			summary.Aging.Bucket30 += inv.Pending
		case days <= 60:
			summary.Aging.Bucket60 += inv.Pending
		case days <= 90:
			summary.Aging.Bucket90 += inv.Pending
		default:
			summary.Aging.Bucket120 += inv.Pending
		}
	}

	retained, err := s.repo.ListGuarantees(ctx, GuaranteeRetained)
	if err != nil {
		return nil, err
	}
	for _, g := range retained {
		summary.RetainedGuarantees += g.Amount
		summary.RetainedCount++
	}

	summary.OutstandingFormatted = summaryPrinter.Sprintf("%.2f €", summary.OutstandingTotal)
	return &summary, nil
}
