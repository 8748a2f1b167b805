// Package rfm scores customers on recency, frequency and monetary value and
// maps the scores to behavioral segments.
package rfm

import (
	"math"
	"time"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/prep"
)

// BuildMetrics derives recency (days from last order to instant), frequency
// (total order count) and monetary (total spend) for every aggregate.
// The batch is rejected if any customer has no orders or a last order after
// the instant.
func BuildMetrics(aggs []domain.CustomerAggregate, instant time.Time) ([]domain.RFMRecord, error) {
	var noOrders, future []string
	out := make([]domain.RFMRecord, len(aggs))
	for i, a := range aggs {
		rec := domain.RFMRecord{
			ID:        a.ID,
			Recency:   prep.Days(a.LastOrderDate, instant),
			Frequency: int(math.Round(a.OrderCount)),
			Monetary:  a.TotalSpend,
		}
		switch {
		case rec.Frequency < 1:
			noOrders = append(noOrders, a.ID)
		case rec.Recency < 0:
			future = append(future, a.ID)
		}
		out[i] = rec
	}
	if len(noOrders) > 0 {
		return nil, &domain.ErrInvalidRecords{Stage: "rfm", Reason: "frequency must be at least 1", IDs: noOrders}
	}
	if len(future) > 0 {
		return nil, &domain.ErrInvalidRecords{Stage: "rfm", Reason: "last order after analysis instant", IDs: future}
	}
	return out, nil
}
