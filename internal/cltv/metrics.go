// Package cltv derives weekly model inputs, combines the purchase and spend
// forecasts into a discounted lifetime value and buckets the result.
package cltv

import (
	"math"
	"time"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/prep"
)

const daysPerWeek = 7.0

// BuildInputs derives weekly-scaled recency, tenure, frequency (total order
// count, first order included) and average spend per order. The batch is
// rejected if a customer has no orders or a first order after the instant.
func BuildInputs(aggs []domain.CustomerAggregate, instant time.Time) ([]domain.CLTVInputs, error) {
	var noOrders, future []string
	out := make([]domain.CLTVInputs, len(aggs))
	for i, a := range aggs {
		freq := int(math.Round(a.OrderCount))
		if freq < 1 {
			noOrders = append(noOrders, a.ID)
			continue
		}
		in := Inputs(a, instant)
		if in.TenureWeeks < in.RecencyWeeks {
			future = append(future, a.ID)
			continue
		}
		out[i] = in
	}
	if len(noOrders) > 0 {
		return nil, &domain.ErrInvalidRecords{Stage: "cltv", Reason: "frequency must be at least 1", IDs: noOrders}
	}
	if len(future) > 0 {
		return nil, &domain.ErrInvalidRecords{Stage: "cltv", Reason: "last order after analysis instant", IDs: future}
	}
	return out, nil
}

// Inputs derives the CLTV inputs of one aggregate without validation.
func Inputs(a domain.CustomerAggregate, instant time.Time) domain.CLTVInputs {
	freq := int(math.Round(a.OrderCount))
	in := domain.CLTVInputs{
		ID:           a.ID,
		RecencyWeeks: float64(prep.Days(a.FirstOrderDate, a.LastOrderDate)) / daysPerWeek,
		TenureWeeks:  float64(prep.Days(a.FirstOrderDate, instant)) / daysPerWeek,
		Frequency:    freq,
	}
	if freq > 0 {
		in.MonetaryAvg = a.TotalSpend / float64(freq)
	}
	return in
}
