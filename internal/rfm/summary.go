package rfm

import "github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"

// Summarize returns per-segment counts and metric means, in taxonomy order.
// Segments with no customers are omitted.
func Summarize(scored []domain.ScoredRFM) []domain.SegmentSummary {
	acc := make(map[domain.Segment]*domain.SegmentSummary, len(domain.Segments))
	for _, s := range scored {
		sum, ok := acc[s.Segment]
		if !ok {
			sum = &domain.SegmentSummary{Segment: s.Segment}
			acc[s.Segment] = sum
		}
		sum.Customers++
		sum.MeanRecency += float64(s.Recency)
		sum.MeanFrequency += float64(s.Frequency)
		sum.MeanMonetary += s.Monetary
	}

	out := make([]domain.SegmentSummary, 0, len(acc))
	for _, seg := range domain.Segments {
		sum, ok := acc[seg]
		if !ok {
			continue
		}
		n := float64(sum.Customers)
		sum.MeanRecency /= n
		sum.MeanFrequency /= n
		sum.MeanMonetary /= n
		out = append(out, *sum)
	}
	return out
}
