package cltv

import (
	"sort"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/stats"
)

// SegmentLabels returns n labels from the lowest bucket to the highest,
// the highest being "A": for n = 4, [D C B A].
func SegmentLabels(n int) []string {
	labels := make([]string, n)
	for k := range labels {
		labels[k] = string(rune('A' + n - 1 - k))
	}
	return labels
}

// Segment assigns every record to one of n equal-population cltv buckets.
// Bins are right-closed, so a cltv equal to an inner edge lands in the lower
// bucket. Coinciding edges yield *domain.ErrDegeneratePopulation.
func Segment(records []domain.CLTVRecord, n int) error {
	values := make([]float64, len(records))
	for i, r := range records {
		values[i] = r.CLTV
	}
	bins, err := stats.Bin(values, n, "cltv")
	if err != nil {
		return err
	}
	labels := SegmentLabels(n)
	for i := range records {
		records[i].Segment = labels[bins[i]]
	}
	return nil
}

// Summarize returns per-segment statistics, best segment first.
func Summarize(records []domain.CLTVRecord) []domain.ValueSegmentSummary {
	acc := map[string]*domain.ValueSegmentSummary{}
	for _, r := range records {
		s, ok := acc[r.Segment]
		if !ok {
			s = &domain.ValueSegmentSummary{Segment: r.Segment}
			acc[r.Segment] = s
		}
		s.Customers++
		s.MeanRecencyWeeks += r.RecencyWeeks
		s.MeanTenureWeeks += r.TenureWeeks
		s.MeanFrequency += float64(r.Frequency)
		s.MeanMonetaryAvg += r.MonetaryAvg
		s.SumCLTV += r.CLTV
	}

	out := make([]domain.ValueSegmentSummary, 0, len(acc))
	for _, s := range acc {
		n := float64(s.Customers)
		s.MeanRecencyWeeks /= n
		s.MeanTenureWeeks /= n
		s.MeanFrequency /= n
		s.MeanMonetaryAvg /= n
		s.MeanCLTV = s.SumCLTV / n
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Segment < out[j].Segment })
	return out
}

// Top returns the n records with the highest cltv, highest first.
func Top(records []domain.CLTVRecord, n int) []domain.CLTVRecord {
	sorted := append([]domain.CLTVRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CLTV > sorted[j].CLTV })
	if n < 0 {
		n = 0
	}
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// Totals returns the summed and mean cltv of records.
func Totals(records []domain.CLTVRecord) (total, mean float64) {
	for _, r := range records {
		total += r.CLTV
	}
	if len(records) > 0 {
		mean = total / float64(len(records))
	}
	return total, mean
}
