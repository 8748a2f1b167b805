package prep

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
)

// Aggregate sums the online and offline columns of each record into one
// omnichannel CustomerAggregate. The whole batch is rejected when any record
// is missing its id or order dates, carries a negative count or spend, or
// has its last order before its first.
func Aggregate(records []domain.CustomerRecord) ([]domain.CustomerAggregate, error) {
	var (
		missing  []string
		negative []string
		order    []string
	)
	out := make([]domain.CustomerAggregate, len(records))
	for i := range records {
		r := &records[i]
		id := r.ID
		if id == "" {
			id = fmt.Sprintf("row %d", i+1)
		}
		switch {
		case r.ID == "" || r.FirstOrderDate.IsZero() || r.LastOrderDate.IsZero():
			missing = append(missing, id)
			continue
		case r.OrdersOnline < 0 || r.OrdersOffline < 0 || r.SpendOnline < 0 || r.SpendOffline < 0:
			negative = append(negative, id)
			continue
		case r.LastOrderDate.Before(r.FirstOrderDate):
			order = append(order, id)
			continue
		}
		out[i] = domain.CustomerAggregate{
			ID:             r.ID,
			FirstOrderDate: r.FirstOrderDate,
			LastOrderDate:  r.LastOrderDate,
			OrderCount:     r.OrdersOnline + r.OrdersOffline,
			TotalSpend:     r.SpendOnline + r.SpendOffline,
		}
	}

	switch {
	case len(missing) > 0:
		return nil, &domain.ErrInvalidRecords{Stage: "aggregate", Reason: "missing required field", IDs: missing}
	case len(negative) > 0:
		return nil, &domain.ErrInvalidRecords{Stage: "aggregate", Reason: "negative order count or spend", IDs: negative}
	case len(order) > 0:
		return nil, &domain.ErrInvalidRecords{Stage: "aggregate", Reason: "last order before first order", IDs: order}
	}
	return out, nil
}

// AnalysisInstant returns the reference instant of a batch: override when
// set, otherwise the latest last-order date plus bufferDays.
func AnalysisInstant(aggs []domain.CustomerAggregate, bufferDays int, override *time.Time) (time.Time, error) {
	if override != nil {
		return *override, nil
	}
	if len(aggs) == 0 {
		return time.Time{}, &domain.ErrValidation{Field: "records", Message: "empty batch has no analysis instant"}
	}
	latest := aggs[0].LastOrderDate
	for _, a := range aggs[1:] {
		if a.LastOrderDate.After(latest) {
			latest = a.LastOrderDate
		}
	}
	return latest.AddDate(0, 0, bufferDays), nil
}

// Days returns the whole days elapsed from `from` to `to`, floored.
func Days(from, to time.Time) int {
	return int(math.Floor(to.Sub(from).Hours() / 24))
}

// Channels summarizes records by acquisition channel, largest first.
func Channels(records []domain.CustomerRecord) []domain.ChannelSummary {
	idx := map[string]int{}
	var out []domain.ChannelSummary
	for i := range records {
		r := &records[i]
		j, ok := idx[r.OrderChannel]
		if !ok {
			j = len(out)
			idx[r.OrderChannel] = j
			out = append(out, domain.ChannelSummary{Channel: r.OrderChannel})
		}
		out[j].Customers++
		out[j].TotalOrders += r.OrdersOnline + r.OrdersOffline
		out[j].TotalSpend += r.SpendOnline + r.SpendOffline
	}
	for i := range out {
		n := float64(out[i].Customers)
		out[i].AvgOrders = out[i].TotalOrders / n
		out[i].AvgSpend = out[i].TotalSpend / n
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Customers != out[j].Customers {
			return out[i].Customers > out[j].Customers
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}
