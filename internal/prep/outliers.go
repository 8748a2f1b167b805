// Package prep turns raw customer records into the capped, aggregated
// inputs shared by the RFM and CLTV pipelines.
package prep

import (
	"math"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/stats"
)

// Field names a numeric column of domain.CustomerRecord that can be capped.
type Field string

const (
	OrdersOnline  Field = "order_num_total_ever_online"
	OrdersOffline Field = "order_num_total_ever_offline"
	SpendOnline   Field = "customer_value_total_ever_online"
	SpendOffline  Field = "customer_value_total_ever_offline"
)

// CappedFields are the count and spend columns bounded before aggregation.
var CappedFields = []Field{OrdersOnline, OrdersOffline, SpendOffline, SpendOnline}

func (f Field) get(r *domain.CustomerRecord) float64 {
	switch f {
	case OrdersOnline:
		return r.OrdersOnline
	case OrdersOffline:
		return r.OrdersOffline
	case SpendOnline:
		return r.SpendOnline
	case SpendOffline:
		return r.SpendOffline
	}
	return 0
}

func (f Field) set(r *domain.CustomerRecord, v float64) {
	switch f {
	case OrdersOnline:
		r.OrdersOnline = v
	case OrdersOffline:
		r.OrdersOffline = v
	case SpendOnline:
		r.SpendOnline = v
	case SpendOffline:
		r.SpendOffline = v
	}
}

// Thresholds are the rounded outlier limits of one field.
type Thresholds struct {
	Field Field   `json:"field"`
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
}

// OutlierThresholds computes round(Q1 - 1.5·IQR) and round(Q3 + 1.5·IQR)
// where Q1 and Q3 are the lowQ and highQ quantiles of values. Halves round
// to even.
func OutlierThresholds(values []float64, lowQ, highQ float64) (low, high float64) {
	q1 := stats.Quantile(values, lowQ)
	q3 := stats.Quantile(values, highQ)
	iqr := q3 - q1
	return math.RoundToEven(q1 - 1.5*iqr), math.RoundToEven(q3 + 1.5*iqr)
}

// Capper bounds heavy-tailed count and spend columns. Only the upper limit
// is applied; records are never dropped.
type Capper struct {
	LowQ   float64
	HighQ  float64
	Fields []Field
}

// NewCapper creates a Capper over CappedFields.
func NewCapper(lowQ, highQ float64) *Capper {
	return &Capper{LowQ: lowQ, HighQ: highQ, Fields: CappedFields}
}

// Thresholds computes the limits of every configured field over records.
func (c *Capper) Thresholds(records []domain.CustomerRecord) []Thresholds {
	if len(records) == 0 {
		return nil
	}
	out := make([]Thresholds, 0, len(c.Fields))
	values := make([]float64, len(records))
	for _, f := range c.Fields {
		for i := range records {
			values[i] = f.get(&records[i])
		}
		low, high := OutlierThresholds(values, c.LowQ, c.HighQ)
		out = append(out, Thresholds{Field: f, Low: low, High: high})
	}
	return out
}

// Cap returns a copy of records with every configured field limited to its
// upper threshold, along with the thresholds used. The input is not modified.
func (c *Capper) Cap(records []domain.CustomerRecord) ([]domain.CustomerRecord, []Thresholds) {
	th := c.Thresholds(records)
	return Apply(records, th), th
}

// Apply returns a copy of records with values above each High replaced by it.
func Apply(records []domain.CustomerRecord, th []Thresholds) []domain.CustomerRecord {
	out := make([]domain.CustomerRecord, len(records))
	copy(out, records)
	for _, t := range th {
		for i := range out {
			if t.Field.get(&out[i]) > t.High {
				t.Field.set(&out[i], t.High)
			}
		}
	}
	return out
}
