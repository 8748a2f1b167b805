package cltv_test

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/cltv"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linearPurchases predicts a constant weekly purchase rate.
type linearPurchases struct{ perWeek float64 }

func (l linearPurchases) ExpectedPurchases(_ domain.CLTVInputs, t float64) (float64, error) {
	return l.perWeek * t, nil
}

type fixedSpend struct{ value float64 }

func (f fixedSpend) ExpectedAverageValue(domain.CLTVInputs) (float64, error) {
	return f.value, nil
}

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestBuildInputs_SinglePurchaseCustomer(t *testing.T) {
	aggs := []domain.CustomerAggregate{{
		ID:             "single",
		FirstOrderDate: date("2020-01-01"),
		LastOrderDate:  date("2020-01-01"),
		OrderCount:     1,
		TotalSpend:     100,
	}}
	got, err := cltv.BuildInputs(aggs, date("2020-01-15"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Frequency)
	assert.Equal(t, 0.0, got[0].RecencyWeeks)
	assert.Equal(t, 2.0, got[0].TenureWeeks)
	assert.Equal(t, 100.0, got[0].MonetaryAvg)
}

func TestBuildInputs_WeeklyScaling(t *testing.T) {
	aggs := []domain.CustomerAggregate{{
		ID:             "c",
		FirstOrderDate: date("2020-01-01"),
		LastOrderDate:  date("2020-01-11"),
		OrderCount:     4,
		TotalSpend:     200,
	}}
	got, err := cltv.BuildInputs(aggs, date("2020-01-22"))
	require.NoError(t, err)
	assert.InDelta(t, 10.0/7, got[0].RecencyWeeks, 1e-12)
	assert.Equal(t, 3.0, got[0].TenureWeeks)
	assert.Equal(t, 50.0, got[0].MonetaryAvg)
}

func TestBuildInputs_RejectsInvalid(t *testing.T) {
	aggs := []domain.CustomerAggregate{
		{ID: "zero", FirstOrderDate: date("2020-01-01"), LastOrderDate: date("2020-01-01"), OrderCount: 0},
		{ID: "ok", FirstOrderDate: date("2020-01-01"), LastOrderDate: date("2020-01-01"), OrderCount: 2, TotalSpend: 5},
	}
	_, err := cltv.BuildInputs(aggs, date("2020-02-01"))
	var invalid *domain.ErrInvalidRecords
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, []string{"zero"}, invalid.IDs)

	late := []domain.CustomerAggregate{{ID: "late", FirstOrderDate: date("2020-01-01"), LastOrderDate: date("2020-03-01"), OrderCount: 2}}
	_, err = cltv.BuildInputs(late, date("2020-02-01"))
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, []string{"late"}, invalid.IDs)
}

func TestCalculator_WeeklyDiscounting(t *testing.T) {
	calc := cltv.NewCalculator(linearPurchases{perWeek: 1}, fixedSpend{value: 10}, 1, 0.01, domain.DiscountWeekly)

	// 4.345 weeks: four full weeks plus a 0.345 week stub.
	want := 0.0
	for k := 1; k <= 4; k++ {
		want += 10 / math.Pow(1.01, float64(k))
	}
	want += 0.345 * 10 / math.Pow(1.01, 5)

	got, err := calc.CLTV(domain.CLTVInputs{})
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-9)
	assert.InDelta(t, 4.345, calc.HorizonWeeks(), 1e-12)
}

func TestCalculator_MonthlyDiscounting(t *testing.T) {
	calc := cltv.NewCalculator(linearPurchases{perWeek: 1}, fixedSpend{value: 10}, 3, 0.01, domain.DiscountMonthly)

	want := 0.0
	for m := 1; m <= 3; m++ {
		want += cltv.WeeksPerMonth * 10 / math.Pow(1.01, float64(m))
	}
	got, err := calc.CLTV(domain.CLTVInputs{})
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-9)
}

func TestCalculator_NonNegativeAndMonotoneInHorizon(t *testing.T) {
	tp, err := model.NewBGNBDPredictor(domain.BGNBDParams{R: 0.243, Alpha: 4.414, A: 0.793, B: 2.426})
	require.NoError(t, err)
	sp, err := model.NewGammaGammaPredictor(domain.GammaGammaParams{P: 6.25, Q: 3.74, V: 15.44})
	require.NoError(t, err)

	customers := []domain.CLTVInputs{
		{ID: "single", Frequency: 1, RecencyWeeks: 0, TenureWeeks: 2, MonetaryAvg: 100},
		{ID: "regular", Frequency: 8, RecencyWeeks: 40, TenureWeeks: 45, MonetaryAvg: 35},
		{ID: "lapsed", Frequency: 3, RecencyWeeks: 5, TenureWeeks: 60, MonetaryAvg: 20},
	}
	for _, period := range []domain.DiscountPeriod{domain.DiscountWeekly, domain.DiscountMonthly} {
		for _, in := range customers {
			prev := 0.0
			for months := 1; months <= 24; months++ {
				got, err := cltv.NewCalculator(tp, sp, months, 0.01, period).CLTV(in)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, got, prev, "%s %s months=%d", period, in.ID, months)
				prev = got
			}
			assert.Positive(t, prev)
		}
	}
}

func TestCalculator_Record(t *testing.T) {
	calc := cltv.NewCalculator(linearPurchases{perWeek: 0.5}, fixedSpend{value: 20}, 6, 0, domain.DiscountWeekly)
	rec, err := calc.Record(domain.CLTVInputs{ID: "c", Frequency: 2, MonetaryAvg: 15})
	require.NoError(t, err)
	assert.Equal(t, 6.0, rec.ExpSales3Month)
	assert.Equal(t, 12.0, rec.ExpSales6Month)
	assert.Equal(t, 12.0, rec.ExpTransactionsHorizon)
	assert.Equal(t, 20.0, rec.ExpAvgValue)
	assert.InDelta(t, 0.5*6*cltv.WeeksPerMonth*20, rec.CLTV, 1e-9)
}

func TestSegmentLabels(t *testing.T) {
	assert.Equal(t, []string{"D", "C", "B", "A"}, cltv.SegmentLabels(4))
	assert.Equal(t, []string{"A"}, cltv.SegmentLabels(1))
}

func records(values ...float64) []domain.CLTVRecord {
	out := make([]domain.CLTVRecord, len(values))
	for i, v := range values {
		out[i] = domain.CLTVRecord{CLTVInputs: domain.CLTVInputs{ID: fmt.Sprintf("c%d", i), Frequency: 1}, CLTV: v}
	}
	return out
}

func TestSegment_QuartilesHighestIsA(t *testing.T) {
	recs := records(5, 1, 8, 3, 7, 2, 6, 4)
	require.NoError(t, cltv.Segment(recs, 4))

	got := map[float64]string{}
	for _, r := range recs {
		got[r.CLTV] = r.Segment
	}
	assert.Equal(t, "D", got[1])
	assert.Equal(t, "D", got[2])
	assert.Equal(t, "C", got[3])
	assert.Equal(t, "B", got[6])
	assert.Equal(t, "A", got[7])
	assert.Equal(t, "A", got[8])

	sums := cltv.Summarize(recs)
	require.Len(t, sums, 4)
	assert.Equal(t, "A", sums[0].Segment)
	assert.Equal(t, 2, sums[0].Customers)
	assert.Equal(t, 15.0, sums[0].SumCLTV)
	assert.Equal(t, 7.5, sums[0].MeanCLTV)
}

func TestSegment_Degenerate(t *testing.T) {
	err := cltv.Segment(records(0, 0, 0, 0, 0, 1), 4)
	var degenerate *domain.ErrDegeneratePopulation
	require.True(t, errors.As(err, &degenerate))
	assert.Equal(t, "cltv", degenerate.Metric)
}

func TestTopAndTotals(t *testing.T) {
	recs := records(5, 1, 8, 3)
	top := cltv.Top(recs, 2)
	require.Len(t, top, 2)
	assert.Equal(t, 8.0, top[0].CLTV)
	assert.Equal(t, 5.0, top[1].CLTV)
	assert.Len(t, cltv.Top(recs, 10), 4)

	total, mean := cltv.Totals(recs)
	assert.Equal(t, 17.0, total)
	assert.Equal(t, 4.25, mean)
}
