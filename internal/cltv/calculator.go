package cltv

import (
	"fmt"
	"math"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/model"
)

const (
	// WeeksPerMonth converts a horizon in months to weeks.
	WeeksPerMonth = 4.345
	// forecastWeeksPerMonth is the coarser month length used for the
	// undiscounted expected-transaction columns.
	forecastWeeksPerMonth = 4
)

// Calculator turns fitted predictors into discounted lifetime values.
type Calculator struct {
	transactions model.TransactionPredictor
	spend        model.SpendPredictor
	months       int
	rate         float64
	period       domain.DiscountPeriod
}

// NewCalculator creates a Calculator over a horizon of months.
func NewCalculator(tp model.TransactionPredictor, sp model.SpendPredictor, months int, rate float64, period domain.DiscountPeriod) *Calculator {
	return &Calculator{transactions: tp, spend: sp, months: months, rate: rate, period: period}
}

// HorizonWeeks returns the CLTV horizon in weeks.
func (c *Calculator) HorizonWeeks() float64 {
	return float64(c.months) * WeeksPerMonth
}

// CLTV sums, over sub-periods k of the horizon, the expected purchases in
// that sub-period alone times the expected average value, discounted by
// (1+rate)^k. Weekly mode uses one-week sub-periods (the last one may be
// partial); monthly mode uses 4.345-week months.
func (c *Calculator) CLTV(in domain.CLTVInputs) (float64, error) {
	value, err := c.spend.ExpectedAverageValue(in)
	if err != nil {
		return 0, err
	}

	step := 1.0
	if c.period == domain.DiscountMonthly {
		step = WeeksPerMonth
	}
	horizon := c.HorizonWeeks()
	periods := int(math.Ceil(horizon/step - 1e-9))

	var total, prev float64
	for k := 1; k <= periods; k++ {
		end := math.Min(float64(k)*step, horizon)
		cum, err := c.transactions.ExpectedPurchases(in, end)
		if err != nil {
			return 0, err
		}
		marginal := math.Max(cum-prev, 0)
		prev = cum
		total += marginal * value / math.Pow(1+c.rate, float64(k))
	}
	return total, nil
}

// Record builds the full forecast of one customer. Segment is left empty.
func (c *Calculator) Record(in domain.CLTVInputs) (domain.CLTVRecord, error) {
	rec := domain.CLTVRecord{CLTVInputs: in}
	var err error
	if rec.ExpSales3Month, err = c.transactions.ExpectedPurchases(in, 3*forecastWeeksPerMonth); err != nil {
		return rec, err
	}
	if rec.ExpSales6Month, err = c.transactions.ExpectedPurchases(in, 6*forecastWeeksPerMonth); err != nil {
		return rec, err
	}
	if rec.ExpTransactionsHorizon, err = c.transactions.ExpectedPurchases(in, float64(c.months*forecastWeeksPerMonth)); err != nil {
		return rec, err
	}
	if rec.ExpAvgValue, err = c.spend.ExpectedAverageValue(in); err != nil {
		return rec, err
	}
	if rec.CLTV, err = c.CLTV(in); err != nil {
		return rec, err
	}
	if rec.CLTV < 0 || math.IsNaN(rec.CLTV) {
		return rec, fmt.Errorf("cltv for %s is invalid: %v", in.ID, rec.CLTV)
	}
	return rec, nil
}
