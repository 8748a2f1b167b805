package domain

import "time"

// ============================================================
// Batch runs
// ============================================================

// DiscountPeriod selects how the CLTV horizon is partitioned for discounting.
type DiscountPeriod string

const (
	// DiscountWeekly discounts each forecast week k by (1+rate)^k.
	DiscountWeekly DiscountPeriod = "week"
	// DiscountMonthly steps in 4.345-week months and discounts month m by (1+rate)^m.
	DiscountMonthly DiscountPeriod = "month"
)

// AnalysisOptions are the model options of one batch run.
type AnalysisOptions struct {
	HorizonMonths       int            `json:"horizon_months" yaml:"horizon_months"`
	SegmentCount        int            `json:"segment_count" yaml:"segment_count"`
	BGNBDPenalizer      float64        `json:"bgnbd_penalizer" yaml:"bgnbd_penalizer"`
	GammaGammaPenalizer float64        `json:"gg_penalizer" yaml:"gg_penalizer"`
	DiscountRate        float64        `json:"discount_rate" yaml:"discount_rate"`
	DiscountPeriod      DiscountPeriod `json:"discount_period" yaml:"discount_period"`
	OutlierLowQ         float64        `json:"outlier_low_q" yaml:"outlier_low_q"`
	OutlierHighQ        float64        `json:"outlier_high_q" yaml:"outlier_high_q"`
	BufferDays          int            `json:"analysis_buffer_days" yaml:"analysis_buffer_days"`
	AnalysisDate        *time.Time     `json:"analysis_date,omitempty" yaml:"-"`
	TopN                int            `json:"top_n" yaml:"top_n"`
}

// DefaultAnalysisOptions returns the reference defaults.
func DefaultAnalysisOptions() AnalysisOptions {
	return AnalysisOptions{
		HorizonMonths:       6,
		SegmentCount:        4,
		BGNBDPenalizer:      0.001,
		GammaGammaPenalizer: 0.01,
		DiscountRate:        0.01,
		DiscountPeriod:      DiscountWeekly,
		OutlierLowQ:         0.01,
		OutlierHighQ:        0.99,
		BufferDays:          2,
		TopN:                10,
	}
}

// Validate checks option ranges.
func (o AnalysisOptions) Validate() error {
	switch {
	case o.HorizonMonths < 1:
		return &ErrValidation{Field: "horizon_months", Message: "must be at least 1"}
	case o.SegmentCount < 1 || o.SegmentCount > 26:
		return &ErrValidation{Field: "segment_count", Message: "must be between 1 and 26"}
	case o.BGNBDPenalizer < 0:
		return &ErrValidation{Field: "bgnbd_penalizer", Message: "must not be negative"}
	case o.GammaGammaPenalizer < 0:
		return &ErrValidation{Field: "gg_penalizer", Message: "must not be negative"}
	case o.DiscountRate <= -1:
		return &ErrValidation{Field: "discount_rate", Message: "must be greater than -1"}
	case o.DiscountPeriod != DiscountWeekly && o.DiscountPeriod != DiscountMonthly:
		return &ErrValidation{Field: "discount_period", Message: "must be week or month"}
	case o.OutlierLowQ < 0 || o.OutlierHighQ > 1 || o.OutlierLowQ >= o.OutlierHighQ:
		return &ErrValidation{Field: "outlier_quantiles", Message: "need 0 <= low < high <= 1"}
	case o.BufferDays < 0:
		return &ErrValidation{Field: "analysis_buffer_days", Message: "must not be negative"}
	}
	return nil
}

// RFMResult is the output of the RFM pipeline.
type RFMResult struct {
	Records   []ScoredRFM      `json:"records"`
	Segments  []SegmentSummary `json:"segments"`
	Audiences []AudienceResult `json:"audiences"`
}

// CLTVResult is the output of the CLTV pipeline.
type CLTVResult struct {
	Records         []CLTVRecord          `json:"records"`
	BGNBD           BGNBDParams           `json:"bgnbd_params"`
	GammaGamma      GammaGammaParams      `json:"gamma_gamma_params"`
	Fits            []FitReport           `json:"fits"`
	Segments        []ValueSegmentSummary `json:"segments"`
	Top             []CLTVRecord          `json:"top"`
	TotalForecast   float64               `json:"total_forecast"`
	AverageForecast float64               `json:"average_forecast"`
}

// AnalysisResult is everything one batch run produced.
type AnalysisResult struct {
	RunID        string           `json:"run_id"`
	AnalysisDate time.Time        `json:"analysis_date"`
	Options      AnalysisOptions  `json:"options"`
	Customers    int              `json:"customers"`
	Channels     []ChannelSummary `json:"channels"`
	RFM          *RFMResult       `json:"rfm"`
	CLTV         *CLTVResult      `json:"cltv"`
	StartedAt    time.Time        `json:"started_at"`
	Duration     time.Duration    `json:"duration_ns"`
}

// RunSummary is the compact view of an AnalysisResult.
type RunSummary struct {
	RunID           string                `json:"run_id"`
	AnalysisDate    string                `json:"analysis_date"`
	Customers       int                   `json:"customers"`
	Options         AnalysisOptions       `json:"options"`
	Channels        []ChannelSummary      `json:"channels"`
	RFMSegments     []SegmentSummary      `json:"rfm_segments"`
	ValueSegments   []ValueSegmentSummary `json:"cltv_segments"`
	BGNBD           BGNBDParams           `json:"bgnbd_params"`
	GammaGamma      GammaGammaParams      `json:"gamma_gamma_params"`
	Fits            []FitReport           `json:"fits"`
	Audiences       map[string]int        `json:"audiences"`
	Top             []CLTVRecord          `json:"top"`
	TotalForecast   float64               `json:"total_forecast"`
	AverageForecast float64               `json:"average_forecast"`
	DurationMs      int64                 `json:"duration_ms"`
}

// Summary builds the compact view.
func (r *AnalysisResult) Summary() *RunSummary {
	s := &RunSummary{
		RunID:        r.RunID,
		AnalysisDate: r.AnalysisDate.Format("2006-01-02"),
		Customers:    r.Customers,
		Options:      r.Options,
		Channels:     r.Channels,
		Audiences:    map[string]int{},
		DurationMs:   r.Duration.Milliseconds(),
	}
	if r.RFM != nil {
		s.RFMSegments = r.RFM.Segments
		for _, a := range r.RFM.Audiences {
			s.Audiences[a.Name] = len(a.CustomerIDs)
		}
	}
	if r.CLTV != nil {
		s.ValueSegments = r.CLTV.Segments
		s.BGNBD = r.CLTV.BGNBD
		s.GammaGamma = r.CLTV.GammaGamma
		s.Fits = r.CLTV.Fits
		s.Top = r.CLTV.Top
		s.TotalForecast = r.CLTV.TotalForecast
		s.AverageForecast = r.CLTV.AverageForecast
	}
	return s
}
