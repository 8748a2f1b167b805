package domain

// ============================================================
// RFM
// ============================================================

// Segment is a behavioral label derived from the recency/frequency scores.
type Segment string

const (
	SegmentHibernating        Segment = "hibernating"
	SegmentAtRisk             Segment = "at_risk"
	SegmentCantLoose          Segment = "cant_loose"
	SegmentAboutToSleep       Segment = "about_to_sleep"
	SegmentNeedAttention      Segment = "need_attention"
	SegmentLoyalCustomers     Segment = "loyal_customers"
	SegmentPromising          Segment = "promising"
	SegmentNewCustomers       Segment = "new_customers"
	SegmentPotentialLoyalists Segment = "potential_loyalists"
	SegmentChampions          Segment = "champions"
)

// Segments lists the full taxonomy in table order.
var Segments = []Segment{
	SegmentHibernating,
	SegmentAtRisk,
	SegmentCantLoose,
	SegmentAboutToSleep,
	SegmentNeedAttention,
	SegmentLoyalCustomers,
	SegmentPromising,
	SegmentNewCustomers,
	SegmentPotentialLoyalists,
	SegmentChampions,
}

// RFMRecord holds the raw recency/frequency/monetary metrics of one customer.
type RFMRecord struct {
	ID        string  `json:"master_id"`
	Recency   int     `json:"recency"`
	Frequency int     `json:"frequency"`
	Monetary  float64 `json:"monetary"`
}

// ScoredRFM is an RFMRecord with population-relative scores. Only valid for
// the batch it was computed from.
type ScoredRFM struct {
	RFMRecord
	RecencyScore   int     `json:"recency_score"`
	FrequencyScore int     `json:"frequency_score"`
	MonetaryScore  int     `json:"monetary_score"`
	RFCode         string  `json:"rf_score"`
	Segment        Segment `json:"segment"`
}

// SegmentSummary describes one RFM segment of a batch.
type SegmentSummary struct {
	Segment       Segment `json:"segment"`
	Customers     int     `json:"customers"`
	MeanRecency   float64 `json:"mean_recency"`
	MeanFrequency float64 `json:"mean_frequency"`
	MeanMonetary  float64 `json:"mean_monetary"`
}

// AudienceResult is the list of customers selected by a target-audience rule.
type AudienceResult struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	CustomerIDs []string `json:"customer_ids"`
}
