package domain

// ============================================================
// CLTV
// ============================================================

// CLTVInputs are the weekly-scaled model inputs of one customer.
type CLTVInputs struct {
	ID           string  `json:"master_id"`
	RecencyWeeks float64 `json:"recency_cltv_weekly"`
	TenureWeeks  float64 `json:"T_weekly"`
	Frequency    int     `json:"frequency"`
	MonetaryAvg  float64 `json:"monetary_cltv_avg"`
}

// BGNBDParams are the fitted population parameters of the purchase-timing
// model: r and Alpha shape/scale the Gamma purchase-rate mixture, A and B
// shape the Beta dropout mixture.
type BGNBDParams struct {
	R     float64 `json:"r"`
	Alpha float64 `json:"alpha"`
	A     float64 `json:"a"`
	B     float64 `json:"b"`
}

// GammaGammaParams are the fitted population parameters of the spend model.
type GammaGammaParams struct {
	P float64 `json:"p"`
	Q float64 `json:"q"`
	V float64 `json:"v"`
}

// FitReport describes one optimizer run.
type FitReport struct {
	Model         string  `json:"model"`
	Optimizer     string  `json:"optimizer"`
	Penalizer     float64 `json:"penalizer"`
	LogLikelihood float64 `json:"log_likelihood"`
	Iterations    int     `json:"iterations"`
	Evaluations   int     `json:"evaluations"`
	Status        string  `json:"status"`
}

// CLTVRecord is the forecast for one customer.
type CLTVRecord struct {
	CLTVInputs
	ExpSales3Month         float64 `json:"exp_sales_3_month"`
	ExpSales6Month         float64 `json:"exp_sales_6_month"`
	ExpTransactionsHorizon float64 `json:"exp_transactions_horizon"`
	ExpAvgValue            float64 `json:"exp_average_value"`
	CLTV                   float64 `json:"cltv"`
	Segment                string  `json:"cltv_segment"`
}

// ValueSegmentSummary describes one CLTV segment of a batch.
type ValueSegmentSummary struct {
	Segment          string  `json:"cltv_segment"`
	Customers        int     `json:"customers"`
	MeanRecencyWeeks float64 `json:"mean_recency_weekly"`
	MeanTenureWeeks  float64 `json:"mean_T_weekly"`
	MeanFrequency    float64 `json:"mean_frequency"`
	MeanMonetaryAvg  float64 `json:"mean_monetary_avg"`
	MeanCLTV         float64 `json:"mean_cltv"`
	SumCLTV          float64 `json:"sum_cltv"`
}
