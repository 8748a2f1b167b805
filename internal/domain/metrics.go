package domain

// PipelineMetrics is the snapshot served by GET /v1/metrics/pipeline.
type PipelineMetrics struct {
	RunsTotal          int64   `json:"runs_total"`
	RunsFailed         int64   `json:"runs_failed"`
	ErrorRate          float64 `json:"error_rate"`
	CustomersProcessed int64   `json:"customers_processed"`
	FitFailures        int64   `json:"fit_failures"`
	CacheHitRate       float64 `json:"cache_hit_rate"`
	Period             string  `json:"period"`
}
