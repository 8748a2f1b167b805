package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/cache"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/observability"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/resilience"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/model"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/optim"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/port"

	"go.uber.org/zap"
)

// --- Mocks ---

type mockSource struct {
	records []domain.CustomerRecord
	err     error
}

func (m *mockSource) Name() string { return "mock" }

func (m *mockSource) Load(ctx context.Context) ([]domain.CustomerRecord, error) {
	return m.records, m.err
}

type countingProgress struct {
	started atomic.Int64
	added   atomic.Int64
}

func (p *countingProgress) Start(_ string, total int) { p.started.Add(int64(total)) }
func (p *countingProgress) Add(n int)                 { p.added.Add(int64(n)) }
func (p *countingProgress) Finish()                   {}

// gammaDraw samples Gamma(shape, rate) for shape >= 1.
func gammaDraw(rng *rand.Rand, shape, rate float64) float64 {
	d := shape - 1.0/3
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		if math.Log(rng.Float64()) < 0.5*x*x+d-d*v+d*math.Log(v) {
			return d * v / rate
		}
	}
}

// syntheticCustomers builds n customers whose order spend follows the
// Gamma-Gamma process, plus one single-purchase customer.
func syntheticCustomers(n int) []domain.CustomerRecord {
	rng := rand.New(rand.NewSource(2024))
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	tags := [][]string{{"KADIN"}, {"ERKEK"}, {"AKTIFCOCUK", "COCUK"}, {"KADIN", "AKTIFSPOR"}, {}}
	channels := []string{"Android App", "Desktop", "Ios App", "Mobile"}

	out := make([]domain.CustomerRecord, 0, n+1)
	for i := 0; i < n; i++ {
		first := base.AddDate(0, 0, rng.Intn(400))
		span := rng.Intn(int(base.AddDate(0, 0, 500).Sub(first).Hours()/24) + 1)
		orders := 2 + rng.Intn(12)
		nu := gammaDraw(rng, 4, 50)
		var spend float64
		for k := 0; k < orders; k++ {
			spend += gammaDraw(rng, 6, nu)
		}
		online := 1 + rng.Intn(orders)
		out = append(out, domain.CustomerRecord{
			ID:             fmt.Sprintf("cust-%04d", i),
			OrderChannel:   channels[i%len(channels)],
			FirstOrderDate: first,
			LastOrderDate:  first.AddDate(0, 0, span),
			OrdersOnline:   float64(online),
			OrdersOffline:  float64(orders - online),
			SpendOnline:    spend * float64(online) / float64(orders),
			SpendOffline:   spend * float64(orders-online) / float64(orders),
			InterestedIn:   tags[i%len(tags)],
		})
	}
	out = append(out, domain.CustomerRecord{
		ID:             "single",
		OrderChannel:   "Desktop",
		FirstOrderDate: base.AddDate(0, 0, 480),
		LastOrderDate:  base.AddDate(0, 0, 480),
		OrdersOnline:   1,
		SpendOnline:    100,
	})
	return out
}

func newTestAnalyzer(progress *countingProgress) *Analyzer {
	var p port.Progress
	if progress != nil {
		p = progress
	}
	return NewAnalyzer(optim.NewNelderMead(optim.DefaultConfig()), 4, p, observability.NewMetrics(), zap.NewNop())
}

// --- Tests ---

func TestAnalyzer_Run_EndToEnd(t *testing.T) {
	progress := &countingProgress{}
	a := newTestAnalyzer(progress)
	records := syntheticCustomers(400)

	res, err := a.Run(context.Background(), records, domain.DefaultAnalysisOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.RunID == "" {
		t.Error("expected run id")
	}
	if res.Customers != len(records) {
		t.Errorf("expected %d customers, got %d", len(records), res.Customers)
	}
	var last time.Time
	for _, r := range records {
		if r.LastOrderDate.After(last) {
			last = r.LastOrderDate
		}
	}
	if want := last.AddDate(0, 0, 2); !res.AnalysisDate.Equal(want) {
		t.Errorf("expected analysis date %s, got %s", want, res.AnalysisDate)
	}
	if len(res.Channels) != 4 {
		t.Errorf("expected 4 channels, got %d", len(res.Channels))
	}

	if len(res.RFM.Records) != len(records) {
		t.Fatalf("expected %d rfm records, got %d", len(records), len(res.RFM.Records))
	}
	if len(res.RFM.Audiences) != 2 {
		t.Errorf("expected 2 audiences, got %d", len(res.RFM.Audiences))
	}

	if len(res.CLTV.Records) != len(records) {
		t.Fatalf("expected %d cltv records, got %d", len(records), len(res.CLTV.Records))
	}
	segments := map[string]int{}
	for _, r := range res.CLTV.Records {
		if r.CLTV < 0 || math.IsNaN(r.CLTV) {
			t.Fatalf("invalid cltv for %s: %f", r.ID, r.CLTV)
		}
		segments[r.Segment]++
	}
	if len(segments) != 4 {
		t.Errorf("expected 4 value segments, got %v", segments)
	}
	if len(res.CLTV.Fits) != 2 {
		t.Errorf("expected 2 fit reports, got %d", len(res.CLTV.Fits))
	}
	if len(res.CLTV.Top) != 10 {
		t.Errorf("expected top 10, got %d", len(res.CLTV.Top))
	}
	if res.CLTV.Top[0].CLTV < res.CLTV.Top[9].CLTV {
		t.Error("top customers not ordered by cltv")
	}

	single := res.CLTV.Records[len(res.CLTV.Records)-1]
	if single.ID != "single" || single.Frequency != 1 || single.RecencyWeeks != 0 || single.MonetaryAvg != 100 {
		t.Errorf("unexpected single-purchase record %+v", single.CLTVInputs)
	}

	if got := progress.added.Load(); got != int64(len(records)) {
		t.Errorf("expected progress %d, got %d", len(records), got)
	}

	summary := res.Summary()
	if summary.Audiences["new_brand_women"] != len(res.RFM.Audiences[0].CustomerIDs) {
		t.Error("summary audience counts mismatch")
	}
}

func TestAnalyzer_Run_ExpectedValueShrinksTowardPopulation(t *testing.T) {
	a := newTestAnalyzer(nil)

	res, err := a.Run(context.Background(), syntheticCustomers(300), domain.DefaultAnalysisOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gg, err := model.NewGammaGammaPredictor(res.CLTV.GammaGamma)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pop := gg.PopulationMean()

	for _, r := range res.CLTV.Records {
		lo, hi := math.Min(pop, r.MonetaryAvg), math.Max(pop, r.MonetaryAvg)
		if r.ExpAvgValue < lo-1e-6 || r.ExpAvgValue > hi+1e-6 {
			t.Fatalf("%s: expected value %f outside [%f, %f]", r.ID, r.ExpAvgValue, lo, hi)
		}
	}
}

func TestAnalyzer_Run_InvalidOptions(t *testing.T) {
	a := newTestAnalyzer(nil)
	opts := domain.DefaultAnalysisOptions()
	opts.SegmentCount = 0

	_, err := a.Run(context.Background(), syntheticCustomers(10), opts)
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestAnalyzer_Run_InvalidRecords(t *testing.T) {
	a := newTestAnalyzer(nil)
	records := syntheticCustomers(20)
	records[3].OrdersOnline = -2

	_, err := a.Run(context.Background(), records, domain.DefaultAnalysisOptions())
	var invalid *domain.ErrInvalidRecords
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidRecords, got %v", err)
	}
	if len(invalid.IDs) != 1 || invalid.IDs[0] != "cust-0003" {
		t.Errorf("unexpected ids %v", invalid.IDs)
	}
}

func TestAnalyzer_Run_NotConverged(t *testing.T) {
	cfg := optim.DefaultConfig()
	cfg.MaxIterations = 2
	a := NewAnalyzer(optim.NewNelderMead(cfg), 2, nil, observability.NewMetrics(), zap.NewNop())

	_, err := a.Run(context.Background(), syntheticCustomers(120), domain.DefaultAnalysisOptions())
	var nc *domain.ErrNotConverged
	if !errors.As(err, &nc) {
		t.Fatalf("expected ErrNotConverged, got %v", err)
	}
	if snap := a.metrics.GetPipelineSnapshot(); snap.FitFailures == 0 || snap.RunsFailed != 1 {
		t.Errorf("unexpected metrics snapshot %+v", snap)
	}
}

func TestAnalyzer_Run_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestAnalyzer(nil).Run(ctx, syntheticCustomers(10), domain.DefaultAnalysisOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAnalyzer_RunSource_Error(t *testing.T) {
	a := newTestAnalyzer(nil)
	src := &mockSource{err: &domain.ErrExternalService{Service: "postgres", Err: errors.New("connection refused")}}

	_, err := a.RunSource(context.Background(), src, domain.DefaultAnalysisOptions())
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}

func TestAnalyzer_RunSource_Success(t *testing.T) {
	a := newTestAnalyzer(nil)
	src := &mockSource{records: syntheticCustomers(120)}

	res, err := a.RunSource(context.Background(), src, domain.DefaultAnalysisOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Customers != 121 {
		t.Errorf("expected 121 customers, got %d", res.Customers)
	}
}

func TestParallelRange_CoversEveryIndexOnce(t *testing.T) {
	for _, tc := range []struct{ n, workers int }{{0, 4}, {1, 4}, {10, 3}, {100, 8}, {7, 0}} {
		hits := make([]int32, tc.n)
		err := parallelRange(context.Background(), tc.n, tc.workers, func(_ context.Context, lo, hi int) error {
			for i := lo; i < hi; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("n=%d workers=%d: index %d visited %d times", tc.n, tc.workers, i, h)
			}
		}
	}
}

func TestParallelRange_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	err := parallelRange(context.Background(), 10, 5, func(_ context.Context, lo, hi int) error {
		if lo == 0 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestRunRegistry_SubmitGetAudience(t *testing.T) {
	runs := cache.New[*domain.AnalysisResult](time.Minute)
	defer runs.Close()
	metrics := observability.NewMetrics()
	reg := NewRunRegistry(newTestAnalyzer(nil), runs, resilience.NewBulkhead(1), domain.DefaultAnalysisOptions(), metrics, zap.NewNop())

	res, err := reg.Submit(context.Background(), syntheticCustomers(150), reg.Defaults())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := reg.Get(context.Background(), res.RunID)
	if err != nil || got != res {
		t.Fatalf("expected stored run, got %v (%v)", got, err)
	}

	aud, err := reg.Audience(context.Background(), res.RunID, "discount_men_kids")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aud.Name != "discount_men_kids" {
		t.Errorf("unexpected audience %s", aud.Name)
	}

	var notFound *domain.ErrNotFound
	if _, err := reg.Get(context.Background(), "missing"); !errors.As(err, &notFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := reg.Audience(context.Background(), res.RunID, "nope"); !errors.As(err, &notFound) {
		t.Errorf("expected ErrNotFound for audience, got %v", err)
	}

	// Get, Audience x2 hit; the missing run misses.
	snap := metrics.GetPipelineSnapshot()
	if snap.CacheHitRate != 0.75 {
		t.Errorf("unexpected cache hit rate %f", snap.CacheHitRate)
	}
}

func TestRunRegistry_BulkheadTimeout(t *testing.T) {
	runs := cache.New[*domain.AnalysisResult](time.Minute)
	defer runs.Close()
	bh := resilience.NewBulkhead(1)
	reg := NewRunRegistry(newTestAnalyzer(nil), runs, bh, domain.DefaultAnalysisOptions(), observability.NewMetrics(), zap.NewNop())

	if err := bh.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer bh.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := reg.Submit(ctx, syntheticCustomers(10), reg.Defaults())
	var timeout *domain.ErrTimeout
	if !errors.As(err, &timeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
