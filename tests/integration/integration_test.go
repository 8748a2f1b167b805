package integration_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/handler"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/cache"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/export"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/observability"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/resilience"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/source"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/optim"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/service"

	"go.uber.org/zap"
)

const header = "master_id,order_channel,last_order_channel,first_order_date,last_order_date,last_order_date_online,last_order_date_offline,order_num_total_ever_online,order_num_total_ever_offline,customer_value_total_ever_offline,customer_value_total_ever_online,interested_in_categories_12\n"

func gammaInt(rng *rand.Rand, k int, rate float64) float64 {
	var s float64
	for i := 0; i < k; i++ {
		s += rng.ExpFloat64()
	}
	return s / rate
}

// writeSnapshot writes n synthetic customers plus the two reference
// scenarios: a single-purchase customer and a 50-vs-2 frequency pair with
// identical recency and average spend.
func writeSnapshot(t *testing.T, dir string, n int) string {
	t.Helper()
	rng := rand.New(rand.NewSource(11))
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 5, 30, 0, 0, 0, 0, time.UTC)
	tags := []string{"[KADIN]", `"[ERKEK, COCUK]"`, "[AKTIFCOCUK]", `"[KADIN, AKTIFSPOR]"`, "[ERKEK]", "[]"}
	channels := []string{"Android App", "Desktop", "Ios App", "Mobile"}

	var b strings.Builder
	b.WriteString(header)
	for i := 0; i < n; i++ {
		first := base.AddDate(0, 0, 1+rng.Intn(400))
		days := int(end.Sub(first).Hours() / 24)
		last := first.AddDate(0, 0, rng.Intn(days+1))
		orders := 2 + rng.Intn(10)
		nu := gammaInt(rng, 4, 50)
		var spend float64
		for k := 0; k < orders; k++ {
			spend += gammaInt(rng, 6, nu)
		}
		online := 1 + rng.Intn(orders)
		fmt.Fprintf(&b, "c%05d,%s,%s,%s,%s,,,%d,%d,%.2f,%.2f,%s\n",
			i, channels[i%4], channels[(i+3)%4],
			first.Format("2006-01-02"), last.Format("2006-01-02"),
			online, orders-online,
			spend*float64(orders-online)/float64(orders), spend*float64(online)/float64(orders),
			tags[i%len(tags)],
		)
	}
	b.WriteString("single,Desktop,Desktop,2020-01-01,2020-01-01,2020-01-01,,1,0,0,100,[KADIN]\n")
	b.WriteString("freq50,Mobile,Mobile,2020-06-01,2021-05-30,,,25,25,2500,2500,[ERKEK]\n")
	b.WriteString("freq2,Mobile,Mobile,2020-06-01,2021-05-30,,,1,1,100,100,[ERKEK]\n")

	path := filepath.Join(dir, "customers.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestIntegration_BatchRun loads a CSV snapshot, analyzes it and writes the
// artifacts, the same path `crm run` takes.
func TestIntegration_BatchRun(t *testing.T) {
	dir := t.TempDir()
	path := writeSnapshot(t, dir, 600)
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	analyzer := service.NewAnalyzer(optim.NewLBFGS(optim.DefaultConfig()), 4, nil, metrics, logger)
	res, err := analyzer.RunSource(context.Background(), source.NewCSVFile(path, logger), domain.DefaultAnalysisOptions())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// Analysis date is the latest order plus the two-day buffer.
	if got := res.AnalysisDate.Format("2006-01-02"); got != "2021-06-01" {
		t.Errorf("expected analysis date 2021-06-01, got %s", got)
	}

	// Every customer gets an RFM score in 1..5 and a named segment.
	known := map[domain.Segment]bool{}
	for _, s := range domain.Segments {
		known[s] = true
	}
	scoreCounts := map[int]int{}
	for _, r := range res.RFM.Records {
		if r.RecencyScore < 1 || r.RecencyScore > 5 || r.FrequencyScore < 1 || r.FrequencyScore > 5 {
			t.Fatalf("%s: score out of range %+v", r.ID, r)
		}
		if !known[r.Segment] {
			t.Fatalf("%s: unknown segment %s", r.ID, r.Segment)
		}
		scoreCounts[r.FrequencyScore]++
	}
	for score, n := range scoreCounts {
		if want := len(res.RFM.Records) / 5; n < want-1 || n > want+1 {
			t.Errorf("frequency score %d holds %d customers, want about %d", score, n, want)
		}
	}

	byID := map[string]domain.CLTVRecord{}
	for _, r := range res.CLTV.Records {
		if r.CLTV < 0 || math.IsNaN(r.CLTV) {
			t.Fatalf("%s: invalid cltv %f", r.ID, r.CLTV)
		}
		if r.ExpSales3Month > r.ExpSales6Month+1e-12 {
			t.Fatalf("%s: 3-month forecast exceeds 6-month", r.ID)
		}
		byID[r.ID] = r
	}

	single := byID["single"]
	if single.Frequency != 1 || single.RecencyWeeks != 0 || single.MonetaryAvg != 100 {
		t.Errorf("unexpected single-purchase inputs %+v", single.CLTVInputs)
	}
	if f50, f2 := byID["freq50"], byID["freq2"]; math.Abs(f50.ExpAvgValue-f2.ExpAvgValue) < 1e-3 {
		t.Errorf("expected shrinkage to separate expected values, got %f and %f", f50.ExpAvgValue, f2.ExpAvgValue)
	}

	// Segment A holds the most valuable customers.
	if len(res.CLTV.Segments) != 4 || res.CLTV.Segments[0].Segment != "A" {
		t.Fatalf("unexpected value segments %+v", res.CLTV.Segments)
	}
	for i := 1; i < len(res.CLTV.Segments); i++ {
		if res.CLTV.Segments[i].MeanCLTV > res.CLTV.Segments[i-1].MeanCLTV {
			t.Errorf("segment %s mean exceeds %s", res.CLTV.Segments[i].Segment, res.CLTV.Segments[i-1].Segment)
		}
	}

	paths, err := export.NewFileSink(filepath.Join(dir, "outputs"), logger).Write(context.Background(), res)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	f, err := os.Open(filepath.Join(dir, "outputs", export.CLTVFile))
	if err != nil {
		t.Fatalf("missing cltv artifact: %v (wrote %v)", err, paths)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != len(res.CLTV.Records)+1 {
		t.Errorf("expected %d cltv rows, got %d", len(res.CLTV.Records)+1, len(rows))
	}
}

// TestIntegration_HTTPFlow drives the service API end to end.
func TestIntegration_HTTPFlow(t *testing.T) {
	dir := t.TempDir()
	body, err := os.ReadFile(writeSnapshot(t, dir, 300))
	if err != nil {
		t.Fatal(err)
	}

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	runs := cache.New[*domain.AnalysisResult](time.Minute)
	defer runs.Close()

	analyzer := service.NewAnalyzer(optim.NewNelderMead(optim.DefaultConfig()), 4, nil, metrics, logger)
	registry := service.NewRunRegistry(analyzer, runs, resilience.NewBulkhead(1), domain.DefaultAnalysisOptions(), metrics, logger)
	srv := httptest.NewServer(handler.NewRouter(registry, metrics, 0, logger))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/runs?months=6&analysis_date=2021-06-01", "text/csv", strings.NewReader(string(body)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var summary domain.RunSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatal(err)
	}
	if summary.Customers != 303 || summary.AnalysisDate != "2021-06-01" {
		t.Errorf("unexpected summary %+v", summary)
	}
	if len(summary.Fits) != 2 {
		t.Errorf("expected two fit reports, got %d", len(summary.Fits))
	}

	aud, err := http.Get(srv.URL + "/v1/runs/" + summary.RunID + "/audiences/discount_men_kids")
	if err != nil {
		t.Fatal(err)
	}
	defer aud.Body.Close()
	var audience domain.AudienceResult
	if err := json.NewDecoder(aud.Body).Decode(&audience); err != nil {
		t.Fatal(err)
	}
	if audience.Name != "discount_men_kids" {
		t.Errorf("unexpected audience %+v", audience)
	}

	mresp, err := http.Get(srv.URL + "/v1/metrics/pipeline")
	if err != nil {
		t.Fatal(err)
	}
	defer mresp.Body.Close()
	var snap domain.PipelineMetrics
	if err := json.NewDecoder(mresp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.RunsTotal != 1 || snap.CustomersProcessed != 303 {
		t.Errorf("unexpected pipeline metrics %+v", snap)
	}
}
