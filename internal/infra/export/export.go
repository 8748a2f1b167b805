// Package export writes run artifacts: the RFM and CLTV tables, the
// audience id lists and a timestamped JSON summary.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"

	"go.uber.org/zap"
)

const (
	RFMFile  = "rfm_segments.csv"
	CLTVFile = "cltv_prediction.csv"
)

var (
	rfmHeader = []string{
		"master_id", "recency", "frequency", "monetary",
		"recency_score", "frequency_score", "monetary_score", "rf_score", "segment",
	}
	cltvHeader = []string{
		"master_id", "recency_cltv_weekly", "T_weekly", "frequency", "monetary_cltv_avg",
		"exp_sales_3_month", "exp_sales_6_month", "exp_transactions_horizon",
		"exp_average_value", "cltv", "cltv_segment",
	}
)

// FileSink writes artifacts into a directory.
type FileSink struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger
}

// NewFileSink creates a sink rooted at dir.
func NewFileSink(dir string, logger *zap.Logger) *FileSink {
	return &FileSink{dir: dir, now: time.Now, logger: logger}
}

// Write stores every artifact of result and returns the written paths.
func (s *FileSink) Write(ctx context.Context, result *domain.AnalysisResult) ([]string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var written []string
	write := func(name string, fn func(io.Writer) error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(s.dir, name)
		if err := writeFile(path, fn); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	if result.RFM != nil {
		if err := write(RFMFile, func(w io.Writer) error { return WriteRFM(w, result.RFM.Records) }); err != nil {
			return written, err
		}
		for _, aud := range result.RFM.Audiences {
			if err := write(aud.Name+".csv", func(w io.Writer) error { return WriteAudience(w, aud) }); err != nil {
				return written, err
			}
		}
	}
	if result.CLTV != nil {
		if err := write(CLTVFile, func(w io.Writer) error { return WriteCLTV(w, result.CLTV.Records) }); err != nil {
			return written, err
		}
	}

	summary := TimestampedFilename(s.dir, "summary", s.now())
	if err := ExportJSON(summary, result.Summary()); err != nil {
		return written, err
	}
	written = append(written, summary)

	s.logger.Info("artifacts written",
		zap.String("run_id", result.RunID),
		zap.String("dir", s.dir),
		zap.Int("files", len(written)),
	)
	return written, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// ExportJSON writes data as indented JSON, creating parent directories.
func ExportJSON(filename string, data any) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("create folder: %w", err)
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// TimestampedFilename returns baseDir/name_YYYYMMDD_HHMMSS.json.
func TimestampedFilename(baseDir, name string, t time.Time) string {
	return filepath.Join(baseDir, fmt.Sprintf("%s_%s.json", name, t.Format("20060102_150405")))
}

// WriteRFM writes the scored RFM table.
func WriteRFM(w io.Writer, records []domain.ScoredRFM) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rfmHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.ID,
			strconv.Itoa(r.Recency),
			strconv.Itoa(r.Frequency),
			formatFloat(r.Monetary),
			strconv.Itoa(r.RecencyScore),
			strconv.Itoa(r.FrequencyScore),
			strconv.Itoa(r.MonetaryScore),
			r.RFCode,
			string(r.Segment),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCLTV writes the per-customer forecast table.
func WriteCLTV(w io.Writer, records []domain.CLTVRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cltvHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.ID,
			formatFloat(r.RecencyWeeks),
			formatFloat(r.TenureWeeks),
			strconv.Itoa(r.Frequency),
			formatFloat(r.MonetaryAvg),
			formatFloat(r.ExpSales3Month),
			formatFloat(r.ExpSales6Month),
			formatFloat(r.ExpTransactionsHorizon),
			formatFloat(r.ExpAvgValue),
			formatFloat(r.CLTV),
			r.Segment,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAudience writes one customer id per line under a master_id header.
func WriteAudience(w io.Writer, aud domain.AudienceResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"master_id"}); err != nil {
		return err
	}
	for _, id := range aud.CustomerIDs {
		if err := cw.Write([]string{id}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
