package rfm

import (
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/stats"
)

// ScoreLevels is the number of ordinal score levels per metric.
const ScoreLevels = 5

// Score assigns population-relative 1..5 scores to every record of the
// batch and classifies the resulting RF code. Recency is inverted (most
// recent scores 5). Frequency is binned on its first-seen rank because
// integer counts tie heavily.
func Score(records []domain.RFMRecord) ([]domain.ScoredRFM, error) {
	n := len(records)
	recency := make([]float64, n)
	frequency := make([]float64, n)
	monetary := make([]float64, n)
	for i, r := range records {
		recency[i] = float64(r.Recency)
		frequency[i] = float64(r.Frequency)
		monetary[i] = r.Monetary
	}

	rBins, err := stats.Bin(recency, ScoreLevels, "recency")
	if err != nil {
		return nil, err
	}
	fBins, err := stats.Bin(stats.RankFirst(frequency), ScoreLevels, "frequency")
	if err != nil {
		return nil, err
	}
	mBins, err := stats.Bin(monetary, ScoreLevels, "monetary")
	if err != nil {
		return nil, err
	}

	out := make([]domain.ScoredRFM, n)
	for i, r := range records {
		s := domain.ScoredRFM{
			RFMRecord:      r,
			RecencyScore:   ScoreLevels - rBins[i],
			FrequencyScore: fBins[i] + 1,
			MonetaryScore:  mBins[i] + 1,
		}
		s.RFCode = Code(s.RecencyScore, s.FrequencyScore)
		if s.Segment, err = Classify(s.RecencyScore, s.FrequencyScore); err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
