package rfm

import (
	"strconv"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
)

// segmentTable is indexed by [recency score-1][frequency score-1].
var segmentTable = [ScoreLevels][ScoreLevels]domain.Segment{
	// recency 1
	{domain.SegmentHibernating, domain.SegmentHibernating, domain.SegmentAtRisk, domain.SegmentAtRisk, domain.SegmentCantLoose},
	// recency 2
	{domain.SegmentHibernating, domain.SegmentHibernating, domain.SegmentAtRisk, domain.SegmentAtRisk, domain.SegmentCantLoose},
	// recency 3
	{domain.SegmentAboutToSleep, domain.SegmentAboutToSleep, domain.SegmentNeedAttention, domain.SegmentLoyalCustomers, domain.SegmentLoyalCustomers},
	// recency 4
	{domain.SegmentPromising, domain.SegmentPotentialLoyalists, domain.SegmentPotentialLoyalists, domain.SegmentLoyalCustomers, domain.SegmentLoyalCustomers},
	// recency 5
	{domain.SegmentNewCustomers, domain.SegmentPotentialLoyalists, domain.SegmentPotentialLoyalists, domain.SegmentChampions, domain.SegmentChampions},
}

// Code concatenates the recency and frequency scores into a two-digit code.
func Code(recency, frequency int) string {
	return strconv.Itoa(recency) + strconv.Itoa(frequency)
}

// Classify maps a (recency, frequency) score pair to its segment.
func Classify(recency, frequency int) (domain.Segment, error) {
	if recency < 1 || recency > ScoreLevels || frequency < 1 || frequency > ScoreLevels {
		return "", &domain.ErrClassification{Code: Code(recency, frequency)}
	}
	return segmentTable[recency-1][frequency-1], nil
}

// ClassifyCode maps a two-digit RF code such as "54" to its segment.
func ClassifyCode(code string) (domain.Segment, error) {
	if len(code) != 2 || code[0] < '1' || code[0] > '9' || code[1] < '1' || code[1] > '9' {
		return "", &domain.ErrClassification{Code: code}
	}
	seg, err := Classify(int(code[0]-'0'), int(code[1]-'0'))
	if err != nil {
		return "", &domain.ErrClassification{Code: code}
	}
	return seg, nil
}
