package rfm

import (
	"strings"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
)

// Audience is a campaign targeting rule over scored customers. A customer
// qualifies when its segment is listed, its monetary value exceeds
// MinMonetary (when positive), and (when Categories is set) any of its interest tags
// contains one of Categories.
type Audience struct {
	Name        string
	Description string
	Segments    []domain.Segment
	MinMonetary float64
	Categories  []string
}

// DefaultAudiences are the built-in campaign rules.
var DefaultAudiences = []Audience{
	{
		Name:        "new_brand_women",
		Description: "loyal high spenders interested in women's products",
		Segments:    []domain.Segment{domain.SegmentChampions, domain.SegmentLoyalCustomers},
		MinMonetary: 250,
		Categories:  []string{"KADIN"},
	},
	{
		Name:        "discount_men_kids",
		Description: "slipping or new customers interested in men's or children's products",
		Segments:    []domain.Segment{domain.SegmentCantLoose, domain.SegmentAboutToSleep, domain.SegmentNewCustomers},
		Categories:  []string{"ERKEK", "COCUK"},
	},
}

// FindAudience returns the built-in audience called name.
func FindAudience(name string) (Audience, bool) {
	for _, a := range DefaultAudiences {
		if a.Name == name {
			return a, true
		}
	}
	return Audience{}, false
}

// Select returns the ids of scored customers matching the rule. interests
// maps customer id to its category tags.
func (a Audience) Select(scored []domain.ScoredRFM, interests map[string][]string) domain.AudienceResult {
	res := domain.AudienceResult{Name: a.Name, Description: a.Description, CustomerIDs: []string{}}
	for _, s := range scored {
		if !a.hasSegment(s.Segment) || (a.MinMonetary > 0 && s.Monetary <= a.MinMonetary) {
			continue
		}
		if len(a.Categories) > 0 && !a.matches(interests[s.ID]) {
			continue
		}
		res.CustomerIDs = append(res.CustomerIDs, s.ID)
	}
	return res
}

func (a Audience) hasSegment(seg domain.Segment) bool {
	for _, s := range a.Segments {
		if s == seg {
			return true
		}
	}
	return false
}

func (a Audience) matches(tags []string) bool {
	for _, tag := range tags {
		for _, c := range a.Categories {
			if strings.Contains(tag, c) {
				return true
			}
		}
	}
	return false
}

// Interests indexes the category tags of records by customer id.
func Interests(records []domain.CustomerRecord) map[string][]string {
	out := make(map[string][]string, len(records))
	for _, r := range records {
		out[r.ID] = r.InterestedIn
	}
	return out
}
