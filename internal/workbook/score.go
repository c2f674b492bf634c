package workbook

import "sort"

// Scorecard summarises a set of grid rows. Percent and NonCompliantPercent
// are fractions of the applicable rows (compliant plus not compliant), so
// not-applicable and unassessed rows never dilute them.
type Scorecard struct {
	Criteria            int
	Compliant           int
	NonCompliant        int
	NotApplicable       int
	Applicable          int
	Percent             float64
	NonCompliantPercent float64
}

// Score counts CI values across rows.
func Score(rows []Row) Scorecard {
	var s Scorecard
	s.Criteria = len(rows)
	for _, r := range rows {
		if r.CI == nil {
			continue
		}
		switch *r.CI {
		case CICompliant:
			s.Compliant++
		case CINotCompliant:
			s.NonCompliant++
		case CINotApplicable:
			s.NotApplicable++
		}
	}
	return s.finish()
}

// Rollup sums several scorecards and recomputes the percentages.
func Rollup(cards ...Scorecard) Scorecard {
	var s Scorecard
	for _, c := range cards {
		s.Criteria += c.Criteria
		s.Compliant += c.Compliant
		s.NonCompliant += c.NonCompliant
		s.NotApplicable += c.NotApplicable
	}
	return s.finish()
}

func (s Scorecard) finish() Scorecard {
	s.Applicable = s.Compliant + s.NonCompliant
	s.Percent, s.NonCompliantPercent = 0, 0
	if s.Applicable > 0 {
		s.Percent = float64(s.Compliant) / float64(s.Applicable)
		s.NonCompliantPercent = float64(s.NonCompliant) / float64(s.Applicable)
	}
	return s
}

// PartScore is the scorecard of the rows sharing one part code.
type PartScore struct {
	PartCode string
	Scorecard
}

// PartBreakdown groups rows by part code, ordered by code.
func PartBreakdown(rows []Row) []PartScore {
	groups := make(map[string][]Row)
	var codes []string
	for _, r := range rows {
		if _, seen := groups[r.PartCode]; !seen {
			codes = append(codes, r.PartCode)
		}
		groups[r.PartCode] = append(groups[r.PartCode], r)
	}
	sort.Strings(codes)

	out := make([]PartScore, 0, len(codes))
	for _, code := range codes {
		out = append(out, PartScore{PartCode: code, Scorecard: Score(groups[code])})
	}
	return out
}

// SectionScore labels a scorecard for overview tables.
type SectionScore struct {
	Section string
	Scorecard
}
