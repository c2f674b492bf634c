package workbook

import "strings"

// ── Qualifications → Pricing ─────────────────────────────────────────────────

func codeKey(code string) string {
	return strings.ToLower(code)
}

func copyIdentity(dst *PricingRow, q QualificationCourseRow) {
	dst.QualificationName = q.Name
	dst.Type = q.Type
	dst.NQFLevel = q.NQFLevel
	dst.Credits = q.Credits
}

// SyncPricing upserts one pricing row per qualification code (matched
// case-insensitively) and copies the identity columns into it. Pricing-only
// columns are left alone and rows whose code no longer exists in the
// qualifications are kept. It returns the number of rows appended.
func SyncPricing(o *OrgInfo) int {
	index := make(map[string]int, len(o.Pricing.Items))
	for i, row := range o.Pricing.Items {
		k := codeKey(row.Code)
		if _, dup := index[k]; !dup {
			index[k] = i
		}
	}

	added := 0
	for _, q := range o.Qualifications.Items {
		k := codeKey(q.Code)
		i, ok := index[k]
		if !ok {
			o.Pricing.Items = append(o.Pricing.Items, PricingRow{Code: q.Code})
			i = len(o.Pricing.Items) - 1
			index[k] = i
			added++
		}
		copyIdentity(&o.Pricing.Items[i], q)
	}
	return added
}

// ResyncPricingIdentity re-copies identity columns into pricing rows whose
// code matches a qualification. Unmatched rows are untouched and nothing is
// appended.
func ResyncPricingIdentity(o *OrgInfo) {
	byCode := make(map[string]QualificationCourseRow, len(o.Qualifications.Items))
	for _, q := range o.Qualifications.Items {
		k := codeKey(q.Code)
		if _, dup := byCode[k]; !dup {
			byCode[k] = q
		}
	}
	for i := range o.Pricing.Items {
		if q, ok := byCode[codeKey(o.Pricing.Items[i].Code)]; ok {
			copyIdentity(&o.Pricing.Items[i], q)
		}
	}
}

// ── Current → Historical ─────────────────────────────────────────────────────

// BuildHistorical maps every completed current row to a historical row.
// Unset counts become zero, Total is the sum of all sixteen race and gender
// counts, the outcome percentages are part*100/total to two decimals (unset
// when total is zero) and VAR is total-(SC+PR+DI).
func BuildHistorical(cur StudentCurrentSection) []StudentHistoricalRow {
	out := []StudentHistoricalRow{}
	for _, r := range cur.Rows {
		if !r.Completed {
			continue
		}
		h := StudentHistoricalRow{
			ProgrammeType: r.ProgrammeType,
			African:       r.African.filled(),
			Coloured:      r.Coloured.filled(),
			Indian:        r.Indian.filled(),
			White:         r.White.filled(),
		}
		total := h.African.sum() + h.Coloured.sum() + h.Indian.sum() + h.White.sum()
		sc, pr, di := deref(r.SC), deref(r.PR), deref(r.DI)

		h.Total = intPtr(total)
		h.SC, h.PR, h.DI = intPtr(sc), intPtr(pr), intPtr(di)
		h.SCPercent = percentOf(sc, total, 2, halfEven)
		h.PRPercent = percentOf(pr, total, 2, halfEven)
		h.DIPercent = percentOf(di, total, 2, halfEven)
		h.VAR = intPtr(total - (sc + pr + di))

		out = append(out, h)
	}
	return out
}

// syncHistoricalPeriod copies the current period fields that are set.
func syncHistoricalPeriod(o *OrgInfo) bool {
	cur, hist := &o.StudentCurrent, &o.StudentHistorical
	changed := false
	if cur.PeriodFrom != nil && !hist.PeriodFrom.equal(cur.PeriodFrom) {
		from := *cur.PeriodFrom
		hist.PeriodFrom = &from
		changed = true
	}
	if cur.PeriodTo != nil && !hist.PeriodTo.equal(cur.PeriodTo) {
		to := *cur.PeriodTo
		hist.PeriodTo = &to
		changed = true
	}
	if cur.Months != nil && !intEqual(hist.Months, cur.Months) {
		hist.Months = intPtr(*cur.Months)
		changed = true
	}
	return changed
}

// PrefillHistorical syncs the reporting period from the current section and,
// only while the historical list is empty, builds it from the completed
// current rows. Existing historical rows are never touched. It reports
// whether the document changed.
func PrefillHistorical(o *OrgInfo) bool {
	changed := syncHistoricalPeriod(o)
	if len(o.StudentHistorical.Rows) == 0 {
		rows := BuildHistorical(o.StudentCurrent)
		if len(rows) > 0 {
			changed = true
		}
		o.StudentHistorical.Rows = rows
	}
	return changed
}

// RefreshHistorical rebuilds the historical rows from the completed current
// rows, discarding any edits, and syncs the period.
func RefreshHistorical(o *OrgInfo) {
	o.StudentHistorical.Rows = BuildHistorical(o.StudentCurrent)
	syncHistoricalPeriod(o)
}

// CompletedSnapshot is the read-only list of current rows shown next to the
// historical page: completed rows with a programme type.
func CompletedSnapshot(cur StudentCurrentSection) []StudentCurrentRow {
	out := []StudentCurrentRow{}
	for _, r := range cur.Rows {
		if r.Completed && strings.TrimSpace(r.ProgrammeType) != "" {
			out = append(out, r)
		}
	}
	return out
}

// ── rounding ─────────────────────────────────────────────────────────────────

type rounding int

const (
	halfEven rounding = iota
	halfAwayFromZero
)

// percentOf returns part*100/whole rounded to places decimals using exact
// integer arithmetic, or nil when whole is not positive.
func percentOf(part, whole, places int, mode rounding) *float64 {
	if whole <= 0 {
		return nil
	}
	scale := 1
	for i := 0; i < places; i++ {
		scale *= 10
	}

	num := int64(part) * 100 * int64(scale)
	den := int64(whole)
	neg := num < 0
	if neg {
		num = -num
	}
	q, r := num/den, num%den
	switch {
	case 2*r > den:
		q++
	case 2*r == den:
		if mode == halfAwayFromZero || q%2 == 1 {
			q++
		}
	}
	if neg {
		q = -q
	}
	return floatPtr(float64(q) / float64(scale))
}
