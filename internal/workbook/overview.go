package workbook

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const unspecified = "(Unspecified)"

// BuildOverview derives the read-only overview page from the authoritative
// sections. It works on a copy; the stored document is never changed and
// the result is never persisted.
func BuildOverview(src *OrgInfo, now time.Time) *OrgInfo {
	d := Clone(src)

	s1 := &d.Section1
	if strings.TrimSpace(s1.YearsRegAccredited) == "" && s1.RegisteredAccreditedSince != nil {
		days := now.Sub(s1.RegisteredAccreditedSince.Time).Hours() / 24
		years := int(math.Floor(days / 365.25))
		if years < 0 {
			years = 0
		}
		s1.YearsRegAccredited = strconv.Itoa(years)
	}

	if strings.TrimSpace(s1.BoardOfDirectors) == "" {
		total := len(d.Board.Directors)
		if d.Board.TotalDirectors != nil {
			total = *d.Board.TotalDirectors
		}
		if total > 0 {
			s1.BoardOfDirectors = strconv.Itoa(total)
		}
	}

	if strings.TrimSpace(s1.CampusesSites) == "" && len(d.Campuses.Sites) > 0 {
		s1.CampusesSites = strconv.Itoa(len(d.Campuses.Sites))
	}

	d.Section3.RegistrationStatuses = groupCounts(len(d.Qualifications.Items), func(i int) string {
		return d.Qualifications.Items[i].RegisteredAccreditedStatus
	})
	d.Section3.ActiveProvinces = groupCounts(len(d.Campuses.Sites), func(i int) string {
		return d.Campuses.Sites[i].Province
	})

	deriveDeliveryModes(d)

	if len(d.StudentHistorical.Rows) > 0 {
		fillHistoricalTotals(d)
	}
	d.Section6.EmployeeStats = employeeStats(d.Employment.Positions)
	if len(d.StudentCurrent.Rows) > 0 {
		fillCurrentTotals(d)
	}

	d.Section3.Qualifications = QualificationTypeCounts(d.Qualifications.Items)
	return d
}

// QualificationTypeCounts tallies qualifications by trimmed type, matched
// case-insensitively. Known programme types come first in canonical order,
// the rest follow alphabetically. Blank types are skipped.
func QualificationTypeCounts(items []QualificationCourseRow) []QualificationItem {
	counts := make(map[string]int)
	display := make(map[string]string)
	for _, q := range items {
		t := strings.TrimSpace(q.Type)
		if t == "" {
			continue
		}
		k := strings.ToLower(t)
		if _, ok := display[k]; !ok {
			display[k] = t
		}
		counts[k]++
	}

	out := []QualificationItem{}
	used := make(map[string]bool, len(counts))
	for _, pt := range ProgrammeTypes {
		k := strings.ToLower(pt)
		if n, ok := counts[k]; ok {
			out = append(out, qualificationItem(pt, n))
			used[k] = true
		}
	}

	var extras []string
	for k := range counts {
		if !used[k] {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	for _, k := range extras {
		out = append(out, qualificationItem(display[k], counts[k]))
	}
	return out
}

func qualificationItem(name string, n int) QualificationItem {
	return QualificationItem{Name: name, Offered: n > 0, Quantity: intPtr(n)}
}

// InferOffered treats a qualification as offered when its status mentions
// current, accredit or active, or when it has a mode of delivery.
func InferOffered(q QualificationCourseRow) bool {
	status := strings.ToLower(strings.TrimSpace(q.RegisteredAccreditedStatus))
	if strings.Contains(status, "current") || strings.Contains(status, "accredit") || strings.Contains(status, "active") {
		return true
	}
	return strings.TrimSpace(q.ModeOfDelivery) != ""
}

// groupCounts groups n values by trimmed text, blank as "(Unspecified)",
// ordered case-insensitively.
func groupCounts(n int, value func(int) string) []NamedCount {
	counts := make(map[string]int)
	for i := 0; i < n; i++ {
		key := strings.TrimSpace(value(i))
		if key == "" {
			key = unspecified
		}
		counts[key]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := strings.ToLower(keys[i]), strings.ToLower(keys[j])
		if a != b {
			return a < b
		}
		return keys[i] < keys[j]
	})

	out := make([]NamedCount, 0, len(keys))
	for _, k := range keys {
		out = append(out, NamedCount{Name: k, Count: intPtr(counts[k])})
	}
	return out
}

// deriveDeliveryModes ORs mode flags inferred from each qualification's
// free-text mode of delivery into the stored flags.
func deriveDeliveryModes(d *OrgInfo) {
	s4 := &d.Section4
	for _, q := range d.Qualifications.Items {
		mode := strings.ToLower(q.ModeOfDelivery)
		if strings.Contains(mode, "full") && strings.Contains(mode, "person") {
			s4.FullTimeInPerson = true
		}
		if strings.Contains(mode, "part") && strings.Contains(mode, "person") {
			s4.PartTimeInPerson = true
		}
		if strings.Contains(mode, "distance") {
			s4.DistanceLearning = true
		}
		if strings.Contains(mode, "blend") {
			s4.BlendedLearning = true
		}
		if strings.Contains(mode, "online") || strings.Contains(mode, "e-learning") || strings.Contains(mode, "elearning") {
			s4.OnlineELearning = true
		}
		if strings.Contains(mode, "workplace") {
			s4.WorkplaceBased = true
		}
	}
}

// studentTotals is the roll-up shared by the historical and current pages.
type studentTotals struct {
	enrolled, male, female, disabled int
}

func rollupBreakdowns(n int, total func(int) *int, races func(int) [4]GenderCounts) studentTotals {
	var t studentTotals
	anyTotal := false
	for i := 0; i < n; i++ {
		if total(i) != nil {
			anyTotal = true
		}
	}
	for i := 0; i < n; i++ {
		rs := races(i)
		if anyTotal {
			t.enrolled += deref(total(i))
		} else {
			for _, g := range rs {
				t.enrolled += g.sum()
			}
		}
		for _, g := range rs {
			t.male += deref(g.M)
			t.female += deref(g.F)
			t.disabled += deref(g.MD) + deref(g.FD)
		}
	}
	return t
}

func setIfPositive(dst **int, v int) {
	if v > 0 {
		*dst = intPtr(v)
	}
}

func fillHistoricalTotals(d *OrgInfo) {
	rows := d.StudentHistorical.Rows
	t := rollupBreakdowns(len(rows),
		func(i int) *int { return rows[i].Total },
		func(i int) [4]GenderCounts {
			return [4]GenderCounts{rows[i].African, rows[i].Coloured, rows[i].Indian, rows[i].White}
		})

	var sc, pr, di int
	for _, r := range rows {
		sc += deref(r.SC)
		pr += deref(r.PR)
		di += deref(r.DI)
	}

	s5 := &d.Section5
	s5.Enrolled = intPtr(t.enrolled)
	s5.SuccessfulCompletion = intPtr(sc)
	s5.ResubmissionReassessment = intPtr(pr)
	s5.DropOffsIncomplete = intPtr(di)
	setIfPositive(&s5.Male, t.male)
	setIfPositive(&s5.Female, t.female)
	setIfPositive(&s5.Disabled, t.disabled)

	if s5.PeriodFrom == nil {
		s5.PeriodFrom = d.StudentHistorical.PeriodFrom
	}
	if s5.PeriodTo == nil {
		s5.PeriodTo = d.StudentHistorical.PeriodTo
	}
	if s5.Months == nil {
		s5.Months = d.StudentHistorical.Months
	}
}

func fillCurrentTotals(d *OrgInfo) {
	cur := d.StudentCurrent
	rows := cur.Rows
	t := rollupBreakdowns(len(rows),
		func(i int) *int { return rows[i].Total },
		func(i int) [4]GenderCounts {
			return [4]GenderCounts{rows[i].African, rows[i].Coloured, rows[i].Indian, rows[i].White}
		})

	var ip, sc, pr, di int
	for _, r := range rows {
		ip += deref(r.IP)
		sc += deref(r.SC)
		pr += deref(r.PR)
		di += deref(r.DI)
	}

	s7 := &d.Section7
	s7.Enrolled = intPtr(t.enrolled)
	s7.InProcess = intPtr(ip)
	s7.SuccessfulCompletion = intPtr(sc)
	s7.ResubmissionReassessment = intPtr(pr)
	s7.DropOffsIncomplete = intPtr(di)
	setIfPositive(&s7.Male, t.male)
	setIfPositive(&s7.Female, t.female)
	setIfPositive(&s7.Disabled, t.disabled)

	if strings.TrimSpace(s7.PeriodText) == "" && cur.PeriodFrom != nil && cur.PeriodTo != nil {
		s7.PeriodText = cur.PeriodFrom.String() + " to " + cur.PeriodTo.String()
	}
	if s7.Months == nil {
		s7.Months = cur.Months
	}
}

// employeeStats sums the position matrix into a Total row and one row per
// race. Every percentage is relative to that row's own head count.
func employeeStats(positions []EmploymentPosition) []EmployeeStatRow {
	if len(positions) == 0 {
		return []EmployeeStatRow{}
	}

	var afr, col, ind, wht GenderCounts
	add := func(acc *GenderCounts, g GenderCounts) {
		acc.M = intPtr(deref(acc.M) + deref(g.M))
		acc.MD = intPtr(deref(acc.MD) + deref(g.MD))
		acc.F = intPtr(deref(acc.F) + deref(g.F))
		acc.FD = intPtr(deref(acc.FD) + deref(g.FD))
	}
	for _, p := range positions {
		add(&afr, p.African)
		add(&col, p.Coloured)
		add(&ind, p.Indian)
		add(&wht, p.White)
	}
	var total GenderCounts
	for _, g := range []GenderCounts{afr, col, ind, wht} {
		add(&total, g)
	}

	return []EmployeeStatRow{
		employeeRow("Total", total),
		employeeRow("African", afr),
		employeeRow("Coloured", col),
		employeeRow("Indian", ind),
		employeeRow("White", wht),
	}
}

func employeeRow(label string, g GenderCounts) EmployeeStatRow {
	m, md, f, fd := deref(g.M), deref(g.MD), deref(g.F), deref(g.FD)
	employ := m + md + f + fd
	disabled := md + fd
	return EmployeeStatRow{
		Group:                 label,
		Employ:                intPtr(employ),
		Disabled:              intPtr(disabled),
		DPercent:              clampedPercent(disabled, employ),
		Male:                  intPtr(m),
		MalePercent:           clampedPercent(m, employ),
		MaleDisabled:          intPtr(md),
		MaleDisabledPercent:   clampedPercent(md, employ),
		Female:                intPtr(f),
		FemalePercent:         clampedPercent(f, employ),
		FemaleDisabled:        intPtr(fd),
		FemaleDisabledPercent: clampedPercent(fd, employ),
	}
}

// clampedPercent is part/whole as a percentage to one decimal, rounded half
// away from zero and clamped to 0..100.
func clampedPercent(part, whole int) *float64 {
	p := percentOf(part, whole, 1, halfAwayFromZero)
	if p == nil {
		return nil
	}
	v := math.Min(100, math.Max(0, *p))
	return &v
}
