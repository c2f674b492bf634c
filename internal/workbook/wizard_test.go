package workbook

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/errors"
)

var wizardNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestStepCounts(t *testing.T) {
	assert.Equal(t, 10, StepCount(KindOrgInfo))
	assert.Equal(t, 13, StepCount(KindQualityAssurance))
	assert.Equal(t, 8, StepCount(KindTrainingQualityAssurance))
	assert.Zero(t, StepCount("other"))

	steps := Steps(KindQualityAssurance)
	require.Len(t, steps, 13)
	assert.Equal(t, StepInfo{Step: 2, Title: "Guide", ReadOnly: true}, steps[1])
}

func TestParseNav(t *testing.T) {
	for in, want := range map[string]Nav{"": NavSave, "next": NavNext, " PREV ": NavPrev, "refresh": NavRefresh} {
		got, err := ParseNav(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseNav("finish")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestPrepareSeedsGridOnce(t *testing.T) {
	q := NewQA()

	view, changed, err := Prepare(q, 5, wizardNow)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Governance, Ethics & Leadership", view.Title)
	assert.Len(t, q.GEL.Rows, 33)
	assert.Same(t, &q.GEL, view.Section)
	assert.Equal(t, 33, view.Derived.(Scorecard).Criteria)

	_, changed, err = Prepare(q, 5, wizardNow)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, q.GEL.Rows, 33)
}

func TestPrepareFinalAndReadOnlyFlags(t *testing.T) {
	tqa := NewTQA()

	view, _, err := Prepare(tqa, 8, wizardNow)
	require.NoError(t, err)
	assert.True(t, view.Final)
	assert.Equal(t, 8, view.Steps)
	assert.Len(t, tqa.Risk.Rows, 7)

	view, changed, err := Prepare(NewOrgInfo(), 1, wizardNow)
	require.NoError(t, err)
	assert.True(t, view.ReadOnly)
	assert.False(t, changed)
	assert.Nil(t, view.Section)
}

func TestPrepareStepOutOfRange(t *testing.T) {
	for _, step := range []int{0, 14} {
		_, _, err := Prepare(NewQA(), step, wizardNow)
		assert.True(t, errors.Is(err, errors.ErrCodeNotFound), step)
	}
}

func TestPrepareOrgInfoDefaults(t *testing.T) {
	o := NewOrgInfo()

	_, changed, err := Prepare(o, 3, wizardNow)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, o.Section1.Approvals, 10)
	assert.True(t, o.Section1.Approvals[9].IsOther)
	assert.Equal(t, "Other (specify)", o.Section1.Approvals[9].Name)

	_, changed, err = Prepare(o, 4, wizardNow)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, o.Board.Directors, 1)

	_, changed, err = Prepare(o, 4, wizardNow)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, o.Board.Directors, 1)
}

func TestPreparePricingSyncs(t *testing.T) {
	o := NewOrgInfo()
	o.Qualifications.Items = []QualificationCourseRow{{Code: "A", Name: "X"}}

	_, changed, err := Prepare(o, 8, wizardNow)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, o.Pricing.Items, 1)

	_, changed, err = Prepare(o, 8, wizardNow)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestPrepareOverviewDoesNotPersist(t *testing.T) {
	o := NewOrgInfo()
	o.Qualifications.Items = []QualificationCourseRow{{Type: "Diploma"}}

	view, changed, err := Prepare(o, 2, wizardNow)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, view.Derived.(*OrgInfo).Section3.Qualifications, 1)
	assert.Empty(t, o.Section3.Qualifications)
}

func TestApplyReplacesSectionWholesale(t *testing.T) {
	q := NewQA()
	_, _, err := Prepare(q, 5, wizardNow)
	require.NoError(t, err)

	// A stale client posting only two rows drops the seeded ones.
	posted := QAGrid{Organisation: "Acme", Grid: Grid{Rows: []Row{{Code: "1.1.1", CI: intPtr(3)}, {Code: "x"}}}}
	out, err := Apply(q, 5, mustJSON(t, posted), NavNext)
	require.NoError(t, err)

	assert.Equal(t, Outcome{NextStep: 6}, out)
	assert.Equal(t, "Acme", q.GEL.Organisation)
	assert.Len(t, q.GEL.Rows, 2)
	assert.Nil(t, q.GEL.Parts)
}

func TestApplyValidationLeavesDocument(t *testing.T) {
	o := NewOrgInfo()
	o.Section1.TradingName = "Before"

	_, err := Apply(o, 3, []byte(`{"TradingName":"After","GeneralEmail":"not-an-email"}`), NavSave)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	assert.Equal(t, "Before", o.Section1.TradingName)

	_, err = Apply(o, 3, []byte(`{"TradingName": 5}`), NavSave)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	_, err = Apply(o, 3, nil, NavSave)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	assert.Equal(t, "Before", o.Section1.TradingName)
}

func TestApplyNavigation(t *testing.T) {
	body := []byte(`{"Notes":"n"}`)
	tests := []struct {
		name string
		step int
		nav  Nav
		want Outcome
	}{
		{"next advances", 1, NavNext, Outcome{NextStep: 2}},
		{"prev goes back", 3, NavPrev, Outcome{NextStep: 2}},
		{"prev on first step exits", 1, NavPrev, Outcome{}},
		{"save exits", 1, NavSave, Outcome{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := NewTQA()
			payload := body
			if tt.step == 3 {
				payload = mustJSON(t, doc.SiteReadiness)
			}
			out, err := Apply(doc, tt.step, payload, tt.nav)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestApplyFinalNextCompletes(t *testing.T) {
	o := NewOrgInfo()
	out, err := Apply(o, 10, mustJSON(t, o.StudentCurrent), NavNext)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Completed: true}, out)

	out, err = Apply(o, 10, mustJSON(t, o.StudentCurrent), NavSave)
	require.NoError(t, err)
	assert.False(t, out.Completed)
}

func TestApplyReadOnlyIgnoresPayload(t *testing.T) {
	q := NewQA()
	out, err := Apply(q, 2, []byte("garbage"), NavNext)
	require.NoError(t, err)
	assert.Equal(t, Outcome{NextStep: 3}, out)
	assert.Equal(t, NewQA(), q)
}

func TestApplyQualificationsSyncsPricing(t *testing.T) {
	o := NewOrgInfo()
	o.Pricing.Items = []PricingRow{{Code: "OLD"}}
	posted := QualificationsSection{Items: []QualificationCourseRow{{Code: "A", Name: "X"}}}

	_, err := Apply(o, 7, mustJSON(t, posted), NavNext)
	require.NoError(t, err)
	require.Len(t, o.Pricing.Items, 2)
	assert.Equal(t, "X", o.Pricing.Items[1].QualificationName)
}

func TestApplyPricingResyncsIdentity(t *testing.T) {
	o := NewOrgInfo()
	o.Qualifications.Items = []QualificationCourseRow{{Code: "A", Name: "X"}}
	posted := PricingSection{Items: []PricingRow{{Code: "a", QualificationName: "typed over", Admin: floatPtr(12.5)}}}

	_, err := Apply(o, 8, mustJSON(t, posted), NavSave)
	require.NoError(t, err)
	require.Len(t, o.Pricing.Items, 1)
	assert.Equal(t, "X", o.Pricing.Items[0].QualificationName)
	assert.Equal(t, 12.5, *o.Pricing.Items[0].Admin)
}

func TestApplyRefresh(t *testing.T) {
	o := NewOrgInfo()
	o.StudentCurrent.Rows = []StudentCurrentRow{completedRow("Diploma")}
	o.StudentHistorical.Rows = []StudentHistoricalRow{{ProgrammeType: "edited"}, {ProgrammeType: "edited"}}

	out, err := Apply(o, OrgInfoHistoricalStep, nil, NavRefresh)
	require.NoError(t, err)
	assert.Equal(t, Outcome{NextStep: OrgInfoHistoricalStep}, out)
	require.Len(t, o.StudentHistorical.Rows, 1)
	assert.Equal(t, "Diploma", o.StudentHistorical.Rows[0].ProgrammeType)

	_, err = Apply(o, 3, nil, NavRefresh)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	_, err = Apply(NewQA(), 5, nil, NavRefresh)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

// Two sequential saves of different sections both survive; nothing guards
// concurrent writers.
func TestSequentialSavesOfDifferentSections(t *testing.T) {
	o := NewOrgInfo()
	_, err := Apply(o, 4, []byte(`{"TotalDirectors":3}`), NavNext)
	require.NoError(t, err)
	_, err = Apply(o, 6, []byte(`{"Sites":[{"CampusSiteName":"Main"}]}`), NavNext)
	require.NoError(t, err)

	assert.Equal(t, 3, *o.Board.TotalDirectors)
	assert.Equal(t, "Main", o.Campuses.Sites[0].CampusSiteName)

	// Last write wins inside a section.
	_, err = Apply(o, 4, []byte(`{"TotalDirectors":5}`), NavSave)
	require.NoError(t, err)
	assert.Equal(t, 5, *o.Board.TotalDirectors)
}

func TestSectionReturnsStoredSubtree(t *testing.T) {
	q := NewQA()
	q.Summary.HighLevelSummary = "sound"

	sec, err := Section(q, 3)
	require.NoError(t, err)
	require.IsType(t, &QASummary{}, sec)
	assert.Same(t, &q.Summary, sec)

	sec, err = Section(q, 2)
	require.NoError(t, err)
	assert.Nil(t, sec)

	_, err = Section(q, 99)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}
