package workbook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/errors"
)

// StepView is everything a wizard step renders.
type StepView struct {
	Kind     Kind
	Step     int
	Steps    int
	Title    string
	ReadOnly bool
	Final    bool
	// Section is the stored subtree this step edits; nil on read-only pages
	// without one.
	Section any
	// Derived holds display-only aggregates. Never persisted.
	Derived any
}

// Outcome is the result of posting a step.
type Outcome struct {
	// NextStep is the step to show next; 0 means the workbook list.
	NextStep int
	// Completed is set when the final step is posted with next.
	Completed bool
}

// StepInfo describes one step for listings.
type StepInfo struct {
	Step     int
	Title    string
	ReadOnly bool
}

type stepDef[D Document] struct {
	title    string
	readOnly bool
	section  func(D) any
	// load applies step defaults on GET and reports whether d changed.
	load func(D, time.Time) (derived any, changed bool)
	// save decodes, validates and replaces the section, then re-derives.
	save    func(D, []byte) error
	refresh func(D)
}

// ParseNav normalises a posted navigation intent. Empty means save.
func ParseNav(s string) (Nav, error) {
	switch n := Nav(strings.ToLower(strings.TrimSpace(s))); n {
	case "":
		return NavSave, nil
	case NavPrev, NavSave, NavNext, NavRefresh:
		return n, nil
	}
	return "", errors.InvalidInput("nav", fmt.Sprintf("unknown navigation %q", s))
}

// StepCount is the number of wizard steps for kind.
func StepCount(kind Kind) int {
	switch kind {
	case KindOrgInfo:
		return len(orgInfoSteps)
	case KindQualityAssurance:
		return len(qaSteps)
	case KindTrainingQualityAssurance:
		return len(tqaSteps)
	}
	return 0
}

// Steps lists the steps of kind in order.
func Steps(kind Kind) []StepInfo {
	switch kind {
	case KindOrgInfo:
		return stepInfos(orgInfoSteps)
	case KindQualityAssurance:
		return stepInfos(qaSteps)
	case KindTrainingQualityAssurance:
		return stepInfos(tqaSteps)
	}
	return nil
}

func stepInfos[D Document](defs []stepDef[D]) []StepInfo {
	out := make([]StepInfo, len(defs))
	for i, s := range defs {
		out[i] = StepInfo{Step: i + 1, Title: s.title, ReadOnly: s.readOnly}
	}
	return out
}

// Prepare loads a step: it applies the step's defaults (catalog seeding,
// blank rows, synchronisation) to doc and builds the view. changed tells
// the caller to persist doc.
func Prepare(doc Document, step int, now time.Time) (*StepView, bool, error) {
	switch d := doc.(type) {
	case *OrgInfo:
		return prepare(d, orgInfoSteps, step, now)
	case *QA:
		return prepare(d, qaSteps, step, now)
	case *TQA:
		return prepare(d, tqaSteps, step, now)
	}
	return nil, false, fmt.Errorf("unsupported document %T", doc)
}

// Apply posts a step: the section is replaced wholesale by payload and the
// dependent derivations re-run. A validation failure leaves doc untouched.
// Read-only steps ignore payload.
func Apply(doc Document, step int, payload []byte, nav Nav) (Outcome, error) {
	switch d := doc.(type) {
	case *OrgInfo:
		return apply(d, orgInfoSteps, step, payload, nav)
	case *QA:
		return apply(d, qaSteps, step, payload, nav)
	case *TQA:
		return apply(d, tqaSteps, step, payload, nav)
	}
	return Outcome{}, fmt.Errorf("unsupported document %T", doc)
}

// Section returns the stored subtree edited by step, or nil for pages
// without one.
func Section(doc Document, step int) (any, error) {
	switch d := doc.(type) {
	case *OrgInfo:
		return section(d, orgInfoSteps, step)
	case *QA:
		return section(d, qaSteps, step)
	case *TQA:
		return section(d, tqaSteps, step)
	}
	return nil, fmt.Errorf("unsupported document %T", doc)
}

func section[D Document](d D, defs []stepDef[D], step int) (any, error) {
	def, err := lookup(defs, step)
	if err != nil || def.section == nil {
		return nil, err
	}
	return def.section(d), nil
}

func lookup[D Document](defs []stepDef[D], step int) (stepDef[D], error) {
	if step < 1 || step > len(defs) {
		return stepDef[D]{}, errors.NotFound("step", strconv.Itoa(step))
	}
	return defs[step-1], nil
}

func prepare[D Document](d D, defs []stepDef[D], step int, now time.Time) (*StepView, bool, error) {
	def, err := lookup(defs, step)
	if err != nil {
		return nil, false, err
	}
	view := &StepView{
		Kind:     d.Kind(),
		Step:     step,
		Steps:    len(defs),
		Title:    def.title,
		ReadOnly: def.readOnly,
		Final:    step == len(defs),
	}
	changed := false
	if def.load != nil {
		view.Derived, changed = def.load(d, now)
	}
	if def.section != nil {
		view.Section = def.section(d)
	}
	return view, changed, nil
}

func apply[D Document](d D, defs []stepDef[D], step int, payload []byte, nav Nav) (Outcome, error) {
	def, err := lookup(defs, step)
	if err != nil {
		return Outcome{}, err
	}

	if nav == NavRefresh {
		if def.refresh == nil {
			return Outcome{}, errors.InvalidInput("nav", "refresh is not supported on this step")
		}
		def.refresh(d)
		return Outcome{NextStep: step}, nil
	}

	if !def.readOnly && def.save != nil {
		if err := def.save(d, payload); err != nil {
			return Outcome{}, err
		}
	}

	switch nav {
	case NavPrev:
		return Outcome{NextStep: step - 1}, nil
	case NavNext:
		if step == len(defs) {
			return Outcome{Completed: true}, nil
		}
		return Outcome{NextStep: step + 1}, nil
	default:
		return Outcome{}, nil
	}
}

func decodeSection(payload []byte, dst any) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errors.InvalidInput("body", "section payload is required")
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return errors.InvalidInput("body", fmt.Sprintf("invalid section payload: %v", err))
	}
	return nil
}

// replace builds a save func that swaps in the posted section S and then
// runs the given derivations.
func replace[D Document, S any](get func(D) *S, after ...func(D)) func(D, []byte) error {
	return func(d D, payload []byte) error {
		var s S
		if err := decodeSection(payload, &s); err != nil {
			return err
		}
		if v, ok := any(&s).(validator); ok {
			if err := v.Validate(); err != nil {
				return err
			}
		}
		*get(d) = s
		for _, fn := range after {
			fn(d)
		}
		return nil
	}
}

// ensureRow appends one zero row when the list is empty.
func ensureRow[T any](rows *[]T) bool {
	if len(*rows) > 0 {
		return false
	}
	var zero T
	*rows = append(*rows, zero)
	return true
}

// ── Organisation information ─────────────────────────────────────────────────

// OrgInfoHistoricalStep is the step that accepts the refresh action.
const OrgInfoHistoricalStep = 9

var orgInfoSteps = []stepDef[*OrgInfo]{
	{title: "Introduction", readOnly: true},
	{
		title:    "Overview",
		readOnly: true,
		load: func(d *OrgInfo, now time.Time) (any, bool) {
			return BuildOverview(d, now), false
		},
	},
	{
		title:   "Administrative / Head Office",
		section: func(d *OrgInfo) any { return &d.Section1 },
		load: func(d *OrgInfo, _ time.Time) (any, bool) {
			if len(d.Section1.Approvals) == 0 {
				d.Section1.Approvals = DefaultApprovals()
				return Provinces, true
			}
			return Provinces, false
		},
		save: replace(func(d *OrgInfo) *OrgInfoSection1 { return &d.Section1 }),
	},
	{
		title:   "Board of Directors",
		section: func(d *OrgInfo) any { return &d.Board },
		load: func(d *OrgInfo, _ time.Time) (any, bool) {
			return nil, ensureRow(&d.Board.Directors)
		},
		save: replace(func(d *OrgInfo) *BoardSection { return &d.Board }),
	},
	{
		title:   "Employment",
		section: func(d *OrgInfo) any { return &d.Employment },
		load: func(d *OrgInfo, _ time.Time) (any, bool) {
			return nil, ensureRow(&d.Employment.Positions)
		},
		save: replace(func(d *OrgInfo) *EmploymentSection { return &d.Employment }),
	},
	{
		title:   "Campuses / Sites",
		section: func(d *OrgInfo) any { return &d.Campuses },
		load: func(d *OrgInfo, _ time.Time) (any, bool) {
			return Provinces, ensureRow(&d.Campuses.Sites)
		},
		save: replace(func(d *OrgInfo) *CampusesSection { return &d.Campuses }),
	},
	{
		title:   "Qualifications / Programmes / Courses",
		section: func(d *OrgInfo) any { return &d.Qualifications },
		load: func(d *OrgInfo, _ time.Time) (any, bool) {
			return ProgrammeTypes, ensureRow(&d.Qualifications.Items)
		},
		save: replace(func(d *OrgInfo) *QualificationsSection { return &d.Qualifications },
			func(d *OrgInfo) { SyncPricing(d) }),
	},
	{
		title:   "Pricing",
		section: func(d *OrgInfo) any { return &d.Pricing },
		load: func(d *OrgInfo, _ time.Time) (any, bool) {
			before := slices.Clone(d.Pricing.Items)
			SyncPricing(d)
			return nil, !slices.EqualFunc(before, d.Pricing.Items, func(a, b PricingRow) bool {
				return reflect.DeepEqual(a, b)
			})
		},
		save: replace(func(d *OrgInfo) *PricingSection { return &d.Pricing }, ResyncPricingIdentity),
	},
	{
		title:   "Student Stats (Historical)",
		section: func(d *OrgInfo) any { return &d.StudentHistorical },
		load: func(d *OrgInfo, _ time.Time) (any, bool) {
			changed := PrefillHistorical(d)
			return CompletedSnapshot(d.StudentCurrent), changed
		},
		save:    replace(func(d *OrgInfo) *StudentHistoricalSection { return &d.StudentHistorical }),
		refresh: RefreshHistorical,
	},
	{
		title:   "Student Stats (Current)",
		section: func(d *OrgInfo) any { return &d.StudentCurrent },
		load: func(d *OrgInfo, _ time.Time) (any, bool) {
			return ProgrammeTypes, false
		},
		save: replace(func(d *OrgInfo) *StudentCurrentSection { return &d.StudentCurrent }),
	},
}

// ── Quality assurance ────────────────────────────────────────────────────────

func qaGridStep(id SectionID, title string) stepDef[*QA] {
	return stepDef[*QA]{
		title:   title,
		section: func(d *QA) any { return d.Grid(id) },
		load: func(d *QA, _ time.Time) (any, bool) {
			g := d.Grid(id)
			seeded := EnsureSeed(&g.Grid, id)
			return g.Score(), seeded
		},
		save: replace(func(d *QA) *QAGrid { return d.Grid(id) }),
	}
}

var qaSteps = []stepDef[*QA]{
	{
		title:   "Overview",
		section: func(d *QA) any { return &d.Overview },
		save:    replace(func(d *QA) *QAOverview { return &d.Overview }),
	},
	{title: "Guide", readOnly: true},
	{
		title:   "Summary",
		section: func(d *QA) any { return &d.Summary },
		load: func(d *QA, _ time.Time) (any, bool) {
			return BuildQASummary(d), false
		},
		save: replace(func(d *QA) *QASummary { return &d.Summary }),
	},
	{
		title:   "Organisation Information",
		section: func(d *QA) any { return &d.Info },
		save:    replace(func(d *QA) *QAInfo { return &d.Info }),
	},
	qaGridStep(SectionGEL, "Governance, Ethics & Leadership"),
	qaGridStep(SectionSPR, "Strategic Planning & Resources"),
	qaGridStep(SectionTLA, "Teaching, Learning & Assessment"),
	qaGridStep(SectionLSW, "Learner Support & Wellbeing"),
	qaGridStep(SectionSCE, "Stakeholder & Community Engagement"),
	qaGridStep(SectionRLE, "Research, Learning & Evaluation"),
	qaGridStep(SectionQMI, "Quality Management & Improvement"),
	qaGridStep(SectionSEC, "Safety, Environment & Compliance"),
	qaGridStep(SectionLCR, "Leadership, Communication & Reporting"),
}

// ── Training quality assurance ───────────────────────────────────────────────

func tqaGridStep(id SectionID, title string, get func(*TQA) *TQAGrid) stepDef[*TQA] {
	return stepDef[*TQA]{
		title:   title,
		section: func(d *TQA) any { return get(d) },
		load: func(d *TQA, _ time.Time) (any, bool) {
			g := get(d)
			seeded := EnsureSeed(&g.Grid, id)
			return g.Score(), seeded
		},
		save: replace(get),
	}
}

var tqaSteps = []stepDef[*TQA]{
	{
		title:   "Guide",
		section: func(d *TQA) any { return &d.Guide },
		save:    replace(func(d *TQA) *TQAGuide { return &d.Guide }),
	},
	{
		title:   "General Information",
		section: func(d *TQA) any { return &d.General },
		load: func(d *TQA, _ time.Time) (any, bool) {
			return BuildComplianceOverview(d), false
		},
		save: replace(func(d *TQA) *TQAGeneral { return &d.General }),
	},
	tqaGridStep(SectionSiteReadiness, "Site Readiness", func(d *TQA) *TQAGrid { return &d.SiteReadiness }),
	{
		title:   "Equipment Register",
		section: func(d *TQA) any { return &d.Equipment },
		load: func(d *TQA, _ time.Time) (any, bool) {
			return nil, EnsureSeed(&d.Equipment.Grid, SectionEquipment)
		},
		save: replace(func(d *TQA) *TQAEquipment { return &d.Equipment }),
	},
	tqaGridStep(SectionFacilitator, "Facilitator Readiness", func(d *TQA) *TQAGrid { return &d.Facilitator }),
	tqaGridStep(SectionLearner, "Learner Preparedness", func(d *TQA) *TQAGrid { return &d.Learner }),
	tqaGridStep(SectionAdminSupport, "Admin & Support Systems", func(d *TQA) *TQAGrid { return &d.AdminSupport }),
	tqaGridStep(SectionRisk, "Risk & Contingency Planning", func(d *TQA) *TQAGrid { return &d.Risk }),
}
