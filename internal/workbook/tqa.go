package workbook

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

// TQA is the training quality assurance workbook.
type TQA struct {
	Guide         TQAGuide
	General       TQAGeneral
	SiteReadiness TQAGrid
	Equipment     TQAEquipment
	Facilitator   TQAGrid
	Learner       TQAGrid
	AdminSupport  TQAGrid
	Risk          TQAGrid
}

func (*TQA) Kind() Kind { return KindTrainingQualityAssurance }

// NewTQA returns the all-defaults document.
func NewTQA() *TQA {
	t := &TQA{}
	for _, id := range TQASections {
		g := t.Grid(id)
		g.Parts, g.Rows = []Part{}, []Row{}
	}
	return t
}

// Grid returns the grid body for id, or nil for a non-TQA section.
func (t *TQA) Grid(id SectionID) *Grid {
	switch id {
	case SectionSiteReadiness:
		return &t.SiteReadiness.Grid
	case SectionEquipment:
		return &t.Equipment.Grid
	case SectionFacilitator:
		return &t.Facilitator.Grid
	case SectionLearner:
		return &t.Learner.Grid
	case SectionAdminSupport:
		return &t.AdminSupport.Grid
	case SectionRisk:
		return &t.Risk.Grid
	}
	return nil
}

type TQAGuide struct {
	Notes string
}

// TQAGeneral is the general information page. Fields the model does not
// know about are kept in Extra and written back unchanged.
type TQAGeneral struct {
	TrainingProvider string
	Site             string
	StartDate        *Date
	EndDate          *Date
	ProgrammeName    string
	ProgrammeCode    string
	UnitStandard     string
	NQFLevel         string
	Credits          string

	QualificationCourseTitle string
	SaqaId                   string
	QctoId                   string
	NqfLevel                 string

	SiteNameLocation        string
	TargetLearnerGroup      string
	SiteRepresentativeName  string
	QaAssessorName          string
	QaAssessorContactNumber string

	NumberOfLearners *int
	Province         string

	SiteAssessmentDate              *Date
	SiteRepresentativeContactNumber string

	SetaOrAuthority     string
	AccreditationNumber string

	Facilitator string
	Assessor    string
	Moderator   string

	LearnerCount *int
	DeliveryMode string

	ContactPerson string
	ContactEmail  string
	ContactPhone  string

	Notes string

	Extra map[string]json.RawMessage `json:"-"`
}

type tqaGeneralFields TQAGeneral

var (
	generalFieldsOnce sync.Once
	generalFields     map[string]bool
)

// knownGeneralField matches exactly first, then case-insensitively, the
// same way encoding/json assigns keys to fields.
func knownGeneralField(key string) bool {
	generalFieldsOnce.Do(func() {
		generalFields = make(map[string]bool)
		t := reflect.TypeOf(tqaGeneralFields{})
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.Tag.Get("json") == "-" {
				continue
			}
			generalFields[strings.ToLower(f.Name)] = true
		}
	})
	return generalFields[strings.ToLower(key)]
}

func (g *TQAGeneral) UnmarshalJSON(b []byte) error {
	var fields tqaGeneralFields
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for k, v := range all {
		if knownGeneralField(k) {
			continue
		}
		if fields.Extra == nil {
			fields.Extra = make(map[string]json.RawMessage)
		}
		fields.Extra[k] = v
	}
	*g = TQAGeneral(fields)
	return nil
}

func (g TQAGeneral) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(tqaGeneralFields(g))
	if err != nil || len(g.Extra) == 0 {
		return b, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, v := range g.Extra {
		if _, clash := merged[k]; !clash {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// TQAGrid is a CI-scored training QA grid with its header strip.
type TQAGrid struct {
	TrainingProvider string
	Site             string
	AssessmentDate   *Date
	Grid
}

// TQAEquipment is the equipment register. Its rows are not CI-scored on
// the compliance overview.
type TQAEquipment struct {
	TrainingProvider   string
	QualificationTitle string
	NumberOfLearners   *int
	Grid
}

// complianceOverviewSections are the grids on the general page overview,
// with their labels. Equipment is excluded.
var complianceOverviewSections = []struct {
	ID    SectionID
	Label string
}{
	{SectionSiteReadiness, "SITE READINESS (P2):"},
	{SectionFacilitator, "FACILITATOR READINESS (P3):"},
	{SectionLearner, "LEARNER PREPAREDNESS (P4):"},
	{SectionAdminSupport, "ADMIN & SUPPORT SYSTEMS (P5):"},
	{SectionRisk, "RISK & CONTINGENCY PLANNING (P6):"},
}

// ComplianceOverview is the derived table on the general page.
type ComplianceOverview struct {
	Rows    []SectionScore
	Overall Scorecard
}

// BuildComplianceOverview scores the CI grids and rolls them up.
func BuildComplianceOverview(t *TQA) ComplianceOverview {
	out := ComplianceOverview{Rows: make([]SectionScore, 0, len(complianceOverviewSections))}
	cards := make([]Scorecard, 0, len(complianceOverviewSections))
	for _, s := range complianceOverviewSections {
		card := t.Grid(s.ID).Score()
		cards = append(cards, card)
		out.Rows = append(out.Rows, SectionScore{Section: s.Label, Scorecard: card})
	}
	out.Overall = Rollup(cards...)
	return out
}
