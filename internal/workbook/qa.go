package workbook

// QA is the quality assurance workbook.
type QA struct {
	Overview QAOverview
	Guide    struct{}
	Summary  QASummary
	Info     QAInfo

	GEL QAGrid
	SPR QAGrid
	TLA QAGrid
	LSW QAGrid
	SCE QAGrid
	RLE QAGrid
	QMI QAGrid
	SEC QAGrid
	LCR QAGrid
}

func (*QA) Kind() Kind { return KindQualityAssurance }

// NewQA returns the all-defaults document.
func NewQA() *QA {
	q := &QA{}
	for _, id := range QASections {
		g := q.Grid(id)
		g.Parts, g.Rows = []Part{}, []Row{}
	}
	return q
}

// Grid returns the grid section for id, or nil for a non-QA section.
func (q *QA) Grid(id SectionID) *QAGrid {
	switch id {
	case SectionGEL:
		return &q.GEL
	case SectionSPR:
		return &q.SPR
	case SectionTLA:
		return &q.TLA
	case SectionLSW:
		return &q.LSW
	case SectionSCE:
		return &q.SCE
	case SectionRLE:
		return &q.RLE
	case SectionQMI:
		return &q.QMI
	case SectionSEC:
		return &q.SEC
	case SectionLCR:
		return &q.LCR
	}
	return nil
}

type QAOverview struct {
	Notes string
}

type QASummary struct {
	HighLevelSummary string
}

// QAInfo is the organisation and assessor information page.
type QAInfo struct {
	AppetdRegNo      string
	TradingName      string
	OrganisationType string
	SiteDepartment   string
	StreetAddress1   string
	StreetAddress2   string
	Town             string
	Suburb           string
	Province         string
	Zip              string
	ContactPerson    string
	ContactNumber    string
	Email            string

	AssessmentDate               *Date
	OrganisationInfo             string
	AccreditationStatus          string
	SupportingDocsSubmitted      string
	CaImplementationDeadlineDays *int
	ReassessmentDeadlineDays     *int
	CaVerificationDate           *Date
	ReassessmentDate             *Date

	AssessorFullName      string
	AssessorOrganisation  string
	AssessorContactNumber string
	AssessorEmail         string

	// Signatures are data URLs rendered directly as images.
	OrgRepresentativeSignature string `json:"orgRepresentativeSignature"`
	AssessorSignature          string `json:"assessorSignature"`
	OrgSignedAtUtc             *Date  `json:"orgSignedAtUtc"`
	AssessorSignedAtUtc        *Date  `json:"assessorSignedAtUtc"`
}

// QAGrid is a QA grid section with its header strip.
type QAGrid struct {
	Organisation     string
	Department       string
	AppetdRegNo      string
	AssessmentDate   *Date
	CaVerification   *Date
	ReassessmentDate *Date
	Grid
}

// QASummaryView is the derived read view for the summary page.
type QASummaryView struct {
	Categories   []SectionScore
	Overall      Scorecard
	GELBreakdown []PartScore
}

// BuildQASummary scores every QA grid plus the GEL per-part breakdown.
func BuildQASummary(q *QA) QASummaryView {
	view := QASummaryView{
		Categories:   make([]SectionScore, 0, len(QASections)),
		GELBreakdown: PartBreakdown(q.GEL.Rows),
	}
	cards := make([]Scorecard, 0, len(QASections))
	for _, id := range QASections {
		card := q.Grid(id).Score()
		cards = append(cards, card)
		view.Categories = append(view.Categories, SectionScore{Section: string(id), Scorecard: card})
	}
	view.Overall = Rollup(cards...)
	return view
}
