package workbook

// Part groups grid rows under a sub-topic such as "GEL 1.1".
type Part struct {
	PartCode    string
	Title       string
	Description string `json:",omitempty"`
}

// Row is one scored criterion. The equipment register columns are only
// populated on the training QA equipment grid.
type Row struct {
	PartCode         string
	Code             string
	Requirement      string
	Action           string
	CI               *int
	CorrectiveAction string
	AssignedTo       string
	CODate           *Date
	CO               bool
	VerifiedBy       string

	Item          string `json:",omitempty"`
	Specification string `json:",omitempty"`
	Allocation    string `json:",omitempty"`
	RatioQty      string `json:",omitempty"`
	PP            string `json:",omitempty"`
	QtyReq        *int   `json:",omitempty"`
	QtyAvail      *int   `json:",omitempty"`
	Variance      *int   `json:",omitempty"`
	Rate          *int   `json:",omitempty"`
}

// Grid is the parts-and-rows body shared by every grid section.
type Grid struct {
	Parts []Part
	Rows  []Row
}

// Score computes the compliance scorecard of the grid's rows.
func (g *Grid) Score() Scorecard {
	return Score(g.Rows)
}

// EnsureSeed populates g from the catalog for id the first time the section
// is touched. Once g has any rows it is left untouched and false is
// returned, even if the catalog has since grown. Parts already present by
// code are not duplicated.
func EnsureSeed(g *Grid, id SectionID) bool {
	if g == nil || len(g.Rows) > 0 {
		return false
	}
	def, ok := Catalog(id)
	if !ok {
		return false
	}

	have := make(map[string]bool, len(g.Parts))
	for _, p := range g.Parts {
		have[p.PartCode] = true
	}
	for _, p := range def.Parts {
		if have[p.Code] {
			continue
		}
		g.Parts = append(g.Parts, Part{PartCode: p.Code, Title: p.Title, Description: p.Description})
	}

	rows := make([]Row, 0, def.RowCount())
	for _, r := range def.Rows {
		row := Row{PartCode: r.Part, Code: r.Code}
		if def.Column == "requirement" {
			row.Requirement = r.Text
		} else {
			row.Action = r.Text
		}
		rows = append(rows, row)
	}
	for i := 0; i < def.BlankRows; i++ {
		rows = append(rows, Row{})
	}
	if len(rows) == 0 {
		return false
	}
	g.Rows = rows
	if g.Parts == nil {
		g.Parts = []Part{}
	}
	return true
}
