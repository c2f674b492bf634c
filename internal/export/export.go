// Package export renders workbooks as xlsx spreadsheets.
package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pesio-ai/be-compliance-workbooks/internal/workbook"
)

const summarySheet = "Summary"

// percentFormat is the built-in "0.00%" number format.
const percentFormat = 10

var scoreHeader = []any{"Section", "Criteria", "Compliant", "Not Compliant", "Not Applicable", "Compliance %"}

var gridHeader = []any{"Part", "Code", "Requirement", "Action", "CI", "Corrective Action", "Assigned To", "CO Date", "CO", "Verified By"}

var equipmentHeader = []any{"Item", "Specification", "Allocation", "Ratio Qty", "PP", "Qty Req", "Qty Avail", "Variance", "Rate"}

// FileName is the download name of a workbook export.
func FileName(kind workbook.Kind, id int64) string {
	return fmt.Sprintf("%s-%d.xlsx", kind, id)
}

// Render builds the spreadsheet for doc: a summary sheet with the scores,
// then one sheet per grid section or, for organisation information, per
// table.
func Render(title string, doc workbook.Document, now time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	w, err := newWriter(f)
	if err != nil {
		return nil, err
	}
	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return nil, err
	}

	meta := [][]any{
		{"Title", title},
		{"Workbook", doc.Kind().DisplayName()},
		{"Exported", now.UTC().Format(time.RFC3339)},
	}
	if err := w.rows(summarySheet, 1, meta); err != nil {
		return nil, err
	}

	switch d := doc.(type) {
	case *workbook.QA:
		err = renderQA(w, d)
	case *workbook.TQA:
		err = renderTQA(w, d)
	case *workbook.OrgInfo:
		err = renderOrgInfo(w, d)
	default:
		err = fmt.Errorf("unsupported document %T", doc)
	}
	if err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func renderQA(w *writer, q *workbook.QA) error {
	summary := workbook.BuildQASummary(q)
	if err := w.scores(summary.Categories, summary.Overall); err != nil {
		return err
	}
	for _, id := range workbook.QASections {
		if err := w.grid(string(id), &q.Grid(id).Grid, false); err != nil {
			return err
		}
	}
	return nil
}

func renderTQA(w *writer, t *workbook.TQA) error {
	overview := workbook.BuildComplianceOverview(t)
	if err := w.scores(overview.Rows, overview.Overall); err != nil {
		return err
	}
	for _, id := range workbook.TQASections {
		if err := w.grid(string(id), t.Grid(id), id == workbook.SectionEquipment); err != nil {
			return err
		}
	}
	return nil
}

func renderOrgInfo(w *writer, o *workbook.OrgInfo) error {
	counts := workbook.QualificationTypeCounts(o.Qualifications.Items)
	rows := make([][]any, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []any{c.Name, intValue(c.Quantity)})
	}
	if err := w.table(summarySheet, 5, []any{"Qualification Type", "Count"}, rows); err != nil {
		return err
	}

	quals := make([][]any, 0, len(o.Qualifications.Items))
	for _, q := range o.Qualifications.Items {
		quals = append(quals, []any{
			q.Code, q.Type, q.Name, q.NQFLevel, intValue(q.Credits), q.ModeOfDelivery,
			q.RegisteredAccreditedStatus, dateValue(q.StatusDate), yesNo(workbook.InferOffered(q)),
		})
	}
	if err := w.table("Qualifications", 1,
		[]any{"Code", "Type", "Name", "NQF Level", "Credits", "Mode of Delivery", "Status", "Status Date", "Offered"},
		quals); err != nil {
		return err
	}

	pricing := make([][]any, 0, len(o.Pricing.Items))
	for _, p := range o.Pricing.Items {
		pricing = append(pricing, []any{
			p.Code, p.QualificationName, p.Type, p.NQFLevel, intValue(p.Credits),
			p.DurationUnit, floatValue(p.Duration), intValue(p.NotionalHours),
			floatValue(p.Total), floatValue(p.AvePerNotionalHour),
		})
	}
	if err := w.table("Pricing", 1,
		[]any{"Code", "Qualification", "Type", "NQF Level", "Credits", "Duration Unit", "Duration", "Notional Hours", "Total", "Ave / Notional Hour"},
		pricing); err != nil {
		return err
	}

	sites := make([][]any, 0, len(o.Campuses.Sites))
	for _, s := range o.Campuses.Sites {
		sites = append(sites, []any{s.SiteId, s.CampusSiteName, s.CityTown, s.Province, s.ContactNo, s.ContactEmail})
	}
	return w.table("Sites", 1, []any{"Site", "Name", "City / Town", "Province", "Contact No", "Contact Email"}, sites)
}

// ── sheet writer ──────────────────────────────────────────────────────────────

type writer struct {
	f       *excelize.File
	bold    int
	percent int
}

func newWriter(f *excelize.File) (*writer, error) {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	percent, err := f.NewStyle(&excelize.Style{NumFmt: percentFormat})
	if err != nil {
		return nil, err
	}
	return &writer{f: f, bold: bold, percent: percent}, nil
}

func (w *writer) sheet(name string) error {
	idx, err := w.f.GetSheetIndex(name)
	if err != nil {
		return err
	}
	if idx >= 0 {
		return nil
	}
	_, err = w.f.NewSheet(name)
	return err
}

// rows writes values starting at column A of row start.
func (w *writer) rows(sheet string, start int, values [][]any) error {
	if err := w.sheet(sheet); err != nil {
		return err
	}
	for i, row := range values {
		cell, err := excelize.CoordinatesToCellName(1, start+i)
		if err != nil {
			return err
		}
		if err := w.f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// table writes a bold header row at start followed by values.
func (w *writer) table(sheet string, start int, header []any, values [][]any) error {
	if err := w.rows(sheet, start, append([][]any{header}, values...)); err != nil {
		return err
	}
	from, err := excelize.CoordinatesToCellName(1, start)
	if err != nil {
		return err
	}
	to, err := excelize.CoordinatesToCellName(len(header), start)
	if err != nil {
		return err
	}
	return w.f.SetCellStyle(sheet, from, to, w.bold)
}

func (w *writer) scores(sections []workbook.SectionScore, overall workbook.Scorecard) error {
	const start = 5
	values := make([][]any, 0, len(sections)+1)
	for _, s := range sections {
		values = append(values, scoreRow(s.Section, s.Scorecard))
	}
	values = append(values, scoreRow("Overall", overall))
	if err := w.table(summarySheet, start, scoreHeader, values); err != nil {
		return err
	}

	col := len(scoreHeader)
	from, err := excelize.CoordinatesToCellName(col, start+1)
	if err != nil {
		return err
	}
	to, err := excelize.CoordinatesToCellName(col, start+len(values))
	if err != nil {
		return err
	}
	return w.f.SetCellStyle(summarySheet, from, to, w.percent)
}

func (w *writer) grid(sheet string, g *workbook.Grid, equipment bool) error {
	header := gridHeader
	if equipment {
		header = append(append([]any{}, gridHeader...), equipmentHeader...)
	}
	values := make([][]any, 0, len(g.Rows))
	for _, r := range g.Rows {
		row := []any{
			r.PartCode, r.Code, r.Requirement, r.Action, ciLabel(r.CI),
			r.CorrectiveAction, r.AssignedTo, dateValue(r.CODate), yesNo(r.CO), r.VerifiedBy,
		}
		if equipment {
			row = append(row,
				r.Item, r.Specification, r.Allocation, r.RatioQty, r.PP,
				intValue(r.QtyReq), intValue(r.QtyAvail), intValue(r.Variance), intValue(r.Rate))
		}
		values = append(values, row)
	}
	return w.table(sheet, 1, header, values)
}

func scoreRow(label string, s workbook.Scorecard) []any {
	return []any{label, s.Criteria, s.Compliant, s.NonCompliant, s.NotApplicable, s.Percent}
}

func ciLabel(ci *int) string {
	if ci == nil {
		return ""
	}
	switch *ci {
	case workbook.CICompliant:
		return "Compliant"
	case workbook.CINotCompliant:
		return "Not Compliant"
	case workbook.CINotApplicable:
		return "N/A"
	}
	return ""
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func intValue(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatValue(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func dateValue(d *workbook.Date) string {
	if d == nil || d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}
