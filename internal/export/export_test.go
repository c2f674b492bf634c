package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pesio-ai/be-compliance-workbooks/internal/workbook"
)

var exportedAt = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

func open(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestRenderQA(t *testing.T) {
	q := workbook.NewQA()
	require.True(t, workbook.EnsureSeed(&q.GEL.Grid, workbook.SectionGEL))
	ci := workbook.CICompliant
	q.GEL.Rows[0].CI = &ci

	data, err := Render("QA 2025", q, exportedAt)
	require.NoError(t, err)
	f := open(t, data)

	sheets := f.GetSheetList()
	assert.Equal(t, summarySheet, sheets[0])
	for _, id := range workbook.QASections {
		assert.Contains(t, sheets, string(id))
	}

	title, err := f.GetCellValue(summarySheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "QA 2025", title)
	kind, err := f.GetCellValue(summarySheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "QA Workbook", kind)

	section, err := f.GetCellValue(summarySheet, "A6")
	require.NoError(t, err)
	assert.Equal(t, "GEL", section)
	compliant, err := f.GetCellValue(summarySheet, "C6")
	require.NoError(t, err)
	assert.Equal(t, "1", compliant)

	rows, err := f.GetRows("GEL")
	require.NoError(t, err)
	def, _ := workbook.Catalog(workbook.SectionGEL)
	require.Len(t, rows, 1+def.RowCount())
	assert.Equal(t, "Part", rows[0][0])
	assert.Equal(t, "Compliant", rows[1][4])
}

func TestRenderTQAEquipmentColumns(t *testing.T) {
	tq := workbook.NewTQA()
	require.True(t, workbook.EnsureSeed(tq.Grid(workbook.SectionEquipment), workbook.SectionEquipment))

	data, err := Render("TQA", tq, exportedAt)
	require.NoError(t, err)
	f := open(t, data)

	rows, err := f.GetRows(string(workbook.SectionEquipment))
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Len(t, rows[0], len(gridHeader)+len(equipmentHeader))

	rows, err = f.GetRows(string(workbook.SectionRisk))
	require.NoError(t, err)
	assert.Len(t, rows, 1, "unseeded grid exports its header only")
	assert.Len(t, rows[0], len(gridHeader))
}

func TestRenderOrgInfo(t *testing.T) {
	o := workbook.NewOrgInfo()
	credits := 120
	o.Qualifications.Items = []workbook.QualificationCourseRow{
		{Code: "Q1", Type: "Occupational Certificate", Name: "Welding", Credits: &credits, RegisteredAccreditedStatus: "Accredited"},
		{Code: "Q2", Type: "Skills Programme", Name: "First Aid"},
	}
	workbook.SyncPricing(o)
	o.Campuses.Sites = []workbook.CampusSiteRow{{SiteId: "S1", CampusSiteName: "Main", Province: "Gauteng"}}

	data, err := Render("Org", o, exportedAt)
	require.NoError(t, err)
	f := open(t, data)

	quals, err := f.GetRows("Qualifications")
	require.NoError(t, err)
	require.Len(t, quals, 3)
	assert.Equal(t, "Yes", quals[1][8])
	assert.Equal(t, "No", quals[2][8])
	assert.Equal(t, "120", quals[1][4])

	pricing, err := f.GetRows("Pricing")
	require.NoError(t, err)
	require.Len(t, pricing, 3)
	assert.Equal(t, "Welding", pricing[1][1])

	sites, err := f.GetRows("Sites")
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "Gauteng", sites[1][3])

	header, err := f.GetCellValue(summarySheet, "A5")
	require.NoError(t, err)
	assert.Equal(t, "Qualification Type", header)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "quality_assurance-7.xlsx", FileName(workbook.KindQualityAssurance, 7))
}
