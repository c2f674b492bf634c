package workbook

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog/sections.yaml
var catalogYAML []byte

// SectionID names a grid section with its own seed catalog.
type SectionID string

const (
	SectionGEL SectionID = "GEL"
	SectionSPR SectionID = "SPR"
	SectionTLA SectionID = "TLA"
	SectionLSW SectionID = "LSW"
	SectionSCE SectionID = "SCE"
	SectionRLE SectionID = "RLE"
	SectionQMI SectionID = "QMI"
	SectionSEC SectionID = "SEC"
	SectionLCR SectionID = "LCR"

	SectionSiteReadiness SectionID = "SiteReadiness"
	SectionEquipment     SectionID = "Equipment"
	SectionFacilitator   SectionID = "Facilitator"
	SectionLearner       SectionID = "Learner"
	SectionAdminSupport  SectionID = "AdminSupport"
	SectionRisk          SectionID = "Risk"
)

// QASections are the quality assurance grids in wizard order.
var QASections = []SectionID{
	SectionGEL, SectionSPR, SectionTLA, SectionLSW, SectionSCE,
	SectionRLE, SectionQMI, SectionSEC, SectionLCR,
}

// TQASections are the training QA grids in wizard order.
var TQASections = []SectionID{
	SectionSiteReadiness, SectionEquipment, SectionFacilitator,
	SectionLearner, SectionAdminSupport, SectionRisk,
}

// CatalogSection is the seed definition for one grid section.
type CatalogSection struct {
	// Column is the row field the criterion text lands in: "action" for QA
	// grids, "requirement" for training QA grids.
	Column    string        `yaml:"column"`
	BlankRows int           `yaml:"blankRows"`
	Parts     []CatalogPart `yaml:"parts"`
	Rows      []CatalogRow  `yaml:"rows"`
}

type CatalogPart struct {
	Code        string `yaml:"code"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type CatalogRow struct {
	Part string `yaml:"part"`
	Code string `yaml:"code"`
	Text string `yaml:"text"`
}

// RowCount is the number of rows a fresh seed produces.
func (c CatalogSection) RowCount() int {
	return len(c.Rows) + c.BlankRows
}

var (
	catalogOnce sync.Once
	catalog     map[SectionID]CatalogSection
	catalogErr  error
)

func loadCatalog() (map[SectionID]CatalogSection, error) {
	catalogOnce.Do(func() {
		var raw map[string]CatalogSection
		if err := yaml.Unmarshal(catalogYAML, &raw); err != nil {
			catalogErr = fmt.Errorf("failed to parse section catalog: %w", err)
			return
		}
		catalog = make(map[SectionID]CatalogSection, len(raw))
		for id, sec := range raw {
			catalog[SectionID(id)] = sec
		}
	})
	return catalog, catalogErr
}

// Catalog returns the seed definition for id. The embedded catalog is
// parsed on first use and a parse failure panics, since it is compiled in.
func Catalog(id SectionID) (CatalogSection, bool) {
	all, err := loadCatalog()
	if err != nil {
		panic(err)
	}
	sec, ok := all[id]
	return sec, ok
}

// AllSections lists every catalog section, QA grids first.
func AllSections() []SectionID {
	out := make([]SectionID, 0, len(QASections)+len(TQASections))
	out = append(out, QASections...)
	return append(out, TQASections...)
}
