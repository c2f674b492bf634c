package workbook

// OrgInfo is the organisation information workbook.
type OrgInfo struct {
	Section1 OrgInfoSection1
	Section2 struct{}
	Section3 OrgInfoSection3
	Section4 OrgInfoSection4
	Section5 OrgInfoSection5
	Section6 OrgInfoSection6
	Section7 OrgInfoSection7
	Section8 OrgInfoSection8

	Board             BoardSection
	Employment        EmploymentSection
	Campuses          CampusesSection
	Qualifications    QualificationsSection
	Pricing           PricingSection
	StudentHistorical StudentHistoricalSection
	StudentCurrent    StudentCurrentSection
}

func (*OrgInfo) Kind() Kind { return KindOrgInfo }

// NewOrgInfo returns the all-defaults document.
func NewOrgInfo() *OrgInfo {
	return &OrgInfo{
		Section1:          OrgInfoSection1{Approvals: []ApprovalRow{}},
		Section3:          OrgInfoSection3{Qualifications: []QualificationItem{}, RegistrationStatuses: []NamedCount{}, ActiveProvinces: []NamedCount{}},
		Section6:          OrgInfoSection6{EmployeeStats: []EmployeeStatRow{}},
		Board:             BoardSection{Directors: []DirectorRow{}},
		Employment:        EmploymentSection{Positions: []EmploymentPosition{}},
		Campuses:          CampusesSection{Sites: []CampusSiteRow{}},
		Qualifications:    QualificationsSection{Items: []QualificationCourseRow{}},
		Pricing:           PricingSection{Items: []PricingRow{}},
		StudentHistorical: StudentHistoricalSection{Rows: []StudentHistoricalRow{}},
		StudentCurrent:    StudentCurrentSection{Rows: []StudentCurrentRow{}},
	}
}

// OrgInfoSection1 is the administrative and head office page.
type OrgInfoSection1 struct {
	AppetdRegNo               string
	YearsRegAccredited        string
	LegalRegisteredName       string
	TradingName               string
	CompanyNpcNpoRegNo        string
	BBBEELevel                string
	RegisteredAccreditedSince *Date
	TypeOfInstitution         string
	OtherSpecify              string

	StreetAddress1       string
	StreetAddress2       string
	TownCity             string
	Province             string
	LocalMunicipality    string
	PostCode             string
	DistrictMunicipality string

	PostalAddress  string
	PostalTownCity string
	PostalProvince string
	PostalPostCode string

	GeneralContactNo string
	GeneralEmail     string
	WebsiteUrl       string

	Approvals []ApprovalRow

	BoardOfDirectors string
	CampusesSites    string
}

// ApprovalStatus of an accreditation row.
type ApprovalStatus int

const (
	ApprovalExpired ApprovalStatus = 1
	ApprovalPending ApprovalStatus = 2
	ApprovalCurrent ApprovalStatus = 3
)

type ApprovalRow struct {
	Name         string
	IsOther      bool
	OtherSpecify string
	Status       *ApprovalStatus
	Date         *Date
	Future       bool
}

// DefaultApprovalNames are the accreditation bodies offered on a fresh
// head office page. The last entry is the free-text "other" row.
var DefaultApprovalNames = []string{
	"Quality Council for Trades & Occupations (QCTO)",
	"Umalusi Standards & Guidelines for Quality",
	"Council on Higher Education Quality Assurance Framework",
	"King IV Report Principles Corporate Governance",
	"Independent Code of Governance for Non-Profit Organisations",
	"African Standards & Guidelines for Quality Assurance",
	"European Standards & Guidelines for Quality Assurance",
	"ISO 21001:2018 - Education Organisation Management Systems (EOMS)",
	"Investors in People",
	"Other (specify)",
}

// DefaultApprovals builds the approval rows for a fresh head office page.
func DefaultApprovals() []ApprovalRow {
	rows := make([]ApprovalRow, len(DefaultApprovalNames))
	for i, name := range DefaultApprovalNames {
		rows[i] = ApprovalRow{Name: name, IsOther: i == len(DefaultApprovalNames)-1}
	}
	return rows
}

// Provinces offered in province pickers.
var Provinces = []string{
	"Eastern Cape", "Free State", "Gauteng", "KwaZulu-Natal", "Limpopo",
	"Mpumalanga", "Northern Cape", "North West", "Western Cape",
}

type OrgInfoSection3 struct {
	Qualifications       []QualificationItem
	RegistrationStatuses []NamedCount
	ActiveProvinces      []NamedCount
}

type QualificationItem struct {
	Name     string
	Offered  bool
	Quantity *int
}

type NamedCount struct {
	Name  string
	Count *int
}

// OrgInfoSection4 holds the delivery mode flags.
type OrgInfoSection4 struct {
	FullTimeInPerson bool
	PartTimeInPerson bool
	DistanceLearning bool
	BlendedLearning  bool
	OnlineELearning  bool
	WorkplaceBased   bool
	Other            bool
	OtherText        string
}

// OrgInfoSection5 summarises historical student stats.
type OrgInfoSection5 struct {
	PeriodFrom               *Date
	PeriodTo                 *Date
	Months                   *int
	Enrolled                 *int
	Male                     *int
	Female                   *int
	Disabled                 *int
	SuccessfulCompletion     *int
	ResubmissionReassessment *int
	DropOffsIncomplete       *int
}

type OrgInfoSection6 struct {
	EmployeeStats []EmployeeStatRow
}

type EmployeeStatRow struct {
	Group                 string
	Employ                *int
	Disabled              *int
	DPercent              *float64
	Male                  *int
	MalePercent           *float64
	MaleDisabled          *int
	MaleDisabledPercent   *float64
	Female                *int
	FemalePercent         *float64
	FemaleDisabled        *int
	FemaleDisabledPercent *float64
}

// OrgInfoSection7 summarises current student stats.
type OrgInfoSection7 struct {
	PeriodText               string
	Months                   *int
	Enrolled                 *int
	Male                     *int
	Female                   *int
	Disabled                 *int
	InProcess                *int
	SuccessfulCompletion     *int
	ResubmissionReassessment *int
	DropOffsIncomplete       *int
}

type OrgInfoSection8 struct {
	Notes string
}

type BoardSection struct {
	TotalDirectors *int
	Directors      []DirectorRow
}

type DirectorRow struct {
	Surname     string
	FirstName   string
	SecondName  string
	Title       string
	Reference   string
	Appointed   *Date
	Designation string
	Gender      string
	Ethnic      string

	Disability              bool
	GovSecInterest          bool
	PrevEmployByGov         bool
	ClearCreditScore        bool
	ClearCriminalRecord     bool
	ValidQualifications     bool
	SuspensionFromCsd       bool
	JudgementsIssuedByCourt bool
}

type EmploymentSection struct {
	Summary   EmploymentSummary
	Positions []EmploymentPosition
}

type EmploymentSummary struct {
	TotalMale      RaceTotals
	MaleDisabled   RaceTotals
	TotalFemale    RaceTotals
	FemaleDisabled RaceTotals
}

type RaceTotals struct {
	African  *int
	Coloured *int
	Indian   *int
	White    *int
	Total    *int
}

type EmploymentPosition struct {
	PositionFunction string
	EmpType          string
	African          GenderCounts
	Coloured         GenderCounts
	Indian           GenderCounts
	White            GenderCounts
	Totals           GenderCounts
}

// GenderCounts splits a head count by gender and disability.
type GenderCounts struct {
	M  *int
	MD *int
	F  *int
	FD *int
}

func (g GenderCounts) sum() int {
	return deref(g.M) + deref(g.MD) + deref(g.F) + deref(g.FD)
}

// filled replaces unset counts with zero.
func (g GenderCounts) filled() GenderCounts {
	return GenderCounts{M: intPtr(deref(g.M)), MD: intPtr(deref(g.MD)), F: intPtr(deref(g.F)), FD: intPtr(deref(g.FD))}
}

type CampusesSection struct {
	Sites []CampusSiteRow
}

type CampusSiteRow struct {
	SiteId               string
	CampusSiteName       string
	StreetAddress1       string
	StreetAddress2       string
	CityTown             string
	PostalCode           string
	Province             string
	GpsLatitude          string
	GpsLongitude         string
	DistrictMunicipality string
	LocalMunicipality    string
	ContactNo            string
	ContactEmail         string
}

type QualificationsSection struct {
	Items []QualificationCourseRow
}

type QualificationCourseRow struct {
	Code                       string
	Type                       string
	SAQAId                     string
	QualificationCode          string
	LearnershipCode            string
	OFOCode                    string
	Name                       string
	ModeOfDelivery             string
	NQFLevel                   string
	Credits                    *int
	SAQAFieldOfStudy           string
	CESM                       string
	RegisteredAccreditedStatus string
	StatusDate                 *Date
	SuitablyQualifiedStaff     *bool
	StudentStaffRatio          string
}

type PricingSection struct {
	Items []PricingRow
}

// PricingRow is keyed by Code. Code, QualificationName, Type, NQFLevel and
// Credits mirror the qualification with the same code; the rest is edited
// on the pricing page.
type PricingRow struct {
	Code              string
	QualificationName string
	Type              string
	NQFLevel          string
	Credits           *int

	DurationUnit       string
	Duration           *float64
	NotionalHours      *int
	Registration       *float64
	Admin              *float64
	Facilitation       *float64
	TrainMaterials     *float64
	PpeToolsEquipment  *float64
	Overheads          *float64
	Assessment         *float64
	ReAssess           *float64
	Moderation         *float64
	Other              *float64
	Certification      *float64
	Total              *float64
	AvePerNotionalHour *float64
}

type StudentHistoricalSection struct {
	PeriodFrom *Date
	PeriodTo   *Date
	Months     *int
	Rows       []StudentHistoricalRow
}

type StudentHistoricalRow struct {
	ProgrammeType string
	African       GenderCounts
	Coloured      GenderCounts
	Indian        GenderCounts
	White         GenderCounts
	Total         *int
	SC            *int
	SCPercent     *float64
	PR            *int
	PRPercent     *float64
	DI            *int
	DIPercent     *float64
	VAR           *int
}

type StudentCurrentSection struct {
	PeriodFrom *Date
	PeriodTo   *Date
	Months     *int
	Rows       []StudentCurrentRow
}

type StudentCurrentRow struct {
	ProgrammeType string
	// Completed rows are snapshotted into the historical section.
	Completed bool
	African   GenderCounts
	Coloured  GenderCounts
	Indian    GenderCounts
	White     GenderCounts
	Total     *int
	IP        *int
	IPPercent *float64
	SC        *int
	SCPercent *float64
	PR        *int
	PRPercent *float64
	DI        *int
	DIPercent *float64
	VAR       *int
}

// ProgrammeTypes is the canonical order of qualification types on the
// overview. The misspelt "Skills Programmme" matches stored data.
var ProgrammeTypes = []string{
	"Short Course (Non Credit)",
	"Short Course (Credit Bearing)",
	"Skills Programmme",
	"General Certificate",
	"General Occupational Certificate",
	"Elementary Certificate",
	"Elementary Occupational Certificate",
	"Intermediate Certificate",
	"Intermediate Occupational Certificate",
	"National Certificate",
	"National Occupational Certificate",
	"Higher Certificate",
	"Higher Occupational Certificate",
	"Advanced Occupational Certificate",
	"Occupational Diploma",
	"Diploma",
	"Advanced Certificate",
	"Advanced Occupational Diploma",
	"Advanced Diploma",
	"Specialised Occupational Diploma",
	"Bachelor's Degree",
	"Postgraduate Diploma",
	"Bachelor's Honours Degree",
	"Master's Degree",
	"Professional Master's Degree",
	"Doctoral Degree",
	"Professional Doctorate",
}
