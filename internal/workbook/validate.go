package workbook

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/errors"
)

// validator is implemented by sections with field-level constraints.
type validator interface {
	Validate() error
}

func checkEmail(field, v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if addr, err := mail.ParseAddress(v); err != nil || addr.Address != v {
		return errors.InvalidInput(field, "must be a valid email address")
	}
	return nil
}

func checkURL(field, v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	u, err := url.ParseRequestURI(v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.InvalidInput(field, "must be an absolute http or https URL")
	}
	return nil
}

func checkNonNegative(field string, v *int) error {
	if v != nil && *v < 0 {
		return errors.InvalidInput(field, "must not be negative")
	}
	return nil
}

func checkNonNegativeFloat(field string, v *float64) error {
	if v != nil && *v < 0 {
		return errors.InvalidInput(field, "must not be negative")
	}
	return nil
}

func checkCounts(field string, g GenderCounts) error {
	for _, c := range []struct {
		name string
		v    *int
	}{{"M", g.M}, {"MD", g.MD}, {"F", g.F}, {"FD", g.FD}} {
		if err := checkNonNegative(field+"."+c.name, c.v); err != nil {
			return err
		}
	}
	return nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *OrgInfoSection1) Validate() error {
	if err := firstError(
		checkEmail("GeneralEmail", s.GeneralEmail),
		checkURL("WebsiteUrl", s.WebsiteUrl),
	); err != nil {
		return err
	}
	for i, a := range s.Approvals {
		if a.Status != nil && (*a.Status < ApprovalExpired || *a.Status > ApprovalCurrent) {
			return errors.InvalidInput(fmt.Sprintf("Approvals[%d].Status", i), "must be 1, 2 or 3")
		}
	}
	return nil
}

func (s *BoardSection) Validate() error {
	return checkNonNegative("TotalDirectors", s.TotalDirectors)
}

func (s *EmploymentSection) Validate() error {
	for i, p := range s.Positions {
		prefix := fmt.Sprintf("Positions[%d].", i)
		if err := firstError(
			checkCounts(prefix+"African", p.African),
			checkCounts(prefix+"Coloured", p.Coloured),
			checkCounts(prefix+"Indian", p.Indian),
			checkCounts(prefix+"White", p.White),
			checkCounts(prefix+"Totals", p.Totals),
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *CampusesSection) Validate() error {
	for i, site := range s.Sites {
		if err := checkEmail(fmt.Sprintf("Sites[%d].ContactEmail", i), site.ContactEmail); err != nil {
			return err
		}
	}
	return nil
}

func (s *QualificationsSection) Validate() error {
	for i, q := range s.Items {
		if err := checkNonNegative(fmt.Sprintf("Items[%d].Credits", i), q.Credits); err != nil {
			return err
		}
	}
	return nil
}

func (s *PricingSection) Validate() error {
	for i, p := range s.Items {
		prefix := fmt.Sprintf("Items[%d].", i)
		if err := firstError(
			checkNonNegativeFloat(prefix+"Duration", p.Duration),
			checkNonNegative(prefix+"NotionalHours", p.NotionalHours),
		); err != nil {
			return err
		}
	}
	return nil
}

func validateStudentRows(n int, row func(int) [4]GenderCounts) error {
	names := [4]string{"African", "Coloured", "Indian", "White"}
	for i := 0; i < n; i++ {
		for j, g := range row(i) {
			if err := checkCounts(fmt.Sprintf("Rows[%d].%s", i, names[j]), g); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *StudentHistoricalSection) Validate() error {
	if err := checkNonNegative("Months", s.Months); err != nil {
		return err
	}
	return validateStudentRows(len(s.Rows), func(i int) [4]GenderCounts {
		r := s.Rows[i]
		return [4]GenderCounts{r.African, r.Coloured, r.Indian, r.White}
	})
}

func (s *StudentCurrentSection) Validate() error {
	if err := checkNonNegative("Months", s.Months); err != nil {
		return err
	}
	return validateStudentRows(len(s.Rows), func(i int) [4]GenderCounts {
		r := s.Rows[i]
		return [4]GenderCounts{r.African, r.Coloured, r.Indian, r.White}
	})
}

func (s *QAInfo) Validate() error {
	return firstError(
		checkEmail("Email", s.Email),
		checkEmail("AssessorEmail", s.AssessorEmail),
		checkNonNegative("CaImplementationDeadlineDays", s.CaImplementationDeadlineDays),
		checkNonNegative("ReassessmentDeadlineDays", s.ReassessmentDeadlineDays),
	)
}

func (s *TQAGeneral) Validate() error {
	return firstError(
		checkEmail("ContactEmail", s.ContactEmail),
		checkNonNegative("NumberOfLearners", s.NumberOfLearners),
		checkNonNegative("LearnerCount", s.LearnerCount),
	)
}

// Validate rejects CI values outside 1..3.
func (g *Grid) Validate() error {
	for i, r := range g.Rows {
		if r.CI != nil && (*r.CI < CINotApplicable || *r.CI > CICompliant) {
			return errors.InvalidInput(fmt.Sprintf("Rows[%d].CI", i), "must be 1, 2 or 3")
		}
	}
	return nil
}

func (s *TQAEquipment) Validate() error {
	if err := checkNonNegative("NumberOfLearners", s.NumberOfLearners); err != nil {
		return err
	}
	for i, r := range s.Rows {
		prefix := fmt.Sprintf("Rows[%d].", i)
		if err := firstError(
			checkNonNegative(prefix+"QtyReq", r.QtyReq),
			checkNonNegative(prefix+"QtyAvail", r.QtyAvail),
		); err != nil {
			return err
		}
		if r.Rate != nil && (*r.Rate < 1 || *r.Rate > 3) {
			return errors.InvalidInput(prefix+"Rate", "must be 1, 2 or 3")
		}
	}
	return nil
}
