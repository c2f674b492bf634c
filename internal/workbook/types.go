// Package workbook holds the compliance workbook document model, catalog
// seeding, scoring, cross-section synchronisation and the wizard and bundle
// state machines. Nothing here performs I/O.
package workbook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind identifies one of the three workbook documents.
type Kind string

const (
	KindOrgInfo                  Kind = "org_info"
	KindQualityAssurance         Kind = "quality_assurance"
	KindTrainingQualityAssurance Kind = "training_quality_assurance"
)

// Kinds lists every workbook kind in bundle order.
var Kinds = []Kind{KindOrgInfo, KindQualityAssurance, KindTrainingQualityAssurance}

// ParseKind accepts the canonical value, case-insensitively.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// DisplayName is the human label used in titles and exports.
func (k Kind) DisplayName() string {
	switch k {
	case KindOrgInfo:
		return "Org Info"
	case KindQualityAssurance:
		return "QA Workbook"
	case KindTrainingQualityAssurance:
		return "Training QA Workbook"
	}
	return string(k)
}

// Status is the per-workbook lifecycle value. Only Draft and Completed are
// set by the wizard; Submitted and Approved exist for stored data.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
)

// IsComplete reports whether the workbook counts as complete for the bundle.
// Any non-draft status qualifies.
func (s Status) IsComplete() bool {
	return s != StatusDraft
}

// Nav is the navigation intent posted with a wizard step.
type Nav string

const (
	NavPrev    Nav = "prev"
	NavSave    Nav = "save"
	NavNext    Nav = "next"
	NavRefresh Nav = "refresh"
)

// CI values for grid rows.
const (
	CINotApplicable = 1
	CINotCompliant  = 2
	CICompliant     = 3
)

// Date is a calendar date stored in the document. It accepts the legacy
// "2006-01-02T15:04:05" layout, RFC 3339 and plain dates.
type Date struct {
	time.Time
}

const legacyDateLayout = "2006-01-02T15:04:05"

var dateLayouts = []string{time.RFC3339Nano, legacyDateLayout, "2006-01-02"}

// NewDate truncates t to its calendar day.
func NewDate(year int, month time.Month, day int) *Date {
	return &Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses any accepted layout.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: t.UTC()}, nil
		}
	}
	return Date{}, fmt.Errorf("invalid date %q", s)
}

// MarshalJSON writes the legacy layout, which carries no offset, in UTC.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Time.UTC().Format(legacyDateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// String renders the date as yyyy-MM-dd.
func (d Date) String() string {
	return d.Time.Format("2006-01-02")
}

func (d *Date) equal(o *Date) bool {
	if d == nil || o == nil {
		return d == o
	}
	return d.Time.Equal(o.Time)
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func intEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
